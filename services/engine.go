package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"journal-gamification/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// Engine runs the gamification pipeline. Events for one user are applied strictly in
// order; every event commits as a single transaction or not at all.
type Engine struct {
	DB *gorm.DB

	logger     *zap.Logger
	weights    XPWeights
	badges     *BadgeService
	milestones *MilestoneService
	scores     *PeriodScoreService
	reversal   *ReversalService
	cache      LeaderboardCache
	now        func() time.Time

	userLocks   *KeyedMutex
	periodLocks *KeyedMutex
}

type EngineOption func(*Engine)

func WithLeaderboardCache(c LeaderboardCache) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithClock overrides the time source used for achievedAt/rankedAt stamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithXPWeights(w XPWeights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

func NewEngine(db *gorm.DB, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		DB:          db,
		logger:      logger.Named("engine"),
		weights:     DefaultXPWeights,
		cache:       noopLeaderboardCache{},
		now:         time.Now,
		userLocks:   NewKeyedMutex(),
		periodLocks: NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.badges = NewBadgeService(logger)
	e.milestones = NewMilestoneService(logger)
	e.scores = NewPeriodScoreService(logger)
	e.reversal = NewReversalService(e.weights, logger)
	return e
}

// Trade is the completed trade as reported by the journal.
type Trade struct {
	ID     string          `json:"id"`
	Profit decimal.Decimal `json:"profit"`
	Result string          `json:"result"`
	Date   time.Time       `json:"date"`
}

type TradeCompletion struct {
	UserID    string `json:"user_id"`
	PeriodKey string `json:"period_key"`
	Trade     Trade  `json:"trade"`
}

type TradeDeletion struct {
	UserID           string          `json:"user_id"`
	PeriodKey        string          `json:"period_key"`
	DeletedCount     int64           `json:"deleted_count"`
	DeletedProfitSum decimal.Decimal `json:"deleted_profit_sum"`
	TradeIDs         []string        `json:"trade_ids,omitempty"`
}

// PeriodStanding is the user's score and rank in one period after an event.
type PeriodStanding struct {
	PeriodKey string `json:"period_key"`
	Score     int    `json:"score"`
	Rank      *int   `json:"rank"`
}

type CompletionResult struct {
	LevelUps      int                `json:"level_ups"`
	Level         int                `json:"level"`
	NewBadges     []AwardedBadge     `json:"new_badges"`
	NewMilestones []models.Milestone `json:"new_milestones"`
	PeriodScore   PeriodStanding     `json:"period_score"`
	// Duplicate is set when the trade id had already been processed; nothing was re-applied.
	Duplicate bool `json:"duplicate,omitempty"`
}

type DeletionResult struct {
	NewLevel     int             `json:"new_level"`
	XPClawedBack int64           `json:"xp_clawed_back"`
	TotalTrades  int64           `json:"total_trades"`
	PeriodScore  *PeriodStanding `json:"period_score,omitempty"`
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "required"}
	}
	return nil
}

// ProcessTradeCompletion runs Ledger → Streaks → Badges → Milestones → Scorer → Ranker for one trade.
func (e *Engine) ProcessTradeCompletion(ctx context.Context, ev TradeCompletion) (*CompletionResult, error) {
	start := time.Now()
	defer func() { eventDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds()) }()

	if err := errors.Join(requireField("user_id", ev.UserID), requireField("period_key", ev.PeriodKey)); err != nil {
		eventsProcessed.WithLabelValues("completion", "invalid").Inc()
		return nil, err
	}

	unlockUser := e.userLocks.Lock(ev.UserID)
	defer unlockUser()
	unlockPeriod := e.periodLocks.Lock(ev.PeriodKey)
	defer unlockPeriod()

	now := e.now()
	var result *CompletionResult
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEventTx(tx, ev.UserID, ev.PeriodKey); err != nil {
			return err
		}
		r, err := e.completeTrade(tx, ev, now)
		result = r
		return err
	})
	if err != nil {
		eventsProcessed.WithLabelValues("completion", "failed").Inc()
		e.logger.Error("trade completion failed",
			zap.String("user", ev.UserID), zap.String("trade", ev.Trade.ID), zap.Error(err))
		return nil, persistErr("process trade completion", err)
	}

	if result.Duplicate {
		eventsProcessed.WithLabelValues("completion", "duplicate").Inc()
		return result, nil
	}

	e.cache.Invalidate(ctx, ev.PeriodKey)
	eventsProcessed.WithLabelValues("completion", "ok").Inc()
	levelUps.Add(float64(result.LevelUps))
	for _, b := range result.NewBadges {
		badgesAwarded.WithLabelValues(string(b.Badge.Rarity)).Inc()
	}
	periodsRanked.Inc()
	return result, nil
}

func (e *Engine) completeTrade(tx *gorm.DB, ev TradeCompletion, now time.Time) (*CompletionResult, error) {
	log := e.logger.With(zap.String("user", ev.UserID), zap.String("period", ev.PeriodKey))
	trade := ev.Trade

	if trade.ID != "" {
		var existing int64
		if err := tx.Model(&models.TradeFact{}).Where("trade_id = ?", trade.ID).Count(&existing).Error; err != nil {
			return nil, persistErr("check trade fact", err)
		}
		if existing > 0 {
			log.Info("trade already processed", zap.String("trade", trade.ID))
			standing, err := e.standing(tx, ev.UserID, ev.PeriodKey)
			if err != nil {
				return nil, err
			}
			prog, err := EnsureProgressRecord(tx, ev.UserID)
			if err != nil {
				return nil, err
			}
			return &CompletionResult{Level: prog.Level, PeriodScore: standing, Duplicate: true}, nil
		}
	} else {
		trade.ID = uuid.NewString()
	}

	result, hasResult := models.ParseTradeResult(trade.Result)
	if !hasResult {
		log.Warn("unrecognized trade result, win streak step skipped",
			zap.Error(&ValidationError{Field: "trade.result", Reason: "unrecognized value " + trade.Result}))
		result = models.ResultUnknown
	}
	hasDate := !trade.Date.IsZero()
	day := CalendarDay(now)
	if hasDate {
		day = TradeDay(trade.Date)
	} else {
		log.Warn("trade has no date, date-based streak steps skipped",
			zap.Error(&ValidationError{Field: "trade.date", Reason: "required"}))
	}

	prog, err := EnsureProgressRecord(tx, ev.UserID)
	if err != nil {
		return nil, err
	}

	var profitableBefore int64
	if err := tx.Model(&models.TradeFact{}).
		Where("external_user_id = ? AND profit > 0", ev.UserID).
		Count(&profitableBefore).Error; err != nil {
		return nil, persistErr("count profitable trades", err)
	}

	fact := models.TradeFact{
		TradeID:        trade.ID,
		ExternalUserID: ev.UserID,
		PeriodKey:      ev.PeriodKey,
		Profit:         trade.Profit,
		Result:         result,
		TradeDate:      day,
	}
	if err := tx.Create(&fact).Error; err != nil {
		return nil, persistErr("record trade fact", err)
	}

	out := &CompletionResult{}

	// Ledger
	tradesBefore := prog.TotalTrades
	prog.TotalTrades++
	lr := GrantExperience(prog, e.weights.TradeCompletionXP(trade.Profit), now)
	out.LevelUps += lr.LevelsGained

	// Streaks
	if hasDate {
		UpdateDailyStreak(prog, day)
		UpdateProfitStreak(prog, day, trade.Profit)
	}
	if hasResult {
		UpdateWinStreak(prog, result)
	}

	// Badges
	awarded, levels, err := e.badges.Evaluate(tx, prog, now)
	if err != nil {
		return nil, err
	}
	out.NewBadges = awarded
	out.LevelUps += levels

	// Milestones
	profitableAfter := profitableBefore
	if trade.Profit.IsPositive() {
		profitableAfter++
	}
	milestones, levels, err := e.milestones.Record(tx, prog, MilestoneTrigger{
		TradesBefore:           tradesBefore,
		TradesAfter:            prog.TotalTrades,
		ProfitableTradesBefore: profitableBefore,
		ProfitableTradesAfter:  profitableAfter,
	}, now)
	if err != nil {
		return nil, err
	}
	out.NewMilestones = milestones
	out.LevelUps += levels

	if err := tx.Save(prog).Error; err != nil {
		return nil, persistErr("save player progress", err)
	}
	out.Level = prog.Level

	// Period score + ranking
	standing, err := e.scoreAndRank(tx, ev.UserID, ev.PeriodKey, now)
	if err != nil {
		return nil, err
	}
	out.PeriodScore = standing

	log.Debug("trade processed",
		zap.String("trade", trade.ID), zap.Int("level", prog.Level), zap.Int64("total_xp", prog.TotalExperience),
		zap.Int("badges", len(awarded)), zap.Int("score", standing.Score))
	return out, nil
}

// ProcessTradeDeletion compensates trade count and XP, then rescores the affected period.
func (e *Engine) ProcessTradeDeletion(ctx context.Context, ev TradeDeletion) (*DeletionResult, error) {
	start := time.Now()
	defer func() { eventDuration.WithLabelValues("deletion").Observe(time.Since(start).Seconds()) }()

	if err := requireField("user_id", ev.UserID); err != nil {
		eventsProcessed.WithLabelValues("deletion", "invalid").Inc()
		return nil, err
	}

	unlockUser := e.userLocks.Lock(ev.UserID)
	defer unlockUser()
	if ev.PeriodKey != "" {
		unlockPeriod := e.periodLocks.Lock(ev.PeriodKey)
		defer unlockPeriod()
	} else {
		e.logger.Warn("deletion without period key, rescoring skipped",
			zap.String("user", ev.UserID), zap.Error(&ValidationError{Field: "period_key", Reason: "required for rescoring"}))
	}

	now := e.now()
	var result *DeletionResult
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEventTx(tx, ev.UserID, ev.PeriodKey); err != nil {
			return err
		}
		prog, err := EnsureProgressRecord(tx, ev.UserID)
		if err != nil {
			return err
		}
		rev, err := e.reversal.Apply(tx, prog, ev.PeriodKey, ev.DeletedCount, ev.DeletedProfitSum, ev.TradeIDs)
		if err != nil {
			return err
		}
		if err := tx.Save(prog).Error; err != nil {
			return persistErr("save player progress", err)
		}
		result = &DeletionResult{NewLevel: prog.Level, XPClawedBack: rev.XPClawedBack, TotalTrades: prog.TotalTrades}

		if ev.PeriodKey != "" {
			standing, err := e.scoreAndRank(tx, ev.UserID, ev.PeriodKey, now)
			if err != nil {
				return err
			}
			result.PeriodScore = &standing
		}
		e.logger.Info("trades reversed",
			zap.String("user", ev.UserID), zap.Int64("trades_removed", rev.TradesRemoved),
			zap.Int64("facts_removed", rev.FactsRemoved), zap.Int64("xp_clawed_back", rev.XPClawedBack),
			zap.Int("level", prog.Level))
		return nil
	})
	if err != nil {
		eventsProcessed.WithLabelValues("deletion", "failed").Inc()
		e.logger.Error("trade deletion failed", zap.String("user", ev.UserID), zap.Error(err))
		return nil, persistErr("process trade deletion", err)
	}

	if ev.PeriodKey != "" {
		e.cache.Invalidate(ctx, ev.PeriodKey)
		periodsRanked.Inc()
	}
	eventsProcessed.WithLabelValues("deletion", "ok").Inc()
	return result, nil
}

func (e *Engine) scoreAndRank(tx *gorm.DB, userID, periodKey string, now time.Time) (PeriodStanding, error) {
	if _, err := e.scores.Recompute(tx, userID, periodKey); err != nil {
		return PeriodStanding{}, err
	}
	if _, err := e.scores.RankPeriod(tx, periodKey, now); err != nil {
		return PeriodStanding{}, err
	}
	return e.standing(tx, userID, periodKey)
}

func (e *Engine) standing(db *gorm.DB, userID, periodKey string) (PeriodStanding, error) {
	var row models.PeriodScore
	err := db.Where("external_user_id = ? AND period_key = ?", userID, periodKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PeriodStanding{PeriodKey: periodKey}, nil
	}
	if err != nil {
		return PeriodStanding{}, persistErr("load period standing", err)
	}
	return PeriodStanding{PeriodKey: periodKey, Score: row.Score, Rank: row.Rank}, nil
}

// Advisory lock classes, so user and period keys never share a lock.
const (
	userLockClass   int32 = 1
	periodLockClass int32 = 2
)

// advisoryLock takes a transaction-scoped lock on Postgres. Other dialects rely on the
// in-process keyed mutexes and the database's own write lock.
func advisoryLock(tx *gorm.DB, class int32, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?, hashtext(?))", class, key).Error
}

// lockEventTx serializes an event against every engine process: the user first, then the
// period when one is given.
func lockEventTx(tx *gorm.DB, userID, periodKey string) error {
	if err := advisoryLock(tx, userLockClass, userID); err != nil {
		return persistErr("lock user", err)
	}
	if periodKey == "" {
		return nil
	}
	return lockPeriodTx(tx, periodKey)
}

func lockPeriodTx(tx *gorm.DB, periodKey string) error {
	if err := advisoryLock(tx, periodLockClass, periodKey); err != nil {
		return persistErr("lock period", err)
	}
	return nil
}

// RerankPeriod re-runs the batch ranker for one period.
func (e *Engine) RerankPeriod(ctx context.Context, periodKey string) (int, error) {
	if err := requireField("period_key", periodKey); err != nil {
		return 0, err
	}
	unlock := e.periodLocks.Lock(periodKey)
	defer unlock()

	var ranked int
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPeriodTx(tx, periodKey); err != nil {
			return err
		}
		n, err := e.scores.RankPeriod(tx, periodKey, e.now())
		ranked = n
		return err
	})
	if err != nil {
		return 0, persistErr("rerank period", err)
	}
	e.cache.Invalidate(ctx, periodKey)
	periodsRanked.Inc()
	return ranked, nil
}

// ActivePeriods lists periods whose scores changed at or after since.
func (e *Engine) ActivePeriods(ctx context.Context, since time.Time) ([]string, error) {
	var keys []string
	err := e.DB.WithContext(ctx).Model(&models.PeriodScore{}).
		Where("updated_at >= ?", since).
		Distinct().Order("period_key").
		Pluck("period_key", &keys).Error
	if err != nil {
		return nil, persistErr("list active periods", err)
	}
	return keys, nil
}

// PlayerProfile is the read model for one user's progression.
type PlayerProfile struct {
	Progress             models.PlayerProgress  `json:"progress"`
	Badges               []models.BadgeProgress `json:"badges"`
	Milestones           []models.Milestone     `json:"milestones"`
	NextLevelXP          int64                  `json:"next_level_xp"`
	LevelProgressPercent float64                `json:"level_progress_percent"`
}

// GetPlayerProgress returns the user's progression, creating the zeroed record on first read.
func (e *Engine) GetPlayerProgress(ctx context.Context, userID string) (*PlayerProfile, error) {
	if err := requireField("user_id", userID); err != nil {
		return nil, err
	}
	db := e.DB.WithContext(ctx)

	unlock := e.userLocks.Lock(userID)
	prog, err := EnsureProgressRecord(db, userID)
	unlock()
	if err != nil {
		return nil, err
	}

	profile := &PlayerProfile{Progress: *prog, NextLevelXP: RequiredXP(prog.Level)}
	if profile.NextLevelXP > 0 {
		profile.LevelProgressPercent = math.Round(float64(prog.ExperienceInLevel)/float64(profile.NextLevelXP)*10000) / 100
	}
	if err := db.Where("external_user_id = ?", userID).Order("badge_id").Find(&profile.Badges).Error; err != nil {
		return nil, persistErr("load badge progress", err)
	}
	if err := db.Where("external_user_id = ?", userID).Order("achieved_at").Find(&profile.Milestones).Error; err != nil {
		return nil, persistErr("load milestones", err)
	}
	return profile, nil
}

// Leaderboard is one ranked page of a period plus the caller's own standing.
type Leaderboard struct {
	PeriodKey string                    `json:"period_key"`
	Entries   []models.LeaderboardEntry `json:"entries"`
	Caller    *models.LeaderboardEntry  `json:"caller,omitempty"`
}

// GetLeaderboard returns the top limit ranked users of a period. callerID may be empty.
func (e *Engine) GetLeaderboard(ctx context.Context, periodKey string, limit int, callerID string) (*Leaderboard, error) {
	if err := requireField("period_key", periodKey); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	db := e.DB.WithContext(ctx)
	board := &Leaderboard{PeriodKey: periodKey}

	if cached, ok := e.cache.Get(ctx, periodKey, limit); ok {
		board.Entries = cached
	} else {
		version, versioned := e.cache.Version(ctx, periodKey)
		var rows []models.PeriodScore
		if err := db.Where("period_key = ? AND rank IS NOT NULL", periodKey).
			Order("rank ASC").Limit(limit).
			Find(&rows).Error; err != nil {
			return nil, persistErr("load leaderboard", err)
		}
		board.Entries = make([]models.LeaderboardEntry, 0, len(rows))
		for _, r := range rows {
			board.Entries = append(board.Entries, models.LeaderboardEntry{UserID: r.ExternalUserID, Score: r.Score, Rank: r.Rank})
		}
		if versioned {
			e.cache.Set(ctx, periodKey, limit, version, board.Entries)
		}
	}

	if callerID != "" {
		standing, err := e.standing(db, callerID, periodKey)
		if err != nil {
			return nil, err
		}
		board.Caller = &models.LeaderboardEntry{UserID: callerID, Score: standing.Score, Rank: standing.Rank}
	}
	return board, nil
}

// GetBadgeCatalog returns every badge annotated with the user's progress.
func (e *Engine) GetBadgeCatalog(ctx context.Context, userID string) ([]BadgeStatus, error) {
	if err := requireField("user_id", userID); err != nil {
		return nil, err
	}
	return e.badges.Catalog(e.DB.WithContext(ctx), userID)
}
