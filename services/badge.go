package services

import (
	"errors"
	"sort"
	"time"

	"journal-gamification/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BadgeRule extracts the counter a requirement kind is measured against.
type BadgeRule func(p *models.PlayerProgress) int64

var badgeRules = map[models.RequirementKind]BadgeRule{
	models.RequirementDailyStreak:  func(p *models.PlayerProgress) int64 { return int64(p.DailyStreak) },
	models.RequirementProfitStreak: func(p *models.PlayerProgress) int64 { return int64(p.ProfitStreak) },
	models.RequirementTotalTrades:  func(p *models.PlayerProgress) int64 { return p.TotalTrades },
	models.RequirementWinStreak:    func(p *models.PlayerProgress) int64 { return int64(p.MaxConsecutiveWins) },
	models.RequirementLevel:        func(p *models.PlayerProgress) int64 { return int64(p.Level) },
}

// RuleFor returns the evaluator for kind, or a ValidationError for unknown kinds.
func RuleFor(kind models.RequirementKind) (BadgeRule, error) {
	rule, ok := badgeRules[kind]
	if !ok {
		return nil, &ValidationError{Field: "requirement.kind", Reason: "unknown kind " + string(kind)}
	}
	return rule, nil
}

// KnownRequirementKind reports whether kind has an evaluator.
func KnownRequirementKind(kind models.RequirementKind) bool {
	_, ok := badgeRules[kind]
	return ok
}

type BadgeService struct {
	logger *zap.Logger
}

func NewBadgeService(logger *zap.Logger) *BadgeService {
	return &BadgeService{logger: logger.Named("badges")}
}

// AwardedBadge is a badge unlocked by the current event.
type AwardedBadge struct {
	Badge      models.BadgeDefinition `json:"badge"`
	AchievedAt time.Time              `json:"achieved_at"`
}

// Evaluate checks every unachieved badge against prog, persists progress, and awards
// those whose threshold is met. Badge XP can raise the level, so passes repeat until
// nothing new is awarded. Returns the awarded badges and the levels gained from their XP.
func (s *BadgeService) Evaluate(tx *gorm.DB, prog *models.PlayerProgress, now time.Time) ([]AwardedBadge, int, error) {
	var catalog []models.BadgeDefinition
	if err := tx.Order("id ASC").Find(&catalog).Error; err != nil {
		return nil, 0, persistErr("load badge catalog", err)
	}
	if len(catalog) == 0 {
		return nil, 0, nil
	}

	var rows []models.BadgeProgress
	if err := tx.Where("external_user_id = ?", prog.ExternalUserID).Find(&rows).Error; err != nil {
		return nil, 0, persistErr("load badge progress", err)
	}
	existing := make(map[string]*models.BadgeProgress, len(rows))
	for i := range rows {
		existing[rows[i].BadgeID] = &rows[i]
	}

	var awarded []AwardedBadge
	levelsGained := 0
	touched := map[string]bool{}

	for {
		newThisPass := 0
		for _, def := range catalog {
			row := existing[def.ID]
			if row != nil && row.Achieved() {
				continue
			}

			rule, err := RuleFor(def.RequirementKind)
			if err != nil {
				s.logger.Warn("skipping badge with unknown requirement",
					zap.String("badge", def.ID), zap.String("kind", string(def.RequirementKind)), zap.Error(err))
				continue
			}

			if row == nil {
				row = &models.BadgeProgress{ExternalUserID: prog.ExternalUserID, BadgeID: def.ID}
				existing[def.ID] = row
			}
			row.Progress = rule(prog)
			touched[def.ID] = true

			if row.Progress >= def.Threshold {
				at := now
				row.AchievedAt = &at
				lr := GrantExperience(prog, def.XPReward, now)
				levelsGained += lr.LevelsGained
				awarded = append(awarded, AwardedBadge{Badge: def, AchievedAt: at})
				newThisPass++
				s.logger.Info("badge awarded",
					zap.String("user", prog.ExternalUserID), zap.String("badge", def.ID),
					zap.Int64("xp_reward", def.XPReward), zap.Int("level", prog.Level))
			}
		}
		if newThisPass == 0 {
			break
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.Save(existing[id]).Error; err != nil {
			return nil, 0, persistErr("save badge progress", err)
		}
	}
	return awarded, levelsGained, nil
}

// BadgeStatus is a catalog entry annotated with one user's progress.
type BadgeStatus struct {
	models.BadgeDefinition
	Progress   int64      `json:"progress"`
	Achieved   bool       `json:"achieved"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// Catalog returns every badge definition annotated with the user's progress.
func (s *BadgeService) Catalog(db *gorm.DB, externalUserID string) ([]BadgeStatus, error) {
	var defs []models.BadgeDefinition
	if err := db.Order("id ASC").Find(&defs).Error; err != nil {
		return nil, persistErr("load badge catalog", err)
	}
	var rows []models.BadgeProgress
	if err := db.Where("external_user_id = ?", externalUserID).Find(&rows).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistErr("load badge progress", err)
	}
	byID := make(map[string]models.BadgeProgress, len(rows))
	for _, r := range rows {
		byID[r.BadgeID] = r
	}

	out := make([]BadgeStatus, 0, len(defs))
	for _, d := range defs {
		st := BadgeStatus{BadgeDefinition: d}
		if r, ok := byID[d.ID]; ok {
			st.Progress = r.Progress
			st.Achieved = r.Achieved()
			st.AchievedAt = r.AchievedAt
		}
		out = append(out, st)
	}
	return out, nil
}
