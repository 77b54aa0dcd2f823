package services

import (
	"time"

	"journal-gamification/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MilestoneRewards is the fixed XP granted per milestone type.
var MilestoneRewards = map[models.MilestoneType]int64{
	models.MilestoneFirstTrade:  25,
	models.MilestoneFirstProfit: 50,
}

type MilestoneService struct {
	logger *zap.Logger
}

func NewMilestoneService(logger *zap.Logger) *MilestoneService {
	return &MilestoneService{logger: logger.Named("milestones")}
}

// MilestoneTrigger carries the history transitions observed for one completion event.
type MilestoneTrigger struct {
	TradesBefore           int64
	TradesAfter            int64
	ProfitableTradesBefore int64
	ProfitableTradesAfter  int64
}

func (t MilestoneTrigger) fired() []models.MilestoneType {
	var out []models.MilestoneType
	if t.TradesBefore == 0 && t.TradesAfter >= 1 {
		out = append(out, models.MilestoneFirstTrade)
	}
	if t.ProfitableTradesBefore == 0 && t.ProfitableTradesAfter >= 1 {
		out = append(out, models.MilestoneFirstProfit)
	}
	return out
}

// Record inserts every milestone the trigger fires. The unique (user, type) key makes a
// second firing a no-op; XP is granted only for rows actually inserted.
func (s *MilestoneService) Record(tx *gorm.DB, prog *models.PlayerProgress, trig MilestoneTrigger, now time.Time) ([]models.Milestone, int, error) {
	var recorded []models.Milestone
	levels := 0
	for _, typ := range trig.fired() {
		m := models.Milestone{
			ExternalUserID: prog.ExternalUserID,
			Type:           typ,
			XPReward:       MilestoneRewards[typ],
			AchievedAt:     now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil {
			return nil, 0, persistErr("record milestone", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		lr := GrantExperience(prog, m.XPReward, now)
		levels += lr.LevelsGained
		recorded = append(recorded, m)
		s.logger.Info("milestone reached",
			zap.String("user", prog.ExternalUserID), zap.String("type", string(typ)), zap.Int64("xp_reward", m.XPReward))
	}
	return recorded, levels, nil
}
