package service

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

const defaultXPAttempts = 5

// XPState is the stored xp and level after an update.
type XPState struct {
	XP    float64 `json:"xp"`
	Level int     `json:"level"`
}

// IXPLedger applies signed xp changes to a profile.
type IXPLedger interface {
	ApplyDelta(ctx context.Context, userID string, delta float64) (XPState, error)
}

// XPLedger keeps profile xp and level consistent under concurrent writers by
// guarding each update with the version it read.
type XPLedger struct {
	db          *gorm.DB
	engine      LevelEngine
	maxAttempts int
	log         *zap.Logger
}

var _ IXPLedger = (*XPLedger)(nil)

func NewXPLedger(db *gorm.DB, log *zap.Logger) *XPLedger {
	return &XPLedger{
		db:          db,
		engine:      DefaultLevelEngine,
		maxAttempts: defaultXPAttempts,
		log:         log.Named("xp"),
	}
}

// ApplyDelta adds delta to the stored xp, flooring the result at zero, and
// stores the level derived from it. A zero delta and a missing profile are
// both no-ops.
func (l *XPLedger) ApplyDelta(ctx context.Context, userID string, delta float64) (XPState, error) {
	if delta == 0 {
		return XPState{}, nil
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		state, applied, err := l.tryApply(ctx, userID, delta)
		if err != nil {
			return XPState{}, err
		}
		if applied {
			return state, nil
		}
		l.log.Debug("xp version conflict",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
		)
	}
	return XPState{}, ErrXPConflict
}

func (l *XPLedger) tryApply(ctx context.Context, userID string, delta float64) (XPState, bool, error) {
	var state XPState
	applied := false

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.UserProfile
		err := tx.Select("user_id", "xp", "level", "xp_version").
			Where("user_id = ?", userID).
			Take(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			applied = true
			return nil
		}
		if err != nil {
			return err
		}

		newXP := math.Max(0, profile.XP+delta)
		newLevel := l.engine.LevelFromXP(newXP)

		res := tx.Model(&models.UserProfile{}).
			Where("user_id = ? AND xp_version = ?", userID, profile.XPVersion).
			Updates(map[string]interface{}{
				"xp":         newXP,
				"level":      newLevel,
				"xp_version": profile.XPVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		state = XPState{XP: newXP, Level: newLevel}
		applied = true
		return nil
	})
	return state, applied, err
}

// FoodDelta is the xp change for logging a food of the given calories.
func FoodDelta(calories float64) float64 { return -calories }

// ActivityDelta is the xp change for logging an activity.
func ActivityDelta(calories float64) float64 { return calories }

// FoodEditDelta is the xp change when a food entry goes from old to new kcal.
func FoodEditDelta(oldCalories, newCalories float64) float64 {
	return -(newCalories - oldCalories)
}

// ActivityEditDelta is the xp change when an activity goes from old to new kcal.
func ActivityEditDelta(oldCalories, newCalories float64) float64 {
	return newCalories - oldCalories
}
