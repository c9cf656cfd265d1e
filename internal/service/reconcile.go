package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

// counterTolerance absorbs float noise from summing fractional calories.
const counterTolerance = 0.001

// Drift compares a day's stored counters with the sums of its items.
type Drift struct {
	UserID           string  `json:"user_id"`
	Date             string  `json:"date"`
	StoredConsumed   float64 `json:"stored_consumed"`
	ComputedConsumed float64 `json:"computed_consumed"`
	StoredActive     float64 `json:"stored_active"`
	ComputedActive   float64 `json:"computed_active"`
	Flagged          bool    `json:"flagged"`
	Fixed            bool    `json:"fixed"`
}

// HasDrift reports whether the counters disagree with the items.
func (d Drift) HasDrift() bool {
	return math.Abs(d.StoredConsumed-d.ComputedConsumed) > counterTolerance ||
		math.Abs(d.StoredActive-d.ComputedActive) > counterTolerance
}

// IReconciler detects and repairs counter drift.
type IReconciler interface {
	ReconcileDay(ctx context.Context, userID, date string, fix bool) (*Drift, error)
	ReconcileRecent(ctx context.Context, days int, fix bool) ([]Drift, error)
}

type Reconciler struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

var _ IReconciler = (*Reconciler)(nil)

func NewReconciler(db *gorm.DB, notifier Notifier, log *zap.Logger) *Reconciler {
	return &Reconciler{db: db, notifier: notifier, log: log.Named("reconcile"), now: time.Now}
}

// ReconcileDay recomputes the counters of one day. With fix set, drifted
// counters are overwritten and the reconcile flag is cleared. A day without
// a log row has nothing to compare and yields nil.
func (r *Reconciler) ReconcileDay(ctx context.Context, userID, date string, fix bool) (*Drift, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}

	var drift *Drift
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var day models.DailyLog
		if err := tx.Where("user_id = ? AND date = ?", userID, date).Take(&day).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		d := Drift{
			UserID:         userID,
			Date:           date,
			StoredConsumed: day.ConsumedCalories,
			StoredActive:   day.ActiveCalories,
			Flagged:        day.NeedsReconcile,
		}
		if err := sumCalories(tx, &models.FoodLogItem{}, userID, date, &d.ComputedConsumed); err != nil {
			return err
		}
		if err := sumCalories(tx, &models.ActivityLogItem{}, userID, date, &d.ComputedActive); err != nil {
			return err
		}
		drift = &d

		if !fix || (!d.HasDrift() && !d.Flagged) {
			return nil
		}
		if err := tx.Model(&models.DailyLog{}).Where("id = ?", day.ID).Updates(map[string]interface{}{
			"consumed_calories": d.ComputedConsumed,
			"active_calories":   d.ComputedActive,
			"needs_reconcile":   false,
		}).Error; err != nil {
			return err
		}
		drift.Fixed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if drift != nil && drift.Fixed {
		if drift.HasDrift() {
			r.log.Warn("corrected counter drift",
				zap.String("user_id", userID),
				zap.String("date", date),
				zap.Float64("stored_consumed", drift.StoredConsumed),
				zap.Float64("computed_consumed", drift.ComputedConsumed),
				zap.Float64("stored_active", drift.StoredActive),
				zap.Float64("computed_active", drift.ComputedActive),
			)
		}
		publish(ctx, r.notifier, r.log, Change{UserID: userID, Date: date, Kind: ChangeReconciled})
	}
	return drift, nil
}

// ReconcileRecent checks every day written in the last days calendar days
// plus every older day flagged for reconciliation. Only days with drift or
// a flag are returned.
func (r *Reconciler) ReconcileRecent(ctx context.Context, days int, fix bool) ([]Drift, error) {
	if days < 1 {
		days = 1
	}
	cutoff := r.now().AddDate(0, 0, -(days - 1)).Format(models.DateLayout)

	var keys []struct {
		UserID string
		Date   string
	}
	if err := r.db.WithContext(ctx).Model(&models.DailyLog{}).
		Select("user_id", "date").
		Where("date >= ? OR needs_reconcile = ?", cutoff, true).
		Order("date ASC").
		Scan(&keys).Error; err != nil {
		return nil, err
	}

	var report []Drift
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d, err := r.ReconcileDay(ctx, k.UserID, k.Date, fix)
		if err != nil {
			r.log.Error("failed to reconcile day",
				zap.String("user_id", k.UserID),
				zap.String("date", k.Date),
				zap.Error(err),
			)
			continue
		}
		if d != nil && (d.HasDrift() || d.Flagged) {
			report = append(report, *d)
		}
	}
	return report, nil
}

func sumCalories(tx *gorm.DB, model interface{}, userID, date string, out *float64) error {
	var sum struct{ Total float64 }
	if err := tx.Model(model).
		Select("COALESCE(SUM(calories), 0) AS total").
		Where("user_id = ? AND date = ?", userID, date).
		Scan(&sum).Error; err != nil {
		return err
	}
	*out = sum.Total
	return nil
}
