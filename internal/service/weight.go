package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

// WeightStats summarizes a user's weight history.
type WeightStats struct {
	Count       int      `json:"count"`
	Initial     *float64 `json:"initial"`
	Current     *float64 `json:"current"`
	Change      *float64 `json:"change"`
	BMI         *float64 `json:"bmi"`
	BMICategory string   `json:"bmi_category,omitempty"`
}

// IWeightService defines the weight tracking operations
type IWeightService interface {
	Upsert(ctx context.Context, userID, date string, kg float64) (*models.WeightEntry, error)
	Delete(ctx context.Context, userID, date string) error
	List(ctx context.Context, userID string) ([]models.WeightEntry, error)
	Stats(ctx context.Context, userID string) (*WeightStats, error)
}

type WeightService struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
}

var _ IWeightService = (*WeightService)(nil)

func NewWeightService(db *gorm.DB, notifier Notifier, log *zap.Logger) *WeightService {
	return &WeightService{db: db, notifier: notifier, log: log.Named("weight")}
}

// Upsert records the weight for date, replacing any earlier value of that
// day. The profile weight follows the most recent entry.
func (s *WeightService) Upsert(ctx context.Context, userID, date string, kg float64) (*models.WeightEntry, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	if kg <= 0 || kg > 700 {
		return nil, fmt.Errorf("%w: weight must be between 0 and 700 kg", ErrInvalidInput)
	}

	var entry models.WeightEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertWeight(tx, userID, date, kg); err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND date = ?", userID, date).Take(&entry).Error; err != nil {
			return err
		}
		return syncProfileWeight(tx, userID)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.notifier, s.log, Change{UserID: userID, Date: date, Kind: ChangeWeight})
	return &entry, nil
}

func (s *WeightService) Delete(ctx context.Context, userID, date string) error {
	date, err := NormalizeDate(date)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND date = ?", userID, date).Delete(&models.WeightEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrItemNotFound
		}
		return syncProfileWeight(tx, userID)
	})
	if err != nil {
		return err
	}
	publish(ctx, s.notifier, s.log, Change{UserID: userID, Date: date, Kind: ChangeWeight})
	return nil
}

// List returns entries newest first.
func (s *WeightService) List(ctx context.Context, userID string) ([]models.WeightEntry, error) {
	entries := []models.WeightEntry{}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC").Find(&entries).Error
	return entries, err
}

func (s *WeightService) Stats(ctx context.Context, userID string) (*WeightStats, error) {
	entries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var height *float64
	var profile models.UserProfile
	err = s.db.WithContext(ctx).Select("user_id", "height").Where("user_id = ?", userID).Take(&profile).Error
	switch {
	case err == nil:
		height = profile.Height
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return BuildWeightStats(entries, height), nil
}

// BuildWeightStats expects entries newest first.
func BuildWeightStats(entries []models.WeightEntry, heightCm *float64) *WeightStats {
	stats := &WeightStats{Count: len(entries)}
	if len(entries) == 0 {
		return stats
	}
	current := entries[0].Weight
	initial := entries[len(entries)-1].Weight
	change := current - initial
	stats.Current, stats.Initial, stats.Change = &current, &initial, &change

	if heightCm != nil && *heightCm > 0 {
		m := *heightCm / 100
		bmi := current / (m * m)
		stats.BMI = &bmi
		stats.BMICategory = BMICategory(bmi)
	}
	return stats
}

func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

func syncProfileWeight(tx *gorm.DB, userID string) error {
	var latest models.WeightEntry
	err := tx.Where("user_id = ?", userID).Order("date DESC").Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Model(&models.UserProfile{}).Where("user_id = ?", userID).Update("weight", latest.Weight).Error
}
