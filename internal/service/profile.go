package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/byefat/backend/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,15}$`)

// Identity is what an auth provider knows about the caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// ProfileUpdate holds the free-form profile fields a user may edit.
type ProfileUpdate struct {
	Name *string `json:"name"`
}

// IProfileService defines the interface for user profile operations
type IProfileService interface {
	EnsureProfile(ctx context.Context, id Identity) (*models.UserProfile, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, req ProfileUpdate) (*models.UserProfile, error)
	UpdateBiometrics(ctx context.Context, userID, date string, b Biometrics) (*models.UserProfile, Targets, error)
	ClaimUsername(ctx context.Context, userID, username string) (*models.UserProfile, error)
	GetLevel(ctx context.Context, userID string) (LevelProgress, error)
}

type ProfileService struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
}

var _ IProfileService = (*ProfileService)(nil)

func NewProfileService(db *gorm.DB, notifier Notifier, log *zap.Logger) *ProfileService {
	return &ProfileService{db: db, notifier: notifier, log: log.Named("profile")}
}

// EnsureProfile creates the profile on first sight of an identity and never
// overwrites an existing one.
func (s *ProfileService) EnsureProfile(ctx context.Context, id Identity) (*models.UserProfile, error) {
	if id.UserID == "" {
		return nil, ErrInvalidInput
	}
	profile := models.UserProfile{
		UserID: id.UserID,
		Email:  id.Email,
		Name:   id.Name,
		Level:  1,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile).Error; err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, id.UserID)
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, req ProfileUpdate) (*models.UserProfile, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.UserProfile{}).Where("user_id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrProfileNotFound
		}
	}
	return s.GetProfile(ctx, userID)
}

// UpdateBiometrics stores the biometrics and derived targets on the profile,
// records the weight for date and merges the new goals into that day's log.
// Logs of other days keep their snapshot.
func (s *ProfileService) UpdateBiometrics(ctx context.Context, userID, date string, b Biometrics) (*models.UserProfile, Targets, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, Targets{}, err
	}
	targets := CalculateTargets(b)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserProfile{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
			"gender":               strings.ToLower(b.Gender),
			"age":                  b.Age,
			"weight":               b.Weight,
			"height":               b.Height,
			"goal":                 strings.ToLower(b.Goal),
			"daily_calories":       targets.Calories,
			"daily_protein":        targets.Protein,
			"daily_carbs":          targets.Carbs,
			"daily_fat":            targets.Fat,
			"maintenance_calories": targets.MaintenanceCalories,
			"deficit_target":       targets.DeficitTarget,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProfileNotFound
		}

		if err := upsertWeight(tx, userID, date, b.Weight); err != nil {
			return err
		}

		day := models.DailyLog{
			UserID:              userID,
			Date:                date,
			GoalCalories:        &targets.Calories,
			GoalProtein:         &targets.Protein,
			GoalCarbs:           &targets.Carbs,
			GoalFat:             &targets.Fat,
			MaintenanceCalories: &targets.MaintenanceCalories,
			DeficitTarget:       &targets.DeficitTarget,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"goal_calories", "goal_protein", "goal_carbs", "goal_fat",
				"maintenance_calories", "deficit_target", "updated_at",
			}),
		}).Create(&day).Error
	})
	if err != nil {
		return nil, Targets{}, err
	}

	publish(ctx, s.notifier, s.log, Change{UserID: userID, Date: date, Kind: ChangeGoals})

	profile, err := s.GetProfile(ctx, userID)
	return profile, targets, err
}

// ClaimUsername sets the public handle. Handles are stored lower-case and
// compared case-insensitively.
func (s *ProfileService) ClaimUsername(ctx context.Context, userID, username string) (*models.UserProfile, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	username = strings.ToLower(username)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.UserProfile{}).
			Where("username = ? AND user_id <> ?", username, userID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrUsernameTaken
		}

		res := tx.Model(&models.UserProfile{}).Where("user_id = ?", userID).Update("username", username)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return ErrUsernameTaken
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProfileNotFound
		}

		return tx.Model(&models.Product{}).
			Where("creator_id = ?", userID).
			Update("creator_username", username).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

// GetLevel reports the stored xp on the canonical level curve.
func (s *ProfileService) GetLevel(ctx context.Context, userID string) (LevelProgress, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return LevelProgress{}, err
	}
	return DefaultLevelEngine.Progress(profile.XP), nil
}

// NormalizeDate validates a YYYY-MM-DD key. An empty value means today in
// server time.
func NormalizeDate(date string) (string, error) {
	if date == "" {
		return time.Now().Format(models.DateLayout), nil
	}
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.Format(models.DateLayout), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
