package testhelpers

import (
	"testing"

	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

// CreateProfile inserts a profile for userID with optional goals applied by
// the mutators.
func CreateProfile(t *testing.T, db *gorm.DB, userID string, mutate ...func(*models.UserProfile)) *models.UserProfile {
	t.Helper()

	p := &models.UserProfile{UserID: userID, Name: "Test " + userID, Email: userID + "@example.com", Level: 1}
	for _, m := range mutate {
		m(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create profile %s: %v", userID, err)
	}
	return p
}

// WithGoals sets the daily calorie goal and maintenance figure.
func WithGoals(calories, maintenance float64) func(*models.UserProfile) {
	return func(p *models.UserProfile) {
		p.DailyCalories = &calories
		p.MaintenanceCalories = &maintenance
		deficit := maintenance - calories
		p.DeficitTarget = &deficit
	}
}

// WithUsername sets the public username.
func WithUsername(name string) func(*models.UserProfile) {
	return func(p *models.UserProfile) {
		p.Username = &name
	}
}

// WithXP sets the starting XP total.
func WithXP(xp float64) func(*models.UserProfile) {
	return func(p *models.UserProfile) {
		p.XP = xp
	}
}

// ReloadProfile reads the stored profile for userID.
func ReloadProfile(t *testing.T, db *gorm.DB, userID string) models.UserProfile {
	t.Helper()

	var p models.UserProfile
	if err := db.Take(&p, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("failed to reload profile %s: %v", userID, err)
	}
	return p
}

// ReloadDay reads the stored daily log, failing the test when it is absent.
func ReloadDay(t *testing.T, db *gorm.DB, userID, date string) models.DailyLog {
	t.Helper()

	var day models.DailyLog
	if err := db.Take(&day, "user_id = ? AND date = ?", userID, date).Error; err != nil {
		t.Fatalf("failed to reload day %s/%s: %v", userID, date, err)
	}
	return day
}
