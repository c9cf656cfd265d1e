package models

import (
	"time"
)

// Goals understood by the target calculator.
const (
	GoalLose     = "lose"
	GoalMaintain = "maintain"
	GoalGain     = "gain"
)

// UserProfile is keyed by the opaque identity issued by the auth provider.
// Optional numbers are pointers so "never set" stays distinguishable from 0.
type UserProfile struct {
	UserID    string    `gorm:"primaryKey;size:128" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string  `gorm:"size:100" json:"name"`
	Email    string  `gorm:"size:255" json:"email"`
	Username *string `gorm:"size:15;uniqueIndex" json:"username,omitempty"`

	Gender string   `gorm:"size:10" json:"gender,omitempty"`
	Age    *int     `json:"age,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Goal   string   `gorm:"size:10" json:"goal,omitempty"`

	DailyCalories       *float64 `json:"daily_calories,omitempty"`
	DailyProtein        *float64 `json:"daily_protein,omitempty"`
	DailyCarbs          *float64 `json:"daily_carbs,omitempty"`
	DailyFat            *float64 `json:"daily_fat,omitempty"`
	MaintenanceCalories *float64 `json:"maintenance_calories,omitempty"`
	DeficitTarget       *float64 `json:"deficit_target,omitempty"`

	XP        float64 `gorm:"not null;default:0" json:"xp"`
	Level     int     `gorm:"not null;default:1" json:"level"`
	XPVersion int64   `gorm:"not null;default:0" json:"-"`
}
