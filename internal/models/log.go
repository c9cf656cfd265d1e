package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DateLayout is the calendar-day key used for logs and weights.
const DateLayout = "2006-01-02"

// Food entry sources.
const (
	SourceProduct = "product"
	SourceManual  = "manual"
	SourceAI      = "ai"
	SourceBarcode = "barcode"
)

// DailyLog holds one user's counters for one calendar day. The goal fields
// are a snapshot taken when the day is first written and stay nil when the
// profile had no goals at that time.
type DailyLog struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primarykey" json:"id"`
	UserID    string    `gorm:"size:128;not null;uniqueIndex:idx_daily_log_user_date" json:"user_id"`
	Date      string    `gorm:"size:10;not null;uniqueIndex:idx_daily_log_user_date" json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GoalCalories        *float64 `json:"goal_calories,omitempty"`
	GoalProtein         *float64 `json:"goal_protein,omitempty"`
	GoalCarbs           *float64 `json:"goal_carbs,omitempty"`
	GoalFat             *float64 `json:"goal_fat,omitempty"`
	MaintenanceCalories *float64 `json:"maintenance_calories,omitempty"`
	DeficitTarget       *float64 `json:"deficit_target,omitempty"`

	ConsumedCalories float64 `gorm:"not null;default:0" json:"consumed_calories"`
	ActiveCalories   float64 `gorm:"not null;default:0" json:"active_calories"`

	// NeedsReconcile is raised when a follow-up write for this day failed
	// for good; the reconciliation job clears it.
	NeedsReconcile bool `gorm:"not null;default:false;index" json:"-"`
}

func (l *DailyLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// FoodLogItem stores the absolute nutrition of one eaten portion.
type FoodLogItem struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primarykey" json:"id"`
	UserID      string     `gorm:"size:128;not null;index:idx_food_user_date" json:"user_id"`
	Date        string     `gorm:"size:10;not null;index:idx_food_user_date" json:"date"`
	ProductID   *uuid.UUID `gorm:"type:varchar(36)" json:"product_id,omitempty"`
	ProductName string     `gorm:"size:255;not null" json:"product_name"`
	Grams       float64    `json:"grams"`
	Calories    float64    `json:"calories"`
	Protein     float64    `json:"protein"`
	Fat         float64    `json:"fat"`
	Carbs       float64    `json:"carbs"`
	Source      string     `gorm:"size:10;not null;default:'manual'" json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (f *FoodLogItem) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// ActivityLogItem is one exercise entry; Calories is energy burned.
type ActivityLogItem struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primarykey" json:"id"`
	UserID    string    `gorm:"size:128;not null;index:idx_activity_user_date" json:"user_id"`
	Date      string    `gorm:"size:10;not null;index:idx_activity_user_date" json:"date"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Calories  float64   `json:"calories"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *ActivityLogItem) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
