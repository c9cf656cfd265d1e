package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WeightEntry struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primarykey" json:"id"`
	UserID    string    `gorm:"size:128;not null;uniqueIndex:idx_weight_user_date" json:"user_id"`
	Date      string    `gorm:"size:10;not null;uniqueIndex:idx_weight_user_date" json:"date"`
	Weight    float64   `gorm:"not null" json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *WeightEntry) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
