package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProductSourceManual  = "manual"
	ProductSourceScanned = "scanned"
)

// Product is a shared catalog entry. Nutrition values are per 100 g.
type Product struct {
	ID              uuid.UUID                   `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Name            string                      `gorm:"size:255;not null;index" json:"name"`
	Brand           string                      `gorm:"size:255" json:"brand"`
	Barcode         *string                     `gorm:"size:32;uniqueIndex" json:"barcode,omitempty"`
	Calories        float64                     `json:"calories"`
	Protein         float64                     `json:"protein"`
	Fat             float64                     `json:"fat"`
	Carbs           float64                     `json:"carbs"`
	Source          string                      `gorm:"size:10;not null;default:'manual'" json:"source"`
	CreatorID       string                      `gorm:"size:128;not null;index" json:"creator_id"`
	CreatorUsername string                      `gorm:"size:15;index" json:"creator_username"`
	ImageURL        string                      `gorm:"size:512" json:"image_url,omitempty"`
	Likes           int                         `gorm:"not null;default:0" json:"likes"`
	LikedBy         datatypes.JSONSlice[string] `json:"liked_by"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.LikedBy == nil {
		p.LikedBy = datatypes.JSONSlice[string]{}
	}
	return nil
}

// LikedByUser reports whether userID is in LikedBy.
func (p *Product) LikedByUser(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
