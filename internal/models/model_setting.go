package models

import "time"

// ModelSetting stores the user's toggle for one catalog model. IsDefault marks
// the model new sessions start with.
type ModelSetting struct {
	ID        uint   `gorm:"primaryKey"`
	Provider  string `gorm:"size:50;not null;index"`
	ModelKey  string `gorm:"size:255;not null;uniqueIndex"`
	Enabled   bool   `gorm:"not null;default:true"`
	IsDefault bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
