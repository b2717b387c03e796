package models

import "time"

// AgentSession persists the transcript of one editor/agent session.
type AgentSession struct {
	ID           uint   `gorm:"primaryKey"`
	SessionKey   string `gorm:"size:64;not null;uniqueIndex"`
	WorkspaceID  string `gorm:"size:64;index"`
	DocumentPath string `gorm:"size:1024"`
	ModelKey     string `gorm:"size:255"`
	Provider     string `gorm:"size:50"`
	MessagesJSON string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
