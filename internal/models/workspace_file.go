package models

import "time"

// WorkspaceFile is a database-backed file or folder belonging to a workspace.
type WorkspaceFile struct {
	ID          uint   `gorm:"primaryKey"`
	WorkspaceID string `gorm:"size:64;not null;index:idx_workspace_path,unique"`
	Path        string `gorm:"size:1024;not null;index:idx_workspace_path,unique"`
	Name        string `gorm:"size:255;not null"`
	Type        string `gorm:"size:16;not null;default:file"`
	Content     string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
