package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpilot/internal/models"
)

type WorkspaceFileRepository interface {
	List(workspaceID string) ([]models.WorkspaceFile, error)
	Get(workspaceID, path string) (*models.WorkspaceFile, error)
	// Save upserts every row in one transaction.
	Save(rows ...models.WorkspaceFile) error
	Delete(workspaceID, path string) error
	DeleteWorkspace(workspaceID string) error
	Workspaces() ([]string, error)
}

type workspaceFileRepository struct {
	db *gorm.DB
}

func NewWorkspaceFileRepository(db *gorm.DB) WorkspaceFileRepository {
	return &workspaceFileRepository{db: db}
}

func (r *workspaceFileRepository) List(workspaceID string) ([]models.WorkspaceFile, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	var rows []models.WorkspaceFile
	if err := r.db.Where("workspace_id = ?", workspaceID).Order("path").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns nil without error when the path does not exist.
func (r *workspaceFileRepository) Get(workspaceID, path string) (*models.WorkspaceFile, error) {
	var row models.WorkspaceFile
	err := r.db.Where("workspace_id = ? AND path = ?", workspaceID, path).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *workspaceFileRepository) Save(rows ...models.WorkspaceFile) error {
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.WorkspaceID == "" || row.Path == "" {
			return fmt.Errorf("workspace id and path are required")
		}
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "path"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "type", "content", "updated_at"}),
			}).Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("save %s: %w", rows[i].Path, err)
			}
		}
		return nil
	})
}

func (r *workspaceFileRepository) Delete(workspaceID, path string) error {
	return r.db.Where("workspace_id = ? AND path = ?", workspaceID, path).Delete(&models.WorkspaceFile{}).Error
}

func (r *workspaceFileRepository) DeleteWorkspace(workspaceID string) error {
	return r.db.Where("workspace_id = ?", workspaceID).Delete(&models.WorkspaceFile{}).Error
}

func (r *workspaceFileRepository) Workspaces() ([]string, error) {
	var ids []string
	if err := r.db.Model(&models.WorkspaceFile{}).Distinct().Order("workspace_id").Pluck("workspace_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
