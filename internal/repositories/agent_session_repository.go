package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpilot/internal/models"
)

type AgentSessionRepository interface {
	List() ([]models.AgentSession, error)
	GetByKey(sessionKey string) (*models.AgentSession, error)
	Upsert(sess models.AgentSession) (*models.AgentSession, error)
	Delete(sessionKey string) error
}

type agentSessionRepository struct {
	db *gorm.DB
}

func NewAgentSessionRepository(db *gorm.DB) AgentSessionRepository {
	return &agentSessionRepository{db: db}
}

func (r *agentSessionRepository) List() ([]models.AgentSession, error) {
	var sessions []models.AgentSession
	if err := r.db.Order("updated_at desc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *agentSessionRepository) GetByKey(sessionKey string) (*models.AgentSession, error) {
	var sess models.AgentSession
	res := r.db.Where("session_key = ?", sessionKey).Take(&sess)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &sess, nil
}

func (r *agentSessionRepository) Upsert(sess models.AgentSession) (*models.AgentSession, error) {
	if sess.SessionKey == "" {
		return nil, fmt.Errorf("session key is required")
	}
	sess.ID = 0
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"workspace_id", "document_path", "model_key", "provider", "messages_json", "updated_at",
		}),
	}).Create(&sess).Error; err != nil {
		return nil, err
	}
	return r.GetByKey(sess.SessionKey)
}

func (r *agentSessionRepository) Delete(sessionKey string) error {
	return r.db.Where("session_key = ?", sessionKey).Delete(&models.AgentSession{}).Error
}
