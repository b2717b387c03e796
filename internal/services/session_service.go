package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

// SessionRecord is the persisted state of an agent session.
type SessionRecord struct {
	Key          string
	WorkspaceID  string
	DocumentPath string
	ModelKey     string
	Provider     string
	Messages     []models.ChatMessage
}

type SessionService interface {
	List() ([]models.AgentSession, error)
	// Load returns nil without error when the session was never saved.
	Load(sessionKey string) (*SessionRecord, error)
	Save(rec SessionRecord) error
	Delete(sessionKey string) error
}

type sessionService struct {
	repo repositories.AgentSessionRepository
}

func NewSessionService(repo repositories.AgentSessionRepository) SessionService {
	return &sessionService{repo: repo}
}

func (s *sessionService) List() ([]models.AgentSession, error) {
	return s.repo.List()
}

func (s *sessionService) Load(sessionKey string) (*SessionRecord, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is required")
	}
	row, err := s.repo.GetByKey(sessionKey)
	if err != nil || row == nil {
		return nil, err
	}
	rec := &SessionRecord{
		Key:          row.SessionKey,
		WorkspaceID:  row.WorkspaceID,
		DocumentPath: row.DocumentPath,
		ModelKey:     row.ModelKey,
		Provider:     row.Provider,
	}
	if row.MessagesJSON != "" {
		if err := json.Unmarshal([]byte(row.MessagesJSON), &rec.Messages); err != nil {
			return nil, fmt.Errorf("decode transcript of %s: %w", sessionKey, err)
		}
	}
	return rec, nil
}

func (s *sessionService) Save(rec SessionRecord) error {
	if strings.TrimSpace(rec.Key) == "" {
		return fmt.Errorf("session key is required")
	}
	msgs := rec.Messages
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.repo.Upsert(models.AgentSession{
		SessionKey:   rec.Key,
		WorkspaceID:  rec.WorkspaceID,
		DocumentPath: rec.DocumentPath,
		ModelKey:     rec.ModelKey,
		Provider:     rec.Provider,
		MessagesJSON: string(b),
	})
	return err
}

func (s *sessionService) Delete(sessionKey string) error {
	if strings.TrimSpace(sessionKey) == "" {
		return fmt.Errorf("session key is required")
	}
	return s.repo.Delete(sessionKey)
}
