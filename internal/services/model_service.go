package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"inkpilot/internal/assets"
	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

var ErrModelNotFound = errors.New("model not found")

type ModelConfigService interface {
	Startup() error
	ListModelGroups() ([]models.LLMModelGroup, error)
	SetModelEnabled(modelKey string, enabled bool) (*models.LLMModel, error)
	SetProviderEnabled(provider string, enabled bool) ([]models.LLMModel, error)
	GetModel(modelKey string) (*models.LLMModel, error)
	// Resolve accepts a catalog key or an API name and returns the model.
	Resolve(keyOrName string) (*models.LLMModel, error)
	SetDefault(modelKey string) error
	// Default returns the stored default, falling back to fallback.
	Default(fallback string) (*models.LLMModel, error)
}

type modelConfigService struct {
	repo    repositories.ModelSettingRepository
	catalog []byte

	mu            sync.RWMutex
	providerOrder []string
	providerNames map[string]string
	models        map[string]*catalogModel
	settings      map[string]bool
}

type catalogModel struct {
	Key         string
	ProviderID  string
	Provider    string
	DisplayName string
	APIName     string
	MaxTokens   int

	ReasoningEffort string
	Thinking        *bool
}

// NewModelConfigService uses the embedded catalog.
func NewModelConfigService(repo repositories.ModelSettingRepository) ModelConfigService {
	return newModelConfigService(repo, assets.ModelsData)
}

func newModelConfigService(repo repositories.ModelSettingRepository, catalog []byte) *modelConfigService {
	return &modelConfigService{
		repo:          repo,
		catalog:       catalog,
		models:        make(map[string]*catalogModel),
		settings:      make(map[string]bool),
		providerNames: make(map[string]string),
	}
}

// Startup parses the catalog and seeds a setting row for every new model.
func (s *modelConfigService) Startup() error {
	parsed, err := assets.ParseCatalog(s.catalog)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.providerOrder = make([]string, 0, len(parsed.Providers))
	for _, provider := range parsed.Providers {
		s.providerNames[provider.ID] = provider.DisplayName
		s.providerOrder = append(s.providerOrder, provider.ID)
		for _, mdl := range provider.Models {
			key := models.ModelKey(provider.ID, mdl.APIName, mdl.ReasoningEffort, mdl.Thinking)
			if _, dup := s.models[key]; dup {
				return fmt.Errorf("model catalog: duplicate model %s", key)
			}
			s.models[key] = &catalogModel{
				Key:             key,
				ProviderID:      provider.ID,
				Provider:        provider.DisplayName,
				DisplayName:     mdl.DisplayName,
				APIName:         mdl.APIName,
				MaxTokens:       mdl.MaxTokens,
				ReasoningEffort: mdl.ReasoningEffort,
				Thinking:        mdl.Thinking,
			}
		}
	}

	existing, err := s.repo.List()
	if err != nil {
		return fmt.Errorf("load model settings: %w", err)
	}
	for _, setting := range existing {
		s.settings[setting.ModelKey] = setting.Enabled
	}
	for key, def := range s.models {
		if _, ok := s.settings[key]; ok {
			continue
		}
		if _, err := s.repo.Upsert(key, def.ProviderID, true); err != nil {
			return fmt.Errorf("seed model setting for %s: %w", key, err)
		}
		s.settings[key] = true
	}
	return nil
}

func (s *modelConfigService) ListModelGroups() ([]models.LLMModelGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]models.LLMModelGroup, 0, len(s.providerOrder))
	for _, providerID := range s.providerOrder {
		groups = append(groups, models.LLMModelGroup{
			ProviderID:   providerID,
			ProviderName: s.providerName(providerID),
			Models:       s.providerModels(providerID),
		})
	}
	return groups, nil
}

func (s *modelConfigService) providerModels(providerID string) []models.LLMModel {
	out := make([]models.LLMModel, 0)
	for _, mdl := range s.models {
		if mdl.ProviderID == providerID {
			out = append(out, s.toLLMModel(mdl))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out
}

func (s *modelConfigService) SetModelEnabled(modelKey string, enabled bool) (*models.LLMModel, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return nil, fmt.Errorf("model key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, ok := s.models[modelKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelKey)
	}
	if _, err := s.repo.Upsert(modelKey, catalog.ProviderID, enabled); err != nil {
		return nil, err
	}
	s.settings[modelKey] = enabled
	model := s.toLLMModel(catalog)
	return &model, nil
}

func (s *modelConfigService) SetProviderEnabled(provider string, enabled bool) ([]models.LLMModel, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, fmt.Errorf("provider is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetProviderEnabled(provider, enabled); err != nil {
		return nil, err
	}
	for _, mdl := range s.models {
		if mdl.ProviderID == provider {
			s.settings[mdl.Key] = enabled
		}
	}
	return s.providerModels(provider), nil
}

func (s *modelConfigService) GetModel(modelKey string) (*models.LLMModel, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return nil, fmt.Errorf("model key is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog, ok := s.models[modelKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelKey)
	}
	model := s.toLLMModel(catalog)
	return &model, nil
}

func (s *modelConfigService) Resolve(keyOrName string) (*models.LLMModel, error) {
	keyOrName = strings.TrimSpace(keyOrName)
	if m, err := s.GetModel(keyOrName); err == nil {
		return m, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	// Several catalog entries may share an API name; pick the plain variant.
	var best *catalogModel
	for _, mdl := range s.models {
		if mdl.APIName != keyOrName {
			continue
		}
		if best == nil || len(mdl.Key) < len(best.Key) {
			best = mdl
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, keyOrName)
	}
	model := s.toLLMModel(best)
	return &model, nil
}

func (s *modelConfigService) SetDefault(modelKey string) error {
	m, err := s.GetModel(modelKey)
	if err != nil {
		return err
	}
	if err := s.repo.SetDefault(m.Key, m.ProviderID); err != nil {
		return fmt.Errorf("store default model: %w", err)
	}
	s.mu.Lock()
	s.settings[m.Key] = true
	s.mu.Unlock()
	return nil
}

func (s *modelConfigService) Default(fallback string) (*models.LLMModel, error) {
	stored, err := s.repo.GetDefault()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if m, err := s.GetModel(stored.ModelKey); err == nil {
			return m, nil
		}
	}
	return s.Resolve(fallback)
}

func (s *modelConfigService) providerName(providerID string) string {
	if name, ok := s.providerNames[providerID]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return providerID
}

func (s *modelConfigService) toLLMModel(mdl *catalogModel) models.LLMModel {
	return models.LLMModel{
		Key:             mdl.Key,
		DisplayName:     mdl.DisplayName,
		APIName:         mdl.APIName,
		ProviderID:      mdl.ProviderID,
		ProviderName:    mdl.Provider,
		ReasoningEffort: mdl.ReasoningEffort,
		Thinking:        mdl.Thinking,
		MaxTokens:       mdl.MaxTokens,
		Enabled:         s.settings[mdl.Key],
	}
}
