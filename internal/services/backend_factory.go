package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inkpilot/internal/llm/client"
	"inkpilot/internal/models"
)

// BackendFactory builds the chat backend for a catalog model.
type BackendFactory func(ctx context.Context, model *models.LLMModel) (client.Backend, error)

// NewBackendFactory returns a factory that posts to chatEndpoint when it is
// set and otherwise drives the provider's eino model with a key from the
// keyring service.
func NewBackendFactory(keys *KeyringService, chatEndpoint string, logger *slog.Logger) BackendFactory {
	if chatEndpoint != "" {
		backend := client.NewHTTPBackend(chatEndpoint, 2*time.Minute, nil)
		return func(context.Context, *models.LLMModel) (client.Backend, error) {
			return backend, nil
		}
	}
	return func(ctx context.Context, m *models.LLMModel) (client.Backend, error) {
		if m == nil {
			return nil, fmt.Errorf("no model selected")
		}
		if !m.Enabled {
			return nil, fmt.Errorf("model %s is disabled", m.Key)
		}
		key, err := keys.GetApiKey(m.ProviderID)
		if err != nil {
			return nil, err
		}
		chat, err := client.NewChatModel(ctx, client.ProviderConfig{
			Provider:  m.ProviderID,
			Model:     m.APIName,
			APIKey:    key,
			MaxTokens: m.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		backend, err := client.NewEinoBackend(chat, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}
