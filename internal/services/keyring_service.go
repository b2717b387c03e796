package services

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "inkpilot"

var ErrAPIKeyMissing = errors.New("API key is not configured")

// providerEnv lists the environment variables checked before the keyring.
var providerEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

type APIKeyInfo struct {
	Provider    string `json:"provider"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type KeyringService struct {
	ring   keyring.Keyring
	getenv func(string) string
}

// NewKeyringService opens the OS keyring. When no backend is usable it falls
// back to an in-memory ring so environment keys keep working.
func NewKeyringService(logger *slog.Logger) *KeyringService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := keyring.Config{
		ServiceName:      serviceName,
		FilePasswordFunc: keyring.FixedStringPrompt(os.Getenv("INKPILOT_KEYRING_PASSWORD")),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.FileDir = filepath.Join(dir, serviceName, "keys")
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		logger.Warn("OS keyring unavailable, keys are kept in memory", "error", err)
		ring = keyring.NewArrayKeyring(nil)
	}
	return NewKeyringServiceWith(ring)
}

func NewKeyringServiceWith(ring keyring.Keyring) *KeyringService {
	return &KeyringService{ring: ring, getenv: os.Getenv}
}

func (s *KeyringService) StoreApiKey(provider string, apiKey []byte) error {
	if len(apiKey) == 0 {
		return errors.New("API key is empty")
	}
	if provider == "" {
		return errors.New("provider is required")
	}
	return s.ring.Set(keyring.Item{
		Key:         provider,
		Data:        apiKey,
		Label:       provider + " API key",
		Description: "API key for " + provider + " used by inkpilot",
	})
}

// GetApiKey prefers the provider's environment variable over the keyring.
func (s *KeyringService) GetApiKey(provider string) (string, error) {
	if provider == "" {
		return "", errors.New("provider is required")
	}
	for _, name := range providerEnv[strings.ToLower(provider)] {
		if v := strings.TrimSpace(s.getenv(name)); v != "" {
			return v, nil
		}
	}
	item, err := s.ring.Get(provider)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%s: %w", provider, ErrAPIKeyMissing)
	}
	if err != nil {
		return "", fmt.Errorf("read %s key: %w", provider, err)
	}
	return string(item.Data), nil
}

func (s *KeyringService) DeleteApiKey(provider string) error {
	if provider == "" {
		return errors.New("provider is required")
	}
	err := s.ring.Remove(provider)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// ListApiKeys reports which providers have a key and where it comes from.
func (s *KeyringService) ListApiKeys() ([]APIKeyInfo, error) {
	stored, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keyring: %w", err)
	}
	seen := map[string]bool{}
	var out []APIKeyInfo
	add := func(provider, source string) {
		if seen[provider] {
			return
		}
		seen[provider] = true
		out = append(out, APIKeyInfo{
			Provider:    provider,
			Label:       provider + " API key",
			Description: "API key for " + provider + " used by inkpilot",
			Source:      source,
		})
	}
	for provider, names := range providerEnv {
		for _, name := range names {
			if s.getenv(name) != "" {
				add(provider, "env")
			}
		}
	}
	for _, k := range stored {
		add(k, "keyring")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}
