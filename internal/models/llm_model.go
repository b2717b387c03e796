package models

import (
	"fmt"
	"sort"
	"strings"
)

// LLMModel is one catalog entry as offered to the editor. Key is stable across
// restarts and is what sessions and settings refer to.
type LLMModel struct {
	Key             string `json:"key"`
	DisplayName     string `json:"displayName"`
	APIName         string `json:"apiName"`
	ProviderID      string `json:"providerId"`
	ProviderName    string `json:"providerName"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
	Thinking        *bool  `json:"thinking,omitempty"`
	MaxTokens       int    `json:"maxTokens,omitempty"`
	Enabled         bool   `json:"enabled"`
}

// Label is the display name with the provider, e.g. "Claude Sonnet 4 (Anthropic)".
func (m LLMModel) Label() string {
	name := m.DisplayName
	if name == "" {
		name = m.APIName
	}
	provider := m.ProviderName
	if provider == "" {
		provider = m.ProviderID
	}
	if provider == "" {
		return name
	}
	return name + " (" + provider + ")"
}

type LLMModelGroup struct {
	ProviderID   string     `json:"providerId"`
	ProviderName string     `json:"providerName"`
	Models       []LLMModel `json:"models"`
}

// ModelKey is provider|apiName, plus the sorted variant attributes when any
// are set: "anthropic|claude-sonnet-4-20250514|thinking=true".
func ModelKey(providerID, apiName, reasoningEffort string, thinking *bool) string {
	parts := []string{strings.TrimSpace(providerID), strings.TrimSpace(apiName)}

	var attrs []string
	if re := strings.TrimSpace(reasoningEffort); re != "" {
		attrs = append(attrs, "reasoning="+re)
	}
	if thinking != nil {
		attrs = append(attrs, fmt.Sprintf("thinking=%t", *thinking))
	}
	if len(attrs) > 0 {
		sort.Strings(attrs)
		parts = append(parts, strings.Join(attrs, ","))
	}
	return strings.Join(parts, "|")
}

// SplitModelKey returns the provider and API name of a key built by ModelKey.
func SplitModelKey(key string) (providerID, apiName string, ok bool) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
