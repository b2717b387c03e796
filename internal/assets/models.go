package assets

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// ModelsData is the built-in model catalog, grouped by provider.
//
//go:embed models.json
var ModelsData []byte

type Catalog struct {
	Providers []CatalogProvider `json:"providers"`
}

type CatalogProvider struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Models      []CatalogModel `json:"models"`
}

// CatalogModel is one selectable variant. The same APIName may appear more
// than once with different reasoning or thinking settings.
type CatalogModel struct {
	DisplayName     string `json:"displayName"`
	APIName         string `json:"apiName"`
	MaxTokens       int    `json:"maxTokens,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
	Thinking        *bool  `json:"thinking,omitempty"`
}

// ParseCatalog decodes a catalog and trims every identifier. Providers without
// an id and models without an API name are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		p.DisplayName = strings.TrimSpace(p.DisplayName)
		if p.ID == "" {
			return nil, fmt.Errorf("model catalog: provider %d has no id", i)
		}
		for j := range p.Models {
			m := &p.Models[j]
			m.DisplayName = strings.TrimSpace(m.DisplayName)
			m.APIName = strings.TrimSpace(m.APIName)
			m.ReasoningEffort = strings.TrimSpace(m.ReasoningEffort)
			if m.APIName == "" {
				return nil, fmt.Errorf("model catalog: %s model %d has no apiName", p.ID, j)
			}
			if m.DisplayName == "" {
				m.DisplayName = m.APIName
			}
		}
	}
	return &c, nil
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(ModelsData)
}
