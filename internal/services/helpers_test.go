package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"inkpilot/internal/database"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

const testCatalog = `{
  "providers": [
    {
      "id": "openai",
      "displayName": "OpenAI",
      "models": [
        {"displayName": "GPT-4.1", "apiName": "gpt-4.1", "maxTokens": 4096},
        {"displayName": "o4 mini", "apiName": "o4-mini", "reasoningEffort": "medium"}
      ]
    },
    {
      "id": "anthropic",
      "displayName": "Anthropic",
      "models": [
        {"displayName": "Claude Sonnet 4", "apiName": "claude-sonnet-4-20250514"},
        {"displayName": "Claude Sonnet 4 (thinking)", "apiName": "claude-sonnet-4-20250514", "thinking": true}
      ]
    }
  ]
}`
