package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/repositories"
)

func newTestModelService(t *testing.T) (*modelConfigService, repositories.ModelSettingRepository) {
	t.Helper()
	repo := repositories.NewModelSettingRepository(openDB(t))
	svc := newModelConfigService(repo, []byte(testCatalog))
	require.NoError(t, svc.Startup())
	return svc, repo
}

func TestModelService_StartupSeedsSettings(t *testing.T) {
	svc, repo := newTestModelService(t)

	rows, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	groups, err := svc.ListModelGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "openai", groups[0].ProviderID)
	assert.Equal(t, "Anthropic", groups[1].ProviderName)
	for _, g := range groups {
		for _, m := range g.Models {
			assert.True(t, m.Enabled, m.Key)
		}
	}
}

func TestModelService_Keys(t *testing.T) {
	svc, _ := newTestModelService(t)

	m, err := svc.GetModel("openai|o4-mini|reasoning=medium")
	require.NoError(t, err)
	assert.Equal(t, "o4-mini", m.APIName)
	assert.Equal(t, "medium", m.ReasoningEffort)

	m, err = svc.GetModel("anthropic|claude-sonnet-4-20250514|thinking=true")
	require.NoError(t, err)
	require.NotNil(t, m.Thinking)
	assert.True(t, *m.Thinking)

	_, err = svc.GetModel("openai|nope")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestModelService_ResolvePrefersPlainVariant(t *testing.T) {
	svc, _ := newTestModelService(t)

	m, err := svc.Resolve("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic|claude-sonnet-4-20250514", m.Key)

	m, err = svc.Resolve("openai|gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, 4096, m.MaxTokens)

	_, err = svc.Resolve("llama")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestModelService_EnableToggles(t *testing.T) {
	svc, repo := newTestModelService(t)

	m, err := svc.SetModelEnabled("openai|gpt-4.1", false)
	require.NoError(t, err)
	assert.False(t, m.Enabled)

	list, err := svc.SetProviderEnabled("anthropic", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, m := range list {
		assert.False(t, m.Enabled)
	}

	row, err := repo.GetByKey("anthropic|claude-sonnet-4-20250514")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.Enabled)

	// settings survive a restart
	again := newModelConfigService(repo, []byte(testCatalog))
	require.NoError(t, again.Startup())
	m, err = again.GetModel("openai|gpt-4.1")
	require.NoError(t, err)
	assert.False(t, m.Enabled)
}

func TestModelService_Default(t *testing.T) {
	svc, _ := newTestModelService(t)

	m, err := svc.Default("gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai|gpt-4.1", m.Key)

	_, err = svc.SetModelEnabled("anthropic|claude-sonnet-4-20250514", false)
	require.NoError(t, err)
	require.NoError(t, svc.SetDefault("anthropic|claude-sonnet-4-20250514"))

	m, err = svc.Default("gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "anthropic|claude-sonnet-4-20250514", m.Key)
	assert.True(t, m.Enabled)

	assert.ErrorIs(t, svc.SetDefault("nope"), ErrModelNotFound)
}
