package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelKey(t *testing.T) {
	thinking := true
	assert.Equal(t, "openai|gpt-4.1", ModelKey("openai", " gpt-4.1 ", "", nil))
	assert.Equal(t, "openai|o4-mini|reasoning=medium", ModelKey("openai", "o4-mini", "medium", nil))
	assert.Equal(t, "anthropic|claude|reasoning=low,thinking=true", ModelKey("anthropic", "claude", "low", &thinking))
}

func TestSplitModelKey(t *testing.T) {
	p, api, ok := SplitModelKey("anthropic|claude-sonnet-4-20250514|thinking=true")
	assert.True(t, ok)
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-sonnet-4-20250514", api)

	_, _, ok = SplitModelKey("gpt-4.1")
	assert.False(t, ok)
	_, _, ok = SplitModelKey("|gpt-4.1")
	assert.False(t, ok)
}

func TestLLMModel_Label(t *testing.T) {
	assert.Equal(t, "GPT-4.1 (OpenAI)", LLMModel{DisplayName: "GPT-4.1", ProviderName: "OpenAI"}.Label())
	assert.Equal(t, "gpt-4.1 (openai)", LLMModel{APIName: "gpt-4.1", ProviderID: "openai"}.Label())
	assert.Equal(t, "m", LLMModel{APIName: "m"}.Label())
}
