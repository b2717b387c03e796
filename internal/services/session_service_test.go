package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

func TestSessionService_RoundTrip(t *testing.T) {
	svc := NewSessionService(repositories.NewAgentSessionRepository(openDB(t)))

	missing, err := svc.Load("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	call := models.ToolCall{ID: "c1", Name: "get_selection", Status: models.ToolStatusCompleted}
	require.NoError(t, svc.Save(SessionRecord{
		Key:          "s1",
		WorkspaceID:  "ws",
		DocumentPath: "a.md",
		ModelKey:     "openai|gpt-4.1",
		Provider:     "openai",
		Messages: []models.ChatMessage{
			models.UserMessage("hi"),
			models.AssistantMessage("", []models.ToolCall{call}),
			models.ToolResultMessage(call, "{}", false),
		},
	}))

	rec, err := svc.Load("s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ws", rec.WorkspaceID)
	assert.Equal(t, "a.md", rec.DocumentPath)
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, models.ToolStatusCompleted, rec.Messages[1].ToolCalls[0].Status)
	assert.Equal(t, "c1", rec.Messages[2].ToolCallID)

	require.NoError(t, svc.Save(SessionRecord{Key: "s1", ModelKey: "openai|gpt-4.1"}))
	rec, err = svc.Load("s1")
	require.NoError(t, err)
	assert.Empty(t, rec.Messages)

	list, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete("s1"))
	rec, err = svc.Load("s1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, svc.Save(SessionRecord{}))
}
