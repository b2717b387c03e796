package client

import (
	"context"
	"fmt"
	"strings"

	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
)

type ResponseType string

const (
	ResponseMessage   ResponseType = "message"
	ResponseToolCalls ResponseType = "tool_calls"
	ResponseError     ResponseType = "error"
)

type CurrentFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type ContextFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WorkspaceContext is the workspace state sent along with every request.
type WorkspaceContext struct {
	Folders      []tools.Entry `json:"folders,omitempty"`
	CurrentFile  *CurrentFile  `json:"currentFile,omitempty"`
	ContextFiles []ContextFile `json:"contextFiles,omitempty"`
	Memory       string        `json:"memory,omitempty"`
}

type ChatRequest struct {
	Messages     []models.ChatMessage `json:"messages"`
	Model        string               `json:"model"`
	SystemPrompt string               `json:"systemPrompt,omitempty"`
	Context      WorkspaceContext     `json:"context"`
}

type ChatResponse struct {
	Type      ResponseType      `json:"type"`
	Content   string            `json:"content"`
	ToolCalls []models.ToolCall `json:"toolCalls,omitempty"`
}

// Backend is a remote chat model that can request tool calls.
type Backend interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

func (f BackendFunc) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}

// SystemText renders the system prompt together with the workspace context.
func SystemText(req ChatRequest) string {
	var b strings.Builder
	prompt := strings.TrimSpace(req.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt()
	}
	b.WriteString(prompt)

	wc := req.Context
	if len(wc.Folders) > 0 {
		b.WriteString("\n\n<workspace>\n")
		writeEntries(&b, wc.Folders, 0)
		b.WriteString("</workspace>")
	}
	if wc.CurrentFile != nil {
		fmt.Fprintf(&b, "\n\n<current_file path=%q>\n%s\n</current_file>", wc.CurrentFile.Path, wc.CurrentFile.Content)
	}
	for _, f := range wc.ContextFiles {
		fmt.Fprintf(&b, "\n\n<context_file path=%q>\n%s\n</context_file>", f.Path, f.Content)
	}
	if m := strings.TrimSpace(wc.Memory); m != "" {
		fmt.Fprintf(&b, "\n\n<memory>\n%s\n</memory>", m)
	}
	return b.String()
}

func writeEntries(b *strings.Builder, entries []tools.Entry, depth int) {
	for _, e := range entries {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(e.Name)
		if e.Type == models.FileTypeFolder {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
		writeEntries(b, e.Children, depth+1)
	}
}
