package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
)

// EinoBackend drives an eino tool-calling chat model bound to the tool registry.
type EinoBackend struct {
	model  model.ToolCallingChatModel
	logger *slog.Logger
}

func NewEinoBackend(m model.ToolCallingChatModel, logger *slog.Logger) (*EinoBackend, error) {
	if m == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	bound, err := m.WithTools(tools.ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	return &EinoBackend{model: bound, logger: logger}, nil
}

func (b *EinoBackend) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	input, err := ToSchemaMessages(req)
	if err != nil {
		return nil, err
	}
	out, err := b.model.Generate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("generate: model returned no message")
	}
	resp := FromSchemaMessage(out)
	b.logger.Debug("model response", "model", req.Model, "type", resp.Type, "tool_calls", len(resp.ToolCalls))
	return resp, nil
}

// ToSchemaMessages converts the transcript into eino messages, leading with
// the system prompt and workspace context.
func ToSchemaMessages(req ChatRequest) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(req.Messages)+1)
	out = append(out, schema.SystemMessage(SystemText(req)))
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case models.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case models.RoleTool:
			out = append(out, schema.ToolMessage(m.Content, m.ToolCallID, schema.WithToolName(m.ToolName)))
		case models.RoleAssistant:
			calls := make([]schema.ToolCall, 0, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				args := c.Raw
				if c.Args != nil {
					b, err := json.Marshal(c.Args)
					if err != nil {
						return nil, fmt.Errorf("encode arguments of %s: %w", c.Name, err)
					}
					args = string(b)
				}
				calls = append(calls, schema.ToolCall{
					ID:       c.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: c.Name, Arguments: args},
				})
			}
			msg := schema.AssistantMessage(m.Content, calls)
			if len(calls) == 0 {
				msg.ToolCalls = nil
			}
			out = append(out, msg)
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

// FromSchemaMessage converts a model reply. Arguments that do not decode are
// kept raw so the dispatcher can report them.
func FromSchemaMessage(msg *schema.Message) *ChatResponse {
	if len(msg.ToolCalls) == 0 {
		return &ChatResponse{Type: ResponseMessage, Content: msg.Content}
	}
	calls := make([]models.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		call := models.ToolCall{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Status: models.ToolStatusPending,
		}
		if args, err := tools.ParseArgs(tc.Function.Arguments); err == nil {
			call.Args = args
		} else {
			call.Raw = tc.Function.Arguments
		}
		calls = append(calls, call)
	}
	return &ChatResponse{Type: ResponseToolCalls, Content: msg.Content, ToolCalls: calls}
}
