package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 2048

// HTTPBackend posts the chat contract as JSON to a remote endpoint.
type HTTPBackend struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
}

func NewHTTPBackend(endpoint string, timeout time.Duration, headers map[string]string) *HTTPBackend {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPBackend{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		headers:  headers,
	}
}

func (b *HTTPBackend) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range b.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	switch out.Type {
	case ResponseMessage, ResponseToolCalls, ResponseError:
	case "":
		out.Type = ResponseMessage
		if len(out.ToolCalls) > 0 {
			out.Type = ResponseToolCalls
		}
	default:
		return nil, fmt.Errorf("chat endpoint returned unknown response type %q", out.Type)
	}
	return &out, nil
}
