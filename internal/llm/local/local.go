// Package local implements llm.Client against self-hosted models.
//
// It speaks both Ollama's native /api/generate and /api/chat endpoints and any
// OpenAI-compatible /v1/chat/completions server (Ollama, vLLM, llama.cpp).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/llm"
)

// Client uses a self-hosted model for chat completions.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	client      *http.Client
}

// New creates a new local client from config.
func New(cfg config.LocalLLMConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "local" }

// Complete sends the transcript to the local LLM endpoint.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	var reqBody map[string]any
	if strings.HasSuffix(c.endpoint, "/api/generate") {
		// Ollama's generate API takes a single prompt plus a system string.
		system, prompt := flatten(messages)
		reqBody = map[string]any{
			"model":  c.model,
			"system": system,
			"prompt": prompt,
			"stream": false,
			"options": map[string]any{
				"temperature": c.temperature,
			},
		}
	} else {
		reqBody = map[string]any{
			"model":       c.model,
			"messages":    messages,
			"temperature": c.temperature,
			"stream":      false,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local LLM failed (status %d): %s", resp.StatusCode, respBody)
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	content := strings.TrimSpace(extractContent(respData))
	if content == "" {
		return "", fmt.Errorf("empty response from local LLM")
	}

	slog.Debug("local completion complete", "model", c.model, "reply_length", len(content))
	return content, nil
}

// --- Internal helpers ---

// flatten renders a chat transcript as a system string and a single prompt
// for completion-style endpoints.
func flatten(messages []llm.Message) (string, string) {
	var system []string
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			sb.WriteString("Assistant: " + m.Content + "\n")
		default:
			sb.WriteString("User: " + m.Content + "\n")
		}
	}
	sb.WriteString("Assistant:")
	return strings.Join(system, "\n"), sb.String()
}

func extractContent(data []byte) string {
	// OpenAI-compatible format: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama chat format: {"message": {"content": "..."}}
	var ollamaChat struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &ollamaChat); err == nil && ollamaChat.Message.Content != "" {
		return ollamaChat.Message.Content
	}

	// Ollama generate format: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return string(data)
}
