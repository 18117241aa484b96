// Package openai implements llm.Client using the OpenAI Chat Completions API.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the Chat Completions API.
type Client struct {
	apiKey      string
	model       string
	chatURL     string
	temperature float64
	client      *http.Client
}

// New creates a new OpenAI client from config.
func New(cfg config.OpenAIConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		apiKey:      cfg.APIKey,
		model:       model,
		chatURL:     base + "/chat/completions",
		temperature: cfg.Temperature,
		client:      &http.Client{},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "openai" }

// Complete sends the transcript and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("chat failed (status %d): %s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from chat API")
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	slog.Debug("chat completion complete", "model", c.model, "messages", len(messages), "reply_length", len(content))
	return content, nil
}

// --- Internal types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
