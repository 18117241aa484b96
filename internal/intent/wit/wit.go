// Package wit implements the intent.Classifier interface against the Wit.ai
// HTTP API (GET /message).
package wit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/intent"
)

const (
	defaultEndpoint = "https://api.wit.ai"
	defaultVersion  = "20240304"
)

// Classifier sends utterances to Wit.ai.
type Classifier struct {
	endpoint string
	token    string
	version  string
	client   *http.Client
}

// New creates a Wit.ai classifier from config.
func New(cfg config.WitConfig) *Classifier {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}
	return &Classifier{
		endpoint: endpoint,
		token:    cfg.Token,
		version:  version,
		client:   &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Classifier) WithHTTPClient(hc *http.Client) *Classifier {
	c.client = hc
	return c
}

// Name returns the backend identifier.
func (c *Classifier) Name() string { return "wit" }

// Classify sends text to the /message endpoint and decodes the response.
func (c *Classifier) Classify(ctx context.Context, text string) (*intent.Response, error) {
	q := url.Values{}
	q.Set("v", c.version)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/message?"+q.Encode(), nil)
	if err != nil {
		return nil, intent.NewClassificationError(intent.FailureNetwork, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, intent.NewClassificationError(intent.FailureNetwork, fmt.Errorf("message request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, intent.NewClassificationError(intent.FailureNetwork,
			fmt.Errorf("message failed (status %d): %s", resp.StatusCode, respBody))
	}

	var out intent.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		kind := intent.FailureParse
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = intent.FailureNetwork
		}
		return nil, intent.NewClassificationError(kind, fmt.Errorf("decoding message response: %w", err))
	}

	slog.Debug("classification complete", "intents", len(out.Intents), "entities", len(out.Entities))
	return &out, nil
}
