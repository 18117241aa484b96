// Package llm defines the chat-completion boundary used by the generative
// fallback. Parley ships with two backends: OpenAI (cloud) and Local
// (self-hosted via Ollama or any OpenAI-compatible server).
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces the next assistant message for a transcript.
type Client interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// Complete returns the assistant's reply to messages.
	Complete(ctx context.Context, messages []Message) (string, error)
}
