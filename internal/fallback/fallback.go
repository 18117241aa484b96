// Package fallback answers utterances no action handler claims by asking a
// chat-completion model, with the conversation so far as context.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/conversation"
	"github.com/nadzzz/parley/internal/llm"
)

// Apology is the reply used when the model cannot be reached.
const Apology = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// DefaultPersona is the persona template; %s is replaced by the user's name.
const DefaultPersona = "You are Parley, a friendly voice assistant. You are talking with %s. " +
	"Answer in one to three short sentences of plain spoken language, without markdown or lists."

// FallbackError records a failed completion. It is logged, not returned: the
// user sees Apology instead.
type FallbackError struct {
	Backend string
	Err     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback %s: %v", e.Backend, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// Generative mirrors the conversation into a chat model.
type Generative struct {
	client     llm.Client
	persona    string
	maxHistory int
	logger     *slog.Logger

	mu       sync.Mutex
	userName string
	system   string
}

// New creates a Generative fallback. An empty persona selects DefaultPersona;
// maxHistory <= 0 sends the whole conversation.
func New(client llm.Client, persona string, maxHistory int) *Generative {
	if persona == "" {
		persona = DefaultPersona
	}
	g := &Generative{
		client:     client,
		persona:    persona,
		maxHistory: maxHistory,
		logger:     slog.Default().With("component", "fallback", "backend", client.Name()),
	}
	g.system = g.buildSystemPrompt("")
	return g
}

// SetUserName updates the name the persona addresses. The system prompt is
// rebuilt only when the name actually changes.
func (g *Generative) SetUserName(name string) {
	name = strings.TrimSpace(name)
	g.mu.Lock()
	defer g.mu.Unlock()
	if name == g.userName {
		return
	}
	g.userName = name
	g.system = g.buildSystemPrompt(name)
	g.logger.Debug("persona rebuilt", "user", name)
}

// SystemPrompt returns the current persona prompt.
func (g *Generative) SystemPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.system
}

func (g *Generative) buildSystemPrompt(name string) string {
	if name == "" {
		name = "the user"
	}
	if strings.Contains(g.persona, "%s") {
		return fmt.Sprintf(g.persona, name)
	}
	return g.persona + " The user's name is " + name + "."
}

// Respond asks the model for a reply to prompt given the prior turns. Model
// failures produce the Apology result; only ctx cancellation is returned as
// an error.
func (g *Generative) Respond(ctx context.Context, history []conversation.Turn, prompt string) (action.Result, error) {
	messages := g.transcript(history, prompt)

	reply, err := g.client.Complete(ctx, messages)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return action.Result{}, ctxErr
		}
		fe := &FallbackError{Backend: g.client.Name(), Err: err}
		g.logger.Warn("fallback failed", "error", fe)
		reply = Apology
	}

	return action.Result{
		DisplayText:     strings.TrimSpace(reply),
		ShouldSpeak:     true,
		ResumeListening: true,
	}, nil
}

// transcript builds the request: persona, the most recent resolved turns, then
// the prompt.
func (g *Generative) transcript(history []conversation.Turn, prompt string) []llm.Message {
	resolved := make([]conversation.Turn, 0, len(history))
	for _, t := range history {
		if !t.Pending && strings.TrimSpace(t.Text) != "" {
			resolved = append(resolved, t)
		}
	}
	if g.maxHistory > 0 && len(resolved) > g.maxHistory {
		resolved = resolved[len(resolved)-g.maxHistory:]
	}

	messages := make([]llm.Message, 0, len(resolved)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: g.SystemPrompt()})
	for _, t := range resolved {
		role := llm.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return messages
}
