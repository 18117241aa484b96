// Package conversation defines the turns exchanged between the user and the
// assistant and the append-only log that holds them for a session.
package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser marks text typed or spoken by the user.
	RoleUser Role = "user"

	// RoleAssistant marks text produced by the assistant.
	RoleAssistant Role = "assistant"
)

// ThinkingText is shown for an assistant placeholder until its result is known.
const ThinkingText = "…"

var (
	// ErrTurnNotFound is returned when no turn has the requested ID.
	ErrTurnNotFound = errors.New("conversation: turn not found")

	// ErrNotPending is returned when resolving a turn that is not a placeholder.
	ErrNotPending = errors.New("conversation: turn is not pending")
)

// Turn is one message in the conversation.
type Turn struct {
	// ID is a unique identifier (UUID).
	ID string `json:"id"`

	// Role is the author of the turn.
	Role Role `json:"role"`

	// Text is the visible message.
	Text string `json:"text"`

	// CreatedAt is when the turn was appended.
	CreatedAt time.Time `json:"created_at"`

	// Pending marks an assistant "thinking" placeholder that has not been
	// resolved yet.
	Pending bool `json:"pending,omitempty"`
}

// Reader is the read-only view of a Log handed to collaborators.
type Reader interface {
	Snapshot() []Turn
	Len() int
}

// Log is the ordered record of a session's turns. A single owner writes to it;
// any number of readers take snapshots.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds a resolved turn and returns it.
func (l *Log) Append(role Role, text string) Turn {
	return l.append(Turn{Role: role, Text: text})
}

// AppendPlaceholder adds a pending assistant turn and returns it.
func (l *Log) AppendPlaceholder() Turn {
	return l.append(Turn{Role: RoleAssistant, Text: ThinkingText, Pending: true})
}

func (l *Log) append(t Turn) Turn {
	t.ID = uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	t.CreatedAt = l.now()
	l.turns = append(l.turns, t)
	return t
}

// Resolve replaces the pending placeholder id with a resolved turn carrying
// text. The replacement keeps the placeholder's ID and position.
func (l *Log) Resolve(id, text string) (Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return Turn{}, ErrTurnNotFound
	}
	if !l.turns[i].Pending {
		return Turn{}, ErrNotPending
	}
	l.turns[i] = Turn{
		ID:        id,
		Role:      l.turns[i].Role,
		Text:      text,
		CreatedAt: l.turns[i].CreatedAt,
	}
	return l.turns[i], nil
}

// RemovePending deletes the turn id if it is still an unresolved placeholder.
// It reports whether a turn was removed.
func (l *Log) RemovePending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 || !l.turns[i].Pending {
		return false
	}
	l.turns = append(l.turns[:i], l.turns[i+1:]...)
	return true
}

func (l *Log) indexLocked(id string) int {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].ID == id {
			return i
		}
	}
	return -1
}

// LastAssistant returns the most recent assistant turn.
func (l *Log) LastAssistant() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Role == RoleAssistant {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// Before returns a copy of the resolved turns preceding id, oldest first.
// Pending placeholders are skipped. If id is unknown all resolved turns are
// returned.
func (l *Log) Before(id string) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	end := l.indexLocked(id)
	if end < 0 {
		end = len(l.turns)
	}
	out := make([]Turn, 0, end)
	for _, t := range l.turns[:end] {
		if !t.Pending {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot returns a copy of every turn, oldest first.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Reset removes every turn.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}
