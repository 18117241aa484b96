// Package action maps classified intents to the handlers that carry them out.
//
// A Table is an ordered registry keyed by exact intent name. Handlers reach
// the outside world only through the narrow actuator interfaces declared in
// this package, so tests can register fakes.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nadzzz/parley/internal/intent"
)

// Result is the outcome of one turn: what to show, whether to say it, and
// whether the assistant should listen again afterwards.
type Result struct {
	DisplayText     string `json:"display_text"`
	ShouldSpeak     bool   `json:"should_speak"`
	ResumeListening bool   `json:"resume_listening"`
}

// Handler executes one intent.
type Handler interface {
	Handle(ctx context.Context, in intent.Intent) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, in intent.Intent) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, in intent.Intent) (Result, error) {
	return f(ctx, in)
}

// ErrDuplicateIntent is returned by Register for a name already in the table.
var ErrDuplicateIntent = errors.New("action: intent already registered")

// Table maps intent names to handlers, preserving registration order.
type Table struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

// Register adds h under name.
func (t *Table) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("action: register %q: empty name or nil handler", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIntent, name)
	}
	t.handlers[name] = h
	t.order = append(t.order, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (t *Table) MustRegister(name string, h Handler) {
	if err := t.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler registered under exactly name.
func (t *Table) Lookup(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[name]
	return h, ok
}

// Names returns the registered intent names in registration order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// ErrorKind classifies a DispatchError.
type ErrorKind int

const (
	MissingSlot ErrorKind = iota
	InvalidSlot
	ActuatorFailure
	PermissionDenied
	HandlerPanic
)

func (k ErrorKind) String() string {
	switch k {
	case MissingSlot:
		return "missing slot"
	case InvalidSlot:
		return "invalid slot"
	case ActuatorFailure:
		return "actuator failure"
	case PermissionDenied:
		return "permission denied"
	case HandlerPanic:
		return "handler panic"
	default:
		return "unknown"
	}
}

// ErrPermissionDenied is returned by actuators the platform refused.
var ErrPermissionDenied = errors.New("permission denied")

// DispatchError reports a handler failure. Prompt, when set, is the message to
// show the user (a clarifying question for a missing slot).
type DispatchError struct {
	Kind   ErrorKind
	Intent string
	Slot   string
	Prompt string
	Err    error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("dispatch %s: %s", e.Intent, e.Kind)
	if e.Slot != "" {
		msg += " " + e.Slot
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

func missingSlot(in intent.Intent, slot, prompt string) *DispatchError {
	return &DispatchError{Kind: MissingSlot, Intent: in.Name, Slot: slot, Prompt: prompt}
}

func invalidSlot(in intent.Intent, slot, prompt string) *DispatchError {
	return &DispatchError{Kind: InvalidSlot, Intent: in.Name, Slot: slot, Prompt: prompt}
}

// actuatorError wraps err, classifying permission refusals.
func actuatorError(in intent.Intent, err error) *DispatchError {
	kind := ActuatorFailure
	prompt := ""
	if errors.Is(err, ErrPermissionDenied) {
		kind = PermissionDenied
		prompt = "I don't have permission to do that. Please grant access in settings."
	}
	return &DispatchError{Kind: kind, Intent: in.Name, Prompt: prompt, Err: err}
}
