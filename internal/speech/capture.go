package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/parley/internal/observe"
)

// CaptureKind is the terminal outcome of a capture session.
type CaptureKind int

const (
	Recognized CaptureKind = iota
	Cancelled
	CaptureFailed
)

func (k CaptureKind) String() string {
	switch k {
	case Recognized:
		return "recognized"
	case Cancelled:
		return "cancelled"
	case CaptureFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CaptureReason explains a failed capture.
type CaptureReason int

const (
	ReasonUnknown CaptureReason = iota
	ReasonNoPermission
	ReasonNoMatch
	ReasonNetwork
	ReasonDeviceBusy
	ReasonTimeout
)

func (r CaptureReason) String() string {
	switch r {
	case ReasonNoPermission:
		return "no permission"
	case ReasonNoMatch:
		return "no match"
	case ReasonNetwork:
		return "network error"
	case ReasonDeviceBusy:
		return "device busy"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinel errors a Recognizer may return (possibly wrapped) to select a
// failure reason.
var (
	ErrNoPermission = errors.New("speech: microphone permission denied")
	ErrNoMatch      = errors.New("speech: no speech recognized")
	ErrDeviceBusy   = errors.New("speech: audio device busy")
)

// ErrAlreadyListening is returned by Start while a capture session is live.
var ErrAlreadyListening = errors.New("speech: already listening")

// CaptureError is the failure carried by a CaptureFailed event.
type CaptureError struct {
	Reason CaptureReason
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "capture failed: " + e.Reason.String()
	}
	return fmt.Sprintf("capture failed: %s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CaptureEvent is the single terminal event of a capture session.
type CaptureEvent struct {
	Kind CaptureKind
	Text string
	Err  *CaptureError
}

// CaptureGate runs at most one recognition session at a time.
type CaptureGate struct {
	rec         Recognizer
	floor       *Floor
	maxDuration time.Duration
	logger      *slog.Logger
	active      *observe.Value[bool]

	mu      sync.Mutex
	state   State
	session *captureSession
}

type captureSession struct {
	cancel     context.CancelFunc
	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}
}

func (s *captureSession) stop() {
	s.finishOnce.Do(func() { close(s.finish) })
}

// NewCaptureGate creates a gate over rec. A positive maxDuration finalizes
// sessions that run longer.
func NewCaptureGate(rec Recognizer, floor *Floor, maxDuration time.Duration) *CaptureGate {
	return &CaptureGate{
		rec:         rec,
		floor:       floor,
		maxDuration: maxDuration,
		logger:      slog.Default().With("component", "capture"),
		active:      observe.NewValue(false),
	}
}

// Start opens a capture session. The returned channel receives exactly one
// CaptureEvent and is then closed.
func (g *CaptureGate) Start(ctx context.Context) (<-chan CaptureEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return nil, ErrAlreadyListening
	}
	if err := g.floor.Acquire(Microphone); err != nil {
		return nil, &CaptureError{Reason: ReasonDeviceBusy, Err: err}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &captureSession{
		cancel: cancel,
		finish: make(chan struct{}),
		done:   make(chan struct{}),
	}
	g.session = s
	g.state = Active
	g.active.Set(true)

	var timer *time.Timer
	if g.maxDuration > 0 {
		timer = time.AfterFunc(g.maxDuration, func() {
			g.logger.Debug("capture reached max duration", "max", g.maxDuration)
			g.Stop()
		})
	}

	events := make(chan CaptureEvent, 1)
	go g.run(sctx, s, timer, events)
	g.logger.Debug("capture started")
	return events, nil
}

func (g *CaptureGate) run(ctx context.Context, s *captureSession, timer *time.Timer, events chan<- CaptureEvent) {
	text, err := g.rec.Recognize(ctx, s.finish)
	if timer != nil {
		timer.Stop()
	}
	ev := captureOutcome(ctx, text, err)
	s.cancel()

	// The floor is free before the session slot is, so a Start or Speak that
	// sees an empty slot can never have its floor released under it.
	g.mu.Lock()
	g.active.Set(false)
	g.floor.Release(Microphone)
	if g.session == s {
		g.session = nil
		g.state = Idle
	}
	g.mu.Unlock()

	if ev.Err != nil {
		g.logger.Warn("capture failed", "reason", ev.Err.Reason, "error", ev.Err.Err)
	} else {
		g.logger.Debug("capture ended", "outcome", ev.Kind, "text_length", len(ev.Text))
	}
	events <- ev
	close(events)
	close(s.done)
}

func captureOutcome(ctx context.Context, text string, err error) CaptureEvent {
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return CaptureEvent{Kind: CaptureFailed, Err: &CaptureError{Reason: ReasonNoMatch}}
		}
		return CaptureEvent{Kind: Recognized, Text: text}
	}

	var ce *CaptureError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return CaptureEvent{Kind: Cancelled}
	case errors.As(err, &ce):
		return CaptureEvent{Kind: CaptureFailed, Err: ce}
	case errors.Is(err, context.DeadlineExceeded):
		return failed(ReasonTimeout, err)
	case errors.Is(err, ErrNoPermission):
		return failed(ReasonNoPermission, err)
	case errors.Is(err, ErrNoMatch):
		return failed(ReasonNoMatch, err)
	case errors.Is(err, ErrDeviceBusy), errors.Is(err, ErrFloorBusy):
		return failed(ReasonDeviceBusy, err)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return failed(ReasonTimeout, err)
		}
		return failed(ReasonNetwork, err)
	default:
		return failed(ReasonUnknown, err)
	}
}

func failed(reason CaptureReason, err error) CaptureEvent {
	return CaptureEvent{Kind: CaptureFailed, Err: &CaptureError{Reason: reason, Err: err}}
}

// Stop asks the engine to finish the current utterance. The engine decides
// between Recognized and Cancelled. It does not wait and is a no-op when idle.
func (g *CaptureGate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return
	}
	g.state = Completing
	g.session.stop()
}

// Abort cancels the current session and waits for its terminal event to be
// emitted (Cancelled unless it had already finished). No-op when idle.
func (g *CaptureGate) Abort() {
	g.mu.Lock()
	s := g.session
	if s != nil {
		g.state = Completing
	}
	g.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// State returns the gate's current state.
func (g *CaptureGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Active reports whether the microphone is open.
func (g *CaptureGate) Active() bool { return g.active.Get() }

// Watch observes the microphone-active flag.
func (g *CaptureGate) Watch(buffer int) (<-chan bool, func()) { return g.active.Watch(buffer) }

// DisabledRecognizer fails every session. It stands in when no ASR backend
// is configured.
type DisabledRecognizer struct{}

// Recognize returns ErrNoPermission.
func (DisabledRecognizer) Recognize(context.Context, <-chan struct{}) (string, error) {
	return "", fmt.Errorf("speech capture is disabled: %w", ErrNoPermission)
}
