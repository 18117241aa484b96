package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/nadzzz/parley/internal/observe"
)

// PlaybackKind is the terminal outcome of a playback session.
type PlaybackKind int

const (
	Completed PlaybackKind = iota
	PlaybackFailed
)

func (k PlaybackKind) String() string {
	if k == Completed {
		return "completed"
	}
	return "failed"
}

// PlaybackReason explains a failed playback.
type PlaybackReason int

const (
	ReasonSynthesis PlaybackReason = iota
	ReasonTransport
	ReasonDevice
	ReasonInterrupted
	ReasonSpeakerBusy
)

func (r PlaybackReason) String() string {
	switch r {
	case ReasonSynthesis:
		return "synthesis"
	case ReasonTransport:
		return "transport"
	case ReasonDevice:
		return "device"
	case ReasonInterrupted:
		return "interrupted"
	case ReasonSpeakerBusy:
		return "device busy"
	default:
		return "unknown"
	}
}

// ErrAlreadySpeaking is returned by Speak while a playback session is live.
var ErrAlreadySpeaking = errors.New("speech: already speaking")

// PlaybackError is the failure carried by a PlaybackFailed event.
type PlaybackError struct {
	Reason PlaybackReason
	Err    error
}

func (e *PlaybackError) Error() string {
	if e.Err == nil {
		return "playback failed: " + e.Reason.String()
	}
	return fmt.Sprintf("playback failed: %s: %v", e.Reason, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// PlaybackEvent is the single terminal event of a playback session.
type PlaybackEvent struct {
	Kind PlaybackKind
	Err  *PlaybackError
}

// PlaybackGate speaks one text at a time, sentence by sentence.
type PlaybackGate struct {
	synth    Synthesizer
	player   Player
	floor    *Floor
	disabled func() bool
	logger   *slog.Logger
	active   *observe.Value[bool]

	mu      sync.Mutex
	state   State
	session *playbackSession
}

type playbackSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlaybackGate creates a gate. disabled, when non-nil, is consulted on
// every Speak; a true result completes the session without synthesizing.
func NewPlaybackGate(synth Synthesizer, player Player, floor *Floor, disabled func() bool) *PlaybackGate {
	if disabled == nil {
		disabled = func() bool { return false }
	}
	return &PlaybackGate{
		synth:    synth,
		player:   player,
		floor:    floor,
		disabled: disabled,
		logger:   slog.Default().With("component", "playback"),
		active:   observe.NewValue(false),
	}
}

// Speak starts speaking text. The returned channel receives exactly one
// PlaybackEvent and is then closed.
func (g *PlaybackGate) Speak(ctx context.Context, text string, opts SynthesizeOpts) (<-chan PlaybackEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return nil, ErrAlreadySpeaking
	}

	events := make(chan PlaybackEvent, 1)
	sentences := SplitSentences(text)
	if g.disabled() || len(sentences) == 0 {
		g.logger.Debug("playback skipped", "disabled", g.disabled(), "sentences", len(sentences))
		events <- PlaybackEvent{Kind: Completed}
		close(events)
		return events, nil
	}

	if err := g.floor.Acquire(Speaker); err != nil {
		events <- PlaybackEvent{Kind: PlaybackFailed, Err: &PlaybackError{Reason: ReasonSpeakerBusy, Err: err}}
		close(events)
		return events, nil
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &playbackSession{cancel: cancel, done: make(chan struct{})}
	g.session = s
	g.state = Active
	g.active.Set(true)

	go g.run(sctx, s, sentences, opts, events)
	return events, nil
}

func (g *PlaybackGate) run(ctx context.Context, s *playbackSession, sentences []string, opts SynthesizeOpts, events chan<- PlaybackEvent) {
	ev := PlaybackEvent{Kind: Completed}
	for i, sentence := range sentences {
		if ctx.Err() != nil {
			ev = playbackFailed(ReasonInterrupted, ctx.Err())
			break
		}
		audio, err := g.synth.Synthesize(ctx, sentence, opts)
		if err != nil {
			ev = playbackFailed(synthesisReason(ctx, err), err)
			break
		}
		g.logger.Debug("playing sentence", "index", i, "seconds", audio.Duration())
		if err := g.player.Play(ctx, audio); err != nil {
			reason := ReasonDevice
			if ctx.Err() != nil {
				reason = ReasonInterrupted
			}
			ev = playbackFailed(reason, err)
			break
		}
	}
	s.cancel()

	// The floor is free before the session slot is, so a Start or Speak that
	// sees an empty slot can never have its floor released under it.
	g.mu.Lock()
	g.active.Set(false)
	g.floor.Release(Speaker)
	if g.session == s {
		g.session = nil
		g.state = Idle
	}
	g.mu.Unlock()

	if ev.Err != nil && ev.Err.Reason != ReasonInterrupted {
		g.logger.Warn("playback failed", "reason", ev.Err.Reason, "error", ev.Err.Err)
	} else {
		g.logger.Debug("playback ended", "outcome", ev.Kind)
	}
	events <- ev
	close(events)
	close(s.done)
}

func synthesisReason(ctx context.Context, err error) PlaybackReason {
	if ctx.Err() != nil {
		return ReasonInterrupted
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonTransport
	}
	return ReasonSynthesis
}

func playbackFailed(reason PlaybackReason, err error) PlaybackEvent {
	return PlaybackEvent{Kind: PlaybackFailed, Err: &PlaybackError{Reason: reason, Err: err}}
}

// Stop interrupts the current session and waits until the speaker is
// released. No-op when idle.
func (g *PlaybackGate) Stop() {
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
func (g *PlaybackGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Active reports whether audio is being played.
func (g *PlaybackGate) Active() bool { return g.active.Get() }

// Watch observes the speaking flag.
func (g *PlaybackGate) Watch(buffer int) (<-chan bool, func()) { return g.active.Watch(buffer) }
