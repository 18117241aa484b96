// Package coordinator runs the conversation turn state machine: it takes a
// user utterance through classification, dispatch (an action handler or the
// generative fallback), rendering, optional speech and, in hands-free mode,
// back to listening.
//
// All blocking work runs on a per-turn goroutine. Callers observe progress
// through immutable Snapshots, either polled or pushed via Subscribe.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/conversation"
	"github.com/nadzzz/parley/internal/intent"
	"github.com/nadzzz/parley/internal/observe"
	"github.com/nadzzz/parley/internal/profile"
	"github.com/nadzzz/parley/internal/speech"
)

// State is the coordinator's position in the turn lifecycle.
type State int

const (
	Idle State = iota
	AwaitingClassification
	Dispatching
	AwaitingSpeech
	AutoListening
	Interrupted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingClassification:
		return "awaiting_classification"
	case Dispatching:
		return "dispatching"
	case AwaitingSpeech:
		return "awaiting_speech"
	case AutoListening:
		return "auto_listening"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for v := Idle; v <= Interrupted; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("coordinator: unknown state %q", b)
}

var (
	// ErrBlankInput is returned by Submit for empty or whitespace-only text.
	ErrBlankInput = errors.New("coordinator: blank input")

	// ErrTurnInFlight is returned by Submit while a turn is being processed.
	// The input is dropped and the log is left unchanged.
	ErrTurnInFlight = errors.New("coordinator: a turn is already in flight")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("coordinator: closed")
)

// User-facing replies for failed turns.
const (
	MessageNetwork = "I couldn't reach the assistant service. Please check your connection and try again."
	MessageParse   = "Sorry, I couldn't make sense of the assistant service's reply."
	MessageFailed  = "Sorry, something went wrong while doing that."
)

// Snapshot is an immutable view of the coordinator.
type Snapshot struct {
	State        State               `json:"state"`
	AutoContinue bool                `json:"auto_continue"`
	Listening    bool                `json:"listening"`
	Speaking     bool                `json:"speaking"`
	Turns        []conversation.Turn `json:"turns"`
	Alert        string              `json:"alert,omitempty"`
}

// Capture is the microphone side of the speech gates.
type Capture interface {
	Start(ctx context.Context) (<-chan speech.CaptureEvent, error)
	Stop()
	Abort()
	Active() bool
	Watch(buffer int) (<-chan bool, func())
}

// Playback is the speaker side of the speech gates.
type Playback interface {
	Speak(ctx context.Context, text string, opts speech.SynthesizeOpts) (<-chan speech.PlaybackEvent, error)
	Stop()
	Active() bool
	Watch(buffer int) (<-chan bool, func())
}

// Fallback answers utterances no handler claims.
type Fallback interface {
	Respond(ctx context.Context, history []conversation.Turn, prompt string) (action.Result, error)
	SetUserName(name string)
}

// Deps are the collaborators of a Coordinator. Log and Profile are optional.
type Deps struct {
	Classifier intent.Classifier
	Table      *action.Table
	Fallback   Fallback
	Capture    Capture
	Playback   Playback
	Profile    profile.Source
	Log        *conversation.Log
}

// Coordinator owns the conversation log and the turn state machine.
type Coordinator struct {
	cfg        config.CoordinatorConfig
	classifier intent.Classifier
	table      *action.Table
	fallback   Fallback
	capture    Capture
	playback   Playback
	profile    profile.Source
	log        *conversation.Log
	logger     *slog.Logger

	snapshots *observe.Broadcaster[Snapshot]
	stopWatch func()
	watchDone chan struct{}

	mu           sync.Mutex
	state        State
	autoContinue bool
	alert        string
	gen          uint64
	current      *activity
	pendingID    string
	closed       bool
}

// activity is the goroutine serving one turn or one listening session.
type activity struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Coordinator. Zero durations in cfg take the defaults
// (12s classification, 15s dispatch, 250ms/5s debounce).
func New(cfg config.CoordinatorConfig, d Deps) *Coordinator {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 12 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 15 * time.Second
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 250 * time.Millisecond
	}
	if cfg.DebounceMax < cfg.DebounceInterval {
		cfg.DebounceMax = 5 * time.Second
	}
	log := d.Log
	if log == nil {
		log = conversation.NewLog()
	}
	table := d.Table
	if table == nil {
		table = action.NewTable()
	}

	c := &Coordinator{
		cfg:          cfg,
		classifier:   d.Classifier,
		table:        table,
		fallback:     d.Fallback,
		capture:      d.Capture,
		playback:     d.Playback,
		profile:      d.Profile,
		log:          log,
		logger:       slog.Default().With("component", "coordinator"),
		snapshots:    observe.NewBroadcaster[Snapshot](),
		autoContinue: cfg.AutoContinue,
	}
	c.publishLocked()
	c.watchFlags()
	return c
}

// watchFlags republishes the snapshot whenever the microphone or speaker
// flag changes.
func (c *Coordinator) watchFlags() {
	micCh, stopMic := c.capture.Watch(4)
	spkCh, stopSpk := c.playback.Watch(4)
	c.stopWatch = func() {
		stopMic()
		stopSpk()
	}
	c.watchDone = make(chan struct{})
	go func() {
		defer close(c.watchDone)
		for micCh != nil || spkCh != nil {
			select {
			case _, ok := <-micCh:
				if !ok {
					micCh = nil
					continue
				}
			case _, ok := <-spkCh:
				if !ok {
					spkCh = nil
					continue
				}
			}
			c.mu.Lock()
			c.publishLocked()
			c.mu.Unlock()
		}
	}()
}

// Submit starts a turn for text. It is accepted from Idle and AutoListening
// (the microphone is closed first); otherwise the input is dropped with
// ErrTurnInFlight.
func (c *Coordinator) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrBlankInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch c.state {
	case Idle:
	case AutoListening:
		if c.current != nil {
			c.current.cancel()
		}
	default:
		c.logger.Info("submit dropped, turn in flight", "state", c.state)
		return ErrTurnInFlight
	}
	c.startTurnLocked(text)
	return nil
}

func (c *Coordinator) startTurnLocked(text string) {
	user := c.log.Append(conversation.RoleUser, text)
	placeholder := c.log.AppendPlaceholder()
	c.pendingID = placeholder.ID
	c.alert = ""
	c.state = AwaitingClassification
	c.spawnLocked(func(ctx context.Context, gen uint64) {
		c.runTurn(ctx, gen, text, user.ID, placeholder.ID)
	})
	c.publishLocked()
	c.logger.Debug("turn started", "turn_id", user.ID, "text_length", len(text))
}

// spawnLocked starts run on a new activity. The activity waits for the
// previous one to finish so gate sessions never overlap.
func (c *Coordinator) spawnLocked(run func(ctx context.Context, gen uint64)) {
	prev := c.current
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	a := &activity{cancel: cancel, done: make(chan struct{})}
	c.current = a

	go func() {
		defer func() {
			cancel()
			c.mu.Lock()
			if c.current == a {
				c.current = nil
			}
			c.mu.Unlock()
			close(a.done)
		}()
		if prev != nil {
			<-prev.done
		}
		if ctx.Err() != nil {
			return
		}
		run(ctx, gen)
	}()
}

func (c *Coordinator) runTurn(ctx context.Context, gen uint64, text, userID, pendingID string) {
	p := c.currentProfile(ctx)
	res := c.decide(ctx, gen, text, userID, p)
	if ctx.Err() != nil {
		c.logger.Info("turn result discarded after cancel", "turn_id", userID)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if _, err := c.log.Resolve(pendingID, res.DisplayText); err != nil {
		c.logger.Warn("resolving placeholder", "turn_id", userID, "error", err)
	}
	c.pendingID = ""
	if res.ShouldSpeak {
		c.state = AwaitingSpeech
	}
	c.publishLocked()
	c.mu.Unlock()

	if res.ShouldSpeak {
		c.speak(ctx, gen, res.DisplayText, p)
		if ctx.Err() != nil {
			return
		}
	}
	c.resume(ctx, gen, res.ResumeListening)
}

// decide classifies text and produces the turn's Result from a handler, the
// fallback, or a failure message.
func (c *Coordinator) decide(ctx context.Context, gen uint64, text, userID string, p profile.Profile) action.Result {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.ClassifyTimeout)
	resp, err := await(cctx, c.classifier.Classify, text)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return action.Result{}
		}
		c.logger.Warn("classification failed", "classifier", c.classifier.Name(), "error", err)
		return failureResult(err)
	}
	if !c.advance(gen, Dispatching) {
		return action.Result{}
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	defer cancel()

	if in, ok := intent.Parse(resp); ok {
		if h, found := c.table.Lookup(in.Name); found {
			res, err := await(dctx, func(ctx context.Context, in intent.Intent) (action.Result, error) {
				return invoke(ctx, h, in)
			}, in)
			if err != nil {
				if ctx.Err() != nil {
					return action.Result{}
				}
				c.logger.Warn("dispatch failed", "intent", in.Name, "error", err)
				return failureResult(err)
			}
			c.logger.Info("intent handled", "intent", in.Name, "confidence", in.Confidence)
			return res
		}
		c.logger.Debug("no handler for intent", "intent", in.Name)
	}

	c.fallback.SetUserName(p.DisplayName)
	history := c.log.Before(userID)
	res, err := await(dctx, func(ctx context.Context, prompt string) (action.Result, error) {
		return c.fallback.Respond(ctx, history, prompt)
	}, text)
	if err != nil {
		if ctx.Err() != nil {
			return action.Result{}
		}
		c.logger.Warn("fallback failed", "error", err)
		return failureResult(err)
	}
	return res
}

// await runs call on its own goroutine and returns its result, or ctx's error
// once ctx is done. A call that ignores ctx is abandoned: its late result is
// dropped and nothing waits for it.
func await[In, Out any](ctx context.Context, call func(context.Context, In) (Out, error), in In) (Out, error) {
	type outcome struct {
		out Out
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		out, err := call(ctx, in)
		ch <- outcome{out, err}
	}()
	select {
	case o := <-ch:
		return o.out, o.err
	case <-ctx.Done():
		select {
		case o := <-ch:
			return o.out, o.err
		default:
		}
		var zero Out
		return zero, ctx.Err()
	}
}

// invoke runs h, converting a panic into a DispatchError.
func invoke(ctx context.Context, h action.Handler, in intent.Intent) (res action.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &action.DispatchError{Kind: action.HandlerPanic, Intent: in.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return h.Handle(ctx, in)
}

// failureResult turns a classification or dispatch failure into a reply.
// Failed turns are spoken but never resume listening.
func failureResult(err error) action.Result {
	msg := MessageFailed
	var ce *intent.ClassificationError
	var de *action.DispatchError
	switch {
	case errors.As(err, &ce):
		if ce.Kind == intent.FailureParse {
			msg = MessageParse
		} else {
			msg = MessageNetwork
		}
	case errors.Is(err, context.DeadlineExceeded):
		msg = MessageNetwork
	case errors.As(err, &de) && de.Prompt != "":
		msg = de.Prompt
	}
	return action.Result{DisplayText: msg, ShouldSpeak: true}
}

// speak plays text and waits for the terminal playback event.
func (c *Coordinator) speak(ctx context.Context, gen uint64, text string, p profile.Profile) {
	events, err := c.playback.Speak(ctx, text, speech.SynthesizeOpts{Voice: p.Voice, Language: p.Language})
	if err != nil {
		c.logger.Warn("playback not started", "error", err)
		c.raise(gen, "Couldn't play the reply.")
		return
	}
	ev := <-events
	if ev.Kind == speech.PlaybackFailed && ev.Err.Reason != speech.ReasonInterrupted {
		c.raise(gen, fmt.Sprintf("Couldn't play the reply (%s).", ev.Err.Reason))
	}
}

// resume decides between listening again and going idle.
func (c *Coordinator) resume(ctx context.Context, gen uint64, want bool) {
	c.mu.Lock()
	auto := c.autoContinue
	c.mu.Unlock()
	if !auto || !want {
		c.settle(gen)
		return
	}
	if !c.awaitSettled(ctx) {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("not resuming, last reply still pending", "waited", c.cfg.DebounceMax)
		c.settle(gen)
		return
	}
	if !c.advance(gen, AutoListening) {
		return
	}
	c.listen(ctx, gen)
}

// awaitSettled polls until the most recent assistant turn is no longer a
// placeholder, giving up after DebounceMax.
func (c *Coordinator) awaitSettled(ctx context.Context) bool {
	ticker := time.NewTicker(c.cfg.DebounceInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(c.cfg.DebounceMax)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timeout.C:
			return false
		case <-ticker.C:
			if t, ok := c.log.LastAssistant(); !ok || !t.Pending {
				return true
			}
		}
	}
}

// listen runs one capture session. A recognized transcript becomes the next
// turn; anything else returns to Idle.
func (c *Coordinator) listen(ctx context.Context, gen uint64) {
	events, err := c.capture.Start(ctx)
	if err != nil {
		c.logger.Warn("capture not started", "error", err)
		c.mu.Lock()
		if c.gen == gen {
			c.alert = "Couldn't start listening."
			var ce *speech.CaptureError
			if errors.As(err, &ce) {
				c.alert = fmt.Sprintf("Couldn't start listening (%s).", ce.Reason)
			}
			c.state = Idle
			c.publishLocked()
		}
		c.mu.Unlock()
		return
	}

	ev := <-events
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	switch ev.Kind {
	case speech.Recognized:
		c.startTurnLocked(ev.Text)
		return
	case speech.CaptureFailed:
		c.alert = fmt.Sprintf("Speech recognition failed (%s).", ev.Err.Reason)
	}
	c.state = Idle
	c.publishLocked()
}

// advance moves turn gen to s, reporting false if it was superseded.
func (c *Coordinator) advance(gen uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = s
	c.publishLocked()
	return true
}

func (c *Coordinator) settle(gen uint64) { c.advance(gen, Idle) }

func (c *Coordinator) raise(gen uint64, alert string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.alert = alert
		c.publishLocked()
	}
}

func (c *Coordinator) currentProfile(ctx context.Context) profile.Profile {
	if c.profile == nil {
		return profile.Profile{}
	}
	p, err := c.profile.Current(ctx)
	if err != nil {
		c.logger.Warn("loading profile", "error", err)
	}
	return p
}

// Cancel interrupts the current turn or listening session: late results are
// discarded, capture is aborted, playback stopped and an unresolved
// placeholder removed. It is a no-op when Idle.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	a := c.current
	pending := c.pendingID
	c.pendingID = ""
	c.gen++
	gen := c.gen
	c.state = Interrupted
	c.publishLocked()
	c.mu.Unlock()

	if a != nil {
		a.cancel()
	}
	c.capture.Abort()
	c.playback.Stop()
	if pending != "" {
		c.log.RemovePending(pending)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.state = Idle
	}
	c.publishLocked()
	c.mu.Unlock()
	c.logger.Info("turn cancelled")
}

// ToggleMic handles a microphone press. While listening it finalizes the
// utterance and leaves hands-free mode; otherwise it interrupts any turn,
// enters hands-free mode and starts listening.
func (c *Coordinator) ToggleMic() (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if c.state == AutoListening {
		c.autoContinue = false
		c.publishLocked()
		c.mu.Unlock()
		if c.capture.Active() {
			c.capture.Stop()
		} else {
			c.Cancel()
		}
		return c.Snapshot(), nil
	}
	busy := c.state != Idle
	c.mu.Unlock()

	if busy {
		c.Cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Snapshot{}, ErrClosed
	}
	if c.state != Idle {
		return c.snapshotLocked(), ErrTurnInFlight
	}
	c.autoContinue = true
	c.alert = ""
	c.state = AutoListening
	c.spawnLocked(c.listen)
	c.publishLocked()
	return c.snapshotLocked(), nil
}

// SetAutoContinue turns hands-free mode on or off.
func (c *Coordinator) SetAutoContinue(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoContinue = enabled
	c.publishLocked()
}

// Reset cancels any activity, leaves hands-free mode and clears the log.
func (c *Coordinator) Reset() {
	c.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoContinue = false
	c.alert = ""
	c.log.Reset()
	c.publishLocked()
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe delivers a Snapshot after every change, starting with the
// current one. Slow subscribers only see the latest snapshot.
func (c *Coordinator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	return c.snapshots.Subscribe(buffer)
}

// Close cancels any activity, waits for it to finish and closes subscribers.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Cancel()

	c.mu.Lock()
	c.closed = true
	c.gen++
	a := c.current
	c.mu.Unlock()
	if a != nil {
		a.cancel()
		<-a.done
	}

	c.stopWatch()
	<-c.watchDone
	c.snapshots.Close()
	return nil
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		State:        c.state,
		AutoContinue: c.autoContinue,
		Listening:    c.capture.Active(),
		Speaking:     c.playback.Active(),
		Turns:        c.log.Snapshot(),
		Alert:        c.alert,
	}
}

func (c *Coordinator) publishLocked() {
	c.snapshots.Publish(c.snapshotLocked())
}
