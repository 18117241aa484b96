package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/actuator"
	"github.com/nadzzz/parley/internal/actuator/device"
	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/conversation"
	"github.com/nadzzz/parley/internal/intent"
	"github.com/nadzzz/parley/internal/profile"
	"github.com/nadzzz/parley/internal/speech"
)

// --- fakes ---

type classifierFunc func(ctx context.Context, text string) (*intent.Response, error)

func (f classifierFunc) Name() string { return "fake" }

func (f classifierFunc) Classify(ctx context.Context, text string) (*intent.Response, error) {
	return f(ctx, text)
}

func respondWith(t *testing.T, payload string) classifierFunc {
	t.Helper()
	var resp intent.Response
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	return func(context.Context, string) (*intent.Response, error) {
		r := resp
		return &r, nil
	}
}

const noIntentPayload = `{"text":"tell me a joke","intents":[],"entities":{},"traits":{}}`

const weatherPayload = `{
  "text": "what's the weather in Amman",
  "intents": [{"id": "1", "name": "wit$get_weather", "confidence": 0.98}],
  "entities": {
    "wit$location:location": [{
      "name": "wit$location", "role": "location", "body": "Amman", "confidence": 0.95, "type": "resolved",
      "resolved": {"values": [{"name": "Amman", "domain": "locality", "coords": {"lat": 31.95, "long": 35.93}}]}
    }]
  },
  "traits": {}
}`

const wifiPayload = `{
  "text": "turn on wifi",
  "intents": [{"id": "2", "name": "control_device_feature", "confidence": 0.93}],
  "entities": {
    "feature:feature": [{"name": "feature", "role": "feature", "body": "wifi", "value": "wifi", "confidence": 0.9, "type": "value"}]
  },
  "traits": {"action": [{"id": "3", "value": "on", "confidence": 0.88}]}
}`

func intentPayload(name string) string {
	return `{"text":"x","intents":[{"id":"9","name":"` + name + `","confidence":0.9}],"entities":{},"traits":{}}`
}

type fakeWeather struct{}

func (fakeWeather) Current(context.Context, intent.Location) (action.Conditions, error) {
	return action.Conditions{Condition: "clear", TemperatureC: 21}, nil
}

type fakeFallback struct {
	mu       sync.Mutex
	reply    string
	calls    int
	history  []conversation.Turn
	prompt   string
	userName string
}

func (f *fakeFallback) Respond(_ context.Context, history []conversation.Turn, prompt string) (action.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = history
	f.prompt = prompt
	return action.Result{DisplayText: f.reply, ShouldSpeak: true, ResumeListening: true}, nil
}

func (f *fakeFallback) SetUserName(name string) {
	f.mu.Lock()
	f.userName = name
	f.mu.Unlock()
}

func (f *fakeFallback) snapshot() (int, []conversation.Turn, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.history, f.prompt, f.userName
}

type countingSynth struct{ calls atomic.Int32 }

func (s *countingSynth) Synthesize(context.Context, string, speech.SynthesizeOpts) (*speech.Audio, error) {
	s.calls.Add(1)
	return &speech.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1, Width: 2}, nil
}

type instantPlayer struct{}

func (instantPlayer) Play(context.Context, *speech.Audio) error { return nil }

// holdingPlayer plays until its context is cancelled.
type holdingPlayer struct{ started chan struct{} }

func (p *holdingPlayer) Play(ctx context.Context, _ *speech.Audio) error {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

// queueRecognizer returns queued transcripts; Stop without a queued
// transcript yields an empty (no match) result.
type queueRecognizer struct {
	texts   chan string
	started atomic.Int32
}

func (r *queueRecognizer) Recognize(ctx context.Context, finish <-chan struct{}) (string, error) {
	r.started.Add(1)
	select {
	case t := <-r.texts:
		return t, nil
	case <-finish:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// countingPlayback records Speak calls.
type countingPlayback struct {
	*speech.PlaybackGate
	speaks atomic.Int32
}

func (p *countingPlayback) Speak(ctx context.Context, text string, opts speech.SynthesizeOpts) (<-chan speech.PlaybackEvent, error) {
	p.speaks.Add(1)
	return p.PlaybackGate.Speak(ctx, text, opts)
}

type harness struct {
	c        *Coordinator
	table    *action.Table
	fallback *fakeFallback
	synth    *countingSynth
	rec      *queueRecognizer
	playback *countingPlayback
	ttsOff   atomic.Bool
}

func newHarness(t *testing.T, cls intent.Classifier, table *action.Table) *harness {
	t.Helper()
	return newHarnessWithPlayer(t, cls, table, instantPlayer{})
}

func newHarnessWithPlayer(t *testing.T, cls intent.Classifier, table *action.Table, player speech.Player) *harness {
	t.Helper()
	if table == nil {
		table = action.NewTable()
	}
	h := &harness{
		table:    table,
		fallback: &fakeFallback{reply: "Here's one."},
		synth:    &countingSynth{},
		rec:      &queueRecognizer{texts: make(chan string, 4)},
	}
	floor := speech.NewFloor()
	capture := speech.NewCaptureGate(h.rec, floor, 0)
	h.playback = &countingPlayback{PlaybackGate: speech.NewPlaybackGate(h.synth, player, floor, h.ttsOff.Load)}

	cfg := config.CoordinatorConfig{
		ClassifyTimeout:  time.Second,
		DispatchTimeout:  time.Second,
		DebounceInterval: 10 * time.Millisecond,
		DebounceMax:      500 * time.Millisecond,
	}
	h.c = New(cfg, Deps{
		Classifier: cls,
		Table:      table,
		Fallback:   h.fallback,
		Capture:    capture,
		Playback:   h.playback,
		Profile:    profile.NewStatic(profile.Profile{DisplayName: "Sam", Voice: "amy"}),
	})
	t.Cleanup(func() { _ = h.c.Close() })
	return h
}

func waitFor(t *testing.T, c *Coordinator, cond func(Snapshot) bool, msg string) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = c.Snapshot()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond, msg)
	return snap
}

func idleWithTurns(n int) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.State == Idle && len(s.Turns) == n && !s.Turns[n-1].Pending }
}

func lastText(s Snapshot) string { return s.Turns[len(s.Turns)-1].Text }

// --- scenarios ---

func TestScenario_WeatherHandled(t *testing.T) {
	table := action.NewTable()
	table.MustRegister(action.IntentWeather, action.Weather(fakeWeather{}))
	h := newHarness(t, respondWith(t, weatherPayload), table)

	require.NoError(t, h.c.Submit("what's the weather in Amman"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")

	assert.Equal(t, conversation.RoleUser, snap.Turns[0].Role)
	assert.Equal(t, "what's the weather in Amman", snap.Turns[0].Text)
	assert.Equal(t, conversation.RoleAssistant, snap.Turns[1].Role)
	assert.Equal(t, "Weather: clear, 21°C", lastText(snap))
	assert.EqualValues(t, 1, h.synth.calls.Load())
	assert.Zero(t, h.rec.started.Load(), "auto-continue is off")
}

func TestScenario_DeviceAlreadyOn(t *testing.T) {
	launcher := &actuator.LogLauncher{}
	panel := device.NewPanel(map[string]bool{"wifi": true}, launcher)
	table := action.NewDefaultTable(action.Actuators{Settings: panel})
	h := newHarness(t, respondWith(t, wifiPayload), table)

	require.NoError(t, h.c.Submit("turn on wifi"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, "WiFi is already ON", lastText(snap))
	assert.Empty(t, launcher.Launched())
}

func TestScenario_ClassifierTimeout(t *testing.T) {
	slow := classifierFunc(func(ctx context.Context, _ string) (*intent.Response, error) {
		<-ctx.Done()
		return nil, intent.NewClassificationError(intent.FailureNetwork, ctx.Err())
	})
	h := newHarness(t, slow, nil)
	h.c.cfg.ClassifyTimeout = 30 * time.Millisecond
	h.c.SetAutoContinue(true)

	require.NoError(t, h.c.Submit("what's the weather"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, MessageNetwork, lastText(snap))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.rec.started.Load(), "failed turns never resume listening")
	assert.Equal(t, Idle, h.c.Snapshot().State)
}

func TestClassify_IgnoringContextStillTimesOut(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	deaf := classifierFunc(func(context.Context, string) (*intent.Response, error) {
		<-stuck
		return &intent.Response{}, nil
	})
	h := newHarness(t, deaf, nil)
	h.c.cfg.ClassifyTimeout = 30 * time.Millisecond

	require.NoError(t, h.c.Submit("what's the weather"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, MessageNetwork, lastText(snap))
}

func stuckTable(stuck <-chan struct{}) *action.Table {
	table := action.NewTable()
	table.MustRegister("stuck", action.HandlerFunc(func(context.Context, intent.Intent) (action.Result, error) {
		<-stuck
		return action.Result{DisplayText: "too late", ShouldSpeak: true}, nil
	}))
	return table
}

func TestDispatch_HandlerIgnoringContextTimesOut(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	h := newHarness(t, respondWith(t, intentPayload("stuck")), stuckTable(stuck))
	h.c.cfg.DispatchTimeout = 50 * time.Millisecond

	require.NoError(t, h.c.Submit("go"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, MessageNetwork, lastText(snap))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, MessageNetwork, lastText(h.c.Snapshot()), "late result is dropped")
}

func TestCancel_NextTurnDoesNotWaitForStuckHandler(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	var calls atomic.Int32
	stuckFirst := respondWith(t, intentPayload("stuck"))
	thenChat := respondWith(t, noIntentPayload)
	cls := classifierFunc(func(ctx context.Context, text string) (*intent.Response, error) {
		if calls.Add(1) == 1 {
			return stuckFirst(ctx, text)
		}
		return thenChat(ctx, text)
	})
	h := newHarness(t, cls, stuckTable(stuck))
	h.c.cfg.DispatchTimeout = time.Minute

	require.NoError(t, h.c.Submit("go"))
	waitFor(t, h.c, func(s Snapshot) bool { return s.State == Dispatching }, "handler running")

	h.c.Cancel()
	require.NoError(t, h.c.Submit("hello"))
	snap := waitFor(t, h.c, idleWithTurns(3), "second turn completes")
	assert.Equal(t, "go", snap.Turns[0].Text)
	assert.Equal(t, "hello", snap.Turns[1].Text)
	assert.Equal(t, "Here's one.", lastText(snap))
}

func TestScenario_FallbackGetsHistory(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)

	require.NoError(t, h.c.Submit("hello"))
	waitFor(t, h.c, idleWithTurns(2), "first turn")
	require.NoError(t, h.c.Submit("tell me a joke"))
	snap := waitFor(t, h.c, idleWithTurns(4), "second turn")

	calls, history, prompt, user := h.fallback.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, "tell me a joke", prompt)
	assert.Equal(t, "Sam", user)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "Here's one.", history[1].Text)
	assert.Equal(t, "Here's one.", lastText(snap))
}

func TestScenario_AutoContinueResumesListening(t *testing.T) {
	table := action.NewTable()
	table.MustRegister(action.IntentWeather, action.Weather(fakeWeather{}))
	h := newHarness(t, respondWith(t, weatherPayload), table)
	h.c.SetAutoContinue(true)

	require.NoError(t, h.c.Submit("what's the weather in Amman"))
	start := time.Now()
	snap := waitFor(t, h.c, func(s Snapshot) bool { return s.State == AutoListening && s.Listening }, "listening resumes")
	assert.Less(t, time.Since(start), h.c.cfg.DebounceMax)
	assert.False(t, snap.Turns[len(snap.Turns)-1].Pending)

	// The recognized transcript becomes the next turn.
	h.rec.texts <- "and tomorrow"
	snap = waitFor(t, h.c, func(s Snapshot) bool { return len(s.Turns) >= 3 }, "transcript submitted")
	assert.Equal(t, "and tomorrow", snap.Turns[2].Text)
}

// --- properties ---

func TestSubmit_RejectedInputLeavesLogUnchanged(t *testing.T) {
	release := make(chan struct{})
	blocking := classifierFunc(func(ctx context.Context, _ string) (*intent.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &intent.Response{}, nil
	})
	h := newHarness(t, blocking, nil)

	assert.ErrorIs(t, h.c.Submit("   "), ErrBlankInput)
	assert.Empty(t, h.c.Snapshot().Turns)

	require.NoError(t, h.c.Submit("first"))
	before := len(h.c.Snapshot().Turns)
	assert.ErrorIs(t, h.c.Submit("second"), ErrTurnInFlight)
	assert.Len(t, h.c.Snapshot().Turns, before)

	close(release)
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, "first", snap.Turns[0].Text)
}

func TestTurns_OneAssistantTurnPerUserTurn(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.c.Submit("again"))
		waitFor(t, h.c, idleWithTurns(2*(i+1)), "turn completes")
	}
	snap := h.c.Snapshot()
	for i, turn := range snap.Turns {
		want := conversation.RoleUser
		if i%2 == 1 {
			want = conversation.RoleAssistant
		}
		assert.Equal(t, want, turn.Role)
		assert.False(t, turn.Pending)
	}
}

func TestCancel_IdleIsNoOp(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	before := h.c.Snapshot()
	h.c.Cancel()
	h.c.Cancel()
	assert.Equal(t, before, h.c.Snapshot())
}

func TestCancel_DiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	stubborn := classifierFunc(func(context.Context, string) (*intent.Response, error) {
		<-release
		return &intent.Response{}, nil
	})
	h := newHarness(t, stubborn, nil)
	defer close(release)

	require.NoError(t, h.c.Submit("hello"))
	require.Len(t, h.c.Snapshot().Turns, 2)

	h.c.Cancel()
	snap := h.c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	require.Len(t, snap.Turns, 1, "placeholder removed")
	assert.Equal(t, "hello", snap.Turns[0].Text)

	release <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.c.Snapshot().Turns, 1)
	calls, _, _, _ := h.fallback.snapshot()
	assert.Zero(t, calls)
}

func TestPlayback_NotCalledWhenShouldSpeakFalse(t *testing.T) {
	table := action.NewTable()
	table.MustRegister("silent", action.HandlerFunc(func(context.Context, intent.Intent) (action.Result, error) {
		return action.Result{DisplayText: "Done."}, nil
	}))
	h := newHarness(t, respondWith(t, intentPayload("silent")), table)

	require.NoError(t, h.c.Submit("do it quietly"))
	snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
	assert.Equal(t, "Done.", lastText(snap))
	assert.Zero(t, h.playback.speaks.Load())
	assert.Zero(t, h.synth.calls.Load())
}

func TestPlayback_TTSDisabledStillResumes(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	h.ttsOff.Store(true)
	h.c.SetAutoContinue(true)

	require.NoError(t, h.c.Submit("hi"))
	waitFor(t, h.c, func(s Snapshot) bool { return s.State == AutoListening && s.Listening }, "listening resumes")
	assert.EqualValues(t, 1, h.playback.speaks.Load())
	assert.Zero(t, h.synth.calls.Load())
}

func TestDispatch_FailuresBecomeReplies(t *testing.T) {
	table := action.NewTable()
	table.MustRegister("boom", action.HandlerFunc(func(context.Context, intent.Intent) (action.Result, error) {
		panic("nil actuator")
	}))
	table.MustRegister("ask", action.HandlerFunc(func(context.Context, intent.Intent) (action.Result, error) {
		return action.Result{}, &action.DispatchError{Kind: action.MissingSlot, Intent: "ask", Slot: "when", Prompt: "When should I remind you?"}
	}))
	table.MustRegister("broken", action.HandlerFunc(func(context.Context, intent.Intent) (action.Result, error) {
		return action.Result{}, errors.New("disk full")
	}))

	tests := []struct {
		intent string
		want   string
	}{
		{"boom", MessageFailed},
		{"ask", "When should I remind you?"},
		{"broken", MessageFailed},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			h := newHarness(t, respondWith(t, intentPayload(tt.intent)), table)
			h.c.SetAutoContinue(true)
			require.NoError(t, h.c.Submit("go"))
			snap := waitFor(t, h.c, idleWithTurns(2), "turn completes")
			assert.Equal(t, tt.want, lastText(snap))
			assert.Zero(t, h.rec.started.Load())
		})
	}
}

func TestFailureResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", intent.NewClassificationError(intent.FailureNetwork, errors.New("refused")), MessageNetwork},
		{"parse", intent.NewClassificationError(intent.FailureParse, errors.New("bad json")), MessageParse},
		{"deadline", context.DeadlineExceeded, MessageNetwork},
		{"prompt", &action.DispatchError{Kind: action.PermissionDenied, Prompt: "No access."}, "No access."},
		{"other", errors.New("x"), MessageFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := failureResult(tt.err)
			assert.Equal(t, tt.want, res.DisplayText)
			assert.True(t, res.ShouldSpeak)
			assert.False(t, res.ResumeListening)
		})
	}
}

// --- mic, reset, observation ---

func TestToggleMic(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)

	snap, err := h.c.ToggleMic()
	require.NoError(t, err)
	assert.True(t, snap.AutoContinue)
	assert.Equal(t, AutoListening, snap.State)
	waitFor(t, h.c, func(s Snapshot) bool { return s.Listening }, "microphone opens")

	snap, err = h.c.ToggleMic()
	require.NoError(t, err)
	assert.False(t, snap.AutoContinue)
	snap = waitFor(t, h.c, func(s Snapshot) bool { return s.State == Idle && !s.Listening }, "microphone closes")
	assert.Contains(t, snap.Alert, "no match")
	assert.Empty(t, snap.Turns)
}

func TestSubmit_WhileListeningClosesMicrophone(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	_, err := h.c.ToggleMic()
	require.NoError(t, err)
	waitFor(t, h.c, func(s Snapshot) bool { return s.Listening }, "microphone opens")

	require.NoError(t, h.c.Submit("typed instead"))
	snap := waitFor(t, h.c, func(s Snapshot) bool {
		return len(s.Turns) == 2 && !s.Turns[1].Pending && s.State == AutoListening && s.Listening
	}, "turn completes and listening resumes")
	assert.Equal(t, "typed instead", snap.Turns[0].Text)
	assert.Empty(t, snap.Alert)
}

func TestReset(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	h.c.SetAutoContinue(true)
	require.NoError(t, h.c.Submit("hi"))
	waitFor(t, h.c, func(s Snapshot) bool { return s.Listening }, "listening resumes")

	h.c.Reset()
	snap := waitFor(t, h.c, func(s Snapshot) bool { return !s.Listening }, "microphone closes")
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.AutoContinue)
	assert.Empty(t, snap.Turns)
}

func TestSnapshots_NeverListeningAndSpeaking(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	snaps, cancel := h.c.Subscribe(64)
	defer cancel()

	var overlap atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range snaps {
			if s.Listening && s.Speaking {
				overlap.Store(true)
			}
		}
	}()

	h.c.SetAutoContinue(true)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.c.Submit("hello"))
		waitFor(t, h.c, func(s Snapshot) bool { return s.State == AutoListening && s.Listening }, "listening resumes")
	}
	cancel()
	<-done
	assert.False(t, overlap.Load())
}

func TestCancel_DuringSpeechStopsPlayback(t *testing.T) {
	player := &holdingPlayer{started: make(chan struct{}, 1)}
	h := newHarnessWithPlayer(t, respondWith(t, noIntentPayload), nil, player)
	h.c.SetAutoContinue(true)

	require.NoError(t, h.c.Submit("tell me a joke"))
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}
	snap := h.c.Snapshot()
	require.Equal(t, AwaitingSpeech, snap.State)
	require.True(t, snap.Speaking)

	h.c.Cancel()
	snap = h.c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.Speaking)
	assert.False(t, h.playback.Active())
	require.Len(t, snap.Turns, 2, "the resolved reply stays")
	assert.Equal(t, "Here's one.", snap.Turns[1].Text)
	assert.False(t, snap.Turns[1].Pending)
	assert.Empty(t, snap.Alert)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.rec.started.Load(), "cancelled turns do not resume listening")
	assert.Equal(t, Idle, h.c.Snapshot().State)
}

func TestSnapshots_NeverListeningAndSpeakingUnderConcurrentControl(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	snaps, unsubscribe := h.c.Subscribe(64)

	var overlap atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range snaps {
			if s.Listening && s.Speaking {
				overlap.Store(true)
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				switch (w + i) % 3 {
				case 0:
					h.c.Cancel()
				case 1:
					_, _ = h.c.ToggleMic()
				case 2:
					_ = h.c.Submit("hello")
				}
				if s := h.c.Snapshot(); s.Listening && s.Speaking {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
			}
		}(w)
	}
	wg.Wait()

	h.c.SetAutoContinue(false)
	h.c.Cancel()
	snap := waitFor(t, h.c, func(s Snapshot) bool {
		return s.State == Idle && !s.Listening && !s.Speaking
	}, "coordinator settles")
	for _, turn := range snap.Turns {
		assert.False(t, turn.Pending, "no placeholder left behind")
	}

	unsubscribe()
	<-done
	assert.False(t, overlap.Load())
}

func TestClose(t *testing.T) {
	h := newHarness(t, respondWith(t, noIntentPayload), nil)
	snaps, _ := h.c.Subscribe(4)
	require.NoError(t, h.c.Close())
	require.NoError(t, h.c.Close())

	for range snaps {
	}
	assert.ErrorIs(t, h.c.Submit("hi"), ErrClosed)
	_, err := h.c.ToggleMic()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestState_MarshalText(t *testing.T) {
	b, err := json.Marshal(Snapshot{State: AwaitingSpeech})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"awaiting_speech"`)
}

func TestState_UnmarshalText(t *testing.T) {
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"state":"auto_listening"}`), &snap))
	assert.Equal(t, AutoListening, snap.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"sleeping"}`), &snap))
}
