// Package speech owns the two audio gates of the assistant: the capture gate
// that turns microphone input into a transcript, and the playback gate that
// speaks text aloud. Both gates share a Floor so the microphone and the
// speaker are never active at the same time.
//
// Each gate session ends with exactly one terminal event delivered on the
// channel returned when the session starts.
package speech

import (
	"context"
	"fmt"
)

// State is the lifecycle of a capture or playback gate. A failed session is
// reported through its terminal event; the gate itself goes straight back to
// Idle.
type State int

const (
	Idle State = iota
	Active
	Completing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completing:
		return "completing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Audio is a block of signed 16-bit little-endian PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Width      int // bytes per sample
}

// WAV wraps the PCM in a WAV container.
func (a *Audio) WAV() []byte {
	return EncodeWAV(a.PCM, a.SampleRate, a.Channels, a.Width)
}

// Duration returns the playback length in seconds.
func (a *Audio) Duration() float64 {
	frame := a.Channels * a.Width
	if frame == 0 || a.SampleRate == 0 {
		return 0
	}
	return float64(len(a.PCM)/frame) / float64(a.SampleRate)
}

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr") used to pick a voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*Audio, error)
}

// Player renders audio on an output device. Play blocks until playback ends
// or ctx is cancelled, in which case output stops promptly.
type Player interface {
	Play(ctx context.Context, a *Audio) error
}

// Recognizer captures one utterance and returns its transcript. Recording
// ends when finish is closed (the engine then transcribes what it has) or when
// ctx is cancelled (the session is abandoned and ctx.Err() is returned).
type Recognizer interface {
	Recognize(ctx context.Context, finish <-chan struct{}) (string, error)
}
