package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/nadzzz/parley/internal/speech"
)

// Speaker plays PCM through the default output device. The device is opened
// once at a fixed rate; audio at other rates is resampled.
type Speaker struct {
	rate   beep.SampleRate
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewSpeaker creates a speaker that opens the device at sampleRate on first use.
func NewSpeaker(sampleRate int) *Speaker {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Speaker{
		rate:   beep.SampleRate(sampleRate),
		logger: slog.Default().With("component", "speaker"),
	}
}

// Play blocks until a has been played or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, a *speech.Audio) error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(s.rate, s.rate.N(time.Second/10))
	})
	if s.initErr != nil {
		return fmt.Errorf("initializing speaker: %w", s.initErr)
	}

	streamer, err := streamerFor(a, s.rate)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamer, beep.Callback(func() {
		close(done)
	}))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		s.logger.Debug("playback interrupted")
		return ctx.Err()
	}
}

// streamerFor decodes a into a streamer at the output rate.
func streamerFor(a *speech.Audio, rate beep.SampleRate) (beep.Streamer, error) {
	decoded, format, err := wav.Decode(bytes.NewReader(a.WAV()))
	if err != nil {
		return nil, fmt.Errorf("decoding audio: %w", err)
	}
	if format.SampleRate == rate {
		return decoded, nil
	}
	return beep.Resample(4, format.SampleRate, rate, decoded), nil
}
