// Package audio binds the speech gates to the local sound hardware: a
// PortAudio microphone for capture and a beep speaker for playback.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/nadzzz/parley/internal/speech"
)

const framesPerBuffer = 512

// Microphone records mono 16-bit PCM from the default input device.
type Microphone struct {
	sampleRate int
	maxBytes   int
	logger     *slog.Logger
}

// NewMicrophone creates a microphone sampling at sampleRate. Recordings are
// truncated at maxDuration (0 means 60s).
func NewMicrophone(sampleRate int, maxDuration time.Duration) *Microphone {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if maxDuration <= 0 {
		maxDuration = time.Minute
	}
	return &Microphone{
		sampleRate: sampleRate,
		maxBytes:   int(maxDuration.Seconds() * float64(sampleRate) * 2),
		logger:     slog.Default().With("component", "microphone"),
	}
}

// Record captures audio until finish is closed. Cancelling ctx abandons the
// recording and returns ctx.Err().
func (m *Microphone) Record(ctx context.Context, finish <-chan struct{}) (*speech.Audio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w: %w", speech.ErrDeviceBusy, err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			m.logger.Warn("portaudio terminate", "error", err)
		}
	}()

	in := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(in), in)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w: %w", speech.ErrDeviceBusy, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting microphone: %w: %w", speech.ErrDeviceBusy, err)
	}
	defer stream.Stop()

	var pcm bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-finish:
			m.logger.Debug("recording finished", "pcm_bytes", pcm.Len())
			return &speech.Audio{PCM: pcm.Bytes(), SampleRate: m.sampleRate, Channels: 1, Width: 2}, nil
		default:
		}

		if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if pcm.Len() < m.maxBytes {
			appendSamples(&pcm, in)
		}
	}
}

func appendSamples(buf *bytes.Buffer, samples []int16) {
	_ = binary.Write(buf, binary.LittleEndian, samples)
}
