package audio

import (
	"bytes"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parley/internal/speech"
)

func drain(s beep.Streamer) int {
	buf := make([][2]float64, 256)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			return total
		}
	}
}

func TestStreamerFor_SameRate(t *testing.T) {
	a := &speech.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1, Width: 2}
	s, err := streamerFor(a, 16000)
	require.NoError(t, err)
	assert.Equal(t, 160, drain(s))
}

func TestStreamerFor_Resamples(t *testing.T) {
	a := &speech.Audio{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1, Width: 2}
	s, err := streamerFor(a, 32000)
	require.NoError(t, err)
	assert.InDelta(t, 3200, drain(s), 64)
}

func TestAppendSamples(t *testing.T) {
	var buf bytes.Buffer
	appendSamples(&buf, []int16{1, -1})
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, buf.Bytes())
}

func TestNewMicrophone_Defaults(t *testing.T) {
	m := NewMicrophone(0, 0)
	assert.Equal(t, 16000, m.sampleRate)
	assert.Equal(t, 60*16000*2, m.maxBytes)
}
