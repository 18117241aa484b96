package speech

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloor(t *testing.T) {
	f := NewFloor()
	require.NoError(t, f.Acquire(Microphone))
	assert.ErrorIs(t, f.Acquire(Microphone), ErrFloorBusy, "not re-entrant for the same holder")
	assert.ErrorIs(t, f.Acquire(Speaker), ErrFloorBusy)

	f.Release(Speaker)
	assert.Equal(t, Microphone, f.Holder(), "only the holder can release")

	f.Release(Microphone)
	assert.Equal(t, Nobody, f.Holder())
	require.NoError(t, f.Acquire(Speaker))
}

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 100)
	wav := EncodeWAV(pcm, 16000, 1, 2)
	require.Len(t, wav, 144)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(136), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(wav[40:44]))

	a := &Audio{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1, Width: 2}
	assert.InDelta(t, 1.0, a.Duration(), 1e-9)
	assert.Len(t, a.WAV(), 32044)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Weather: clear, 21°C", "Weather: clear, 21°C"},
		{"markdown", "**Hello** _there_ `code` ~~gone~~", "Hello there code gone"},
		{"link", "See [the docs](https://example.com) now.", "See the docs now."},
		{"html", "<b>bold</b> text", "bold text"},
		{"table", "| a | b |\n|---|---|\n| 1 | 2 |", "a b\n1 2"},
		{"header", "# Title\nBody", "Title\nBody"},
		{"empty", "  ** ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hello there. How are you today? I am **fine**!")
	assert.Equal(t, []string{"Hello there.", "How are you today?", "I am fine!"}, got)

	assert.Equal(t, []string{"Weather: clear, 21°C"}, SplitSentences("Weather: clear, 21°C"))
	assert.Empty(t, SplitSentences("   "))
}
