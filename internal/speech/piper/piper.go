// Package piper implements speech.Synthesizer using a Piper Wyoming protocol
// server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200.
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/speech"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"ar": "ar_JO-kareem-medium",
}

// Synthesizer implements speech.Synthesizer over Wyoming.
type Synthesizer struct {
	endpoint  string            // default host:port of the Piper Wyoming server
	endpoints map[string]string // language -> host:port for per-language instances
	voices    map[string]string // language -> voice name
	language  string            // used when a request names none
}

// New creates a Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := make(map[string]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = cleanEndpoint(ep)
	}

	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Synthesizer{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		language:  lang,
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// Synthesize sends text to the Piper server and returns the raw PCM it
// streams back.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts speech.SynthesizeOpts) (*speech.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	lang := opts.Language
	if lang == "" {
		lang = s.language
	}
	voice := opts.Voice
	if voice == "" {
		voice = s.voices[lang]
	}
	if voice == "" {
		voice = s.voices["en"]
	}

	endpoint := s.endpoints[lang]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", lang)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", voice, "language", lang, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
	// Unblock reads promptly when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	synthEvent := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeEvent(conn, synthEvent, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start → audio-chunk* → audio-stop
	r := bufio.NewReader(conn)
	audio := &speech.Audio{SampleRate: 22050, Channels: 1, Width: 2}
	var pcm bytes.Buffer
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				audio.SampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				audio.Channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				audio.Width = int(w)
			}

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			audio.PCM = pcm.Bytes()
			slog.Debug("piper audio-stop", "pcm_bytes", len(audio.PCM), "rate", audio.SampleRate)
			return audio, nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// --- Wyoming protocol helpers ---

type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// writeEvent sends a Wyoming event over the connection.
func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(jsonBytes), len(payload))
	buf.Write(jsonBytes)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads one Wyoming event.
func readEvent(r *bufio.Reader) (*wyomingEvent, []byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	parts := strings.Fields(header)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", header)
	}
	jsonLen, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	// JSON plus its trailing newline.
	jsonBuf := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(jsonBuf[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
