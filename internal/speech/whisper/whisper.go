// Package whisper implements speech.Recognizer by recording an utterance and
// sending it to a Whisper-compatible transcription endpoint.
//
// Two endpoint flavors are supported:
//   - "openai": OpenAI-compatible API (api.openai.com, whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/speech"
)

// Recorder captures audio until finish is closed or ctx is cancelled.
type Recorder interface {
	Record(ctx context.Context, finish <-chan struct{}) (*speech.Audio, error)
}

// annotationRE matches non-speech annotations such as "[BLANK_AUDIO]" or
// "(music)" that Whisper emits for silence.
var annotationRE = regexp.MustCompile(`\[.*?\]|\(.*?\)`)

// Transcriber sends WAV audio to a transcription endpoint.
type Transcriber struct {
	endpoint  string
	flavor    string // "openai" or "asr"
	apiKey    string
	model     string
	language  string
	vadFilter bool
	client    *http.Client
}

// NewTranscriber creates a Transcriber from config.
func NewTranscriber(cfg config.WhisperConfig) *Transcriber {
	flavor := cfg.Type
	if flavor == "" {
		flavor = "openai"
	}
	return &Transcriber{
		endpoint:  cfg.Endpoint,
		flavor:    flavor,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		language:  cfg.Language,
		vadFilter: cfg.VADFilter,
		client:    &http.Client{},
	}
}

// Transcribe returns the text spoken in wav.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch t.flavor {
	case "asr":
		text, err = t.transcribeASR(ctx, wav)
	default:
		text, err = t.transcribeOpenAI(ctx, wav)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(annotationRE.ReplaceAllString(text, ""))
	slog.Debug("transcription complete", "flavor", t.flavor, "text_length", len(text))
	return text, nil
}

// transcribeASR handles the ahmetoner/whisper-asr-webservice format.
func (t *Transcriber) transcribeASR(ctx context.Context, wav []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	writer.Close()

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if t.language != "" {
		q.Set("language", t.language)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?"+q.Encode(), body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return t.do(req)
}

// transcribeOpenAI handles OpenAI-compatible endpoints.
func (t *Transcriber) transcribeOpenAI(ctx context.Context, wav []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if t.model != "" {
		_ = writer.WriteField("model", t.model)
	}
	if t.language != "" {
		_ = writer.WriteField("language", t.language)
	}
	_ = writer.WriteField("response_format", "json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return t.do(req)
}

func (t *Transcriber) do(req *http.Request) (string, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}
	return result.Text, nil
}

// Recognizer records one utterance and transcribes it.
type Recognizer struct {
	recorder    Recorder
	transcriber *Transcriber
}

// NewRecognizer combines a recorder and a transcriber.
func NewRecognizer(rec Recorder, tr *Transcriber) *Recognizer {
	return &Recognizer{recorder: rec, transcriber: tr}
}

// Recognize records until finish (or ctx) and returns the transcript.
func (r *Recognizer) Recognize(ctx context.Context, finish <-chan struct{}) (string, error) {
	audio, err := r.recorder.Record(ctx, finish)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if len(audio.PCM) == 0 {
		return "", speech.ErrNoMatch
	}
	text, err := r.transcriber.Transcribe(ctx, audio.WAV())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &speech.CaptureError{Reason: speech.ReasonNetwork, Err: err}
	}
	return text, nil
}
