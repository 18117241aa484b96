// Package app assembles a running assistant from configuration: actuators,
// classifier, fallback, speech gates, the coordinator and its transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/actuator"
	"github.com/nadzzz/parley/internal/actuator/device"
	"github.com/nadzzz/parley/internal/actuator/maps"
	"github.com/nadzzz/parley/internal/actuator/openmeteo"
	"github.com/nadzzz/parley/internal/actuator/sqlstore"
	"github.com/nadzzz/parley/internal/audio"
	"github.com/nadzzz/parley/internal/config"
	"github.com/nadzzz/parley/internal/coordinator"
	"github.com/nadzzz/parley/internal/fallback"
	"github.com/nadzzz/parley/internal/health"
	"github.com/nadzzz/parley/internal/intent/wit"
	"github.com/nadzzz/parley/internal/llm"
	"github.com/nadzzz/parley/internal/llm/local"
	"github.com/nadzzz/parley/internal/llm/openai"
	"github.com/nadzzz/parley/internal/profile"
	"github.com/nadzzz/parley/internal/speech"
	"github.com/nadzzz/parley/internal/speech/piper"
	"github.com/nadzzz/parley/internal/speech/whisper"
	"github.com/nadzzz/parley/internal/transport"
	grpctransport "github.com/nadzzz/parley/internal/transport/grpc"
	httptransport "github.com/nadzzz/parley/internal/transport/http"
)

var _ transport.Assistant = (*coordinator.Coordinator)(nil)

// ErrNoTransports is returned by Serve when every transport is disabled.
var ErrNoTransports = errors.New("no transports enabled, enable at least one in config")

// App owns the coordinator and the resources behind it.
type App struct {
	Coordinator *coordinator.Coordinator
	Profile     *profile.Static

	cfg   *config.Config
	store *sqlstore.Store
}

// New builds the assistant described by cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := sqlstore.Open(ctx, cfg.Actuators.DBPath)
	if err != nil {
		return nil, err
	}

	launcher := actuator.NewLauncher(cfg.Actuators.Launcher)
	table := action.NewDefaultTable(action.Actuators{
		Settings:  device.NewPanel(cfg.Actuators.Devices, launcher),
		Calendar:  store,
		Scheduler: store,
		Maps:      maps.New(cfg.Actuators.MapsURL, launcher),
		Weather:   openmeteo.New(cfg.Actuators.WeatherEndpoint),
	})

	client, err := newLLM(cfg.Fallback)
	if err != nil {
		store.Close()
		return nil, err
	}
	slog.Info("fallback configured", "backend", client.Name())

	prof := profile.NewStatic(profile.Profile{
		DisplayName: cfg.Profile.DisplayName,
		Voice:       cfg.Profile.Voice,
		Language:    cfg.Profile.Language,
		TTSDisabled: cfg.Profile.TTSDisabled,
	})

	floor := speech.NewFloor()
	capture := speech.NewCaptureGate(newRecognizer(cfg.Speech.Capture), floor, cfg.Speech.Capture.MaxDuration)

	playbackEnabled := cfg.Speech.Playback.Enabled
	playback := speech.NewPlaybackGate(
		piper.New(cfg.Speech.Playback.Piper),
		audio.NewSpeaker(0),
		floor,
		func() bool {
			p, err := prof.Current(context.Background())
			return !playbackEnabled || err != nil || p.TTSDisabled
		},
	)

	coord := coordinator.New(cfg.Coordinator, coordinator.Deps{
		Classifier: wit.New(cfg.Classifier.Wit),
		Table:      table,
		Fallback:   fallback.New(client, cfg.Fallback.Persona, cfg.Fallback.MaxHistory),
		Capture:    capture,
		Playback:   playback,
		Profile:    prof,
	})

	return &App{
		Coordinator: coord,
		Profile:     prof,
		cfg:         cfg,
		store:       store,
	}, nil
}

func newLLM(cfg config.FallbackConfig) (llm.Client, error) {
	switch cfg.Backend {
	case "openai":
		return openai.New(cfg.OpenAI), nil
	case "local":
		return local.New(cfg.Local), nil
	default:
		return nil, fmt.Errorf("unknown fallback backend %q", cfg.Backend)
	}
}

func newRecognizer(cfg config.CaptureConfig) speech.Recognizer {
	if !cfg.Enabled {
		slog.Info("speech capture disabled")
		return speech.DisabledRecognizer{}
	}
	slog.Info("speech capture enabled",
		"whisper", cfg.Whisper.Endpoint,
		"type", cfg.Whisper.Type,
		"sample_rate", cfg.SampleRate)
	return whisper.NewRecognizer(
		audio.NewMicrophone(cfg.SampleRate, cfg.MaxDuration),
		whisper.NewTranscriber(cfg.Whisper),
	)
}

// Transports returns the transports enabled in the configuration.
func (a *App) Transports() []transport.Transport {
	var ts []transport.Transport
	if a.cfg.Transports.GRPC.Enabled {
		ts = append(ts, grpctransport.New(a.cfg.Transports.GRPC.Port))
	}
	if a.cfg.Transports.HTTP.Enabled {
		ts = append(ts, httptransport.New(a.cfg.Transports.HTTP.Port))
	}
	return ts
}

// Serve runs the health server and every enabled transport until ctx is
// cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	transports := a.Transports()
	if len(transports) == 0 {
		return ErrNoTransports
	}

	g, ctx := errgroup.WithContext(ctx)

	hs := health.New(a.cfg.Server.HealthPort, func() string {
		return a.Coordinator.Snapshot().State.String()
	})
	g.Go(func() error { return hs.ListenAndServe(ctx) })

	for _, t := range transports {
		g.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, a.Coordinator); err != nil {
				return fmt.Errorf("%s transport: %w", t.Name(), err)
			}
			return nil
		})
	}

	hs.SetReady(true)
	slog.Info("parley ready",
		"transports", len(transports),
		"health_port", a.cfg.Server.HealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	hs.SetReady(false)
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}
	return g.Wait()
}

// Close stops the coordinator and releases the store.
func (a *App) Close() error {
	return errors.Join(a.Coordinator.Close(), a.store.Close())
}
