// Package config handles loading and validating the parley configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the parley daemon.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Transports  TransportsConfig  `mapstructure:"transports"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Fallback    FallbackConfig    `mapstructure:"fallback"`
	Speech      SpeechConfig      `mapstructure:"speech"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Profile     ProfileConfig     `mapstructure:"profile"`
	Actuators   ActuatorsConfig   `mapstructure:"actuators"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ClassifierConfig configures intent classification.
type ClassifierConfig struct {
	Wit WitConfig `mapstructure:"wit"`
}

// WitConfig holds Wit.ai settings.
type WitConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
	Version  string `mapstructure:"version"` // API version date, e.g. "20240304"
}

// FallbackConfig selects and configures the generative fallback backend.
type FallbackConfig struct {
	Backend    string         `mapstructure:"backend"` // "openai" or "local"
	Persona    string         `mapstructure:"persona"` // system prompt; %s is replaced by the user's name
	MaxHistory int            `mapstructure:"max_history"`
	OpenAI     OpenAIConfig   `mapstructure:"openai"`
	Local      LocalLLMConfig `mapstructure:"local"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// LocalLLMConfig holds self-hosted LLM settings.
type LocalLLMConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Model       string  `mapstructure:"model"` // Ollama model name (e.g., "llama3.2:1b")
	Temperature float64 `mapstructure:"temperature"`
}

// SpeechConfig groups the capture and playback gates.
type SpeechConfig struct {
	Capture  CaptureConfig  `mapstructure:"capture"`
	Playback PlaybackConfig `mapstructure:"playback"`
}

// CaptureConfig configures microphone capture and transcription.
type CaptureConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	SampleRate  int           `mapstructure:"sample_rate"`
	Whisper     WhisperConfig `mapstructure:"whisper"`
}

// WhisperConfig holds transcription endpoint settings.
type WhisperConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Type      string `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	Language  string `mapstructure:"language"` // ISO-639-1 hint (e.g., "en", "fr")
	VADFilter bool   `mapstructure:"vad_filter"`
}

// PlaybackConfig selects and configures text-to-speech output.
type PlaybackConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. If both are set, Endpoints takes
// precedence and Endpoint is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
	Language  string            `mapstructure:"language"`  // default language when a request names none
}

// CoordinatorConfig tunes the turn state machine.
type CoordinatorConfig struct {
	ClassifyTimeout  time.Duration `mapstructure:"classify_timeout"`
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout"`
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	DebounceMax      time.Duration `mapstructure:"debounce_max"`
	AutoContinue     bool          `mapstructure:"auto_continue"`
}

// ProfileConfig seeds the user profile.
type ProfileConfig struct {
	DisplayName string `mapstructure:"display_name"`
	Voice       string `mapstructure:"voice"`
	Language    string `mapstructure:"language"`
	TTSDisabled bool   `mapstructure:"tts_disabled"`
}

// ActuatorsConfig configures the side-effect backends used by intent handlers.
type ActuatorsConfig struct {
	DBPath          string          `mapstructure:"db_path"`
	WeatherEndpoint string          `mapstructure:"weather_endpoint"`
	Launcher        string          `mapstructure:"launcher"` // command used to open URIs; empty logs them
	MapsURL         string          `mapstructure:"maps_url"`
	Devices         map[string]bool `mapstructure:"devices"` // feature -> initial enabled state
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./parley.yaml, ./configs/parley.yaml, /etc/parley/parley.yaml.
// A .env file in the working directory, when present, is loaded first.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/parley")
	}

	// Environment variables: PARLEY_SERVER_HEALTH_PORT, PARLEY_FALLBACK_BACKEND, etc.
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.Classifier.Wit.Token = resolveEnvRef(cfg.Classifier.Wit.Token)
	cfg.Fallback.OpenAI.APIKey = resolveEnvRef(cfg.Fallback.OpenAI.APIKey)
	cfg.Speech.Capture.Whisper.APIKey = resolveEnvRef(cfg.Speech.Capture.Whisper.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("classifier.wit.endpoint", "https://api.wit.ai")
	v.SetDefault("classifier.wit.version", "20240304")
	v.SetDefault("fallback.backend", "openai")
	v.SetDefault("fallback.max_history", 20)
	v.SetDefault("fallback.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("fallback.openai.model", "gpt-4o-mini")
	v.SetDefault("fallback.openai.temperature", 0.7)
	v.SetDefault("fallback.local.endpoint", "http://localhost:11434/api/chat")
	v.SetDefault("fallback.local.model", "llama3")
	v.SetDefault("fallback.local.temperature", 0.7)
	v.SetDefault("speech.capture.enabled", false)
	v.SetDefault("speech.capture.max_duration", 15*time.Second)
	v.SetDefault("speech.capture.sample_rate", 16000)
	v.SetDefault("speech.capture.whisper.endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("speech.capture.whisper.type", "openai")
	v.SetDefault("speech.capture.whisper.model", "whisper-1")
	v.SetDefault("speech.playback.enabled", false)
	v.SetDefault("speech.playback.piper.endpoint", "localhost:10200")
	v.SetDefault("speech.playback.piper.language", "en")
	v.SetDefault("coordinator.classify_timeout", 12*time.Second)
	v.SetDefault("coordinator.dispatch_timeout", 15*time.Second)
	v.SetDefault("coordinator.debounce_interval", 250*time.Millisecond)
	v.SetDefault("coordinator.debounce_max", 5*time.Second)
	v.SetDefault("coordinator.auto_continue", false)
	v.SetDefault("profile.display_name", "")
	v.SetDefault("profile.voice", "")
	v.SetDefault("profile.language", "en")
	v.SetDefault("profile.tts_disabled", false)
	v.SetDefault("actuators.db_path", "parley.db")
	v.SetDefault("actuators.weather_endpoint", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("actuators.launcher", "")
	v.SetDefault("actuators.maps_url", "https://www.google.com/maps/dir/")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Fallback.Backend {
	case "openai", "local":
	default:
		return fmt.Errorf("unknown fallback backend %q (expected openai or local)", c.Fallback.Backend)
	}
	switch c.Speech.Capture.Whisper.Type {
	case "", "openai", "asr":
	default:
		return fmt.Errorf("unknown whisper type %q (expected openai or asr)", c.Speech.Capture.Whisper.Type)
	}
	if c.Coordinator.ClassifyTimeout <= 0 || c.Coordinator.DispatchTimeout <= 0 {
		return fmt.Errorf("coordinator timeouts must be positive")
	}
	if c.Coordinator.DebounceInterval <= 0 || c.Coordinator.DebounceMax < c.Coordinator.DebounceInterval {
		return fmt.Errorf("coordinator debounce_max must be at least debounce_interval")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
