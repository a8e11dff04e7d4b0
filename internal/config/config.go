// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"dictation-orchestrator/internal/service/audio"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/stt/google"
)

// Local engine providers.
const (
	LocalFallback = "fallback"
	LocalMock     = "mock"
)

// Cloud engine providers.
const (
	CloudNone   = "none"
	CloudMock   = "mock"
	CloudGoogle = "google"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Engine        orchestrator.EngineConfig          `envPrefix:"ENGINE_"`
	Session       orchestrator.RealtimeSessionConfig `envPrefix:"SESSION_"`
	STT           STTConfig                          `envPrefix:"STT_"`
	StreamLimits  audio.StreamLimits                 `envPrefix:"STREAM_"`
	Kafka         KafkaConfig                        `envPrefix:"KAFKA_"`
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal       string        `env:"SERVICE_PRINCIPAL" envDefault:"svc-dictation-orchestrator"`
	GRPCPort        string        `env:"GRPC_PORT" envDefault:"50051"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// STTConfig selects the speech engines.
type STTConfig struct {
	LocalProvider string        `env:"LOCAL_PROVIDER" envDefault:"fallback"`
	CloudProvider string        `env:"CLOUD_PROVIDER" envDefault:"none"`
	Google        google.Config `envPrefix:"GOOGLE_"`
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled         bool     `env:"ENABLED" envDefault:"false"`
	Brokers         []string `env:"BROKERS" envSeparator:","`
	TopicTranscript string   `env:"TOPIC_TRANSCRIPT" envDefault:"dictation.transcript"`
	TopicNotice     string   `env:"TOPIC_NOTICE" envDefault:"dictation.notice"`
	TopicSelection  string   `env:"TOPIC_SELECTION" envDefault:"dictation.selection"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	GRPCPort      string
	HTTPAddr      string
	LogLevel      string
	CloudProvider string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	// Non-empty flags win
	if overrides.GRPCPort != "" {
		cfg.Service.GRPCPort = overrides.GRPCPort
	}
	if overrides.HTTPAddr != "" {
		cfg.Service.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.Observability.LogLevel = overrides.LogLevel
	}
	if overrides.CloudProvider != "" {
		cfg.STT.CloudProvider = overrides.CloudProvider
	}

	// The cloud engine always encodes at the session rate.
	cfg.STT.Google.SampleRateHz = cfg.Session.SampleRateHz

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	switch strings.ToLower(c.STT.LocalProvider) {
	case LocalFallback, LocalMock:
	default:
		errs = append(errs, fmt.Errorf("unknown local provider %q", c.STT.LocalProvider))
	}
	switch strings.ToLower(c.STT.CloudProvider) {
	case CloudNone, CloudMock, CloudGoogle:
	default:
		errs = append(errs, fmt.Errorf("unknown cloud provider %q", c.STT.CloudProvider))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka enabled without brokers"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
