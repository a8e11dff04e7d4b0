package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dictation-orchestrator/internal/service/orchestrator"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Service defaults
	if cfg.Service.Principal != "svc-dictation-orchestrator" {
		t.Errorf("expected default principal 'svc-dictation-orchestrator', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Service.HTTPAddr != ":8080" {
		t.Errorf("expected default HTTP addr ':8080', got %s", cfg.Service.HTTPAddr)
	}

	// Session defaults match the orchestrator defaults
	if cfg.Session != orchestrator.DefaultSessionConfig() {
		t.Errorf("expected default session config, got %+v", cfg.Session)
	}
	if cfg.Engine.PreferCloud {
		t.Error("expected local lane to be preferred by default")
	}

	// STT defaults
	if cfg.STT.LocalProvider != LocalFallback {
		t.Errorf("expected local provider 'fallback', got %s", cfg.STT.LocalProvider)
	}
	if cfg.STT.CloudProvider != CloudNone {
		t.Errorf("expected cloud provider 'none', got %s", cfg.STT.CloudProvider)
	}
	if cfg.STT.Google.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.Google.LanguageCode)
	}
	if cfg.STT.Google.SampleRateHz != 16000 {
		t.Errorf("expected cloud sample rate 16000, got %d", cfg.STT.Google.SampleRateHz)
	}

	// Stream limits defaults
	if cfg.StreamLimits.MaxAudioBytes != 20*1024*1024 {
		t.Errorf("expected default max audio bytes 20MB, got %d", cfg.StreamLimits.MaxAudioBytes)
	}
	if cfg.StreamLimits.MaxDuration != 15*time.Minute {
		t.Errorf("expected default max duration 15m, got %v", cfg.StreamLimits.MaxDuration)
	}

	// Kafka and observability defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka to be disabled by default")
	}
	if cfg.Kafka.TopicTranscript != "dictation.transcript" {
		t.Errorf("expected transcript topic 'dictation.transcript', got %s", cfg.Kafka.TopicTranscript)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENGINE_PREFER_CLOUD", "true")
	t.Setenv("SESSION_SAMPLE_RATE_HZ", "8000")
	t.Setenv("SESSION_FIRST_UPDATE_DEADLINE", "250ms")
	t.Setenv("SESSION_ENABLE_POLISHER", "false")
	t.Setenv("STT_LOCAL_PROVIDER", "mock")
	t.Setenv("STT_CLOUD_PROVIDER", "google")
	t.Setenv("STT_GOOGLE_LANGUAGE_CODE", "es-ES")
	t.Setenv("STT_GOOGLE_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("STREAM_MAX_DURATION", "10m")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
	if !cfg.Engine.PreferCloud {
		t.Error("expected prefer cloud")
	}
	if cfg.Session.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Session.SampleRateHz)
	}
	if cfg.Session.FirstUpdateDeadline != 250*time.Millisecond {
		t.Errorf("expected first update deadline 250ms, got %v", cfg.Session.FirstUpdateDeadline)
	}
	if cfg.Session.EnablePolisher {
		t.Error("expected polisher disabled")
	}
	if cfg.STT.LocalProvider != "mock" || cfg.STT.CloudProvider != "google" {
		t.Errorf("unexpected providers %s/%s", cfg.STT.LocalProvider, cfg.STT.CloudProvider)
	}
	if cfg.STT.Google.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.STT.Google.LanguageCode)
	}
	if cfg.STT.Google.RequestsPerSecond != 2.5 {
		t.Errorf("expected 2.5 requests per second, got %v", cfg.STT.Google.RequestsPerSecond)
	}
	if cfg.STT.Google.SampleRateHz != 8000 {
		t.Errorf("expected cloud sample rate to follow session, got %d", cfg.STT.Google.SampleRateHz)
	}
	if cfg.StreamLimits.MaxDuration != 10*time.Minute {
		t.Errorf("expected max duration 10m, got %v", cfg.StreamLimits.MaxDuration)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "HTTP_ADDR=:7000\nLOG_LEVEL=warn\nSTT_CLOUD_PROVIDER=mock\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv never overrides variables already set, so clean up what it sets.
	t.Cleanup(func() {
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("STT_CLOUD_PROVIDER")
	})

	cfg, err := Load(Overrides{EnvFile: envFile, LogLevel: "error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.HTTPAddr != ":7000" {
		t.Errorf("expected HTTP addr from env file, got %s", cfg.Service.HTTPAddr)
	}
	if cfg.STT.CloudProvider != CloudMock {
		t.Errorf("expected cloud provider from env file, got %s", cfg.STT.CloudProvider)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("expected flag override to win, got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "SESSION_MIN_FRAME_DURATION", "soon"},
		{"zero sample rate", "SESSION_SAMPLE_RATE_HZ", "0"},
		{"unknown cloud", "STT_CLOUD_PROVIDER", "azure"},
		{"unknown local", "STT_LOCAL_PROVIDER", "whisper"},
		{"kafka without brokers", "KAFKA_ENABLED", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "missing.env")}); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidate_WrapsSessionError(t *testing.T) {
	cfg := &Config{
		Session: orchestrator.DefaultSessionConfig(),
		STT:     STTConfig{LocalProvider: LocalFallback, CloudProvider: CloudNone},
	}
	cfg.Session.BufferCapacity = 0

	if err := cfg.Validate(); !errors.Is(err, orchestrator.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
