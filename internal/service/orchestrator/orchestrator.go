// Package orchestrator runs realtime dictation sessions over a local speech
// engine, an optional cloud engine and a sentence polisher.
//
// Each session owns a worker that paces incoming frames and fans every frame
// out to an independent local task and, when the cloud circuit allows, a cloud
// task. Cloud tasks wait for the local lane to finish the same frame unless
// the local lane misses its deadline, in which case the cloud result becomes
// the primary transcript. A monitor watches local progress and emits notices
// when the local lane falls behind.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dictation-orchestrator/internal/observability/logging"
	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/polish"
	"dictation-orchestrator/internal/service/stt"
)

// EngineOrchestrator owns the engines shared by every session.
type EngineOrchestrator struct {
	config   EngineConfig
	local    stt.Engine
	cloud    stt.Engine
	polisher stt.Polisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures an EngineOrchestrator.
type Option func(*EngineOrchestrator)

// WithCloudEngine enables the cloud lane.
func WithCloudEngine(e stt.Engine) Option {
	return func(o *EngineOrchestrator) { o.cloud = e }
}

// WithPolisher replaces the default lightweight polisher.
func WithPolisher(p stt.Polisher) Option {
	return func(o *EngineOrchestrator) {
		if p != nil {
			o.polisher = p
		}
	}
}

// WithMetrics replaces the default metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *EngineOrchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *EngineOrchestrator) { o.logger = l }
}

// New creates an orchestrator. A nil local engine falls back to the
// energy-driven FallbackEngine.
func New(cfg EngineConfig, local stt.Engine, opts ...Option) *EngineOrchestrator {
	o := &EngineOrchestrator{
		config:   cfg,
		local:    local,
		polisher: polish.New(),
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("orchestrator"),
	}
	if o.local == nil {
		o.local = stt.NewFallbackEngine()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the orchestrator configuration.
func (o *EngineOrchestrator) Config() EngineConfig { return o.config }

// HasCloud reports whether a cloud engine is configured.
func (o *EngineOrchestrator) HasCloud() bool { return o.cloud != nil }

// Warmup prepares engines that support it. Failures are logged, not returned.
func (o *EngineOrchestrator) Warmup(ctx context.Context) {
	o.logger.Info().
		Bool("prefer_cloud", o.config.PreferCloud).
		Bool("cloud_enabled", o.cloud != nil).
		Msg("Warming up engines")

	warm := func(name string, v any) {
		w, ok := v.(stt.Warmer)
		if !ok {
			return
		}
		start := time.Now()
		if err := w.Warmup(ctx); err != nil {
			o.logger.Warn().Err(err).Str("engine", name).Msg("Engine warmup failed")
			return
		}
		o.logger.Info().Str("engine", name).Dur("duration", time.Since(start)).Msg("Engine warmed up")
	}
	warm("local", o.local)
	if o.cloud != nil {
		warm("cloud", o.cloud)
	}
	warm("polisher", o.polisher)
}

// StartRealtimeSession starts a session and returns its handle and update
// stream. It never blocks. The stream closes once the session has fully
// drained after CloseInput, or promptly after Close or ctx cancellation.
func (o *EngineOrchestrator) StartRealtimeSession(ctx context.Context, cfg RealtimeSessionConfig) (*RealtimeSessionHandle, <-chan TranscriptionUpdate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	s := newSession(ctx, id, cfg, o)
	s.logger.Info().
		Int("sample_rate_hz", cfg.SampleRateHz).
		Dur("cadence", cfg.Cadence()).
		Bool("polisher", cfg.EnablePolisher).
		Bool("cloud", o.cloud != nil).
		Msg("Realtime session started")

	s.start()
	return &RealtimeSessionHandle{s: s}, s.updates, nil
}
