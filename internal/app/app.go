// Package app wires the process-wide state of the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dictation-orchestrator/internal/config"
	"dictation-orchestrator/internal/events"
	"dictation-orchestrator/internal/observability/logging"
	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/audio"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/stt"
	"dictation-orchestrator/internal/service/stt/google"
	"dictation-orchestrator/internal/service/stt/mock"
)

// ErrNotReady is returned when a stream is opened before warmup finished.
var ErrNotReady = errors.New("app: engines are not ready")

// Application holds process-wide state for the service.
type Application struct {
	StartupTime  time.Time
	Logger       zerolog.Logger
	Cfg          *config.Config
	Orchestrator *orchestrator.EngineOrchestrator
	Publisher    *events.Publisher
	Sessions     *Registry

	ready   atomic.Bool
	closers []io.Closer
}

// New constructs the Application: engines, orchestrator and publisher.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	return NewWithEngines(ctx, cfg, nil, nil)
}

// NewWithEngines is New with explicit engines. A nil engine is built from
// configuration.
func NewWithEngines(ctx context.Context, cfg *config.Config, local, cloud stt.Engine) (*Application, error) {
	a := &Application{
		Cfg:      cfg,
		Logger:   logging.WithComponent("application"),
		Sessions: NewRegistry(),
	}

	if local == nil {
		local = buildLocal(cfg.STT.LocalProvider)
	}
	if cloud == nil {
		var err error
		if cloud, err = a.buildCloud(ctx, cfg.STT); err != nil {
			return nil, err
		}
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(metrics.DefaultMetrics)}
	if cloud != nil {
		opts = append(opts, orchestrator.WithCloudEngine(cloud))
	}
	a.Orchestrator = orchestrator.New(cfg.Engine, local, opts...)

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicNotice:     cfg.Kafka.TopicNotice,
		TopicSelection:  cfg.Kafka.TopicSelection,
		Principal:       cfg.Service.Principal,
	})
	a.closers = append(a.closers, a.Publisher)

	a.Logger.Info().
		Str("localProvider", cfg.STT.LocalProvider).
		Str("cloudProvider", cfg.STT.CloudProvider).
		Bool("preferCloud", cfg.Engine.PreferCloud).
		Msg("Dictation orchestrator application created")
	return a, nil
}

func buildLocal(provider string) stt.Engine {
	if strings.EqualFold(provider, config.LocalMock) {
		return mock.NewLooping(mock.DefaultScript...)
	}
	return stt.NewFallbackEngine()
}

func (a *Application) buildCloud(ctx context.Context, cfg config.STTConfig) (stt.Engine, error) {
	switch strings.ToLower(cfg.CloudProvider) {
	case config.CloudGoogle:
		e, err := google.New(ctx, cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("app: cloud engine: %w", err)
		}
		a.closers = append(a.closers, e)
		return e, nil
	case config.CloudMock:
		return mock.NewLooping(mock.DefaultScript...), nil
	default:
		return nil, nil
	}
}

// Start warms up the engines and marks the service ready.
func (a *Application) Start(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Dictation orchestrator starting")

	a.Orchestrator.Warmup(ctx)
	a.ready.Store(true)
	return nil
}

// Ready reports whether warmup has finished.
func (a *Application) Ready() bool { return a.ready.Load() }

// OpenStream starts a session for one client stream and registers it until
// its update stream closes.
func (a *Application) OpenStream(ctx context.Context) (*audio.Handler, error) {
	if !a.Ready() {
		return nil, ErrNotReady
	}

	session, updates, err := a.Orchestrator.StartRealtimeSession(ctx, a.Cfg.Session)
	if err != nil {
		return nil, err
	}
	a.Sessions.Add(session)
	go func() {
		<-session.Done()
		a.Sessions.Remove(session.ID())
	}()

	return audio.NewHandlerWithLimits(session, updates, a.Publisher, a.Cfg.StreamLimits), nil
}

// EngineDecision is the routing hint for a session.
type EngineDecision struct {
	SessionID   string `json:"session_id"`
	PreferCloud bool   `json:"prefer_cloud"`
	Reason      string `json:"reason"`
}

// Decide returns the routing hint for sessionID, using live session state
// when the session is known.
func (a *Application) Decide(sessionID string) EngineDecision {
	d := EngineDecision{SessionID: sessionID}

	switch {
	case !a.Orchestrator.HasCloud():
		d.Reason = "cloud engine not configured"
	case a.Orchestrator.Config().PreferCloud:
		d.PreferCloud = true
		d.Reason = "configured to prefer cloud"
	default:
		h, ok := a.Sessions.Get(sessionID)
		switch {
		case !ok:
			d.Reason = "local engine preferred"
		case !h.Snapshot().CloudEnabled:
			d.Reason = "cloud circuit open"
		case h.Snapshot().Degraded:
			d.PreferCloud = true
			d.Reason = "local lane degraded"
		default:
			d.Reason = "local lane healthy"
		}
	}
	return d
}

// Shutdown aborts live sessions and releases engines and writers.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	n := a.Sessions.CloseAll()
	a.Logger.Info().Int("sessions", n).Msg("Dictation orchestrator shutting down")

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}
