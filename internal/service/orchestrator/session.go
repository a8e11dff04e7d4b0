package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/segment"
	"dictation-orchestrator/internal/service/stt"
)

type command struct {
	selections []segment.Selection
}

// session is the state shared by the worker, monitor and spawned tasks.
type session struct {
	id          string
	cfg         RealtimeSessionConfig
	preferCloud bool
	startedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc

	local    stt.Engine
	cloud    stt.Engine
	polisher stt.Polisher

	frames   chan []float32
	commands chan command
	updates  chan TranscriptionUpdate

	inputMu     sync.RWMutex
	inputClosed bool
	lifecycle   *Lifecycle

	progress  *LocalProgress
	circuit   *CloudCircuit
	localDone *notifier

	// decoderMu serialises local decodes and the sentence buffer.
	decoderMu sync.Mutex
	buffer    *segment.Buffer

	// emitMu makes sentence id allocation and first delivery atomic so ids
	// reach the consumer in increasing order.
	emitMu    sync.Mutex
	sentences *segment.Store

	firstUpdate atomic.Bool
	firstLocal  atomic.Bool

	tasks       sync.WaitGroup
	monitorDone chan struct{}
	done        chan struct{}

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func newSession(parent context.Context, id string, cfg RealtimeSessionConfig, o *EngineOrchestrator) *session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	s := &session{
		id:          id,
		cfg:         cfg,
		preferCloud: o.config.PreferCloud,
		startedAt:   now,
		ctx:         ctx,
		cancel:      cancel,
		local:       o.local,
		cloud:       o.cloud,
		polisher:    o.polisher,
		frames:      make(chan []float32, cfg.BufferCapacity),
		commands:    make(chan command, cfg.BufferCapacity),
		updates:     make(chan TranscriptionUpdate, cfg.BufferCapacity),
		lifecycle:   NewLifecycle(),
		progress:    NewLocalProgress(now),
		localDone:   newNotifier(),
		buffer:      segment.NewBuffer(cfg.RawEmitWindow),
		sentences:   segment.NewStore(),
		monitorDone: make(chan struct{}),
		done:        make(chan struct{}),
		metrics:     o.metrics,
		logger:      o.logger.With().Str("sessionId", id).Logger(),
	}
	if o.cloud != nil {
		s.circuit = NewCloudCircuit(now)
	}
	return s
}

// start launches the worker, the monitor and the goroutine that closes the
// update stream once both are finished.
func (s *session) start() {
	s.metrics.RecordSessionStart()

	s.tasks.Add(1)
	go s.runWorker()
	go s.runMonitor()

	go func() {
		// The worker holds the count above zero until it returns, so spawned
		// tasks can always Add.
		s.tasks.Wait()
		if s.isClosed() {
			s.lifecycle.Abort()
		} else {
			s.lifecycle.Finish()
		}
		s.cancel()
		<-s.monitorDone
		close(s.updates)
		close(s.done)

		s.metrics.RecordSessionEnd(time.Since(s.startedAt).Seconds())
		s.logger.Info().
			Dur("duration", time.Since(s.startedAt)).
			Int("sentences", s.sentences.Len()).
			Stringer("state", s.lifecycle.State()).
			Msg("Realtime session finished")
	}()
}

// send delivers an update unless the session is shutting down.
func (s *session) send(u TranscriptionUpdate) bool {
	select {
	case s.updates <- u:
	case <-s.ctx.Done():
		return false
	}

	switch p := u.Payload.(type) {
	case Transcript:
		s.metrics.RecordTranscript(p.Source.String(), p.IsPrimary)
		if u.IsFirst {
			s.metrics.RecordFirstUpdate(u.Latency.Seconds())
		}
	case Notice:
		s.metrics.RecordNotice(p.Level.String())
	}
	return true
}

func (s *session) notice(level NoticeLevel, msg string, sentenceID uint64, latency time.Duration, frameIndex uint64) bool {
	return s.send(TranscriptionUpdate{
		Payload:    Notice{Level: level, Message: msg, SentenceID: sentenceID},
		Latency:    latency,
		FrameIndex: frameIndex,
	})
}

// recordDualViewLatency logs and records the delivery of one sentence variant.
func (s *session) recordDualViewLatency(id uint64, variant segment.Variant, source Source, primary, withinSLA bool, latency time.Duration) {
	s.metrics.RecordDualViewLatency(variant.String(), source.String(), primary, latency.Seconds())
	s.logger.Debug().
		Str("event", "dual_view_latency").
		Uint64("sentenceId", id).
		Stringer("variant", variant).
		Stringer("source", source).
		Bool("primary", primary).
		Bool("within_sla", withinSLA).
		Dur("latency", latency).
		Msg("Sentence variant delivered")
}

// recordDualViewRevert logs which requested selections took effect.
func (s *session) recordDualViewRevert(requested, applied []segment.Selection) {
	s.metrics.RecordSelections(len(requested), len(applied))
	s.logger.Info().
		Str("event", "dual_view_revert").
		Interface("requested", requested).
		Interface("applied", applied).
		Msg("Sentence selections processed")
}

// isClosed reports whether the session context has ended.
func (s *session) isClosed() bool {
	return s.ctx.Err() != nil
}
