// Package audio provides the stream handler that carries a client's audio into
// a realtime session and its updates back out to the client and the event
// publisher.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dictation-orchestrator/internal/events"
	"dictation-orchestrator/internal/observability/logging"
	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/audio/pcm"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
)

// ErrStreamLimitExceeded is returned when a stream crosses one of its limits.
// The session is aborted.
var ErrStreamLimitExceeded = errors.New("audio: stream limit exceeded")

// StreamLimits bounds the resources one client stream may use.
type StreamLimits struct {
	MaxAudioBytes int64         `env:"MAX_AUDIO_BYTES" envDefault:"20971520"` // Max audio accepted per stream
	MaxDuration   time.Duration `env:"MAX_DURATION" envDefault:"15m"`         // Max stream lifetime
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() StreamLimits {
	return StreamLimits{
		MaxAudioBytes: 20 * 1024 * 1024, // 20MB (~10 minutes at 16kHz 16-bit mono)
		MaxDuration:   15 * time.Minute,
	}
}

// UpdateSink delivers an update to the client transport.
type UpdateSink func(orchestrator.TranscriptionUpdate) error

// Handler owns one client stream. LINEAR16 chunks of any size are regrouped
// into frames of the session's minimum frame duration.
type Handler struct {
	session   *orchestrator.RealtimeSessionHandle
	updates   <-chan orchestrator.TranscriptionUpdate
	publisher *events.Publisher
	limits    StreamLimits
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	frameBytes int
	startedAt  time.Time

	mu         sync.Mutex
	pending    []byte
	audioBytes int64
	frames     int
}

// NewHandler creates a handler with default limits.
func NewHandler(
	session *orchestrator.RealtimeSessionHandle,
	updates <-chan orchestrator.TranscriptionUpdate,
	publisher *events.Publisher,
) *Handler {
	return NewHandlerWithLimits(session, updates, publisher, DefaultLimits())
}

// NewHandlerWithLimits creates a handler with custom stream limits.
func NewHandlerWithLimits(
	session *orchestrator.RealtimeSessionHandle,
	updates <-chan orchestrator.TranscriptionUpdate,
	publisher *events.Publisher,
	limits StreamLimits,
) *Handler {
	cfg := session.Config()
	frameDur := cfg.MinFrameDuration
	if frameDur <= 0 {
		frameDur = cfg.Cadence()
	}
	samples := max(int(int64(cfg.SampleRateHz)*int64(frameDur)/int64(time.Second)), 1)

	return &Handler{
		session:    session,
		updates:    updates,
		publisher:  publisher,
		limits:     limits,
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithSession(session.ID()),
		frameBytes: samples * 2,
		startedAt:  time.Now(),
	}
}

// SessionID returns the id of the underlying session.
func (h *Handler) SessionID() string { return h.session.ID() }

// SendAudio accepts a LINEAR16 chunk and pushes every complete frame into the
// session. Crossing a limit aborts the session.
func (h *Handler) SendAudio(ctx context.Context, chunk []byte) error {
	h.mu.Lock()
	h.audioBytes += int64(len(chunk))
	total := h.audioBytes
	h.mu.Unlock()
	h.metrics.RecordAudioReceived(len(chunk))

	if h.limits.MaxAudioBytes > 0 && total > h.limits.MaxAudioBytes {
		return h.exceeded("audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", total, h.limits.MaxAudioBytes))
	}
	if elapsed := time.Since(h.startedAt); h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		return h.exceeded("duration", fmt.Sprintf("max duration exceeded: %v > %v", elapsed.Round(time.Millisecond), h.limits.MaxDuration))
	}

	for _, frame := range h.takeFrames(chunk, false) {
		if err := h.push(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// ApplySelections forwards a variant selection command to the session.
func (h *Handler) ApplySelections(ctx context.Context, selections []segment.Selection) error {
	return h.session.ApplySentenceSelections(ctx, selections)
}

// CloseInput flushes any partial frame and ends intake. The update stream
// closes once the session drains.
func (h *Handler) CloseInput(ctx context.Context) error {
	var err error
	for _, frame := range h.takeFrames(nil, true) {
		if err = h.push(ctx, frame); err != nil {
			break
		}
	}
	h.session.CloseInput()
	return err
}

// Close aborts the session.
func (h *Handler) Close() {
	h.session.Close()
}

// Run forwards every update to the publisher and to sink until the session
// ends. A sink failure aborts the session and is returned. Publish failures
// are logged only.
func (h *Handler) Run(ctx context.Context, sink UpdateSink) error {
	for u := range h.updates {
		if h.publisher != nil {
			if err := h.publisher.PublishUpdate(ctx, h.session.ID(), u); err != nil {
				h.logger.Warn().Err(err).Stringer("update", u).Msg("Failed to publish update")
			}
		}
		if sink == nil {
			continue
		}
		if err := sink(u); err != nil {
			h.logger.Warn().Err(err).Msg("Client went away, aborting session")
			h.session.Close()
			// Let the session finish so no goroutine is left behind.
			for range h.updates {
			}
			return err
		}
	}
	return nil
}

// StreamStats holds current stream usage.
type StreamStats struct {
	AudioBytes int64
	Frames     int
	Duration   time.Duration
}

// Stats returns current stream usage for observability.
func (h *Handler) Stats() StreamStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return StreamStats{
		AudioBytes: h.audioBytes,
		Frames:     h.frames,
		Duration:   time.Since(h.startedAt),
	}
}

// takeFrames appends chunk to the pending bytes and cuts complete frames.
// With flush set, the remaining whole samples form a final short frame.
func (h *Handler) takeFrames(chunk []byte, flush bool) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending = append(h.pending, chunk...)
	var out [][]byte
	for len(h.pending) >= h.frameBytes {
		out = append(out, h.pending[:h.frameBytes:h.frameBytes])
		h.pending = h.pending[h.frameBytes:]
	}
	if flush {
		if n := len(h.pending) &^ 1; n > 0 {
			out = append(out, h.pending[:n:n])
		}
		h.pending = nil
	}
	if len(h.pending) == 0 {
		h.pending = nil
	}
	h.frames += len(out)
	return out
}

func (h *Handler) push(ctx context.Context, frame []byte) error {
	samples, err := pcm.FromLinear16(frame)
	if err != nil {
		return fmt.Errorf("audio: decode frame: %w", err)
	}
	if err := h.session.PushFrame(ctx, samples); err != nil {
		return fmt.Errorf("audio: push frame: %w", err)
	}
	return nil
}

func (h *Handler) exceeded(limitType, reason string) error {
	h.metrics.RecordLimitExceeded(limitType)
	h.logger.Warn().Str("limit", limitType).Str("reason", reason).Msg("Stream limit exceeded, aborting session")
	h.session.Close()
	return fmt.Errorf("%w: %s", ErrStreamLimitExceeded, reason)
}
