package orchestrator

import (
	"context"
	"slices"
	"time"

	"dictation-orchestrator/internal/service/segment"
)

// RealtimeSessionHandle is the caller's side of a session. It is safe for
// concurrent use.
type RealtimeSessionHandle struct {
	s *session
}

// ID returns the session identifier.
func (h *RealtimeSessionHandle) ID() string { return h.s.id }

// Config returns the session configuration.
func (h *RealtimeSessionHandle) Config() RealtimeSessionConfig { return h.s.cfg }

// PushFrame queues one frame of mono PCM. Empty frames are dropped and frames
// outside the configured duration bounds are only logged. The samples are
// copied, so the caller may reuse the slice. It blocks while the queue is
// full and fails with ErrSessionClosed once input is closed or the session
// has ended.
func (h *RealtimeSessionHandle) PushFrame(ctx context.Context, samples []float32) error {
	s := h.s
	if len(samples) == 0 {
		s.metrics.RecordFrameDropped()
		s.logger.Warn().Msg("Dropping empty audio frame")
		return nil
	}

	d := s.cfg.FrameDuration(len(samples))
	outOfBounds := d < s.cfg.MinFrameDuration || (s.cfg.MaxFrameDuration > 0 && d > s.cfg.MaxFrameDuration)
	if outOfBounds {
		s.logger.Warn().
			Dur("duration", d).
			Dur("min", s.cfg.MinFrameDuration).
			Dur("max", s.cfg.MaxFrameDuration).
			Msg("Audio frame duration outside bounds")
	}

	frame := slices.Clone(samples)

	s.inputMu.RLock()
	defer s.inputMu.RUnlock()
	if s.inputClosed || s.isClosed() {
		return ErrSessionClosed
	}

	select {
	case s.frames <- frame:
		s.metrics.RecordFrame(outOfBounds)
		return nil
	case <-s.ctx.Done():
		s.logger.Warn().Msg("Audio frame rejected, session closed")
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplySentenceSelections queues a variant selection command. An empty list
// is a no-op. Applied selections come back as a Selection update.
func (h *RealtimeSessionHandle) ApplySentenceSelections(ctx context.Context, selections []segment.Selection) error {
	if len(selections) == 0 {
		return nil
	}
	s := h.s
	cmd := command{selections: slices.Clone(selections)}

	s.inputMu.RLock()
	defer s.inputMu.RUnlock()
	if s.inputClosed || s.isClosed() {
		return ErrSessionClosed
	}

	select {
	case s.commands <- cmd:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sentence returns the current state of a sentence.
func (h *RealtimeSessionHandle) Sentence(id uint64) (segment.Record, bool) {
	return h.s.sentences.Get(id)
}

// CloseInput stops accepting frames and commands. Work already queued still
// runs and the update stream closes once it has drained.
func (h *RealtimeSessionHandle) CloseInput() {
	s := h.s
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if s.inputClosed {
		return
	}
	s.inputClosed = true
	s.lifecycle.CloseInput()
	close(s.frames)
	close(s.commands)
}

// Close aborts the session. In-flight engine calls are cancelled and the
// update stream closes promptly.
func (h *RealtimeSessionHandle) Close() {
	h.s.lifecycle.Abort()
	h.s.cancel()
}

// Done is closed once the update stream has been closed.
func (h *RealtimeSessionHandle) Done() <-chan struct{} { return h.s.done }

// Snapshot is a point-in-time view of a session for operators.
type Snapshot struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	State        State     `json:"state"`
	LastFrame    uint64    `json:"lastFrame"`
	Degraded     bool      `json:"degraded"`
	SpeechActive bool      `json:"speechActive"`
	CloudEnabled bool      `json:"cloudEnabled"`
	Sentences    int       `json:"sentences"`
}

// Snapshot reports the session's current progress.
func (h *RealtimeSessionHandle) Snapshot() Snapshot {
	s := h.s
	return Snapshot{
		ID:           s.id,
		StartedAt:    s.startedAt,
		State:        s.lifecycle.State(),
		LastFrame:    s.progress.LastFrame(),
		Degraded:     s.progress.Degraded(),
		SpeechActive: s.progress.SpeechActive(),
		CloudEnabled: s.circuit != nil && s.circuit.Enabled(),
		Sentences:    s.sentences.Len(),
	}
}
