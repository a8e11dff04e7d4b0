// Package stt defines the speech engine and sentence polisher contracts the
// orchestrator consumes.
package stt

import (
	"context"
	"fmt"
	"sync/atomic"

	"dictation-orchestrator/internal/service/audio/pcm"
)

// Engine transcribes one frame of mono PCM.
//
// Implementations must be safe for concurrent use across sessions. Within one
// session the local lane calls Transcribe serially. The returned string is a
// delta of newly recognised text, not the full transcript.
type Engine interface {
	Transcribe(ctx context.Context, frame []float32) (string, error)
}

// Polisher rewrites one sentence into clean prose. Stateless per call.
type Polisher interface {
	Polish(ctx context.Context, sentence string) (string, error)
}

// Warmer is implemented by engines and polishers that can prepare ahead of the
// first session.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, frame []float32) (string, error)

// Transcribe calls f.
func (f EngineFunc) Transcribe(ctx context.Context, frame []float32) (string, error) {
	return f(ctx, frame)
}

// PolisherFunc adapts a function to Polisher.
type PolisherFunc func(ctx context.Context, sentence string) (string, error)

// Polish calls f.
func (f PolisherFunc) Polish(ctx context.Context, sentence string) (string, error) {
	return f(ctx, sentence)
}

// SilenceRMS is the energy below which a frame is treated as silence.
const SilenceRMS = 1e-4

// FallbackEngine is a placeholder local engine for hosts without an ASR
// binding. It reports "frame#N:R" for every non-silent frame, where N counts
// non-silent frames only.
type FallbackEngine struct {
	voiced atomic.Uint64
}

// NewFallbackEngine creates a fallback engine.
func NewFallbackEngine() *FallbackEngine {
	return &FallbackEngine{}
}

// Transcribe implements Engine.
func (e *FallbackEngine) Transcribe(_ context.Context, frame []float32) (string, error) {
	if len(frame) == 0 {
		return "", nil
	}
	rms := pcm.RMS(frame)
	if rms <= SilenceRMS {
		return "", nil
	}
	return fmt.Sprintf("frame#%d:%.3f", e.voiced.Add(1), rms), nil
}
