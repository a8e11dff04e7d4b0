package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is returned when a session configuration cannot run.
	ErrInvalidConfig = errors.New("orchestrator: invalid session config")
	// ErrSessionClosed is returned when pushing into a session whose input or
	// worker has shut down.
	ErrSessionClosed = errors.New("orchestrator: session closed")
)

// RealtimeSessionConfig holds the per-session knobs.
type RealtimeSessionConfig struct {
	SampleRateHz        int           `env:"SAMPLE_RATE_HZ" envDefault:"16000" json:"sampleRateHz"`
	MinFrameDuration    time.Duration `env:"MIN_FRAME_DURATION" envDefault:"100ms" json:"minFrameDuration"`
	MaxFrameDuration    time.Duration `env:"MAX_FRAME_DURATION" envDefault:"200ms" json:"maxFrameDuration"`
	FirstUpdateDeadline time.Duration `env:"FIRST_UPDATE_DEADLINE" envDefault:"400ms" json:"firstUpdateDeadline"`
	BufferCapacity      int           `env:"BUFFER_CAPACITY" envDefault:"32" json:"bufferCapacity"`
	RawEmitWindow       time.Duration `env:"RAW_EMIT_WINDOW" envDefault:"200ms" json:"rawEmitWindow"`
	PolishEmitDeadline  time.Duration `env:"POLISH_EMIT_DEADLINE" envDefault:"2500ms" json:"polishEmitDeadline"`
	EnablePolisher      bool          `env:"ENABLE_POLISHER" envDefault:"true" json:"enablePolisher"`
}

// DefaultSessionConfig returns the default realtime session configuration.
func DefaultSessionConfig() RealtimeSessionConfig {
	return RealtimeSessionConfig{
		SampleRateHz:        16000,
		MinFrameDuration:    100 * time.Millisecond,
		MaxFrameDuration:    200 * time.Millisecond,
		FirstUpdateDeadline: 400 * time.Millisecond,
		BufferCapacity:      32,
		RawEmitWindow:       200 * time.Millisecond,
		PolishEmitDeadline:  2500 * time.Millisecond,
		EnablePolisher:      true,
	}
}

// Cadence is the expected interval between local frame completions. A zero
// MaxFrameDuration falls back to MinFrameDuration.
func (c RealtimeSessionConfig) Cadence() time.Duration {
	if c.MaxFrameDuration <= 0 {
		return c.MinFrameDuration
	}
	return max(c.MaxFrameDuration, c.MinFrameDuration)
}

// FrameDuration returns how long n samples last at the configured rate.
func (c RealtimeSessionConfig) FrameDuration(n int) time.Duration {
	if c.SampleRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(c.SampleRateHz) * float64(time.Second))
}

// Validate reports whether the configuration can drive a session.
func (c RealtimeSessionConfig) Validate() error {
	switch {
	case c.SampleRateHz <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRateHz)
	case c.BufferCapacity <= 0:
		return fmt.Errorf("%w: buffer capacity must be positive, got %d", ErrInvalidConfig, c.BufferCapacity)
	case c.MinFrameDuration < 0 || c.MaxFrameDuration < 0:
		return fmt.Errorf("%w: frame durations must not be negative", ErrInvalidConfig)
	case c.Cadence() <= 0:
		return fmt.Errorf("%w: frame cadence must be positive", ErrInvalidConfig)
	case c.FirstUpdateDeadline <= 0:
		return fmt.Errorf("%w: first update deadline must be positive", ErrInvalidConfig)
	case c.RawEmitWindow < 0 || c.PolishEmitDeadline < 0:
		return fmt.Errorf("%w: emit windows must not be negative", ErrInvalidConfig)
	}
	return nil
}
