package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"dictation-orchestrator/internal/service/stt"
)

const (
	// SpeechRMS is the frame energy at or above which speech is considered active.
	SpeechRMS = 5e-4
	// SilenceRMS is the frame energy at or below which speech is considered over.
	SilenceRMS = stt.SilenceRMS
	// CloudRetryBackoff is how long the cloud lane stays disabled after a failure.
	CloudRetryBackoff = 750 * time.Millisecond

	firstWindowPoll = 25 * time.Millisecond
)

// LocalProgress tracks local lane liveness for one session. Times are stored
// as milliseconds since the session started; zero means "never".
type LocalProgress struct {
	startedAt      time.Time
	lastFrame      atomic.Uint64
	lastUpdateMs   atomic.Uint64
	speechDetected atomic.Uint64
	speechActive   atomic.Bool
	degraded       atomic.Bool
}

// NewLocalProgress creates progress anchored at startedAt.
func NewLocalProgress(startedAt time.Time) *LocalProgress {
	return &LocalProgress{startedAt: startedAt}
}

func (p *LocalProgress) elapsedMs() uint64 {
	ms := time.Since(p.startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// RecordSuccess advances the completed frame index and clears degradation.
// An older or equal index leaves the progress untouched.
func (p *LocalProgress) RecordSuccess(frameIndex uint64) {
	for {
		current := p.lastFrame.Load()
		if current >= frameIndex {
			p.markSpeechDetected()
			return
		}
		if p.lastFrame.CompareAndSwap(current, frameIndex) {
			p.degraded.Store(false)
			p.lastUpdateMs.Store(p.elapsedMs())
			p.markSpeechDetected()
			return
		}
	}
}

// MarkDegraded flags the local lane as late or failing. It reports whether
// this call performed the transition.
func (p *LocalProgress) MarkDegraded() bool {
	p.lastUpdateMs.Store(p.elapsedMs())
	return !p.degraded.Swap(true)
}

// RecordFrameEnergy updates speech detection from a frame's RMS. Energies
// between the silence and speech thresholds leave the state unchanged.
func (p *LocalProgress) RecordFrameEnergy(rms float32) {
	switch {
	case rms >= SpeechRMS:
		p.markSpeechDetected()
		p.speechActive.Store(true)
	case rms <= SilenceRMS:
		p.speechActive.Store(false)
	}
}

func (p *LocalProgress) markSpeechDetected() {
	p.speechDetected.CompareAndSwap(0, max(p.elapsedMs(), 1))
}

// LastFrame returns the highest frame index the local lane completed.
func (p *LocalProgress) LastFrame() uint64 { return p.lastFrame.Load() }

// Degraded reports whether the local lane is currently degraded.
func (p *LocalProgress) Degraded() bool { return p.degraded.Load() }

// SpeechStarted reports whether speech has ever been detected.
func (p *LocalProgress) SpeechStarted() bool { return p.speechDetected.Load() > 0 }

// SpeechActive reports whether the latest classified frame was speech.
func (p *LocalProgress) SpeechActive() bool { return p.speechActive.Load() }

// sinceSpeech returns the time since speech was first detected.
func (p *LocalProgress) sinceSpeech() time.Duration {
	started := p.speechDetected.Load()
	now := p.elapsedMs()
	if started == 0 || now < started {
		return 0
	}
	return time.Duration(now-started) * time.Millisecond
}

// sinceUpdate returns the time since the last success or degradation mark.
func (p *LocalProgress) sinceUpdate() time.Duration {
	last := p.lastUpdateMs.Load()
	now := p.elapsedMs()
	if now < last {
		return 0
	}
	return time.Duration(now-last) * time.Millisecond
}

// CloudCircuit gates cloud attempts after failures.
type CloudCircuit struct {
	startedAt   time.Time
	enabled     atomic.Bool
	nextRetryMs atomic.Uint64
}

// NewCloudCircuit creates an enabled circuit anchored at startedAt.
func NewCloudCircuit(startedAt time.Time) *CloudCircuit {
	c := &CloudCircuit{startedAt: startedAt}
	c.enabled.Store(true)
	return c
}

func (c *CloudCircuit) elapsedMs() uint64 {
	ms := time.Since(c.startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// AllowAttempt reports whether a cloud call may start now, re-enabling the
// circuit once the retry time has passed.
func (c *CloudCircuit) AllowAttempt() bool {
	if c.enabled.Load() {
		return true
	}
	if c.elapsedMs() >= c.nextRetryMs.Load() {
		c.enabled.Store(true)
		return true
	}
	return false
}

// MarkSuccess closes the circuit.
func (c *CloudCircuit) MarkSuccess() {
	c.nextRetryMs.Store(0)
	c.enabled.Store(true)
}

// Trip disables the circuit for backoff. It reports whether the circuit was
// enabled, so only the transition is surfaced to clients.
func (c *CloudCircuit) Trip(backoff time.Duration) bool {
	c.nextRetryMs.Store(c.elapsedMs() + uint64(backoff.Milliseconds()))
	return c.enabled.Swap(false)
}

// Enabled reports whether the circuit currently admits attempts without
// consulting the retry time.
func (c *CloudCircuit) Enabled() bool { return c.enabled.Load() }

// notifier is a broadcast wakeup. Waiters take the channel before checking
// their condition so no broadcast is lost.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}
