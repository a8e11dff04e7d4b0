// Package mock provides scripted speech engines and polishers for tests and
// for running the service without cloud credentials.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Step is one scripted reply to a Transcribe call.
type Step struct {
	Text  string
	Err   error
	Delay time.Duration
}

// DefaultScript is a short dictation replayed by the mock provider. Each step
// is a decoder delta.
var DefaultScript = []Step{
	{Text: "I want", Delay: 40 * time.Millisecond},
	{Text: "to cancel", Delay: 40 * time.Millisecond},
	{Text: "my subscription.", Delay: 60 * time.Millisecond},
	{Text: "Yes please", Delay: 40 * time.Millisecond},
	{Text: ", go ahead.", Delay: 60 * time.Millisecond},
	{Text: "Can you help me", Delay: 40 * time.Millisecond},
	{Text: "with my account?", Delay: 60 * time.Millisecond},
	{Text: "Thank you very much!", Delay: 50 * time.Millisecond},
}

// Engine replays a script of steps, one per Transcribe call.
// Once the script is exhausted it returns empty deltas, or starts over when
// created with NewLooping.
type Engine struct {
	mu    sync.Mutex
	steps []Step
	next  int
	loop  bool
	calls atomic.Int64
}

// New creates an engine that plays steps once.
func New(steps ...Step) *Engine {
	return &Engine{steps: steps}
}

// NewLooping creates an engine that cycles through steps forever.
func NewLooping(steps ...Step) *Engine {
	return &Engine{steps: steps, loop: true}
}

// Transcribe implements stt.Engine.
func (e *Engine) Transcribe(ctx context.Context, _ []float32) (string, error) {
	e.calls.Add(1)

	e.mu.Lock()
	var step Step
	if e.next < len(e.steps) {
		step = e.steps[e.next]
		e.next++
		if e.loop && e.next == len(e.steps) {
			e.next = 0
		}
	}
	e.mu.Unlock()

	if err := sleep(ctx, step.Delay); err != nil {
		return "", err
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Text, nil
}

// Calls returns how many times Transcribe was invoked.
func (e *Engine) Calls() int {
	return int(e.calls.Load())
}

// Polisher is a configurable stt.Polisher double.
type Polisher struct {
	// Delay is applied before every reply.
	Delay time.Duration
	// Err, when set, is returned instead of a polished sentence.
	Err error
	// Transform rewrites the sentence; nil returns it unchanged.
	Transform func(string) string

	calls atomic.Int64
}

// Polish implements stt.Polisher.
func (p *Polisher) Polish(ctx context.Context, sentence string) (string, error) {
	p.calls.Add(1)
	if err := sleep(ctx, p.Delay); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	if p.Transform == nil {
		return sentence, nil
	}
	return p.Transform(sentence), nil
}

// Calls returns how many times Polish was invoked.
func (p *Polisher) Calls() int {
	return int(p.calls.Load())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
