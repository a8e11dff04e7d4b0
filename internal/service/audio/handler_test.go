package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"dictation-orchestrator/internal/events"
	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/audio/pcm"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/stt"
)

var testMetrics = metrics.NewMetricsWith(prometheus.NewRegistry())

// frameRecorder is a local engine that records frame sizes and answers with
// one sentence per frame.
type frameRecorder struct {
	mu    sync.Mutex
	sizes []int
}

func (r *frameRecorder) Transcribe(_ context.Context, frame []float32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, len(frame))
	return "ok.", nil
}

func (r *frameRecorder) Sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sizes...)
}

func newTestHandler(t *testing.T, local stt.Engine, limits StreamLimits) *Handler {
	t.Helper()
	o := orchestrator.New(orchestrator.EngineConfig{}, local,
		orchestrator.WithMetrics(testMetrics),
		orchestrator.WithLogger(zerolog.Nop()),
	)
	cfg := orchestrator.DefaultSessionConfig()
	cfg.EnablePolisher = false
	cfg.MinFrameDuration = 10 * time.Millisecond
	cfg.MaxFrameDuration = 200 * time.Millisecond

	session, updates, err := o.StartRealtimeSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	t.Cleanup(session.Close)

	h := NewHandlerWithLimits(session, updates, events.New(&events.Config{Enabled: false}), limits)
	h.metrics = testMetrics
	return h
}

func linear16(samples int) []byte {
	f := make([]float32, samples)
	for i := range f {
		f[i] = 0.2
	}
	return pcm.ToLinear16(f)
}

func TestHandler_RegroupsChunksIntoFrames(t *testing.T) {
	rec := &frameRecorder{}
	h := newTestHandler(t, rec, DefaultLimits())
	ctx := context.Background()

	// 10ms at 16kHz is 160 samples per frame.
	if err := h.SendAudio(ctx, linear16(100)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.SendAudio(ctx, linear16(250)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := h.Stats().Frames; got != 2 {
		t.Errorf("expected 2 full frames, got %d", got)
	}

	if err := h.CloseInput(ctx); err != nil {
		t.Fatalf("close input: %v", err)
	}
	if err := h.Run(ctx, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	sizes := rec.Sizes()
	want := []int{160, 160, 30}
	if len(sizes) != len(want) {
		t.Fatalf("expected frames %v, got %v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("frame %d: expected %d samples, got %d", i, want[i], sizes[i])
		}
	}
	if got := h.Stats().AudioBytes; got != 700 {
		t.Errorf("expected 700 bytes, got %d", got)
	}
}

func TestHandler_MaxAudioBytesLimit(t *testing.T) {
	h := newTestHandler(t, &frameRecorder{}, StreamLimits{MaxAudioBytes: 400, MaxDuration: time.Hour})
	ctx := context.Background()

	if err := h.SendAudio(ctx, linear16(100)); err != nil {
		t.Fatalf("first send should succeed: %v", err)
	}

	err := h.SendAudio(ctx, linear16(200))
	if !errors.Is(err, ErrStreamLimitExceeded) {
		t.Fatalf("expected ErrStreamLimitExceeded, got %v", err)
	}

	// The session was aborted, so the update stream ends.
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, nil) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not end after limit")
	}
}

func TestHandler_MaxDurationLimit(t *testing.T) {
	h := newTestHandler(t, &frameRecorder{}, StreamLimits{MaxDuration: 20 * time.Millisecond})

	time.Sleep(30 * time.Millisecond)

	err := h.SendAudio(context.Background(), linear16(10))
	if !errors.Is(err, ErrStreamLimitExceeded) {
		t.Fatalf("expected ErrStreamLimitExceeded, got %v", err)
	}
}

func TestHandler_RunForwardsUpdates(t *testing.T) {
	h := newTestHandler(t, &frameRecorder{}, DefaultLimits())
	ctx := context.Background()

	if err := h.SendAudio(ctx, linear16(320)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.CloseInput(ctx); err != nil {
		t.Fatalf("close input: %v", err)
	}

	var got []orchestrator.TranscriptionUpdate
	err := h.Run(ctx, func(u orchestrator.TranscriptionUpdate) error {
		got = append(got, u)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	transcripts := 0
	for _, u := range got {
		if tr, ok := u.Payload.(orchestrator.Transcript); ok && tr.Text == "ok." {
			transcripts++
		}
	}
	if transcripts != 2 {
		t.Errorf("expected 2 transcripts, got %d in %v", transcripts, got)
	}
}

func TestHandler_RunStopsOnSinkError(t *testing.T) {
	h := newTestHandler(t, &frameRecorder{}, DefaultLimits())
	ctx := context.Background()

	if err := h.SendAudio(ctx, linear16(160)); err != nil {
		t.Fatalf("send: %v", err)
	}

	gone := errors.New("client gone")
	err := h.Run(ctx, func(orchestrator.TranscriptionUpdate) error { return gone })
	if !errors.Is(err, gone) {
		t.Fatalf("expected sink error, got %v", err)
	}

	if err := h.SendAudio(ctx, linear16(160)); !errors.Is(err, orchestrator.ErrSessionClosed) {
		t.Errorf("expected session to be closed, got %v", err)
	}
}

func TestHandler_DefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxAudioBytes != 20*1024*1024 {
		t.Errorf("expected MaxAudioBytes 20MB, got %d", limits.MaxAudioBytes)
	}
	if limits.MaxDuration != 15*time.Minute {
		t.Errorf("expected MaxDuration 15m, got %v", limits.MaxDuration)
	}
}
