package stt

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackEngine_Silence(t *testing.T) {
	e := NewFallbackEngine()

	got, err := e.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty delta for silence, got %q", got)
	}
}

func TestFallbackEngine_CountsVoicedFrames(t *testing.T) {
	e := NewFallbackEngine()
	ctx := context.Background()

	e.Transcribe(ctx, make([]float32, 10))

	loud := []float32{0.5, -0.5, 0.5, -0.5}
	got, err := e.Transcribe(ctx, loud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "frame#1:0.500" {
		t.Errorf("expected 'frame#1:0.500', got %q", got)
	}

	got, _ = e.Transcribe(ctx, loud)
	if got != "frame#2:0.500" {
		t.Errorf("expected 'frame#2:0.500', got %q", got)
	}
}

func TestFuncAdapters(t *testing.T) {
	boom := errors.New("boom")
	var engine Engine = EngineFunc(func(context.Context, []float32) (string, error) {
		return "", boom
	})
	if _, err := engine.Transcribe(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("expected engine error to pass through, got %v", err)
	}

	var polisher Polisher = PolisherFunc(func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	})
	got, err := polisher.Polish(context.Background(), "hi")
	if err != nil || got != "hi!" {
		t.Errorf("Polish() = %q, %v", got, err)
	}
}
