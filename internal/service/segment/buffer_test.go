package segment

import (
	"reflect"
	"testing"
	"time"
)

func TestBuffer_Ingest(t *testing.T) {
	t0 := time.Unix(1000, 0)

	tests := []struct {
		name        string
		deltas      []string
		want        []string
		wantPending string
	}{
		{"single sentence", []string{"hello."}, []string{"hello."}, ""},
		{"joined across deltas", []string{"hello", " world."}, []string{"hello world."}, ""},
		{"space injected between words", []string{"hello", "world"}, nil, "hello world"},
		{"no space before comma", []string{"hello", ", world"}, nil, "hello, world"},
		{"no space before full-width colon", []string{"note", "：ok"}, nil, "note：ok"},
		{"no space after boundary", []string{"one.", "two"}, []string{"one."}, "two"},
		{"run of dots is one boundary", []string{"wait... really"}, []string{"wait..."}, "really"},
		{"mixed terminators split", []string{"what?! ok"}, []string{"what?", "!"}, "ok"},
		{"cjk terminators", []string{"你好。今天"}, []string{"你好。"}, "今天"},
		{"semicolon and newline", []string{"a; b\nc"}, []string{"a;", "b"}, "c"},
		{"leading whitespace trimmed", []string{"   hi"}, nil, "hi"},
		{"whitespace delta ignored", []string{"   "}, nil, ""},
		{"multiple sentences in one delta", []string{"One. Two! Three"}, []string{"One.", "Two!"}, "Three"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(200 * time.Millisecond)
			var got []string
			for _, d := range tt.deltas {
				got = append(got, b.Ingest(d, t0)...)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Ingest() = %q, want %q", got, tt.want)
			}
			if b.Pending() != tt.wantPending {
				t.Errorf("Pending() = %q, want %q", b.Pending(), tt.wantPending)
			}
		})
	}
}

func TestBuffer_FlushesAfterWindow(t *testing.T) {
	t0 := time.Unix(1000, 0)
	b := NewBuffer(200 * time.Millisecond)

	if got := b.Ingest("partial thought", t0); len(got) != 0 {
		t.Fatalf("expected nothing before boundary, got %q", got)
	}
	if got := b.Ingest("", t0.Add(100*time.Millisecond)); len(got) != 0 {
		t.Fatalf("expected nothing inside window, got %q", got)
	}

	got := b.Ingest("", t0.Add(250*time.Millisecond))
	if !reflect.DeepEqual(got, []string{"partial thought"}) {
		t.Fatalf("expected flush of pending text, got %q", got)
	}
	if b.Pending() != "" {
		t.Errorf("expected empty pending after flush, got %q", b.Pending())
	}
}

func TestBuffer_RemainderRestartsWindow(t *testing.T) {
	t0 := time.Unix(1000, 0)
	b := NewBuffer(200 * time.Millisecond)

	b.Ingest("one", t0)
	got := b.Ingest(". two", t0.Add(150*time.Millisecond))
	if !reflect.DeepEqual(got, []string{"one."}) {
		t.Fatalf("expected first sentence, got %q", got)
	}

	// The remainder's window starts at the extraction, not at "one".
	if got := b.Ingest("", t0.Add(250*time.Millisecond)); len(got) != 0 {
		t.Fatalf("expected remainder to be held, got %q", got)
	}
	got = b.Ingest("", t0.Add(360*time.Millisecond))
	if !reflect.DeepEqual(got, []string{"two"}) {
		t.Fatalf("expected remainder flush, got %q", got)
	}
}

func TestBuffer_NoFlushWhenSentenceCompletes(t *testing.T) {
	t0 := time.Unix(1000, 0)
	b := NewBuffer(10 * time.Millisecond)

	b.Ingest("first", t0)
	got := b.Ingest(" done. tail", t0.Add(time.Second))
	if !reflect.DeepEqual(got, []string{"first done."}) {
		t.Fatalf("expected only the completed sentence, got %q", got)
	}
	if b.Pending() != "tail" {
		t.Errorf("expected tail to stay pending, got %q", b.Pending())
	}
}

func TestNeedsInjectedSpace(t *testing.T) {
	tests := []struct {
		existing, addition string
		want               bool
	}{
		{"hello", "world", true},
		{"hello ", "world", false},
		{"hello", " world", false},
		{"hello.", "world", false},
		{"hello", "?", false},
		{"hello", ",x", false},
		{"hello", "，x", false},
		{"hello", ":x", false},
		{"", "x", false},
	}

	for _, tt := range tests {
		if got := needsInjectedSpace(tt.existing, tt.addition); got != tt.want {
			t.Errorf("needsInjectedSpace(%q, %q) = %v, want %v", tt.existing, tt.addition, got, tt.want)
		}
	}
}
