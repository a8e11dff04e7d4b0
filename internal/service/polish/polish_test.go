package polish

import (
	"context"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"full clean-up", "  uh i think i'm heading over around two  ", "I think I'm heading over around two."},
		{"already terminated", "hello.", "Hello."},
		{"keeps question mark", "are you there?", "Are you there?"},
		{"keeps ellipsis", "well…", "Well…"},
		{"keeps cjk terminator", "你好。", "你好。"},
		{"tightens punctuation", "yes , i'll do it !", "Yes, I'll do it!"},
		{"several fillers", "Um, erm hmm ok", "Ok."},
		{"pronoun forms", "i've said i'd go", "I've said I'd go."},
		{"filler only inside is kept", "so uh yes", "So uh yes."},
		{"collapses whitespace", "a\t\tb\nc", "A b c."},
		{"leading digit", "2 cats", "2 Cats."},
		{"empty", "   ", ""},
		{"only fillers", "uh um", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLightweightPolisher_Polish(t *testing.T) {
	got, err := New().Polish(context.Background(), "hello.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello." {
		t.Errorf("expected 'Hello.', got %q", got)
	}
}
