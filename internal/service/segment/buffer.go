package segment

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Buffer accumulates decoder deltas and cuts them into sentences.
// Not safe for concurrent use; callers serialise access (the local decoder
// lock does this in the orchestrator).
type Buffer struct {
	pending      strings.Builder
	pendingSince time.Time
	window       time.Duration
}

// NewBuffer creates a buffer that force-flushes pending text once it has
// waited longer than window without reaching a sentence boundary.
func NewBuffer(window time.Duration) *Buffer {
	return &Buffer{window: window}
}

// Pending returns the text not yet emitted as a sentence.
func (b *Buffer) Pending() string {
	return b.pending.String()
}

// Ingest appends delta and returns every sentence completed by it, in order.
// When nothing completes and the pending text is older than the flush window
// the pending text is emitted as a sentence on its own.
func (b *Buffer) Ingest(delta string, now time.Time) []string {
	var ready []string

	if strings.TrimSpace(delta) != "" {
		pending := b.pending.String()
		addition := delta
		if pending == "" {
			addition = strings.TrimLeftFunc(delta, unicode.IsSpace)
		}
		if pending != "" && needsInjectedSpace(pending, addition) {
			b.pending.WriteByte(' ')
		}
		b.pending.WriteString(addition)

		if b.pendingSince.IsZero() && b.pending.Len() > 0 {
			b.pendingSince = now
		}
		ready = b.takeCompleted(now)
	}

	if len(ready) == 0 && !b.pendingSince.IsZero() && b.pending.Len() > 0 &&
		now.Sub(b.pendingSince) >= b.window {
		if flushed := strings.TrimSpace(b.pending.String()); flushed != "" {
			ready = append(ready, flushed)
		}
		b.reset("", now)
	}

	return ready
}

func (b *Buffer) takeCompleted(now time.Time) []string {
	var ready []string
	pending := b.pending.String()

	for {
		boundary, ok := findSentenceBoundary(pending)
		if !ok {
			break
		}
		if chunk := strings.TrimSpace(pending[:boundary]); chunk != "" {
			ready = append(ready, chunk)
		}
		pending = strings.TrimLeftFunc(pending[boundary:], unicode.IsSpace)
	}

	if len(ready) > 0 {
		b.reset(pending, now)
	}
	return ready
}

func (b *Buffer) reset(remainder string, now time.Time) {
	b.pending.Reset()
	b.pending.WriteString(remainder)
	if remainder == "" {
		b.pendingSince = time.Time{}
	} else {
		b.pendingSince = now
	}
}

func needsInjectedSpace(existing, addition string) bool {
	last, _ := utf8.DecodeLastRuneInString(existing)
	first, _ := utf8.DecodeRuneInString(addition)
	if last == utf8.RuneError || first == utf8.RuneError {
		return false
	}
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return false
	}
	if isSentenceBoundary(last) || isSentenceBoundary(first) {
		return false
	}
	switch first {
	case ',', '，', ':', '：':
		return false
	}
	return true
}

// findSentenceBoundary returns the byte offset just past the first boundary
// rune, swallowing a run of the same rune ("?!" is two boundaries, "..." one).
func findSentenceBoundary(s string) (int, bool) {
	for i, r := range s {
		if !isSentenceBoundary(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		for end < len(s) {
			next, size := utf8.DecodeRuneInString(s[end:])
			if next != r {
				break
			}
			end += size
		}
		return end, true
	}
	return 0, false
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '\r', '。', '！', '？', '…', ';', '；':
		return true
	}
	return false
}
