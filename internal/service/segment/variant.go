package segment

import (
	"errors"
	"fmt"
	"strings"
)

// Variant identifies which rendition of a sentence is displayed.
type Variant int

const (
	// VariantRaw is the text as segmented from decoder output.
	VariantRaw Variant = iota
	// VariantPolished is the text returned by the polisher.
	VariantPolished
)

// String returns the telemetry label of the variant.
func (v Variant) String() string {
	switch v {
	case VariantRaw:
		return "raw"
	case VariantPolished:
		return "polished"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ErrUnknownVariant is returned by ParseVariant for unrecognised labels.
var ErrUnknownVariant = errors.New("unknown sentence variant")

// ParseVariant converts a label ("raw" or "polished", any case) to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return VariantRaw, nil
	case "polished":
		return VariantPolished, nil
	default:
		return VariantRaw, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Selection asks for a sentence to display a particular variant.
type Selection struct {
	SentenceID    uint64  `json:"sentenceId"`
	ActiveVariant Variant `json:"activeVariant"`
}

// Record is one logical sentence across its variants.
//
// Transitions:
//
//	RAW ── polished text recorded ──→ POLISHED (unless the user overrode)
//	any ── Raw selected ──→ RAW, override set
//	any ── Polished selected (polished text present) ──→ POLISHED, override cleared
type Record struct {
	polishedText  string
	hasPolished   bool
	polishedInSLA bool
	activeVariant Variant
	userOverride  bool
}

// ActiveVariant returns the variant currently displayed.
func (r Record) ActiveVariant() Variant { return r.activeVariant }

// UserOverride reports whether the user explicitly reverted to raw text.
func (r Record) UserOverride() bool { return r.userOverride }

// PolishedText returns the polished text, if any.
func (r Record) PolishedText() (string, bool) { return r.polishedText, r.hasPolished }

// PolishedWithinSLA reports whether the polished text arrived inside its deadline.
func (r Record) PolishedWithinSLA() bool { return r.polishedInSLA }

func (r *Record) recordPolished(text string, withinSLA bool) Variant {
	r.polishedText = text
	r.hasPolished = true
	r.polishedInSLA = withinSLA
	if !r.userOverride {
		r.activeVariant = VariantPolished
	}
	return r.activeVariant
}

func (r *Record) selectVariant(v Variant) bool {
	switch v {
	case VariantRaw:
		r.activeVariant = VariantRaw
		r.userOverride = true
		return true
	case VariantPolished:
		if !r.hasPolished {
			return false
		}
		r.activeVariant = VariantPolished
		r.userOverride = false
		return true
	default:
		return false
	}
}

// MarshalText encodes the variant as its label.
func (v Variant) MarshalText() ([]byte, error) {
	switch v {
	case VariantRaw, VariantPolished:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
}

// UnmarshalText decodes a variant label.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
