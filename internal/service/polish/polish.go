// Package polish provides a deterministic, dependency-free sentence polisher.
package polish

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

var disfluencies = map[string]bool{
	"uh": true, "um": true, "erm": true, "ah": true, "eh": true, "hmm": true,
}

var pronouns = map[string]string{
	"i":    "I",
	"i'm":  "I'm",
	"i'd":  "I'd",
	"i've": "I've",
	"i'll": "I'll",
}

var punctuationReplacer = strings.NewReplacer(
	" ,", ",", " .", ".", " !", "!", " ?", "?", " ;", ";", " :", ":",
)

// LightweightPolisher cleans up raw dictation without a language model.
type LightweightPolisher struct{}

// New returns a LightweightPolisher.
func New() LightweightPolisher {
	return LightweightPolisher{}
}

// Polish implements stt.Polisher. It never fails.
func (LightweightPolisher) Polish(_ context.Context, sentence string) (string, error) {
	return Normalize(sentence), nil
}

// Normalize strips leading filler words, fixes the pronoun "I", tightens
// punctuation, capitalises the first letter and ensures terminal punctuation.
func Normalize(sentence string) string {
	tokens := strings.FieldsFunc(sentence, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})

	for len(tokens) > 0 && isDisfluency(tokens[0]) {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return ""
	}

	for i, tok := range tokens {
		if fixed, ok := pronouns[strings.ToLower(tok)]; ok {
			tokens[i] = fixed
		}
	}

	text := punctuationReplacer.Replace(strings.Join(tokens, " "))
	text = capitalizeFirstLetter(text)

	last, _ := utf8.DecodeLastRuneInString(text)
	switch last {
	case '.', '!', '?', '。', '！', '？', '…':
	default:
		text += "."
	}
	return text
}

func isDisfluency(token string) bool {
	return disfluencies[strings.ToLower(strings.TrimRight(token, ","))]
}

func capitalizeFirstLetter(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsLower(r) {
			return s
		}
		return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
	}
	return s
}
