// Package pcm converts and measures mono PCM audio.
package pcm

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrOddLength is returned when LINEAR16 input is not a whole number of samples.
var ErrOddLength = errors.New("linear16 payload has odd length")

// FromLinear16 decodes little-endian signed 16-bit samples into [-1, 1) floats.
func FromLinear16(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out, nil
}

// ToInt16 clamps float samples into the signed 16-bit range.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32767
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(math.Round(v))
	}
	return out
}

// ToLinear16 encodes float samples as little-endian signed 16-bit PCM.
func ToLinear16(samples []float32) []byte {
	ints := ToInt16(samples)
	out := make([]byte, len(ints)*2)
	for i, s := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square energy of samples, 0 for an empty slice.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
