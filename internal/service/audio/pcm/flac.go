package pcm

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FLACBlockSize is the largest number of samples written per FLAC frame.
const FLACBlockSize = 4096

// EncodeFLAC compresses mono float samples into an in-memory 16-bit FLAC stream.
func EncodeFLAC(samples []float32, sampleRateHz int) ([]byte, error) {
	if sampleRateHz <= 0 {
		return nil, fmt.Errorf("encoding flac: invalid sample rate %d", sampleRateHz)
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  FLACBlockSize,
		BlockSizeMax:  FLACBlockSize,
		SampleRate:    uint32(sampleRateHz),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	ints := ToInt16(samples)
	for start := 0; start < len(ints); start += FLACBlockSize {
		end := min(start+FLACBlockSize, len(ints))
		if err := writeBlock(enc, ints[start:end], uint32(sampleRateHz)); err != nil {
			_ = enc.Close()
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBlock(enc *flac.Encoder, block []int16, sampleRate uint32) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    sampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples32,
			NSamples:  len(block),
		}},
	}
	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	return nil
}
