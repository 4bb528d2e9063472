package audio

import (
	"encoding/binary"
	"fmt"
)

// Resample converts little-endian 16-bit mono PCM between sample rates using
// linear interpolation.
//
// Rules:
// - Input length must be a multiple of 2 (whole samples).
// - Empty input returns empty output.
// - A single sample passes through unchanged; there is nothing to interpolate.
// - Output sample count = floor(inputSamples * toRate / fromRate).
// - Every output sample is clamped to the signed 16-bit range.
//
// Constant signals (including silence) survive resampling exactly, which
// matters for gateways that detect dead air.
func Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", fromRate, toRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm length %d is not a multiple of 2", len(pcm))
	}
	if len(pcm) == 0 {
		return []byte{}, nil
	}
	if fromRate == toRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	in := bytesToSamples(pcm)
	if len(in) == 1 {
		return samplesToBytes(in), nil
	}

	outCount := len(in) * toRate / fromRate
	out := make([]int16, outCount)
	// Position i in the output maps to i*from/to in the input; interpolate
	// between the two nearest source samples.
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		v := float64(in[idx])*(1-frac) + float64(in[idx+1])*frac
		out[i] = clamp16(v)
	}
	return samplesToBytes(out), nil
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
