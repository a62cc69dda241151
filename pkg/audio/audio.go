// Package audio provides helpers for working with raw little-endian PCM16
// mono audio: duration math, framing, level measurement, sample-format
// conversion and WAV encoding for backends that refuse raw streams.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is the width of one PCM16 sample.
const BytesPerSample = 2

// FrameBytes returns the byte length of one frame of the given duration at
// the given sample rate.
func FrameBytes(sampleRate int, frame time.Duration) int {
	samples := int(int64(sampleRate) * int64(frame) / int64(time.Second))
	return samples * BytesPerSample
}

// Duration returns the play time of n bytes of PCM16 at the given rate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}

// BytesForDuration returns the sample-aligned byte length covering d at the
// given rate.
func BytesForDuration(d time.Duration, sampleRate int) int {
	samples := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return samples * BytesPerSample
}

// RMS computes the root-mean-square level of a PCM16 buffer, normalized to
// [0, 1]. An empty buffer reports 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts a normalized RMS level to decibels relative to full scale.
// Silence maps to -96 dB rather than -Inf so callers can compare levels
// without special cases.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return -96
	}
	db := 20 * math.Log10(rms)
	if db < -96 {
		return -96
	}
	return db
}

// ToFloat32 converts PCM16 samples to normalized float32 samples in [-1, 1].
func ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Resample converts PCM16 mono audio between sample rates using linear
// interpolation. It returns the input unchanged when the rates match.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	in := len(pcm) / BytesPerSample
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(toRate) / int64(fromRate))
	if out == 0 {
		return nil
	}
	res := make([]byte, out*BytesPerSample)
	ratio := float64(in-1) / float64(max(out-1, 1))
	for i := 0; i < out; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		s0 := int16(binary.LittleEndian.Uint16(pcm[j*BytesPerSample:]))
		var s1 int16
		if j+1 < in {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(j+1)*BytesPerSample:]))
		} else {
			s1 = s0
		}
		v := float64(s0)*(1-frac) + float64(s1)*frac
		binary.LittleEndian.PutUint16(res[i*BytesPerSample:], uint16(int16(math.Round(v))))
	}
	return res
}
