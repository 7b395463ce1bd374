// Package synth provides the offline rendering graph the chip kernels play
// through: stereo buffers, automation parameters and voices. It knows
// nothing about the Game Boy; the gameboy package builds voices, this
// package renders them.
package synth

import "math"

// Buffer is a block of stereo samples at a fixed rate.
type Buffer struct {
	SampleRate int
	L, R       []float64
}

// NewBuffer allocates a silent stereo buffer covering the given duration.
func NewBuffer(sampleRate int, seconds float64) *Buffer {
	frames := int(math.Ceil(seconds * float64(sampleRate)))
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		SampleRate: sampleRate,
		L:          make([]float64, frames),
		R:          make([]float64, frames),
	}
}

// Frames returns the buffer length in frames.
func (b *Buffer) Frames() int { return len(b.L) }

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	return float64(len(b.L)) / float64(b.SampleRate)
}

// MixAt adds src into b starting at the given frame offset, scaled by gain.
// Frames falling outside b are dropped.
func (b *Buffer) MixAt(offset int, src *Buffer, gain float64) {
	for i := 0; i < src.Frames(); i++ {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= b.Frames() {
			break
		}
		b.L[j] += src.L[i] * gain
		b.R[j] += src.R[i] * gain
	}
}

// Peak returns the largest absolute sample value in the buffer.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for i := range b.L {
		if v := math.Abs(b.L[i]); v > peak {
			peak = v
		}
		if v := math.Abs(b.R[i]); v > peak {
			peak = v
		}
	}
	return peak
}

// Clamp hard-limits every sample to [-1, 1].
func (b *Buffer) Clamp() {
	for i := range b.L {
		b.L[i] = clamp1(b.L[i])
		b.R[i] = clamp1(b.R[i])
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
