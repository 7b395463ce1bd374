// Package gameboy implements the DMG-01 synthesis kernels: pulse channels
// with frequency-register quantization and sweep, the 16-sample wavetable
// channel, and the LFSR noise channel, all driven through hardware-accurate
// envelope value curves.
package gameboy

import "math"

// Clock is the DMG master clock in Hz.
const Clock = 4194304

// EnvelopeFrame is the period of the 64 Hz volume-envelope frame.
const EnvelopeFrame = 65536.0 / float64(Clock) // ≈ 15.625 ms

// FrameHz is the frame-sequencer base rate used for grid alignment.
const FrameHz = 512

// maxRegister is the largest 11-bit period register value.
const maxRegister = 2047

// FreqFromRegister converts an 11-bit period register to an audible
// frequency in Hz.
func FreqFromRegister(reg int) float64 {
	if reg >= 2048 {
		reg = maxRegister
	}
	if reg < 0 {
		reg = 0
	}
	return 131072.0 / float64(2048-reg)
}

// RegisterFromFreq converts a frequency to the nearest period register,
// clamped to the valid range.
func RegisterFromFreq(freq float64) int {
	if freq <= 0 {
		return 0
	}
	reg := int(math.Round(2048.0 - 131072.0/freq))
	if reg < 0 {
		reg = 0
	}
	if reg > maxRegister {
		reg = maxRegister
	}
	return reg
}

// QuantizeFreq snaps a requested frequency onto the hardware register grid.
func QuantizeFreq(freq float64) float64 {
	return FreqFromRegister(RegisterFromFreq(freq))
}

// AlignToFrame rounds a time down to the nearest frame boundary of the given
// rate (512 Hz frame sequencer, 64 Hz envelope frames).
func AlignToFrame(t float64, frameHz int) float64 {
	if frameHz <= 0 {
		return t
	}
	period := 1.0 / float64(frameHz)
	return math.Floor(t/period) * period
}
