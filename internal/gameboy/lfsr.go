package gameboy

import (
	"github.com/kadraman/beatbax/internal/song"
)

// noiseLevel scales LFSR output into the mix.
const noiseLevel = 0.3

// LFSR is the noise channel's linear-feedback shift register. The 15-bit
// taps are bits 0 and 1; 7-bit mode additionally folds the feedback bit into
// bit 6 of the low 7 bits, which is not the same as truncating the register.
type LFSR struct {
	Width int // 15 or 7
	state uint16
}

// NewLFSR returns a register seeded with all ones, as after a hardware
// channel trigger.
func NewLFSR(width int) *LFSR {
	return &LFSR{Width: width, state: 0x7FFF}
}

// Step clocks the register once and returns the new output bit (bit 0).
func (l *LFSR) Step() int {
	bit := (l.state ^ (l.state >> 1)) & 1
	l.state = (l.state >> 1) | (bit << 14)
	if l.Width == 7 {
		l.state = (l.state &^ (1 << 6)) | (bit << 6)
	}
	return int(l.state & 1)
}

// Reset reseeds the register.
func (l *LFSR) Reset() { l.state = 0x7FFF }

// NoiseRate is the LFSR clock in Hz for the given divisor and shift:
// Clock / (divisor × 2^(shift+1)). A zero or negative divisor is treated
// as 8.
func NoiseRate(n *song.Noise) float64 {
	divisor := n.Divisor
	if divisor <= 0 {
		divisor = 8
	}
	return float64(Clock) / (float64(divisor) * float64(int(1)<<uint(n.Shift+1)))
}

// NoiseSource adapts an LFSR to the synth source interface, producing one
// sample per LFSR tick at the configured rate.
type NoiseSource struct {
	lfsr *LFSR
	rate float64
	acc  float64
	out  float64
}

// NewNoiseSource builds a noise source from instrument noise parameters.
func NewNoiseSource(n *song.Noise) *NoiseSource {
	src := &NoiseSource{
		lfsr: NewLFSR(n.Width),
		rate: NoiseRate(n),
	}
	src.advance()
	return src
}

func (s *NoiseSource) advance() {
	if s.lfsr.Step() != 0 {
		s.out = noiseLevel
	} else {
		s.out = -noiseLevel
	}
}

// Sample advances the LFSR clock by dt and returns the current output. The
// freq argument is ignored: noise pitch comes from divisor and shift.
func (s *NoiseSource) Sample(_ float64, dt float64) float64 {
	s.acc += s.rate * dt
	for s.acc >= 1 {
		s.advance()
		s.acc--
	}
	return s.out
}

// Reset reseeds the LFSR and clears the clock accumulator.
func (s *NoiseSource) Reset() {
	s.lfsr.Reset()
	s.acc = 0
	s.advance()
}
