package gameboy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadraman/beatbax/internal/song"
)

func TestRegisterRoundTrip(t *testing.T) {
	// Invariant 1: registerFromFreq(freqFromRegister(r)) == r across the
	// whole register range, up to quantization.
	for r := 0; r <= 2047; r++ {
		got := RegisterFromFreq(FreqFromRegister(r))
		if got != r && got != r-1 && got != r+1 {
			t.Fatalf("register %d round-tripped to %d", r, got)
		}
	}
}

func TestRegisterMath(t *testing.T) {
	assert.InDelta(t, 64.0, FreqFromRegister(0), 1e-9)
	assert.InDelta(t, 131072.0, FreqFromRegister(2047), 1e-9)
	assert.Equal(t, 0, RegisterFromFreq(-1))
	assert.Equal(t, 2047, RegisterFromFreq(1e9))
}

func TestQuantizeFreq(t *testing.T) {
	// 440 Hz lands on a representable register frequency.
	q := QuantizeFreq(440)
	assert.Equal(t, q, FreqFromRegister(RegisterFromFreq(440)))
	assert.InDelta(t, 440, q, 0.2)
}

func TestAlignToFrame(t *testing.T) {
	assert.InDelta(t, 0.0, AlignToFrame(0.001, 512), 1e-12)
	period := 1.0 / 512.0
	assert.InDelta(t, period, AlignToFrame(period*1.9, 512), 1e-12)
	assert.InDelta(t, 0.015625, AlignToFrame(0.017, 64), 1e-12)
}

func TestEnvelopeCurve(t *testing.T) {
	// Invariant 5: curve length <= 16 and first entry equals initial/15.
	tests := []struct {
		name    string
		env     song.Envelope
		wantLen int
		wantEnd float64
	}{
		{name: "down from 12", env: song.Envelope{Initial: 12, Direction: song.EnvDown, Period: 1}, wantLen: 13, wantEnd: 0},
		{name: "down from 15", env: song.Envelope{Initial: 15, Direction: song.EnvDown, Period: 7}, wantLen: 16, wantEnd: 0},
		{name: "up from 0", env: song.Envelope{Initial: 0, Direction: song.EnvUp, Period: 2}, wantLen: 16, wantEnd: 1},
		{name: "up from 14", env: song.Envelope{Initial: 14, Direction: song.EnvUp, Period: 1}, wantLen: 2, wantEnd: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals, step := EnvelopeCurve(tt.env)
			require.NotNil(t, vals)
			assert.LessOrEqual(t, len(vals), 16)
			assert.Equal(t, tt.wantLen, len(vals))
			assert.InDelta(t, float64(tt.env.Initial)/15.0, vals[0], 1e-12)
			assert.InDelta(t, tt.wantEnd, vals[len(vals)-1], 1e-12)
			assert.InDelta(t, float64(tt.env.Period)*EnvelopeFrame, step, 1e-12)
		})
	}
}

func TestEnvelopeCurveZeroPeriod(t *testing.T) {
	vals, _ := EnvelopeCurve(song.Envelope{Initial: 12, Direction: song.EnvDown, Period: 0})
	assert.Nil(t, vals)
}

func TestSweepSteps(t *testing.T) {
	// Scenario S5: reg=1000, time=4, down, shift=1.
	steps := SweepSteps(1000, song.Sweep{Time: 4, Direction: song.EnvDown, Shift: 1}, 1.0)
	require.GreaterOrEqual(t, len(steps), 2)

	assert.InDelta(t, 4.0/128.0, steps[0].Offset, 1e-12)
	assert.Equal(t, 500, steps[0].Reg)
	assert.InDelta(t, FreqFromRegister(500), steps[0].Freq, 1e-9)

	assert.InDelta(t, 8.0/128.0, steps[1].Offset, 1e-12)
	assert.Equal(t, 250, steps[1].Reg)
}

func TestSweepOverflowSilences(t *testing.T) {
	steps := SweepSteps(2000, song.Sweep{Time: 1, Direction: song.EnvUp, Shift: 1}, 1.0)
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.True(t, last.Silence)
	assert.Equal(t, 0.0, last.Freq)
}

func TestSweepZeroTimeDisabled(t *testing.T) {
	assert.Nil(t, SweepSteps(1000, song.Sweep{Time: 0, Direction: song.EnvDown, Shift: 1}, 1.0))
}

func TestLFSRSequence15(t *testing.T) {
	l := NewLFSR(15)
	seen := map[uint16]bool{}
	for i := 0; i < 1000; i++ {
		l.Step()
		seen[l.state] = true
	}
	// A healthy 15-bit LFSR does not cycle within 1000 steps.
	assert.Greater(t, len(seen), 900)
}

func TestLFSR7BitFoldsFeedback(t *testing.T) {
	// 7-bit mode must differ from truncating the 15-bit sequence.
	a := NewLFSR(15)
	b := NewLFSR(7)
	differs := false
	for i := 0; i < 200; i++ {
		x := a.Step()
		y := b.Step()
		if x != y {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestLFSR7BitShortCycle(t *testing.T) {
	l := NewLFSR(7)
	l.Step()
	first := l.state & 0x7F
	period := 0
	for i := 1; i <= 200; i++ {
		l.Step()
		if l.state&0x7F == first {
			period = i
			break
		}
	}
	require.NotZero(t, period)
	assert.LessOrEqual(t, period, 127)
}

func TestNoiseRate(t *testing.T) {
	n := &song.Noise{Width: 15, Divisor: 8, Shift: 0}
	assert.InDelta(t, float64(Clock)/16.0, NoiseRate(n), 1e-9)

	n = &song.Noise{Width: 15, Divisor: 4, Shift: 2}
	assert.InDelta(t, float64(Clock)/32.0, NoiseRate(n), 1e-9)
}

func TestNoiseSourceOutputs(t *testing.T) {
	src := NewNoiseSource(&song.Noise{Width: 15, Divisor: 8, Shift: 0})
	dt := 1.0 / 44100.0
	pos, neg := 0, 0
	for i := 0; i < 44100; i++ {
		v := src.Sample(0, dt)
		if v > 0 {
			pos++
		} else {
			neg++
		}
		assert.InDelta(t, 0.3, math.Abs(v), 1e-12)
	}
	// Roughly balanced noise.
	assert.Greater(t, pos, 1000)
	assert.Greater(t, neg, 1000)
}

func TestPulseTableShapes(t *testing.T) {
	for _, duty := range []float64{0.125, 0.25, 0.5, 0.75} {
		table := PulseTable(duty)
		require.Len(t, table, pulseTableLen)

		peak := 0.0
		for _, v := range table {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		assert.InDelta(t, 1.0, peak, 1e-9, "duty %v", duty)
	}

	// 50% duty is symmetric: high half mirrors low half.
	table := PulseTable(0.5)
	assert.InDelta(t, -table[pulseTableLen/4], table[3*pulseTableLen/4], 1e-6)
}

func TestPulseTableCached(t *testing.T) {
	a := PulseTable(0.5)
	b := PulseTable(0.5)
	assert.Same(t, &a[0], &b[0])
}

func TestWaveTable(t *testing.T) {
	nibbles := make([]int, 16)
	for i := range nibbles {
		nibbles[i] = 15
	}
	table := WaveTable(nibbles)
	require.Len(t, table, 16)
	for _, v := range table {
		assert.InDelta(t, 0.9, v, 1e-12)
	}
}
