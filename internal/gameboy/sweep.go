package gameboy

import (
	"github.com/kadraman/beatbax/internal/song"
)

// SweepStep is one frequency-set event produced by the sweep unit.
type SweepStep struct {
	Offset  float64 // seconds after note start
	Reg     int     // register value after this step
	Freq    float64 // FreqFromRegister(Reg); 0 when silenced
	Silence bool    // register overflowed >2047
}

// maxSweepSteps caps the emitted sweep schedule; a real note ends long
// before this, and overflow or a zero delta break the loop earlier anyway.
const maxSweepSteps = 256

// SweepSteps computes the frequency-set schedule for a pulse-1 sweep: every
// time/128 seconds the register moves by reg>>shift. Overflow past 2047
// silences the channel; underflow clamps at zero.
func SweepSteps(startReg int, sw song.Sweep, dur float64) []SweepStep {
	if sw.Time <= 0 {
		return nil
	}

	interval := float64(sw.Time) / 128.0
	reg := startReg
	var steps []SweepStep

	for i := 1; i <= maxSweepSteps; i++ {
		offset := float64(i) * interval
		if offset > dur {
			break
		}

		delta := reg >> uint(sw.Shift)
		if sw.Direction == song.EnvUp {
			reg += delta
		} else {
			reg -= delta
		}

		if reg > maxRegister {
			steps = append(steps, SweepStep{Offset: offset, Reg: reg, Freq: 0, Silence: true})
			return steps
		}
		if reg < 0 {
			reg = 0
		}

		steps = append(steps, SweepStep{Offset: offset, Reg: reg, Freq: FreqFromRegister(reg)})

		// A zero delta pins the register; further steps are identical.
		if delta == 0 {
			break
		}
	}
	return steps
}
