package gameboy

import (
	"github.com/kadraman/beatbax/internal/song"
)

// maxEnvelopeSteps bounds a hardware envelope curve: walking 15 steps from
// either end saturates, so a curve never exceeds 16 entries.
const maxEnvelopeSteps = 16

// EnvelopeCurve expands a Game Boy envelope into a stepped volume curve.
// Values are linear amplitudes (v/15); the step period is
// period × envelope-frame seconds. The curve walks initial toward 0 or 15
// and terminates on saturation. A zero period returns nil: the caller falls
// back to the legacy ADSR shape.
func EnvelopeCurve(env song.Envelope) (vals []float64, step float64) {
	if env.Period == 0 {
		return nil, 0
	}

	step = float64(env.Period) * EnvelopeFrame
	v := env.Initial
	if v < 0 {
		v = 0
	}
	if v > 15 {
		v = 15
	}

	for len(vals) < maxEnvelopeSteps {
		vals = append(vals, float64(v)/15.0)
		if env.Direction == song.EnvUp {
			if v >= 15 {
				break
			}
			v++
		} else {
			if v <= 0 {
				break
			}
			v--
		}
	}
	return vals, step
}

// legacyADSRDefaults is the fallback envelope used when period is zero and no
// explicit ADSR was declared: 1 ms attack, decay scaled from the envelope
// initial, sustain at initial/15, 20 ms release.
func legacyADSRDefaults(env song.Envelope) song.ADSR {
	if env.Legacy != nil {
		return *env.Legacy
	}
	return song.ADSR{
		Attack:  0.001,
		Decay:   float64(env.Initial) / 15.0 * 0.1,
		Sustain: float64(env.Initial) / 15.0,
		Release: 0.020,
	}
}
