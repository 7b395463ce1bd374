package synth

import "math"

// Source produces mono samples. Advance-by-dt semantics keep phase inside
// the source, so a voice renders identically whatever buffer it lands in.
type Source interface {
	// Sample advances the source by dt seconds at the given frequency and
	// returns the next sample in [-1, 1].
	Sample(freq, dt float64) float64
	// Reset rewinds the source phase (used by retrigger).
	Reset()
}

// TableSource loops one waveform cycle.
type TableSource struct {
	Table []float64
	phase float64
}

func (ts *TableSource) Sample(freq, dt float64) float64 {
	if freq <= 0 || len(ts.Table) == 0 {
		return 0
	}
	idx := int(ts.phase * float64(len(ts.Table)))
	if idx >= len(ts.Table) {
		idx = len(ts.Table) - 1
	}
	ts.phase += freq * dt
	ts.phase -= math.Floor(ts.phase)
	return ts.Table[idx]
}

func (ts *TableSource) Reset() { ts.phase = 0 }

// EchoTap is one delayed replay of a voice.
type EchoTap struct {
	Delay float64
	Gain  float64
}

// Voice is one scheduled note: a source, automated frequency, gain and pan,
// and optional echo taps and retrigger points. Start/Dur are absolute
// seconds; Tail extends rendering past Dur for releases and echoes.
type Voice struct {
	ChannelID int
	Start     float64
	Dur       float64
	Tail      float64

	Source Source
	Freq   *Param // Hz
	Gain   *Param // linear amplitude
	Pan    *Param // -1..+1

	Echoes   []EchoTap
	Retrigs  []float64 // absolute times at which the source phase resets
	MaxLevel float64   // per-voice output scale; 1 when zero
}

// End returns the absolute time the voice stops contributing samples.
func (v *Voice) End() float64 { return v.Start + v.Dur + v.Tail }

// RenderInto mixes the voice into buf, where buf frame 0 corresponds to
// absolute time origin. Rendering covers Start..End clipped to the buffer.
func (v *Voice) RenderInto(buf *Buffer, origin float64) {
	v.renderPass(buf, origin, 0, 1)
	for _, tap := range v.Echoes {
		if tap.Gain <= 0 {
			continue
		}
		v.Source.Reset()
		v.renderPass(buf, origin, tap.Delay, tap.Gain)
	}
}

func (v *Voice) renderPass(buf *Buffer, origin, delay, gainScale float64) {
	sr := float64(buf.SampleRate)
	dt := 1 / sr
	scale := v.MaxLevel
	if scale == 0 {
		scale = 1
	}

	startT := v.Start + delay
	endT := v.End() + delay

	first := int(math.Round((startT - origin) * sr))
	last := int(math.Round((endT - origin) * sr))
	if last > buf.Frames() {
		last = buf.Frames()
	}

	v.Source.Reset()
	retrig := 0

	for i := first; i < last; i++ {
		if i < 0 {
			// Keep the source phase honest for partially visible voices.
			t := origin + float64(i)*dt - delay
			v.Source.Sample(v.Freq.ValueAt(t), dt)
			continue
		}
		t := origin + float64(i)*dt - delay

		for retrig < len(v.Retrigs) && t >= v.Retrigs[retrig] {
			v.Source.Reset()
			retrig++
		}

		s := v.Source.Sample(v.Freq.ValueAt(t), dt) * v.Gain.ValueAt(t) * gainScale * scale

		pan := v.Pan.ValueAt(t)
		if pan < -1 {
			pan = -1
		}
		if pan > 1 {
			pan = 1
		}
		// Equal-power panning.
		angle := (pan + 1) * math.Pi / 4
		buf.L[i] += s * math.Cos(angle)
		buf.R[i] += s * math.Sin(angle)
	}
}
