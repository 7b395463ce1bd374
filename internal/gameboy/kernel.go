package gameboy

import (
	"fmt"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
	"github.com/kadraman/beatbax/internal/synth"
)

// channelHeadroom scales each voice so four simultaneous channels stay
// inside the mix.
const channelHeadroom = 0.25

// NoteParams carries everything a kernel needs to schedule one note.
type NoteParams struct {
	Inst        *song.Instrument
	PitchMidi   int
	Start       float64 // absolute seconds
	Dur         float64 // seconds
	ChannelID   int
	TickSeconds float64
	Effects     []ism.Effect
	Pan         *song.Pan // resolved event pan
	ChannelPan  *song.Pan // channel-default pan, the last fallback
}

// NewVoice builds the voice for one note event: the right source for the
// instrument type, register-quantized frequency, hardware envelope (or the
// legacy ADSR fallback), sweep schedule and inline effects.
func NewVoice(p NoteParams) (*synth.Voice, error) {
	if p.Inst == nil {
		return nil, fmt.Errorf("no instrument")
	}

	freq := QuantizeFreq(music.MidiToFreq(p.PitchMidi))

	v := &synth.Voice{
		ChannelID: p.ChannelID,
		Start:     p.Start,
		Dur:       p.Dur,
		Freq:      synth.NewParam(freq),
		Gain:      synth.NewParam(0),
		Pan:       synth.NewParam(panValue(p)),
		MaxLevel:  channelHeadroom,
	}

	switch p.Inst.Type {
	case song.TypePulse1, song.TypePulse2:
		v.Source = &synth.TableSource{Table: PulseTable(p.Inst.Duty / 100.0)}
		if p.Inst.Sweep != nil {
			applySweep(v, RegisterFromFreq(freq), *p.Inst.Sweep, p.Start, p.Dur)
		}

	case song.TypeWave:
		v.Source = &synth.TableSource{Table: WaveTable(p.Inst.Wave)}

	case song.TypeNoise:
		v.Source = NewNoiseSource(p.Inst.Noise)

	default:
		return nil, fmt.Errorf("instrument %s: unknown type %q", p.Inst.Name, p.Inst.Type)
	}

	envVals, envStep := applyEnvelope(v, p)

	ApplyEffects(&Context{
		Voice:       v,
		Inst:        p.Inst,
		Start:       p.Start,
		Dur:         p.Dur,
		ChannelID:   p.ChannelID,
		TickSeconds: p.TickSeconds,
		BaseFreq:    freq,
		EnvVals:     envVals,
		EnvStep:     envStep,
	}, p.Effects)

	return v, nil
}

func panValue(p NoteParams) float64 {
	if p.Pan != nil {
		return p.Pan.Value
	}
	if p.Inst.Pan != nil {
		return p.Inst.Pan.Value
	}
	if p.ChannelPan != nil {
		return p.ChannelPan.Value
	}
	return 0
}

// applyEnvelope schedules the volume automation: the hardware value curve on
// the 64 Hz envelope-frame grid, or the legacy ADSR when period is zero.
// Noise skips envelope automation when a gain-driving effect is present.
func applyEnvelope(v *synth.Voice, p NoteParams) ([]float64, float64) {
	if p.Inst.Type == song.TypeNoise && hasGainEffect(p.Effects) {
		v.Gain.SetValueAt(p.Start, float64(p.Inst.Env.Initial)/15.0)
		// volSlide schedules its own cutoff after its ramp; a cutoff queued
		// here first would hold the gain flat until the note ends.
		slides := false
		for _, fx := range p.Effects {
			if fx.Type == "volSlide" {
				slides = true
			}
		}
		if !slides {
			v.Gain.SetValueAt(p.Start+p.Dur, 0)
		}
		return nil, 0
	}

	vals, step := EnvelopeCurve(p.Inst.Env)
	if vals != nil {
		aligned := AlignToFrame(p.Start, 64)
		v.Gain.SetValueCurve(aligned, vals, step)
		v.Gain.SetValueAt(p.Start+p.Dur, 0)
		return vals, step
	}

	adsr := legacyADSRDefaults(p.Inst.Env)
	peak := float64(p.Inst.Env.Initial) / 15.0
	if p.Inst.Env.Legacy != nil {
		peak = 1
	}
	v.Gain.SetValueAt(p.Start, 0)
	v.Gain.LinearRampTo(p.Start+adsr.Attack, peak)
	v.Gain.LinearRampTo(p.Start+adsr.Attack+adsr.Decay, adsr.Sustain*peak)
	v.Gain.SetValueAt(p.Start+p.Dur, adsr.Sustain*peak)
	v.Gain.LinearRampTo(p.Start+p.Dur+adsr.Release, 0)
	v.Tail = adsr.Release
	return nil, 0
}

// applySweep schedules one frequency-set event per sweep tick; overflow
// silences the channel from that point.
func applySweep(v *synth.Voice, startReg int, sw song.Sweep, start, dur float64) {
	for _, step := range SweepSteps(startReg, sw, dur) {
		v.Freq.SetValueAt(start+step.Offset, step.Freq)
		if step.Silence {
			return
		}
	}
}

func hasGainEffect(effects []ism.Effect) bool {
	for _, fx := range effects {
		switch fx.Type {
		case "volSlide", "trem":
			return true
		}
	}
	return false
}
