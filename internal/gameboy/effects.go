package gameboy

import (
	"log"
	"math"
	"strconv"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
	"github.com/kadraman/beatbax/internal/synth"
)

// VibratoDepthScale converts a vibrato depth step into Hz of frequency
// deviation. The value is tuned by ear against tracker playback and is
// exposed so hosts can re-tune it.
var VibratoDepthScale = 2.0

// Context is what an effect handler gets to work with: the voice under
// construction plus the timing and pitch facts of its note.
type Context struct {
	Voice       *synth.Voice
	Inst        *song.Instrument
	Start       float64
	Dur         float64
	ChannelID   int
	TickSeconds float64
	BaseFreq    float64
	EnvVals     []float64
	EnvStep     float64
}

// Handler mutates a voice to apply one effect. Handlers are best-effort:
// bad parameters degrade to a no-op.
type Handler func(ctx *Context, params []string)

// Handlers is the effect registry. Inline effects run in source order;
// channel-default pan is applied by the caller only when no pan was set.
var Handlers = map[string]Handler{
	"pan":      fxPan,
	"vib":      fxVibrato,
	"port":     fxPortamento,
	"arp":      fxArpeggio,
	"volSlide": fxVolSlide,
	"trem":     fxTremolo,
	"echo":     fxEcho,
	"retrig":   fxRetrig,
	"sweep":    fxSweep,
}

// ApplyEffects runs each inline effect against the voice, in source order.
// Unknown effect types are skipped silently (logged for debugging only).
func ApplyEffects(ctx *Context, effects []ism.Effect) {
	for _, fx := range effects {
		h, ok := Handlers[fx.Type]
		if !ok {
			log.Printf("[FX] no handler for effect %q; skipping", fx.Type)
			continue
		}
		h(ctx, fx.Params)
	}
}

// fxPan sets a static pan from one param, or a ramp across the note from two.
func fxPan(ctx *Context, params []string) {
	switch len(params) {
	case 1:
		if p, err := song.ParsePan(params[0]); err == nil {
			ctx.Voice.Pan.SetValueAt(ctx.Start, p.Value)
		}
	case 2:
		from, err1 := song.ParsePan(params[0])
		to, err2 := song.ParsePan(params[1])
		if err1 == nil && err2 == nil {
			ctx.Voice.Pan.SetValueAt(ctx.Start, from.Value)
			ctx.Voice.Pan.LinearRampTo(ctx.Start+ctx.Dur, to.Value)
		}
	}
}

// fxVibrato adds an LFO on the oscillator frequency: <vib:depth,rateHz>.
func fxVibrato(ctx *Context, params []string) {
	depth := paramFloat(params, 0, 1)
	rate := paramFloat(params, 1, 5)
	ctx.Voice.Freq.SetLFO(rate, depth*VibratoDepthScale, ctx.Start)
}

// fxPortamento glides linearly to a target: <port:C5> or <port:+12>.
func fxPortamento(ctx *Context, params []string) {
	if len(params) == 0 {
		return
	}
	var target float64
	if midi, err := music.NoteToMidi(params[0]); err == nil {
		target = QuantizeFreq(music.MidiToFreq(midi))
	} else if semis, err := strconv.ParseFloat(params[0], 64); err == nil {
		target = QuantizeFreq(ctx.BaseFreq * math.Pow(2, semis/12.0))
	} else {
		return
	}
	ctx.Voice.Freq.SetValueAt(ctx.Start, ctx.BaseFreq)
	ctx.Voice.Freq.LinearRampTo(ctx.Start+ctx.Dur, target)
}

// fxArpeggio steps rapidly through a semitone list, cycling for the whole
// note: <arp:0,4,7>. Steps land on half-tick boundaries.
func fxArpeggio(ctx *Context, params []string) {
	if len(params) == 0 {
		return
	}
	offsets := make([]float64, 0, len(params))
	for _, p := range params {
		semis, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		offsets = append(offsets, semis)
	}

	stepDur := ctx.TickSeconds / 2
	if stepDur <= 0 {
		return
	}
	for i := 0; float64(i)*stepDur < ctx.Dur; i++ {
		off := offsets[i%len(offsets)]
		f := QuantizeFreq(ctx.BaseFreq * math.Pow(2, off/12.0))
		ctx.Voice.Freq.SetValueAt(ctx.Start+float64(i)*stepDur, f)
	}
}

// fxVolSlide ramps the gain by a signed 0..15 amount over the note:
// <volSlide:-8>.
func fxVolSlide(ctx *Context, params []string) {
	amount := paramFloat(params, 0, -15)
	from := float64(ctx.Inst.Env.Initial) / 15.0
	to := from + amount/15.0
	if to < 0 {
		to = 0
	}
	if to > 1 {
		to = 1
	}
	ctx.Voice.Gain.SetValueAt(ctx.Start, from)
	ctx.Voice.Gain.LinearRampTo(ctx.Start+ctx.Dur, to)
	ctx.Voice.Gain.SetValueAt(ctx.Start+ctx.Dur, 0)
}

// fxTremolo adds an LFO on the gain: <trem:depth,rateHz> with depth in 0..15.
func fxTremolo(ctx *Context, params []string) {
	depth := paramFloat(params, 0, 4) / 15.0
	rate := paramFloat(params, 1, 6)
	ctx.Voice.Gain.SetLFO(rate, depth, ctx.Start)
}

// fxEcho adds a delayed replay: <echo:delayTicks,gainPercent>.
func fxEcho(ctx *Context, params []string) {
	delayTicks := paramFloat(params, 0, 2)
	gain := paramFloat(params, 1, 50) / 100.0
	if delayTicks <= 0 || gain <= 0 {
		return
	}
	delay := delayTicks * ctx.TickSeconds
	ctx.Voice.Echoes = append(ctx.Voice.Echoes, synth.EchoTap{Delay: delay, Gain: gain})
	if tail := delay; ctx.Voice.Tail < tail {
		ctx.Voice.Tail = tail
	}
}

// fxRetrig resets the source phase and replays the envelope N times across
// the note: <retrig:4>.
func fxRetrig(ctx *Context, params []string) {
	count := int(paramFloat(params, 0, 2))
	if count < 2 {
		return
	}
	interval := ctx.Dur / float64(count)
	for i := 1; i < count; i++ {
		at := ctx.Start + float64(i)*interval
		ctx.Voice.Retrigs = append(ctx.Voice.Retrigs, at)
		if ctx.EnvVals != nil {
			ctx.Voice.Gain.SetValueCurve(AlignToFrame(at, 64), ctx.EnvVals, ctx.EnvStep)
		}
	}
	if ctx.EnvVals != nil {
		// Keep the end-of-note cutoff after the replayed curves.
		ctx.Voice.Gain.SetValueAt(ctx.Start+ctx.Dur, 0)
	}
}

// fxSweep applies a register sweep from inline parameters:
// <sweep:time,direction,shift>.
func fxSweep(ctx *Context, params []string) {
	if len(params) < 3 {
		return
	}
	t, err1 := strconv.Atoi(params[0])
	sh, err2 := strconv.Atoi(params[2])
	if err1 != nil || err2 != nil {
		return
	}
	dir := song.EnvDown
	if params[1] == "up" {
		dir = song.EnvUp
	}
	applySweep(ctx.Voice, RegisterFromFreq(ctx.BaseFreq), song.Sweep{Time: t, Direction: dir, Shift: sh}, ctx.Start, ctx.Dur)
}

func paramFloat(params []string, idx int, def float64) float64 {
	if idx >= len(params) {
		return def
	}
	v, err := strconv.ParseFloat(params[idx], 64)
	if err != nil {
		return def
	}
	return v
}
