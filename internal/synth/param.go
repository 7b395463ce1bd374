package synth

import (
	"math"
	"sort"
)

type autoKind int

const (
	autoSet autoKind = iota
	autoRamp
	autoCurve
)

type autoEvent struct {
	kind  autoKind
	time  float64
	value float64   // set/ramp target
	curve []float64 // curve values
	step  float64   // curve step period in seconds
}

// Param is an automatable scalar: a base value plus timed set/ramp/curve
// events and an optional sinusoidal LFO. Times are absolute seconds on the
// same clock as voice start times. ValueAt is pure and monotone-safe: events
// may be added in any order.
type Param struct {
	base   float64
	events []autoEvent
	sorted bool

	lfoRate  float64
	lfoDepth float64
	lfoFrom  float64
}

// NewParam returns a parameter holding a constant base value.
func NewParam(base float64) *Param {
	return &Param{base: base}
}

// Base returns the unautomated value.
func (p *Param) Base() float64 { return p.base }

// SetValueAt schedules an instantaneous value change.
func (p *Param) SetValueAt(t, v float64) {
	p.events = append(p.events, autoEvent{kind: autoSet, time: t, value: v})
	p.sorted = false
}

// LinearRampTo schedules a linear glide ending at time t with the given
// value; the glide starts from the previous event (or the base value).
func (p *Param) LinearRampTo(t, v float64) {
	p.events = append(p.events, autoEvent{kind: autoRamp, time: t, value: v})
	p.sorted = false
}

// SetValueCurve schedules a stepped value curve starting at time t, one entry
// per step period. The curve holds its final value afterwards.
func (p *Param) SetValueCurve(t float64, values []float64, step float64) {
	if len(values) == 0 {
		return
	}
	p.events = append(p.events, autoEvent{
		kind:  autoCurve,
		time:  t,
		curve: append([]float64(nil), values...),
		step:  step,
	})
	p.sorted = false
}

// SetLFO adds a sinusoidal modulation of the given rate (Hz) and depth,
// starting at time from.
func (p *Param) SetLFO(rate, depth, from float64) {
	p.lfoRate = rate
	p.lfoDepth = depth
	p.lfoFrom = from
}

func (p *Param) ensureSorted() {
	if p.sorted {
		return
	}
	sort.SliceStable(p.events, func(i, j int) bool { return p.events[i].time < p.events[j].time })
	p.sorted = true
}

// ValueAt evaluates the parameter at absolute time t.
func (p *Param) ValueAt(t float64) float64 {
	p.ensureSorted()

	v := p.base
	prevTime := math.Inf(-1)
	prevVal := p.base

	for _, ev := range p.events {
		switch ev.kind {
		case autoSet:
			if ev.time <= t {
				v = ev.value
				prevTime, prevVal = ev.time, ev.value
			} else {
				return p.withLFO(v, t)
			}

		case autoRamp:
			if ev.time <= t {
				v = ev.value
				prevTime, prevVal = ev.time, ev.value
			} else {
				// Mid-ramp: interpolate from the previous event.
				if math.IsInf(prevTime, -1) || ev.time == prevTime {
					return p.withLFO(ev.value, t)
				}
				frac := (t - prevTime) / (ev.time - prevTime)
				return p.withLFO(prevVal+(ev.value-prevVal)*frac, t)
			}

		case autoCurve:
			if ev.time <= t {
				idx := 0
				if ev.step > 0 {
					// The epsilon keeps exact step boundaries from
					// rounding down to the previous entry.
					idx = int((t-ev.time)/ev.step + 1e-9)
				}
				if idx >= len(ev.curve) {
					idx = len(ev.curve) - 1
				}
				v = ev.curve[idx]
				prevTime, prevVal = ev.time, v
			} else {
				return p.withLFO(v, t)
			}
		}
	}
	return p.withLFO(v, t)
}

func (p *Param) withLFO(v, t float64) float64 {
	if p.lfoDepth == 0 || t < p.lfoFrom {
		return v
	}
	return v + p.lfoDepth*math.Sin(2*math.Pi*p.lfoRate*(t-p.lfoFrom))
}
