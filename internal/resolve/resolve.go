// Package resolve converts a parsed AST into the Internal Song Model:
// per-channel event streams with resolved instruments, tick durations,
// attached effects and source metadata. Unknown references are warnings, not
// errors; the resolver always produces a best-effort song.
package resolve

import (
	"fmt"
	"math"
	"strings"

	"github.com/kadraman/beatbax/internal/expand"
	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/lang"
	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
)

// Warning is a non-fatal resolution diagnostic.
type Warning struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Loc       *lang.Pos `json:"loc,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Component, w.Message)
}

// Song resolves the AST into an ISM song. Warnings are delivered through
// onWarn as they occur (onWarn may be nil) and returned as a list. Sequence
// reference cycles are the only fatal condition.
func Song(ast *lang.AST, onWarn func(Warning)) (*ism.Song, []Warning, error) {
	var warnings []Warning
	warn := func(component, msg string) {
		w := Warning{Component: component, Message: msg}
		warnings = append(warnings, w)
		if onWarn != nil {
			onWarn(w)
		}
	}

	s := &ism.Song{
		Title:        ast.Title,
		Chip:         ast.Chip,
		BPM:          ast.BPM,
		StepsPerBeat: ast.StepsPerBeat,
		StepsPerBar:  ast.StepsPerBar,
		TicksPerStep: ast.TicksPerStep,
		Insts:        ast.Insts,
		Pats:         stringifyPats(ast),
		Seqs:         stringifySeqs(ast),
	}
	if ast.Play != nil {
		s.Repeat = ast.Play.Repeat
	}

	for _, binding := range ast.Channels {
		if !binding.IsPattern {
			if _, isPat := ast.Pats[binding.SequenceRef]; isPat {
				warn("resolve", fmt.Sprintf("channel %d: seq %q is a pattern; binding it directly", binding.ID, binding.SequenceRef))
			}
		}
		toks, err := expand.Sequence(ast, binding.SequenceRef, func(msg string) {
			warn("expand", msg)
		})
		if err != nil {
			return nil, warnings, err
		}

		ch := &ism.Channel{
			ID:                binding.ID,
			DefaultInstrument: binding.DefaultInstrument,
			Speed:             binding.Speed,
			Pan:               binding.Pan,
			Events:            resolveChannel(ast, binding.SequenceRef, binding, toks, warn),
		}
		if binding.DefaultInstrument != "" && ast.Insts[binding.DefaultInstrument] == nil {
			warn("resolve", fmt.Sprintf("channel %d: unknown instrument %q", binding.ID, binding.DefaultInstrument))
		}
		s.Channels = append(s.Channels, ch)
	}

	return s, warnings, nil
}

type channelWalk struct {
	ast         *lang.AST
	speed       float64
	ticksPerBar int

	currentInst string
	tempInst    string
	tempLeft    int

	cumTicks   int
	eventIndex int
	events     []ism.Event
}

func resolveChannel(ast *lang.AST, seqName string, binding song.ChannelBinding, toks []expand.Token, warn func(component, msg string)) []ism.Event {
	w := &channelWalk{
		ast:         ast,
		speed:       binding.Speed,
		ticksPerBar: ast.TicksPerBar(),
		currentInst: binding.DefaultInstrument,
	}

	for i, tok := range toks {
		switch tok.Kind {
		case expand.Inst:
			if ast.Insts[tok.Text] == nil {
				warn("resolve", fmt.Sprintf("channel %d: inst() references unknown instrument %q", binding.ID, tok.Text))
			}
			if tok.Count > 0 {
				if hasSoundingTokens(toks[i+1:]) {
					w.tempInst = tok.Text
					w.tempLeft = tok.Count
				} else {
					// No events follow: the override becomes immediate hits.
					for n := 0; n < tok.Count; n++ {
						w.emitNamed(tok, tok.Text, seqName, warn, binding.ID)
					}
				}
			} else {
				w.currentInst = tok.Text
			}

		case expand.Rest:
			w.events = append(w.events, ism.Event{
				Type:           ism.EventRest,
				Ticks:          w.ticksFor(tok.Dur),
				SourceSequence: tok.SourceSequence,
				SourcePattern:  tok.SourcePattern,
				BarNumber:      w.cumTicks / w.ticksPerBar,
				EventIndex:     w.eventIndex,
			})
			w.cumTicks += w.ticksFor(tok.Dur)
			w.eventIndex++

		case expand.Note:
			pitch, err := music.NoteToMidi(tok.Text)
			if err != nil {
				warn("resolve", fmt.Sprintf("channel %d: invalid note %q", binding.ID, tok.Text))
				continue
			}
			instName := w.noteInstrument()
			if instName != "" && w.ast.Insts[instName] == nil {
				warn("resolve", fmt.Sprintf("channel %d: note %s references unknown instrument %q", binding.ID, tok.Text, instName))
			}
			ev := ism.Event{
				Type:           ism.EventNote,
				Token:          tok.Text,
				PitchMidi:      pitch,
				Instrument:     instName,
				Ticks:          w.ticksFor(tok.Dur),
				Effects:        convertEffects(tok.Effects),
				Pan:            resolvePan(tok),
				SourceSequence: tok.SourceSequence,
				SourcePattern:  tok.SourcePattern,
				BarNumber:      w.cumTicks / w.ticksPerBar,
				EventIndex:     w.eventIndex,
			}
			w.events = append(w.events, ev)
			w.cumTicks += ev.Ticks
			w.eventIndex++

		case expand.Named:
			w.emitNamed(tok, tok.Text, seqName, warn, binding.ID)
		}
	}
	return w.events
}

func (w *channelWalk) emitNamed(tok expand.Token, name, seqName string, warn func(string, string), chID int) {
	inst := w.ast.Insts[name]
	if inst == nil {
		warn("resolve", fmt.Sprintf("channel %d: unknown named trigger %q", chID, name))
	}
	ev := ism.Event{
		Type:           ism.EventNamed,
		Token:          name,
		Ticks:          w.ticksFor(tok.Dur),
		Effects:        convertEffects(tok.Effects),
		Pan:            resolvePan(tok),
		SourceSequence: tok.SourceSequence,
		SourcePattern:  tok.SourcePattern,
		BarNumber:      w.cumTicks / w.ticksPerBar,
		EventIndex:     w.eventIndex,
	}
	if ev.SourceSequence == "" {
		ev.SourceSequence = seqName
	}
	if inst != nil {
		ev.Instrument = name
		ev.DefaultNote = inst.DefaultNote
		if inst.DefaultNote != "" {
			if pitch, err := music.NoteToMidi(inst.DefaultNote); err == nil {
				ev.PitchMidi = pitch
			}
		}
	}
	w.events = append(w.events, ev)
	w.cumTicks += ev.Ticks
	w.eventIndex++
}

// noteInstrument returns the instrument the next note-producing event uses,
// consuming a temporary override slot when one is active.
func (w *channelWalk) noteInstrument() string {
	if w.tempLeft > 0 {
		w.tempLeft--
		return w.tempInst
	}
	return w.currentInst
}

// ticksFor converts a duration multiplier to grid ticks honoring the channel
// speed, rounding to the grid but never below one tick.
func (w *channelWalk) ticksFor(dur int) int {
	if dur < 1 {
		dur = 1
	}
	ticks := int(math.Round(float64(dur) / w.speed))
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

func hasSoundingTokens(toks []expand.Token) bool {
	for _, t := range toks {
		if t.Kind == expand.Note || t.Kind == expand.Named {
			return true
		}
	}
	return false
}

func convertEffects(effects []expand.Effect) []ism.Effect {
	if len(effects) == 0 {
		return nil
	}
	out := make([]ism.Effect, len(effects))
	for i, fx := range effects {
		out[i] = ism.Effect{Type: fx.Type, Params: append([]string(nil), fx.Params...)}
	}
	return out
}

// resolvePan picks an event's pan: a pan() transform wins, else a
// single-value inline pan effect resolves here. Ramping pan effects stay in
// the effects list for the DSP layer.
func resolvePan(tok expand.Token) *song.Pan {
	if tok.Pan != nil {
		p := *tok.Pan
		return &p
	}
	for _, fx := range tok.Effects {
		if fx.Type == "pan" && len(fx.Params) == 1 {
			if p, err := song.ParsePan(fx.Params[0]); err == nil {
				return &p
			}
		}
	}
	return nil
}

func stringifyPats(ast *lang.AST) map[string][]string {
	if len(ast.Pats) == 0 {
		return nil
	}
	out := make(map[string][]string, len(ast.Pats))
	for name, def := range ast.Pats {
		toks := expand.Pattern(def, func(string) {})
		strs := make([]string, len(toks))
		for i, t := range toks {
			strs[i] = t.String()
		}
		out[name] = strs
	}
	return out
}

func stringifySeqs(ast *lang.AST) map[string][]string {
	if len(ast.Seqs) == 0 {
		return nil
	}
	out := make(map[string][]string, len(ast.Seqs))
	for name, items := range ast.Seqs {
		strs := make([]string, len(items))
		for i, item := range items {
			var sb strings.Builder
			sb.WriteString(item.Name)
			for _, mod := range item.Mods {
				sb.WriteByte(':')
				sb.WriteString(mod.Name)
				if len(mod.Args) > 0 {
					sb.WriteByte('(')
					sb.WriteString(strings.Join(mod.Args, ","))
					sb.WriteByte(')')
				}
			}
			if item.Repeat > 1 {
				fmt.Fprintf(&sb, "*%d", item.Repeat)
			}
			strs[i] = sb.String()
		}
		out[name] = strs
	}
	return out
}
