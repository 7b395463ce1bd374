// Package ism defines the Internal Song Model: the fully resolved,
// per-channel event streams consumed by the player and the export sinks.
package ism

import (
	"fmt"

	"github.com/kadraman/beatbax/internal/song"
)

// EventType tags the event sum type.
type EventType string

const (
	EventRest  EventType = "rest"
	EventNote  EventType = "note"
	EventNamed EventType = "named"
)

// Effect is one effect attached to an event, e.g. {vib, [4, 2]}.
type Effect struct {
	Type   string   `json:"type"`
	Params []string `json:"params,omitempty"`
}

// Event is one resolved channel event. Note and Named events always carry
// source metadata: originating sequence, bar number and a channel-unique,
// monotonically increasing event index.
type Event struct {
	Type        EventType `json:"type"`
	Token       string    `json:"token,omitempty"`
	PitchMidi   int       `json:"pitchMidi,omitempty"`
	Instrument  string    `json:"instrument,omitempty"`
	Ticks       int       `json:"ticks"`
	Effects     []Effect  `json:"effects,omitempty"`
	Pan         *song.Pan `json:"pan,omitempty"`
	DefaultNote string    `json:"defaultNote,omitempty"`

	SourceSequence string `json:"sourceSequence,omitempty"`
	SourcePattern  string `json:"sourcePattern,omitempty"`
	BarNumber      int    `json:"barNumber"`
	EventIndex     int    `json:"eventIndex"`
}

// Channel is one hardware channel's resolved event stream.
type Channel struct {
	ID                int       `json:"id"`
	DefaultInstrument string    `json:"defaultInstrument,omitempty"`
	Speed             float64   `json:"speed"`
	Pan               *song.Pan `json:"pan,omitempty"`
	Events            []Event   `json:"events"`
}

// TotalTicks sums the tick durations of every event in the channel.
func (c *Channel) TotalTicks() int {
	total := 0
	for _, ev := range c.Events {
		total += ev.Ticks
	}
	return total
}

// Song is the resolved song: tempo grid, shared instrument definitions
// (read-only after resolve) and per-channel event streams.
type Song struct {
	Title        string                      `json:"title,omitempty"`
	Chip         string                      `json:"chip"`
	BPM          float64                     `json:"bpm"`
	StepsPerBeat int                         `json:"stepsPerBeat"`
	StepsPerBar  int                         `json:"stepsPerBar"`
	TicksPerStep int                         `json:"ticksPerStep"`
	Repeat       bool                        `json:"repeat,omitempty"`
	Insts        map[string]*song.Instrument `json:"insts"`
	Pats         map[string][]string         `json:"pats,omitempty"`
	Seqs         map[string][]string         `json:"seqs,omitempty"`
	Channels     []*Channel                  `json:"channels"`
}

// SecondsPerTick is the duration of one grid tick.
func (s *Song) SecondsPerTick() float64 {
	return (60.0 / s.BPM) / float64(s.StepsPerBeat*s.TicksPerStep)
}

// TicksPerBar is the bar length on the tick grid.
func (s *Song) TicksPerBar() int {
	return s.StepsPerBar * s.TicksPerStep
}

// Duration returns the song length in seconds (longest channel).
func (s *Song) Duration() float64 {
	maxTicks := 0
	for _, ch := range s.Channels {
		if t := ch.TotalTicks(); t > maxTicks {
			maxTicks = t
		}
	}
	return float64(maxTicks) * s.SecondsPerTick()
}

// Instrument looks up an instrument definition by name; nil when absent.
func (s *Song) Instrument(name string) *song.Instrument {
	if name == "" {
		return nil
	}
	return s.Insts[name]
}

// ResolveNote returns the MIDI pitch an event sounds at: the note's own pitch
// for Note events, the instrument default note for Named events. ok is false
// for rests and unresolvable named triggers.
func (s *Song) ResolveNote(ev *Event) (int, bool) {
	switch ev.Type {
	case EventNote:
		return ev.PitchMidi, true
	case EventNamed:
		if ev.PitchMidi != 0 {
			return ev.PitchMidi, true
		}
		return 0, false
	}
	return 0, false
}

// Validate checks structural invariants: channel ids, event index
// monotonicity and metadata presence on sounding events.
func (s *Song) Validate() error {
	for _, ch := range s.Channels {
		if ch.ID < 1 || ch.ID > 4 {
			return fmt.Errorf("channel id %d out of range", ch.ID)
		}
		lastIdx := -1
		for i, ev := range ch.Events {
			if ev.Type == EventRest {
				continue
			}
			if ev.SourceSequence == "" {
				return fmt.Errorf("channel %d event %d: missing source sequence", ch.ID, i)
			}
			if ev.BarNumber < 0 {
				return fmt.Errorf("channel %d event %d: negative bar number", ch.ID, i)
			}
			if ev.EventIndex <= lastIdx {
				return fmt.Errorf("channel %d event %d: event index not increasing", ch.ID, i)
			}
			lastIdx = ev.EventIndex
		}
	}
	return nil
}
