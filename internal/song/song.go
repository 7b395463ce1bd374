// Package song holds the BeatBax song data model shared by the parser,
// resolver, player and exporters: instruments, channel bindings and the
// scalar values instrument definitions are built from.
package song

import (
	"fmt"
	"strconv"
	"strings"
)

// Chip identifies a synthesis target. Only the Game Boy is implemented, but
// the field is carried so additional chips can be admitted later.
const ChipGameBoy = "gameboy"

// Instrument types, mapped onto the four Game Boy channels.
const (
	TypePulse1 = "pulse1"
	TypePulse2 = "pulse2"
	TypeWave   = "wave"
	TypeNoise  = "noise"
)

// EnvDirection is the direction a Game Boy volume envelope walks.
type EnvDirection string

const (
	EnvUp   EnvDirection = "up"
	EnvDown EnvDirection = "down"
)

// Envelope is the Game Boy hardware envelope form. When Period is zero and
// Legacy is set, playback falls back to the legacy ADSR shape.
type Envelope struct {
	Initial   int          `json:"initial"`   // 0..15
	Direction EnvDirection `json:"direction"` // up or down
	Period    int          `json:"period"`    // 0..7, in envelope frames
	Legacy    *ADSR        `json:"legacy,omitempty"`
}

// ADSR is the legacy envelope used when no hardware envelope period is set.
type ADSR struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

// Sweep is the pulse1 frequency sweep unit.
type Sweep struct {
	Time      int          `json:"time"`      // 0..7, in 128 Hz ticks
	Direction EnvDirection `json:"direction"` // up or down
	Shift     int          `json:"shift"`     // 0..7
}

// Noise holds the LFSR parameters for the noise channel.
type Noise struct {
	Width   int `json:"width"`   // 15 or 7
	Divisor int `json:"divisor"` // clock divisor
	Shift   int `json:"shift"`   // clock shift
}

// Pan is a stereo position in -1..+1 (L=-1, C=0, R=+1).
type Pan struct {
	Value float64 `json:"value"`
}

// ParsePan interprets L/C/R or a numeric value in -1..1.
func ParsePan(s string) (Pan, error) {
	switch strings.ToUpper(s) {
	case "L":
		return Pan{Value: -1}, nil
	case "C":
		return Pan{Value: 0}, nil
	case "R":
		return Pan{Value: 1}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < -1 || v > 1 {
		return Pan{}, fmt.Errorf("invalid pan %q", s)
	}
	return Pan{Value: v}, nil
}

// Instrument is a named sound definition. Shared by reference after resolve;
// read-only from then on.
type Instrument struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Duty        float64   `json:"duty,omitempty"` // percent: 12.5, 25, 50, 75
	Env         Envelope  `json:"env"`
	Sweep       *Sweep    `json:"sweep,omitempty"`
	Wave        []int     `json:"wave,omitempty"` // 16 nibbles 0..15 after normalization
	Noise       *Noise    `json:"noise,omitempty"`
	Pan         *Pan      `json:"pan,omitempty"`
	DefaultNote string    `json:"defaultNote,omitempty"`
}

// ChannelBinding ties a hardware channel to an instrument and a sequence.
type ChannelBinding struct {
	ID                int     `json:"id"` // 1..4
	DefaultInstrument string  `json:"defaultInstrument"`
	SequenceRef       string  `json:"sequenceRef"`
	IsPattern         bool    `json:"isPattern,omitempty"` // channel bound via `pat P`
	Speed             float64 `json:"speed"`
	Pan               *Pan    `json:"pan,omitempty"`
}

// ChannelType returns the instrument type a channel id maps to.
func ChannelType(id int) string {
	switch id {
	case 1:
		return TypePulse1
	case 2:
		return TypePulse2
	case 3:
		return TypeWave
	case 4:
		return TypeNoise
	}
	return ""
}

// waveTableLen is the chip wave RAM width in samples.
const waveTableLen = 16

// NormalizeWave pads or truncates a nibble table to the chip width and clamps
// entries to 0..15.
func NormalizeWave(table []int) []int {
	out := make([]int, waveTableLen)
	for i := 0; i < waveTableLen; i++ {
		v := 0
		if i < len(table) {
			v = table[i]
		}
		if v < 0 {
			v = 0
		}
		if v > 15 {
			v = 15
		}
		out[i] = v
	}
	return out
}

// Validate checks the chip-level invariants on an instrument.
func (in *Instrument) Validate() error {
	switch in.Type {
	case TypePulse1, TypePulse2:
		switch in.Duty {
		case 12.5, 25, 50, 75:
		default:
			return fmt.Errorf("instrument %s: pulse duty must be 12.5, 25, 50 or 75, got %v", in.Name, in.Duty)
		}
	case TypeWave:
		if len(in.Wave) != waveTableLen {
			return fmt.Errorf("instrument %s: wave table must be %d samples, got %d", in.Name, waveTableLen, len(in.Wave))
		}
	case TypeNoise:
		if in.Noise == nil {
			return fmt.Errorf("instrument %s: noise instrument missing noise parameters", in.Name)
		}
		if in.Noise.Width != 7 && in.Noise.Width != 15 {
			return fmt.Errorf("instrument %s: noise width must be 7 or 15, got %d", in.Name, in.Noise.Width)
		}
	default:
		return fmt.Errorf("instrument %s: unknown type %q", in.Name, in.Type)
	}

	if in.Env.Initial < 0 || in.Env.Initial > 15 {
		return fmt.Errorf("instrument %s: envelope initial must be 0..15, got %d", in.Name, in.Env.Initial)
	}
	if in.Env.Period < 0 || in.Env.Period > 7 {
		return fmt.Errorf("instrument %s: envelope period must be 0..7, got %d", in.Name, in.Env.Period)
	}
	if in.Sweep != nil {
		if in.Type != TypePulse1 && in.Type != TypePulse2 {
			return fmt.Errorf("instrument %s: sweep is only valid on pulse instruments", in.Name)
		}
		if in.Sweep.Time < 0 || in.Sweep.Time > 7 || in.Sweep.Shift < 0 || in.Sweep.Shift > 7 {
			return fmt.Errorf("instrument %s: sweep time and shift must be 0..7", in.Name)
		}
	}
	return nil
}
