package music

import (
	"fmt"
	"math"
	"strings"
)

// noteOffsets maps a note letter to its semitone offset within an octave.
var noteOffsets = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// IsNoteToken reports whether tok looks like a note identifier of the form
// <letter><accidental?><octave>, e.g. "C4", "F#3", "Bb2". Octaves 0-8.
func IsNoteToken(tok string) bool {
	_, err := NoteToMidi(tok)
	return err == nil
}

// NoteToMidi converts a note token like "C4", "G#2" or "Eb5" to a MIDI note
// number. C4 maps to MIDI 60.
func NoteToMidi(tok string) (int, error) {
	if len(tok) < 2 || len(tok) > 3 {
		return 0, fmt.Errorf("invalid note %q", tok)
	}

	offset, ok := noteOffsets[tok[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note letter in %q", tok)
	}

	rest := tok[1:]
	switch rest[0] {
	case '#':
		offset++
		rest = rest[1:]
	case 'b':
		offset--
		rest = rest[1:]
	}

	if len(rest) != 1 || rest[0] < '0' || rest[0] > '8' {
		return 0, fmt.Errorf("invalid octave in note %q", tok)
	}
	octave := int(rest[0] - '0')

	// C4 = 60, so octave N starts at 12*(N+1)
	midi := 12*(octave+1) + offset
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("note %q out of MIDI range", tok)
	}
	return midi, nil
}

// MidiToNoteName converts MIDI note number (0-127) to a note name like "C4"
// or "F#3". MIDI note 60 = C4.
func MidiToNoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "---"
	}

	noteNames := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

	octave := (midiNote / 12) - 1
	noteName := noteNames[midiNote%12]

	return fmt.Sprintf("%s%d", noteName, octave)
}

// Transpose shifts a note token by the given number of semitones, wrapping
// back into the MIDI range at the extremes. Non-note tokens pass through.
func Transpose(tok string, semitones int) string {
	midi, err := NoteToMidi(tok)
	if err != nil {
		return tok
	}
	midi += semitones
	for midi < 0 {
		midi += 12
	}
	for midi > 127 {
		midi -= 12
	}
	return MidiToNoteName(midi)
}

// ShiftOctave shifts a note token by whole octaves.
func ShiftOctave(tok string, octaves int) string {
	return Transpose(tok, 12*octaves)
}

// MidiToFreq converts a MIDI note number to a frequency in Hz (A4 = 440 Hz).
func MidiToFreq(midi int) float64 {
	return 440.0 * math.Pow(2.0, float64(midi-69)/12.0)
}

// NormalizeAccidental rewrites flat spellings to the sharp spellings used
// internally, so "Db4" and "C#4" compare equal after resolution.
func NormalizeAccidental(tok string) string {
	midi, err := NoteToMidi(tok)
	if err != nil {
		return tok
	}
	return MidiToNoteName(midi)
}

// DrumKey maps percussion trigger names to General MIDI drum keys.
// Unknown names fall back to 39 (hand clap).
func DrumKey(name string) int {
	switch strings.ToLower(name) {
	case "hh", "hat", "hihat":
		return 42
	case "sn", "snare":
		return 38
	case "kick", "bd":
		return 36
	default:
		return 39
	}
}
