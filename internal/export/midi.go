package export

import (
	"fmt"
	"log"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
)

// SMF geometry: 480 pulses per quarter, one source tick (a 16th) = 120.
const (
	midiPPQ          = 480
	midiTicksPerTick = 120
	drumChannel      = 9
	defaultVelocity  = 100
)

// gmProgram maps an instrument type to its General MIDI program.
func gmProgram(instType string) uint8 {
	switch instType {
	case song.TypePulse1:
		return 80 // square lead
	case song.TypePulse2:
		return 34 // picked bass
	case song.TypeWave:
		return 81 // saw lead
	}
	return 0
}

// MIDI writes the song as a Type-1 SMF: track 0 carries the tempo, then one
// track per channel. Noise channels land on the GM percussion channel with
// the drum-key map; melodic channels get a Program Change whenever their
// instrument changes.
func MIDI(s *ism.Song, path string) ([]Warning, error) {
	var warnings []Warning

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(midiPPQ)

	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(4, 4))
	track0.Add(0, smf.MetaTempo(s.BPM))
	if s.Title != "" {
		track0.Add(0, smf.MetaTrackSequenceName(s.Title))
	}
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		return warnings, fmt.Errorf("add tempo track: %w", err)
	}

	if len(s.Channels) > 16 {
		return warnings, fmt.Errorf("cannot export %d channels: SMF limit is 16", len(s.Channels))
	}

	for chIdx, ch := range s.Channels {
		track, w := channelTrack(s, ch, uint8(chIdx))
		warnings = append(warnings, w...)
		if err := sm.Add(track); err != nil {
			return warnings, fmt.Errorf("add track for channel %d: %w", ch.ID, err)
		}
	}

	if err := sm.WriteFile(path); err != nil {
		return warnings, fmt.Errorf("write midi file: %w", err)
	}
	log.Printf("[EXPORT] wrote MIDI to %s (%d tracks)", path, len(s.Channels)+1)
	return warnings, nil
}

func channelTrack(s *ism.Song, ch *ism.Channel, chIdx uint8) (smf.Track, []Warning) {
	var track smf.Track
	var warnings []Warning

	isDrum := isNoiseChannel(s, ch)
	midiCh := chIdx
	if isDrum {
		midiCh = drumChannel
	}

	var lastTick uint32
	var currentTick uint32
	currentProgram := -1

	for i := range ch.Events {
		ev := &ch.Events[i]
		durTicks := uint32(ev.Ticks) * midiTicksPerTick
		if ev.Type == ism.EventRest {
			currentTick += durTicks
			continue
		}

		key, ok := midiKey(s, ev, isDrum)
		if !ok {
			warnings = append(warnings, Warning{Format: "midi", Message: fmt.Sprintf("channel %d event %d: no playable pitch for %q", ch.ID, ev.EventIndex, ev.Token)})
			currentTick += durTicks
			continue
		}

		if !isDrum {
			if prog := programFor(s, ev.Instrument); prog >= 0 && prog != currentProgram {
				track.Add(currentTick-lastTick, midi.ProgramChange(midiCh, uint8(prog)))
				lastTick = currentTick
				currentProgram = prog
			}
		}

		track.Add(currentTick-lastTick, midi.NoteOn(midiCh, key, defaultVelocity))
		lastTick = currentTick

		offDelta := durTicks
		if offDelta > 0 {
			offDelta--
		}
		track.Add(offDelta, midi.NoteOff(midiCh, key))
		lastTick += offDelta
		currentTick += durTicks
	}

	if currentTick > lastTick {
		track.Close(currentTick - lastTick)
	} else {
		track.Close(0)
	}
	return track, warnings
}

func isNoiseChannel(s *ism.Song, ch *ism.Channel) bool {
	if song.ChannelType(ch.ID) == song.TypeNoise {
		return true
	}
	if inst := s.Instrument(ch.DefaultInstrument); inst != nil {
		return inst.Type == song.TypeNoise
	}
	return false
}

func programFor(s *ism.Song, instName string) int {
	inst := s.Instrument(instName)
	if inst == nil {
		return -1
	}
	return int(gmProgram(inst.Type))
}

func midiKey(s *ism.Song, ev *ism.Event, isDrum bool) (uint8, bool) {
	if isDrum {
		return uint8(music.DrumKey(ev.Token)), true
	}
	pitch := ev.PitchMidi
	if pitch == 0 && ev.Type == ism.EventNamed {
		if ev.DefaultNote != "" {
			if m, err := music.NoteToMidi(ev.DefaultNote); err == nil {
				pitch = m
			}
		}
	}
	if pitch <= 0 || pitch > 127 {
		return 0, false
	}
	return uint8(pitch), true
}
