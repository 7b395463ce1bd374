package player

import (
	"fmt"
	"log"

	"github.com/kadraman/beatbax/internal/gameboy"
	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/synth"
)

// renderTail keeps releases and echoes from clipping at the end of an
// offline render.
const renderTail = 1.0

// RenderSong renders the whole song deterministically into one stereo
// buffer using the same kernels live playback uses. Per-event kernel
// failures are logged and skipped.
func RenderSong(s *ism.Song, sampleRate int) (*synth.Buffer, error) {
	if s == nil {
		return nil, fmt.Errorf("no song")
	}

	buf := synth.NewBuffer(sampleRate, s.Duration()+renderTail)
	secondsPerTick := s.SecondsPerTick()

	for _, ch := range s.Channels {
		absTime := 0.0
		for i := range ch.Events {
			ev := &ch.Events[i]
			dur := float64(ev.Ticks) * secondsPerTick
			if ev.Type == ism.EventRest {
				absTime += dur
				continue
			}

			inst := s.Instrument(ev.Instrument)
			if inst == nil {
				// Unresolved instruments play silence, matching live playback.
				absTime += dur
				continue
			}

			pitch := ev.PitchMidi
			if ev.Type == ism.EventNamed && pitch == 0 {
				pitch = defaultNamedPitch
			}

			voice, err := gameboy.NewVoice(gameboy.NoteParams{
				Inst:        inst,
				PitchMidi:   pitch,
				Start:       absTime,
				Dur:         dur,
				ChannelID:   ch.ID,
				TickSeconds: secondsPerTick,
				Effects:     ev.Effects,
				Pan:         ev.Pan,
				ChannelPan:  ch.Pan,
			})
			if err != nil {
				log.Printf("[RENDER] channel %d event %d: %v", ch.ID, ev.EventIndex, err)
				absTime += dur
				continue
			}
			voice.RenderInto(buf, 0)
			absTime += dur
		}
	}

	buf.Clamp()
	return buf, nil
}
