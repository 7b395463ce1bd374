// Package player schedules a resolved song onto the tick scheduler and the
// buffered renderer, maintains the active-voice registry and mute/solo
// state, and reports scheduling and position changes to observers.
package player

import (
	"fmt"
	"log"
	"sync"

	"github.com/kadraman/beatbax/internal/gameboy"
	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/render"
	"github.com/kadraman/beatbax/internal/sched"
	"github.com/kadraman/beatbax/internal/song"
	"github.com/kadraman/beatbax/internal/synth"
)

// startDelay gives the renderer room to pre-render the opening segments.
const startDelay = 0.1

// enqueueLead is how far before its start time an event enters the buffered
// renderer: one segment plus the render lookahead plus slack.
const enqueueLead = render.DefaultSegmentDur + render.DefaultLookahead + 0.1

// defaultNamedPitch sounds named triggers whose instrument declares no
// default note.
const defaultNamedPitch = 60 // C4

// ScheduleInfo describes one event as it is scheduled, for observers.
type ScheduleInfo struct {
	ChannelID   int
	Inst        string
	Token       string
	Time        float64
	Dur         float64
	EventIndex  int
	TotalEvents int
}

type voiceKey struct {
	chID    int
	startUs int64
}

type activeVoice struct {
	voice   *synth.Voice
	chID    int
	endTime float64
}

// Player owns playback state for one song at a time.
type Player struct {
	mu         sync.Mutex
	song       *ism.Song
	sched      *sched.Scheduler
	renderer   *render.Renderer
	line       *render.Line
	sampleRate int

	muted   map[int]bool
	solo    int // 0 = none
	active  map[voiceKey]*activeVoice
	chGen   map[int]int
	playing bool

	onSchedule func(ScheduleInfo)
	onPosition func(chID, eventIndex, totalEvents int)
}

// New wires a player over a scheduler, a buffered renderer and its line.
func New(s *sched.Scheduler, r *render.Renderer, line *render.Line, sampleRate int) *Player {
	return &Player{
		sched:      s,
		renderer:   r,
		line:       line,
		sampleRate: sampleRate,
		muted:      make(map[int]bool),
		active:     make(map[voiceKey]*activeVoice),
		chGen:      make(map[int]int),
	}
}

// OnSchedule registers the per-event scheduling observer.
func (p *Player) OnSchedule(fn func(ScheduleInfo)) {
	p.mu.Lock()
	p.onSchedule = fn
	p.mu.Unlock()
}

// OnPositionChange registers the position observer, invoked from each
// event's schedule callback.
func (p *Player) OnPositionChange(fn func(chID, eventIndex, totalEvents int)) {
	p.mu.Lock()
	p.onPosition = fn
	p.mu.Unlock()
}

// IsPlaying reports whether a song is currently scheduled.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Song returns the song being played, if any.
func (p *Player) Song() *ism.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.song
}

// PlaySong resets playback state and schedules every channel's event stream
// against the audio clock. Each note event triggers its chip kernel at the
// event's absolute time.
func (p *Player) PlaySong(s *ism.Song) error {
	if s == nil {
		return fmt.Errorf("no song")
	}

	p.Stop()

	p.mu.Lock()
	p.song = s
	p.playing = true
	p.mu.Unlock()

	base := p.sched.Clock().Now() + startDelay
	secondsPerTick := s.SecondsPerTick()

	for _, ch := range s.Channels {
		p.scheduleChannel(s, ch, base, secondsPerTick)
	}

	p.pumpLoop()
	log.Printf("[PLAYER] scheduled %d channels from t=%.3f", len(s.Channels), base)
	return nil
}

func (p *Player) scheduleChannel(s *ism.Song, ch *ism.Channel, base, secondsPerTick float64) {
	p.mu.Lock()
	gen := p.chGen[ch.ID]
	p.mu.Unlock()

	absTime := base
	total := len(ch.Events)

	for i := range ch.Events {
		ev := &ch.Events[i]
		dur := float64(ev.Ticks) * secondsPerTick
		if ev.Type == ism.EventRest {
			absTime += dur
			continue
		}

		evTime := absTime
		event := ev
		enqueueAt := evTime - enqueueLead
		if enqueueAt < 0 {
			enqueueAt = 0
		}
		p.sched.Schedule(enqueueAt, func() {
			p.fireEvent(s, ch, event, evTime, dur, total, gen)
		})

		absTime += dur
	}
}

// fireEvent runs when an event's enqueue moment arrives: it checks channel
// generation and mute state, hands a render closure to the buffered
// renderer, registers the voice, and notifies observers.
func (p *Player) fireEvent(s *ism.Song, ch *ism.Channel, ev *ism.Event, evTime, dur float64, total int, gen int) {
	p.mu.Lock()
	if !p.playing || gen != p.chGen[ch.ID] || !p.audibleLocked(ch.ID) {
		p.mu.Unlock()
		return
	}
	onSchedule := p.onSchedule
	onPosition := p.onPosition
	p.mu.Unlock()

	inst := s.Instrument(ev.Instrument)
	if inst != nil {
		pitch := ev.PitchMidi
		if ev.Type == ism.EventNamed && pitch == 0 {
			pitch = defaultNamedPitch
		}

		voice, err := gameboy.NewVoice(gameboy.NoteParams{
			Inst:        inst,
			PitchMidi:   pitch,
			Start:       evTime,
			Dur:         dur,
			ChannelID:   ch.ID,
			TickSeconds: s.SecondsPerTick(),
			Effects:     ev.Effects,
			Pan:         ev.Pan,
			ChannelPan:  channelPan(ch),
		})
		if err != nil {
			// One failed event must not stop the song.
			log.Printf("[PLAYER] channel %d event %d: %v", ch.ID, ev.EventIndex, err)
		} else {
			p.registerVoice(ch.ID, voice)
			p.renderer.Enqueue(ch.ID, evTime, func(buf *synth.Buffer, origin float64) {
				voice.RenderInto(buf, origin)
			})
		}
	}

	if onSchedule != nil {
		onSchedule(ScheduleInfo{
			ChannelID:   ch.ID,
			Inst:        ev.Instrument,
			Token:       ev.Token,
			Time:        evTime,
			Dur:         dur,
			EventIndex:  ev.EventIndex,
			TotalEvents: total,
		})
	}
	if onPosition != nil {
		p.sched.Schedule(evTime, func() {
			onPosition(ch.ID, ev.EventIndex, total)
		})
	}
}

func channelPan(ch *ism.Channel) *song.Pan {
	return ch.Pan
}

func (p *Player) registerVoice(chID int, v *synth.Voice) {
	key := voiceKey{chID: chID, startUs: int64(v.Start * 1e6)}
	p.mu.Lock()
	p.active[key] = &activeVoice{voice: v, chID: chID, endTime: v.End()}
	p.mu.Unlock()

	p.sched.Schedule(v.End(), func() {
		p.mu.Lock()
		delete(p.active, key)
		p.mu.Unlock()
	})
}

// ActiveVoices counts registered voices, all channels when chID < 0.
func (p *Player) ActiveVoices(chID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, av := range p.active {
		if chID < 0 || av.chID == chID {
			n++
		}
	}
	return n
}

// pumpLoop keeps the output line fed from the scheduler's driver.
func (p *Player) pumpLoop() {
	var tick func()
	tick = func() {
		p.mu.Lock()
		playing := p.playing
		p.mu.Unlock()
		if !playing {
			return
		}
		now := p.sched.Clock().Now()
		if p.line != nil {
			if err := p.line.Pump(now); err != nil {
				log.Printf("[PLAYER] output pump: %v", err)
			}
		}
		p.sched.Schedule(now+sched.DefaultInterval.Seconds(), tick)
	}
	p.sched.Schedule(p.sched.Clock().Now(), tick)
}

// Stop clears the scheduler, drains the buffered renderer and drops all
// active voices. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	wasPlaying := p.playing
	p.playing = false
	p.active = make(map[voiceKey]*activeVoice)
	for id := range p.chGen {
		p.chGen[id]++
	}
	p.mu.Unlock()

	p.sched.Clear()
	p.renderer.StopAll()
	if wasPlaying {
		log.Printf("[PLAYER] stopped")
	}
}

// StopChannel stops only one channel: its pending render closures, spliced
// output and active voices. Other channels keep playing.
func (p *Player) StopChannel(chID int) {
	p.mu.Lock()
	p.chGen[chID]++
	for key, av := range p.active {
		if av.chID == chID {
			delete(p.active, key)
		}
	}
	p.mu.Unlock()
	p.renderer.StopChannel(chID)
	log.Printf("[PLAYER] stopped channel %d", chID)
}

// ToggleChannelMute flips a channel's mute flag. Muted channels skip kernel
// invocation; already-enqueued audio is dropped.
func (p *Player) ToggleChannelMute(chID int) bool {
	p.mu.Lock()
	p.muted[chID] = !p.muted[chID]
	nowMuted := p.muted[chID]
	p.mu.Unlock()
	if nowMuted {
		p.renderer.StopChannel(chID)
	}
	return nowMuted
}

// ToggleChannelSolo solos a channel (silencing the rest) or clears the solo
// when called for the current solo channel. Solo overrides mute for the
// soloed channel.
func (p *Player) ToggleChannelSolo(chID int) bool {
	p.mu.Lock()
	if p.solo == chID {
		p.solo = 0
	} else {
		p.solo = chID
	}
	active := p.solo == chID
	p.mu.Unlock()
	return active
}

// IsMuted reports a channel's mute flag.
func (p *Player) IsMuted(chID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted[chID]
}

// Solo returns the soloed channel, 0 when none.
func (p *Player) Solo() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.solo
}

func (p *Player) audibleLocked(chID int) bool {
	if p.solo != 0 {
		return chID == p.solo
	}
	return !p.muted[chID]
}
