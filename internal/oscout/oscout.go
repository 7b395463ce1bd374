// Package oscout broadcasts playback state over OSC so external tools
// (editors, visualizers) can follow scheduling and position changes.
package oscout

import (
	"fmt"
	"log"

	"github.com/hypebeast/go-osc/osc"

	"github.com/kadraman/beatbax/internal/player"
)

// Broadcaster sends playback messages to one OSC endpoint.
type Broadcaster struct {
	client *osc.Client
}

// New returns a broadcaster targeting localhost on the given port.
func New(port int) *Broadcaster {
	return &Broadcaster{client: osc.NewClient("localhost", port)}
}

// Attach wires the broadcaster onto a player's observers.
func (b *Broadcaster) Attach(p *player.Player) {
	p.OnSchedule(func(info player.ScheduleInfo) {
		b.send("/beatbax/schedule",
			int32(info.ChannelID), info.Inst, info.Token,
			float32(info.Time), float32(info.Dur),
			int32(info.EventIndex), int32(info.TotalEvents))
	})
	p.OnPositionChange(func(chID, eventIndex, totalEvents int) {
		b.send("/beatbax/position", int32(chID), int32(eventIndex), int32(totalEvents))
	})
}

// Playback announces playback start/stop for a source file.
func (b *Broadcaster) Playback(path string, playing bool) {
	playingInt := int32(0)
	if playing {
		playingInt = 1
	}
	b.send("/beatbax/playback", path, playingInt)
}

func (b *Broadcaster) send(address string, args ...interface{}) {
	msg := osc.NewMessage(address)
	for _, a := range args {
		msg.Append(a)
	}
	if err := b.client.Send(msg); err != nil {
		log.Printf("[OSC] send %s failed: %v", address, err)
		return
	}
	log.Printf("[OSC] sent %s %s", address, fmt.Sprint(args...))
}
