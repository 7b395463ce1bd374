package render

import (
	"sync"

	"github.com/kadraman/beatbax/internal/synth"
)

type activeSplice struct {
	chID       int
	startFrame int64
	buf        *synth.Buffer
}

// Line is the live output: it holds spliced segment buffers on an absolute
// frame timeline and pumps mixed audio into a sink in order. It implements
// the renderer's Output.
type Line struct {
	mu         sync.Mutex
	sampleRate int
	sink       synth.Sink
	splices    []activeSplice
	written    int64 // frames already pumped to the sink
}

// NewLine returns a line feeding the given sink.
func NewLine(sink synth.Sink, sampleRate int) *Line {
	return &Line{sink: sink, sampleRate: sampleRate}
}

// Splice schedules a buffer to begin playing at its absolute start time.
// Portions already pumped are dropped.
func (l *Line) Splice(sp Splice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.splices = append(l.splices, activeSplice{
		chID:       sp.ChannelID,
		startFrame: int64(sp.Start * float64(l.sampleRate)),
		buf:        sp.Buf,
	})
}

// Drop disconnects all of one channel's splices.
func (l *Line) Drop(chID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.splices[:0]
	for _, sp := range l.splices {
		if sp.chID != chID {
			kept = append(kept, sp)
		}
	}
	l.splices = kept
}

// DropAll disconnects everything.
func (l *Line) DropAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.splices = nil
}

// ActiveSplices reports splices still holding unplayed audio.
func (l *Line) ActiveSplices(chID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, sp := range l.splices {
		if (chID < 0 || sp.chID == chID) && sp.startFrame+int64(sp.buf.Frames()) > l.written {
			n++
		}
	}
	return n
}

// Pump mixes and writes every frame up to the given absolute time. Called
// from the scheduler's driver loop.
func (l *Line) Pump(until float64) error {
	l.mu.Lock()
	target := int64(until * float64(l.sampleRate))
	if target <= l.written {
		l.mu.Unlock()
		return nil
	}
	n := int(target - l.written)
	left := make([]float64, n)
	right := make([]float64, n)

	kept := l.splices[:0]
	for _, sp := range l.splices {
		end := sp.startFrame + int64(sp.buf.Frames())
		for i := 0; i < n; i++ {
			frame := l.written + int64(i)
			if frame < sp.startFrame || frame >= end {
				continue
			}
			j := int(frame - sp.startFrame)
			left[i] += sp.buf.L[j]
			right[i] += sp.buf.R[j]
		}
		if end > target {
			kept = append(kept, sp)
		}
	}
	l.splices = kept
	l.written = target
	sink := l.sink
	l.mu.Unlock()

	return sink.WriteStereo(left, right)
}
