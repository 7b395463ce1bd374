// Package render implements the buffered offline renderer: events are
// grouped into fixed time segments, each segment is rendered asynchronously
// into its own buffer ahead of time, and finished buffers are spliced into
// the live output at their segment start. Past a pre-render cap, events fall
// back to direct scheduling.
package render

import (
	"log"
	"math"
	"sync"

	"github.com/kadraman/beatbax/internal/sched"
	"github.com/kadraman/beatbax/internal/synth"
)

// Defaults for segmentation.
const (
	DefaultSegmentDur  = 0.5  // seconds
	DefaultLookahead   = 0.25 // render this early
	DefaultTail        = 0.25 // extra render length past the segment
	DefaultMaxSegments = 16
)

// Closure renders one event into a buffer whose frame 0 is at absolute time
// origin.
type Closure struct {
	ChannelID int
	Render    func(buf *synth.Buffer, origin float64)
}

// Splice is one finished segment buffer for one channel group.
type Splice struct {
	ChannelID int // -1 for a whole-segment splice spanning channels
	Start     float64
	Buf       *synth.Buffer
}

// Output receives spliced buffers and drop requests. The live line
// implements this; tests substitute recorders.
type Output interface {
	Splice(sp Splice)
	Drop(chID int)
	DropAll()
}

type segment struct {
	start    float64
	closures []Closure
	rendered bool
}

// Renderer is the buffered renderer.
type Renderer struct {
	mu          sync.Mutex
	sched       *sched.Scheduler
	out         Output
	sampleRate  int
	segDur      float64
	lookahead   float64
	tail        float64
	maxSegments int

	segments map[int64]*segment // keyed by segment index
	gen      int                // bumped by StopAll; orphans in-flight renders
	chGen    map[int]int        // per-channel generation
}

// New returns a renderer splicing into out through the given scheduler.
func New(s *sched.Scheduler, out Output, sampleRate int) *Renderer {
	return &Renderer{
		sched:       s,
		out:         out,
		sampleRate:  sampleRate,
		segDur:      DefaultSegmentDur,
		lookahead:   DefaultLookahead,
		tail:        DefaultTail,
		maxSegments: DefaultMaxSegments,
		segments:    make(map[int64]*segment),
		chGen:       make(map[int]int),
	}
}

// SetMaxSegments overrides the pre-render back-pressure cap.
func (r *Renderer) SetMaxSegments(n int) {
	r.mu.Lock()
	r.maxSegments = n
	r.mu.Unlock()
}

// SetSegmentDur overrides the segment duration (tests).
func (r *Renderer) SetSegmentDur(d float64) {
	r.mu.Lock()
	r.segDur = d
	r.mu.Unlock()
}

// Enqueue registers a render closure for the segment containing absTime.
// When the pre-render cap is exceeded, the closure is instead scheduled
// directly at absTime and rendered unbuffered, which preserves correctness
// at the cost of smoothness.
func (r *Renderer) Enqueue(chID int, absTime float64, fn func(buf *synth.Buffer, origin float64)) {
	r.mu.Lock()

	idx := int64(math.Floor(absTime / r.segDur))
	seg, ok := r.segments[idx]
	if ok && seg.rendered {
		// The segment's render already ran; late arrivals go direct.
		gen := r.gen
		chgen := r.chGen[chID]
		r.mu.Unlock()
		r.sched.Schedule(absTime, func() {
			r.directRender(chID, absTime, fn, gen, chgen)
		})
		return
	}
	if !ok {
		if len(r.segments) >= r.maxSegments {
			gen := r.gen
			chgen := r.chGen[chID]
			r.mu.Unlock()
			log.Printf("[RENDER] segment cap reached; direct-scheduling event at %.3f", absTime)
			r.sched.Schedule(absTime, func() {
				r.directRender(chID, absTime, fn, gen, chgen)
			})
			return
		}
		seg = &segment{start: float64(idx) * r.segDur}
		r.segments[idx] = seg
		renderAt := seg.start - r.lookahead
		if renderAt < 0 {
			renderAt = 0
		}
		gen := r.gen
		r.sched.Schedule(renderAt, func() { r.renderSegment(idx, gen) })
	}
	seg.closures = append(seg.closures, Closure{ChannelID: chID, Render: fn})
	r.mu.Unlock()
}

// renderSegment renders all closures of one segment asynchronously and
// splices the result at the segment start.
func (r *Renderer) renderSegment(idx int64, gen int) {
	r.mu.Lock()
	seg, ok := r.segments[idx]
	if !ok || gen != r.gen || seg.rendered {
		r.mu.Unlock()
		return
	}
	seg.rendered = true
	closures := append([]Closure(nil), seg.closures...)
	start := seg.start
	chGens := make(map[int]int, len(closures))
	for _, c := range closures {
		chGens[c.ChannelID] = r.chGen[c.ChannelID]
	}
	segDur, tail, sr := r.segDur, r.tail, r.sampleRate
	r.mu.Unlock()

	go func() {
		byChannel := make(map[int][]Closure)
		for _, c := range closures {
			byChannel[c.ChannelID] = append(byChannel[c.ChannelID], c)
		}

		for chID, chClosures := range byChannel {
			buf := synth.NewBuffer(sr, segDur+tail)
			for _, c := range chClosures {
				c.Render(buf, start)
			}

			r.mu.Lock()
			valid := gen == r.gen && chGens[chID] == r.chGen[chID]
			r.mu.Unlock()
			if !valid {
				// Segment was cleared while rendering; discard.
				continue
			}
			r.out.Splice(Splice{ChannelID: chID, Start: start, Buf: buf})
		}

		r.mu.Lock()
		delete(r.segments, idx)
		r.mu.Unlock()
	}()
}

// directRender is the unbuffered fallback path: render one event into a
// buffer of its own and splice it immediately.
func (r *Renderer) directRender(chID int, absTime float64, fn func(*synth.Buffer, float64), gen, chgen int) {
	r.mu.Lock()
	valid := gen == r.gen && chgen == r.chGen[chID]
	sr, segDur, tail := r.sampleRate, r.segDur, r.tail
	r.mu.Unlock()
	if !valid {
		return
	}

	buf := synth.NewBuffer(sr, segDur+tail)
	fn(buf, absTime)
	r.out.Splice(Splice{ChannelID: chID, Start: absTime, Buf: buf})
}

// PendingSegments reports how many segments await rendering.
func (r *Renderer) PendingSegments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// StopAll clears all pending segments and disconnects all spliced output.
// In-flight renders discard their results.
func (r *Renderer) StopAll() {
	r.mu.Lock()
	r.segments = make(map[int64]*segment)
	r.gen++
	r.mu.Unlock()
	r.out.DropAll()
}

// StopChannel removes one channel's pending closures and disconnects only
// its spliced output; other channels are untouched.
func (r *Renderer) StopChannel(chID int) {
	r.mu.Lock()
	for idx, seg := range r.segments {
		kept := seg.closures[:0]
		for _, c := range seg.closures {
			if c.ChannelID != chID {
				kept = append(kept, c)
			}
		}
		seg.closures = kept
		if len(seg.closures) == 0 && !seg.rendered {
			delete(r.segments, idx)
		}
	}
	r.chGen[chID]++
	r.mu.Unlock()
	r.out.Drop(chID)
}
