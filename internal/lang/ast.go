package lang

import (
	"github.com/kadraman/beatbax/internal/song"
)

// SeqMod is one transform applied to a sequence item or pattern definition,
// e.g. oct(2), rev, slow(3), transpose(-2).
type SeqMod struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// SeqItem references a pattern or sequence by name with optional transforms
// and a repeat count.
type SeqItem struct {
	Name   string   `json:"name"`
	Mods   []SeqMod `json:"mods,omitempty"`
	Repeat int      `json:"repeat"` // >= 1
}

// PatternDef is a named pattern: its raw body token stream plus any
// definition-level modifiers (`pat X:rev = ...`), applied after expansion.
type PatternDef struct {
	Name string
	Mods []SeqMod
	Body []Token
}

// ImportDecl is an `import "<scheme:path>"` directive.
type ImportDecl struct {
	URL string
	Pos Pos
}

// PlayDecl marks the song for playback; Repeat loops it.
type PlayDecl struct {
	Repeat bool
}

// ExportDecl is an `export <format> "<path>"` directive.
type ExportDecl struct {
	Format string
	Path   string
}

// AST is the parsed, declaration-order-free form of a BeatBax source file.
type AST struct {
	Chip         string
	BPM          float64
	StepsPerBeat int // the `time` declaration
	StepsPerBar  int
	TicksPerStep int
	Title        string

	Insts    map[string]*song.Instrument
	Pats     map[string]*PatternDef
	Seqs     map[string][]SeqItem
	Channels []song.ChannelBinding
	Imports  []ImportDecl
	Play     *PlayDecl
	Exports  []ExportDecl

	// Metadata carries declarations the playback path ignores (song/effect/
	// arrange surfaces), keyed by keyword.
	Metadata map[string]string
}

// NewAST returns an AST with grid defaults applied: 120 BPM on a 16th-note
// grid (4 steps per beat, 1 tick per step, 16 steps per bar).
func NewAST() *AST {
	return &AST{
		Chip:         song.ChipGameBoy,
		BPM:          120,
		StepsPerBeat: 4,
		StepsPerBar:  16,
		TicksPerStep: 1,
		Insts:        make(map[string]*song.Instrument),
		Pats:         make(map[string]*PatternDef),
		Seqs:         make(map[string][]SeqItem),
		Metadata:     make(map[string]string),
	}
}

// SecondsPerTick derives the atomic grid duration from the tempo
// declarations: (60/bpm) / (stepsPerBeat × ticksPerStep).
func (a *AST) SecondsPerTick() float64 {
	return (60.0 / a.BPM) / float64(a.StepsPerBeat*a.TicksPerStep)
}

// TicksPerBar is the bar length on the tick grid.
func (a *AST) TicksPerBar() int {
	return a.StepsPerBar * a.TicksPerStep
}
