package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/song"
)

// UGE v6 geometry.
const (
	ugeVersion        = 6
	ugeShortstringLen = 256  // u8 length + 255 zero-padded bytes
	ugeInstrumentSize = 1381 // includes the 64-row subpattern table
	ugeInstrumentsPer = 15   // per bank: duty, wave, noise
	ugeWavetables     = 16
	ugeWavetableSize  = 32 // nibbles, one per byte
	ugeRowsPerPattern = 64
	ugeCellSize       = 17 // note:u32 inst:u32 unused:u32 fxCode:u32 fxParam:u8
	ugeRoutines       = 16
	ugeEmptyNote      = 90
	ugeNoteBase       = 48 // melodic index 0 = C-3 (MIDI 48); range 0..72
	ugeNoteMax        = 72
)

// UGE writes the song as a hUGETracker v6 module. Notes outside the
// tracker's range are transposed by octaves to fit; a note that cannot fit
// becomes an empty cell and a warning.
func UGE(s *ism.Song, path string) ([]Warning, error) {
	var warnings []Warning
	var buf bytes.Buffer

	le := func(v interface{}) {
		// Writes into a bytes.Buffer never fail.
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}

	le(uint32(ugeVersion))

	writeShortstring(&buf, s.Title)
	writeShortstring(&buf, "")
	writeShortstring(&buf, "made with beatbax")

	// Three instrument banks. Instrument mapping currently emits index 0
	// for every type; the banks carry defaults.
	for bank := 0; bank < 3; bank++ {
		for i := 0; i < ugeInstrumentsPer; i++ {
			writeInstrument(&buf, uint32(bank))
		}
	}

	// Wavetables: the first carries the song's first wave instrument if any.
	writeWavetables(&buf, s)

	le(initialTicksPerRow(s.BPM))
	buf.WriteByte(0)  // timerTempoEnabled
	le(uint32(0))     // timerTempoDivider

	patterns, orders, w := buildPatterns(s)
	warnings = append(warnings, w...)

	le(uint32(len(patterns)))
	for idx, cells := range patterns {
		le(uint32(idx))
		for _, cell := range cells {
			le(cell.note)
			le(cell.instrument)
			le(uint32(0)) // unused
			le(cell.effectCode)
			buf.WriteByte(cell.effectParam)
		}
	}

	for ch := 0; ch < 4; ch++ {
		order := orders[ch]
		le(uint32(len(order) + 1))
		for _, idx := range order {
			le(uint32(idx))
		}
		le(uint32(0)) // off-by-one filler
	}

	for i := 0; i < ugeRoutines; i++ {
		le(uint32(0)) // empty AnsiString
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return warnings, fmt.Errorf("write uge: %w", err)
	}
	log.Printf("[EXPORT] wrote %d bytes of UGE to %s (%d patterns)", buf.Len(), path, len(patterns))
	return warnings, nil
}

// writeShortstring writes a Pascal shortstring: u8 length then exactly 255
// bytes, zero padded.
func writeShortstring(buf *bytes.Buffer, s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	buf.Write(make([]byte, 255-len(s)))
}

// writeInstrument writes one 1381-byte instrument record: typed header
// fields, the name shortstring, a default parameter block and the 64-row
// subpattern table.
func writeInstrument(buf *bytes.Buffer, instType uint32) {
	start := buf.Len()

	_ = binary.Write(buf, binary.LittleEndian, instType)
	writeShortstring(buf, "")

	// Parameter block: length, envelope, bank-specific settings. Defaults
	// only; richer mapping is a forward-compatible extension.
	header := ugeInstrumentSize - 4 - ugeShortstringLen - ugeRowsPerPattern*ugeCellSize
	buf.Write(make([]byte, header))

	// Subpattern table: 64 empty rows.
	for row := 0; row < ugeRowsPerPattern; row++ {
		_ = binary.Write(buf, binary.LittleEndian, uint32(ugeEmptyNote))
		_ = binary.Write(buf, binary.LittleEndian, uint32(0))
		_ = binary.Write(buf, binary.LittleEndian, uint32(0))
		_ = binary.Write(buf, binary.LittleEndian, uint32(0))
		buf.WriteByte(0)
	}

	if buf.Len()-start != ugeInstrumentSize {
		// Layout drift would corrupt every following offset.
		panic(fmt.Sprintf("uge instrument record is %d bytes, want %d", buf.Len()-start, ugeInstrumentSize))
	}
}

func writeWavetables(buf *bytes.Buffer, s *ism.Song) {
	var firstWave []int
	for _, in := range sortedInsts(s) {
		if in.Type == song.TypeWave && len(in.Wave) > 0 {
			firstWave = in.Wave
			break
		}
	}

	for t := 0; t < ugeWavetables; t++ {
		table := make([]byte, ugeWavetableSize)
		if t == 0 && firstWave != nil {
			// The 16-sample table doubles up to fill 32 nibbles.
			for i := 0; i < ugeWavetableSize; i++ {
				table[i] = byte(firstWave[i%len(firstWave)] & 0x0F)
			}
		}
		buf.Write(table)
	}
}

func sortedInsts(s *ism.Song) []*song.Instrument {
	out := make([]*song.Instrument, 0, len(s.Insts))
	for _, in := range s.Insts {
		out = append(out, in)
	}
	// Stable order by name keeps exports deterministic.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Name > out[j].Name; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// initialTicksPerRow maps BPM onto the tracker's ticks-per-row tempo;
// 7 ≈ 120 BPM.
func initialTicksPerRow(bpm float64) uint32 {
	if bpm <= 0 {
		return 7
	}
	t := uint32(math.Round(840.0 / bpm))
	if t < 1 {
		t = 1
	}
	if t > 20 {
		t = 20
	}
	return t
}

type ugeCell struct {
	note        uint32
	instrument  uint32
	effectCode  uint32
	effectParam byte
}

func emptyPattern() []ugeCell {
	cells := make([]ugeCell, ugeRowsPerPattern)
	for i := range cells {
		cells[i].note = ugeEmptyNote
	}
	return cells
}

// buildPatterns lays each channel's events onto 64-row patterns, one tick
// per row, and builds the four order lists. An empty song still exports one
// shared empty pattern so the pool count stays nonzero.
func buildPatterns(s *ism.Song) ([][]ugeCell, [4][]int, []Warning) {
	var patterns [][]ugeCell
	var orders [4][]int
	var warnings []Warning

	patterns = append(patterns, emptyPattern())

	for chIdx := 0; chIdx < 4; chIdx++ {
		ch := findChannel(s, chIdx+1)
		if ch == nil || len(ch.Events) == 0 {
			orders[chIdx] = []int{0}
			continue
		}

		rows := make([]ugeCell, 0, ch.TotalTicks())
		for i := range ch.Events {
			ev := &ch.Events[i]
			cell := ugeCell{note: ugeEmptyNote}
			if ev.Type != ism.EventRest {
				if idx, ok := ugeNoteIndex(noteFor(ev)); ok {
					cell.note = idx
				} else {
					warnings = append(warnings, Warning{
						Format:  "uge",
						Message: fmt.Sprintf("channel %d event %d: note %q out of range, cell left empty", ch.ID, ev.EventIndex, ev.Token),
					})
				}
			}
			rows = append(rows, cell)
			for t := 1; t < ev.Ticks; t++ {
				rows = append(rows, ugeCell{note: ugeEmptyNote})
			}
		}

		for len(rows)%ugeRowsPerPattern != 0 {
			rows = append(rows, ugeCell{note: ugeEmptyNote})
		}
		for off := 0; off < len(rows); off += ugeRowsPerPattern {
			patterns = append(patterns, rows[off:off+ugeRowsPerPattern])
			orders[chIdx] = append(orders[chIdx], len(patterns)-1)
		}
		if len(orders[chIdx]) == 0 {
			orders[chIdx] = []int{0}
		}
	}

	return patterns, orders, warnings
}

func findChannel(s *ism.Song, id int) *ism.Channel {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

func noteFor(ev *ism.Event) int {
	if ev.PitchMidi > 0 {
		return ev.PitchMidi
	}
	return 0
}

// ugeNoteIndex maps a MIDI pitch into the tracker's melodic range 0..72
// (0 = C-3), transposing by octaves when needed.
func ugeNoteIndex(midi int) (uint32, bool) {
	if midi <= 0 {
		return 0, false
	}
	idx := midi - ugeNoteBase
	for idx < 0 {
		idx += 12
	}
	for idx > ugeNoteMax {
		idx -= 12
	}
	if idx < 0 || idx > ugeNoteMax {
		return 0, false
	}
	return uint32(idx), true
}
