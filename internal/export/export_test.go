package export

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/lang"
	"github.com/kadraman/beatbax/internal/resolve"
	"github.com/kadraman/beatbax/internal/song"
)

func testSong(t *testing.T) *ism.Song {
	t.Helper()
	ast, err := lang.Parse(`
chip gameboy
bpm 120
inst lead type=pulse1 duty=50 env=gb:12,down,1
inst snare type=noise env=gb:12,down,1
pat mel = C4 E4 G4 C5
pat drums = snare . sn .
seq main = mel
channel 1 => inst lead seq main
channel 4 => inst snare pat drums
`)
	require.NoError(t, err)
	s, _, err := resolve.Song(ast, nil)
	require.NoError(t, err)
	return s
}

func emptySong() *ism.Song {
	return &ism.Song{
		Chip:         song.ChipGameBoy,
		BPM:          120,
		StepsPerBeat: 4,
		StepsPerBar:  16,
		TicksPerStep: 1,
		Insts:        map[string]*song.Instrument{},
	}
}

func TestJSONExportRoundTrips(t *testing.T) {
	s := testSong(t)
	path := filepath.Join(t.TempDir(), "song.json")
	require.NoError(t, JSON(s, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := ism.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestBundleExport(t *testing.T) {
	s := testSong(t)
	path := filepath.Join(t.TempDir(), "song.json.gz")
	warnings, err := Export(s, "bundle", path)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	got, err := ism.LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestMIDIExport(t *testing.T) {
	s := testSong(t)
	path := filepath.Join(t.TempDir(), "song.mid")
	warnings, err := MIDI(s, path)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 14)

	// SMF header: "MThd", format 1, 3 tracks (tempo + 2 channels), PPQ 480.
	assert.Equal(t, "MThd", string(data[0:4]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(data[8:10]))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(data[10:12]))
	assert.Equal(t, uint16(480), binary.BigEndian.Uint16(data[12:14]))
}

func TestUGEExportStructure(t *testing.T) {
	// Scenario S6: empty ISM produces a structurally complete module.
	path := filepath.Join(t.TempDir(), "song.uge")
	warnings, err := UGE(emptySong(), path)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(data), 60000)
	assert.LessOrEqual(t, len(data), 70000)

	// Bytes 0..3 little-endian equal 6.
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[0:4]))

	// Pattern pool count >= 1 at its fixed offset: version + 3 shortstrings
	// + 45 instruments + 16 wavetables + tempo block.
	off := 4 + 3*256 + 45*1381 + 16*32 + 4 + 1 + 4
	count := binary.LittleEndian.Uint32(data[off : off+4])
	assert.GreaterOrEqual(t, count, uint32(1))
}

func TestUGEExportWithSong(t *testing.T) {
	s := testSong(t)
	path := filepath.Join(t.TempDir(), "song.uge")
	_, err := UGE(s, path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[0:4]))
	assert.Greater(t, len(data), 60000)
}

func TestUGENoteIndex(t *testing.T) {
	// Melodic index 0 = C-3 (MIDI 48).
	idx, ok := ugeNoteIndex(48)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)

	idx, ok = ugeNoteIndex(60)
	require.True(t, ok)
	assert.Equal(t, uint32(12), idx)

	// Out-of-range notes transpose by octaves to fit.
	idx, ok = ugeNoteIndex(24)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)

	_, ok = ugeNoteIndex(0)
	assert.False(t, ok)
}

func TestInitialTicksPerRow(t *testing.T) {
	assert.Equal(t, uint32(7), initialTicksPerRow(120))
	assert.NotZero(t, initialTicksPerRow(999))
	assert.NotZero(t, initialTicksPerRow(1))
}

func TestWAVExport(t *testing.T) {
	s := testSong(t)
	path := filepath.Join(t.TempDir(), "song.wav")
	require.NoError(t, WAV(s, path, 8000))

	seconds, rate, frames, err := WAVInfo(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), rate)
	assert.Greater(t, frames, int64(8000))
	// Song is 0.5 s plus the render tail.
	assert.InDelta(t, 1.5, seconds, 0.1)
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(testSong(t), "flac", "out.flac")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")
}

func TestGMProgramMap(t *testing.T) {
	assert.Equal(t, uint8(80), gmProgram(song.TypePulse1))
	assert.Equal(t, uint8(34), gmProgram(song.TypePulse2))
	assert.Equal(t, uint8(81), gmProgram(song.TypeWave))
}
