package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadraman/beatbax/internal/expand"
	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/lang"
)

func resolveSrc(t *testing.T, src string) (*ism.Song, []Warning) {
	t.Helper()
	ast, err := lang.Parse(src)
	require.NoError(t, err)
	s, warnings, err := Song(ast, nil)
	require.NoError(t, err)
	return s, warnings
}

func TestBasicMelody(t *testing.T) {
	// Scenario S1.
	s, warnings := resolveSrc(t, `
chip gameboy
bpm 120
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat mel = C4 E4 G4 C5
seq main = mel
channel 1 => inst lead seq main
`)
	assert.Empty(t, warnings)
	require.Len(t, s.Channels, 1)

	events := s.Channels[0].Events
	require.Len(t, events, 4)
	wantTokens := []string{"C4", "E4", "G4", "C5"}
	for i, ev := range events {
		assert.Equal(t, ism.EventNote, ev.Type)
		assert.Equal(t, wantTokens[i], ev.Token)
		assert.Equal(t, 1, ev.Ticks)
		assert.Equal(t, "lead", ev.Instrument)
		assert.Equal(t, "main", ev.SourceSequence)
		assert.Equal(t, i, ev.EventIndex)
	}
}

func TestRestAndReverse(t *testing.T) {
	// Scenario S2.
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4 . E4
seq s = p:rev
channel 1 => inst lead seq s
`)
	events := s.Channels[0].Events
	require.Len(t, events, 3)
	assert.Equal(t, "E4", events[0].Token)
	assert.Equal(t, ism.EventRest, events[1].Type)
	assert.Equal(t, "C4", events[2].Token)
}

func TestNamedTriggerImmediateHits(t *testing.T) {
	// Scenario S3.
	s, warnings := resolveSrc(t, `
inst snare type=noise env=gb:12,down,1
pat P = . . inst(snare,2)
channel 4 => inst snare pat P
`)
	assert.Empty(t, warnings)
	events := s.Channels[0].Events
	require.Len(t, events, 4)
	assert.Equal(t, ism.EventRest, events[0].Type)
	assert.Equal(t, ism.EventRest, events[1].Type)
	assert.Equal(t, ism.EventNamed, events[2].Type)
	assert.Equal(t, "snare", events[2].Instrument)
	assert.Equal(t, ism.EventNamed, events[3].Type)
	assert.Equal(t, "snare", events[3].Instrument)
}

func TestTemporaryOverride(t *testing.T) {
	// Scenario S4.
	s, _ := resolveSrc(t, `
inst temp type=pulse1 duty=50 env=gb:12,down,1
pat R = inst(temp,2) C4 D4 E4
channel 1 => inst temp pat R
`)
	events := s.Channels[0].Events
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, ism.EventNote, ev.Type)
		assert.Equal(t, "temp", ev.Instrument)
	}
}

func TestTemporaryOverrideReverts(t *testing.T) {
	s, _ := resolveSrc(t, `
inst a type=pulse1 duty=50 env=gb:12,down,1
inst b type=pulse1 duty=25 env=gb:12,down,1
pat R = inst(b,2) C4 D4 E4
channel 1 => inst a pat R
`)
	events := s.Channels[0].Events
	require.Len(t, events, 3)
	assert.Equal(t, "b", events[0].Instrument)
	assert.Equal(t, "b", events[1].Instrument)
	assert.Equal(t, "a", events[2].Instrument)
}

func TestInlineInstSwitch(t *testing.T) {
	s, _ := resolveSrc(t, `
inst a type=pulse1 duty=50 env=gb:12,down,1
inst b type=pulse1 duty=25 env=gb:12,down,1
pat R = C4 inst(b) D4 E4
channel 1 => inst a pat R
`)
	events := s.Channels[0].Events
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Instrument)
	assert.Equal(t, "b", events[1].Instrument)
	assert.Equal(t, "b", events[2].Instrument)
}

func TestTickCountInvariant(t *testing.T) {
	// Invariant 2: the event stream's total ticks match the expanded
	// token stream.
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4:2 . E4*3 ( G4 . )*2
channel 1 => inst lead pat p
`)
	ch := s.Channels[0]
	// C4:2 (2) + rest (1) + 3×E4 (3) + 2×(G4 + rest) (4) = 10 ticks
	assert.Equal(t, 10, ch.TotalTicks())
	assert.Len(t, ch.Events, 9)
}

func TestSourceMetadataInvariant(t *testing.T) {
	// Invariant 3: every Note/Named carries source metadata and unique,
	// increasing event indices.
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
inst kick type=noise env=gb:12,down,1 note=C2
pat a = C4 D4 kick
pat b = . E4
seq main = a b*2
channel 1 => inst lead seq main
`)
	ch := s.Channels[0]
	require.NoError(t, s.Validate())

	lastIdx := -1
	for _, ev := range ch.Events {
		if ev.Type == ism.EventRest {
			continue
		}
		assert.Equal(t, "main", ev.SourceSequence)
		assert.GreaterOrEqual(t, ev.BarNumber, 0)
		assert.Greater(t, ev.EventIndex, lastIdx)
		lastIdx = ev.EventIndex
	}
}

func TestBarNumbers(t *testing.T) {
	s, _ := resolveSrc(t, `
stepsPerBar 4
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4 D4 E4 F4 G4 A4
channel 1 => inst lead pat p
`)
	events := s.Channels[0].Events
	require.Len(t, events, 6)
	assert.Equal(t, 0, events[0].BarNumber)
	assert.Equal(t, 0, events[3].BarNumber)
	assert.Equal(t, 1, events[4].BarNumber)
}

func TestChannelSpeed(t *testing.T) {
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4:2 D4:2
channel 1 => inst lead pat p speed=2
`)
	events := s.Channels[0].Events
	require.Len(t, events, 2)
	// Duration 2 at double speed lands back on one tick.
	assert.Equal(t, 1, events[0].Ticks)
}

func TestUnknownReferencesWarn(t *testing.T) {
	ast, err := lang.Parse(`
pat p = C4
channel 1 => inst ghost pat p
channel 2 => inst ghost seq nosuch
`)
	require.NoError(t, err)

	var seen []Warning
	s, warnings, err := Song(ast, func(w Warning) { seen = append(seen, w) })
	require.NoError(t, err)
	assert.Equal(t, warnings, seen)
	assert.NotEmpty(t, warnings)

	// Best-effort song still produced; the unresolved note still emits.
	require.Len(t, s.Channels, 2)
	require.Len(t, s.Channels[0].Events, 1)
	assert.Equal(t, "ghost", s.Channels[0].Events[0].Instrument)
	assert.Empty(t, s.Channels[1].Events)
}

func TestSequenceCycleIsFatal(t *testing.T) {
	ast, err := lang.Parse("seq a = b\nseq b = a\nchannel 1 => inst x seq a\n")
	require.NoError(t, err)
	_, _, err = Song(ast, nil)
	require.Error(t, err)
	var cerr *expand.CycleError
	assert.ErrorAs(t, err, &cerr)
}

func TestEmptyChannelIsValid(t *testing.T) {
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p =
channel 1 => inst lead pat p
`)
	require.Len(t, s.Channels, 1)
	assert.Empty(t, s.Channels[0].Events)
}

func TestEffectAttachment(t *testing.T) {
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4<vib:4,2> D4
channel 1 => inst lead pat p
`)
	events := s.Channels[0].Events
	require.Len(t, events, 2)
	require.Len(t, events[0].Effects, 1)
	assert.Equal(t, ism.Effect{Type: "vib", Params: []string{"4", "2"}}, events[0].Effects[0])
	assert.Empty(t, events[1].Effects)
}

func TestPanResolution(t *testing.T) {
	s, _ := resolveSrc(t, `
inst lead type=pulse1 duty=50 env=gb:12,down,1
pat p = C4<pan:L> D4
seq s = p:pan(R)
channel 1 => inst lead seq s
`)
	events := s.Channels[0].Events
	require.Len(t, events, 2)
	// The pan() transform stamps every note; the inline effect is kept too.
	require.NotNil(t, events[0].Pan)
	assert.Equal(t, 1.0, events[0].Pan.Value)
	require.NotNil(t, events[1].Pan)
	assert.Equal(t, 1.0, events[1].Pan.Value)
}

func TestNamedDefaultNote(t *testing.T) {
	s, _ := resolveSrc(t, `
inst kick type=noise env=gb:12,down,1 note=C2
pat p = kick
channel 4 => inst kick pat p
`)
	ev := s.Channels[0].Events[0]
	assert.Equal(t, ism.EventNamed, ev.Type)
	assert.Equal(t, "C2", ev.DefaultNote)
	assert.Equal(t, 36, ev.PitchMidi)
}
