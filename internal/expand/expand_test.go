package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadraman/beatbax/internal/lang"
)

// pat lexes a pattern body and wraps it in a definition.
func pat(t *testing.T, body string, mods ...lang.SeqMod) *lang.PatternDef {
	t.Helper()
	toks, err := lang.Lex(body)
	require.NoError(t, err)
	// Drop the trailing EOF (and any newline) tokens.
	var clean []lang.Token
	for _, tok := range toks {
		if tok.Kind == lang.TokEOF || tok.Kind == lang.TokNewline {
			continue
		}
		clean = append(clean, tok)
	}
	return &lang.PatternDef{Name: "p", Mods: mods, Body: clean}
}

func texts(toks []Token) []string {
	out := make([]string, len(toks))
	for i, tok := range toks {
		out[i] = tok.String()
	}
	return out
}

func noWarn(t *testing.T) func(string) {
	t.Helper()
	return func(msg string) { t.Errorf("unexpected warning: %s", msg) }
}

func TestPatternBasic(t *testing.T) {
	toks := Pattern(pat(t, "C4 E4 G4 C5"), noWarn(t))
	assert.Equal(t, []string{"C4", "E4", "G4", "C5"}, texts(toks))
	for _, tok := range toks {
		assert.Equal(t, Note, tok.Kind)
		assert.Equal(t, 1, tok.Dur)
	}
}

func TestPatternRestsAndNamed(t *testing.T) {
	toks := Pattern(pat(t, "C4 . kick ."), noWarn(t))
	require.Len(t, toks, 4)
	assert.Equal(t, Note, toks[0].Kind)
	assert.Equal(t, Rest, toks[1].Kind)
	assert.Equal(t, Named, toks[2].Kind)
	assert.Equal(t, "kick", toks[2].Text)
	assert.Equal(t, Rest, toks[3].Kind)
}

func TestPatternTokenRepeat(t *testing.T) {
	// Invariant: tok*N expands to exactly N copies.
	toks := Pattern(pat(t, "C4*3 ."), noWarn(t))
	assert.Equal(t, []string{"C4", "C4", "C4", "."}, texts(toks))
}

func TestPatternGroupRepeat(t *testing.T) {
	// Invariant: (g)*N expands to N × |g| tokens.
	toks := Pattern(pat(t, "( C4 E4 G4 )*2"), noWarn(t))
	assert.Equal(t, []string{"C4", "E4", "G4", "C4", "E4", "G4"}, texts(toks))
}

func TestPatternNestedGroups(t *testing.T) {
	toks := Pattern(pat(t, "( C4 ( D4 )*2 )*2"), noWarn(t))
	assert.Equal(t, []string{"C4", "D4", "D4", "C4", "D4", "D4"}, texts(toks))
}

func TestPatternDuration(t *testing.T) {
	toks := Pattern(pat(t, "C4:4 D4"), noWarn(t))
	require.Len(t, toks, 2)
	assert.Equal(t, 4, toks[0].Dur)
	assert.Equal(t, 1, toks[1].Dur)
}

func TestPatternInlineEffects(t *testing.T) {
	toks := Pattern(pat(t, "C4<vib:4,2> D4 E4<vib:1><pan:L>"), noWarn(t))
	require.Len(t, toks, 3)

	require.Len(t, toks[0].Effects, 1)
	assert.Equal(t, Effect{Type: "vib", Params: []string{"4", "2"}}, toks[0].Effects[0])

	// Effects attach to the token they follow, not the next one.
	assert.Empty(t, toks[1].Effects)

	require.Len(t, toks[2].Effects, 2)
	assert.Equal(t, "vib", toks[2].Effects[0].Type)
	assert.Equal(t, Effect{Type: "pan", Params: []string{"L"}}, toks[2].Effects[1])
}

func TestPatternEffectSurvivesRepeat(t *testing.T) {
	toks := Pattern(pat(t, "C4<vib:2>*3"), noWarn(t))
	require.Len(t, toks, 3)
	for _, tok := range toks {
		require.Len(t, tok.Effects, 1)
		assert.Equal(t, "vib", tok.Effects[0].Type)
	}
}

func TestPatternInstDirectives(t *testing.T) {
	toks := Pattern(pat(t, "inst(lead) C4 inst(snare,2) D4"), noWarn(t))
	require.Len(t, toks, 4)
	assert.Equal(t, Inst, toks[0].Kind)
	assert.Equal(t, "lead", toks[0].Text)
	assert.Equal(t, 0, toks[0].Count)
	assert.Equal(t, Inst, toks[2].Kind)
	assert.Equal(t, "snare", toks[2].Text)
	assert.Equal(t, 2, toks[2].Count)
}

func TestPatternDefModifiers(t *testing.T) {
	toks := Pattern(pat(t, "C4 D4 E4", lang.SeqMod{Name: "rev"}), noWarn(t))
	assert.Equal(t, []string{"E4", "D4", "C4"}, texts(toks))
}

func TestPatternWarnsOnUnmatchedParen(t *testing.T) {
	var warned []string
	Pattern(pat(t, "C4 ) D4"), func(msg string) { warned = append(warned, msg) })
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "unmatched")
}

func seqAST(t *testing.T, src string) *lang.AST {
	t.Helper()
	ast, err := lang.Parse(src)
	require.NoError(t, err)
	return ast
}

func TestSequenceInlinesPatterns(t *testing.T) {
	ast := seqAST(t, "pat a = C4 D4\npat b = E4\nseq main = a b a\n")
	toks, err := Sequence(ast, "main", noWarn(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"C4", "D4", "E4", "C4", "D4"}, texts(toks))
	for _, tok := range toks {
		assert.Equal(t, "main", tok.SourceSequence)
	}
	assert.Equal(t, "a", toks[0].SourcePattern)
	assert.Equal(t, "b", toks[2].SourcePattern)
}

func TestSequenceOfSequences(t *testing.T) {
	ast := seqAST(t, "pat a = C4\nseq inner = a*2\nseq outer = inner inner\n")
	toks, err := Sequence(ast, "outer", noWarn(t))
	require.NoError(t, err)
	assert.Len(t, toks, 4)
}

func TestSequenceCycleFails(t *testing.T) {
	ast := seqAST(t, "seq a = b\nseq b = a\n")
	_, err := Sequence(ast, "a", func(string) {})
	require.Error(t, err)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestSequenceUnknownReferenceWarns(t *testing.T) {
	ast := seqAST(t, "seq main = nosuch\n")
	var warned []string
	toks, err := Sequence(ast, "main", func(msg string) { warned = append(warned, msg) })
	require.NoError(t, err)
	assert.Empty(t, toks)
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "nosuch")
}

func TestTransforms(t *testing.T) {
	base := []Token{
		{Kind: Note, Text: "C4", Dur: 1},
		{Kind: Rest, Dur: 1},
		{Kind: Note, Text: "E4", Dur: 1},
	}

	tests := []struct {
		name string
		mod  lang.SeqMod
		want []string
	}{
		{name: "oct up", mod: lang.SeqMod{Name: "oct", Args: []string{"1"}}, want: []string{"C5", ".", "E5"}},
		{name: "oct down", mod: lang.SeqMod{Name: "oct", Args: []string{"-1"}}, want: []string{"C3", ".", "E3"}},
		{name: "transpose", mod: lang.SeqMod{Name: "transpose", Args: []string{"2"}}, want: []string{"D4", ".", "F#4"}},
		{name: "st alias", mod: lang.SeqMod{Name: "st", Args: []string{"-1"}}, want: []string{"B3", ".", "D#4"}},
		{name: "rev", mod: lang.SeqMod{Name: "rev"}, want: []string{"E4", ".", "C4"}},
		{name: "slow default", mod: lang.SeqMod{Name: "slow"}, want: []string{"C4", "C4", ".", ".", "E4", "E4"}},
		{name: "slow 3", mod: lang.SeqMod{Name: "slow", Args: []string{"3"}}, want: []string{"C4", "C4", "C4", ".", ".", ".", "E4", "E4", "E4"}},
		{name: "fast default", mod: lang.SeqMod{Name: "fast"}, want: []string{"C4", "E4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMod(cloneTokens(base), tt.mod, noWarn(t))
			assert.Equal(t, tt.want, texts(got))
		})
	}
}

func TestTransformInstAndPan(t *testing.T) {
	base := []Token{{Kind: Note, Text: "C4", Dur: 1}}

	withInst := ApplyMod(cloneTokens(base), lang.SeqMod{Name: "inst", Args: []string{"lead"}}, noWarn(t))
	require.Len(t, withInst, 2)
	assert.Equal(t, Inst, withInst[0].Kind)
	assert.Equal(t, "lead", withInst[0].Text)

	withPan := ApplyMod(cloneTokens(base), lang.SeqMod{Name: "pan", Args: []string{"R"}}, noWarn(t))
	require.Len(t, withPan, 1)
	require.NotNil(t, withPan[0].Pan)
	assert.Equal(t, 1.0, withPan[0].Pan.Value)
}

func TestTransformArp(t *testing.T) {
	base := []Token{{Kind: Note, Text: "C4", Dur: 1}, {Kind: Rest, Dur: 1}}
	got := ApplyMod(cloneTokens(base), lang.SeqMod{Name: "arp", Args: []string{"0", "4", "7"}}, noWarn(t))
	assert.Equal(t, []string{"C4", "E4", "G4", "."}, texts(got))
}

func TestTransformUnknownWarns(t *testing.T) {
	var warned []string
	got := ApplyMod([]Token{{Kind: Note, Text: "C4", Dur: 1}}, lang.SeqMod{Name: "wat"}, func(msg string) { warned = append(warned, msg) })
	assert.Len(t, got, 1)
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "wat")
}

func TestSequenceRepeatCount(t *testing.T) {
	ast := seqAST(t, "pat a = C4 D4\nseq main = a*3\n")
	toks, err := Sequence(ast, "main", noWarn(t))
	require.NoError(t, err)
	assert.Len(t, toks, 6)
}

func TestSequenceRevTransform(t *testing.T) {
	// S2 shape: pat p = C4 . E4 ; seq s = p:rev
	ast := seqAST(t, "pat p = C4 . E4\nseq s = p:rev\n")
	toks, err := Sequence(ast, "s", noWarn(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"E4", ".", "C4"}, texts(toks))
}
