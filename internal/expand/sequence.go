package expand

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kadraman/beatbax/internal/lang"
	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
)

// CycleError reports a reference cycle among sequences.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "sequence reference cycle: " + strings.Join(e.Path, " -> ")
}

// Sequence expands the named sequence (or pattern, when a channel binds a
// pattern directly) into a flat token stream with all transforms and repeat
// counts applied. Tokens are stamped with their originating sequence and
// pattern. Cycles are fatal; unknown references warn and contribute nothing.
func Sequence(ast *lang.AST, name string, warn func(string)) ([]Token, error) {
	return expandSeq(ast, name, name, nil, warn)
}

func expandSeq(ast *lang.AST, name, topSeq string, path []string, warn func(string)) ([]Token, error) {
	for _, seen := range path {
		if seen == name {
			return nil, &CycleError{Path: append(append([]string{}, path...), name)}
		}
	}

	// A pattern reference terminates the recursion.
	if def, ok := ast.Pats[name]; ok {
		toks := Pattern(def, warn)
		for i := range toks {
			toks[i].SourcePattern = name
			toks[i].SourceSequence = topSeq
		}
		return toks, nil
	}

	items, ok := ast.Seqs[name]
	if !ok {
		warn(fmt.Sprintf("unknown pattern or sequence %q", name))
		return nil, nil
	}

	path = append(path, name)
	var out []Token
	for _, item := range items {
		toks, err := expandSeq(ast, item.Name, topSeq, path, warn)
		if err != nil {
			return nil, err
		}
		for _, mod := range item.Mods {
			toks = ApplyMod(toks, mod, warn)
		}
		for i := 0; i < item.Repeat; i++ {
			out = append(out, cloneTokens(toks)...)
		}
	}
	return out, nil
}

// ApplyMod applies one sequence-level transform to a token stream. Unknown
// transforms warn and leave the stream unchanged.
func ApplyMod(toks []Token, mod lang.SeqMod, warn func(string)) []Token {
	switch mod.Name {
	case "oct":
		k := modInt(mod, 0, warn)
		return mapNotes(toks, func(tok string) string { return music.ShiftOctave(tok, k) })

	case "transpose", "st":
		k := modInt(mod, 0, warn)
		return mapNotes(toks, func(tok string) string { return music.Transpose(tok, k) })

	case "rev":
		out := make([]Token, len(toks))
		for i, t := range toks {
			out[len(toks)-1-i] = t
		}
		return out

	case "slow":
		k := modIntDefault(mod, 2, warn)
		if k < 1 {
			k = 1
		}
		out := make([]Token, 0, len(toks)*k)
		for _, t := range toks {
			for i := 0; i < k; i++ {
				out = append(out, cloneToken(t))
			}
		}
		return out

	case "fast":
		k := modIntDefault(mod, 2, warn)
		if k < 1 {
			k = 1
		}
		out := make([]Token, 0, (len(toks)+k-1)/k)
		for i := 0; i < len(toks); i += k {
			out = append(out, toks[i])
		}
		return out

	case "inst":
		if len(mod.Args) != 1 {
			warn("inst transform requires an instrument name")
			return toks
		}
		return append([]Token{{Kind: Inst, Text: mod.Args[0], Dur: 1}}, toks...)

	case "pan":
		if len(mod.Args) != 1 {
			warn("pan transform requires a side or value")
			return toks
		}
		pan, err := song.ParsePan(mod.Args[0])
		if err != nil {
			warn(err.Error())
			return toks
		}
		out := cloneTokens(toks)
		for i := range out {
			if out[i].Kind == Note || out[i].Kind == Named {
				p := pan
				out[i].Pan = &p
			}
		}
		return out

	case "arp":
		if len(mod.Args) == 0 {
			warn("arp transform requires semitone offsets")
			return toks
		}
		offsets := make([]int, 0, len(mod.Args))
		for _, a := range mod.Args {
			n, err := strconv.Atoi(a)
			if err != nil {
				warn(fmt.Sprintf("arp offset %q is not an integer", a))
				return toks
			}
			offsets = append(offsets, n)
		}
		var out []Token
		for _, t := range toks {
			if t.Kind != Note {
				out = append(out, t)
				continue
			}
			for _, off := range offsets {
				nt := cloneToken(t)
				nt.Text = music.Transpose(t.Text, off)
				out = append(out, nt)
			}
		}
		return out

	default:
		warn(fmt.Sprintf("unknown transform %q", mod.Name))
		return toks
	}
}

func mapNotes(toks []Token, f func(string) string) []Token {
	out := cloneTokens(toks)
	for i := range out {
		if out[i].Kind == Note {
			out[i].Text = f(out[i].Text)
		}
	}
	return out
}

func modInt(mod lang.SeqMod, def int, warn func(string)) int {
	if len(mod.Args) == 0 {
		warn(fmt.Sprintf("%s transform requires an argument", mod.Name))
		return def
	}
	n, err := strconv.Atoi(mod.Args[0])
	if err != nil {
		warn(fmt.Sprintf("%s argument %q is not an integer", mod.Name, mod.Args[0]))
		return def
	}
	return n
}

func modIntDefault(mod lang.SeqMod, def int, warn func(string)) int {
	if len(mod.Args) == 0 {
		return def
	}
	n, err := strconv.Atoi(mod.Args[0])
	if err != nil {
		warn(fmt.Sprintf("%s argument %q is not an integer", mod.Name, mod.Args[0]))
		return def
	}
	return n
}
