// Package lang implements the BeatBax lexer and parser: source text in, AST
// of declarations out. Parsing is deterministic and order-free at the top
// level; errors are fatal and carry source locations.
package lang

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/kadraman/beatbax/internal/song"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Parser consumes a token stream and produces an AST.
type Parser struct {
	src  string
	toks []Token
	pos  int
	ast  *AST
}

// Parse parses BeatBax source text into an AST.
func Parse(src string) (*AST, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{src: src, toks: toks, ast: NewAST()}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.ast, nil
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) skipNewlines() {
	for p.peek().Kind == TokNewline {
		p.next()
	}
}

func (p *Parser) atLineEnd() bool {
	k := p.peek().Kind
	return k == TokNewline || k == TokEOF
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, errAt(t.Start, t.End, "expected %s, got %q", kind, t.Text)
	}
	return p.next(), nil
}

func (p *Parser) parse() error {
	for {
		p.skipNewlines()
		t := p.peek()
		if t.Kind == TokEOF {
			return nil
		}
		if t.Kind != TokIdent {
			return errAt(t.Start, t.End, "expected declaration keyword, got %q", t.Text)
		}

		var err error
		switch t.Text {
		case "chip":
			err = p.parseChip()
		case "bpm", "time", "stepsPerBar", "ticksPerStep":
			err = p.parseTempo(t.Text)
		case "inst":
			err = p.parseInst()
		case "pat":
			err = p.parsePat()
		case "seq":
			err = p.parseSeq()
		case "channel":
			err = p.parseChannel()
		case "import":
			err = p.parseImport()
		case "play":
			err = p.parsePlay()
		case "export":
			err = p.parseExport()
		case "song":
			err = p.parseSong()
		case "effect", "arrange":
			err = p.parseRawLine(t.Text)
		default:
			return errAt(t.Start, t.End, "unknown top-level keyword %q", t.Text)
		}
		if err != nil {
			return err
		}

		if !p.atLineEnd() {
			u := p.peek()
			return errAt(u.Start, u.End, "unexpected %q after %s declaration", u.Text, t.Text)
		}
	}
}

func (p *Parser) parseChip() error {
	p.next()
	id, err := p.expect(TokIdent)
	if err != nil {
		return err
	}
	p.ast.Chip = id.Text
	return nil
}

func (p *Parser) parseTempo(keyword string) error {
	p.next()
	t := p.peek()
	if t.Kind != TokInt && t.Kind != TokFloat {
		return errAt(t.Start, t.End, "%s requires a number, got %q", keyword, t.Text)
	}
	p.next()
	v, _ := strconv.ParseFloat(t.Text, 64)
	if v <= 0 {
		return errAt(t.Start, t.End, "%s must be positive, got %s", keyword, t.Text)
	}
	switch keyword {
	case "bpm":
		p.ast.BPM = v
	case "time":
		p.ast.StepsPerBeat = int(v)
	case "stepsPerBar":
		p.ast.StepsPerBar = int(v)
	case "ticksPerStep":
		p.ast.TicksPerStep = int(v)
	}
	return nil
}

func (p *Parser) parseSong() error {
	p.next()
	s, err := p.expect(TokString)
	if err != nil {
		return err
	}
	p.ast.Title = s.Text
	p.ast.Metadata["song"] = s.Text
	return nil
}

// parseRawLine records declarations whose semantics live outside the playback
// path (effect/arrange surfaces) without losing their text.
func (p *Parser) parseRawLine(keyword string) error {
	start := p.next()
	for !p.atLineEnd() {
		p.next()
	}
	end := p.toks[p.pos-1]
	raw := strings.TrimSpace(p.src[start.Offset : end.Offset+len(end.Text)])
	if prev, ok := p.ast.Metadata[keyword]; ok {
		raw = prev + "\n" + raw
	}
	p.ast.Metadata[keyword] = raw
	return nil
}

func (p *Parser) parseImport() error {
	kw := p.next()
	s, err := p.expect(TokString)
	if err != nil {
		return err
	}
	p.ast.Imports = append(p.ast.Imports, ImportDecl{URL: s.Text, Pos: kw.Start})
	return nil
}

func (p *Parser) parsePlay() error {
	p.next()
	decl := &PlayDecl{}
	if p.peek().Kind == TokIdent && p.peek().Text == "repeat" {
		p.next()
		decl.Repeat = true
	}
	p.ast.Play = decl
	return nil
}

func (p *Parser) parseExport() error {
	p.next()
	format, err := p.expect(TokIdent)
	if err != nil {
		return err
	}
	path, err := p.expect(TokString)
	if err != nil {
		return err
	}
	p.ast.Exports = append(p.ast.Exports, ExportDecl{Format: format.Text, Path: path.Text})
	return nil
}

func (p *Parser) parseInst() error {
	p.next()
	name, err := p.expect(TokIdent)
	if err != nil {
		return err
	}

	args := make(map[string]song.Value)
	for !p.atLineEnd() {
		key, err := p.expect(TokIdent)
		if err != nil {
			return err
		}
		eq := p.peek()
		if !eq.IsPunct("=") {
			return errAt(eq.Start, eq.End, "inst %s: expected '=' after key %q", name.Text, key.Text)
		}
		p.next()
		val, err := p.parseValue(name.Text, key.Text)
		if err != nil {
			return err
		}
		args[key.Text] = val
	}

	in, err := song.InstrumentFromArgs(name.Text, args)
	if err != nil {
		return errAt(name.Start, name.End, "%s", err.Error())
	}
	p.ast.Insts[name.Text] = in
	return nil
}

// parseValue parses one inst argument value: a scalar, a quoted string, a
// `{...}` object, a `[...]` array, a bare identifier or the vendor form
// `gb:a,b,c`.
func (p *Parser) parseValue(inst, key string) (song.Value, error) {
	t := p.peek()
	switch {
	case t.Kind == TokInt || t.Kind == TokFloat:
		p.next()
		n, _ := strconv.ParseFloat(t.Text, 64)
		return song.Value{Kind: song.ValNum, Num: n, Str: t.Text}, nil

	case t.Kind == TokString:
		p.next()
		return song.Value{Kind: song.ValStr, Str: t.Text}, nil

	case t.IsPunct("{"), t.IsPunct("["):
		raw, err := p.collectBalanced(t.Text)
		if err != nil {
			return song.Value{}, err
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return song.Value{}, errAt(t.Start, t.End, "inst %s: malformed %s value for %q: %v", inst, t.Text, key, err)
		}
		return song.Value{Kind: song.ValJSON, JSON: decoded, Str: raw}, nil

	case t.Kind == TokIdent:
		p.next()
		if colon := p.peek(); colon.IsPunct(":") && t.Adjacent(colon) {
			p.next()
			args, err := p.collectVendorArgs(colon)
			if err != nil {
				return song.Value{}, err
			}
			return song.Value{Kind: song.ValVendor, Vendor: t.Text, Args: args}, nil
		}
		return song.Value{Kind: song.ValIdent, Str: t.Text}, nil

	default:
		return song.Value{}, errAt(t.Start, t.End, "inst %s: malformed value for key %q", inst, key)
	}
}

// collectVendorArgs reads the comma-separated atoms of a vendor value, which
// must be adjacent (no whitespace): gb:12,down,1.
func (p *Parser) collectVendorArgs(after Token) ([]string, error) {
	var args []string
	prev := after
	for {
		t := p.peek()
		if !prev.Adjacent(t) {
			break
		}
		switch t.Kind {
		case TokIdent, TokInt, TokFloat:
			args = append(args, t.Text)
			prev = p.next()
		default:
			if len(args) == 0 {
				return nil, errAt(t.Start, t.End, "malformed vendor value near %q", t.Text)
			}
			return args, nil
		}
		comma := p.peek()
		if comma.IsPunct(",") && prev.Adjacent(comma) {
			prev = p.next()
			continue
		}
		break
	}
	if len(args) == 0 {
		t := p.peek()
		return nil, errAt(t.Start, t.End, "empty vendor value")
	}
	return args, nil
}

// collectBalanced consumes a depth-balanced {..} or [..] region and returns
// its raw source text.
func (p *Parser) collectBalanced(open string) (string, error) {
	closing := "}"
	if open == "[" {
		closing = "]"
	}
	first := p.next() // the opener
	depth := 1
	for {
		t := p.peek()
		switch {
		case t.Kind == TokEOF:
			return "", errAt(first.Start, t.End, "mismatched %q: reached end of input", open)
		case t.IsPunct(open):
			depth++
		case t.IsPunct(closing):
			depth--
			if depth == 0 {
				p.next()
				return p.src[first.Offset : t.Offset+len(t.Text)], nil
			}
		}
		p.next()
	}
}

func (p *Parser) parsePat() error {
	p.next()
	name, err := p.expect(TokIdent)
	if err != nil {
		return err
	}

	def := &PatternDef{Name: name.Text}

	// Definition-level modifiers: pat X:rev = ...
	prev := name
	for p.peek().IsPunct(":") && prev.Adjacent(p.peek()) {
		p.next()
		mod, last, err := p.parseMod()
		if err != nil {
			return err
		}
		def.Mods = append(def.Mods, mod)
		prev = last
	}

	eq := p.peek()
	if !eq.IsPunct("=") {
		return errAt(eq.Start, eq.End, "pat %s: expected '='", name.Text)
	}
	p.next()

	for !p.atLineEnd() {
		def.Body = append(def.Body, p.next())
	}
	p.ast.Pats[name.Text] = def
	return nil
}

func (p *Parser) parseSeq() error {
	p.next()
	name, err := p.expect(TokIdent)
	if err != nil {
		return err
	}
	eq := p.peek()
	if !eq.IsPunct("=") {
		return errAt(eq.Start, eq.End, "seq %s: expected '='", name.Text)
	}
	p.next()

	var items []SeqItem
	for !p.atLineEnd() {
		if p.peek().IsPunct(",") {
			p.next()
			continue
		}
		item, err := p.parseSeqItem()
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	p.ast.Seqs[name.Text] = items
	return nil
}

// parseSeqItem parses name[:mod[:mod...]][*N].
func (p *Parser) parseSeqItem() (SeqItem, error) {
	name, err := p.expect(TokIdent)
	if err != nil {
		return SeqItem{}, err
	}
	item := SeqItem{Name: name.Text, Repeat: 1}

	prev := name
	for p.peek().IsPunct(":") && prev.Adjacent(p.peek()) {
		p.next()
		mod, last, err := p.parseMod()
		if err != nil {
			return SeqItem{}, err
		}
		item.Mods = append(item.Mods, mod)
		prev = last
	}

	if star := p.peek(); star.IsPunct("*") && prev.Adjacent(star) {
		p.next()
		n, err := p.expect(TokInt)
		if err != nil {
			return SeqItem{}, err
		}
		count, _ := strconv.Atoi(n.Text)
		if count < 1 {
			return SeqItem{}, errAt(n.Start, n.End, "repeat count must be >= 1, got %s", n.Text)
		}
		item.Repeat = count
	}
	return item, nil
}

// parseMod parses one transform after a ':'. Bare signed numbers are
// transpose shorthand (`mel:-2`). Returns the last consumed token so the
// caller can keep checking adjacency.
func (p *Parser) parseMod() (SeqMod, Token, error) {
	t := p.peek()

	if t.Kind == TokInt {
		p.next()
		return SeqMod{Name: "transpose", Args: []string{t.Text}}, t, nil
	}

	if t.Kind != TokIdent {
		return SeqMod{}, t, errAt(t.Start, t.End, "expected transform name, got %q", t.Text)
	}
	p.next()
	mod := SeqMod{Name: t.Text}
	last := t

	if open := p.peek(); open.IsPunct("(") && t.Adjacent(open) {
		p.next()
		for {
			a := p.peek()
			switch a.Kind {
			case TokIdent, TokInt, TokFloat, TokString:
				mod.Args = append(mod.Args, a.Text)
				p.next()
			case TokPunct:
				if a.Text == "," {
					p.next()
					continue
				}
				if a.Text == ")" {
					last = p.next()
					return mod, last, nil
				}
				return SeqMod{}, a, errAt(a.Start, a.End, "unexpected %q in transform arguments", a.Text)
			default:
				return SeqMod{}, a, errAt(a.Start, a.End, "mismatched '(' in transform %s", mod.Name)
			}
		}
	}
	return mod, last, nil
}

func (p *Parser) parseChannel() error {
	p.next()
	idTok, err := p.expect(TokInt)
	if err != nil {
		return err
	}
	id, _ := strconv.Atoi(idTok.Text)
	if id < 1 || id > 4 {
		return errAt(idTok.Start, idTok.End, "channel id must be 1..4, got %d", id)
	}

	if _, err := p.expect(TokArrow); err != nil {
		return err
	}

	ch := song.ChannelBinding{ID: id, Speed: 1}
	for !p.atLineEnd() {
		kw, err := p.expect(TokIdent)
		if err != nil {
			return err
		}
		switch kw.Text {
		case "inst":
			v, err := p.expect(TokIdent)
			if err != nil {
				return err
			}
			ch.DefaultInstrument = v.Text
		case "seq":
			v, err := p.expect(TokIdent)
			if err != nil {
				return err
			}
			ch.SequenceRef = v.Text
		case "pat":
			v, err := p.expect(TokIdent)
			if err != nil {
				return err
			}
			ch.SequenceRef = v.Text
			ch.IsPattern = true
		case "speed":
			if eq := p.peek(); eq.IsPunct("=") {
				p.next()
			}
			v := p.peek()
			if v.Kind != TokInt && v.Kind != TokFloat {
				return errAt(v.Start, v.End, "channel %d: speed requires a number", id)
			}
			p.next()
			speed, _ := strconv.ParseFloat(v.Text, 64)
			if speed <= 0 {
				return errAt(v.Start, v.End, "channel %d: speed must be positive", id)
			}
			ch.Speed = speed
		case "pan":
			if eq := p.peek(); eq.IsPunct("=") {
				p.next()
			}
			v := p.next()
			pan, err := song.ParsePan(v.Text)
			if err != nil {
				return errAt(v.Start, v.End, "channel %d: %v", id, err)
			}
			ch.Pan = &pan
		default:
			return errAt(kw.Start, kw.End, "channel %d: unknown binding keyword %q", id, kw.Text)
		}
	}

	if ch.SequenceRef == "" {
		return errAt(idTok.Start, idTok.End, "channel %d: missing seq or pat binding", id)
	}
	p.ast.Channels = append(p.ast.Channels, ch)
	return nil
}
