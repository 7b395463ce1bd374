package expand

import (
	"strconv"

	"github.com/kadraman/beatbax/internal/lang"
)

// Pattern expands a parsed pattern body into a flat token stream: groups and
// repetition unrolled, inline effects and instrument directives attached,
// then any definition-level modifiers applied. Problems that are not fatal
// (an unknown transform, a malformed effect) go through warn.
func Pattern(def *lang.PatternDef, warn func(msg string)) []Token {
	c := &cursor{toks: def.Body, warn: warn}
	out := c.elements(0)
	for _, mod := range def.Mods {
		out = ApplyMod(out, mod, warn)
	}
	return out
}

type cursor struct {
	toks []lang.Token
	pos  int
	warn func(string)
}

func (c *cursor) peek() (lang.Token, bool) {
	if c.pos >= len(c.toks) {
		return lang.Token{}, false
	}
	return c.toks[c.pos], true
}

func (c *cursor) next() lang.Token {
	t := c.toks[c.pos]
	c.pos++
	return t
}

// elements parses tokens until the end of the stream or a group close at the
// given depth. Commas separate elements and are skipped.
func (c *cursor) elements(depth int) []Token {
	var out []Token
	for {
		t, ok := c.peek()
		if !ok {
			return out
		}
		switch {
		case t.IsPunct(","):
			c.next()

		case t.IsPunct(")"):
			if depth > 0 {
				return out
			}
			c.warn("unmatched ')' in pattern body")
			c.next()

		case t.IsPunct("("):
			c.next()
			group := c.elements(depth + 1)
			if cl, ok := c.peek(); ok && cl.IsPunct(")") {
				c.next()
				n := c.repeatCount(cl)
				for i := 0; i < n; i++ {
					out = append(out, cloneTokens(group)...)
				}
			} else {
				c.warn("unterminated '(' group in pattern body")
				out = append(out, group...)
			}

		case t.IsPunct("."):
			c.next()
			tok := Token{Kind: Rest, Dur: 1}
			last := c.suffixes(&tok, t)
			out = append(out, c.repeat(tok, last)...)

		case t.Kind == lang.TokIdent && t.Text == "inst" && c.isInstCall(t):
			tok, last := c.instDirective()
			out = append(out, c.repeat(tok, last)...)

		case t.Kind == lang.TokIdent:
			c.next()
			tok := Token{Kind: classify(t.Text), Text: t.Text, Dur: 1}
			last := c.suffixes(&tok, t)
			out = append(out, c.repeat(tok, last)...)

		default:
			c.warn("unexpected token " + strconv.Quote(t.Text) + " in pattern body")
			c.next()
		}
	}
}

// isInstCall reports whether the ident at the cursor is an inst(...) call
// rather than a trigger literally named "inst".
func (c *cursor) isInstCall(t lang.Token) bool {
	if c.pos+1 >= len(c.toks) {
		return false
	}
	open := c.toks[c.pos+1]
	return open.IsPunct("(") && t.Adjacent(open)
}

// instDirective parses inst(name) or inst(name,N).
func (c *cursor) instDirective() (Token, lang.Token) {
	c.next() // inst
	last := c.next() // (
	tok := Token{Kind: Inst, Dur: 1}

	if name, ok := c.peek(); ok && name.Kind == lang.TokIdent {
		tok.Text = name.Text
		last = c.next()
	} else {
		c.warn("inst() directive missing instrument name")
	}
	if comma, ok := c.peek(); ok && comma.IsPunct(",") {
		c.next()
		if n, ok := c.peek(); ok && n.Kind == lang.TokInt {
			count, _ := strconv.Atoi(n.Text)
			if count > 0 {
				tok.Count = count
			}
			last = c.next()
		}
	}
	if cl, ok := c.peek(); ok && cl.IsPunct(")") {
		last = c.next()
	} else {
		c.warn("inst() directive missing ')'")
	}
	return tok, last
}

// suffixes consumes duration and inline-effect suffixes adjacent to a token:
// C4:2, C4<vib:4,2><pan:L>. Returns the last consumed token for adjacency
// checks on a following '*N'.
func (c *cursor) suffixes(tok *Token, prev lang.Token) lang.Token {
	last := prev

	// Duration multiplier.
	if colon, ok := c.peek(); ok && colon.IsPunct(":") && last.Adjacent(colon) {
		if c.pos+1 < len(c.toks) && c.toks[c.pos+1].Kind == lang.TokInt {
			c.next()
			n := c.next()
			d, _ := strconv.Atoi(n.Text)
			if d >= 1 {
				tok.Dur = d
			}
			last = n
		}
	}

	// Inline effects, possibly chained.
	for {
		open, ok := c.peek()
		if !ok || !open.IsPunct("<") || !last.Adjacent(open) {
			return last
		}
		c.next()
		fx, closing, ok := c.effectBody()
		if !ok {
			c.warn("unterminated inline effect on " + tok.String())
			return last
		}
		tok.Effects = append(tok.Effects, fx)
		last = closing
	}
}

// effectBody parses fx[:p1,p2,...]> after the opening '<'.
func (c *cursor) effectBody() (Effect, lang.Token, bool) {
	var fx Effect
	name, ok := c.peek()
	if !ok || name.Kind != lang.TokIdent {
		return fx, lang.Token{}, false
	}
	fx.Type = name.Text
	c.next()

	if colon, ok := c.peek(); ok && colon.IsPunct(":") {
		c.next()
		for {
			t, ok := c.peek()
			if !ok {
				return fx, lang.Token{}, false
			}
			switch {
			case t.IsPunct(","):
				c.next()
			case t.IsPunct(">"):
				return fx, c.next(), true
			case t.Kind == lang.TokIdent || t.Kind == lang.TokInt || t.Kind == lang.TokFloat ||
				t.IsPunct("[") || t.IsPunct("]"):
				// Range params like [from,to] drop their brackets; from and
				// to become two plain params.
				if t.IsPunct("[") || t.IsPunct("]") {
					c.next()
				} else {
					fx.Params = append(fx.Params, t.Text)
					c.next()
				}
			default:
				return fx, lang.Token{}, false
			}
		}
	}

	if cl, ok := c.peek(); ok && cl.IsPunct(">") {
		return fx, c.next(), true
	}
	return fx, lang.Token{}, false
}

// repeat applies an adjacent *N suffix to a single token.
func (c *cursor) repeat(tok Token, last lang.Token) []Token {
	star, ok := c.peek()
	if !ok || !star.IsPunct("*") || !last.Adjacent(star) {
		return []Token{tok}
	}
	if c.pos+1 >= len(c.toks) || c.toks[c.pos+1].Kind != lang.TokInt {
		c.warn("'*' without a repeat count in pattern body")
		c.next()
		return []Token{tok}
	}
	c.next()
	n := c.next()
	count, _ := strconv.Atoi(n.Text)
	if count < 1 {
		count = 1
	}
	out := make([]Token, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, cloneToken(tok))
	}
	return out
}

// repeatCount reads an adjacent *N after a group close; 1 when absent.
func (c *cursor) repeatCount(last lang.Token) int {
	star, ok := c.peek()
	if !ok || !star.IsPunct("*") || !last.Adjacent(star) {
		return 1
	}
	if c.pos+1 >= len(c.toks) || c.toks[c.pos+1].Kind != lang.TokInt {
		c.warn("'*' without a repeat count after group")
		c.next()
		return 1
	}
	c.next()
	n := c.next()
	count, _ := strconv.Atoi(n.Text)
	if count < 1 {
		return 1
	}
	return count
}

func cloneToken(t Token) Token {
	out := t
	if t.Effects != nil {
		out.Effects = append([]Effect(nil), t.Effects...)
	}
	if t.Pan != nil {
		p := *t.Pan
		out.Pan = &p
	}
	return out
}

func cloneTokens(toks []Token) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = cloneToken(t)
	}
	return out
}
