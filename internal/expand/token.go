// Package expand turns parsed pattern bodies and sequence definitions into
// flat token streams: repetition and grouping are unrolled, inline effects
// and instrument directives are attached, and sequence-level transforms are
// applied.
package expand

import (
	"fmt"
	"strings"

	"github.com/kadraman/beatbax/internal/music"
	"github.com/kadraman/beatbax/internal/song"
)

// Kind classifies an expanded pattern token.
type Kind int

const (
	Note Kind = iota
	Rest
	Named
	Inst // inline instrument directive
)

// Effect is one inline effect attachment, e.g. <vib:4,2>.
type Effect struct {
	Type   string   `json:"type"`
	Params []string `json:"params,omitempty"`
}

// Token is one element of a fully expanded pattern stream. Effects belong to
// the token they followed in source order and survive every transform.
type Token struct {
	Kind    Kind
	Text    string // note name, trigger name, or instrument name for Inst
	Dur     int    // duration multiplier from `C4:2`; 1 by default
	Count   int    // Inst only: temporary override length; 0 = permanent switch
	Effects []Effect
	Pan     *song.Pan // set by the pan() transform

	// Provenance, stamped during sequence expansion.
	SourceSequence string
	SourcePattern  string
}

func (t Token) String() string {
	switch t.Kind {
	case Rest:
		return "."
	case Inst:
		if t.Count > 0 {
			return fmt.Sprintf("inst(%s,%d)", t.Text, t.Count)
		}
		return fmt.Sprintf("inst(%s)", t.Text)
	default:
		var sb strings.Builder
		sb.WriteString(t.Text)
		if t.Dur > 1 {
			fmt.Fprintf(&sb, ":%d", t.Dur)
		}
		for _, fx := range t.Effects {
			sb.WriteByte('<')
			sb.WriteString(fx.Type)
			if len(fx.Params) > 0 {
				sb.WriteByte(':')
				sb.WriteString(strings.Join(fx.Params, ","))
			}
			sb.WriteByte('>')
		}
		return sb.String()
	}
}

// classify decides whether an identifier-shaped pattern token is a note or a
// named trigger.
func classify(text string) Kind {
	if music.IsNoteToken(text) {
		return Note
	}
	return Named
}
