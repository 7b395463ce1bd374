// Package export implements the ISM sinks: JSON, gzipped bundles, Type-1
// MIDI files, hUGETracker UGE v6 modules and rendered WAV audio.
package export

import (
	"fmt"
	"log"
	"os"

	"github.com/kadraman/beatbax/internal/ism"
)

// Warning is a non-fatal export diagnostic (e.g. a note transposed to fit
// the target format).
type Warning struct {
	Format  string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("[export:%s] %s", w.Format, w.Message)
}

// Formats lists the supported export formats.
var Formats = []string{"json", "bundle", "midi", "uge", "wav"}

// Export writes the song to path in the given format and returns any
// warnings. Unknown formats are an error.
func Export(s *ism.Song, format, path string) ([]Warning, error) {
	switch format {
	case "json":
		return nil, JSON(s, path)
	case "bundle":
		return nil, ism.SaveBundle(s, path)
	case "midi":
		return MIDI(s, path)
	case "uge":
		return UGE(s, path)
	case "wav":
		return nil, WAV(s, path, 44100)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// JSON writes the version-1 export envelope as indented JSON.
func JSON(s *ism.Song, path string) error {
	data, err := ism.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	log.Printf("[EXPORT] wrote %d bytes of JSON to %s", len(data), path)
	return nil
}
