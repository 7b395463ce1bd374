package export

import (
	"fmt"
	"log"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/player"
	"github.com/kadraman/beatbax/internal/synth"
)

// WAV renders the song offline and writes it as 16-bit stereo PCM.
func WAV(s *ism.Song, path string, sampleRate int) error {
	buf, err := player.RenderSong(s, sampleRate)
	if err != nil {
		return err
	}
	return WriteWAV(buf, path)
}

// WriteWAV encodes a rendered buffer as a RIFF/WAVE PCM 16-bit file.
func WriteWAV(buf *synth.Buffer, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, buf.SampleRate, 16, 2, 1)

	frames := buf.Frames()
	ibuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: buf.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, frames*2),
	}
	for i := 0; i < frames; i++ {
		ibuf.Data[2*i] = pcm16(buf.L[i])
		ibuf.Data[2*i+1] = pcm16(buf.R[i])
	}

	if err := enc.Write(ibuf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	log.Printf("[EXPORT] wrote %d frames of WAV to %s", frames, path)
	return nil
}

func pcm16(v float64) int {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int(math.Round(v * 32767))
}
