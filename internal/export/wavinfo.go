package export

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// WAVInfo returns the duration of a WAV file in seconds, along with sample
// rate and total frames. For PCM data it computes
// (bytes / (bytesPerSample * channels)) / sampleRate; for non-PCM formats it
// falls back to the decoder's Duration(). Used to sanity-check rendered
// exports.
func WAVInfo(filename string) (seconds float64, sampleRate int64, totalFrames int64, err error) {
	f, openErr := os.Open(filename)
	if openErr != nil {
		err = fmt.Errorf("open: %w", openErr)
		return
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		err = fmt.Errorf("invalid WAV file")
		return
	}

	d.ReadInfo()

	const wavFormatPCM = 1
	const wavFormatExtensible = 65534
	if int(d.WavAudioFormat) != wavFormatPCM && int(d.WavAudioFormat) != wavFormatExtensible {
		var dur time.Duration
		dur, err = d.Duration()
		if err != nil {
			err = fmt.Errorf("duration (non-PCM): %w", err)
			return
		}
		seconds = dur.Seconds()
		sampleRate = int64(d.SampleRate)
		totalFrames = int64(dur.Seconds() * float64(d.SampleRate))
		return
	}

	if d.SampleRate == 0 {
		err = fmt.Errorf("invalid sample rate: 0")
		return
	}
	bytesPerSample := int64(d.BitDepth) / 8
	if bytesPerSample <= 0 {
		err = fmt.Errorf("invalid bit depth: %d", d.BitDepth)
		return
	}
	chans := int64(d.NumChans)
	if chans <= 0 {
		err = fmt.Errorf("invalid channel count: %d", d.NumChans)
		return
	}

	if !d.WasPCMAccessed() && d.PCMChunk == nil {
		if fwdErr := d.FwdToPCM(); fwdErr != nil {
			err = fmt.Errorf("locate PCM: %w", fwdErr)
			return
		}
	}

	totalBytes := d.PCMLen()
	if totalBytes <= 0 {
		err = fmt.Errorf("no PCM data")
		return
	}

	frameSize := bytesPerSample * chans
	totalFrames = totalBytes / frameSize
	seconds = float64(totalFrames) / float64(d.SampleRate)
	sampleRate = int64(d.SampleRate)
	return
}
