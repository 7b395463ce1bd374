package synth

// Sink consumes rendered stereo audio. Platform output devices live behind
// this interface and outside this module; the null sink here covers
// headless playback and tests.
type Sink interface {
	// WriteStereo consumes equal-length left/right sample slices.
	WriteStereo(l, r []float64) error
	Close() error
}

// NullSink discards everything, counting frames. Used by playback tests and
// as the output of the `play` command.
type NullSink struct {
	FramesWritten int
}

func (n *NullSink) WriteStereo(l, r []float64) error {
	n.FramesWritten += len(l)
	return nil
}

func (n *NullSink) Close() error { return nil }
