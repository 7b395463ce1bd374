// beatbax compiles a text-based chiptune language into a tick-accurate
// Game Boy playback and render graph, with JSON/MIDI/UGE/WAV export sinks.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kadraman/beatbax/internal/export"
	"github.com/kadraman/beatbax/internal/importer"
	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/lang"
	"github.com/kadraman/beatbax/internal/oscout"
	"github.com/kadraman/beatbax/internal/player"
	"github.com/kadraman/beatbax/internal/render"
	"github.com/kadraman/beatbax/internal/resolve"
	"github.com/kadraman/beatbax/internal/sched"
	"github.com/kadraman/beatbax/internal/synth"
	"github.com/kadraman/beatbax/internal/tui"
)

// Exit codes: 0 success, 1 runtime failure, 2 argument or validation error.
const (
	exitOK       = 0
	exitRuntime  = 1
	exitArgument = 2
)

var (
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("83"))
)

var debugLog string

func main() {
	root := &cobra.Command{
		Use:           "beatbax",
		Short:         "Live-coding chiptune compiler and player for the Game Boy APU",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugLog != "" {
				f, err := os.OpenFile(debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					fmt.Fprintln(os.Stderr, errStyle.Render("cannot open debug log: "+err.Error()))
					os.Exit(exitArgument)
				}
				log.SetOutput(f)
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().StringVar(&debugLog, "debug", "", "If set, write debug logs to this file; empty disables logging")

	root.AddCommand(playCmd(), verifyCmd(), exportCmd())

	argErr := func(err error) {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(exitArgument)
	}
	for _, c := range root.Commands() {
		validate := c.Args
		c.Args = func(cmd *cobra.Command, args []string) error {
			if err := validate(cmd, args); err != nil {
				argErr(err)
			}
			return nil
		}
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { argErr(err); return nil })

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(exitRuntime)
	}
}

// loadSong parses, imports and resolves a source file into an ISM song.
func loadSong(path string) (*ism.Song, []resolve.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	ast, err := lang.Parse(string(data))
	if err != nil {
		return nil, nil, err
	}

	res := importer.New(importer.Options{})
	if err := res.Resolve(ast, filepath.Dir(path)); err != nil {
		return nil, nil, err
	}

	return resolve.Song(ast, nil)
}

func playCmd() *cobra.Command {
	var headless bool
	var oscPort int
	var sampleRate int

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Compile and play a song",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, warnings, err := loadSong(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
				os.Exit(exitArgument)
			}
			printWarnings(warnings)

			clock := sched.NewWallClock()
			scheduler := sched.New(clock)
			line := render.NewLine(&synth.NullSink{}, sampleRate)
			renderer := render.New(scheduler, line, sampleRate)
			p := player.New(scheduler, renderer, line, sampleRate)

			var osc *oscout.Broadcaster
			if oscPort > 0 {
				osc = oscout.New(oscPort)
				osc.Attach(p)
				osc.Playback(args[0], true)
				defer osc.Playback(args[0], false)
			}

			scheduler.Start()
			defer scheduler.Stop()

			if headless {
				return playHeadless(p, s)
			}
			return tui.Run(p, s, filepath.Base(args[0]))
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Play without the transport UI")
	cmd.Flags().IntVar(&oscPort, "osc-port", 0, "If set, broadcast playback messages to this OSC port")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 44100, "Playback sample rate")
	return cmd
}

func playHeadless(p *player.Player, s *ism.Song) error {
	done := make(chan struct{}, 1)
	p.OnPositionChange(func(chID, eventIndex, totalEvents int) {
		if eventIndex == totalEvents-1 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err := p.PlaySong(s); err != nil {
		return err
	}

	// Fall back to the song duration in case every channel ends on a rest.
	timeout := time.Duration((s.Duration()+2)*float64(time.Second))
	select {
	case <-done:
	case <-time.After(timeout):
	}
	log.Printf("[PLAY] headless playback finished")
	p.Stop()
	return nil
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Parse and resolve a song, reporting problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, warnings, err := loadSong(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
				os.Exit(exitArgument)
			}
			printWarnings(warnings)
			if err := s.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
				os.Exit(exitArgument)
			}

			events := 0
			for _, ch := range s.Channels {
				events += len(ch.Events)
			}
			fmt.Println(okStyle.Render(fmt.Sprintf("%s: ok (%d channels, %d events, %.1fs)",
				args[0], len(s.Channels), events, s.Duration())))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <json|bundle|midi|uge|wav> <in> <out>",
		Short: "Export a song to a sink format",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, in, out := args[0], args[1], args[2]

			valid := false
			for _, f := range export.Formats {
				if f == format {
					valid = true
				}
			}
			if !valid {
				fmt.Fprintln(os.Stderr, errStyle.Render("unknown export format "+format))
				os.Exit(exitArgument)
			}

			s, warnings, err := loadSong(in)
			if err != nil {
				fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
				os.Exit(exitArgument)
			}
			printWarnings(warnings)

			exportWarnings, err := export.Export(s, format, out)
			for _, w := range exportWarnings {
				fmt.Fprintln(os.Stderr, warnStyle.Render(w.String()))
			}
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(fmt.Sprintf("exported %s to %s", format, out)))
			return nil
		},
	}
}

func printWarnings(warnings []resolve.Warning) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, warnStyle.Render(w.String()))
	}
}
