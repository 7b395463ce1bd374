// Package tui renders the playback transport: per-channel position, level
// meters and mute/solo state, driven entirely through the player's public
// observers and operations.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/kadraman/beatbax/internal/ism"
	"github.com/kadraman/beatbax/internal/player"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	soloStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("83"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// channelPosition is the most recent position callback per channel.
type channelPosition struct {
	eventIndex  int
	totalEvents int
	lastHit     time.Time
}

// Model is the bubbletea transport model.
type Model struct {
	player *player.Player
	song   *ism.Song
	title  string

	mu        sync.Mutex
	positions map[int]*channelPosition

	spin     spinner.Model
	start    time.Time
	quitting bool
}

// uiTickMsg drives the meter decay redraw.
type uiTickMsg struct{}

// New builds a transport over a playing song. The caller starts playback;
// the transport only observes and toggles.
func New(p *player.Player, s *ism.Song, title string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		player:    p,
		song:      s,
		title:     title,
		positions: make(map[int]*channelPosition),
		spin:      sp,
		start:     time.Now(),
	}
	p.OnPositionChange(func(chID, eventIndex, totalEvents int) {
		m.mu.Lock()
		m.positions[chID] = &channelPosition{
			eventIndex:  eventIndex,
			totalEvents: totalEvents,
			lastHit:     time.Now(),
		}
		m.mu.Unlock()
	})
	return m
}

func uiTick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(time.Time) tea.Msg {
		return uiTickMsg{}
	})
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, uiTick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case uiTickMsg:
		if m.quitting {
			return m, nil
		}
		return m, uiTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.player.Stop()
			return m, tea.Quit
		case " ":
			if m.player.IsPlaying() {
				m.player.Stop()
			} else if err := m.player.PlaySong(m.song); err == nil {
				m.start = time.Now()
			}
		case "1", "2", "3", "4":
			m.player.ToggleChannelMute(int(msg.String()[0] - '0'))
		case "!":
			m.player.ToggleChannelSolo(1)
		case "@":
			m.player.ToggleChannelSolo(2)
		case "#":
			m.player.ToggleChannelSolo(3)
		case "$":
			m.player.ToggleChannelSolo(4)
		}
	}
	return m, nil
}

func (m *Model) View() string {
	var sb strings.Builder

	status := "stopped"
	if m.player.IsPlaying() {
		status = m.spin.View() + " playing"
	}
	sb.WriteString(titleStyle.Render("beatbax") + "  " + labelStyle.Render(m.title) + "  " + status + "\n\n")

	m.mu.Lock()
	positions := make(map[int]channelPosition, len(m.positions))
	for id, pos := range m.positions {
		positions[id] = *pos
	}
	m.mu.Unlock()

	for _, ch := range m.song.Channels {
		sb.WriteString(m.channelLine(ch, positions[ch.ID]))
		sb.WriteByte('\n')
	}

	sb.WriteString("\n" + helpStyle.Render("[space] play/stop  [1-4] mute  [!@#$] solo  [q] quit"))
	return sb.String()
}

func (m *Model) channelLine(ch *ism.Channel, pos channelPosition) string {
	name := fmt.Sprintf("ch%d %-7s", ch.ID, channelLabel(ch.ID))

	style := activeStyle
	switch {
	case m.player.Solo() == ch.ID:
		style = soloStyle
	case m.player.Solo() != 0 && m.player.Solo() != ch.ID:
		style = mutedStyle
	case m.player.IsMuted(ch.ID):
		style = mutedStyle
	}

	posStr := "  --/--"
	if pos.totalEvents > 0 {
		posStr = fmt.Sprintf("%4d/%-4d", pos.eventIndex+1, pos.totalEvents)
	}

	return style.Render(name) + " " + posStr + " " + m.meter(pos)
}

// meter draws a decaying level bar colored along a green-to-red ramp.
func (m *Model) meter(pos channelPosition) string {
	const width = 24

	level := 0.0
	if !pos.lastHit.IsZero() {
		age := time.Since(pos.lastHit).Seconds()
		level = 1.0 - age*3
		if level < 0 {
			level = 0
		}
	}

	lit := int(level * width)
	profile := termenv.ColorProfile()
	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i >= lit {
			sb.WriteString(helpStyle.Render("·"))
			continue
		}
		frac := float64(i) / float64(width-1)
		c := colorful.Hsv(120-frac*120, 0.9, 0.9) // green → red
		color := profile.Color(c.Hex())
		sb.WriteString(termenv.String("█").Foreground(color).String())
	}
	return sb.String()
}

func channelLabel(id int) string {
	switch id {
	case 1:
		return "pulse1"
	case 2:
		return "pulse2"
	case 3:
		return "wave"
	case 4:
		return "noise"
	}
	return "?"
}

// Run starts playback and blocks in the transport UI until quit.
func Run(p *player.Player, s *ism.Song, title string) error {
	if err := p.PlaySong(s); err != nil {
		return err
	}
	prog := tea.NewProgram(New(p, s, title), tea.WithAltScreen())
	_, err := prog.Run()
	p.Stop()
	return err
}
