// Package display is the live playback dashboard: a Bubbletea program that
// polls a running scheduler.Scheduler on a fixed tick and renders its
// position, tempo and transposition, plus a one-line command prompt wired
// to scheduler.ParseRemoteCommand/Apply ("bpm", "transposition", "groove",
// "skip", "quit", "help"). Adapted from the prior TUIModel/LiveDisplay
// pair: the Bubbletea Model/Update/View shape and the periodic TickMsg
// polling idiom are kept, rebuilt around scheduler.Status instead of a bar
// and beat counted off a wall-clock timer.
package display

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/soundhelix/soundhelix-go/scheduler"
	"github.com/soundhelix/soundhelix-go/song"
)

var (
	primaryColor = lipgloss.Color("#00FFFF")
	accentColor  = lipgloss.Color("#00FF00")
	dimColor     = lipgloss.Color("#666666")
	errColor     = lipgloss.Color("#FF6666")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	labelStyle = lipgloss.NewStyle().Foreground(dimColor)
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	barStyle   = lipgloss.NewStyle().Foreground(accentColor)
	promptStyle = lipgloss.NewStyle().Foreground(dimColor)
	errStyle   = lipgloss.NewStyle().Foreground(errColor)
)

// tickMsg drives the periodic redraw, as live.go's own ticker did.
type tickMsg time.Time

func pollTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Dashboard is the Bubbletea model for one Play() run.
type Dashboard struct {
	sched    *scheduler.Scheduler
	songName string
	input    string
	message  string
	isError  bool
	done     bool
}

// NewDashboard returns a dashboard that will poll sched until its Status
// reports completion or AbortPlay is triggered from the prompt.
func NewDashboard(sched *scheduler.Scheduler, ctx *song.Context) *Dashboard {
	return &Dashboard{sched: sched, songName: ctx.SongName}
}

func (m *Dashboard) Init() tea.Cmd { return pollTick() }

func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if st := m.sched.Status(); st.Aborted || (st.TotalTicks > 0 && st.Tick >= st.TotalTicks) {
			m.done = true
			return m, tea.Quit
		}
		return m, pollTick()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.sched.AbortPlay()
			m.done = true
			return m, tea.Quit
		case tea.KeyEnter:
			cmd := scheduler.ParseRemoteCommand(m.input)
			m.input = ""
			result, quit, err := m.sched.Apply(cmd)
			if err != nil {
				m.message, m.isError = err.Error(), true
			} else {
				m.message, m.isError = result, false
			}
			if quit {
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil
		case tea.KeyRunes:
			m.input += string(msg.Runes)
			return m, nil
		}
	}
	return m, nil
}

func (m *Dashboard) View() string {
	st := m.sched.Status()
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("soundhelix — %s", m.songName)))
	b.WriteString("\n\n")

	pct := 0.0
	if st.TotalTicks > 0 {
		pct = float64(st.Tick) / float64(st.TotalTicks)
	}
	b.WriteString(labelStyle.Render("position  ") + valueStyle.Render(renderBar(pct, 40)))
	b.WriteString(fmt.Sprintf("  %d/%d\n", st.Tick, st.TotalTicks))
	b.WriteString(labelStyle.Render("tempo     ") + valueStyle.Render(fmt.Sprintf("%.1f BPM", float64(st.MilliBPM)/1000)) + "\n")
	b.WriteString(labelStyle.Render("transpose ") + valueStyle.Render(fmt.Sprintf("%+d", st.Transposition)) + "\n")
	b.WriteString("\n")

	if m.message != "" {
		if m.isError {
			b.WriteString(errStyle.Render(m.message))
		} else {
			b.WriteString(barStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render("> ") + m.input)
	return b.String()
}

func renderBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
