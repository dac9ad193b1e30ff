package orb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/notify"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type updateMsg notify.StateUpdate

type streamClosedMsg struct{}

type revertMsg struct{ seq int }

type pulseMsg struct{ seq int }

// Model is the bubbletea model of the orb.
type Model struct {
	userID  string
	updates <-chan notify.StateUpdate

	state  cognition.State // last reported
	shown  cognition.State // currently drawn
	team   map[string]cognition.State
	seq    int
	dimmed bool
	closed bool

	title lipgloss.Style
	muted lipgloss.Style
}

// NewModel creates an orb for userID fed by updates.
func NewModel(userID string, updates <-chan notify.StateUpdate) Model {
	return Model{
		userID:  userID,
		updates: updates,
		state:   cognition.StateUnknown,
		shown:   cognition.StateUnknown,
		team:    map[string]cognition.State{},
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9FD3FF")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7785")),
	}
}

// Shown returns the state currently drawn.
func (m Model) Shown() cognition.State {
	return m.shown
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

func (m Model) wait() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return streamClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case updateMsg:
		for id, s := range msg.TeamStates {
			m.team[id] = s
		}
		if msg.UserID != m.userID {
			return m, m.wait()
		}
		m.team[m.userID] = msg.State
		if msg.State == m.state {
			return m, m.wait()
		}
		m.state = msg.State
		cmd := m.show(msg.State)
		return m, tea.Batch(m.wait(), cmd)

	case revertMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		cmd := m.show(Appearance(m.shown).RevertTo)
		return m, cmd

	case pulseMsg:
		if msg.seq != m.seq || Appearance(m.shown).Pulse == 0 {
			return m, nil
		}
		m.dimmed = !m.dimmed
		return m, pulse(m.seq, Appearance(m.shown).Pulse)

	case streamClosedMsg:
		m.closed = true
		return m, nil
	}
	return m, nil
}

// show switches the drawn state and schedules its pulse or revert.
func (m *Model) show(state cognition.State) tea.Cmd {
	m.shown = state
	m.seq++
	m.dimmed = false

	look := Appearance(state)
	seq := m.seq
	switch {
	case look.RevertAfter > 0:
		return tea.Tick(look.RevertAfter, func(time.Time) tea.Msg { return revertMsg{seq: seq} })
	case look.Pulse > 0:
		return pulse(seq, look.Pulse)
	}
	return nil
}

func pulse(seq int, every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg { return pulseMsg{seq: seq} })
}

func (m Model) View() string {
	look := Appearance(m.shown)
	color := look.Color
	if m.dimmed {
		color = ColorGray
	}

	var b strings.Builder
	b.WriteString(m.title.Render("ECHO") + "  " + m.muted.Render(m.userID) + "\n\n")
	b.WriteString(renderOrb(look.Size, color))
	b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color(look.Color)).Render(string(m.shown)) + "\n\n")

	ids := make([]string, 0, len(m.team))
	for id := range m.team {
		if id != m.userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(SatelliteColor(m.team[id]))).Render("●")
		b.WriteString(fmt.Sprintf("%s %s %s\n", dot, id, m.muted.Render(string(m.team[id]))))
	}

	if m.closed {
		b.WriteString("\n" + m.muted.Render("disconnected") + "\n")
	}
	b.WriteString("\n" + m.muted.Render("q to quit") + "\n")
	return b.String()
}

// renderOrb draws a filled disc roughly size/5 cells wide.
func renderOrb(size int, color string) string {
	r := max(1, size/10)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))

	var b strings.Builder
	for y := -r; y <= r; y++ {
		var row strings.Builder
		for x := -2 * r; x <= 2*r; x++ {
			// Terminal cells are about twice as tall as wide.
			fx := float64(x) / 2
			if fx*fx+float64(y*y) <= float64(r*r)+0.5 {
				row.WriteString("█")
			} else {
				row.WriteString(" ")
			}
		}
		b.WriteString(style.Render(row.String()) + "\n")
	}
	return b.String()
}

// Run shows the orb until the user quits or ctx is cancelled.
func Run(ctx context.Context, userID string, updates <-chan notify.StateUpdate) error {
	p := tea.NewProgram(NewModel(userID, updates), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("orb failed: %w", err)
	}
	return nil
}
