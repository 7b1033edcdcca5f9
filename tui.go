package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dkarls/watchparty/pkg/playback"
	"github.com/dkarls/watchparty/pkg/rtc"
)

// seekStep is how far the arrow keys move the playhead.
const seekStep = 10.0

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	connectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	connectingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	closedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// sessionStateMsg carries a negotiation state change into the tea loop.
type sessionStateMsg rtc.State

// remoteSourceMsg carries the far side's newly loaded file reference.
type remoteSourceMsg string

// tickMsg refreshes the position readout.
type tickMsg time.Time

type model struct {
	config  Config
	session *rtc.Session
	engine  *playback.Engine
	player  *playback.VirtualPlayer

	callState    rtc.State
	remoteSource string
	quitting     bool
}

func newModel(config Config, session *rtc.Session, engine *playback.Engine, player *playback.VirtualPlayer) model {
	return model{
		config:  config,
		session: session,
		engine:  engine,
		player:  player,
	}
}

func waitForState(session *rtc.Session) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-session.States()
		if !ok {
			return nil
		}
		return sessionStateMsg(st)
	}
}

func waitForSource(engine *playback.Engine) tea.Cmd {
	return func() tea.Msg {
		src, ok := <-engine.RemoteSources()
		if !ok {
			return nil
		}
		return remoteSourceMsg(src)
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.session), waitForSource(m.engine), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if m.player.IsPlaying() {
				m.player.Pause()
				m.engine.BroadcastPause()
			} else {
				m.player.Play()
				m.engine.BroadcastPlay()
			}

		case "left":
			pos := m.player.Position() - seekStep
			if pos < 0 {
				pos = 0
			}
			m.player.Seek(pos)
			m.engine.BroadcastSeek(pos)

		case "right":
			pos := m.player.Position() + seekStep
			m.player.Seek(pos)
			m.engine.BroadcastSeek(pos)
		}

	case sessionStateMsg:
		m.callState = rtc.State(msg)
		return m, waitForState(m.session)

	case remoteSourceMsg:
		m.remoteSource = string(msg)
		return m, waitForSource(m.engine)

	case tickMsg:
		return m, tick()
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Hanging up...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("watchparty"))
	b.WriteString("\n\n")

	b.WriteString(dimStyle.Render("Room:  "))
	b.WriteString(valueStyle.Render(m.config.Room))
	b.WriteString("\n")

	b.WriteString(dimStyle.Render("Call:  "))
	b.WriteString(renderCallState(m.callState))
	b.WriteString("\n")

	runState := "paused"
	if m.player.IsPlaying() {
		runState = "playing"
	}
	b.WriteString(dimStyle.Render("Video: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s at %s", runState, formatPosition(m.player.Position()))))
	b.WriteString("\n")

	if src := m.player.Source(); src != "" {
		b.WriteString(dimStyle.Render("File:  "))
		b.WriteString(valueStyle.Render(src))
		b.WriteString("\n")
	}
	if m.remoteSource != "" {
		b.WriteString(dimStyle.Render("Peer:  "))
		b.WriteString(valueStyle.Render(m.remoteSource))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space play/pause · ←/→ seek · q quit"))
	b.WriteString("\n")
	return b.String()
}

func renderCallState(st rtc.State) string {
	switch st.UserVisible() {
	case "connected":
		return connectedStyle.Render("connected")
	case "closed":
		return closedStyle.Render("closed")
	default:
		return connectingStyle.Render(fmt.Sprintf("connecting (%s)", st))
	}
}

func formatPosition(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// RunTUI runs the status display until the user quits.
func RunTUI(config Config, session *rtc.Session, engine *playback.Engine, player *playback.VirtualPlayer) error {
	p := tea.NewProgram(newModel(config, session, engine, player))
	_, err := p.Run()
	return err
}
