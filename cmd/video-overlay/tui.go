package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	videooverlay "github.com/menta2k/video-overlay"
	"github.com/menta2k/video-overlay/internal/config"
	"github.com/menta2k/video-overlay/pkg/labels"
	"github.com/menta2k/video-overlay/pkg/playback"
	"github.com/menta2k/video-overlay/pkg/types"
	"github.com/menta2k/video-overlay/pkg/video"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // Cyan
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true) // Red
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // Gray
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true)
)

// categoryStyle renders a legend entry in the overlay color of c
func categoryStyle(c labels.Category) lipgloss.Style {
	hex := fmt.Sprintf("#%02x%02x%02x", c.Color.R, c.Color.G, c.Color.B)
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color(hex)).Padding(0, 1)
}

// tickMsg refreshes the view
type tickMsg time.Time

// analysisDoneMsg carries the result of an analysis pass
type analysisDoneMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitAnalysis(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return analysisDoneMsg{err: <-done}
	}
}

// statusModel shows analysis progress, then the playback position and the
// categories drawn on the overlay
type statusModel struct {
	ctx      context.Context
	session  *videooverlay.Session
	player   *video.Player
	syncer   *playback.Synchronizer
	logger   *slog.Logger
	progress progress.Model

	initial <-chan error
	// analyzing is true while a pass goroutine is alive
	analyzing bool
	restart   bool
	err       error
}

func runTUI(ctx context.Context, session *videooverlay.Session, cfg *config.Config, logger *slog.Logger) error {
	src := session.Source()
	duration, ok := src.Duration()
	if !ok {
		return videooverlay.ErrSourceNotReady
	}

	player := video.NewPlayer(duration)
	defer player.Close()

	vp := viewport{containerW: cfg.Playback.ContainerWidth, containerH: cfg.Playback.ContainerHeight, src: src}
	syncer, err := playback.New(player, session, vp, cfg.PlaybackOptions(), logger)
	if err != nil {
		return err
	}

	done, err := session.StartAnalysis(ctx)
	if err != nil {
		return err
	}

	m := statusModel{
		ctx:       ctx,
		session:   session,
		player:    player,
		syncer:    syncer,
		logger:    logger,
		progress:  progress.New(progress.WithDefaultGradient()),
		initial:   done,
		analyzing: true,
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err = p.Run()
	syncer.Stop()
	if ctx.Err() != nil {
		// Interrupted
		return nil
	}
	return err
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitAnalysis(m.initial))
}

func (m statusModel) startAnalysis() (statusModel, tea.Cmd) {
	done, err := m.session.StartAnalysis(m.ctx)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.analyzing = true
	m.err = nil
	return m, waitAnalysis(done)
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = max(msg.Width-4, 10)
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case analysisDoneMsg:
		m.analyzing = false
		if errors.Is(msg.err, videooverlay.ErrSessionReset) || m.restart {
			m.restart = false
			return m.startAnalysis()
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if err := m.syncer.Start(m.ctx); err != nil {
			m.err = err
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.syncer.Stop()
			return m, tea.Quit
		case " ", "p":
			if state, _ := m.session.State(); state != types.StateComplete {
				return m, nil
			}
			if err := m.syncer.Toggle(m.ctx); err != nil {
				m.err = err
			}
			return m, nil
		case "r":
			m.syncer.Stop()
			if err := m.player.Seek(0); err != nil {
				m.err = err
			}
			m.session.Reset()
			m.logger.Info("analysis restarted")
			if m.analyzing {
				// The running pass ends with ErrSessionReset and the next
				// one starts from its done message
				m.restart = true
				return m, nil
			}
			return m.startAnalysis()
		}
	}
	return m, nil
}

func (m statusModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("video-overlay") + " " + statusStyle.Render("session "+m.session.ID()[:8]) + "\n\n")

	state, pct := m.session.State()
	b.WriteString(fmt.Sprintf("%s %s\n", statusStyle.Render("analysis:"), state))
	b.WriteString(m.progress.ViewAs(float64(pct)/100) + "\n\n")

	if state == types.StateComplete {
		playing := "paused"
		if m.syncer.Playing() {
			playing = "playing"
		}
		b.WriteString(fmt.Sprintf("%s %s  %s\n",
			statusStyle.Render("playback:"),
			playing,
			timeStyle.Render(fmt.Sprintf("%6.2fs", m.player.CurrentTime())),
		))
		b.WriteString(fmt.Sprintf("%s %d frames\n\n", statusStyle.Render("cached:"), m.session.Cache().Len()))

		active := make(map[string]bool)
		for _, name := range m.syncer.ActiveCategories() {
			active[name] = true
		}
		var legend []string
		for _, c := range labels.Categories() {
			if active[c.Name] {
				legend = append(legend, categoryStyle(c).Render(c.Name))
			} else {
				legend = append(legend, statusStyle.Render(c.Name))
			}
		}
		b.WriteString(strings.Join(legend, "  ") + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("space: play/pause  r: re-analyze  q: quit") + "\n")
	return b.String()
}
