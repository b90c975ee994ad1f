// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logviewer
// Description: Main Bubbletea model rendering one job's logs
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logviewer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/msto63/kflogs/internal/api"
	"github.com/msto63/kflogs/internal/stream"
	"github.com/msto63/kflogs/pkg/version"
)

// EmptyNotice is shown for a settled session without any line
const EmptyNotice = "No logs collected from this run."

// Source is the session state the model renders
type Source interface {
	Snapshot() stream.Snapshot
	Updates() <-chan stream.Update
	Remount(ctx context.Context) error
}

// Model is the main Bubbletea model of the log viewer
type Model struct {
	// State
	width      int
	height     int
	ready      bool
	autoScroll bool
	remounting bool

	// Components
	viewport viewport.Model
	spinner  spinner.Model

	// Session
	src      Source
	jobID    int
	snap     stream.Snapshot
	rendered int
	stop     chan struct{}

	// Toast
	toast    string
	toastSeq int
}

// New creates a model rendering src, which must already be mounted
func New(src Source, jobID int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return Model{
		spinner:    sp,
		src:        src,
		jobID:      jobID,
		snap:       src.Snapshot(),
		autoScroll: true,
		rendered:   -1,
		stop:       make(chan struct{}),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForUpdate(m.src.Updates(), m.stop),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3 // Title panel
		footerHeight := 5 // Log panel border + status bar + toast + help
		viewportHeight := msg.Height - headerHeight - footerHeight
		if viewportHeight < 1 {
			viewportHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = viewportHeight
		}
		m.rendered = -1
		m.updateViewportContent()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case updateMsg:
		m.snap = m.src.Snapshot()
		if msg.update.Token != m.snap.Token {
			// drained from a previous mount; remountedMsg re-arms the current one
			break
		}
		m.updateViewportContent()
		if msg.update.Kind == stream.UpdateNotice && msg.update.Err != nil {
			cmds = append(cmds, m.showToast(noticeText(msg.update.Err)))
		}
		cmds = append(cmds, waitForUpdate(m.src.Updates(), m.stop))

	case remountedMsg:
		m.remounting = false
		if msg.err != nil {
			cmds = append(cmds, m.showToast("Reload failed: "+msg.err.Error()))
		}
		m.snap = m.src.Snapshot()
		m.rendered = -1
		m.updateViewportContent()
		cmds = append(cmds, waitForUpdate(m.src.Updates(), m.stop))

	case clearToastMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit

		// Reload with a fresh connection
		case "r":
			if m.remounting {
				return m, nil
			}
			m.remounting = true
			close(m.stop)
			m.stop = make(chan struct{})
			return m, remount(m.src)

		// Auto-scroll toggle
		case "a":
			m.autoScroll = !m.autoScroll
			if m.autoScroll {
				m.viewport.GotoBottom()
			}
			return m, nil

		// Go to top
		case "g":
			m.viewport.GotoTop()
			m.autoScroll = false
			return m, nil

		// Go to bottom
		case "G":
			m.viewport.GotoBottom()
			m.autoScroll = true
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.ViewUp()
		m.autoScroll = false
		return m, nil

	case tea.KeyPgDown:
		m.viewport.ViewDown()
		m.autoScroll = m.viewport.AtBottom()
		return m, nil

	case tea.KeyUp:
		m.viewport.LineUp(1)
		m.autoScroll = false
		return m, nil

	case tea.KeyDown:
		m.viewport.LineDown(1)
		m.autoScroll = m.viewport.AtBottom()
		return m, nil
	}

	return m, nil
}

func (m *Model) showToast(text string) tea.Cmd {
	m.toastSeq++
	m.toast = text
	return clearToastAfter(m.toastSeq)
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Loading log viewer..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	b.WriteString(m.renderLogArea())
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")

	b.WriteString(ToastStyle.Render(m.toast))
	b.WriteString("\n")

	b.WriteString(m.renderHelpBar())

	return b.String()
}

// renderHeader renders the title panel with job name and phase
func (m Model) renderHeader() string {
	logo := LogoStyle.Render(Logo)

	title := JobNameStyle.Render(fmt.Sprintf("job %d", m.jobID))
	parts := []string{logo, strings.Repeat(" ", 3), title}
	if job := m.snap.Job; job != nil {
		title = JobNameStyle.Render(job.Name)
		parts = []string{logo, strings.Repeat(" ", 3), title, " ", RenderPhaseBadge(job.Phase)}
		if job.Meta.Namespace != "" {
			parts = append(parts, "  ", NamespaceStyle.Render(job.Meta.Namespace))
		}
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center, parts...)
	return TitlePanelStyle.Width(m.width - 4).Render(header)
}

// renderLogArea renders the main log viewport
func (m Model) renderLogArea() string {
	style := LogPanelStyle.Width(m.width - 2)
	return style.Render(m.viewport.View())
}

// renderStatusBar renders line count, version and the live indicator
func (m Model) renderStatusBar() string {
	leftPart := HelpDescStyle.Render(fmt.Sprintf("Lines: %d", len(m.snap.Lines)))
	if m.autoScroll {
		leftPart += "  " + AutoScrollStyle.Render("[Auto-Scroll]")
	}

	centerPart := HelpDescStyle.Render("v" + version.Version)

	var rightPart string
	switch {
	case m.remounting:
		rightPart = m.spinner.View() + " Reloading..."
	case !m.snap.Settled:
		rightPart = m.spinner.View() + " Loading history...  " + RenderLiveStatus(m.snap)
	default:
		rightPart = RenderLiveStatus(m.snap)
	}

	leftLen := lipgloss.Width(leftPart)
	centerLen := lipgloss.Width(centerPart)
	rightLen := lipgloss.Width(rightPart)
	availableSpace := m.width - leftLen - centerLen - rightLen - 4
	if availableSpace < 2 {
		availableSpace = 2
	}
	leftPadding := availableSpace / 2
	rightPadding := availableSpace - leftPadding

	content := leftPart + strings.Repeat(" ", leftPadding) + centerPart + strings.Repeat(" ", rightPadding) + rightPart

	return StatusBarStyle.Width(m.width - 2).Render(content)
}

// renderHelpBar renders the help shortcuts bar
func (m Model) renderHelpBar() string {
	items := []string{
		RenderKeyHint("r", "Reload"),
		RenderKeyHint("a", "AutoScroll"),
		RenderKeyHint("g/G", "Top/Bottom"),
		RenderKeyHint("PgUp/PgDn", "Scroll"),
		RenderKeyHint("q", "Quit"),
	}

	return HelpStyle.Render(strings.Join(items, "  "))
}

// updateViewportContent renders historical ++ live lines into the viewport
// and follows the tail while auto-scroll is on and the line count changed
func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	grew := len(m.snap.Lines) != m.rendered
	m.rendered = len(m.snap.Lines)

	if len(m.snap.Lines) == 0 {
		if m.snap.Settled {
			m.viewport.SetContent(EmptyNoticeStyle.Render(EmptyNotice))
		} else {
			m.viewport.SetContent("")
		}
		return
	}

	width := len(fmt.Sprint(len(m.snap.Lines)))
	var content strings.Builder
	for i, line := range m.snap.Lines {
		content.WriteString(LogLineNoStyle.Render(fmt.Sprintf("%*d", width, i+1)))
		content.WriteString(" ")
		content.WriteString(LogMessageStyle.Render(line))
		content.WriteString("\n")
	}
	m.viewport.SetContent(content.String())

	if m.autoScroll && grew {
		m.viewport.GotoBottom()
	}
}

// noticeText turns a session notice into a one-line toast
func noticeText(err error) string {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return "Request failed: " + statusErr.Message
	}

	switch stream.CodeOf(err) {
	case stream.CodeFetch:
		return "Could not load logs: " + rootCause(err).Error()
	case stream.CodeConnectionTimeout:
		return "Live log subscription timed out"
	case stream.CodeTransportClose:
		return "Live connection closed"
	default:
		return err.Error()
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// Run mounts session, runs the viewer until the user quits and unmounts
func Run(ctx context.Context, session *stream.Session, jobID int) error {
	if err := session.Mount(ctx); err != nil {
		return err
	}
	defer session.Unmount()

	p := tea.NewProgram(New(session, jobID), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
