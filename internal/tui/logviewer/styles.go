// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logviewer
// Description: Styles for the log viewer TUI
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logviewer

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/msto63/kflogs/internal/api"
	"github.com/msto63/kflogs/internal/stream"
)

// Color Palette
var (
	ColorPrimary   = lipgloss.Color("#8B5CF6") // Violet
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorSuccess   = lipgloss.Color("#10B981") // Emerald
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorDimmed    = lipgloss.Color("#374151") // Dark Gray

	ColorBgPanel = lipgloss.Color("#1E293B") // Slate 800

	ColorText      = lipgloss.Color("#F8FAFC") // Slate 50
	ColorTextMuted = lipgloss.Color("#94A3B8") // Slate 400
	ColorTextDim   = lipgloss.Color("#64748B") // Slate 500
)

// Header styles
var (
	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	JobNameStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	NamespaceStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	TitlePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 2)
)

// Log line styles
var (
	LogLineNoStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	LogMessageStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	EmptyNoticeStyle = lipgloss.NewStyle().
				Foreground(ColorTextMuted).
				Italic(true)

	LogPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed).
			Padding(0, 1)
)

// Status bar styles
var (
	StatusBarStyle = lipgloss.NewStyle().
			Background(ColorBgPanel).
			Foreground(ColorText).
			Padding(0, 1)

	StatusOnlineStyle = lipgloss.NewStyle().
				Foreground(ColorSuccess).
				Bold(true)

	StatusOfflineStyle = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StatusPendingStyle = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	ToastStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true).
			Padding(0, 1)
)

// Help styles
var (
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	AutoScrollStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)
)

// Logo
const Logo = "kflogs"

// RenderKeyHint renders a keyboard shortcut hint
func RenderKeyHint(key, description string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(description)
}

// RenderPhaseBadge renders a job phase with the color of its state
func RenderPhaseBadge(phase api.Phase) string {
	label := "[" + phase.String() + "]"
	switch phase {
	case api.PhaseRunning:
		return StatusOnlineStyle.Render(label)
	case api.PhasePending:
		return StatusPendingStyle.Render(label)
	case api.PhaseFailed:
		return StatusOfflineStyle.Render(label)
	case api.PhaseSucceeded:
		return lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true).Render(label)
	default:
		return HelpDescStyle.Render(label)
	}
}

// RenderLiveStatus renders the live connection indicator
func RenderLiveStatus(snap stream.Snapshot) string {
	switch {
	case snap.LiveEnded():
		return StatusOfflineStyle.Render("live updates stopped")
	case snap.State == stream.StateConnecting:
		return StatusPendingStyle.Render("connecting")
	case snap.State == stream.StateOpen && snap.Subscribed:
		return StatusOnlineStyle.Render("live")
	case snap.State == stream.StateOpen:
		return StatusOnlineStyle.Render("connected")
	default:
		return StatusOfflineStyle.Render("offline")
	}
}
