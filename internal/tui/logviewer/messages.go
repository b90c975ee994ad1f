// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logviewer
// Description: Message types for async operations in the log viewer
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logviewer

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/msto63/kflogs/internal/stream"
)

// toastDuration is how long a notice stays visible
const toastDuration = 4 * time.Second

// Message types for tea.Cmd async operations

// updateMsg carries one session update
type updateMsg struct {
	update stream.Update
}

// remountedMsg is sent when a remount finished
type remountedMsg struct {
	err error
}

// clearToastMsg hides the toast with the given sequence number
type clearToastMsg struct {
	seq int
}

// waitForUpdate blocks until the next update on ch or until stop is closed
func waitForUpdate(ch <-chan stream.Update, stop <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-ch:
			return updateMsg{update: u}
		case <-stop:
			return nil
		}
	}
}

func remount(src Source) tea.Cmd {
	return func() tea.Msg {
		return remountedMsg{err: src.Remount(context.Background())}
	}
}

func clearToastAfter(seq int) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return clearToastMsg{seq: seq}
	})
}
