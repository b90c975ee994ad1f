package stream

import (
	"sync"
)

// Buffer holds the two append-only line sequences of a session. Historical
// lines always precede live lines, whatever order they arrived in.
type Buffer struct {
	mu         sync.RWMutex
	historical []string
	live       []string
	settled    bool
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetHistory replaces the historical lines wholesale and marks the
// history as settled
func (b *Buffer) SetHistory(lines []string) {
	cp := make([]string, len(lines))
	copy(cp, lines)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.historical = cp
	b.settled = true
}

// SettleHistory marks the history as settled without lines, used when the
// fetch failed
func (b *Buffer) SettleHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settled = true
}

// AppendLive appends one live line
func (b *Buffer) AppendLive(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live = append(b.live, line)
}

// Lines returns historical ++ live
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lines := make([]string, 0, len(b.historical)+len(b.live))
	lines = append(lines, b.historical...)
	return append(lines, b.live...)
}

// Historical returns a copy of the historical lines
func (b *Buffer) Historical() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.historical...)
}

// Live returns a copy of the live lines
func (b *Buffer) Live() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.live...)
}

// Len returns the number of lines
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.historical) + len(b.live)
}

// Empty reports whether neither sequence holds a line
func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

// Settled reports whether the historical fetch has completed, successfully
// or not. Until then positions of live lines are not final.
func (b *Buffer) Settled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settled
}

// Reset discards both sequences
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historical = nil
	b.live = nil
	b.settled = false
}
