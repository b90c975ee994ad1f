package logserver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func TestCollectLogs(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeLog(t, filepath.Join(dir, "b.log"), "b1\nb2\n", base.Add(2*time.Minute))
	writeLog(t, filepath.Join(dir, "a.log"), "a1\r\n", base.Add(time.Minute))
	writeLog(t, filepath.Join(dir, "pod", "c.log"), "c1", base.Add(3*time.Minute))
	writeLog(t, filepath.Join(dir, "notes.txt"), "ignored\n", base)
	writeLog(t, filepath.Join(dir, "empty.log"), "", base)

	chunks, err := CollectLogs(dir)
	require.NoError(t, err)

	var files []string
	for _, c := range chunks {
		files = append(files, c.File)
	}
	assert.Equal(t, []string{"empty.log", "a.log", "b.log", "c.log"}, files)
	assert.Equal(t, []string{}, chunks[0].FileData.Logs)
	assert.Equal(t, []string{"a1"}, chunks[1].FileData.Logs)
	assert.Equal(t, []string{"b1", "b2"}, chunks[2].FileData.Logs)
	assert.Equal(t, []string{"c1"}, chunks[3].FileData.Logs)
	assert.Equal(t, filepath.Join(dir, "pod", "c.log"), chunks[3].FileData.Path)
}

func TestCollectLogs_MissingDir(t *testing.T) {
	chunks, err := CollectLogs(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
}

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestFollower_EmitsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.log")
	writeLog(t, main, "old line\n", time.Time{})

	f := &Follower{Dir: dir, Interval: 10 * time.Millisecond}
	require.NoError(t, f.Prime())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &lineSink{}
	done := make(chan error, 1)
	go func() { done <- f.Follow(ctx, sink.emit) }()

	appendLog(t, main, "new 1\nnew ")
	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, time.Second, 5*time.Millisecond)
	appendLog(t, main, "2\n")
	appendLog(t, filepath.Join(dir, "second.log"), "other\n")

	require.Eventually(t, func() bool { return len(sink.get()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"new 1", "new 2", "other"}, sink.get())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFollower_StopsWhenFinished(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.log")

	var mu sync.Mutex
	finished := false
	f := &Follower{
		Dir:      dir,
		Interval: 10 * time.Millisecond,
		Finished: func(ctx context.Context) bool {
			mu.Lock()
			defer mu.Unlock()
			return finished
		},
	}

	require.NoError(t, f.Prime())

	sink := &lineSink{}
	done := make(chan error, 1)
	go func() { done <- f.Follow(context.Background(), sink.emit) }()

	appendLog(t, main, "last\nunterminated")
	mu.Lock()
	finished = true
	mu.Unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("follower did not stop")
	}
	assert.Equal(t, []string{"last", "unterminated"}, sink.get())
}

func TestFollower_Truncation(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.log")
	writeLog(t, main, "aaaaaaaaaa\n", time.Time{})

	f := &Follower{Dir: dir}
	require.NoError(t, f.Prime())
	defer f.Close()

	writeLog(t, main, "fresh\n", time.Time{})
	sink := &lineSink{}
	require.NoError(t, f.scan(sink.emit))
	assert.Equal(t, []string{"fresh"}, sink.get())
}

func TestFollower_WaitsForDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "9")

	f := &Follower{Dir: dir, Interval: 10 * time.Millisecond}
	require.NoError(t, f.Prime())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &lineSink{}
	done := make(chan error, 1)
	go func() { done <- f.Follow(ctx, sink.emit) }()

	// a sibling job is not followed
	writeLog(t, filepath.Join(root, "10", "main.log"), "other job\n", time.Time{})

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pod"), 0755))
	appendLog(t, filepath.Join(dir, "pod", "c.log"), "c1\n")
	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	appendLog(t, filepath.Join(dir, "pod", "c.log"), "c2\n")

	require.Eventually(t, func() bool { return len(sink.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"c1", "c2"}, sink.get())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFollower_RecreatedFileStartsOver(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.log")
	writeLog(t, main, "old\n", time.Time{})

	f := &Follower{Dir: dir, Interval: 10 * time.Millisecond}
	require.NoError(t, f.Prime())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &lineSink{}
	done := make(chan error, 1)
	go func() { done <- f.Follow(ctx, sink.emit) }()

	require.NoError(t, os.Remove(main))
	appendLog(t, main, "fresh\n")

	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"fresh"}, sink.get())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFollower_PrimeFailsOnBadDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs")
	writeLog(t, file, "not a directory", time.Time{})

	f := &Follower{Dir: filepath.Join(file, "1")}
	assert.Error(t, f.Prime())
	assert.NoError(t, f.Close())
}

func TestWithin(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/logs/9/main.log", "/logs/9", true},
		{"/logs/9/pod/c.log", "/logs/9", true},
		{"/logs/9", "/logs/9", false},
		{"/logs/90/main.log", "/logs/9", false},
		{"/logs", "/logs/9", false},
		{"/logs/..9/x.log", "/logs", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.path, tt.dir), "%s in %s", tt.path, tt.dir)
	}
}
