package logserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/msto63/kflogs/internal/logging"
)

var errWatcherClosed = errors.New("file watcher closed")

// Follower tails the log files of one job directory. Content present when
// following starts is skipped; it is served by the history endpoint.
type Follower struct {
	Dir string
	// Interval is how often Finished is polled
	Interval time.Duration
	// Finished reports whether the job reached a terminal phase. Following
	// ends after the scan that observed it.
	Finished func(ctx context.Context) bool
	Logger   *logging.Logger

	watcher *fsnotify.Watcher
	watched map[string]bool
	offsets map[string]int64
	partial map[string][]byte
}

// Prime starts watching the directory tree and records the current end of
// every log file. Only content written after Prime is emitted. A missing
// directory is watched for from its nearest existing parent.
func (f *Follower) Prime() error {
	f.Dir = filepath.Clean(f.Dir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	f.watcher = watcher
	f.watched = make(map[string]bool)

	// Watch before listing so that no write falls between the two
	if err := f.watchTree(); err != nil {
		f.Close()
		return err
	}

	files, err := listLogFiles(f.Dir)
	if err != nil {
		f.Close()
		return err
	}
	f.offsets = make(map[string]int64, len(files))
	f.partial = make(map[string][]byte)
	for _, lf := range files {
		f.offsets[lf.path] = lf.size
	}
	return nil
}

// Close stops watching. Follow closes the follower when it returns.
func (f *Follower) Close() error {
	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	f.watcher = nil
	return err
}

// Follow emits every complete line appended to the directory's *.log files
// until ctx is done or the job finished. It returns nil when the job
// finished and ctx.Err() otherwise. Follow primes the follower unless Prime
// was called before.
func (f *Follower) Follow(ctx context.Context, emit func(line string)) error {
	if f.watcher == nil {
		if err := f.Prime(); err != nil {
			return err
		}
	}
	defer f.Close()

	interval := f.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Writes since Prime are queued as events
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-f.watcher.Events:
			if !ok {
				return errWatcherClosed
			}
			if err := f.handleEvent(event, emit); err != nil {
				return err
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return errWatcherClosed
			}
			// Events may have been dropped, rescan everything
			f.logger().Warn("watcher error", "dir", f.Dir, "error", err)
			if err := f.scan(emit); err != nil {
				return err
			}

		case <-ticker.C:
			if f.Finished == nil || !f.Finished(ctx) {
				continue
			}
			if err := f.scan(emit); err != nil {
				return err
			}
			f.flush(emit)
			return nil
		}
	}
}

// handleEvent processes a single file event
func (f *Follower) handleEvent(event fsnotify.Event, emit func(line string)) error {
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(event.Name)
		if err != nil {
			// already gone again
			return nil
		}
		if info.IsDir() {
			if event.Name != f.Dir && !within(event.Name, f.Dir) && !within(f.Dir, event.Name) {
				return nil
			}
			if err := f.watchTree(); err != nil {
				return err
			}
			return f.scan(emit)
		}
		if f.tracks(event.Name) {
			return f.scanFile(event.Name, info.Size(), emit)
		}

	case event.Op&fsnotify.Write == fsnotify.Write:
		if !f.tracks(event.Name) {
			return nil
		}
		info, err := os.Stat(event.Name)
		if err != nil {
			return nil
		}
		return f.scanFile(event.Name, info.Size(), emit)

	case event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename:
		// A file of the same name starts over
		delete(f.offsets, event.Name)
		delete(f.partial, event.Name)
		if f.watched[event.Name] {
			delete(f.watched, event.Name)
			if event.Name == f.Dir {
				return f.watchTree()
			}
		}
	}
	return nil
}

// watchTree watches the job directory and all its subdirectories, or the
// nearest existing parent while the job directory does not exist
func (f *Follower) watchTree() error {
	if _, err := os.Stat(f.Dir); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return f.watch(existingParent(f.Dir))
	}

	return filepath.WalkDir(f.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return f.watch(path)
	})
}

func (f *Follower) watch(dir string) error {
	if f.watched[dir] {
		return nil
	}
	if err := f.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	f.watched[dir] = true
	return nil
}

// tracks reports whether path is a log file of the job
func (f *Follower) tracks(path string) bool {
	return strings.HasSuffix(path, ".log") && within(path, f.Dir)
}

// scan reads every log file of the directory up to its current size
func (f *Follower) scan(emit func(line string)) error {
	files, err := listLogFiles(f.Dir)
	if err != nil {
		return err
	}
	for _, lf := range files {
		if err := f.scanFile(lf.path, lf.size, emit); err != nil {
			return err
		}
	}
	return nil
}

// scanFile emits the complete lines between the file's offset and size
func (f *Follower) scanFile(path string, size int64, emit func(line string)) error {
	offset := f.offsets[path]
	if size < offset {
		// truncated, start over
		offset = 0
		delete(f.partial, path)
	}
	if size == offset {
		return nil
	}

	data, err := readRange(path, offset, size)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	f.offsets[path] = offset + int64(len(data))

	buf := append(f.partial[path], data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		emit(strings.TrimSuffix(string(buf[:i]), "\r"))
		buf = buf[i+1:]
	}
	if len(buf) > 0 {
		f.partial[path] = append([]byte(nil), buf...)
	} else {
		delete(f.partial, path)
	}
	return nil
}

// flush emits unterminated last lines
func (f *Follower) flush(emit func(line string)) {
	for path, buf := range f.partial {
		emit(strings.TrimSuffix(string(buf), "\r"))
		delete(f.partial, path)
	}
}

func (f *Follower) logger() *logging.Logger {
	if f.Logger == nil {
		return logging.Nop()
	}
	return f.Logger
}

func readRange(path string, from, to int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := file.Seek(from, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(file, to-from))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// within reports whether path lies below dir
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// existingParent returns the closest ancestor of path that exists
func existingParent(path string) string {
	dir := filepath.Dir(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
