package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/msto63/kflogs/internal/api"
)

var errFakeClosed = errors.New("use of closed fake transport")

// fakeTransport is an in-memory Transport
type fakeTransport struct {
	mu       sync.Mutex
	written  [][]byte
	inbound  chan []byte
	closed   chan struct{}
	once     sync.Once
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return errFakeClosed
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case b, ok := <-t.inbound:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-t.closed:
		return nil, errFakeClosed
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) push(line string) {
	t.inbound <- EncodeLine(line)
}

func (t *fakeTransport) pushRaw(raw string) {
	t.inbound <- []byte(raw)
}

func (t *fakeTransport) writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out a new fakeTransport per dial
type fakeDialer struct {
	mu         sync.Mutex
	delay      time.Duration
	gate       chan struct{}
	ignoreCtx  bool
	err        error
	urls       []string
	transports []*fakeTransport
	dialed     chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	delay, gate, ignoreCtx, err := d.delay, d.gate, d.ignoreCtx, d.err
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}

	t := newFakeTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	d.dialed <- t
	return t, nil
}

// next waits for the next dialed transport
func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case ft := <-d.dialed:
		return ft
	case <-time.After(2 * time.Second):
		t.Fatal("no transport dialed")
		return nil
	}
}

func (d *fakeDialer) dialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// fakeSource serves a fixed job and log chunks
type fakeSource struct {
	mu        sync.Mutex
	job       *api.Job
	jobErr    error
	chunks    []api.LogChunk
	logsErr   error
	logsGate  chan struct{}
	ignoreCtx bool
	logsCalls int
}

func (f *fakeSource) GetJob(ctx context.Context, id int) (*api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	job := *f.job
	return &job, nil
}

func (f *fakeSource) FetchLogs(ctx context.Context, id int) ([]api.LogChunk, error) {
	f.mu.Lock()
	f.logsCalls++
	gate, ignoreCtx := f.logsGate, f.ignoreCtx
	f.mu.Unlock()

	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.chunks, nil
}

func chunk(file string, lines ...string) api.LogChunk {
	return api.LogChunk{File: file, FileData: api.FileData{Logs: lines}}
}

func runningJob() *api.Job {
	return &api.Job{ID: 42, Name: "fill-42", Phase: api.PhaseRunning, Meta: api.JobMeta{Namespace: "apps"}}
}

// waitUpdate reads updates until one of kind arrives
func waitUpdate(t *testing.T, ch <-chan Update, kind UpdateKind) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Kind == kind {
				return u
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s update", kind)
			return Update{}
		}
	}
}
