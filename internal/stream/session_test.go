package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/msto63/kflogs/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(src JobSource, d Dialer) *Session {
	var n int
	var mu sync.Mutex
	return NewSession(SessionConfig{
		JobID:    42,
		Source:   src,
		Dialer:   d,
		Endpoint: func(token string) string { return "ws://test/ws?id=" + token },
		NewToken: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("token-%d", n)
		},
		ReadyTimeout: 500 * time.Millisecond,
	})
}

func subscribeFrames(t *testing.T, ft *fakeTransport) []SubscribeFrame {
	t.Helper()
	var frames []SubscribeFrame
	for _, w := range ft.writes() {
		var f SubscribeFrame
		require.NoError(t, json.Unmarshal(w, &f))
		frames = append(frames, f)
	}
	return frames
}

func TestSession_HistoryBeforeLive(t *testing.T) {
	tests := []struct {
		name         string
		historyFirst bool
	}{
		{"history arrives first", true},
		{"live lines arrive first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				job:      runningJob(),
				chunks:   []api.LogChunk{chunk("a.log", "h1", "h2"), chunk("b.log", "h3")},
				logsGate: make(chan struct{}),
			}
			d := newFakeDialer()
			s := newTestSession(src, d)
			require.NoError(t, s.Mount(context.Background()))
			defer s.Unmount()
			updates := s.Updates()
			ft := d.next(t)

			if tt.historyFirst {
				close(src.logsGate)
				waitUpdate(t, updates, UpdateHistory)
				ft.push("l1")
				ft.push("l2")
				waitUpdate(t, updates, UpdateLine)
				waitUpdate(t, updates, UpdateLine)
			} else {
				ft.push("l1")
				ft.push("l2")
				waitUpdate(t, updates, UpdateLine)
				waitUpdate(t, updates, UpdateLine)
				assert.Equal(t, []string{"l1", "l2"}, s.Lines())
				assert.False(t, s.Snapshot().Settled)
				close(src.logsGate)
				waitUpdate(t, updates, UpdateHistory)
			}

			assert.Equal(t, []string{"h1", "h2", "h3", "l1", "l2"}, s.Lines())
			assert.True(t, s.Snapshot().Settled)
		})
	}
}

func TestSession_SubscribesOnce(t *testing.T) {
	src := &fakeSource{job: runningJob()}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	ft := d.next(t)

	waitUpdate(t, s.Updates(), UpdateSubscribed)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureSubscribed())
		}()
	}
	wg.Wait()

	frames := subscribeFrames(t, ft)
	require.Len(t, frames, 1)
	assert.Equal(t, SubscribeFrame{
		Event:             EventSubscribe,
		Data:              SubscribeData{JobID: 42},
		ResourceNamespace: "apps",
		ResourceName:      "fill-42",
	}, frames[0])
	assert.True(t, s.Snapshot().Subscribed)
}

func TestSession_NotRunningNeverSubscribes(t *testing.T) {
	for _, phase := range []api.Phase{api.PhaseNotRun, api.PhasePending, api.PhaseSucceeded, api.PhaseFailed} {
		t.Run(phase.String(), func(t *testing.T) {
			job := runningJob()
			job.Phase = phase
			src := &fakeSource{job: job, chunks: []api.LogChunk{chunk("a.log", "done")}}
			d := newFakeDialer()
			s := newTestSession(src, d)
			require.NoError(t, s.Mount(context.Background()))
			defer s.Unmount()
			ft := d.next(t)

			waitUpdate(t, s.Updates(), UpdateJob)
			require.NoError(t, s.EnsureSubscribed())
			require.NoError(t, s.EnsureSubscribed())

			require.Eventually(t, func() bool { return s.Snapshot().Settled }, time.Second, 5*time.Millisecond)
			assert.Empty(t, ft.writes())
			assert.False(t, s.Snapshot().Subscribed)
			assert.Equal(t, []string{"done"}, s.Lines())
		})
	}
}

func TestSession_UnmountDuringFetch(t *testing.T) {
	src := &fakeSource{
		job:       runningJob(),
		chunks:    []api.LogChunk{chunk("a.log", "late")},
		logsGate:  make(chan struct{}),
		ignoreCtx: true,
	}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	ft := d.next(t)

	s.mu.Lock()
	m := s.cur
	s.mu.Unlock()
	<-m.conn.Ready()

	s.Unmount()
	assert.Equal(t, StateClosed, m.conn.State(), "connection closed within unmount")
	assert.True(t, ft.isClosed())
	assert.False(t, s.Mounted())

	// the fetch completes after unmount and must not touch the buffer
	close(src.logsGate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, m.buf.Len())
	assert.False(t, m.buf.Settled())
	assert.Nil(t, s.Lines())
	assert.Nil(t, s.Updates())
}

func TestSession_RemountGetsFreshConnection(t *testing.T) {
	src := &fakeSource{job: runningJob(), chunks: []api.LogChunk{chunk("a.log", "h1")}}
	d := newFakeDialer()
	s := newTestSession(src, d)

	require.NoError(t, s.Mount(context.Background()))
	first := d.next(t)
	firstToken := s.Token()
	waitUpdate(t, s.Updates(), UpdateSubscribed)
	first.push("old-1")
	waitUpdate(t, s.Updates(), UpdateLine)

	require.NoError(t, s.Remount(context.Background()))
	defer s.Unmount()
	second := d.next(t)
	secondToken := s.Token()

	assert.NotEqual(t, firstToken, secondToken)
	assert.True(t, first.isClosed())
	assert.Equal(t, []string{
		"ws://test/ws?id=" + firstToken,
		"ws://test/ws?id=" + secondToken,
	}, d.dialedURLs())

	updates := s.Updates()
	waitUpdate(t, updates, UpdateHistory)
	second.push("new-1")
	u := waitUpdate(t, updates, UpdateLine)
	assert.Equal(t, secondToken, u.Token)

	assert.Equal(t, []string{"h1", "new-1"}, s.Lines())
	require.Eventually(t, func() bool { return len(second.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, subscribeFrames(t, first), 1)
}

func TestSession_MountTwice(t *testing.T) {
	s := newTestSession(&fakeSource{job: runningJob()}, newFakeDialer())
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	assert.ErrorIs(t, s.Mount(context.Background()), ErrMounted)
}

func TestSession_EnsureSubscribedUnmounted(t *testing.T) {
	s := newTestSession(&fakeSource{job: runningJob()}, newFakeDialer())
	assert.ErrorIs(t, s.EnsureSubscribed(), ErrNotMounted)
	s.Unmount()
	assert.Equal(t, StateClosed, s.Snapshot().State)
}

func TestSession_MalformedFramesDropped(t *testing.T) {
	src := &fakeSource{job: runningJob()}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	ft := d.next(t)

	ft.pushRaw("not json")
	ft.pushRaw(`{"other": "field"}`)
	ft.pushRaw(`{"data": 12}`)
	ft.push("good")

	waitUpdate(t, s.Updates(), UpdateLine)
	assert.Equal(t, []string{"good"}, s.Lines())
	assert.Equal(t, StateOpen, s.Snapshot().State)
}

func TestSession_FetchErrorIsNotice(t *testing.T) {
	src := &fakeSource{job: runningJob(), logsErr: &api.StatusError{StatusCode: 500, Message: "boom"}}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	ft := d.next(t)

	updates := s.Updates()
	u := waitUpdate(t, updates, UpdateNotice)
	assert.True(t, errors.Is(u.Err, ErrFetch))
	var statusErr *api.StatusError
	assert.True(t, errors.As(u.Err, &statusErr))

	ft.push("still live")
	waitUpdate(t, updates, UpdateLine)
	assert.Equal(t, []string{"still live"}, s.Lines())
	assert.True(t, s.Snapshot().Settled)
}

func TestSession_JobErrorIsNotice(t *testing.T) {
	src := &fakeSource{jobErr: errors.New("unreachable"), chunks: []api.LogChunk{chunk("a.log", "h")}}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	ft := d.next(t)

	u := waitUpdate(t, s.Updates(), UpdateNotice)
	assert.Equal(t, CodeFetch, CodeOf(u.Err))
	require.Eventually(t, func() bool { return s.Snapshot().Settled }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"h"}, s.Lines())
	assert.Empty(t, ft.writes())
}

func TestSession_SubscribeTimeoutIsNotice(t *testing.T) {
	src := &fakeSource{job: runningJob(), chunks: []api.LogChunk{chunk("a.log", "h")}}
	d := newFakeDialer()
	d.gate = make(chan struct{})
	s := NewSession(SessionConfig{
		JobID:        42,
		Source:       src,
		Dialer:       d,
		Endpoint:     func(token string) string { return "ws://test/ws?id=" + token },
		ReadyTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()

	u := waitUpdate(t, s.Updates(), UpdateNotice)
	assert.True(t, errors.Is(u.Err, ErrConnectionTimeout), u.Err)
	snap := s.Snapshot()
	assert.False(t, snap.Subscribed)
	assert.ErrorIs(t, snap.SubscribeErr, ErrConnectionTimeout)
	assert.True(t, snap.LiveEnded())
	require.Eventually(t, func() bool { return s.Snapshot().Settled }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"h"}, s.Lines())

	// a late open does not revive the subscription
	close(d.gate)
	ft := d.next(t)
	require.Eventually(t, func() bool { return s.Snapshot().State == StateOpen }, time.Second, 5*time.Millisecond)
	snap = s.Snapshot()
	assert.False(t, snap.Subscribed)
	assert.True(t, snap.LiveEnded())
	assert.Empty(t, ft.writes())
}

func TestSession_TransportCloseStopsLive(t *testing.T) {
	src := &fakeSource{job: runningJob()}
	d := newFakeDialer()
	s := newTestSession(src, d)
	require.NoError(t, s.Mount(context.Background()))
	defer s.Unmount()
	ft := d.next(t)

	updates := s.Updates()
	ft.push("last")
	waitUpdate(t, updates, UpdateLine)
	close(ft.inbound)

	u := waitUpdate(t, updates, UpdateLiveStopped)
	assert.True(t, errors.Is(u.Err, ErrTransportClose))
	snap := s.Snapshot()
	assert.True(t, snap.LiveStopped)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, []string{"last"}, snap.Lines)
}

func TestUpdateKind_String(t *testing.T) {
	kinds := map[UpdateKind]string{
		UpdateJob:         "job",
		UpdateHistory:     "history",
		UpdateLine:        "line",
		UpdateConnected:   "connected",
		UpdateSubscribed:  "subscribed",
		UpdateNotice:      "notice",
		UpdateLiveStopped: "live-stopped",
		UpdateKind(99):    "unknown",
	}
	for k, want := range kinds {
		assert.Equal(t, want, k.String())
	}
}
