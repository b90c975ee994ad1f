package stream

import (
	"context"
	"sync"

	"github.com/msto63/kflogs/internal/api"
)

// Sender transmits frames over a connection
type Sender interface {
	Send(ctx context.Context, msg []byte) error
}

// Subscriber emits the subscribe frame at most once for its connection
type Subscriber struct {
	mu   sync.Mutex
	sent bool
	done bool
	err  error
}

// NewSubscriber creates a subscriber that has not sent yet
func NewSubscriber() *Subscriber {
	return &Subscriber{}
}

// Eligible reports whether job qualifies for live logs
func Eligible(job *api.Job) bool {
	return job != nil && job.Phase.Running()
}

// Evaluate sends the subscribe frame if job is running, conn exists and no
// frame was sent before. It reports whether a send was attempted. A failed
// send is not retried.
func (s *Subscriber) Evaluate(ctx context.Context, job *api.Job, conn Sender) (bool, error) {
	if !Eligible(job) || conn == nil {
		return false, nil
	}

	s.mu.Lock()
	if s.sent {
		s.mu.Unlock()
		return false, nil
	}
	s.sent = true
	s.mu.Unlock()

	msg, err := NewSubscribeFrame(job).Encode()
	if err == nil {
		err = conn.Send(ctx, msg)
	}

	s.mu.Lock()
	s.done = true
	s.err = err
	s.mu.Unlock()
	return true, err
}

// Result reports whether the attempt completed and how. The frame is on
// the wire when done is true and err is nil.
func (s *Subscriber) Result() (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done, s.err
}

// Sent reports whether a subscribe was attempted
func (s *Subscriber) Sent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
