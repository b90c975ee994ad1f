// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     stream
// Description: Connection manager owning one live log connection
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the readiness of a connection
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Readiness bound for sends issued before the connection is open:
// 10 attempts at 200ms.
const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultMaxAttempts  = 10
	DefaultReadyTimeout = DefaultMaxAttempts * DefaultPollInterval

	defaultFrameBuffer = 64
)

var errConnClosed = errors.New("connection closed")

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithReadyTimeout bounds how long Send waits for the connection to open
func WithReadyTimeout(d time.Duration) ConnOption {
	return func(c *Conn) {
		if d > 0 {
			c.readyTimeout = d
		}
	}
}

// Conn is one live log connection. It is opened asynchronously, never
// reconnects and is owned by exactly one session.
type Conn struct {
	url          string
	readyTimeout time.Duration

	mu        sync.Mutex
	state     State
	transport Transport
	err       error

	writeMu   sync.Mutex
	opened    chan struct{}
	done      chan struct{}
	frames    chan []byte
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Open starts connecting to url and returns immediately in StateConnecting.
// Canceling ctx aborts a dial that has not completed.
func Open(ctx context.Context, d Dialer, url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:          url,
		readyTimeout: DefaultReadyTimeout,
		state:        StateConnecting,
		opened:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.frames = make(chan []byte, defaultFrameBuffer)

	dialCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(dialCtx, d)
	return c
}

// run dials and then pumps inbound frames until the transport ends.
// It is the only writer of c.frames.
func (c *Conn) run(ctx context.Context, d Dialer) {
	defer close(c.frames)

	t, err := d.Dial(ctx, c.url)
	if err != nil {
		c.fail(newError(CodeTransportClose, "dial", err))
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		t.Close()
		return
	}
	c.transport = t
	c.state = StateOpen
	close(c.opened)
	c.mu.Unlock()

	for {
		data, err := t.ReadMessage()
		if err != nil {
			c.fail(newError(CodeTransportClose, "read", err))
			return
		}

		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

// fail records a transport failure and closes the connection. A failure
// after a local Close is the expected read error and is not recorded.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	c.shutdown()
}

func (c *Conn) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		t := c.transport
		c.mu.Unlock()

		close(c.done)
		c.cancel()
		if t != nil {
			err = t.Close()
		}
	})
	return err
}

// Close closes the connection immediately. It is idempotent.
func (c *Conn) Close() error {
	return c.shutdown()
}

// Send transmits msg. If the connection is still connecting, Send waits
// for it to open, bounded by the readiness timeout; on expiry it fails
// with CodeConnectionTimeout and nothing is transmitted.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if err := c.waitOpen(ctx); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	state, t := c.state, c.transport
	c.mu.Unlock()

	if state != StateOpen {
		return c.closedError("send")
	}
	if err := t.WriteMessage(msg); err != nil {
		return newError(CodeTransportClose, "send", err)
	}
	return nil
}

func (c *Conn) waitOpen(ctx context.Context) error {
	select {
	case <-c.done:
		return c.closedError("send")
	case <-c.opened:
		return nil
	default:
	}

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()

	select {
	case <-c.opened:
		return nil
	case <-c.done:
		return c.closedError("send")
	case <-timer.C:
		return newError(CodeConnectionTimeout, "send",
			fmt.Errorf("connection not open after %s", c.readyTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) closedError(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return newError(CodeTransportClose, op, errConnClosed)
}

// Messages returns the inbound frame stream. It has a single consumer and
// is closed when the connection ends.
func (c *Conn) Messages() <-chan []byte {
	return c.frames
}

// Ready is closed once the connection is open
func (c *Conn) Ready() <-chan struct{} {
	return c.opened
}

// Done is closed once the connection is closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// State returns the current readiness state
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that closed the connection, nil while it is
// alive or after a local Close
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// URL returns the endpoint this connection dials
func (c *Conn) URL() string {
	return c.url
}
