// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     stream
// Description: WebSocket transport for the live log connection
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is an established message-oriented connection
type Transport interface {
	// WriteMessage sends one text frame
	WriteMessage(data []byte) error
	// ReadMessage blocks until the next frame arrives or the transport fails
	ReadMessage() ([]byte, error)
	// Close tears the transport down and unblocks ReadMessage
	Close() error
}

// Dialer establishes transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, url string) (Transport, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

// WebsocketDialer dials gorilla/websocket connections
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	// ReadLimit caps inbound frame size, 0 means unlimited
	ReadLimit int64
}

// NewWebsocketDialer creates a dialer with the given handshake timeout
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{HandshakeTimeout: handshakeTimeout}
}

// Dial opens a websocket connection
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Close() error {
	// best effort close frame; the peer may already be gone
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
