// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketOptions describes a WebSocket serial bridge
type WebSocketOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	ReadTimeout   time.Duration
}

// WebSocketTransport carries the sensor byte stream in binary WebSocket
// messages. A reader goroutine owns the connection's read side.
type WebSocketTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	messages chan []byte
	done     chan struct{}

	mu      sync.Mutex
	buf     []byte
	readErr error
	closed  bool
	once    sync.Once
}

// OpenWebSocket dials the bridge with optional HTTP Basic auth
func OpenWebSocket(opts WebSocketOptions) (*WebSocketTransport, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketTransport(conn, opts.ReadTimeout), nil
}

func newWebSocketTransport(conn *websocket.Conn, readTimeout time.Duration) *WebSocketTransport {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	w := &WebSocketTransport{
		conn:        conn,
		readTimeout: readTimeout,
		messages:    make(chan []byte, 64),
		done:        make(chan struct{}),
	}
	go w.readLoop()
	return w
}

// readLoop forwards binary messages until the connection fails
func (w *WebSocketTransport) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.closed {
				w.readErr = ErrConnectionClosed
			} else {
				w.readErr = err
			}
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

// take moves buffered bytes into p
func (w *WebSocketTransport) take(p []byte) int {
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n
}

// Receive fills p from buffered messages, waiting up to the read timeout for
// the first one.
func (w *WebSocketTransport) Receive(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	total := w.take(p)
	w.mu.Unlock()

	timer := time.NewTimer(w.readTimeout)
	defer timer.Stop()

	for total < len(p) {
		var data []byte
		var ok bool
		if total == 0 {
			select {
			case data, ok = <-w.messages:
			case <-timer.C:
				return 0, nil
			}
		} else {
			select {
			case data, ok = <-w.messages:
			default:
				return total, nil
			}
		}

		w.mu.Lock()
		if !ok {
			err := w.readErr
			w.mu.Unlock()
			if total > 0 {
				return total, nil
			}
			if err == nil {
				err = ErrConnectionClosed
			}
			return 0, err
		}
		w.buf = data
		total += w.take(p[total:])
		w.mu.Unlock()
	}
	return total, nil
}

// Flush drops buffered and queued messages
func (w *WebSocketTransport) Flush() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrConnectionClosed
	}

	n := len(w.buf)
	w.buf = nil
	for {
		select {
		case data, ok := <-w.messages:
			if !ok {
				if w.readErr != nil {
					return n, w.readErr
				}
				return n, ErrConnectionClosed
			}
			n += len(data)
		default:
			return n, nil
		}
	}
}

// Send writes p as one binary message
func (w *WebSocketTransport) Send(p []byte) (int, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return 0, ErrConnectionClosed
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the connection and stops the reader
func (w *WebSocketTransport) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
		err = w.conn.Close()
	})
	return err
}
