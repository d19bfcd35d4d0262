// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport queues outbound frames for a single writer goroutine.
// Ping and close go through WriteControl, which gorilla allows
// concurrently with the writer.
type wsTransport struct {
	conn         *websocket.Conn
	out          chan []byte
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, bufSize int, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		conn:         conn,
		out:          make(chan []byte, bufSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send queues payload without blocking. It fails when the connection is
// closed or its buffer is full.
func (t *wsTransport) Send(payload []byte) error {
	select {
	case <-t.done:
		return ErrClientClosed
	default:
	}

	select {
	case t.out <- payload:
		return nil
	case <-t.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

func (t *wsTransport) Ping() error {
	select {
	case <-t.done:
		return ErrClientClosed
	default:
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

// Close terminates the connection without a close handshake.
func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// CloseWithReason sends a close frame before terminating.
func (t *wsTransport) CloseWithReason(code int, reason string) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(t.writeTimeout))
	return t.Close()
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// connection ends. It implements http.Handler.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Log(LogTypeError, LogLevelError, "PANIC RECOVERED in ServeHTTP: %v\nStack trace:\n%s", rec, string(debug.Stack()))
		}
	}()

	if b.closed.Load() {
		http.Error(w, ErrBrokerShutdown.Error(), http.StatusServiceUnavailable)
		return
	}

	info := connectionInfoFromRequest(r)

	if b.connectionPool != nil {
		if err := b.connectionPool.AcquireConnection(info.ClientIP); err != nil {
			b.logger.Log(LogTypeConnection, LogLevelWarn, "Connection rejected for %s: %v", info.ClientIP, err)
			http.Error(w, "Too many connections", http.StatusTooManyRequests)
			return
		}
		defer b.connectionPool.ReleaseConnection(info.ClientIP)
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		b.logger.Log(LogTypeConnection, LogLevelWarn, "%v", newUpgradeFailedError(err))
		return
	}

	t := newWSTransport(conn, b.config.SendBufferSize, b.config.WriteTimeout)
	c := b.Connect(t, info)

	safeGoroutine(b.logger, "ClientWrite", func() {
		b.writePump(c, t)
	})

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	b.readPump(ctx, c, t)
}

// readPump feeds inbound frames to HandleFrame until the connection fails,
// then disconnects the client.
func (b *Broker) readPump(ctx context.Context, c *Client, t *wsTransport) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Log(LogTypeError, LogLevelError, "PANIC RECOVERED in readPump (Client: %s): %v", c.ID, rec)
		}
		_ = t.Close()
		b.Disconnect(c)
	}()

	t.conn.SetReadLimit(b.config.MaxMessageSize)
	t.conn.SetPongHandler(func(string) error {
		b.Pong(c)
		return nil
	})

	violations := 0
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Log(LogTypeConnection, LogLevelDebug, "%s read error: %v", c.ID, err)
			}
			return
		}

		if !b.rateLimiter.AllowClient(c.ID) {
			violations++
			b.metrics.rateLimited()
			b.logger.Log(LogTypeRateLimit, LogLevelWarn, "Rate limit exceeded for client %s (%d/%d violations)",
				c.ID, violations, b.rateLimiter.MaxViolations())

			if max := b.rateLimiter.MaxViolations(); max > 0 && violations >= max {
				_ = t.CloseWithReason(websocket.CloseTryAgainLater, ErrRateLimited.Error())
				return
			}
			b.sendError(c, ErrRateLimited)
			continue
		}

		b.HandleFrame(ctx, c, data)
	}
}

// writePump drains the transport's queue onto the connection.
func (b *Broker) writePump(c *Client, t *wsTransport) {
	defer func() {
		_ = t.Close()
	}()

	for {
		select {
		case <-t.done:
			return
		case payload := <-t.out:
			if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
				b.logger.Log(LogTypeError, LogLevelDebug, "%s write deadline error: %v", c.ID, err)
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				b.logger.Log(LogTypeMessage, LogLevelDebug, "%s write error: %v", c.ID, err)
				return
			}
		}
	}
}
