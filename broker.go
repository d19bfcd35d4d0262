// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Broker owns the live clients and the room registry. It turns inbound
// frames into registry operations and outbound envelopes, and runs the
// heartbeat and expiration sweep.
type Broker struct {
	config     *BrokerConfig
	rateConfig *RateLimiterConfig
	logger     *LoggerConfig
	metrics    *Metrics
	keys       KeyStore
	now        func() time.Time

	registry  *Registry
	clients   *SharedCollection[*Client, string]
	startedAt time.Time

	upgrader       websocket.Upgrader
	rateLimiter    RateLimiter
	connectionPool *ConnectionPool

	closed atomic.Bool
}

// NewBroker returns a Broker with default configuration adjusted by
// options. Call Run to start the heartbeat and sweep loops.
func NewBroker(options ...Option) (*Broker, error) {
	rc := DefaultRateLimiterConfig()
	b := &Broker{
		config:     DefaultBrokerConfig(),
		rateConfig: &rc,
		logger:     DefaultLoggerConfig(),
		keys:       NewMemoryKeyStore(),
		now:        time.Now,
		clients:    NewSharedCollection[*Client, string](),
	}

	for _, o := range options {
		if err := o(b); err != nil {
			return nil, err
		}
	}

	b.registry = NewRegistry(b.config, b.logger, b.metrics, b.now)
	b.startedAt = b.now()
	b.rateLimiter = NewRateLimiterManager(*b.rateConfig)
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     b.checkOrigin,
	}
	if b.config.MaxConnections > 0 || b.config.MaxConnectionsPerIP > 0 {
		b.connectionPool = NewConnectionPool(b.config.MaxConnections, b.config.MaxConnectionsPerIP)
	}

	return b, nil
}

func (b *Broker) Config() BrokerConfig {
	return *b.config
}

func (b *Broker) Registry() *Registry {
	return b.registry
}

func (b *Broker) Metrics() *Metrics {
	return b.metrics
}

// Run drives the heartbeat and the expiration sweep until ctx is done.
func (b *Broker) Run(ctx context.Context) {
	heartbeat := time.NewTicker(b.config.HeartbeatInterval)
	sweep := time.NewTicker(b.config.SweepInterval)
	defer heartbeat.Stop()
	defer sweep.Stop()

	b.logger.Log(LogTypeServer, LogLevelInfo, "Broker running (heartbeat %s, sweep %s, expiration %s)",
		b.config.HeartbeatInterval, b.config.SweepInterval, b.config.RoomExpiration)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			b.Heartbeat()
		case <-sweep.C:
			b.registry.Sweep()
		}
	}
}

// Shutdown terminates every client. New connections are refused afterwards.
func (b *Broker) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	for _, c := range b.clients.Values() {
		if gc, ok := c.transport.(interface{ CloseWithReason(int, string) error }); ok {
			_ = gc.CloseWithReason(websocket.CloseGoingAway, "server shutdown")
		} else {
			_ = c.transport.Close()
		}
		b.Disconnect(c)
	}
	b.rateLimiter.Stop()
	b.logger.Log(LogTypeServer, LogLevelInfo, "Broker shut down")
}

// Connect registers a new client on t and sends it the welcome envelope.
func (b *Broker) Connect(t Transport, info ConnectionInfo) *Client {
	c := NewClient(GenerateClientID(), t, info, b.now())
	b.clients.Add(c, c.ID)
	b.metrics.setClients(b.clients.Len())

	b.logger.Log(LogTypeConnection, LogLevelInfo, "%s connected from %s (total: %d)", c.ID, info.ClientIP, b.clients.Len())

	b.send(c, TypeJoin, WelcomeData{
		ClientID:   c.ID,
		Message:    "Connected to server",
		ServerTime: b.timestamp(),
	})
	return c
}

// Disconnect is an implicit leave followed by removal of the client's
// public key and record. Calling it again is a no-op.
func (b *Broker) Disconnect(c *Client) {
	if !c.disconnected.CompareAndSwap(false, true) {
		return
	}

	b.leaveRoom(c)

	ctx, cancel := context.WithTimeout(context.Background(), b.config.WriteTimeout)
	defer cancel()
	if err := b.keys.Remove(ctx, c.ID); err != nil {
		b.logger.Log(LogTypeError, LogLevelWarn, "Removing public key of %s: %v", c.ID, err)
	}

	b.clients.Remove(c.ID)
	b.rateLimiter.RemoveClient(c.ID)
	b.metrics.setClients(b.clients.Len())

	b.logger.Log(LogTypeConnection, LogLevelInfo, "%s disconnected (total: %d)", c.ID, b.clients.Len())
}

// Pong records a heartbeat reply from c.
func (b *Broker) Pong(c *Client) {
	c.missedPings.Store(0)
}

// Heartbeat terminates clients that left too many pings unanswered and
// pings the rest.
func (b *Broker) Heartbeat() {
	for _, c := range b.clients.Values() {
		// Counted and read in one step; a concurrent Pong is never overwritten.
		missed := int(c.missedPings.Add(1)) - 1
		if missed >= b.config.HeartbeatMissThreshold {
			b.logger.Log(LogTypeHeartbeat, LogLevelInfo, "Terminating %s: no pong for %d pings", c.ID, missed)
			b.metrics.heartbeatTerminated()
			_ = c.transport.Close()
			b.Disconnect(c)
			continue
		}

		if err := c.transport.Ping(); err != nil {
			b.logger.Log(LogTypeHeartbeat, LogLevelDebug, "Ping to %s failed: %v", c.ID, err)
		}
	}
}

// HandleFrame decodes one inbound frame and dispatches it. Every failure
// is reported to c as an error envelope; the connection stays open.
func (b *Broker) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	if !c.IsConnected() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Log(LogTypeError, LogLevelError, "PANIC RECOVERED handling frame from %s: %v\nStack trace:\n%s", c.ID, r, string(debug.Stack()))
			b.sendError(c, errors.New("internal server error"))
		}
	}()

	if int64(len(raw)) > b.config.MaxMessageSize {
		b.sendError(c, newMessageTooLargeError(len(raw), int(b.config.MaxMessageSize)))
		return
	}

	env, err := DecodeEnvelope(raw)
	if err != nil {
		b.logger.Log(LogTypeMessage, LogLevelDebug, "%s sent malformed frame: %v", c.ID, err)
		b.sendError(c, err)
		return
	}

	action := ParseAction(env.Type)
	b.metrics.inbound(action.String())
	b.logger.Log(LogTypeMessage, LogLevelDebug, "%s -> %s", c.ID, env.Type)

	if err := b.dispatch(ctx, c, action, env); err != nil {
		b.sendError(c, err)
	}
}

// ===== Query accessors =====

func (b *Broker) ClientCount() int {
	return b.clients.Len()
}

func (b *Broker) Client(id string) (*Client, error) {
	c, ok := b.clients.Get(id)
	if !ok {
		return nil, newClientNotFoundError(id)
	}
	return c, nil
}

func (b *Broker) Stats() ServerStats {
	now := b.now()
	rooms := b.registry.AllRoomsStats()
	members := 0
	for _, r := range rooms {
		members += r.MemberCount
	}
	return ServerStats{
		ConnectedClients: b.clients.Len(),
		TotalRooms:       len(rooms),
		TotalMembers:     members,
		Rooms:            rooms,
		StartedAt:        b.startedAt,
		Uptime:           now.Sub(b.startedAt).Seconds(),
		Timestamp:        now,
	}
}

func (b *Broker) Rooms() []RoomStat {
	return b.registry.AllRoomsStats()
}

func (b *Broker) RoomInfo(roomID string) (RoomInfo, error) {
	return b.registry.RoomInfo(roomID)
}

func (b *Broker) GenerateRoomID() string {
	return b.registry.GenerateRoomID()
}

// ===== Outbound helpers =====

func (b *Broker) timestamp() int64 {
	return b.now().UnixMilli()
}

func (b *Broker) send(c *Client, t EventType, data interface{}) {
	payload, err := EncodeEnvelope(t, data, b.timestamp())
	if err != nil {
		b.logger.Log(LogTypeError, LogLevelError, "Encoding %s for %s: %v", t, c.ID, err)
		return
	}
	if err := c.Send(payload); err != nil {
		b.logger.Log(LogTypeMessage, LogLevelWarn, "Sending %s to %s failed: %v", t, c.ID, err)
		b.metrics.broadcastFailed()
	}
}

func (b *Broker) sendError(c *Client, err error) {
	code := ErrorCode(err)
	b.metrics.requestError(code)
	b.logger.Log(LogTypeMessage, LogLevelDebug, "%s request failed (%s): %v", c.ID, code, err)
	if sendErr := c.Send(EncodeError(err, b.timestamp())); sendErr != nil {
		b.logger.Log(LogTypeMessage, LogLevelWarn, "Sending error to %s failed: %v", c.ID, sendErr)
	}
}

// broadcast sends a room event to roomID's members except exclude.
func (b *Broker) broadcast(roomID, exclude string, data BroadcastData) int {
	data.Timestamp = b.timestamp()
	payload, err := EncodeEnvelope(TypeBroadcast, data, data.Timestamp)
	if err != nil {
		b.logger.Log(LogTypeError, LogLevelError, "Encoding %s event: %v", data.Event, err)
		return 0
	}
	return b.registry.Broadcast(roomID, payload, exclude)
}

func (b *Broker) checkOrigin(r *http.Request) bool {
	if len(b.config.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range b.config.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}
