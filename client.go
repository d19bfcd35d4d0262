// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the outbound half of a live connection.
//
// Send must not block on the network: implementations queue the payload
// and report a full queue or a closed connection as an error. Close
// terminates the connection; the inbound side then reports the disconnect.
type Transport interface {
	Send(payload []byte) error
	Ping() error
	Close() error
}

// Client is one live connection. Its room and permission mirror the
// registry's membership record and are only written by the registry.
type Client struct {
	ID          string
	ConnInfo    ConnectionInfo
	ConnectedAt time.Time

	transport Transport

	mu         sync.RWMutex
	roomID     string
	permission Permission
	publicKey  string

	missedPings  atomic.Int32
	disconnected atomic.Bool
}

// NewClient creates a Client bound to the given transport.
//
// The id parameter should be unique among live clients; the broker uses
// GenerateClientID.
func NewClient(id string, t Transport, info ConnectionInfo, connectedAt time.Time) *Client {
	return &Client{
		ID:          id,
		ConnInfo:    info,
		ConnectedAt: connectedAt,
		transport:   t,
	}
}

// Send queues payload on the client's connection.
//
// This method is safe to call concurrently.
func (c *Client) Send(payload []byte) error {
	if c.disconnected.Load() {
		return ErrClientClosed
	}
	return c.transport.Send(payload)
}

// RoomID returns the room the client is in, or "" when it is in none.
func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) Permission() Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permission
}

func (c *Client) PublicKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publicKey
}

// IsAlive reports whether the client answered the last ping.
func (c *Client) IsAlive() bool {
	return c.missedPings.Load() == 0
}

// IsConnected reports whether the client has not been disconnected yet.
func (c *Client) IsConnected() bool {
	return !c.disconnected.Load()
}

func (c *Client) setMembership(roomID string, p Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.permission = p
}

func (c *Client) clearMembership() {
	c.setMembership("", "")
}

func (c *Client) setPublicKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publicKey = key
}
