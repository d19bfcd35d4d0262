// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"sync"
)

// ConnectionPool caps concurrent websocket connections in total and per
// client IP. A limit of zero or less is unlimited.
type ConnectionPool struct {
	maxConnections      int
	maxConnectionsPerIP int
	activeConns         map[string]int // IP -> connection count
	totalActive         int
	mu                  sync.RWMutex
}

func NewConnectionPool(maxTotal, maxPerIP int) *ConnectionPool {
	return &ConnectionPool{
		maxConnections:      maxTotal,
		maxConnectionsPerIP: maxPerIP,
		activeConns:         make(map[string]int),
	}
}

func (cp *ConnectionPool) AcquireConnection(clientIP string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.maxConnections > 0 && cp.totalActive >= cp.maxConnections {
		return ErrMaxConnReached
	}
	if cp.maxConnectionsPerIP > 0 && cp.activeConns[clientIP] >= cp.maxConnectionsPerIP {
		return newMaxConnPerIPReachedError(clientIP)
	}

	cp.activeConns[clientIP]++
	cp.totalActive++
	return nil
}

func (cp *ConnectionPool) ReleaseConnection(clientIP string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if count := cp.activeConns[clientIP]; count > 0 {
		cp.activeConns[clientIP]--
		if cp.activeConns[clientIP] == 0 {
			delete(cp.activeConns, clientIP)
		}
		cp.totalActive--
	}
}

func (cp *ConnectionPool) GetStats() (total int, perIP map[string]int) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	ipCopy := make(map[string]int, len(cp.activeConns))
	for ip, count := range cp.activeConns {
		ipCopy[ip] = count
	}

	return cp.totalActive, ipCopy
}
