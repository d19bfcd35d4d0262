// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
)

type ConnectionInfo struct {
	ClientIP  string
	UserAgent string
	Origin    string
	RequestID string
}

// GenerateClientID returns a random UUID v4.
func GenerateClientID() string {
	return uuid.NewString()
}

// GenerateRoomID returns the first segment of a random UUID v4, upper-cased
// (8 hex characters). Uniqueness among live rooms is the registry's job.
func GenerateRoomID() string {
	return generateRoomID(8)
}

// ValidateRoomID reports whether id has a length within [min, max].
func ValidateRoomID(id string, min, max int) error {
	if n := len(id); n < min || n > max {
		return newInvalidRoomIDError(id, min, max)
	}
	return nil
}

func safeGoroutine(logger *LoggerConfig, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log(LogTypeError, LogLevelError, "PANIC RECOVERED in %s: %v\nStack trace:\n%s",
					name, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// getClientIPFromRequest returns the client's IP address from the given http request.
// X-Real-Ip wins over the first X-Forwarded-For hop, which wins over RemoteAddr.
func getClientIPFromRequest(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func connectionInfoFromRequest(r *http.Request) ConnectionInfo {
	return ConnectionInfo{
		ClientIP:  getClientIPFromRequest(r),
		UserAgent: r.UserAgent(),
		Origin:    r.Header.Get("Origin"),
		RequestID: "req_" + uuid.NewString(),
	}
}
