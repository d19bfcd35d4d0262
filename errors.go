// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"errors"
	"fmt"
)

var (
	// Broker configuration errors
	ErrInvalidRoomIDBounds      = errors.New("room id length bounds must satisfy 0 < min <= max")
	ErrInvalidMaxMembers        = errors.New("max members must be greater than 0")
	ErrMessageSizeLessThanOne   = errors.New("message size must be greater than 0")
	ErrHeartbeatLessThanOne     = errors.New("heartbeat interval must be greater than 0")
	ErrMissThresholdLessThanOne = errors.New("heartbeat miss threshold must be greater than 0")
	ErrExpirationLessThanOne    = errors.New("room expiration and sweep interval must be greater than 0")
	ErrSendBufferLessThanOne    = errors.New("send buffer size must be greater than 0")
	ErrInvalidRateLimit         = errors.New("rate limit and burst must be greater than 0")
	ErrLoggerNil                = errors.New("logger cannot be nil")
	ErrKeyStoreNil              = errors.New("key store cannot be nil")

	// Request errors, reported to the requesting client only
	ErrMalformedMessage     = errors.New("invalid message format")
	ErrInvalidRoomID        = errors.New("invalid room ID format")
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrSelfKick             = errors.New("cannot kick yourself")
	ErrSelfPermissionChange = errors.New("cannot change your own permission")
	ErrMemberNotFound       = errors.New("target member not found in room")
	ErrNotInRoom            = errors.New("not in any room")
	ErrTargetNotInRoom      = errors.New("target client not found in room")
	ErrUnknownMessageType   = errors.New("Unknown message type")
	ErrInvalidPermission    = errors.New("invalid permission")
	ErrAlreadyInRoom        = errors.New("client is already in a room")
	ErrMessageTooLarge      = errors.New("message exceeds maximum size")
	ErrMissingField         = errors.New("missing required field")
	ErrRateLimited          = errors.New("rate limit exceeded")

	// Startup errors
	ErrPortInUse = errors.New("port already in use")

	// Transport errors
	ErrClientClosed   = errors.New("client connection is closed")
	ErrSendBufferFull = errors.New("client send buffer is full")
	ErrMaxConnReached = errors.New("maximum connections reached")
	ErrUpgradeFailed  = errors.New("websocket upgrade failed")
	ErrClientNotFound = errors.New("client not found")
	ErrBrokerShutdown = errors.New("broker is shutting down")
)

// errorCodes maps request errors to the code carried in error envelopes.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMalformedMessage, "MalformedMessage"},
	{ErrInvalidRoomID, "InvalidRoomId"},
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrRoomFull, "RoomFull"},
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrSelfKick, "SelfKick"},
	{ErrSelfPermissionChange, "SelfPermissionChange"},
	{ErrMemberNotFound, "MemberNotFound"},
	{ErrNotInRoom, "NotInRoom"},
	{ErrTargetNotInRoom, "TargetNotInRoom"},
	{ErrUnknownMessageType, "UnknownMessageType"},
	{ErrInvalidPermission, "InvalidPermission"},
	{ErrAlreadyInRoom, "AlreadyInRoom"},
	{ErrMessageTooLarge, "MessageTooLarge"},
	{ErrMissingField, "MissingField"},
	{ErrRateLimited, "RateLimited"},
	{ErrPortInUse, "PortInUse"},
}

// ErrorCode returns the taxonomy name of err, or "InternalError" for
// errors outside of it.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "InternalError"
}

func newMalformedMessageError(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
}

func newInvalidRoomIDError(id string, min, max int) error {
	return fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidRoomID, id, min, max)
}

func newRoomNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
}

func newRoomFullError(id string, max int) error {
	return fmt.Errorf("%w: %s has %d members", ErrRoomFull, id, max)
}

func newPermissionDeniedError(action string) error {
	return fmt.Errorf("%w: only the room admin can %s", ErrPermissionDenied, action)
}

func newMemberNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
}

func newTargetNotInRoomError(id string) error {
	return fmt.Errorf("%w: %s", ErrTargetNotInRoom, id)
}

func newUnknownMessageTypeError(t string) error {
	return fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
}

func newInvalidPermissionError(p Permission) error {
	return fmt.Errorf("%w: %q", ErrInvalidPermission, string(p))
}

func newMessageTooLargeError(size, max int) error {
	return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, size, max)
}

func newMissingFieldError(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func newAlreadyInRoomError(id string) error {
	return fmt.Errorf("%w: %s", ErrAlreadyInRoom, id)
}

// NewPortInUseError wraps ErrPortInUse with the port that could not be bound.
func NewPortInUseError(port int, err error) error {
	return fmt.Errorf("%w: %d: %w", ErrPortInUse, port, err)
}

func newUpgradeFailedError(err error) error {
	return fmt.Errorf("%w: %w", ErrUpgradeFailed, err)
}

func newMaxConnPerIPReachedError(ip string) error {
	return fmt.Errorf("%w for IP %s", ErrMaxConnReached, ip)
}

func newClientNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrClientNotFound, id)
}

func newReadOnlyError() error {
	return fmt.Errorf("%w: read-only members cannot send messages", ErrPermissionDenied)
}
