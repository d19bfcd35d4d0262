// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

type Permission string

const (
	PermissionAdmin     Permission = "admin"      // room management plus read_write
	PermissionReadWrite Permission = "read_write" // send and receive
	PermissionReadOnly  Permission = "read_only"  // receive only
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionAdmin, PermissionReadWrite, PermissionReadOnly:
		return true
	}
	return false
}

func (p Permission) CanSend() bool {
	return p == PermissionAdmin || p == PermissionReadWrite
}
