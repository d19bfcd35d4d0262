// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"encoding/json"
)

// Action is an inbound request type. Anything not listed parses to
// ActionUnknown.
type Action int

const (
	ActionUnknown Action = iota
	ActionJoinRoom
	ActionLeaveRoom
	ActionSendMessage
	ActionGetRoomInfo
	ActionKickMember
	ActionUpdatePermission
	ActionRegisterPublicKey
	ActionGetPublicKeys
	ActionPublishConfig
	ActionGetConfig
)

var actionNames = map[string]Action{
	"join_room":           ActionJoinRoom,
	"leave_room":          ActionLeaveRoom,
	"send_message":        ActionSendMessage,
	"get_room_info":       ActionGetRoomInfo,
	"kick_member":         ActionKickMember,
	"update_permission":   ActionUpdatePermission,
	"register_public_key": ActionRegisterPublicKey,
	"get_public_keys":     ActionGetPublicKeys,
	"publish_config":      ActionPublishConfig,
	"get_config":          ActionGetConfig,
}

func ParseAction(s string) Action {
	if a, ok := actionNames[s]; ok {
		return a
	}
	return ActionUnknown
}

func (a Action) String() string {
	for name, v := range actionNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// EventType is the type of an outbound envelope.
type EventType string

const (
	TypeJoin              EventType = "join"
	TypeLeave             EventType = "leave"
	TypeMessage           EventType = "message"
	TypeBroadcast         EventType = "broadcast"
	TypeRoomInfo          EventType = "room_info"
	TypeError             EventType = "error"
	TypeKick              EventType = "kick"
	TypePermissionUpdate  EventType = "permission_update"
	TypeConfigUpdate      EventType = "config_update"
	TypeRegisterPublicKey EventType = "register_public_key"
	TypeGetPublicKeys     EventType = "get_public_keys"
	TypePublishConfig     EventType = "publish_config"
	TypeGetConfig         EventType = "get_config"
)

// RoomEvent is the "event" field of a broadcast envelope.
type RoomEvent string

const (
	EventMemberJoined      RoomEvent = "member_joined"
	EventMemberLeft        RoomEvent = "member_left"
	EventMemberKicked      RoomEvent = "member_kicked"
	EventPermissionUpdated RoomEvent = "permission_updated"
	EventConfigPublished   RoomEvent = "config_published"
)

// Envelope is the wire frame in both directions. Inbound frames carry only
// Type and Data.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ===== Inbound payloads =====

type JoinRoomRequest struct {
	RoomID     string     `json:"roomId"`
	Permission Permission `json:"permission"`
	IsCreate   bool       `json:"isCreate"`
}

type SendMessageRequest struct {
	Content        json.RawMessage `json:"content"`
	Encrypted      bool            `json:"encrypted"`
	TargetClientID string          `json:"targetClientId"`
}

type KickMemberRequest struct {
	TargetClientID string `json:"targetClientId"`
}

type UpdatePermissionRequest struct {
	TargetClientID string     `json:"targetClientId"`
	Permission     Permission `json:"permission"`
}

type RegisterPublicKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

type PublishConfigRequest struct {
	Config json.RawMessage `json:"config"`
}

// ===== Outbound payloads =====

type WelcomeData struct {
	ClientID   string `json:"clientId"`
	Message    string `json:"message"`
	ServerTime int64  `json:"serverTime"`
}

type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type JoinData struct {
	Success     bool       `json:"success"`
	RoomID      string     `json:"roomId"`
	Permission  Permission `json:"permission"`
	MemberCount int        `json:"memberCount"`
	IsAdmin     bool       `json:"isAdmin"`
}

type LeaveData struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
}

// ChatMessage is delivered to the recipients of send_message.
type ChatMessage struct {
	From           string          `json:"from"`
	Content        json.RawMessage `json:"content"`
	Encrypted      bool            `json:"encrypted"`
	TargetClientID string          `json:"targetClientId,omitempty"`
	Timestamp      int64           `json:"timestamp"`
}

type SendAckData struct {
	Success bool `json:"success"`
	Sent    bool `json:"sent"`
}

type BroadcastData struct {
	Event         RoomEvent       `json:"event"`
	ClientID      string          `json:"clientId,omitempty"`
	MemberCount   int             `json:"memberCount,omitempty"`
	NewAdminID    string          `json:"newAdminId,omitempty"`
	NewPermission Permission      `json:"newPermission,omitempty"`
	Config        json.RawMessage `json:"config,omitempty"`
	Version       uint64          `json:"version,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

type KickNotice struct {
	Reason string `json:"reason"`
	RoomID string `json:"roomId"`
}

type KickAckData struct {
	Success        bool   `json:"success"`
	KickedClientID string `json:"kickedClientId"`
}

type PermissionNotice struct {
	NewPermission Permission `json:"newPermission"`
}

type PermissionAckData struct {
	Success        bool       `json:"success"`
	RoomID         string     `json:"roomId"`
	TargetClientID string     `json:"targetClientId"`
	NewPermission  Permission `json:"newPermission"`
}

type ConfigData struct {
	Config  json.RawMessage `json:"config"`
	Version uint64          `json:"version"`
}

type PublishConfigAckData struct {
	Success bool   `json:"success"`
	Version uint64 `json:"version"`
}

type RegisterKeyAckData struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PublicKeysData struct {
	PublicKeys map[string]string `json:"publicKeys"`
}
