// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"bytes"
	"context"
	"encoding/json"
)

func (b *Broker) dispatch(ctx context.Context, c *Client, action Action, env Envelope) error {
	switch action {
	case ActionJoinRoom:
		return b.handleJoinRoom(c, env.Data)
	case ActionLeaveRoom:
		return b.handleLeaveRoom(c)
	case ActionSendMessage:
		return b.handleSendMessage(c, env.Data)
	case ActionGetRoomInfo:
		return b.handleGetRoomInfo(c)
	case ActionKickMember:
		return b.handleKickMember(c, env.Data)
	case ActionUpdatePermission:
		return b.handleUpdatePermission(c, env.Data)
	case ActionRegisterPublicKey:
		return b.handleRegisterPublicKey(ctx, c, env.Data)
	case ActionGetPublicKeys:
		return b.handleGetPublicKeys(ctx, c)
	case ActionPublishConfig:
		return b.handlePublishConfig(c, env.Data)
	case ActionGetConfig:
		return b.handleGetConfig(c)
	default:
		return newUnknownMessageTypeError(env.Type)
	}
}

func (b *Broker) handleJoinRoom(c *Client, data json.RawMessage) error {
	var req JoinRoomRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}

	if current := c.RoomID(); current != "" && req.RoomID == current {
		info, err := b.registry.RoomInfo(current)
		if err != nil {
			return err
		}
		perm := c.Permission()
		b.send(c, TypeJoin, JoinData{
			Success:     true,
			RoomID:      current,
			Permission:  perm,
			MemberCount: info.MemberCount,
			IsAdmin:     perm == PermissionAdmin,
		})
		return nil
	}

	res, err := b.registry.Join(c, req.RoomID, req.Permission, req.IsCreate)
	if err != nil {
		return err
	}
	if res.Left != nil {
		b.notifyLeft(c, *res.Left)
	}

	b.send(c, TypeJoin, JoinData{
		Success:     true,
		RoomID:      res.RoomID,
		Permission:  res.Permission,
		MemberCount: res.MemberCount,
		IsAdmin:     res.IsAdmin,
	})
	if res.Config != nil {
		b.send(c, TypeConfigUpdate, ConfigData{Config: res.Config, Version: res.ConfigVersion})
	}
	b.broadcast(res.RoomID, c.ID, BroadcastData{
		Event:       EventMemberJoined,
		ClientID:    c.ID,
		MemberCount: res.MemberCount,
	})
	return nil
}

func (b *Broker) handleLeaveRoom(c *Client) error {
	roomID, ok := b.leaveRoom(c)
	if !ok {
		return ErrNotInRoom
	}
	b.send(c, TypeLeave, LeaveData{Success: true, RoomID: roomID})
	return nil
}

// leaveRoom removes c from its room and tells the remaining members.
func (b *Broker) leaveRoom(c *Client) (string, bool) {
	res, ok := b.registry.Leave(c.ID)
	if !ok {
		return "", false
	}
	b.notifyLeft(c, res)
	return res.RoomID, true
}

func (b *Broker) notifyLeft(c *Client, res LeaveResult) {
	if res.Deleted {
		return
	}
	b.broadcast(res.RoomID, c.ID, BroadcastData{
		Event:       EventMemberLeft,
		ClientID:    c.ID,
		MemberCount: res.MemberCount,
		NewAdminID:  res.NewAdminID,
	})
}

func (b *Broker) handleSendMessage(c *Client, data json.RawMessage) error {
	var req SendMessageRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}

	payload, err := EncodeEnvelope(TypeMessage, ChatMessage{
		From:           c.ID,
		Content:        req.Content,
		Encrypted:      req.Encrypted,
		TargetClientID: req.TargetClientID,
		Timestamp:      b.timestamp(),
	}, b.timestamp())
	if err != nil {
		return newMalformedMessageError(err)
	}

	if _, err := b.registry.Relay(c.ID, req.TargetClientID, payload); err != nil {
		return err
	}
	b.send(c, TypeMessage, SendAckData{Success: true, Sent: true})
	return nil
}

func (b *Broker) handleGetRoomInfo(c *Client) error {
	roomID, ok := b.registry.RoomOf(c.ID)
	if !ok {
		return ErrNotInRoom
	}
	info, err := b.registry.RoomInfo(roomID)
	if err != nil {
		return err
	}
	b.send(c, TypeRoomInfo, info)
	return nil
}

func (b *Broker) handleKickMember(c *Client, data json.RawMessage) error {
	var req KickMemberRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}

	res, err := b.registry.Kick(c.ID, req.TargetClientID)
	if err != nil {
		return err
	}

	b.send(res.Target, TypeKick, KickNotice{Reason: "Kicked by admin", RoomID: res.RoomID})
	b.broadcast(res.RoomID, "", BroadcastData{
		Event:       EventMemberKicked,
		ClientID:    res.Target.ID,
		MemberCount: res.MemberCount,
	})
	b.send(c, TypeKick, KickAckData{Success: true, KickedClientID: res.Target.ID})
	return nil
}

func (b *Broker) handleUpdatePermission(c *Client, data json.RawMessage) error {
	var req UpdatePermissionRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}

	res, err := b.registry.UpdatePermission(c.ID, req.TargetClientID, req.Permission)
	if err != nil {
		return err
	}

	b.send(res.Target, TypePermissionUpdate, PermissionNotice{NewPermission: res.Permission})
	b.broadcast(res.RoomID, "", BroadcastData{
		Event:         EventPermissionUpdated,
		ClientID:      res.Target.ID,
		NewPermission: res.Permission,
	})
	b.send(c, TypePermissionUpdate, PermissionAckData{
		Success:        true,
		RoomID:         res.RoomID,
		TargetClientID: res.Target.ID,
		NewPermission:  res.Permission,
	})
	return nil
}

func (b *Broker) handleRegisterPublicKey(ctx context.Context, c *Client, data json.RawMessage) error {
	var req RegisterPublicKeyRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}
	if req.PublicKey == "" {
		return newMissingFieldError("publicKey")
	}

	if err := b.keys.Register(ctx, c.ID, req.PublicKey); err != nil {
		return err
	}
	c.setPublicKey(req.PublicKey)

	b.send(c, TypeRegisterPublicKey, RegisterKeyAckData{Success: true, Message: "Public key registered"})
	return nil
}

func (b *Broker) handleGetPublicKeys(ctx context.Context, c *Client) error {
	roomID, ok := b.registry.RoomOf(c.ID)
	if !ok {
		return ErrNotInRoom
	}
	ids, err := b.registry.MemberIDs(roomID)
	if err != nil {
		return err
	}

	others := ids[:0]
	for _, id := range ids {
		if id != c.ID {
			others = append(others, id)
		}
	}

	keys, err := b.keys.Lookup(ctx, others)
	if err != nil {
		return err
	}
	b.send(c, TypeGetPublicKeys, PublicKeysData{PublicKeys: keys})
	return nil
}

func (b *Broker) handlePublishConfig(c *Client, data json.RawMessage) error {
	var req PublishConfigRequest
	if err := DecodeData(data, &req); err != nil {
		return err
	}
	if len(req.Config) == 0 || bytes.Equal(bytes.TrimSpace(req.Config), []byte("null")) {
		return newMissingFieldError("config")
	}

	res, err := b.registry.PublishConfig(c.ID, req.Config)
	if err != nil {
		return err
	}

	b.broadcast(res.RoomID, "", BroadcastData{
		Event:   EventConfigPublished,
		Config:  res.Config,
		Version: res.Version,
	})
	b.send(c, TypePublishConfig, PublishConfigAckData{Success: true, Version: res.Version})
	return nil
}

func (b *Broker) handleGetConfig(c *Client) error {
	roomID, ok := b.registry.RoomOf(c.ID)
	if !ok {
		return ErrNotInRoom
	}
	cfg, err := b.registry.GetConfig(roomID)
	if err != nil {
		return err
	}
	b.send(c, TypeGetConfig, ConfigData{Config: cfg.Config, Version: cfg.Version})
	return nil
}
