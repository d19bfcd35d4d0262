// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JoinResult struct {
	RoomID      string
	Permission  Permission
	MemberCount int
	IsAdmin     bool
	Created     bool

	// Config snapshot taken at join time; nil when never published.
	Config        json.RawMessage
	ConfigVersion uint64

	// Left is set when the client was moved out of another room.
	Left *LeaveResult
}

type LeaveResult struct {
	RoomID      string
	Deleted     bool
	MemberCount int
	NewAdminID  string // set when the admin left and another member took over
}

type KickResult struct {
	RoomID      string
	Target      *Client
	MemberCount int
}

type PermissionResult struct {
	RoomID     string
	Target     *Client
	Permission Permission
}

type RoomConfig struct {
	RoomID  string
	Config  json.RawMessage
	Version uint64
}

// Registry owns every room and the client -> room index. All methods are
// safe to call concurrently; each one is a single critical section.
type Registry struct {
	config  *BrokerConfig
	logger  *LoggerConfig
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	rooms    map[string]*Room
	memberOf map[string]string // client id -> room id
	seq      uint64
}

func NewRegistry(config *BrokerConfig, logger *LoggerConfig, metrics *Metrics, now func() time.Time) *Registry {
	if config == nil {
		config = DefaultBrokerConfig()
	}
	if logger == nil {
		logger = &LoggerConfig{Logger: &NullLogger{}}
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      now,
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]string),
	}
}

// Join adds c to roomID. An empty roomID creates a room under a fresh id.
// The first member of a room is always its admin whatever it asked for;
// later members get the requested permission (read_write when empty) and
// may not request admin. A client already in another room is moved: the
// target is checked first and the old membership is only dropped once the
// join can not fail. Left reports that departure.
func (r *Registry) Join(c *Client, roomID string, perm Permission, isCreate bool) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID == "" {
		roomID = r.unusedRoomIDLocked()
		isCreate = true
	}
	current, switching := r.memberOf[c.ID]
	if switching && current == roomID {
		return JoinResult{}, newAlreadyInRoomError(current)
	}
	if err := ValidateRoomID(roomID, r.config.MinRoomIDLength, r.config.MaxRoomIDLength); err != nil {
		return JoinResult{}, err
	}

	now := r.now()
	room, exists := r.rooms[roomID]
	if !exists && !isCreate {
		return JoinResult{}, newRoomNotFoundError(roomID)
	}

	if !exists || room.MemberCount() == 0 {
		perm = PermissionAdmin
	} else {
		if perm == "" {
			perm = PermissionReadWrite
		}
		if !perm.Valid() || perm == PermissionAdmin {
			return JoinResult{}, newInvalidPermissionError(perm)
		}
		if room.MemberCount() >= r.config.MaxMembers {
			return JoinResult{}, newRoomFullError(roomID, r.config.MaxMembers)
		}
	}

	var left *LeaveResult
	if switching {
		if res, ok := r.leaveLocked(c.ID); ok {
			left = &res
		}
	}

	if !exists {
		room = newRoom(roomID, now)
		r.rooms[roomID] = room
		r.logger.Log(LogTypeRoom, LogLevelInfo, "Room %s created by %s", roomID, c.ID)
	}

	r.seq++
	room.members[c.ID] = &Member{Client: c, Permission: perm, JoinedAt: now, seq: r.seq}
	r.memberOf[c.ID] = roomID
	c.setMembership(roomID, perm)
	room.touch(now)
	r.metrics.setRooms(len(r.rooms))

	r.logger.Log(LogTypeRoom, LogLevelInfo, "%s joined %s as %s (%d members)", c.ID, roomID, perm, room.MemberCount())

	return JoinResult{
		RoomID:        roomID,
		Permission:    perm,
		MemberCount:   room.MemberCount(),
		IsAdmin:       perm == PermissionAdmin,
		Created:       !exists,
		Config:        room.config,
		ConfigVersion: room.configVersion,
		Left:          left,
	}, nil
}

// Leave removes the client from its room. It reports false when the client
// was in no room. The room is deleted when it becomes empty; otherwise a
// departing admin is replaced by the earliest joined remaining member.
func (r *Registry) Leave(clientID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(clientID)
}

func (r *Registry) leaveLocked(clientID string) (LeaveResult, bool) {
	roomID, ok := r.memberOf[clientID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.memberOf, clientID)

	room, ok := r.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	m, ok := room.members[clientID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(room.members, clientID)
	m.Client.clearMembership()

	res := LeaveResult{RoomID: roomID}
	if room.MemberCount() == 0 {
		delete(r.rooms, roomID)
		r.metrics.setRooms(len(r.rooms))
		res.Deleted = true
		r.logger.Log(LogTypeRoom, LogLevelInfo, "%s left %s, room deleted", clientID, roomID)
		return res, true
	}

	if m.Permission == PermissionAdmin {
		next := room.successor()
		next.Permission = PermissionAdmin
		next.Client.setMembership(roomID, PermissionAdmin)
		res.NewAdminID = next.Client.ID
		r.logger.Log(LogTypeRoom, LogLevelInfo, "Admin of %s passed from %s to %s", roomID, clientID, next.Client.ID)
	}

	room.touch(r.now())
	res.MemberCount = room.MemberCount()
	r.logger.Log(LogTypeRoom, LogLevelInfo, "%s left %s (%d members)", clientID, roomID, res.MemberCount)
	return res, true
}

// adminRoomLocked returns the caller's room, failing unless the caller is
// its admin.
func (r *Registry) adminRoomLocked(adminID, action string) (*Room, error) {
	roomID, ok := r.memberOf[adminID]
	if !ok {
		return nil, ErrNotInRoom
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, newRoomNotFoundError(roomID)
	}
	if m := room.members[adminID]; m == nil || m.Permission != PermissionAdmin {
		return nil, newPermissionDeniedError(action)
	}
	return room, nil
}

// Kick removes targetID from the admin's room. The admin role is untouched.
func (r *Registry) Kick(adminID, targetID string) (KickResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.adminRoomLocked(adminID, "kick members")
	if err != nil {
		return KickResult{}, err
	}
	if targetID == adminID {
		return KickResult{}, ErrSelfKick
	}
	target, ok := room.members[targetID]
	if !ok {
		return KickResult{}, newMemberNotFoundError(targetID)
	}

	delete(room.members, targetID)
	delete(r.memberOf, targetID)
	target.Client.clearMembership()
	room.touch(r.now())

	r.logger.Log(LogTypeRoom, LogLevelInfo, "%s kicked %s from %s", adminID, targetID, room.id)

	return KickResult{RoomID: room.id, Target: target.Client, MemberCount: room.MemberCount()}, nil
}

// UpdatePermission overwrites targetID's permission. Admin can not be
// granted this way: a room has exactly one admin.
func (r *Registry) UpdatePermission(adminID, targetID string, perm Permission) (PermissionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.adminRoomLocked(adminID, "change permissions")
	if err != nil {
		return PermissionResult{}, err
	}
	if targetID == adminID {
		return PermissionResult{}, ErrSelfPermissionChange
	}
	target, ok := room.members[targetID]
	if !ok {
		return PermissionResult{}, newMemberNotFoundError(targetID)
	}
	if !perm.Valid() || perm == PermissionAdmin {
		return PermissionResult{}, newInvalidPermissionError(perm)
	}

	target.Permission = perm
	target.Client.setMembership(room.id, perm)
	room.touch(r.now())

	r.logger.Log(LogTypeRoom, LogLevelInfo, "%s set %s to %s in %s", adminID, targetID, perm, room.id)

	return PermissionResult{RoomID: room.id, Target: target.Client, Permission: perm}, nil
}

// PublishConfig stores config on the admin's room and bumps its version.
func (r *Registry) PublishConfig(adminID string, config json.RawMessage) (RoomConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.adminRoomLocked(adminID, "publish config")
	if err != nil {
		return RoomConfig{}, err
	}

	room.config = bytes.Clone(config)
	room.configVersion++
	room.touch(r.now())

	r.logger.Log(LogTypeRoom, LogLevelInfo, "%s published config v%d for %s", adminID, room.configVersion, room.id)

	return RoomConfig{RoomID: room.id, Config: room.config, Version: room.configVersion}, nil
}

// GetConfig returns the room's config; Config is nil when never published.
func (r *Registry) GetConfig(roomID string) (RoomConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return RoomConfig{}, newRoomNotFoundError(roomID)
	}
	return RoomConfig{RoomID: roomID, Config: room.config, Version: room.configVersion}, nil
}

// Broadcast sends payload to every member of roomID except exclude and
// returns the number of successful sends. Failures are logged and skipped.
func (r *Registry) Broadcast(roomID string, payload []byte, exclude string) int {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	targets := room.clients(exclude)
	room.touch(r.now())
	r.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			r.logger.Log(LogTypeBroadcast, LogLevelWarn, "Broadcast to %s in %s failed: %v", c.ID, roomID, err)
			r.metrics.broadcastFailed()
			continue
		}
		sent++
	}

	r.logger.Log(LogTypeBroadcast, LogLevelDebug, "Broadcast in %s delivered to %d/%d", roomID, sent, len(targets))
	return sent
}

// Relay delivers a chat payload from senderID: to targetID only when it
// is set, else to every other member of the sender's room. The sender must
// be allowed to send. It returns the number of successful sends.
func (r *Registry) Relay(senderID, targetID string, payload []byte) (int, error) {
	r.mu.Lock()
	roomID, ok := r.memberOf[senderID]
	if !ok {
		r.mu.Unlock()
		return 0, ErrNotInRoom
	}
	room := r.rooms[roomID]
	if sender := room.members[senderID]; sender == nil || !sender.Permission.CanSend() {
		r.mu.Unlock()
		return 0, newReadOnlyError()
	}

	var targets []*Client
	if targetID != "" {
		target, ok := room.members[targetID]
		if !ok {
			r.mu.Unlock()
			return 0, newTargetNotInRoomError(targetID)
		}
		targets = []*Client{target.Client}
	} else {
		targets = room.clients(senderID)
	}
	room.touch(r.now())
	r.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			r.logger.Log(LogTypeMessage, LogLevelWarn, "Message from %s to %s failed: %v", senderID, c.ID, err)
			r.metrics.broadcastFailed()
			continue
		}
		sent++
	}
	return sent, nil
}

// RoomOf returns the room the client is a member of.
func (r *Registry) RoomOf(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.memberOf[clientID]
	return id, ok
}

// MemberIDs returns the ids of roomID's members in join order.
func (r *Registry) MemberIDs(roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, newRoomNotFoundError(roomID)
	}
	members := room.sortedMembers()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Client.ID)
	}
	return ids, nil
}

func (r *Registry) RoomInfo(roomID string) (RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return RoomInfo{}, newRoomNotFoundError(roomID)
	}
	return room.info(r.config.MaxMembers), nil
}

// AllRoomsStats returns a snapshot of every room, ordered by id.
func (r *Registry) AllRoomsStats() []RoomStat {
	r.mu.Lock()
	stats := make([]RoomStat, 0, len(r.rooms))
	for _, room := range r.rooms {
		stats = append(stats, room.stat())
	}
	r.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// GenerateRoomID returns an id that no live room currently uses.
func (r *Registry) GenerateRoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unusedRoomIDLocked()
}

func (r *Registry) unusedRoomIDLocked() string {
	n := 8
	if n < r.config.MinRoomIDLength {
		n = r.config.MinRoomIDLength
	}
	if n > r.config.MaxRoomIDLength {
		n = r.config.MaxRoomIDLength
	}
	for {
		id := generateRoomID(n)
		if _, taken := r.rooms[id]; !taken {
			return id
		}
	}
}

// generateRoomID returns n upper-case hex characters of a random UUID v4,
// n capped at 32. Eight characters is the UUID's first segment.
func generateRoomID(n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}

// Sweep deletes every room whose last activity is older than the
// expiration window, members included, and returns the removed ids.
// Members are not notified.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.config.RoomExpiration)
	var removed []string
	for id, room := range r.rooms {
		if !room.lastActivity.Before(cutoff) {
			continue
		}
		for clientID, m := range room.members {
			delete(r.memberOf, clientID)
			m.Client.clearMembership()
		}
		delete(r.rooms, id)
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		sort.Strings(removed)
		r.metrics.setRooms(len(r.rooms))
		r.metrics.roomsExpired(len(removed))
		r.logger.Log(LogTypeSweep, LogLevelInfo, "Expired %d idle rooms: %s", len(removed), strings.Join(removed, ", "))
	}
	return removed
}
