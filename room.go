// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"encoding/json"
	"sort"
	"time"
)

// Member is the association of one client to one room.
type Member struct {
	Client     *Client
	Permission Permission
	JoinedAt   time.Time
	seq        uint64 // join order, breaks JoinedAt ties
}

// Room is only touched while the registry lock is held.
type Room struct {
	id            string
	members       map[string]*Member
	createdAt     time.Time
	lastActivity  time.Time
	config        json.RawMessage
	configVersion uint64
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		id:           id,
		members:      make(map[string]*Member),
		createdAt:    now,
		lastActivity: now,
	}
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) MemberCount() int {
	return len(r.members)
}

func (r *Room) touch(now time.Time) {
	r.lastActivity = now
}

func (r *Room) admin() *Member {
	for _, m := range r.members {
		if m.Permission == PermissionAdmin {
			return m
		}
	}
	return nil
}

// successor returns the earliest joined member, or nil for an empty room.
func (r *Room) successor() *Member {
	var next *Member
	for _, m := range r.members {
		if next == nil || m.JoinedAt.Before(next.JoinedAt) ||
			(m.JoinedAt.Equal(next.JoinedAt) && m.seq < next.seq) {
			next = m
		}
	}
	return next
}

// clients snapshots member connections, skipping exclude.
func (r *Room) clients(exclude string) []*Client {
	out := make([]*Client, 0, len(r.members))
	for id, m := range r.members {
		if id != exclude {
			out = append(out, m.Client)
		}
	}
	return out
}

// sortedMembers returns members in join order.
func (r *Room) sortedMembers() []*Member {
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Room) info(maxMembers int) RoomInfo {
	members := r.sortedMembers()
	info := RoomInfo{
		ID:            r.id,
		CreatedAt:     r.createdAt,
		LastActivity:  r.lastActivity,
		MemberCount:   len(members),
		MaxMembers:    maxMembers,
		ConfigVersion: r.configVersion,
		Members:       make([]MemberInfo, 0, len(members)),
	}
	for _, m := range members {
		info.Members = append(info.Members, MemberInfo{
			ID:         m.Client.ID,
			Permission: m.Permission,
			JoinedAt:   m.JoinedAt,
		})
	}
	return info
}

func (r *Room) stat() RoomStat {
	s := RoomStat{
		ID:           r.id,
		MemberCount:  len(r.members),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
		HasConfig:    r.config != nil,
	}
	if a := r.admin(); a != nil {
		s.AdminID = a.Client.ID
	}
	return s
}
