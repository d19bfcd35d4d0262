package roomsocket

import (
	"time"
)

type MemberInfo struct {
	ID         string     `json:"id"`
	Permission Permission `json:"permission"`
	JoinedAt   time.Time  `json:"joinedAt"`
}

type RoomInfo struct {
	ID            string       `json:"id"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastActivity  time.Time    `json:"lastActivity"`
	MemberCount   int          `json:"memberCount"`
	MaxMembers    int          `json:"maxMembers"`
	ConfigVersion uint64       `json:"configVersion"`
	Members       []MemberInfo `json:"members"`
}

type RoomStat struct {
	ID           string    `json:"id"`
	MemberCount  int       `json:"memberCount"`
	AdminID      string    `json:"adminId,omitempty"`
	HasConfig    bool      `json:"hasConfig"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

type ServerStats struct {
	ConnectedClients int        `json:"connectedClients"`
	TotalRooms       int        `json:"totalRooms"`
	TotalMembers     int        `json:"totalMembers"`
	Rooms            []RoomStat `json:"rooms"`
	StartedAt        time.Time  `json:"startedAt"`
	Uptime           float64    `json:"uptime"` // seconds
	Timestamp        time.Time  `json:"timestamp"`
}
