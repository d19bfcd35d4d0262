package roomsocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKeyStore lets tests script key store failures.
type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) Register(ctx context.Context, clientID, publicKey string) error {
	args := m.Called(ctx, clientID, publicKey)
	return args.Error(0)
}

func (m *MockKeyStore) Lookup(ctx context.Context, clientIDs []string) (map[string]string, error) {
	args := m.Called(ctx, clientIDs)
	keys, _ := args.Get(0).(map[string]string)
	return keys, args.Error(1)
}

func (m *MockKeyStore) Remove(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func newTestBroker(t *testing.T, options ...Option) (*Broker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts := append([]Option{WithLogger(&NullLogger{}), WithClock(clock.Now)}, options...)
	b, err := NewBroker(opts...)
	require.NoError(t, err)
	t.Cleanup(b.Shutdown)
	return b, clock
}

// connect attaches a mock connection and discards the welcome envelope.
func connect(t *testing.T, b *Broker) (*Client, *MockTransport) {
	t.Helper()
	tr := &MockTransport{}
	c := b.Connect(tr, ConnectionInfo{ClientIP: "127.0.0.1"})
	require.Len(t, tr.Take(t), 1)
	return c, tr
}

func frame(t *testing.T, typ string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	require.NoError(t, err)
	return raw
}

func request(t *testing.T, b *Broker, c *Client, typ string, data interface{}) {
	t.Helper()
	b.HandleFrame(context.Background(), c, frame(t, typ, data))
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// only asserts a single envelope of type typ was sent and returns it.
func only(t *testing.T, envs []Envelope, typ EventType) Envelope {
	t.Helper()
	require.Len(t, envs, 1, "envelopes: %+v", envs)
	require.Equal(t, string(typ), envs[0].Type)
	return envs[0]
}

func requireError(t *testing.T, tr *MockTransport, code string) ErrorData {
	t.Helper()
	env := only(t, tr.Take(t), TypeError)
	data := decode[ErrorData](t, env)
	assert.Equal(t, code, data.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, data.Error, *env.Error)
	return data
}

// setupRoom puts admin and members into ROOM1 and clears their queues.
func setupRoom(t *testing.T, b *Broker, n int) ([]*Client, []*MockTransport) {
	t.Helper()
	clients := make([]*Client, n)
	transports := make([]*MockTransport, n)
	for i := 0; i < n; i++ {
		clients[i], transports[i] = connect(t, b)
		request(t, b, clients[i], "join_room", map[string]interface{}{"roomId": "ROOM1", "isCreate": true})
	}
	for _, tr := range transports {
		tr.Take(t)
	}
	return clients, transports
}

func TestNewBroker(t *testing.T) {
	b, err := NewBroker(WithLogger(&NullLogger{}))
	require.NoError(t, err)
	defer b.Shutdown()

	assert.NotNil(t, b.Registry())
	assert.Nil(t, b.Metrics())
	assert.Equal(t, *DefaultBrokerConfig(), b.Config())
	assert.Nil(t, b.connectionPool)
	assert.Equal(t, 0, b.ClientCount())
}

func TestBroker_ConnectSendsWelcome(t *testing.T) {
	b, clock := newTestBroker(t)
	tr := &MockTransport{}

	c := b.Connect(tr, ConnectionInfo{ClientIP: "127.0.0.1"})

	env := only(t, tr.Take(t), TypeJoin)
	welcome := decode[WelcomeData](t, env)
	assert.Equal(t, c.ID, welcome.ClientID)
	assert.Equal(t, "Connected to server", welcome.Message)
	assert.Equal(t, clock.Now().UnixMilli(), welcome.ServerTime)
	assert.Nil(t, env.Error)

	got, err := b.Client(c.ID)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, 1, b.ClientCount())

	_, err = b.Client("missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestBroker_MalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"truncated json", `{"type":"join_room",`},
		{"array", `[1,2,3]`},
		{"missing type", `{"data":{}}`},
		{"empty type", `{"type":"","data":{}}`},
		{"non-string type", `{"type":5,"data":{}}`},
		{"missing data", `{"type":"join_room"}`},
		{"data of wrong shape", `{"type":"join_room","data":"ROOM1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBroker(t)
			c, tr := connect(t, b)

			b.HandleFrame(context.Background(), c, []byte(tt.raw))

			requireError(t, tr, "MalformedMessage")
			assert.True(t, c.IsConnected())
			assert.False(t, tr.Closed())
		})
	}
}

func TestBroker_UnknownMessageType(t *testing.T) {
	b, _ := newTestBroker(t)
	c, tr := connect(t, b)

	request(t, b, c, "dance", map[string]interface{}{})

	data := requireError(t, tr, "UnknownMessageType")
	assert.Equal(t, "Unknown message type: dance", data.Error)
	assert.True(t, c.IsConnected())
}

func TestBroker_MessageTooLarge(t *testing.T) {
	b, _ := newTestBroker(t, WithMaxMessageSize(64))
	c, tr := connect(t, b)

	request(t, b, c, "send_message", map[string]interface{}{"content": strings.Repeat("x", 100)})

	requireError(t, tr, "MessageTooLarge")
}

func TestBroker_JoinRoom(t *testing.T) {
	b, _ := newTestBroker(t)
	a, ta := connect(t, b)
	c, tc := connect(t, b)

	request(t, b, a, "join_room", map[string]interface{}{})
	joined := decode[JoinData](t, only(t, ta.Take(t), TypeJoin))
	assert.True(t, joined.Success)
	assert.True(t, joined.IsAdmin)
	assert.Equal(t, PermissionAdmin, joined.Permission)
	assert.Equal(t, 1, joined.MemberCount)
	assert.Len(t, joined.RoomID, 8)

	request(t, b, c, "join_room", map[string]interface{}{"roomId": joined.RoomID, "permission": "read_only"})
	second := decode[JoinData](t, only(t, tc.Take(t), TypeJoin))
	assert.False(t, second.IsAdmin)
	assert.Equal(t, PermissionReadOnly, second.Permission)
	assert.Equal(t, 2, second.MemberCount)

	event := decode[BroadcastData](t, only(t, ta.Take(t), TypeBroadcast))
	assert.Equal(t, EventMemberJoined, event.Event)
	assert.Equal(t, c.ID, event.ClientID)
	assert.Equal(t, 2, event.MemberCount)
}

func TestBroker_JoinRoomErrors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		code string
	}{
		{"room not found", map[string]interface{}{"roomId": "NOPE1"}, "RoomNotFound"},
		{"invalid room id", map[string]interface{}{"roomId": "x", "isCreate": true}, "InvalidRoomId"},
		{"invalid permission", map[string]interface{}{"roomId": "ROOM1", "permission": "owner"}, "InvalidPermission"},
		{"room full", map[string]interface{}{"roomId": "ROOM1"}, "RoomFull"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBroker(t, WithMaxMembers(1))
			setupRoom(t, b, 1)
			c, tr := connect(t, b)

			request(t, b, c, "join_room", tt.data)

			requireError(t, tr, tt.code)
			assert.Empty(t, c.RoomID())
		})
	}
}

func TestBroker_JoinSendsPublishedConfig(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 1)
	request(t, b, clients[0], "publish_config", map[string]interface{}{"config": map[string]interface{}{"mode": "quiet"}})
	transports[0].Take(t)

	c, tc := connect(t, b)
	request(t, b, c, "join_room", map[string]interface{}{"roomId": "ROOM1"})

	envs := tc.Take(t)
	require.Len(t, envs, 2)
	assert.Equal(t, string(TypeJoin), envs[0].Type)
	assert.Equal(t, string(TypeConfigUpdate), envs[1].Type)
	cfg := decode[ConfigData](t, envs[1])
	assert.JSONEq(t, `{"mode":"quiet"}`, string(cfg.Config))
	assert.Equal(t, uint64(1), cfg.Version)
}

func TestBroker_RejoinAndSwitchRooms(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 2)
	a, b1 := clients[0], clients[1]
	ta, tb := transports[0], transports[1]

	request(t, b, b1, "join_room", map[string]interface{}{"roomId": "ROOM1"})
	joined := decode[JoinData](t, only(t, tb.Take(t), TypeJoin))
	assert.Equal(t, "ROOM1", joined.RoomID)
	assert.Equal(t, 2, joined.MemberCount)
	assert.Empty(t, ta.Take(t), "rejoining the current room is silent")

	request(t, b, b1, "join_room", map[string]interface{}{"roomId": "ROOM2", "isCreate": true})
	joined = decode[JoinData](t, only(t, tb.Take(t), TypeJoin))
	assert.Equal(t, "ROOM2", joined.RoomID)
	assert.True(t, joined.IsAdmin)

	left := decode[BroadcastData](t, only(t, ta.Take(t), TypeBroadcast))
	assert.Equal(t, EventMemberLeft, left.Event)
	assert.Equal(t, b1.ID, left.ClientID)
	assert.Equal(t, 1, left.MemberCount)
	assert.Equal(t, "ROOM1", a.RoomID())
}

func TestBroker_FailedSwitchKeepsRoom(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 2)
	a, member := clients[0], clients[1]
	ta, tm := transports[0], transports[1]

	request(t, b, a, "join_room", map[string]interface{}{"roomId": "NOPE1234"})
	requireError(t, ta, "RoomNotFound")

	assert.Equal(t, "ROOM1", a.RoomID())
	assert.Equal(t, PermissionAdmin, a.Permission())
	assert.Equal(t, PermissionReadWrite, member.Permission())
	assert.Empty(t, tm.Take(t), "room is not told about a failed switch")

	info, err := b.RoomInfo("ROOM1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.MemberCount)
}

func TestBroker_CreateIgnoresRequestedPermission(t *testing.T) {
	b, _ := newTestBroker(t)
	c, tr := connect(t, b)

	request(t, b, c, "join_room", map[string]interface{}{"permission": "owner"})

	joined := decode[JoinData](t, only(t, tr.Take(t), TypeJoin))
	assert.True(t, joined.IsAdmin)
	assert.Equal(t, PermissionAdmin, joined.Permission)
	assert.Equal(t, PermissionAdmin, c.Permission())
}

func TestBroker_LeaveRoom(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 3)

	request(t, b, clients[0], "leave_room", map[string]interface{}{})
	ack := decode[LeaveData](t, only(t, transports[0].Take(t), TypeLeave))
	assert.True(t, ack.Success)
	assert.Equal(t, "ROOM1", ack.RoomID)

	for i := 1; i < 3; i++ {
		event := decode[BroadcastData](t, only(t, transports[i].Take(t), TypeBroadcast))
		assert.Equal(t, EventMemberLeft, event.Event)
		assert.Equal(t, clients[0].ID, event.ClientID)
		assert.Equal(t, 2, event.MemberCount)
		assert.Equal(t, clients[1].ID, event.NewAdminID)
	}
	assert.Equal(t, PermissionAdmin, clients[1].Permission())

	request(t, b, clients[0], "leave_room", map[string]interface{}{})
	requireError(t, transports[0], "NotInRoom")
}

func TestBroker_SendMessage(t *testing.T) {
	b, clock := newTestBroker(t)
	clients, transports := setupRoom(t, b, 3)
	a, m, r := clients[0], clients[1], clients[2]
	ta, tm, tr := transports[0], transports[1], transports[2]

	request(t, b, a, "update_permission", map[string]interface{}{"targetClientId": r.ID, "permission": "read_only"})
	for _, x := range transports {
		x.Take(t)
	}

	request(t, b, m, "send_message", map[string]interface{}{"content": "hi", "encrypted": true})

	ack := decode[SendAckData](t, only(t, tm.Take(t), TypeMessage))
	assert.True(t, ack.Success)
	assert.True(t, ack.Sent)
	for _, x := range []*MockTransport{ta, tr} {
		msg := decode[ChatMessage](t, only(t, x.Take(t), TypeMessage))
		assert.Equal(t, m.ID, msg.From)
		assert.JSONEq(t, `"hi"`, string(msg.Content))
		assert.True(t, msg.Encrypted)
		assert.Equal(t, clock.Now().UnixMilli(), msg.Timestamp)
	}

	request(t, b, a, "send_message", map[string]interface{}{"content": map[string]interface{}{"k": 1}, "targetClientId": r.ID})
	only(t, ta.Take(t), TypeMessage)
	direct := decode[ChatMessage](t, only(t, tr.Take(t), TypeMessage))
	assert.Equal(t, r.ID, direct.TargetClientID)
	assert.Empty(t, tm.Take(t))

	request(t, b, r, "send_message", map[string]interface{}{"content": "blocked"})
	requireError(t, tr, "PermissionDenied")
	assert.Empty(t, ta.Take(t))
	assert.Empty(t, tm.Take(t))

	outsider, tx := connect(t, b)
	request(t, b, a, "send_message", map[string]interface{}{"content": "x", "targetClientId": outsider.ID})
	requireError(t, ta, "TargetNotInRoom")
	assert.Empty(t, tx.Take(t))

	request(t, b, outsider, "send_message", map[string]interface{}{"content": "x"})
	requireError(t, tx, "NotInRoom")
}

func TestBroker_KickMember(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 3)
	a, victim, other := clients[0], clients[1], clients[2]
	ta, tv, to := transports[0], transports[1], transports[2]

	request(t, b, other, "kick_member", map[string]interface{}{"targetClientId": victim.ID})
	requireError(t, to, "PermissionDenied")

	request(t, b, a, "kick_member", map[string]interface{}{"targetClientId": a.ID})
	requireError(t, ta, "SelfKick")

	request(t, b, a, "kick_member", map[string]interface{}{"targetClientId": "ghost"})
	requireError(t, ta, "MemberNotFound")

	request(t, b, a, "kick_member", map[string]interface{}{"targetClientId": victim.ID})

	notice := decode[KickNotice](t, only(t, tv.Take(t), TypeKick))
	assert.Equal(t, "Kicked by admin", notice.Reason)
	assert.Equal(t, "ROOM1", notice.RoomID)
	assert.Empty(t, victim.RoomID())
	assert.Empty(t, victim.Permission())

	event := decode[BroadcastData](t, only(t, to.Take(t), TypeBroadcast))
	assert.Equal(t, EventMemberKicked, event.Event)
	assert.Equal(t, victim.ID, event.ClientID)
	assert.Equal(t, 2, event.MemberCount)

	envs := ta.Take(t)
	require.Len(t, envs, 2)
	assert.Equal(t, string(TypeBroadcast), envs[0].Type)
	ack := decode[KickAckData](t, envs[1])
	assert.True(t, ack.Success)
	assert.Equal(t, victim.ID, ack.KickedClientID)

	request(t, b, victim, "get_room_info", map[string]interface{}{})
	requireError(t, tv, "NotInRoom")
}

func TestBroker_UpdatePermission(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 3)
	a, target := clients[0], clients[1]
	ta, tt, to := transports[0], transports[1], transports[2]

	request(t, b, a, "update_permission", map[string]interface{}{"targetClientId": target.ID, "permission": "admin"})
	requireError(t, ta, "InvalidPermission")

	request(t, b, a, "update_permission", map[string]interface{}{"targetClientId": a.ID, "permission": "read_only"})
	requireError(t, ta, "SelfPermissionChange")

	request(t, b, a, "update_permission", map[string]interface{}{"targetClientId": target.ID, "permission": "read_only"})

	envs := tt.Take(t)
	require.Len(t, envs, 2)
	notice := decode[PermissionNotice](t, envs[0])
	assert.Equal(t, PermissionReadOnly, notice.NewPermission)
	assert.Equal(t, string(TypeBroadcast), envs[1].Type)

	event := decode[BroadcastData](t, only(t, to.Take(t), TypeBroadcast))
	assert.Equal(t, EventPermissionUpdated, event.Event)
	assert.Equal(t, target.ID, event.ClientID)
	assert.Equal(t, PermissionReadOnly, event.NewPermission)

	envs = ta.Take(t)
	require.Len(t, envs, 2)
	ack := decode[PermissionAckData](t, envs[1])
	assert.Equal(t, PermissionAckData{Success: true, RoomID: "ROOM1", TargetClientID: target.ID, NewPermission: PermissionReadOnly}, ack)
}

func TestBroker_PublicKeys(t *testing.T) {
	keys := NewMemoryKeyStore()
	b, _ := newTestBroker(t, WithKeyStore(keys))
	clients, transports := setupRoom(t, b, 3)
	a, m := clients[0], clients[1]
	ta, tm := transports[0], transports[1]

	request(t, b, a, "register_public_key", map[string]interface{}{})
	requireError(t, ta, "MissingField")

	request(t, b, a, "register_public_key", map[string]interface{}{"publicKey": "pk-a"})
	ack := decode[RegisterKeyAckData](t, only(t, ta.Take(t), TypeRegisterPublicKey))
	assert.True(t, ack.Success)
	assert.Equal(t, "pk-a", a.PublicKey())

	request(t, b, m, "register_public_key", map[string]interface{}{"publicKey": "pk-m"})
	tm.Take(t)

	request(t, b, a, "get_public_keys", map[string]interface{}{})
	got := decode[PublicKeysData](t, only(t, ta.Take(t), TypeGetPublicKeys))
	assert.Equal(t, map[string]string{m.ID: "pk-m"}, got.PublicKeys)

	b.Disconnect(m)
	assert.Equal(t, 1, keys.Len())

	lone, tl := connect(t, b)
	request(t, b, lone, "get_public_keys", map[string]interface{}{})
	requireError(t, tl, "NotInRoom")
}

func TestBroker_KeyStoreFailure(t *testing.T) {
	store := &MockKeyStore{}
	store.On("Register", mock.Anything, mock.Anything, "pk").Return(errors.New("store unavailable"))
	store.On("Remove", mock.Anything, mock.Anything).Return(nil)

	b, _ := newTestBroker(t, WithKeyStore(store))
	c, tr := connect(t, b)

	request(t, b, c, "register_public_key", map[string]interface{}{"publicKey": "pk"})
	data := requireError(t, tr, "InternalError")
	assert.Contains(t, data.Error, "store unavailable")
	assert.Empty(t, c.PublicKey())

	b.Disconnect(c)
	store.AssertCalled(t, "Remove", mock.Anything, c.ID)
}

func TestBroker_Config(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 2)
	a, m := clients[0], clients[1]
	ta, tm := transports[0], transports[1]

	request(t, b, m, "get_config", map[string]interface{}{})
	cfg := decode[ConfigData](t, only(t, tm.Take(t), TypeGetConfig))
	assert.Equal(t, "null", string(cfg.Config))
	assert.Equal(t, uint64(0), cfg.Version)

	for _, data := range []map[string]interface{}{{}, {"config": nil}} {
		request(t, b, a, "publish_config", data)
		requireError(t, ta, "MissingField")
	}

	request(t, b, m, "publish_config", map[string]interface{}{"config": map[string]interface{}{"x": 1}})
	requireError(t, tm, "PermissionDenied")

	request(t, b, a, "publish_config", map[string]interface{}{"config": map[string]interface{}{"x": 1}})
	envs := ta.Take(t)
	require.Len(t, envs, 2)
	event := decode[BroadcastData](t, envs[0])
	assert.Equal(t, EventConfigPublished, event.Event)
	assert.JSONEq(t, `{"x":1}`, string(event.Config))
	assert.Equal(t, uint64(1), event.Version)
	ack := decode[PublishConfigAckData](t, envs[1])
	assert.Equal(t, uint64(1), ack.Version)

	only(t, tm.Take(t), TypeBroadcast)

	request(t, b, m, "get_config", map[string]interface{}{})
	cfg = decode[ConfigData](t, only(t, tm.Take(t), TypeGetConfig))
	assert.JSONEq(t, `{"x":1}`, string(cfg.Config))
	assert.Equal(t, uint64(1), cfg.Version)
}

func TestBroker_GetRoomInfo(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 2)

	request(t, b, clients[1], "get_room_info", map[string]interface{}{})
	info := decode[RoomInfo](t, only(t, transports[1].Take(t), TypeRoomInfo))
	assert.Equal(t, "ROOM1", info.ID)
	assert.Equal(t, 2, info.MemberCount)
	require.Len(t, info.Members, 2)
	assert.Equal(t, clients[0].ID, info.Members[0].ID)
	assert.Equal(t, PermissionAdmin, info.Members[0].Permission)
}

func TestBroker_Heartbeat(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		// ticks before the unanswered client is terminated
		ticks int
	}{
		{"terminates after one missed ping", 1, 2},
		{"tolerates misses below threshold", 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := NewMetrics()
			b, _ := newTestBroker(t, WithHeartbeat(time.Second, tt.threshold), WithMetrics(metrics))
			clients, transports := setupRoom(t, b, 2)
			silent, responsive := clients[0], clients[1]

			for i := 1; i < tt.ticks; i++ {
				b.Heartbeat()
				b.Pong(responsive)
				assert.True(t, silent.IsConnected(), "tick %d", i)
			}
			assert.Equal(t, tt.ticks-1, transports[0].Pings())

			b.Heartbeat()
			assert.False(t, silent.IsConnected())
			assert.True(t, transports[0].Closed())
			assert.True(t, responsive.IsConnected())
			assert.Equal(t, 1, b.ClientCount())
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HeartbeatTerminations))

			event := decode[BroadcastData](t, only(t, transports[1].Take(t), TypeBroadcast))
			assert.Equal(t, EventMemberLeft, event.Event)
			assert.Equal(t, responsive.ID, event.NewAdminID)
		})
	}
}

func TestBroker_HeartbeatCountsFromLastPong(t *testing.T) {
	b, _ := newTestBroker(t, WithHeartbeat(time.Second, 2))
	c, tr := connect(t, b)

	b.Heartbeat()
	b.Heartbeat()
	b.Pong(c)
	b.Heartbeat()
	b.Heartbeat()
	assert.True(t, c.IsConnected())
	assert.Equal(t, 4, tr.Pings())
	assert.Equal(t, int32(2), c.missedPings.Load())

	b.Heartbeat()
	assert.False(t, c.IsConnected())
	assert.Equal(t, 4, tr.Pings())
}

func TestBroker_DisconnectIsIdempotent(t *testing.T) {
	b, _ := newTestBroker(t)
	clients, transports := setupRoom(t, b, 2)

	b.Disconnect(clients[0])
	b.Disconnect(clients[0])

	only(t, transports[1].Take(t), TypeBroadcast)
	assert.Equal(t, 1, b.ClientCount())
	assert.Empty(t, clients[0].RoomID())

	b.HandleFrame(context.Background(), clients[0], frame(t, "get_room_info", map[string]interface{}{}))
	assert.Empty(t, transports[0].Take(t))

	b.Disconnect(clients[1])
	assert.Equal(t, 0, b.Registry().RoomCount())
}

func TestBroker_SweepClearsMembership(t *testing.T) {
	b, clock := newTestBroker(t, WithRoomExpiration(time.Hour, time.Minute))
	clients, transports := setupRoom(t, b, 2)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, []string{"ROOM1"}, b.Registry().Sweep())

	for i, c := range clients {
		assert.Empty(t, transports[i].Take(t), "members are not notified")
		request(t, b, c, "send_message", map[string]interface{}{"content": "x"})
		requireError(t, transports[i], "NotInRoom")
	}
}

func TestBroker_RunDrivesHeartbeat(t *testing.T) {
	b, err := NewBroker(WithLogger(&NullLogger{}), WithHeartbeat(10*time.Millisecond, 1))
	require.NoError(t, err)
	defer b.Shutdown()

	tr := &MockTransport{}
	c := b.Connect(tr, ConnectionInfo{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestBroker_Stats(t *testing.T) {
	b, clock := newTestBroker(t)
	setupRoom(t, b, 3)
	connect(t, b)
	clock.Advance(90 * time.Second)

	stats := b.Stats()
	assert.Equal(t, 4, stats.ConnectedClients)
	assert.Equal(t, 1, stats.TotalRooms)
	assert.Equal(t, 3, stats.TotalMembers)
	assert.Equal(t, 90.0, stats.Uptime)
	require.Len(t, b.Rooms(), 1)

	info, err := b.RoomInfo("ROOM1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.MemberCount)
}

func TestBroker_Metrics(t *testing.T) {
	metrics := NewMetrics()
	b, _ := newTestBroker(t, WithMetrics(metrics))
	clients, _ := setupRoom(t, b, 2)

	request(t, b, clients[1], "kick_member", map[string]interface{}{"targetClientId": clients[0].ID})
	request(t, b, clients[1], "dance", map[string]interface{}{})

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ConnectedClients))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Rooms))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.InboundMessages.WithLabelValues("join_room")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InboundMessages.WithLabelValues("unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestErrors.WithLabelValues("PermissionDenied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestErrors.WithLabelValues("UnknownMessageType")))
}

func TestBroker_Shutdown(t *testing.T) {
	b, _ := newTestBroker(t)
	_, transports := setupRoom(t, b, 2)

	b.Shutdown()
	b.Shutdown()

	for _, tr := range transports {
		assert.True(t, tr.Closed())
	}
	assert.Equal(t, 0, b.ClientCount())
	assert.Equal(t, 0, b.Registry().RoomCount())

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
