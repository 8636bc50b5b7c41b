package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(zap.NewNop(), Options{AllowedOrigins: []string{"*"}, SendBuffer: 8})
}

func openTestConn(m *Manager, identity string) *Conn {
	c := newConn(nil, identity, 8)
	m.OnConnectionOpened(c)
	return c
}

func receive(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func assertNothingQueued(t *testing.T, c *Conn) {
	t.Helper()
	assert.Len(t, c.send, 0)
}

func TestEmitBeforeInitialize(t *testing.T) {
	m := newTestManager(t)
	c := openTestConn(m, "alice")

	assert.ErrorIs(t, m.Emit("alice", "notification", map[string]string{"id": "1"}), ErrChannelNotReady)
	assert.ErrorIs(t, m.Join(c, "alice"), ErrChannelNotReady)
	assert.False(t, m.Ready())
}

func TestInitializeIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Initialize(ctx)
	m.Initialize(ctx)
	assert.True(t, m.Ready())
}

func TestEmitFansOutToEveryJoinedConnection(t *testing.T) {
	m := newTestManager(t)
	m.Initialize(context.Background())

	laptop := openTestConn(m, "alice")
	phone := openTestConn(m, "alice")
	other := openTestConn(m, "bob")

	require.NoError(t, m.Join(laptop, "alice"))
	require.NoError(t, m.Join(phone, "alice"))
	require.NoError(t, m.Join(phone, "alice"))
	require.NoError(t, m.Join(other, "bob"))
	assert.Equal(t, 2, m.Connections("alice"))

	require.NoError(t, m.Emit("alice", "notification", map[string]string{"id": "n1"}))

	for _, c := range []*Conn{laptop, phone} {
		ev := receive(t, c)
		assert.Equal(t, "notification", ev.Type)
		assert.JSONEq(t, `{"id":"n1"}`, string(ev.Payload))
	}
	assertNothingQueued(t, phone)
	assertNothingQueued(t, other)
}

func TestEmitToEmptyRoomIsSilent(t *testing.T) {
	m := newTestManager(t)
	m.Initialize(context.Background())

	assert.NoError(t, m.Emit("nobody", "notification", map[string]string{"id": "n1"}))
}

func TestCloseDropsMembership(t *testing.T) {
	m := newTestManager(t)
	m.Initialize(context.Background())

	first := openTestConn(m, "alice")
	second := openTestConn(m, "alice")
	require.NoError(t, m.Join(first, "alice"))
	require.NoError(t, m.Join(second, "alice"))

	m.closed(first)
	m.closed(first)
	assert.Equal(t, 1, m.Connections("alice"))
	assert.Error(t, m.Join(first, "alice"))

	m.closed(second)
	assert.Equal(t, 0, m.Connections("alice"))
	assert.NoError(t, m.Emit("alice", "notification", map[string]string{"id": "n1"}))
}

func TestJoinEventEnforcesIdentity(t *testing.T) {
	m := newTestManager(t)
	m.Initialize(context.Background())
	c := openTestConn(m, "alice")

	m.handle(c, Event{Type: EventJoin, Payload: json.RawMessage(`{"userId":"bob"}`)})
	assert.Equal(t, 0, m.Connections("bob"))
	assert.Equal(t, EventError, receive(t, c).Type)

	m.handle(c, Event{Type: EventJoin, Payload: json.RawMessage(`{}`)})
	assert.Equal(t, EventError, receive(t, c).Type)

	m.handle(c, Event{Type: EventJoin, Payload: json.RawMessage(`{"userId":"alice"}`)})
	assert.Equal(t, 1, m.Connections("alice"))

	m.handle(c, Event{Type: EventPing})
	assert.Equal(t, EventPong, receive(t, c).Type)
}

func TestShutdownClosesConnections(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.Initialize(ctx)

	c := openTestConn(m, "alice")
	require.NoError(t, m.Join(c, "alice"))

	cancel()
	require.Eventually(t, func() bool { return m.Connections("alice") == 0 }, time.Second, 10*time.Millisecond)
}

func TestOriginAllowed(t *testing.T) {
	allow := []string{"https://brewnet.in", "https://www.brewnet.in"}

	assert.True(t, OriginAllowed(allow, ""))
	assert.True(t, OriginAllowed(allow, "https://brewnet.in"))
	assert.True(t, OriginAllowed(allow, "HTTPS://WWW.BREWNET.IN"))
	assert.False(t, OriginAllowed(allow, "https://evil.example"))
	assert.True(t, OriginAllowed([]string{"*"}, "https://anything.example"))
	assert.False(t, OriginAllowed(nil, "https://brewnet.in"))
}
