package domain_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/repository"
)

type fixture struct {
	store         *repository.MemoryStore
	emitter       *recordingEmitter
	notifications *domain.NotificationService
	connections   *domain.ConnectionService
	sessions      *domain.SessionService
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	emitter := &recordingEmitter{}
	notifications := domain.NewNotificationService(store, emitter, zap.NewNop())
	f := &fixture{
		store:         store,
		emitter:       emitter,
		notifications: notifications,
		connections:   domain.NewConnectionService(store, store, notifications),
		sessions:      domain.NewSessionService(store, notifications, true, zap.NewNop()),
	}
	for _, id := range users {
		_, err := store.UpsertUser(context.Background(), id, "User "+id)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) unread(t *testing.T, userID string) []*domain.Notification {
	t.Helper()
	list, err := f.notifications.ListUnread(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func TestConnectionRequestNotifiesReceiver(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	conn, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusPending, conn.Status)

	bobs := f.unread(t, "bob")
	require.Len(t, bobs, 1)
	assert.Equal(t, domain.NotificationConnectionRequest, bobs[0].Type)
	assert.Equal(t, domain.Originator{UserID: "alice", Name: "User alice"}, bobs[0].Originator)
	assert.Empty(t, f.unread(t, "alice"))
	assert.Equal(t, 1, f.emitter.count())

	_, err = f.connections.SendRequest(ctx, "alice", "bob")
	assert.ErrorIs(t, err, domain.ErrConnectionExists)
	_, err = f.connections.SendRequest(ctx, "bob", "alice")
	assert.ErrorIs(t, err, domain.ErrConnectionExists)
	assert.Len(t, f.unread(t, "bob"), 1)
}

func TestConnectionRequestValidation(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrSelfConnection)

	_, err = f.connections.SendRequest(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Zero(t, f.emitter.count())
}

func TestAcceptNotifiesRequester(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.connections.Accept(ctx, "alice", "bob")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound, "only the receiver may accept")

	conn, err := f.connections.Accept(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusAccepted, conn.Status)

	alices := f.unread(t, "alice")
	require.Len(t, alices, 1)
	assert.Equal(t, domain.NotificationConnectionAccepted, alices[0].Type)
	assert.Equal(t, "bob", alices[0].Originator.UserID)

	state, err := f.connections.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationConnected, state)

	list, err := f.connections.Connections(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRejectIsSilent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	pending, err := f.connections.PendingRequests(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	pending, err = f.connections.PendingRequests(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)

	conn, err := f.connections.Reject(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusRejected, conn.Status)
	assert.Empty(t, f.unread(t, "alice"))

	state, err := f.connections.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationNone, state)
}

func TestRemoveNotifiesOtherParticipant(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	assert.ErrorIs(t, f.connections.Remove(ctx, "alice", "bob"), domain.ErrConnectionNotFound)

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, f.connections.Remove(ctx, "alice", "bob"), domain.ErrConnectionNotFound)

	_, err = f.connections.Accept(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NoError(t, f.connections.Remove(ctx, "bob", "alice"))

	alices := f.unread(t, "alice")
	require.Len(t, alices, 2)
	assert.Equal(t, domain.NotificationConnectionRemoved, alices[0].Type)
	assert.Equal(t, "bob", alices[0].Originator.UserID)
}

func TestStatusFromBothSides(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	state, err := f.connections.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationPendingOutgoing, state)

	state, err = f.connections.Status(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationPendingIncoming, state)
}

// flakyNotifications fails every notification write while down is set.
type flakyNotifications struct {
	domain.NotificationRepository
	down atomic.Bool
}

func (f *flakyNotifications) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if f.down.Load() {
		return errors.New("store down")
	}
	return f.NotificationRepository.CreateNotification(ctx, n)
}

func newFlakyFixture(t *testing.T, users ...string) (*fixture, *flakyNotifications) {
	t.Helper()
	f := newFixture(t, users...)
	flaky := &flakyNotifications{NotificationRepository: f.store}
	f.notifications = domain.NewNotificationService(flaky, f.emitter, zap.NewNop())
	f.connections = domain.NewConnectionService(f.store, f.store, f.notifications)
	return f, flaky
}

func TestSendRequestRollsBackWhenNotificationFails(t *testing.T) {
	f, flaky := newFlakyFixture(t, "alice", "bob")
	ctx := context.Background()

	flaky.down.Store(true)
	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.ErrorContains(t, err, "store down")

	state, err := f.connections.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationNone, state)

	flaky.down.Store(false)
	_, err = f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Len(t, f.unread(t, "bob"), 1)
}

func TestAcceptRollsBackWhenNotificationFails(t *testing.T) {
	f, flaky := newFlakyFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	flaky.down.Store(true)
	_, err = f.connections.Accept(ctx, "bob", "alice")
	require.ErrorContains(t, err, "store down")

	state, err := f.connections.Status(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationPendingIncoming, state)

	flaky.down.Store(false)
	conn, err := f.connections.Accept(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusAccepted, conn.Status)
	require.Len(t, f.unread(t, "alice"), 1)
	assert.Equal(t, domain.NotificationConnectionAccepted, f.unread(t, "alice")[0].Type)
}

func TestRemoveRollsBackWhenNotificationFails(t *testing.T) {
	f, flaky := newFlakyFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.connections.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.connections.Accept(ctx, "bob", "alice")
	require.NoError(t, err)

	flaky.down.Store(true)
	err = f.connections.Remove(ctx, "alice", "bob")
	require.ErrorContains(t, err, "store down")

	state, err := f.connections.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationConnected, state)

	flaky.down.Store(false)
	require.NoError(t, f.connections.Remove(ctx, "alice", "bob"))
	var removed int
	for _, n := range f.unread(t, "bob") {
		if n.Type == domain.NotificationConnectionRemoved {
			removed++
		}
	}
	assert.Equal(t, 1, removed)
}
