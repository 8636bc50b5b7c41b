package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/repository"
)

type emitted struct {
	userID  string
	event   string
	payload any
}

// recordingEmitter captures pushes. When store is set it checks that the
// notification is already readable at push time.
type recordingEmitter struct {
	mu      sync.Mutex
	events  []emitted
	err     error
	store   domain.NotificationRepository
	durable []bool
}

func (e *recordingEmitter) Emit(userID, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, emitted{userID: userID, event: event, payload: payload})
	if e.store != nil {
		n := payload.(*domain.Notification)
		unread, _ := e.store.ListUnreadNotifications(context.Background(), userID)
		found := false
		for _, u := range unread {
			if u.ID == n.ID {
				found = true
			}
		}
		e.durable = append(e.durable, found)
	}
	return e.err
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type failingNotifications struct {
	domain.NotificationRepository
}

func (failingNotifications) CreateNotification(context.Context, *domain.Notification) error {
	return errors.New("disk full")
}

var alice = domain.Originator{UserID: "alice", Name: "Alice"}

func TestDispatchPersistsBeforePush(t *testing.T) {
	store := repository.NewMemoryStore()
	emitter := &recordingEmitter{store: store}
	svc := domain.NewNotificationService(store, emitter, zap.NewNop())

	n, err := svc.Dispatch(context.Background(), "bob", domain.NotificationConnectionRequest, alice)
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "bob", n.RecipientID)
	assert.Equal(t, alice, n.Originator)
	assert.False(t, n.Read)
	assert.Equal(t, n.CreatedAt, n.CreatedAt.Truncate(time.Millisecond))

	require.Equal(t, 1, emitter.count())
	assert.Equal(t, "bob", emitter.events[0].userID)
	assert.Equal(t, domain.EventNotification, emitter.events[0].event)
	assert.Equal(t, []bool{true}, emitter.durable)
}

func TestDispatchSwallowsPushFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	emitter := &recordingEmitter{err: errors.New("channel not ready")}
	svc := domain.NewNotificationService(store, emitter, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "bob", domain.NotificationConnectionAccepted, alice)
	require.NoError(t, err)

	unread, err := svc.ListUnread(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestDispatchWithoutEmitter(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := domain.NewNotificationService(store, nil, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "bob", domain.NotificationConnectionRemoved, alice)
	require.NoError(t, err)
}

func TestDispatchPersistFailureSkipsPush(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := domain.NewNotificationService(failingNotifications{}, emitter, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "bob", domain.NotificationConnectionRequest, alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, emitter.count())
}

func TestDispatchRejectsBadInput(t *testing.T) {
	store := repository.NewMemoryStore()
	emitter := &recordingEmitter{}
	svc := domain.NewNotificationService(store, emitter, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Dispatch(ctx, "alice", domain.NotificationConnectionRequest, alice)
	assert.ErrorIs(t, err, domain.ErrSelfNotification)

	_, err = svc.Dispatch(ctx, "bob", domain.NotificationType("poke"), alice)
	assert.ErrorIs(t, err, domain.ErrInvalidNotificationType)

	assert.Zero(t, emitter.count())
	unread, err := svc.ListUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestListUnreadNewestFirst(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := domain.NewNotificationService(store, nil, zap.NewNop())
	ctx := context.Background()

	unread, err := svc.ListUnread(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, unread)
	assert.Empty(t, unread)

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := svc.Dispatch(ctx, "bob", domain.NotificationConnectionRequest, alice)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	unread, err = svc.ListUnread(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.Equal(t, ids[2], unread[0].ID)
	assert.Equal(t, ids[0], unread[2].ID)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := domain.NewNotificationService(store, nil, zap.NewNop())
	ctx := context.Background()

	n, err := svc.Dispatch(ctx, "bob", domain.NotificationConnectionRequest, alice)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, "carol", n.ID), domain.ErrNotificationNotFound)
	require.NoError(t, svc.MarkRead(ctx, "bob", n.ID))
	require.NoError(t, svc.MarkRead(ctx, "bob", n.ID))

	_, err = svc.Dispatch(ctx, "bob", domain.NotificationConnectionAccepted, alice)
	require.NoError(t, err)
	updated, err := svc.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}
