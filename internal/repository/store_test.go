package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/config"
	"github.com/brewnet/backend/internal/domain"
)

func storeDrivers(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "brewnet.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range storeDrivers(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func notification(id, recipient string, at time.Time) *domain.Notification {
	return &domain.Notification{
		ID:          id,
		RecipientID: recipient,
		Type:        domain.NotificationConnectionRequest,
		Originator:  domain.Originator{UserID: "origin", Name: "Origin"},
		CreatedAt:   at.UTC().Truncate(time.Millisecond),
	}
}

func TestNotificationsRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.CreateNotification(ctx, notification("a", "alice", base)))
		require.NoError(t, s.CreateNotification(ctx, notification("c", "alice", base.Add(2*time.Second))))
		require.NoError(t, s.CreateNotification(ctx, notification("b", "alice", base.Add(2*time.Second))))
		require.NoError(t, s.CreateNotification(ctx, notification("z", "bob", base)))

		got, err := s.ListUnreadNotifications(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
		assert.Equal(t, "a", got[2].ID)

		first := got[2]
		assert.Equal(t, domain.NotificationConnectionRequest, first.Type)
		assert.Equal(t, "origin", first.Originator.UserID)
		assert.Equal(t, "Origin", first.Originator.Name)
		assert.False(t, first.Read)
		assert.True(t, base.Equal(first.CreatedAt))
	})
}

func TestMarkNotificationRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, s.CreateNotification(ctx, notification("n1", "alice", now)))

		assert.ErrorIs(t, s.MarkNotificationRead(ctx, "n1", "bob"), domain.ErrNotificationNotFound)
		assert.ErrorIs(t, s.MarkNotificationRead(ctx, "missing", "alice"), domain.ErrNotificationNotFound)

		require.NoError(t, s.MarkNotificationRead(ctx, "n1", "alice"))
		require.NoError(t, s.MarkNotificationRead(ctx, "n1", "alice"))

		got, err := s.ListUnreadNotifications(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMarkAllNotificationsRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, s.CreateNotification(ctx, notification("n1", "alice", now)))
		require.NoError(t, s.CreateNotification(ctx, notification("n2", "alice", now)))
		require.NoError(t, s.CreateNotification(ctx, notification("n3", "bob", now)))

		count, err := s.CountUnreadNotifications(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		updated, err := s.MarkAllNotificationsRead(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)

		count, err = s.CountUnreadNotifications(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, count)

		updated, err = s.MarkAllNotificationsRead(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, updated)

		left, err := s.ListUnreadNotifications(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})
}

func TestUserPresence(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetUser(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		assert.ErrorIs(t, s.SetUserOffline(ctx, "alice", time.Now()), domain.ErrUserNotFound)

		u, err := s.UpsertUser(ctx, "alice", "Alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.ID)
		assert.Equal(t, "Alice", u.Name)
		assert.True(t, u.IsOnline)

		u, err = s.UpsertUser(ctx, "alice", "")
		require.NoError(t, err)
		assert.Equal(t, "Alice", u.Name)

		_, err = s.UpsertUser(ctx, "bob", "Bob")
		require.NoError(t, err)

		online, err := s.ListOnlineUsers(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, online, 1)
		assert.Equal(t, "bob", online[0].ID)

		at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
		require.NoError(t, s.SetUserOffline(ctx, "bob", at))

		bob, err := s.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, bob.IsOnline)
		require.NotNil(t, bob.LastSignOut)
		assert.True(t, at.Equal(*bob.LastSignOut))

		online, err = s.ListOnlineUsers(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, online)
	})
}

func TestConnectionLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		_, err := s.FindLiveConnection(ctx, "alice", "bob")
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

		c := &domain.Connection{
			ID:        "c1",
			FromUser:  "alice",
			ToUser:    "bob",
			Status:    domain.ConnectionStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateConnection(ctx, c))

		found, err := s.FindLiveConnection(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, "c1", found.ID)
		assert.Equal(t, domain.ConnectionStatusPending, found.Status)

		require.NoError(t, s.UpdateConnectionStatus(ctx, "c1", domain.ConnectionStatusAccepted, now.Add(time.Second)))
		accepted, err := s.ListConnections(ctx, "bob", domain.ConnectionStatusAccepted)
		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, "alice", accepted[0].Other("bob"))

		require.NoError(t, s.UpdateConnectionStatus(ctx, "c1", domain.ConnectionStatusRejected, now.Add(2*time.Second)))
		_, err = s.FindLiveConnection(ctx, "alice", "bob")
		assert.ErrorIs(t, err, domain.ErrConnectionNotFound)

		require.NoError(t, s.DeleteConnection(ctx, "c1"))
		assert.ErrorIs(t, s.DeleteConnection(ctx, "c1"), domain.ErrConnectionNotFound)
		assert.ErrorIs(t, s.UpdateConnectionStatus(ctx, "c1", domain.ConnectionStatusAccepted, now), domain.ErrConnectionNotFound)
	})
}

func TestOpenMemoryAndUnknownDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))

	_, err = Open(ctx, config.StoreConfig{Driver: "cassandra"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSQLiteMigrationsAreRerunnable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "brewnet.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateNotification(ctx, notification("n1", "alice", time.Now())))
	require.NoError(t, s.Close(ctx))

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close(ctx)

	got, err := s.ListUnreadNotifications(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestExpectAffected(t *testing.T) {
	assert.NoError(t, expectAffected(fakeResult{rows: 1}, domain.ErrUserNotFound))
	assert.ErrorIs(t, expectAffected(fakeResult{}, domain.ErrUserNotFound), domain.ErrUserNotFound)

	driverErr := errors.New("driver cannot count")
	err := expectAffected(fakeResult{err: driverErr}, domain.ErrUserNotFound)
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, domain.ErrUserNotFound)
}
