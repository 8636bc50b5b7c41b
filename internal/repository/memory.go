package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brewnet/backend/internal/domain"
)

// MemoryStore keeps everything in process memory. It backs tests and local
// development.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	users         map[string]*domain.User
	connections   map[string]*domain.Connection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string]*domain.Notification),
		users:         make(map[string]*domain.User),
		connections:   make(map[string]*domain.Connection),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStore) ListUnreadNotifications(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.Read {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

func (s *MemoryStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, notif := range s.notifications {
		if notif.RecipientID == recipientID && !notif.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) UpsertUser(ctx context.Context, id, name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	u, ok := s.users[id]
	if !ok {
		u = &domain.User{ID: id, CreatedAt: now}
		s.users[id] = u
	}
	if name != "" {
		u.Name = name
	}
	u.IsOnline = true
	u.UpdatedAt = now

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetUserOffline(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsOnline = false
	u.LastSignOut = &at
	u.UpdatedAt = at
	return nil
}

func (s *MemoryStore) ListOnlineUsers(ctx context.Context, excludeID string) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.User
	for _, u := range s.users {
		if u.IsOnline && u.ID != excludeID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateConnection(ctx context.Context, c *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *MemoryStore) FindLiveConnection(ctx context.Context, a, b string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Connection
	for _, c := range s.connections {
		if c.Status == domain.ConnectionStatusRejected {
			continue
		}
		if (c.FromUser == a && c.ToUser == b) || (c.FromUser == b && c.ToUser == a) {
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				found = c
			}
		}
	}
	if found == nil {
		return nil, domain.ErrConnectionNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *MemoryStore) UpdateConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[id]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	c.Status = status
	c.UpdatedAt = at
	return nil
}

func (s *MemoryStore) DeleteConnection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.connections[id]; !ok {
		return domain.ErrConnectionNotFound
	}
	delete(s.connections, id)
	return nil
}

func (s *MemoryStore) ListConnections(ctx context.Context, userID string, status domain.ConnectionStatus) ([]*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Connection
	for _, c := range s.connections {
		if c.Status == status && (c.FromUser == userID || c.ToUser == userID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
