package domain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SessionService maintains the isOnline flag that discovery reads.
type SessionService struct {
	users          UserRepository
	notifications  *NotificationService
	clearOnSignOut bool
	logger         *zap.Logger
	now            func() time.Time
}

func NewSessionService(users UserRepository, notifications *NotificationService, clearOnSignOut bool, logger *zap.Logger) *SessionService {
	return &SessionService{
		users:          users,
		notifications:  notifications,
		clearOnSignOut: clearOnSignOut,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *SessionService) SignIn(ctx context.Context, userID, name string) (*User, error) {
	return s.users.UpsertUser(ctx, userID, name)
}

// SignOut marks the user offline. With clearOnSignOut set, every notification
// of the user is also marked read.
func (s *SessionService) SignOut(ctx context.Context, userID string) error {
	if err := s.users.SetUserOffline(ctx, userID, s.now().UTC().Truncate(time.Millisecond)); err != nil {
		return err
	}

	if !s.clearOnSignOut {
		return nil
	}

	cleared, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return fmt.Errorf("clear notifications on sign-out: %w", err)
	}
	s.logger.Debug("cleared notifications on sign-out",
		zap.String("user_id", userID),
		zap.Int64("count", cleared),
	)
	return nil
}

func (s *SessionService) OnlineUsers(ctx context.Context, exceptID string) ([]*User, error) {
	users, err := s.users.ListOnlineUsers(ctx, exceptID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}
