package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationService struct {
	repo    NotificationRepository
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
}

func NewNotificationService(repo NotificationRepository, emitter Emitter, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:    repo,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch records one notification for recipientID and then tries to push
// it to the recipient's live connections. The record is durable before the
// push is attempted. Push failures are logged and never returned; a failed
// write is returned and nothing is pushed.
func (s *NotificationService) Dispatch(ctx context.Context, recipientID string, typ NotificationType, originator Originator) (*Notification, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNotificationType, typ)
	}
	if recipientID == originator.UserID {
		return nil, ErrSelfNotification
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate notification id: %w", err)
	}

	n := &Notification{
		ID:          id.String(),
		RecipientID: recipientID,
		Type:        typ,
		Originator:  originator,
		Read:        false,
		// Millisecond precision is what every store keeps.
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	// 1. Persist
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	// 2. Best-effort push
	if s.emitter != nil {
		if err := s.emitter.Emit(recipientID, EventNotification, n); err != nil {
			s.logger.Warn("realtime notification not delivered",
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", recipientID),
				zap.Error(err),
			)
		}
	}

	return n, nil
}

func (s *NotificationService) ListUnread(ctx context.Context, userID string) ([]*Notification, error) {
	notifs, err := s.repo.ListUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notifs == nil {
		notifs = []*Notification{}
	}
	return notifs, nil
}

// UnreadCount is the cheap badge query; ListUnread is the full view.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.repo.MarkNotificationRead(ctx, notificationID, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}
