package domain

import (
	"context"
	"time"
)

// NotificationType is a closed enumeration. Adding a value requires handling
// it in every consumer that switches on it.
type NotificationType string

const (
	NotificationConnectionRequest  NotificationType = "connection_request"
	NotificationConnectionAccepted NotificationType = "connection_accepted"
	NotificationConnectionRemoved  NotificationType = "connection_removed"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationConnectionRequest, NotificationConnectionAccepted, NotificationConnectionRemoved:
		return true
	}
	return false
}

// Originator is a snapshot of the user that caused a notification, taken when
// the notification is created. It is not refreshed if the profile changes.
type Originator struct {
	UserID string `json:"userId" bson:"userId"`
	Name   string `json:"name" bson:"name"`
}

// Notification is immutable once stored, except for Read which only moves
// from false to true.
type Notification struct {
	ID          string           `json:"id" bson:"_id"`
	RecipientID string           `json:"recipientId" bson:"recipientId"`
	Type        NotificationType `json:"type" bson:"type"`
	Originator  Originator       `json:"originator" bson:"originator"`
	Read        bool             `json:"read" bson:"read"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
}

// NotificationRepository is the durable notification log.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	// ListUnreadNotifications returns unread notifications for recipientID,
	// newest first.
	ListUnreadNotifications(ctx context.Context, recipientID string) ([]*Notification, error)
	// MarkNotificationRead sets read=true. It succeeds for an already read
	// notification and returns ErrNotificationNotFound when no notification
	// with that id belongs to recipientID.
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error)
}

// Emitter delivers a realtime event to every connection bound to a user.
// Delivery is best-effort: an absent user is not an error.
type Emitter interface {
	Emit(userID, event string, payload any) error
}

// EventNotification is the realtime event name carrying a Notification.
const EventNotification = "notification"
