package domain

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrInvalidNotificationType = errors.New("invalid notification type")
	ErrSelfNotification        = errors.New("recipient cannot be the originator")
	ErrConnectionNotFound      = errors.New("connection not found")
	ErrConnectionExists        = errors.New("connection already exists")
	ErrSelfConnection          = errors.New("cannot connect with self")
)
