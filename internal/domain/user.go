package domain

import (
	"context"
	"time"
)

// User is the slice of the identity directory this service reads and writes.
type User struct {
	ID          string     `json:"userId" bson:"_id"`
	Name        string     `json:"name" bson:"name"`
	IsOnline    bool       `json:"isOnline" bson:"isOnline"`
	LastSignOut *time.Time `json:"lastSignOut,omitempty" bson:"lastSignOut,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Snapshot returns the originator snapshot embedded in notifications.
func (u *User) Snapshot() Originator {
	return Originator{UserID: u.ID, Name: u.Name}
}

type UserRepository interface {
	// UpsertUser creates the user if needed, updates its name and marks it
	// online.
	UpsertUser(ctx context.Context, id, name string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserOffline(ctx context.Context, id string, at time.Time) error
	ListOnlineUsers(ctx context.Context, excludeID string) ([]*User, error)
}
