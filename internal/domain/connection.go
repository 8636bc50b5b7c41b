package domain

import (
	"context"
	"time"
)

type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// Connection is a directed request from FromUser to ToUser.
type Connection struct {
	ID        string           `json:"id" bson:"_id"`
	FromUser  string           `json:"fromUser" bson:"fromUser"`
	ToUser    string           `json:"toUser" bson:"toUser"`
	Status    ConnectionStatus `json:"status" bson:"status"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// Other returns the participant that is not userID.
func (c *Connection) Other(userID string) string {
	if c.FromUser == userID {
		return c.ToUser
	}
	return c.FromUser
}

// RelationState describes a connection from one user's point of view.
type RelationState string

const (
	RelationNone            RelationState = "none"
	RelationPendingOutgoing RelationState = "pending_outgoing"
	RelationPendingIncoming RelationState = "pending_incoming"
	RelationConnected       RelationState = "connected"
)

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, c *Connection) error
	// FindLiveConnection returns the pending or accepted connection between
	// a and b in either direction.
	FindLiveConnection(ctx context.Context, a, b string) (*Connection, error)
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus, at time.Time) error
	DeleteConnection(ctx context.Context, id string) error
	// ListConnections returns connections with the given status where userID
	// is either participant, newest first.
	ListConnections(ctx context.Context, userID string, status ConnectionStatus) ([]*Connection, error)
}
