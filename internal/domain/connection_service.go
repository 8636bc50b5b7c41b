package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionService owns connection state transitions. Every transition that
// has a notification type produces exactly one notification.
type ConnectionService struct {
	repo     ConnectionRepository
	users    UserRepository
	notifier *NotificationService
	now      func() time.Time
}

func NewConnectionService(repo ConnectionRepository, users UserRepository, notifier *NotificationService) *ConnectionService {
	return &ConnectionService{
		repo:     repo,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *ConnectionService) SendRequest(ctx context.Context, requesterID, receiverID string) (*Connection, error) {
	if requesterID == receiverID {
		return nil, ErrSelfConnection
	}

	requester, err := s.users.GetUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, receiverID); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindLiveConnection(ctx, requesterID, receiverID)
	if err != nil && !errors.Is(err, ErrConnectionNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConnectionExists
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	conn := &Connection{
		ID:        id.String(),
		FromUser:  requesterID,
		ToUser:    receiverID,
		Status:    ConnectionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	if _, err := s.notifier.Dispatch(ctx, receiverID, NotificationConnectionRequest, requester.Snapshot()); err != nil {
		return nil, s.rollback(ctx, err, func(ctx context.Context) error {
			return s.repo.DeleteConnection(ctx, conn.ID)
		})
	}
	return conn, nil
}

// Accept accepts the pending request sent by requesterID to receiverID and
// notifies the requester.
func (s *ConnectionService) Accept(ctx context.Context, receiverID, requesterID string) (*Connection, error) {
	conn, err := s.pendingRequest(ctx, receiverID, requesterID)
	if err != nil {
		return nil, err
	}

	receiver, err := s.users.GetUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	previous := conn.UpdatedAt
	now := s.now().UTC().Truncate(time.Millisecond)
	if err := s.repo.UpdateConnectionStatus(ctx, conn.ID, ConnectionStatusAccepted, now); err != nil {
		return nil, fmt.Errorf("accept connection: %w", err)
	}
	conn.Status = ConnectionStatusAccepted
	conn.UpdatedAt = now

	if _, err := s.notifier.Dispatch(ctx, requesterID, NotificationConnectionAccepted, receiver.Snapshot()); err != nil {
		return nil, s.rollback(ctx, err, func(ctx context.Context) error {
			return s.repo.UpdateConnectionStatus(ctx, conn.ID, ConnectionStatusPending, previous)
		})
	}
	return conn, nil
}

// Reject declines a pending request. There is no notification for it.
func (s *ConnectionService) Reject(ctx context.Context, receiverID, requesterID string) (*Connection, error) {
	conn, err := s.pendingRequest(ctx, receiverID, requesterID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if err := s.repo.UpdateConnectionStatus(ctx, conn.ID, ConnectionStatusRejected, now); err != nil {
		return nil, fmt.Errorf("reject connection: %w", err)
	}
	conn.Status = ConnectionStatusRejected
	conn.UpdatedAt = now
	return conn, nil
}

// Remove deletes an accepted connection and notifies the other participant.
func (s *ConnectionService) Remove(ctx context.Context, userID, otherID string) error {
	conn, err := s.repo.FindLiveConnection(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if conn.Status != ConnectionStatusAccepted {
		return ErrConnectionNotFound
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteConnection(ctx, conn.ID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	if _, err := s.notifier.Dispatch(ctx, otherID, NotificationConnectionRemoved, user.Snapshot()); err != nil {
		return s.rollback(ctx, err, func(ctx context.Context) error {
			return s.repo.CreateConnection(ctx, conn)
		})
	}
	return nil
}

func (s *ConnectionService) Connections(ctx context.Context, userID string) ([]*Connection, error) {
	return s.repo.ListConnections(ctx, userID, ConnectionStatusAccepted)
}

// PendingRequests returns requests waiting for userID's answer.
func (s *ConnectionService) PendingRequests(ctx context.Context, userID string) ([]*Connection, error) {
	conns, err := s.repo.ListConnections(ctx, userID, ConnectionStatusPending)
	if err != nil {
		return nil, err
	}
	incoming := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if c.ToUser == userID {
			incoming = append(incoming, c)
		}
	}
	return incoming, nil
}

func (s *ConnectionService) Status(ctx context.Context, userID, otherID string) (RelationState, error) {
	conn, err := s.repo.FindLiveConnection(ctx, userID, otherID)
	if errors.Is(err, ErrConnectionNotFound) {
		return RelationNone, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case conn.Status == ConnectionStatusAccepted:
		return RelationConnected, nil
	case conn.FromUser == userID:
		return RelationPendingOutgoing, nil
	default:
		return RelationPendingIncoming, nil
	}
}

// rollback undoes a committed transition whose notification could not be
// stored, so the caller can retry the whole operation. It runs even if ctx
// was cancelled.
func (s *ConnectionService) rollback(ctx context.Context, cause error, undo func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := undo(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("roll back connection: %w", err))
	}
	return cause
}

func (s *ConnectionService) pendingRequest(ctx context.Context, receiverID, requesterID string) (*Connection, error) {
	conn, err := s.repo.FindLiveConnection(ctx, receiverID, requesterID)
	if err != nil {
		return nil, err
	}
	if conn.Status != ConnectionStatusPending || conn.FromUser != requesterID || conn.ToUser != receiverID {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}
