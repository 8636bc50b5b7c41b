package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brewnet/backend/internal/domain"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and applies pending migrations
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresStore) Close(ctx context.Context) error {
	r.db.Close()
	return nil
}

func (r *PostgresStore) migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}

	var current int
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range postgresMigrations {
		if m.version <= current {
			continue
		}
		if _, err := r.db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// CreateNotification inserts a notification record
func (r *PostgresStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, type, originator_id, originator_name, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		string(n.Type),
		n.Originator.UserID,
		n.Originator.Name,
		n.Read,
		n.CreatedAt,
	)
	return err
}

// ListUnreadNotifications returns unread notifications, newest first
func (r *PostgresStore) ListUnreadNotifications(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	query := `
		SELECT id, recipient_id, type, originator_id, originator_name, read, created_at
		FROM notifications
		WHERE recipient_id = $1 AND read = FALSE
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead sets read on one notification of recipientID
func (r *PostgresStore) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// MarkAllNotificationsRead sets read on every unread notification of recipientID
// CountUnreadNotifications backs the unread badge
func (r *PostgresStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`,
		recipientID,
	).Scan(&n)
	return n, err
}

func (r *PostgresStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertUser creates or refreshes a user and marks it online
func (r *PostgresStore) UpsertUser(ctx context.Context, id, name string) (*domain.User, error) {
	query := `
		INSERT INTO users (id, name, is_online, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			is_online = TRUE,
			updated_at = NOW()
		RETURNING id, name, is_online, last_sign_out, created_at, updated_at
	`
	return scanUser(r.db.QueryRow(ctx, query, id, name))
}

// GetUserByID retrieves a user by ID
func (r *PostgresStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, name, is_online, last_sign_out, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresStore) SetUserOffline(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_online = FALSE, last_sign_out = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresStore) ListOnlineUsers(ctx context.Context, excludeID string) ([]*domain.User, error) {
	query := `
		SELECT id, name, is_online, last_sign_out, created_at, updated_at
		FROM users WHERE is_online = TRUE AND id <> $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresStore) CreateConnection(ctx context.Context, c *domain.Connection) error {
	query := `
		INSERT INTO connections (id, from_user, to_user, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.FromUser, c.ToUser, string(c.Status), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PostgresStore) FindLiveConnection(ctx context.Context, a, b string) (*domain.Connection, error) {
	query := `
		SELECT id, from_user, to_user, status, created_at, updated_at
		FROM connections
		WHERE ((from_user = $1 AND to_user = $2) OR (from_user = $2 AND to_user = $1))
		  AND status IN ('pending', 'accepted')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanConnection(r.db.QueryRow(ctx, query, a, b))
}

func (r *PostgresStore) UpdateConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE connections SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteConnection(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *PostgresStore) ListConnections(ctx context.Context, userID string, status domain.ConnectionStatus) ([]*domain.Connection, error) {
	query := `
		SELECT id, from_user, to_user, status, created_at, updated_at
		FROM connections
		WHERE (from_user = $1 OR to_user = $1) AND status = $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Helper functions for scanning rows

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var typ string
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&typ,
		&n.Originator.UserID,
		&n.Originator.Name,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.IsOnline,
		&user.LastSignOut,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var c domain.Connection
	var status string
	err := row.Scan(
		&c.ID,
		&c.FromUser,
		&c.ToUser,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	c.Status = domain.ConnectionStatus(status)
	return &c, nil
}
