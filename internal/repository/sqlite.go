package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/brewnet/backend/internal/domain"
)

// SQLiteStore implements Store on a local SQLite file. It suits single-node
// deployments and tests that want real SQL without a server.
type SQLiteStore struct {
	db *sqlx.DB
}

type notificationRow struct {
	ID             string `db:"id"`
	RecipientID    string `db:"recipient_id"`
	Type           string `db:"type"`
	OriginatorID   string `db:"originator_id"`
	OriginatorName string `db:"originator_name"`
	Read           int    `db:"read"`
	CreatedAt      int64  `db:"created_at"`
}

func (r notificationRow) toDomain() *domain.Notification {
	return &domain.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Type:        domain.NotificationType(r.Type),
		Originator:  domain.Originator{UserID: r.OriginatorID, Name: r.OriginatorName},
		Read:        r.Read != 0,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

type userRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	IsOnline    int           `db:"is_online"`
	LastSignOut sql.NullInt64 `db:"last_sign_out"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	u := &domain.User{
		ID:        r.ID,
		Name:      r.Name,
		IsOnline:  r.IsOnline != 0,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
	if r.LastSignOut.Valid {
		t := fromMillis(r.LastSignOut.Int64)
		u.LastSignOut = &t
	}
	return u
}

type connectionRow struct {
	ID        string `db:"id"`
	FromUser  string `db:"from_user"`
	ToUser    string `db:"to_user"`
	Status    string `db:"status"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r connectionRow) toDomain() *domain.Connection {
	return &domain.Connection{
		ID:        r.ID,
		FromUser:  r.FromUser,
		ToUser:    r.ToUser,
		Status:    domain.ConnectionStatus(r.Status),
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var currentVersion int
	if err := s.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	row := notificationRow{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		Type:           string(n.Type),
		OriginatorID:   n.Originator.UserID,
		OriginatorName: n.Originator.Name,
		Read:           boolToInt(n.Read),
		CreatedAt:      toMillis(n.CreatedAt),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, originator_id, originator_name, read, created_at)
		VALUES (:id, :recipient_id, :type, :originator_id, :originator_name, :read, :created_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// ListUnreadNotifications retrieves unread notifications of recipientID,
// ordered by creation time descending.
func (s *SQLiteStore) ListUnreadNotifications(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, recipient_id, type, originator_id, originator_name, read, created_at
		FROM notifications
		WHERE recipient_id = ? AND read = 0
		ORDER BY created_at DESC, id DESC`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}

	out := make([]*domain.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?", id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return expectAffected(result, domain.ErrNotificationNotFound)
}

func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0", recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0", recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, id, name string) (*domain.User, error) {
	now := toMillis(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, is_online, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			is_online = 1,
			updated_at = excluded.updated_at`,
		id, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user %s: %w", id, err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, is_online, last_sign_out, created_at, updated_at
		FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (s *SQLiteStore) SetUserOffline(ctx context.Context, id string, at time.Time) error {
	ms := toMillis(at)
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_online = 0, last_sign_out = ?, updated_at = ? WHERE id = ?", ms, ms, id,
	)
	if err != nil {
		return fmt.Errorf("signing out user %s: %w", id, err)
	}
	return expectAffected(result, domain.ErrUserNotFound)
}

func (s *SQLiteStore) ListOnlineUsers(ctx context.Context, excludeID string) ([]*domain.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, is_online, last_sign_out, created_at, updated_at
		FROM users WHERE is_online = 1 AND id <> ?
		ORDER BY id`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("querying online users: %w", err)
	}

	out := make([]*domain.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLiteStore) CreateConnection(ctx context.Context, c *domain.Connection) error {
	row := connectionRow{
		ID:        c.ID,
		FromUser:  c.FromUser,
		ToUser:    c.ToUser,
		Status:    string(c.Status),
		CreatedAt: toMillis(c.CreatedAt),
		UpdatedAt: toMillis(c.UpdatedAt),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO connections (id, from_user, to_user, status, created_at, updated_at)
		VALUES (:id, :from_user, :to_user, :status, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("creating connection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindLiveConnection(ctx context.Context, a, b string) (*domain.Connection, error) {
	var row connectionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, from_user, to_user, status, created_at, updated_at
		FROM connections
		WHERE ((from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?))
		  AND status IN ('pending', 'accepted')
		ORDER BY created_at DESC
		LIMIT 1`,
		a, b, b, a,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("finding connection: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SQLiteStore) UpdateConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE connections SET status = ?, updated_at = ? WHERE id = ?", string(status), toMillis(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating connection %s: %w", id, err)
	}
	return expectAffected(result, domain.ErrConnectionNotFound)
}

func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting connection %s: %w", id, err)
	}
	return expectAffected(result, domain.ErrConnectionNotFound)
}

func (s *SQLiteStore) ListConnections(ctx context.Context, userID string, status domain.ConnectionStatus) ([]*domain.Connection, error) {
	var rows []connectionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, from_user, to_user, status, created_at, updated_at
		FROM connections
		WHERE (from_user = ? OR to_user = ?) AND status = ?
		ORDER BY created_at DESC, id DESC`,
		userID, userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}

	out := make([]*domain.Connection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// expectAffected maps an update or delete that matched nothing to notFound.
func expectAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
