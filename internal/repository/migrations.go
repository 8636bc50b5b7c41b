package repository

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// postgresMigrations is the ordered list of PostgreSQL schema migrations.
// Versions are sequential starting from 1.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	is_online     BOOLEAN NOT NULL DEFAULT FALSE,
	last_sign_out TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS connections (
	id         TEXT PRIMARY KEY,
	from_user  TEXT NOT NULL,
	to_user    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	recipient_id    TEXT NOT NULL,
	type            TEXT NOT NULL,
	originator_id   TEXT NOT NULL,
	originator_name TEXT NOT NULL DEFAULT '',
	read            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_online ON users (is_online) WHERE is_online;
CREATE INDEX IF NOT EXISTS idx_connections_from ON connections (from_user, status);
CREATE INDEX IF NOT EXISTS idx_connections_to ON connections (to_user, status);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (recipient_id, created_at DESC) WHERE NOT read;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// sqliteMigrations mirrors postgresMigrations for the embedded driver.
// Timestamps are stored as Unix milliseconds so ordering is numeric.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	is_online     INTEGER NOT NULL DEFAULT 0,
	last_sign_out INTEGER,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS connections (
	id         TEXT PRIMARY KEY,
	from_user  TEXT NOT NULL,
	to_user    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	recipient_id    TEXT NOT NULL,
	type            TEXT NOT NULL,
	originator_id   TEXT NOT NULL,
	originator_name TEXT NOT NULL DEFAULT '',
	read            INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_from ON connections (from_user, status);
CREATE INDEX IF NOT EXISTS idx_connections_to ON connections (to_user, status);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, read, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
