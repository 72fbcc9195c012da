// Package db handles SQLite initialisation and schema migrations.
//
// modernc.org/sqlite is a pure-Go port — no CGo, no C compiler needed at
// build time, cross-compiles cleanly. The driver name it registers under
// database/sql is "sqlite", not "sqlite3".
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats:
//   - Production file: "ticketing.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:            "file:testXYZ?mode=memory&cache=shared&_foreign_keys=on"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database ready", "dsn", dsn)
	return db, nil
}

// migrate runs each DDL statement in schema individually — the modernc and
// go-sqlite3 drivers both execute only the first statement of a
// multi-statement Exec, so we split on ";" and loop — then applies any
// incremental migrations that can't be expressed as CREATE TABLE IF NOT
// EXISTS.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return applyIncrementalMigrations(db)
}

// applyIncrementalMigrations handles schema changes on existing databases.
// Each migration checks whether the change already applied before acting,
// so it's safe to run on every startup.
func applyIncrementalMigrations(db *sql.DB) error {
	hasCol, err := columnExists(db, "events", "registration_open")
	if err != nil {
		return fmt.Errorf("check registration_open column: %w", err)
	}
	if !hasCol {
		if _, err := db.Exec(`ALTER TABLE events ADD COLUMN registration_open BOOLEAN NOT NULL DEFAULT 1`); err != nil {
			return fmt.Errorf("add registration_open column: %w", err)
		}
		slog.Info("migration: added events.registration_open")
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// schema contains every CREATE TABLE statement for the application.
//
//	users                — accounts; role distinguishes user/organizer/admin.
//	events               — fitness activities with a price in minor units
//	                        (0 = free) and the registration_open gate.
//	featured_slots       — the two named homepage-spotlight slots.
//	tickets              — one row per registration; qr_token is the signed
//	                        QR codec payload; is_validated flips exactly once
//	                        via compare-and-set in the validation engine.
//	validation_history   — append-only scan log per ticket.
//	payment_orders       — created before gateway checkout; receipt is the
//	                        idempotency key echoed back by every payment.
//	payments             — one row per gateway payment attempt;
//	                        gateway_payment_id is UNIQUE (issuance idempotency).
//	payment_audit_log    — append-only trail of everything that happened to
//	                        an order.
//	user_points          — running balance per user.
//	points_transactions  — append-only ledger entries.
//	connections          — directed follow/connect edges.
//	event_join_requests  — approval-required registration requests.
//	received_qr_tokens   — audit table for raw scanned tokens; events.Delete
//	                        clears an event's rows, and no code path here
//	                        inserts into it.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    phone         TEXT UNIQUE,
    email         TEXT,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user','organizer','admin')),
    is_private    BOOLEAN NOT NULL DEFAULT 0,
    bio           TEXT NOT NULL DEFAULT '',
    picture_url   TEXT NOT NULL DEFAULT '',
    strava_link   TEXT NOT NULL DEFAULT '',
    instagram_id  TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    city                TEXT NOT NULL DEFAULT '',
    venue               TEXT NOT NULL DEFAULT '',
    start_at            DATETIME NOT NULL,
    end_at              DATETIME NOT NULL,
    price_minor_units   INTEGER NOT NULL DEFAULT 0,
    is_active           BOOLEAN NOT NULL DEFAULT 1,
    requires_approval   BOOLEAN NOT NULL DEFAULT 0,
    registration_open   BOOLEAN NOT NULL DEFAULT 1,
    banner_url          TEXT NOT NULL DEFAULT '',
    coordinate_lat      TEXT NOT NULL DEFAULT '',
    coordinate_long     TEXT NOT NULL DEFAULT '',
    address_url         TEXT NOT NULL DEFAULT '',
    organizer_name      TEXT NOT NULL DEFAULT '',
    organizer_logo_url  TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS featured_slots (
    slot       TEXT PRIMARY KEY CHECK(slot IN ('featured_1','featured_2')),
    event_id   TEXT REFERENCES events(id) ON DELETE SET NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tickets (
    id           TEXT PRIMARY KEY,
    event_id     TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    qr_token     TEXT NOT NULL,
    issued_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    is_validated BOOLEAN NOT NULL DEFAULT 0,
    validated_at DATETIME,
    kind         TEXT NOT NULL CHECK(kind IN ('free','paid')),
    amount       INTEGER NOT NULL DEFAULT 0,
    order_id     TEXT,
    payment_id   TEXT,
    UNIQUE (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS validation_history (
    id             TEXT PRIMARY KEY,
    ticket_id      TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
    ts             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    device         TEXT NOT NULL DEFAULT '',
    operator       TEXT NOT NULL DEFAULT '',
    points_awarded BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS payment_orders (
    id                 TEXT PRIMARY KEY,
    gateway_order_id   TEXT NOT NULL UNIQUE,
    user_id            TEXT NOT NULL REFERENCES users(id),
    event_id           TEXT NOT NULL REFERENCES events(id),
    amount_minor_units INTEGER NOT NULL,
    currency           TEXT NOT NULL DEFAULT 'INR',
    status             TEXT NOT NULL DEFAULT 'pending'
                           CHECK(status IN ('pending','processing','success','failed','cancelled','refunded')),
    receipt            TEXT NOT NULL UNIQUE,
    expires_at         DATETIME NOT NULL,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS payments (
    id                 TEXT PRIMARY KEY,
    order_id           TEXT NOT NULL REFERENCES payment_orders(id),
    gateway_payment_id TEXT NOT NULL UNIQUE,
    gateway_signature  TEXT NOT NULL DEFAULT '',
    amount_paid        INTEGER NOT NULL,
    status             TEXT NOT NULL,
    method             TEXT NOT NULL DEFAULT '',
    error_code         TEXT NOT NULL DEFAULT '',
    error_description  TEXT NOT NULL DEFAULT '',
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS payment_audit_log (
    id         TEXT PRIMARY KEY,
    order_id   TEXT NOT NULL REFERENCES payment_orders(id),
    payment_id TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL,
    old_status TEXT NOT NULL DEFAULT '',
    new_status TEXT NOT NULL DEFAULT '',
    details    TEXT NOT NULL DEFAULT '',
    actor      TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_points (
    user_id      TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    total_points INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS points_transactions (
    id      TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type    TEXT NOT NULL CHECK(type IN ('earned','deducted')),
    points  INTEGER NOT NULL,
    reason  TEXT NOT NULL,
    actor   TEXT NOT NULL DEFAULT '',
    ts      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS connections (
    id           TEXT PRIMARY KEY,
    requester_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    target_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    status       TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','accepted','blocked')),
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (requester_id, target_id)
);

CREATE TABLE IF NOT EXISTS event_join_requests (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    event_id     TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    status       TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','accepted','rejected')),
    requested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    reviewed_at  DATETIME,
    reviewed_by  TEXT NOT NULL DEFAULT '',
    UNIQUE (user_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_join_requests_user ON event_join_requests(user_id);
CREATE INDEX IF NOT EXISTS idx_join_requests_event ON event_join_requests(event_id);

CREATE TABLE IF NOT EXISTS received_qr_tokens (
    id          TEXT PRIMARY KEY,
    token       TEXT NOT NULL,
    event_id    TEXT NOT NULL,
    received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    source      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);
CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id);
CREATE INDEX IF NOT EXISTS idx_payment_orders_user ON payment_orders(user_id);
CREATE INDEX IF NOT EXISTS idx_connections_requester ON connections(requester_id);
CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target_id);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_events_active_city ON events(is_active, city);
CREATE INDEX IF NOT EXISTS idx_events_start_end ON events(start_at, end_at);
CREATE INDEX IF NOT EXISTS idx_tickets_qr_token ON tickets(qr_token);
CREATE INDEX IF NOT EXISTS idx_tickets_validated_event ON tickets(is_validated, event_id);
CREATE INDEX IF NOT EXISTS idx_received_qr_tokens_event ON received_qr_tokens(event_id, received_at);
`
