// Package audit keeps a small rotating SQLite ledger of what the
// executor actually did and what configuration reloads the supervisor
// applied, for post-incident review. It is pure ambient bookkeeping —
// modeled on thane-ai-agent's internal/usage and internal/watchlist
// stores (database/sql over a file-backed SQLite database, migrated
// on open) — nothing in rule evaluation or action dispatch depends on
// it, and a nil *Ledger is valid everywhere it is accepted.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxRows caps each table at this many rows; inserts past the
// cap evict the oldest rows first.
const DefaultMaxRows = 10_000

// Ledger persists action-invocation and config-reload history.
type Ledger struct {
	db      *sql.DB
	maxRows int
}

// Open opens (creating if necessary) a SQLite database at path and
// runs its migration. path may be ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	l := &Ledger{db: db, maxRows: DefaultMaxRows}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS action_invocations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  TIMESTAMP NOT NULL,
			rule       TEXT NOT NULL,
			action     TEXT NOT NULL,
			status     TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_action_invocations_timestamp ON action_invocations(timestamp);

		CREATE TABLE IF NOT EXISTS config_reloads (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			generation      INTEGER NOT NULL,
			applied_at      TIMESTAMP NOT NULL,
			sources_changed INTEGER NOT NULL,
			rules_changed   INTEGER NOT NULL,
			result          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_config_reloads_applied_at ON config_reloads(applied_at);
	`)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// RecordAction appends one action-invocation row, then evicts the
// oldest rows past maxRows in the same call so the table never grows
// unbounded.
func (l *Ledger) RecordAction(ctx context.Context, rule, action, status, detail string) error {
	if l == nil {
		return nil
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO action_invocations (timestamp, rule, action, status, detail) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC(), rule, action, status, detail,
	); err != nil {
		return fmt.Errorf("audit: record action: %w", err)
	}
	return l.evict(ctx, "action_invocations")
}

// RecordConfigReload appends one config-reload history row.
func (l *Ledger) RecordConfigReload(ctx context.Context, generation int, sourcesChanged, rulesChanged int, result string) error {
	if l == nil {
		return nil
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO config_reloads (generation, applied_at, sources_changed, rules_changed, result) VALUES (?, ?, ?, ?, ?)`,
		generation, time.Now().UTC(), sourcesChanged, rulesChanged, result,
	); err != nil {
		return fmt.Errorf("audit: record config reload: %w", err)
	}
	return l.evict(ctx, "config_reloads")
}

func (l *Ledger) evict(ctx context.Context, table string) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)`, table, table,
	), l.maxRows)
	if err != nil {
		return fmt.Errorf("audit: evict %s: %w", table, err)
	}
	return nil
}

// ActionRecord is one row read back from action_invocations.
type ActionRecord struct {
	Timestamp time.Time
	Rule      string
	Action    string
	Status    string
	Detail    string
}

// RecentActions returns up to limit of the most recently recorded
// action invocations, newest first.
func (l *Ledger) RecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT timestamp, rule, action, status, detail FROM action_invocations ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.Timestamp, &r.Rule, &r.Action, &r.Status, &r.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan action record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConfigReloadRecord is one row read back from config_reloads.
type ConfigReloadRecord struct {
	Generation     int
	AppliedAt      time.Time
	SourcesChanged int
	RulesChanged   int
	Result         string
}

// RecentConfigReloads returns up to limit of the most recent reload
// attempts, newest first.
func (l *Ledger) RecentConfigReloads(ctx context.Context, limit int) ([]ConfigReloadRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT generation, applied_at, sources_changed, rules_changed, result FROM config_reloads ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: recent config reloads: %w", err)
	}
	defer rows.Close()

	var out []ConfigReloadRecord
	for rows.Next() {
		var r ConfigReloadRecord
		if err := rows.Scan(&r.Generation, &r.AppliedAt, &r.SourcesChanged, &r.RulesChanged, &r.Result); err != nil {
			return nil, fmt.Errorf("audit: scan config reload record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
