package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Schema for the overlay_targets table.
const Schema = `
CREATE TABLE IF NOT EXISTS overlay_targets (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL DEFAULT '',
	match      TEXT NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL DEFAULT 'active',
	updated_at INTEGER NOT NULL DEFAULT 0
);
`

// OpenDB opens (and creates if needed) a SQLite targets database. The
// targets table is edited by other processes while glyphwatch polls it,
// hence WAL and a busy timeout.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("config: open db: %w", err)
	}
	// PRAGMA data_version is per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("config: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: init schema: %w", err)
	}
	return db, nil
}

// LoadTargets reads all active targets from the database, ordered by id.
func LoadTargets(ctx context.Context, db *sql.DB) ([]TargetConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, match
		FROM overlay_targets
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load targets: %w", err)
	}
	defer rows.Close()

	var targets []TargetConfig
	for rows.Next() {
		var t TargetConfig
		var matchJSON string
		if err := rows.Scan(&t.ID, &t.URL, &matchJSON); err != nil {
			return nil, fmt.Errorf("config: scan target: %w", err)
		}
		if err := json.Unmarshal([]byte(matchJSON), &t.Match); err != nil {
			return nil, fmt.Errorf("config: target %q: match: %w", t.ID, err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}
