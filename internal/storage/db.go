// Package storage keeps the last dashboard snapshot successfully fetched for
// each user, so a failed mutation can be rendered against known-good data.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"uangku/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned when no snapshot was saved for a user.
var ErrNoSnapshot = errors.New("storage: no snapshot")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway, and ":memory:" is
	// per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			user_id INTEGER NOT NULL,
			time_window TEXT NOT NULL,
			payload TEXT NOT NULL,
			fetched_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, time_window)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveSnapshot replaces all three windows for userID in one transaction.
func (db *DB) SaveSnapshot(ctx context.Context, userID int64, snap *models.Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range models.Windows {
		txs := snap.Window(w)
		if txs == nil {
			txs = []models.Transaction{}
		}
		payload, err := json.Marshal(txs)
		if err != nil {
			return fmt.Errorf("encode %s window: %w", w, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (user_id, time_window, payload, fetched_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, time_window) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
			userID, string(w), string(payload), snap.FetchedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("save %s window: %w", w, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the last snapshot saved for userID.
func (db *DB) LoadSnapshot(ctx context.Context, userID int64) (*models.Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT time_window, payload, fetched_at FROM snapshots WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &models.Snapshot{}
	found := 0
	for rows.Next() {
		var (
			name      string
			payload   string
			fetchedAt time.Time
		)
		if err := rows.Scan(&name, &payload, &fetchedAt); err != nil {
			return nil, err
		}
		w, err := models.ParseWindow(name)
		if err != nil {
			return nil, err
		}
		var txs []models.Transaction
		if err := json.Unmarshal([]byte(payload), &txs); err != nil {
			return nil, fmt.Errorf("decode %s window: %w", w, err)
		}
		snap.SetWindow(w, txs)
		snap.FetchedAt = fetchedAt
		found++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if found == 0 {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// DeleteSnapshots removes everything stored for userID.
func (db *DB) DeleteSnapshots(ctx context.Context, userID int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM snapshots WHERE user_id = ?", userID)
	return err
}
