package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vincentbai/behaviortrace/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Database persists relayed envelopes. It is the relay's optional store.
type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id         INTEGER PRIMARY KEY,
	  session_id TEXT    NOT NULL,
	  event_type TEXT    NOT NULL,
	  url        TEXT    NOT NULL,
	  ts_ms      INTEGER NOT NULL,
	  data_json  TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_type    ON events(event_type);
	CREATE INDEX IF NOT EXISTS idx_events_ts      ON events(ts_ms);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func ValidateEnvelope(env models.Envelope) error {
	if env.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !env.EventType.Valid() {
		return fmt.Errorf("invalid event type: %q", env.EventType)
	}
	if env.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	if len(env.Data) > 0 && !json.Valid(env.Data) {
		return fmt.Errorf("data is not valid JSON")
	}
	return nil
}

// InsertEnvelopes stores envelopes in one transaction; any invalid envelope
// rolls back the whole batch.
func (d *Database) InsertEnvelopes(ctx context.Context, envelopes []models.Envelope) error {
	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT INTO events(session_id, event_type, url, ts_ms, data_json) VALUES(?,?,?,?,json(?))`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, env := range envelopes {
		if err := ValidateEnvelope(env); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("invalid envelope: %w", err)
		}
		data := string(env.Data)
		if data == "" {
			data = "null"
		}
		if _, err := statement.ExecContext(ctx, env.SessionID, string(env.EventType), env.URL, env.Timestamp, data); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SessionEvents returns a session's stored envelopes in arrival order.
func (d *Database) SessionEvents(ctx context.Context, sessionID string) ([]models.Envelope, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT session_id, event_type, url, ts_ms, data_json FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	envelopes := []models.Envelope{}
	for rows.Next() {
		var (
			env       models.Envelope
			eventType string
			data      string
		)
		if err := rows.Scan(&env.SessionID, &eventType, &env.URL, &env.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		env.EventType = models.EventType(eventType)
		env.Data = json.RawMessage(data)
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return envelopes, nil
}
