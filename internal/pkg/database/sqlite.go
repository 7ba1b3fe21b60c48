package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var _ state.Store = (*SQLite)(nil)

// SQLite is the embedded alternative to Database for single-host installs.
type SQLite struct {
	db   *sql.DB
	path string
}

type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if err := initialiseSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, path: cfg.Path}, nil
}

func initialiseSQLite(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS device_state (
    device_id INTEGER PRIMARY KEY,
    state TEXT NOT NULL,
    brightness INTEGER,
    position INTEGER,
    last_command TEXT NOT NULL DEFAULT '',
    last_update TIMESTAMP NOT NULL,
    confidence INTEGER NOT NULL,
    inferred BOOLEAN NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS state_meta (
    id INTEGER PRIMARY KEY,
    version INTEGER NOT NULL,
    last_save TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS command_history (
    id TEXT PRIMARY KEY,
    time_stamp TIMESTAMP NOT NULL,
    event_type TEXT NOT NULL,
    hub TEXT NOT NULL,
    device_id INTEGER NOT NULL DEFAULT 0,
    command TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    device_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_command_history_device ON command_history (device_id);
CREATE INDEX IF NOT EXISTS idx_command_history_time_stamp ON command_history (time_stamp);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) (*state.Snapshot, error) {
	snapshot := &state.Snapshot{Devices: map[string]state.Entry{}}
	err := s.db.QueryRowContext(ctx, `SELECT version, last_save FROM state_meta WHERE id = 1`).Scan(&snapshot.Version, &snapshot.LastSave)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT device_id, state, brightness, position, last_command, last_update, confidence, inferred
	FROM device_state;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			e          state.Entry
			brightness sql.NullInt64
			position   sql.NullInt64
		)
		if err := rows.Scan(&id, &e.State, &brightness, &position, &e.LastCommand, &e.LastUpdate, &e.Confidence, &e.Inferred); err != nil {
			return nil, err
		}
		e.Brightness = nullableInt(brightness)
		e.Position = nullableInt(position)
		snapshot.Devices[strconv.FormatInt(id, 10)] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *SQLite) Save(ctx context.Context, snapshot *state.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_state`); err != nil {
		return err
	}
	for key, e := range snapshot.Devices {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO device_state (device_id, state, brightness, position, last_command, last_update, confidence, inferred)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, e.State, e.Brightness, e.Position, e.LastCommand, e.LastUpdate.UTC(), e.Confidence, e.Inferred); err != nil {
			return err
		}
	}
	lastSave := snapshot.LastSave
	if lastSave.IsZero() {
		lastSave = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_meta (id, version, last_save) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET version = excluded.version, last_save = excluded.last_save;
	`, state.SnapshotVersion, lastSave.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) WriteEvent(ctx context.Context, event model.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO command_history (id, time_stamp, event_type, hub, device_id, command, success, device_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID.String(), event.Timestamp.UTC(), event.Type.String(), event.Hub, event.DeviceID, event.Command, event.Success, event.DeviceCount)
	return err
}

func (s *SQLite) GetEvents(ctx context.Context, deviceID *int64, from, to *time.Time) ([]model.Event, error) {
	start, end := defaultRange(from, to)
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, time_stamp, event_type, hub, device_id, command, success, device_count
	FROM command_history
	WHERE time_stamp BETWEEN ? AND ? AND (? IS NULL OR device_id = ?)
	ORDER BY time_stamp DESC;
	`, start.UTC(), end.UTC(), deviceID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			e         model.Event
			id        string
			eventType string
		)
		if err := rows.Scan(&id, &e.Timestamp, &eventType, &e.Hub, &e.DeviceID, &e.Command, &e.Success, &e.DeviceCount); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		e.ID = parsed
		e.Type = model.EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM command_history WHERE time_stamp < ?", time.Now().AddDate(0, 0, -historyRetentionDays).UTC())
	return err
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
