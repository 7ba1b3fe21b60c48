package database

import (
	"context"
	"errors"
	"strconv"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ state.Store = (*Database)(nil)

// Database stores device state snapshots and the command history in Postgres.
// The schema is owned by the migrations folder.
type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{
		pool: pool,
	}
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}

func (db *Database) Load(ctx context.Context) (*state.Snapshot, error) {
	snapshot := &state.Snapshot{Devices: map[string]state.Entry{}}
	err := db.pool.QueryRow(ctx, `SELECT version, last_save FROM state_meta WHERE id = 1`).Scan(&snapshot.Version, &snapshot.LastSave)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx, `
	SELECT device_id, state, brightness, position, last_command, last_update, confidence, inferred
	FROM device_state;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := scanEntries(rows, snapshot.Devices); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (db *Database) Save(ctx context.Context, snapshot *state.Snapshot) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM device_state`); err != nil {
		return err
	}
	for key, e := range snapshot.Devices {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO device_state (device_id, state, brightness, position, last_command, last_update, confidence, inferred)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, e.State, e.Brightness, e.Position, e.LastCommand, e.LastUpdate, e.Confidence, e.Inferred); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO state_meta (id, version, last_save) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, last_save = EXCLUDED.last_save;
	`, state.SnapshotVersion, snapshot.LastSave); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WriteEvent appends a hub event to the command history.
func (db *Database) WriteEvent(ctx context.Context, event model.Event) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO command_history (id, time_stamp, event_type, hub, device_id, command, success, device_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING;
	`, event.ID, event.Timestamp, event.Type.String(), event.Hub, event.DeviceID, event.Command, event.Success, event.DeviceCount)
	return err
}

func scanEntries(rows pgx.Rows, into map[string]state.Entry) error {
	for rows.Next() {
		var (
			id int64
			e  state.Entry
		)
		if err := rows.Scan(&id, &e.State, &e.Brightness, &e.Position, &e.LastCommand, &e.LastUpdate, &e.Confidence, &e.Inferred); err != nil {
			return err
		}
		into[strconv.FormatInt(id, 10)] = e
	}
	return rows.Err()
}
