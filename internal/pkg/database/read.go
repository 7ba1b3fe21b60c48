package database

import (
	"context"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetEvents returns history for one device, or all devices when deviceID is nil.
// Without a range the last two days are returned.
func (db *Database) GetEvents(ctx context.Context, deviceID *int64, from, to *time.Time) ([]model.Event, error) {
	start, end := defaultRange(from, to)
	query := `
	SELECT id, time_stamp, event_type, hub, device_id, command, success, device_count
	FROM command_history
	WHERE time_stamp BETWEEN $1 AND $2 AND ($3::BIGINT IS NULL OR device_id = $3)
	ORDER BY time_stamp DESC;
	`
	rows, err := db.pool.Query(ctx, query, start, end, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var (
			e         model.Event
			eventType string
			id        uuid.UUID
		)
		if err := rows.Scan(&id, &e.Timestamp, &eventType, &e.Hub, &e.DeviceID, &e.Command, &e.Success, &e.DeviceCount); err != nil {
			return nil, err
		}
		e.ID = id
		e.Type = model.EventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func defaultRange(from, to *time.Time) (time.Time, time.Time) {
	if from == nil || to == nil {
		now := time.Now()
		return now.AddDate(0, 0, -2), now
	}
	return *from, *to
}
