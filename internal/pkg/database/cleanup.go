package database

import (
	"context"
	"time"
)

const historyRetentionDays = 8

// Cleanup removes command history older than the retention window.
func (db *Database) Cleanup(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, "DELETE FROM command_history WHERE time_stamp < $1", time.Now().AddDate(0, 0, -historyRetentionDays)); err != nil {
		return err
	}
	return nil
}
