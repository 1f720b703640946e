package db

import (
	"fmt"
	"time"
)

// ConfigEvent is a configuration acknowledgement reported by the sensor.
type ConfigEvent struct {
	ID         int64     `json:"id"`
	Field      string    `json:"field"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordConfigEvent stores a config acknowledgement observed now.
func (db *DB) RecordConfigEvent(field, value string) error {
	return db.RecordConfigEventAt(time.Now(), field, value)
}

// RecordConfigEventAt stores a config acknowledgement observed at t.
func (db *DB) RecordConfigEventAt(t time.Time, field, value string) error {
	_, err := db.Exec(
		`INSERT INTO config_events (field, value, recorded_at) VALUES (?, ?, ?)`,
		field, value, unixNanos(t),
	)
	if err != nil {
		return fmt.Errorf("failed to record config event: %w", err)
	}
	return nil
}

// ConfigEvents returns up to limit of the most recent config events, newest
// first.
func (db *DB) ConfigEvents(limit int) ([]ConfigEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT event_id, field, value, recorded_at FROM config_events
		 ORDER BY recorded_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query config events: %w", err)
	}
	defer rows.Close()

	events := []ConfigEvent{}
	for rows.Next() {
		var e ConfigEvent
		var at int64
		if err := rows.Scan(&e.ID, &e.Field, &e.Value, &at); err != nil {
			return nil, fmt.Errorf("failed to scan config event: %w", err)
		}
		e.RecordedAt = fromUnixNanos(at)
		events = append(events, e)
	}
	return events, rows.Err()
}
