package db

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Reading is one particulate measurement in µg/m³.
type Reading struct {
	ID         int64     `json:"id"`
	PM2p5      float64   `json:"pm2p5"`
	PM10       float64   `json:"pm10"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordReading stores a measurement taken now.
func (db *DB) RecordReading(pm2p5, pm10 float64) error {
	return db.RecordReadingAt(time.Now(), pm2p5, pm10)
}

// RecordReadingAt stores a measurement taken at t.
func (db *DB) RecordReadingAt(t time.Time, pm2p5, pm10 float64) error {
	_, err := db.Exec(
		`INSERT INTO readings (pm2p5, pm10, recorded_at) VALUES (?, ?, ?)`,
		pm2p5, pm10, unixNanos(t),
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// Readings returns up to limit of the most recent readings, newest first.
func (db *DB) Readings(limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryReadings(
		`SELECT reading_id, pm2p5, pm10, recorded_at FROM readings
		 ORDER BY recorded_at DESC, reading_id DESC LIMIT ?`, limit)
}

// ReadingsSince returns every reading recorded at or after since, oldest first.
func (db *DB) ReadingsSince(since time.Time) ([]Reading, error) {
	return db.queryReadings(
		`SELECT reading_id, pm2p5, pm10, recorded_at FROM readings
		 WHERE recorded_at >= ? ORDER BY recorded_at ASC, reading_id ASC`, unixNanos(since))
}

func (db *DB) queryReadings(query string, args ...any) ([]Reading, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var at int64
		if err := rows.Scan(&r.ID, &r.PM2p5, &r.PM10, &at); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.RecordedAt = fromUnixNanos(at)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// Stats summarises one concentration series.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ReadingSummary summarises readings over a window.
type ReadingSummary struct {
	Since time.Time `json:"since"`
	Count int       `json:"count"`
	PM2p5 Stats     `json:"pm2p5"`
	PM10  Stats     `json:"pm10"`
}

// ReadingSummary computes statistics over readings recorded at or after since.
// An empty window yields Count == 0 and zero stats.
func (db *DB) ReadingSummary(since time.Time) (*ReadingSummary, error) {
	readings, err := db.ReadingsSince(since)
	if err != nil {
		return nil, err
	}

	summary := &ReadingSummary{Since: since.UTC(), Count: len(readings)}
	if len(readings) == 0 {
		return summary, nil
	}

	pm2p5 := make([]float64, len(readings))
	pm10 := make([]float64, len(readings))
	for i, r := range readings {
		pm2p5[i] = r.PM2p5
		pm10[i] = r.PM10
	}
	summary.PM2p5 = summarise(pm2p5)
	summary.PM10 = summarise(pm10)
	return summary, nil
}

func summarise(x []float64) Stats {
	s := Stats{
		Mean: stat.Mean(x, nil),
		Min:  floats.Min(x),
		Max:  floats.Max(x),
	}
	// sample stddev is undefined for a single value
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, nil)
	}
	return s
}
