// Package store archives published snapshots and daily rain totals in SQLite.
// It is a secondary persistence surface beside the daily CSV files; failures
// here never halt acquisition.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/karachiwx/awos/internal/metrics"
	"github.com/karachiwx/awos/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// SnapshotRow is one archived snapshot with nullable metric columns. A NULL
// column means the metric was unknown when published.
type SnapshotRow struct {
	ID          int64
	Seq         int64
	AsOf        time.Time
	Temperature sql.NullFloat64
	Humidity    sql.NullFloat64
	Pressure    sql.NullFloat64
	UVIndex     sql.NullFloat64
	PM25        sql.NullFloat64
	PM10        sql.NullFloat64
	AQI         sql.NullFloat64
	WindSpeed   sql.NullFloat64
	WindDir     sql.NullFloat64
	Rainfall    sql.NullFloat64
	CreatedAt   time.Time
}

func nullFor(snap *models.Snapshot, m models.Metric) sql.NullFloat64 {
	if r, ok := snap.Get(m); ok {
		return sql.NullFloat64{Float64: r.Value, Valid: true}
	}
	return sql.NullFloat64{}
}

// InsertSnapshot archives one published snapshot.
func (s *Store) InsertSnapshot(snap *models.Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (seq, as_of, temperature, humidity, pressure, uv_index, pm2_5, pm10, aqi, wind_speed, wind_dir_degrees, rainfall)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(snap.Seq), snap.AsOf,
		nullFor(snap, models.MetricTemperature),
		nullFor(snap, models.MetricHumidity),
		nullFor(snap, models.MetricPressure),
		nullFor(snap, models.MetricUVIndex),
		nullFor(snap, models.MetricPM25),
		nullFor(snap, models.MetricPM10),
		nullFor(snap, models.MetricAQI),
		nullFor(snap, models.MetricWindSpeed),
		nullFor(snap, models.MetricWindDirection),
		nullFor(snap, models.MetricRainfall),
	)
	return err
}

// Publish implements the aggregator sink contract for the archive.
func (s *Store) Publish(snap *models.Snapshot) {
	if err := s.InsertSnapshot(snap); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("sqlite").Inc()
		log.Printf("store: insert snapshot: %v", err)
	}
}

// GetSnapshots returns archived snapshots observed at or after since, oldest
// first.
func (s *Store) GetSnapshots(since time.Time, limit int) ([]SnapshotRow, error) {
	rows, err := s.db.Query(`
		SELECT id, seq, as_of, temperature, humidity, pressure, uv_index, pm2_5, pm10, aqi, wind_speed, wind_dir_degrees, rainfall, created_at
		FROM snapshots
		WHERE as_of >= ?
		ORDER BY as_of ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.ID, &r.Seq, &r.AsOf, &r.Temperature, &r.Humidity, &r.Pressure, &r.UVIndex,
			&r.PM25, &r.PM10, &r.AQI, &r.WindSpeed, &r.WindDir, &r.Rainfall, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDailyRain records a finished day's rainfall total.
func (s *Store) UpsertDailyRain(total models.DailyRainTotal) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_rain_totals (date, total_mm)
		VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET total_mm = excluded.total_mm
	`, total.Date.In(s.loc).Format("2006-01-02"), total.Total)
	return err
}

// GetDailyRainTotals returns stored daily totals, newest first.
func (s *Store) GetDailyRainTotals(limit int) ([]models.DailyRainTotal, error) {
	rows, err := s.db.Query(`SELECT date, total_mm FROM daily_rain_totals ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyRainTotal
	for rows.Next() {
		var dateStr string
		var total float64
		if err := rows.Scan(&dateStr, &total); err != nil {
			return nil, err
		}
		date, err := time.ParseInLocation("2006-01-02", dateStr, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		out = append(out, models.DailyRainTotal{Date: date, Total: total})
	}
	return out, rows.Err()
}

// PruneSnapshots deletes archive rows older than the retention window.
func (s *Store) PruneSnapshots(now time.Time, retentionDays int) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	res, err := s.db.Exec(`DELETE FROM snapshots WHERE as_of < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("store: pruned %d archived snapshots", n)
	}
	return n, nil
}
