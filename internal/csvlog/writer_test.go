package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/karachiwx/awos/internal/models"
)

func snapshotAt(at time.Time, readings map[models.Metric]models.Reading) *models.Snapshot {
	return &models.Snapshot{Seq: 1, AsOf: at, Readings: readings}
}

func reading(value float64, at time.Time) models.Reading {
	return models.Reading{Value: value, ObservedAt: at, Freshness: models.Fresh}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestAppendWritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := snapshotAt(at, map[models.Metric]models.Reading{
		models.MetricTemperature:   reading(25.5, at),
		models.MetricWindDirection: reading(225, at),
	})
	if err := w.Append(snap); err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, w.FileForDate(at))
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][len(rows[0])-1] != "rainfall" {
		t.Errorf("unexpected header %v", rows[0])
	}
	row := rows[1]
	if row[0] != at.Format(time.RFC3339) {
		t.Errorf("timestamp = %s, want %s", row[0], at.Format(time.RFC3339))
	}
	if row[1] != "25.5" {
		t.Errorf("temperature cell = %q, want 25.5", row[1])
	}
	// Wind direction writes degrees plus the cardinal label.
	if row[9] != "225" || row[10] != "SW" {
		t.Errorf("wind cells = %q/%q, want 225/SW", row[9], row[10])
	}
}

func TestUnknownMetricsAreEmptyCells(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := snapshotAt(at, map[models.Metric]models.Reading{
		models.MetricHumidity: reading(61.2, at),
	})
	if err := w.Append(snap); err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, w.FileForDate(at))
	row := rows[1]
	if row[2] != "61.2" {
		t.Errorf("humidity cell = %q, want 61.2", row[2])
	}
	for i, cell := range row[3:] {
		if cell != "" {
			t.Errorf("cell %d = %q, want empty (unknown, never zero)", i+3, cell)
		}
	}
	if row[1] != "" {
		t.Errorf("temperature cell = %q, want empty", row[1])
	}
}

func TestRotatesAtLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	dir := t.TempDir()
	w, err := NewWriter(dir, 7, loc)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	before := time.Date(2026, 8, 30, 23, 59, 58, 0, loc)
	after := time.Date(2026, 8, 31, 0, 0, 2, 0, loc)
	for _, at := range []time.Time{before, after} {
		snap := snapshotAt(at, map[models.Metric]models.Reading{
			models.MetricTemperature: reading(20.0, at),
		})
		if err := w.Append(snap); err != nil {
			t.Fatal(err)
		}
	}

	day1 := readRows(t, w.FileForDate(before))
	day2 := readRows(t, w.FileForDate(after))
	if len(day1) != 2 || len(day2) != 2 {
		t.Fatalf("rows per file = %d/%d, want header + 1 each", len(day1), len(day2))
	}
	if day1[1][0] != before.Format(time.RFC3339) {
		t.Errorf("day 1 row belongs to %s", day1[1][0])
	}
	if day2[1][0] != after.Format(time.RFC3339) {
		t.Errorf("day 2 row belongs to %s", day2[1][0])
	}
}

func TestReopenAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := snapshotAt(at, map[models.Metric]models.Reading{
		models.MetricTemperature: reading(20.0, at),
	})

	w, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(snap); err != nil {
		t.Fatal(err)
	}
	w.Close()

	// Restart mid-day: same file, no duplicate header.
	w2, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if err := w2.Append(snap); err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, w2.FileForDate(at))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[1][0] == "timestamp" || rows[2][0] == "timestamp" {
		t.Error("duplicate header after reopen")
	}
}

func TestFailedHeaderWriteLeavesNoHalfOpenFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Hand out an already-closed file so the header flush fails.
	openFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		f, err := os.OpenFile(name, flag, perm)
		if err != nil {
			return nil, err
		}
		f.Close()
		return f, nil
	}
	defer func() { openFile = os.OpenFile }()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := snapshotAt(at, map[models.Metric]models.Reading{
		models.MetricTemperature: reading(20.0, at),
	})
	if err := w.Append(snap); err == nil {
		t.Fatal("Append() succeeded on a dead file")
	}

	// Recovered storage: the next cycle rotates again and the file gets its
	// header, not headerless rows.
	openFile = os.OpenFile
	if err := w.Append(snap); err != nil {
		t.Fatalf("Append() after recovery: %v", err)
	}
	rows := readRows(t, w.FileForDate(at))
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("first row = %v, want header", rows[0])
	}
}

func TestPruneRemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 7, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	now := time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC)
	files := map[string]bool{ // name -> should survive
		"weather_data_2026-08-30.csv": true,
		"weather_data_2026-08-23.csv": true,  // exactly at retention
		"weather_data_2026-08-22.csv": false, // one past
		"weather_data_2026-08-01.csv": false,
		"unrelated.csv":               true,
		"weather_data_garbage.csv":    true,
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w.Prune(now)

	for name, want := range files {
		_, err := os.Stat(filepath.Join(dir, name))
		got := err == nil
		if got != want {
			t.Errorf("%s: exists=%v, want %v", name, got, want)
		}
	}
}
