// Package csvlog is the persistence sink: one CSV row per aggregation cycle,
// one file per local calendar day, pruned after the retention window.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/karachiwx/awos/internal/metrics"
	"github.com/karachiwx/awos/internal/models"
)

const filePrefix = "weather_data_"

// openFile is swapped out in tests to simulate write failures.
var openFile = os.OpenFile

var header = []string{
	"timestamp",
	"temperature",
	"humidity",
	"pressure",
	"uv_index",
	"pm2_5",
	"pm10",
	"aqi",
	"wind_speed",
	"wind_dir_degrees",
	"wind_dir_cardinal",
	"rainfall",
}

// Writer appends snapshot rows to the current day's file, rotating at the
// local-day boundary. Write errors are reported and do not halt acquisition;
// the next cycle retries.
type Writer struct {
	mu            sync.Mutex
	dir           string
	loc           *time.Location
	retentionDays int

	file *os.File
	csvw *csv.Writer
	day  string
}

func NewWriter(dir string, retentionDays int, loc *time.Location) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}
	return &Writer{dir: dir, loc: loc, retentionDays: retentionDays}, nil
}

// Publish implements the aggregator sink contract.
func (w *Writer) Publish(snap *models.Snapshot) {
	if err := w.Append(snap); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("csv").Inc()
		log.Printf("csvlog: %v", err)
	}
}

// Append writes one row for the snapshot, rotating files when its local date
// differs from the open file's.
func (w *Writer) Append(snap *models.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	local := snap.AsOf.In(w.loc)
	day := local.Format("2006-01-02")
	if w.file == nil || day != w.day {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}

	row := make([]string, 0, len(header))
	row = append(row, local.Format(time.RFC3339))
	for _, metric := range models.AllMetrics {
		r, ok := snap.Get(metric)
		if !ok {
			// Unknown metrics are explicit empty cells, never zero.
			row = append(row, "")
			if metric == models.MetricWindDirection {
				row = append(row, "")
			}
			continue
		}
		row = append(row, formatValue(metric, r.Value))
		if metric == models.MetricWindDirection {
			row = append(row, models.Cardinal(r.Value))
		}
	}

	if err := w.csvw.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	// Flush at the row boundary so a crash never leaves a partial row.
	w.csvw.Flush()
	return w.csvw.Error()
}

func formatValue(metric models.Metric, v float64) string {
	switch metric {
	case models.MetricUVIndex:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case models.MetricAQI, models.MetricWindDirection:
		return strconv.FormatFloat(v, 'f', 0, 64)
	default:
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
}

func (w *Writer) rotateLocked(day string) error {
	if w.file != nil {
		w.csvw.Flush()
		if err := w.file.Close(); err != nil {
			log.Printf("csvlog: close %s: %v", w.day, err)
		}
		w.file = nil
	}

	path := filepath.Join(w.dir, filePrefix+day+".csv")
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := openFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w.file = f
	w.csvw = csv.NewWriter(f)
	w.day = day

	if isNew {
		if err := w.writeHeaderLocked(); err != nil {
			// Leave no half-open state behind: the next Append must rotate
			// again and write the header, not append headerless rows.
			f.Close()
			os.Remove(path)
			w.file = nil
			w.csvw = nil
			w.day = ""
			return fmt.Errorf("write header: %w", err)
		}
		log.Printf("csvlog: opened %s", path)
		w.pruneLocked(day)
	}
	return nil
}

func (w *Writer) writeHeaderLocked() error {
	if err := w.csvw.Write(header); err != nil {
		return err
	}
	w.csvw.Flush()
	return w.csvw.Error()
}

// Prune removes files older than the retention window, relative to the given
// local day.
func (w *Writer) Prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now.In(w.loc).Format("2006-01-02"))
}

func (w *Writer) pruneLocked(day string) {
	current, err := time.ParseInLocation("2006-01-02", day, w.loc)
	if err != nil {
		return
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("csvlog: prune: %v", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if len(name) <= len(filePrefix)+len(".csv") || name[:len(filePrefix)] != filePrefix {
			continue
		}
		dateStr := name[len(filePrefix) : len(name)-len(".csv")]
		fileDate, err := time.ParseInLocation("2006-01-02", dateStr, w.loc)
		if err != nil {
			continue
		}
		if int(current.Sub(fileDate).Hours()/24) > w.retentionDays {
			path := filepath.Join(w.dir, name)
			if err := os.Remove(path); err != nil {
				log.Printf("csvlog: remove %s: %v", name, err)
				continue
			}
			log.Printf("csvlog: removed old file %s", name)
		}
	}
}

// FileForDate returns the path of the daily file for a local date, whether or
// not it exists.
func (w *Writer) FileForDate(date time.Time) string {
	return filepath.Join(w.dir, filePrefix+date.In(w.loc).Format("2006-01-02")+".csv")
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	w.csvw.Flush()
	err := w.file.Close()
	w.file = nil
	return err
}
