// Package sun looks up sunrise and sunset times from a precomputed offline
// table keyed by month-day. The kiosk runs without network access, so the
// table ships with the station.
package sun

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// Times is one day's sunrise and sunset, formatted HH:MM local.
type Times struct {
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`
}

// Table maps "MM-DD" to that day's times. Missing entries fall back to the
// configured defaults.
type Table struct {
	days     map[string]Times
	fallback Times
}

// Load reads a CSV with columns date,sunrise,sunset where date is MM-DD. A
// missing file yields a table that always answers with the fallback.
func Load(path, defaultSunrise, defaultSunset string) (*Table, error) {
	t := &Table{
		days:     make(map[string]Times),
		fallback: Times{Sunrise: defaultSunrise, Sunset: defaultSunset},
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("open sun table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read sun table header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"date", "sunrise", "sunset"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("sun table missing column %q", required)
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sun table: %w", err)
		}
		t.days[row[cols["date"]]] = Times{
			Sunrise: row[cols["sunrise"]],
			Sunset:  row[cols["sunset"]],
		}
	}
	return t, nil
}

// For returns the times for the given date's month-day.
func (t *Table) For(date time.Time) Times {
	if times, ok := t.days[date.Format("01-02")]; ok {
		return times
	}
	return t.fallback
}

// Len reports how many days the table covers.
func (t *Table) Len() int {
	return len(t.days)
}
