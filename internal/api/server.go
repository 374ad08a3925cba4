// Package api is the presentation sink: an HTTP surface serving the latest
// published snapshot with color-coded freshness, plus history from the
// archive and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karachiwx/awos/internal/models"
	"github.com/karachiwx/awos/internal/store"
	"github.com/karachiwx/awos/internal/sun"
)

// Refresher is the operator force-refresh control exposed by the aggregator.
type Refresher interface {
	ForceRefresh()
}

type Server struct {
	store       *store.Store
	sun         *sun.Table
	refresher   Refresher
	port        string
	loc         *time.Location
	stationName string

	mu     sync.RWMutex
	latest *models.Snapshot
}

func NewServer(st *store.Store, sunTable *sun.Table, port string, loc *time.Location, stationName string) *Server {
	return &Server{
		store:       st,
		sun:         sunTable,
		port:        port,
		loc:         loc,
		stationName: stationName,
	}
}

// SetRefresher wires the operator refresh control.
func (s *Server) SetRefresher(r Refresher) {
	s.refresher = r
}

// Publish implements the aggregator sink contract. The server is registered
// after the persistence sinks, so visibility never precedes durability.
func (s *Server) Publish(snap *models.Snapshot) {
	clone := snap.Clone()
	s.mu.Lock()
	s.latest = clone
	s.mu.Unlock()
}

func (s *Server) snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/current", s.handleCurrent)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/rain/daily", s.handleDailyRain)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// MetricView is the JSON rendering of one metric. Value is null while the
// metric is unknown.
type MetricView struct {
	Value      *float64 `json:"value"`
	ValueKmh   *float64 `json:"value_kmh,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	ObservedAt string   `json:"observed_at,omitempty"`
	Freshness  string   `json:"freshness"`
	Color      string   `json:"color"`
	Status     *Band    `json:"status,omitempty"`
	Cardinal   string   `json:"cardinal,omitempty"`
}

type CurrentView struct {
	Station string                       `json:"station"`
	AsOf    *string                      `json:"as_of"`
	Seq     uint64                       `json:"seq"`
	Metrics map[models.Metric]MetricView `json:"metrics"`
	Sun     *sun.Times                   `json:"sun,omitempty"`
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()

	view := CurrentView{
		Station: s.stationName,
		Metrics: make(map[models.Metric]MetricView, len(models.AllMetrics)),
	}

	for _, metric := range models.AllMetrics {
		mv := MetricView{Freshness: "unknown", Color: colorUnknown}
		if snap != nil {
			if reading, ok := snap.Get(metric); ok {
				v := reading.Value
				mv.Value = &v
				mv.Unit = reading.Unit
				mv.ObservedAt = reading.ObservedAt.In(s.loc).Format(time.RFC3339)
				mv.Freshness = string(reading.Freshness)
				mv.Color = freshnessColor(reading.Freshness)
				mv.Status = bandFor(metric, v)
				if metric == models.MetricWindDirection {
					mv.Cardinal = models.Cardinal(v)
				}
				if metric == models.MetricWindSpeed {
					kmh := v * 3.6
					mv.ValueKmh = &kmh
				}
			}
		}
		view.Metrics[metric] = mv
	}

	if snap != nil {
		asOf := snap.AsOf.In(s.loc).Format(time.RFC3339)
		view.AsOf = &asOf
		view.Seq = snap.Seq
	}
	if s.sun != nil {
		times := s.sun.For(time.Now().In(s.loc))
		view.Sun = &times
	}

	writeJSON(w, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := s.store.GetSnapshots(since, 10000)
	if err != nil {
		log.Printf("api: history: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleDailyRain(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.GetDailyRainTotals(31)
	if err != nil {
		log.Printf("api: daily rain: %v", err)
		http.Error(w, "daily rain unavailable", http.StatusInternalServerError)
		return
	}
	type dayView struct {
		Date  string  `json:"date"`
		Total float64 `json:"total_mm"`
	}
	out := make([]dayView, 0, len(totals))
	for _, t := range totals {
		out = append(out, dayView{Date: t.Date.Format("2006-01-02"), Total: t.Total})
	}
	writeJSON(w, out)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.refresher == nil {
		http.Error(w, "refresh unavailable", http.StatusServiceUnavailable)
		return
	}
	s.refresher.ForceRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok"}
	if snap := s.snapshot(); snap != nil {
		status["last_snapshot"] = snap.AsOf.In(s.loc).Format(time.RFC3339)
		status["known_metrics"] = len(snap.Readings)
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
