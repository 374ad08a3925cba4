// Package aggregate merges the latest per-sensor results into one consistent
// snapshot per cycle and hands it to the sinks in durability order.
package aggregate

import (
	"context"
	"log"
	"time"

	"github.com/karachiwx/awos/internal/metrics"
	"github.com/karachiwx/awos/internal/models"
	"github.com/karachiwx/awos/internal/rain"
	"github.com/karachiwx/awos/internal/sensor"
)

// Sink consumes published snapshots. Sinks are invoked synchronously in
// registration order, so the persistence sink always observes a snapshot
// strictly before the presentation sink does.
type Sink interface {
	Publish(snap *models.Snapshot)
}

// Aggregator owns the merged snapshot state. It reads worker mailboxes
// without blocking; a slow sensor never stalls the cycle timer.
type Aggregator struct {
	mailboxes map[models.SensorGroup]*sensor.Mailbox
	lastSeq   map[models.SensorGroup]uint64
	rain      *rain.Accumulator
	sinks     []Sink

	interval  time.Duration
	staleness int

	seq     uint64
	carried map[models.Metric]models.Reading
	misses  map[models.Metric]int

	refresh chan struct{}
	now     func() time.Time
}

func New(mailboxes map[models.SensorGroup]*sensor.Mailbox, acc *rain.Accumulator, interval time.Duration, stalenessCycles int, sinks ...Sink) *Aggregator {
	return &Aggregator{
		mailboxes: mailboxes,
		lastSeq:   make(map[models.SensorGroup]uint64, len(mailboxes)),
		rain:      acc,
		sinks:     sinks,
		interval:  interval,
		staleness: stalenessCycles,
		carried:   make(map[models.Metric]models.Reading),
		misses:    make(map[models.Metric]int),
		refresh:   make(chan struct{}, 1),
		now:       time.Now,
	}
}

// ForceRefresh requests an immediate out-of-band cycle. Non-blocking; a
// refresh already pending is enough.
func (a *Aggregator) ForceRefresh() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// Run publishes one snapshot per cycle interval until the context is
// cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("aggregator: shutting down")
			return
		case <-ticker.C:
			a.Cycle(a.now())
		case <-a.refresh:
			log.Println("aggregator: forced refresh")
			a.refreshCycle(a.now())
		}
	}
}

// Cycle runs one scheduled aggregation pass at the given time and publishes
// the result.
func (a *Aggregator) Cycle(now time.Time) {
	a.cycle(now, true)
}

// refreshCycle republishes on operator demand. A forced cycle does not
// correspond to a polling interval, so it must not age readings toward
// unknown; staleness accounting belongs to scheduled cycles only.
func (a *Aggregator) refreshCycle(now time.Time) {
	a.cycle(now, false)
}

func (a *Aggregator) cycle(now time.Time, scheduled bool) {
	fresh := a.collect(now)

	// Time-based rain transitions run every cycle regardless of whether the
	// gauge produced a new sample.
	if a.rain != nil {
		a.rain.Tick(now)
	}

	snap := a.merge(fresh, now, scheduled)

	for _, sink := range a.sinks {
		sink.Publish(snap)
	}

	metrics.CyclesTotal.Inc()
	metrics.MetricsUnknown.Set(float64(len(models.AllMetrics) - len(snap.Readings)))
}

// collect drains new results from the mailboxes. A mailbox whose sequence
// number has not moved since the previous cycle contributed nothing.
func (a *Aggregator) collect(now time.Time) map[models.Metric]models.SensorReading {
	fresh := make(map[models.Metric]models.SensorReading)
	for group, box := range a.mailboxes {
		result, seq := box.Peek()
		if seq == a.lastSeq[group] {
			continue
		}
		a.lastSeq[group] = seq
		if result.Failure != nil {
			continue
		}
		for _, r := range result.Readings {
			if !r.Valid {
				continue
			}
			if r.Metric == models.MetricRainfall && a.rain != nil {
				// The gauge reports a cumulative counter; fold it into the
				// accumulator and publish the accumulated total instead.
				a.rain.IngestCounter(r.Value, r.ObservedAt)
				r.Value = a.rain.Total()
			}
			if prev, ok := fresh[r.Metric]; !ok || r.ObservedAt.After(prev.ObservedAt) {
				fresh[r.Metric] = r
			}
		}
	}
	return fresh
}

// merge builds the published snapshot: fresh readings win, otherwise the
// previous value is carried forward as stale for up to the staleness window,
// after which the metric becomes unknown (absent). Unscheduled cycles carry
// previous readings unchanged instead of counting a miss.
func (a *Aggregator) merge(fresh map[models.Metric]models.SensorReading, now time.Time, scheduled bool) *models.Snapshot {
	a.seq++
	snap := &models.Snapshot{
		Seq:      a.seq,
		AsOf:     now,
		Readings: make(map[models.Metric]models.Reading, len(models.AllMetrics)),
	}

	var asOf time.Time
	for _, metric := range models.AllMetrics {
		if r, ok := fresh[metric]; ok {
			reading := models.Reading{
				Value:      r.Value,
				Unit:       r.Unit,
				ObservedAt: r.ObservedAt,
				Freshness:  models.Fresh,
			}
			if metric == models.MetricRainfall && a.rain != nil {
				// Reflect any reset that fired after the sample arrived.
				reading.Value = a.rain.Total()
			}
			snap.Readings[metric] = reading
			a.carried[metric] = reading
			a.misses[metric] = 0
			if r.ObservedAt.After(asOf) {
				asOf = r.ObservedAt
			}
			continue
		}

		prev, ok := a.carried[metric]
		if !ok {
			continue // never read, stays unknown
		}
		if scheduled {
			a.misses[metric]++
			if a.misses[metric] > a.staleness {
				delete(a.carried, metric)
				log.Printf("aggregator: %s exceeded staleness window, now unknown", metric)
				continue
			}
			prev.Freshness = models.Stale
		}
		if metric == models.MetricRainfall && a.rain != nil {
			prev.Value = a.rain.Total()
		}
		snap.Readings[metric] = prev
		a.carried[metric] = prev
		if prev.ObservedAt.After(asOf) {
			asOf = prev.ObservedAt
		}
	}

	if !asOf.IsZero() {
		snap.AsOf = asOf
	}
	return snap
}
