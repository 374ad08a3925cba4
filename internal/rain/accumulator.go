// Package rain turns raw gauge counter samples into accumulated rainfall with
// the station's auto-reset rule: after 12 hours without significant rain the
// displayed total goes back to zero.
package rain

import (
	"log"
	"sync"
	"time"

	"github.com/karachiwx/awos/internal/metrics"
	"github.com/karachiwx/awos/internal/models"
)

// Accumulator owns all rain state. It is mutated only through Ingest,
// IngestCounter and Tick; readers get copies.
type Accumulator struct {
	mu sync.Mutex

	window     time.Duration
	noiseFloor float64
	loc        *time.Location

	periodTotal     float64 // mm, zeroed by the no-activity reset
	dailyTotal      float64 // mm, zeroed at local midnight
	lastSignificant time.Time

	lastCounter float64
	haveCounter bool

	day string // local calendar day of the current daily total

	// onDailyTotal receives the finished day's total at rollover. May be nil.
	onDailyTotal func(models.DailyRainTotal)
}

// New returns an accumulator in the Accumulating state. Seeding
// lastSignificant with the start time prevents a spurious reset right after
// boot.
func New(window time.Duration, noiseFloor float64, loc *time.Location, start time.Time) *Accumulator {
	return &Accumulator{
		window:          window,
		noiseFloor:      noiseFloor,
		loc:             loc,
		lastSignificant: start,
		day:             start.In(loc).Format("2006-01-02"),
	}
}

// OnDailyTotal registers the archive callback invoked at local-midnight
// rollover with the finished day's total.
func (a *Accumulator) OnDailyTotal(fn func(models.DailyRainTotal)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDailyTotal = fn
}

// Ingest records one rainfall pulse (mm increment) observed at now. Pulses
// above the noise floor postpone the reset deadline; zero or sub-floor pulses
// never do.
func (a *Accumulator) Ingest(pulse float64, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ingestLocked(pulse, now)
}

func (a *Accumulator) ingestLocked(pulse float64, now time.Time) {
	a.rollDayLocked(now)
	if pulse <= 0 {
		return
	}
	a.periodTotal += pulse
	a.dailyTotal += pulse
	if pulse > a.noiseFloor {
		a.lastSignificant = now
	}
	metrics.RainPeriodTotal.Set(a.periodTotal)
}

// IngestCounter records a cumulative tip-counter sample. The first sample
// only sets the baseline; a negative delta means the sensor reset or rolled
// over and resyncs without accumulating.
func (a *Accumulator) IngestCounter(value float64, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.haveCounter {
		a.lastCounter = value
		a.haveCounter = true
		a.rollDayLocked(now)
		return
	}

	delta := value - a.lastCounter
	if delta < 0 {
		log.Printf("rain: counter reset detected (now %.1f, was %.1f), resyncing", value, a.lastCounter)
		a.lastCounter = value
		a.rollDayLocked(now)
		return
	}
	a.lastCounter = value
	a.ingestLocked(delta, now)
}

// Tick applies time-based transitions. Reset-Pending is instantaneous: the
// moment now reaches the deadline with a non-zero total, the total zeroes and
// the deadline re-arms from the reset time.
func (a *Accumulator) Tick(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rollDayLocked(now)

	if a.periodTotal > 0 && !now.Before(a.lastSignificant.Add(a.window)) {
		log.Printf("rain: no significant rain for %s, resetting %.1f mm", a.window, a.periodTotal)
		a.periodTotal = 0
		a.lastSignificant = now
		metrics.RainPeriodTotal.Set(0)
		metrics.RainResetsTotal.Inc()
	}
}

func (a *Accumulator) rollDayLocked(now time.Time) {
	local := now.In(a.loc)
	day := local.Format("2006-01-02")
	if day == a.day {
		return
	}

	finished := a.dailyTotal
	prevDay, err := time.ParseInLocation("2006-01-02", a.day, a.loc)
	a.day = day
	a.dailyTotal = 0
	if err != nil {
		return
	}
	log.Printf("rain: day rollover, storing %.1f mm for %s", finished, prevDay.Format("2006-01-02"))
	if a.onDailyTotal != nil {
		a.onDailyTotal(models.DailyRainTotal{Date: prevDay, Total: finished})
	}
}

// Total returns the current auto-resetting accumulated total in mm.
func (a *Accumulator) Total() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.periodTotal
}

// DailyTotal returns the running total for the current local day.
func (a *Accumulator) DailyTotal() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyTotal
}

// ResetDeadline returns when the no-activity reset would fire if no further
// significant rain arrives.
func (a *Accumulator) ResetDeadline() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSignificant.Add(a.window)
}
