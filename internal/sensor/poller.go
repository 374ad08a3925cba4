package sensor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/karachiwx/awos/internal/metrics"
	"github.com/karachiwx/awos/internal/models"
)

// Result is the outcome of the latest poll of one link. Either Readings or
// Failure is set.
type Result struct {
	Readings []models.SensorReading
	Failure  *TransactionFailure
	At       time.Time
}

// Mailbox is a latest-value-wins handoff from one polling worker to the
// aggregator. The aggregator never blocks on it; it reads whatever is there.
type Mailbox struct {
	mu     sync.RWMutex
	latest Result
	seq    uint64
}

// Put records a new result, superseding whatever was there.
func (m *Mailbox) Put(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = r
	m.seq++
}

// Peek returns the latest result and its sequence number. A sequence number
// unchanged since the previous cycle means no new poll completed in between.
func (m *Mailbox) Peek() (Result, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.seq
}

// reconnector is implemented by buses that can drop and re-establish their
// connection after persistent transaction failures.
type reconnector interface {
	Reconnect() error
}

// reconnectAfterFailures is the number of consecutive failed transactions
// (across all links on the bus) before the poller forces a reconnect.
const reconnectAfterFailures = 5

// Poller drives all links that share one physical bus. One worker per bus:
// polling the links sequentially keeps transactions from interleaving on the
// wire beyond what the bus mutex already guarantees.
type Poller struct {
	bus        RegisterReader
	links      []*Link
	mailboxes  map[models.SensorGroup]*Mailbox
	interval   time.Duration
	retries    int
	failStreak int
	now        func() time.Time
}

func NewPoller(bus RegisterReader, links []*Link, interval time.Duration, retries int) *Poller {
	boxes := make(map[models.SensorGroup]*Mailbox, len(links))
	for _, l := range links {
		boxes[l.Group] = &Mailbox{}
	}
	return &Poller{
		bus:       bus,
		links:     links,
		mailboxes: boxes,
		interval:  interval,
		retries:   retries,
		now:       time.Now,
	}
}

// Mailboxes exposes the per-group handoff boxes for the aggregator.
func (p *Poller) Mailboxes() map[models.SensorGroup]*Mailbox {
	return p.mailboxes
}

// Run polls until the context is cancelled. In-flight transactions finish
// within the bus I/O timeout; cancellation between transactions is immediate.
func (p *Poller) Run(ctx context.Context) {
	p.pollAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("poller: shutting down")
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// PollOnce runs a single pass over all links. Used by the one-shot CLI mode.
func (p *Poller) PollOnce(ctx context.Context) {
	p.pollAll(ctx)
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, link := range p.links {
		if ctx.Err() != nil {
			return
		}
		p.pollLink(link)
	}
}

// pollLink attempts one transaction with up to p.retries immediate retries.
// All attempts failing just records the failure in the mailbox; the
// aggregator handles carry-forward and eventual unknown.
func (p *Poller) pollLink(link *Link) {
	start := p.now()

	var failure *TransactionFailure
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			metrics.PollRetriesTotal.WithLabelValues(string(link.Group)).Inc()
		}
		readings, f := link.Poll(p.bus, p.now())
		if f == nil {
			p.failStreak = 0
			metrics.PollLatency.WithLabelValues(string(link.Group)).Observe(time.Since(start).Seconds())
			metrics.PollTotal.WithLabelValues(string(link.Group), "ok").Inc()
			p.mailboxes[link.Group].Put(Result{Readings: readings, At: p.now()})
			return
		}
		failure = f
		if !f.RetryEligible {
			break
		}
	}

	metrics.PollTotal.WithLabelValues(string(link.Group), "error").Inc()
	log.Printf("poller: %v", failure)
	p.mailboxes[link.Group].Put(Result{Failure: failure, At: p.now()})

	p.failStreak++
	if p.failStreak >= reconnectAfterFailures {
		p.failStreak = 0
		if r, ok := p.bus.(reconnector); ok {
			log.Println("poller: persistent transaction failures, reconnecting bus")
			if err := r.Reconnect(); err != nil {
				log.Printf("poller: reconnect: %v", err)
			}
		}
	}
}
