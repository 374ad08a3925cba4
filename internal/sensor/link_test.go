package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karachiwx/awos/internal/config"
	"github.com/karachiwx/awos/internal/models"
)

// fakeBus serves canned register blocks per slave address and counts reads.
type fakeBus struct {
	regs  map[byte][]uint16
	errs  map[byte]error
	reads map[byte]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:  make(map[byte][]uint16),
		errs:  make(map[byte]error),
		reads: make(map[byte]int),
	}
}

func (b *fakeBus) ReadHoldingRegisters(slave byte, address, quantity uint16) ([]uint16, error) {
	b.reads[slave]++
	if err := b.errs[slave]; err != nil {
		return nil, err
	}
	return b.regs[slave], nil
}

func defaultLinks() []*Link {
	return Links(config.Default().Sensors)
}

func linkFor(t *testing.T, group models.SensorGroup) *Link {
	t.Helper()
	for _, l := range defaultLinks() {
		if l.Group == group {
			return l
		}
	}
	t.Fatalf("no link for group %s", group)
	return nil
}

func TestDecodeScaling(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		group models.SensorGroup
		regs  []uint16
		want  map[models.Metric]float64
	}{
		{
			group: models.GroupEnvironment,
			regs:  []uint16{255, 612, 10132},
			want: map[models.Metric]float64{
				models.MetricTemperature: 25.5,
				models.MetricHumidity:    61.2,
				models.MetricPressure:    1013.2,
			},
		},
		{
			group: models.GroupUV,
			regs:  []uint16{750},
			want:  map[models.Metric]float64{models.MetricUVIndex: 7.5},
		},
		{
			group: models.GroupAQI,
			regs:  []uint16{120, 305},
			want: map[models.Metric]float64{
				models.MetricPM25: 12.0,
				models.MetricPM10: 30.5,
				models.MetricAQI:  50, // 12.0 µg/m³ is the top of the first band
			},
		},
		{
			group: models.GroupWindSpeed,
			regs:  []uint16{53},
			want:  map[models.Metric]float64{models.MetricWindSpeed: 5.3},
		},
		{
			group: models.GroupWindDirection,
			regs:  []uint16{2240, 0, 2260}, // two heading registers, averaged
			want:  map[models.Metric]float64{models.MetricWindDirection: 225},
		},
		{
			group: models.GroupRain,
			regs:  []uint16{1005},
			want:  map[models.Metric]float64{models.MetricRainfall: 100.5},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.group), func(t *testing.T) {
			link := linkFor(t, tt.group)
			if int(link.Quantity) != len(tt.regs) {
				t.Fatalf("link reads %d registers, test supplies %d", link.Quantity, len(tt.regs))
			}
			bus := newFakeBus()
			bus.regs[link.Slave] = tt.regs

			readings, failure := link.Poll(bus, now)
			if failure != nil {
				t.Fatalf("Poll() failed: %v", failure)
			}
			if len(readings) != len(tt.want) {
				t.Fatalf("got %d readings, want %d", len(readings), len(tt.want))
			}
			for _, r := range readings {
				want, ok := tt.want[r.Metric]
				if !ok {
					t.Errorf("unexpected metric %s", r.Metric)
					continue
				}
				if r.Value != want {
					t.Errorf("%s = %v, want %v", r.Metric, r.Value, want)
				}
				if !r.Valid || !r.ObservedAt.Equal(now) {
					t.Errorf("%s: valid=%v at=%v", r.Metric, r.Valid, r.ObservedAt)
				}
				if r.Unit != models.Units[r.Metric] {
					t.Errorf("%s unit = %q, want %q", r.Metric, r.Unit, models.Units[r.Metric])
				}
			}
		})
	}
}

func TestWindDirectionOutOfRange(t *testing.T) {
	link := linkFor(t, models.GroupWindDirection)
	bus := newFakeBus()
	bus.regs[link.Slave] = []uint16{5000, 0, 5000} // 500° after scaling

	_, failure := link.Poll(bus, time.Now())
	if failure == nil {
		t.Fatal("Poll() accepted out-of-range heading")
	}
	if failure.RetryEligible {
		t.Error("decode failure marked retry-eligible; a re-read returns the same bad block")
	}
}

func TestTransportFailureIsRetryEligible(t *testing.T) {
	link := linkFor(t, models.GroupEnvironment)
	bus := newFakeBus()
	bus.errs[link.Slave] = errors.New("serial: timeout")

	_, failure := link.Poll(bus, time.Now())
	if failure == nil {
		t.Fatal("Poll() succeeded with a failing bus")
	}
	if !failure.RetryEligible {
		t.Error("transport failure should be retry-eligible")
	}
	if failure.Group != models.GroupEnvironment {
		t.Errorf("failure group = %s", failure.Group)
	}
}

func TestPollerRetriesThenRecordsFailure(t *testing.T) {
	link := linkFor(t, models.GroupEnvironment)
	bus := newFakeBus()
	bus.errs[link.Slave] = errors.New("serial: timeout")

	p := NewPoller(bus, []*Link{link}, time.Second, 2)
	p.PollOnce(context.Background())

	if got := bus.reads[link.Slave]; got != 3 {
		t.Errorf("bus read %d times, want 1 attempt + 2 retries", got)
	}
	result, seq := p.Mailboxes()[link.Group].Peek()
	if seq != 1 {
		t.Errorf("mailbox seq = %d, want 1", seq)
	}
	if result.Failure == nil {
		t.Error("mailbox holds no failure")
	}
}

func TestPollerDecodeFailureNotRetried(t *testing.T) {
	link := linkFor(t, models.GroupWindDirection)
	bus := newFakeBus()
	bus.regs[link.Slave] = []uint16{60000, 0, 60000}

	p := NewPoller(bus, []*Link{link}, time.Second, 2)
	p.PollOnce(context.Background())

	if got := bus.reads[link.Slave]; got != 1 {
		t.Errorf("bus read %d times, want 1 (decode errors are not transient)", got)
	}
}

func TestPollerSuccessSupersedesFailure(t *testing.T) {
	link := linkFor(t, models.GroupUV)
	bus := newFakeBus()
	bus.errs[link.Slave] = errors.New("serial: timeout")

	p := NewPoller(bus, []*Link{link}, time.Second, 0)
	p.PollOnce(context.Background())

	bus.errs[link.Slave] = nil
	bus.regs[link.Slave] = []uint16{310}
	p.PollOnce(context.Background())

	result, seq := p.Mailboxes()[link.Group].Peek()
	if seq != 2 {
		t.Errorf("mailbox seq = %d, want 2", seq)
	}
	if result.Failure != nil {
		t.Fatalf("mailbox still holds failure: %v", result.Failure)
	}
	if len(result.Readings) != 1 || result.Readings[0].Value != 3.1 {
		t.Errorf("readings = %+v, want single uv_index 3.1", result.Readings)
	}
}

type reconnectableBus struct {
	fakeBus
	reconnects int
}

func (b *reconnectableBus) Reconnect() error {
	b.reconnects++
	return nil
}

func TestPollerReconnectsAfterPersistentFailures(t *testing.T) {
	link := linkFor(t, models.GroupEnvironment)
	bus := &reconnectableBus{fakeBus: *newFakeBus()}
	bus.errs[link.Slave] = errors.New("serial: timeout")

	p := NewPoller(bus, []*Link{link}, time.Second, 0)
	for i := 0; i < reconnectAfterFailures-1; i++ {
		p.PollOnce(context.Background())
	}
	if bus.reconnects != 0 {
		t.Fatalf("reconnected after %d failures, want none before %d", reconnectAfterFailures-1, reconnectAfterFailures)
	}

	p.PollOnce(context.Background())
	if bus.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1 after %d consecutive failures", bus.reconnects, reconnectAfterFailures)
	}

	// The streak resets after the attempt; it takes another full run of
	// failures to trigger the next reconnect.
	p.PollOnce(context.Background())
	if bus.reconnects != 1 {
		t.Errorf("reconnects = %d, want still 1", bus.reconnects)
	}
}

func TestPollerSuccessResetsFailureStreak(t *testing.T) {
	link := linkFor(t, models.GroupEnvironment)
	bus := &reconnectableBus{fakeBus: *newFakeBus()}

	p := NewPoller(bus, []*Link{link}, time.Second, 0)
	bus.errs[link.Slave] = errors.New("serial: timeout")
	for i := 0; i < reconnectAfterFailures-1; i++ {
		p.PollOnce(context.Background())
	}

	bus.errs[link.Slave] = nil
	bus.regs[link.Slave] = []uint16{255, 612, 10132}
	p.PollOnce(context.Background())

	bus.errs[link.Slave] = errors.New("serial: timeout")
	for i := 0; i < reconnectAfterFailures-1; i++ {
		p.PollOnce(context.Background())
	}
	if bus.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0 (success must reset the streak)", bus.reconnects)
	}
}

func TestDisabledGroupsAreSkipped(t *testing.T) {
	cfg := config.Default().Sensors
	cfg.Rain = 0
	links := Links(cfg)
	for _, l := range links {
		if l.Group == models.GroupRain {
			t.Fatal("rain link built with slave address 0")
		}
	}
	if len(links) != 5 {
		t.Errorf("got %d links, want 5", len(links))
	}
}
