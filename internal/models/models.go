package models

import (
	"time"
)

// Metric identifies one observed quantity. A metric absent from a snapshot
// means it has never been read (or aged out) and must be shown as unknown,
// never as zero.
type Metric string

const (
	MetricTemperature   Metric = "temperature"
	MetricHumidity      Metric = "humidity"
	MetricPressure      Metric = "pressure"
	MetricUVIndex       Metric = "uv_index"
	MetricPM25          Metric = "pm2_5"
	MetricPM10          Metric = "pm10"
	MetricAQI           Metric = "aqi"
	MetricWindSpeed     Metric = "wind_speed"
	MetricWindDirection Metric = "wind_dir_degrees"
	MetricRainfall      Metric = "rainfall"
)

// AllMetrics is the fixed presentation and CSV column order.
var AllMetrics = []Metric{
	MetricTemperature,
	MetricHumidity,
	MetricPressure,
	MetricUVIndex,
	MetricPM25,
	MetricPM10,
	MetricAQI,
	MetricWindSpeed,
	MetricWindDirection,
	MetricRainfall,
}

// Units per metric as rendered on the dashboard and in CSV docs.
var Units = map[Metric]string{
	MetricTemperature:   "°C",
	MetricHumidity:      "%",
	MetricPressure:      "hPa",
	MetricUVIndex:       "",
	MetricPM25:          "µg/m³",
	MetricPM10:          "µg/m³",
	MetricAQI:           "",
	MetricWindSpeed:     "m/s",
	MetricWindDirection: "°",
	MetricRainfall:      "mm",
}

// Freshness of a metric inside a snapshot.
type Freshness string

const (
	Fresh Freshness = "fresh" // read this cycle
	Stale Freshness = "stale" // carried forward within the staleness window
)

// SensorGroup identifies one Modbus slave on the bus.
type SensorGroup string

const (
	GroupEnvironment   SensorGroup = "environment"
	GroupUV            SensorGroup = "uv"
	GroupAQI           SensorGroup = "aqi"
	GroupWindSpeed     SensorGroup = "wind_speed"
	GroupWindDirection SensorGroup = "wind_direction"
	GroupRain          SensorGroup = "rain"
)

// SensorReading is one decoded value from a successful poll. Immutable once
// constructed; discarded after being folded into a snapshot.
type SensorReading struct {
	Group      SensorGroup
	Metric     Metric
	Value      float64
	Unit       string
	ObservedAt time.Time
	Valid      bool
}

// Reading is a SensorReading as it appears inside a published snapshot,
// annotated with freshness.
type Reading struct {
	Value      float64
	Unit       string
	ObservedAt time.Time
	Freshness  Freshness
}

// Snapshot is the latest merged set of readings, published once per
// aggregation cycle. Consumers must treat it as immutable.
type Snapshot struct {
	Seq      uint64
	AsOf     time.Time
	Readings map[Metric]Reading
}

// Get returns the reading for a metric, reporting whether it is known.
func (s *Snapshot) Get(m Metric) (Reading, bool) {
	r, ok := s.Readings[m]
	return r, ok
}

// Clone returns a deep copy safe to publish to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Seq: s.Seq, AsOf: s.AsOf, Readings: make(map[Metric]Reading, len(s.Readings))}
	for k, v := range s.Readings {
		out.Readings[k] = v
	}
	return out
}

var cardinals = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Cardinal converts wind direction degrees to a 16-point compass label.
func Cardinal(degrees float64) string {
	if degrees < 0 || degrees > 360 {
		return "Unknown"
	}
	idx := int(degrees/(360.0/float64(len(cardinals)))+0.5) % len(cardinals)
	return cardinals[idx]
}

// DailyRainTotal is one finished local day of accumulated rainfall.
type DailyRainTotal struct {
	Date  time.Time
	Total float64
}
