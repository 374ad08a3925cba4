package sensor

import (
	"fmt"
	"time"

	"github.com/karachiwx/awos/internal/aqi"
	"github.com/karachiwx/awos/internal/config"
	"github.com/karachiwx/awos/internal/models"
)

// RegisterReader is the slice of the bus a link needs. The concrete
// implementation serializes access per physical bus.
type RegisterReader interface {
	ReadHoldingRegisters(slave byte, address, quantity uint16) ([]uint16, error)
}

// TransactionFailure is a failed poll of one sensor group. It never escalates
// past the aggregator; the affected metrics degrade to stale and eventually
// unknown.
type TransactionFailure struct {
	Group         models.SensorGroup
	Err           error
	RetryEligible bool
}

func (f *TransactionFailure) Error() string {
	return fmt.Sprintf("sensor %s: %v", f.Group, f.Err)
}

func (f *TransactionFailure) Unwrap() error {
	return f.Err
}

// Link is one pollable sensor group: a slave address, a register block and a
// decoder producing typed readings.
type Link struct {
	Group    models.SensorGroup
	Slave    byte
	Address  uint16
	Quantity uint16
	decode   func(regs []uint16, now time.Time) ([]models.SensorReading, error)
}

// Poll issues one read transaction and decodes the register block.
func (l *Link) Poll(bus RegisterReader, now time.Time) ([]models.SensorReading, *TransactionFailure) {
	regs, err := bus.ReadHoldingRegisters(l.Slave, l.Address, l.Quantity)
	if err != nil {
		return nil, &TransactionFailure{Group: l.Group, Err: err, RetryEligible: true}
	}
	readings, err := l.decode(regs, now)
	if err != nil {
		// Decode errors are sensor-side garbage, not bus contention; a
		// retry in the same cycle would re-read the same bad block.
		return nil, &TransactionFailure{Group: l.Group, Err: err, RetryEligible: false}
	}
	return readings, nil
}

func reading(group models.SensorGroup, metric models.Metric, value float64, now time.Time) models.SensorReading {
	return models.SensorReading{
		Group:      group,
		Metric:     metric,
		Value:      value,
		Unit:       models.Units[metric],
		ObservedAt: now,
		Valid:      true,
	}
}

// Links builds the configured sensor links. Groups with slave address 0 are
// disabled.
func Links(cfg config.SensorsConf) []*Link {
	var links []*Link
	add := func(l *Link) {
		if l.Slave != 0 {
			links = append(links, l)
		}
	}

	add(&Link{
		Group: models.GroupEnvironment, Slave: cfg.Environment, Address: 0, Quantity: 3,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			return []models.SensorReading{
				reading(models.GroupEnvironment, models.MetricTemperature, float64(regs[0])/10.0, now),
				reading(models.GroupEnvironment, models.MetricHumidity, float64(regs[1])/10.0, now),
				reading(models.GroupEnvironment, models.MetricPressure, float64(regs[2])/10.0, now),
			}, nil
		},
	})

	add(&Link{
		Group: models.GroupUV, Slave: cfg.UV, Address: 0, Quantity: 1,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			return []models.SensorReading{
				reading(models.GroupUV, models.MetricUVIndex, float64(regs[0])/100.0, now),
			}, nil
		},
	})

	add(&Link{
		Group: models.GroupAQI, Slave: cfg.AQI, Address: 0, Quantity: 2,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			pm25 := float64(regs[0]) / 10.0
			pm10 := float64(regs[1]) / 10.0
			return []models.SensorReading{
				reading(models.GroupAQI, models.MetricPM25, pm25, now),
				reading(models.GroupAQI, models.MetricPM10, pm10, now),
				reading(models.GroupAQI, models.MetricAQI, aqi.FromPM25(pm25), now),
			}, nil
		},
	})

	add(&Link{
		Group: models.GroupWindSpeed, Slave: cfg.WindSpeed, Address: 0, Quantity: 1,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			return []models.SensorReading{
				reading(models.GroupWindSpeed, models.MetricWindSpeed, float64(regs[0])/10.0, now),
			}, nil
		},
	})

	add(&Link{
		Group: models.GroupWindDirection, Slave: cfg.WindDirection, Address: 0, Quantity: 3,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			// The vane reports the heading twice, in regs 0 and 2; the
			// average smooths single-register glitches.
			avg := (float64(regs[0]) + float64(regs[2])) / 2.0
			degrees := float64(int(avg/10.0 + 0.5))
			if degrees < 0 || degrees > 360 {
				return nil, fmt.Errorf("wind direction out of range: %.0f°", degrees)
			}
			return []models.SensorReading{
				reading(models.GroupWindDirection, models.MetricWindDirection, degrees, now),
			}, nil
		},
	})

	add(&Link{
		Group: models.GroupRain, Slave: cfg.Rain, Address: 0, Quantity: 1,
		decode: func(regs []uint16, now time.Time) ([]models.SensorReading, error) {
			// Cumulative tip counter in tenths of a millimetre. The rain
			// accumulator turns counter samples into period totals.
			return []models.SensorReading{
				reading(models.GroupRain, models.MetricRainfall, float64(regs[0])/10.0, now),
			}, nil
		},
	})

	return links
}
