package aqi

import (
	"math"
	"testing"
)

func TestFromPM25(t *testing.T) {
	tests := []struct {
		name string
		pm25 float64
		want float64
	}{
		{"zero", 0, 0},
		{"top of good band", 12.0, 50},
		{"bottom of moderate band", 12.1, 51},
		{"mid moderate", 23.75, 75.5},
		{"unhealthy for sensitive", 35.5, 101},
		{"top band", 500.4, 500},
		{"negative clamps to zero", -3, 0},
		{"beyond scale extrapolates", 750.3, 699},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromPM25(tt.pm25)
			if math.Abs(got-tt.want) > 0.1 {
				t.Errorf("FromPM25(%v) = %v, want %v", tt.pm25, got, tt.want)
			}
		})
	}
}

func TestMonotonic(t *testing.T) {
	prev := FromPM25(0)
	for c := 0.5; c <= 600; c += 0.5 {
		got := FromPM25(c)
		if got < prev {
			t.Fatalf("FromPM25 not monotonic at %v: %v < %v", c, got, prev)
		}
		prev = got
	}
}
