package api

import "github.com/karachiwx/awos/internal/models"

// Band is a color-coded status classification for a metric value.
type Band struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Freshness indicator colors: green = fresh, yellow = stale carried-forward,
// gray = unknown.
const (
	colorFresh   = "#39FF14"
	colorStale   = "#FFFF00"
	colorUnknown = "#808080"
)

func freshnessColor(f models.Freshness) string {
	switch f {
	case models.Fresh:
		return colorFresh
	case models.Stale:
		return colorStale
	default:
		return colorUnknown
	}
}

// HumidityBand classifies relative humidity.
func HumidityBand(h float64) Band {
	switch {
	case h <= 30:
		return Band{"LOW", "#3EC1EC"}
	case h <= 50:
		return Band{"NORMAL", "#39FF14"}
	case h <= 60:
		return Band{"SLIGHTLY HIGH", "#FFFF00"}
	case h <= 70:
		return Band{"HIGH", "#FF7E00"}
	default:
		return Band{"VERY HIGH", "#FF0000"}
	}
}

// UVBand classifies the UV index.
func UVBand(uv float64) Band {
	switch {
	case uv <= 2:
		return Band{"LOW", "#39FF14"}
	case uv <= 5:
		return Band{"MODERATE", "#FFFF00"}
	case uv <= 7:
		return Band{"HIGH", "#FF7E00"}
	case uv <= 10:
		return Band{"VERY HIGH", "#FF0000"}
	default:
		return Band{"EXTREME", "#8F3F97"}
	}
}

// AQIBand classifies the air quality index.
func AQIBand(aqi float64) Band {
	switch {
	case aqi <= 50:
		return Band{"GOOD", "#39FF14"}
	case aqi <= 100:
		return Band{"MODERATE", "#FFFF00"}
	case aqi <= 150:
		return Band{"UNHEALTHY", "#FF7E00"}
	case aqi <= 200:
		return Band{"UNHEALTHY", "#FF0000"}
	case aqi <= 300:
		return Band{"VERY UNHEALTHY", "#8F3F97"}
	default:
		return Band{"HAZARDOUS", "#7E0023"}
	}
}

// bandFor returns the status band for metrics that have one.
func bandFor(metric models.Metric, value float64) *Band {
	var b Band
	switch metric {
	case models.MetricHumidity:
		b = HumidityBand(value)
	case models.MetricUVIndex:
		b = UVBand(value)
	case models.MetricAQI:
		b = AQIBand(value)
	default:
		return nil
	}
	return &b
}
