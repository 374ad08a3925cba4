// Package aqi converts PM2.5 concentrations to the US EPA Air Quality Index.
package aqi

// breakpoint maps a PM2.5 concentration band to an AQI band.
type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

var breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// FromPM25 computes the AQI for a PM2.5 concentration in µg/m³. Negative
// inputs clamp to 0; concentrations beyond the top band extrapolate linearly.
func FromPM25(pm25 float64) float64 {
	if pm25 < 0 {
		pm25 = 0
	}
	for _, bp := range breakpoints {
		if pm25 <= bp.cHigh {
			return (pm25-bp.cLow)/(bp.cHigh-bp.cLow)*(bp.iHigh-bp.iLow) + bp.iLow
		}
	}
	last := breakpoints[len(breakpoints)-1]
	return (pm25-last.cLow)/(last.cHigh-last.cLow)*(last.iHigh-last.iLow) + last.iLow
}
