// Package aqi derives an air-quality index from pollutant concentrations using
// piecewise-linear breakpoint tables.
package aqi

import (
	"math"

	"github.com/dokzlo13/aird/internal/device"
)

// Breakpoint is one row of a pollutant table.
type Breakpoint struct {
	ConcLow, ConcHigh float64
	IdxLow, IdxHigh   int
}

// Table is an ordered breakpoint table plus the precision readings are
// truncated to before lookup (0.1 for PM2.5, 1 for PM10 and VOC).
type Table struct {
	Rows []Breakpoint
	Step float64
}

// PM25 covers fine particulate matter in µg/m³.
var PM25 = Table{
	Step: 0.1,
	Rows: []Breakpoint{
		{0.0, 9.0, 0, 50},
		{9.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 125.4, 151, 300},
		{125.5, 225.4, 301, 500},
	},
}

// PM10 covers coarse particulate matter in µg/m³.
var PM10 = Table{
	Step: 1,
	Rows: []Breakpoint{
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 604, 301, 500},
	},
}

// VOC covers the total volatile organic compound level in ppb.
var VOC = Table{
	Step: 1,
	Rows: []Breakpoint{
		{0, 220, 0, 50},
		{221, 660, 51, 100},
		{661, 1430, 101, 150},
		{1431, 2200, 151, 200},
		{2201, 3300, 201, 300},
		{3301, 5500, 301, 500},
	},
}

// Index interpolates a single reading against table t.
// Readings above the last row clamp to its maximum index. Negative readings count as 0.
func (t Table) Index(v float64) int {
	if len(t.Rows) == 0 {
		return 0
	}
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	v = t.truncate(v)

	for _, row := range t.Rows {
		if v > row.ConcHigh {
			continue
		}
		if v < row.ConcLow {
			// Between two rows; only reachable with untruncated custom tables.
			return row.IdxLow
		}
		return interpolate(row, v)
	}
	return t.Rows[len(t.Rows)-1].IdxHigh
}

func (t Table) truncate(v float64) float64 {
	if t.Step <= 0 {
		return v
	}
	// The epsilon keeps values such as 35.4 from truncating to 35.3 through
	// binary representation error.
	scale := math.Round(1 / t.Step)
	return math.Floor(v*scale+1e-9) / scale
}

func interpolate(row Breakpoint, v float64) int {
	if row.ConcHigh == row.ConcLow {
		return row.IdxHigh
	}
	slope := float64(row.IdxHigh-row.IdxLow) / (row.ConcHigh - row.ConcLow)
	return int(math.Round(slope*(v-row.ConcLow) + float64(row.IdxLow)))
}

// Calculate returns the overall index: the worst of the per-pollutant indices.
// It reports false only when none of the three readings is present; a single
// missing reading counts as zero.
func Calculate(sensors device.Sensors) (int, bool) {
	pm25, hasPM25 := sensors[device.SensorPM25]
	pm10, hasPM10 := sensors[device.SensorPM10]
	voc, hasVOC := sensors[device.SensorVOC]
	if !hasPM25 && !hasPM10 && !hasVOC {
		return 0, false
	}

	idx := PM25.Index(pm25)
	if v := PM10.Index(pm10); v > idx {
		idx = v
	}
	if v := VOC.Index(voc); v > idx {
		idx = v
	}
	return idx, true
}

// Touches reports whether a sensor delta contains one of the AQI source readings.
func Touches(delta device.Sensors) bool {
	for s := range delta {
		if s.IsPollutant() {
			return true
		}
	}
	return false
}

// Category names the health band of an index.
func Category(idx int) string {
	switch {
	case idx <= 50:
		return "good"
	case idx <= 100:
		return "moderate"
	case idx <= 150:
		return "unhealthy_sensitive"
	case idx <= 200:
		return "unhealthy"
	case idx <= 300:
		return "very_unhealthy"
	default:
		return "hazardous"
	}
}
