package aqi

import (
	"testing"

	"github.com/dokzlo13/aird/internal/device"
)

func TestPM25Index(t *testing.T) {
	tests := []struct {
		name     string
		reading  float64
		expected int
	}{
		{"zero", 0, 0},
		{"first_row_edge", 9.0, 50},
		{"second_row_start", 9.1, 51},
		{"second_row_edge", 35.4, 100},
		{"third_row_start", 35.5, 101},
		{"fourth_row_edge", 125.4, 300},
		{"truncated_into_row", 35.45, 100},
		{"mid_first_row", 4.5, 25},
		{"negative_counts_as_zero", -3, 0},
		{"above_table_clamps", 900, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PM25.Index(tt.reading); got != tt.expected {
				t.Errorf("PM25.Index(%v) = %d, want %d", tt.reading, got, tt.expected)
			}
		})
	}
}

func TestPM10AndVOCEdges(t *testing.T) {
	if got := PM10.Index(54); got != 50 {
		t.Errorf("PM10.Index(54) = %d, want 50", got)
	}
	if got := PM10.Index(154); got != 100 {
		t.Errorf("PM10.Index(154) = %d, want 100", got)
	}
	if got := VOC.Index(220); got != 50 {
		t.Errorf("VOC.Index(220) = %d, want 50", got)
	}
	if got := VOC.Index(100000); got != 500 {
		t.Errorf("VOC.Index(100000) = %d, want 500", got)
	}
}

func TestIndexGapReturnsNextRowLow(t *testing.T) {
	table := Table{Rows: []Breakpoint{{0, 10, 0, 50}, {20, 30, 51, 100}}}
	if got := table.Index(15); got != 51 {
		t.Errorf("Index(15) = %d, want 51", got)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		sensors   device.Sensors
		expected  int
		wantKnown bool
	}{
		{
			name:      "all_absent_is_unknown",
			sensors:   device.Sensors{device.SensorHumidity: 40},
			wantKnown: false,
		},
		{
			name:      "single_reading_others_default_zero",
			sensors:   device.Sensors{device.SensorPM25: 9.0},
			expected:  50,
			wantKnown: true,
		},
		{
			name:      "max_of_three",
			sensors:   device.Sensors{device.SensorPM25: 9.0, device.SensorPM10: 154, device.SensorVOC: 0},
			expected:  100,
			wantKnown: true,
		},
		{
			name:      "zero_readings_known",
			sensors:   device.Sensors{device.SensorVOC: 0},
			expected:  0,
			wantKnown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := Calculate(tt.sensors)
			if known != tt.wantKnown {
				t.Fatalf("Calculate() known = %v, want %v", known, tt.wantKnown)
			}
			if got != tt.expected {
				t.Errorf("Calculate() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestTouches(t *testing.T) {
	if Touches(device.Sensors{device.SensorHumidity: 1, device.SensorTemperature: 2}) {
		t.Error("humidity/temperature should not touch AQI")
	}
	if !Touches(device.Sensors{device.SensorVOC: 1}) {
		t.Error("voc should touch AQI")
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		idx      int
		expected string
	}{
		{0, "good"},
		{50, "good"},
		{51, "moderate"},
		{150, "unhealthy_sensitive"},
		{200, "unhealthy"},
		{300, "very_unhealthy"},
		{301, "hazardous"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := Category(tt.idx); got != tt.expected {
				t.Errorf("Category(%d) = %q, want %q", tt.idx, got, tt.expected)
			}
		})
	}
}
