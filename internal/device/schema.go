package device

import (
	"fmt"
	"sort"
)

// Key identifies a configurable state attribute.
type Key string

// State attributes understood by the engine.
const (
	KeyStandby        Key = "standby"
	KeyNightMode      Key = "night_mode"
	KeyBrightness     Key = "brightness"
	KeyNightLight     Key = "night_light"
	KeyAutoMode       Key = "auto_mode"
	KeyTargetHumidity Key = "target_humidity"
	KeyMistTarget     Key = "mist_target"
	KeyFanSpeed       Key = "fan_speed"
	KeyChildLock      Key = "child_lock"
	KeyGermShield     Key = "germ_shield"
	KeyDisplay        Key = "display"
)

// Sensor identifies a measured reading.
type Sensor string

// Sensor readings. SensorAQI is derived, never reported by the device.
const (
	SensorHumidity    Sensor = "humidity"
	SensorTemperature Sensor = "temperature"
	SensorPM25        Sensor = "pm25"
	SensorPM10        Sensor = "pm10"
	SensorVOC         Sensor = "voc"
	SensorWaterLacks  Sensor = "water_lacks"
	SensorFilterLife  Sensor = "filter_life"
	SensorAQI         Sensor = "aqi"
)

type keySpec struct {
	boolean bool
}

var keySpecs = map[Key]keySpec{
	KeyStandby:        {boolean: true},
	KeyNightMode:      {boolean: true},
	KeyBrightness:     {},
	KeyNightLight:     {},
	KeyAutoMode:       {boolean: true},
	KeyTargetHumidity: {},
	KeyMistTarget:     {},
	KeyFanSpeed:       {},
	KeyChildLock:      {boolean: true},
	KeyGermShield:     {boolean: true},
	KeyDisplay:        {boolean: true},
}

var knownSensors = map[Sensor]struct{}{
	SensorHumidity:    {},
	SensorTemperature: {},
	SensorPM25:        {},
	SensorPM10:        {},
	SensorVOC:         {},
	SensorWaterLacks:  {},
	SensorFilterLife:  {},
	SensorAQI:         {},
}

// IsKnown reports whether k is part of the schema.
func (k Key) IsKnown() bool {
	_, ok := keySpecs[k]
	return ok
}

// IsBoolean reports whether k carries a boolean value.
func (k Key) IsBoolean() bool {
	return keySpecs[k].boolean
}

// Accepts reports whether v has the kind expected for k.
func (k Key) Accepts(v Value) bool {
	if !v.IsValid() || !k.IsKnown() {
		return false
	}
	return v.IsBool() == k.IsBoolean()
}

// IsKnown reports whether s is part of the schema.
func (s Sensor) IsKnown() bool {
	_, ok := knownSensors[s]
	return ok
}

// IsPollutant reports whether s feeds the AQI calculation.
func (s Sensor) IsPollutant() bool {
	return s == SensorPM25 || s == SensorPM10 || s == SensorVOC
}

// State maps configured attributes to their confirmed values.
type State map[Key]Value

// Sensors maps sensor names to numeric readings.
type Sensors map[Sensor]float64

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of s.
func (s Sensors) Clone() Sensors {
	out := make(Sensors, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Delta is a partial set of changed state attributes and sensor readings.
type Delta struct {
	State   State   `json:"state,omitempty"`
	Sensors Sensors `json:"sensors,omitempty"`
}

// IsEmpty reports whether d carries no changes.
func (d Delta) IsEmpty() bool {
	return len(d.State) == 0 && len(d.Sensors) == 0
}

// Fold overwrites d with every key of other (last write wins).
func (d *Delta) Fold(other Delta) {
	if len(other.State) > 0 && d.State == nil {
		d.State = make(State, len(other.State))
	}
	for k, v := range other.State {
		d.State[k] = v
	}
	if len(other.Sensors) > 0 && d.Sensors == nil {
		d.Sensors = make(Sensors, len(other.Sensors))
	}
	for k, v := range other.Sensors {
		d.Sensors[k] = v
	}
}

// Clone returns a copy of d that shares no maps with it.
func (d Delta) Clone() Delta {
	var out Delta
	out.Fold(d)
	return out
}

// Snapshot is a read-only copy of an appliance's state and sensor view.
type Snapshot struct {
	State   State   `json:"state"`
	Sensors Sensors `json:"sensors"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{State: s.State.Clone(), Sensors: s.Sensors.Clone()}
}

// Get returns the value of attribute k.
func (s Snapshot) Get(k Key) (Value, bool) {
	v, ok := s.State[k]
	return v, ok
}

// Bool returns attribute k as a boolean (false when absent).
func (s Snapshot) Bool(k Key) bool {
	v, ok := s.State[k]
	return ok && v.AsBool()
}

// Reading returns sensor s.
func (s Snapshot) Reading(name Sensor) (float64, bool) {
	v, ok := s.Sensors[name]
	return v, ok
}

// AQI returns the derived air-quality index, or false when it is unknown.
func (s Snapshot) AQI() (int, bool) {
	v, ok := s.Sensors[SensorAQI]
	return int(v), ok
}

// ParseDelta validates raw decoded JSON maps into a Delta.
// Unknown keys are skipped and returned so callers can log them.
func ParseDelta(state map[string]any, sensors map[string]float64) (Delta, []string, error) {
	var d Delta
	var skipped []string
	for name, raw := range state {
		k := Key(name)
		if !k.IsKnown() {
			skipped = append(skipped, name)
			continue
		}
		v, err := FromInterface(raw)
		if err != nil {
			return Delta{}, nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		// Devices report booleans as 0/1 on some firmware revisions.
		if k.IsBoolean() && v.IsNumber() {
			v = Bool(v.AsBool())
		} else if !k.IsBoolean() && v.IsBool() {
			v = Number(v.AsFloat())
		}
		if d.State == nil {
			d.State = make(State)
		}
		d.State[k] = v
	}
	for name, reading := range sensors {
		s := Sensor(name)
		if !s.IsKnown() || s == SensorAQI {
			skipped = append(skipped, name)
			continue
		}
		if d.Sensors == nil {
			d.Sensors = make(Sensors)
		}
		d.Sensors[s] = reading
	}
	sort.Strings(skipped)
	return d, skipped, nil
}
