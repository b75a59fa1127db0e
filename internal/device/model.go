package device

import (
	"fmt"
	"sort"
)

// Model describes the per-generation attribute layout of an appliance.
type Model struct {
	Name string

	// HumidityTarget is the attribute holding the humidity setpoint,
	// empty when the model cannot track humidity.
	HumidityTarget Key

	// MinFanSpeed and MaxFanSpeed bound the discrete fan/mist level.
	MinFanSpeed int
	MaxFanSpeed int
}

// TracksHumidity reports whether the model exposes a humidity setpoint.
func (m Model) TracksHumidity() bool {
	return m.HumidityTarget != ""
}

// ClampFanSpeed limits level to the model's fan speed range.
func (m Model) ClampFanSpeed(level int) int {
	if level < m.MinFanSpeed {
		return m.MinFanSpeed
	}
	if level > m.MaxFanSpeed {
		return m.MaxFanSpeed
	}
	return level
}

// models is keyed by generation id.
var models = map[string]Model{
	"humidifier-v1":      {Name: "humidifier-v1", HumidityTarget: KeyTargetHumidity, MinFanSpeed: 1, MaxFanSpeed: 9},
	"humidifier-v2":      {Name: "humidifier-v2", HumidityTarget: KeyTargetHumidity, MinFanSpeed: 1, MaxFanSpeed: 9},
	"humidifier-compact": {Name: "humidifier-compact", HumidityTarget: KeyTargetHumidity, MinFanSpeed: 1, MaxFanSpeed: 2},
	"humidifier-warm":    {Name: "humidifier-warm", HumidityTarget: KeyMistTarget, MinFanSpeed: 1, MaxFanSpeed: 9},
	"purifier-small":     {Name: "purifier-small", MinFanSpeed: 1, MaxFanSpeed: 4},
	"purifier-medium":    {Name: "purifier-medium", MinFanSpeed: 1, MaxFanSpeed: 4},
	"purifier-large":     {Name: "purifier-large", MinFanSpeed: 1, MaxFanSpeed: 4},
}

// LookupModel returns the schema registered under name.
func LookupModel(name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown device model %q", name)
	}
	return m, nil
}

// ModelNames lists the registered models, sorted.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
