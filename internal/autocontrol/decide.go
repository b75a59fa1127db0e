package autocontrol

import (
	"github.com/dokzlo13/aird/internal/device"
)

// Action is what the controller wants to do with the fan/mist level.
type Action int

const (
	ActionHold Action = iota
	ActionStepUp
	ActionStepDown
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionStepUp:
		return "step_up"
	case ActionStepDown:
		return "step_down"
	default:
		return "unknown"
	}
}

// Thresholds define the dead zone around the setpoint. Decrease must be
// wider than Increase so a reading hovering near one edge cannot make the
// level flap.
type Thresholds struct {
	Increase float64
	Decrease float64
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Action   Action
	Reason   string
	Humidity float64
	Setpoint float64
	From     int
	To       int
}

// Decide computes the next action from a snapshot. It applies the device
// guards (standby, night mode, firmware auto mode) but not the local enable
// switch or cooldowns, which belong to the Loop.
func Decide(snap device.Snapshot, model device.Model, th Thresholds) Decision {
	if !model.TracksHumidity() {
		return Decision{Reason: "model_without_setpoint"}
	}
	if snap.Bool(device.KeyStandby) {
		return Decision{Reason: "standby"}
	}
	if snap.Bool(device.KeyNightMode) {
		return Decision{Reason: "night_mode"}
	}
	if snap.Bool(device.KeyAutoMode) {
		return Decision{Reason: "device_auto_mode"}
	}

	target, ok := snap.Get(model.HumidityTarget)
	if !ok {
		return Decision{Reason: "no_setpoint"}
	}
	humidity, ok := snap.Reading(device.SensorHumidity)
	if !ok {
		return Decision{Reason: "no_humidity"}
	}
	level, ok := snap.Get(device.KeyFanSpeed)
	if !ok {
		return Decision{Reason: "no_fan_speed"}
	}

	d := Decision{
		Humidity: humidity,
		Setpoint: target.AsFloat(),
		From:     level.AsInt(),
		To:       level.AsInt(),
	}

	// Positive error means the room is drier than requested.
	diff := d.Setpoint - d.Humidity
	switch {
	case diff > th.Increase:
		d.To = model.ClampFanSpeed(d.From + 1)
		if d.To == d.From {
			d.Reason = "at_max_level"
			return d
		}
		d.Action = ActionStepUp
		d.Reason = "too_dry"
	case diff < -th.Decrease:
		d.To = model.ClampFanSpeed(d.From - 1)
		if d.To == d.From {
			d.Reason = "at_min_level"
			return d
		}
		d.Action = ActionStepDown
		d.Reason = "too_humid"
	default:
		d.Reason = "dead_zone"
	}
	return d
}
