package autocontrol

import (
	"testing"

	"github.com/dokzlo13/aird/internal/device"
)

var humidifier = device.Model{Name: "humidifier-v1", HumidityTarget: device.KeyTargetHumidity, MinFanSpeed: 1, MaxFanSpeed: 9}

var thresholds = Thresholds{Increase: 3, Decrease: 6}

// snapshot builds a humidifier view with the given humidity, setpoint and level.
func snapshot(humidity, setpoint float64, level int) device.Snapshot {
	return device.Snapshot{
		State: device.State{
			device.KeyStandby:        device.Bool(false),
			device.KeyNightMode:      device.Bool(false),
			device.KeyAutoMode:       device.Bool(false),
			device.KeyTargetHumidity: device.Number(setpoint),
			device.KeyFanSpeed:       device.Number(float64(level)),
		},
		Sensors: device.Sensors{device.SensorHumidity: humidity},
	}
}

func with(snap device.Snapshot, k device.Key, v device.Value) device.Snapshot {
	snap = snap.Clone()
	snap.State[k] = v
	return snap
}

func without(snap device.Snapshot, k device.Key) device.Snapshot {
	snap = snap.Clone()
	delete(snap.State, k)
	return snap
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		snap       device.Snapshot
		model      device.Model
		wantAction Action
		wantTo     int
		wantReason string
	}{
		// === Guards ===
		{
			name:       "guard/standby",
			snap:       with(snapshot(30, 50, 3), device.KeyStandby, device.Bool(true)),
			model:      humidifier,
			wantAction: ActionHold,
			wantReason: "standby",
		},
		{
			name:       "guard/night_mode",
			snap:       with(snapshot(30, 50, 3), device.KeyNightMode, device.Bool(true)),
			model:      humidifier,
			wantAction: ActionHold,
			wantReason: "night_mode",
		},
		{
			name:       "guard/device_auto_mode",
			snap:       with(snapshot(30, 50, 3), device.KeyAutoMode, device.Bool(true)),
			model:      humidifier,
			wantAction: ActionHold,
			wantReason: "device_auto_mode",
		},
		{
			name:       "guard/model_without_setpoint",
			snap:       snapshot(30, 50, 3),
			model:      device.Model{Name: "purifier-small", MinFanSpeed: 1, MaxFanSpeed: 4},
			wantAction: ActionHold,
			wantReason: "model_without_setpoint",
		},
		{
			name:       "guard/missing_setpoint",
			snap:       without(snapshot(30, 50, 3), device.KeyTargetHumidity),
			model:      humidifier,
			wantAction: ActionHold,
			wantReason: "no_setpoint",
		},
		{
			name:       "guard/missing_fan_speed",
			snap:       without(snapshot(30, 50, 3), device.KeyFanSpeed),
			model:      humidifier,
			wantAction: ActionHold,
			wantReason: "no_fan_speed",
		},

		// === Hysteresis ===
		{
			name:       "dead_zone/at_setpoint",
			snap:       snapshot(50, 50, 3),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     3,
			wantReason: "dead_zone",
		},
		{
			name:       "dead_zone/increase_edge",
			snap:       snapshot(47, 50, 3),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     3,
			wantReason: "dead_zone",
		},
		{
			name:       "dead_zone/decrease_edge",
			snap:       snapshot(56, 50, 3),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     3,
			wantReason: "dead_zone",
		},
		{
			name:       "dead_zone/humid_but_inside_wider_band",
			snap:       snapshot(54, 50, 3),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     3,
			wantReason: "dead_zone",
		},
		{
			name:       "step_up/too_dry",
			snap:       snapshot(46.5, 50, 3),
			model:      humidifier,
			wantAction: ActionStepUp,
			wantTo:     4,
			wantReason: "too_dry",
		},
		{
			name:       "step_up/far_too_dry_moves_one_level",
			snap:       snapshot(20, 50, 3),
			model:      humidifier,
			wantAction: ActionStepUp,
			wantTo:     4,
			wantReason: "too_dry",
		},
		{
			name:       "step_down/too_humid",
			snap:       snapshot(56.5, 50, 3),
			model:      humidifier,
			wantAction: ActionStepDown,
			wantTo:     2,
			wantReason: "too_humid",
		},
		{
			name:       "clamp/at_max",
			snap:       snapshot(20, 50, 9),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     9,
			wantReason: "at_max_level",
		},
		{
			name:       "clamp/at_min",
			snap:       snapshot(80, 50, 1),
			model:      humidifier,
			wantAction: ActionHold,
			wantTo:     1,
			wantReason: "at_min_level",
		},
		{
			name: "mist_target_model",
			snap: func() device.Snapshot {
				s := without(snapshot(30, 0, 2), device.KeyTargetHumidity)
				s.State[device.KeyMistTarget] = device.Number(45)
				return s
			}(),
			model:      device.Model{Name: "humidifier-warm", HumidityTarget: device.KeyMistTarget, MinFanSpeed: 1, MaxFanSpeed: 9},
			wantAction: ActionStepUp,
			wantTo:     3,
			wantReason: "too_dry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.snap, tt.model, thresholds)
			if got.Action != tt.wantAction {
				t.Errorf("Action = %v, want %v", got.Action, tt.wantAction)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if tt.wantAction != ActionHold || tt.wantTo != 0 {
				if got.To != tt.wantTo {
					t.Errorf("To = %d, want %d", got.To, tt.wantTo)
				}
			}
		})
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action   Action
		expected string
	}{
		{ActionHold, "hold"},
		{ActionStepUp, "step_up"},
		{ActionStepDown, "step_down"},
		{Action(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.action.String(); got != tt.expected {
				t.Errorf("Action.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
