package app

import (
	"fmt"
	"time"

	"github.com/dokzlo13/aird/internal/appliance"
	"github.com/dokzlo13/aird/internal/autocontrol"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/config"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/eventbus"
	"github.com/dokzlo13/aird/internal/state"
)

// newBinder builds appliances from config and forwards their command,
// adjustment and change notifications to the bus.
func newBinder(cfg *config.Config, sink command.Sink, bus *eventbus.Bus) appliance.Binder {
	settings := autocontrol.Settings{
		Interval: cfg.Control.Interval.Duration(),
		Thresholds: autocontrol.Thresholds{
			Increase: cfg.Control.IncreaseThreshold,
			Decrease: cfg.Control.DecreaseThreshold,
		},
		AdjustCooldown: cfg.Control.AdjustCooldown.Duration(),
		ManualCooldown: cfg.Control.ManualCooldown.Duration(),
	}

	return func(id string, initial device.Snapshot) (*appliance.Appliance, error) {
		dc, ok := cfg.Device(id)
		if !ok {
			return nil, fmt.Errorf("device %s is not configured", id)
		}
		model, err := device.LookupModel(dc.Model)
		if err != nil {
			return nil, err
		}

		a := appliance.New(dc.ID, dc.Name, model, initial, appliance.Options{
			Sink:           sink,
			DebounceWindow: cfg.Debounce.Window.Duration(),
			CommandTimeout: cfg.Cloud.CommandTimeout.Duration(),
			Control:        settings,
			ControlEnabled: cfg.Control.Enabled,
			CommandObservers: []command.Observer{func(res command.Result) {
				bus.Publish(eventbus.Event{
					Type:     eventbus.EventCommand,
					DeviceID: res.DeviceID,
					At:       time.Now(),
					Payload:  res,
				})
			}},
			AdjustObservers: []func(autocontrol.Adjustment){func(adj autocontrol.Adjustment) {
				bus.Publish(eventbus.Event{
					Type:     eventbus.EventAutoAdjust,
					DeviceID: adj.DeviceID,
					At:       adj.At,
					Payload:  adj,
				})
			}},
		})

		// Publish never blocks, so it is safe under the appliance lock.
		a.Subscribe(func(change state.Change) {
			bus.Publish(eventbus.Event{
				Type:     eventbus.EventStateChanged,
				DeviceID: change.DeviceID,
				At:       change.At,
				Payload:  change,
			})
		})
		return a, nil
	}
}
