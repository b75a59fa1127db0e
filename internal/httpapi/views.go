package httpapi

import (
	"github.com/dokzlo13/aird/internal/appliance"
	"github.com/dokzlo13/aird/internal/aqi"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
)

type controlView struct {
	Available bool `json:"available"`
	Enabled   bool `json:"enabled"`
}

type airQualityView struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
}

type inFlightView struct {
	Ticket string       `json:"ticket"`
	Key    device.Key   `json:"key"`
	Value  device.Value `json:"value"`
	Origin string       `json:"origin"`
}

type deviceView struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Model           string              `json:"model"`
	Cycles          uint64              `json:"cycles"`
	Capabilities    device.Capabilities `json:"capabilities"`
	State           device.State        `json:"state"`
	Sensors         device.Sensors      `json:"sensors"`
	AirQuality      *airQualityView     `json:"air_quality,omitempty"`
	Control         controlView         `json:"control"`
	InFlight        *inFlightView       `json:"in_flight,omitempty"`
	PendingControls []device.Key        `json:"pending_controls,omitempty"`
}

func viewOf(a *appliance.Appliance) deviceView {
	snap := a.Snapshot()
	v := deviceView{
		ID:              a.ID(),
		Name:            a.Name(),
		Model:           a.Model().Name,
		Cycles:          a.Cycles(),
		Capabilities:    a.Capabilities(),
		State:           snap.State,
		Sensors:         snap.Sensors,
		PendingControls: a.PendingControls(),
	}
	if idx, ok := snap.AQI(); ok {
		v.AirQuality = &airQualityView{Index: idx, Category: aqi.Category(idx)}
	}
	if loop := a.HumidityControl(); loop != nil {
		v.Control = controlView{Available: true, Enabled: loop.Enabled()}
	}
	if t := a.Commands().InFlight(); t != nil {
		v.InFlight = &inFlightView{
			Ticket: t.ID.String(),
			Key:    t.Key,
			Value:  t.Value,
			Origin: string(t.Origin),
		}
	}
	return v
}

type resultView struct {
	Ticket    string       `json:"ticket,omitempty"`
	Key       device.Key   `json:"key"`
	Value     device.Value `json:"value"`
	Outcome   string       `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	LatencyMS int64        `json:"latency_ms"`
}

func resultOf(res command.Result) resultView {
	v := resultView{
		Key:       res.Key,
		Value:     res.Value,
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason,
		LatencyMS: res.Latency.Milliseconds(),
	}
	if res.Outcome != command.Unchanged {
		v.Ticket = res.TicketID.String()
	}
	return v
}
