package ledger

import (
	"github.com/google/uuid"

	"github.com/dokzlo13/aird/internal/autocontrol"
	"github.com/dokzlo13/aird/internal/command"
)

// FromResult converts a resolved write into a ledger entry.
func FromResult(res command.Result) Entry {
	e := Entry{
		Type:      EntryCommandApplied,
		DeviceID:  res.DeviceID,
		Attribute: string(res.Key),
		Value:     res.Value.String(),
		Origin:    string(res.Origin),
		Reason:    res.Reason,
		Payload: map[string]any{
			"latency_ms": res.Latency.Milliseconds(),
		},
	}
	if res.TicketID != uuid.Nil {
		e.TicketID = res.TicketID.String()
	}
	switch {
	case res.Outcome == command.Applied:
		if len(res.Change.Keys) > 0 {
			keys := make([]string, len(res.Change.Keys))
			for i, k := range res.Change.Keys {
				keys[i] = string(k)
			}
			e.Payload["applied_keys"] = keys
		}
	case res.Err != nil:
		e.Type = EntryCommandFailed
	default:
		e.Type = EntryCommandRejected
	}
	return e
}

// FromAdjustment converts an automatic adjustment into a ledger entry.
func FromAdjustment(adj autocontrol.Adjustment) Entry {
	return Entry{
		Type:      EntryAutoAdjust,
		Timestamp: adj.At,
		DeviceID:  adj.DeviceID,
		Origin:    string(command.OriginAuto),
		Payload: map[string]any{
			"from":     adj.From,
			"to":       adj.To,
			"humidity": adj.Humidity,
			"setpoint": adj.Setpoint,
			"outcome":  adj.Outcome.String(),
		},
	}
}
