package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/aird/internal/autocontrol"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/db"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/state"
)

func openLedger(t *testing.T) (*Ledger, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB), database
}

func TestLedger_AppendAndQuery(t *testing.T) {
	l, _ := openLedger(t)

	res := command.Result{
		TicketID: uuid.New(),
		DeviceID: "hum1",
		Key:      device.KeyNightMode,
		Value:    device.Bool(true),
		Origin:   command.OriginManual,
		Outcome:  command.Applied,
		Change:   state.Change{Keys: []device.Key{device.KeyBrightness, device.KeyNightMode}},
		Latency:  120 * time.Millisecond,
	}
	require.NoError(t, l.Append(FromResult(res)))
	// Same ticket twice is recorded once.
	require.NoError(t, l.Append(FromResult(res)))

	require.NoError(t, l.Append(FromAdjustment(autocontrol.Adjustment{
		DeviceID: "hum1", From: 2, To: 3, Humidity: 40, Setpoint: 50,
		Outcome: command.Applied, At: time.Now(),
	})))
	require.NoError(t, l.Append(FromResult(command.Result{
		TicketID: uuid.New(), DeviceID: "hum2", Key: device.KeyStandby,
		Value: device.Bool(false), Outcome: command.Rejected, Reason: "offline",
	})))

	entries, err := l.ByDevice("hum1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	applied, err := l.ByType(EntryCommandApplied, 10)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "night_mode", applied[0].Attribute)
	assert.Equal(t, "true", applied[0].Value)
	assert.Equal(t, res.TicketID.String(), applied[0].TicketID)
	assert.Equal(t, []any{"brightness", "night_mode"}, applied[0].Payload["applied_keys"])

	rejected, err := l.ByType(EntryCommandRejected, 10)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "offline", rejected[0].Reason)
}

func TestFromResult_Types(t *testing.T) {
	tests := []struct {
		name string
		res  command.Result
		want EntryType
	}{
		{"applied", command.Result{Outcome: command.Applied}, EntryCommandApplied},
		{"rejected", command.Result{Outcome: command.Rejected, Reason: "busy"}, EntryCommandRejected},
		{"failed", command.Result{Outcome: command.Rejected, Err: errors.New("timeout")}, EntryCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromResult(tt.res).Type; got != tt.want {
				t.Errorf("FromResult().Type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLedger_Retention(t *testing.T) {
	l, database := openLedger(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Append(Entry{Type: EntryAutoAdjust, DeviceID: "hum1", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, l.Append(Entry{Type: EntryAutoAdjust, DeviceID: "hum1", Timestamp: now.Add(-time.Hour)}))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.ByDevice("hum1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, database.Reset())
	entries, err = l.ByDevice("hum1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
