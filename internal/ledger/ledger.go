// Package ledger keeps an append-only audit of attribute writes and
// automatic adjustments.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EntryType represents the type of entry in the ledger
type EntryType string

const (
	EntryCommandApplied  EntryType = "command_applied"
	EntryCommandRejected EntryType = "command_rejected"
	EntryCommandFailed   EntryType = "command_failed"
	EntryAutoAdjust      EntryType = "auto_adjust"
)

// Entry represents a single row in the ledger
type Entry struct {
	ID        int64
	Type      EntryType
	Timestamp time.Time
	DeviceID  string
	Attribute string
	Value     string
	Origin    string
	TicketID  string
	Reason    string
	Payload   map[string]any
}

// Ledger provides append-only command logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds an entry. Timestamp defaults to now. A second entry for an
// already recorded ticket is ignored.
func (l *Ledger) Append(e Entry) error {
	var payloadJSON []byte
	if e.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err := l.db.Exec(`
		INSERT OR IGNORE INTO command_ledger
			(entry_type, timestamp, device_id, attribute, value, origin, ticket_id, reason, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.Type), ts.UTC().UnixMilli(), e.DeviceID, e.Attribute, e.Value, e.Origin,
		nullable(e.TicketID), e.Reason, nullable(string(payloadJSON)))
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectColumns = `SELECT id, entry_type, timestamp, device_id, attribute, value, origin, ticket_id, reason, payload FROM command_ledger`

// ByDevice returns the most recent entries for a device, newest first.
func (l *Ledger) ByDevice(deviceID string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(selectColumns+`
		WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByType returns entries filtered by type, newest first.
func (l *Ledger) ByType(entryType EntryType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(selectColumns+`
		WHERE entry_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(entryType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM command_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var attribute, value, origin, ticketID, reason, payload sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.Type, &timestamp, &entry.DeviceID,
			&attribute, &value, &origin, &ticketID, &reason, &payload,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Attribute = attribute.String
		entry.Value = value.String
		entry.Origin = origin.String
		entry.TicketID = ticketID.String
		entry.Reason = reason.String

		if payload.Valid && payload.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
