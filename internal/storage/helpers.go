package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

// toConfigData accepts a string, []byte or any JSON-serializable value
func toConfigData(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		p, err := json.Marshal(c)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toEntryData(e *spectrum.JournalEntry) *entryData {
	return &entryData{
		CycleID:   e.CycleID,
		Timestamp: e.Timestamp.UTC(),
		Kind:      string(e.Kind),
		State:     e.State,
		Band:      e.Band,
		Attempt:   e.Attempt,
		Severity:  e.Severity,
		Detail:    e.Detail,
	}
}

func (d *cycleData) toRecord() *spectrum.CycleRecord {
	r := spectrum.CycleRecord{
		ID:         d.ID,
		StartTime:  d.StartTime,
		DeviceType: d.DeviceType,
		Failed:     d.Failed,
	}
	if d.Config.Valid {
		r.Config = &d.Config.String
	}
	if d.StopTime.Valid {
		r.StopTime = &d.StopTime.Time
	}
	if d.StopReason.Valid {
		r.StopReason = &d.StopReason.String
	}
	return &r
}

func (d *entryData) toEntry() *spectrum.JournalEntry {
	return &spectrum.JournalEntry{
		ID:        d.ID,
		CycleID:   d.CycleID,
		Timestamp: d.Timestamp,
		Kind:      spectrum.EntryKind(d.Kind),
		State:     d.State,
		Band:      d.Band,
		Attempt:   d.Attempt,
		Severity:  d.Severity,
		Detail:    d.Detail,
	}
}

func scanCycle(row interface{ Scan(dest ...any) error }) (*cycleData, error) {
	var d cycleData
	if err := row.Scan(&d.ID, &d.StartTime, &d.DeviceType, &d.Config, &d.StopTime, &d.StopReason, &d.Failed); err != nil {
		return nil, err
	}
	return &d, nil
}
