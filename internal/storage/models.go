package storage

import (
	"database/sql"
	"time"
)

type cycleData struct {
	ID         string
	StartTime  time.Time
	DeviceType string
	Config     sql.NullString
	StopTime   sql.NullTime
	StopReason sql.NullString
	Failed     bool
}

type entryData struct {
	ID        int64
	CycleID   string
	Timestamp time.Time
	Kind      string
	State     string
	Band      string
	Attempt   int
	Severity  string
	Detail    string
}
