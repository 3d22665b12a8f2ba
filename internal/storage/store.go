package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
)

// Store keeps the journal of sweep cycles: when each cycle ran, on what
// device, with which configuration, and every status transition and error
// it went through. Spectrum samples are not stored.
type Store interface {
	// CreateCycle records the start of a cycle.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Cycle identifier as reported in status events
	//   - deviceType: Type of SDR device (e.g., "HackRF", "RTL-SDR")
	//   - startTime: When the cycle began
	//   - config: Optional cycle configuration. Can be string, []byte, or JSON-serializable object
	CreateCycle(ctx context.Context, id, deviceType string, startTime time.Time, config any) error

	// FinishCycle records the end of a running cycle. It returns ErrNotFound
	// when no running cycle has the given id.
	FinishCycle(ctx context.Context, id string, stopTime time.Time, reason string, failed bool) error

	// Cycle retrieves a cycle by its id, or ErrNotFound.
	Cycle(ctx context.Context, id string) (*spectrum.CycleRecord, error)

	// Cycles returns up to limit most recent cycles, newest first.
	// A non-positive limit selects DefaultCyclesLimit.
	Cycles(ctx context.Context, limit int) ([]*spectrum.CycleRecord, error)

	// StoreEntries saves journal entries. All entries are stored in a single
	// atomic transaction.
	StoreEntries(ctx context.Context, entries []*spectrum.JournalEntry) error

	// Entries returns the journal of a cycle in the order it was stored.
	Entries(ctx context.Context, cycleID string) ([]*spectrum.JournalEntry, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
