package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
	"github.com/roman-kulish/spectrum-streamer/internal/storage"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const (
	maxBatchSize  = 100
	flushInterval = 2 * time.Second

	// drainTimeout bounds how long the recorder waits for the final events
	// after its context is cancelled
	drainTimeout = 5 * time.Second
)

// CycleSource tells the recorder which device and configuration a cycle runs with
type CycleSource interface {
	LastCycle() (sweep.CycleInfo, bool)
	Device() string
}

// WithMaxBatchSize sets the maximum number of journal entries to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		r.maxBatchSize = size
	}
}

// WithFlushInterval sets how often pending journal entries are written
func WithFlushInterval(d time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		r.flushInterval = d
	}
}

// WithRecorderLogger sets the logger for the recorder
func WithRecorderLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder writes the journal of sweep cycles: it creates a cycle record when
// a cycle is first seen, appends every status transition and error, and
// closes the record when the cycle stops.
type Recorder struct {
	store  storage.Store
	source CycleSource
	logger *slog.Logger

	maxBatchSize  int
	flushInterval time.Duration

	pending []*spectrum.JournalEntry
	open    map[string]bool // cycle id → failed
}

// NewRecorder creates a new Recorder
func NewRecorder(store storage.Store, source CycleSource, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		source:        source,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
		open:          make(map[string]bool),
	}

	for _, option := range options {
		option(&r)
	}

	if r.maxBatchSize <= 0 {
		r.maxBatchSize = maxBatchSize
	}
	if r.flushInterval <= 0 {
		r.flushInterval = flushInterval
	}

	return &r
}

// Run records events until the channel is closed. After ctx is cancelled it
// keeps draining for a short while so the final Stopped status is recorded.
func (r *Recorder) Run(ctx context.Context, events <-chan sweep.Event) error {
	storeCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	var drain <-chan time.Time
	done := ctx.Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return r.flush(storeCtx)
			}
			r.record(storeCtx, ev)

		case <-ticker.C:
			if err := r.flush(storeCtx); err != nil {
				r.logger.Error(err.Error())
			}

		case <-done:
			done = nil
			drain = time.After(drainTimeout)

		case <-drain:
			r.logger.Warn("event stream did not close, journal may be incomplete")
			return r.flush(storeCtx)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev sweep.Event) {
	entry, ok := spectrum.EntryFromEvent(ev)
	if !ok || entry.CycleID == "" {
		return
	}

	if _, known := r.open[entry.CycleID]; !known {
		if err := r.createCycle(ctx, entry.CycleID, entry.Timestamp); err != nil {
			r.logger.Error(err.Error(), slog.String("cycle", entry.CycleID))
		}
		r.open[entry.CycleID] = false
	}

	r.pending = append(r.pending, &entry)

	se, ok := ev.(sweep.StatusEvent)
	if !ok {
		if len(r.pending) >= r.maxBatchSize {
			if err := r.flush(ctx); err != nil {
				r.logger.Error(err.Error())
			}
		}
		return
	}

	switch se.Status.State {
	case sdr.StateFailed:
		r.open[entry.CycleID] = true

	case sdr.StateStopped:
		if err := r.finishCycle(ctx, se.Status); err != nil {
			r.logger.Error(err.Error(), slog.String("cycle", entry.CycleID))
		}

	default:
		if len(r.pending) >= r.maxBatchSize {
			if err := r.flush(ctx); err != nil {
				r.logger.Error(err.Error())
			}
		}
	}
}

func (r *Recorder) createCycle(ctx context.Context, id string, startTime time.Time) error {
	var config any
	if info, ok := r.source.LastCycle(); ok && info.ID == id {
		config = info.Config
		startTime = info.StartedAt
	}

	if err := r.store.CreateCycle(ctx, id, r.source.Device(), startTime, config); err != nil {
		return fmt.Errorf("recording cycle start: %w", err)
	}

	r.logger.Debug(fmt.Sprintf("recording cycle %s", id))
	return nil
}

func (r *Recorder) finishCycle(ctx context.Context, status sdr.Status) error {
	failed := r.open[status.CycleID]
	delete(r.open, status.CycleID)

	flushErr := r.flush(ctx)

	err := r.store.FinishCycle(ctx, status.CycleID, status.Timestamp, status.Reason, failed)
	if err != nil {
		err = fmt.Errorf("recording cycle stop: %w", err)
	}

	return errors.Join(flushErr, err)
}

func (r *Recorder) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	pending := r.pending
	r.pending = nil

	for chunk := range slices.Chunk(pending, r.maxBatchSize) {
		if err := r.store.StoreEntries(ctx, chunk); err != nil {
			return fmt.Errorf("storing journal entries: %w", err)
		}
	}

	return nil
}
