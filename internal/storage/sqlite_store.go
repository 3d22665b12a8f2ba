package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
)

// entriesPerInsert keeps a batch insert below the SQLite bound variables limit
const entriesPerInsert = 100

// DefaultCyclesLimit is the number of cycles returned by Cycles when no limit is given
const DefaultCyclesLimit = 100

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("storage: not found")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new journal store backed by the Sqlite database
// at dbPath. Connections are opened lazily on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		if err = runSQLCommand(db, initIndexesSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing indexes: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// The schema must exist before a read-only connection can query it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateCycle(ctx context.Context, id, deviceType string, startTime time.Time, config any) (err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertCycleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, id, startTime.UTC(), deviceType, configData); err != nil {
		return fmt.Errorf("inserting cycle: %w", err)
	}
	return
}

func (s *SqliteStore) FinishCycle(ctx context.Context, id string, stopTime time.Time, reason string, failed bool) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, finishCycleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	stopReason := sql.NullString{String: reason, Valid: reason != ""}

	result, err := stmt.ExecContext(ctx, stopTime.UTC(), stopReason, failed, id)
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing cycle %s: %w", id, ErrNotFound)
	}
	return
}

func (s *SqliteStore) Cycle(ctx context.Context, id string) (cycle *spectrum.CycleRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectCycleSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data, err := scanCycle(stmt.QueryRowContext(ctx, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("scanning cycle: %w", err)
	}

	return data.toRecord(), nil
}

// Cycles returns up to limit most recent cycles, newest first
func (s *SqliteStore) Cycles(ctx context.Context, limit int) (cycles []*spectrum.CycleRecord, err error) {
	if limit <= 0 {
		limit = DefaultCyclesLimit
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectCyclesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data *cycleData
		if data, err = scanCycle(rows); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		cycles = append(cycles, data.toRecord())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycles: %w", err)
	}
	return
}

// StoreEntries saves journal entries in a single transaction
func (s *SqliteStore) StoreEntries(ctx context.Context, entries []*spectrum.JournalEntry) (err error) {
	if len(entries) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?)"

	for chunk := range slices.Chunk(entries, entriesPerInsert) {
		values := make([]any, 0, len(chunk)*8)

		var sb strings.Builder
		sb.WriteString(insertEntriesSQL)

		for i, entry := range chunk {
			data := toEntryData(entry)
			values = append(values,
				data.CycleID,
				data.Timestamp,
				data.Kind,
				data.State,
				data.Band,
				data.Attempt,
				data.Severity,
				data.Detail,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting entries: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Entries returns the journal of a cycle in the order it was stored
func (s *SqliteStore) Entries(ctx context.Context, cycleID string) (entries []*spectrum.JournalEntry, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectEntriesSQL, cycleID)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data entryData
		if err = rows.Scan(
			&data.ID,
			&data.CycleID,
			&data.Timestamp,
			&data.Kind,
			&data.State,
			&data.Band,
			&data.Attempt,
			&data.Severity,
			&data.Detail,
		); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, data.toEntry())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
