package storage

import (
	_ "embed"
)

const (
	insertCycleSQL = `
INSERT INTO cycles (id,
                    start_time,
                    device_type,
                    config)
VALUES (?, ?, ?, ?)`

	finishCycleSQL = `
UPDATE cycles
SET stop_time   = ?,
    stop_reason = ?,
    failed      = ?
WHERE id = ?
  AND stop_time IS NULL`

	selectCycleSQL = `
SELECT c.id,
       c.start_time,
       c.device_type,
       c.config,
       c.stop_time,
       c.stop_reason,
       c.failed
FROM cycles c
WHERE c.id = ?`

	selectCyclesSQL = `
SELECT c.id,
       c.start_time,
       c.device_type,
       c.config,
       c.stop_time,
       c.stop_reason,
       c.failed
FROM cycles c
ORDER BY c.start_time DESC
LIMIT ?`

	insertEntriesSQL = `
INSERT INTO entries (cycle_id,
                     timestamp,
                     kind,
                     state,
                     band,
                     attempt,
                     severity,
                     detail)
VALUES `

	selectEntriesSQL = `
SELECT e.id,
       e.cycle_id,
       e.timestamp,
       e.kind,
       e.state,
       e.band,
       e.attempt,
       e.severity,
       e.detail
FROM entries e
WHERE e.cycle_id = ?
ORDER BY e.id`
)

//go:embed schema.sql
var initSchemaSQL string

//go:embed indexes.sql
var initIndexesSQL string
