package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  event,
                  detector,
                  config,
                  status)
VALUES (?, ?, ?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET finished_at = ?,
    status      = ?,
    error       = ?
WHERE id = ?`

	insertStageSQL = `
INSERT INTO stages (run_id,
                    stage,
                    started_at,
                    elapsed_ms)
VALUES `

	insertOutcomeSQL = `
INSERT OR REPLACE INTO outcomes (run_id,
                                 delay_seconds,
                                 shift_samples,
                                 magnification,
                                 primary_scale,
                                 secondary_scale,
                                 shift_policy,
                                 conditioned_peak,
                                 lensed_peak,
                                 samples,
                                 sample_rate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunColumns = `
SELECT r.id,
       r.started_at,
       r.finished_at,
       r.event,
       r.detector,
       r.config,
       r.status,
       r.error,
       o.delay_seconds,
       o.shift_samples,
       o.magnification,
       o.primary_scale,
       o.secondary_scale,
       o.shift_policy,
       o.conditioned_peak,
       o.lensed_peak,
       o.samples,
       o.sample_rate
FROM runs r
         LEFT JOIN outcomes o ON o.run_id = r.id`

	selectRunSQL = selectRunColumns + `
WHERE r.id = ?`

	selectRunsSQL = selectRunColumns + `
ORDER BY r.started_at DESC
LIMIT ?`

	selectStagesSQL = `
SELECT stage,
       started_at,
       elapsed_ms
FROM stages
WHERE run_id = ?
ORDER BY id`
)
