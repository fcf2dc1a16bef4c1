// Package storage keeps a ledger of pipeline runs: what was processed, how
// long every stage took, how each run ended and the lensing scalars it
// produced.
package storage

import (
	"context"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is a ledger entry.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Event      string
	Detector   string
	Config     *string // Configuration as JSON
	Status     RunStatus
	Error      *string

	Outcome *Outcome       // nil until the lensing stage recorded one
	Stages  []StageTiming // Only populated by Store.Run
}

// StageTiming is the wall clock time spent in a pipeline stage.
type StageTiming struct {
	Stage     string
	StartedAt time.Time
	Elapsed   time.Duration
}

// Outcome holds the scalars of a lensed signal.
type Outcome struct {
	DelaySeconds    float64
	ShiftSamples    int
	Magnification   float64
	PrimaryScale    float64
	SecondaryScale  float64
	ShiftPolicy     string
	ConditionedPeak float64
	LensedPeak      float64
	Samples         int
	SampleRate      float64
}

// Store records pipeline runs.
type Store interface {
	// CreateRun starts a new run and returns its unique identifier. The config
	// can be a string, []byte or a JSON-serializable value, nil stores nothing.
	CreateRun(ctx context.Context, event, detector string, config any) (runID string, err error)

	// RecordStages saves stage timings of a run in a single transaction.
	RecordStages(ctx context.Context, runID string, stages []StageTiming) error

	// RecordOutcome saves the lensing outcome of a run, replacing an earlier one.
	RecordOutcome(ctx context.Context, runID string, o *Outcome) error

	// FinishRun marks the run succeeded when runErr is nil and failed otherwise.
	FinishRun(ctx context.Context, runID string, runErr error) error

	// Run returns a run with its stage timings.
	Run(ctx context.Context, id string) (*Run, error)

	// Runs returns the most recent runs first. A limit of zero or less returns all.
	Runs(ctx context.Context, limit int) ([]*Run, error)

	// Close releases database connections. It is safe to call more than once.
	Close() error
}
