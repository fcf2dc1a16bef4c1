package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (data sql.NullString, err error) {
	switch v := config.(type) {
	case nil:
		return
	case string:
		data.String = v
	case []byte:
		data.String = string(v)
	default:
		var p []byte
		if p, err = json.Marshal(v); err != nil {
			return data, fmt.Errorf("marshaling config: %w", err)
		}
		data.String = string(p)
	}
	data.Valid = true
	return
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMilliseconds(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		config   sql.NullString
		status   string
		errMsg   sql.NullString

		delay, magnification, primary, secondary sql.NullFloat64
		conditionedPeak, lensedPeak, sampleRate  sql.NullFloat64
		shift, samples                           sql.NullInt64
		policy                                   sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&finished,
		&run.Event,
		&run.Detector,
		&config,
		&status,
		&errMsg,
		&delay,
		&shift,
		&magnification,
		&primary,
		&secondary,
		&policy,
		&conditionedPeak,
		&lensedPeak,
		&samples,
		&sampleRate,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		run.FinishedAt = &t
	}
	run.Config = nullStringPtr(config)
	run.Status = RunStatus(status)
	run.Error = nullStringPtr(errMsg)

	if delay.Valid {
		run.Outcome = &Outcome{
			DelaySeconds:    delay.Float64,
			ShiftSamples:    int(shift.Int64),
			Magnification:   magnification.Float64,
			PrimaryScale:    primary.Float64,
			SecondaryScale:  secondary.Float64,
			ShiftPolicy:     policy.String,
			ConditionedPeak: conditionedPeak.Float64,
			LensedPeak:      lensedPeak.Float64,
			Samples:         int(samples.Int64),
			SampleRate:      sampleRate.Float64,
		}
	}
	return &run, nil
}
