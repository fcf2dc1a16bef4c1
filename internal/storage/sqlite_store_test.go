package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	clock := time.Date(2015, 9, 14, 9, 50, 45, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestCreateRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateRun(ctx, "GW150914", "H1", map[string]any{"einsteinRadius": 1.6})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	run, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "GW150914", run.Event)
	assert.Equal(t, "H1", run.Detector)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, time.Date(2015, 9, 14, 9, 50, 46, 0, time.UTC), run.StartedAt)
	assert.Nil(t, run.FinishedAt)
	assert.Nil(t, run.Error)
	assert.Nil(t, run.Outcome)
	assert.Empty(t, run.Stages)
	require.NotNil(t, run.Config)
	assert.JSONEq(t, `{"einsteinRadius":1.6}`, *run.Config)
}

func TestCreateRun_Config(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name   string
		config any
		want   *string
	}{
		{name: "nil", config: nil, want: nil},
		{name: "string", config: "event: GW150914", want: ptr("event: GW150914")},
		{name: "bytes", config: []byte(`{"a":1}`), want: ptr(`{"a":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.CreateRun(ctx, "GW150914", "L1", tt.config)
			require.NoError(t, err)

			run, err := s.Run(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, run.Config)
		})
	}

	_, err := s.CreateRun(ctx, "GW150914", "L1", func() {})
	assert.Error(t, err)
}

func TestRecordStagesAndOutcome(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateRun(ctx, "GW150914", "H1", nil)
	require.NoError(t, err)

	start := time.Date(2015, 9, 14, 10, 0, 0, 0, time.UTC)
	stages := []StageTiming{
		{Stage: "load", StartedAt: start, Elapsed: 1500 * time.Millisecond},
		{Stage: "condition", StartedAt: start.Add(2 * time.Second), Elapsed: 250 * time.Millisecond},
	}
	require.NoError(t, s.RecordStages(ctx, id, stages))
	require.NoError(t, s.RecordStages(ctx, id, nil))

	outcome := &Outcome{
		DelaySeconds:    1382400,
		ShiftSamples:    5662310400,
		Magnification:   1.64,
		PrimaryScale:    1.2806248474865698,
		SecondaryScale:  0.8,
		ShiftPolicy:     "circular",
		ConditionedPeak: 3.2,
		LensedPeak:      6.656,
		Samples:         98304,
		SampleRate:      4096,
	}
	require.NoError(t, s.RecordOutcome(ctx, id, outcome))
	assert.Error(t, s.RecordOutcome(ctx, id, nil))

	run, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stages, run.Stages)
	assert.Equal(t, outcome, run.Outcome)

	// a second outcome replaces the first
	outcome.ShiftPolicy = "truncate"
	require.NoError(t, s.RecordOutcome(ctx, id, outcome))
	run, err = s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "truncate", run.Outcome.ShiftPolicy)
}

func TestFinishRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.CreateRun(ctx, "GW150914", "H1", nil)
	require.NoError(t, err)
	failed, err := s.CreateRun(ctx, "GW170817", "L1", nil)
	require.NoError(t, err)

	require.NoError(t, s.FinishRun(ctx, ok, nil))
	require.NoError(t, s.FinishRun(ctx, failed, errors.New("load: strain not found")))

	run, err := s.Run(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Nil(t, run.Error)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.After(run.StartedAt))

	run, err = s.Run(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "load: strain not found", *run.Error)

	err = s.FinishRun(ctx, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []string
	for _, event := range []string{"GW150914", "GW151226", "GW170104"} {
		id, err := s.CreateRun(ctx, event, "H1", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.RecordOutcome(ctx, ids[1], &Outcome{Magnification: 1.64, ShiftPolicy: "circular"}))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "GW170104", runs[0].Event)
	assert.Equal(t, "GW150914", runs[2].Event)
	assert.Nil(t, runs[0].Outcome)
	require.NotNil(t, runs[1].Outcome)
	assert.Equal(t, 1.64, runs[1].Outcome.Magnification)

	runs, err = s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestRun_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateRun(ctx, "GW150914", "H1", nil)
	require.NoError(t, err)

	_, err = s.Run(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestClose(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func ptr[T any](v T) *T {
	return &v
}
