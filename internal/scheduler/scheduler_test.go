package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureJob struct {
	ctx    context.Context
	runs   int
	result error
}

func (j *captureJob) Run(ctx context.Context) error {
	j.ctx = ctx
	j.runs++
	return j.result
}

func (j *captureJob) Name() string { return "capture" }

func TestScheduler_RunNowPassesLifetimeContext(t *testing.T) {
	s := New(zerolog.Nop())
	job := &captureJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)
	require.NotNil(t, job.ctx)
	assert.NoError(t, job.ctx.Err())
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New(zerolog.Nop())
	job := &captureJob{}

	require.NoError(t, s.RunNow(job))
	s.Stop()

	assert.ErrorIs(t, job.ctx.Err(), context.Canceled)
}

func TestScheduler_RunNowSurfacesJobError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &captureJob{result: fmt.Errorf("sweep failed")}

	err := s.RunNow(job)
	assert.EqualError(t, err, "sweep failed")
}

func TestScheduler_AddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &captureJob{})
	assert.Error(t, err)

	assert.NoError(t, s.AddJob("@daily", &captureJob{}))
}
