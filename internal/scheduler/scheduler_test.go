package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())

	failing := &countingJob{err: errors.New("boom")}
	assert.Error(t, s.RunNow(failing))
	assert.Equal(t, int32(1), failing.runs.Load())
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 100ms", job))

	s.Start()
	defer s.Stop()

	time.Sleep(350 * time.Millisecond)
	assert.GreaterOrEqual(t, job.runs.Load(), int32(2))
}

func TestScheduledJobFailureKeepsRunning(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{err: errors.New("boom")}
	require.NoError(t, s.AddJob("@every 100ms", job))

	s.Start()
	defer s.Stop()

	// Failures are logged, not fatal, the schedule keeps firing
	time.Sleep(350 * time.Millisecond)
	assert.GreaterOrEqual(t, job.runs.Load(), int32(2))
}
