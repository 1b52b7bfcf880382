package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cityperks/backend/internal/testutil"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobType JobType = "test_job"

func TestEnqueueAndProcess(t *testing.T) {
	db := testutil.OpenTestDB(t)
	q := NewQueue(db, nil)

	var got string
	q.RegisterHandler(testJobType, func(ctx context.Context, job Job) error {
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		got = payload.Name
		return nil
	})

	jobID, err := q.Enqueue(testJobType, map[string]string{"name": "hello"})
	require.NoError(t, err)

	require.NoError(t, q.ProcessPending(10))

	assert.Equal(t, "hello", got)
	var job Job
	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, JobStatusCompleted, job.Status)
}

func TestDelayedJobNotDue(t *testing.T) {
	db := testutil.OpenTestDB(t)
	q := NewQueue(db, nil)

	called := false
	q.RegisterHandler(testJobType, func(ctx context.Context, job Job) error {
		called = true
		return nil
	})

	jobID, err := q.Enqueue(testJobType, map[string]string{}, WithDelay(time.Hour))
	require.NoError(t, err)

	require.NoError(t, q.ProcessPending(10))

	assert.False(t, called)
	var job Job
	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, JobStatusPending, job.Status)
}

func TestFailingJobSchedulesRetry(t *testing.T) {
	db := testutil.OpenTestDB(t)
	q := NewQueue(db, nil)

	q.RegisterHandler(testJobType, func(ctx context.Context, job Job) error {
		return errors.New("transient failure")
	})

	jobID, err := q.Enqueue(testJobType, map[string]string{})
	require.NoError(t, err)
	require.NoError(t, q.ProcessPending(10))

	var job Job
	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "transient failure", job.Error)
	require.NotNil(t, job.NextRetry)
	assert.True(t, job.NextRetry.After(time.Now()))
}

func TestJobExceedsMaxRetries(t *testing.T) {
	db := testutil.OpenTestDB(t)
	q := NewQueue(db, nil)

	q.RegisterHandler(testJobType, func(ctx context.Context, job Job) error {
		return errors.New("permanent failure")
	})

	jobID, err := q.Enqueue(testJobType, map[string]string{}, WithMaxRetry(0))
	require.NoError(t, err)

	// An explicit zero must persist as zero, not a column default.
	var job Job
	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, 0, job.MaxRetries)

	require.NoError(t, q.ProcessPending(10))

	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "permanent failure", job.Error)
}

func TestWaitForWorkFallsBackWhenRedisDown(t *testing.T) {
	db := testutil.OpenTestDB(t)
	// Nothing listens on this port; BRPop errors immediately.
	q := NewQueue(db, redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}))

	tick := make(chan time.Time, 1)
	done := make(chan struct{})
	go func() {
		q.waitForWork(tick)
		close(done)
	}()

	// With redis erroring, the wait must block on the tick instead of
	// returning immediately and spinning the poll loop.
	select {
	case <-done:
		t.Fatal("waitForWork returned without a tick while redis is unreachable")
	case <-time.After(200 * time.Millisecond):
	}

	tick <- time.Now()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForWork did not wake on the poll tick")
	}
}

func TestUnknownJobTypeFails(t *testing.T) {
	db := testutil.OpenTestDB(t)
	q := NewQueue(db, nil)

	jobID, err := q.Enqueue(JobType("unregistered"), map[string]string{})
	require.NoError(t, err)
	require.NoError(t, q.ProcessPending(10))

	var job Job
	require.NoError(t, db.First(&job, "id = ?", jobID).Error)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "no handler registered", job.Error)
}

func TestCalculateBackoff(t *testing.T) {
	first := calculateBackoff(1)
	assert.GreaterOrEqual(t, first, 30*time.Second)
	assert.Less(t, first, 38*time.Second)

	second := calculateBackoff(2)
	assert.GreaterOrEqual(t, second, time.Minute)

	// The cap holds even with jitter on top.
	deep := calculateBackoff(20)
	assert.GreaterOrEqual(t, deep, time.Hour)
	assert.LessOrEqual(t, deep, 75*time.Minute)
}
