// Package queue is a small persistent job queue used for out-of-band
// pass-sync work. Jobs are durable rows; a redis list wakes workers so a
// retry does not wait for the next poll tick. The queue is deliberately not
// used for ledger mutations: those complete synchronously in the request.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypePassIssueRetry re-attempts pass issuance for a membership
	// whose initial Issue call failed.
	JobTypePassIssueRetry JobType = "pass_issue_retry"
	// JobTypePassForcePush re-sends all pass fields for a membership.
	JobTypePassForcePush JobType = "pass_force_push"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type" gorm:"type:varchar(50);not null;index"`
	Payload    json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Status     JobStatus       `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	// No column default: gorm would treat an explicit 0 as unset and
	// write the default instead. Enqueue always sets the value.
	MaxRetries int `json:"max_retries"`
	NextRetry  *time.Time      `json:"next_retry,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) error

// Queue is a durable job queue backed by the database, with an optional
// redis list as a wakeup channel.
type Queue struct {
	db       *gorm.DB
	redis    *redis.Client
	handlers map[JobType]JobHandler
	log      *logrus.Entry

	mu   sync.RWMutex
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a new queue. redisClient may be nil; the queue then runs
// on polling alone.
func NewQueue(db *gorm.DB, redisClient *redis.Client) *Queue {
	return &Queue{
		db:       db,
		redis:    redisClient,
		handlers: make(map[JobType]JobHandler),
		log:      logrus.WithField("component", "queue"),
		quit:     make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Enqueue persists a job and signals the workers
func (q *Queue) Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (uuid.UUID, error) {
	options := &EnqueueOptions{maxRetry: 5}
	for _, opt := range opts {
		opt(options)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error marshaling job payload: %w", err)
	}

	job := Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    data,
		Status:     JobStatusPending,
		MaxRetries: options.maxRetry,
	}
	if options.delay > 0 {
		t := time.Now().Add(options.delay)
		job.NextRetry = &t
	}

	if err := q.db.Create(&job).Error; err != nil {
		return uuid.Nil, fmt.Errorf("error persisting job: %w", err)
	}

	// Wakeup only; losing it is harmless, the poller will pick the row up.
	if q.redis != nil && options.delay == 0 {
		if err := q.redis.LPush(context.Background(), wakeupKey, job.ID.String()).Err(); err != nil {
			q.log.WithError(err).Warn("failed to signal workers via redis")
		}
	}

	return job.ID, nil
}

// Start launches the worker loop
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop stops the worker loop and waits for in-flight jobs
func (q *Queue) Stop() {
	close(q.quit)
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.quit:
			return
		default:
		}

		q.waitForWork(ticker.C)

		if err := q.ProcessPending(10); err != nil {
			q.log.WithError(err).Error("error processing pending jobs")
		}
	}
}

// waitForWork blocks until a wakeup signal, a poll tick, or shutdown. With
// redis it blocks briefly on the wakeup list, then falls through to a poll
// pass either way so delayed retries are not starved. When redis errors
// (unreachable, not just empty) it waits on the tick instead of spinning.
func (q *Queue) waitForWork(tick <-chan time.Time) {
	if q.redis != nil {
		err := q.redis.BRPop(context.Background(), 2*time.Second, wakeupKey).Err()
		if err == nil || errors.Is(err, redis.Nil) {
			return
		}
		q.log.WithError(err).Warn("redis wakeup unavailable, falling back to polling")
	}
	select {
	case <-q.quit:
	case <-tick:
	}
}

// ProcessPending claims and runs up to limit due jobs. Exposed so tests and
// the scheduled sweep can drive the queue without the worker loop.
func (q *Queue) ProcessPending(limit int) error {
	var jobs []Job
	now := time.Now()
	err := q.db.
		Where("status = ? AND (next_retry IS NULL OR next_retry <= ?)", JobStatusPending, now).
		Order("created_at asc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return fmt.Errorf("error fetching pending jobs: %w", err)
	}

	for _, job := range jobs {
		// Conditional claim so two workers cannot run the same job.
		res := q.db.Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, JobStatusPending).
			Update("status", JobStatusProcessing)
		if res.Error != nil {
			return fmt.Errorf("error claiming job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		q.runJob(job)
	}
	return nil
}

func (q *Queue) runJob(job Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		q.log.WithField("job_type", job.Type).Error("no handler registered for job type")
		q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status": JobStatusFailed,
			"error":  "no handler registered",
		})
		return
	}

	err := handler(context.Background(), job)
	if err == nil {
		q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status": JobStatusCompleted,
			"error":  "",
		})
		return
	}

	retryCount := job.RetryCount + 1
	if retryCount > job.MaxRetries {
		q.log.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"job_type": job.Type,
		}).WithError(err).Error("job exceeded max retries")
		q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":      JobStatusFailed,
			"retry_count": retryCount,
			"error":       err.Error(),
		})
		return
	}

	nextRetry := time.Now().Add(calculateBackoff(retryCount))
	q.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"job_type":   job.Type,
		"retry":      retryCount,
		"next_retry": nextRetry,
	}).WithError(err).Warn("job failed, scheduling retry")

	q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":      JobStatusPending,
		"retry_count": retryCount,
		"next_retry":  nextRetry,
		"error":       err.Error(),
	})
}
