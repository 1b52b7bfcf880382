// Package jobs wires the queue handlers and the recurring sweeps. The
// sweeps are collaborators of the redemption manager and pass sync adapter,
// not schedulers inside them: windows stay lazily evaluated at read time
// and the sweep just visits what has already elapsed.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cityperks/backend/internal/queue"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid membership id %q: %w", s, err)
	}
	return id, nil
}

// RegisterPassSyncHandlers registers the queue handlers for pass work
func RegisterPassSyncHandlers(q *queue.Queue, adapter *passsync.Adapter) {
	q.RegisterHandler(queue.JobTypePassIssueRetry, func(ctx context.Context, job queue.Job) error {
		var payload struct {
			MembershipID string `json:"membership_id"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("error decoding pass retry payload: %w", err)
		}
		id, err := parseUUID(payload.MembershipID)
		if err != nil {
			return err
		}
		return adapter.Retry(ctx, id)
	})

	q.RegisterHandler(queue.JobTypePassForcePush, func(ctx context.Context, job queue.Job) error {
		var payload struct {
			MembershipID string `json:"membership_id"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("error decoding force push payload: %w", err)
		}
		id, err := parseUUID(payload.MembershipID)
		if err != nil {
			return err
		}
		return adapter.ForcePush(ctx, id)
	})
}

// ScheduleSweeps starts the recurring display-reset sweep. Returns the
// scheduler so the caller owns its lifecycle.
func ScheduleSweeps(redemptions *redemption.Service) (*gocron.Scheduler, error) {
	log := logrus.WithField("component", "jobs")
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(1).Minute().Do(func() {
		reset, err := redemptions.SweepExpiredDisplays(context.Background(), 50)
		if err != nil {
			log.WithError(err).Error("display reset sweep failed")
			return
		}
		if reset > 0 {
			log.WithField("reset", reset).Info("display reset sweep completed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("error scheduling display reset sweep: %w", err)
	}

	scheduler.StartAsync()
	return scheduler, nil
}
