// Package notify posts best-effort outbound messages to the platform's
// notification channel on program lifecycle changes. Failures are logged
// and swallowed; they never affect the operation that emitted the event.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types emitted by the program store
const (
	EventProgramPaused   = "loyalty.program.paused"
	EventProgramResumed  = "loyalty.program.resumed"
	EventProgramEnded    = "loyalty.program.ended"
	EventProgramApproved = "loyalty.program.approved"
	EventProgramRejected = "loyalty.program.rejected"
)

// Event is one outbound notification
type Event struct {
	Type       string    `json:"type"`
	BusinessID uuid.UUID `json:"business_id"`
	ProgramID  uuid.UUID `json:"program_id"`
	City       string    `json:"city"`
	Message    string    `json:"message,omitempty"`
}

// Service sends events to a webhook URL
type Service struct {
	webhookURL string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewService creates a new notification service. An empty webhookURL
// disables sending; events are then only logged.
func NewService(webhookURL string, timeout time.Duration) *Service {
	return &Service{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        logrus.WithField("component", "notify"),
	}
}

// Send delivers one event. It never returns an error: delivery problems are
// logged and dropped so the caller's primary operation is unaffected.
func (s *Service) Send(event Event) {
	if s.webhookURL == "" {
		s.log.WithField("event", event.Type).Debug("notification channel not configured, event dropped")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal notification event")
		return
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.log.WithField("event", event.Type).WithError(err).Warn("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.WithFields(logrus.Fields{
			"event":  event.Type,
			"status": resp.StatusCode,
		}).Warn("notification channel rejected event")
	}
}
