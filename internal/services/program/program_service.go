// Package program owns LoyaltyProgram records and their lifecycle state
// machine, plus the activation (pass request) review workflow. Lifecycle
// transitions are conditional updates guarded on the current status, so
// concurrent transitions cannot both win.
package program

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/services/notify"
	"github.com/cityperks/backend/internal/services/token"
	"github.com/cityperks/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultRejectionReason is recorded when an admin rejects without one
const DefaultRejectionReason = "No reason provided"

// Service manages loyalty programs and pass requests
type Service struct {
	db       *gorm.DB
	notifier *notify.Service
	log      *logrus.Entry
}

// NewService creates a new program service
func NewService(db *gorm.DB, notifier *notify.Service) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		log:      logrus.WithField("component", "program"),
	}
}

// DraftInput holds the business-editable program fields
type DraftInput struct {
	BusinessName      string             `json:"business_name" binding:"required"`
	Type              models.ProgramType `json:"type"`
	RewardThreshold   int                `json:"reward_threshold" binding:"required"`
	RewardDescription string             `json:"reward_description" binding:"required"`
	StampLabel        string             `json:"stamp_label"`
	StampIcon         string             `json:"stamp_icon"`
	EarnInstructions  string             `json:"earn_instructions"`
	EarnMode          models.EarnMode    `json:"earn_mode"`
	BrandColor        string             `json:"brand_color"`
	BrandBackground   string             `json:"brand_background"`
	LogoURL           string             `json:"logo_url"`
	StripImageURL     string             `json:"strip_image_url"`
}

// ApprovalInput carries the issuing-service provisioning an admin supplies
// when activating a program.
type ApprovalInput struct {
	TemplateID string `json:"template_id" binding:"required"`
	APIKey     string `json:"api_key" binding:"required"`
	Endpoint   string `json:"endpoint"`
}

// CreateDraft creates a business's draft program. A business has at most
// one program; a second create conflicts.
func (s *Service) CreateDraft(businessID uuid.UUID, city string, input DraftInput) (*models.LoyaltyProgram, error) {
	if input.RewardThreshold <= 0 {
		return nil, fmt.Errorf("%w: reward threshold must be positive", loyalty.ErrInvalidState)
	}
	if input.Type == "" {
		input.Type = models.ProgramTypeStamps
	}
	if input.Type != models.ProgramTypeStamps && input.Type != models.ProgramTypePoints {
		return nil, fmt.Errorf("%w: unknown program type %q", loyalty.ErrInvalidState, input.Type)
	}

	publicID, err := utils.GeneratePublicID(input.BusinessName)
	if err != nil {
		return nil, err
	}

	prog := models.LoyaltyProgram{
		PublicID:          publicID,
		BusinessID:        businessID,
		City:              city,
		Type:              input.Type,
		RewardThreshold:   input.RewardThreshold,
		RewardDescription: input.RewardDescription,
		StampLabel:        input.StampLabel,
		StampIcon:         input.StampIcon,
		EarnInstructions:  input.EarnInstructions,
		EarnMode:          input.EarnMode,
		BrandColor:        input.BrandColor,
		BrandBackground:   input.BrandBackground,
		LogoURL:           input.LogoURL,
		StripImageURL:     input.StripImageURL,
		Status:            models.ProgramStatusDraft,
	}
	if prog.EarnMode == "" {
		prog.EarnMode = models.EarnModeCounterScan
	}

	if err := s.db.Create(&prog).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: business already has a program", loyalty.ErrConflictingRequest)
		}
		return nil, fmt.Errorf("error creating program: %w", err)
	}
	return &prog, nil
}

// GetByBusiness returns the business's program
func (s *Service) GetByBusiness(businessID uuid.UUID) (*models.LoyaltyProgram, error) {
	var prog models.LoyaltyProgram
	if err := s.db.First(&prog, "business_id = ?", businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrProgramNotFound
		}
		return nil, fmt.Errorf("error finding program: %w", err)
	}
	return &prog, nil
}

// GetByPublicID returns a program by its external-facing id
func (s *Service) GetByPublicID(publicID string) (*models.LoyaltyProgram, error) {
	var prog models.LoyaltyProgram
	if err := s.db.First(&prog, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrProgramNotFound
		}
		return nil, fmt.Errorf("error finding program: %w", err)
	}
	return &prog, nil
}

// UpdateDraft edits a program's reward definition and branding. Only legal
// while the program is in draft.
func (s *Service) UpdateDraft(businessID uuid.UUID, input DraftInput) (*models.LoyaltyProgram, error) {
	prog, err := s.GetByBusiness(businessID)
	if err != nil {
		return nil, err
	}
	if prog.Status != models.ProgramStatusDraft {
		return nil, fmt.Errorf("%w: program is %s, only drafts can be edited", loyalty.ErrInvalidState, prog.Status)
	}
	if input.RewardThreshold <= 0 {
		return nil, fmt.Errorf("%w: reward threshold must be positive", loyalty.ErrInvalidState)
	}

	updates := map[string]interface{}{
		"type":               input.Type,
		"reward_threshold":   input.RewardThreshold,
		"reward_description": input.RewardDescription,
		"stamp_label":        input.StampLabel,
		"stamp_icon":         input.StampIcon,
		"earn_instructions":  input.EarnInstructions,
		"earn_mode":          input.EarnMode,
		"brand_color":        input.BrandColor,
		"brand_background":   input.BrandBackground,
		"logo_url":           input.LogoURL,
		"strip_image_url":    input.StripImageURL,
	}
	if input.Type == "" {
		delete(updates, "type")
	}
	if input.EarnMode == "" {
		delete(updates, "earn_mode")
	}
	if err := s.db.Model(prog).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("error updating program: %w", err)
	}
	return s.GetByBusiness(businessID)
}

// Submit moves a draft to submitted and opens a pass request for admin
// review. The partial unique index on open requests makes a concurrent
// double-submit lose with a conflict.
func (s *Service) Submit(businessID uuid.UUID) (*models.LoyaltyPassRequest, error) {
	prog, err := s.GetByBusiness(businessID)
	if err != nil {
		return nil, err
	}
	if prog.Status != models.ProgramStatusDraft {
		return nil, fmt.Errorf("%w: program is %s, only drafts can be submitted", loyalty.ErrInvalidState, prog.Status)
	}

	request := models.LoyaltyPassRequest{
		ProgramID:  prog.ID,
		BusinessID: businessID,
		City:       prog.City,
		Status:     models.PassRequestStatusSubmitted,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			if utils.IsUniqueViolation(err) {
				return fmt.Errorf("%w: a request is already under review", loyalty.ErrConflictingRequest)
			}
			return fmt.Errorf("error creating pass request: %w", err)
		}
		res := tx.Model(&models.LoyaltyProgram{}).
			Where("id = ? AND status = ?", prog.ID, models.ProgramStatusDraft).
			Update("status", models.ProgramStatusSubmitted)
		if res.Error != nil {
			return fmt.Errorf("error submitting program: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: program left draft while submitting", loyalty.ErrConflictingRequest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListOpenRequests returns the submitted requests in an admin's city,
// oldest first.
func (s *Service) ListOpenRequests(city string) ([]models.LoyaltyPassRequest, error) {
	var requests []models.LoyaltyPassRequest
	err := s.db.
		Where("city = ? AND status = ?", city, models.PassRequestStatusSubmitted).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("error listing pass requests: %w", err)
	}
	return requests, nil
}

// Approve activates a submitted program. The admin must be assigned to the
// program's city, and supplies the issuing-service provisioning. The first
// activation also seeds the counter token.
func (s *Service) Approve(requestID, adminID uuid.UUID, adminCity string, input ApprovalInput) (*models.LoyaltyProgram, error) {
	request, prog, err := s.openRequest(requestID, adminCity)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	programUpdates := map[string]interface{}{
		"status":                  models.ProgramStatusActive,
		"wallet_push_template_id": input.TemplateID,
		"wallet_push_api_key":     input.APIKey,
		"wallet_push_endpoint":    input.Endpoint,
	}
	if prog.CounterQRToken == "" {
		tok, err := token.Generate()
		if err != nil {
			return nil, err
		}
		programUpdates["counter_qr_token"] = tok
		programUpdates["counter_qr_token_rotated_at"] = now
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.closeRequest(tx, request, models.PassRequestStatusApproved, "", adminID, now); err != nil {
			return err
		}
		res := tx.Model(&models.LoyaltyProgram{}).
			Where("id = ? AND status = ?", prog.ID, models.ProgramStatusSubmitted).
			Updates(programUpdates)
		if res.Error != nil {
			return fmt.Errorf("error activating program: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: program is no longer submitted", loyalty.ErrConflictingRequest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	go s.notifier.Send(notify.Event{
		Type:       notify.EventProgramApproved,
		BusinessID: prog.BusinessID,
		ProgramID:  prog.ID,
		City:       prog.City,
		Message:    "Your loyalty program has been approved and is now live.",
	})
	return s.GetByBusiness(prog.BusinessID)
}

// Reject closes a submitted request and returns the program to draft for
// revision. The reason defaults when omitted.
func (s *Service) Reject(requestID, adminID uuid.UUID, adminCity, reason string) (*models.LoyaltyPassRequest, error) {
	request, prog, err := s.openRequest(requestID, adminCity)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectionReason
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.closeRequest(tx, request, models.PassRequestStatusRejected, reason, adminID, now); err != nil {
			return err
		}
		res := tx.Model(&models.LoyaltyProgram{}).
			Where("id = ? AND status = ?", prog.ID, models.ProgramStatusSubmitted).
			Update("status", models.ProgramStatusDraft)
		if res.Error != nil {
			return fmt.Errorf("error returning program to draft: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: program is no longer submitted", loyalty.ErrConflictingRequest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	go s.notifier.Send(notify.Event{
		Type:       notify.EventProgramRejected,
		BusinessID: prog.BusinessID,
		ProgramID:  prog.ID,
		City:       prog.City,
		Message:    "Your loyalty program submission was rejected: " + reason,
	})

	request.Status = models.PassRequestStatusRejected
	request.RejectionReason = reason
	request.ReviewedByAdminID = &adminID
	request.ReviewedAt = &now
	return request, nil
}

// Pause suspends an active program. Ledger mutations stop immediately;
// memberships and history are untouched.
func (s *Service) Pause(businessID uuid.UUID) (*models.LoyaltyProgram, error) {
	prog, err := s.transition(businessID, models.ProgramStatusPaused, nil, models.ProgramStatusActive)
	if err != nil {
		return nil, err
	}
	go s.notifier.Send(notify.Event{
		Type:       notify.EventProgramPaused,
		BusinessID: prog.BusinessID,
		ProgramID:  prog.ID,
		City:       prog.City,
		Message:    "Your loyalty program is paused.",
	})
	return prog, nil
}

// Resume reactivates a paused program. Requires issuing credentials from a
// previous activation; a program that was never activated cannot resume.
func (s *Service) Resume(businessID uuid.UUID) (*models.LoyaltyProgram, error) {
	prog, err := s.GetByBusiness(businessID)
	if err != nil {
		return nil, err
	}
	if !prog.HasPassCredentials() {
		return nil, fmt.Errorf("%w: program was never activated", loyalty.ErrInvalidState)
	}
	prog, err = s.transition(businessID, models.ProgramStatusActive, nil, models.ProgramStatusPaused)
	if err != nil {
		return nil, err
	}
	go s.notifier.Send(notify.Event{
		Type:       notify.EventProgramResumed,
		BusinessID: prog.BusinessID,
		ProgramID:  prog.ID,
		City:       prog.City,
		Message:    "Your loyalty program is active again.",
	})
	return prog, nil
}

// End terminates a program. Terminal: nothing leaves ended. Memberships and
// redemption history are preserved; new earns/redeems/joins stop.
func (s *Service) End(businessID uuid.UUID) (*models.LoyaltyProgram, error) {
	now := time.Now()
	prog, err := s.transition(businessID, models.ProgramStatusEnded, map[string]interface{}{"ended_at": now},
		models.ProgramStatusActive, models.ProgramStatusPaused)
	if err != nil {
		return nil, err
	}
	go s.notifier.Send(notify.Event{
		Type:       notify.EventProgramEnded,
		BusinessID: prog.BusinessID,
		ProgramID:  prog.ID,
		City:       prog.City,
		Message:    "Your loyalty program has ended.",
	})
	return prog, nil
}

// transition performs a guarded status change for the business's program
func (s *Service) transition(businessID uuid.UUID, to models.ProgramStatus, extra map[string]interface{}, from ...models.ProgramStatus) (*models.LoyaltyProgram, error) {
	prog, err := s.GetByBusiness(businessID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.Model(&models.LoyaltyProgram{}).
		Where("id = ? AND status IN ?", prog.ID, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("error updating program status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: cannot move %s program to %s", loyalty.ErrInvalidState, prog.Status, to)
	}
	return s.GetByBusiness(businessID)
}

// openRequest loads a submitted request visible to the admin's city
func (s *Service) openRequest(requestID uuid.UUID, adminCity string) (*models.LoyaltyPassRequest, *models.LoyaltyProgram, error) {
	var request models.LoyaltyPassRequest
	if err := s.db.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, loyalty.ErrProgramNotFound
		}
		return nil, nil, fmt.Errorf("error finding pass request: %w", err)
	}
	if request.City != adminCity {
		// Cross-city requests are invisible, not forbidden.
		return nil, nil, loyalty.ErrProgramNotFound
	}
	if request.Status != models.PassRequestStatusSubmitted {
		return nil, nil, fmt.Errorf("%w: request already %s", loyalty.ErrInvalidState, request.Status)
	}

	var prog models.LoyaltyProgram
	if err := s.db.First(&prog, "id = ?", request.ProgramID).Error; err != nil {
		return nil, nil, fmt.Errorf("error finding program for request: %w", err)
	}
	return &request, &prog, nil
}

// closeRequest finalizes a submitted request inside a transaction
func (s *Service) closeRequest(tx *gorm.DB, request *models.LoyaltyPassRequest, status models.PassRequestStatus, reason string, adminID uuid.UUID, now time.Time) error {
	res := tx.Model(&models.LoyaltyPassRequest{}).
		Where("id = ? AND status = ?", request.ID, models.PassRequestStatusSubmitted).
		Updates(map[string]interface{}{
			"status":               status,
			"rejection_reason":     reason,
			"reviewed_by_admin_id": adminID,
			"reviewed_at":          now,
		})
	if res.Error != nil {
		return fmt.Errorf("error closing pass request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: request already reviewed", loyalty.ErrConflictingRequest)
	}
	return nil
}
