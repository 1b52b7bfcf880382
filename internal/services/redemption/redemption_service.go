// Package redemption creates reward-claim records and manages their timed
// display window. The window is never an active timer: "is this still
// showing" is computed from stored timestamps at read time, and the stored
// status stays the historical truth.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service manages redemption records
type Service struct {
	db            *gorm.DB
	passSync      *passsync.Adapter
	displayWindow time.Duration
	log           *logrus.Entry
}

// NewService creates a new redemption service
func NewService(db *gorm.DB, passSync *passsync.Adapter, displayWindow time.Duration) *Service {
	return &Service{
		db:            db,
		passSync:      passSync,
		displayWindow: displayWindow,
		log:           logrus.WithField("component", "redemption"),
	}
}

// CreateWithTx records a redemption inside the ledger transaction that
// drained the balance. RewardDescription is snapshotted so history survives
// later program edits. DisplayExpiresAt is set once and never extended.
func (s *Service) CreateWithTx(tx *gorm.DB, program *models.LoyaltyProgram, membership *models.LoyaltyMembership, now time.Time) (*models.LoyaltyRedemption, error) {
	redemption := models.LoyaltyRedemption{
		MembershipID:      membership.ID,
		BusinessID:        program.BusinessID,
		UserWalletPassID:  membership.UserWalletPassID,
		RewardDescription: program.RewardDescription,
		Status:            models.RedemptionStatusRedeemed,
		ConsumedAt:        now,
		DisplayExpiresAt:  now.Add(s.displayWindow),
	}
	if err := tx.Create(&redemption).Error; err != nil {
		return nil, fmt.Errorf("error creating redemption: %w", err)
	}
	return &redemption, nil
}

// StatusResult is the UI-facing view of a redemption, recomputed on every
// read so a reconnecting client recovers the display state.
type StatusResult struct {
	Redemption    *models.LoyaltyRedemption `json:"redemption"`
	Status        string                    `json:"status"`
	IsActive      bool                      `json:"is_active"`
	TimeRemaining int64                     `json:"time_remaining_seconds"`
}

// GetStatus returns the derived display state for a visitor's redemption.
// Once the window elapses the reported status becomes expired_display
// without mutating the stored row.
func (s *Service) GetStatus(redemptionID uuid.UUID, walletPassID string) (*StatusResult, error) {
	var redemption models.LoyaltyRedemption
	if err := s.db.First(&redemption, "id = ?", redemptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("error finding redemption: %w", err)
	}
	if redemption.UserWalletPassID != walletPassID {
		return nil, loyalty.ErrRedemptionNotFound
	}

	now := time.Now()
	result := &StatusResult{
		Redemption: &redemption,
		Status:     string(redemption.Status),
		IsActive:   now.Before(redemption.DisplayExpiresAt),
	}
	if result.IsActive {
		result.TimeRemaining = int64(redemption.DisplayExpiresAt.Sub(now).Seconds())
	} else {
		result.Status = models.RedemptionDerivedExpired
		result.TimeRemaining = 0
	}
	return result, nil
}

// Flag records a redemption for manual review. It never reverses the
// balance decrement and never alters the stored status; only the owning
// business may flag its redemptions.
func (s *Service) Flag(redemptionID, businessID uuid.UUID, reason string) (*models.LoyaltyRedemption, error) {
	var redemption models.LoyaltyRedemption
	if err := s.db.First(&redemption, "id = ?", redemptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("error finding redemption: %w", err)
	}
	if redemption.BusinessID != businessID {
		return nil, loyalty.ErrRedemptionNotFound
	}

	now := time.Now()
	if err := s.db.Model(&redemption).Updates(map[string]interface{}{
		"flagged_at":     now,
		"flagged_reason": reason,
	}).Error; err != nil {
		return nil, fmt.Errorf("error flagging redemption: %w", err)
	}
	redemption.FlaggedAt = &now
	redemption.FlaggedReason = reason
	return &redemption, nil
}

// ListByBusiness returns a business's redemptions, flagged ones first,
// newest first within each group.
func (s *Service) ListByBusiness(businessID uuid.UUID, limit int) ([]models.LoyaltyRedemption, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var redemptions []models.LoyaltyRedemption
	err := s.db.
		Where("business_id = ?", businessID).
		Order("flagged_at IS NULL, consumed_at desc").
		Limit(limit).
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("error listing redemptions: %w", err)
	}
	return redemptions, nil
}

// ResetPassDisplay pushes the membership's live balance back onto the pass
// once the display window has elapsed, clearing the one-time "redeemed"
// message. Callers (the sweep, or a next-interaction check) schedule it;
// the manager never self-schedules.
func (s *Service) ResetPassDisplay(ctx context.Context, redemptionID uuid.UUID) error {
	var redemption models.LoyaltyRedemption
	if err := s.db.First(&redemption, "id = ?", redemptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loyalty.ErrRedemptionNotFound
		}
		return fmt.Errorf("error finding redemption: %w", err)
	}
	if time.Now().Before(redemption.DisplayExpiresAt) {
		return fmt.Errorf("%w: display window still open", loyalty.ErrInvalidState)
	}

	var membership models.LoyaltyMembership
	if err := s.db.First(&membership, "id = ?", redemption.MembershipID).Error; err != nil {
		return fmt.Errorf("error finding membership: %w", err)
	}
	var program models.LoyaltyProgram
	if err := s.db.First(&program, "id = ?", membership.ProgramID).Error; err != nil {
		return fmt.Errorf("error finding program: %w", err)
	}

	if err := s.passSync.SyncBalance(ctx, &program, &membership, ""); err != nil {
		return err
	}

	now := time.Now()
	if err := s.db.Model(&models.LoyaltyRedemption{}).
		Where("id = ?", redemption.ID).
		Update("pass_reset_at", now).Error; err != nil {
		return fmt.Errorf("error marking pass reset: %w", err)
	}
	return nil
}

// SweepExpiredDisplays resets passes for redemptions whose display window
// has elapsed and which have not been reset yet. Invoked from the scheduled
// job; push failures stay unswept and are retried on the next pass.
func (s *Service) SweepExpiredDisplays(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var due []models.LoyaltyRedemption
	err := s.db.
		Where("display_expires_at <= ? AND pass_reset_at IS NULL", time.Now()).
		Order("display_expires_at asc").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("error finding expired displays: %w", err)
	}

	reset := 0
	for _, r := range due {
		if err := s.ResetPassDisplay(ctx, r.ID); err != nil {
			s.log.WithField("redemption_id", r.ID).WithError(err).Warn("display reset failed, will retry")
			continue
		}
		reset++
	}
	return reset, nil
}
