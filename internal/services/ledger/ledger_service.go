// Package ledger owns membership balances. All balance mutations go through
// here as atomic conditional updates; the backing store is the sole
// coordination point, so concurrent earns and redeems across processes
// serialize on the membership row. Pass-sync pushes happen only after the
// ledger change is durable and never fail the mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/queue"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/cityperks/backend/internal/services/token"
	"github.com/cityperks/backend/internal/services/walletpush"
	"github.com/cityperks/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service is the membership ledger
type Service struct {
	db          *gorm.DB
	tokens      *token.Service
	redemptions *redemption.Service
	passSync    *passsync.Adapter
	jobs        *queue.Queue
	log         *logrus.Entry
}

// NewService creates a new ledger service. jobs may be nil; issuance
// failures are then only logged instead of queued for retry.
func NewService(db *gorm.DB, tokens *token.Service, redemptions *redemption.Service, passSync *passsync.Adapter, jobs *queue.Queue) *Service {
	return &Service{
		db:          db,
		tokens:      tokens,
		redemptions: redemptions,
		passSync:    passSync,
		jobs:        jobs,
		log:         logrus.WithField("component", "ledger"),
	}
}

// PassRetryPayload is the queue payload for a pass issuance retry
type PassRetryPayload struct {
	MembershipID uuid.UUID `json:"membership_id"`
}

// JoinResult is returned from Join; Pass carries the install links when
// issuance succeeded in-line.
type JoinResult struct {
	Membership *models.LoyaltyMembership      `json:"membership"`
	Created    bool                           `json:"created"`
	Pass       *walletpush.CreatePassResponse `json:"pass,omitempty"`
}

// EarnResult is returned from Earn
type EarnResult struct {
	Membership  *models.LoyaltyMembership `json:"membership"`
	Amount      int                       `json:"amount"`
	Balance     int                       `json:"balance"`
	RewardReady bool                      `json:"reward_ready"`
	// Crossed is true only for the earn that moved the balance over the
	// threshold; concurrent earns cannot both see it.
	Crossed bool `json:"crossed"`
}

// Join returns the visitor's membership, creating it with a zero balance on
// first contact, and kicks off pass issuance for new members. Safe under
// concurrent first-time joins.
func (s *Service) Join(publicID, walletPassID string) (*JoinResult, error) {
	program, err := s.activeProgram(publicID)
	if err != nil {
		return nil, err
	}

	membership, created, err := s.getOrCreate(program.ID, walletPassID)
	if err != nil {
		return nil, err
	}

	result := &JoinResult{Membership: membership, Created: created}
	if membership.WalletPushSerial == nil {
		resp, err := s.passSync.Issue(context.Background(), program, membership)
		if err != nil {
			s.issueFailed(membership.ID, err)
		} else {
			result.Pass = resp
		}
	}
	return result, nil
}

// Earn validates the counter token and atomically increments the balance.
// The increment and the crossing check run in one transaction against the
// locked membership row, so two concurrent earns cannot both observe a
// pre-crossing balance.
func (s *Service) Earn(publicID, walletPassID, counterToken string, amount int, source string) (*EarnResult, error) {
	program, err := s.activeProgram(publicID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Validate(program, counterToken, time.Now()); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: earn amount must be positive", loyalty.ErrInvalidState)
	}

	membership, _, err := s.getOrCreate(program.ID, walletPassID)
	if err != nil {
		return nil, err
	}

	column := models.BalanceColumn(program.Type)
	now := time.Now()
	var updated models.LoyaltyMembership

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Increment first: the UPDATE takes the row lock, and the read
		// back below sees our own write while holding it.
		res := tx.Model(&models.LoyaltyMembership{}).
			Where("id = ?", membership.ID).
			Updates(map[string]interface{}{
				column:           gorm.Expr(column+" + ?", amount),
				"last_active_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("error incrementing balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return loyalty.ErrMembershipNotFound
		}

		if err := tx.First(&updated, "id = ?", membership.ID).Error; err != nil {
			return fmt.Errorf("error reading balance back: %w", err)
		}

		event := models.LoyaltyEarnEvent{
			MembershipID: membership.ID,
			Amount:       amount,
			BalanceAfter: updated.Balance(program.Type),
			Source:       source,
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("error recording earn event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance := updated.Balance(program.Type)
	result := &EarnResult{
		Membership:  &updated,
		Amount:      amount,
		Balance:     balance,
		RewardReady: balance >= program.RewardThreshold,
		Crossed:     balance >= program.RewardThreshold && balance-amount < program.RewardThreshold,
	}

	// Ledger change is durable; a failed push only leaves the pass stale.
	if err := s.passSync.SyncBalance(context.Background(), program, &updated, ""); err != nil {
		s.log.WithField("membership_id", membership.ID).WithError(err).Warn("pass sync after earn failed")
	}
	return result, nil
}

// Redeem drains one reward's worth of balance and records the redemption in
// the same transaction. Points decrement by the threshold (banked remainder
// stays); stamps reset to zero. When two redeems race over a balance that
// clears the threshold once, the conditional update lets exactly one win;
// the loser sees ErrInsufficientBalance.
func (s *Service) Redeem(publicID, walletPassID string) (*models.LoyaltyRedemption, error) {
	program, err := s.activeProgram(publicID)
	if err != nil {
		return nil, err
	}

	membership, err := s.GetMembership(program.ID, walletPassID)
	if err != nil {
		return nil, err
	}

	column := models.BalanceColumn(program.Type)
	now := time.Now()
	var redeemed *models.LoyaltyRedemption
	var updated models.LoyaltyMembership

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var newBalance interface{}
		if program.Type == models.ProgramTypePoints {
			newBalance = gorm.Expr(column+" - ?", program.RewardThreshold)
		} else {
			newBalance = 0
		}

		res := tx.Model(&models.LoyaltyMembership{}).
			Where("id = ? AND "+column+" >= ?", membership.ID, program.RewardThreshold).
			Updates(map[string]interface{}{
				column:           newBalance,
				"last_active_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("error decrementing balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return loyalty.ErrInsufficientBalance
		}

		if err := tx.First(&updated, "id = ?", membership.ID).Error; err != nil {
			return fmt.Errorf("error reading balance back: %w", err)
		}

		var err error
		redeemed, err = s.redemptions.CreateWithTx(tx, program, &updated, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	message := "Reward redeemed!"
	if program.RewardDescription != "" {
		message = "Reward redeemed: " + program.RewardDescription
	}
	if err := s.passSync.SyncBalance(context.Background(), program, &updated, message); err != nil {
		s.log.WithField("membership_id", membership.ID).WithError(err).Warn("pass sync after redeem failed")
	}
	return redeemed, nil
}

// GetMembership returns the visitor's membership in a program
func (s *Service) GetMembership(programID uuid.UUID, walletPassID string) (*models.LoyaltyMembership, error) {
	var membership models.LoyaltyMembership
	err := s.db.
		Where("program_id = ? AND user_wallet_pass_id = ?", programID, walletPassID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("error finding membership: %w", err)
	}
	return &membership, nil
}

// ListMembers returns a program's memberships, most recently active first
func (s *Service) ListMembers(programID uuid.UUID, limit int) ([]models.LoyaltyMembership, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var members []models.LoyaltyMembership
	err := s.db.
		Where("program_id = ?", programID).
		Order("last_active_at desc").
		Limit(limit).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("error listing members: %w", err)
	}
	return members, nil
}

// activeProgram loads a program by public id and gates on active status:
// no ledger mutation is accepted otherwise.
func (s *Service) activeProgram(publicID string) (*models.LoyaltyProgram, error) {
	var program models.LoyaltyProgram
	if err := s.db.First(&program, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrProgramNotFound
		}
		return nil, fmt.Errorf("error finding program: %w", err)
	}
	if program.Status != models.ProgramStatusActive {
		return nil, loyalty.ErrProgramNotActive
	}
	return &program, nil
}

// getOrCreate returns the membership for (program, visitor), creating it
// with a zero balance on first contact. A concurrent insert losing the
// unique constraint is treated as "already exists" and re-fetched.
func (s *Service) getOrCreate(programID uuid.UUID, walletPassID string) (*models.LoyaltyMembership, bool, error) {
	membership, err := s.GetMembership(programID, walletPassID)
	if err == nil {
		return membership, false, nil
	}
	if !errors.Is(err, loyalty.ErrMembershipNotFound) {
		return nil, false, err
	}

	created := models.LoyaltyMembership{
		ProgramID:        programID,
		UserWalletPassID: walletPassID,
		Status:           models.MembershipStatusActive,
		LastActiveAt:     time.Now(),
	}
	if err := s.db.Create(&created).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			existing, ferr := s.GetMembership(programID, walletPassID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("error creating membership: %w", err)
	}
	return &created, true, nil
}

// issueFailed logs an issuance failure and queues a retry when a queue is
// wired. Join still succeeds; the pass will catch up.
func (s *Service) issueFailed(membershipID uuid.UUID, err error) {
	s.log.WithField("membership_id", membershipID).WithError(err).Warn("pass issuance failed, queueing retry")
	if s.jobs == nil {
		return
	}
	if _, qerr := s.jobs.Enqueue(queue.JobTypePassIssueRetry, PassRetryPayload{MembershipID: membershipID}, queue.WithDelay(30*time.Second)); qerr != nil {
		s.log.WithError(qerr).Error("failed to enqueue pass issuance retry")
	}
}
