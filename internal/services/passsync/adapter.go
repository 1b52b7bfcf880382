// Package passsync translates ledger state into pass field values and
// pushes them to the issuing service. Calls are fire-and-forget relative to
// the ledger transaction that triggered them: the ledger is committed first
// and a failed push only leaves the pass temporarily stale.
package passsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/services/walletpush"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Pass field names on the issuing-service template
const (
	FieldBalance = "balance"
	FieldStatus  = "status"
	FieldReward  = "reward"
	FieldMessage = "message"
)

// PassClient is the slice of the issuing-service client the adapter uses
type PassClient interface {
	CreatePass(ctx context.Context, creds walletpush.Credentials, req walletpush.CreatePassRequest) (*walletpush.CreatePassResponse, error)
	UpdateField(ctx context.Context, creds walletpush.Credentials, serial, field, value string, push bool) error
}

// Field is one pass field value in push order
type Field struct {
	Name  string
	Value string
}

// Adapter computes and pushes pass field values
type Adapter struct {
	db     *gorm.DB
	client PassClient
	log    *logrus.Entry
}

// NewAdapter creates a new pass sync adapter
func NewAdapter(db *gorm.DB, client PassClient) *Adapter {
	return &Adapter{
		db:     db,
		client: client,
		log:    logrus.WithField("component", "passsync"),
	}
}

func credentials(program *models.LoyaltyProgram) walletpush.Credentials {
	return walletpush.Credentials{
		APIKey:     program.WalletPushAPIKey,
		TemplateID: program.WalletPushTemplateID,
		Endpoint:   program.WalletPushEndpoint,
	}
}

// FieldValues computes the display fields for a membership's current state.
// message is the optional one-time status line ("Reward redeemed!"); empty
// means the live status for the balance.
func FieldValues(program *models.LoyaltyProgram, membership *models.LoyaltyMembership, message string) []Field {
	balance := membership.Balance(program.Type)

	var balanceText string
	if program.Type == models.ProgramTypePoints {
		balanceText = fmt.Sprintf("%d pts", balance)
	} else {
		balanceText = fmt.Sprintf("%d of %d", balance, program.RewardThreshold)
	}

	status := message
	if status == "" {
		if balance >= program.RewardThreshold {
			status = "Reward ready to redeem!"
		} else {
			remaining := program.RewardThreshold - balance
			label := program.StampLabel
			if label == "" {
				if program.Type == models.ProgramTypePoints {
					label = "points"
				} else {
					label = "stamps"
				}
			}
			status = fmt.Sprintf("%d %s to go", remaining, label)
		}
	}

	return []Field{
		{Name: FieldBalance, Value: balanceText},
		{Name: FieldReward, Value: program.RewardDescription},
		{Name: FieldStatus, Value: status},
	}
}

// Issue creates the visitor's pass and stores the returned serial on the
// membership. A membership that already has a serial is a no-op success so
// a repeated call can never mint a duplicate pass.
func (a *Adapter) Issue(ctx context.Context, program *models.LoyaltyProgram, membership *models.LoyaltyMembership) (*walletpush.CreatePassResponse, error) {
	if membership.WalletPushSerial != nil {
		return &walletpush.CreatePassResponse{SerialNumber: *membership.WalletPushSerial}, nil
	}
	if !program.HasPassCredentials() {
		return nil, fmt.Errorf("%w: program has no issuing credentials", loyalty.ErrExternalService)
	}

	fields := make(map[string]string)
	for _, f := range FieldValues(program, membership, "") {
		fields[f.Name] = f.Value
	}

	resp, err := a.client.CreatePass(ctx, credentials(program), walletpush.CreatePassRequest{
		UserRef: membership.UserWalletPassID,
		Fields:  fields,
	})
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"membership_id": membership.ID,
			"program_id":    program.ID,
		}).WithError(err).Error("pass issuance failed")
		return nil, fmt.Errorf("%w: %v", loyalty.ErrExternalService, err)
	}

	serial := resp.SerialNumber
	if err := a.db.Model(&models.LoyaltyMembership{}).
		Where("id = ?", membership.ID).
		Update("wallet_push_serial", serial).Error; err != nil {
		return nil, fmt.Errorf("error storing pass serial: %w", err)
	}
	membership.WalletPushSerial = &serial
	return resp, nil
}

// UpdateField writes one pass field. notify triggers the device push;
// batched writers pass notify only on the last field.
func (a *Adapter) UpdateField(ctx context.Context, program *models.LoyaltyProgram, serial, field, value string, notify bool) error {
	if err := a.client.UpdateField(ctx, credentials(program), serial, field, value, notify); err != nil {
		return fmt.Errorf("%w: %v", loyalty.ErrExternalService, err)
	}
	return nil
}

// SyncBalance pushes the membership's current field values with exactly one
// trailing device notification. A membership with no issued pass is a
// skipped success.
func (a *Adapter) SyncBalance(ctx context.Context, program *models.LoyaltyProgram, membership *models.LoyaltyMembership, message string) error {
	if membership.WalletPushSerial == nil {
		a.log.WithField("membership_id", membership.ID).Debug("no pass serial, sync skipped")
		return nil
	}
	serial := *membership.WalletPushSerial

	fields := FieldValues(program, membership, message)
	for i, f := range fields {
		notify := i == len(fields)-1
		if err := a.UpdateField(ctx, program, serial, f.Name, f.Value, notify); err != nil {
			a.log.WithFields(logrus.Fields{
				"membership_id": membership.ID,
				"field":         f.Name,
			}).WithError(err).Error("pass field update failed")
			return err
		}
	}
	return nil
}

// ForcePush re-sends all current field values for a membership; used to
// repair drift after template or balance inconsistencies.
func (a *Adapter) ForcePush(ctx context.Context, membershipID uuid.UUID) error {
	membership, program, err := a.load(membershipID)
	if err != nil {
		return err
	}
	return a.SyncBalance(ctx, program, membership, "")
}

// Retry re-attempts Issue for a membership whose pass creation previously
// failed. A membership that already has a serial is a no-op success.
func (a *Adapter) Retry(ctx context.Context, membershipID uuid.UUID) error {
	membership, program, err := a.load(membershipID)
	if err != nil {
		return err
	}
	if membership.WalletPushSerial != nil {
		return nil
	}
	_, err = a.Issue(ctx, program, membership)
	return err
}

func (a *Adapter) load(membershipID uuid.UUID) (*models.LoyaltyMembership, *models.LoyaltyProgram, error) {
	var membership models.LoyaltyMembership
	if err := a.db.First(&membership, "id = ?", membershipID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, loyalty.ErrMembershipNotFound
		}
		return nil, nil, fmt.Errorf("error finding membership: %w", err)
	}
	var program models.LoyaltyProgram
	if err := a.db.First(&program, "id = ?", membership.ProgramID).Error; err != nil {
		return nil, nil, fmt.Errorf("error finding program: %w", err)
	}
	return &membership, &program, nil
}
