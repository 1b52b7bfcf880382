package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus is the lifecycle state of a membership. Memberships are
// never hard-deleted; they survive their program ending.
type MembershipStatus string

const (
	MembershipStatusActive MembershipStatus = "active"
)

// LoyaltyMembership is one visitor's participation record and balance within
// one program. Exactly one of StampsBalance/PointsBalance is meaningful,
// selected by the owning program's Type.
type LoyaltyMembership struct {
	Base
	ProgramID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_loyalty_membership_program_visitor" json:"program_id"`
	Program          LoyaltyProgram `gorm:"foreignKey:ProgramID" json:"-"`
	UserWalletPassID string         `gorm:"not null;uniqueIndex:idx_loyalty_membership_program_visitor" json:"user_wallet_pass_id"`

	StampsBalance int `gorm:"not null;default:0" json:"stamps_balance"`
	PointsBalance int `gorm:"not null;default:0" json:"points_balance"`

	// Serial of the issued external pass; nil until issuance succeeds.
	WalletPushSerial *string `gorm:"index" json:"walletpush_serial,omitempty"`

	Status       MembershipStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	LastActiveAt time.Time        `json:"last_active_at"`
}

// Balance returns the balance for the given program type.
func (m *LoyaltyMembership) Balance(t ProgramType) int {
	if t == ProgramTypePoints {
		return m.PointsBalance
	}
	return m.StampsBalance
}

// BalanceColumn returns the column name holding the authoritative balance
// for the given program type. Ledger operations branch on the program type,
// never on ad hoc field presence.
func BalanceColumn(t ProgramType) string {
	if t == ProgramTypePoints {
		return "points_balance"
	}
	return "stamps_balance"
}
