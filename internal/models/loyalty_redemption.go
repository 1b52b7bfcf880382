package models

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionStatus is the stored status of a redemption. "expired_display"
// is never stored; it is a derived view computed from DisplayExpiresAt at
// read time.
type RedemptionStatus string

const (
	RedemptionStatusRedeemed RedemptionStatus = "redeemed"
)

// RedemptionDerivedExpired is the derived status reported once the display
// window has elapsed.
const RedemptionDerivedExpired = "expired_display"

// LoyaltyRedemption is a single reward-claim event. RewardDescription is a
// snapshot taken at redemption time so history survives later program edits.
type LoyaltyRedemption struct {
	Base
	MembershipID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"membership_id"`
	Membership       LoyaltyMembership `gorm:"foreignKey:MembershipID" json:"-"`
	BusinessID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"business_id"`
	UserWalletPassID string            `gorm:"not null" json:"user_wallet_pass_id"`

	RewardDescription string           `gorm:"type:text;not null" json:"reward_description"`
	Status            RedemptionStatus `gorm:"type:varchar(20);not null;default:'redeemed'" json:"status"`

	ConsumedAt       time.Time `gorm:"not null" json:"consumed_at"`
	DisplayExpiresAt time.Time `gorm:"not null;index" json:"display_expires_at"`

	// Set once the post-window pass reset has been pushed; the display
	// reset sweep uses it to find unswept redemptions.
	PassResetAt *time.Time `json:"pass_reset_at,omitempty"`

	FlaggedAt     *time.Time `json:"flagged_at,omitempty"`
	FlaggedReason string     `gorm:"type:text" json:"flagged_reason,omitempty"`
}
