package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoyaltyEarnEvent is an append-only audit row written inside each earn
// transaction. Support staff use it when investigating flagged redemptions.
type LoyaltyEarnEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MembershipID uuid.UUID `gorm:"type:uuid;not null;index" json:"membership_id"`
	Amount       int       `gorm:"not null" json:"amount"`
	BalanceAfter int       `gorm:"not null" json:"balance_after"`
	Source       string    `gorm:"type:varchar(20)" json:"source"` // counter_scan, staff_entry
	CreatedAt    time.Time `json:"created_at"`
}

func (e *LoyaltyEarnEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
