package models

import (
	"time"

	"github.com/google/uuid"
)

// PassRequestStatus is the review state of a program activation request
type PassRequestStatus string

const (
	PassRequestStatusSubmitted PassRequestStatus = "submitted"
	PassRequestStatusApproved  PassRequestStatus = "approved"
	PassRequestStatusRejected  PassRequestStatus = "rejected"
)

// LoyaltyPassRequest is created when a business submits its draft program
// for activation. At most one open (submitted) request exists per program,
// enforced by a partial unique index. Approved/rejected are terminal;
// rejection returns the owning program to draft.
type LoyaltyPassRequest struct {
	Base
	ProgramID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"program_id"`
	Program    LoyaltyProgram `gorm:"foreignKey:ProgramID" json:"-"`
	BusinessID uuid.UUID      `gorm:"type:uuid;not null;index" json:"business_id"`
	City       string         `gorm:"index;not null" json:"city"`

	Status            PassRequestStatus `gorm:"type:varchar(20);not null;default:'submitted';index" json:"status"`
	RejectionReason   string            `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedByAdminID *uuid.UUID        `gorm:"type:uuid" json:"reviewed_by_admin_id,omitempty"`
	ReviewedAt        *time.Time        `json:"reviewed_at,omitempty"`
}
