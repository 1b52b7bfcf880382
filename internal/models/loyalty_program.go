package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgramType determines which balance field on a membership is authoritative
type ProgramType string

const (
	ProgramTypeStamps ProgramType = "stamps"
	ProgramTypePoints ProgramType = "points"
)

// ProgramStatus is the lifecycle state of a loyalty program
type ProgramStatus string

const (
	ProgramStatusDraft     ProgramStatus = "draft"
	ProgramStatusSubmitted ProgramStatus = "submitted"
	ProgramStatusActive    ProgramStatus = "active"
	ProgramStatusPaused    ProgramStatus = "paused"
	ProgramStatusEnded     ProgramStatus = "ended"
)

// EarnMode describes how visitors earn at the counter
type EarnMode string

const (
	EarnModeCounterScan EarnMode = "counter_scan"
	EarnModeStaffEntry  EarnMode = "staff_entry"
)

// LoyaltyProgram is a business's configured loyalty scheme. At most one
// program exists per business; the counter token columns hold the rotating
// secret that authorizes in-person earns.
type LoyaltyProgram struct {
	Base
	PublicID   string    `gorm:"uniqueIndex;not null" json:"public_id"`
	BusinessID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"business_id"`
	City       string    `gorm:"index;not null" json:"city"`

	Type              ProgramType `gorm:"type:varchar(10);not null;default:'stamps'" json:"type"`
	RewardThreshold   int         `gorm:"not null" json:"reward_threshold"`
	RewardDescription string      `gorm:"type:text" json:"reward_description"`
	StampLabel        string      `json:"stamp_label"`
	StampIcon         string      `json:"stamp_icon"`
	EarnInstructions  string      `gorm:"type:text" json:"earn_instructions"`
	EarnMode          EarnMode    `gorm:"type:varchar(20);default:'counter_scan'" json:"earn_mode"`

	BrandColor      string `json:"brand_color"`
	BrandBackground string `json:"brand_background"`
	LogoURL         string `json:"logo_url"`
	StripImageURL   string `json:"strip_image_url"`

	// Issuing-service template and credentials. Opaque here; required
	// non-empty before passes can be issued (set during activation).
	WalletPushTemplateID string `json:"-"`
	WalletPushAPIKey     string `json:"-"`
	WalletPushEndpoint   string `json:"-"`

	CounterQRToken          string     `json:"-"`
	PreviousCounterQRToken  *string    `json:"-"`
	CounterQRTokenRotatedAt *time.Time `json:"-"`

	Status  ProgramStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	EndedAt *time.Time    `json:"ended_at,omitempty"`
}

// HasPassCredentials reports whether the program has ever been provisioned
// with issuing-service credentials (a program that was activated at least
// once keeps them when paused).
func (p *LoyaltyProgram) HasPassCredentials() bool {
	return p.WalletPushTemplateID != "" && p.WalletPushAPIKey != ""
}
