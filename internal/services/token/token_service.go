// Package token issues and validates the rotating counter token that
// authorizes in-person earn actions. After a rotation the previous token
// stays valid for a grace window, so printed QR codes at the counter keep
// working while the fraud window of a leaked token stays bounded.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service rotates and validates counter tokens
type Service struct {
	db    *gorm.DB
	grace time.Duration
}

// NewService creates a new token service with the given grace window
func NewService(db *gorm.DB, grace time.Duration) *Service {
	return &Service{db: db, grace: grace}
}

// Generate returns a new URL-safe random token
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Rotate replaces the program's counter token, keeping the outgoing token
// as the grace-window previous token. Returns the updated program so the
// caller can render the new QR code.
func (s *Service) Rotate(programID uuid.UUID) (*models.LoyaltyProgram, error) {
	var program models.LoyaltyProgram
	if err := s.db.First(&program, "id = ?", programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrProgramNotFound
		}
		return nil, fmt.Errorf("error finding program: %w", err)
	}

	newToken, err := Generate()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"counter_qr_token":            newToken,
		"counter_qr_token_rotated_at": now,
	}
	if program.CounterQRToken != "" {
		updates["previous_counter_qr_token"] = program.CounterQRToken
	} else {
		updates["previous_counter_qr_token"] = nil
	}

	if err := s.db.Model(&models.LoyaltyProgram{}).
		Where("id = ?", programID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("error rotating counter token: %w", err)
	}

	prev := program.CounterQRToken
	program.CounterQRToken = newToken
	if prev != "" {
		program.PreviousCounterQRToken = &prev
	} else {
		program.PreviousCounterQRToken = nil
	}
	program.CounterQRTokenRotatedAt = &now
	return &program, nil
}

// Validate accepts the current token, or the previous token while the
// rotation is still within the grace window.
func (s *Service) Validate(program *models.LoyaltyProgram, presented string, now time.Time) error {
	if presented == "" || program.CounterQRToken == "" {
		return loyalty.ErrInvalidToken
	}
	if tokenEqual(presented, program.CounterQRToken) {
		return nil
	}
	if program.PreviousCounterQRToken != nil && program.CounterQRTokenRotatedAt != nil {
		if tokenEqual(presented, *program.PreviousCounterQRToken) &&
			now.Sub(*program.CounterQRTokenRotatedAt) <= s.grace {
			return nil
		}
	}
	return loyalty.ErrInvalidToken
}

func tokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
