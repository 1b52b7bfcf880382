package handlers

import (
	"net/http"

	"github.com/cityperks/backend/internal/services/ledger"
	"github.com/cityperks/backend/internal/services/program"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/gin-gonic/gin"
)

// PublicHandler serves the visitor-facing loyalty endpoints. Visitors are
// identified by their wallet-pass account id, not a session.
type PublicHandler struct {
	programs    *program.Service
	ledgerSvc   *ledger.Service
	redemptions *redemption.Service
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(programs *program.Service, ledgerSvc *ledger.Service, redemptions *redemption.Service) *PublicHandler {
	return &PublicHandler{
		programs:    programs,
		ledgerSvc:   ledgerSvc,
		redemptions: redemptions,
	}
}

// GetProgramCard returns the join/earn presentation fields for a program.
// Counter token and issuing credentials are never exposed here.
func (h *PublicHandler) GetProgramCard(c *gin.Context) {
	prog, err := h.programs.GetByPublicID(c.Param("publicId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"public_id":          prog.PublicID,
		"type":               prog.Type,
		"reward_threshold":   prog.RewardThreshold,
		"reward_description": prog.RewardDescription,
		"stamp_label":        prog.StampLabel,
		"stamp_icon":         prog.StampIcon,
		"earn_instructions":  prog.EarnInstructions,
		"brand_color":        prog.BrandColor,
		"brand_background":   prog.BrandBackground,
		"logo_url":           prog.LogoURL,
		"strip_image_url":    prog.StripImageURL,
		"status":             prog.Status,
	})
}

// Join creates or returns the visitor's membership and kicks off pass
// issuance for new members.
func (h *PublicHandler) Join(c *gin.Context) {
	var input struct {
		WalletPassID string `json:"wallet_pass_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ledgerSvc.Join(c.Param("publicId"), input.WalletPassID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// Earn applies a counter earn to the visitor's balance
func (h *PublicHandler) Earn(c *gin.Context) {
	var input struct {
		WalletPassID string `json:"wallet_pass_id" binding:"required"`
		CounterToken string `json:"counter_token" binding:"required"`
		Amount       int    `json:"amount"`
		Source       string `json:"source"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Amount == 0 {
		// Counter scans earn a single stamp unless the client says more.
		input.Amount = 1
	}
	if input.Source == "" {
		input.Source = "counter_scan"
	}

	result, err := h.ledgerSvc.Earn(c.Param("publicId"), input.WalletPassID, input.CounterToken, input.Amount, input.Source)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Redeem drains one reward's worth of balance and returns the redemption
// for immediate display.
func (h *PublicHandler) Redeem(c *gin.Context) {
	var input struct {
		WalletPassID string `json:"wallet_pass_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redeemed, err := h.ledgerSvc.Redeem(c.Param("publicId"), input.WalletPassID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, redeemed)
}

// GetMembership returns the visitor's balance card for a program
func (h *PublicHandler) GetMembership(c *gin.Context) {
	walletPassID := c.Query("wallet_pass_id")
	if walletPassID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet_pass_id is required"})
		return
	}

	prog, err := h.programs.GetByPublicID(c.Param("publicId"))
	if err != nil {
		respondError(c, err)
		return
	}
	membership, err := h.ledgerSvc.GetMembership(prog.ID, walletPassID)
	if err != nil {
		respondError(c, err)
		return
	}

	balance := membership.Balance(prog.Type)
	c.JSON(http.StatusOK, gin.H{
		"membership":         membership,
		"balance":            balance,
		"reward_threshold":   prog.RewardThreshold,
		"reward_description": prog.RewardDescription,
		"redeemable":         balance >= prog.RewardThreshold,
	})
}

// GetRedemptionStatus recovers the redemption display state after a client
// reconnect.
func (h *PublicHandler) GetRedemptionStatus(c *gin.Context) {
	redemptionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	walletPassID := c.Query("wallet_pass_id")
	if walletPassID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet_pass_id is required"})
		return
	}

	status, err := h.redemptions.GetStatus(redemptionID, walletPassID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
