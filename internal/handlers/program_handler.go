package handlers

import (
	"net/http"
	"strconv"

	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/services/ledger"
	"github.com/cityperks/backend/internal/services/program"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/cityperks/backend/internal/services/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProgramHandler serves the business-owner program endpoints
type ProgramHandler struct {
	programs    *program.Service
	tokens      *token.Service
	ledgerSvc   *ledger.Service
	redemptions *redemption.Service
}

// NewProgramHandler creates a new program handler
func NewProgramHandler(programs *program.Service, tokens *token.Service, ledgerSvc *ledger.Service, redemptions *redemption.Service) *ProgramHandler {
	return &ProgramHandler{
		programs:    programs,
		tokens:      tokens,
		ledgerSvc:   ledgerSvc,
		redemptions: redemptions,
	}
}

// CreateProgram creates the business's draft program
func (h *ProgramHandler) CreateProgram(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}

	var input program.DraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prog, err := h.programs.CreateDraft(bizID, c.GetString("city"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prog)
}

// GetProgram returns the business's own program
func (h *ProgramHandler) GetProgram(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	prog, err := h.programs.GetByBusiness(bizID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"program":       prog,
		"counter_token": prog.CounterQRToken,
	})
}

// UpdateProgram edits the business's draft program
func (h *ProgramHandler) UpdateProgram(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}

	var input program.DraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prog, err := h.programs.UpdateDraft(bizID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}

// SubmitProgram submits the draft for activation review
func (h *ProgramHandler) SubmitProgram(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	request, err := h.programs.Submit(bizID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// PauseProgram pauses an active program
func (h *ProgramHandler) PauseProgram(c *gin.Context) {
	h.lifecycle(c, h.programs.Pause)
}

// ResumeProgram resumes a paused program
func (h *ProgramHandler) ResumeProgram(c *gin.Context) {
	h.lifecycle(c, h.programs.Resume)
}

// EndProgram ends the program permanently
func (h *ProgramHandler) EndProgram(c *gin.Context) {
	h.lifecycle(c, h.programs.End)
}

// RotateToken rotates the counter token and returns the new one for QR
// rendering.
func (h *ProgramHandler) RotateToken(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	prog, err := h.programs.GetByBusiness(bizID)
	if err != nil {
		respondError(c, err)
		return
	}
	rotated, err := h.tokens.Rotate(prog.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"counter_token": rotated.CounterQRToken,
		"rotated_at":    rotated.CounterQRTokenRotatedAt,
	})
}

// ListMembers returns the program's memberships, most recently active first
func (h *ProgramHandler) ListMembers(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	prog, err := h.programs.GetByBusiness(bizID)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	members, err := h.ledgerSvc.ListMembers(prog.ID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

// ListRedemptions returns the business's redemption history, flagged first
func (h *ProgramHandler) ListRedemptions(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	redemptions, err := h.redemptions.ListByBusiness(bizID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions, "count": len(redemptions)})
}

// FlagRedemption records a redemption for manual review
func (h *ProgramHandler) FlagRedemption(c *gin.Context) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	redemptionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flagged, err := h.redemptions.Flag(redemptionID, bizID, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flagged)
}

func (h *ProgramHandler) lifecycle(c *gin.Context, fn func(bizID uuid.UUID) (*models.LoyaltyProgram, error)) {
	bizID, ok := businessID(c)
	if !ok {
		return
	}
	prog, err := fn(bizID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}
