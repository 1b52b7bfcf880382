package handlers

import (
	"errors"
	"net/http"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps the loyalty error taxonomy onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loyalty.ErrProgramNotFound),
		errors.Is(err, loyalty.ErrMembershipNotFound),
		errors.Is(err, loyalty.ErrRedemptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrProgramNotActive),
		errors.Is(err, loyalty.ErrInvalidState),
		errors.Is(err, loyalty.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrConflictingRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, loyalty.ErrExternalService):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// businessID reads the authenticated owner's business id set by the auth
// middleware.
func businessID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("business_id")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business id"})
		return uuid.Nil, false
	}
	return id, true
}

// pathUUID parses a uuid path parameter
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
