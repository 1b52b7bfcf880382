package handlers

import (
	"net/http"

	"github.com/cityperks/backend/internal/queue"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/cityperks/backend/internal/services/program"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves the city-admin review and pass-repair endpoints
type AdminHandler struct {
	programs *program.Service
	passSync *passsync.Adapter
	jobs     *queue.Queue
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(programs *program.Service, passSync *passsync.Adapter, jobs *queue.Queue) *AdminHandler {
	return &AdminHandler{
		programs: programs,
		passSync: passSync,
		jobs:     jobs,
	}
}

func adminIdentity(c *gin.Context) (uuid.UUID, string, bool) {
	adminID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, "", false
	}
	city := c.GetString("admin_city")
	if city == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin has no assigned city"})
		return uuid.Nil, "", false
	}
	return adminID, city, true
}

// ListPassRequests returns the open activation requests in the admin's city
func (h *AdminHandler) ListPassRequests(c *gin.Context) {
	_, city, ok := adminIdentity(c)
	if !ok {
		return
	}
	requests, err := h.programs.ListOpenRequests(city)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
}

// ApproveRequest activates a submitted program with issuing credentials
func (h *AdminHandler) ApproveRequest(c *gin.Context) {
	adminID, city, ok := adminIdentity(c)
	if !ok {
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var input program.ApprovalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prog, err := h.programs.Approve(requestID, adminID, city, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}

// RejectRequest returns a submitted program to draft with a reason
func (h *AdminHandler) RejectRequest(c *gin.Context) {
	adminID, city, ok := adminIdentity(c)
	if !ok {
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	// Body is optional; the reason defaults server-side.
	_ = c.ShouldBindJSON(&input)

	request, err := h.programs.Reject(requestID, adminID, city, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ForcePushPass queues a full field re-send for a membership's pass
func (h *AdminHandler) ForcePushPass(c *gin.Context) {
	if _, _, ok := adminIdentity(c); !ok {
		return
	}
	membershipID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	jobID, err := h.jobs.Enqueue(queue.JobTypePassForcePush, gin.H{"membership_id": membershipID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// RetryPass re-attempts pass issuance for a membership. No-op success when
// a pass already exists.
func (h *AdminHandler) RetryPass(c *gin.Context) {
	if _, _, ok := adminIdentity(c); !ok {
		return
	}
	membershipID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.passSync.Retry(c.Request.Context(), membershipID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
