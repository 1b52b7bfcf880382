package routes

import (
	"net/http"

	"github.com/cityperks/backend/internal/config"
	"github.com/cityperks/backend/internal/handlers"
	"github.com/cityperks/backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the loyalty engine's HTTP surface
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	programHandler *handlers.ProgramHandler,
	publicHandler *handlers.PublicHandler,
	adminHandler *handlers.AdminHandler,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.AuthMiddleware(cfg.JWT.Secret)
	tenant := middleware.TenantMiddleware()
	publicLimiter := middleware.NewRateLimiter(5, 10)

	// Business-owner program management
	owner := router.Group("/api/loyalty")
	owner.Use(auth, middleware.BusinessOwnerMiddleware(), tenant)
	{
		owner.POST("/programs", programHandler.CreateProgram)
		owner.GET("/programs/me", programHandler.GetProgram)
		owner.PATCH("/programs/me", programHandler.UpdateProgram)
		owner.POST("/programs/me/submit", programHandler.SubmitProgram)
		owner.POST("/programs/me/pause", programHandler.PauseProgram)
		owner.POST("/programs/me/resume", programHandler.ResumeProgram)
		owner.POST("/programs/me/end", programHandler.EndProgram)
		owner.POST("/programs/me/rotate-token", programHandler.RotateToken)
		owner.GET("/programs/me/members", programHandler.ListMembers)
		owner.GET("/programs/me/redemptions", programHandler.ListRedemptions)
		owner.POST("/redemptions/:id/flag", programHandler.FlagRedemption)
	}

	// City-admin review queue and pass repair
	admin := router.Group("/api/admin/loyalty")
	admin.Use(auth, middleware.CityAdminMiddleware())
	{
		admin.GET("/pass-requests", adminHandler.ListPassRequests)
		admin.POST("/pass-requests/:id/approve", adminHandler.ApproveRequest)
		admin.POST("/pass-requests/:id/reject", adminHandler.RejectRequest)
		admin.POST("/memberships/:id/force-push", adminHandler.ForcePushPass)
		admin.POST("/memberships/:id/retry-pass", adminHandler.RetryPass)
	}

	// Visitor-facing endpoints, identified by wallet-pass id
	public := router.Group("/api/public/loyalty")
	public.Use(tenant, publicLimiter.Middleware())
	{
		public.GET("/redemptions/:id", publicHandler.GetRedemptionStatus)
		public.GET("/:publicId", publicHandler.GetProgramCard)
		public.GET("/:publicId/membership", publicHandler.GetMembership)
		public.POST("/:publicId/join", publicHandler.Join)
		public.POST("/:publicId/earn", publicHandler.Earn)
		public.POST("/:publicId/redeem", publicHandler.Redeem)
	}
}
