package main

import (
	"crm-telephony/internal/auth"
	"crm-telephony/internal/httpapi"
	"crm-telephony/internal/rbac"
	"crm-telephony/internal/telephony"

	"github.com/gin-gonic/gin"
)

type deps struct {
	authManager *auth.Manager
	webhooks    telephony.WebhookHandlers
	api         httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Carrier webhooks (public).
	// NOTE: These endpoints should be protected by carrier signature
	// validation in production.
	r.POST("/webhooks/carrier/status", d.webhooks.HandleStatusEvent)
	r.POST("/webhooks/carrier/recording", d.webhooks.HandleRecordingEvent)

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	v1.POST("/auth/login", d.api.Login)

	// protected API group
	protected := v1.Group("")
	protected.Use(auth.RequireAccessToken(d.authManager))
	{
		// Identity echo, useful for token debugging.
		protected.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// CALLS routes
		callsGroup := protected.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleSuperAdmin))
		{
			callsGroup.POST("", d.api.StartCall)
			callsGroup.GET("/:call_id", d.api.GetCall)

			callsGroup.POST("/:call_id/mute", d.api.MuteCall)
			callsGroup.POST("/:call_id/unmute", d.api.UnmuteCall)
			callsGroup.POST("/:call_id/hangup", d.api.HangupCall)
		}
	}
}
