package main

import (
	"database/sql"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/httpapi"
	"callbridge/internal/ws"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, db *sql.DB, h httpapi.Handlers, socket *ws.Controller, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/v1/auth/login", h.Login)

	// Participant socket. RequireAccessToken also accepts ?token= so browser
	// clients can authenticate the upgrade request.
	r.GET("/ws", authMW, socket.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		calls := v1.Group("/calls")
		{
			calls.POST("", h.InitiateCall)
			calls.GET("/:call_id", h.GetCall)
			calls.POST("/:call_id/answer", h.AnswerCall)
			calls.POST("/:call_id/reject", h.RejectCall)
			calls.POST("/:call_id/cancel", h.CancelCall)
			calls.POST("/:call_id/end", h.EndCall)
		}

		account := v1.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/availability", h.GetAvailability)
			account.PUT("/availability", h.SetAvailability)
			account.GET("/history", h.ListCallHistory)
			account.GET("/summary", h.GetUsageSummary)
		}

		admin := v1.Group("/admin")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		{
			admin.GET("/reconciliation", h.ListReconciliation)
		}
	}
}
