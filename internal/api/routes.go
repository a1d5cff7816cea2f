package api

import (
	"github.com/gin-gonic/gin"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
)

func SetupRoutes(router *gin.Engine, handler *Handler, reg *metrics.Registry) {
	// Health check and metrics
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(reg.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Reconciliation runs
		v1.POST("/runs/trigger", handler.TriggerRun)
		v1.GET("/runs", handler.ListRuns)
		v1.GET("/runs/:id", handler.GetRun)

		// Audit ledger
		v1.GET("/audit", handler.SearchAudit)
		v1.POST("/audit/:id/reprocess", handler.ReprocessAuditEntry)

		// Bulk roster uploads
		v1.POST("/bulk/uploads", handler.UploadRoster)
		v1.GET("/bulk/uploads/:id", handler.GetUpload)

		// Completion webhook from the learning platform
		v1.POST("/completions", handler.CompletionWebhook)
	}
}
