package api

import (
	"github.com/gin-gonic/gin"

	"ossim/backend/internal/auth"
	"ossim/backend/internal/metrics"
	"ossim/backend/internal/security"
	"ossim/backend/internal/snapshots"
)

type Router struct {
	Handlers  *Handlers
	Auth      *auth.AuthHandlers
	Metrics   *metrics.MetricsHandlers
	Snapshots *snapshots.SnapshotHandlers
	Security  *security.SecurityMiddleware
}

func SetupRoutes(r *gin.Engine, rt Router) {
	if rt.Security != nil {
		r.Use(
			rt.Security.CORSMiddleware(),
			rt.Security.SecurityHeadersMiddleware(),
			rt.Security.RateLimitMiddleware(),
			rt.Security.BodyLimitMiddleware(),
		)
	}

	h := rt.Handlers
	r.GET("/health", h.HealthCheck)

	v1 := r.Group("/api/v1")

	// Public routes
	v1.GET("/health", h.HealthCheck)
	v1.GET("/policies", h.GetPolicies)
	v1.POST("/auth/login", rt.Auth.Login)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(rt.Auth.RequireAuth())
	protected.GET("/auth/me", rt.Auth.Me)
	protected.GET("/auth/roles", rt.Auth.GetRoles)

	read := rt.Auth.RequirePermission(auth.PermRunRead)
	create := rt.Auth.RequirePermission(auth.PermRunCreate)
	control := rt.Auth.RequirePermission(auth.PermRunControl)

	runs := protected.Group("/runs")
	{
		runs.POST("", create, h.CreateRun)
		runs.GET("", read, h.ListRuns)
		runs.GET("/:id", read, h.GetRun)
		runs.DELETE("/:id", rt.Auth.RequirePermission(auth.PermRunDelete), h.DeleteRun)
		runs.POST("/:id/step", control, h.StepRun)
		runs.POST("/:id/start", control, h.StartRun)
		runs.POST("/:id/pause", control, h.PauseRun)
		runs.POST("/:id/resume", control, h.ResumeRun)
		runs.POST("/:id/stop", control, h.StopRun)
		runs.GET("/:id/processes", read, h.GetProcesses)
		runs.GET("/:id/frames", read, h.GetFrames)
		runs.GET("/:id/log", read, h.GetLog)
		runs.GET("/:id/timeline", read, h.GetTimeline)
		runs.POST("/:id/snapshots", rt.Auth.RequirePermission(auth.PermSnapshotWrite), rt.Snapshots.CreateSnapshot)

		metricsRead := rt.Auth.RequirePermission(auth.PermMetricsRead)
		runs.GET("/:id/metrics", metricsRead, rt.Metrics.GetRunMetrics)
		runs.GET("/:id/report", metricsRead, rt.Metrics.ExportReport)
		runs.GET("/:id/ws", metricsRead, rt.Metrics.HandleWebSocket)
	}

	results := protected.Group("/results", read)
	{
		results.GET("", h.ListResults)
		results.GET("/compare", rt.Metrics.CompareRuns)
		results.GET("/:id", h.GetResult)
	}

	snaps := protected.Group("/snapshots")
	{
		snapRead := rt.Auth.RequirePermission(auth.PermSnapshotRead)
		snapWrite := rt.Auth.RequirePermission(auth.PermSnapshotWrite)
		snaps.GET("", snapRead, rt.Snapshots.ListSnapshots)
		snaps.GET("/stats", snapRead, rt.Snapshots.GetSnapshotStats)
		snaps.GET("/:id", snapRead, rt.Snapshots.GetSnapshot)
		snaps.DELETE("/:id", snapWrite, rt.Snapshots.DeleteSnapshot)
		snaps.POST("/:id/tags", snapWrite, rt.Snapshots.TagSnapshot)
	}

	mon := protected.Group("/metrics", rt.Auth.RequirePermission(auth.PermMetricsRead))
	{
		mon.GET("/system", rt.Metrics.GetSystemMetrics)
		mon.GET("/alerts", rt.Metrics.GetAlerts)
		mon.GET("/thresholds", rt.Metrics.GetThresholds)
		mon.PUT("/thresholds", rt.Auth.RequirePermission(auth.PermMetricsConfig), rt.Metrics.SetThreshold)
	}

	protected.GET("/audit", rt.Auth.RequirePermission(auth.PermAuditRead), h.GetAuditLog)
}
