package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctoring/internal/config"
	"github.com/stemsi/exstem-proctoring/internal/handler"
	"github.com/stemsi/exstem-proctoring/internal/middleware"
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
)

// evidenceMaxAge is how long browsers may cache an evidence image.
const evidenceMaxAge = 24 * 60 * 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Proctoring *handler.ProctoringHandler
	Alert      *handler.AlertHandler
	Evidence   *handler.EvidenceHandler
	Supervisor *handler.SupervisorHandler
	Monitor    *handler.MonitorHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	read := middleware.RequirePermission(string(model.PermissionProctoringRead))
	review := middleware.RequirePermission(string(model.PermissionProctoringReview))
	terminate := middleware.RequirePermission(string(model.PermissionProctoringTerminate))
	assign := middleware.RequirePermission(string(model.PermissionProctoringAssign))

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(30, time.Minute, middleware.ClientIPKey)
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Proctoring Group (JWT + latest login) ──────────────
	alertLimiter := middleware.NewRateLimiter(cfg.AlertRateLimit, cfg.AlertRateWindow, middleware.StudentKey)
	studentAPI := router.Group("/api/v1/proctoring")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckStudentSession(authService),
	)
	{
		studentAPI.POST("/session", handlers.Proctoring.RegisterSession)
		studentAPI.POST("/session/end", handlers.Proctoring.EndSession)
		// Evidence arrives base64 encoded, about 4/3 of the image size.
		studentAPI.POST("/alert",
			alertLimiter.Middleware(),
			middleware.MaxBody(cfg.MaxUploadBytes*4/3+64*1024),
			handlers.Alert.SubmitAlert,
		)
	}

	// ─── 3. WebSocket Group (Admin WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdminWSAuth(authService))
	{
		ws.GET("/admin/proctoring/exams/:exam_id", read, handlers.WS.ProctoringFeed)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		proctoring := adminAPI.Group("/proctoring")
		{
			proctoring.GET("/sessions/active", middleware.NoStore(), read, handlers.Proctoring.ListActiveSessions)
			proctoring.GET("/session/:sessionId", read, handlers.Proctoring.GetSessionDetail)
			proctoring.POST("/session/:sessionId/terminate", terminate, handlers.Proctoring.TerminateSession)
			proctoring.PUT("/session/:sessionId/review", review, handlers.Proctoring.ReviewSession)
			proctoring.PUT("/alert/:alertId/status", review, handlers.Alert.UpdateAlertStatus)
			proctoring.GET("/exams/:exam_id/feed", read, handlers.Monitor.MonitorExamSSE)
			proctoring.GET("/evidence/*path", read, middleware.PrivateCache(evidenceMaxAge), handlers.Evidence.GetEvidence)
		}

		adminAPI.GET("/exams/:exam_id/supervisors", assign, handlers.Supervisor.ListSupervisors)
		adminAPI.POST("/exams/:exam_id/supervisors", assign, handlers.Supervisor.AssignSupervisor)
		adminAPI.DELETE("/exams/:exam_id/supervisors/:admin_id", assign, handlers.Supervisor.RemoveSupervisor)

		// System Monitoring
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE) // Open to all admins
	}

	return router
}
