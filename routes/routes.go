package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/controllers"
	"github.com/kendall-kelly/field-service-api/logger"
	"github.com/kendall-kelly/field-service-api/middleware"
)

// NewRouter builds the application router: recovery, request logging, CORS
// and the /api/v1 routes behind token authentication.
func NewRouter(cfg *config.Config, log *logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(CORS(cfg.CORSAllowedOrigins))

	Register(router, middleware.EnsureValidToken(cfg), middleware.LoadCurrentUser())
	return router
}

// CORS builds the cross-origin policy for browser clients
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

// Register mounts the /api/v1 routes. auth runs in front of every route
// except health, database status and login.
func Register(router *gin.Engine, auth ...gin.HandlerFunc) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", controllers.HealthCheck)
		v1.GET("/database/status", controllers.DatabaseStatus)
		v1.POST("/auth/token", controllers.IssueToken)
	}

	protected := v1.Group("", auth...)
	{
		protected.GET("/jobs", controllers.ListJobs)
		protected.POST("/jobs", controllers.CreateJob)
		protected.GET("/jobs/analytics", controllers.GetAnalytics)
		protected.GET("/jobs/:id", controllers.GetJob)
		protected.PATCH("/jobs/:id", controllers.UpdateJob)
		protected.DELETE("/jobs/:id", controllers.DeleteJob)
		protected.POST("/jobs/:id/recompute-overdue", controllers.RecomputeOverdue)

		protected.GET("/job-tasks", controllers.ListTasks)
		protected.POST("/job-tasks", controllers.CreateTask)
		protected.GET("/job-tasks/:id", controllers.GetTask)
		protected.PATCH("/job-tasks/:id", controllers.UpdateTask)
		protected.DELETE("/job-tasks/:id", controllers.DeleteTask)

		protected.GET("/equipment", controllers.ListEquipment)
		protected.POST("/equipment", controllers.CreateEquipment)
		protected.GET("/equipment/:id", controllers.GetEquipment)
		protected.PATCH("/equipment/:id", controllers.UpdateEquipment)
		protected.DELETE("/equipment/:id", controllers.DeleteEquipment)
		protected.POST("/equipment/:id/photo", controllers.UploadEquipmentPhoto)

		protected.GET("/technician-dashboard", controllers.GetTechnicianDashboard)

		protected.GET("/users", controllers.ListUsers)
		protected.POST("/users", controllers.CreateUser)
		protected.GET("/users/me", controllers.GetMyProfile)
		protected.PATCH("/users/me", controllers.UpdateMyProfile)
		protected.PATCH("/users/:id/role", controllers.SetUserRole)
	}
}
