package router

import (
	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/cache"
	"github.com/greenchain/ccrs/internal/evidence"
	"github.com/greenchain/ccrs/internal/handler"
	"github.com/greenchain/ccrs/internal/identity"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/greenchain/ccrs/internal/workflow"
	"gorm.io/gorm"
)

func Setup(
	db *gorm.DB,
	wf *workflow.Workflow,
	store *registry.GormStore,
	identitySvc *identity.Service,
	evidenceSvc *evidence.Service,
	statusCache *cache.StatusCache,
) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "carbon-registry-service",
		})
	})

	projectHandler := handler.NewProjectHandler(wf, store, statusCache)
	authHandler := handler.NewAuthHandler(identitySvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)
	eventHandler := handler.NewEventHandler(db)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（公开）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// 公开只读路由
		v1.GET("/projects", projectHandler.GetProjects)
		v1.GET("/projects/:id", projectHandler.GetProject)
		v1.GET("/projects/:id/retirements", projectHandler.GetRetirements)
		v1.GET("/projects/:id/evidence", evidenceHandler.GetEvidence)
		v1.GET("/events", eventHandler.GetEvents)
		v1.GET("/stats", projectHandler.GetStats)

		// 需要认证的路由
		authed := v1.Group("/projects")
		authed.Use(identity.AuthMiddleware(identitySvc))
		{
			authed.POST("", projectHandler.SubmitProject)
			authed.POST("/:id/approve", projectHandler.ApproveProject)
			authed.POST("/:id/reject", projectHandler.RejectProject)
			authed.POST("/:id/retire", projectHandler.RetireCredits)
			authed.POST("/:id/retry-registration", projectHandler.RetryRegistration)
			authed.POST("/:id/retry-retirement", projectHandler.RetryRetirement)
			authed.POST("/:id/evidence", evidenceHandler.AddEvidence)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
