package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/internal/handler"
	"github.com/clipmark/clipmark-api/internal/middleware"
	"github.com/clipmark/clipmark-api/internal/models"
	"github.com/clipmark/clipmark-api/internal/service"
	"github.com/clipmark/clipmark-api/pkg/config"
	"github.com/clipmark/clipmark-api/pkg/logger"
	corsmiddleware "github.com/clipmark/clipmark-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clipmark/clipmark-api/pkg/middleware/requestid"
)

type deps struct {
	auth    *handler.AuthHandler
	users   *handler.UserHandler
	authSvc *service.AuthService
	metrics *service.MetricsService
	counter middleware.AttemptCounter
}

func newRouter(cfg *config.Config, logr *zap.Logger, d deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	limited := middleware.RateLimit(d.counter, cfg.RateLimit, logr, d.metrics)
	auth.POST("/register", limited, d.auth.Register)
	auth.POST("/login", limited, d.auth.Login)
	auth.POST("/refresh", d.auth.Refresh)
	auth.POST("/logout", d.auth.Logout)

	protected := auth.Group("")
	protected.Use(middleware.JWT(d.authSvc))
	protected.GET("/me", d.auth.Me)
	protected.POST("/change-password", d.auth.ChangePassword)

	users := api.Group("/users")
	users.Use(middleware.JWT(d.authSvc))
	users.GET("", middleware.RequireRoles(models.RoleAdmin), d.users.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), d.users.Get)
	users.PATCH("/:id/role", middleware.RequireRoles(models.RoleAdmin), d.users.UpdateRole)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), d.users.Delete)

	return r
}
