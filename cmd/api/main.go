package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/clipmark/clipmark-api/api/swagger"
	"github.com/clipmark/clipmark-api/internal/handler"
	"github.com/clipmark/clipmark-api/internal/middleware"
	"github.com/clipmark/clipmark-api/internal/repository"
	"github.com/clipmark/clipmark-api/internal/service"
	"github.com/clipmark/clipmark-api/pkg/cache"
	"github.com/clipmark/clipmark-api/pkg/config"
	"github.com/clipmark/clipmark-api/pkg/database"
	"github.com/clipmark/clipmark-api/pkg/logger"
)

// @title ClipMark API
// @version 1.0.0
// @description Authentication and account service for the ClipMark video annotation app
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var counter middleware.AttemptCounter
	if cfg.RateLimit.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, auth rate limiting disabled", "error", err)
		} else {
			defer redisClient.Close()
			counter = middleware.NewRedisCounter(redisClient)
		}
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	metrics := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)
	authSvc := service.NewAuthService(userRepo, tokenRepo, tokenSvc, validator.New(), logr, metrics)
	userSvc := service.NewUserService(userRepo, tokenRepo, logr)

	cleanup := service.NewTokenCleanup(tokenRepo, cfg.Retention, logr, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup.Start(ctx)
	defer cleanup.Stop()

	router := newRouter(cfg, logr, deps{
		auth:    handler.NewAuthHandler(authSvc),
		users:   handler.NewUserHandler(userSvc),
		authSvc: authSvc,
		metrics: metrics,
		counter: counter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
