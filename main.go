package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	gerrors "github.com/go-faster/errors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compensation-service/internal/app"
	"compensation-service/internal/config"
	"compensation-service/internal/consumers"
	"compensation-service/internal/database"
	"compensation-service/internal/handlers"
	"compensation-service/internal/logging"
	"compensation-service/internal/repository"
	"compensation-service/internal/services"
	"compensation-service/internal/worker"
	"compensation-service/pkg/common"
)

func main() {
	envFile := config.LoadEnv(".env", "../.env")
	cfg, err := config.Load()
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log = logging.New(cfg.LogLevel, cfg.LogFormat)
	if envFile == "" {
		log.Info("No .env file found, using system environment variables")
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Initialize Database
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("database")
	}

	a, err := app.New(cfg, repository.NewGormStore(db), prometheus.DefaultRegisterer, log)
	if err != nil {
		log.WithError(err).Fatal("init services")
	}
	defer a.Close()

	// Redis/Asynq Client
	asynqClient := asynq.NewClient(a.RedisOpt())
	defer asynqClient.Close()
	client := worker.NewClient(asynqClient, log)

	scheduler := services.NewSweepScheduler(cfg.Worker.SweepCron, app.SweepStarter(client), log)
	cron, err := scheduler.StartScheduler()
	if err != nil {
		log.WithError(err).Fatal("sweep scheduler")
	}
	defer cron.Stop()

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome To Compensation service",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers.Handler{Graph: a.Graph, Matrix: a.Matrix, Commissions: a.Commissions, Tiers: a.Tiers, Log: log}
	h.Register(r)

	// Operator triggers
	r.POST("/jobs/sweeps", func(c *gin.Context) {
		started := scheduler.RunOnce(c.Request.Context())
		c.JSON(http.StatusAccepted, common.NewSuccessResponse(gin.H{"started": started}, "Sweeps scheduled"))
	})
	r.POST("/jobs/tier-check/:memberId", func(c *gin.Context) {
		err := client.EnqueueTierCheck(c.Request.Context(), consumers.TierCheckDTO{MemberID: c.Param("memberId"), Reason: "operator"})
		if err != nil {
			log.WithError(err).Error("enqueue tier check")
			c.JSON(http.StatusInternalServerError, common.NewErrorResponse("Could not enqueue", nil, http.StatusInternalServerError))
			return
		}
		c.JSON(http.StatusAccepted, common.NewSuccessResponse(nil, "Tier check queued"))
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP Server starting")
		if err := srv.ListenAndServe(); err != nil && !gerrors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	log.Info("server stopped")
}
