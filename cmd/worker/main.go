package main

import (
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compensation-service/internal/app"
	"compensation-service/internal/config"
	"compensation-service/internal/database"
	"compensation-service/internal/logging"
	"compensation-service/internal/repository"
	"compensation-service/internal/worker"
)

func main() {
	envFile := config.LoadEnv("../../.env", ".env")
	cfg, err := config.Load()
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log = logging.New(cfg.LogLevel, cfg.LogFormat)
	if envFile == "" {
		log.Info("No .env file found, using system env")
	}

	// Connect DB
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}

	a, err := app.New(cfg, repository.NewGormStore(db), prometheus.DefaultRegisterer, log)
	if err != nil {
		log.WithError(err).Fatal("init services")
	}
	defer a.Close()

	asynqClient := asynq.NewClient(a.RedisOpt())
	defer asynqClient.Close()

	processor := a.Processor(worker.NewClient(asynqClient, log))
	w := worker.NewWorker(processor, a.Metrics, log)

	// Worker metrics on a side port; the HTTP service exposes its own.
	if port := os.Getenv("WORKER_METRICS_PORT"); port != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+port, mux); err != nil {
				log.WithError(err).Error("worker metrics server")
			}
		}()
	}

	if err := worker.StartWorker(a.RedisOpt(), cfg.Worker.Concurrency, w); err != nil {
		log.WithError(err).Fatal("could not run worker")
	}
}
