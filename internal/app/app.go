// Package app wires the engines from configuration. Both binaries build the
// same graph so the HTTP process and the workers agree on every option.
package app

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/config"
	"compensation-service/internal/consumers"
	"compensation-service/internal/events"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
	"compensation-service/internal/services"
	"compensation-service/internal/worker"
)

type App struct {
	Config    *config.Configuration
	Log       *logrus.Logger
	Metrics   *metrics.Metrics
	Publisher events.Publisher

	Catalog     *services.TierCatalogService
	Graph       *services.ReferralGraph
	Matrix      *services.MatrixService
	Investments *services.InvestmentService
	Commissions *services.CommissionService
	Clawbacks   *services.ClawbackService
	Tiers       *services.TierUpgradeService

	closers []func() error
}

// New builds the services over store. Events go to Kafka when brokers are
// configured and to the log otherwise.
func New(cfg *config.Configuration, store repository.Store, reg prometheus.Registerer, log *logrus.Logger) (*App, error) {
	floor, err := cfg.Compensation.MinCommissionAmount()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New(reg)}

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.Kafka.CommissionTopic, cfg.Kafka.TierTopic)
		a.Publisher = kp
		a.closers = append(a.closers, kp.Close)
		log.WithField("brokers", brokers).Info("publishing events to kafka")
	} else {
		a.Publisher = events.NewLogPublisher(log)
		log.Warn("KAFKA_BROKERS not set, events are only logged")
	}

	a.Catalog = services.NewTierCatalogService(store, log)
	a.Graph = services.NewReferralGraph(store, log)
	a.Matrix = services.NewMatrixService(store, a.Metrics, log, cfg.Compensation.MatrixMaxDepth)
	a.Investments = services.NewInvestmentService(store, log)
	a.Commissions = services.NewCommissionService(store, a.Publisher, a.Metrics, log, services.CommissionOptions{
		MinCommission: floor,
		AutoSettle:    cfg.Compensation.CommissionAutoSettle,
		Currency:      cfg.Compensation.Currency,
	})
	a.Clawbacks = services.NewClawbackService(store, a.Metrics, log, cfg.Compensation.Currency)
	a.Tiers = services.NewTierUpgradeService(store, a.Publisher, a.Metrics, log)
	return a, nil
}

// Processor builds the job processor; enq schedules sweep continuation pages.
func (a *App) Processor(enq consumers.Enqueuer) *consumers.CompensationProcessor {
	return &consumers.CompensationProcessor{
		Graph:       a.Graph,
		Matrix:      a.Matrix,
		Investments: a.Investments,
		Commissions: a.Commissions,
		Clawbacks:   a.Clawbacks,
		Tiers:       a.Tiers,
		Enqueuer:    enq,
		Metrics:     a.Metrics,
		Log:         a.Log,
		PageSize:    a.Config.Worker.SweepPageSize,
	}
}

// RedisOpt is the asynq connection for REDIS_URL.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.Config.RedisURL}
}

// SweepStarter enqueues the first page of a sweep run through client.
func SweepStarter(client *worker.Client) services.StartSweepFunc {
	return func(ctx context.Context, kind models.JobKind, run string) error {
		return client.EnqueueSweep(ctx, kind, consumers.SweepDTO{Run: run})
	}
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Log.WithError(err).Warn("close")
		}
	}
}
