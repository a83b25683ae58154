package worker

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/consumers"
	"compensation-service/internal/logging"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
)

var retryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// RetryDelay escalates 30s, 60s, 120s and stays at 120s.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(retryDelays) {
		n = len(retryDelays) - 1
	}
	return retryDelays[n]
}

type Worker struct {
	Processor *consumers.CompensationProcessor
	Metrics   *metrics.Metrics
	Log       *logrus.Logger
}

func NewWorker(processor *consumers.CompensationProcessor, m *metrics.Metrics, log *logrus.Logger) *Worker {
	return &Worker{
		Processor: processor,
		Metrics:   m,
		Log:       log,
	}
}

func decode(t *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return gerrors.Wrapf(asynq.SkipRetry, "decode payload: %v", err)
	}
	return nil
}

// finish records the outcome of one attempt. Errors that cannot succeed on a
// later attempt skip the remaining retries.
func (w *Worker) finish(ctx context.Context, kind models.JobKind, entityID string, err error) error {
	entry := w.Log.WithFields(logrus.Fields{"job_kind": kind.String(), "entity_id": entityID})
	if id, ok := asynq.GetTaskID(ctx); ok {
		entry = entry.WithField("task_id", id)
	}
	switch {
	case err == nil:
		w.Metrics.JobsProcessedTotal.WithLabelValues(kind.String(), "ok").Inc()
		entry.Debug("job done")
		return nil
	case !models.IsRetryable(err):
		w.Metrics.JobsProcessedTotal.WithLabelValues(kind.String(), "rejected").Inc()
		entry.WithError(err).Warn("job rejected")
		return gerrors.Wrapf(asynq.SkipRetry, "%v", err)
	default:
		w.Metrics.JobsProcessedTotal.WithLabelValues(kind.String(), "retry").Inc()
		entry.WithError(err).Warn("job failed, will retry")
		return err
	}
}

func (w *Worker) HandlePlaceMember(ctx context.Context, t *asynq.Task) error {
	var p consumers.MemberRegisteredDTO
	if err := decode(t, &p); err != nil {
		return err
	}
	return w.finish(ctx, models.JobPlaceMember, p.EntityID(), w.Processor.ProcessMemberRegistered(ctx, p))
}

func (w *Worker) HandleCalculateCommission(ctx context.Context, t *asynq.Task) error {
	var p consumers.InvestmentCompletedDTO
	if err := decode(t, &p); err != nil {
		return err
	}
	return w.finish(ctx, models.JobCalculateCommission, p.EntityID(), w.Processor.ProcessInvestmentCompleted(ctx, p))
}

func (w *Worker) HandleApplyClawback(ctx context.Context, t *asynq.Task) error {
	var p consumers.WithdrawalApprovedDTO
	if err := decode(t, &p); err != nil {
		return err
	}
	return w.finish(ctx, models.JobApplyClawback, p.EntityID(), w.Processor.ProcessWithdrawalApproved(ctx, p))
}

func (w *Worker) HandleCheckTier(ctx context.Context, t *asynq.Task) error {
	var p consumers.TierCheckDTO
	if err := decode(t, &p); err != nil {
		return err
	}
	return w.finish(ctx, models.JobCheckTier, p.EntityID(), w.Processor.ProcessTierCheck(ctx, p))
}

// HandleSweep serves all three sweep kinds; the kind comes from the task type.
func (w *Worker) HandleSweep(ctx context.Context, t *asynq.Task) error {
	kind, ok := models.ParseJobKind(t.Type())
	if !ok || !kind.IsSweep() {
		return gerrors.Wrapf(asynq.SkipRetry, "unknown sweep %q", t.Type())
	}
	var p consumers.SweepDTO
	if err := decode(t, &p); err != nil {
		return err
	}
	_, err := w.Processor.ProcessSweep(ctx, kind, p)
	return w.finish(ctx, kind, p.EntityID(), err)
}

// ErrorHandler logs a unit at critical severity once it will not run again.
func (w *Worker) ErrorHandler(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry && !gerrors.Is(err, asynq.SkipRetry) {
		return
	}
	kind := t.Type()
	w.Metrics.JobsFailedPermanently.WithLabelValues(kind).Inc()
	entry := w.Log.WithFields(logrus.Fields{"job_kind": kind, "attempts": retried + 1})
	if id, ok := asynq.GetTaskID(ctx); ok {
		entry = entry.WithField("task_id", id)
	}
	logging.Critical(entry.WithError(err), "job failed permanently")
}

// Mux routes every job kind to its handler.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, kind := range models.AllJobKinds {
		switch kind {
		case models.JobPlaceMember:
			mux.HandleFunc(kind.TaskType(), w.HandlePlaceMember)
		case models.JobCalculateCommission:
			mux.HandleFunc(kind.TaskType(), w.HandleCalculateCommission)
		case models.JobApplyClawback:
			mux.HandleFunc(kind.TaskType(), w.HandleApplyClawback)
		case models.JobCheckTier:
			mux.HandleFunc(kind.TaskType(), w.HandleCheckTier)
		case models.JobSweepCommissions, models.JobSweepClawbacks, models.JobSweepTiers:
			mux.HandleFunc(kind.TaskType(), w.HandleSweep)
		}
	}
	return mux
}

func StartWorker(redisOpt asynq.RedisClientOpt, concurrency int, w *Worker) error {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler:   asynq.ErrorHandlerFunc(w.ErrorHandler),
			Logger:         w.Log,
		},
	)

	w.Log.WithField("concurrency", concurrency).Info("starting asynq worker")
	if err := srv.Run(w.Mux()); err != nil {
		return gerrors.Wrap(err, "run asynq server")
	}
	return nil
}
