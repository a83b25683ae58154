package app

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/config"
	"compensation-service/internal/events"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
	"compensation-service/internal/worker"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		Compensation: config.CompensationOptions{MatrixMaxDepth: 3, MinCommission: "0.5", CommissionAutoSettle: true, Currency: "EUR"},
		Worker:       config.WorkerOptions{SweepPageSize: 25},
		RedisURL:     "redis:6379",
	}
}

func TestNewWithoutBrokersLogsEvents(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	a, err := New(testConfig(), repository.NewMemoryStore(), prometheus.NewRegistry(), log)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &events.LogPublisher{}, a.Publisher)
	assert.Equal(t, 3, a.Matrix.MaxDepth)
	assert.Equal(t, "0.5", a.Commissions.Options.MinCommission.String())
	assert.Equal(t, "EUR", a.Clawbacks.Currency)
	assert.Equal(t, "redis:6379", a.RedisOpt().Addr)

	p := a.Processor(nil)
	assert.Equal(t, 25, p.PageSize)
	assert.Same(t, a.Commissions, p.Commissions)
}

func TestNewRejectsBadFloor(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	cfg.Compensation.MinCommission = "abc"
	_, err := New(cfg, repository.NewMemoryStore(), prometheus.NewRegistry(), log)
	assert.Error(t, err)
}

type queue struct{ types []string }

func (q *queue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.types = append(q.types, task.Type())
	return &asynq.TaskInfo{}, nil
}

func TestSweepStarterEnqueuesFirstPage(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	q := &queue{}
	start := SweepStarter(worker.NewClient(q, log))

	require.NoError(t, start(context.Background(), models.JobSweepClawbacks, "20260101T0000"))
	assert.Equal(t, []string{"sweep:clawbacks"}, q.types)
	assert.Error(t, start(context.Background(), models.JobApplyClawback, "20260101T0000"))
}
