package worker

import (
	"context"
	"encoding/json"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/consumers"
	"compensation-service/internal/models"
)

// MaxRetry gives every unit three attempts in total.
const MaxRetry = 2

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueFor routes money-moving units ahead of placement and tier work; sweeps
// run last.
func QueueFor(kind models.JobKind) string {
	switch kind {
	case models.JobCalculateCommission, models.JobApplyClawback:
		return QueueCritical
	case models.JobPlaceMember, models.JobCheckTier:
		return QueueDefault
	case models.JobSweepCommissions, models.JobSweepClawbacks, models.JobSweepTiers:
		return QueueLow
	}
	panic(fmt.Sprintf("worker: unknown job kind %d", int(kind)))
}

// TaskID is the stable dedup key of a unit.
func TaskID(kind models.JobKind, entityID string) string {
	return kind.TaskType() + ":" + entityID
}

// Task Creators

func newTask(kind models.JobKind, entityID string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind.TaskType(), data,
		asynq.TaskID(TaskID(kind, entityID)),
		asynq.Queue(QueueFor(kind)),
		asynq.MaxRetry(MaxRetry),
	), nil
}

func NewPlaceMemberTask(payload consumers.MemberRegisteredDTO) (*asynq.Task, error) {
	return newTask(models.JobPlaceMember, payload.EntityID(), payload)
}

func NewCalculateCommissionTask(payload consumers.InvestmentCompletedDTO) (*asynq.Task, error) {
	return newTask(models.JobCalculateCommission, payload.EntityID(), payload)
}

func NewApplyClawbackTask(payload consumers.WithdrawalApprovedDTO) (*asynq.Task, error) {
	return newTask(models.JobApplyClawback, payload.EntityID(), payload)
}

func NewCheckTierTask(payload consumers.TierCheckDTO) (*asynq.Task, error) {
	return newTask(models.JobCheckTier, payload.EntityID(), payload)
}

func NewSweepTask(kind models.JobKind, payload consumers.SweepDTO) (*asynq.Task, error) {
	if !kind.IsSweep() {
		return nil, gerrors.Wrapf(models.ErrValidation, "%s is not a sweep", kind)
	}
	return newTask(kind, payload.EntityID(), payload)
}

// TaskEnqueuer is the part of *asynq.Client the Client needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client enqueues units. A unit whose id is already queued counts as enqueued.
type Client struct {
	Queue TaskEnqueuer
	Log   *logrus.Logger
}

func NewClient(q TaskEnqueuer, log *logrus.Logger) *Client {
	return &Client{Queue: q, Log: log}
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	info, err := c.Queue.EnqueueContext(ctx, task)
	if gerrors.Is(err, asynq.ErrTaskIDConflict) {
		c.Log.WithField("task_type", task.Type()).Debug("task already queued")
		return nil
	}
	if err != nil {
		return gerrors.Wrapf(err, "enqueue %s", task.Type())
	}
	c.Log.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Debug("task enqueued")
	return nil
}

func (c *Client) EnqueueMemberRegistered(ctx context.Context, p consumers.MemberRegisteredDTO) error {
	t, err := NewPlaceMemberTask(p)
	return c.enqueue(ctx, t, err)
}

func (c *Client) EnqueueInvestmentCompleted(ctx context.Context, p consumers.InvestmentCompletedDTO) error {
	t, err := NewCalculateCommissionTask(p)
	return c.enqueue(ctx, t, err)
}

func (c *Client) EnqueueWithdrawalApproved(ctx context.Context, p consumers.WithdrawalApprovedDTO) error {
	t, err := NewApplyClawbackTask(p)
	return c.enqueue(ctx, t, err)
}

func (c *Client) EnqueueTierCheck(ctx context.Context, p consumers.TierCheckDTO) error {
	t, err := NewCheckTierTask(p)
	return c.enqueue(ctx, t, err)
}

func (c *Client) EnqueueSweep(ctx context.Context, kind models.JobKind, page consumers.SweepDTO) error {
	t, err := NewSweepTask(kind, page)
	return c.enqueue(ctx, t, err)
}
