package services

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
)

// StartSweepFunc enqueues the first page of a sweep run.
type StartSweepFunc func(ctx context.Context, kind models.JobKind, run string) error

// SweepScheduler starts the commission, clawback and tier sweeps on a cron
// schedule. The sweeps themselves run on the workers.
type SweepScheduler struct {
	Spec  string
	Start StartSweepFunc
	Log   *logrus.Logger
	Now   func() time.Time
}

func NewSweepScheduler(spec string, start StartSweepFunc, log *logrus.Logger) *SweepScheduler {
	return &SweepScheduler{Spec: spec, Start: start, Log: log, Now: time.Now}
}

// RunOnce starts one run of every sweep. A kind that cannot be enqueued is
// logged and the others still start.
func (s *SweepScheduler) RunOnce(ctx context.Context) int {
	run := s.Now().UTC().Format("20060102T1504")
	started := 0
	for _, kind := range models.AllJobKinds {
		if !kind.IsSweep() {
			continue
		}
		if err := s.Start(ctx, kind, run); err != nil {
			s.Log.WithFields(logrus.Fields{"job_kind": kind.String(), "run": run}).WithError(err).Error("start sweep")
			continue
		}
		started++
	}
	s.Log.WithFields(logrus.Fields{"run": run, "started": started}).Info("sweeps scheduled")
	return started
}

// StartScheduler registers RunOnce on the cron spec and starts the cron.
// The caller stops the returned cron on shutdown.
func (s *SweepScheduler) StartScheduler() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(s.Spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return nil, gerrors.Wrapf(err, "schedule sweeps %q", s.Spec)
	}
	c.Start()
	s.Log.WithField("spec", s.Spec).Info("sweep scheduler started")
	return c, nil
}
