package consumers

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/services"
)

// Enqueuer schedules the continuation page of a sweep.
type Enqueuer interface {
	EnqueueSweep(ctx context.Context, kind models.JobKind, page SweepDTO) error
}

type CompensationProcessor struct {
	Graph       *services.ReferralGraph
	Matrix      *services.MatrixService
	Investments *services.InvestmentService
	Commissions *services.CommissionService
	Clawbacks   *services.ClawbackService
	Tiers       *services.TierUpgradeService
	Enqueuer    Enqueuer
	Metrics     *metrics.Metrics
	Log         *logrus.Logger
	PageSize    int
}

// --- DTOs ---

type MemberRegisteredDTO struct {
	MemberID  string `json:"member_id"`
	SponsorID string `json:"sponsor_id"`
}

type InvestmentCompletedDTO struct {
	InvestmentID string          `json:"investment_id"`
	MemberID     string          `json:"member_id"`
	Amount       decimal.Decimal `json:"amount"`
	CompletedAt  time.Time       `json:"completed_at"`
}

type WithdrawalApprovedDTO struct {
	WithdrawalID string          `json:"withdrawal_id"`
	InvestmentID string          `json:"investment_id"`
	MemberID     string          `json:"member_id"`
	Amount       decimal.Decimal `json:"amount"`
	ApprovedAt   time.Time       `json:"approved_at"`
}

type TierCheckDTO struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
}

// SweepDTO is one page of a sweep run. Run stamps every page of the same run.
type SweepDTO struct {
	Run    string `json:"run"`
	Cursor string `json:"cursor"`
}

// EntityID is the id the unit is deduplicated and tagged by.
func (d MemberRegisteredDTO) EntityID() string    { return d.MemberID }
func (d InvestmentCompletedDTO) EntityID() string { return d.InvestmentID }
func (d WithdrawalApprovedDTO) EntityID() string  { return d.WithdrawalID }
func (d TierCheckDTO) EntityID() string           { return d.MemberID }

// EntityID of a sweep page is its run and cursor; the first page uses "start".
func (d SweepDTO) EntityID() string {
	cursor := d.Cursor
	if cursor == "" {
		cursor = "start"
	}
	return d.Run + "/" + cursor
}

// settled drops the idempotency short circuit, which is success for a job.
func settled(err error) error {
	if gerrors.Is(err, models.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

// --- Methods ---

// ProcessMemberRegistered adds the member to the sponsor forest and places
// them in the sponsor's matrix. A full matrix does not fail registration.
func (p *CompensationProcessor) ProcessMemberRegistered(ctx context.Context, data MemberRegisteredDTO) error {
	if _, err := p.Graph.Register(ctx, services.RegisterMemberInput{MemberID: data.MemberID, ReferrerID: data.SponsorID}); settled(err) != nil {
		return err
	}
	if data.SponsorID == "" {
		return nil
	}
	_, err := p.Matrix.Place(ctx, data.SponsorID, data.MemberID)
	if gerrors.Is(err, models.ErrCapacityExceeded) {
		return nil
	}
	return settled(err)
}

// ProcessInvestmentCompleted records the investment, pays its commissions and
// re-checks the investor's tier against the new volume.
func (p *CompensationProcessor) ProcessInvestmentCompleted(ctx context.Context, data InvestmentCompletedDTO) error {
	inv, err := p.Investments.Complete(ctx, services.InvestmentInput{
		ID:          data.InvestmentID,
		MemberID:    data.MemberID,
		Amount:      data.Amount,
		CompletedAt: data.CompletedAt,
	})
	if settled(err) != nil {
		return err
	}
	if _, err := p.Commissions.Calculate(ctx, inv.ID); settled(err) != nil {
		return err
	}
	_, err = p.Tiers.Evaluate(ctx, inv.MemberID, "investment "+inv.ID)
	return err
}

func (p *CompensationProcessor) ProcessWithdrawalApproved(ctx context.Context, data WithdrawalApprovedDTO) error {
	_, err := p.Clawbacks.Approve(ctx, services.WithdrawalInput{
		ID:           data.WithdrawalID,
		InvestmentID: data.InvestmentID,
		MemberID:     data.MemberID,
		Amount:       data.Amount,
		ApprovedAt:   data.ApprovedAt,
	})
	return settled(err)
}

func (p *CompensationProcessor) ProcessTierCheck(ctx context.Context, data TierCheckDTO) error {
	reason := data.Reason
	if reason == "" {
		reason = "check"
	}
	_, err := p.Tiers.Evaluate(ctx, data.MemberID, reason)
	return err
}

// ProcessSweep runs one page of a sweep and enqueues the next page when this
// one was full.
func (p *CompensationProcessor) ProcessSweep(ctx context.Context, kind models.JobKind, data SweepDTO) (services.BatchResult, error) {
	var (
		res services.BatchResult
		err error
	)
	switch kind {
	case models.JobSweepCommissions:
		res, err = p.Commissions.CalculateBatch(ctx, data.Cursor, p.PageSize)
	case models.JobSweepClawbacks:
		res, err = p.Clawbacks.ApplyBatch(ctx, data.Cursor, p.PageSize)
	case models.JobSweepTiers:
		res, err = p.Tiers.EvaluateBatch(ctx, data.Cursor, p.PageSize)
	case models.JobPlaceMember, models.JobCalculateCommission, models.JobApplyClawback, models.JobCheckTier:
		return res, gerrors.Wrapf(models.ErrValidation, "%s is not a sweep", kind)
	}
	if err != nil {
		return res, err
	}

	p.Metrics.SweepItemsTotal.WithLabelValues(kind.String(), "succeeded").Add(float64(res.Succeeded))
	p.Metrics.SweepItemsTotal.WithLabelValues(kind.String(), "failed").Add(float64(res.Failed))
	p.Log.WithFields(logrus.Fields{
		"job_kind":  kind.String(),
		"cursor":    data.Cursor,
		"processed": res.Processed,
		"succeeded": res.Succeeded,
		"changed":   res.Changed,
		"failed":    res.Failed,
	}).Info("sweep page finished")

	if res.Done || res.NextCursor == "" {
		return res, nil
	}
	if err := p.Enqueuer.EnqueueSweep(ctx, kind, SweepDTO{Run: data.Run, Cursor: res.NextCursor}); err != nil {
		return res, gerrors.Wrapf(err, "enqueue next %s page", kind)
	}
	return res, nil
}
