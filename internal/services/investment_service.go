package services

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type InvestmentService struct {
	Store repository.Store
	Log   *logrus.Logger
	Now   func() time.Time
}

func NewInvestmentService(store repository.Store, log *logrus.Logger) *InvestmentService {
	return &InvestmentService{Store: store, Log: log, Now: time.Now}
}

type InvestmentInput struct {
	ID          string          `json:"id"`
	MemberID    string          `json:"member_id"`
	Amount      decimal.Decimal `json:"amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Complete records a completed investment, snapshots the investor's tier onto
// it and adds the amount to the investor's lifetime qualifying volume.
func (s *InvestmentService) Complete(ctx context.Context, in InvestmentInput) (*models.Investment, error) {
	if in.ID == "" || in.MemberID == "" {
		return nil, invalid("investment id and member id are required")
	}
	if !in.Amount.IsPositive() {
		return nil, invalid("investment %s: amount must be positive", in.ID)
	}
	at := in.CompletedAt
	if at.IsZero() {
		at = s.Now()
	}

	var inv *models.Investment
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetInvestment(ctx, in.ID)
		if err == nil {
			inv = existing
			return gerrors.Wrapf(models.ErrAlreadyProcessed, "investment %s", in.ID)
		}
		if !gerrors.Is(err, models.ErrNotFound) {
			return err
		}

		member, err := tx.LockMember(ctx, in.MemberID)
		if err != nil {
			return err
		}
		inv = &models.Investment{
			ID:             in.ID,
			MemberID:       member.ID,
			Amount:         RoundMinor(in.Amount),
			TierSnapshotID: member.TierID,
			Status:         models.InvestmentCompleted,
			CreatedAt:      at,
		}
		if err := tx.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		if err := addQualifyingVolume(member, inv.Amount); err != nil {
			return err
		}
		return tx.SaveMember(ctx, member)
	})
	if err != nil {
		if gerrors.Is(err, models.ErrAlreadyProcessed) {
			return inv, err
		}
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{
		"investment_id": inv.ID, "member_id": inv.MemberID, "amount": inv.Amount.String(),
	}).Info("investment recorded")
	return inv, nil
}
