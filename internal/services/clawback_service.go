package services

import (
	"context"
	"sort"
	"strconv"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

// ElapsedMonths counts whole calendar months from from to to. A month only
// counts once the same day of month and time of day has been reached.
func ElapsedMonths(from, to time.Time) int {
	to = to.In(from.Location())
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	anchor := time.Date(to.Year(), to.Month(), from.Day(), from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	if months > 0 && to.Before(anchor) {
		months--
	}
	if months < 0 && to.After(anchor) {
		months++
	}
	return months
}

// ClawbackPercent is the share of a paid commission reversed when the
// investment is withdrawn after the given number of whole months. Callers
// reject negative months.
func ClawbackPercent(months int) int {
	switch {
	case months <= 1:
		return 50
	case months <= 3:
		return 25
	default:
		return 0
	}
}

// NetAmount is the reported value of a commission after its reversal, if any.
func NetAmount(c models.Commission, r *models.CommissionReversal) decimal.Decimal {
	if r == nil {
		return c.Amount
	}
	return c.Amount.Sub(r.Amount)
}

type WithdrawalInput struct {
	ID           string          `json:"id"`
	InvestmentID string          `json:"investment_id"`
	MemberID     string          `json:"member_id"`
	Amount       decimal.Decimal `json:"amount"`
	ApprovedAt   time.Time       `json:"approved_at"`
}

type ClawbackResult struct {
	WithdrawalID  string                      `json:"withdrawal_id"`
	InvestmentID  string                      `json:"investment_id"`
	ElapsedMonths int                         `json:"elapsed_months"`
	Percent       int                         `json:"percent"`
	Reversals     []models.CommissionReversal `json:"reversals"`
	Total         decimal.Decimal             `json:"total"`
	Deficit       decimal.Decimal             `json:"deficit"`
}

type ClawbackService struct {
	Store    repository.Store
	Metrics  *metrics.Metrics
	Log      *logrus.Logger
	Currency string
	Now      func() time.Time
}

func NewClawbackService(store repository.Store, m *metrics.Metrics, log *logrus.Logger, currency string) *ClawbackService {
	return &ClawbackService{Store: store, Metrics: m, Log: log, Currency: currency, Now: time.Now}
}

// Approve records an approved withdrawal and applies its clawback in the same
// transaction. Re-delivering the same withdrawal returns the stored result
// with ErrAlreadyProcessed.
func (s *ClawbackService) Approve(ctx context.Context, in WithdrawalInput) (*ClawbackResult, error) {
	if in.ID == "" || in.InvestmentID == "" {
		return nil, invalid("withdrawal id and investment id are required")
	}
	if in.ApprovedAt.IsZero() {
		return nil, invalid("withdrawal %s has no approval time", in.ID)
	}
	return s.run(ctx, in.ID, func(tx repository.Tx) (*models.WithdrawalRequest, error) {
		w, err := tx.LockWithdrawal(ctx, in.ID)
		if err == nil {
			return w, nil
		}
		if !gerrors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		w = &models.WithdrawalRequest{
			ID:           in.ID,
			InvestmentID: in.InvestmentID,
			MemberID:     in.MemberID,
			Amount:       RoundMinor(in.Amount),
			ApprovedAt:   in.ApprovedAt,
		}
		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return nil, err
		}
		return w, nil
	})
}

// Apply runs the clawback of a withdrawal that is already recorded.
func (s *ClawbackService) Apply(ctx context.Context, withdrawalID string) (*ClawbackResult, error) {
	return s.run(ctx, withdrawalID, func(tx repository.Tx) (*models.WithdrawalRequest, error) {
		return tx.LockWithdrawal(ctx, withdrawalID)
	})
}

func (s *ClawbackService) run(ctx context.Context, withdrawalID string, load func(tx repository.Tx) (*models.WithdrawalRequest, error)) (*ClawbackResult, error) {
	var res *ClawbackResult
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		w, err := load(tx)
		if err != nil {
			return err
		}
		res, err = s.apply(ctx, tx, w)
		return err
	})
	if err != nil {
		if gerrors.Is(err, models.ErrAlreadyProcessed) {
			return res, err
		}
		return nil, err
	}

	s.Metrics.ClawbacksTotal.WithLabelValues(strconv.Itoa(res.Percent)).Inc()
	s.Metrics.ClawbackAmountTotal.Add(res.Total.InexactFloat64())
	s.Metrics.ClawbackDeficitTotal.Add(res.Deficit.InexactFloat64())
	s.Log.WithFields(logrus.Fields{
		"withdrawal_id":  withdrawalID,
		"investment_id":  res.InvestmentID,
		"elapsed_months": res.ElapsedMonths,
		"percent":        res.Percent,
		"reversed":       res.Total.String(),
		"deficit":        res.Deficit.String(),
	}).Info("clawback applied")
	return res, nil
}

func (s *ClawbackService) apply(ctx context.Context, tx repository.Tx, w *models.WithdrawalRequest) (*ClawbackResult, error) {
	inv, err := tx.LockInvestment(ctx, w.InvestmentID)
	if err != nil {
		return nil, gerrors.Wrapf(err, "investment of withdrawal %s", w.ID)
	}
	if w.MemberID != "" && w.MemberID != inv.MemberID {
		return nil, invalid("withdrawal %s: investment %s belongs to another member", w.ID, inv.ID)
	}
	months := ElapsedMonths(inv.CreatedAt, w.ApprovedAt)
	if months < 0 || w.ApprovedAt.Before(inv.CreatedAt) {
		return nil, invalid("withdrawal %s approved before investment %s was made", w.ID, inv.ID)
	}
	res := &ClawbackResult{
		WithdrawalID:  w.ID,
		InvestmentID:  inv.ID,
		ElapsedMonths: months,
		Percent:       ClawbackPercent(months),
		Total:         decimal.Zero,
		Deficit:       decimal.Zero,
	}

	if w.ClawbackAppliedAt != nil {
		reversals, err := tx.ListReversalsByInvestment(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range reversals {
			if r.WithdrawalID == w.ID {
				res.add(r)
			}
		}
		return res, gerrors.Wrapf(models.ErrAlreadyProcessed, "clawback of withdrawal %s", w.ID)
	}
	if inv.Status == models.InvestmentWithdrawn {
		return nil, invalid("investment %s is already withdrawn", inv.ID)
	}

	if res.Percent > 0 {
		commissions, err := tx.ListCommissionsByInvestment(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		if err := s.reverse(ctx, tx, w, res, commissions); err != nil {
			return nil, err
		}
	}

	now := s.Now()
	inv.Status = models.InvestmentWithdrawn
	if err := tx.SaveInvestment(ctx, inv); err != nil {
		return nil, err
	}
	w.ClawbackAppliedAt = &now
	if err := tx.SaveWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	return res, nil
}

// reverse writes one reversal per paid commission. Wallets are debited in
// referrer id order; a debit larger than the balance empties the wallet and
// the rest becomes deficit.
func (s *ClawbackService) reverse(ctx context.Context, tx repository.Tx, w *models.WithdrawalRequest, res *ClawbackResult, commissions []models.Commission) error {
	paid := make([]models.Commission, 0, len(commissions))
	for _, c := range commissions {
		if c.Status == models.CommissionPaid {
			paid = append(paid, c)
		}
	}
	sort.SliceStable(paid, func(i, j int) bool { return paid[i].ReferrerID < paid[j].ReferrerID })

	percent := decimal.NewFromInt(int64(res.Percent))
	var wallet *models.Wallet
	for i := range paid {
		c := paid[i]
		amount := PercentOf(c.Amount, percent)
		if !amount.IsPositive() {
			continue
		}
		if wallet == nil || wallet.MemberID != c.ReferrerID {
			if wallet != nil {
				if err := tx.SaveWallet(ctx, wallet); err != nil {
					return err
				}
			}
			var err error
			if wallet, err = lockOrOpenWallet(ctx, tx, c.ReferrerID, s.Currency); err != nil {
				return err
			}
		}

		debit := amount
		deficit := decimal.Zero
		if debit.GreaterThan(wallet.AvailableBalance) {
			debit = decimal.Max(wallet.AvailableBalance, decimal.Zero)
			deficit = amount.Sub(debit)
		}
		wallet.AvailableBalance = wallet.AvailableBalance.Sub(debit)
		wallet.DeficitBalance = wallet.DeficitBalance.Add(deficit)

		r := models.CommissionReversal{
			ID:              uuid.NewString(),
			CommissionID:    c.ID,
			WithdrawalID:    w.ID,
			ReferrerID:      c.ReferrerID,
			ClawbackPercent: res.Percent,
			Amount:          amount,
			Deficit:         deficit,
			CreatedAt:       s.Now(),
		}
		if err := tx.CreateReversal(ctx, &r); err != nil {
			return err
		}
		commissionID := c.ID
		if err := tx.CreateTransaction(ctx, &models.Transaction{
			MemberID:      c.ReferrerID,
			TransactionNo: uuid.NewString(),
			Amount:        debit,
			TrxType:       models.TrxDebit,
			Subject:       "Commission clawback",
			Description:   strconv.Itoa(res.Percent) + "% clawback for withdrawal " + w.ID + ", deficit " + deficit.StringFixed(MinorUnits),
			CommissionID:  &commissionID,
			Balance:       wallet.AvailableBalance,
		}); err != nil {
			return err
		}
		c.Status = models.CommissionReversed
		if err := tx.SaveCommission(ctx, &c); err != nil {
			return err
		}
		res.add(r)
	}
	if wallet != nil {
		return tx.SaveWallet(ctx, wallet)
	}
	return nil
}

func (r *ClawbackResult) add(rev models.CommissionReversal) {
	r.Reversals = append(r.Reversals, rev)
	r.Total = r.Total.Add(rev.Amount)
	r.Deficit = r.Deficit.Add(rev.Deficit)
}

// ApplyBatch applies one page of approved withdrawals whose clawback has not run.
func (s *ClawbackService) ApplyBatch(ctx context.Context, cursor string, limit int) (BatchResult, error) {
	ids, err := listPage(ctx, s.Store, func(tx repository.Tx) ([]string, error) {
		return tx.ListPendingClawbackIDs(ctx, cursor, limit)
	})
	if err != nil {
		return BatchResult{}, err
	}
	log := s.Log.WithFields(logrus.Fields{"sweep": "clawbacks", "cursor": cursor})
	return RunBatch(ctx, log, ids, limit, func(ctx context.Context, id string) (bool, error) {
		_, err := s.Apply(ctx, id)
		if gerrors.Is(err, models.ErrAlreadyProcessed) {
			return false, nil
		}
		return err == nil, err
	}), nil
}
