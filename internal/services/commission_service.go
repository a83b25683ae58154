package services

import (
	"context"
	"sort"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/events"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type CommissionOptions struct {
	// MinCommission is the floor every paying record is raised to.
	MinCommission decimal.Decimal
	// AutoSettle creates commissions as paid and credits the referrer wallet
	// in the same transaction. Otherwise they stay pending for the payout side.
	AutoSettle bool
	Currency   string
}

type CommissionService struct {
	Store     repository.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Log       *logrus.Logger
	Options   CommissionOptions
	Now       func() time.Time
}

func NewCommissionService(store repository.Store, pub events.Publisher, m *metrics.Metrics, log *logrus.Logger, opts CommissionOptions) *CommissionService {
	return &CommissionService{
		Store:     store,
		Publisher: pub,
		Metrics:   m,
		Log:       log,
		Options:   opts,
		Now:       time.Now,
	}
}

// payoutBudget tracks what is left under the investment's payout cap.
type payoutBudget struct {
	remaining decimal.Decimal
}

// take trims amount to the remaining budget and consumes it.
func (b *payoutBudget) take(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(b.remaining) {
		amount = b.remaining
	}
	b.remaining = b.remaining.Sub(amount)
	return amount
}

func (s *CommissionService) amountFor(base, rate decimal.Decimal) decimal.Decimal {
	amt := PercentOf(base, rate)
	if amt.LessThan(s.Options.MinCommission) {
		amt = s.Options.MinCommission
	}
	return amt
}

// Calculate computes and records the commissions of one completed investment.
// Chain records walk the sponsor chain one hop per level; matrix records walk
// the investor's matrix ancestry. Each earner is priced from the tier row it
// holds at calculation time, and that row's id is stored on the record. The
// sum of all records never exceeds amount × max_payout_cap_ratio of the
// investment's own snapshot. Running it again for the same investment returns
// the stored set with ErrAlreadyProcessed.
func (s *CommissionService) Calculate(ctx context.Context, investmentID string) ([]models.Commission, error) {
	var created []models.Commission
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		inv, err := tx.LockInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		existing, err := tx.ListCommissionsByInvestment(ctx, inv.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 || inv.CommissionsCalculatedAt != nil {
			created = existing
			return gerrors.Wrapf(models.ErrAlreadyProcessed, "commissions for investment %s", inv.ID)
		}
		if inv.Status != models.InvestmentCompleted {
			return invalid("investment %s is %s, not completed", inv.ID, inv.Status)
		}

		rows, err := tx.ListTiers(ctx)
		if err != nil {
			return err
		}
		catalog, err := NewTierCatalog(rows)
		if err != nil {
			return err
		}
		tiers := indexTiers(rows)
		snapshot, err := tiers.get(inv.TierSnapshotID)
		if err != nil {
			return gerrors.Wrapf(err, "tier snapshot of investment %s", inv.ID)
		}
		investor, err := tx.GetMember(ctx, inv.MemberID)
		if err != nil {
			return err
		}

		budget := &payoutBudget{remaining: RoundMinor(inv.Amount.Mul(snapshot.MaxPayoutCapRatio))}
		status := models.CommissionPending
		if s.Options.AutoSettle {
			status = models.CommissionPaid
		}
		newCommission := func(referrerID, tierID string, kind models.CommissionKind, level int, rate, amount decimal.Decimal) models.Commission {
			return models.Commission{
				ID:             uuid.NewString(),
				ReferrerID:     referrerID,
				RefereeID:      investor.ID,
				InvestmentID:   inv.ID,
				Kind:           kind,
				Level:          level,
				Rate:           rate,
				Amount:         amount,
				TierSnapshotID: tierID,
				CatalogVersion: catalog.Version,
				Status:         status,
				CreatedAt:      s.Now(),
			}
		}

		sponsors, err := ancestors(ctx, tx, *investor, MaxChainLevels)
		if err != nil {
			return err
		}
		for i, ref := range sponsors {
			level := i + 1
			if !ref.IsActive() {
				continue
			}
			refTier, err := tiers.get(ref.TierID)
			if err != nil {
				return gerrors.Wrapf(err, "tier of referrer %s", ref.ID)
			}
			// Levels past the referrer's own table pay nothing.
			rate := RateForLevel(refTier, level)
			if !rate.IsPositive() {
				continue
			}
			amt := s.amountFor(inv.Amount, rate)
			if !amt.IsPositive() {
				continue
			}
			if amt = budget.take(amt); !amt.IsPositive() {
				break
			}
			created = append(created, newCommission(ref.ID, refTier.ID, models.CommissionChain, level, rate, amt))
		}

		matrix, err := s.matrixCommissions(ctx, tx, tiers, *investor, inv.Amount, budget)
		if err != nil {
			return err
		}
		for _, mc := range matrix {
			created = append(created, newCommission(mc.ownerID, mc.tierID, models.CommissionMatrix, mc.depth, mc.rate, mc.amount))
		}

		if err := tx.CreateCommissions(ctx, created); err != nil {
			return err
		}
		if s.Options.AutoSettle {
			if err := s.creditWallets(ctx, tx, created); err != nil {
				return err
			}
		}
		now := s.Now()
		inv.CommissionsCalculatedAt = &now
		return tx.SaveInvestment(ctx, inv)
	})
	if err != nil {
		if gerrors.Is(err, models.ErrAlreadyProcessed) {
			return created, err
		}
		return nil, err
	}

	s.afterCommit(ctx, investmentID, created)
	return created, nil
}

type matrixCommission struct {
	ownerID string
	tierID  string
	depth   int
	rate    decimal.Decimal
	amount  decimal.Decimal
}

// matrixCommissions walks up from the investor's slot, one matrix parent per
// depth. At depth d the parent earns its own tier's matrix_rate_by_depth[d] of
// the amount, capped at (positions filled d levels below it) × that tier's
// matrix_position_amount.
func (s *CommissionService) matrixCommissions(ctx context.Context, tx repository.Tx, tiers tierVersions, investor models.Member, amount decimal.Decimal, budget *payoutBudget) ([]matrixCommission, error) {
	slot, err := tx.GetSlotByOccupant(ctx, investor.ID)
	if gerrors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []matrixCommission
	visited := map[string]bool{investor.ID: true}
	ownerID := slot.OwnerID
	for depth := 1; depth <= tiers.longestMatrixTable(); depth++ {
		if visited[ownerID] {
			return nil, invalid("matrix cycle at member %s", ownerID)
		}
		visited[ownerID] = true

		owner, err := tx.GetMember(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if owner.IsActive() {
			ownerTier, err := tiers.get(owner.TierID)
			if err != nil {
				return nil, gerrors.Wrapf(err, "tier of matrix owner %s", owner.ID)
			}
			if rate := MatrixRateForDepth(ownerTier, depth); rate.IsPositive() {
				amt := s.amountFor(amount, rate)
				if ownerTier.MatrixPositionAmount.IsPositive() {
					filled, err := filledAtDepth(ctx, tx, owner.ID, depth)
					if err != nil {
						return nil, err
					}
					if limit := ownerTier.MatrixPositionAmount.Mul(decimal.NewFromInt(int64(filled))); amt.GreaterThan(limit) {
						amt = limit
					}
				}
				if amt.IsPositive() {
					if amt = budget.take(amt); !amt.IsPositive() {
						return out, nil
					}
					out = append(out, matrixCommission{ownerID: owner.ID, tierID: ownerTier.ID, depth: depth, rate: rate, amount: amt})
				}
			}
		}

		parent, err := tx.GetSlotByOccupant(ctx, ownerID)
		if gerrors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		ownerID = parent.OwnerID
	}
	return out, nil
}

// creditWallets pays settled commissions into referrer wallets. Wallets are
// locked in referrer id order so concurrent investments cannot deadlock.
func (s *CommissionService) creditWallets(ctx context.Context, tx repository.Tx, cs []models.Commission) error {
	byReferrer := map[string][]models.Commission{}
	var referrers []string
	for _, c := range cs {
		if _, ok := byReferrer[c.ReferrerID]; !ok {
			referrers = append(referrers, c.ReferrerID)
		}
		byReferrer[c.ReferrerID] = append(byReferrer[c.ReferrerID], c)
	}
	sort.Strings(referrers)

	for _, referrerID := range referrers {
		wallet, err := lockOrOpenWallet(ctx, tx, referrerID, s.Options.Currency)
		if err != nil {
			return err
		}
		for _, c := range byReferrer[referrerID] {
			wallet.AvailableBalance = wallet.AvailableBalance.Add(c.Amount)
			commissionID := c.ID
			if err := tx.CreateTransaction(ctx, &models.Transaction{
				MemberID:      referrerID,
				TransactionNo: uuid.NewString(),
				Amount:        c.Amount,
				TrxType:       models.TrxCredit,
				Subject:       "Commission",
				Description:   string(c.Kind) + " commission for investment " + c.InvestmentID,
				CommissionID:  &commissionID,
				Balance:       wallet.AvailableBalance,
			}); err != nil {
				return err
			}
		}
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}
	}
	return nil
}

func lockOrOpenWallet(ctx context.Context, tx repository.Tx, memberID, currency string) (*models.Wallet, error) {
	w, err := tx.LockWallet(ctx, memberID)
	if gerrors.Is(err, models.ErrNotFound) {
		return &models.Wallet{MemberID: memberID, Currency: currency}, nil
	}
	return w, err
}

func (s *CommissionService) afterCommit(ctx context.Context, investmentID string, created []models.Commission) {
	total := decimal.Zero
	for _, c := range created {
		s.Metrics.CommissionsCreatedTotal.WithLabelValues(string(c.Kind)).Inc()
		s.Metrics.CommissionAmountTotal.WithLabelValues(string(c.Kind)).Add(c.Amount.InexactFloat64())
		total = total.Add(c.Amount)
	}
	entry := s.Log.WithFields(logrus.Fields{"investment_id": investmentID, "records": len(created), "total": total.String()})
	entry.Info("commissions calculated")

	if err := s.Publisher.PublishCommissions(ctx, created); err != nil {
		s.Metrics.EventPublishFailures.WithLabelValues("commission.created").Inc()
		entry.WithError(err).Error("publish commission events")
	}
}

// CommissionLine is a commission as reported to the payout side: the stored
// amount, what a clawback reversed, and the net.
type CommissionLine struct {
	models.Commission
	Reversed decimal.Decimal `json:"reversed"`
	Net      decimal.Decimal `json:"net"`
}

// Statement is the commission read model of one investment.
func (s *CommissionService) Statement(ctx context.Context, investmentID string) ([]CommissionLine, error) {
	var lines []CommissionLine
	err := s.Store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetInvestment(ctx, investmentID); err != nil {
			return err
		}
		cs, err := tx.ListCommissionsByInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		rs, err := tx.ListReversalsByInvestment(ctx, investmentID)
		if err != nil {
			return err
		}
		byCommission := make(map[string]*models.CommissionReversal, len(rs))
		for i := range rs {
			byCommission[rs[i].CommissionID] = &rs[i]
		}
		for _, c := range cs {
			r := byCommission[c.ID]
			line := CommissionLine{Commission: c, Reversed: decimal.Zero, Net: NetAmount(c, r)}
			if r != nil {
				line.Reversed = r.Amount
			}
			lines = append(lines, line)
		}
		return nil
	})
	return lines, err
}

// CalculateBatch calculates one page of completed investments that have no
// commissions yet.
func (s *CommissionService) CalculateBatch(ctx context.Context, cursor string, limit int) (BatchResult, error) {
	ids, err := listPage(ctx, s.Store, func(tx repository.Tx) ([]string, error) {
		return tx.ListUncalculatedInvestmentIDs(ctx, cursor, limit)
	})
	if err != nil {
		return BatchResult{}, err
	}
	log := s.Log.WithFields(logrus.Fields{"sweep": "commissions", "cursor": cursor})
	return RunBatch(ctx, log, ids, limit, func(ctx context.Context, id string) (bool, error) {
		_, err := s.Calculate(ctx, id)
		if gerrors.Is(err, models.ErrAlreadyProcessed) {
			return false, nil
		}
		return err == nil, err
	}), nil
}
