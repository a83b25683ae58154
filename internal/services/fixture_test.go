package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/events"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type recordingPublisher struct {
	mu          sync.Mutex
	commissions []models.Commission
	tiers       []events.TierChanged
	err         error
}

func (p *recordingPublisher) PublishCommissions(_ context.Context, cs []models.Commission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.commissions = append(p.commissions, cs...)
	return nil
}

func (p *recordingPublisher) PublishTierChanged(_ context.Context, e events.TierChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tiers = append(p.tiers, e)
	return nil
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *repository.MemoryStore
	metrics *metrics.Metrics
	log     *logrus.Logger
	hook    *logtest.Hook
	pub     *recordingPublisher

	catalog     *TierCatalogService
	graph       *ReferralGraph
	matrix      *MatrixService
	investments *InvestmentService
	commissions *CommissionService
	clawbacks   *ClawbackService
	tiers       *TierUpgradeService
}

func newFixture(t *testing.T) *fixture {
	log, hook := logtest.NewNullLogger()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   repository.NewMemoryStore(),
		metrics: metrics.New(prometheus.NewRegistry()),
		log:     log,
		hook:    hook,
		pub:     &recordingPublisher{},
	}
	f.catalog = NewTierCatalogService(f.store, log)
	f.graph = NewReferralGraph(f.store, log)
	f.matrix = NewMatrixService(f.store, f.metrics, log, 10)
	f.investments = NewInvestmentService(f.store, log)
	f.commissions = NewCommissionService(f.store, f.pub, f.metrics, log, CommissionOptions{
		MinCommission: decimal.Zero,
		AutoSettle:    true,
		Currency:      "USD",
	})
	f.clawbacks = NewClawbackService(f.store, f.metrics, log, "USD")
	f.tiers = NewTierUpgradeService(f.store, f.pub, f.metrics, log)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rates(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vals))
	for _, v := range vals {
		out = append(out, dec(v))
	}
	return out
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// publish stores a tier and returns the stored row.
func (f *fixture) publish(in TierInput) models.Tier {
	f.t.Helper()
	if in.MaxPayoutCapRatio.IsZero() {
		in.MaxPayoutCapRatio = dec("1")
	}
	tier, err := f.catalog.Publish(f.ctx, in)
	require.NoError(f.t, err)
	return *tier
}

// chainTier is the entry tier of the worked examples: 7% then 2%.
func (f *fixture) chainTier() models.Tier {
	return f.publish(TierInput{Key: "starter", Name: "Starter", Order: 1, RateByLevel: rates("7", "2")})
}

func (f *fixture) register(id, referrer string) models.Member {
	f.t.Helper()
	m, err := f.graph.Register(f.ctx, RegisterMemberInput{MemberID: id, ReferrerID: referrer})
	require.NoError(f.t, err)
	return *m
}

// join registers id under sponsor and places it in the sponsor's matrix.
func (f *fixture) join(id, sponsor string) models.MatrixSlot {
	f.t.Helper()
	f.register(id, sponsor)
	slot, err := f.matrix.Place(f.ctx, sponsor, id)
	require.NoError(f.t, err)
	return *slot
}

func (f *fixture) invest(id, memberID, amount string, at time.Time) models.Investment {
	f.t.Helper()
	inv, err := f.investments.Complete(f.ctx, InvestmentInput{ID: id, MemberID: memberID, Amount: dec(amount), CompletedAt: at})
	require.NoError(f.t, err)
	return *inv
}

func (f *fixture) tx(fn func(tx repository.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.WithinTx(f.ctx, fn))
}

func (f *fixture) wallet(memberID string) models.Wallet {
	f.t.Helper()
	var w models.Wallet
	f.tx(func(tx repository.Tx) error {
		got, err := tx.LockWallet(f.ctx, memberID)
		if err != nil {
			return err
		}
		w = *got
		return nil
	})
	return w
}

func (f *fixture) member(id string) models.Member {
	f.t.Helper()
	var m models.Member
	f.tx(func(tx repository.Tx) error {
		got, err := tx.GetMember(f.ctx, id)
		if err != nil {
			return err
		}
		m = *got
		return nil
	})
	return m
}

func (f *fixture) setWallet(memberID, available string) {
	f.t.Helper()
	f.tx(func(tx repository.Tx) error {
		w, err := tx.LockWallet(f.ctx, memberID)
		if err != nil {
			return err
		}
		w.AvailableBalance = dec(available)
		return tx.SaveWallet(f.ctx, w)
	})
}

func byReferrer(cs []models.Commission, kind models.CommissionKind) map[string]models.Commission {
	out := map[string]models.Commission{}
	for _, c := range cs {
		if c.Kind == kind {
			out[c.ReferrerID] = c
		}
	}
	return out
}

func sum(cs []models.Commission) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Amount)
	}
	return total
}

var jan1 = time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC)
