package consumers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/events"
	"compensation-service/internal/metrics"
	"compensation-service/internal/models"
	"compensation-service/internal/repository"
	"compensation-service/internal/services"
)

type fakeEnqueuer struct {
	pages []SweepDTO
	kinds []models.JobKind
	err   error
}

func (e *fakeEnqueuer) EnqueueSweep(_ context.Context, kind models.JobKind, page SweepDTO) error {
	if e.err != nil {
		return e.err
	}
	e.kinds = append(e.kinds, kind)
	e.pages = append(e.pages, page)
	return nil
}

func newProcessor(t *testing.T, maxDepth int) (*CompensationProcessor, *repository.MemoryStore, *fakeEnqueuer) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	store := repository.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	pub := events.NewLogPublisher(log)
	enq := &fakeEnqueuer{}

	catalog := services.NewTierCatalogService(store, log)
	_, err := catalog.Publish(context.Background(), services.TierInput{
		Key: "starter", Name: "Starter", Order: 1,
		RateByLevel:       []decimal.Decimal{decimal.NewFromInt(7), decimal.NewFromInt(2)},
		MaxPayoutCapRatio: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	_, err = catalog.Publish(context.Background(), services.TierInput{
		Key: "gold", Name: "Gold", Order: 2,
		MinimumQualifyingVolume: decimal.NewFromInt(2500),
		RateByLevel:             []decimal.Decimal{decimal.NewFromInt(10)},
		MaxPayoutCapRatio:       decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	p := &CompensationProcessor{
		Graph:       services.NewReferralGraph(store, log),
		Matrix:      services.NewMatrixService(store, m, log, maxDepth),
		Investments: services.NewInvestmentService(store, log),
		Commissions: services.NewCommissionService(store, pub, m, log, services.CommissionOptions{AutoSettle: true, Currency: "USD"}),
		Clawbacks:   services.NewClawbackService(store, m, log, "USD"),
		Tiers:       services.NewTierUpgradeService(store, pub, m, log),
		Enqueuer:    enq,
		Metrics:     m,
		Log:         log,
		PageSize:    2,
	}
	return p, store, enq
}

func balance(t *testing.T, store *repository.MemoryStore, memberID string) decimal.Decimal {
	var out decimal.Decimal
	require.NoError(t, store.WithinTx(context.Background(), func(tx repository.Tx) error {
		w, err := tx.LockWallet(context.Background(), memberID)
		if err != nil {
			return err
		}
		out = w.AvailableBalance
		return nil
	}))
	return out
}

func TestMemberRegisteredPlacesAndToleratesFullMatrix(t *testing.T) {
	p, store, _ := newProcessor(t, 1)
	ctx := context.Background()

	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "s"}))
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: id, SponsorID: "s"}))
	}
	// Redelivery is a no-op.
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "a", SponsorID: "s"}))

	require.NoError(t, store.WithinTx(ctx, func(tx repository.Tx) error {
		slots, err := tx.ListChildSlots(ctx, "s")
		require.NoError(t, err)
		assert.Len(t, slots, 3)
		_, err = tx.GetSlotByOccupant(ctx, "d")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = tx.GetMember(ctx, "d")
		assert.NoError(t, err)
		return nil
	}))
}

func TestInvestmentCompletedPaysAndUpgrades(t *testing.T) {
	p, store, _ := newProcessor(t, 10)
	ctx := context.Background()
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "r2"}))
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "r1", SponsorID: "r2"}))
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "i", SponsorID: "r1"}))

	dto := InvestmentCompletedDTO{InvestmentID: "inv-1", MemberID: "i", Amount: decimal.NewFromInt(3000), CompletedAt: time.Now()}
	require.NoError(t, p.ProcessInvestmentCompleted(ctx, dto))
	require.NoError(t, p.ProcessInvestmentCompleted(ctx, dto))

	assert.True(t, balance(t, store, "r1").Equal(decimal.NewFromInt(210)))
	assert.True(t, balance(t, store, "r2").Equal(decimal.NewFromInt(60)))

	history, err := p.Tiers.History(ctx, "i")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestWithdrawalApprovedIsIdempotent(t *testing.T) {
	p, store, _ := newProcessor(t, 10)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "r1"}))
	require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: "i", SponsorID: "r1"}))
	require.NoError(t, p.ProcessInvestmentCompleted(ctx, InvestmentCompletedDTO{InvestmentID: "inv-1", MemberID: "i", Amount: decimal.NewFromInt(1000), CompletedAt: at}))

	w := WithdrawalApprovedDTO{WithdrawalID: "w-1", InvestmentID: "inv-1", MemberID: "i", Amount: decimal.NewFromInt(1000), ApprovedAt: at.AddDate(0, 1, 0)}
	require.NoError(t, p.ProcessWithdrawalApproved(ctx, w))
	require.NoError(t, p.ProcessWithdrawalApproved(ctx, w))

	assert.True(t, balance(t, store, "r1").Equal(decimal.NewFromInt(35)))
}

func TestTierCheckUnknownMember(t *testing.T) {
	p, _, _ := newProcessor(t, 10)
	err := p.ProcessTierCheck(context.Background(), TierCheckDTO{MemberID: "ghost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, models.IsRetryable(err))
}

func TestSweepEnqueuesContinuation(t *testing.T) {
	p, _, enq := newProcessor(t, 10)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: id}))
	}

	res, err := p.ProcessSweep(ctx, models.JobSweepTiers, SweepDTO{Run: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, enq.pages, 1)
	assert.Equal(t, SweepDTO{Run: "r1", Cursor: "b"}, enq.pages[0])
	assert.Equal(t, models.JobSweepTiers, enq.kinds[0])

	res, err = p.ProcessSweep(ctx, models.JobSweepTiers, enq.pages[0])
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Len(t, enq.pages, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(p.Metrics.SweepItemsTotal.WithLabelValues("sweep:tiers", "succeeded")))
}

func TestSweepRejectsSingleEntityKind(t *testing.T) {
	p, _, _ := newProcessor(t, 10)
	_, err := p.ProcessSweep(context.Background(), models.JobCheckTier, SweepDTO{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSweepContinuationFailureIsRetryable(t *testing.T) {
	p, _, enq := newProcessor(t, 10)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, p.ProcessMemberRegistered(ctx, MemberRegisteredDTO{MemberID: id}))
	}
	enq.err = errors.New("redis down")

	_, err := p.ProcessSweep(ctx, models.JobSweepTiers, SweepDTO{Run: "r1"})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))
}

func TestSweepEntityID(t *testing.T) {
	assert.Equal(t, "r1/start", SweepDTO{Run: "r1"}.EntityID())
	assert.Equal(t, "r1/m-9", SweepDTO{Run: "r1", Cursor: "m-9"}.EntityID())
}
