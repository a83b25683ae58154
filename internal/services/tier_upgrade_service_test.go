package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

type ladder struct {
	starter, bronze, gold models.Tier
}

func (f *fixture) ladder() ladder {
	return ladder{
		starter: f.chainTier(),
		bronze:  f.publish(TierInput{Key: "bronze", Name: "Bronze", Order: 2, MinimumQualifyingVolume: dec("1000"), RateByLevel: rates("8", "3")}),
		gold:    f.publish(TierInput{Key: "gold", Name: "Gold", Order: 3, MinimumQualifyingVolume: dec("2500"), RateByLevel: rates("10", "4", "2")}),
	}
}

func (f *fixture) setMember(id string, tier models.Tier, volume string) {
	f.t.Helper()
	f.tx(func(tx repository.Tx) error {
		m, err := tx.LockMember(f.ctx, id)
		if err != nil {
			return err
		}
		m.TierID = tier.ID
		m.LifetimeQualifyingVolume = dec(volume)
		return tx.SaveMember(f.ctx, m)
	})
}

func TestEvaluateUpgradesToHighestEligible(t *testing.T) {
	f := newFixture(t)
	l := f.ladder()
	f.register("u", "")
	f.setMember("u", l.bronze, "3000")

	res, err := f.tiers.Evaluate(f.ctx, "u", "manual")
	require.NoError(t, err)
	assert.True(t, res.Upgraded)
	assert.Equal(t, l.bronze.ID, res.From.ID)
	assert.Equal(t, l.gold.ID, res.To.ID)
	assert.Equal(t, l.gold.ID, f.member("u").TierID)

	history, err := f.tiers.History(f.ctx, "u")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, l.bronze.ID, history[0].FromTierID)
	assert.Equal(t, l.gold.ID, history[0].TierID)
	assert.Equal(t, "manual", history[0].Reason)

	require.Len(t, f.pub.tiers, 1)
	assert.Equal(t, "gold", f.pub.tiers[0].ToTierKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TierUpgradesTotal.WithLabelValues("gold")))

	// Already on the right tier: nothing more happens.
	res, err = f.tiers.Evaluate(f.ctx, "u", "manual")
	require.NoError(t, err)
	assert.False(t, res.Upgraded)
	history, err = f.tiers.History(f.ctx, "u")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, f.pub.tiers, 1)
}

func TestEvaluateNeverDowngrades(t *testing.T) {
	f := newFixture(t)
	l := f.ladder()
	f.register("u", "")

	for _, volume := range []string{"0", "999", "1000", "200", "2600", "0"} {
		before := f.member("u")
		f.setMember("u", mustTier(t, f, before.TierID), volume)

		res, err := f.tiers.Evaluate(f.ctx, "u", "check")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.To.Order, res.From.Order, "volume %s", volume)
	}
	assert.Equal(t, l.gold.ID, f.member("u").TierID)

	history, err := f.tiers.History(f.ctx, "u")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func mustTier(t *testing.T, f *fixture, id string) models.Tier {
	var tier models.Tier
	f.tx(func(tx repository.Tx) error {
		got, err := tx.GetTier(f.ctx, id)
		if err != nil {
			return err
		}
		tier = *got
		return nil
	})
	return tier
}

func TestInvestmentRaisesVolumeAndTier(t *testing.T) {
	f := newFixture(t)
	l := f.ladder()
	f.register("u", "")

	inv := f.invest("inv-1", "u", "1200.005", jan1)
	requireAmount(t, "1200.01", inv.Amount)
	assert.Equal(t, l.starter.ID, inv.TierSnapshotID)
	assert.Equal(t, models.InvestmentCompleted, inv.Status)
	requireAmount(t, "1200.01", f.member("u").LifetimeQualifyingVolume)

	res, err := f.tiers.Evaluate(f.ctx, "u", "investment inv-1")
	require.NoError(t, err)
	assert.Equal(t, "bronze", res.To.Key)

	// The next investment snapshots the new tier.
	next := f.invest("inv-2", "u", "100", jan1)
	assert.Equal(t, l.bronze.ID, next.TierSnapshotID)
}

func TestCompleteValidationAndIdempotence(t *testing.T) {
	f := newFixture(t)
	f.chainTier()
	f.register("u", "")

	_, err := f.investments.Complete(f.ctx, InvestmentInput{ID: "inv-0", MemberID: "u", Amount: dec("0")})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.investments.Complete(f.ctx, InvestmentInput{ID: "inv-0", MemberID: "ghost", Amount: dec("10")})
	assert.ErrorIs(t, err, models.ErrNotFound)
	// Rounds to zero in minor units: rejected and rolled back.
	_, err = f.investments.Complete(f.ctx, InvestmentInput{ID: "inv-0", MemberID: "u", Amount: dec("0.004")})
	assert.ErrorIs(t, err, models.ErrValidation)
	f.tx(func(tx repository.Tx) error {
		_, err := tx.GetInvestment(f.ctx, "inv-0")
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})

	f.invest("inv-1", "u", "100", jan1)
	again, err := f.investments.Complete(f.ctx, InvestmentInput{ID: "inv-1", MemberID: "u", Amount: dec("100"), CompletedAt: jan1})
	require.ErrorIs(t, err, models.ErrAlreadyProcessed)
	assert.Equal(t, "inv-1", again.ID)
	requireAmount(t, "100", f.member("u").LifetimeQualifyingVolume)
}

func TestEvaluateBatchToleratesFailures(t *testing.T) {
	f := newFixture(t)
	l := f.ladder()
	for _, id := range []string{"a", "b", "c", "d"} {
		f.register(id, "")
	}
	f.setMember("a", l.starter, "3000")
	f.setMember("c", l.starter, "1500")
	// b points at a tier row that does not exist.
	f.tx(func(tx repository.Tx) error {
		m, err := tx.LockMember(f.ctx, "b")
		if err != nil {
			return err
		}
		m.TierID = "missing"
		return tx.SaveMember(f.ctx, m)
	})

	res, err := f.tiers.EvaluateBatch(f.ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Changed)
	assert.True(t, res.Done)
	assert.Equal(t, "d", res.NextCursor)

	assert.Equal(t, l.gold.ID, f.member("a").TierID)
	assert.Equal(t, l.bronze.ID, f.member("c").TierID)
}
