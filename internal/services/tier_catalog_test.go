package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/models"
	"compensation-service/internal/repository"
)

func tierRow(key string, order int, version int, min string) models.Tier {
	return models.Tier{
		ID:                      fmt.Sprintf("%s-v%d", key, version),
		Key:                     key,
		Version:                 version,
		Name:                    key,
		Order:                   order,
		MinimumQualifyingVolume: dec(min),
		RateByLevel:             models.Rates(rates("5")),
		MaxPayoutCapRatio:       dec("1"),
	}
}

func TestNewTierCatalogKeepsLatestVersion(t *testing.T) {
	c, err := NewTierCatalog([]models.Tier{
		tierRow("gold", 3, 1, "2500"),
		tierRow("starter", 1, 1, "0"),
		tierRow("gold", 3, 2, "3000"),
		tierRow("bronze", 2, 1, "1000"),
	})
	require.NoError(t, err)

	require.Len(t, c.Tiers, 3)
	assert.Equal(t, []string{"starter", "bronze", "gold"}, []string{c.Tiers[0].Key, c.Tiers[1].Key, c.Tiers[2].Key})
	assert.Equal(t, 2, c.Tiers[2].Version)
	assert.Equal(t, 4, c.Version)
	assert.Equal(t, "starter", c.Lowest().Key)

	// A superseded row still ranks by its key.
	assert.Equal(t, 3, c.OrderOf(tierRow("gold", 3, 1, "2500")))
}

func TestHighestEligible(t *testing.T) {
	c, err := NewTierCatalog([]models.Tier{
		tierRow("starter", 1, 1, "0"),
		tierRow("bronze", 2, 1, "1000"),
		tierRow("gold", 3, 1, "2500"),
	})
	require.NoError(t, err)

	cases := map[string]string{"0": "starter", "999.99": "starter", "1000": "bronze", "2500": "gold", "1000000": "gold"}
	for volume, want := range cases {
		got, ok := c.HighestEligible(dec(volume))
		require.True(t, ok)
		assert.Equal(t, want, got.Key, "volume %s", volume)
	}
}

func TestTierCatalogValidation(t *testing.T) {
	tooMany := tierRow("starter", 1, 1, "0")
	tooMany.RateByLevel = models.Rates(rates("1", "1", "1", "1", "1", "1", "1", "1"))

	overHundred := tierRow("starter", 1, 1, "0")
	overHundred.RateByLevel = models.Rates(rates("100.01"))

	negativeMatrix := tierRow("starter", 1, 1, "0")
	negativeMatrix.MatrixRateByDepth = models.Rates(rates("-1"))

	noCap := tierRow("starter", 1, 1, "0")
	noCap.MaxPayoutCapRatio = dec("0")

	cases := map[string][]models.Tier{
		"empty":              nil,
		"too many levels":    {tooMany},
		"rate over 100":      {overHundred},
		"negative matrix":    {negativeMatrix},
		"no payout cap":      {noCap},
		"shared order":       {tierRow("starter", 1, 1, "0"), tierRow("bronze", 1, 1, "1000")},
		"decreasing minimum": {tierRow("starter", 1, 1, "1000"), tierRow("bronze", 2, 1, "500")},
	}
	for name, rows := range cases {
		_, err := NewTierCatalog(rows)
		assert.ErrorIs(t, err, models.ErrValidation, name)
	}
}

func TestRateLookups(t *testing.T) {
	tier := models.Tier{RateByLevel: models.Rates(rates("7", "2")), MatrixRateByDepth: models.Rates(rates("1"))}
	requireAmount(t, "7", RateForLevel(tier, 1))
	requireAmount(t, "2", RateForLevel(tier, 2))
	requireAmount(t, "0", RateForLevel(tier, 3))
	requireAmount(t, "0", RateForLevel(tier, 0))
	requireAmount(t, "1", MatrixRateForDepth(tier, 1))
	requireAmount(t, "0", MatrixRateForDepth(tier, 2))
}

func TestPublishVersionsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	first := f.publish(TierInput{Key: "starter", Name: "Starter", Order: 1, RateByLevel: rates("7", "2")})
	assert.Equal(t, 1, first.Version)

	second := f.publish(TierInput{Key: "starter", Name: "Starter", Order: 1, RateByLevel: rates("8", "2")})
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)

	// Would put a higher order below a lower minimum.
	_, err := f.catalog.Publish(f.ctx, TierInput{Key: "bronze", Name: "Bronze", Order: 0, MinimumQualifyingVolume: dec("1000"), MaxPayoutCapRatio: dec("1")})
	require.ErrorIs(t, err, models.ErrValidation)

	c, err := f.catalog.Load(f.ctx)
	require.NoError(t, err)
	require.Len(t, c.Tiers, 1)
	assert.Equal(t, second.ID, c.Tiers[0].ID)
	assert.Equal(t, 2, c.Version)

	// The old row stays readable for commissions that snapshotted it.
	f.tx(func(tx repository.Tx) error {
		old, err := tx.GetTier(f.ctx, first.ID)
		if err != nil {
			return err
		}
		requireAmount(t, "7", old.RateByLevel[0])
		return nil
	})
}
