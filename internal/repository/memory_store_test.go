package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compensation-service/internal/models"
)

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateMember(ctx, &models.Member{ID: "m1", TierID: "t1", Status: models.MemberActive}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.GetMember(ctx, "m1")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreUniqueSlots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateSlot(ctx, &models.MatrixSlot{ID: "s1", OwnerID: "a", Position: 1, OccupantID: "b"}); err != nil {
			return err
		}
		return tx.CreateSlot(ctx, &models.MatrixSlot{ID: "s2", OwnerID: "a", Position: 1, OccupantID: "c"})
	})
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)

	err = store.WithinTx(ctx, func(tx Tx) error {
		slots, err := tx.ListChildSlots(ctx, "a")
		assert.Empty(t, slots)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryStoreUniqueCommissionLevel(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateCommissions(ctx, []models.Commission{
			{ID: "c1", InvestmentID: "i1", Kind: models.CommissionChain, Level: 1, Amount: decimal.NewFromInt(1)},
			{ID: "c2", InvestmentID: "i1", Kind: models.CommissionChain, Level: 1, Amount: decimal.NewFromInt(1)},
		})
	})
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
}

func TestMemoryStorePaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithinTx(ctx, func(tx Tx) error {
		for _, id := range []string{"d", "a", "c", "b", "e"} {
			if err := tx.CreateMember(ctx, &models.Member{ID: id, Status: models.MemberActive}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.WithinTx(ctx, func(tx Tx) error {
		page, err := tx.ListMemberIDs(ctx, "", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, page)

		page, err = tx.ListMemberIDs(ctx, "b", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, page)

		page, err = tx.ListMemberIDs(ctx, "d", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"e"}, page)
		return nil
	}))
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemoryStore().WithinTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
