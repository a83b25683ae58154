package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobKindTaskTypesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range AllJobKinds {
		tt := k.TaskType()
		assert.False(t, seen[tt], "duplicate task type %s", tt)
		seen[tt] = true

		parsed, ok := ParseJobKind(tt)
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}

	_, ok := ParseJobKind("payout:send")
	assert.False(t, ok)
	assert.Panics(t, func() { _ = JobKind(99).TaskType() })
}

func TestJobKindIsSweep(t *testing.T) {
	assert.True(t, JobSweepTiers.IsSweep())
	assert.False(t, JobCheckTier.IsSweep())
}

func TestRatesScan(t *testing.T) {
	r := Rates{decimal.NewFromInt(7), decimal.RequireFromString("2.5")}
	v, err := r.Value()
	require.NoError(t, err)

	var back Rates
	require.NoError(t, back.Scan(v))
	require.Len(t, back, 2)
	assert.True(t, back[1].Equal(decimal.RequireFromString("2.5")))

	require.NoError(t, back.Scan([]byte(`["1"]`)))
	assert.Len(t, back, 1)
	assert.Error(t, back.Scan(42))
}
