package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

func testObservations() []domain.Observation {
	return []domain.Observation{
		{Timestamp: 1635803113, BlockNumber: 13_540_001, PoolName: "3pool", PoolAddress: "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7", LPTokenAddress: "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490", VirtualPrice: 1.0187, TotalSupply: 2_981_344.25},
		// Out of block order, as after a catalog backfill: seq must preserve it
		{Timestamp: 1635803100, BlockNumber: 13_540_000, PoolName: "steth", PoolAddress: "0xDC24316b9AE028F1497c275EB9192a3Ea0f67022", LPTokenAddress: "0x06325440D014e39736583c165C2963BA99fAf14E", VirtualPrice: 1.0049, TotalSupply: 1_204_210.5},
	}
}

func TestObservationStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool, "pools.parquet")
	ctx := context.Background()

	// Unknown dataset is empty
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	want := testObservations()
	require.NoError(t, store.Save(ctx, want))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestObservationStore_SaveReplacesDataset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool, "a")
	other := NewObservationStore(pool, "b")
	ctx := context.Background()

	rows := testObservations()
	require.NoError(t, store.Save(ctx, rows[:1]))
	require.NoError(t, other.Save(ctx, rows))
	require.NoError(t, store.Save(ctx, rows))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Datasets are independent
	got, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestObservationStore_SaveDuplicateKeepsPrevious(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool, "a")
	ctx := context.Background()

	rows := testObservations()
	require.NoError(t, store.Save(ctx, rows))

	err := store.Save(ctx, append(rows, rows[0]))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRevenueStore_SaveAndGetByPool(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRevenueStore(pool, "a")
	ctx := context.Background()

	base := testObservations()[0]
	next := base
	next.BlockNumber++
	next.VirtualPrice = 1.0188

	points := []domain.RevenuePoint{
		{Observation: base},
		{Observation: next, VirtualPriceDiff: ptr(0.0001), SwapFeeRevenue: ptr(596.26885)},
	}
	require.NoError(t, store.Save(ctx, points))

	got, err := store.GetByPool(ctx, "3pool")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].SwapFeeRevenue)
	require.NotNil(t, got[1].SwapFeeRevenue)
	assert.InDelta(t, 596.26885, *got[1].SwapFeeRevenue, 1e-9)

	// Re-saving replaces rather than duplicates
	require.NoError(t, store.Save(ctx, points))
	got, err = store.GetByPool(ctx, "3pool")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
