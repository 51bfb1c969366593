package parquet

import (
	"context"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// revenueRow is the on-disk layout of a revenue point.
type revenueRow struct {
	Timestamp        int64    `parquet:"timestamp"`
	BlockNumber      uint64   `parquet:"block_number"`
	PoolName         string   `parquet:"pool_name,dict"`
	PoolAddress      string   `parquet:"pool_addr,dict"`
	LPTokenAddress   string   `parquet:"lp_token_addr,dict"`
	VirtualPrice     float64  `parquet:"lp_token_virtual_price"`
	TotalSupply      float64  `parquet:"total_supply_lp_token"`
	VirtualPriceDiff *float64 `parquet:"lp_token_virtual_price_diff,optional"`
	SwapFeeRevenue   *float64 `parquet:"swap_fee_revenue,optional"`
}

// RevenueStore implements storage.RevenueStore on a single parquet file.
type RevenueStore struct {
	path string
}

// NewRevenueStore creates a revenue store for the file at path.
func NewRevenueStore(path string) *RevenueStore {
	return &RevenueStore{path: path}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

// Save replaces the file with points.
func (s *RevenueStore) Save(_ context.Context, points []domain.RevenuePoint) error {
	rows := make([]revenueRow, len(points))
	for i, p := range points {
		rows[i] = revenueRow{
			Timestamp:        p.Timestamp,
			BlockNumber:      p.BlockNumber,
			PoolName:         p.PoolName,
			PoolAddress:      p.PoolAddress,
			LPTokenAddress:   p.LPTokenAddress,
			VirtualPrice:     p.VirtualPrice,
			TotalSupply:      p.TotalSupply,
			VirtualPriceDiff: p.VirtualPriceDiff,
			SwapFeeRevenue:   p.SwapFeeRevenue,
		}
	}
	return writeRowsAtomic(s.path, rows)
}

// Load reads revenue points back. A missing file reads as no points.
func (s *RevenueStore) Load(ctx context.Context) ([]domain.RevenuePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := readRows[revenueRow](s.path)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RevenuePoint, len(rows))
	for i, r := range rows {
		out[i] = domain.RevenuePoint{
			Observation: domain.Observation{
				Timestamp:      r.Timestamp,
				BlockNumber:    r.BlockNumber,
				PoolName:       r.PoolName,
				PoolAddress:    r.PoolAddress,
				LPTokenAddress: r.LPTokenAddress,
				VirtualPrice:   r.VirtualPrice,
				TotalSupply:    r.TotalSupply,
			},
			VirtualPriceDiff: r.VirtualPriceDiff,
			SwapFeeRevenue:   r.SwapFeeRevenue,
		}
	}
	return out, nil
}

// Location returns the file path.
func (s *RevenueStore) Location() string {
	return s.path
}
