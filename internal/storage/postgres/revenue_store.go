package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage"
)

// RevenueStore implements storage.RevenueStore using PostgreSQL.
type RevenueStore struct {
	pool    *Pool
	dataset string
}

// NewRevenueStore creates a revenue store for one dataset.
func NewRevenueStore(pool *Pool, dataset string) *RevenueStore {
	return &RevenueStore{pool: pool, dataset: dataset}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

// Save replaces the dataset's revenue series in one transaction.
func (s *RevenueStore) Save(ctx context.Context, points []domain.RevenuePoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pool_revenue WHERE dataset = $1`, s.dataset); err != nil {
		return fmt.Errorf("clear revenue %s: %w", s.dataset, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"pool_revenue"},
		[]string{
			"dataset", "timestamp", "block_number", "pool_name", "pool_addr", "lp_token_addr",
			"lp_token_virtual_price", "total_supply_lp_token",
			"lp_token_virtual_price_diff", "swap_fee_revenue",
		},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			return []any{
				s.dataset, p.Timestamp, int64(p.BlockNumber), p.PoolName, p.PoolAddress,
				p.LPTokenAddress, p.VirtualPrice, p.TotalSupply,
				p.VirtualPriceDiff, p.SwapFeeRevenue,
			}, nil
		}),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy revenue: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByPool returns one pool's revenue series ordered by block.
func (s *RevenueStore) GetByPool(ctx context.Context, poolName string) ([]domain.RevenuePoint, error) {
	query := `
		SELECT timestamp, block_number, pool_name, pool_addr, lp_token_addr,
		       lp_token_virtual_price, total_supply_lp_token,
		       lp_token_virtual_price_diff, swap_fee_revenue
		FROM pool_revenue
		WHERE dataset = $1 AND pool_name = $2
		ORDER BY block_number ASC
	`

	rows, err := s.pool.Query(ctx, query, s.dataset, poolName)
	if err != nil {
		return nil, fmt.Errorf("get revenue by pool: %w", err)
	}
	defer rows.Close()

	var out []domain.RevenuePoint
	for rows.Next() {
		var p domain.RevenuePoint
		var block int64
		if err := rows.Scan(
			&p.Timestamp, &block, &p.PoolName, &p.PoolAddress, &p.LPTokenAddress,
			&p.VirtualPrice, &p.TotalSupply, &p.VirtualPriceDiff, &p.SwapFeeRevenue,
		); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		p.BlockNumber = uint64(block)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue: %w", err)
	}

	return out, nil
}

// Location returns the dataset reference.
func (s *RevenueStore) Location() string {
	return "postgres:pool_revenue/" + s.dataset
}
