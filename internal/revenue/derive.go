// Package revenue derives per-pool swap fee revenue from a collected
// observation series. The virtual price of a Curve pool only grows with
// fees, so the fee income between two observations is the virtual price
// increase times the LP supply outstanding at the later one.
package revenue

import (
	"sort"

	"curve-lp-lab/internal/domain"
)

// FeeSides scales the virtual price difference to total swap fee revenue.
// LPs keep half of each swap fee; the other half goes to the admin side.
const FeeSides = 2

// Derive computes revenue points for rows.
// Output is ordered by pool name, then block ascending. The first point of each
// pool has nil diff and revenue. rows is not modified.
func Derive(rows []domain.Observation) []domain.RevenuePoint {
	sorted := make([]domain.Observation, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PoolName != sorted[j].PoolName {
			return sorted[i].PoolName < sorted[j].PoolName
		}
		return sorted[i].BlockNumber < sorted[j].BlockNumber
	})

	out := make([]domain.RevenuePoint, len(sorted))
	for i, o := range sorted {
		out[i] = domain.RevenuePoint{Observation: o}
		if i == 0 || sorted[i-1].PoolName != o.PoolName {
			continue
		}

		diff := o.VirtualPrice - sorted[i-1].VirtualPrice
		revenue := diff * o.TotalSupply * FeeSides
		out[i].VirtualPriceDiff = &diff
		out[i].SwapFeeRevenue = &revenue
	}
	return out
}

// PoolSummary aggregates the revenue of one pool over a series.
type PoolSummary struct {
	PoolName     string
	Points       int
	FirstBlock   uint64
	LastBlock    uint64
	TotalRevenue float64
}

// Summarize totals revenue per pool. points must be ordered as Derive returns them.
func Summarize(points []domain.RevenuePoint) []PoolSummary {
	var out []PoolSummary
	for _, p := range points {
		if len(out) == 0 || out[len(out)-1].PoolName != p.PoolName {
			out = append(out, PoolSummary{PoolName: p.PoolName, FirstBlock: p.BlockNumber})
		}
		s := &out[len(out)-1]
		s.Points++
		s.LastBlock = p.BlockNumber
		if p.SwapFeeRevenue != nil {
			s.TotalRevenue += *p.SwapFeeRevenue
		}
	}
	return out
}
