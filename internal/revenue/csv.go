package revenue

import (
	"fmt"
	"strconv"
	"strings"

	"curve-lp-lab/internal/domain"
)

// RenderCSV renders revenue points as a CSV string.
// Undefined diff and revenue cells are left empty.
func RenderCSV(points []domain.RevenuePoint) string {
	var sb strings.Builder

	// Header
	sb.WriteString("timestamp,block_number,pool_name,pool_addr,lp_token_addr,")
	sb.WriteString("lp_token_virtual_price,total_supply_lp_token,")
	sb.WriteString("lp_token_virtual_price_diff,swap_fee_revenue\n")

	// Rows
	for _, p := range points {
		sb.WriteString(fmt.Sprintf("%d,%d,%s,%s,%s,%s,%s,%s,%s\n",
			p.Timestamp,
			p.BlockNumber,
			csvField(p.PoolName),
			p.PoolAddress,
			p.LPTokenAddress,
			formatFloat(p.VirtualPrice),
			formatFloat(p.TotalSupply),
			formatOptional(p.VirtualPriceDiff),
			formatOptional(p.SwapFeeRevenue),
		))
	}

	return sb.String()
}

// RenderSummaryCSV renders per-pool totals as a CSV string.
func RenderSummaryCSV(summaries []PoolSummary) string {
	var sb strings.Builder

	sb.WriteString("pool_name,points,first_block,last_block,total_swap_fee_revenue\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%s\n",
			csvField(s.PoolName),
			s.Points,
			s.FirstBlock,
			s.LastBlock,
			formatFloat(s.TotalRevenue),
		))
	}

	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// csvField quotes names that contain separators, e.g. "Curve.fi DAI/USDC/USDT".
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
