package domain

// Observation is one collected row of pool state.
// Corresponds to pool_observations in the result store.
// At most one observation exists per (BlockNumber, PoolName).
type Observation struct {
	Timestamp      int64   // block timestamp, unix seconds
	BlockNumber    uint64  // Ethereum block number
	PoolName       string  // pool name (entity identifier)
	PoolAddress    string  // pool contract address, hex
	LPTokenAddress string  // LP token address, hex
	VirtualPrice   float64 // lp_token_virtual_price
	TotalSupply    float64 // total_supply_lp_token
}

// NewObservation builds an observation from a pool and its state at a block.
func NewObservation(pool Pool, block uint64, timestamp int64, state PoolState) Observation {
	return Observation{
		Timestamp:      timestamp,
		BlockNumber:    block,
		PoolName:       pool.Name,
		PoolAddress:    pool.Address.Hex(),
		LPTokenAddress: pool.LPToken.Hex(),
		VirtualPrice:   state.VirtualPrice,
		TotalSupply:    state.TotalSupply,
	}
}

// RevenuePoint is an observation extended with derived swap fee revenue.
// Derived fields are nil for the first observation of each pool.
type RevenuePoint struct {
	Observation
	VirtualPriceDiff *float64 // virtual_price[t] - virtual_price[t-1]
	SwapFeeRevenue   *float64 // diff * total_supply[t] * fee sides
}
