package domain

import "github.com/ethereum/go-ethereum/common"

// Pool is a tracked Curve liquidity pool.
// Identity within a run is Name; addresses are resolved once per run by a catalog.
type Pool struct {
	Name    string         // pool name, entity identifier in the result table
	Address common.Address // pool (swap) contract address
	LPToken common.Address // LP token contract address
}

// PoolState is the state of one pool read at a single block.
// Both values are already scaled from 18-decimal fixed point.
type PoolState struct {
	VirtualPrice float64 // get_virtual_price() * 1e-18
	TotalSupply  float64 // LP token totalSupply() * 1e-18
}
