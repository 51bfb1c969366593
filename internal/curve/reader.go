package curve

import (
	"context"
	"errors"
	"fmt"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/ethrpc"
)

// ErrBlockNotFound is returned when the node does not know the requested block.
var ErrBlockNotFound = errors.New("block not found")

// StateRPC is the subset of the JSON-RPC client the state reader needs.
type StateRPC interface {
	BatchCall(ctx context.Context, msgs []ethrpc.CallMsg, block ethrpc.BlockRef) ([][]byte, error)
	GetBlockHeader(ctx context.Context, number uint64) (*ethrpc.BlockHeader, error)
}

// PoolStateReader reads pool virtual price and LP supply.
// All reads for one block go out as a single JSON-RPC batch pinned to that block.
type PoolStateReader struct {
	rpc StateRPC

	virtualPriceCall []byte
	totalSupplyCall  []byte
}

// NewPoolStateReader creates a state reader over an RPC connection owned by the caller.
func NewPoolStateReader(rpc StateRPC) *PoolStateReader {
	return &PoolStateReader{
		rpc:              rpc,
		virtualPriceCall: mustPack(poolABI, "get_virtual_price"),
		totalSupplyCall:  mustPack(erc20ABI, "totalSupply"),
	}
}

// SampleMetadata returns the timestamp of a block.
func (r *PoolStateReader) SampleMetadata(ctx context.Context, block uint64) (int64, error) {
	header, err := r.rpc.GetBlockHeader(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("get block %d: %w", block, err)
	}
	if header == nil {
		return 0, fmt.Errorf("%w: %d", ErrBlockNotFound, block)
	}
	return header.Timestamp, nil
}

// BatchRead reads the state of every pool at block.
// Either all pools are returned or an error; there is no partial result.
func (r *PoolStateReader) BatchRead(ctx context.Context, block uint64, pools []domain.Pool) (map[string]domain.PoolState, error) {
	if len(pools) == 0 {
		return map[string]domain.PoolState{}, nil
	}

	// Two calls per pool: [2i] virtual price, [2i+1] LP supply
	msgs := make([]ethrpc.CallMsg, 0, 2*len(pools))
	for _, p := range pools {
		msgs = append(msgs,
			ethrpc.CallMsg{To: p.Address, Data: r.virtualPriceCall},
			ethrpc.CallMsg{To: p.LPToken, Data: r.totalSupplyCall},
		)
	}

	results, err := r.rpc.BatchCall(ctx, msgs, ethrpc.AtBlock(block))
	if err != nil {
		return nil, fmt.Errorf("batch read block %d: %w", block, err)
	}
	if len(results) != len(msgs) {
		return nil, fmt.Errorf("batch read block %d: expected %d results, got %d", block, len(msgs), len(results))
	}

	states := make(map[string]domain.PoolState, len(pools))
	for i, p := range pools {
		vp, err := unpackUint256(poolABI, "get_virtual_price", results[2*i])
		if err != nil {
			return nil, fmt.Errorf("pool %s at block %d: %w", p.Name, block, err)
		}
		supply, err := unpackUint256(erc20ABI, "totalSupply", results[2*i+1])
		if err != nil {
			return nil, fmt.Errorf("pool %s at block %d: %w", p.Name, block, err)
		}

		states[p.Name] = domain.PoolState{
			VirtualPrice: fromWad(vp),
			TotalSupply:  fromWad(supply),
		}
	}

	return states, nil
}
