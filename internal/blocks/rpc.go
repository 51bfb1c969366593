package blocks

import (
	"context"
	"fmt"

	"curve-lp-lab/internal/ethrpc"
)

// HeaderSource is the subset of the JSON-RPC client used for block search.
type HeaderSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetBlockHeader(ctx context.Context, number uint64) (*ethrpc.BlockHeader, error)
}

// RPCResolver resolves timestamps by binary search over block headers.
// It needs no indexer, at the cost of about log2(head) header reads.
type RPCResolver struct {
	src HeaderSource
}

// NewRPCResolver creates a resolver over src.
func NewRPCResolver(src HeaderSource) *RPCResolver {
	return &RPCResolver{src: src}
}

var (
	_ Resolver          = (*RPCResolver)(nil)
	_ TimestampResolver = (*RPCResolver)(nil)
)

// Resolve resolves a date string.
func (r *RPCResolver) Resolve(ctx context.Context, date string) (uint64, error) {
	return resolveDate(ctx, r, date)
}

// ResolveTimestamp returns the first block with a timestamp strictly after ts.
func (r *RPCResolver) ResolveTimestamp(ctx context.Context, ts int64) (uint64, error) {
	head, err := r.src.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}

	headTs, err := r.timestamp(ctx, head)
	if err != nil {
		return 0, err
	}
	if headTs <= ts {
		return 0, fmt.Errorf("%w: after %d (head %d at %d)", ErrNoBlockFound, ts, head, headTs)
	}

	// Invariant: timestamp(hi) > ts; every block below lo has timestamp <= ts.
	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		midTs, err := r.timestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if midTs > ts {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return hi, nil
}

func (r *RPCResolver) timestamp(ctx context.Context, number uint64) (int64, error) {
	header, err := r.src.GetBlockHeader(ctx, number)
	if err != nil {
		return 0, fmt.Errorf("block %d: %w", number, err)
	}
	if header == nil {
		return 0, fmt.Errorf("block %d: header missing", number)
	}
	return header.Timestamp, nil
}
