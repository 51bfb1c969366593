package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"curve-lp-lab/internal/domain"
)

// fakeReader serves deterministic pool state and records every read.
type fakeReader struct {
	mu sync.Mutex

	metadataBlocks []uint64
	batchBlocks    []uint64
	batchPools     [][]string

	metadataErr map[uint64]error
	batchErr    map[uint64]error
	omit        map[uint64]string // pool left out of the batch result
	panicAt     map[uint64]bool
	onBatch     func(block uint64)
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		metadataErr: make(map[uint64]error),
		batchErr:    make(map[uint64]error),
		omit:        make(map[uint64]string),
		panicAt:     make(map[uint64]bool),
	}
}

func blockTimestamp(block uint64) int64 {
	return 1_600_000_000 + int64(block)*13
}

func stateOf(block uint64, pool string) domain.PoolState {
	return domain.PoolState{
		VirtualPrice: 1 + float64(block)*1e-6 + float64(len(pool))*1e-3,
		TotalSupply:  1_000_000 + float64(block),
	}
}

func (f *fakeReader) SampleMetadata(ctx context.Context, block uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.metadataBlocks = append(f.metadataBlocks, block)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := f.metadataErr[block]; err != nil {
		return 0, err
	}
	return blockTimestamp(block), nil
}

func (f *fakeReader) BatchRead(ctx context.Context, block uint64, pools []domain.Pool) (map[string]domain.PoolState, error) {
	f.mu.Lock()
	names := make([]string, len(pools))
	for i, p := range pools {
		names[i] = p.Name
	}
	f.batchBlocks = append(f.batchBlocks, block)
	f.batchPools = append(f.batchPools, names)
	onBatch := f.onBatch
	f.mu.Unlock()

	if onBatch != nil {
		onBatch(block)
	}
	if f.panicAt[block] {
		panic(fmt.Sprintf("decoder blew up at %d", block))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.batchErr[block]; err != nil {
		return nil, err
	}

	out := make(map[string]domain.PoolState, len(pools))
	for _, p := range pools {
		if f.omit[block] == p.Name {
			continue
		}
		out[p.Name] = stateOf(block, p.Name)
	}
	return out, nil
}

func (f *fakeReader) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metadataBlocks) + len(f.batchBlocks)
}

func testPool(name string, n byte) domain.Pool {
	return domain.Pool{
		Name:    name,
		Address: common.BytesToAddress([]byte{0xaa, n}),
		LPToken: common.BytesToAddress([]byte{0xbb, n}),
	}
}
