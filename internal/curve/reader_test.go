package curve

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/ethrpc"
)

// fakeStateRPC answers eth_calls from per-address uint256 values.
type fakeStateRPC struct {
	values     map[common.Address]*big.Int
	timestamps map[uint64]int64
	batchErr   error
	batches    int
	lastBlock  ethrpc.BlockRef
	lastMsgs   []ethrpc.CallMsg
}

func (f *fakeStateRPC) BatchCall(_ context.Context, msgs []ethrpc.CallMsg, block ethrpc.BlockRef) ([][]byte, error) {
	f.batches++
	f.lastBlock = block
	f.lastMsgs = msgs
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		v, ok := f.values[m.To]
		if !ok {
			return nil, &ethrpc.RPCError{Code: -32000, Message: "execution reverted"}
		}
		packed, err := poolABI.Methods["get_virtual_price"].Outputs.Pack(v)
		if err != nil {
			return nil, err
		}
		out[i] = packed
	}
	return out, nil
}

func (f *fakeStateRPC) GetBlockHeader(_ context.Context, number uint64) (*ethrpc.BlockHeader, error) {
	ts, ok := f.timestamps[number]
	if !ok {
		return nil, nil
	}
	return &ethrpc.BlockHeader{Number: number, Timestamp: ts}, nil
}

func wad(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

var (
	threePool = domain.Pool{
		Name:    "3pool",
		Address: common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7"),
		LPToken: common.HexToAddress("0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490"),
	}
	steth = domain.Pool{
		Name:    "steth",
		Address: common.HexToAddress("0xDC24316b9AE028F1497c275EB9192a3Ea0f67022"),
		LPToken: common.HexToAddress("0x06325440D014e39736583c165C2963BA99fAf14E"),
	}
)

func TestPoolStateReader_BatchRead(t *testing.T) {
	rpc := &fakeStateRPC{values: map[common.Address]*big.Int{
		threePool.Address: wad("1015000000000000000"),
		threePool.LPToken: wad("2500000000000000000000000"),
		steth.Address:     wad("1002500000000000000"),
		steth.LPToken:     wad("750000500000000000000000"),
	}}
	reader := NewPoolStateReader(rpc)

	states, err := reader.BatchRead(context.Background(), 13_000_000, []domain.Pool{threePool, steth})
	require.NoError(t, err)

	assert.Equal(t, 1, rpc.batches, "all reads must go out in one batch")
	assert.Equal(t, ethrpc.AtBlock(13_000_000), rpc.lastBlock)
	assert.Len(t, rpc.lastMsgs, 4)

	require.Contains(t, states, "3pool")
	require.Contains(t, states, "steth")
	assert.InDelta(t, 1.015, states["3pool"].VirtualPrice, 1e-12)
	assert.InDelta(t, 2_500_000.0, states["3pool"].TotalSupply, 1e-6)
	assert.InDelta(t, 1.0025, states["steth"].VirtualPrice, 1e-12)
	assert.InDelta(t, 750_000.5, states["steth"].TotalSupply, 1e-6)
}

func TestPoolStateReader_BatchRead_NoPools(t *testing.T) {
	rpc := &fakeStateRPC{}
	reader := NewPoolStateReader(rpc)

	states, err := reader.BatchRead(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Zero(t, rpc.batches)
}

func TestPoolStateReader_BatchRead_ElementFailureFailsAll(t *testing.T) {
	rpc := &fakeStateRPC{values: map[common.Address]*big.Int{
		threePool.Address: wad("1000000000000000000"),
		threePool.LPToken: wad("1000000000000000000"),
		// steth absent: its calls revert
	}}
	reader := NewPoolStateReader(rpc)

	states, err := reader.BatchRead(context.Background(), 1, []domain.Pool{threePool, steth})
	require.Error(t, err)
	assert.Nil(t, states)

	var rpcErr *ethrpc.RPCError
	assert.True(t, errors.As(err, &rpcErr))
}

func TestPoolStateReader_BatchRead_TransportError(t *testing.T) {
	rpc := &fakeStateRPC{batchErr: errors.New("connection reset")}
	reader := NewPoolStateReader(rpc)

	_, err := reader.BatchRead(context.Background(), 5, []domain.Pool{threePool})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 5")
}

func TestPoolStateReader_BatchRead_BadPayload(t *testing.T) {
	rpc := &badPayloadRPC{}
	reader := NewPoolStateReader(rpc)

	_, err := reader.BatchRead(context.Background(), 1, []domain.Pool{threePool})
	require.Error(t, err)
}

type badPayloadRPC struct{ fakeStateRPC }

func (b *badPayloadRPC) BatchCall(_ context.Context, msgs []ethrpc.CallMsg, _ ethrpc.BlockRef) ([][]byte, error) {
	// Empty return data, as from a call to an address without code
	return make([][]byte, len(msgs)), nil
}

func TestPoolStateReader_SampleMetadata(t *testing.T) {
	rpc := &fakeStateRPC{timestamps: map[uint64]int64{13_000_000: 1628166822}}
	reader := NewPoolStateReader(rpc)

	ts, err := reader.SampleMetadata(context.Background(), 13_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1628166822), ts)

	_, err = reader.SampleMetadata(context.Background(), 99)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}
