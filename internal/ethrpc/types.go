package ethrpc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockRef is a block parameter: a hex quantity or a tag such as "latest".
type BlockRef string

// Latest refers to the most recent block.
const Latest BlockRef = "latest"

// AtBlock returns the block parameter for a block number.
func AtBlock(number uint64) BlockRef {
	return BlockRef(hexutil.EncodeUint64(number))
}

// BlockHeader is the subset of an Ethereum block used for sampling.
type BlockHeader struct {
	Number    uint64
	Hash      string
	Timestamp int64 // unix seconds
}

// CallMsg is a read-only eth_call request.
type CallMsg struct {
	To   common.Address
	Data []byte
}

func (m CallMsg) toArg() map[string]interface{} {
	return map[string]interface{}{
		"to":   m.To.Hex(),
		"data": hexutil.Encode(m.Data),
	}
}

// Head is a new chain head delivered by a newHeads subscription.
type Head struct {
	Number    uint64
	Hash      string
	Timestamp int64
}
