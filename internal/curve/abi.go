package curve

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MainnetRegistry is the Curve main registry on Ethereum mainnet.
var MainnetRegistry = common.HexToAddress("0x90E00ACe148ca3b23Ac1bC8C240C2a7Dd9c2d7f5")

// wadDecimals is the fixed-point precision of virtual price and LP supply.
const wadDecimals = 18

const poolABIJSON = `[
	{"name":"get_virtual_price","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
	{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const registryABIJSON = `[
	{"name":"pool_count","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"pool_list","type":"function","stateMutability":"view","inputs":[{"name":"arg0","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"get_lp_token","type":"function","stateMutability":"view","inputs":[{"name":"arg0","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

var (
	poolABI     = mustParseABI(poolABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)
	registryABI = mustParseABI(registryABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// mustPack packs a call whose arguments are statically known to be valid.
func mustPack(contract abi.ABI, method string, args ...interface{}) []byte {
	data, err := contract.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", method, err))
	}
	return data
}

// unpackUint256 decodes a single uint256 return value.
func unpackUint256(contract abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// unpackAddress decodes a single address return value.
func unpackAddress(contract abi.ABI, method string, data []byte) (common.Address, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(out))
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// unpackString decodes a single string return value.
func unpackString(contract abi.ABI, method string, data []byte) (string, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return "", fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(out))
	}
	v, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// fromWad converts an 18-decimal fixed-point integer to float64.
func fromWad(v *big.Int) float64 {
	return decimal.NewFromBigInt(v, -wadDecimals).InexactFloat64()
}
