package curve

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/ethrpc"
)

// ErrDuplicatePool is returned when two catalog entries share a name.
var ErrDuplicatePool = errors.New("duplicate pool name")

// Catalog lists the pools to observe.
type Catalog interface {
	ListPools(ctx context.Context) ([]domain.Pool, error)
}

// PoolEntry is one pool in a static pools file or config section.
type PoolEntry struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Address string `yaml:"address" mapstructure:"address"`
	LPToken string `yaml:"lp_token" mapstructure:"lp_token"`
}

// StaticCatalog serves a fixed pool list.
type StaticCatalog struct {
	pools []domain.Pool
}

// NewStaticCatalog validates entries and builds a catalog from them.
func NewStaticCatalog(entries []PoolEntry) (*StaticCatalog, error) {
	pools := make([]domain.Pool, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("pool %d: name is required", i)
		}
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("pool %s: invalid address %q", name, e.Address)
		}
		if !common.IsHexAddress(e.LPToken) {
			return nil, fmt.Errorf("pool %s: invalid lp_token %q", name, e.LPToken)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePool, name)
		}
		seen[name] = struct{}{}

		pools = append(pools, domain.Pool{
			Name:    name,
			Address: common.HexToAddress(e.Address),
			LPToken: common.HexToAddress(e.LPToken),
		})
	}

	return &StaticCatalog{pools: pools}, nil
}

// ListPools returns a copy of the configured pools.
func (c *StaticCatalog) ListPools(_ context.Context) ([]domain.Pool, error) {
	out := make([]domain.Pool, len(c.pools))
	copy(out, c.pools)
	return out, nil
}

// LoadPoolsFile reads pool entries from a YAML file of the form
//
//	pools:
//	  - name: 3pool
//	    address: "0xbEbc..."
//	    lp_token: "0x6c3F..."
func LoadPoolsFile(path string) ([]PoolEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}

	var doc struct {
		Pools []PoolEntry `yaml:"pools"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pools file: %w", err)
	}
	return doc.Pools, nil
}

// RegistryRPC is the subset of the JSON-RPC client the registry catalog needs.
type RegistryRPC interface {
	Call(ctx context.Context, msg ethrpc.CallMsg, block ethrpc.BlockRef) ([]byte, error)
}

// RegistryCatalogOptions configures RegistryCatalog.
type RegistryCatalogOptions struct {
	Registry common.Address
	// Workers bounds concurrent per-pool registry lookups.
	Workers int
	// Include restricts the catalog to these pool names. Empty means all pools.
	Include []string
	Logger  *zap.Logger
}

// RegistryCatalog enumerates pools from the on-chain Curve registry.
type RegistryCatalog struct {
	rpc      RegistryRPC
	registry common.Address
	workers  int
	include  map[string]struct{}
	logger   *zap.Logger
}

// NewRegistryCatalog creates a registry-backed catalog.
func NewRegistryCatalog(rpc RegistryRPC, opts RegistryCatalogOptions) *RegistryCatalog {
	if opts.Registry == (common.Address{}) {
		opts.Registry = MainnetRegistry
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var include map[string]struct{}
	if len(opts.Include) > 0 {
		include = make(map[string]struct{}, len(opts.Include))
		for _, name := range opts.Include {
			include[name] = struct{}{}
		}
	}

	return &RegistryCatalog{
		rpc:      rpc,
		registry: opts.Registry,
		workers:  opts.Workers,
		include:  include,
		logger:   opts.Logger,
	}
}

// ListPools reads the registry at the latest block and returns pools in registry order.
// Each pool is named after its LP token; an unnamed token falls back to the pool address.
func (c *RegistryCatalog) ListPools(ctx context.Context) ([]domain.Pool, error) {
	countData, err := c.callRegistry(ctx, mustPack(registryABI, "pool_count"))
	if err != nil {
		return nil, fmt.Errorf("pool_count: %w", err)
	}
	count, err := unpackUint256(registryABI, "pool_count", countData)
	if err != nil {
		return nil, err
	}
	if !count.IsUint64() {
		return nil, fmt.Errorf("pool_count out of range: %s", count)
	}
	n := int(count.Uint64())

	pools := make([]domain.Pool, n)
	pool := pond.NewPool(c.workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := 0; i < n; i++ {
		idx := i
		group.SubmitErr(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			p, err := c.lookupPool(groupCtx, idx)
			if err != nil {
				return fmt.Errorf("registry pool %d: %w", idx, err)
			}
			pools[idx] = p
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Pool, 0, len(pools))
	seen := make(map[string]int, len(pools))
	for _, p := range pools {
		if c.include != nil {
			if _, ok := c.include[p.Name]; !ok {
				continue
			}
		}
		// A later registry entry replaces an earlier one with the same name
		if i, dup := seen[p.Name]; dup {
			c.logger.Warn("duplicate pool name in registry, keeping the later entry",
				zap.String("pool", p.Name),
				zap.String("dropped", out[i].Address.Hex()),
				zap.String("kept", p.Address.Hex()),
			)
			out[i] = p
			continue
		}
		seen[p.Name] = len(out)
		out = append(out, p)
	}

	if c.include != nil && len(out) < len(c.include) {
		var missing []string
		for name := range c.include {
			if _, ok := seen[name]; !ok {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		c.logger.Warn("pools not found in registry", zap.Strings("pools", missing))
	}

	c.logger.Debug("registry pools listed",
		zap.Int("registry_count", n),
		zap.Int("selected", len(out)),
	)

	return out, nil
}

func (c *RegistryCatalog) lookupPool(ctx context.Context, idx int) (domain.Pool, error) {
	data, err := c.callRegistry(ctx, mustPack(registryABI, "pool_list", big.NewInt(int64(idx))))
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_list: %w", err)
	}
	addr, err := unpackAddress(registryABI, "pool_list", data)
	if err != nil {
		return domain.Pool{}, err
	}

	data, err = c.callRegistry(ctx, mustPack(registryABI, "get_lp_token", addr))
	if err != nil {
		return domain.Pool{}, fmt.Errorf("get_lp_token: %w", err)
	}
	lpToken, err := unpackAddress(registryABI, "get_lp_token", data)
	if err != nil {
		return domain.Pool{}, err
	}

	data, err = c.rpc.Call(ctx, ethrpc.CallMsg{To: lpToken, Data: mustPack(erc20ABI, "name")}, ethrpc.Latest)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("lp token name: %w", err)
	}
	name, err := unpackString(erc20ABI, "name", data)
	if err != nil {
		return domain.Pool{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = addr.Hex()
	}

	return domain.Pool{Name: name, Address: addr, LPToken: lpToken}, nil
}

func (c *RegistryCatalog) callRegistry(ctx context.Context, data []byte) ([]byte, error) {
	return c.rpc.Call(ctx, ethrpc.CallMsg{To: c.registry, Data: data}, ethrpc.Latest)
}
