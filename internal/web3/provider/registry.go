package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"AutoLP-Chain/internal/config"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/internal/web3/ethereum"
)

// Chain binds a gateway to the AMM contracts of its network.
type Chain struct {
	Name       string
	Definition web3.ChainDefinition
	Gateway    web3.Gateway
}

// Dialer opens a gateway for a chain definition.
type Dialer func(ctx context.Context, name string, def web3.ChainDefinition) (web3.Gateway, error)

// Registry manages a set of chains keyed by human readable names.
type Registry struct {
	defaultChain string
	chains       map[string]*Chain
}

// DialEthereum is the default dialer backed by go-ethereum's ethclient.
func DialEthereum(ctx context.Context, name string, def web3.ChainDefinition) (web3.Gateway, error) {
	return ethereum.NewClient(ctx, ethereum.Config{
		Name:    name,
		RPCURL:  def.RPCURL,
		ChainID: def.ChainID,
		Notes:   def.Description,
	})
}

// NewRegistry loads chain definitions and instantiates gateways.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	return NewRegistryWithDialer(ctx, cfg, DialEthereum)
}

// NewRegistryWithDialer is NewRegistry with a custom gateway factory.
func NewRegistryWithDialer(ctx context.Context, cfg config.Web3Config, dial Dialer) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	if len(defs.Chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		defs.Chains["default"] = web3.ChainDefinition{
			Type:    "evm",
			RPCURL:  cfg.RPCURL,
			ChainID: cfg.ChainID,
			Router:  cfg.Router,
			WETH:    cfg.WETH,
		}
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}
	if len(defs.Chains) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	registry := &Registry{chains: make(map[string]*Chain, len(defs.Chains))}
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		if chainType != "evm" {
			registry.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		if err := def.Validate(name); err != nil {
			registry.Close()
			return nil, err
		}
		gateway, err := dial(ctx, name, def)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		registry.chains[name] = &Chain{Name: name, Definition: def, Gateway: gateway}
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		defaultChain = registry.Chains()[0]
	}
	if _, ok := registry.chains[defaultChain]; !ok {
		registry.Close()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	registry.defaultChain = defaultChain
	return registry, nil
}

// Default returns the chain configured as default.
func (r *Registry) Default() (*Chain, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	chain, ok := r.chains[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return chain, nil
}

// Chain returns the chain identified by name.
func (r *Registry) Chain(name string) (*Chain, bool) {
	if r == nil {
		return nil, false
	}
	chain, ok := r.chains[name]
	return chain, ok
}

// Close releases all gateways managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, chain := range r.chains {
		if chain.Gateway != nil {
			chain.Gateway.Close()
		}
		delete(r.chains, name)
	}
}

// Chains returns the sorted list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
