package dex

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel metadata used when a token does not answer symbol() or decimals().
const (
	UnknownSymbol   = "UNKNOWN"
	DefaultDecimals = uint8(18)
)

// Token is a tradable ERC20 as listed by the operator.
type Token struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// Label returns the display name, falling back to the symbol.
func (t Token) Label() string {
	if t.Name != "" && t.Name != UnknownSymbol {
		return t.Name
	}
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// TokenCache lazily fetches symbol and decimals once per token per run.
type TokenCache struct {
	contracts *Contracts
	mu        sync.Mutex
	entries   map[common.Address]Token
}

// NewTokenCache builds an empty cache over contracts.
func NewTokenCache(contracts *Contracts) *TokenCache {
	return &TokenCache{contracts: contracts, entries: make(map[common.Address]Token)}
}

// Resolve fills Symbol and Decimals of t. Lookup failures resolve to the
// UNKNOWN/18 sentinel and are cached like any other answer.
func (c *TokenCache) Resolve(ctx context.Context, t Token) Token {
	c.mu.Lock()
	cached, ok := c.entries[t.Address]
	c.mu.Unlock()
	if ok {
		cached.Name = t.Name
		return cached
	}

	resolved := t
	resolved.Symbol = UnknownSymbol
	resolved.Decimals = DefaultDecimals
	if symbol, err := c.contracts.Symbol(ctx, t.Address); err == nil && symbol != "" {
		resolved.Symbol = symbol
	}
	if decimals, err := c.contracts.Decimals(ctx, t.Address); err == nil {
		resolved.Decimals = decimals
	}

	c.mu.Lock()
	c.entries[t.Address] = resolved
	c.mu.Unlock()
	return resolved
}

// Lookup resolves a bare address.
func (c *TokenCache) Lookup(ctx context.Context, addr common.Address) Token {
	return c.Resolve(ctx, Token{Address: addr})
}
