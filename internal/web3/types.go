package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway is the single JSON-RPC endpoint every read and write goes through.
// Implementations must be safe for sequential use; the engine never issues
// concurrent calls against the same gateway.
type Gateway interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

// CallSpec describes one state-changing contract call before gas and nonce
// are attached.
type CallSpec struct {
	Method string
	To     common.Address
	Data   []byte
	Value  *big.Int
}

// ValueOrZero returns the native value attached to the call.
func (c CallSpec) ValueOrZero() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// GasParams carries the fixed legacy gas price and gas limit for a call kind.
type GasParams struct {
	Price *big.Int
	Limit uint64
}

// WithExtraLimit returns a copy with the gas limit raised by extra.
func (g GasParams) WithExtraLimit(extra uint64) GasParams {
	return GasParams{Price: g.Price, Limit: g.Limit + extra}
}

// ChainSnapshot summarises network metadata for the status API.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// SnapshotReader is implemented by gateways able to describe their network.
type SnapshotReader interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
}
