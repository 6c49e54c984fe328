// Package quote prices two-hop swaps through the router and derives
// slippage-bounded minimum outputs.
package quote

import (
	"context"
	"math/big"

	"AutoLP-Chain/internal/dex"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// CodeQuoteFailed is returned by Exact when the router cannot price a path.
const CodeQuoteFailed apperrors.Code = "QUOTE_FAILED"

func init() {
	apperrors.Register(CodeQuoteFailed, apperrors.Attributes{
		Message:   "quote failed",
		Severity:  apperrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// Quote is the router's answer for one path.
type Quote struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	Path      []common.Address
	// Fallback is set when AmountOut is the configured estimate rather than
	// a router answer.
	Fallback bool
	Err      error
}

// Engine quotes through getAmountsOut.
type Engine struct {
	contracts *dex.Contracts
	fallback  *big.Int
}

// New returns an engine using fallback as the estimate for unpriceable paths.
func New(contracts *dex.Contracts, fallback *big.Int) *Engine {
	if fallback == nil {
		fallback = new(big.Int)
	}
	return &Engine{contracts: contracts, fallback: fallback}
}

// Quote prices amountIn of tokenIn in tokenOut. When the router fails the
// configured fallback estimate is returned instead of an error; the estimate
// must only size allowances.
func (e *Engine) Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) Quote {
	path := []common.Address{tokenIn, tokenOut}
	out, err := e.Exact(ctx, amountIn, tokenIn, tokenOut)
	if err != nil {
		logger.Named("quote").Warn("router quote failed, using fallback estimate",
			"token_in", tokenIn.Hex(), "token_out", tokenOut.Hex(), "error", err)
		return Quote{AmountIn: amountIn, AmountOut: new(big.Int).Set(e.fallback), Path: path, Fallback: true, Err: err}
	}
	return Quote{AmountIn: amountIn, AmountOut: out, Path: path}
}

// Exact prices amountIn of tokenIn in tokenOut and fails when the router
// cannot.
func (e *Engine) Exact(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	amounts, err := e.contracts.AmountsOut(ctx, amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, apperrors.Wrap(CodeQuoteFailed, err, "",
			apperrors.WithMetadata("token_in", tokenIn.Hex()),
			apperrors.WithMetadata("token_out", tokenOut.Hex()))
	}
	return amounts[1], nil
}

// MinOut returns floor(amount * (100 - slippage) / 100). Slippage is clamped
// to [0, 100].
func MinOut(amount *big.Int, slippage int) *big.Int {
	if slippage < 0 {
		slippage = 0
	}
	if slippage > 100 {
		slippage = 100
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(100-slippage)))
	return out.Quo(out, big.NewInt(100))
}
