package dex

import (
	"context"
	"fmt"
	"math/big"

	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contracts issues typed reads against the router, factory, pairs and ERC20
// tokens of one network and builds the call specs for its writes.
type Contracts struct {
	gateway web3.Gateway
	router  common.Address
	weth    common.Address
}

// NewContracts binds the router and the configured wrapped native token.
func NewContracts(gateway web3.Gateway, router, weth common.Address) *Contracts {
	return &Contracts{gateway: gateway, router: router, weth: weth}
}

// Router returns the router address every write goes to.
func (c *Contracts) Router() common.Address {
	return c.router
}

// ConfiguredWETH returns the wrapped native token from configuration.
func (c *Contracts) ConfiguredWETH() common.Address {
	return c.weth
}

// Gateway exposes the underlying chain gateway.
func (c *Contracts) Gateway() web3.Gateway {
	return c.gateway
}

func (c *Contracts) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "encode "+method)
	}
	out, err := c.gateway.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainReadFailure, err, method+" failed",
			apperrors.WithMetadata("contract", to.Hex()))
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainReadFailure, err, "decode "+method,
			apperrors.WithMetadata("contract", to.Hex()))
	}
	return values, nil
}

func bigAt(values []any, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("missing output %d", i))
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("unexpected output type %T", values[i]))
	}
	return v, nil
}

func addressAt(values []any, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("missing output %d", i))
	}
	v, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("unexpected output type %T", values[i]))
	}
	return v, nil
}

// NativeBalance returns the wallet's native balance.
func (c *Contracts) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := c.gateway.BalanceAt(ctx, owner)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainReadFailure, err, "native balance")
	}
	return balance, nil
}

// BalanceOf returns the ERC20 (or LP) balance of owner.
func (c *Contracts) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := c.call(ctx, token, ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigAt(values, 0)
}

// Allowance returns the current allowance of spender over owner's token.
// It is always read fresh.
func (c *Contracts) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	values, err := c.call(ctx, token, ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigAt(values, 0)
}

// TotalSupply returns the token's total supply.
func (c *Contracts) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	values, err := c.call(ctx, token, ERC20ABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	return bigAt(values, 0)
}

// Decimals returns the token's declared decimals.
func (c *Contracts) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := c.call(ctx, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("unexpected decimals type %T", values[0]))
	}
	return d, nil
}

// Symbol returns the token's symbol.
func (c *Contracts) Symbol(ctx context.Context, token common.Address) (string, error) {
	values, err := c.call(ctx, token, ERC20ABI, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", apperrors.New(apperrors.CodeChainReadFailure, fmt.Sprintf("unexpected symbol type %T", values[0]))
	}
	return s, nil
}

// AmountsOut prices amountIn along path with the router.
func (c *Contracts) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	values, err := c.call(ctx, c.router, RouterABI, MethodGetAmountsOut, amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, apperrors.New(apperrors.CodeChainReadFailure, "unexpected getAmountsOut result")
	}
	return amounts, nil
}

// Factory returns the router's factory address.
func (c *Contracts) Factory(ctx context.Context) (common.Address, error) {
	values, err := c.call(ctx, c.router, RouterABI, "factory")
	if err != nil {
		return common.Address{}, err
	}
	return addressAt(values, 0)
}

// WETH asks the router for its wrapped native token and falls back to the
// configured address when the call fails.
func (c *Contracts) WETH(ctx context.Context) common.Address {
	values, err := c.call(ctx, c.router, RouterABI, "WETH")
	if err != nil {
		return c.weth
	}
	addr, err := addressAt(values, 0)
	if err != nil || addr == (common.Address{}) {
		return c.weth
	}
	return addr
}

// GetPair resolves the pair of tokenA and tokenB. A zero address means no pool.
func (c *Contracts) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	values, err := c.call(ctx, factory, FactoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return addressAt(values, 0)
}

// PairState reads reserves, total supply and token ordering of pair.
func (c *Contracts) PairState(ctx context.Context, pair common.Address) (Pool, error) {
	reserves, err := c.call(ctx, pair, PairABI, "getReserves")
	if err != nil {
		return Pool{}, err
	}
	r0, err := bigAt(reserves, 0)
	if err != nil {
		return Pool{}, err
	}
	r1, err := bigAt(reserves, 1)
	if err != nil {
		return Pool{}, err
	}
	supply, err := c.TotalSupply(ctx, pair)
	if err != nil {
		return Pool{}, err
	}
	v0, err := c.call(ctx, pair, PairABI, "token0")
	if err != nil {
		return Pool{}, err
	}
	t0, err := addressAt(v0, 0)
	if err != nil {
		return Pool{}, err
	}
	v1, err := c.call(ctx, pair, PairABI, "token1")
	if err != nil {
		return Pool{}, err
	}
	t1, err := addressAt(v1, 0)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Address: pair, Reserve0: r0, Reserve1: r1, TotalSupply: supply, Token0: t0, Token1: t1}, nil
}

func spec(method string, to common.Address, parsed abi.ABI, value *big.Int, args ...any) (web3.CallSpec, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return web3.CallSpec{}, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "encode "+method)
	}
	return web3.CallSpec{Method: method, To: to, Data: data, Value: value}, nil
}

// ApproveCall builds approve(spender, amount) on token.
func (c *Contracts) ApproveCall(token, spender common.Address, amount *big.Int) (web3.CallSpec, error) {
	return spec(MethodApprove, token, ERC20ABI, nil, spender, amount)
}

// AddLiquidityETHCall builds addLiquidityETH with value attached.
func (c *Contracts) AddLiquidityETHCall(token common.Address, amountToken, minToken, minETH *big.Int, to common.Address, deadline, value *big.Int) (web3.CallSpec, error) {
	return spec(MethodAddLiquidityETH, c.router, RouterABI, value, token, amountToken, minToken, minETH, to, deadline)
}

// RemoveLiquidityETHCall builds the standard removal call.
func (c *Contracts) RemoveLiquidityETHCall(token common.Address, liquidity, minToken, minETH *big.Int, to common.Address, deadline *big.Int) (web3.CallSpec, error) {
	return spec(MethodRemoveLiquidityETH, c.router, RouterABI, nil, token, liquidity, minToken, minETH, to, deadline)
}

// RemoveLiquidityETHFeeCall builds the fee-on-transfer tolerant removal call.
func (c *Contracts) RemoveLiquidityETHFeeCall(token common.Address, liquidity, minToken, minETH *big.Int, to common.Address, deadline *big.Int) (web3.CallSpec, error) {
	return spec(MethodRemoveLiquidityFee, c.router, RouterABI, nil, token, liquidity, minToken, minETH, to, deadline)
}

// SwapExactTokensCall builds swapExactTokensForTokens along path.
func (c *Contracts) SwapExactTokensCall(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) (web3.CallSpec, error) {
	return spec(MethodSwapExactTokens, c.router, RouterABI, nil, amountIn, minOut, path, to, deadline)
}

// WithdrawWETHCall builds withdraw(amount) on the wrapped native token.
func (c *Contracts) WithdrawWETHCall(weth common.Address, amount *big.Int) (web3.CallSpec, error) {
	return spec(MethodWithdraw, weth, WETHABI, nil, amount)
}
