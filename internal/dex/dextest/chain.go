// Package dextest provides an in-memory Uniswap-V2 style chain that
// implements web3.Gateway. It decodes real ABI calldata, recovers the signer
// of every transaction and applies router effects, so the engine can be
// exercised end to end without a node.
package dextest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known addresses of the test deployment.
var (
	RouterAddress  = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	FactoryAddress = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	WETHAddress    = common.HexToAddress("0x00000000000000000000000000000000000a0003")
	burnAddress    = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

// Attempt records one write against the chain, either simulated through
// CallContract or broadcast through SendTransaction.
type Attempt struct {
	Method    string
	From      common.Address
	To        common.Address
	Args      []any
	Value     *big.Int
	Gas       uint64
	Broadcast bool
	Reverted  bool
	Hash      common.Hash
}

type erc20 struct {
	symbol     string
	decimals   uint8
	noMetadata bool
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	pair     bool
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

// Chain is the in-memory AMM.
type Chain struct {
	mu       sync.Mutex
	chainID  *big.Int
	native   map[common.Address]*big.Int
	tokens   map[common.Address]*erc20
	pairs    map[[2]common.Address]common.Address
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	attempts []Attempt
	block    uint64
	nextAddr uint64

	revertNext   map[string]int
	revertAlways map[string]bool
	readErrors   map[string]error
	balanceErr   error
	dropReceipts bool
	noWETH       bool

	// Now is consulted for deadline checks.
	Now func() time.Time
}

// New creates an empty chain with router, factory and WETH deployed.
func New(chainID int64) *Chain {
	c := &Chain{
		chainID:      big.NewInt(chainID),
		native:       make(map[common.Address]*big.Int),
		tokens:       make(map[common.Address]*erc20),
		pairs:        make(map[[2]common.Address]common.Address),
		nonces:       make(map[common.Address]uint64),
		receipts:     make(map[common.Hash]*types.Receipt),
		held:         make(map[common.Hash]*types.Receipt),
		revertNext:   make(map[string]int),
		revertAlways: make(map[string]bool),
		readErrors:   make(map[string]error),
		nextAddr:     0xb0000,
		Now:          time.Now,
	}
	c.tokens[WETHAddress] = newERC20("WETH", 18)
	return c
}

func newERC20(symbol string, decimals uint8) *erc20 {
	return &erc20{
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (c *Chain) allocate() common.Address {
	c.nextAddr++
	return common.BigToAddress(new(big.Int).SetUint64(c.nextAddr))
}

// AddToken deploys an ERC20 and returns its address.
func (c *Chain) AddToken(symbol string, decimals uint8) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.allocate()
	c.tokens[addr] = newERC20(symbol, decimals)
	return addr
}

// AddOpaqueToken deploys an ERC20 whose symbol() and decimals() revert.
func (c *Chain) AddOpaqueToken() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.allocate()
	t := newERC20("", 18)
	t.noMetadata = true
	c.tokens[addr] = t
	return addr
}

// Fund credits native balance.
func (c *Chain) Fund(owner common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(owner, wei)
}

// Mint credits an ERC20 balance.
func (c *Chain) Mint(token, owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tokens[token]
	add(t.balances, owner, amount)
	t.supply.Add(t.supply, amount)
}

// SetAllowance sets an allowance directly.
func (c *Chain) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token].setAllowance(owner, spender, amount)
}

// CreatePair seeds a pool for token/base. The initial LP supply is locked at
// a burn address.
func (c *Chain) CreatePair(token, base common.Address, tokenReserve, baseReserve, lockedSupply *big.Int) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair := c.createPair(token, base)
	p := c.tokens[pair]
	if p.token0 == token {
		p.reserve0.Add(p.reserve0, tokenReserve)
		p.reserve1.Add(p.reserve1, baseReserve)
	} else {
		p.reserve0.Add(p.reserve0, baseReserve)
		p.reserve1.Add(p.reserve1, tokenReserve)
	}
	add(p.balances, burnAddress, lockedSupply)
	p.supply.Add(p.supply, lockedSupply)
	return pair
}

// MintLP credits LP shares of pair to owner.
func (c *Chain) MintLP(pair, owner common.Address, shares *big.Int) {
	c.Mint(pair, owner, shares)
}

// Pair returns the pair of a and b, or the zero address.
func (c *Chain) Pair(a, b common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairs[pairKey(a, b)]
}

// RevertNext makes the next n attempts of method revert.
func (c *Chain) RevertNext(method string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertNext[method] = n
}

// RevertAlways makes every attempt of method revert.
func (c *Chain) RevertAlways(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertAlways[method] = true
}

// FailRead makes read-only calls of method return err.
func (c *Chain) FailRead(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErrors[method] = err
}

// FailNativeBalance makes BalanceAt return err.
func (c *Chain) FailNativeBalance(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErr = err
}

// DropReceipts withholds receipts of transactions mined while drop is set.
// Withheld receipts become visible through ReleaseReceipts.
func (c *Chain) DropReceipts(drop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropReceipts = drop
}

// ReleaseReceipts publishes every withheld receipt.
func (c *Chain) ReleaseReceipts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, receipt := range c.held {
		c.receipts[hash] = receipt
	}
	clear(c.held)
}

// HideWETH makes router.WETH() revert.
func (c *Chain) HideWETH() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noWETH = true
}

// TokenBalance returns an ERC20 balance.
func (c *Chain) TokenBalance(token, owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(get(c.tokens[token].balances, owner))
}

// NativeBalance returns a native balance.
func (c *Chain) NativeBalance(owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(get(c.native, owner))
}

// AllowanceOf returns an allowance.
func (c *Chain) AllowanceOf(token, owner, spender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.tokens[token].allowance(owner, spender))
}

// Reserves returns the reserves of pair ordered as (token0, token1).
func (c *Chain) Reserves(pair common.Address) (*big.Int, *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.tokens[pair]
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// Attempts returns every recorded write attempt.
func (c *Chain) Attempts() []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Attempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}

// Sent returns broadcast transactions, optionally filtered by method.
func (c *Chain) Sent(method string) []Attempt {
	return c.filter(method, true)
}

// Simulated returns preflight simulations, optionally filtered by method.
func (c *Chain) Simulated(method string) []Attempt {
	return c.filter(method, false)
}

func (c *Chain) filter(method string, broadcast bool) []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Attempt
	for _, a := range c.attempts {
		if a.Broadcast != broadcast {
			continue
		}
		if method != "" && a.Method != method {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ChainID implements web3.Gateway.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BalanceAt implements web3.Gateway.
func (c *Chain) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	return new(big.Int).Set(get(c.native, account)), nil
}

// PendingNonceAt implements web3.Gateway.
func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

// TransactionReceipt implements web3.Gateway.
func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, gethcore.NotFound
	}
	return receipt, nil
}

// Close implements web3.Gateway.
func (c *Chain) Close() {}

// CallContract implements web3.Gateway. Write methods are simulated without
// touching state.
func (c *Chain) CallContract(_ context.Context, msg gethcore.CallMsg) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	method, _, ok := dex.MethodByID(msg.Data[:4])
	if !ok {
		return nil, errors.New("execution reverted: unknown selector")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !method.IsConstant() {
		attempt := Attempt{Method: method.Name, From: msg.From, To: *msg.To, Args: args, Value: valueOf(msg.Value), Gas: msg.Gas}
		snapshot := c.clone()
		out, err := c.execute(method, msg.From, *msg.To, args, attempt.Value)
		c.restore(snapshot)
		attempt.Reverted = err != nil
		c.attempts = append(c.attempts, attempt)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(out...)
	}

	if err := c.readErrors[method.Name]; err != nil {
		return nil, err
	}
	out, err := c.read(method, *msg.To, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

// SendTransaction implements web3.Gateway. The transaction is mined at once;
// a revert produces a receipt with status 0.
func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.To() == nil || len(tx.Data()) < 4 {
		return errors.New("unsupported transaction")
	}
	method, _, ok := dex.MethodByID(tx.Data()[:4])
	if !ok {
		return errors.New("unknown selector")
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return fmt.Errorf("decode calldata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if expected := c.nonces[from]; tx.Nonce() != expected {
		return fmt.Errorf("nonce mismatch: have %d want %d", tx.Nonce(), expected)
	}
	c.nonces[from]++

	attempt := Attempt{Method: method.Name, From: from, To: *tx.To(), Args: args, Value: valueOf(tx.Value()), Gas: tx.Gas(), Broadcast: true, Hash: tx.Hash()}
	snapshot := c.clone()
	if _, err := c.execute(method, from, *tx.To(), args, attempt.Value); err != nil {
		c.restore(snapshot)
		attempt.Reverted = true
	}
	c.attempts = append(c.attempts, attempt)

	c.block++
	status := types.ReceiptStatusSuccessful
	if attempt.Reverted {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() / 2,
		BlockNumber: new(big.Int).SetUint64(c.block),
	}
	if c.dropReceipts {
		c.held[tx.Hash()] = receipt
		return nil
	}
	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Chain) read(method *abi.Method, to common.Address, args []any) ([]any, error) {
	switch method.Name {
	case "factory":
		return []any{FactoryAddress}, nil
	case "WETH":
		if c.noWETH {
			return nil, errors.New("execution reverted")
		}
		return []any{WETHAddress}, nil
	case dex.MethodGetAmountsOut:
		amounts, err := c.amountsOut(args[0].(*big.Int), args[1].([]common.Address))
		if err != nil {
			return nil, err
		}
		return []any{amounts}, nil
	case "getPair":
		return []any{c.pairs[pairKey(args[0].(common.Address), args[1].(common.Address))]}, nil
	}

	t, ok := c.tokens[to]
	if !ok {
		return nil, errors.New("execution reverted: no contract")
	}
	switch method.Name {
	case "balanceOf":
		return []any{new(big.Int).Set(get(t.balances, args[0].(common.Address)))}, nil
	case "allowance":
		return []any{new(big.Int).Set(t.allowance(args[0].(common.Address), args[1].(common.Address)))}, nil
	case "totalSupply":
		return []any{new(big.Int).Set(t.supply)}, nil
	case "symbol":
		if t.noMetadata {
			return nil, errors.New("execution reverted")
		}
		return []any{t.symbol}, nil
	case "decimals":
		if t.noMetadata {
			return nil, errors.New("execution reverted")
		}
		return []any{t.decimals}, nil
	case "getReserves", "token0", "token1":
		if !t.pair {
			return nil, errors.New("execution reverted: not a pair")
		}
		switch method.Name {
		case "token0":
			return []any{t.token0}, nil
		case "token1":
			return []any{t.token1}, nil
		}
		return []any{new(big.Int).Set(t.reserve0), new(big.Int).Set(t.reserve1), uint32(c.Now().Unix())}, nil
	}
	return nil, fmt.Errorf("execution reverted: %s not supported", method.Name)
}

func (c *Chain) execute(method *abi.Method, from, to common.Address, args []any, value *big.Int) ([]any, error) {
	if c.revertAlways[method.Name] {
		return nil, revert("forced")
	}
	if n := c.revertNext[method.Name]; n > 0 {
		c.revertNext[method.Name] = n - 1
		return nil, revert("forced")
	}
	if value.Sign() > 0 {
		if get(c.native, from).Cmp(value) < 0 {
			return nil, revert("insufficient funds")
		}
		sub(c.native, from, value)
	}

	switch method.Name {
	case dex.MethodApprove:
		t, ok := c.tokens[to]
		if !ok {
			return nil, revert("no contract")
		}
		t.setAllowance(from, args[0].(common.Address), args[1].(*big.Int))
		return []any{true}, nil
	case dex.MethodWithdraw:
		if to != WETHAddress {
			return nil, revert("no contract")
		}
		amount := args[0].(*big.Int)
		weth := c.tokens[WETHAddress]
		if get(weth.balances, from).Cmp(amount) < 0 {
			return nil, revert("insufficient balance")
		}
		sub(weth.balances, from, amount)
		weth.supply.Sub(weth.supply, amount)
		c.credit(from, amount)
		return nil, nil
	case "deposit":
		weth := c.tokens[WETHAddress]
		add(weth.balances, from, value)
		weth.supply.Add(weth.supply, value)
		return nil, nil
	}

	if to != RouterAddress {
		return nil, revert("unsupported call")
	}
	switch method.Name {
	case dex.MethodAddLiquidityETH:
		return c.addLiquidityETH(from, args, value)
	case dex.MethodRemoveLiquidityETH:
		amountToken, amountETH, err := c.removeLiquidityETH(from, args)
		if err != nil {
			return nil, err
		}
		return []any{amountToken, amountETH}, nil
	case dex.MethodRemoveLiquidityFee:
		_, amountETH, err := c.removeLiquidityETH(from, args)
		if err != nil {
			return nil, err
		}
		return []any{amountETH}, nil
	case dex.MethodSwapExactTokens:
		return c.swap(from, args)
	}
	return nil, revert(method.Name + " not supported")
}

func (c *Chain) checkDeadline(deadline *big.Int) error {
	if deadline.Cmp(big.NewInt(c.Now().Unix())) < 0 {
		return revert("EXPIRED")
	}
	return nil
}

func (c *Chain) spend(token, owner common.Address, amount *big.Int) error {
	t, ok := c.tokens[token]
	if !ok {
		return revert("no contract")
	}
	if t.allowance(owner, RouterAddress).Cmp(amount) < 0 {
		return revert("TRANSFER_FROM_FAILED: allowance")
	}
	if get(t.balances, owner).Cmp(amount) < 0 {
		return revert("TRANSFER_FROM_FAILED: balance")
	}
	sub(t.balances, owner, amount)
	t.setAllowance(owner, RouterAddress, new(big.Int).Sub(t.allowance(owner, RouterAddress), amount))
	return nil
}

func (c *Chain) addLiquidityETH(from common.Address, args []any, value *big.Int) ([]any, error) {
	token := args[0].(common.Address)
	desired := args[1].(*big.Int)
	minToken := args[2].(*big.Int)
	minETH := args[3].(*big.Int)
	to := args[4].(common.Address)
	if err := c.checkDeadline(args[5].(*big.Int)); err != nil {
		return nil, err
	}
	if desired.Cmp(minToken) < 0 || value.Cmp(minETH) < 0 {
		return nil, revert("INSUFFICIENT_AMOUNT")
	}
	if err := c.spend(token, from, desired); err != nil {
		return nil, err
	}
	pair := c.pairs[pairKey(token, WETHAddress)]
	if pair == (common.Address{}) {
		pair = c.createPair(token, WETHAddress)
	}
	p := c.tokens[pair]
	if p.token0 == token {
		p.reserve0.Add(p.reserve0, desired)
		p.reserve1.Add(p.reserve1, value)
	} else {
		p.reserve0.Add(p.reserve0, value)
		p.reserve1.Add(p.reserve1, desired)
	}
	liquidity := new(big.Int).Set(value)
	add(p.balances, to, liquidity)
	p.supply.Add(p.supply, liquidity)
	return []any{new(big.Int).Set(desired), new(big.Int).Set(value), liquidity}, nil
}

func (c *Chain) removeLiquidityETH(from common.Address, args []any) (*big.Int, *big.Int, error) {
	token := args[0].(common.Address)
	liquidity := args[1].(*big.Int)
	minToken := args[2].(*big.Int)
	minETH := args[3].(*big.Int)
	to := args[4].(common.Address)
	if err := c.checkDeadline(args[5].(*big.Int)); err != nil {
		return nil, nil, err
	}
	pair := c.pairs[pairKey(token, WETHAddress)]
	if pair == (common.Address{}) {
		return nil, nil, revert("no pair")
	}
	p := c.tokens[pair]
	if p.supply.Sign() == 0 {
		return nil, nil, revert("INSUFFICIENT_LIQUIDITY")
	}
	tokenReserve, ethReserve := p.reserve0, p.reserve1
	if p.token0 != token {
		tokenReserve, ethReserve = p.reserve1, p.reserve0
	}
	amountToken := dex.ProRata(liquidity, tokenReserve, p.supply)
	amountETH := dex.ProRata(liquidity, ethReserve, p.supply)
	if amountToken.Cmp(minToken) < 0 || amountETH.Cmp(minETH) < 0 {
		return nil, nil, revert("INSUFFICIENT_AMOUNT")
	}
	if err := c.spend(pair, from, liquidity); err != nil {
		return nil, nil, err
	}
	p.supply.Sub(p.supply, liquidity)
	tokenReserve.Sub(tokenReserve, amountToken)
	ethReserve.Sub(ethReserve, amountETH)
	add(c.tokens[token].balances, to, amountToken)
	c.credit(to, amountETH)
	return amountToken, amountETH, nil
}

func (c *Chain) swap(from common.Address, args []any) ([]any, error) {
	amountIn := args[0].(*big.Int)
	minOut := args[1].(*big.Int)
	path := args[2].([]common.Address)
	to := args[3].(common.Address)
	if err := c.checkDeadline(args[4].(*big.Int)); err != nil {
		return nil, err
	}
	amounts, err := c.amountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if out.Cmp(minOut) < 0 {
		return nil, revert("INSUFFICIENT_OUTPUT_AMOUNT")
	}
	if err := c.spend(path[0], from, amountIn); err != nil {
		return nil, err
	}
	p := c.tokens[c.pairs[pairKey(path[0], path[1])]]
	if p.token0 == path[0] {
		p.reserve0.Add(p.reserve0, amountIn)
		p.reserve1.Sub(p.reserve1, out)
	} else {
		p.reserve1.Add(p.reserve1, amountIn)
		p.reserve0.Sub(p.reserve0, out)
	}
	outToken := c.tokens[path[1]]
	add(outToken.balances, to, out)
	outToken.supply.Add(outToken.supply, out)
	return []any{amounts}, nil
}

func (c *Chain) amountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) != 2 {
		return nil, revert("INVALID_PATH")
	}
	pair := c.pairs[pairKey(path[0], path[1])]
	if pair == (common.Address{}) {
		return nil, revert("pair does not exist")
	}
	p := c.tokens[pair]
	reserveIn, reserveOut := p.reserve0, p.reserve1
	if p.token0 != path[0] {
		reserveIn, reserveOut = p.reserve1, p.reserve0
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, revert("INSUFFICIENT_LIQUIDITY")
	}
	withFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	denominator.Add(denominator, withFee)
	return []*big.Int{new(big.Int).Set(amountIn), numerator.Quo(numerator, denominator)}, nil
}

func (c *Chain) createPair(a, b common.Address) common.Address {
	addr := c.allocate()
	p := newERC20("UNI-V2", 18)
	p.pair = true
	p.token0, p.token1 = a, b
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		p.token0, p.token1 = b, a
	}
	p.reserve0 = new(big.Int)
	p.reserve1 = new(big.Int)
	c.tokens[addr] = p
	c.pairs[pairKey(a, b)] = addr
	return addr
}

func (c *Chain) credit(owner common.Address, amount *big.Int) {
	add(c.native, owner, amount)
}

// state is a deep copy used to roll back reverted executions.
type state struct {
	native   map[common.Address]*big.Int
	tokens   map[common.Address]*erc20
	pairs    map[[2]common.Address]common.Address
	nextAddr uint64
}

func (c *Chain) clone() state {
	s := state{
		native:   cloneBalances(c.native),
		tokens:   make(map[common.Address]*erc20, len(c.tokens)),
		pairs:    make(map[[2]common.Address]common.Address, len(c.pairs)),
		nextAddr: c.nextAddr,
	}
	for addr, t := range c.tokens {
		s.tokens[addr] = t.clone()
	}
	for k, v := range c.pairs {
		s.pairs[k] = v
	}
	return s
}

// restore rolls state back but keeps the consumed revert budget, so each
// forced revert is spent exactly once.
func (c *Chain) restore(s state) {
	c.native = s.native
	c.tokens = s.tokens
	c.pairs = s.pairs
	c.nextAddr = s.nextAddr
}

func (t *erc20) clone() *erc20 {
	out := *t
	out.supply = new(big.Int).Set(t.supply)
	out.balances = cloneBalances(t.balances)
	out.allowances = make(map[common.Address]map[common.Address]*big.Int, len(t.allowances))
	for owner, spenders := range t.allowances {
		out.allowances[owner] = cloneBalances(spenders)
	}
	if t.pair {
		out.reserve0 = new(big.Int).Set(t.reserve0)
		out.reserve1 = new(big.Int).Set(t.reserve1)
	}
	return &out
}

func (t *erc20) allowance(owner, spender common.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return v
		}
	}
	return new(big.Int)
}

func (t *erc20) setAllowance(owner, spender common.Address, amount *big.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func cloneBalances(in map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(in))
	for k, v := range in {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func pairKey(a, b common.Address) [2]common.Address {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return [2]common.Address{a, b}
}

func get(m map[common.Address]*big.Int, k common.Address) *big.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return new(big.Int)
}

func add(m map[common.Address]*big.Int, k common.Address, v *big.Int) {
	m[k] = new(big.Int).Add(get(m, k), v)
}

func sub(m map[common.Address]*big.Int, k common.Address, v *big.Int) {
	m[k] = new(big.Int).Sub(get(m, k), v)
}

func valueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func revert(reason string) error {
	return fmt.Errorf("execution reverted: %s", reason)
}

var _ web3.Gateway = (*Chain)(nil)
