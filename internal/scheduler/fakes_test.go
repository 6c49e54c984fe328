package scheduler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newWallet(t *testing.T) *web3.Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return web3.WalletFromKey(key)
}

func tokenAt(n int64, name string) dex.Token {
	return dex.Token{Address: common.BigToAddress(big.NewInt(0xb0000 + n)), Name: name}
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type call struct {
	Kind   operation.Kind
	Wallet common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

type fakeBalances struct {
	mu      sync.Mutex
	native  map[common.Address]*big.Int
	tokens  map[[2]common.Address]*big.Int
	readErr error
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{
		native: make(map[common.Address]*big.Int),
		tokens: make(map[[2]common.Address]*big.Int),
	}
}

func (b *fakeBalances) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	if v, ok := b.native[owner]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *fakeBalances) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	if v, ok := b.tokens[[2]common.Address{token, owner}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *fakeBalances) setToken(token, owner common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[[2]common.Address{token, owner}] = new(big.Int).Set(v)
}

func (b *fakeBalances) debit(token, owner common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := [2]common.Address{token, owner}
	if cur, ok := b.tokens[key]; ok {
		cur.Sub(cur, v)
	}
}

// fakeOperator records calls. outcome decides each result; nil means success.
type fakeOperator struct {
	balances *fakeBalances
	calls    []call
	outcome  func(c call) operation.Result
	panicFor common.Address
}

func (f *fakeOperator) do(c call) operation.Result {
	if f.panicFor != (common.Address{}) && c.Wallet == f.panicFor {
		panic("boom")
	}
	f.calls = append(f.calls, c)
	res := operation.Result{Kind: c.Kind, Wallet: c.Wallet, Token: c.From, Success: true, TransactionHash: "0xfeed", Stage: operation.StageDone}
	if f.outcome != nil {
		res = f.outcome(c)
		res.Kind = c.Kind
	}
	if res.Success && c.Kind == operation.KindSwap && f.balances != nil && c.Amount != nil {
		f.balances.debit(c.From, c.Wallet, c.Amount)
	}
	return res
}

func (f *fakeOperator) AddLiquidity(_ context.Context, w *web3.Wallet, token dex.Token) operation.Result {
	return f.do(call{Kind: operation.KindAdd, Wallet: w.Address, From: token.Address})
}

func (f *fakeOperator) WithdrawLiquidity(_ context.Context, w *web3.Wallet, token dex.Token) operation.Result {
	return f.do(call{Kind: operation.KindWithdraw, Wallet: w.Address, From: token.Address})
}

func (f *fakeOperator) Swap(_ context.Context, w *web3.Wallet, req operation.SwapRequest) operation.Result {
	return f.do(call{Kind: operation.KindSwap, Wallet: w.Address, From: req.From.Address, To: req.To.Address, Amount: req.AmountIn})
}

func (f *fakeOperator) SwapToBase(_ context.Context, w *web3.Wallet, token dex.Token) operation.Result {
	return f.do(call{Kind: operation.KindSwap, Wallet: w.Address, From: token.Address})
}

func (f *fakeOperator) Unwrap(_ context.Context, w *web3.Wallet) operation.Result {
	return f.do(call{Kind: operation.KindUnwrap, Wallet: w.Address})
}

func (f *fakeOperator) count(kind operation.Kind, wallet common.Address) int {
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind && c.Wallet == wallet {
			n++
		}
	}
	return n
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, t dex.Token) dex.Token {
	t.Symbol = t.Name
	t.Decimals = 18
	return t
}

func skipped(reason string) operation.Result {
	return operation.Result{Skipped: true, Reason: reason}
}

func failed(reason string) operation.Result {
	return operation.Result{Reason: reason, ErrorCode: "SUBMISSION_FAILED", Err: errors.New(reason)}
}

func newClock() *clock.Fake {
	return clock.NewFake(start)
}
