package scheduler

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/dex/dextest"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/quote"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Contribution = big.NewInt(1e12)
	return cfg
}

func fiveTokens() []dex.Token {
	return []dex.Token{
		tokenAt(1, "A"), tokenAt(2, "B"), tokenAt(3, "C"), tokenAt(4, "D"), tokenAt(5, "E"),
	}
}

func TestRunAddAbortsPoorWalletBeforeAnyOperation(t *testing.T) {
	rich, poor := newWallet(t), newWallet(t)
	balances := newFakeBalances()
	balances.native[rich.Address] = big.NewInt(5e12)
	balances.native[poor.Address] = big.NewInt(5e12 - 1)
	op := &fakeOperator{}
	clk := newClock()

	s := New(op, balances, testConfig(), WithClock(clk), WithRand(rand.New(rand.NewSource(1))))
	sum, err := s.RunAdd(context.Background(), []*web3.Wallet{rich, poor}, fiveTokens(), 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if op.count(operation.KindAdd, rich.Address) != 5 {
		t.Fatalf("rich wallet should add 5 tokens, got %d", op.count(operation.KindAdd, rich.Address))
	}
	if op.count(operation.KindAdd, poor.Address) != 0 {
		t.Fatal("poor wallet must not reach any operation")
	}
	if sum.Succeeded != 5 || sum.WalletsAborted != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	want := []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second, 5 * time.Second, 5 * time.Second}
	got := clk.Sleeps()
	if len(got) != len(want) {
		t.Fatalf("unexpected sleeps %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunAddPicksSeededSubset(t *testing.T) {
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.native[wallet.Address] = units(1)
	tokens := fiveTokens()[:4]
	cfg := testConfig()
	cfg.TokensPerWallet = 2

	op := &fakeOperator{}
	s := New(op, balances, cfg, WithClock(newClock()), WithRand(rand.New(rand.NewSource(42))))
	if _, err := s.RunAdd(context.Background(), []*web3.Wallet{wallet}, tokens, 1); err != nil {
		t.Fatalf("run: %v", err)
	}

	perm := rand.New(rand.NewSource(42)).Perm(len(tokens))
	if len(op.calls) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(op.calls))
	}
	for i, c := range op.calls {
		if c.From != tokens[perm[i]].Address {
			t.Fatalf("call %d used %s, want %s", i, c.From.Hex(), tokens[perm[i]].Address.Hex())
		}
	}
	if op.calls[0].From == op.calls[1].From {
		t.Fatal("subset must not repeat a token")
	}
}

func TestRunWithdrawUsesAllTokensAndCyclesCooldown(t *testing.T) {
	a, b := newWallet(t), newWallet(t)
	balances := newFakeBalances()
	op := &fakeOperator{outcome: func(c call) operation.Result {
		if c.From == tokenAt(1, "A").Address {
			return failed("NO_POSITION")
		}
		return operation.Result{Success: true}
	}}
	clk := newClock()
	s := New(op, balances, testConfig(), WithClock(clk))

	tokens := fiveTokens()[:3]
	sum, err := s.RunWithdraw(context.Background(), []*web3.Wallet{a, b}, tokens, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(op.calls) != 12 {
		t.Fatalf("expected 12 withdrawals, got %d", len(op.calls))
	}
	for i, tok := range tokens {
		if op.calls[i].From != tok.Address || op.calls[i].Wallet != a.Address {
			t.Fatalf("withdraw order broken at %d", i)
		}
	}
	if sum.Failed != 4 || sum.Succeeded != 8 {
		t.Fatalf("one failing token must not stop the rest: %+v", sum)
	}

	ops := 12 * 3 * time.Second
	walletDelays := 4 * 5 * time.Second
	if got, want := clk.Slept(), ops+walletDelays+10*time.Minute; got != want {
		t.Fatalf("slept %v, want %v", got, want)
	}
}

func TestWalletPanicIsContained(t *testing.T) {
	bad, good := newWallet(t), newWallet(t)
	balances := newFakeBalances()
	balances.native[bad.Address] = units(1)
	balances.native[good.Address] = units(1)
	op := &fakeOperator{panicFor: bad.Address}

	s := New(op, balances, testConfig(), WithClock(newClock()))
	sum, err := s.RunWithdraw(context.Background(), []*web3.Wallet{bad, good}, fiveTokens()[:2], 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.WalletsAborted != 1 || op.count(operation.KindWithdraw, good.Address) != 2 {
		t.Fatalf("next wallet must still run: %+v", sum)
	}
}

func TestNativeReadFailureAbortsWalletOnly(t *testing.T) {
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.readErr = errors.New("rpc down")
	op := &fakeOperator{}

	s := New(op, balances, testConfig(), WithClock(newClock()))
	sum, err := s.RunAdd(context.Background(), []*web3.Wallet{wallet}, fiveTokens(), 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.WalletsAborted != 1 || len(op.calls) != 0 {
		t.Fatalf("unexpected summary %+v calls=%d", sum, len(op.calls))
	}
}

func TestRunFullAlternatesPhases(t *testing.T) {
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.native[wallet.Address] = units(1)
	op := &fakeOperator{}
	clk := newClock()
	cfg := testConfig()
	cfg.TokensPerWallet = 2

	s := New(op, balances, cfg, WithClock(clk), WithRand(rand.New(rand.NewSource(7))))
	sum, err := s.RunFull(context.Background(), []*web3.Wallet{wallet}, fiveTokens()[:2], 1, 1, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Operations != 4 {
		t.Fatalf("expected 4 operations, got %+v", sum)
	}
	kinds := []operation.Kind{operation.KindAdd, operation.KindAdd, operation.KindWithdraw, operation.KindWithdraw}
	for i, k := range kinds {
		if op.calls[i].Kind != k {
			t.Fatalf("call %d is %s, want %s", i, op.calls[i].Kind, k)
		}
	}
	want := 4*3*time.Second + 2*5*time.Second + 2*6*time.Hour
	if clk.Slept() != want {
		t.Fatalf("slept %v, want %v", clk.Slept(), want)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	wallet := newWallet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(&fakeOperator{}, newFakeBalances(), testConfig(), WithClock(newClock()))
	if _, err := s.RunFull(ctx, []*web3.Wallet{wallet}, fiveTokens(), 1, 1, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := formatRemaining(5*time.Hour + 59*time.Minute + 30*time.Second); got != "5h 59m 30s" {
		t.Fatalf("unexpected %q", got)
	}
}

// Integration with the real orchestrator on the in-memory chain.
func newOrchestrator(t *testing.T, chain *dextest.Chain, clk *clock.Fake) (*operation.Orchestrator, *dex.Contracts) {
	t.Helper()
	chain.Now = clk.Now
	contracts := dex.NewContracts(chain, dextest.RouterAddress, dextest.WETHAddress)
	sub := submitter.New(chain, submitter.DefaultConfig(), submitter.WithClock(clk))
	orch := operation.New(contracts, quote.New(contracts, units(1000)), approval.NewManager(contracts, sub, nil), sub,
		dex.NewTokenCache(contracts), operation.DefaultConfig(big.NewInt(1e7)), operation.WithClock(clk))
	return orch, contracts
}

func TestAddPassOnChainAbortsWithoutTransactions(t *testing.T) {
	chain := dextest.New(6342)
	clk := newClock()
	orch, contracts := newOrchestrator(t, chain, clk)
	wallet := newWallet(t)

	var tokens []dex.Token
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		addr := chain.AddToken(name, 18)
		chain.Mint(addr, wallet.Address, units(100))
		tokens = append(tokens, dex.Token{Address: addr, Name: name})
	}
	contribution := orch.Config().Contribution
	chain.Fund(wallet.Address, new(big.Int).Sub(new(big.Int).Mul(contribution, big.NewInt(5)), big.NewInt(1)))

	cfg := testConfig()
	cfg.Contribution = contribution
	s := New(orch, contracts, cfg, WithClock(clk))
	sum, err := s.RunAdd(context.Background(), []*web3.Wallet{wallet}, tokens, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.WalletsAborted != 1 || sum.Operations != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if n := len(chain.Attempts()); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
}

func TestAddPassOnChainAddsLiquidity(t *testing.T) {
	chain := dextest.New(6342)
	clk := newClock()
	orch, contracts := newOrchestrator(t, chain, clk)
	wallet := newWallet(t)
	chain.Fund(wallet.Address, units(1))

	token := chain.AddToken("TKN", 18)
	chain.Mint(token, wallet.Address, units(100))
	chain.CreatePair(token, dextest.WETHAddress, units(1_000_000), units(1), units(1))

	s := New(orch, contracts, testConfig(), WithClock(clk))
	sum, err := s.RunAdd(context.Background(), []*web3.Wallet{wallet}, []dex.Token{{Address: token, Name: "TKN"}}, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Succeeded != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(chain.Sent(dex.MethodAddLiquidityETH)) != 1 {
		t.Fatal("expected one addLiquidityETH broadcast")
	}
}
