package scheduler

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"
)

func trafficConfig(anchor dex.Token) TrafficConfig {
	return TrafficConfig{
		Anchor:         anchor,
		AnchorSwaps:    Range{Min: 5, Max: 5},
		AnchorAmount:   Range{Min: 100, Max: 100},
		RandomAmount:   Range{Min: 10, Max: 500},
		Slippage:       5,
		OperationDelay: 3 * time.Second,
		RoundCooldown:  10 * time.Hour,
	}
}

func newTraffic(t *testing.T, op *fakeOperator, balances *fakeBalances, cfg TrafficConfig, clk *clock.Fake) *TrafficRunner {
	t.Helper()
	r, err := NewTrafficRunner(op, balances, fakeResolver{}, cfg, clk, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new traffic runner: %v", err)
	}
	return r
}

func TestTrafficAnchorPhaseStopsOnLowBalance(t *testing.T) {
	anchor := tokenAt(9, "CUSD")
	tokens := []dex.Token{anchor, tokenAt(1, "A"), tokenAt(2, "B")}
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.setToken(anchor.Address, wallet.Address, units(250))
	op := &fakeOperator{balances: balances}
	clk := newClock()

	sum, err := newTraffic(t, op, balances, trafficConfig(anchor), clk).Run(context.Background(), []*web3.Wallet{wallet}, tokens, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Succeeded != 2 || len(op.calls) != 2 {
		t.Fatalf("expected two swaps before the balance ran out, got %+v", sum)
	}
	for _, c := range op.calls {
		if c.From != anchor.Address || c.To == anchor.Address {
			t.Fatalf("anchor swap must leave the anchor: %+v", c)
		}
		if c.Amount.Cmp(units(100)) != 0 {
			t.Fatalf("unexpected amount %s", c.Amount)
		}
	}
	if clk.Slept() != 6*time.Second {
		t.Fatalf("unexpected sleeps %v", clk.Sleeps())
	}
}

func TestTrafficRandomPhaseSkipsEmptySources(t *testing.T) {
	anchor := tokenAt(9, "CUSD")
	a, b := tokenAt(1, "A"), tokenAt(2, "B")
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.setToken(a.Address, wallet.Address, units(10))
	op := &fakeOperator{balances: balances}
	clk := newClock()

	cfg := trafficConfig(anchor)
	cfg.AnchorSwaps = Range{}
	cfg.RandomSwaps = 40
	if _, err := newTraffic(t, op, balances, cfg, clk).Run(context.Background(), []*web3.Wallet{wallet}, []dex.Token{a, b}, 1); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(op.calls) == 0 {
		t.Fatal("expected at least one random swap")
	}
	if len(clk.Sleeps()) != len(op.calls) {
		t.Fatalf("skipped sources must not sleep: %d sleeps for %d swaps", len(clk.Sleeps()), len(op.calls))
	}

	milli := big.NewInt(1e15)
	for _, c := range op.calls {
		if c.From != a.Address || c.To != b.Address {
			t.Fatalf("only the funded token may be spent: %+v", c)
		}
		if new(big.Int).Mod(c.Amount, milli).Sign() != 0 {
			t.Fatalf("amount %s is not in thousandths", c.Amount)
		}
		if c.Amount.Cmp(big.NewInt(1e16)) < 0 || c.Amount.Cmp(big.NewInt(5e17)) > 0 {
			t.Fatalf("amount %s out of range", c.Amount)
		}
	}
}

func TestTrafficTargetPhaseAndRoundCooldown(t *testing.T) {
	anchor := tokenAt(9, "CUSD")
	target := tokenAt(8, "BRONTO")
	tokens := []dex.Token{anchor, tokenAt(1, "A")}
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.setToken(anchor.Address, wallet.Address, units(100_000))
	op := &fakeOperator{balances: balances}
	clk := newClock()

	cfg := trafficConfig(anchor)
	cfg.AnchorSwaps = Range{Min: 1, Max: 1}
	cfg.Target = target
	cfg.TargetSwaps = Range{Min: 2, Max: 2}
	cfg.TargetAmount = Range{Min: 1000, Max: 1000}

	sum, err := newTraffic(t, op, balances, cfg, clk).Run(context.Background(), []*web3.Wallet{wallet}, tokens, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Succeeded != 6 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	for round := 0; round < 2; round++ {
		calls := op.calls[round*3 : round*3+3]
		if calls[0].To != tokens[1].Address {
			t.Fatalf("round %d: first swap must go to a random token", round)
		}
		for _, c := range calls[1:] {
			if c.To != target.Address || c.Amount.Cmp(units(1000)) != 0 {
				t.Fatalf("round %d: unexpected target swap %+v", round, c)
			}
		}
	}
	if got, want := clk.Slept(), 6*3*time.Second+10*time.Hour; got != want {
		t.Fatalf("slept %v, want %v", got, want)
	}
}

func TestTrafficFailuresDoNotStopPhase(t *testing.T) {
	anchor := tokenAt(9, "CUSD")
	wallet := newWallet(t)
	balances := newFakeBalances()
	balances.setToken(anchor.Address, wallet.Address, units(1000))
	op := &fakeOperator{balances: balances, outcome: func(call) operation.Result { return failed("reverted") }}

	sum, err := newTraffic(t, op, balances, trafficConfig(anchor), newClock()).
		Run(context.Background(), []*web3.Wallet{wallet}, []dex.Token{anchor, tokenAt(1, "A")}, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 5 {
		t.Fatalf("expected every planned swap to be attempted, got %+v", sum)
	}
}

func TestNewTrafficRunnerRequiresAnchor(t *testing.T) {
	if _, err := NewTrafficRunner(&fakeOperator{}, newFakeBalances(), fakeResolver{}, TrafficConfig{}, nil, nil); err == nil {
		t.Fatal("expected an error without an anchor token")
	}
}

func TestThousandths(t *testing.T) {
	cases := map[string]int64{"0.01": 10, "0.5": 500, "1": 1000, "0.0005": 0}
	for in, want := range cases {
		got, err := Thousandths(in)
		if err != nil || got != want {
			t.Fatalf("Thousandths(%q) = %d, %v", in, got, err)
		}
	}
	for _, bad := range []string{"-1", "abc"} {
		if _, err := Thousandths(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRangeDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := Range{Min: 32, Max: 55}
	for i := 0; i < 200; i++ {
		if v := r.draw(rng); v < 32 || v > 55 {
			t.Fatalf("draw %d out of range", v)
		}
	}
	if v := (Range{Min: 7, Max: 3}).draw(rng); v != 7 {
		t.Fatalf("degenerate range drew %d", v)
	}
}
