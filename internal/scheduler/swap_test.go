package scheduler

import (
	"context"
	"testing"
	"time"

	"AutoLP-Chain/internal/cooldown"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"
)

func TestSwapRunnerRespectsActiveCooldown(t *testing.T) {
	clk := newClock()
	store := cooldown.NewMemoryStore()
	if err := store.Save(context.Background(), "swap", cooldown.Record{Timestamp: start.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gate := cooldown.NewGate(store, "swap", 6*time.Hour, clk)
	op := &fakeOperator{}

	report, err := NewSwapRunner(op, gate, 5*time.Second, clk).
		Run(context.Background(), SwapThenUnwrap, []*web3.Wallet{newWallet(t)}, fiveTokens())
	if !apperrors.HasCode(err, cooldown.CodeCooldownActive) {
		t.Fatalf("expected COOLDOWN_ACTIVE, got %v", err)
	}
	if len(op.calls) != 0 {
		t.Fatal("no wallet may be touched while the cooldown is active")
	}
	if report.Cooldown.Remaining != 4*time.Hour {
		t.Fatalf("unexpected remaining %v", report.Cooldown.Remaining)
	}
}

func TestSwapRunnerMarksAfterProductiveRun(t *testing.T) {
	clk := newClock()
	gate := cooldown.NewGate(cooldown.NewMemoryStore(), "swap", 6*time.Hour, clk)
	empty := tokenAt(1, "A").Address
	op := &fakeOperator{outcome: func(c call) operation.Result {
		if c.From == empty {
			return skipped("zero balance")
		}
		return operation.Result{Success: true}
	}}
	wallet := newWallet(t)

	report, err := NewSwapRunner(op, gate, 5*time.Second, clk).
		Run(context.Background(), SwapOnly, []*web3.Wallet{wallet}, fiveTokens()[:2])
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Performed || report.Skipped != 1 || report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := clk.Sleeps(); len(got) != 1 || got[0] != 5*time.Second {
		t.Fatalf("skipped tokens must not sleep, got %v", got)
	}
	if op.count(operation.KindUnwrap, wallet.Address) != 0 {
		t.Fatal("swap mode must not unwrap")
	}

	status := gate.Status(context.Background())
	if !status.Active || !status.LastRun.Equal(clk.Now()) {
		t.Fatalf("gate not marked: %+v", status)
	}
}

func TestSwapRunnerLeavesGateOpenWhenNothingSucceeded(t *testing.T) {
	clk := newClock()
	gate := cooldown.NewGate(cooldown.NewMemoryStore(), "swap", 6*time.Hour, clk)
	op := &fakeOperator{outcome: func(call) operation.Result { return failed("reverted") }}

	report, err := NewSwapRunner(op, gate, time.Second, clk).
		Run(context.Background(), SwapThenUnwrap, []*web3.Wallet{newWallet(t), newWallet(t)}, fiveTokens()[:2])
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Performed || report.Failed != 6 {
		t.Fatalf("unexpected report %+v", report)
	}
	if gate.Status(context.Background()).Found {
		t.Fatal("gate must stay open after an unproductive run")
	}
}

func TestSwapRunnerUnwrapModes(t *testing.T) {
	wallet := newWallet(t)
	op := &fakeOperator{}
	report, err := NewSwapRunner(op, nil, 0, newClock()).
		Run(context.Background(), SwapThenUnwrap, []*web3.Wallet{wallet}, fiveTokens()[:3])
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if op.count(operation.KindSwap, wallet.Address) != 3 || op.count(operation.KindUnwrap, wallet.Address) != 1 {
		t.Fatalf("unexpected calls %+v", op.calls)
	}
	if last := op.calls[len(op.calls)-1]; last.Kind != operation.KindUnwrap {
		t.Fatal("unwrap must follow the swaps")
	}
	if !report.Performed {
		t.Fatal("expected a productive run")
	}

	op = &fakeOperator{}
	if _, err := NewSwapRunner(op, nil, 0, newClock()).
		Run(context.Background(), UnwrapOnly, []*web3.Wallet{wallet}, fiveTokens()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(op.calls) != 1 || op.calls[0].Kind != operation.KindUnwrap {
		t.Fatalf("unwrap mode must only unwrap, got %+v", op.calls)
	}
}

func TestParseSwapMode(t *testing.T) {
	cases := map[string]SwapMode{
		"swap":        SwapOnly,
		" Unwrap ":    UnwrapOnly,
		"swap-unwrap": SwapThenUnwrap,
		"swap+unwrap": SwapThenUnwrap,
	}
	for raw, want := range cases {
		got, err := ParseSwapMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSwapMode(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseSwapMode("bridge"); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
