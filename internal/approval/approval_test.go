package approval

import (
	"context"
	"math/big"
	"testing"
	"time"

	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/dex/dextest"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

type modeCounter map[string]int

func (m modeCounter) ObserveApproval(mode string) { m[mode]++ }

func setup(t *testing.T) (*dextest.Chain, *clock.Fake, *Manager, *web3.Wallet, modeCounter) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fake := clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	chain := dextest.New(1)
	chain.Now = fake.Now
	contracts := dex.NewContracts(chain, dextest.RouterAddress, dextest.WETHAddress)
	sub := submitter.New(chain, submitter.DefaultConfig(), submitter.WithClock(fake))
	counter := modeCounter{}
	return chain, fake, NewManager(contracts, sub, counter), web3.WalletFromKey(key), counter
}

func TestEnsureIsIdempotent(t *testing.T) {
	chain, _, manager, wallet, counter := setup(t)
	token := chain.AddToken("TKN", 18)
	req := Request{Wallet: wallet, Token: token, Spender: dextest.RouterAddress, Required: big.NewInt(1234), Gas: web3.GasParams{Price: big.NewInt(1), Limit: 200000}}

	first, err := manager.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if !first.Approved || first.Amount.Int64() != 1234 {
		t.Fatalf("expected exact approval, got %+v", first)
	}
	second, err := manager.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.Approved {
		t.Fatalf("second ensure must be a no-op")
	}
	if n := len(chain.Sent(dex.MethodApprove)); n != 1 {
		t.Fatalf("expected a single approval transaction, got %d", n)
	}
	if counter["exact"] != 1 {
		t.Fatalf("unexpected observer counts %v", counter)
	}
}

func TestEnsureSkipsWhenAllowanceSuffices(t *testing.T) {
	chain, _, manager, wallet, _ := setup(t)
	token := chain.AddToken("TKN", 18)
	chain.SetAllowance(token, wallet.Address, dextest.RouterAddress, big.NewInt(5000))

	out, err := manager.Ensure(context.Background(), Request{Wallet: wallet, Token: token, Spender: dextest.RouterAddress, Required: big.NewInt(5000)})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if out.Approved || len(chain.Attempts()) != 0 {
		t.Fatalf("no approval expected, got %+v", out)
	}
}

func TestEnsureUnlimited(t *testing.T) {
	chain, _, manager, wallet, counter := setup(t)
	token := chain.AddToken("TKN", 18)

	if _, err := manager.Ensure(context.Background(), Request{Wallet: wallet, Token: token, Spender: dextest.RouterAddress, Required: big.NewInt(1), Mode: Unlimited}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got := chain.AllowanceOf(token, wallet.Address, dextest.RouterAddress); got.Cmp(math.MaxBig256) != 0 {
		t.Fatalf("expected MaxUint256 allowance, got %s", got)
	}
	if counter["unlimited"] != 1 {
		t.Fatalf("unexpected observer counts %v", counter)
	}
}

func TestEnsureFailsAfterRetryBudget(t *testing.T) {
	chain, fake, manager, wallet, _ := setup(t)
	token := chain.AddToken("TKN", 18)
	chain.RevertAlways(dex.MethodApprove)

	out, err := manager.Ensure(context.Background(), Request{Wallet: wallet, Token: token, Spender: dextest.RouterAddress, Required: big.NewInt(10)})
	if apperrors.CodeOf(err) != CodeApprovalFailed {
		t.Fatalf("expected APPROVAL_FAILED, got %v", err)
	}
	if out.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", out.Attempts)
	}
	if fake.Slept() != 6*time.Second {
		t.Fatalf("expected two 3s delays, got %s", fake.Slept())
	}
}
