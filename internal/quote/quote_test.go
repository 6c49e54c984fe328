package quote

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/dex/dextest"
	apperrors "AutoLP-Chain/internal/errors"
)

func TestMinOutProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		q := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 200))
		s := rng.Intn(101)
		got := MinOut(q, s)

		want := new(big.Int).Mul(q, big.NewInt(int64(100-s)))
		want.Div(want, big.NewInt(100))
		if got.Cmp(want) != 0 {
			t.Fatalf("MinOut(%s, %d) = %s, want %s", q, s, got, want)
		}
		if got.Cmp(q) > 0 {
			t.Fatalf("MinOut(%s, %d) = %s exceeds quote", q, s, got)
		}
	}
}

func TestMinOutRoundsDown(t *testing.T) {
	if got := MinOut(big.NewInt(199), 10); got.Int64() != 179 {
		t.Fatalf("expected 179, got %s", got)
	}
	if got := MinOut(big.NewInt(100), 150); got.Sign() != 0 {
		t.Fatalf("expected clamp to zero, got %s", got)
	}
}

func TestQuoteUsesRouter(t *testing.T) {
	chain := dextest.New(1)
	token := chain.AddToken("TKN", 18)
	chain.CreatePair(token, dextest.WETHAddress, big.NewInt(1_000_000), big.NewInt(1_000), big.NewInt(1))
	engine := New(dex.NewContracts(chain, dextest.RouterAddress, dextest.WETHAddress), big.NewInt(777))

	q := engine.Quote(context.Background(), big.NewInt(10), dextest.WETHAddress, token)
	if q.Fallback {
		t.Fatalf("unexpected fallback: %v", q.Err)
	}
	// 10*997*1e6 / (1000*1000 + 10*997)
	if q.AmountOut.Int64() != 9871 {
		t.Fatalf("unexpected amount out %s", q.AmountOut)
	}
}

func TestQuoteFallsBackWithoutPair(t *testing.T) {
	chain := dextest.New(1)
	token := chain.AddToken("TKN", 18)
	engine := New(dex.NewContracts(chain, dextest.RouterAddress, dextest.WETHAddress), big.NewInt(777))

	q := engine.Quote(context.Background(), big.NewInt(10), dextest.WETHAddress, token)
	if !q.Fallback || q.AmountOut.Int64() != 777 {
		t.Fatalf("expected fallback estimate, got %+v", q)
	}
	if _, err := engine.Exact(context.Background(), big.NewInt(10), dextest.WETHAddress, token); apperrors.CodeOf(err) != CodeQuoteFailed {
		t.Fatalf("expected QUOTE_FAILED, got %v", err)
	}
}
