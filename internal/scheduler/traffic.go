package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Range is an inclusive integer interval.
type Range struct {
	Min int64
	Max int64
}

// draw returns a uniform value in [Min, Max].
func (r Range) draw(rng *rand.Rand) int64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Int63n(r.Max-r.Min+1)
}

// TrafficConfig shapes the organic swap pattern.
type TrafficConfig struct {
	// Anchor is the token most swaps are paid in.
	Anchor dex.Token
	// Target receives the final phase. A zero address disables that phase.
	Target dex.Token

	AnchorSwaps  Range
	AnchorAmount Range // whole anchor units
	RandomSwaps  int
	// RandomAmount bounds the random-to-random amount in thousandths of a unit.
	RandomAmount Range
	TargetSwaps  Range
	TargetAmount Range // whole anchor units

	Slippage         int
	OperationDelay   time.Duration
	RoundCooldown    time.Duration
	ProgressInterval time.Duration
}

// Thousandths converts a decimal string such as "0.01" into thousandths.
func Thousandths(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %q", value)
	}
	return d.Shift(3).Truncate(0).IntPart(), nil
}

// TokenResolver fills symbol and decimals. *dex.TokenCache implements it.
type TokenResolver interface {
	Resolve(ctx context.Context, t dex.Token) dex.Token
}

// TrafficRunner generates swap activity per wallet in three phases: anchor
// to random tokens, random to random, then anchor to the target token.
type TrafficRunner struct {
	op       Operator
	balances Balances
	tokens   TokenResolver
	cfg      TrafficConfig
	clock    clock.Clock
	rng      *rand.Rand
	log      *slog.Logger
}

// NewTrafficRunner validates cfg and builds a runner.
func NewTrafficRunner(op Operator, balances Balances, tokens TokenResolver, cfg TrafficConfig, clk clock.Clock, rng *rand.Rand) (*TrafficRunner, error) {
	if cfg.Anchor.Address == (common.Address{}) {
		return nil, errors.New("traffic anchor token is not configured")
	}
	if clk == nil {
		clk = clock.System()
	}
	if rng == nil {
		rng = NewRand(0)
	}
	return &TrafficRunner{
		op:       op,
		balances: balances,
		tokens:   tokens,
		cfg:      cfg,
		clock:    clk,
		rng:      rng,
		log:      logger.Named("traffic"),
	}, nil
}

// Run executes rounds over shuffled wallets, separated by the round
// cooldown. rounds <= 0 repeats until ctx is cancelled.
func (t *TrafficRunner) Run(ctx context.Context, wallets []*web3.Wallet, tokens []dex.Token, rounds int) (Summary, error) {
	var total Summary
	for round := 1; rounds <= 0 || round <= rounds; round++ {
		order := append([]*web3.Wallet(nil), wallets...)
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		t.log.Info("traffic round started", slog.Int("round", round), slog.Int("wallets", len(order)))

		for i, wallet := range order {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			t.log.Info("wallet", slog.Int("index", i+1), slog.Int("total", len(order)), slog.String("address", wallet.Address.Hex()))
			total.merge(t.processWallet(ctx, wallet, tokens))
		}

		if rounds > 0 && round == rounds {
			break
		}
		if err := runCooldown(ctx, t.clock, t.log, "traffic round cooldown", t.cfg.RoundCooldown, t.cfg.ProgressInterval); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *TrafficRunner) processWallet(ctx context.Context, wallet *web3.Wallet, tokens []dex.Token) (sum Summary) {
	log := t.log.With(slog.String("wallet", wallet.Address.Hex()))
	defer func() {
		if rec := recover(); rec != nil {
			sum.WalletsAborted++
			log.Error("wallet pass panicked", slog.Any("panic", rec))
		}
	}()

	anchor := t.tokens.Resolve(ctx, t.cfg.Anchor)
	others := make([]dex.Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Address != anchor.Address {
			others = append(others, tok)
		}
	}

	if len(others) > 0 {
		n := int(t.cfg.AnchorSwaps.draw(t.rng))
		sum.merge(t.anchorPhase(ctx, log, wallet, anchor, n, t.cfg.AnchorAmount, func() dex.Token {
			return others[t.rng.Intn(len(others))]
		}))
	}
	if ctx.Err() == nil {
		sum.merge(t.randomPhase(ctx, log, wallet, tokens))
	}
	if ctx.Err() == nil && t.cfg.Target.Address != (common.Address{}) {
		target := t.cfg.Target
		n := int(t.cfg.TargetSwaps.draw(t.rng))
		sum.merge(t.anchorPhase(ctx, log, wallet, anchor, n, t.cfg.TargetAmount, func() dex.Token { return target }))
	}

	t.logFinalBalances(ctx, log, wallet, tokens)
	return sum
}

// anchorPhase swaps random whole amounts of the anchor into pick() and stops
// as soon as the anchor balance cannot cover the next amount.
func (t *TrafficRunner) anchorPhase(ctx context.Context, log *slog.Logger, wallet *web3.Wallet, anchor dex.Token, count int, amounts Range, pick func() dex.Token) (sum Summary) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(anchor.Decimals)), nil)
	for i := 0; i < count; i++ {
		to := pick()
		whole := amounts.draw(t.rng)
		amountIn := new(big.Int).Mul(big.NewInt(whole), scale)

		balance, err := t.balances.BalanceOf(ctx, anchor.Address, wallet.Address)
		if err != nil {
			log.Warn("anchor balance read failed", slog.Any("error", err))
			return sum
		}
		if balance.Cmp(amountIn) < 0 {
			log.Warn("anchor balance too low, phase stopped",
				slog.String("required", fmt.Sprintf("%d %s", whole, anchor.Label())),
				slog.String("available", dex.FormatFixed(balance, anchor.Decimals, 2)),
			)
			return sum
		}

		res := t.op.Swap(ctx, wallet, operation.SwapRequest{
			From:     anchor,
			To:       to,
			AmountIn: amountIn,
			Slippage: t.cfg.Slippage,
			Approval: approval.Exact,
		})
		sum.record(res)
		logResult(log, to, res)
		if err := t.clock.Sleep(ctx, t.cfg.OperationDelay); err != nil {
			return sum
		}
	}
	return sum
}

// randomPhase swaps a random fractional amount between two distinct random
// tokens. Sources with a zero balance are skipped without a transaction.
func (t *TrafficRunner) randomPhase(ctx context.Context, log *slog.Logger, wallet *web3.Wallet, tokens []dex.Token) (sum Summary) {
	if len(tokens) < 2 {
		return sum
	}
	for i := 0; i < t.cfg.RandomSwaps; i++ {
		perm := t.rng.Perm(len(tokens))
		from := t.tokens.Resolve(ctx, tokens[perm[0]])
		to := tokens[perm[1]]

		balance, err := t.balances.BalanceOf(ctx, from.Address, wallet.Address)
		if err != nil {
			log.Warn("balance read failed", slog.String("token", from.Label()), slog.Any("error", err))
			continue
		}
		if balance.Sign() == 0 {
			log.Info("empty balance, skipped", slog.String("token", from.Label()))
			continue
		}

		// Tokens with fewer than three decimals round the amount down.
		amount := decimal.New(t.cfg.RandomAmount.draw(t.rng), -3)
		amountIn := amount.Shift(int32(from.Decimals)).Truncate(0).BigInt()

		res := t.op.Swap(ctx, wallet, operation.SwapRequest{
			From:     from,
			To:       to,
			AmountIn: amountIn,
			Slippage: t.cfg.Slippage,
			Approval: approval.Exact,
		})
		sum.record(res)
		logResult(log, to, res)
		if err := t.clock.Sleep(ctx, t.cfg.OperationDelay); err != nil {
			return sum
		}
	}
	return sum
}

func (t *TrafficRunner) logFinalBalances(ctx context.Context, log *slog.Logger, wallet *web3.Wallet, tokens []dex.Token) {
	attrs := make([]any, 0, len(tokens)+1)
	if native, err := t.balances.NativeBalance(ctx, wallet.Address); err == nil {
		attrs = append(attrs, slog.String("ETH", dex.FormatFixed(native, 18, 4)))
	}
	for _, tok := range tokens {
		resolved := t.tokens.Resolve(ctx, tok)
		balance, err := t.balances.BalanceOf(ctx, tok.Address, wallet.Address)
		if err != nil {
			continue
		}
		attrs = append(attrs, slog.String(resolved.Label(), dex.FormatFixed(balance, resolved.Decimals, 2)))
	}
	log.Info("final balances", attrs...)
}
