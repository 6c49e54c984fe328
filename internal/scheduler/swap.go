package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/cooldown"
	"AutoLP-Chain/internal/dex"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"
)

// SwapMode selects what the swap automation does per wallet.
type SwapMode string

const (
	SwapOnly       SwapMode = "swap"
	UnwrapOnly     SwapMode = "unwrap"
	SwapThenUnwrap SwapMode = "swap-unwrap"
)

// ParseSwapMode accepts swap, unwrap and swap-unwrap (or swap+unwrap).
func ParseSwapMode(raw string) (SwapMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "swap":
		return SwapOnly, nil
	case "unwrap":
		return UnwrapOnly, nil
	case "swap-unwrap", "swap+unwrap":
		return SwapThenUnwrap, nil
	default:
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown swap mode %q", raw))
	}
}

// SwapReport is the outcome of one swap automation run.
type SwapReport struct {
	Summary
	// Performed is true when at least one operation succeeded.
	Performed bool
	// Cooldown is the gate status observed before the run.
	Cooldown cooldown.Status
}

// SwapRunner sweeps token balances into the base asset and unwraps it. The
// whole run is gated by a durable cooldown that is only marked when at least
// one operation succeeded.
type SwapRunner struct {
	op    Operator
	gate  *cooldown.Gate
	clock clock.Clock
	delay time.Duration
	log   *slog.Logger
}

// NewSwapRunner builds a runner. gate may be nil to disable gating.
func NewSwapRunner(op Operator, gate *cooldown.Gate, delay time.Duration, clk clock.Clock) *SwapRunner {
	if clk == nil {
		clk = clock.System()
	}
	return &SwapRunner{op: op, gate: gate, clock: clk, delay: delay, log: logger.Named("swap-runner")}
}

// Run executes mode for every wallet in load order. A COOLDOWN_ACTIVE error
// is returned without touching any wallet while the gate is closed.
func (r *SwapRunner) Run(ctx context.Context, mode SwapMode, wallets []*web3.Wallet, tokens []dex.Token) (SwapReport, error) {
	var report SwapReport
	if r.gate != nil {
		status, err := r.gate.Check(ctx)
		report.Cooldown = status
		if err != nil {
			r.log.Warn("cooldown active, nothing to do",
				slog.String("key", status.Key),
				slog.String("remaining", formatRemaining(status.Remaining)),
				slog.Time("last_run", status.LastRun),
			)
			return report, err
		}
	}

	for i, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.log.Info("wallet", slog.Int("index", i+1), slog.Int("total", len(wallets)), slog.String("address", wallet.Address.Hex()))
		sum, performed := r.processWallet(ctx, mode, wallet, tokens)
		report.merge(sum)
		report.Performed = report.Performed || performed
	}

	if !report.Performed {
		r.log.Info("no operation succeeded, cooldown not started")
		return report, nil
	}
	if r.gate != nil {
		msg := fmt.Sprintf("%s: %d succeeded across %d wallets", mode, report.Succeeded, len(wallets))
		if err := r.gate.Mark(ctx, msg); err != nil {
			return report, err
		}
		r.log.Info("cooldown started", slog.String("key", r.gate.Key()), slog.Duration("duration", r.gate.Duration()))
	}
	return report, nil
}

func (r *SwapRunner) processWallet(ctx context.Context, mode SwapMode, wallet *web3.Wallet, tokens []dex.Token) (sum Summary, performed bool) {
	log := r.log.With(slog.String("wallet", wallet.Address.Hex()))
	defer func() {
		if rec := recover(); rec != nil {
			sum.WalletsAborted++
			log.Error("wallet pass panicked", slog.Any("panic", rec))
		}
	}()

	if mode == SwapOnly || mode == SwapThenUnwrap {
		for _, token := range tokens {
			res := r.op.SwapToBase(ctx, wallet, token)
			sum.record(res)
			logResult(log, token, res)
			if res.Skipped {
				continue
			}
			performed = performed || res.Success
			if err := r.clock.Sleep(ctx, r.delay); err != nil {
				return sum, performed
			}
		}
	}
	if mode == UnwrapOnly || mode == SwapThenUnwrap {
		res := r.op.Unwrap(ctx, wallet)
		sum.record(res)
		logResult(log, dex.Token{Name: "WETH"}, res)
		if !res.Skipped {
			performed = performed || res.Success
			if err := r.clock.Sleep(ctx, r.delay); err != nil {
				return sum, performed
			}
		}
	}
	return sum, performed
}
