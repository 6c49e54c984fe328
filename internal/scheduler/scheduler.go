// Package scheduler drives the orchestrator across wallets and tokens: ADD
// and WITHDRAW cycles, the composite full cycle, the cooldown-gated swap
// automation and the traffic runner. Work is strictly sequential.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Operator runs single operations. *operation.Orchestrator implements it.
type Operator interface {
	AddLiquidity(ctx context.Context, wallet *web3.Wallet, token dex.Token) operation.Result
	WithdrawLiquidity(ctx context.Context, wallet *web3.Wallet, token dex.Token) operation.Result
	Swap(ctx context.Context, wallet *web3.Wallet, req operation.SwapRequest) operation.Result
	SwapToBase(ctx context.Context, wallet *web3.Wallet, token dex.Token) operation.Result
	Unwrap(ctx context.Context, wallet *web3.Wallet) operation.Result
}

// Balances reads wallet balances. *dex.Contracts implements it.
type Balances interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Mode names a scheduler pass.
type Mode string

const (
	ModeAdd      Mode = "add"
	ModeWithdraw Mode = "withdraw"
)

// Config holds the cadence of the cycle scheduler.
type Config struct {
	// Contribution is the native amount each ADD pairs with a token.
	Contribution *big.Int
	// TokensPerWallet is the size of the random token subset per ADD pass.
	TokensPerWallet  int
	OperationDelay   time.Duration
	WalletDelay      time.Duration
	CycleCooldown    time.Duration
	PhaseCooldown    time.Duration
	ProgressInterval time.Duration
}

// DefaultConfig mirrors the daemon defaults.
func DefaultConfig() Config {
	return Config{
		Contribution:     big.NewInt(1e12),
		TokensPerWallet:  5,
		OperationDelay:   3 * time.Second,
		WalletDelay:      5 * time.Second,
		CycleCooldown:    10 * time.Minute,
		PhaseCooldown:    6 * time.Hour,
		ProgressInterval: time.Minute,
	}
}

// Summary counts outcomes of a run.
type Summary struct {
	Operations     int
	Succeeded      int
	Skipped        int
	Failed         int
	WalletsAborted int
}

func (s *Summary) record(r operation.Result) {
	s.Operations++
	switch r.Status() {
	case operation.StatusSucceeded:
		s.Succeeded++
	case operation.StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

func (s *Summary) merge(o Summary) {
	s.Operations += o.Operations
	s.Succeeded += o.Succeeded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.WalletsAborted += o.WalletsAborted
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock used for delays and cooldowns.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clk }
}

// WithRand injects the random source used for token selection.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// Scheduler runs ADD and WITHDRAW cycles.
type Scheduler struct {
	op       Operator
	balances Balances
	cfg      Config
	clock    clock.Clock
	rng      *rand.Rand
	log      *slog.Logger
}

// New builds a Scheduler.
func New(op Operator, balances Balances, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		op:       op,
		balances: balances,
		cfg:      cfg,
		clock:    clock.System(),
		log:      logger.Named("scheduler"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.rng == nil {
		s.rng = NewRand(0)
	}
	if s.cfg.Contribution == nil {
		s.cfg.Contribution = DefaultConfig().Contribution
	}
	return s
}

// NewRand returns a seeded source; seed 0 seeds from the wall clock.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RunAdd runs cycles ADD passes. Each wallet gets a fresh random subset of
// tokens per cycle. Only context cancellation stops the run early.
func (s *Scheduler) RunAdd(ctx context.Context, wallets []*web3.Wallet, tokens []dex.Token, cycles int) (Summary, error) {
	return s.runCycles(ctx, ModeAdd, wallets, tokens, cycles)
}

// RunWithdraw runs cycles WITHDRAW passes over every token.
func (s *Scheduler) RunWithdraw(ctx context.Context, wallets []*web3.Wallet, tokens []dex.Token, cycles int) (Summary, error) {
	return s.runCycles(ctx, ModeWithdraw, wallets, tokens, cycles)
}

// RunFull alternates ADD cycles and WITHDRAW cycles separated by the phase
// cooldown. rounds <= 0 repeats until ctx is cancelled.
func (s *Scheduler) RunFull(ctx context.Context, wallets []*web3.Wallet, tokens []dex.Token, addCycles, withdrawCycles, rounds int) (Summary, error) {
	var total Summary
	for round := 1; rounds <= 0 || round <= rounds; round++ {
		s.log.Info("full cycle started", slog.Int("round", round))

		sum, err := s.RunAdd(ctx, wallets, tokens, addCycles)
		total.merge(sum)
		if err != nil {
			return total, err
		}
		if err := s.cooldown(ctx, "phase cooldown before withdraw", s.cfg.PhaseCooldown); err != nil {
			return total, err
		}

		sum, err = s.RunWithdraw(ctx, wallets, tokens, withdrawCycles)
		total.merge(sum)
		if err != nil {
			return total, err
		}
		if err := s.cooldown(ctx, "phase cooldown before restart", s.cfg.PhaseCooldown); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Scheduler) runCycles(ctx context.Context, mode Mode, wallets []*web3.Wallet, tokens []dex.Token, cycles int) (Summary, error) {
	if cycles <= 0 {
		cycles = 1
	}
	var total Summary
	for cycle := 1; cycle <= cycles; cycle++ {
		s.log.Info("cycle started",
			slog.String("mode", string(mode)),
			slog.Int("cycle", cycle),
			slog.Int("cycles", cycles),
			slog.Int("wallets", len(wallets)),
		)
		for _, wallet := range wallets {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			selected := tokens
			if mode == ModeAdd {
				selected = s.pick(tokens, s.cfg.TokensPerWallet)
			}
			total.merge(s.processWallet(ctx, mode, wallet, selected))
			if err := s.clock.Sleep(ctx, s.cfg.WalletDelay); err != nil {
				return total, err
			}
		}
		if cycle < cycles {
			if err := s.cooldown(ctx, "cycle cooldown", s.cfg.CycleCooldown); err != nil {
				return total, err
			}
		}
	}
	s.log.Info("cycle finished",
		slog.String("mode", string(mode)),
		slog.Int("succeeded", total.Succeeded),
		slog.Int("skipped", total.Skipped),
		slog.Int("failed", total.Failed),
		slog.Int("wallets_aborted", total.WalletsAborted),
	)
	return total, nil
}

// processWallet never lets one wallet's failure escape into the cycle loop.
func (s *Scheduler) processWallet(ctx context.Context, mode Mode, wallet *web3.Wallet, tokens []dex.Token) (sum Summary) {
	log := s.log.With(slog.String("wallet", wallet.Address.Hex()), slog.String("mode", string(mode)))
	defer func() {
		if rec := recover(); rec != nil {
			sum.WalletsAborted++
			log.Error("wallet pass panicked", slog.Any("panic", rec))
		}
	}()

	balance, err := s.balances.NativeBalance(ctx, wallet.Address)
	if err != nil {
		sum.WalletsAborted++
		log.Error("native balance read failed", slog.Any("error", err))
		return sum
	}
	log.Info("wallet balance", slog.String("native", dex.FormatUnits(balance, 18)))

	if mode == ModeAdd {
		required := new(big.Int).Mul(s.cfg.Contribution, big.NewInt(int64(len(tokens))))
		if balance.Cmp(required) < 0 {
			sum.WalletsAborted++
			log.Warn("insufficient balance for ADD pass",
				slog.String("required", dex.FormatUnits(required, 18)),
				slog.String("available", dex.FormatUnits(balance, 18)),
			)
			return sum
		}
	}

	for _, token := range tokens {
		var res operation.Result
		if mode == ModeAdd {
			res = s.op.AddLiquidity(ctx, wallet, token)
		} else {
			res = s.op.WithdrawLiquidity(ctx, wallet, token)
		}
		sum.record(res)
		logResult(log, token, res)
		s.logNative(ctx, log, wallet)
		if err := s.clock.Sleep(ctx, s.cfg.OperationDelay); err != nil {
			return sum
		}
	}
	return sum
}

// pick returns n tokens in random order, or all of them when n is out of range.
func (s *Scheduler) pick(tokens []dex.Token, n int) []dex.Token {
	if n <= 0 || n > len(tokens) {
		n = len(tokens)
	}
	out := make([]dex.Token, 0, n)
	for _, i := range s.rng.Perm(len(tokens))[:n] {
		out = append(out, tokens[i])
	}
	return out
}

func (s *Scheduler) logNative(ctx context.Context, log *slog.Logger, wallet *web3.Wallet) {
	balance, err := s.balances.NativeBalance(ctx, wallet.Address)
	if err != nil {
		log.Warn("native balance read failed", slog.Any("error", err))
		return
	}
	log.Info("new native balance", slog.String("native", dex.FormatUnits(balance, 18)))
}

func (s *Scheduler) cooldown(ctx context.Context, label string, total time.Duration) error {
	return runCooldown(ctx, s.clock, s.log, label, total, s.cfg.ProgressInterval)
}

func runCooldown(ctx context.Context, clk clock.Clock, log *slog.Logger, label string, total, tick time.Duration) error {
	if total <= 0 {
		return nil
	}
	log.Info("cooldown started", slog.String("label", label), slog.Duration("duration", total))
	return clock.Cooldown(ctx, clk, total, tick, func(remaining, _ time.Duration) {
		if remaining == 0 {
			log.Info("cooldown finished", slog.String("label", label))
			return
		}
		log.Info("cooldown", slog.String("label", label), slog.String("remaining", formatRemaining(remaining)))
	})
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dh %dm %ds", h, m, d/time.Second)
}

func logResult(log *slog.Logger, token dex.Token, res operation.Result) {
	attrs := []any{
		slog.String("token", token.Label()),
		slog.String("kind", string(res.Kind)),
		slog.String("status", string(res.Status())),
	}
	switch res.Status() {
	case operation.StatusSucceeded:
		log.Info("operation succeeded", append(attrs, slog.String("symbol", res.Symbol), slog.String("tx", res.TransactionHash))...)
	case operation.StatusSkipped:
		log.Info("operation skipped", append(attrs, slog.String("reason", res.Reason))...)
	default:
		log.Warn("operation failed", append(attrs, slog.String("stage", string(res.Stage)), slog.String("reason", res.Reason))...)
	}
}
