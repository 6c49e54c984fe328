// Package operation turns one intent for one wallet and one token into a
// quoted, approved and submitted transaction. Every failure is converted
// into a Result at this boundary so the caller's loop keeps going.
package operation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/clock"
	"AutoLP-Chain/internal/dex"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/quote"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Precondition codes. No transaction is attempted when one of them is returned.
const (
	CodeInsufficientBalance apperrors.Code = "INSUFFICIENT_BALANCE"
	CodePairNotFound        apperrors.Code = "PAIR_NOT_FOUND"
	CodeNoPosition          apperrors.Code = "NO_POSITION"
	CodeOperationPanic      apperrors.Code = "OPERATION_PANIC"
)

func init() {
	apperrors.Register(CodeInsufficientBalance, apperrors.Attributes{
		Message:   "insufficient balance",
		Severity:  apperrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	apperrors.Register(CodePairNotFound, apperrors.Attributes{
		Message:   "pair not found",
		Severity:  apperrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	apperrors.Register(CodeNoPosition, apperrors.Attributes{
		Message:   "no liquidity position",
		Severity:  apperrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	apperrors.Register(CodeOperationPanic, apperrors.Attributes{
		Message:   "operation panicked",
		Severity:  apperrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// Kind names an operation.
type Kind string

const (
	KindAdd      Kind = "ADD"
	KindWithdraw Kind = "WITHDRAW"
	KindSwap     Kind = "SWAP"
	KindUnwrap   Kind = "UNWRAP"
)

// Stage is the last step an operation reached.
type Stage string

const (
	StageStart        Stage = "START"
	StageQuote        Stage = "QUOTE"
	StageBalanceCheck Stage = "BALANCE_CHECK"
	StageApprove      Stage = "APPROVE"
	StageExecute      Stage = "EXECUTE"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// Status summarises the outcome of an operation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result is what every operation returns to its caller.
type Result struct {
	ID              string
	Kind            Kind
	Wallet          common.Address
	Token           common.Address
	Symbol          string
	Success         bool
	Skipped         bool
	TransactionHash string
	// Stage is the stage the operation was in when it ended. A failed
	// operation keeps the stage it failed in.
	Stage      Stage
	Reason     string
	ErrorCode  string
	Attempts   int
	Fallback   bool
	AmountIn   *big.Int
	MinOut     *big.Int
	Deadline   *big.Int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Status reports whether the operation succeeded, was skipped or failed.
func (r Result) Status() Status {
	switch {
	case r.Success:
		return StatusSucceeded
	case r.Skipped:
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Duration is the wall time spent in the operation.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Reporter receives every finished operation. Reporters must not block for
// long and must not fail the operation.
type Reporter interface {
	Report(ctx context.Context, result Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, result Result)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, result Result) { f(ctx, result) }

// GasConfig holds the price and limit used by each kind of call.
type GasConfig struct {
	Liquidity web3.GasParams
	Withdraw  web3.GasParams
	Approve   web3.GasParams
	LPApprove web3.GasParams
	Swap      web3.GasParams
	Unwrap    web3.GasParams
}

// Config is the explicit configuration of the orchestrator.
type Config struct {
	// Contribution is the native amount paired with the token in every ADD.
	Contribution      *big.Int
	LiquiditySlippage int
	SwapSlippage      int
	WithdrawPercent   int
	SwapFraction      int
	Gas               GasConfig
}

// DefaultConfig returns the production defaults at the given gas price.
func DefaultConfig(gasPrice *big.Int) Config {
	params := func(limit uint64) web3.GasParams {
		return web3.GasParams{Price: gasPrice, Limit: limit}
	}
	return Config{
		Contribution:      big.NewInt(1_000_000_000_000),
		LiquiditySlippage: 10,
		SwapSlippage:      5,
		WithdrawPercent:   80,
		SwapFraction:      50,
		Gas: GasConfig{
			Liquidity: params(400000),
			Withdraw:  params(600000),
			Approve:   params(200000),
			LPApprove: params(300000),
			Swap:      params(300000),
			Unwrap:    params(250000),
		},
	}
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the clock used to time operations.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithReporter registers a reporter for finished operations.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporters = append(o.reporters, r)
		}
	}
}

// Orchestrator composes the quote engine, the approval manager and the
// submitter. Operations run strictly one at a time per caller.
type Orchestrator struct {
	contracts *dex.Contracts
	quotes    *quote.Engine
	approvals *approval.Manager
	submitter *submitter.Submitter
	tokens    *dex.TokenCache
	cfg       Config
	clock     clock.Clock
	reporters []Reporter
}

// New constructs an Orchestrator.
func New(contracts *dex.Contracts, quotes *quote.Engine, approvals *approval.Manager, sub *submitter.Submitter, tokens *dex.TokenCache, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Contribution == nil {
		cfg.Contribution = new(big.Int)
	}
	o := &Orchestrator{
		contracts: contracts,
		quotes:    quotes,
		approvals: approvals,
		submitter: sub,
		tokens:    tokens,
		cfg:       cfg,
		clock:     clock.System(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Config returns the active configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Contracts exposes the chain bindings used by the orchestrator.
func (o *Orchestrator) Contracts() *dex.Contracts {
	return o.contracts
}

// Tokens exposes the token metadata cache.
func (o *Orchestrator) Tokens() *dex.TokenCache {
	return o.tokens
}

// run carries the state of one operation through its stages.
type run struct {
	result Result
	log    *slog.Logger
}

func (r *run) enter(stage Stage) {
	r.result.Stage = stage
	r.log.Debug("stage", "stage", string(stage))
}

func (r *run) skip(reason string) {
	r.result.Skipped = true
	r.result.Reason = reason
}

func (r *run) confirmed(receipt submitter.Receipt) {
	r.result.TransactionHash = receipt.Hash.Hex()
	r.result.Attempts = receipt.Attempts
	r.result.Deadline = receipt.Deadline
	r.result.Fallback = receipt.Fallback
}

// execute runs flow and converts its outcome into a Result. A panic inside
// flow is reported as a failure of this operation only.
func (o *Orchestrator) execute(ctx context.Context, kind Kind, wallet *web3.Wallet, token common.Address, flow func(r *run) error) (result Result) {
	r := &run{
		result: Result{
			ID:        uuid.NewString(),
			Kind:      kind,
			Wallet:    wallet.Address,
			Token:     token,
			Stage:     StageStart,
			StartedAt: o.clock.Now(),
		},
	}
	r.log = logger.Named("operation").With(
		slog.String("id", r.result.ID),
		slog.String("kind", string(kind)),
		slog.String("wallet", wallet.Address.Hex()),
	)

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = apperrors.New(CodeOperationPanic, fmt.Sprintf("panic: %v", p))
			}
		}()
		err = flow(r)
	}()

	result = o.finish(r, err)
	for _, reporter := range o.reporters {
		reporter.Report(ctx, result)
	}
	return result
}

func (o *Orchestrator) finish(r *run, err error) Result {
	res := r.result
	res.FinishedAt = o.clock.Now()
	attrs := []any{
		slog.String("symbol", res.Symbol),
		slog.String("stage", string(res.Stage)),
		slog.Duration("elapsed", res.Duration()),
	}
	switch {
	case err != nil:
		res.Success = false
		res.Skipped = false
		res.Err = err
		res.ErrorCode = string(apperrors.CodeOf(err))
		res.Reason = apperrors.Reason(err)
		r.log.Warn("operation failed", append(attrs,
			slog.String("code", res.ErrorCode),
			slog.String("reason", res.Reason))...)
	case res.Skipped:
		r.log.Info("operation skipped", append(attrs, slog.String("reason", res.Reason))...)
	default:
		res.Success = true
		res.Stage = StageDone
		r.log.Info("operation confirmed", append(attrs,
			slog.String("tx", res.TransactionHash),
			slog.Int("attempts", res.Attempts),
			slog.Bool("fallback", res.Fallback))...)
	}
	return res
}

func (o *Orchestrator) resolve(ctx context.Context, token dex.Token) dex.Token {
	if o.tokens == nil {
		if token.Symbol == "" {
			token.Symbol = dex.UnknownSymbol
		}
		if token.Decimals == 0 {
			token.Decimals = dex.DefaultDecimals
		}
		return token
	}
	return o.tokens.Resolve(ctx, token)
}

func insufficient(symbol string, have, need *big.Int, decimals uint8) error {
	return apperrors.New(CodeInsufficientBalance,
		fmt.Sprintf("insufficient %s balance: have %s, need %s", symbol,
			dex.FormatUnits(have, decimals), dex.FormatUnits(need, decimals)),
		apperrors.WithMetadata("symbol", symbol))
}
