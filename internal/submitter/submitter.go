// Package submitter builds, signs, broadcasts and confirms single contract
// calls with bounded retry and an optional one-shot fallback entry point.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"AutoLP-Chain/internal/clock"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/retry"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Error codes owned by the submitter.
const (
	CodeSubmissionFailed apperrors.Code = "SUBMISSION_FAILED"
	CodeTxReverted       apperrors.Code = "TX_REVERTED"
	CodeReceiptTimeout   apperrors.Code = "RECEIPT_TIMEOUT"
	CodeFallbackFailed   apperrors.Code = "FALLBACK_FAILED"
)

func init() {
	apperrors.Register(CodeSubmissionFailed, apperrors.Attributes{
		Message:   "transaction submission failed",
		Severity:  apperrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	apperrors.Register(CodeTxReverted, apperrors.Attributes{
		Message:   "transaction reverted",
		Severity:  apperrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	apperrors.Register(CodeReceiptTimeout, apperrors.Attributes{
		Message:   "receipt not observed before timeout",
		Severity:  apperrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	apperrors.Register(CodeFallbackFailed, apperrors.Attributes{
		Message:   "fallback entry point failed",
		Severity:  apperrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// Config holds the submission policy.
type Config struct {
	MaxRetries      int
	RetryDelay      time.Duration
	Deadline        time.Duration
	ReceiptTimeout  time.Duration
	PollInterval    time.Duration
	Preflight       bool
	FallbackGasBump uint64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		RetryDelay:      3 * time.Second,
		Deadline:        600 * time.Second,
		ReceiptTimeout:  3 * time.Minute,
		PollInterval:    time.Second,
		Preflight:       true,
		FallbackGasBump: 100000,
	}
}

// Call is one state-changing call. Build is invoked on every attempt with a
// freshly computed deadline so retries never carry an expired one.
type Call struct {
	Label string
	Gas   web3.GasParams
	Build func(deadline *big.Int) (web3.CallSpec, error)
}

// Static wraps a call that takes no deadline.
func Static(spec web3.CallSpec, gas web3.GasParams) Call {
	return Call{
		Label: spec.Method,
		Gas:   gas,
		Build: func(*big.Int) (web3.CallSpec, error) { return spec, nil },
	}
}

// Receipt describes a confirmed call.
type Receipt struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Attempts    int
	Deadline    *big.Int
	Fallback    bool
}

// Observer receives one notification per attempt.
type Observer interface {
	ObserveSubmission(method, result string)
	ObserveFallback(method string)
}

// Option customises a Submitter.
type Option func(*Submitter)

// WithClock injects the clock used for deadlines, delays and receipt polling.
func WithClock(clk clock.Clock) Option {
	return func(s *Submitter) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithObserver registers an attempt observer.
func WithObserver(obs Observer) Option {
	return func(s *Submitter) {
		s.observer = obs
	}
}

// Submitter sends calls through a gateway, one outstanding transaction at a time.
type Submitter struct {
	gateway  web3.Gateway
	cfg      Config
	clock    clock.Clock
	observer Observer
	chainID  *big.Int
}

// New constructs a Submitter.
func New(gateway web3.Gateway, cfg Config, opts ...Option) *Submitter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	s := &Submitter{gateway: gateway, cfg: cfg, clock: clock.System()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the active submission policy.
func (s *Submitter) Config() Config {
	return s.cfg
}

// Submit runs call with the retry budget. An attempt that failed before
// broadcast, or whose transaction was mined and reverted, is rebuilt with a
// fresh nonce and deadline. A transaction whose receipt timed out still holds
// its nonce, so later attempts keep waiting on that same hash instead of
// signing another one.
func (s *Submitter) Submit(ctx context.Context, wallet *web3.Wallet, call Call) (Receipt, error) {
	var receipt, outstanding Receipt
	attempts := 0
	policy := retry.Policy{Attempts: s.cfg.MaxRetries, Delay: s.cfg.RetryDelay}
	err := retry.Do(ctx, s.clock, policy, func(ctx context.Context, attempt retry.Attempt) error {
		attempts = attempt.Number
		var (
			r   Receipt
			err error
		)
		if outstanding.Hash != (common.Hash{}) {
			r, err = s.await(ctx, wallet, call.Label, outstanding)
		} else {
			r, err = s.Send(ctx, wallet, call)
		}
		receipt, outstanding = r, Receipt{}
		if apperrors.HasCode(err, CodeReceiptTimeout) {
			outstanding = r
		}
		return err
	}, func(attempt retry.Attempt, err error) {
		logger.Named("submitter").Warn("attempt failed",
			"method", call.Label, "wallet", wallet.Address.Hex(),
			"attempt", attempt.Number, "of", attempt.Of, "error", err)
	})
	receipt.Attempts = attempts
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return receipt, err
		}
		return receipt, apperrors.Wrap(CodeSubmissionFailed, err,
			fmt.Sprintf("%s failed after %d attempt(s)", call.Label, attempts),
			apperrors.WithMetadata("method", call.Label),
			apperrors.WithMetadata("wallet", wallet.Address.Hex()))
	}
	return receipt, nil
}

// SubmitWithFallback runs primary with the full retry budget; only when it
// fails is fallback attempted, exactly once and with the gas limit raised by
// FallbackGasBump.
func (s *Submitter) SubmitWithFallback(ctx context.Context, wallet *web3.Wallet, primary, fallback Call) (Receipt, error) {
	receipt, err := s.Submit(ctx, wallet, primary)
	if err == nil {
		return receipt, nil
	}
	if ctx.Err() != nil {
		return receipt, err
	}
	if apperrors.HasCode(err, CodeReceiptTimeout) {
		// The primary transaction is still pending and owns the next nonce.
		logger.Named("submitter").Warn("primary transaction still pending, fallback skipped",
			"primary", primary.Label, "wallet", wallet.Address.Hex(), "hash", receipt.Hash.Hex())
		return receipt, err
	}
	primaryAttempts := receipt.Attempts

	logger.Named("submitter").Warn("primary entry point failed, trying fallback",
		"primary", primary.Label, "fallback", fallback.Label, "wallet", wallet.Address.Hex(), "error", err)
	logger.Tx().Info("fallback", "primary", primary.Label, "fallback", fallback.Label,
		"wallet", wallet.Address.Hex(), "reason", apperrors.Reason(err))
	if s.observer != nil {
		s.observer.ObserveFallback(fallback.Label)
	}

	fallback.Gas = fallback.Gas.WithExtraLimit(s.cfg.FallbackGasBump)
	receipt, fbErr := s.Send(ctx, wallet, fallback)
	receipt.Attempts = primaryAttempts + 1
	receipt.Fallback = true
	if fbErr != nil {
		return receipt, apperrors.Wrap(CodeFallbackFailed, fbErr,
			fmt.Sprintf("%s and %s both failed", primary.Label, fallback.Label),
			apperrors.WithMetadata("primary_error", apperrors.Reason(err)),
			apperrors.WithMetadata("wallet", wallet.Address.Hex()))
	}
	return receipt, nil
}

// Send performs exactly one attempt: build with a fresh deadline, simulate,
// sign, broadcast and wait for the receipt. A preflight revert counts as a
// failed attempt like a mined revert. On a receipt timeout the returned
// Receipt carries the hash of the still pending transaction.
func (s *Submitter) Send(ctx context.Context, wallet *web3.Wallet, call Call) (receipt Receipt, err error) {
	receipt, err = s.broadcast(ctx, wallet, call)
	if err != nil {
		s.observe(call.Label, err)
		return receipt, err
	}
	return s.await(ctx, wallet, call.Label, receipt)
}

func (s *Submitter) broadcast(ctx context.Context, wallet *web3.Wallet, call Call) (Receipt, error) {
	var receipt Receipt
	deadline := big.NewInt(s.clock.Now().Add(s.cfg.Deadline).Unix())
	spec, err := call.Build(deadline)
	if err != nil {
		return Receipt{}, err
	}
	receipt.Deadline = deadline

	if s.cfg.Preflight {
		msg := gethcore.CallMsg{
			From:     wallet.Address,
			To:       &spec.To,
			Gas:      call.Gas.Limit,
			GasPrice: call.Gas.Price,
			Value:    spec.ValueOrZero(),
			Data:     spec.Data,
		}
		if _, err := s.gateway.CallContract(ctx, msg); err != nil {
			return receipt, apperrors.Wrap(CodeTxReverted, err, "preflight reverted",
				apperrors.WithMetadata("method", call.Label))
		}
	}

	chainID, err := s.chain(ctx)
	if err != nil {
		return receipt, err
	}
	nonce, err := s.gateway.PendingNonceAt(ctx, wallet.Address)
	if err != nil {
		return receipt, apperrors.Wrap(CodeSubmissionFailed, err, "read nonce")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &spec.To,
		Value:    spec.ValueOrZero(),
		Gas:      call.Gas.Limit,
		GasPrice: call.Gas.Price,
		Data:     spec.Data,
	})
	signed, err := wallet.Sign(tx, chainID)
	if err != nil {
		return receipt, apperrors.Wrap(CodeSubmissionFailed, err, "sign transaction", apperrors.WithRetryable(false))
	}
	if err := s.gateway.SendTransaction(ctx, signed); err != nil {
		return receipt, apperrors.Wrap(CodeSubmissionFailed, err, "broadcast "+call.Label)
	}
	receipt.Hash = signed.Hash()
	logger.Tx().Info("broadcast", "method", call.Label, "wallet", wallet.Address.Hex(),
		"to", spec.To.Hex(), "hash", receipt.Hash.Hex(), "nonce", nonce,
		"gas_limit", call.Gas.Limit, "deadline", deadline.String())
	return receipt, nil
}

// await waits for the receipt of a broadcast transaction. Cancellation of
// ctx does not interrupt the wait; only ReceiptTimeout bounds it.
func (s *Submitter) await(ctx context.Context, wallet *web3.Wallet, label string, receipt Receipt) (_ Receipt, err error) {
	defer func() { s.observe(label, err) }()

	mined, err := s.waitReceipt(context.WithoutCancel(ctx), receipt.Hash)
	if err != nil {
		return receipt, err
	}
	receipt.GasUsed = mined.GasUsed
	if mined.BlockNumber != nil {
		receipt.BlockNumber = mined.BlockNumber.Uint64()
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		logger.Tx().Warn("reverted", "method", label, "wallet", wallet.Address.Hex(), "hash", receipt.Hash.Hex())
		return receipt, apperrors.New(CodeTxReverted, label+" reverted on chain",
			apperrors.WithMetadata("hash", receipt.Hash.Hex()))
	}
	logger.Tx().Info("confirmed", "method", label, "wallet", wallet.Address.Hex(),
		"hash", receipt.Hash.Hex(), "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
	return receipt, nil
}

func (s *Submitter) observe(label string, err error) {
	if s.observer != nil {
		s.observer.ObserveSubmission(label, resultOf(err))
	}
}

func (s *Submitter) chain(ctx context.Context) (*big.Int, error) {
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.gateway.ChainID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(CodeSubmissionFailed, err, "read chain id")
	}
	s.chainID = id
	return id, nil
}

func (s *Submitter) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := s.clock.Now().Add(s.cfg.ReceiptTimeout)
	for {
		receipt, err := s.gateway.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			logger.Named("submitter").Debug("receipt lookup failed", "hash", hash.Hex(), "error", err)
		}
		if !s.clock.Now().Before(deadline) {
			return nil, apperrors.New(CodeReceiptTimeout, "",
				apperrors.WithMetadata("hash", hash.Hex()))
		}
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func resultOf(err error) string {
	if err == nil {
		return "confirmed"
	}
	switch apperrors.CodeOf(err) {
	case CodeTxReverted:
		return "reverted"
	case CodeReceiptTimeout:
		return "timeout"
	default:
		return "failed"
	}
}
