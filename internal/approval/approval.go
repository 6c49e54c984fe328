// Package approval makes sure a spender holds enough allowance before a
// transfer-dependent call is submitted.
package approval

import (
	"context"
	"math/big"

	"AutoLP-Chain/internal/dex"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// CodeApprovalFailed is returned when the approval could not be confirmed
// within the retry budget.
const CodeApprovalFailed apperrors.Code = "APPROVAL_FAILED"

func init() {
	apperrors.Register(CodeApprovalFailed, apperrors.Attributes{
		Message:   "approval failed",
		Severity:  apperrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// Mode selects how much allowance is granted when the current one is short.
type Mode int

const (
	// Exact approves exactly the required amount.
	Exact Mode = iota
	// Unlimited approves MaxUint256 so repeated swaps of one token need a
	// single approval.
	Unlimited
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Unlimited {
		return "unlimited"
	}
	return "exact"
}

// Request describes one allowance check.
type Request struct {
	Wallet   *web3.Wallet
	Token    common.Address
	Spender  common.Address
	Required *big.Int
	Mode     Mode
	Gas      web3.GasParams
}

// Outcome reports what Ensure did.
type Outcome struct {
	Approved bool
	Hash     common.Hash
	Amount   *big.Int
	Attempts int
}

// Observer is notified of every confirmed approval.
type Observer interface {
	ObserveApproval(mode string)
}

// Manager reads allowances fresh and approves through the submitter.
type Manager struct {
	contracts *dex.Contracts
	submitter *submitter.Submitter
	observer  Observer
}

// NewManager constructs a Manager. observer may be nil.
func NewManager(contracts *dex.Contracts, sub *submitter.Submitter, observer Observer) *Manager {
	return &Manager{contracts: contracts, submitter: sub, observer: observer}
}

// Ensure approves req.Spender when the current allowance is below
// req.Required. It returns only after the approval is confirmed, so the
// dependent call is never in flight together with it. A sufficient
// allowance makes it a no-op.
func (m *Manager) Ensure(ctx context.Context, req Request) (Outcome, error) {
	current, err := m.contracts.Allowance(ctx, req.Token, req.Wallet.Address, req.Spender)
	if err != nil {
		return Outcome{}, err
	}
	if current.Cmp(req.Required) >= 0 {
		return Outcome{}, nil
	}

	amount := new(big.Int).Set(req.Required)
	if req.Mode == Unlimited {
		amount = new(big.Int).Set(math.MaxBig256)
	}
	spec, err := m.contracts.ApproveCall(req.Token, req.Spender, amount)
	if err != nil {
		return Outcome{}, err
	}

	log := logger.Named("approval")
	log.Info("approving", "wallet", req.Wallet.Address.Hex(), "token", req.Token.Hex(),
		"spender", req.Spender.Hex(), "mode", req.Mode.String(), "current", current.String(), "required", req.Required.String())

	receipt, err := m.submitter.Submit(ctx, req.Wallet, submitter.Static(spec, req.Gas))
	if err != nil {
		return Outcome{Attempts: receipt.Attempts}, apperrors.Wrap(CodeApprovalFailed, err, "",
			apperrors.WithMetadata("token", req.Token.Hex()),
			apperrors.WithMetadata("spender", req.Spender.Hex()))
	}
	logger.Tx().Info("approved", "wallet", req.Wallet.Address.Hex(), "token", req.Token.Hex(),
		"spender", req.Spender.Hex(), "mode", req.Mode.String(), "hash", receipt.Hash.Hex())
	if m.observer != nil {
		m.observer.ObserveApproval(req.Mode.String())
	}
	return Outcome{Approved: true, Hash: receipt.Hash, Amount: amount, Attempts: receipt.Attempts}, nil
}
