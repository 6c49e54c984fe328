package operation

import (
	"context"
	"math/big"

	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/quote"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRequest describes one exact-input swap between two tokens.
type SwapRequest struct {
	From     dex.Token
	To       dex.Token
	AmountIn *big.Int
	// Slippage overrides the configured swap slippage when positive.
	Slippage int
	Approval approval.Mode
}

// Swap sells req.AmountIn of req.From for req.To. A zero amount is skipped;
// an amount above the wallet's balance fails before any transaction.
func (o *Orchestrator) Swap(ctx context.Context, wallet *web3.Wallet, req SwapRequest) Result {
	return o.execute(ctx, KindSwap, wallet, req.From.Address, func(r *run) error {
		from := o.resolve(ctx, req.From)
		to := o.resolve(ctx, req.To)
		r.result.Symbol = from.Symbol

		r.enter(StageBalanceCheck)
		if req.AmountIn == nil || req.AmountIn.Sign() == 0 {
			r.skip("zero swap amount")
			return nil
		}
		balance, err := o.contracts.BalanceOf(ctx, from.Address, wallet.Address)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			r.skip("zero " + from.Symbol + " balance")
			return nil
		}
		if balance.Cmp(req.AmountIn) < 0 {
			return insufficient(from.Symbol, balance, req.AmountIn, from.Decimals)
		}
		return o.swap(ctx, r, wallet, from, to, new(big.Int).Set(req.AmountIn), req.Slippage, req.Approval)
	})
}

// SwapToBase sells the configured fraction of the wallet's token balance for
// the base asset. A zero balance is skipped, not failed.
func (o *Orchestrator) SwapToBase(ctx context.Context, wallet *web3.Wallet, token dex.Token) Result {
	return o.execute(ctx, KindSwap, wallet, token.Address, func(r *run) error {
		from := o.resolve(ctx, token)
		r.result.Symbol = from.Symbol

		r.enter(StageBalanceCheck)
		balance, err := o.contracts.BalanceOf(ctx, from.Address, wallet.Address)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			r.skip("zero " + from.Symbol + " balance")
			return nil
		}
		amountIn := dex.Percent(balance, o.cfg.SwapFraction)
		if amountIn.Sign() == 0 {
			r.skip("balance too small to split")
			return nil
		}
		base := dex.Token{Address: o.contracts.WETH(ctx), Symbol: "WETH", Decimals: dex.DefaultDecimals}
		return o.swap(ctx, r, wallet, from, base, amountIn, 0, approval.Unlimited)
	})
}

func (o *Orchestrator) swap(ctx context.Context, r *run, wallet *web3.Wallet, from, to dex.Token, amountIn *big.Int, slippage int, mode approval.Mode) error {
	if slippage <= 0 {
		slippage = o.cfg.SwapSlippage
	}
	r.result.AmountIn = amountIn

	r.enter(StageApprove)
	if _, err := o.approvals.Ensure(ctx, approval.Request{
		Wallet:   wallet,
		Token:    from.Address,
		Spender:  o.contracts.Router(),
		Required: amountIn,
		Mode:     mode,
		Gas:      o.cfg.Gas.Approve,
	}); err != nil {
		return err
	}

	r.enter(StageQuote)
	expected, err := o.quotes.Exact(ctx, amountIn, from.Address, to.Address)
	if err != nil {
		return err
	}
	minOut := quote.MinOut(expected, slippage)
	r.result.MinOut = minOut
	r.log.Info("swap quoted",
		"from", from.Symbol,
		"to", to.Symbol,
		"amount_in", dex.FormatUnits(amountIn, from.Decimals),
		"expected", dex.FormatUnits(expected, to.Decimals),
		"min_out", dex.FormatUnits(minOut, to.Decimals))

	r.enter(StageExecute)
	path := []common.Address{from.Address, to.Address}
	receipt, err := o.submitter.Submit(ctx, wallet, submitter.Call{
		Label: dex.MethodSwapExactTokens,
		Gas:   o.cfg.Gas.Swap,
		Build: func(deadline *big.Int) (web3.CallSpec, error) {
			return o.contracts.SwapExactTokensCall(amountIn, minOut, path, wallet.Address, deadline)
		},
	})
	r.result.Attempts = receipt.Attempts
	if err != nil {
		return err
	}
	r.confirmed(receipt)
	return nil
}

// Unwrap converts the wallet's whole wrapped-native balance back to native.
func (o *Orchestrator) Unwrap(ctx context.Context, wallet *web3.Wallet) Result {
	weth := o.contracts.WETH(ctx)
	return o.execute(ctx, KindUnwrap, wallet, weth, func(r *run) error {
		r.result.Symbol = "WETH"

		r.enter(StageBalanceCheck)
		balance, err := o.contracts.BalanceOf(ctx, weth, wallet.Address)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			r.skip("zero WETH balance")
			return nil
		}
		r.result.AmountIn = balance
		spec, err := o.contracts.WithdrawWETHCall(weth, balance)
		if err != nil {
			return err
		}

		r.enter(StageExecute)
		receipt, err := o.submitter.Submit(ctx, wallet, submitter.Static(spec, o.cfg.Gas.Unwrap))
		r.result.Attempts = receipt.Attempts
		if err != nil {
			return err
		}
		r.confirmed(receipt)
		return nil
	})
}
