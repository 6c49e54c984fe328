package operation

import (
	"context"
	"math/big"

	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/dex"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/quote"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// AddLiquidity pairs the configured native contribution with the matching
// amount of token.
func (o *Orchestrator) AddLiquidity(ctx context.Context, wallet *web3.Wallet, token dex.Token) Result {
	return o.execute(ctx, KindAdd, wallet, token.Address, func(r *run) error {
		meta := o.resolve(ctx, token)
		r.result.Symbol = meta.Symbol
		contribution := new(big.Int).Set(o.cfg.Contribution)

		r.enter(StageQuote)
		weth := o.contracts.WETH(ctx)
		q := o.quotes.Quote(ctx, contribution, weth, token.Address)
		amountToken := q.AmountOut
		r.result.AmountIn = amountToken
		r.log.Info("liquidity quoted",
			"symbol", meta.Symbol,
			"native", dex.FormatUnits(contribution, dex.DefaultDecimals),
			"token", dex.FormatUnits(amountToken, meta.Decimals),
			"fallback", q.Fallback)

		r.enter(StageBalanceCheck)
		balance, err := o.contracts.BalanceOf(ctx, token.Address, wallet.Address)
		if err != nil {
			return err
		}
		if balance.Cmp(amountToken) < 0 {
			return insufficient(meta.Symbol, balance, amountToken, meta.Decimals)
		}

		r.enter(StageApprove)
		if _, err := o.approvals.Ensure(ctx, approval.Request{
			Wallet:   wallet,
			Token:    token.Address,
			Spender:  o.contracts.Router(),
			Required: amountToken,
			Mode:     approval.Exact,
			Gas:      o.cfg.Gas.Approve,
		}); err != nil {
			return err
		}

		r.enter(StageExecute)
		minToken := quote.MinOut(amountToken, o.cfg.LiquiditySlippage)
		minNative := quote.MinOut(contribution, o.cfg.LiquiditySlippage)
		r.result.MinOut = minToken
		receipt, err := o.submitter.Submit(ctx, wallet, submitter.Call{
			Label: dex.MethodAddLiquidityETH,
			Gas:   o.cfg.Gas.Liquidity,
			Build: func(deadline *big.Int) (web3.CallSpec, error) {
				return o.contracts.AddLiquidityETHCall(token.Address, amountToken, minToken, minNative,
					wallet.Address, deadline, contribution)
			},
		})
		r.result.Attempts = receipt.Attempts
		if err != nil {
			return err
		}
		r.confirmed(receipt)
		return nil
	})
}

// WithdrawLiquidity redeems the configured share of the wallet's position in
// the token/base pool. The standard removal runs with the full retry budget;
// the fee-tolerant entry point is tried once when it fails.
func (o *Orchestrator) WithdrawLiquidity(ctx context.Context, wallet *web3.Wallet, token dex.Token) Result {
	return o.execute(ctx, KindWithdraw, wallet, token.Address, func(r *run) error {
		meta := o.resolve(ctx, token)
		r.result.Symbol = meta.Symbol

		weth := o.contracts.WETH(ctx)
		factory, err := o.contracts.Factory(ctx)
		if err != nil {
			return err
		}
		pair, err := o.contracts.GetPair(ctx, factory, token.Address, weth)
		if err != nil {
			return err
		}
		if pair == (common.Address{}) {
			return apperrors.New(CodePairNotFound, "",
				apperrors.WithMetadata("token", token.Address.Hex()),
				apperrors.WithMetadata("base", weth.Hex()))
		}

		r.enter(StageQuote)
		pool, err := o.contracts.PairState(ctx, pair)
		if err != nil {
			return err
		}
		tokenReserve, baseReserve, err := pool.Split(weth)
		if err != nil {
			return err
		}

		r.enter(StageBalanceCheck)
		held, err := o.contracts.BalanceOf(ctx, pair, wallet.Address)
		if err != nil {
			return err
		}
		shares := dex.Percent(held, o.cfg.WithdrawPercent)
		if held.Sign() == 0 || shares.Sign() == 0 {
			return apperrors.New(CodeNoPosition, "",
				apperrors.WithMetadata("pair", pair.Hex()),
				apperrors.WithMetadata("held", held.String()))
		}
		expectedToken := dex.ProRata(shares, tokenReserve, pool.TotalSupply)
		expectedBase := dex.ProRata(shares, baseReserve, pool.TotalSupply)
		minToken := quote.MinOut(expectedToken, o.cfg.LiquiditySlippage)
		minBase := quote.MinOut(expectedBase, o.cfg.LiquiditySlippage)
		r.result.AmountIn = shares
		r.result.MinOut = minToken
		r.log.Info("withdrawal sized",
			"symbol", meta.Symbol,
			"shares", dex.FormatUnits(shares, dex.DefaultDecimals),
			"expected_token", dex.FormatUnits(expectedToken, meta.Decimals),
			"expected_native", dex.FormatUnits(expectedBase, dex.DefaultDecimals))

		r.enter(StageApprove)
		if _, err := o.approvals.Ensure(ctx, approval.Request{
			Wallet:   wallet,
			Token:    pair,
			Spender:  o.contracts.Router(),
			Required: shares,
			Mode:     approval.Exact,
			Gas:      o.cfg.Gas.LPApprove,
		}); err != nil {
			return err
		}

		r.enter(StageExecute)
		primary := submitter.Call{
			Label: dex.MethodRemoveLiquidityETH,
			Gas:   o.cfg.Gas.Withdraw,
			Build: func(deadline *big.Int) (web3.CallSpec, error) {
				return o.contracts.RemoveLiquidityETHCall(token.Address, shares, minToken, minBase, wallet.Address, deadline)
			},
		}
		fallback := submitter.Call{
			Label: dex.MethodRemoveLiquidityFee,
			Gas:   o.cfg.Gas.Withdraw,
			Build: func(deadline *big.Int) (web3.CallSpec, error) {
				return o.contracts.RemoveLiquidityETHFeeCall(token.Address, shares, minToken, minBase, wallet.Address, deadline)
			},
		}
		receipt, err := o.submitter.SubmitWithFallback(ctx, wallet, primary, fallback)
		r.result.Attempts = receipt.Attempts
		r.result.Fallback = receipt.Fallback
		if err != nil {
			return err
		}
		r.confirmed(receipt)
		return nil
	})
}
