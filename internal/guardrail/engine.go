// Package guardrail turns a proposed trade into an enforceable,
// bounded decision. Decide is pure: no I/O, deterministic for a given
// proposal and context, so the whole guard chain is unit-testable.
package guardrail

import (
	"fmt"
	"math/big"
	"time"

	"InternAgent/internal/model"
)

// bps denominator: 10000 basis points = 100%.
var bpsDenominator = big.NewInt(10000)

// Limits are the configured bounds the guard chain enforces.
type Limits struct {
	KillSwitch          bool
	TradingEnabled      bool
	DryRun              bool
	RouterConfigured    bool
	DailyTradeCap       int
	MinTradeInterval    time.Duration
	MaxSpendPerTradeWei *big.Int
	SellFractionBps     int64
	GasReserveWei       *big.Int
}

// Context is everything Decide needs: config limits, persisted
// counters, live balances, and the current time.
type Context struct {
	Limits Limits
	State  *model.AgentState
	Wallet model.WalletSnapshot
	Now    time.Time
}

// Decide evaluates the guard chain top to bottom, short-circuiting at
// the first failing guard. The order is significant: a blocked reason
// always names the first guard that failed, which keeps decisions
// debuggable. Hold proposals pass through untouched; Hold is never
// itself blocked.
func Decide(p model.Proposal, ctx Context) model.Decision {
	if p.Action == model.ActionHold {
		return model.Decision{Action: model.ActionHold, Rationale: p.Rationale}
	}

	if ctx.Limits.KillSwitch {
		return blocked(p, "kill switch enabled")
	}
	if !ctx.Limits.TradingEnabled {
		return blocked(p, "trading disabled")
	}
	if ctx.Limits.DryRun {
		return blocked(p, "dry run: trade side effects suppressed")
	}
	if !ctx.Limits.RouterConfigured {
		return blocked(p, "router not configured")
	}
	if ctx.State.Trades.Count >= ctx.Limits.DailyTradeCap {
		return blocked(p, fmt.Sprintf("daily cap reached (%d/%d)", ctx.State.Trades.Count, ctx.Limits.DailyTradeCap))
	}
	if ctx.State.LastExecutedTradeAtMs > 0 {
		elapsed := ctx.Now.Sub(time.UnixMilli(ctx.State.LastExecutedTradeAtMs))
		if elapsed < ctx.Limits.MinTradeInterval {
			return blocked(p, fmt.Sprintf("min interval not met (%s since last trade)", elapsed.Round(time.Second)))
		}
	}

	switch p.Action {
	case model.ActionBuy:
		spend := buySpend(ctx)
		if spend.Sign() <= 0 {
			return blocked(p, "insufficient ETH after gas reserve")
		}
		return model.Decision{
			Action:        model.ActionBuy,
			ShouldExecute: true,
			BuySpendWei:   spend,
			Rationale:     p.Rationale,
		}
	case model.ActionSell:
		amount := sellAmount(ctx)
		if amount.Sign() <= 0 {
			return blocked(p, "no INTERN to sell")
		}
		return model.Decision{
			Action:        model.ActionSell,
			ShouldExecute: true,
			SellAmountWei: amount,
			Rationale:     p.Rationale,
		}
	default:
		return blocked(p, fmt.Sprintf("unknown action %q", p.Action))
	}
}

// buySpend reserves the gas buffer from the live ETH balance and takes
// the smaller of the remainder and the per-trade cap. An unset cap
// sizes every buy to zero; there is no uncapped mode.
func buySpend(ctx Context) *big.Int {
	available := new(big.Int).Sub(orZero(ctx.Wallet.EthBalanceWei), orZero(ctx.Limits.GasReserveWei))
	if available.Sign() <= 0 {
		return available
	}
	max := orZero(ctx.Limits.MaxSpendPerTradeWei)
	if available.Cmp(max) > 0 {
		return new(big.Int).Set(max)
	}
	return available
}

// sellAmount is floor(balance * sellFractionBps / 10000). A tiny
// balance whose fraction rounds to zero yields zero, which the caller
// treats as nothing to sell.
func sellAmount(ctx Context) *big.Int {
	amount := new(big.Int).Mul(orZero(ctx.Wallet.TokenBalanceWei), big.NewInt(ctx.Limits.SellFractionBps))
	return amount.Quo(amount, bpsDenominator)
}

func blocked(p model.Proposal, reason string) model.Decision {
	return model.Decision{
		Action:        model.ActionHold,
		BlockedReason: reason,
		Rationale:     p.Rationale,
	}
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
