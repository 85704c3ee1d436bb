package notifier

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"InternAgent/internal/model"
)

// FormatDecisionReport formats a tick's guardrail outcome into a Telegram message.
func FormatDecisionReport(d model.Decision, wallet model.WalletSnapshot, st *model.AgentState) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🤖 <b>InternAgent tick</b> | %s\n\n", time.Now().UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("ETH: %s | INTERN: %s\n\n", fmtWei(wallet.EthBalanceWei), fmtWei(wallet.TokenBalanceWei)))

	switch {
	case d.BlockedReason != "":
		b.WriteString(fmt.Sprintf("⛔ %s → HOLD\n", d.BlockedReason))
	case d.Action == model.ActionBuy:
		b.WriteString(fmt.Sprintf("💰 BUY %s ETH\n", fmtWei(d.BuySpendWei)))
	case d.Action == model.ActionSell:
		b.WriteString(fmt.Sprintf("💸 SELL %s INTERN\n", fmtWei(d.SellAmountWei)))
	default:
		b.WriteString("😴 HOLD\n")
	}
	if d.Rationale != "" {
		b.WriteString(fmt.Sprintf("   rationale: %s\n", d.Rationale))
	}
	b.WriteString(fmt.Sprintf("\ntrades today: %d\n", st.Trades.Count))
	return b.String()
}

// FormatAgentStatus formats the read-only state summary for the /status command.
func FormatAgentStatus(st *model.AgentState, now time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Agent status</b>\n\n")
	b.WriteString(fmt.Sprintf("day: %s\n", model.DayKey(now)))
	b.WriteString(fmt.Sprintf("trades today: %d\n", st.Trades.Count))
	b.WriteString(fmt.Sprintf("news posts today: %d\n", st.NewsPosts.Count))
	b.WriteString(fmt.Sprintf("discussion posts today: %d\n", st.DiscussionPosts.Count))
	b.WriteString(fmt.Sprintf("campaign posts today: %d\n", st.CampaignPosts.Count))
	if st.LastExecutedTradeAtMs > 0 {
		b.WriteString(fmt.Sprintf("last trade: %s ago\n", now.Sub(time.UnixMilli(st.LastExecutedTradeAtMs)).Round(time.Minute)))
	}

	open := []string{}
	for key, bs := range st.Breakers {
		if bs.DisabledUntilMs != nil && *bs.DisabledUntilMs > now.UnixMilli() {
			until := time.UnixMilli(*bs.DisabledUntilMs)
			open = append(open, fmt.Sprintf("  %s (until %s)", key, until.UTC().Format("15:04")))
		}
	}
	if len(open) > 0 {
		b.WriteString("\n⚡ open breakers:\n")
		b.WriteString(strings.Join(open, "\n"))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\nupdated: %s\n", st.UpdatedAt.UTC().Format("2006-01-02 15:04")))
	return b.String()
}

// FormatBreakerTrip formats a breaker trip notification.
func FormatBreakerTrip(dependency string, failureCount int, cooldown time.Duration) string {
	return fmt.Sprintf("⚡ <b>Breaker tripped</b>: %s\n\n%d consecutive failures, disabled for %s",
		dependency, failureCount, cooldown.Round(time.Second))
}

// fmtWei renders a wei amount as a short decimal in whole-token units.
func fmtWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 4)
}
