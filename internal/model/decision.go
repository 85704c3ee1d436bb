package model

import "math/big"

// Action is what the agent intends to do with its position this tick.
type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Proposal is a suggested action from the external brain, before any
// guardrail has looked at it.
type Proposal struct {
	Action    Action `json:"action"`
	Rationale string `json:"rationale"`
}

// Decision is the guardrail engine's final word on a proposal. A
// blocked Buy/Sell is downgraded to Hold with BlockedReason set; a
// proposal that passed carries the bounded amount to execute.
type Decision struct {
	Action        Action
	ShouldExecute bool
	BuySpendWei   *big.Int // set only for an executable Buy
	SellAmountWei *big.Int // set only for an executable Sell
	BlockedReason string   // empty when nothing blocked the proposal
	Rationale     string   // carried through from the proposal
}

// WalletSnapshot holds the live balances the guardrail sizes against.
// Amounts are in wei (or the token's smallest unit).
type WalletSnapshot struct {
	EthBalanceWei   *big.Int
	TokenBalanceWei *big.Int
}
