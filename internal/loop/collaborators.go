package loop

import (
	"context"
	"math/big"
	"time"

	"InternAgent/internal/model"
)

// The tick loop treats everything that talks to the outside world as a
// collaborator behind an interface. The core only classifies their
// outcomes (success, failure, rate-limited) and records them.

// ProposalSource is the external brain that suggests an action each tick.
type ProposalSource interface {
	Propose(ctx context.Context, wallet model.WalletSnapshot, st *model.AgentState) (model.Proposal, error)
}

// HoldSource is the default brain: it always proposes Hold. It keeps
// the loop runnable before a real proposal source is wired in.
type HoldSource struct{}

func (HoldSource) Propose(context.Context, model.WalletSnapshot, *model.AgentState) (model.Proposal, error) {
	return model.Proposal{Action: model.ActionHold, Rationale: "no proposal source configured"}, nil
}

// TradeExecutor performs the swap the guardrail approved. Calldata
// construction and transaction submission live behind this boundary.
type TradeExecutor interface {
	ExecuteBuy(ctx context.Context, spendWei *big.Int) (txHash string, err error)
	ExecuteSell(ctx context.Context, amountWei *big.Int) (txHash string, err error)
}

// LiquidityManager runs one liquidity maintenance pass when the
// persisted cooldown allows it.
type LiquidityManager interface {
	Tick(ctx context.Context) (txHash string, err error)
}

// Post is one piece of content ready to publish. Fingerprint feeds the
// dedupe window for features that carry one.
type Post struct {
	Feature     string
	Content     string
	Fingerprint string
}

// PostPlanner produces the next post for a feature, or nil when there
// is nothing worth posting this tick.
type PostPlanner interface {
	Plan(ctx context.Context, feature string, st *model.AgentState) (*Post, error)
}

// Poster publishes a planned post to its platform.
type Poster interface {
	Publish(ctx context.Context, p Post) error
}

// Mention is a comment directed at the agent.
type Mention struct {
	ID   string
	Text string
}

// MentionSource polls the platform for new mentions to reply to.
type MentionSource interface {
	FetchMentions(ctx context.Context) ([]Mention, error)
	Reply(ctx context.Context, mentionID, text string) error
}

// rateLimitReporter is implemented by collaborator errors that carry a
// provider-supplied reset time.
type rateLimitReporter interface {
	RateLimitReset(now time.Time) time.Time
}
