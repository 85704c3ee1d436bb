// Package breaker isolates the agent from flaky external dependencies.
// Breaker state lives inside the persisted agent state so an open
// breaker survives restarts and redeploys.
package breaker

import (
	"time"

	"InternAgent/internal/model"
)

// Dependency keys. Each key owns an independent breaker instance;
// counters are never shared.
const (
	KeyChainPost  = "chain_post"
	KeyTelegram   = "telegram"
	KeyNews       = "news"
	KeyDiscussion = "discussion"
	KeyCampaign   = "campaign"
	KeyMentions   = "mentions"
)

// SkipReason is what callers report when an open breaker suppressed a call.
const SkipReason = "circuit_open"

// Breaker guards one external dependency. It is a stateless view over
// the breaker fields stored in the agent state document.
type Breaker struct {
	Key       string
	Threshold int
	Cooldown  time.Duration
}

// New builds a breaker for a dependency key with the configured trip
// threshold and cooldown window.
func New(key string, threshold int, cooldown time.Duration) Breaker {
	return Breaker{Key: key, Threshold: threshold, Cooldown: cooldown}
}

// IsOpen reports whether the dependency is currently disabled. When
// open, the caller must skip the underlying operation entirely.
func (b Breaker) IsOpen(st *model.AgentState, now time.Time) bool {
	bs, ok := st.Breakers[b.Key]
	if !ok || bs.DisabledUntilMs == nil {
		return false
	}
	return *bs.DisabledUntilMs > now.UnixMilli()
}

// RecordFailure counts one generic failure; reaching the threshold
// trips the breaker for the cooldown window.
func (b Breaker) RecordFailure(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	bs := out.Breakers[b.Key]
	bs.FailureCount++
	if bs.FailureCount >= b.Threshold {
		until := now.Add(b.Cooldown).UnixMilli()
		bs.DisabledUntilMs = &until
	}
	out.Breakers[b.Key] = bs
	return out
}

// RecordRateLimited handles a throttled-but-healthy dependency: the
// failure count resets (a rate limit is not evidence of breakage) and
// the breaker opens until the provider-supplied reset time, or for the
// default cooldown when none was given.
func (b Breaker) RecordRateLimited(st *model.AgentState, now time.Time, resetAt *time.Time) *model.AgentState {
	out := st.Clone()
	bs := out.Breakers[b.Key]
	bs.FailureCount = 0
	until := now.Add(b.Cooldown).UnixMilli()
	if resetAt != nil && resetAt.After(now) {
		until = resetAt.UnixMilli()
	}
	bs.DisabledUntilMs = &until
	out.Breakers[b.Key] = bs
	return out
}

// RecordSuccess closes the breaker and clears the failure count.
func (b Breaker) RecordSuccess(st *model.AgentState) *model.AgentState {
	out := st.Clone()
	out.Breakers[b.Key] = model.BreakerState{}
	return out
}

// State returns the persisted fields for this breaker, zero-valued if
// the dependency has never been recorded.
func (b Breaker) State(st *model.AgentState) model.BreakerState {
	return st.Breakers[b.Key]
}
