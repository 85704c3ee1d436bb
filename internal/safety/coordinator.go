// Package safety shrinks the window in which two overlapping process
// instances (outgoing and incoming during a redeploy) both execute the
// same side effect. Every mechanism here is a conservative heuristic
// over persisted timestamps and on-chain nonce observations; none of
// them is a lock, and together they are defense-in-depth rather than
// mutual exclusion.
package safety

import (
	"log"
	"time"

	"InternAgent/internal/model"
)

// Skip reasons returned by BeginTick.
const (
	SkipTickInFlight   = "tick_in_flight"
	SkipRecentComplete = "recent_tick_completed"
)

// Coordinator gates tick execution for one process instance.
type Coordinator struct {
	loopInterval time.Duration
	staleAfter   time.Duration
	firstTick    bool
}

// NewCoordinator builds a coordinator. loopInterval is the scheduling
// loop period; staleAfter bounds how long a tick-in-flight marker is
// trusted before it is treated as a leftover from a crashed instance.
// Both are required configuration, not inferred constants.
func NewCoordinator(loopInterval, staleAfter time.Duration) *Coordinator {
	return &Coordinator{
		loopInterval: loopInterval,
		staleAfter:   staleAfter,
		firstTick:    true,
	}
}

// BeginTick decides whether this tick may proceed. On success it
// returns the state with the tick-in-flight marker set; the marker is
// written before any side-effecting work. On a skip the state is
// returned unchanged together with the reason.
func (c *Coordinator) BeginTick(st *model.AgentState, now time.Time) (*model.AgentState, bool, string) {
	// Zero-downtime redeploy: a fresh instance booting moments after
	// the outgoing instance finished a cycle skips its very first tick.
	if c.firstTick {
		c.firstTick = false
		if st.LastTickCompletedAtMs != nil {
			since := now.Sub(time.UnixMilli(*st.LastTickCompletedAtMs))
			if since >= 0 && since < c.loopInterval {
				log.Printf("[INFO] last tick completed %s ago, skipping first tick", since.Round(time.Second))
				return st, false, SkipRecentComplete
			}
		}
	}

	if st.TickInFlightSinceMs != nil {
		age := now.Sub(time.UnixMilli(*st.TickInFlightSinceMs))
		if age >= 0 && age < c.staleAfter {
			log.Printf("[WARN] tick marker set %s ago, another instance may be mid-tick", age.Round(time.Second))
			return st, false, SkipTickInFlight
		}
		log.Printf("[WARN] stale tick marker (%s old), taking over", age.Round(time.Second))
	}

	out := st.Clone()
	ms := now.UnixMilli()
	out.TickInFlightSinceMs = &ms
	return out, true, ""
}

// CompleteTick clears the in-flight marker and records the completion
// time consulted by the next instance's first-tick guard.
func (c *Coordinator) CompleteTick(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	out.TickInFlightSinceMs = nil
	ms := now.UnixMilli()
	out.LastTickCompletedAtMs = &ms
	return out
}

// NonceAdvancedElsewhere compares the account's current transaction
// count against the last nonce this agent recorded. A mismatch means
// another submitter (possibly an overlapping replica) already advanced
// the nonce, and the pending submission must be aborted rather than
// risk a double-send. A never-recorded nonce never blocks.
func (c *Coordinator) NonceAdvancedElsewhere(st *model.AgentState, currentTxCount uint64) bool {
	if st.LastTxNonce == nil {
		return false
	}
	return currentTxCount != *st.LastTxNonce
}

// RecordNonce stores the transaction count observed after a submission.
func (c *Coordinator) RecordNonce(st *model.AgentState, txCount uint64) *model.AgentState {
	out := st.Clone()
	out.LastTxNonce = &txCount
	return out
}

// LiquidityCooldownElapsed reports whether at least one loop interval
// passed since the last liquidity tick. The check reads the persisted
// timestamp, so it holds even across an undetected replica overlap.
func (c *Coordinator) LiquidityCooldownElapsed(st *model.AgentState, now time.Time) bool {
	if st.LPLastTickMs == nil {
		return true
	}
	return now.Sub(time.UnixMilli(*st.LPLastTickMs)) >= c.loopInterval
}

// MarkLiquidityTick records the liquidity feature's last run.
func (c *Coordinator) MarkLiquidityTick(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	ms := now.UnixMilli()
	out.LPLastTickMs = &ms
	return out
}

// CooldownElapsed is the generic per-feature variant over the
// persisted lastActionAtMs map.
func (c *Coordinator) CooldownElapsed(st *model.AgentState, feature string, min time.Duration, now time.Time) bool {
	ms, ok := st.LastActionAtMs[feature]
	if !ok {
		return true
	}
	return now.Sub(time.UnixMilli(ms)) >= min
}
