package state

import (
	"time"

	"InternAgent/internal/model"
)

// State operations follow an immutable-update discipline: each one
// clones the document, modifies the clone, and returns it. The caller
// threads the returned value forward and saves before trusting the
// next read.

// RecordTrade bumps today's trade counter, rolling the day key first
// if the stored key is stale. No other field is touched.
func RecordTrade(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	bump(&out.Trades, now)
	return out
}

// RecordNewsPost bumps today's news post counter.
func RecordNewsPost(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	bump(&out.NewsPosts, now)
	return out
}

// RecordDiscussionPost bumps today's discussion post counter.
func RecordDiscussionPost(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	bump(&out.DiscussionPosts, now)
	return out
}

// RecordCampaignPost bumps today's campaign post counter.
func RecordCampaignPost(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	bump(&out.CampaignPosts, now)
	return out
}

func bump(c *model.DayCounter, now time.Time) {
	day := model.DayKey(now)
	if c.DayKeyUTC != day {
		c.DayKeyUTC = day
		c.Count = 0
	}
	c.Count++
}

// MarkTradeExecuted records the wall-clock time of a completed trade
// for the min-interval guardrail.
func MarkTradeExecuted(st *model.AgentState, now time.Time) *model.AgentState {
	out := st.Clone()
	out.LastExecutedTradeAtMs = now.UnixMilli()
	return out
}

// RememberNewsFingerprint appends a fingerprint to the bounded dedupe
// list, evicting the oldest entries once the list exceeds max.
func RememberNewsFingerprint(st *model.AgentState, fingerprint string, max int) *model.AgentState {
	out := st.Clone()
	out.SeenNewsFingerprints = appendBounded(out.SeenNewsFingerprints, fingerprint, max)
	return out
}

// HasSeenNews reports whether a fingerprint is still in the dedupe window.
func HasSeenNews(st *model.AgentState, fingerprint string) bool {
	for _, fp := range st.SeenNewsFingerprints {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// RememberRepliedComment appends a comment id to the bounded dedupe list.
func RememberRepliedComment(st *model.AgentState, id string, max int) *model.AgentState {
	out := st.Clone()
	out.RepliedCommentIDs = appendBounded(out.RepliedCommentIDs, id, max)
	return out
}

// HasRepliedTo reports whether a comment id is still in the dedupe window.
func HasRepliedTo(st *model.AgentState, id string) bool {
	for _, c := range st.RepliedCommentIDs {
		if c == id {
			return true
		}
	}
	return false
}

// SetLastReceiptHash records the fingerprint of the last posted receipt.
func SetLastReceiptHash(st *model.AgentState, hash string) *model.AgentState {
	out := st.Clone()
	out.LastReceiptHash = hash
	return out
}

// appendBounded keeps insertion order and evicts from the front, so
// the list always holds the max most recently inserted entries.
func appendBounded(list []string, v string, max int) []string {
	list = append(list, v)
	if max > 0 && len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

// MarkAction records when a named feature last ran, for the persisted
// per-feature cooldowns.
func MarkAction(st *model.AgentState, feature string, now time.Time) *model.AgentState {
	out := st.Clone()
	out.LastActionAtMs[feature] = now.UnixMilli()
	return out
}

// LastActionAt returns the persisted last-run time for a feature, or
// the zero time if it never ran.
func LastActionAt(st *model.AgentState, feature string) time.Time {
	ms, ok := st.LastActionAtMs[feature]
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// AdvanceCampaignHook returns the hook index to use this round and the
// state with the rotation pointer moved forward. The counter is
// persisted so rotation survives restarts.
func AdvanceCampaignHook(st *model.AgentState, hookCount int) (*model.AgentState, int) {
	if hookCount <= 0 {
		return st, 0
	}
	out := st.Clone()
	idx := out.CampaignHookIndex % hookCount
	out.CampaignHookIndex = (idx + 1) % hookCount
	return out, idx
}

// SetWalletSnapshot stores the observed balances for change detection.
// The core never interprets these beyond equality checks.
func SetWalletSnapshot(st *model.AgentState, ethWei, tokenWei string) *model.AgentState {
	out := st.Clone()
	out.LastEthBalanceWei = ethWei
	out.LastTokenBalanceWei = tokenWei
	return out
}
