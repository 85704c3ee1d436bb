package model

import "time"

// SchemaVersion is the current version of the persisted state document.
// History:
//
//	v1: trades counter + lastExecutedTradeAtMs (original unversioned doc)
//	v2: breakers map + news post counter
//	v3: seenNewsFingerprints + lastReceiptHash
//	v4: discussion/campaign counters + campaignHookIndex + repliedCommentIds
//	v5: redeploy-safety fields (tick marker, lastTxNonce, cooldowns, lpLastTickMs)
//	v6: observed wallet snapshot fields
const SchemaVersion = 6

// DayCounter is a UTC-day-keyed activity counter. Count resets to zero
// exactly once when DayKeyUTC no longer matches the current UTC day.
type DayCounter struct {
	DayKeyUTC string `json:"dayKeyUtc"`
	Count     int    `json:"countToday"`
}

// BreakerState holds the persisted half of a circuit breaker. A non-nil
// DisabledUntilMs in the future means the dependency is open and calls
// must be skipped without attempting I/O.
type BreakerState struct {
	FailureCount    int    `json:"failureCount"`
	DisabledUntilMs *int64 `json:"disabledUntilMs"`
}

// AgentState is the single persisted document for the agent. It is
// treated as an immutable value: state operations clone it, modify the
// clone, and return the new version.
type AgentState struct {
	SchemaVersion int `json:"schemaVersion"`

	// Day-keyed activity counters, one per independently capped activity.
	Trades          DayCounter `json:"trades"`
	NewsPosts       DayCounter `json:"newsPosts"`
	DiscussionPosts DayCounter `json:"discussionPosts"`
	CampaignPosts   DayCounter `json:"campaignPosts"`

	// One breaker per external dependency, keyed by dependency name.
	Breakers map[string]BreakerState `json:"breakers"`

	// Bounded dedupe lists, oldest entry first.
	SeenNewsFingerprints []string `json:"seenNewsFingerprints"`
	RepliedCommentIDs    []string `json:"repliedCommentIds"`
	LastReceiptHash      string   `json:"lastReceiptHash"`

	// Redeploy-safety fields.
	TickInFlightSinceMs   *int64           `json:"tickInFlightSinceMs"`
	LastTickCompletedAtMs *int64           `json:"lastTickCompletedAtMs"`
	LastTxNonce           *uint64          `json:"lastTxNonce"`
	LPLastTickMs          *int64           `json:"lpLastTickMs"`
	LastActionAtMs        map[string]int64 `json:"lastActionAtMs"`

	// Trade/position fields.
	LastExecutedTradeAtMs int64 `json:"lastExecutedTradeAtMs"`
	CampaignHookIndex     int   `json:"campaignHookIndex"`

	// Observed wallet snapshot, stored only for change detection.
	LastEthBalanceWei   string `json:"lastEthBalanceWei"`
	LastTokenBalanceWei string `json:"lastTokenBalanceWei"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// DayKey returns the UTC calendar day key (YYYY-MM-DD) for t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewDefaultState builds the documented default document for a fresh
// install, with all counters keyed to the current UTC day.
func NewDefaultState(now time.Time) *AgentState {
	day := DayKey(now)
	return &AgentState{
		SchemaVersion:        SchemaVersion,
		Trades:               DayCounter{DayKeyUTC: day},
		NewsPosts:            DayCounter{DayKeyUTC: day},
		DiscussionPosts:      DayCounter{DayKeyUTC: day},
		CampaignPosts:        DayCounter{DayKeyUTC: day},
		Breakers:             map[string]BreakerState{},
		SeenNewsFingerprints: []string{},
		RepliedCommentIDs:    []string{},
		LastActionAtMs:       map[string]int64{},
		UpdatedAt:            now,
	}
}

// Clone returns a deep copy of the state so that callers can apply the
// immutable-update discipline without sharing maps or slices.
func (s *AgentState) Clone() *AgentState {
	c := *s
	c.Breakers = make(map[string]BreakerState, len(s.Breakers))
	for k, v := range s.Breakers {
		if v.DisabledUntilMs != nil {
			until := *v.DisabledUntilMs
			v.DisabledUntilMs = &until
		}
		c.Breakers[k] = v
	}
	c.SeenNewsFingerprints = append([]string{}, s.SeenNewsFingerprints...)
	c.RepliedCommentIDs = append([]string{}, s.RepliedCommentIDs...)
	c.LastActionAtMs = make(map[string]int64, len(s.LastActionAtMs))
	for k, v := range s.LastActionAtMs {
		c.LastActionAtMs[k] = v
	}
	c.TickInFlightSinceMs = cloneInt64(s.TickInFlightSinceMs)
	c.LastTickCompletedAtMs = cloneInt64(s.LastTickCompletedAtMs)
	c.LPLastTickMs = cloneInt64(s.LPLastTickMs)
	if s.LastTxNonce != nil {
		n := *s.LastTxNonce
		c.LastTxNonce = &n
	}
	return &c
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
