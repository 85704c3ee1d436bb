package state

import (
	"fmt"
	"testing"
	"time"

	"InternAgent/internal/model"
)

func TestRecordTrade_BumpsOnlyTradeCounter(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	st := model.NewDefaultState(now)
	st.NewsPosts.Count = 2
	st.LastExecutedTradeAtMs = 777

	out := RecordTrade(st, now)

	if out.Trades.Count != 1 {
		t.Errorf("expected trade count 1, got %d", out.Trades.Count)
	}
	if out.NewsPosts.Count != 2 {
		t.Errorf("news counter must not change, got %d", out.NewsPosts.Count)
	}
	if out.LastExecutedTradeAtMs != 777 {
		t.Errorf("RecordTrade must not touch the trade timestamp, got %d", out.LastExecutedTradeAtMs)
	}
	if st.Trades.Count != 0 {
		t.Errorf("input state mutated: trades=%d", st.Trades.Count)
	}
}

func TestRecordTrade_RollsStaleDayKey(t *testing.T) {
	yesterday := time.Date(2026, 3, 13, 23, 59, 0, 0, time.UTC)
	today := time.Date(2026, 3, 14, 0, 1, 0, 0, time.UTC)

	st := model.NewDefaultState(yesterday)
	st.Trades.Count = 5

	out := RecordTrade(st, today)
	if out.Trades.Count != 1 {
		t.Errorf("expected counter to reset and bump to 1 across day boundary, got %d", out.Trades.Count)
	}
	if out.Trades.DayKeyUTC != "2026-03-14" {
		t.Errorf("expected new day key, got %q", out.Trades.DayKeyUTC)
	}
}

func TestMarkTradeExecuted(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	st := model.NewDefaultState(now)

	out := MarkTradeExecuted(st, now)
	if out.LastExecutedTradeAtMs != now.UnixMilli() {
		t.Errorf("expected %d, got %d", now.UnixMilli(), out.LastExecutedTradeAtMs)
	}
	if out.Trades.Count != 0 {
		t.Errorf("MarkTradeExecuted must not bump the counter, got %d", out.Trades.Count)
	}
}

func TestRememberNewsFingerprint_BoundedEviction(t *testing.T) {
	now := time.Now()
	st := model.NewDefaultState(now)
	const max = 5

	for i := 0; i < max+3; i++ {
		st = RememberNewsFingerprint(st, fmt.Sprintf("fp-%d", i), max)
	}

	if len(st.SeenNewsFingerprints) != max {
		t.Fatalf("expected list capped at %d, got %d", max, len(st.SeenNewsFingerprints))
	}
	// Oldest entries evicted from the front.
	if HasSeenNews(st, "fp-0") || HasSeenNews(st, "fp-2") {
		t.Error("oldest fingerprints should have been evicted")
	}
	if !HasSeenNews(st, "fp-7") {
		t.Error("newest fingerprint should be present")
	}
	if st.SeenNewsFingerprints[0] != "fp-3" {
		t.Errorf("expected fp-3 at front, got %q", st.SeenNewsFingerprints[0])
	}
}

func TestRememberRepliedComment(t *testing.T) {
	st := model.NewDefaultState(time.Now())
	st = RememberRepliedComment(st, "c-1", 200)

	if !HasRepliedTo(st, "c-1") {
		t.Error("expected c-1 to be remembered")
	}
	if HasRepliedTo(st, "c-2") {
		t.Error("c-2 was never recorded")
	}
}

func TestMarkAction_And_LastActionAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	st := model.NewDefaultState(now)

	if got := LastActionAt(st, "news"); !got.IsZero() {
		t.Errorf("expected zero time for never-run feature, got %v", got)
	}

	st = MarkAction(st, "news", now)
	if got := LastActionAt(st, "news"); !got.Equal(time.UnixMilli(now.UnixMilli())) {
		t.Errorf("expected %v, got %v", now, got)
	}
}

func TestAdvanceCampaignHook_RotatesAndPersists(t *testing.T) {
	st := model.NewDefaultState(time.Now())
	const hooks = 3

	seen := make([]int, 0, hooks*2)
	for i := 0; i < hooks*2; i++ {
		var idx int
		st, idx = AdvanceCampaignHook(st, hooks)
		seen = append(seen, idx)
	}

	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("rotation order wrong at step %d: got %v, want %v", i, seen, want)
		}
	}
}

func TestAdvanceCampaignHook_ZeroHooks(t *testing.T) {
	st := model.NewDefaultState(time.Now())
	out, idx := AdvanceCampaignHook(st, 0)
	if idx != 0 {
		t.Errorf("expected index 0 for empty hook list, got %d", idx)
	}
	if out != st {
		t.Error("expected state unchanged for empty hook list")
	}
}

func TestSetWalletSnapshot(t *testing.T) {
	st := model.NewDefaultState(time.Now())
	out := SetWalletSnapshot(st, "1000000000000000000", "42")

	if out.LastEthBalanceWei != "1000000000000000000" {
		t.Errorf("eth snapshot: got %q", out.LastEthBalanceWei)
	}
	if out.LastTokenBalanceWei != "42" {
		t.Errorf("token snapshot: got %q", out.LastTokenBalanceWei)
	}
	if st.LastEthBalanceWei != "" {
		t.Error("input state mutated")
	}
}

func TestClone_DeepCopiesPointers(t *testing.T) {
	now := time.Now()
	st := model.NewDefaultState(now)
	ms := now.UnixMilli()
	st.TickInFlightSinceMs = &ms
	until := ms + 1000
	st.Breakers["news"] = model.BreakerState{FailureCount: 1, DisabledUntilMs: &until}

	c := st.Clone()
	*c.TickInFlightSinceMs = 0
	bs := c.Breakers["news"]
	*bs.DisabledUntilMs = 0
	c.SeenNewsFingerprints = append(c.SeenNewsFingerprints, "x")

	if *st.TickInFlightSinceMs != ms {
		t.Error("clone shares tick marker pointer with original")
	}
	if *st.Breakers["news"].DisabledUntilMs != until {
		t.Error("clone shares breaker pointer with original")
	}
	if len(st.SeenNewsFingerprints) != 0 {
		t.Error("clone shares fingerprint slice with original")
	}
}
