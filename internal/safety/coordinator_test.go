package safety

import (
	"testing"
	"time"

	"InternAgent/internal/model"
)

const (
	loopInterval = 10 * time.Minute
	staleAfter   = 30 * time.Minute
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestBeginTick_FreshInstallProceeds(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)

	out, ok, reason := c.BeginTick(st, baseTime)
	if !ok {
		t.Fatalf("fresh install must proceed, skipped with %q", reason)
	}
	if out.TickInFlightSinceMs == nil || *out.TickInFlightSinceMs != baseTime.UnixMilli() {
		t.Error("expected tick marker set before side effects")
	}
	if st.TickInFlightSinceMs != nil {
		t.Error("input state mutated")
	}
}

func TestBeginTick_FirstTickSkipsAfterRecentCompletion(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)
	completed := baseTime.Add(-3 * time.Minute).UnixMilli()
	st.LastTickCompletedAtMs = &completed

	out, ok, reason := c.BeginTick(st, baseTime)
	if ok {
		t.Fatal("first tick right after a completed cycle must be skipped")
	}
	if reason != SkipRecentComplete {
		t.Errorf("expected %q, got %q", SkipRecentComplete, reason)
	}
	if out.TickInFlightSinceMs != nil {
		t.Error("a skipped tick must not set the marker")
	}

	// The guard applies to the first tick only; the next one proceeds.
	if _, ok, _ := c.BeginTick(st, baseTime.Add(time.Minute)); !ok {
		t.Error("second tick must proceed even with a recent completion")
	}
}

func TestBeginTick_FirstTickProceedsAfterOldCompletion(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)
	completed := baseTime.Add(-loopInterval - time.Minute).UnixMilli()
	st.LastTickCompletedAtMs = &completed

	if _, ok, reason := c.BeginTick(st, baseTime); !ok {
		t.Errorf("completion older than the loop interval must not skip, got %q", reason)
	}
}

func TestBeginTick_SkipsWhileMarkerFresh(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)
	inFlight := baseTime.Add(-5 * time.Minute).UnixMilli()
	st.TickInFlightSinceMs = &inFlight

	_, ok, reason := c.BeginTick(st, baseTime)
	if ok {
		t.Fatal("a fresh in-flight marker means another instance is mid-tick")
	}
	if reason != SkipTickInFlight {
		t.Errorf("expected %q, got %q", SkipTickInFlight, reason)
	}
}

func TestBeginTick_TakesOverStaleMarker(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)
	crashed := baseTime.Add(-staleAfter - time.Minute).UnixMilli()
	st.TickInFlightSinceMs = &crashed

	out, ok, _ := c.BeginTick(st, baseTime)
	if !ok {
		t.Fatal("a marker older than staleAfter belongs to a crashed instance")
	}
	if out.TickInFlightSinceMs == nil || *out.TickInFlightSinceMs != baseTime.UnixMilli() {
		t.Error("takeover must refresh the marker to now")
	}
}

func TestCompleteTick(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st, ok, _ := c.BeginTick(model.NewDefaultState(baseTime), baseTime)
	if !ok {
		t.Fatal("precondition: tick started")
	}

	done := baseTime.Add(time.Minute)
	out := c.CompleteTick(st, done)
	if out.TickInFlightSinceMs != nil {
		t.Error("completion must clear the in-flight marker")
	}
	if out.LastTickCompletedAtMs == nil || *out.LastTickCompletedAtMs != done.UnixMilli() {
		t.Error("completion time must be recorded for the next instance's first-tick guard")
	}
}

func TestNonceAdvancedElsewhere(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)

	if c.NonceAdvancedElsewhere(st, 7) {
		t.Error("a never-recorded nonce must not block")
	}

	st = c.RecordNonce(st, 7)
	if c.NonceAdvancedElsewhere(st, 7) {
		t.Error("matching tx count must not block")
	}
	if !c.NonceAdvancedElsewhere(st, 8) {
		t.Error("advanced tx count means another submitter acted")
	}
}

func TestLiquidityCooldown(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)

	if !c.LiquidityCooldownElapsed(st, baseTime) {
		t.Error("never-run liquidity must be eligible")
	}

	st = c.MarkLiquidityTick(st, baseTime)
	if c.LiquidityCooldownElapsed(st, baseTime.Add(loopInterval-time.Minute)) {
		t.Error("cooldown must hold for one full loop interval")
	}
	if !c.LiquidityCooldownElapsed(st, baseTime.Add(loopInterval)) {
		t.Error("cooldown must elapse after one loop interval")
	}
}

func TestCooldownElapsed_PerFeature(t *testing.T) {
	c := NewCoordinator(loopInterval, staleAfter)
	st := model.NewDefaultState(baseTime)

	if !c.CooldownElapsed(st, "news", time.Hour, baseTime) {
		t.Error("never-run feature must be eligible")
	}

	st.LastActionAtMs["news"] = baseTime.Add(-30 * time.Minute).UnixMilli()
	if c.CooldownElapsed(st, "news", time.Hour, baseTime) {
		t.Error("feature within its cooldown must wait")
	}
	if !c.CooldownElapsed(st, "news", 20*time.Minute, baseTime) {
		t.Error("feature past its cooldown must be eligible")
	}
	// Cooldowns are per feature.
	if !c.CooldownElapsed(st, "discussion", time.Hour, baseTime) {
		t.Error("another feature's cooldown must not apply")
	}
}
