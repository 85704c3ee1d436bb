package loop

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"InternAgent/internal/config"
	"InternAgent/internal/model"
	"InternAgent/internal/notifier"
	"InternAgent/internal/recorder"
	"InternAgent/internal/state"
)

// stubReader tracks how many ticks are inside the balance fetch at
// once, which is the first external call every tick makes.
type stubReader struct {
	active      int32
	maxParallel int32
}

func (r *stubReader) FetchBalances(ctx context.Context) (model.WalletSnapshot, error) {
	n := atomic.AddInt32(&r.active, 1)
	if n > atomic.LoadInt32(&r.maxParallel) {
		atomic.StoreInt32(&r.maxParallel, n)
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&r.active, -1)
	return model.WalletSnapshot{EthBalanceWei: big.NewInt(0), TokenBalanceWei: big.NewInt(0)}, nil
}

func (r *stubReader) PendingTxCount(ctx context.Context) (uint64, error) { return 0, nil }
func (r *stubReader) Name() string                                       { return "stub" }

// newsPlanner always has a news post ready and nothing else.
type newsPlanner struct{}

func (newsPlanner) Plan(ctx context.Context, feature string, st *model.AgentState) (*Post, error) {
	if feature != "news" {
		return nil, nil
	}
	return &Post{Feature: feature, Content: "gm"}, nil
}

type stubPoster struct {
	err       error
	published int32
}

func (p *stubPoster) Publish(ctx context.Context, post Post) error {
	atomic.AddInt32(&p.published, 1)
	return p.err
}

func testRunnerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Agent.DailyNewsPostCap = 3
	cfg.Agent.DailyDiscussionPostCap = 1
	cfg.Agent.DailyCampaignPostCap = 1
	cfg.Agent.SeenNewsMax = 50
	cfg.Agent.RepliedCommentsMax = 200
	cfg.Schedule.LoopIntervalMinutes = 10
	cfg.Schedule.TickStaleMinutes = 30
	cfg.Breaker.FailureThreshold = 3
	cfg.Breaker.CooldownMinutes = 30
	return cfg
}

func newTestRunner(t *testing.T, reader *stubReader, poster *stubPoster) (*Runner, *state.Store) {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "agent_state.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	r := NewRunner(context.Background(), testRunnerConfig(), store, reader,
		nil, nil, nil, newsPlanner{}, poster, nil, nil, recorder.NewNoopRecorder())
	return r, store
}

func TestTick_ConcurrentTriggersSerialized(t *testing.T) {
	reader := &stubReader{}
	poster := &stubPoster{}
	r, store := newTestRunner(t, reader, poster)

	// A manual /tick trigger racing the scheduled job.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunTickNow()
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&reader.maxParallel); max > 1 {
		t.Errorf("expected at most one tick active at a time, saw %d", max)
	}
	// Both ticks ran and neither overwrote the other's counter update.
	st := store.Load(time.Now())
	if st.NewsPosts.Count != 2 {
		t.Errorf("expected both ticks' posts counted, got %d", st.NewsPosts.Count)
	}
	if st.TickInFlightSinceMs != nil {
		t.Error("in-flight marker must be cleared after the last tick")
	}
}

func TestTick_RateLimitOpensBreakerWithoutFailureCount(t *testing.T) {
	poster := &stubPoster{err: &notifier.RateLimitError{RetryAfter: 90 * time.Second}}
	r, store := newTestRunner(t, &stubReader{}, poster)

	before := time.Now()
	r.RunTickNow()
	after := time.Now()

	st := store.Load(time.Now())
	bs := st.Breakers["news"]
	if bs.FailureCount != 0 {
		t.Errorf("a rate limit must not count as a failure, got count %d", bs.FailureCount)
	}
	if bs.DisabledUntilMs == nil {
		t.Fatal("expected the breaker open until the provider reset time")
	}
	lo := before.Add(90 * time.Second).UnixMilli()
	hi := after.Add(90 * time.Second).UnixMilli()
	if *bs.DisabledUntilMs < lo || *bs.DisabledUntilMs > hi {
		t.Errorf("expected disabledUntil from the provider's retry window [%d, %d], got %d", lo, hi, *bs.DisabledUntilMs)
	}
	if st.NewsPosts.Count != 0 {
		t.Errorf("a failed publish must not bump the counter, got %d", st.NewsPosts.Count)
	}
}

func TestTick_GenericFailureCountsTowardTrip(t *testing.T) {
	poster := &stubPoster{err: errors.New("upstream 500")}
	r, store := newTestRunner(t, &stubReader{}, poster)

	r.RunTickNow()

	st := store.Load(time.Now())
	bs := st.Breakers["news"]
	if bs.FailureCount != 1 {
		t.Errorf("expected one counted failure, got %d", bs.FailureCount)
	}
	if bs.DisabledUntilMs != nil {
		t.Error("one failure below the threshold must not open the breaker")
	}
}
