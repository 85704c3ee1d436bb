// Package loop drives the agent's scheduling loop: one cooperative
// tick at a time through redeploy-safety gating, guardrail evaluation,
// execution, outcome recording, and persistence.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"InternAgent/internal/breaker"
	"InternAgent/internal/chain"
	"InternAgent/internal/config"
	"InternAgent/internal/guardrail"
	"InternAgent/internal/model"
	"InternAgent/internal/notifier"
	"InternAgent/internal/recorder"
	"InternAgent/internal/safety"
	"InternAgent/internal/state"
)

// Trade/post outcomes written to the audit recorder.
const (
	outcomeSuccess     = "SUCCESS"
	outcomeFailure     = "FAILURE"
	outcomeRateLimited = "RATE_LIMITED"
	outcomeNonceAbort  = "NONCE_ABORT"
	outcomeSkipped     = "SKIPPED"
)

// Runner owns the cron scheduler and orchestrates each tick. Only one
// tick is active per process: cron jobs, operator /tick triggers, and
// the start-up tick all serialize on the tick mutex. The state
// document is threaded through the tick as an explicit value with a
// save after every mutation batch.
type Runner struct {
	Cron      *cron.Cron
	Cfg       *config.Config
	Store     *state.Store
	Chain     chain.Reader
	Brain     ProposalSource
	Trader    TradeExecutor
	Liquidity LiquidityManager
	Planner   PostPlanner
	Poster    Poster
	Mentions  MentionSource
	Notifier  *notifier.TelegramNotifier
	Recorder  recorder.Recorder
	Safety    *safety.Coordinator
	Ctx       context.Context

	tickMu          sync.Mutex
	chainBreaker    breaker.Breaker
	telegramBreaker breaker.Breaker
	postBreakers    map[string]breaker.Breaker
	mentionBreaker  breaker.Breaker
}

// NewRunner wires the tick loop. Nil collaborators disable their
// feature: a nil Trader means decisions are evaluated but never
// executed, a nil Planner disables posting, and so on.
func NewRunner(ctx context.Context, cfg *config.Config, store *state.Store, reader chain.Reader,
	brain ProposalSource, trader TradeExecutor, liquidity LiquidityManager,
	planner PostPlanner, poster Poster, mentions MentionSource,
	tn *notifier.TelegramNotifier, rec recorder.Recorder) *Runner {

	threshold := cfg.Breaker.FailureThreshold
	cooldown := cfg.BreakerCooldown()
	if brain == nil {
		brain = HoldSource{}
	}
	return &Runner{
		Cron:            cron.New(cron.WithSeconds()),
		Cfg:             cfg,
		Store:           store,
		Chain:           reader,
		Brain:           brain,
		Trader:          trader,
		Liquidity:       liquidity,
		Planner:         planner,
		Poster:          poster,
		Mentions:        mentions,
		Notifier:        tn,
		Recorder:        rec,
		Safety:          safety.NewCoordinator(cfg.LoopInterval(), cfg.TickStaleAfter()),
		Ctx:             ctx,
		chainBreaker:    breaker.New(breaker.KeyChainPost, threshold, cooldown),
		telegramBreaker: breaker.New(breaker.KeyTelegram, threshold, cooldown),
		postBreakers: map[string]breaker.Breaker{
			"news":       breaker.New(breaker.KeyNews, threshold, cooldown),
			"discussion": breaker.New(breaker.KeyDiscussion, threshold, cooldown),
			"campaign":   breaker.New(breaker.KeyCampaign, threshold, cooldown),
		},
		mentionBreaker: breaker.New(breaker.KeyMentions, threshold, cooldown),
	}
}

// Register adds the tick job to the cron schedule.
func (r *Runner) Register() error {
	if _, err := r.Cron.AddFunc(r.Cfg.Schedule.TickCron, r.tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (r *Runner) Start() {
	r.Cron.Start()
	log.Println("[INFO] tick loop started")
}

// Stop stops the cron scheduler gracefully.
func (r *Runner) Stop() {
	r.Cron.Stop()
	log.Println("[INFO] tick loop stopped")
}

// RunTickNow executes one tick immediately (manual trigger / RUN_ON_START).
func (r *Runner) RunTickNow() {
	r.tick()
}

func (r *Runner) tick() {
	// Cron, /tick, and RUN_ON_START all funnel through here; a manual
	// trigger must never overlap a scheduled one.
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	tickID := uuid.NewString()[:8]
	start := time.Now()
	log.Printf("[INFO] tick %s starting", tickID)

	st := r.Store.Load(start)

	st, ok, reason := r.Safety.BeginTick(st, start)
	if !ok {
		log.Printf("[INFO] tick %s skipped: %s", tickID, reason)
		r.recordTick(&recorder.TickEvent{TickID: tickID, Skipped: true, SkipReason: reason})
		return
	}
	// The in-flight marker must be durable before any side effect.
	r.save(st, start)

	wallet, err := r.Chain.FetchBalances(r.Ctx)
	if err != nil {
		log.Printf("[ERROR] tick %s: fetch balances: %v", tickID, err)
		r.finishTick(st, tickID, start, model.Decision{}, model.WalletSnapshot{}, "balance_fetch_failed")
		return
	}

	decision := r.evaluate(tickID, st, wallet, start)
	st = r.executeTrade(tickID, st, decision)
	st = state.SetWalletSnapshot(st, wallet.EthBalanceWei.String(), wallet.TokenBalanceWei.String())
	st = r.liquidityPass(tickID, st)
	st = r.postPass(tickID, st)
	st = r.mentionPass(tickID, st)

	r.finishTick(st, tickID, start, decision, wallet, "")
}

// evaluate asks the brain for a proposal and runs it through the
// guardrail chain. A brain failure degrades to Hold, never to an
// aborted tick.
func (r *Runner) evaluate(tickID string, st *model.AgentState, wallet model.WalletSnapshot, now time.Time) model.Decision {
	proposal, err := r.Brain.Propose(r.Ctx, wallet, st)
	if err != nil {
		log.Printf("[WARN] tick %s: proposal source failed, holding: %v", tickID, err)
		proposal = model.Proposal{Action: model.ActionHold, Rationale: fmt.Sprintf("proposal source error: %v", err)}
	}

	decision := guardrail.Decide(proposal, guardrail.Context{
		Limits: r.Cfg.GuardrailLimits(),
		State:  st,
		Wallet: wallet,
		Now:    now,
	})
	if decision.BlockedReason != "" {
		log.Printf("[INFO] tick %s: %s proposal blocked: %s", tickID, proposal.Action, decision.BlockedReason)
	}
	return decision
}

// executeTrade runs an approved decision through the nonce guard, the
// chain breaker, and the executor, and records the outcome.
func (r *Runner) executeTrade(tickID string, st *model.AgentState, d model.Decision) *model.AgentState {
	if !d.ShouldExecute || r.Trader == nil {
		return st
	}
	now := time.Now()

	if r.chainBreaker.IsOpen(st, now) {
		log.Printf("[WARN] tick %s: chain breaker open, skipping trade", tickID)
		r.recordTrade(&recorder.TradeEvent{TickID: tickID, Action: string(d.Action), Outcome: outcomeSkipped, Rationale: breaker.SkipReason})
		return st
	}

	txCount, err := r.Chain.PendingTxCount(r.Ctx)
	if err != nil {
		log.Printf("[ERROR] tick %s: read tx count: %v", tickID, err)
		return r.recordChainOutcome(tickID, st, err)
	}
	if r.Safety.NonceAdvancedElsewhere(st, txCount) {
		log.Printf("[WARN] tick %s: nonce advanced elsewhere (have %d, recorded %d), aborting trade",
			tickID, txCount, *st.LastTxNonce)
		r.recordTrade(&recorder.TradeEvent{TickID: tickID, Action: string(d.Action), Outcome: outcomeNonceAbort})
		// Re-sync so the next tick is not blocked forever.
		st = r.Safety.RecordNonce(st, txCount)
		r.save(st, now)
		return st
	}

	var txHash string
	var amount string
	switch d.Action {
	case model.ActionBuy:
		txHash, err = r.Trader.ExecuteBuy(r.Ctx, d.BuySpendWei)
		amount = d.BuySpendWei.String()
	case model.ActionSell:
		txHash, err = r.Trader.ExecuteSell(r.Ctx, d.SellAmountWei)
		amount = d.SellAmountWei.String()
	}
	if err != nil {
		log.Printf("[ERROR] tick %s: execute %s: %v", tickID, d.Action, err)
		st = r.recordChainOutcome(tickID, st, err)
		r.recordTrade(&recorder.TradeEvent{TickID: tickID, Action: string(d.Action), AmountWei: amount, Outcome: outcomeFailure, Rationale: d.Rationale})
		return st
	}

	st = state.RecordTrade(st, now)
	st = state.MarkTradeExecuted(st, now)
	st = r.chainBreaker.RecordSuccess(st)
	// The executor consumed exactly one nonce.
	st = r.Safety.RecordNonce(st, txCount+1)
	r.save(st, now)

	log.Printf("[INFO] tick %s: executed %s, tx %s", tickID, d.Action, txHash)
	r.recordTrade(&recorder.TradeEvent{
		TickID: tickID, Action: string(d.Action), AmountWei: amount,
		TxHash: txHash, Outcome: outcomeSuccess, Rationale: d.Rationale,
		TradesToday: st.Trades.Count,
	})
	return st
}

// liquidityPass runs one liquidity maintenance pass, gated by the
// persisted per-feature cooldown of one loop interval.
func (r *Runner) liquidityPass(tickID string, st *model.AgentState) *model.AgentState {
	if r.Liquidity == nil {
		return st
	}
	now := time.Now()
	if !r.Safety.LiquidityCooldownElapsed(st, now) {
		return st
	}
	if r.chainBreaker.IsOpen(st, now) {
		return st
	}

	// Mark before executing: a crash mid-add must not lead the next
	// instance to immediately re-add.
	st = r.Safety.MarkLiquidityTick(st, now)
	r.save(st, now)

	txHash, err := r.Liquidity.Tick(r.Ctx)
	if err != nil {
		log.Printf("[ERROR] tick %s: liquidity pass: %v", tickID, err)
		st = r.recordChainOutcome(tickID, st, err)
		return st
	}
	if txHash != "" {
		log.Printf("[INFO] tick %s: liquidity pass done, tx %s", tickID, txHash)
		st = r.chainBreaker.RecordSuccess(st)
		r.save(st, now)
	}
	return st
}

// postPass walks the timed posting features: daily cap, breaker,
// planner, dedupe, publish, then counters and dedupe window updates.
func (r *Runner) postPass(tickID string, st *model.AgentState) *model.AgentState {
	if r.Planner == nil || r.Poster == nil {
		return st
	}

	type feature struct {
		name   string
		cap    int
		count  func(*model.AgentState) int
		record func(*model.AgentState, time.Time) *model.AgentState
	}
	features := []feature{
		{"news", r.Cfg.Agent.DailyNewsPostCap,
			func(s *model.AgentState) int { return s.NewsPosts.Count }, state.RecordNewsPost},
		{"discussion", r.Cfg.Agent.DailyDiscussionPostCap,
			func(s *model.AgentState) int { return s.DiscussionPosts.Count }, state.RecordDiscussionPost},
		{"campaign", r.Cfg.Agent.DailyCampaignPostCap,
			func(s *model.AgentState) int { return s.CampaignPosts.Count }, state.RecordCampaignPost},
	}

	for _, f := range features {
		now := time.Now()
		brk := r.postBreakers[f.name]

		if f.count(st) >= f.cap {
			continue
		}
		if brk.IsOpen(st, now) {
			log.Printf("[INFO] tick %s: %s breaker open, skipping", tickID, f.name)
			continue
		}

		post, err := r.Planner.Plan(r.Ctx, f.name, st)
		if err != nil {
			log.Printf("[WARN] tick %s: plan %s post: %v", tickID, f.name, err)
			continue
		}
		if post == nil {
			continue
		}
		if f.name == "news" && post.Fingerprint != "" && state.HasSeenNews(st, post.Fingerprint) {
			continue
		}

		if err := r.Poster.Publish(r.Ctx, *post); err != nil {
			st = r.recordBreakerOutcome(st, brk, f.name, err)
			r.recordPost(&recorder.PostEvent{TickID: tickID, Feature: f.name, Fingerprint: post.Fingerprint, Outcome: outcomeFailure})
			continue
		}

		st = f.record(st, now)
		st = brk.RecordSuccess(st)
		if f.name == "news" && post.Fingerprint != "" {
			st = state.RememberNewsFingerprint(st, post.Fingerprint, r.Cfg.Agent.SeenNewsMax)
		}
		r.save(st, now)
		log.Printf("[INFO] tick %s: published %s post", tickID, f.name)
		r.recordPost(&recorder.PostEvent{
			TickID: tickID, Feature: f.name, Fingerprint: post.Fingerprint,
			Outcome: outcomeSuccess, PostsToday: f.count(st),
		})
	}
	return st
}

// mentionPass replies to unseen mentions, deduped by persisted comment ids.
func (r *Runner) mentionPass(tickID string, st *model.AgentState) *model.AgentState {
	if r.Mentions == nil {
		return st
	}
	now := time.Now()
	if r.mentionBreaker.IsOpen(st, now) {
		return st
	}

	mentions, err := r.Mentions.FetchMentions(r.Ctx)
	if err != nil {
		return r.recordBreakerOutcome(st, r.mentionBreaker, "mentions", err)
	}
	st = r.mentionBreaker.RecordSuccess(st)

	for _, m := range mentions {
		if state.HasRepliedTo(st, m.ID) {
			continue
		}
		if err := r.Mentions.Reply(r.Ctx, m.ID, m.Text); err != nil {
			log.Printf("[WARN] tick %s: reply to mention %s: %v", tickID, m.ID, err)
			st = r.recordBreakerOutcome(st, r.mentionBreaker, "mentions", err)
			break
		}
		st = state.RememberRepliedComment(st, m.ID, r.Cfg.Agent.RepliedCommentsMax)
		r.save(st, now)
		r.recordPost(&recorder.PostEvent{TickID: tickID, Feature: "mentions", Fingerprint: m.ID, Outcome: outcomeSuccess})
	}
	return st
}

// finishTick clears the in-flight marker, persists, audits, and
// notifies the operator of the decision.
func (r *Runner) finishTick(st *model.AgentState, tickID string, start time.Time, d model.Decision, wallet model.WalletSnapshot, skipReason string) {
	now := time.Now()
	st = r.Safety.CompleteTick(st, now)
	r.save(st, now)

	evt := &recorder.TickEvent{
		TickID:        tickID,
		Action:        string(d.Action),
		BlockedReason: d.BlockedReason,
		DurationMs:    now.Sub(start).Milliseconds(),
	}
	if skipReason != "" {
		evt.Skipped = true
		evt.SkipReason = skipReason
	}
	if wallet.EthBalanceWei != nil {
		evt.EthBalanceWei = wallet.EthBalanceWei.String()
	}
	if wallet.TokenBalanceWei != nil {
		evt.TokenWei = wallet.TokenBalanceWei.String()
	}
	r.recordTick(evt)

	if r.Notifier != nil && skipReason == "" && !r.telegramBreaker.IsOpen(st, now) {
		if err := r.Notifier.SendWithRetry(r.Ctx, notifier.FormatDecisionReport(d, wallet, st), 3); err != nil {
			st = r.recordBreakerOutcome(st, r.telegramBreaker, "telegram", err)
		} else {
			st = r.telegramBreaker.RecordSuccess(st)
			r.save(st, now)
		}
	}

	log.Printf("[INFO] tick %s finished in %s", tickID, time.Since(start).Round(time.Millisecond))
}

// recordChainOutcome routes a chain-side error through the chain
// breaker, distinguishing rate limits from generic failures.
func (r *Runner) recordChainOutcome(tickID string, st *model.AgentState, err error) *model.AgentState {
	return r.recordBreakerOutcome(st, r.chainBreaker, breaker.KeyChainPost, err)
}

// recordBreakerOutcome applies a collaborator error to its breaker. A
// rate-limit error resets the failure count and opens the breaker
// until the provider-supplied reset time; anything else counts toward
// the trip threshold.
func (r *Runner) recordBreakerOutcome(st *model.AgentState, brk breaker.Breaker, dependency string, err error) *model.AgentState {
	now := time.Now()
	wasOpen := brk.IsOpen(st, now)

	var rl rateLimitReporter
	if errors.As(err, &rl) {
		reset := rl.RateLimitReset(now)
		st = brk.RecordRateLimited(st, now, &reset)
		r.recordBreakerEvent(&recorder.BreakerEvent{
			Dependency: dependency, Event: "RATE_LIMITED",
			DisabledFor: time.Until(reset).Round(time.Second).String(),
		})
	} else {
		st = brk.RecordFailure(st, now)
		bs := brk.State(st)
		if !wasOpen && brk.IsOpen(st, now) {
			log.Printf("[WARN] breaker tripped: %s after %d failures", dependency, bs.FailureCount)
			r.recordBreakerEvent(&recorder.BreakerEvent{
				Dependency: dependency, Event: "TRIPPED",
				FailureCount: bs.FailureCount,
				DisabledFor:  brk.Cooldown.String(),
			})
			if r.Notifier != nil && dependency != breaker.KeyTelegram {
				_ = r.Notifier.Send(notifier.FormatBreakerTrip(dependency, bs.FailureCount, brk.Cooldown))
			}
		}
	}
	r.save(st, now)
	return st
}

// HandleCommand processes an operator command and returns a reply.
// Commands are read-only over a freshly loaded state.
func (r *Runner) HandleCommand(command string) string {
	switch command {
	case "/status":
		now := time.Now()
		return notifier.FormatAgentStatus(r.Store.Load(now), now)
	case "/tick":
		go r.RunTickNow()
		return "tick triggered"
	default:
		return "commands:\n• /status — counters, breakers, cooldowns\n• /tick — run one tick now"
	}
}

// save persists the document; failures are logged but never crash the
// control loop.
func (r *Runner) save(st *model.AgentState, now time.Time) {
	if err := r.Store.Save(st, now); err != nil {
		log.Printf("[ERROR] save state: %v", err)
	}
}

func (r *Runner) recordTick(evt *recorder.TickEvent) {
	if err := r.Recorder.RecordTick(evt); err != nil {
		log.Printf("[ERROR] record tick: %v", err)
	}
}

func (r *Runner) recordTrade(evt *recorder.TradeEvent) {
	if err := r.Recorder.RecordTrade(evt); err != nil {
		log.Printf("[ERROR] record trade: %v", err)
	}
}

func (r *Runner) recordPost(evt *recorder.PostEvent) {
	if err := r.Recorder.RecordPost(evt); err != nil {
		log.Printf("[ERROR] record post: %v", err)
	}
}

func (r *Runner) recordBreakerEvent(evt *recorder.BreakerEvent) {
	if err := r.Recorder.RecordBreaker(evt); err != nil {
		log.Printf("[ERROR] record breaker event: %v", err)
	}
}
