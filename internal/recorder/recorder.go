package recorder

// TickEvent records one scheduling-loop iteration.
type TickEvent struct {
	TickID        string
	Skipped       bool
	SkipReason    string
	Action        string // final decision action
	BlockedReason string
	EthBalanceWei string
	TokenWei      string
	DurationMs    int64
}

// TradeEvent records an executed (or attempted) trade.
type TradeEvent struct {
	TickID      string
	Action      string // "BUY" or "SELL"
	AmountWei   string
	TxHash      string
	Outcome     string // "SUCCESS", "FAILURE", "RATE_LIMITED", "NONCE_ABORT"
	Rationale   string
	TradesToday int
}

// PostEvent records a social posting attempt.
type PostEvent struct {
	TickID      string
	Feature     string // "news", "discussion", "campaign", "mentions"
	Fingerprint string
	Outcome     string
	PostsToday  int
}

// BreakerEvent records a breaker trip or recovery.
type BreakerEvent struct {
	Dependency   string
	Event        string // "TRIPPED", "RATE_LIMITED", "RECOVERED"
	FailureCount int
	DisabledFor  string
}

// Recorder persists audit rows for analysis.
type Recorder interface {
	RecordTick(evt *TickEvent) error
	RecordTrade(evt *TradeEvent) error
	RecordPost(evt *PostEvent) error
	RecordBreaker(evt *BreakerEvent) error
	Close() error
}
