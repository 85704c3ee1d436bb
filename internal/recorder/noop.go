package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTick(_ *TickEvent) error       { return nil }
func (n *NoopRecorder) RecordTrade(_ *TradeEvent) error     { return nil }
func (n *NoopRecorder) RecordPost(_ *PostEvent) error       { return nil }
func (n *NoopRecorder) RecordBreaker(_ *BreakerEvent) error { return nil }
func (n *NoopRecorder) Close() error                        { return nil }
