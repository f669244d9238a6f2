package stats

// NoopStats satisfies Provider for tests that don't assert on metrics.
type NoopStats struct{}

func (NoopStats) Incr(string)           {}
func (NoopStats) Decr(string)           {}
func (NoopStats) RegisterMetric(string) {}
func (NoopStats) Run()                  {}
