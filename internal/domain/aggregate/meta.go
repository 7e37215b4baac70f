package aggregate

// Meta carries the correlation context a validated command arrives with.
// CorrelationID ties together every event of one business interaction;
// CausationID points at the event or command that triggered this one.
type Meta struct {
	CorrelationID string
	CausationID   string
}
