package conduit

// Metrics receives counters from the server. The metrics package provides a
// Prometheus implementation; NoopMetrics is used when none is configured.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(status Status)
	SetConnectionCount(count int)
	UpgradeRejected()
	MessageReceived(method string)
	MessageSent(method string)
	MessageDropped(method string)
	MalformedMessage()
	HandlerError(method string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) ConnectionOpened()             {}
func (NoopMetrics) ConnectionClosed(status Status) {}
func (NoopMetrics) SetConnectionCount(count int)   {}
func (NoopMetrics) UpgradeRejected()               {}
func (NoopMetrics) MessageReceived(method string)  {}
func (NoopMetrics) MessageSent(method string)      {}
func (NoopMetrics) MessageDropped(method string)   {}
func (NoopMetrics) MalformedMessage()              {}
func (NoopMetrics) HandlerError(method string)     {}
