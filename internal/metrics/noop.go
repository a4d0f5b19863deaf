package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened(protocol string) {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed(protocol string) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(protocol string, command string) {}

// MessageSpooled is a no-op.
func (n *NoopCollector) MessageSpooled(sizeBytes int64) {}

// MessageRejected is a no-op.
func (n *NoopCollector) MessageRejected(reason string) {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(domain string, success bool) {}

// MessageRetrieved is a no-op.
func (n *NoopCollector) MessageRetrieved(sizeBytes int64) {}

// DeliveryCompleted is a no-op.
func (n *NoopCollector) DeliveryCompleted(route string, recipientDomain string, result string) {}

// BounceGenerated is a no-op.
func (n *NoopCollector) BounceGenerated(reason string) {}

// SpoolDepth is a no-op.
func (n *NoopCollector) SpoolDepth(count int) {}
