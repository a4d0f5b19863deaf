// Package metrics provides interfaces and implementations for collecting
// mail server metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording mail server metrics.
// The protocol label is "smtp" or "pop3".
type Collector interface {
	// Connection metrics
	ConnectionOpened(protocol string)
	ConnectionClosed(protocol string)

	// Command metrics
	CommandProcessed(protocol string, command string)

	// Reception metrics
	MessageSpooled(sizeBytes int64)
	MessageRejected(reason string)

	// Authentication metrics (POP3 USER/PASS)
	AuthAttempt(domain string, success bool)

	// Retrieval metrics (POP3 RETR)
	MessageRetrieved(sizeBytes int64)

	// Dispatch metrics. route is "local" or "remote"; result should be
	// "success" or "failure".
	DeliveryCompleted(route string, recipientDomain string, result string)
	BounceGenerated(reason string)

	// SpoolDepth records the number of pending spool files seen by the
	// most recent dispatcher scan.
	SpoolDepth(n int)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
