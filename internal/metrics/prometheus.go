package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal  *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Reception metrics
	messagesSpooledTotal  prometheus.Counter
	messagesRejectedTotal *prometheus.CounterVec
	messagesSizeBytes     prometheus.Histogram

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Retrieval metrics
	messagesRetrievedTotal prometheus.Counter
	retrievedSizeBytes     prometheus.Histogram

	// Dispatch metrics
	deliveriesTotal *prometheus.CounterVec
	bouncesTotal    *prometheus.CounterVec
	spoolDepth      prometheus.Gauge
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	sizeBuckets := []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800}

	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_connections_total",
			Help: "Total number of client connections opened.",
		}, []string{"protocol"}),
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailserv_connections_active",
			Help: "Number of currently active client connections.",
		}, []string{"protocol"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_commands_total",
			Help: "Total number of protocol commands processed.",
		}, []string{"protocol", "command"}),

		messagesSpooledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailserv_messages_spooled_total",
			Help: "Total number of messages accepted into the spool.",
		}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_messages_rejected_total",
			Help: "Total number of messages rejected during reception.",
		}, []string{"reason"}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailserv_messages_size_bytes",
			Help:    "Size of spooled messages in bytes.",
			Buckets: sizeBuckets,
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_auth_attempts_total",
			Help: "Total number of POP3 authentication attempts.",
		}, []string{"domain", "result"}),

		messagesRetrievedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailserv_messages_retrieved_total",
			Help: "Total number of messages retrieved over POP3.",
		}),
		retrievedSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailserv_retrieved_size_bytes",
			Help:    "Size of retrieved messages in bytes.",
			Buckets: sizeBuckets,
		}),

		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_deliveries_total",
			Help: "Total number of delivery attempts.",
		}, []string{"route", "recipient_domain", "result"}),
		bouncesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailserv_bounces_total",
			Help: "Total number of bounce messages generated.",
		}, []string{"reason"}),
		spoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailserv_spool_depth",
			Help: "Pending spool files seen by the most recent dispatcher scan.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.commandsTotal,
		c.messagesSpooledTotal,
		c.messagesRejectedTotal,
		c.messagesSizeBytes,
		c.authAttemptsTotal,
		c.messagesRetrievedTotal,
		c.retrievedSizeBytes,
		c.deliveriesTotal,
		c.bouncesTotal,
		c.spoolDepth,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened(protocol string) {
	c.connectionsTotal.WithLabelValues(protocol).Inc()
	c.connectionsActive.WithLabelValues(protocol).Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed(protocol string) {
	c.connectionsActive.WithLabelValues(protocol).Dec()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(protocol string, command string) {
	c.commandsTotal.WithLabelValues(protocol, command).Inc()
}

// MessageSpooled increments the spooled counter and observes message size.
func (c *PrometheusCollector) MessageSpooled(sizeBytes int64) {
	c.messagesSpooledTotal.Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageRejected increments the rejection counter.
func (c *PrometheusCollector) MessageRejected(reason string) {
	c.messagesRejectedTotal.WithLabelValues(reason).Inc()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(domain string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(domain, result).Inc()
}

// MessageRetrieved increments the retrieval counter and observes message size.
func (c *PrometheusCollector) MessageRetrieved(sizeBytes int64) {
	c.messagesRetrievedTotal.Inc()
	c.retrievedSizeBytes.Observe(float64(sizeBytes))
}

// DeliveryCompleted increments the delivery counter.
func (c *PrometheusCollector) DeliveryCompleted(route string, recipientDomain string, result string) {
	c.deliveriesTotal.WithLabelValues(route, recipientDomain, result).Inc()
}

// BounceGenerated increments the bounce counter.
func (c *PrometheusCollector) BounceGenerated(reason string) {
	c.bouncesTotal.WithLabelValues(reason).Inc()
}

// SpoolDepth sets the spool depth gauge.
func (c *PrometheusCollector) SpoolDepth(n int) {
	c.spoolDepth.Set(float64(n))
}
