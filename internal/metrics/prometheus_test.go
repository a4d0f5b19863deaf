package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusCollectorImplementsInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ Collector = NewPrometheusCollector(reg)
}

func TestPrometheusServerImplementsInterface(t *testing.T) {
	var _ Server = NewPrometheusServer(":0", "/metrics", prometheus.NewRegistry())
}

func TestPrometheusCollectorMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	// All methods should execute without panic
	c.ConnectionOpened("smtp")
	c.ConnectionClosed("smtp")
	c.CommandProcessed("smtp", "MAIL")
	c.MessageSpooled(1024)
	c.MessageRejected("relay_denied")
	c.AuthAttempt("example.com", true)
	c.AuthAttempt("example.com", false)
	c.MessageRetrieved(2048)
	c.DeliveryCompleted("local", "example.com", "success")
	c.DeliveryCompleted("remote", "example.org", "failure")
	c.BounceGenerated("host_not_found")
	c.SpoolDepth(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	metricNames := make(map[string]bool)
	for _, mf := range mfs {
		metricNames[mf.GetName()] = true
	}

	expectedMetrics := []string{
		"mailserv_connections_total",
		"mailserv_connections_active",
		"mailserv_commands_total",
		"mailserv_messages_spooled_total",
		"mailserv_messages_rejected_total",
		"mailserv_messages_size_bytes",
		"mailserv_auth_attempts_total",
		"mailserv_messages_retrieved_total",
		"mailserv_retrieved_size_bytes",
		"mailserv_deliveries_total",
		"mailserv_bounces_total",
		"mailserv_spool_depth",
	}

	for _, name := range expectedMetrics {
		if !metricNames[name] {
			t.Errorf("expected metric %q not found", name)
		}
	}
}

func TestPrometheusCollectorConnectionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.ConnectionOpened("pop3")
	c.ConnectionOpened("pop3")
	c.ConnectionClosed("pop3")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "mailserv_connections_active" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if got := m.GetGauge().GetValue(); got != 1 {
				t.Errorf("active connections = %v, want 1", got)
			}
		}
		return
	}
	t.Error("mailserv_connections_active not found")
}

func TestPrometheusServerStartShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusServer("127.0.0.1:0", "/metrics", reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
