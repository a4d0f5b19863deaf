// Package dispatch drains the spool: a scanner queues completed spool files
// and a worker pool delivers them to local mailboxes or relays them to
// remote hosts, generating bounce reports for remote failures.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infodancer/mailserv/internal/address"
	"github.com/infodancer/mailserv/internal/bounce"
	"github.com/infodancer/mailserv/internal/dns"
	"github.com/infodancer/mailserv/internal/logging"
	"github.com/infodancer/mailserv/internal/mailbox"
	"github.com/infodancer/mailserv/internal/metrics"
	"github.com/infodancer/mailserv/internal/smtpclient"
	"github.com/infodancer/mailserv/internal/spool"
)

// Config wires the dispatcher to its collaborators.
type Config struct {
	// Hostname is the name announced in outbound HELO and bounce reports.
	Hostname string

	// SpoolDir is the directory scanned for completed spool files.
	SpoolDir string

	// Mailboxes partitions recipients into local and remote.
	Mailboxes *mailbox.Registry

	// Workers is the delivery worker count. Defaults to 1.
	Workers int

	// ScanInterval is the idle rescan interval. Defaults to one second.
	ScanInterval time.Duration

	// Resolver locates relay hosts. Nil means the system resolver.
	Resolver dns.Resolver

	// Client relays messages to remote hosts. Nil builds one from Hostname.
	Client *smtpclient.Client

	// Collector records metrics. Nil means no-op.
	Collector metrics.Collector

	// Logger receives delivery events. Nil means the default logger.
	Logger *slog.Logger
}

// Dispatcher owns the scanner and worker pool.
type Dispatcher struct {
	cfg       Config
	resolver  dns.Resolver
	client    *smtpclient.Client
	collector metrics.Collector
	logger    *slog.Logger

	queue chan string
	kick  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a dispatcher. Start must be called before it does anything.
func New(cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Second
	}

	d := &Dispatcher{
		cfg:       cfg,
		resolver:  cfg.Resolver,
		client:    cfg.Client,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		queue:     make(chan string),
		kick:      make(chan struct{}, 1),
		inflight:  make(map[string]struct{}),
	}
	if d.resolver == nil {
		d.resolver = dns.Default()
	}
	if d.client == nil {
		d.client = &smtpclient.Client{HeloName: cfg.Hostname}
	}
	if d.collector == nil {
		d.collector = &metrics.NoopCollector{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Start launches the scanner and workers. They stop when ctx is cancelled;
// Wait blocks until in-progress deliveries have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i+1)
	}

	d.wg.Add(1)
	go d.scanLoop(ctx)
}

// Wait blocks until the scanner and all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Kick requests a rescan without waiting for the interval. Safe to call from
// any goroutine; extra kicks while one is pending are dropped.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) scanLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	d.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scan(ctx)
		case <-d.kick:
			d.scan(ctx)
		}
	}
}

// scan queues every completed spool file not already in flight.
func (d *Dispatcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(d.cfg.SpoolDir)
	if err != nil {
		d.logger.Error("spool scan failed", "error", err.Error())
		return
	}

	depth := 0
	for _, e := range entries {
		if e.IsDir() || !spool.IsSpoolMessage(e.Name()) {
			continue
		}
		depth++

		path := filepath.Join(d.cfg.SpoolDir, e.Name())
		if !d.claim(path) {
			continue
		}

		select {
		case d.queue <- path:
		case <-ctx.Done():
			d.release(path)
			return
		}
	}
	d.collector.SpoolDepth(depth)
}

func (d *Dispatcher) claim(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[path]; busy {
		return false
	}
	d.inflight[path] = struct{}{}
	return true
}

func (d *Dispatcher) release(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, path)
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	logger := logging.WithWorker(d.logger, id)
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-d.queue:
			d.process(ctx, logger, path)
			d.release(path)
		}
	}
}

// process makes one delivery pass over a spool file and removes it. Failed
// remote recipients get a bounce report instead of a retry; local failures
// are logged only. Every log line of one pass carries the same trace id.
func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, path string) {
	logger = logger.With(slog.String("trace", uuid.NewString()))

	sf, err := spool.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, spool.ErrIncomplete):
			// Still being written; the next scan will see it again.
		case errors.Is(err, spool.ErrMalformed):
			logger.Warn("removing malformed spool file", "path", path, "error", err.Error())
			_ = os.Remove(path)
		default:
			logger.Error("failed to open spool file", "path", path, "error", err.Error())
		}
		return
	}
	defer sf.Close()

	arrival := time.Now()
	if info, err := os.Stat(path); err == nil {
		arrival = info.ModTime()
	}

	var remote []address.Mailbox

	for _, rcpt := range sf.Envelope.Recipients {
		dir, result := d.cfg.Mailboxes.Lookup(rcpt.Domain, rcpt.LocalPart)
		switch result {
		case mailbox.Found:
			d.deliverLocal(logger, sf, rcpt, dir)
		case mailbox.NotFound:
			// No bounce for a local miss; the failure is logged only.
			logger.Warn("local mailbox vanished since acceptance",
				"recipient", rcpt.String(), "path", path)
			d.collector.DeliveryCompleted("local", rcpt.Domain, "failed")
		case mailbox.DomainNotLocal:
			remote = append(remote, rcpt)
		}
	}

	for _, rcpt := range remote {
		d.deliverRemote(ctx, logger, sf, rcpt, arrival)
	}

	if err := os.Remove(path); err != nil {
		logger.Error("failed to remove spool file", "path", path, "error", err.Error())
	}
}

func (d *Dispatcher) deliverLocal(logger *slog.Logger, sf *spool.File, rcpt address.Mailbox, dir string) {
	msgPath, err := mailbox.Deliver(dir, sf.Payload())
	if err != nil {
		logger.Error("local delivery failed",
			"recipient", rcpt.String(), "error", err.Error())
		d.collector.DeliveryCompleted("local", rcpt.Domain, "failed")
		return
	}

	logger.Info("delivered locally",
		"recipient", rcpt.String(),
		"path", msgPath,
		"size", sf.PayloadSize(),
	)
	d.collector.DeliveryCompleted("local", rcpt.Domain, "ok")
}

// deliverRemote relays one message to one recipient over its own connection.
// A failed recipient bounces alone; other recipients of the same file are
// unaffected.
func (d *Dispatcher) deliverRemote(ctx context.Context, logger *slog.Logger, sf *spool.File, rcpt address.Mailbox, arrival time.Time) {
	relay, err := dns.LookupRelay(ctx, d.resolver, rcpt.Domain)
	if err != nil {
		reason := smtpclient.FailUnknown
		if errors.Is(err, dns.ErrNoSuchHost) {
			reason = smtpclient.FailHostNotFound
		}
		logger.Warn("relay lookup failed",
			"domain", rcpt.Domain, "error", err.Error())
		d.writeBounce(logger, sf, rcpt, reason, arrival)
		d.collector.DeliveryCompleted("remote", rcpt.Domain, "bounced")
		return
	}

	msg := &smtpclient.Message{
		Sender:     sf.Envelope.Sender.String(),
		Recipients: []string{rcpt.String()},
		Payload:    sf.WirePayload(),
	}

	if err := d.client.Send(ctx, relay, msg); err != nil {
		reason := smtpclient.FailUnknown
		var sendErr *smtpclient.SendError
		if errors.As(err, &sendErr) {
			reason = sendErr.Reason
		}
		logger.Warn("remote delivery failed",
			"recipient", rcpt.String(), "relay", relay, "error", err.Error())
		d.writeBounce(logger, sf, rcpt, reason, arrival)
		d.collector.DeliveryCompleted("remote", rcpt.Domain, "bounced")
		return
	}

	logger.Info("relayed",
		"recipient", rcpt.String(),
		"relay", relay,
		"size", sf.PayloadSize(),
	)
	d.collector.DeliveryCompleted("remote", rcpt.Domain, "ok")
}

// writeBounce spools a delivery-status report back to the original sender.
// Reports about messages from Postmaster are dropped to break bounce loops.
func (d *Dispatcher) writeBounce(logger *slog.Logger, sf *spool.File, rcpt address.Mailbox, reason smtpclient.FailReason, arrival time.Time) {
	sender := sf.Envelope.Sender
	if strings.EqualFold(sender.LocalPart, "Postmaster") {
		logger.Warn("suppressing bounce of a bounce",
			"sender", sender.String(), "recipient", rcpt.String())
		return
	}

	path, err := bounce.WriteToSpool(d.cfg.SpoolDir, &bounce.Report{
		Hostname:    d.cfg.Hostname,
		Sender:      sender,
		Unreachable: rcpt,
		Reason:      reason,
		ArrivalDate: arrival,
		Original:    sf.Payload(),
	})
	if err != nil {
		logger.Error("failed to write bounce report",
			"sender", sender.String(), "recipient", rcpt.String(), "error", err.Error())
		return
	}

	logger.Info("bounce spooled",
		"sender", sender.String(),
		"recipient", rcpt.String(),
		"reason", reason.String(),
		"path", path,
	)
	d.collector.BounceGenerated(reason.String())
	d.Kick()
}
