package pop3

import (
	"context"
	"io"
	"strings"

	"github.com/infodancer/mailserv/internal/logging"
	"github.com/infodancer/mailserv/internal/mailbox"
	"github.com/infodancer/mailserv/internal/metrics"
	"github.com/infodancer/mailserv/internal/server"
)

// HandlerConfig wires the maildrop engine to its collaborators.
type HandlerConfig struct {
	// Hostname appears in the greeting.
	Hostname string

	// Mailboxes resolves USER arguments to mailbox directories.
	Mailboxes *mailbox.Registry

	// Locks is the process-wide maildrop lock registry.
	Locks *mailbox.LockRegistry

	// Collector records metrics. Nil means no-op.
	Collector metrics.Collector
}

// Handler returns a ConnectionHandler running the POP3 engine.
func Handler(cfg HandlerConfig) server.ConnectionHandler {
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	registry := NewRegistry(cfg.Mailboxes, collector)

	return func(ctx context.Context, conn *server.Connection) {
		logger := logging.FromContext(ctx)

		collector.ConnectionOpened("pop3")
		defer collector.ConnectionClosed("pop3")

		sess := NewSession(cfg.Locks)

		// The maildrop lock must not outlive the connection, however it ends.
		defer sess.ReleaseLock()

		if err := writeResponse(conn, Response{OK: true, Message: cfg.Hostname + " POP3 server ready"}); err != nil {
			logger.Debug("failed to send greeting", "error", err.Error())
			return
		}

		for {
			// Bound the wait for the next command.
			if err := conn.SetCommandTimeout(); err != nil {
				logger.Debug("failed to set command timeout", "error", err.Error())
				return
			}

			line, err := conn.Reader().ReadString('\n')
			if err != nil {
				if err != io.EOF {
					logger.Debug("failed to read command", "error", err.Error())
				}
				return
			}
			line = strings.TrimRight(line, "\r\n")

			name, args, err := ParseCommand(line)
			if err != nil {
				if err := writeResponse(conn, Response{OK: false, Message: "empty command"}); err != nil {
					return
				}
				continue
			}

			cmd, ok := registry.Get(name)
			if !ok {
				if err := writeResponse(conn, Response{OK: false, Message: "unknown command"}); err != nil {
					return
				}
				continue
			}

			collector.CommandProcessed("pop3", name)

			resp := cmd.Execute(ctx, sess, args)
			if err := writeResponse(conn, resp); err != nil {
				logger.Debug("failed to write response", "error", err.Error())
				return
			}

			if resp.Close {
				if sess.State() == StateUpdate {
					logger.Info("session closed",
						"user", sess.User().String(),
						"remaining", sess.MessageCount(),
					)
				}
				return
			}

			if err := conn.ResetIdleTimeout(); err != nil {
				logger.Debug("failed to reset idle timeout", "error", err.Error())
			}
		}
	}
}

func writeResponse(conn *server.Connection, resp Response) error {
	if _, err := io.WriteString(conn.Writer(), resp.String()); err != nil {
		return err
	}
	return conn.Flush()
}
