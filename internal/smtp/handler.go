package smtp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/infodancer/mailserv/internal/logging"
	"github.com/infodancer/mailserv/internal/mailbox"
	"github.com/infodancer/mailserv/internal/metrics"
	"github.com/infodancer/mailserv/internal/server"
	"github.com/infodancer/mailserv/internal/spool"
)

// Line length limits in bytes, CRLF included.
const (
	maxCommandLine = 512
	maxDataLine    = 1000
)

// HandlerConfig wires the reception engine to its collaborators.
type HandlerConfig struct {
	// Hostname appears in the banner and QUIT reply.
	Hostname string

	// SpoolDir receives accepted transactions.
	SpoolDir string

	// Mailboxes validates RCPT arguments for local domains.
	Mailboxes *mailbox.Registry

	// Collector records metrics. Nil means no-op.
	Collector metrics.Collector

	// Spooled, when set, is called after each committed transaction so the
	// dispatcher can rescan without waiting for its interval.
	Spooled func()
}

// Handler returns a ConnectionHandler running the SMTP reception engine.
func Handler(cfg HandlerConfig) server.ConnectionHandler {
	registry := NewRegistry(cfg.Hostname, cfg.Mailboxes)
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return func(ctx context.Context, conn *server.Connection) {
		logger := logging.FromContext(ctx)

		collector.ConnectionOpened("smtp")
		defer collector.ConnectionClosed("smtp")

		session := NewSession()

		if err := writeReply(conn, 220, cfg.Hostname+" Service ready"); err != nil {
			logger.Debug("failed to send greeting", "error", err.Error())
			return
		}

		for {
			// Bound the wait for the next command.
			if err := conn.SetCommandTimeout(); err != nil {
				logger.Debug("failed to set command timeout", "error", err.Error())
				return
			}

			line, overflow, err := readLimitedLine(conn.Reader(), maxCommandLine)
			if err != nil {
				if err != io.EOF {
					logger.Debug("failed to read command", "error", err.Error())
				}
				return
			}
			if overflow {
				if err := writeReply(conn, 500, "Line too long"); err != nil {
					return
				}
				continue
			}

			cmd, matches, err := registry.Match(line)
			if err != nil {
				if err := writeReply(conn, 500, ""); err != nil {
					return
				}
				continue
			}

			collector.CommandProcessed("smtp", commandName(line))

			result := cmd.Execute(ctx, session, matches)
			if err := writeReply(conn, result.Code, result.Message); err != nil {
				logger.Debug("failed to write response", "error", err.Error())
				return
			}

			if result.Code == 221 {
				return
			}

			if session.InData() {
				if err := collectData(conn, session, cfg, collector, logger); err != nil {
					return
				}
			}

			if err := conn.ResetIdleTimeout(); err != nil {
				logger.Debug("failed to reset idle timeout", "error", err.Error())
			}
		}
	}
}

// collectData reads message content after the 354 reply and drives the
// spool writer. A nil return keeps the connection alive; an error closes it.
func collectData(conn *server.Connection, session *Session, cfg HandlerConfig, collector metrics.Collector, logger *slog.Logger) error {
	defer session.Reset()

	env := spool.Envelope{
		Sender:     *session.Sender(),
		Recipients: session.Recipients(),
	}

	w, err := spool.NewWriter(cfg.SpoolDir, env)
	if err != nil {
		logger.Error("failed to open spool file", "error", err.Error())
		collector.MessageRejected("spool_error")
		return writeReply(conn, 452, "")
	}

	var size int64
	for {
		if err := conn.SetCommandTimeout(); err != nil {
			w.Abort()
			return err
		}

		line, overflow, err := readLimitedLine(conn.Reader(), maxDataLine)
		if err != nil {
			w.Abort()
			if err != io.EOF {
				logger.Debug("failed to read message data", "error", err.Error())
			}
			return err
		}
		if overflow {
			w.Abort()
			collector.MessageRejected("line_too_long")
			return writeReply(conn, 500, "Line too long")
		}

		if line == "." {
			path, err := w.Commit()
			if err != nil {
				logger.Error("failed to commit spool file", "error", err.Error())
				collector.MessageRejected("spool_error")
				return writeReply(conn, 452, "")
			}
			logger.Info("message spooled",
				slog.String("path", path),
				slog.String("sender", env.Sender.String()),
				slog.Int("recipients", len(env.Recipients)),
				slog.Int64("size", size),
			)
			collector.MessageSpooled(size)
			if cfg.Spooled != nil {
				cfg.Spooled()
			}
			return writeReply(conn, 250, "")
		}

		if err := w.WriteLine(line); err != nil {
			w.Abort()
			logger.Error("failed to write message data", "error", err.Error())
			collector.MessageRejected("spool_error")
			return writeReply(conn, 452, "")
		}
		size += int64(len(line)) + 2
	}
}

// writeReply writes one reply line. An empty message selects the standard
// text for the code.
func writeReply(conn *server.Connection, code int, message string) error {
	if message == "" {
		message = defaultText(code)
	}
	if _, err := fmt.Fprintf(conn.Writer(), "%d %s\r\n", code, message); err != nil {
		return err
	}
	return conn.Flush()
}

// readLimitedLine reads one CRLF-terminated line of at most max bytes
// (terminator included). When the line is longer, the remainder through the
// next newline is discarded and overflow is reported.
func readLimitedLine(r *bufio.Reader, max int) (line string, overflow bool, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return "", false, err
		}
		if len(buf) > max {
			if err := discardLine(r); err != nil {
				return "", true, err
			}
			return "", true, nil
		}
	}

	if len(buf) > max {
		return "", true, nil
	}

	line = strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, false, nil
}

// discardLine consumes input through the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if err != bufio.ErrBufferFull {
			return err
		}
	}
}
