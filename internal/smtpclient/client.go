// Package smtpclient implements the outbound SMTP dialogue used to relay
// a spooled message to a remote host.
package smtpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"

	"github.com/emersion/go-smtp"
)

// FailReason classifies why a remote delivery attempt failed. The bounce
// generator selects its explanation text from this value.
type FailReason int

const (
	FailNone FailReason = iota
	FailHostNotFound
	FailCouldNotConnect
	FailRejectedSender
	FailMailboxNotFound
	FailUnknown
)

// String returns a short identifier for metrics labels.
func (r FailReason) String() string {
	switch r {
	case FailNone:
		return "none"
	case FailHostNotFound:
		return "host_not_found"
	case FailCouldNotConnect:
		return "could_not_connect"
	case FailRejectedSender:
		return "rejected_sender"
	case FailMailboxNotFound:
		return "mailbox_not_found"
	default:
		return "unknown"
	}
}

// SendError describes a failed delivery attempt.
type SendError struct {
	Reason FailReason
	Host   string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("delivery to %s failed (%s): %v", e.Host, e.Reason, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Message holds everything needed to relay one spooled message.
type Message struct {
	// Sender and Recipients are the envelope addresses in local@domain form.
	// An empty Sender produces a null reverse-path.
	Sender     string
	Recipients []string

	// Payload is the message body as stored in the spool, including the
	// trailing CRLF.CRLF terminator. It is streamed to the remote host
	// verbatim after DATA, so the terminator doubles as end-of-data framing.
	Payload io.Reader
}

// Client relays messages to remote hosts, one connection per message.
type Client struct {
	// HeloName is the hostname announced in HELO.
	HeloName string

	// Port overrides the SMTP port. Defaults to 25.
	Port string

	// Dialer is used to establish connections. A nil Dialer uses a
	// zero net.Dialer.
	Dialer *net.Dialer
}

// Send relays msg to host. A non-nil error is always a *SendError.
func (c *Client) Send(ctx context.Context, host string, msg *Message) error {
	port := c.Port
	if port == "" {
		port = "25"
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		reason := FailCouldNotConnect
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			reason = FailHostNotFound
		}
		return &SendError{Reason: reason, Host: host, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tc := textproto.NewConn(conn)

	fail := func(reason FailReason, err error) error {
		_ = tc.PrintfLine("QUIT")
		return &SendError{Reason: reason, Host: host, Err: err}
	}

	if _, _, err := tc.ReadResponse(220); err != nil {
		return fail(FailUnknown, wrapReply("greeting", err))
	}

	if err := exchange(tc, 250, "HELO %s", c.HeloName); err != nil {
		return fail(FailUnknown, err)
	}

	if err := exchange(tc, 250, "MAIL FROM:<%s>", msg.Sender); err != nil {
		return fail(FailRejectedSender, err)
	}

	for _, rcpt := range msg.Recipients {
		if err := exchange(tc, 250, "RCPT TO:<%s>", rcpt); err != nil {
			return fail(rcptFailReason(err), err)
		}
	}

	if err := exchange(tc, 354, "DATA"); err != nil {
		return fail(FailUnknown, err)
	}

	// The stored payload carries its own terminator, so no dot-stuffing
	// or explicit end-of-data write happens here.
	if _, err := io.Copy(tc.Writer.W, msg.Payload); err != nil {
		return &SendError{Reason: FailUnknown, Host: host, Err: fmt.Errorf("streaming payload: %w", err)}
	}
	if err := tc.Writer.W.Flush(); err != nil {
		return &SendError{Reason: FailUnknown, Host: host, Err: fmt.Errorf("flushing payload: %w", err)}
	}

	if _, _, err := tc.ReadResponse(250); err != nil {
		return fail(FailUnknown, wrapReply("end of data", err))
	}

	// Best effort; the message has been accepted.
	if err := tc.PrintfLine("QUIT"); err == nil {
		_, _, _ = tc.ReadResponse(221)
	}

	return nil
}

// exchange sends one command and requires the given reply code.
func exchange(tc *textproto.Conn, want int, format string, args ...any) error {
	if err := tc.PrintfLine(format, args...); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}
	if _, _, err := tc.ReadResponse(want); err != nil {
		return wrapReply(fmt.Sprintf(format, args...), err)
	}
	return nil
}

// wrapReply converts a textproto reply error into an SMTPError carrying
// the remote status code.
func wrapReply(cmd string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return fmt.Errorf("%s: %w", cmd, &smtp.SMTPError{
			Code:    protoErr.Code,
			Message: protoErr.Msg,
		})
	}
	return fmt.Errorf("%s: %w", cmd, err)
}

// rcptFailReason maps a RCPT rejection to a failure class. Permanent
// user-unknown style codes become FailMailboxNotFound.
func rcptFailReason(err error) FailReason {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch smtpErr.Code {
		case 550, 551, 553:
			return FailMailboxNotFound
		}
	}
	return FailUnknown
}
