// Package smtp implements the reception side of the mail server: a
// per-connection state machine that accepts transactions and materialises
// them as spool files.
package smtp

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/infodancer/mailserv/internal/address"
	"github.com/infodancer/mailserv/internal/mailbox"
)

// ErrUnknownCommand is returned by the registry when no command matches.
var ErrUnknownCommand = errors.New("unknown command")

// Session holds the state of one SMTP transaction in progress.
type Session struct {
	helo       string
	sender     *address.Mailbox
	recipients []address.Mailbox
	inData     bool
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{}
}

// SetHelo records the client's HELO/EHLO argument.
func (s *Session) SetHelo(domain string) {
	s.helo = domain
}

// Helo returns the client's HELO/EHLO argument.
func (s *Session) Helo() string {
	return s.helo
}

// SetSender sets the envelope sender, replacing any previous one.
func (s *Session) SetSender(mb address.Mailbox) {
	s.sender = &mb
}

// Sender returns the envelope sender, or nil before MAIL.
func (s *Session) Sender() *address.Mailbox {
	return s.sender
}

// AddRecipient appends a validated recipient to the envelope.
func (s *Session) AddRecipient(mb address.Mailbox) {
	s.recipients = append(s.recipients, mb)
}

// Recipients returns a copy of the envelope recipients.
func (s *Session) Recipients() []address.Mailbox {
	result := make([]address.Mailbox, len(s.recipients))
	copy(result, s.recipients)
	return result
}

// InData reports whether the session is collecting message content.
func (s *Session) InData() bool {
	return s.inData
}

// SetInData flips the DATA collection flag.
func (s *Session) SetInData(v bool) {
	s.inData = v
}

// Reset clears the transaction. The HELO name survives.
func (s *Session) Reset() {
	s.sender = nil
	s.recipients = nil
	s.inData = false
}

// Result is the reply produced by a command. An empty Message selects the
// standard text for the code.
type Result struct {
	Code    int
	Message string
}

// Command is one SMTP verb matched by a regexp pattern.
type Command interface {
	// Pattern returns the compiled regexp for matching this command.
	Pattern() *regexp.Regexp

	// Execute processes the command. matches[0] is the full line,
	// matches[1:] are capture groups.
	Execute(ctx context.Context, session *Session, matches []string) Result
}

// Registry holds registered commands and matches input against them.
type Registry struct {
	commands []Command
}

// NewRegistry creates a registry with the full reception command set.
func NewRegistry(hostname string, mailboxes *mailbox.Registry) *Registry {
	return &Registry{
		commands: []Command{
			&heloCommand{},
			&ehloCommand{},
			&mailCommand{},
			&rcptCommand{mailboxes: mailboxes},
			&dataCommand{},
			&rsetCommand{},
			&noopCommand{},
			&vrfyCommand{},
			&quitCommand{hostname: hostname},
		},
	}
}

// Match finds the command matching the input line.
func (r *Registry) Match(line string) (Command, []string, error) {
	for _, cmd := range r.commands {
		if matches := cmd.Pattern().FindStringSubmatch(line); matches != nil {
			return cmd, matches, nil
		}
	}
	return nil, nil, ErrUnknownCommand
}

var (
	heloPattern = regexp.MustCompile(`(?i)^HELO(?:\s+(\S+))?\s*$`)
	ehloPattern = regexp.MustCompile(`(?i)^EHLO(?:\s+(\S+))?\s*$`)
	mailPattern = regexp.MustCompile(`(?i)^MAIL\s+FROM\s*:\s*(\S*)\s*$`)
	rcptPattern = regexp.MustCompile(`(?i)^RCPT\s+TO\s*:\s*(\S*)\s*$`)
	dataPattern = regexp.MustCompile(`(?i)^DATA\s*$`)
	rsetPattern = regexp.MustCompile(`(?i)^RSET\s*$`)
	noopPattern = regexp.MustCompile(`(?i)^NOOP(?:\s.*)?$`)
	vrfyPattern = regexp.MustCompile(`(?i)^VRFY(?:\s.*)?$`)
	quitPattern = regexp.MustCompile(`(?i)^QUIT\s*$`)
)

// heloCommand never fails; the argument is recorded but not verified.
type heloCommand struct{}

func (c *heloCommand) Pattern() *regexp.Regexp {
	return heloPattern
}

func (c *heloCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	session.SetHelo(matches[1])
	return Result{Code: 250}
}

// ehloCommand accepts EHLO without advertising any extensions.
type ehloCommand struct{}

func (c *ehloCommand) Pattern() *regexp.Regexp {
	return ehloPattern
}

func (c *ehloCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	session.SetHelo(matches[1])
	return Result{Code: 250}
}

type mailCommand struct{}

func (c *mailCommand) Pattern() *regexp.Regexp {
	return mailPattern
}

func (c *mailCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	mb, err := address.ParsePath(matches[1])
	if err != nil {
		return pathErrorResult(err)
	}

	session.SetSender(mb)
	return Result{Code: 250}
}

type rcptCommand struct {
	mailboxes *mailbox.Registry
}

func (c *rcptCommand) Pattern() *regexp.Regexp {
	return rcptPattern
}

func (c *rcptCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	if session.Sender() == nil {
		return Result{Code: 503}
	}

	mb, err := address.ParsePath(matches[1])
	if err != nil {
		return pathErrorResult(err)
	}

	if _, result := c.mailboxes.Lookup(mb.Domain, mb.LocalPart); result == mailbox.NotFound {
		return Result{Code: 550}
	}

	session.AddRecipient(mb)
	return Result{Code: 250}
}

// dataCommand validates the transaction; the handler collects the content
// when it sees the 354 reply.
type dataCommand struct{}

func (c *dataCommand) Pattern() *regexp.Regexp {
	return dataPattern
}

func (c *dataCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	if session.Sender() == nil {
		return Result{Code: 503}
	}
	if len(session.Recipients()) == 0 {
		return Result{Code: 554, Message: "No valid recipients"}
	}

	session.SetInData(true)
	return Result{Code: 354}
}

type rsetCommand struct{}

func (c *rsetCommand) Pattern() *regexp.Regexp {
	return rsetPattern
}

func (c *rsetCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	session.Reset()
	return Result{Code: 250}
}

type noopCommand struct{}

func (c *noopCommand) Pattern() *regexp.Regexp {
	return noopPattern
}

func (c *noopCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	return Result{Code: 250}
}

type vrfyCommand struct{}

func (c *vrfyCommand) Pattern() *regexp.Regexp {
	return vrfyPattern
}

func (c *vrfyCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	return Result{Code: 502}
}

type quitCommand struct {
	hostname string
}

func (c *quitCommand) Pattern() *regexp.Regexp {
	return quitPattern
}

func (c *quitCommand) Execute(ctx context.Context, session *Session, matches []string) Result {
	return Result{Code: 221, Message: c.hostname + " Service closing transmission channel"}
}

// pathErrorResult maps a path parse error to the reply code: 501 for a
// missing angle-bracket frame, 553 for a bad mailbox inside it.
func pathErrorResult(err error) Result {
	if errors.Is(err, address.ErrBadPath) {
		return Result{Code: 501}
	}
	return Result{Code: 553}
}

// defaultText returns the standard reply text for an SMTP code.
func defaultText(code int) string {
	switch code {
	case 221:
		return "Service closing transmission channel"
	case 250:
		return "Requested mail action okay, completed"
	case 354:
		return "Start mail input; end with <CRLF>.<CRLF>"
	case 451:
		return "Requested action aborted: local error in processing"
	case 452:
		return "Requested action not taken: insufficient system storage"
	case 500:
		return "Syntax error, command unrecognized"
	case 501:
		return "Syntax error in parameters or arguments"
	case 502:
		return "Command not implemented"
	case 503:
		return "Bad sequence of commands"
	case 550:
		return "Requested action not taken: mailbox unavailable"
	case 553:
		return "Requested action not taken: mailbox name not allowed"
	case 554:
		return "Transaction failed"
	default:
		return ""
	}
}

// commandName extracts the verb from a command line for metrics labels.
func commandName(line string) string {
	line = strings.ToUpper(line)
	if idx := strings.Index(line, " "); idx > 0 {
		return line[:idx]
	}
	return line
}
