// Package pop3 implements the maildrop side of the mail server: a
// per-connection state machine serving locally delivered messages.
package pop3

import (
	"context"
	"fmt"
	"strings"
)

// Command represents a POP3 command that can be executed.
type Command interface {
	// Name returns the command name (e.g., "USER", "PASS", "QUIT").
	Name() string

	// Execute processes the command and returns a response.
	// The response should not include the +OK or -ERR prefix.
	Execute(ctx context.Context, sess *Session, args []string) Response
}

// Response represents a POP3 response to a command.
type Response struct {
	// OK indicates success (+OK) or failure (-ERR).
	OK bool

	// Message is the response message (without +OK/-ERR prefix).
	Message string

	// Lines contains server-generated multi-line data (for commands like
	// LIST). If present, it is byte-stuffed and sent after the status line,
	// terminated by ".".
	Lines []string

	// hasLines distinguishes an empty multi-line body from no body.
	hasLines bool

	// Raw contains stored message content (for RETR). It is already in
	// wire form and is sent verbatim after the status line, followed by
	// the CRLF.CRLF terminator.
	Raw []byte

	// Close signals the handler to end the connection after replying.
	Close bool
}

// String formats the response as a POP3 protocol string.
func (r Response) String() string {
	var sb strings.Builder

	if r.OK {
		sb.WriteString("+OK")
	} else {
		sb.WriteString("-ERR")
	}

	if r.Message != "" {
		sb.WriteString(" ")
		sb.WriteString(r.Message)
	}

	sb.WriteString("\r\n")

	switch {
	case r.Raw != nil:
		sb.Write(r.Raw)
		sb.WriteString("\r\n.\r\n")
	case r.hasLines || len(r.Lines) > 0:
		for _, line := range r.Lines {
			// Byte-stuff lines that start with "."
			if strings.HasPrefix(line, ".") {
				sb.WriteString(".")
			}
			sb.WriteString(line)
			sb.WriteString("\r\n")
		}
		sb.WriteString(".\r\n")
	}

	return sb.String()
}

// Registry maps command names to implementations.
type Registry struct {
	commands map[string]Command
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToUpper(name)]
	return cmd, ok
}

func (r *Registry) register(cmd Command) {
	r.commands[strings.ToUpper(cmd.Name())] = cmd
}

// ParseCommand parses a POP3 command line into command name and arguments.
func ParseCommand(line string) (string, []string, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	return strings.ToUpper(parts[0]), parts[1:], nil
}
