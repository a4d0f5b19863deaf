package pop3

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/infodancer/mailserv/internal/metrics"
)

// statCommand handles the STAT command: drop listing with message count and
// total size, excluding messages marked for deletion.
type statCommand struct{}

func (c *statCommand) Name() string {
	return "STAT"
}

func (c *statCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}

	return Response{
		OK:      true,
		Message: fmt.Sprintf("%d %d", sess.MessageCount(), sess.TotalSize()),
	}
}

// listCommand handles the LIST command, with or without a message number.
type listCommand struct{}

func (c *listCommand) Name() string {
	return "LIST"
}

func (c *listCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}

	if len(args) > 0 {
		msgNum, err := strconv.Atoi(args[0])
		if err != nil {
			return Response{OK: false, Message: "invalid message number"}
		}
		msg, err := sess.GetMessage(msgNum)
		if err != nil {
			return Response{OK: false, Message: err.Error()}
		}
		return Response{
			OK:      true,
			Message: fmt.Sprintf("%d %d", msgNum, msg.Size),
		}
	}

	lines := make([]string, 0)
	for _, m := range sess.AllMessages() {
		lines = append(lines, fmt.Sprintf("%d %d", m.MsgNum, m.Info.Size))
	}
	return Response{
		OK:       true,
		Message:  fmt.Sprintf("%d messages (%d octets)", sess.MessageCount(), sess.TotalSize()),
		Lines:    lines,
		hasLines: true,
	}
}

// retrCommand handles the RETR command, sending the stored message content.
type retrCommand struct {
	collector metrics.Collector
}

func (c *retrCommand) Name() string {
	return "RETR"
}

func (c *retrCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}
	if len(args) != 1 {
		return Response{OK: false, Message: "RETR requires a message number"}
	}

	msgNum, err := strconv.Atoi(args[0])
	if err != nil {
		return Response{OK: false, Message: "invalid message number"}
	}
	msg, err := sess.GetMessage(msgNum)
	if err != nil {
		return Response{OK: false, Message: err.Error()}
	}

	content, err := os.ReadFile(msg.Path)
	if err != nil {
		return Response{OK: false, Message: "unable to read message"}
	}

	c.collector.MessageRetrieved(int64(len(content)))
	// Message files already hold wire-form bytes; they are streamed back
	// without re-stuffing.
	return Response{
		OK:      true,
		Message: fmt.Sprintf("%d octets", len(content)),
		Raw:     content,
	}
}

// deleCommand handles the DELE command, marking a message for deletion.
type deleCommand struct{}

func (c *deleCommand) Name() string {
	return "DELE"
}

func (c *deleCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}
	if len(args) != 1 {
		return Response{OK: false, Message: "DELE requires a message number"}
	}

	msgNum, err := strconv.Atoi(args[0])
	if err != nil {
		return Response{OK: false, Message: "invalid message number"}
	}
	if err := sess.MarkDeleted(msgNum); err != nil {
		return Response{OK: false, Message: err.Error()}
	}
	return Response{OK: true, Message: fmt.Sprintf("message %d deleted", msgNum)}
}

// noopCommand handles the NOOP command.
type noopCommand struct{}

func (c *noopCommand) Name() string {
	return "NOOP"
}

func (c *noopCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}
	return Response{OK: true}
}

// rsetCommand handles the RSET command, clearing all deletion marks.
type rsetCommand struct{}

func (c *rsetCommand) Name() string {
	return "RSET"
}

func (c *rsetCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: false, Message: "command not valid in this state"}
	}

	sess.ResetDeletions()
	return Response{
		OK:      true,
		Message: fmt.Sprintf("maildrop has %d messages (%d octets)", sess.MessageCount(), sess.TotalSize()),
	}
}
