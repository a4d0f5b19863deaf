package pop3

import (
	"context"
	"crypto/subtle"
	"os"

	"github.com/infodancer/mailserv/internal/address"
	"github.com/infodancer/mailserv/internal/mailbox"
	"github.com/infodancer/mailserv/internal/metrics"
)

// NewRegistry creates a registry with the full POP3 command set.
func NewRegistry(mailboxes *mailbox.Registry, collector metrics.Collector) *Registry {
	r := &Registry{commands: make(map[string]Command)}
	r.register(&userCommand{mailboxes: mailboxes})
	r.register(&passCommand{collector: collector})
	r.register(&statCommand{})
	r.register(&listCommand{})
	r.register(&retrCommand{collector: collector})
	r.register(&deleCommand{})
	r.register(&noopCommand{})
	r.register(&rsetCommand{})
	r.register(&quitCommand{})
	return r
}

// userCommand handles the USER command. The argument is a full
// local@domain address resolved against the mailbox registry.
type userCommand struct {
	mailboxes *mailbox.Registry
}

func (c *userCommand) Name() string {
	return "USER"
}

func (c *userCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateAuthorization {
		return Response{OK: false, Message: "command not valid in this state"}
	}
	if len(args) != 1 {
		return Response{OK: false, Message: "USER requires a mailbox name"}
	}

	mb, err := address.ParseMailbox(args[0])
	if err != nil {
		return Response{OK: false, Message: "invalid mailbox name"}
	}

	dir, result := c.mailboxes.Lookup(mb.Domain, mb.LocalPart)
	if result != mailbox.Found {
		return Response{OK: false, Message: "no such mailbox here"}
	}

	sess.SetPendingUser(mb, dir)
	return Response{OK: true, Message: "mailbox exists, send PASS"}
}

// passCommand handles the PASS command: password check, maildrop lock, and
// the message snapshot that fixes numbering for the session.
type passCommand struct {
	collector metrics.Collector
}

func (c *passCommand) Name() string {
	return "PASS"
}

func (c *passCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateAuthorization {
		return Response{OK: false, Message: "command not valid in this state"}
	}
	user := sess.PendingUser()
	if user == nil {
		return Response{OK: false, Message: "send USER first"}
	}
	if len(args) != 1 {
		sess.ClearPending()
		return Response{OK: false, Message: "PASS requires a password"}
	}

	conf, err := mailbox.ReadUserConf(sess.PendingDir())
	if err != nil {
		c.collector.AuthAttempt(user.Domain, false)
		sess.ClearPending()
		return Response{OK: false, Message: "authentication failed"}
	}
	if subtle.ConstantTimeCompare([]byte(conf.Password), []byte(args[0])) != 1 {
		c.collector.AuthAttempt(user.Domain, false)
		sess.ClearPending()
		return Response{OK: false, Message: "authentication failed"}
	}

	if !sess.AcquireLock() {
		c.collector.AuthAttempt(user.Domain, false)
		sess.ClearPending()
		return Response{OK: false, Message: "mailbox already locked by another session"}
	}

	messages, err := mailbox.ListMessages(sess.PendingDir())
	if err != nil {
		c.collector.AuthAttempt(user.Domain, false)
		sess.ReleaseLock()
		sess.ClearPending()
		return Response{OK: false, Message: "unable to open maildrop"}
	}

	c.collector.AuthAttempt(user.Domain, true)
	sess.Authenticate(messages)
	return Response{OK: true, Message: "maildrop locked and ready"}
}

// quitCommand handles QUIT. From TRANSACTION it enters UPDATE: messages
// marked deleted are unlinked and the maildrop lock is released.
type quitCommand struct{}

func (c *quitCommand) Name() string {
	return "QUIT"
}

func (c *quitCommand) Execute(ctx context.Context, sess *Session, args []string) Response {
	if sess.State() != StateTransaction {
		return Response{OK: true, Message: "goodbye", Close: true}
	}

	sess.EnterUpdate()
	defer sess.ReleaseLock()

	failed := 0
	for _, path := range sess.DeletedMessages() {
		if err := os.Remove(path); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return Response{OK: false, Message: "some deleted messages not removed", Close: true}
	}
	return Response{OK: true, Message: "goodbye", Close: true}
}
