package pop3

import (
	"errors"

	"github.com/infodancer/mailserv/internal/address"
	"github.com/infodancer/mailserv/internal/mailbox"
)

// Session errors.
var (
	ErrNoSuchMessage  = errors.New("no such message")
	ErrMessageDeleted = errors.New("message deleted")
)

// State represents the current state in the POP3 state machine.
type State int

const (
	// StateAuthorization is the initial state where authentication is required.
	StateAuthorization State = iota

	// StateTransaction is the state after successful authentication.
	StateTransaction

	// StateUpdate is the state after QUIT from Transaction.
	StateUpdate
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAuthorization:
		return "AUTHORIZATION"
	case StateTransaction:
		return "TRANSACTION"
	case StateUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Session represents a POP3 session with state tracking. The message list is
// a snapshot taken at authentication; numbering is 1-based and stable for
// the session's lifetime.
type Session struct {
	state State

	// Pending identity between USER and PASS.
	pendingUser *address.Mailbox
	pendingDir  string

	// Authenticated identity.
	user       address.Mailbox
	mailboxDir string

	locks    *mailbox.LockRegistry
	locked   bool
	lockedMb address.Mailbox

	messages []mailbox.MessageInfo
	deleted  map[int]bool
}

// NewSession creates a session in the AUTHORIZATION state.
func NewSession(locks *mailbox.LockRegistry) *Session {
	return &Session{
		state: StateAuthorization,
		locks: locks,
	}
}

// State returns the current POP3 state.
func (s *Session) State() State {
	return s.state
}

// SetPendingUser stores the identity given by USER until PASS arrives.
func (s *Session) SetPendingUser(mb address.Mailbox, dir string) {
	s.pendingUser = &mb
	s.pendingDir = dir
}

// PendingUser returns the identity stored by USER, or nil.
func (s *Session) PendingUser() *address.Mailbox {
	return s.pendingUser
}

// PendingDir returns the mailbox directory stored by USER.
func (s *Session) PendingDir() string {
	return s.pendingDir
}

// ClearPending drops the pending identity after a failed PASS.
func (s *Session) ClearPending() {
	s.pendingUser = nil
	s.pendingDir = ""
}

// AcquireLock attempts to take the maildrop lock for the pending user.
func (s *Session) AcquireLock() bool {
	if s.pendingUser == nil {
		return false
	}
	if !s.locks.Acquire(*s.pendingUser) {
		return false
	}
	s.locked = true
	s.lockedMb = *s.pendingUser
	return true
}

// ReleaseLock drops the maildrop lock if held. Safe to call repeatedly.
func (s *Session) ReleaseLock() {
	if s.locked {
		s.locks.Release(s.lockedMb)
		s.locked = false
	}
}

// Authenticate transitions to TRANSACTION with the given message snapshot.
func (s *Session) Authenticate(messages []mailbox.MessageInfo) {
	s.user = *s.pendingUser
	s.mailboxDir = s.pendingDir
	s.pendingUser = nil
	s.pendingDir = ""
	s.messages = messages
	s.deleted = make(map[int]bool)
	s.state = StateTransaction
}

// User returns the authenticated identity.
func (s *Session) User() address.Mailbox {
	return s.user
}

// EnterUpdate transitions to UPDATE. Only valid from TRANSACTION.
func (s *Session) EnterUpdate() {
	if s.state == StateTransaction {
		s.state = StateUpdate
	}
}

// MessageCount returns the count of non-deleted messages.
func (s *Session) MessageCount() int {
	count := 0
	for i := range s.messages {
		if !s.deleted[i+1] {
			count++
		}
	}
	return count
}

// TotalSize returns the total size of non-deleted messages in octets.
func (s *Session) TotalSize() int64 {
	var total int64
	for i, msg := range s.messages {
		if !s.deleted[i+1] {
			total += msg.Size
		}
	}
	return total
}

// GetMessage returns message info by 1-based message number.
func (s *Session) GetMessage(msgNum int) (*mailbox.MessageInfo, error) {
	if msgNum < 1 || msgNum > len(s.messages) {
		return nil, ErrNoSuchMessage
	}
	if s.deleted[msgNum] {
		return nil, ErrMessageDeleted
	}
	return &s.messages[msgNum-1], nil
}

// MarkDeleted marks a message for deletion by 1-based message number.
func (s *Session) MarkDeleted(msgNum int) error {
	if _, err := s.GetMessage(msgNum); err != nil {
		return err
	}
	s.deleted[msgNum] = true
	return nil
}

// ResetDeletions clears all deletion marks.
func (s *Session) ResetDeletions() {
	s.deleted = make(map[int]bool)
}

// DeletedMessages returns the paths of messages marked for deletion.
func (s *Session) DeletedMessages() []string {
	var paths []string
	for i, msg := range s.messages {
		if s.deleted[i+1] {
			paths = append(paths, msg.Path)
		}
	}
	return paths
}

// NumberedMessage pairs a 1-based message number with its info.
type NumberedMessage struct {
	MsgNum int
	Info   mailbox.MessageInfo
}

// AllMessages returns the non-deleted messages with their numbers.
func (s *Session) AllMessages() []NumberedMessage {
	var result []NumberedMessage
	for i, msg := range s.messages {
		if !s.deleted[i+1] {
			result = append(result, NumberedMessage{MsgNum: i + 1, Info: msg})
		}
	}
	return result
}
