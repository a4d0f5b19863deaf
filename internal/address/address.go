// Package address implements mailbox addresses and the RFC 2821 path syntax
// subset accepted by the server.
package address

import (
	"errors"
	"strings"
)

// Parse errors.
var (
	ErrBadPath      = errors.New("malformed path")
	ErrBadMailbox   = errors.New("malformed mailbox")
	ErrBadLocalPart = errors.New("malformed local part")
	ErrBadDomain    = errors.New("malformed domain")
)

// Mailbox identifies a single mailbox. Domains compare case-insensitively,
// local parts case-sensitively.
type Mailbox struct {
	LocalPart string
	Domain    string
}

// String returns the local@domain form.
func (m Mailbox) String() string {
	return m.LocalPart + "@" + m.Domain
}

// Key returns the canonical form used by the lock registry, where the whole
// address compares case-insensitively.
func (m Mailbox) Key() string {
	return strings.ToLower(m.LocalPart + "@" + m.Domain)
}

// Equal reports whether two mailboxes identify the same mailbox:
// case-sensitive on local part, case-insensitive on domain.
func (m Mailbox) Equal(other Mailbox) bool {
	return m.LocalPart == other.LocalPart && strings.EqualFold(m.Domain, other.Domain)
}

// ParsePath parses the <path> argument of MAIL FROM and RCPT TO.
// The angle brackets are required. An optional source route
// ("@relay1,@relay2:") before the mailbox is accepted and discarded.
func ParsePath(path string) (Mailbox, error) {
	if len(path) < 2 || path[0] != '<' || path[len(path)-1] != '>' {
		return Mailbox{}, ErrBadPath
	}
	inner := path[1 : len(path)-1]

	// Strip the source route. Only the part after the last ':' outside the
	// local part matters; routes never contain quoted strings so a plain
	// index is enough unless the local part is quoted.
	if !strings.HasPrefix(inner, `"`) {
		if i := strings.LastIndex(inner, ":"); i >= 0 {
			inner = inner[i+1:]
		}
	}

	return ParseMailbox(inner)
}

// ParseMailbox parses a bare local@domain mailbox, validating both halves.
func ParseMailbox(s string) (Mailbox, error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return Mailbox{}, ErrBadMailbox
	}

	local := s[:at]
	domain := s[at+1:]

	if !ValidLocalPart(local) {
		return Mailbox{}, ErrBadLocalPart
	}
	if !ValidDomain(domain) {
		return Mailbox{}, ErrBadDomain
	}

	return Mailbox{LocalPart: local, Domain: domain}, nil
}

// ValidLocalPart reports whether s is an acceptable local part: a dot-atom of
// alphanumerics (no empty atoms) or a double-quoted string.
func ValidLocalPart(s string) bool {
	if s == "" {
		return false
	}

	if s[0] == '"' {
		return validQuotedString(s)
	}

	for _, atom := range strings.Split(s, ".") {
		if atom == "" {
			return false
		}
		for _, r := range atom {
			if !isAlnum(r) {
				return false
			}
		}
	}
	return true
}

// ValidDomain reports whether s is an acceptable domain: a dot-separated
// sequence of alphanumeric-or-hyphen labels not starting with '.' or '-',
// or an IPv4 address literal.
func ValidDomain(s string) bool {
	if s == "" {
		return false
	}

	if isIPv4Literal(s) {
		return true
	}

	for _, label := range strings.Split(s, ".") {
		if label == "" || label[0] == '-' {
			return false
		}
		for _, r := range label {
			if !isAlnum(r) && r != '-' {
				return false
			}
		}
	}
	return true
}

// validQuotedString accepts a double-quoted local part. Backslash escapes the
// next character; bare CR, LF and '"' are not allowed inside.
func validQuotedString(s string) bool {
	if len(s) < 3 || s[0] != '"' || s[len(s)-1] != '"' {
		return false
	}

	escaped := false
	for i := 1; i < len(s)-1; i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"', '\r', '\n':
			return false
		}
	}
	return !escaped
}

// isIPv4Literal reports whether s is four decimal octets in 0-255.
func isIPv4Literal(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		if o == "" || len(o) > 3 {
			return false
		}
		n := 0
		for _, r := range o {
			if r < '0' || r > '9' {
				return false
			}
			n = n*10 + int(r-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
