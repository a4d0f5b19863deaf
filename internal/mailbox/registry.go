// Package mailbox resolves addresses to local mailbox directories and
// implements the operations the server performs on them: enumeration,
// delivery, password lookup, and the POP3 session lock registry.
//
// A mailbox is a directory holding MSG-prefixed message files, NEW-prefixed
// in-progress files, and a userconf.txt with the account settings.
package mailbox

import (
	"os"
	"path/filepath"
	"strings"
)

// LookupResult classifies a registry lookup.
type LookupResult int

const (
	// Found means the domain is local and the mailbox directory exists.
	Found LookupResult = iota
	// DomainNotLocal means no configured domain matched.
	DomainNotLocal
	// NotFound means the domain is local but the mailbox does not exist.
	NotFound
)

// String returns a human-readable representation of the result.
func (r LookupResult) String() string {
	switch r {
	case Found:
		return "found"
	case DomainNotLocal:
		return "domain not local"
	case NotFound:
		return "mailbox not found"
	default:
		return "unknown"
	}
}

// DomainEntry maps one hosted domain to its mailbox root directory.
type DomainEntry struct {
	Domain string
	Root   string
}

// Registry resolves (domain, local part) pairs to mailbox directories.
// The filesystem is the source of truth; nothing is cached.
type Registry struct {
	entries []DomainEntry
}

// NewRegistry creates a registry over the given entries. Order matters: the
// first entry whose domain matches wins.
func NewRegistry(entries []DomainEntry) *Registry {
	return &Registry{entries: entries}
}

// Domains returns the configured domain names in registration order.
func (r *Registry) Domains() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Domain
	}
	return names
}

// Lookup resolves a mailbox to its directory. Domains compare
// case-insensitively; the local part is used verbatim as the subdirectory
// name. Local parts that would escape the mailbox root never match.
func (r *Registry) Lookup(domain, localPart string) (string, LookupResult) {
	var root string
	for _, e := range r.entries {
		if strings.EqualFold(e.Domain, domain) {
			root = e.Root
			break
		}
	}
	if root == "" {
		return "", DomainNotLocal
	}

	if localPart == "" || strings.ContainsAny(localPart, `/\`) || localPart == "." || localPart == ".." {
		return "", NotFound
	}

	path := filepath.Join(root, localPart)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", NotFound
	}
	return path, Found
}
