// Package dns resolves the relay host for a recipient domain.
package dns

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
)

// ErrNoSuchHost is returned when neither MX nor address records exist for
// the domain.
var ErrNoSuchHost = errors.New("no such host")

// Resolver is the subset of net.Resolver used for relay lookups.
// Tests substitute a fake implementation.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Default returns the system resolver.
func Default() Resolver {
	return net.DefaultResolver
}

// LookupRelay returns the host mail for domain should be relayed to.
// The lowest-preference MX record wins; ties keep the first returned.
// A domain with no MX records falls back to its own address records.
// An address literal is returned as-is.
func LookupRelay(ctx context.Context, r Resolver, domain string) (string, error) {
	if net.ParseIP(domain) != nil {
		return domain, nil
	}

	mxs, err := r.LookupMX(ctx, domain)
	if err != nil && !isNotFound(err) {
		return "", err
	}
	if len(mxs) > 0 {
		sorted := make([]*net.MX, len(mxs))
		copy(sorted, mxs)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Pref < sorted[j].Pref
		})
		return strings.TrimSuffix(sorted[0].Host, "."), nil
	}

	// No MX records: deliver to the domain's own address records.
	addrs, err := r.LookupHost(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return "", ErrNoSuchHost
		}
		return "", err
	}
	if len(addrs) == 0 {
		return "", ErrNoSuchHost
	}
	return domain, nil
}

// isNotFound reports whether err indicates a nonexistent name rather than
// a resolver failure.
func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}
