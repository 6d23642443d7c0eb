// Package netsafe validates user-supplied URLs before the service fetches
// them. It resolves the hostname once and classifies the result so the
// fetcher can connect to exactly the validated address, closing the window
// a DNS-rebinding attack needs between check-time and use-time.
package netsafe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"

	"por-go/internal/por"
)

// LookupFunc resolves a hostname to addresses. It matches
// net.Resolver.LookupNetIP with the network fixed to "ip".
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver resolves and validates the target address of a submission URL.
type Resolver struct {
	allowPrivate bool
	lookup       LookupFunc
}

// NewResolver creates a Resolver. allowPrivate disables the public-address
// requirement; it exists for development and test environments only.
func NewResolver(allowPrivate bool) *Resolver {
	return &Resolver{
		allowPrivate: allowPrivate,
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// NewResolverWithLookup creates a Resolver with a custom lookup function,
// for tests that must not touch real DNS.
func NewResolverWithLookup(allowPrivate bool, lookup LookupFunc) *Resolver {
	return &Resolver{allowPrivate: allowPrivate, lookup: lookup}
}

// Resolve validates the URL's scheme and port, performs a single DNS lookup,
// and rejects addresses that are not routable public unicast. The returned
// address must be pinned by the caller for the actual connection.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (netip.Addr, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", por.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return netip.Addr{}, fmt.Errorf("%w: unsupported scheme %q", por.ErrInvalidInput, u.Scheme)
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return netip.Addr{}, fmt.Errorf("%w: invalid port %q", por.ErrInvalidInput, p)
		}
	}
	host := u.Hostname()
	if host == "" {
		return netip.Addr{}, fmt.Errorf("%w: missing host", por.ErrInvalidInput)
	}

	addr, err := r.resolveHost(ctx, host)
	if err != nil {
		return netip.Addr{}, err
	}

	if !r.allowPrivate && !isPublicUnicast(addr) {
		return netip.Addr{}, fmt.Errorf("%w: %s resolves to %s", por.ErrForbiddenAddress, host, addr)
	}

	return addr, nil
}

func (r *Resolver) resolveHost(ctx context.Context, host string) (netip.Addr, error) {
	// Literal addresses skip DNS entirely.
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: resolving %s: %v", por.ErrFetch, host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: no addresses for %s", por.ErrFetch, host)
	}
	return addrs[0].Unmap(), nil
}

// isPublicUnicast reports whether addr is a routable public unicast address.
// Loopback, private, link-local, multicast, and unspecified ranges are all
// off-limits for fetches.
func isPublicUnicast(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return false
	}
	return true
}
