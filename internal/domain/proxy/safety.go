package proxy

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// SafetyPolicy decides which targets the proxy may reach.
type SafetyPolicy struct {
	// AllowPrivate permits RFC 1918 and link-local targets. Off in
	// production; tests against local fixtures turn it on.
	AllowPrivate bool

	// lookup resolves hostnames. Defaults to net.LookupHost.
	lookup func(host string) ([]string, error)
}

// NewSafetyPolicy builds a policy with the default resolver.
func NewSafetyPolicy(allowPrivate bool) *SafetyPolicy {
	return &SafetyPolicy{AllowPrivate: allowPrivate, lookup: net.LookupHost}
}

// Check validates that u is a safe absolute http/https target. Loopback
// and unspecified addresses are always refused; private and link-local
// ranges are refused unless AllowPrivate is set. Every resolved address
// of a hostname must pass.
func (p *SafetyPolicy) Check(u *url.URL) error {
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrInvalidTarget, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", ErrUnsafeTarget, host)
	}

	// Literal addresses are judged directly; hostnames are resolved and
	// every returned address must be acceptable.
	if addr, err := netip.ParseAddr(host); err == nil {
		return p.checkAddr(addr, host)
	}

	lookup := p.lookup
	if lookup == nil {
		lookup = net.LookupHost
	}
	addrs, err := lookup(host)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %v", ErrUnsafeTarget, host, err)
	}
	for _, a := range addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			return fmt.Errorf("%w: %s resolved to %q", ErrUnsafeTarget, host, a)
		}
		if err := p.checkAddr(addr, host); err != nil {
			return err
		}
	}
	return nil
}

func (p *SafetyPolicy) checkAddr(addr netip.Addr, host string) error {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsUnspecified() {
		return fmt.Errorf("%w: %s is loopback or unspecified", ErrUnsafeTarget, host)
	}
	if p.AllowPrivate {
		return nil
	}
	if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return fmt.Errorf("%w: %s is in a private range", ErrUnsafeTarget, host)
	}
	return nil
}
