package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Authorizer controls incoming relay connections.
type Authorizer interface {
	Allow(ctx context.Context, remoteAddr string) error
}

type NoopAuthorizer struct{}

func (NoopAuthorizer) Allow(ctx context.Context, remoteAddr string) error {
	_ = ctx
	_ = remoteAddr
	return nil
}

// AllowlistAuthorizer allows only specific remote addresses. Entries may be
// exact host:port pairs, bare hosts or CIDR ranges.
type AllowlistAuthorizer struct {
	Allowed []string
}

func (a AllowlistAuthorizer) Allow(ctx context.Context, remoteAddr string) error {
	_ = ctx
	if len(a.Allowed) == 0 {
		return nil
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	for _, entry := range a.Allowed {
		if entry == remoteAddr || entry == host {
			return nil
		}
		if _, network, err := net.ParseCIDR(entry); err == nil && ip != nil && network.Contains(ip) {
			return nil
		}
	}
	return fmt.Errorf("remote address not allowed: %s", remoteAddr)
}

// originPolicy decides which browser origins may use the API and relay.
type originPolicy struct {
	allowAll bool
	allowed  map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.allowAll = true
		}
		if o != "" {
			p.allowed[o] = true
		}
	}
	if len(p.allowed) == 0 {
		p.allowAll = true
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	return p.allowAll || origin == "" || p.allowed[origin]
}

// checkRequest admits requests without an Origin header, which come from
// non-browser clients.
func (p originPolicy) checkRequest(r *http.Request) bool {
	return p.allows(r.Header.Get("Origin"))
}
