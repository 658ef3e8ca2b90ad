package remote

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/m-kis/merlya-sub001/internal/knowledge"
	"github.com/m-kis/merlya-sub001/internal/observability"
)

// StrategyMethod is how a target will be reached.
type StrategyMethod string

const (
	MethodDirect StrategyMethod = "direct"
	MethodJump   StrategyMethod = "jump"
)

// ConnectionStrategy is the plan for one connection attempt. Computed
// fresh per attempt; never persisted, since topology can change between
// calls.
type ConnectionStrategy struct {
	Method   StrategyMethod
	JumpHost string
}

// Planner decides whether a target is directly reachable or must be
// pivoted through a jump host. It probes TCP reachability first and only
// consults the routing table when the probe fails.
//
// The planner is stateless and safe to call repeatedly; it deliberately
// re-probes every time instead of caching reachability.
type Planner struct {
	routes       knowledge.RouteStore
	resolver     *Resolver
	port         int
	probeTimeout time.Duration
	logger       *observability.Logger

	// probe is swapped out in tests
	probe func(ctx context.Context, addr string, timeout time.Duration) bool
}

// NewPlanner creates a Planner. routes may be nil, in which case every
// unreachable target is still attempted directly.
func NewPlanner(routes knowledge.RouteStore, resolver *Resolver, port int, probeTimeout time.Duration, logger *observability.Logger) *Planner {
	if port <= 0 {
		port = 22
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Planner{
		routes:       routes,
		resolver:     resolver,
		port:         port,
		probeTimeout: probeTimeout,
		logger:       logger,
		probe:        probeTCP,
	}
}

// Strategy computes the connection strategy for a target. targetIP may be
// empty; it is resolved on demand for the route lookup. When no route
// matches an unreachable target, the strategy defaults to direct so the
// actual connection attempt fails with a clear error instead of the
// planner silently refusing.
func (p *Planner) Strategy(ctx context.Context, targetHost, targetIP string) ConnectionStrategy {
	addr := targetHost
	if targetIP != "" {
		addr = targetIP
	}

	if p.probe(ctx, net.JoinHostPort(addr, strconv.Itoa(p.port)), p.probeTimeout) {
		return ConnectionStrategy{Method: MethodDirect}
	}

	if p.routes != nil {
		if targetIP == "" && p.resolver != nil {
			targetIP = p.resolver.ResolveIP(ctx, targetHost)
		}
		if ip, err := netip.ParseAddr(targetIP); err == nil {
			if gateway, ok := p.routes.RouteForIP(ip); ok {
				if p.logger != nil {
					p.logger.Debug("routing through jump host",
						"target", targetHost, "ip", targetIP, "gateway", gateway)
				}
				return ConnectionStrategy{Method: MethodJump, JumpHost: gateway}
			}
		}
	}

	return ConnectionStrategy{Method: MethodDirect}
}

// probeTCP reports whether a TCP connection to addr succeeds within
// timeout. A successful probe is closed immediately.
func probeTCP(ctx context.Context, addr string, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
