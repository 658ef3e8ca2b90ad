package remote

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/m-kis/merlya-sub001/internal/inventory"
	"github.com/m-kis/merlya-sub001/internal/observability"
)

// Source records where a host resolution came from.
type Source string

const (
	SourceInventory Source = "inventory"
	SourceDNS       Source = "dns"
	SourceNone      Source = "none"
)

// ResolvedHost is the outcome of resolving a hostname or IP reference.
//
// CanonicalName is the stable identity used for pooling and circuit
// breaking regardless of the identifier the caller passed. ConnectAddress
// is what gets dialed: the IP when one is known, otherwise the hostname
// so the OS resolver can make a final attempt.
type ResolvedHost struct {
	CanonicalName string
	IPAddress     string
	Source        Source
	SSHPort       int
	SSHUser       string
	KeyPath       string
}

// ConnectAddress returns the host:port address to dial.
func (r ResolvedHost) ConnectAddress() string {
	host := r.CanonicalName
	if r.IPAddress != "" {
		host = r.IPAddress
	}
	return net.JoinHostPort(host, strconv.Itoa(r.Port()))
}

// Port returns the SSH port, defaulting to 22 when unset.
func (r ResolvedHost) Port() int {
	if r.SSHPort > 0 {
		return r.SSHPort
	}
	return 22
}

// Resolver resolves host references against the inventory first, then
// DNS. Resolution never fails: when both sources miss, the bare input is
// returned and the eventual dial lets the OS resolver try once more.
// Resolution is idempotent and side-effect-free apart from logging.
type Resolver struct {
	store      inventory.HostStore
	dnsTimeout time.Duration
	logger     *observability.Logger

	// lookupIP is swapped out in tests
	lookupIP func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewResolver creates a Resolver backed by the given inventory store.
// store may be nil, in which case only DNS is consulted.
func NewResolver(store inventory.HostStore, dnsTimeout time.Duration, logger *observability.Logger) *Resolver {
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}
	return &Resolver{
		store:      store,
		dnsTimeout: dnsTimeout,
		logger:     logger,
		lookupIP: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		},
	}
}

// Resolve resolves a hostname or IP to its canonical identity plus SSH
// metadata. Inventory wins over DNS even when the stored IP is stale;
// the inventory is the operator's statement of intent.
func (r *Resolver) Resolve(ctx context.Context, hostname string) ResolvedHost {
	// An IP reference is mapped back to its inventory hostname when
	// possible so pool and breaker keys never fragment.
	if ip := net.ParseIP(hostname); ip != nil {
		if host := r.hostByIP(ctx, hostname); host != nil {
			return resolvedFromInventory(host)
		}
		return ResolvedHost{
			CanonicalName: hostname,
			IPAddress:     hostname,
			Source:        SourceNone,
		}
	}

	if host := r.hostByName(ctx, hostname); host != nil {
		return resolvedFromInventory(host)
	}

	if ip := r.resolveDNS(ctx, hostname); ip != "" {
		return ResolvedHost{
			CanonicalName: hostname,
			IPAddress:     ip,
			Source:        SourceDNS,
		}
	}

	// Both sources missed; hand the bare name to the dialer.
	return ResolvedHost{
		CanonicalName: hostname,
		Source:        SourceNone,
	}
}

// CanonicalHostname maps an IP or hostname to its inventory-preferred
// name. Used by callers that mix IP and hostname references to the same
// machine; falls back to the input unchanged.
func (r *Resolver) CanonicalHostname(ctx context.Context, ipOrHost string) string {
	if net.ParseIP(ipOrHost) != nil {
		if host := r.hostByIP(ctx, ipOrHost); host != nil {
			return host.Name
		}
		return ipOrHost
	}
	if host := r.hostByName(ctx, ipOrHost); host != nil {
		return host.Name
	}
	return ipOrHost
}

// ResolveIP returns the best-known IP for the host, or "" if none can be
// determined. Used by the connectivity planner for route lookups.
func (r *Resolver) ResolveIP(ctx context.Context, hostname string) string {
	if net.ParseIP(hostname) != nil {
		return hostname
	}
	if host := r.hostByName(ctx, hostname); host != nil && host.IPAddress != "" {
		return host.IPAddress
	}
	return r.resolveDNS(ctx, hostname)
}

func (r *Resolver) hostByName(ctx context.Context, name string) *inventory.Host {
	if r.store == nil {
		return nil
	}
	host, err := r.store.GetByName(ctx, name)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("inventory lookup failed", "host", name, "error", err)
		}
		return nil
	}
	return host
}

func (r *Resolver) hostByIP(ctx context.Context, ip string) *inventory.Host {
	if r.store == nil {
		return nil
	}
	host, err := r.store.GetByIP(ctx, ip)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("inventory reverse lookup failed", "ip", ip, "error", err)
		}
		return nil
	}
	return host
}

// resolveDNS performs a bounded forward lookup. Failures are swallowed
// and logged at debug level; resolution degrades, it never raises.
func (r *Resolver) resolveDNS(ctx context.Context, hostname string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, r.dnsTimeout)
	defer cancel()

	addrs, err := r.lookupIP(lookupCtx, hostname)
	if err != nil || len(addrs) == 0 {
		if r.logger != nil {
			r.logger.Debug("dns resolution failed", "host", hostname, "error", err)
		}
		return ""
	}
	return addrs[0].IP.String()
}

func resolvedFromInventory(host *inventory.Host) ResolvedHost {
	return ResolvedHost{
		CanonicalName: host.Name,
		IPAddress:     host.IPAddress,
		Source:        SourceInventory,
		SSHPort:       host.Port(),
		SSHUser:       host.SSHUser,
		KeyPath:       host.KeyPath,
	}
}
