// Package knowledge stores long-lived operational facts the execution core
// consults at runtime. Currently that is the jump-host routing table:
// which bastion fronts which network segment.
package knowledge

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// RouteEntry maps a network segment to the bastion that fronts it.
type RouteEntry struct {
	Network netip.Prefix
	Gateway string
}

// RouteStore answers "which gateway reaches this IP". The connectivity
// planner consumes this interface.
type RouteStore interface {
	// RouteForIP returns the gateway hostname for the most specific
	// route containing ip, or ok=false when no route matches.
	RouteForIP(ip netip.Addr) (gateway string, ok bool)
}

// routeFile is the YAML layout of the routing table file.
type routeFile struct {
	Routes []routeFileEntry `yaml:"routes"`
}

type routeFileEntry struct {
	Network string `yaml:"network"`
	Gateway string `yaml:"gateway"`
}

// RouteTable is an in-memory routing table loaded from a YAML file.
// Lookups are longest-prefix matches. The table can be reloaded at
// runtime; readers and reloaders may run concurrently.
type RouteTable struct {
	mu     sync.RWMutex
	routes []RouteEntry
}

// NewRouteTable creates an empty routing table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// LoadRouteTable reads the routing table from the YAML file at path.
// A missing file yields an empty table; an unreadable or malformed file
// is an error.
func LoadRouteTable(path string) (*RouteTable, error) {
	table := NewRouteTable()
	if path == "" {
		return table, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return table, nil
	}
	if err := table.Reload(path); err != nil {
		return nil, err
	}
	return table, nil
}

// Reload replaces the table contents from the YAML file at path.
// The existing table is untouched on error.
func (t *RouteTable) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.WrapError(types.ROUTES_LOAD_FAILED, "failed to read routes file", err)
	}

	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return types.WrapError(types.ROUTES_PARSE_FAILED, "failed to parse routes file", err)
	}

	routes := make([]RouteEntry, 0, len(file.Routes))
	for i, entry := range file.Routes {
		prefix, err := netip.ParsePrefix(entry.Network)
		if err != nil {
			return types.WrapError(types.ROUTES_PARSE_FAILED,
				fmt.Sprintf("invalid network %q at routes[%d]", entry.Network, i), err)
		}
		if entry.Gateway == "" {
			return types.NewError(types.ROUTES_PARSE_FAILED,
				fmt.Sprintf("missing gateway for network %q at routes[%d]", entry.Network, i))
		}
		routes = append(routes, RouteEntry{Network: prefix.Masked(), Gateway: entry.Gateway})
	}

	// Most specific first so lookup can return the first hit
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Network.Bits() > routes[j].Network.Bits()
	})

	t.mu.Lock()
	t.routes = routes
	t.mu.Unlock()
	return nil
}

// Add inserts a route, keeping most-specific-first order.
func (t *RouteTable) Add(network netip.Prefix, gateway string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes = append(t.routes, RouteEntry{Network: network.Masked(), Gateway: gateway})
	sort.SliceStable(t.routes, func(i, j int) bool {
		return t.routes[i].Network.Bits() > t.routes[j].Network.Bits()
	})
}

// RouteForIP returns the gateway for the most specific route containing ip.
func (t *RouteTable) RouteForIP(ip netip.Addr) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, route := range t.routes {
		if route.Network.Contains(ip) {
			return route.Gateway, true
		}
	}
	return "", false
}

// Entries returns a copy of the table for diagnostics output.
func (t *RouteTable) Entries() []RouteEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]RouteEntry, len(t.routes))
	copy(entries, t.routes)
	return entries
}

// Ensure RouteTable implements RouteStore at compile time
var _ RouteStore = (*RouteTable)(nil)
