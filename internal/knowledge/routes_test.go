package knowledge

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRouteTable(t *testing.T) {
	path := writeRoutesFile(t, `
routes:
  - network: 10.1.0.0/16
    gateway: bastion
  - network: 10.1.5.0/24
    gateway: inner-bastion
`)

	table, err := LoadRouteTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Entries(), 2)
}

func TestRouteTable_LongestPrefixWins(t *testing.T) {
	path := writeRoutesFile(t, `
routes:
  - network: 10.1.0.0/16
    gateway: bastion
  - network: 10.1.5.0/24
    gateway: inner-bastion
`)

	table, err := LoadRouteTable(path)
	require.NoError(t, err)

	gw, ok := table.RouteForIP(netip.MustParseAddr("10.1.5.5"))
	require.True(t, ok)
	assert.Equal(t, "inner-bastion", gw)

	gw, ok = table.RouteForIP(netip.MustParseAddr("10.1.9.9"))
	require.True(t, ok)
	assert.Equal(t, "bastion", gw)

	_, ok = table.RouteForIP(netip.MustParseAddr("192.168.1.1"))
	assert.False(t, ok)
}

func TestLoadRouteTable_MissingFile(t *testing.T) {
	table, err := LoadRouteTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	_, ok := table.RouteForIP(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, ok)
}

func TestLoadRouteTable_EmptyPath(t *testing.T) {
	table, err := LoadRouteTable("")
	require.NoError(t, err)
	assert.Empty(t, table.Entries())
}

func TestRouteTable_Reload_InvalidCIDR(t *testing.T) {
	good := writeRoutesFile(t, `
routes:
  - network: 10.1.0.0/16
    gateway: bastion
`)
	table, err := LoadRouteTable(good)
	require.NoError(t, err)

	bad := writeRoutesFile(t, `
routes:
  - network: not-a-cidr
    gateway: bastion
`)
	err = table.Reload(bad)
	require.Error(t, err)

	// Existing routes survive a failed reload
	gw, ok := table.RouteForIP(netip.MustParseAddr("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, "bastion", gw)
}

func TestRouteTable_Reload_MissingGateway(t *testing.T) {
	path := writeRoutesFile(t, `
routes:
  - network: 10.1.0.0/16
`)
	_, err := LoadRouteTable(path)
	require.Error(t, err)
}

func TestRouteTable_Add(t *testing.T) {
	table := NewRouteTable()
	table.Add(netip.MustParsePrefix("10.0.0.0/8"), "outer")
	table.Add(netip.MustParsePrefix("10.2.0.0/16"), "inner")

	gw, ok := table.RouteForIP(netip.MustParseAddr("10.2.1.1"))
	require.True(t, ok)
	assert.Equal(t, "inner", gw)
}
