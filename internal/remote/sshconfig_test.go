package remote

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSSHConfig_ExactHost(t *testing.T) {
	path := writeSSHConfig(t, `
Host db-prod-01
    User deploy
    IdentityFile /keys/db
`)

	entry := loadSSHConfig(path, "db-prod-01")
	assert.Equal(t, "deploy", entry.User)
	assert.Equal(t, "/keys/db", entry.IdentityFile)
}

func TestLoadSSHConfig_GlobPattern(t *testing.T) {
	path := writeSSHConfig(t, `
Host *.internal
    User ops

Host bastion-*
    User jump
`)

	assert.Equal(t, "ops", loadSSHConfig(path, "cache-03.internal").User)
	assert.Equal(t, "jump", loadSSHConfig(path, "bastion-par").User)
	assert.Empty(t, loadSSHConfig(path, "standalone").User)
}

func TestLoadSSHConfig_FirstValueWins(t *testing.T) {
	path := writeSSHConfig(t, `
Host db-*
    User deploy

Host *
    User fallback
    IdentityFile /keys/default
`)

	entry := loadSSHConfig(path, "db-prod-01")
	assert.Equal(t, "deploy", entry.User)
	assert.Equal(t, "/keys/default", entry.IdentityFile)
}

func TestLoadSSHConfig_NegatedPattern(t *testing.T) {
	path := writeSSHConfig(t, `
Host * !bastion-*
    User ops
`)

	assert.Equal(t, "ops", loadSSHConfig(path, "web-01").User)
	assert.Empty(t, loadSSHConfig(path, "bastion-par").User)
}

func TestLoadSSHConfig_CommentsAndEquals(t *testing.T) {
	path := writeSSHConfig(t, `
# fleet access
Host db-prod-01
    User = deploy
`)

	assert.Equal(t, "deploy", loadSSHConfig(path, "db-prod-01").User)
}

func TestLoadSSHConfig_IdentityFileTildeExpanded(t *testing.T) {
	path := writeSSHConfig(t, `
Host db-prod-01
    IdentityFile ~/keys/db
`)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "keys", "db"),
		loadSSHConfig(path, "db-prod-01").IdentityFile)
}

func TestLoadSSHConfig_MissingFile(t *testing.T) {
	entry := loadSSHConfig(filepath.Join(t.TempDir(), "absent"), "any")
	assert.Empty(t, entry.User)
	assert.Empty(t, entry.IdentityFile)
}
