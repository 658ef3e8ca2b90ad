package remote

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// sshConfigEntry holds the settings extracted from the user's SSH client
// config for one host.
type sshConfigEntry struct {
	User         string
	IdentityFile string
}

// lookupSSHConfig reads ~/.ssh/config and returns the User and
// IdentityFile for host. A missing or malformed file yields an empty
// entry.
func lookupSSHConfig(host string) sshConfigEntry {
	home, err := os.UserHomeDir()
	if err != nil {
		return sshConfigEntry{}
	}
	return loadSSHConfig(filepath.Join(home, ".ssh", "config"), host)
}

func loadSSHConfig(path, host string) sshConfigEntry {
	f, err := os.Open(path)
	if err != nil {
		return sshConfigEntry{}
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return sshConfigEntry{}
	}

	var entry sshConfigEntry
	if user, err := cfg.Get(host, "User"); err == nil {
		entry.User = user
	}
	if keyPath, err := cfg.Get(host, "IdentityFile"); err == nil && keyPath != "" {
		entry.IdentityFile = expandHome(keyPath)
	}
	return entry
}

// expandHome resolves a leading ~/ against the current user's home.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
