package inventory

import (
	"fmt"
	"strings"
	"time"
)

// Host is an inventory record for a managed machine. Name is the canonical
// hostname: the stable identity used for connection pooling and circuit
// breaking regardless of whether callers reference the host by IP or name.
type Host struct {
	Name      string            `json:"name"`
	IPAddress string            `json:"ip_address,omitempty"`
	SSHPort   int               `json:"ssh_port"`
	SSHUser   string            `json:"ssh_user,omitempty"`
	KeyPath   string            `json:"key_path,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate checks that the host record is well-formed.
func (h *Host) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("host name is required")
	}
	if h.SSHPort < 0 || h.SSHPort > 65535 {
		return fmt.Errorf("invalid ssh port: %d", h.SSHPort)
	}
	return nil
}

// Port returns the SSH port, defaulting to 22 when unset.
func (h *Host) Port() int {
	if h.SSHPort > 0 {
		return h.SSHPort
	}
	return 22
}
