package inventory

import "context"

// HostStore provides access to the host inventory. The resolver and the
// credential chain consume this interface; the SQLite implementation below
// is what the CLI wires in, but tests and the agent layer may substitute
// their own.
type HostStore interface {
	// GetByName returns the host with the given canonical name, or nil
	// if no such host exists. Lookup misses are not errors.
	GetByName(ctx context.Context, name string) (*Host, error)

	// GetByIP returns the host whose recorded IP address matches, or nil.
	// Used to map raw IPs back to canonical hostnames so that pool and
	// breaker keys never fragment.
	GetByIP(ctx context.Context, ip string) (*Host, error)

	// List returns all hosts ordered by name.
	List(ctx context.Context) ([]*Host, error)

	// Upsert inserts or replaces a host record by name.
	Upsert(ctx context.Context, host *Host) error

	// Delete removes a host by name. Deleting a missing host is a no-op.
	Delete(ctx context.Context, name string) error
}
