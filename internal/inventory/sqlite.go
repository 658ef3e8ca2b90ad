package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/m-kis/merlya-sub001/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS hosts (
	name       TEXT PRIMARY KEY,
	ip_address TEXT,
	ssh_port   INTEGER NOT NULL DEFAULT 22,
	ssh_user   TEXT,
	key_path   TEXT,
	tags       TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hosts_ip ON hosts(ip_address);
`

// SQLiteStore is a HostStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if necessary) the inventory database
// at the given path. WAL mode improves concurrency between the REPL and
// background maintenance.
func OpenSQLiteStore(path string, walMode bool, busyTimeout time.Duration) (*SQLiteStore, error) {
	journal := "DELETE"
	if walMode {
		journal = "WAL"
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=%s&_foreign_keys=on&_busy_timeout=%d",
		path, journal, int(busyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.INVENTORY_OPEN_FAILED, "failed to open inventory database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, types.WrapError(types.INVENTORY_OPEN_FAILED, "failed to ping inventory database", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, types.WrapError(types.INVENTORY_OPEN_FAILED, "failed to create inventory schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetByName returns the host with the given canonical name, or nil.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*Host, error) {
	query := `
		SELECT name, ip_address, ssh_port, ssh_user, key_path, tags, created_at, updated_at
		FROM hosts
		WHERE name = ?
	`
	return s.scanHost(s.db.QueryRowContext(ctx, query, name))
}

// GetByIP returns the host whose recorded IP address matches, or nil.
func (s *SQLiteStore) GetByIP(ctx context.Context, ip string) (*Host, error) {
	query := `
		SELECT name, ip_address, ssh_port, ssh_user, key_path, tags, created_at, updated_at
		FROM hosts
		WHERE ip_address = ?
		ORDER BY name
		LIMIT 1
	`
	return s.scanHost(s.db.QueryRowContext(ctx, query, ip))
}

// List returns all hosts ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]*Host, error) {
	query := `
		SELECT name, ip_address, ssh_port, ssh_user, key_path, tags, created_at, updated_at
		FROM hosts
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to list hosts", err)
	}
	defer rows.Close()

	var hosts []*Host
	for rows.Next() {
		host, err := s.scanHostRow(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to iterate hosts", err)
	}
	return hosts, nil
}

// Upsert inserts or replaces a host record by name.
func (s *SQLiteStore) Upsert(ctx context.Context, host *Host) error {
	if err := host.Validate(); err != nil {
		return types.WrapError(types.HOST_INVALID, "validation failed", err)
	}

	tagsJSON, err := json.Marshal(host.Tags)
	if err != nil {
		return types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to marshal tags", err)
	}

	now := time.Now().UTC()
	if host.CreatedAt.IsZero() {
		host.CreatedAt = now
	}
	host.UpdatedAt = now

	query := `
		INSERT INTO hosts (name, ip_address, ssh_port, ssh_user, key_path, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ip_address = excluded.ip_address,
			ssh_port   = excluded.ssh_port,
			ssh_user   = excluded.ssh_user,
			key_path   = excluded.key_path,
			tags       = excluded.tags,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		host.Name,
		host.IPAddress,
		host.Port(),
		host.SSHUser,
		host.KeyPath,
		string(tagsJSON),
		host.CreatedAt,
		host.UpdatedAt,
	)
	if err != nil {
		return types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to upsert host", err)
	}
	return nil
}

// Delete removes a host by name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hosts WHERE name = ?`, name)
	if err != nil {
		return types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to delete host", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanHost(row *sql.Row) (*Host, error) {
	host, err := s.scanHostRow(row)
	if err != nil {
		var merlyaErr *types.MerlyaError
		if errors.As(err, &merlyaErr) && merlyaErr.Code == types.HOST_NOT_FOUND {
			return nil, nil
		}
		return nil, err
	}
	return host, nil
}

func (s *SQLiteStore) scanHostRow(row rowScanner) (*Host, error) {
	var host Host
	var ipAddress, sshUser, keyPath sql.NullString
	var tagsJSON string

	err := row.Scan(
		&host.Name,
		&ipAddress,
		&host.SSHPort,
		&sshUser,
		&keyPath,
		&tagsJSON,
		&host.CreatedAt,
		&host.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.HOST_NOT_FOUND, "host not found")
	}
	if err != nil {
		return nil, types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to scan host", err)
	}

	host.IPAddress = ipAddress.String
	host.SSHUser = sshUser.String
	host.KeyPath = keyPath.String

	if err := json.Unmarshal([]byte(tagsJSON), &host.Tags); err != nil {
		return nil, types.WrapError(types.INVENTORY_QUERY_FAILED, "failed to unmarshal tags", err)
	}

	return &host, nil
}

// Ensure SQLiteStore implements HostStore at compile time
var _ HostStore = (*SQLiteStore)(nil)
