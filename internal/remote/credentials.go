package remote

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// Credentials is the resolved authentication material for one connection.
// Source records which link in the priority chain supplied the values,
// for diagnostics only; credential values themselves are never logged.
type Credentials struct {
	User       string
	KeyPath    string
	Passphrase string
	Source     string
}

// CredentialOverrides are caller-supplied values that outrank everything
// in the resolution chain.
type CredentialOverrides struct {
	User       string
	KeyPath    string
	Passphrase string
}

// resolveCredentials applies the priority chain: explicit overrides, then
// per-host inventory metadata, then configured defaults, then the user's
// SSH client config, then the current OS user as a last resort for the
// username.
func resolveCredentials(resolved ResolvedHost, overrides CredentialOverrides, defaultUser, defaultKeyPath string) Credentials {
	creds := Credentials{Passphrase: overrides.Passphrase}

	var sshConf sshConfigEntry
	if resolved.CanonicalName != "" &&
		(overrides.User == "" && resolved.SSHUser == "" && defaultUser == "" ||
			overrides.KeyPath == "" && resolved.KeyPath == "" && defaultKeyPath == "") {
		sshConf = lookupSSHConfig(resolved.CanonicalName)
	}

	switch {
	case overrides.User != "":
		creds.User = overrides.User
		creds.Source = "explicit"
	case resolved.SSHUser != "":
		creds.User = resolved.SSHUser
		creds.Source = "inventory"
	case defaultUser != "":
		creds.User = defaultUser
		creds.Source = "config"
	case sshConf.User != "":
		creds.User = sshConf.User
		creds.Source = "ssh_config"
	default:
		if current, err := user.Current(); err == nil {
			creds.User = current.Username
		}
		creds.Source = "os"
	}

	switch {
	case overrides.KeyPath != "":
		creds.KeyPath = overrides.KeyPath
	case resolved.KeyPath != "":
		creds.KeyPath = resolved.KeyPath
	case defaultKeyPath != "":
		creds.KeyPath = defaultKeyPath
	default:
		creds.KeyPath = sshConf.IdentityFile
	}

	return creds
}

// buildClientConfig assembles the SSH client configuration for a dial.
// Auth methods are tried in order: explicit key file, then the running
// ssh-agent. Host keys are accepted without verification; the fleet is
// discovered at runtime, so strict checking is a known limitation here.
func buildClientConfig(creds Credentials, connectTimeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if creds.KeyPath != "" {
		keyAuth, err := keyFileAuth(creds.KeyPath, creds.Passphrase)
		if err != nil {
			return nil, err
		}
		auth = append(auth, keyAuth)
	}

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		auth = append(auth, agentAuth)
	}

	if len(auth) == 0 {
		return nil, types.NewError(types.CREDENTIAL_NOT_FOUND,
			"no SSH credentials available: no key path configured and no ssh-agent running")
	}

	return &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}, nil
}

// keyFileAuth loads a private key from disk, decrypting it with the
// passphrase when the key is protected.
func keyFileAuth(path, passphrase string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CREDENTIAL_NOT_FOUND,
			fmt.Sprintf("failed to read private key %s", path), err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return ssh.PublicKeys(signer), nil
	}

	var missingErr *ssh.PassphraseMissingError
	if errors.As(err, &missingErr) {
		if passphrase == "" {
			return nil, types.NewError(types.CREDENTIAL_INVALID,
				fmt.Sprintf("private key %s is encrypted and requires a passphrase", path))
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, types.WrapError(types.CREDENTIAL_INVALID,
				fmt.Sprintf("failed to decrypt private key %s", path), err)
		}
		return ssh.PublicKeys(signer), nil
	}

	return nil, types.WrapError(types.CREDENTIAL_INVALID,
		fmt.Sprintf("failed to parse private key %s", path), err)
}

// sshAgentAuth returns an auth method backed by the running ssh-agent,
// or nil when no agent socket is available.
func sshAgentAuth() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
}
