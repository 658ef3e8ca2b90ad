package executor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/m-kis/merlya-sub001/internal/remote"
)

// CredentialPrompter obtains fresh SSH credentials when an execution
// fails with an authentication error. The terminal implementation asks
// the operator; agent mode never prompts and instead surfaces a
// needs-credentials flag on the result.
type CredentialPrompter interface {
	PromptCredentials(target, currentUser string) (remote.CredentialOverrides, error)
}

// TerminalPrompter reads credentials interactively. The passphrase is
// read with echo disabled.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	// readSecret is swapped out in tests
	readSecret func(fd int) ([]byte, error)
}

// NewTerminalPrompter creates a prompter on stdin/stderr. Prompts go to
// stderr so piped stdout stays clean.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		In:         os.Stdin,
		Out:        os.Stderr,
		readSecret: term.ReadPassword,
	}
}

// PromptCredentials asks for user, key path and passphrase. Empty
// answers keep the current values.
func (p *TerminalPrompter) PromptCredentials(target, currentUser string) (remote.CredentialOverrides, error) {
	reader := bufio.NewReader(p.In)

	fmt.Fprintf(p.Out, "Authentication to %s failed.\n", target)

	fmt.Fprintf(p.Out, "SSH user [%s]: ", currentUser)
	user, err := readLine(reader)
	if err != nil {
		return remote.CredentialOverrides{}, err
	}

	fmt.Fprint(p.Out, "Private key path (empty to keep current): ")
	keyPath, err := readLine(reader)
	if err != nil {
		return remote.CredentialOverrides{}, err
	}

	fmt.Fprint(p.Out, "Key passphrase (empty if none): ")
	passphrase, err := p.promptSecret(reader)
	if err != nil {
		return remote.CredentialOverrides{}, err
	}
	fmt.Fprintln(p.Out)

	return remote.CredentialOverrides{
		User:       user,
		KeyPath:    keyPath,
		Passphrase: passphrase,
	}, nil
}

// promptSecret reads without echo when stdin is a terminal, falling back
// to a plain line read otherwise (tests, piped input).
func (p *TerminalPrompter) promptSecret(reader *bufio.Reader) (string, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := p.readSecret(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
	return readLine(reader)
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
