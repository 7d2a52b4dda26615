// Package remote provides an authenticated command-execution channel to a
// single host over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// DialTimeout bounds connection establishment. Command execution itself is
// not bounded: a hanging remote script blocks until its context is cancelled.
const DialTimeout = 10 * time.Second

// Result captures the outcome of a single remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Failed reports whether the command exited non-zero.
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Runner executes shell commands on a remote host. It is implemented by
// Session and by test fakes.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
	RunWithInput(ctx context.Context, command string, input io.Reader) (Result, error)
	Close() error
}

// Session wraps an SSH client connection for remote command execution. Each
// command runs in its own SSH session on the shared connection.
type Session struct {
	client *ssh.Client
	host   string
}

// Dial connects to host as user using password authentication. The host may
// include a port; port 22 is assumed otherwise.
func Dial(ctx context.Context, host, user, password string) (*Session, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DialTimeout,
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish ssh connection to %s: %w", addr, err)
	}

	return &Session{
		client: ssh.NewClient(sshConn, chans, reqs),
		host:   host,
	}, nil
}

// Run executes a command on the remote host and returns its exit status and
// captured output. A non-zero exit is reported through the Result, not as an
// error; the error return covers transport failures only.
func (s *Session) Run(ctx context.Context, command string) (Result, error) {
	return s.run(ctx, command, nil)
}

// RunWithInput executes a command with the given reader attached to its
// stdin. Used to transfer the rendered provisioning script as an opaque byte
// blob instead of interpolating it into a shell command line.
func (s *Session) RunWithInput(ctx context.Context, command string, input io.Reader) (Result, error) {
	return s.run(ctx, command, input)
}

func (s *Session) run(ctx context.Context, command string, input io.Reader) (Result, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf
	if input != nil {
		session.Stdin = input
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return Result{}, ctx.Err()
	case err := <-errChan:
		res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
		if err == nil {
			return res, nil
		}

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}

		return res, fmt.Errorf("command failed on %s: %w", s.host, err)
	}
}

// Close closes the SSH connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// Host returns the hostname of the SSH connection.
func (s *Session) Host() string {
	return s.host
}

// Reachable probes TCP reachability of host:port. It is used as a non-fatal
// advisory check before provisioning and never blocks longer than timeout.
func Reachable(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
