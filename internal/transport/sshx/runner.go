// Package sshx implements the remote command primitive over SSH. It is the
// production ports.CommandRunner: service restarts, reboots and log fetches
// all go through it.
package sshx

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
)

// Config holds the SSH connection settings shared by the whole fleet. Devices
// are provisioned with a single operations account, so credentials live here
// rather than per target.
type Config struct {
	// User login account on the devices
	User string

	// Password password auth; empty disables it
	Password string

	// PrivateKeyPath PEM key auth; empty disables it
	PrivateKeyPath string

	// Port SSH port. Default: 22.
	Port string

	// ConnectTimeout TCP dial timeout. Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout per-command deadline. Default: 60 seconds.
	CommandTimeout time.Duration
}

// Runner executes commands on fleet targets over SSH. Connections are not
// pooled: fleet devices drop idle sessions aggressively, so each command
// dials fresh.
type Runner struct {
	config Config
	auth   []ssh.AuthMethod
	logger logx.Logger
}

// New creates a runner. At least one auth method (password or key) must be
// configured.
func New(config Config, logger logx.Logger) (*Runner, error) {
	if config.Port == "" {
		config.Port = "22"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = logx.New()
	}

	var auth []ssh.AuthMethod
	if config.PrivateKeyPath != "" {
		key, err := os.ReadFile(config.PrivateKeyPath)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "read private key: %v", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "parse private key: %v", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}
	if len(auth) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "ssh runner needs a password or a private key")
	}

	return &Runner{
		config: config,
		auth:   auth,
		logger: logger.With("component", "ssh-runner"),
	}, nil
}

// Run executes a command on the target and captures its output. A returned
// error always means the transport failed (dial, handshake, timeout); a
// non-zero exit code is reported through CommandOutput, not through the error.
func (r *Runner) Run(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
	if err := target.Validate(); err != nil {
		return ports.CommandOutput{}, err
	}

	client, err := r.dial(ctx, target)
	if err != nil {
		return ports.CommandOutput{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return ports.CommandOutput{}, errors.Wrapf(errors.ErrConnectionFailed, "ssh session on %s: %v", target.Address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdCtx, cancel := context.WithTimeout(ctx, r.config.CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-cmdCtx.Done():
		// Best effort; the device may have already dropped the session.
		_ = session.Signal(ssh.SIGKILL)
		if cmdCtx.Err() == context.DeadlineExceeded {
			return ports.CommandOutput{}, errors.Wrapf(errors.ErrTimeout, "command timed out on %s", target.Address)
		}
		return ports.CommandOutput{}, errors.Wrapf(errors.ErrTimeout, "command canceled on %s", target.Address)

	case runErr := <-done:
		output := ports.CommandOutput{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if runErr == nil {
			r.logger.Debug("command finished", "target", target.Address, "exit_code", 0)
			return output, nil
		}

		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			output.ExitCode = exitErr.ExitStatus()
			r.logger.Debug("command finished", "target", target.Address, "exit_code", output.ExitCode)
			return output, nil
		}

		return output, errors.Wrapf(errors.ErrConnectionFailed, "ssh run on %s: %v", target.Address, runErr)
	}
}

// dial opens an SSH connection to the target, honoring the context deadline
// during the TCP dial and handshake.
func (r *Runner) dial(ctx context.Context, target domain.Target) (*ssh.Client, error) {
	host := target.Address
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	address := net.JoinHostPort(host, r.config.Port)

	dialer := net.Dialer{Timeout: r.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, classifyDialError(target.Address, err)
	}

	clientConfig := &ssh.ClientConfig{
		User: r.config.User,
		Auth: r.auth,
		// Fleet devices are re-imaged often and host keys churn with them.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.config.ConnectTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, errors.Wrapf(errors.ErrUnauthorized, "ssh auth on %s: %v", target.Address, err)
		}
		return nil, errors.Wrapf(errors.ErrConnectionFailed, "ssh handshake with %s: %v", target.Address, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func classifyDialError(address string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(errors.ErrTimeout, "dial %s: %v", address, err)
	}
	return errors.Wrapf(errors.ErrConnectionFailed, "dial %s: %v", address, err)
}

// Close releases the runner. Connections are per command, so there is nothing
// persistent to tear down; kept for the ports.CommandRunner contract.
func (r *Runner) Close() error {
	return nil
}
