package reboot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrNoAddress reports a setup record without an IP address to reboot.
var ErrNoAddress = errors.New("setup has no ip address")

// Rebooter restarts a physical setup machine.
type Rebooter interface {
	Reboot(ctx context.Context, addr string) error
}

// SSHRebooter reboots setups over SSH with key authentication.
type SSHRebooter struct {
	user    string
	signer  ssh.Signer
	timeout time.Duration
}

// NewSSHRebooter loads the private key and prepares a rebooter.
func NewSSHRebooter(user, privateKeyPath string, timeout time.Duration) (*SSHRebooter, error) {
	if user == "" {
		return nil, errors.New("reboot user is empty")
	}
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SSHRebooter{user: user, signer: signer, timeout: timeout}, nil
}

// Reboot connects to addr and issues a reboot. The remote connection
// dropping mid-command is expected and not reported as an error.
func (r *SSHRebooter) Reboot(ctx context.Context, addr string) error {
	if addr == "" {
		return ErrNoAddress
	}
	host := addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		host = net.JoinHostPort(addr, "22")
	}
	cfg := &ssh.ClientConfig{
		User:            r.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // lab-internal network
		Timeout:         r.timeout,
	}

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", host, cfg)
		if err != nil {
			done <- result{fmt.Errorf("dial %s: %w", host, err)}
			return
		}
		defer func() { _ = client.Close() }()
		sess, err := client.NewSession()
		if err != nil {
			done <- result{fmt.Errorf("session %s: %w", host, err)}
			return
		}
		defer func() { _ = sess.Close() }()
		// the connection usually dies as the host goes down
		_ = sess.Run("sudo reboot")
		done <- result{nil}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		return res.err
	}
}

// Nop ignores reboot requests. Used when no SSH credentials are
// configured.
type Nop struct{}

func (Nop) Reboot(context.Context, string) error {
	return errors.New("reboot is not configured")
}
