/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package srv

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/pulsarterm/pulsar/lib/hostkeys"
)

// AuthMethod tags which SSH authentication strategy to use.
type AuthMethod int

const (
	AuthPassword AuthMethod = iota
	AuthPublicKey
	AuthAgent
)

// SSHAuthConfig describes how to authenticate an SSH connection.
type SSHAuthConfig struct {
	Method     AuthMethod
	Username   string
	Password   string
	KeyPath    string
	Passphrase string
}

// SSHDialConfig is everything needed to establish an SSH endpoint.
type SSHDialConfig struct {
	Host       string
	Port       uint16
	Auth       SSHAuthConfig
	HostKeys   *hostkeys.Store
	Policy     hostkeys.Policy
	Dims       Dimensions
	ConnectTimeout time.Duration
}

// SSHEndpoint wraps an authenticated SSH connection and one channel
// with a PTY and shell allocated.
type SSHEndpoint struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   interface{ Write([]byte) (int, error) }
	stdout  interface{ Read([]byte) (int, error) }
}

// HostKeyChangedError is returned when the peer's key no longer
// matches the trust store; the connection is refused and nothing is
// written to the store.
type HostKeyChangedError struct {
	Host string
}

func (e *HostKeyChangedError) Error() string {
	return trace.BadParameter("host key for %s has changed", e.Host).Error()
}

// HostKeyUnknownError is returned under Strict policy when the peer's
// key has never been seen.
type HostKeyUnknownError struct {
	Host string
}

func (e *HostKeyUnknownError) Error() string {
	return trace.BadParameter("host key for %s is unknown", e.Host).Error()
}

// NewSSHEndpoint dials, authenticates, verifies the host key per the
// configured policy, and allocates a PTY and shell on the remote end.
func NewSSHEndpoint(cfg SSHDialConfig) (*SSHEndpoint, error) {
	authMethods, err := buildAuthMethods(cfg.Auth)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(port)))
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Auth.Username,
		Auth:            authMethods,
		Timeout:         timeout,
		HostKeyCallback: verifyingCallback(cfg.Host, cfg.Port, cfg.HostKeys, cfg.Policy),
	}

	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, trace.Wrap(err, "dialing %s", addr)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, trace.Wrap(err, "opening ssh session")
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", int(cfg.Dims.Rows), int(cfg.Dims.Cols), modes); err != nil {
		session.Close()
		client.Close()
		return nil, trace.Wrap(err, "requesting remote pty")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, trace.Wrap(err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, trace.Wrap(err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, trace.Wrap(err, "starting remote shell")
	}

	return &SSHEndpoint{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func verifyingCallback(host string, port uint16, store *hostkeys.Store, policy hostkeys.Policy) ssh.HostKeyCallback {
	return func(_ string, _ net.Addr, key ssh.PublicKey) error {
		verdict, _, err := store.Verify(host, port, key)
		if err != nil {
			return trace.Wrap(err)
		}
		switch verdict {
		case hostkeys.Trusted:
			return nil
		case hostkeys.Changed:
			return &HostKeyChangedError{Host: host}
		case hostkeys.Unknown:
			if policy == hostkeys.TrustOnFirstUse {
				return trace.Wrap(store.Add(host, port, key))
			}
			return &HostKeyUnknownError{Host: host}
		default:
			return trace.BadParameter("unrecognized host key verdict")
		}
	}
}

func buildAuthMethods(cfg SSHAuthConfig) ([]ssh.AuthMethod, error) {
	switch cfg.Method {
	case AuthPassword:
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	case AuthPublicKey:
		keyBytes, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, trace.Wrap(err, "reading private key %q", cfg.KeyPath)
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, trace.Wrap(err, "parsing private key %q", cfg.KeyPath)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case AuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, trace.BadParameter("SSH_AUTH_SOCK is not set, cannot use agent auth")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, trace.Wrap(err, "dialing ssh-agent socket")
		}
		ag := agent.NewClient(conn)
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
	default:
		return nil, trace.BadParameter("unknown ssh auth method %v", cfg.Method)
	}
}

func (e *SSHEndpoint) Read(buf []byte) (int, error) {
	n, err := e.stdout.Read(buf)
	return n, trace.Wrap(err)
}

func (e *SSHEndpoint) Write(p []byte) (int, error) {
	n, err := e.stdin.Write(p)
	return n, trace.Wrap(err)
}

func (e *SSHEndpoint) Resize(cols, rows uint16) error {
	return trace.Wrap(e.session.WindowChange(int(rows), int(cols)))
}

func (e *SSHEndpoint) Close() error {
	sessErr := e.session.Close()
	clientErr := e.client.Close()
	if sessErr != nil {
		return trace.Wrap(sessErr)
	}
	return trace.Wrap(clientErr)
}
