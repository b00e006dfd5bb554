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
	"os"
	"os/exec"
	"runtime"

	"github.com/creack/pty"
	"github.com/gravitational/trace"
)

// PTYEndpoint owns a child shell process attached to a master
// pseudo-terminal. The shell is taken from $SHELL, falling back to a
// platform default; the child inherits TERM=xterm-256color.
type PTYEndpoint struct {
	cmd    *exec.Cmd
	master *os.File
}

// NewPTYEndpoint spawns the user's shell attached to a freshly
// allocated pseudo-terminal sized to cols x rows.
func NewPTYEndpoint(cols, rows uint16) (*PTYEndpoint, error) {
	shell := defaultShell()

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		return nil, trace.Wrap(err, "spawning pty-backed shell %q", shell)
	}

	return &PTYEndpoint{cmd: cmd, master: master}, nil
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	return "/bin/sh"
}

func (p *PTYEndpoint) Read(buf []byte) (int, error) {
	n, err := p.master.Read(buf)
	return n, trace.Wrap(err)
}

func (p *PTYEndpoint) Write(b []byte) (int, error) {
	n, err := p.master.Write(b)
	return n, trace.Wrap(err)
}

func (p *PTYEndpoint) Resize(cols, rows uint16) error {
	return trace.Wrap(pty.Setsize(p.master, &pty.Winsize{Cols: cols, Rows: rows}))
}

func (p *PTYEndpoint) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	closeErr := p.master.Close()
	_ = p.cmd.Wait()
	return trace.Wrap(closeErr)
}
