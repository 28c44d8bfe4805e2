package connectable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/roach88/bowtie/internal/channel"
)

// Process runs an implementation as a local subprocess.
type Process struct {
	path string
	args []string
}

// NewProcess describes the command to launch.
func NewProcess(path string, args ...string) *Process {
	return &Process{path: path, args: args}
}

// Name implements Connectable.
func (p *Process) Name() string {
	return "exec:" + strings.Join(append([]string{p.path}, p.args...), " ")
}

// Connect implements Connectable.
func (p *Process) Connect(ctx context.Context) (channel.Transport, error) {
	cmd := exec.Command(p.path, p.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdin: %w", p.Name(), err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdout: %w", p.Name(), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stderr: %w", p.Name(), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: start: %w", p.Name(), err)
	}

	t := &processTransport{cmd: cmd, stdin: stdin, pump: newPump()}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		_, _ = io.Copy(t.pump.writer(channel.Stdout), stdout)
	}()
	go func() {
		defer readers.Done()
		_, _ = io.Copy(t.pump.writer(channel.Stderr), stderr)
	}()
	go func() {
		readers.Wait()
		_ = cmd.Wait()
		t.pump.finish()
	}()

	return t, nil
}

type processTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	pump  *pump

	mu     sync.Mutex
	killed bool
}

func (t *processTransport) Write(b []byte) (int, error) {
	return t.stdin.Write(b)
}

func (t *processTransport) Chunks() <-chan channel.Chunk {
	return t.pump.chunks
}

func (t *processTransport) Exited() bool {
	return t.pump.exited.Load()
}

func (t *processTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.killed {
		return fmt.Errorf("pid %d: %w", t.cmd.Process.Pid, channel.ErrAlreadyGone)
	}
	t.killed = true
	t.pump.stop()
	_ = t.stdin.Close()

	if err := t.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("pid %d: %w", t.cmd.Process.Pid, channel.ErrAlreadyGone)
		}
		return fmt.Errorf("kill pid %d: %w", t.cmd.Process.Pid, err)
	}
	return nil
}
