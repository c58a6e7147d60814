package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// Scheme prefixes host command lines, e.g. "exec:///usr/bin/host --stdio".
const Scheme = "exec://"

const (
	// maxScanTokenSize is the maximum buffer size for reading host output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize caps the stderr kept for error reporting.
	// The Stderr callback still receives every line past the cap.
	maxStderrBufferSize = 1024 * 1024 // 1MB
)

// Process implements the wire by spawning the host as a child process.
type Process struct {
	log       *slog.Logger
	codec     message.Codec
	onMessage func(msg *message.Message)

	// Env is appended to the current environment of the child.
	Env []string

	// Dir is the working directory of the child. Defaults to the current one.
	Dir string

	// Stderr receives each line the host writes to stderr. May be nil.
	Stderr func(line string)

	mu          sync.Mutex    // Protects process state
	writeSem    chan struct{} // Serializes stdin writes
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdinClosed bool
	closing     bool
	done        chan struct{}
	err         error
}

// Compile-time verification that Process implements the Wire interface.
var _ config.Wire = (*Process)(nil)

// NewProcess creates a subprocess wire. The codec must be a text codec since
// frames are delimited by newlines.
func NewProcess(log *slog.Logger, codec message.Codec, onMessage func(msg *message.Message)) *Process {
	done := make(chan struct{})
	close(done)

	return &Process{
		log:       log.With("component", "wire", "wire", "subprocess"),
		codec:     codec,
		onMessage: onMessage,
		done:      done,
		writeSem:  make(chan struct{}, 1),
	}
}

// ParseAddress splits an exec:// address into the program and its arguments.
func ParseAddress(address string) (string, []string, error) {
	fields := strings.Fields(strings.TrimPrefix(address, Scheme))
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no host command in address %q", address)
	}

	return fields[0], fields[1:], nil
}

// Connect starts the host process named by address.
//
// The process outlives ctx; ctx only bounds process startup.
func (p *Process) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.codec.Binary() {
		return &errors.ConnectionError{
			Address: address,
			Err:     fmt.Errorf("codec %s is binary; the subprocess wire needs a text codec", p.codec.Name()),
		}
	}

	program, args, err := ParseAddress(address)
	if err != nil {
		return &errors.ConnectionError{Address: address, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return errors.ErrWireAlreadyConnected
	}

	p.log.Info("Starting host process", "program", program)

	//nolint:gosec // G204: the host command line is supplied by the caller
	cmd := exec.Command(program, args...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), p.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.ConnectionError{Address: address, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.ConnectionError{Address: address, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.ConnectionError{Address: address, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start host process", "error", err)

		return &errors.ConnectionError{Address: address, Err: fmt.Errorf("start process: %w", err)}
	}

	done := make(chan struct{})

	p.cmd = cmd
	p.stdin = stdin
	p.stdinClosed = false
	p.closing = false
	p.done = done
	p.err = nil

	go p.readLoop(cmd, stdout, stderr, done)

	p.log.Info("Host process started", "pid", cmd.Process.Pid)

	return nil
}

// readLoop decodes stdout lines until the process exits, then records why.
func (p *Process) readLoop(cmd *exec.Cmd, stdout, stderr io.Reader, done chan struct{}) {
	var (
		stderrWg     sync.WaitGroup
		stderrMu     sync.Mutex
		stderrBuffer strings.Builder
	)

	// Stderr must be drained before cmd.Wait.
	stderrWg.Go(func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			if p.Stderr != nil {
				p.Stderr(line)
			}
		}
	})

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var msg message.Message
		if err := p.codec.Unmarshal(line, &msg); err != nil {
			p.log.Warn("Dropping undecodable line", "error", &errors.DecodeError{
				RawData: append([]byte(nil), line...),
				Err:     err,
			})

			continue
		}

		p.onMessage(&msg)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		p.log.Error("Scanner error while reading host output", "error", scanErr)
	}

	stderrWg.Wait()

	waitErr := cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == cmd {
		p.cmd = nil
		p.stdin = nil
	}

	var err error

	switch {
	case p.closing:
		p.log.Debug("Host process terminated during shutdown")
	case waitErr != nil:
		exitCode := -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](waitErr); ok {
			exitCode = exitErr.ExitCode()
		}

		stderrMu.Lock()
		stderrOutput := strings.TrimSpace(stderrBuffer.String())
		stderrMu.Unlock()

		p.log.Error("Host process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

		err = &errors.ProcessError{ExitCode: exitCode, Stderr: stderrOutput, Err: waitErr}
	case scanErr != nil:
		err = fmt.Errorf("read host output: %w", scanErr)
	default:
		p.log.Info("Host process exited")
	}

	p.err = err
	close(done)
}

// Send writes msg as one line to the host's stdin.
//
// Writes are serialized so lines never interleave. p.mu is not held while
// writing, so Close does not wait on a stalled host. If ctx ends during
// a blocked write, stdin is closed to unblock it and subsequent sends fail.
func (p *Process) Send(ctx context.Context, msg *message.Message) error {
	p.mu.Lock()
	stdin := p.stdin
	closed := p.stdinClosed
	p.mu.Unlock()

	if stdin == nil || closed {
		return errors.ErrWireNotConnected
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := p.codec.Marshal(msg)
	if err != nil {
		return err
	}

	data = append(data, '\n')

	select {
	case p.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	written := make(chan error, 1)

	go func() {
		_, err := stdin.Write(data)
		<-p.writeSem
		written <- err
	}()

	select {
	case err := <-written:
		if err != nil {
			p.log.Error("Failed to write to host stdin", "error", err)

			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		p.log.Debug("Context ended during write, closing stdin")
		p.closeStdin(stdin)

		return ctx.Err()
	}
}

// closeStdin closes stdin if it still belongs to the current process.
func (p *Process) closeStdin(stdin io.WriteCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin != stdin || p.stdinClosed {
		return
	}

	_ = stdin.Close()
	p.stdinClosed = true
}

// Done is closed when the host process has exited.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done
}

// Err returns the ProcessError of an unexpected exit, or nil.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// Close terminates the host process. It's safe to call Close multiple times.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closing = true

	if p.stdin != nil && !p.stdinClosed {
		_ = p.stdin.Close()
		p.stdinClosed = true
	}

	if p.cmd != nil && p.cmd.Process != nil {
		p.log.Debug("Killing host process", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill host process (pid %d): %w", p.cmd.Process.Pid, err)
		}
	}

	return nil
}
