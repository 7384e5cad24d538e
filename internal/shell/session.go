// Package shell runs commands against a long-lived login shell process
// with per-command timeouts, plus a one-shot runner for fresh spawns.
// The persistent session exists to amortize shell and environment
// startup cost across many invocations; when it degrades, callers fall
// back to one-shot execution.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Session's backing process.
type State int

const (
	// Unstarted means no process has been spawned yet.
	Unstarted State = iota
	// Starting means the process is spawned but not yet handshaken.
	Starting
	// Healthy means the last command round trip succeeded.
	Healthy
	// Unhealthy means an I/O error, timeout, or failed health check may
	// have corrupted the stream; the session refuses further commands.
	Unhealthy
	// Terminated means the process has exited. Never reused.
	Terminated
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RunResult is the outcome of one command round trip.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Config configures a Session.
type Config struct {
	// Shell is the shell binary to spawn. Defaults to $SHELL, then
	// /bin/zsh, then /bin/bash.
	Shell string

	// Grace is how long to wait between SIGTERM and SIGKILL during
	// teardown. Defaults to 2s.
	Grace time.Duration

	// Logger receives state-transition and teardown diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns one long-lived shell process. Commands are written to its
// stdin followed by a sentinel echo; stdout is read line by line until
// the sentinel reports the exit code.
//
// Run and RunStream serialize on an internal mutex: a concurrent caller
// queues until the in-flight command finishes rather than interleaving
// on the shared pipes.
type Session struct {
	shellPath string
	grace     time.Duration
	logger    *slog.Logger

	// runMu serializes command execution on the shared stdin/stdout.
	runMu sync.Mutex

	// mu guards state, process fields, and the stderr tail.
	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	exited  chan struct{}
	stderr  []byte
	errSeen int
}

// stderrTailMax bounds how much recent stderr is retained for
// diagnostics.
const stderrTailMax = 8 << 10

// NewSession creates a session without spawning anything. The process
// starts lazily on the first Prewarm or Run.
func NewSession(cfg Config) *Session {
	shellPath := cfg.Shell
	if shellPath == "" {
		shellPath = os.Getenv("SHELL")
	}
	if shellPath == "" {
		for _, candidate := range []string{"/bin/zsh", "/bin/bash"} {
			if _, err := os.Stat(candidate); err == nil {
				shellPath = candidate
				break
			}
		}
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		shellPath: shellPath,
		grace:     grace,
		logger:    logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Healthy reports whether the session is ready for the fast path.
func (s *Session) Healthy() bool {
	return s.State() == Healthy
}

// MarkUnhealthy flags the session so later callers do not reuse a
// possibly-corrupted stream. Terminated sessions stay terminated.
func (s *Session) MarkUnhealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return
	}
	s.setStateLocked(Unhealthy)
}

// Prewarm spawns the backing process if needed and performs a handshake
// round trip. Idempotent: a healthy session returns immediately, so it
// is safe to call repeatedly (e.g. from a background warmup) while
// corrections run.
func (s *Session) Prewarm(ctx context.Context) error {
	if s.Healthy() {
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.Healthy() {
		return nil
	}
	_, err := s.runLocked(ctx, "true", 10*time.Second, nil)
	if err != nil {
		return fmt.Errorf("prewarm handshake: %w", err)
	}
	return nil
}

// Run executes command and collects its stdout until completion,
// timeout, or process exit. On timeout the caller is unblocked at the
// deadline, the session is marked unhealthy, and the process group is
// terminated (SIGTERM, then SIGKILL after the grace period).
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error) {
	var out strings.Builder
	res, err := s.RunStream(ctx, command, timeout, func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	})
	res.Stdout = out.String()
	return res, err
}

// RunStream executes command, invoking onLine for every stdout line as
// it arrives. Lines are delivered in arrival order; none are delivered
// after RunStream returns.
func (s *Session) RunStream(ctx context.Context, command string, timeout time.Duration, onLine func(string)) (RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runLocked(ctx, command, timeout, onLine)
}

func (s *Session) runLocked(ctx context.Context, command string, timeout time.Duration, onLine func(string)) (RunResult, error) {
	s.mu.Lock()
	switch s.state {
	case Terminated:
		s.mu.Unlock()
		return RunResult{}, ErrTerminated
	case Unhealthy:
		s.mu.Unlock()
		return RunResult{}, ErrUnhealthy
	case Unstarted:
		if err := s.startLocked(); err != nil {
			s.mu.Unlock()
			return RunResult{}, err
		}
	}
	stdin := s.stdin
	lines := s.lines
	errStart := s.errSeen
	s.mu.Unlock()

	// Discard any stale output left over from shell startup banners.
	s.drain(lines)

	sentinel := fmt.Sprintf("__QUILL_DONE_%s__", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if _, err := fmt.Fprintf(stdin, "%s\necho \"%s:$?\"\n", command, sentinel); err != nil {
		s.MarkUnhealthy()
		s.teardown()
		return RunResult{}, fmt.Errorf("writing command: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	marker := sentinel + ":"

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				s.setState(Terminated)
				return RunResult{}, &ExitError{Diagnostic: s.stderrSince(errStart)}
			}
			// Output without a trailing newline shares a line with the
			// sentinel echo, so match it anywhere and deliver the
			// preceding fragment as the final output.
			if at := strings.Index(line, marker); at >= 0 {
				if at > 0 && onLine != nil {
					onLine(line[:at])
				}
				exit, err := strconv.Atoi(strings.TrimSpace(line[at+len(marker):]))
				if err != nil {
					exit = -1
				}
				s.setState(Healthy)
				return RunResult{ExitCode: exit, Stderr: s.stderrSince(errStart)}, nil
			}
			if onLine != nil {
				onLine(line)
			}
		case <-timer.C:
			s.logger.Warn("shell command timed out", "timeout", timeout)
			s.MarkUnhealthy()
			s.teardown()
			return RunResult{}, &TimeoutError{Timeout: timeout}
		case <-ctx.Done():
			s.MarkUnhealthy()
			s.teardown()
			return RunResult{}, fmt.Errorf("command canceled: %w", ctx.Err())
		}
	}
}

// drain discards buffered lines without blocking.
func (s *Session) drain(lines chan string) {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// startLocked spawns the shell process and its reader goroutines.
// Caller holds s.mu.
func (s *Session) startLocked() error {
	if s.shellPath == "" {
		return fmt.Errorf("no usable shell found")
	}
	cmd := exec.Command(s.shellPath, "-l")
	cmd.Env = os.Environ()
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.shellPath, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.lines = make(chan string, 1024)
	s.exited = make(chan struct{})
	s.setStateLocked(Starting)

	var readers sync.WaitGroup
	readers.Add(2)

	lines := s.lines
	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	go func() {
		defer readers.Done()
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				s.appendStderr(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	exited := s.exited
	go func() {
		readers.Wait()
		_ = cmd.Wait()
		close(exited)
		s.setState(Terminated)
	}()

	return nil
}

// teardown terminates the process group, escalating from SIGTERM to
// SIGKILL after the grace period, and always reaps the process so no
// pipe descriptors leak. Stale stdout is drained while waiting so the
// reader goroutine can reach EOF.
func (s *Session) teardown() {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	lines := s.lines
	stdin := s.stdin
	s.mu.Unlock()

	if cmd == nil {
		return
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	terminate(cmd)
	graceTimer := time.NewTimer(s.grace)
	defer graceTimer.Stop()

	forced := false
	for {
		select {
		case <-exited:
			return
		case _, ok := <-lines:
			if !ok {
				// Reader finished; keep waiting for reap.
				lines = nil
			}
		case <-graceTimer.C:
			if forced {
				s.logger.Warn("shell process did not exit after SIGKILL")
				return
			}
			forceKill(cmd)
			forced = true
			graceTimer.Reset(s.grace)
		}
	}
}

// Close shuts the session down gracefully. Safe to call multiple times.
func (s *Session) Close() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.state == Unstarted || s.state == Terminated {
		s.setStateLocked(Terminated)
		s.mu.Unlock()
		return nil
	}
	stdin := s.stdin
	s.mu.Unlock()

	if stdin != nil {
		_, _ = io.WriteString(stdin, "exit\n")
	}
	s.teardown()
	s.setState(Terminated)
	return nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(next)
}

// setStateLocked applies a transition. Terminated is terminal; Unstarted
// is never re-entered.
func (s *Session) setStateLocked(next State) {
	if s.state == Terminated || s.state == next {
		return
	}
	s.logger.Debug("shell session state", "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *Session) appendStderr(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stderr = append(s.stderr, b...)
	s.errSeen += len(b)
	if len(s.stderr) > stderrTailMax {
		s.stderr = s.stderr[len(s.stderr)-stderrTailMax:]
	}
}

// stderrSince returns stderr produced after the given high-water mark,
// bounded by the retained tail.
func (s *Session) stderrSince(mark int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	produced := s.errSeen - mark
	if produced <= 0 {
		return ""
	}
	if produced > len(s.stderr) {
		produced = len(s.stderr)
	}
	return string(s.stderr[len(s.stderr)-produced:])
}
