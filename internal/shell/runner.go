package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// InstallDirs returns the standard executable install locations, in
// resolution order: Homebrew, system dirs, then user-local bin dirs.
func InstallDirs() []string {
	dirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
		)
	}
	return dirs
}

// PrependPath returns env with its PATH entry rewritten to put the
// standard install directories first, so a spawned CLI can resolve its
// own dependents regardless of the caller's shell configuration.
func PrependPath(env []string) []string {
	extra := strings.Join(InstallDirs(), string(os.PathListSeparator))
	out := make([]string, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			out = append(out, "PATH="+extra+string(os.PathListSeparator)+kv[len("PATH="):])
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, "PATH="+extra)
	}
	return out
}

// OneShot spawns a fresh process per call. It is the slow-path fallback
// when the persistent session is degraded, and the only path for
// environments where a login shell cannot be kept warm.
type OneShot struct {
	// Grace is the delay between graceful cancellation (SIGTERM) and the
	// forced kill when a deadline expires. Defaults to 2s.
	Grace time.Duration
}

func (o OneShot) grace() time.Duration {
	if o.Grace <= 0 {
		return 2 * time.Second
	}
	return o.Grace
}

// Run executes path with args, feeding stdin and collecting output,
// bounded by timeout. Deadline expiry sends SIGTERM, then SIGKILL after
// the grace period; the process is always reaped and the pipes closed.
func (o OneShot) Run(ctx context.Context, path string, args []string, stdin string, timeout time.Duration) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = PrependPath(os.Environ())
	// Own process group, so cancellation reaches children the CLI
	// spawned, not just the CLI itself.
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		terminate(cmd)
		return nil
	}
	cmd.WaitDelay = o.grace()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return RunResult{}, &TimeoutError{Timeout: timeout}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return RunResult{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		return RunResult{}, fmt.Errorf("launching %s: %w", path, err)
	}
	return RunResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// RunStream executes path with args, invoking onLine for each stdout
// line as it arrives. Stderr is collected for diagnostics. Line delivery
// stops before RunStream returns.
func (o OneShot) RunStream(ctx context.Context, path string, args []string, stdin string, timeout time.Duration, onLine func(string)) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = PrependPath(os.Environ())
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		terminate(cmd)
		return nil
	}
	cmd.WaitDelay = o.grace()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("launching %s: %w", path, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		onLine(scanner.Text())
	}

	err = cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return RunResult{}, &TimeoutError{Timeout: timeout}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return RunResult{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}, nil
		}
		return RunResult{}, fmt.Errorf("running %s: %w", path, err)
	}
	return RunResult{ExitCode: 0, Stderr: stderr.String()}, nil
}
