package shell

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("persistent shell sessions require a POSIX shell")
	}
	s := NewSession(Config{Shell: "/bin/sh", Grace: 500 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_RunEcho(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}
	if !s.Healthy() {
		t.Fatal("session not healthy after prewarm")
	}
	// Prewarm is idempotent.
	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("second Prewarm: %v", err)
	}

	res, err := s.Run(ctx, "echo hello", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestSession_RunWithoutTrailingNewline(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	start := time.Now()
	res, err := s.Run(ctx, "printf 'no-newline-output'", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "no-newline-output") {
		t.Errorf("stdout = %q, want the unterminated output delivered", res.Stdout)
	}
	// The command completes promptly instead of burning the timeout.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %s for an instant command", elapsed)
	}
	if !s.Healthy() {
		t.Error("session degraded by output without a trailing newline")
	}
}

func TestSession_NonZeroExit(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	res, err := s.Run(ctx, "(exit 7)", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}
	// A failed command does not degrade the session.
	if !s.Healthy() {
		t.Error("session unhealthy after non-zero exit")
	}
}

func TestSession_Timeout(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	start := time.Now()
	_, err := s.Run(ctx, "sleep 30", 300*time.Millisecond)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	// Timeout plus teardown grace, with slack for slow machines.
	if elapsed > 5*time.Second {
		t.Errorf("Run blocked %s past its deadline", elapsed)
	}
	if s.Healthy() {
		t.Error("session still healthy after timeout")
	}

	// A degraded session refuses further commands.
	_, err = s.Run(ctx, "echo again", time.Second)
	if !errors.Is(err, ErrUnhealthy) && !errors.Is(err, ErrTerminated) {
		t.Errorf("err = %v, want ErrUnhealthy or ErrTerminated", err)
	}
}

func TestSession_ProcessExit(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}

	// "exit" terminates the backing shell before the sentinel prints.
	_, err := s.Run(ctx, "exit 0", 5*time.Second)
	if !errors.Is(err, ErrTerminated) {
		t.Fatalf("err = %v, want ErrTerminated", err)
	}
	if got := s.State(); got != Terminated {
		t.Errorf("state = %s, want terminated", got)
	}

	// Terminated sessions are never reused.
	_, err = s.Run(ctx, "echo nope", time.Second)
	if !errors.Is(err, ErrTerminated) {
		t.Errorf("err = %v, want ErrTerminated", err)
	}
}

func TestSession_MarkUnhealthy(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}
	s.MarkUnhealthy()
	if s.Healthy() {
		t.Fatal("Healthy() = true after MarkUnhealthy")
	}
	if _, err := s.Run(ctx, "echo x", time.Second); !errors.Is(err, ErrUnhealthy) {
		t.Errorf("err = %v, want ErrUnhealthy", err)
	}
}

func TestSession_SerializesConcurrentRuns(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}

	var wg sync.WaitGroup
	outputs := make([]string, 8)
	for i := range outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			word := strings.Repeat(string(rune('a'+i)), 3)
			res, err := s.Run(ctx, "echo "+word, 10*time.Second)
			if err != nil {
				t.Errorf("Run %d: %v", i, err)
				return
			}
			outputs[i] = res.Stdout
		}(i)
	}
	wg.Wait()

	// The second caller queues; neither run's output is interleaved.
	for i, out := range outputs {
		want := strings.Repeat(string(rune('a'+i)), 3) + "\n"
		if out != want {
			t.Errorf("run %d output = %q, want %q", i, out, want)
		}
	}
}

func TestSession_RunStreamOrder(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}

	var lines []string
	res, err := s.RunStream(ctx, `printf 'one\ntwo\nthree\n'`, 5*time.Second, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestSession_StderrCaptured(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	if err := s.Prewarm(ctx); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}

	res, err := s.Run(ctx, "echo oops 1>&2", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Stderr is read from an independent pipe; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(res.Stderr, "oops") && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		res.Stderr = s.stderrSince(0)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q, want to contain %q", res.Stderr, "oops")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := newTestSession(t)
	if err := s.Prewarm(context.Background()); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := s.State(); got != Terminated {
		t.Errorf("state = %s, want terminated", got)
	}
}
