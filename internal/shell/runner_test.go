package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("one-shot runner tests require /bin/sh")
	}
}

func TestOneShot_Run(t *testing.T) {
	skipWithoutSh(t)
	res, err := OneShot{}.Run(context.Background(), "/bin/sh", []string{"-c", "echo hi"}, "", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || res.Stdout != "hi\n" {
		t.Errorf("result = %+v, want exit 0 stdout %q", res, "hi\n")
	}
}

func TestOneShot_Stdin(t *testing.T) {
	skipWithoutSh(t)
	res, err := OneShot{}.Run(context.Background(), "/bin/sh", []string{"-c", "cat"}, "piped text", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "piped text" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "piped text")
	}
}

func TestOneShot_ExitCode(t *testing.T) {
	skipWithoutSh(t)
	res, err := OneShot{}.Run(context.Background(), "/bin/sh", []string{"-c", "echo bad 1>&2; exit 4"}, "", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 4 {
		t.Errorf("exit code = %d, want 4", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "bad") {
		t.Errorf("stderr = %q, want to contain %q", res.Stderr, "bad")
	}
}

func TestOneShot_Timeout(t *testing.T) {
	skipWithoutSh(t)
	start := time.Now()
	_, err := OneShot{Grace: 500 * time.Millisecond}.Run(
		context.Background(), "/bin/sh", []string{"-c", "sleep 30"}, "", 300*time.Millisecond)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run blocked %s past its deadline", elapsed)
	}
}

func TestOneShot_TimeoutKillsProcessGroup(t *testing.T) {
	skipWithoutSh(t)
	marker := filepath.Join(t.TempDir(), "marker")
	_, err := OneShot{Grace: 500 * time.Millisecond}.Run(
		context.Background(), "/bin/sh",
		[]string{"-c", fmt.Sprintf("(sleep 1; : > %s) & wait", marker)},
		"", 300*time.Millisecond)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}

	// The backgrounded subshell shares the process group; the timeout
	// signal must reach it before it writes the marker.
	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("background child survived the timeout and wrote %s", marker)
	}
}

func TestOneShot_LaunchFailure(t *testing.T) {
	_, err := OneShot{}.Run(context.Background(), "/nonexistent/quill-cli", nil, "", time.Second)
	if err == nil {
		t.Fatal("expected launch error")
	}
}

func TestOneShot_RunStream(t *testing.T) {
	skipWithoutSh(t)
	var lines []string
	res, err := OneShot{}.RunStream(context.Background(), "/bin/sh",
		[]string{"-c", `printf 'a\nb\n'`}, "", 5*time.Second,
		func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit = %d", res.ExitCode)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("lines = %v, want [a b]", lines)
	}
}

func TestPrependPath(t *testing.T) {
	skipWithoutSh(t)
	env := []string{"HOME=/home/u", "PATH=/custom/bin"}
	out := PrependPath(env)

	var path string
	for _, kv := range out {
		if strings.HasPrefix(kv, "PATH=") {
			path = kv[len("PATH="):]
		}
	}
	if path == "" {
		t.Fatal("no PATH in rewritten env")
	}
	parts := strings.Split(path, ":")
	if parts[0] != "/opt/homebrew/bin" {
		t.Errorf("first PATH entry = %q, want /opt/homebrew/bin", parts[0])
	}
	if parts[len(parts)-1] != "/custom/bin" {
		t.Errorf("original PATH entry lost: %v", parts)
	}
	for _, want := range []string{"/usr/local/bin", "/usr/bin", "/bin"} {
		if !strings.Contains(path, want) {
			t.Errorf("PATH missing %s: %s", want, path)
		}
	}
}

func TestPrependPath_NoExistingPath(t *testing.T) {
	out := PrependPath([]string{"HOME=/home/u"})
	found := false
	for _, kv := range out {
		if strings.HasPrefix(kv, "PATH=") {
			found = true
		}
	}
	if !found {
		t.Error("PATH not added to env without one")
	}
}
