package provider

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quillhq/quill/internal/shell"
)

// Resolver locates provider executables. Resolution order: a configured
// absolute path, a cached previous result, the standard install
// directories, then a login-shell `command -v` query. The first success
// wins and is cached for the process lifetime.
//
// Resolver is safe for concurrent use; concurrent resolutions of the
// same provider are collapsed into a single lookup.
type Resolver struct {
	overrides map[Name]string
	extraDirs []string

	mu    sync.Mutex
	cache map[Name]string

	group singleflight.Group

	// queryShell resolves a binary through the user's login shell.
	// Swappable for tests.
	queryShell func(ctx context.Context, binary string) (string, error)
}

// NewResolver creates a resolver. overrides maps providers to
// caller-configured absolute paths; extraDirs are searched after the
// standard install directories.
func NewResolver(overrides map[Name]string, extraDirs []string) *Resolver {
	return &Resolver{
		overrides:  overrides,
		extraDirs:  extraDirs,
		cache:      make(map[Name]string),
		queryShell: loginShellQuery,
	}
}

// Resolve returns the absolute path of the provider's executable or
// ErrProviderNotFound.
func (r *Resolver) Resolve(ctx context.Context, n Name) (string, error) {
	if path, ok := r.overrides[n]; ok && path != "" {
		if isExecutable(path) {
			r.store(n, path)
			return path, nil
		}
	}

	r.mu.Lock()
	cached, ok := r.cache[n]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.group.Do(string(n), func() (any, error) {
		return r.locate(ctx, n)
	})
	if err != nil {
		return "", err
	}
	path := v.(string)
	r.store(n, path)
	return path, nil
}

// locate walks the uncached resolution steps.
func (r *Resolver) locate(ctx context.Context, n Name) (string, error) {
	binary := n.Binary()

	for _, dir := range append(shell.InstallDirs(), r.extraDirs...) {
		candidate := filepath.Join(dir, binary)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := r.queryShell(ctx, binary); err == nil && path != "" {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrProviderNotFound, binary)
}

func (r *Resolver) store(n Name, path string) {
	r.mu.Lock()
	r.cache[n] = path
	r.mu.Unlock()
}

// isExecutable reports whether path is a regular file with an execute
// bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// loginShellQuery asks the user's login shell where binary lives, so
// PATH additions made in shell rc files are honored even when this
// process was launched outside a terminal.
func loginShellQuery(ctx context.Context, binary string) (string, error) {
	sh := os.Getenv("SHELL")
	if sh == "" {
		sh = "/bin/sh"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, sh, "-l", "-c", "command -v "+binary).Output()
	if err != nil {
		return "", fmt.Errorf("login shell query: %w", err)
	}
	path := strings.TrimSpace(string(out))
	if path == "" || !isExecutable(path) {
		return "", fmt.Errorf("login shell query: %s not found", binary)
	}
	return path, nil
}
