// Package provider knows how to talk to the interchangeable AI CLI
// tools: which binary to run, how to build its argument list, how to
// find it on disk, how to parse its streaming output, and how to
// classify its failures. It treats each CLI as an opaque black box
// reachable only through argv, stdin/stdout/stderr, and exit codes.
package provider

import (
	"fmt"
	"strings"
)

// Name identifies one of the supported provider CLIs.
type Name string

const (
	Claude Name = "claude"
	Codex  Name = "codex"
	Gemini Name = "gemini"
)

// All lists the supported providers in preference order.
var All = []Name{Claude, Codex, Gemini}

// ParseName validates a provider name from user input.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (supported: claude, codex, gemini)", s)
}

// Binary returns the executable name the provider installs.
func (n Name) Binary() string { return string(n) }

// streamFlags maps each provider to the flag set requesting
// line-delimited JSON output instead of plain text.
var streamFlags = map[Name][]string{
	Claude: {"--output-format", "stream-json"},
	Codex:  {"--json"},
	Gemini: {"--stream-json"},
}

// Args builds the provider argv for a non-interactive correction
// request: `-p <prompt>`, an optional `--model <name>`, and the
// provider's streaming flag when streaming output is requested. The
// shape must match the installed CLIs exactly.
func Args(n Name, prompt, model string, streaming bool) []string {
	args := []string{"-p", prompt}
	if model != "" {
		args = append(args, "--model", model)
	}
	if streaming {
		args = append(args, streamFlags[n]...)
	}
	return args
}

// ShellCommand renders the invocation as a single shell command line
// for execution through a persistent shell session. Every argument is
// single-quoted so prompt text cannot escape into the shell.
func ShellCommand(path string, n Name, prompt, model string, streaming bool) string {
	parts := []string{shellQuote(path)}
	for _, a := range Args(n, prompt, model, streaming) {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes s for POSIX shells.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
