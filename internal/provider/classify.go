package provider

import "strings"

// authPhrases are matched case-insensitively against combined
// stdout+stderr to detect credential problems before any retry is
// attempted, so retries are never wasted on an unrecoverable category.
var authPhrases = []string{
	"not logged in",
	"please run /login",
	"please log in",
	"login required",
	"authentication failed",
	"authentication required",
	"unauthorized",
	"invalid api key",
	"api key not found",
	"credentials expired",
}

// modelRejectionPhrases indicate the requested model alias was refused;
// combined with a non-zero exit, the request is retried once with the
// provider default model.
var modelRejectionPhrases = []string{
	"unknown model",
	"invalid model",
	"model not found",
	"no such model",
	"unsupported model",
	"not a valid model",
}

// IsAuthFailure reports whether the combined process output names a
// credential problem.
func IsAuthFailure(combined string) bool {
	return containsAny(combined, authPhrases)
}

// IsModelRejection reports whether a non-zero exit looks like a refusal
// of the requested model alias.
func IsModelRejection(exitCode int, combined string) bool {
	return exitCode != 0 && containsAny(combined, modelRejectionPhrases)
}

// Classify maps a finished process to an error: authentication failures
// first (never retried), then model rejection (retried once with the
// default model), then a generic process failure carrying the exit code
// and a diagnostic tail.
func Classify(exitCode int, stdout, stderr string) error {
	combined := stdout + "\n" + stderr
	if IsAuthFailure(combined) {
		return ErrAuthenticationRequired
	}
	if IsModelRejection(exitCode, combined) {
		return ErrModelRejected
	}
	return &ProcessError{ExitCode: exitCode, Diagnostic: diagnosticTail(stderr, stdout)}
}

func containsAny(s string, phrases []string) bool {
	lower := strings.ToLower(s)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// diagnosticTailMax bounds the diagnostic carried on a ProcessError.
const diagnosticTailMax = 500

// diagnosticTail picks the most useful short diagnostic: stderr when
// present, otherwise stdout, trimmed to the last diagnosticTailMax
// bytes.
func diagnosticTail(stderr, stdout string) string {
	diag := strings.TrimSpace(stderr)
	if diag == "" {
		diag = strings.TrimSpace(stdout)
	}
	if len(diag) > diagnosticTailMax {
		diag = diag[len(diag)-diagnosticTailMax:]
	}
	return diag
}
