// Package engine composes the token guard, the persistent shell
// session, and the one-shot process runner into the single public
// correction entry point.
//
// Error taxonomy surfaced to callers, never silently swallowed:
// provider.ErrProviderNotFound, provider.ErrAuthenticationRequired,
// *provider.LaunchError, *provider.ProcessError, *shell.TimeoutError,
// provider.ErrEmptyResponse, *provider.MalformedResponseError, and
// guard.ErrTokensCorrupted (internal only: after a failed retry the
// engine degrades to best-effort restoration and flags the result
// instead of failing).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/quillhq/quill/internal/diff"
	"github.com/quillhq/quill/internal/guard"
	"github.com/quillhq/quill/internal/models"
	"github.com/quillhq/quill/internal/provider"
	"github.com/quillhq/quill/internal/shell"
)

// Config configures an Engine.
type Config struct {
	// PreferSession enables the persistent-session fast path. Once the
	// fast path fails, it is disabled for the rest of the process run.
	PreferSession bool

	// BinaryPaths maps providers to caller-configured absolute paths,
	// consulted before any other resolution step.
	BinaryPaths map[provider.Name]string

	// ExtraInstallDirs are searched after the standard install
	// locations.
	ExtraInstallDirs []string

	// Shell overrides the shell binary backing persistent sessions.
	Shell string

	// Grace bounds how long teardown waits between SIGTERM and SIGKILL.
	Grace time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the correction orchestrator. It owns all shared mutable
// state the components need: the resolved-path cache, the
// prefer-session flag, and one persistent session per provider.
// Independent requests to different providers do not block one another;
// requests to the same provider serialize on that provider's session.
type Engine struct {
	logger   *slog.Logger
	resolver *provider.Resolver
	oneShot  shell.OneShot
	shell    string
	grace    time.Duration

	mu            sync.Mutex
	preferSession bool
	sessions      map[provider.Name]*shell.Session
}

// New creates an Engine. No processes are spawned until Prewarm or the
// first correction.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:        logger,
		resolver:      provider.NewResolver(cfg.BinaryPaths, cfg.ExtraInstallDirs),
		oneShot:       shell.OneShot{Grace: cfg.Grace},
		shell:         cfg.Shell,
		grace:         cfg.Grace,
		preferSession: cfg.PreferSession,
		sessions:      make(map[provider.Name]*shell.Session),
	}
}

// Prewarm resolves the provider's executable and warms its persistent
// session so the first correction takes the fast path. Idempotent and
// safe to run in the background while corrections are in flight.
func (e *Engine) Prewarm(ctx context.Context, name provider.Name) error {
	if _, err := e.resolver.Resolve(ctx, name); err != nil {
		return err
	}
	if !e.sessionPreferred() {
		return nil
	}
	if err := e.session(name).Prewarm(ctx); err != nil {
		e.logger.Warn("session prewarm failed; fast path disabled", "provider", name, "error", err)
		e.disableSessionPreference()
		return err
	}
	return nil
}

// Close shuts down all persistent sessions.
func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := make([]*shell.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CorrectText runs one correction to completion and returns the
// corrected text with a word-granularity diff against the original.
func (e *Engine) CorrectText(ctx context.Context, req models.CorrectionRequest) (models.CorrectionResult, error) {
	return e.CorrectTextStreaming(ctx, req, nil)
}

// CorrectTextStreaming runs one correction, invoking onChunk zero or
// more times with monotonically growing corrected text before
// completion. No chunk is delivered after the call returns; delivered
// content never rolls back.
func (e *Engine) CorrectTextStreaming(ctx context.Context, req models.CorrectionRequest, onChunk func(string)) (models.CorrectionResult, error) {
	if err := req.Validate(); err != nil {
		return models.CorrectionResult{}, fmt.Errorf("invalid request: %w", err)
	}

	path, err := e.resolver.Resolve(ctx, req.Provider)
	if err != nil {
		return models.CorrectionResult{}, err
	}

	prot := guard.Protect(req.SelectedText)
	chunk := newMonotonicChunker(onChunk, prot.Tokens)

	var (
		finalText  string
		lastRaw    string
		retries    int
		usedOneOff bool
	)

	attempt := func() error {
		raw, oneOff, attemptRetries, err := e.runProvider(ctx, path, req, prot.ProtectedText, chunk.deliver)
		retries += attemptRetries
		usedOneOff = usedOneOff || oneOff
		if err != nil {
			return err
		}
		lastRaw = raw
		restored, err := guard.Restore(raw, prot.Tokens)
		if err != nil {
			return err
		}
		finalText = restored
		return nil
	}

	err = retry.Do(attempt,
		retry.Attempts(2),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, guard.ErrTokensCorrupted) }),
		retry.OnRetry(func(_ uint, err error) {
			retries++
			e.logger.Warn("protected tokens corrupted; retrying correction", "error", err)
		}),
	)

	result := models.CorrectionResult{
		UsedFallback:     usedOneOff,
		RetriesPerformed: retries,
	}

	switch {
	case err == nil:
		result.Text = finalText
	case errors.Is(err, guard.ErrTokensCorrupted):
		// Both attempts came back with damaged placeholders. Accept the
		// loss, restore what survived, and make the degradation visible
		// to the caller.
		restored, lost := guard.BestEffortRestore(lastRaw, prot.Tokens)
		e.logger.Warn("token restoration degraded to best effort",
			"lost", len(lost), "provider", req.Provider)
		result.Text = restored
		result.UsedFallback = true
		result.UnverifiedTokens = lost
	default:
		return models.CorrectionResult{}, err
	}

	result.Diff = diff.WordDiff(req.SelectedText, result.Text)
	chunk.finish(result.Text)
	return result, nil
}

// runProvider executes one full provider round trip, preferring the
// persistent session and falling back to a one-shot process when the
// fast path degrades. It retries once with the provider's default model
// if the requested alias is rejected. Returns the raw (still
// placeholder-bearing) corrected text.
func (e *Engine) runProvider(ctx context.Context, path string, req models.CorrectionRequest, protectedText string, onRawChunk func(string)) (raw string, usedOneOff bool, retries int, err error) {
	prompt := composePrompt(req.SystemPrompt, protectedText)
	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	run := func(model string) (string, bool, error) {
		return e.runOnce(ctx, path, req, prompt, model, timeout, onRawChunk)
	}

	raw, usedOneOff, err = run(req.Model)
	if errors.Is(err, provider.ErrModelRejected) && req.Model != "" {
		e.logger.Warn("model alias rejected; retrying with provider default",
			"provider", req.Provider, "model", req.Model)
		retries++
		var fallbackOneOff bool
		raw, fallbackOneOff, err = run("")
		usedOneOff = usedOneOff || fallbackOneOff
	}
	return raw, usedOneOff, retries, err
}

// runOnce performs a single provider invocation with a fixed model.
// The usedOneOff return is true only when this request attempted the
// session fast path and degraded to a one-shot process; a request that
// was configured for one-shot execution from the start is not a
// fallback.
func (e *Engine) runOnce(ctx context.Context, path string, req models.CorrectionRequest, prompt, model string, timeout time.Duration, onRawChunk func(string)) (string, bool, error) {
	fellBack := false
	if e.sessionPreferred() {
		text, err := e.runViaSession(ctx, path, req, prompt, model, timeout, onRawChunk)
		if err == nil {
			return text, false, nil
		}
		if !isFastPathFailure(err) {
			return "", false, err
		}
		e.logger.Warn("persistent session failed; falling back to one-shot process",
			"provider", req.Provider, "error", err)
		e.session(req.Provider).MarkUnhealthy()
		e.disableSessionPreference()
		fellBack = true
	}

	text, err := e.runViaOneShot(ctx, path, req, prompt, model, timeout, onRawChunk)
	return text, fellBack, err
}

// isFastPathFailure reports whether a session error should trigger the
// one-shot fallback. Classification results (auth, model rejection,
// process failure) and timeouts are request outcomes, not
// infrastructure degradation, and pass through unchanged.
func isFastPathFailure(err error) bool {
	var timeoutErr *shell.TimeoutError
	if errors.As(err, &timeoutErr) {
		return false
	}
	if errors.Is(err, provider.ErrAuthenticationRequired) ||
		errors.Is(err, provider.ErrModelRejected) ||
		errors.Is(err, provider.ErrEmptyResponse) {
		return false
	}
	var procErr *provider.ProcessError
	var malformedErr *provider.MalformedResponseError
	if errors.As(err, &procErr) || errors.As(err, &malformedErr) {
		return false
	}
	return true
}

// runViaSession sends the request through the provider's persistent
// shell session.
func (e *Engine) runViaSession(ctx context.Context, path string, req models.CorrectionRequest, prompt, model string, timeout time.Duration, onRawChunk func(string)) (string, error) {
	sess := e.session(req.Provider)
	if err := sess.Prewarm(ctx); err != nil {
		return "", err
	}
	command := provider.ShellCommand(path, req.Provider, prompt, model, req.Streaming)

	if req.Streaming {
		lines := make(chan string, 64)
		events := provider.ParseEvents(lines, e.logger)

		var res shell.RunResult
		var runErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer close(lines)
			res, runErr = sess.RunStream(ctx, command, timeout, func(line string) {
				lines <- line
			})
		}()

		streamRes := provider.Collect(events, onRawChunk)
		<-done
		if runErr != nil {
			return "", runErr
		}
		return digestStream(streamRes, res.ExitCode, res.Stderr)
	}

	res, err := sess.Run(ctx, command, timeout)
	if err != nil {
		return "", err
	}
	return digestPlain(res.ExitCode, res.Stdout, res.Stderr)
}

// runViaOneShot spawns a fresh provider process for this request.
func (e *Engine) runViaOneShot(ctx context.Context, path string, req models.CorrectionRequest, prompt, model string, timeout time.Duration, onRawChunk func(string)) (string, error) {
	args := provider.Args(req.Provider, prompt, model, req.Streaming)

	if req.Streaming {
		lines := make(chan string, 64)
		events := provider.ParseEvents(lines, e.logger)

		var res shell.RunResult
		var runErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer close(lines)
			res, runErr = e.oneShot.RunStream(ctx, path, args, "", timeout, func(line string) {
				lines <- line
			})
		}()

		streamRes := provider.Collect(events, onRawChunk)
		<-done
		if runErr != nil {
			return "", wrapLaunch(runErr)
		}
		return digestStream(streamRes, res.ExitCode, res.Stderr)
	}

	res, err := e.oneShot.Run(ctx, path, args, "", timeout)
	if err != nil {
		return "", wrapLaunch(err)
	}
	return digestPlain(res.ExitCode, res.Stdout, res.Stderr)
}

// wrapLaunch converts spawn failures into the LaunchError taxonomy
// entry, leaving timeouts untouched.
func wrapLaunch(err error) error {
	var timeoutErr *shell.TimeoutError
	if errors.As(err, &timeoutErr) {
		return err
	}
	return &provider.LaunchError{Reason: err.Error()}
}

// digestPlain turns a finished non-streaming invocation into corrected
// text or a classified error.
func digestPlain(exitCode int, stdout, stderr string) (string, error) {
	if exitCode != 0 {
		return "", provider.Classify(exitCode, stdout, stderr)
	}
	text := strings.TrimSpace(stdout)
	if text == "" {
		return "", provider.ErrEmptyResponse
	}
	return text, nil
}

// digestStream turns a collected stream into corrected text or a
// classified error. A malformed line is fatal only when the stream
// never completed; a completed response with stray garbage lines is
// accepted (and already logged by the parser).
func digestStream(res provider.StreamResult, exitCode int, stderr string) (string, error) {
	if res.ErrMessage != "" {
		if provider.IsAuthFailure(res.ErrMessage) {
			return "", provider.ErrAuthenticationRequired
		}
		return "", provider.Classify(exitCode, res.ErrMessage, stderr)
	}
	if exitCode != 0 {
		return "", provider.Classify(exitCode, res.Text, stderr)
	}
	if !res.Completed {
		if len(res.Malformed) > 0 {
			return "", &provider.MalformedResponseError{Sample: res.Malformed[0]}
		}
		if strings.TrimSpace(res.Text) == "" {
			return "", provider.ErrEmptyResponse
		}
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", provider.ErrEmptyResponse
	}
	return text, nil
}

// composePrompt joins the system prompt and the protected text into the
// single non-interactive prompt the provider CLIs expect.
func composePrompt(systemPrompt, protectedText string) string {
	return systemPrompt + "\n\n" + protectedText
}

// session returns the provider's persistent session, creating it
// lazily.
func (e *Engine) session(name provider.Name) *shell.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[name]
	if !ok || s.State() == shell.Terminated {
		s = shell.NewSession(shell.Config{
			Shell:  e.shell,
			Grace:  e.grace,
			Logger: e.logger,
		})
		e.sessions[name] = s
	}
	return s
}

func (e *Engine) sessionPreferred() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preferSession
}

func (e *Engine) disableSessionPreference() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preferSession = false
}

// monotonicChunker guards the caller's onChunk: the text it delivers is
// best-effort token-restored and never shorter than what was already
// delivered, so retries and placeholder substitution cannot roll
// content back.
type monotonicChunker struct {
	mu      sync.Mutex
	onChunk func(string)
	tokens  []guard.Token
	last    string
	closed  bool
}

func newMonotonicChunker(onChunk func(string), tokens []guard.Token) *monotonicChunker {
	return &monotonicChunker{onChunk: onChunk, tokens: tokens}
}

func (c *monotonicChunker) deliver(raw string) {
	if c.onChunk == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	restored, _ := guard.BestEffortRestore(raw, c.tokens)
	if len(restored) < len(c.last) {
		return
	}
	c.last = restored
	c.onChunk(restored)
}

// finish delivers the final text if it extends what streaming already
// delivered, then stops all further delivery. A final equal to the last
// streamed chunk is not re-delivered.
func (c *monotonicChunker) finish(final string) {
	if c.onChunk == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if final != "" && final != c.last && len(final) >= len(c.last) {
		c.onChunk(final)
	}
}
