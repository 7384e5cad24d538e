// Package models defines the request and result types exchanged between
// the correction engine and its callers.
package models

import (
	"fmt"

	"github.com/quillhq/quill/internal/diff"
	"github.com/quillhq/quill/internal/guard"
	"github.com/quillhq/quill/internal/provider"
)

// DefaultTimeoutSeconds applies when a request does not carry its own
// timeout.
const DefaultTimeoutSeconds = 60

// CorrectionRequest describes one correction invocation. It is
// immutable; callers construct a fresh value per request.
type CorrectionRequest struct {
	// SystemPrompt instructs the provider how to correct the text.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// SelectedText is the user's original text. It is never lost: on any
	// failure the caller still holds it untouched.
	SelectedText string `json:"selected_text" yaml:"selected_text"`

	// Provider selects which CLI tool handles the request.
	Provider provider.Name `json:"provider" yaml:"provider"`

	// Model is the provider-specific model alias; empty means the
	// provider default.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// TimeoutSeconds bounds the whole provider round trip.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// Streaming requests line-delimited JSON events and incremental
	// chunk delivery.
	Streaming bool `json:"streaming" yaml:"streaming"`
}

// Validate checks the request is well-formed.
func (r CorrectionRequest) Validate() error {
	if r.SelectedText == "" {
		return fmt.Errorf("selected text is empty")
	}
	if r.SystemPrompt == "" {
		return fmt.Errorf("system prompt is empty")
	}
	if _, err := provider.ParseName(string(r.Provider)); err != nil {
		return err
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", r.TimeoutSeconds)
	}
	return nil
}

// CorrectionResult is the outcome of a successful correction. Ownership
// passes to the caller.
type CorrectionResult struct {
	// Text is the corrected text with all surviving protected tokens
	// restored.
	Text string `json:"text"`

	// Diff aligns the original selected text (old) against Text (new)
	// at word granularity.
	Diff []diff.Segment `json:"diff"`

	// UsedFallback is true when the fast path or exact token
	// restoration degraded: a one-shot process replaced the persistent
	// session, or best-effort restoration accepted token loss.
	UsedFallback bool `json:"used_fallback"`

	// RetriesPerformed counts full-request retries (model-name retry,
	// token-corruption retry).
	RetriesPerformed int `json:"retries_performed"`

	// UnverifiedTokens lists protected tokens whose restoration could
	// not be verified after best-effort recovery. Empty on a clean run.
	UnverifiedTokens []guard.Token `json:"unverified_tokens,omitempty"`
}

// Summary renders a short human-readable description of the change.
func (r CorrectionResult) Summary() string {
	return diff.ChangeSummary(r.Diff)
}
