package provider

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Event is one line of the provider's streaming protocol. Unknown extra
// fields are ignored by parsing, not rejected.
type Event struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// Recognized event types. Anything else is skipped for forward
// compatibility.
const (
	EventPartial  = "partial"
	EventComplete = "complete"
	EventError    = "error"

	// eventMalformed is synthesized by the parser for lines that are not
	// valid JSON; Message carries a truncated sample.
	eventMalformed = "malformed"
)

// malformedSampleMax bounds the diagnostic sample kept from an invalid
// protocol line.
const malformedSampleMax = 120

// ParseEvents consumes newline-delimited JSON lines from in and emits
// typed events on the returned channel, which is closed when in closes.
// Blank lines are skipped. A line that fails to parse is a protocol
// violation for the current response only: it is surfaced as a
// malformed event and logged, never treated as fatal to the session.
func ParseEvents(in <-chan string, logger *slog.Logger) <-chan Event {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for line := range in {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
				sample := trimmed
				if len(sample) > malformedSampleMax {
					sample = sample[:malformedSampleMax]
				}
				logger.Warn("malformed stream line", "sample", sample)
				out <- Event{Type: eventMalformed, Message: sample}
				continue
			}
			out <- ev
		}
	}()
	return out
}

// StreamResult is the digest of one streamed response.
type StreamResult struct {
	// Text is the final corrected text: the complete event's payload
	// when it carries one, otherwise the accumulated partial deltas.
	Text string
	// Completed is true once a complete event arrived.
	Completed bool
	// ErrMessage is set when the provider emitted an error event.
	ErrMessage string
	// Chunks counts the partial deltas delivered before the terminal
	// event.
	Chunks int
	// Malformed holds truncated samples of protocol-violating lines.
	Malformed []string
}

// Collect drains events, invoking onChunk with the monotonically
// growing accumulated text for every partial delta. No chunk is
// delivered after the terminal complete or error event; trailing events
// are drained and dropped.
func Collect(events <-chan Event, onChunk func(string)) StreamResult {
	var res StreamResult
	var acc strings.Builder
	terminal := false

	for ev := range events {
		if terminal {
			continue
		}
		switch ev.Type {
		case EventPartial:
			acc.WriteString(ev.Text)
			res.Chunks++
			if onChunk != nil {
				onChunk(acc.String())
			}
		case EventComplete:
			res.Completed = true
			if ev.Text != "" {
				res.Text = ev.Text
			} else {
				res.Text = acc.String()
			}
			terminal = true
		case EventError:
			res.ErrMessage = ev.Message
			terminal = true
		case eventMalformed:
			res.Malformed = append(res.Malformed, ev.Message)
		default:
			// Unknown event type: ignore for forward compatibility.
		}
	}

	if !terminal {
		// Stream ended without a terminal event; fall back to whatever
		// partial text accumulated.
		res.Text = acc.String()
	}
	return res
}
