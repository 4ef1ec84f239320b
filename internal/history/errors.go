// Package history keeps a conversation inside the model's context budget by
// windowing, summarizing and, as a last resort, truncating.
package history

import "errors"

var (
	// ErrSummaryFailed indicates that summary generation failed.
	ErrSummaryFailed = errors.New("history: summary generation failed")

	// ErrNoProvider indicates that no provider is configured for summarization.
	ErrNoProvider = errors.New("history: provider not configured")

	// ErrEmptySummary is returned when the model answers with no text.
	ErrEmptySummary = errors.New("history: empty summary")
)
