package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error taxonomy shared by every layer. Callers test with errors.Is; lower
// layers wrap these with context using fmt.Errorf("pkg: action: %w", ...).
var (
	// ErrMissingInput means a required argument was empty.
	ErrMissingInput = errors.New("missing input")

	// ErrEmbeddingUnavailable means the embedding provider failed or returned
	// a malformed vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrCompletionUnavailable means the completion provider failed or
	// returned an empty answer.
	ErrCompletionUnavailable = errors.New("completion unavailable")

	// ErrNoCorpusIngested means the owner has no stored chunks to retrieve from.
	ErrNoCorpusIngested = errors.New("no corpus ingested")

	// ErrConversationNotFound means the conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTimeout means an external call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConfiguration means a component was given invalid parameters.
	ErrConfiguration = errors.New("configuration error")
)

// ErrDimensionMismatch means a vector's length disagrees with the store's
// embedding dimensionality.
var ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)

// ErrTextTooShort means a document's text is below the ingestion threshold.
var ErrTextTooShort = fmt.Errorf("%w: text too short", ErrMissingInput)

// Stable error codes returned by Code.
const (
	CodeOK                    = "ok"
	CodeMissingInput          = "missing_input"
	CodeTextTooShort          = "text_too_short"
	CodeEmbeddingUnavailable  = "embedding_unavailable"
	CodeCompletionUnavailable = "completion_unavailable"
	CodeNoCorpusIngested      = "no_corpus_ingested"
	CodeConversationNotFound  = "conversation_not_found"
	CodeTimeout               = "timeout"
	CodeConfiguration         = "configuration_error"
	CodeInternal              = "internal"
)

// Code maps err to its stable string code. More specific errors are checked
// before the errors they wrap.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrTextTooShort):
		return CodeTextTooShort
	case errors.Is(err, ErrMissingInput):
		return CodeMissingInput
	case errors.Is(err, ErrNoCorpusIngested):
		return CodeNoCorpusIngested
	case errors.Is(err, ErrConversationNotFound):
		return CodeConversationNotFound
	case errors.Is(err, ErrEmbeddingUnavailable):
		return CodeEmbeddingUnavailable
	case errors.Is(err, ErrCompletionUnavailable):
		return CodeCompletionUnavailable
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// IsTimeout reports whether err was caused by an expired deadline, either
// from a context or from a network client timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Classify wraps a failed external call as ErrTimeout when it timed out and
// as unavailable otherwise. op names the call for the error message.
func Classify(op string, unavailable, err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, unavailable, err)
}
