package contextfold

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrSummarizationFailed indicates the summarization call failed.
	// The engine makes no state change when this is returned; callers
	// should fall back to sending the full uncompressed history.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrSessionNotFound indicates no cache exists for the session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSummarizer indicates a compression call was made without a
	// summarizer.
	ErrNoSummarizer = errors.New("summarizer is required")

	// ErrInvalidPrewarm indicates a prewarm payload failed validation.
	// The session starts cold instead.
	ErrInvalidPrewarm = errors.New("invalid prewarm payload")

	// ErrSessionNotCold indicates a prewarm was attempted on a session
	// that has already compressed history.
	ErrSessionNotCold = errors.New("session already has compression state")
)

// EngineError provides structured error context for engine operations.
type EngineError struct {
	// Op is the operation that failed (e.g. "Compress", "Prewarm").
	Op string

	// SessionID is the affected session, if applicable.
	SessionID string

	// Err is the underlying error.
	Err error

	// Context holds additional key-value pairs for debugging.
	Context map[string]any
}

// Error returns a formatted error message.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("contextfold %s failed", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" for session %s", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates an EngineError for the given operation.
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithSession sets the session ID and returns the error for chaining.
func (e *EngineError) WithSession(sessionID string) *EngineError {
	e.SessionID = sessionID
	return e
}

// WithContext adds a key-value pair to the error context.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WrapError wraps an error with operation context. Nil in, nil out.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewEngineError(op, err)
}
