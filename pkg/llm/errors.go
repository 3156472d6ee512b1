package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrUnsupportedModel is returned when a model id carries no registered provider prefix.
var ErrUnsupportedModel = errors.New("unsupported model")

// EmbeddingError reports a text that could not be embedded.
type EmbeddingError struct {
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding item %d: %v", e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError is returned once a completion has failed for good.
type GenerationError struct {
	Model     string
	Attempts  int
	Transient bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a network failure, a timeout or a
// backend error explicitly marked retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// transientStatus reports whether an HTTP status code is worth retrying.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}

// looksTransient classifies provider errors that only expose a message.
func looksTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "rate limit", "unavailable", "resource_exhausted", "overloaded", "connection refused", "connection reset", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
