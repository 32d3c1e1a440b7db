package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnknownPersona is returned for ids missing from the registry.
	ErrUnknownPersona = errors.New("unknown persona")
	// ErrEmptyCorpus is matched by EmptyCorpusError via errors.Is.
	ErrEmptyCorpus = errors.New("corpus has no records")
)

// CorpusLoadError reports a missing, unreadable or malformed corpus source.
type CorpusLoadError struct {
	PersonaID string
	Source    string
	Err       error
}

func (e *CorpusLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("load corpus for %q: %v", e.PersonaID, e.Err)
	}
	return fmt.Sprintf("load corpus for %q from %s: %v", e.PersonaID, e.Source, e.Err)
}

func (e *CorpusLoadError) Unwrap() error { return e.Err }

// EmptyCorpusError is returned when an index is requested over zero records.
type EmptyCorpusError struct {
	PersonaID string
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("persona %q: %v", e.PersonaID, ErrEmptyCorpus)
}

func (e *EmptyCorpusError) Is(target error) bool { return target == ErrEmptyCorpus }

// GenerationServiceError reports a failed call to the remote completion service.
// StatusCode is zero when no HTTP response was received.
type GenerationServiceError struct {
	Provider   string
	StatusCode int
	Reason     string
	Timeout    bool
	Err        error
}

func (e *GenerationServiceError) Error() string {
	msg := "generation failed"
	if e.Provider != "" {
		msg = e.Provider + " " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request may succeed.
func (e *GenerationServiceError) Retryable() bool {
	if e.Timeout {
		return true
	}
	switch {
	case e.StatusCode == 0:
		return e.Err != nil && e.Reason == ""
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}
