// Package generation defines the port to the remote completion service.
package generation

import (
	"context"
	"errors"

	"personarag/internal/domain"
	"personarag/internal/grounding"
)

// Client produces one persona reply per call. Implementations make a single
// attempt and report failures as *domain.GenerationServiceError.
type Client interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Prompt is the provider-neutral pair of messages sent for a turn.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt conditions the system message on the persona and grounding context
// and passes the utterance through untouched.
func BuildPrompt(req domain.GenerationRequest) Prompt {
	return Prompt{
		System: grounding.SystemPrompt(req.Persona, req.GroundingContext),
		User:   req.Utterance,
	}
}

// Failure wraps err as a GenerationServiceError, marking context deadlines as timeouts.
func Failure(provider string, status int, reason string, err error) *domain.GenerationServiceError {
	return &domain.GenerationServiceError{
		Provider:   provider,
		StatusCode: status,
		Reason:     reason,
		Timeout:    errors.Is(err, context.DeadlineExceeded),
		Err:        err,
	}
}
