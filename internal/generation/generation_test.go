package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"personarag/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(domain.GenerationRequest{
		Persona:          domain.Persona{ID: "jay"},
		GroundingContext: "Loves milk tea",
		Utterance:        "What do you drink?",
	})
	assert.Equal(t, "What do you drink?", p.User)
	assert.Contains(t, p.System, "You are jay.")
	assert.Contains(t, p.System, "Loves milk tea")
}

func TestFailureMarksTimeout(t *testing.T) {
	err := Failure("openai", 0, "", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.True(t, err.Timeout)
	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = Failure("openai", 400, "bad request", errors.New("x"))
	assert.False(t, err.Timeout)
	assert.False(t, err.Retryable())
	assert.Contains(t, err.Error(), "status 400")
}
