// Package gemini generates persona replies through the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"google.golang.org/genai"

	"personarag/internal/domain"
	"personarag/internal/generation"
)

const provider = "gemini"

// Config configures the Gemini client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
	HTTPClient  *http.Client
}

// Client is a single-attempt GenerateContent client.
type Client struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	maxTokens   int32
	temperature *float32
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c := &Client{
		client:    client,
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		maxTokens: int32(cfg.MaxTokens),
	}
	if cfg.Temperature != nil {
		c.temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	return c, nil
}

// Generate returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := generation.BuildPrompt(req)
	conf := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       c.temperature,
		MaxOutputTokens:   c.maxTokens,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt.User), conf)
	if err != nil {
		if status := statusOf(err); status != 0 {
			return "", generation.Failure(provider, status, http.StatusText(status), err)
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return "", generation.Failure(provider, 0, "", err)
	}
	text := resp.Text()
	if text == "" {
		return "", generation.Failure(provider, http.StatusOK, "response has no text content", nil)
	}
	return text, nil
}

func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
