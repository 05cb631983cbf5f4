package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/dgallion1/deckcheck/internal/prompt"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	opts   Options
}

// NewGeminiClient creates a client. baseURL overrides the API endpoint and
// may be empty.
func NewGeminiClient(ctx context.Context, apiKey string, opts Options, baseURL string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, opts: opts}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

// Model is the model identifier requests are sent to.
func (c *GeminiClient) Model() string { return c.opts.Model }

// Infer sends the payload as a single user turn and asks for a JSON reply.
func (c *GeminiClient) Infer(ctx context.Context, p *prompt.Payload) (string, error) {
	parts := make([]*genai.Part, 0, len(p.Parts))
	for _, part := range p.Parts {
		switch part.Kind {
		case prompt.PartText:
			parts = append(parts, genai.NewPartFromText(part.Text))
		case prompt.PartImage:
			parts = append(parts, genai.NewPartFromBytes(part.Data, part.MIMEType))
		}
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(c.opts.Temperature)),
		MaxOutputTokens:  int32(c.opts.MaxTokens),
		ResponseMIMEType: "application/json",
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return "", c.classify(ctx, err)
	}
	text := resp.Text()
	if text == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			reason = "finish reason " + string(resp.Candidates[0].FinishReason)
		}
		return "", &Error{Provider: c.Name(), Message: "empty response: " + reason}
	}
	return text, nil
}

func (c *GeminiClient) classify(ctx context.Context, err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == 0 {
		return networkError(c.Name(), ctx, err)
	}
	return &Error{
		Provider:   c.Name(),
		StatusCode: code,
		Transient:  transientStatus(code),
		Err:        err,
	}
}
