package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgallion1/deckcheck/internal/prompt"
)

const claudeDefaultURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient calls the Anthropic Messages API.
type ClaudeClient struct {
	apiKey     string
	opts       Options
	url        string
	httpClient *http.Client
}

func NewClaudeClient(apiKey string, opts Options) *ClaudeClient {
	if opts.Model == "" {
		opts.Model = DefaultClaudeModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	return &ClaudeClient{
		apiKey: apiKey,
		opts:   opts,
		url:    claudeDefaultURL,
		// Per-attempt deadlines come from the caller's context.
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func (c *ClaudeClient) WithBaseURL(url string) *ClaudeClient {
	c.url = url
	return c
}

func (c *ClaudeClient) Name() string { return "claude" }

// Model is the model identifier requests are sent to.
func (c *ClaudeClient) Model() string { return c.opts.Model }

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Infer sends the payload as one user message of text and image blocks.
func (c *ClaudeClient) Infer(ctx context.Context, p *prompt.Payload) (string, error) {
	blocks := make([]anthropicBlock, 0, len(p.Parts))
	for _, part := range p.Parts {
		switch part.Kind {
		case prompt.PartText:
			blocks = append(blocks, anthropicBlock{Type: "text", Text: part.Text})
		case prompt.PartImage:
			blocks = append(blocks, anthropicBlock{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: part.MIMEType,
					Data:      base64.StdEncoding.EncodeToString(part.Data),
				},
			})
		}
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", &Error{Provider: c.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: c.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", networkError(c.Name(), ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", networkError(c.Name(), ctx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Transient:  transientStatus(resp.StatusCode),
			Message:    string(respBody),
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &Error{Provider: c.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if apiResp.Error != nil {
		return "", &Error{
			Provider:  c.Name(),
			Transient: apiResp.Error.Type == "overloaded_error",
			Message:   apiResp.Error.Type + ": " + apiResp.Error.Message,
		}
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Provider: c.Name(), Message: "empty response"}
	}
	return sb.String(), nil
}

// Close releases idle connections.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
