package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/deckcheck/internal/config"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/ingest"
	"github.com/dgallion1/deckcheck/internal/prompt"
	"github.com/dgallion1/deckcheck/internal/render"
)

// Provider is a configured inference client with retries applied.
type Provider struct {
	Client inference.Client
	Model  string
	Close  func()
}

// NewProvider builds the client selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.Config, stats *inference.LLMStats, log *slog.Logger) (*Provider, error) {
	opts := inference.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
	}
	p := &Provider{Close: func() {}}
	var base inference.Client
	switch cfg.Provider {
	case config.ProviderGemini:
		gc, err := inference.NewGeminiClient(ctx, cfg.GeminiAPIKey, opts, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		base, p.Model = gc, gc.Model()
	case config.ProviderClaude:
		cc := inference.NewClaudeClient(cfg.AnthropicAPIKey, opts)
		if cfg.AnthropicURL != "" {
			cc.WithBaseURL(cfg.AnthropicURL)
		}
		base, p.Model, p.Close = cc, cc.Model(), cc.Close
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	p.Client = inference.NewRetrying(base, inference.RetryConfig{
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.RequestTimeout,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
	}, stats, log)
	return p, nil
}

// AnalyzerOptions maps cfg onto the pipeline options.
func AnalyzerOptions(cfg config.Config, model string) Options {
	return Options{
		Budget: prompt.Budget{
			MaxSlides:     cfg.MaxSlides,
			MaxBodyChars:  cfg.MaxBodyChars,
			MaxImages:     cfg.MaxImages,
			MaxImageBytes: cfg.MaxImageBytes,
		},
		Ingest: ingest.Config{
			NeutralConfidence:   cfg.NeutralConfidence,
			SimilarityThreshold: cfg.SimilarityThreshold,
		},
		Model:             model,
		PdftotextFallback: cfg.PDFFallbackPdftotext,
	}
}

// NewRendererFromConfig returns nil when rendering is disabled, which the
// Analyzer treats as text-only.
func NewRendererFromConfig(cfg config.Config, log *slog.Logger) Renderer {
	if !cfg.RenderImages {
		return nil
	}
	return render.New(render.Config{
		SofficePath:  cfg.SofficePath,
		PdftoppmPath: cfg.PdftoppmPath,
		Timeout:      cfg.RenderTimeout,
		DPI:          cfg.RenderDPI,
	}, nil, log)
}
