package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Inference
	Provider        string  `yaml:"provider"`
	GeminiAPIKey    string  `yaml:"gemini_api_key"`
	GeminiBaseURL   string  `yaml:"gemini_base_url"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	AnthropicURL    string  `yaml:"anthropic_url"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	StatsWindow    time.Duration `yaml:"stats_window"`

	// Ingestion
	NeutralConfidence   float64 `yaml:"neutral_confidence"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Prompt budget
	MaxSlides     int `yaml:"max_slides"`
	MaxBodyChars  int `yaml:"max_body_chars"`
	MaxImages     int `yaml:"max_images"`
	MaxImageBytes int `yaml:"max_image_bytes"`

	// Rendering
	RenderImages  bool          `yaml:"render_images"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
	RenderDPI     int           `yaml:"render_dpi"`
	SofficePath   string        `yaml:"soffice_path"`
	PdftoppmPath  string        `yaml:"pdftoppm_path"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	// Server
	Port           string        `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	WorkerCount    int           `yaml:"worker_count"`
	MaxQueueSize   int           `yaml:"max_queue_size"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	JobTTL         time.Duration `yaml:"job_ttl"`

	// Pathstore result sink; disabled when PathstoreURL is empty.
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`
}

const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// Load reads the configuration from the environment.
func Load() Config {
	cfg := Config{
		Provider:        strings.ToLower(envOr("DECKCHECK_PROVIDER", ProviderGemini)),
		GeminiAPIKey:    firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiBaseURL:   os.Getenv("GEMINI_BASE_URL"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicURL:    os.Getenv("ANTHROPIC_URL"),
		Model:           os.Getenv("DECKCHECK_MODEL"),
		Temperature:     envFloat("DECKCHECK_TEMPERATURE", 0.1),
		MaxOutputTokens: envInt("DECKCHECK_MAX_OUTPUT_TOKENS", 8192),

		RequestTimeout: envDuration("DECKCHECK_REQUEST_TIMEOUT", 120*time.Second),
		MaxRetries:     envInt("DECKCHECK_MAX_RETRIES", 3),
		BackoffBase:    envDuration("DECKCHECK_BACKOFF_BASE", time.Second),
		BackoffMax:     envDuration("DECKCHECK_BACKOFF_MAX", 30*time.Second),
		StatsWindow:    envDuration("DECKCHECK_STATS_WINDOW", time.Hour),

		NeutralConfidence:   envFloat("DECKCHECK_NEUTRAL_CONFIDENCE", 0.5),
		SimilarityThreshold: envFloat("DECKCHECK_SIMILARITY_THRESHOLD", 0.85),

		MaxSlides:     envInt("DECKCHECK_MAX_SLIDES", 60),
		MaxBodyChars:  envInt("DECKCHECK_MAX_BODY_CHARS", 40000),
		MaxImages:     envInt("DECKCHECK_MAX_IMAGES", 30),
		MaxImageBytes: envInt("DECKCHECK_MAX_IMAGE_BYTES", 15<<20),

		RenderImages:  envBool("DECKCHECK_RENDER_IMAGES", true),
		RenderTimeout: envDuration("DECKCHECK_RENDER_TIMEOUT", 120*time.Second),
		RenderDPI:     envInt("DECKCHECK_RENDER_DPI", 110),
		SofficePath:   envOr("SOFFICE_PATH", "soffice"),
		PdftoppmPath:  envOr("PDFTOPPM_PATH", "pdftoppm"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		Port:           envOr("PORT", "8090"),
		APIKey:         os.Getenv("DECKCHECK_API_KEY"),
		WorkerCount:    envInt("WORKER_COUNT", 2),
		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 50),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		JobTTL:         envDuration("JOB_TTL", time.Hour),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile loads the environment and overlays the YAML file at path. An
// empty path falls back to DECKCHECK_CONFIG; no file at all is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		path = os.Getenv("DECKCHECK_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.overlay(data); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// overlay sets only the keys present in the document.
func (c *Config) overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 8192
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = time.Hour
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 120 * time.Second
	}
	if c.RenderDPI <= 0 {
		c.RenderDPI = 110
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 50
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
}

// Validate checks what every analysis run needs.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderGemini, ProviderClaude)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0,2]", c.Temperature)
	}
	if c.NeutralConfidence < 0 || c.NeutralConfidence > 1 {
		return fmt.Errorf("neutral confidence %v out of range [0,1]", c.NeutralConfidence)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold %v out of range (0,1]", c.SimilarityThreshold)
	}
	return nil
}

// ValidateServer additionally checks the HTTP service settings.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DECKCHECK_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
