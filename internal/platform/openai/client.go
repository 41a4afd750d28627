package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultDimensions     = 1536
	DefaultTimeout        = 60 * time.Second
	DefaultMaxRetries     = 3
)

var ErrAPIKeyNotSet = errors.New("openai api key not set")

// Config carries everything needed to reach the OpenAI API. BaseURL is only
// set when pointing at a compatible gateway or a test server.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Dimensions     int
	Timeout        time.Duration
	MaxRetries     int
	Temperature    *float64
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client is the shared SDK handle used by the generator and the embedder.
type Client struct {
	log *logger.Logger
	sdk openai.Client
	cfg Config
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if log == nil {
		log = logger.Nop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Client{
		log: log.With("component", "OpenAIClient"),
		sdk: openai.NewClient(opts...),
		cfg: cfg,
	}, nil
}

func (c *Client) Model() string          { return c.cfg.Model }
func (c *Client) EmbeddingModel() string { return c.cfg.EmbeddingModel }
func (c *Client) Dimensions() int        { return c.cfg.Dimensions }

func isRateLimit(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isRateLimit(err):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
