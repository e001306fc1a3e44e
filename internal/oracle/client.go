package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/conductord/internal/config"
	"github.com/fyrsmithlabs/conductord/internal/logging"
)

const defaultBaseBackoff = 500 * time.Millisecond

// Client is the production Oracle backed by a langchaingo model.
//
// It rate-limits outbound requests, bounds each call with a timeout, and
// retries transient failures with exponential backoff. Expired or
// exhausted calls surface as ordinary errors; the calling component maps
// them into its own failure taxonomy.
type Client struct {
	model       llms.Model
	limiter     *rate.Limiter
	timeout     time.Duration
	maxRetries  int
	temperature float64
	logger      *logging.Logger
}

// NewClient builds a Client from oracle configuration.
func NewClient(ctx context.Context, cfg config.OracleConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for oracle client")
	}

	var model llms.Model
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "googleai":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s model: %w", cfg.Provider, err)
	}

	return &Client{
		model:       model,
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		timeout:     cfg.Timeout.Duration(),
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		logger:      logger.Named("oracle"),
	}, nil
}

// NewClientFromModel wraps an existing model. For tests and embedding.
func NewClientFromModel(model llms.Model, logger *logging.Logger) *Client {
	return &Client{
		model:       model,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		timeout:     2 * time.Minute,
		maxRetries:  1,
		temperature: 0.1,
		logger:      logger.Named("oracle"),
	}
}

// Ask sends a prompt to the reasoning provider and returns its raw text
// answer.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		answer, err := c.generate(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		lastErr = err

		// The parent context ending is never transient.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.logger.Warn(ctx, "oracle request failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("oracle request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	return llms.GenerateFromSinglePrompt(callCtx, c.model, prompt,
		llms.WithTemperature(c.temperature),
	)
}

var _ Oracle = (*Client)(nil)
