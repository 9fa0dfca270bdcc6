package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/pkg/logger"
)

// Client performs HTTP GET requests against the remote feeds with a fixed
// identifying User-Agent, a request timeout, and a bounded retry count with
// a fixed delay between attempts.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	logger     *logger.Logger
}

// NewClient creates a new feed fetch client
func NewClient(cfg config.FetchConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		logger:     log.Named("fetch"),
	}
}

// Get fetches the given URL and returns the response body. It retries
// transient failures up to the configured count and returns the last error
// once all attempts are exhausted; callers decide how a failed fetch
// degrades the data derived from it.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("Retrying feed fetch",
				logger.String("url", url),
				logger.Int("attempt", attempt),
				logger.Duration("delay", c.retryDelay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, err := c.getOnce(ctx, url)
		if err != nil {
			lastErr = err
			c.logger.Warn("Feed fetch failed, may retry",
				logger.String("url", url),
				logger.Error(err),
				logger.Int("attempt", attempt+1),
				logger.Int("max_attempts", c.maxRetries+1))
			continue
		}

		if attempt > 0 {
			c.logger.Info("Feed fetch succeeded after retries",
				logger.String("url", url),
				logger.Int("attempts_needed", attempt+1))
		}
		return body, nil
	}

	c.logger.Error("All attempts to fetch feed failed",
		logger.String("url", url),
		logger.Error(lastErr),
		logger.Int("max_attempts", c.maxRetries+1))
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	// 204 is a valid "no data" response from the METAR API
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	return body, nil
}
