package nas

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/fetch"
	"github.com/flightline/pa-status/pkg/logger"
)

// Client fetches the NAS airport status information feed
type Client struct {
	url     string
	fetcher *fetch.Client
	logger  *logger.Logger
}

// NewClient creates a new NAS status client
func NewClient(cfg config.NASConfig, fetcher *fetch.Client, log *logger.Logger) *Client {
	return &Client{
		url:     cfg.URL,
		fetcher: fetcher,
		logger:  log.Named("nas-client"),
	}
}

// FetchEvents fetches and parses the current airport event list
func (c *Client) FetchEvents(ctx context.Context) ([]Event, error) {
	body, err := c.fetcher.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("error fetching NAS status: %w", err)
	}

	// The feed occasionally leads with a BOM
	text := strings.TrimPrefix(strings.TrimSpace(string(body)), "\ufeff")

	events, err := ParseEvents(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Parsed NAS status events", logger.Int("event_count", len(events)))
	return events, nil
}
