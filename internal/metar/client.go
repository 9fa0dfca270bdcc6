package metar

import (
	"context"
	"fmt"
	"strings"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/fetch"
	"github.com/flightline/pa-status/pkg/logger"
)

// Client fetches raw METAR observations from the AviationWeather data API
type Client struct {
	baseURL   string
	hoursBack int
	fetcher   *fetch.Client
	logger    *logger.Logger
}

// NewClient creates a new METAR feed client
func NewClient(cfg config.METARConfig, fetcher *fetch.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		hoursBack: cfg.HoursBack,
		fetcher:   fetcher,
		logger:    log.Named("metar-client"),
	}
}

// FetchRaw fetches the latest raw METAR line for the given ICAO station id.
// Returns an empty string when the station reported no observation in the
// requested window; that is not an error.
func (c *Client) FetchRaw(ctx context.Context, icao string) (string, error) {
	url := fmt.Sprintf("%s/metar?ids=%s&format=raw&hours=%d&taf=false", c.baseURL, icao, c.hoursBack)

	body, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("error fetching METAR for %s: %w", icao, err)
	}

	// Line-oriented response, most recent observation first
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}

	c.logger.Debug("No METAR returned for station", logger.String("icao", icao))
	return "", nil
}
