// Package registry builds the canonical list of airports from the
// AviationWeather stations dataset.
package registry

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/fetch"
	"github.com/flightline/pa-status/pkg/logger"
)

// Airport is one canonical registry entry
type Airport struct {
	Code   string // 3-letter display id, unique key
	ICAO   string // 4-letter station id
	Name   string
	Lat    float64
	Lon    float64
	Region string
}

// Builder fetches and parses the station metadata feed
type Builder struct {
	cfg     config.RegistryConfig
	fetcher *fetch.Client
	logger  *logger.Logger
}

// NewBuilder creates a new registry builder
func NewBuilder(cfg config.RegistryConfig, fetcher *fetch.Client, log *logger.Logger) *Builder {
	return &Builder{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  log.Named("registry"),
	}
}

// Build fetches the stations dataset and returns the filtered airport list,
// deduplicated by code (first occurrence wins) and sorted within the parse
// order of the feed.
func (b *Builder) Build(ctx context.Context) ([]Airport, error) {
	body, err := b.fetcher.Get(ctx, b.cfg.StationsURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching stations dataset: %w", err)
	}

	airports, err := ParseStations(string(body), b.cfg)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Built airport registry",
		logger.Int("airport_count", len(airports)),
		logger.String("state", b.cfg.State))
	return airports, nil
}

// ParseStations parses the stations CSV (comment lines prefixed "#"
// stripped) into airport records, filtering to stations in the configured
// state that look like airport METAR stations.
func ParseStations(text string, cfg config.RegistryConfig) ([]Airport, error) {
	rows, header, err := readCSV(text)
	if err != nil {
		return nil, err
	}

	var airports []Airport
	seen := make(map[string]bool)

	for _, row := range rows {
		get := func(column string) string {
			idx, ok := header[column]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		state := strings.ToUpper(get("state"))
		if state != strings.ToUpper(cfg.State) {
			continue
		}

		sid := strings.ToUpper(get("station_id"))
		if len(sid) != 3 && len(sid) != 4 {
			continue
		}

		lat, latErr := strconv.ParseFloat(get("latitude"), 64)
		lon, lonErr := strconv.ParseFloat(get("longitude"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		code := CodeFromStationID(sid)
		if seen[code] {
			continue
		}
		seen[code] = true

		name := get("station_name")
		if name == "" {
			name = sid
		}

		airports = append(airports, Airport{
			Code:   code,
			ICAO:   ICAOFromStationID(sid),
			Name:   name,
			Lat:    lat,
			Lon:    lon,
			Region: cfg.RegionForLon(lon),
		})
	}

	return airports, nil
}

// readCSV strips comment and blank lines, then parses the remainder with the
// first row as the header
func readCSV(text string) ([][]string, map[string]int, error) {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return nil, nil, fmt.Errorf("stations dataset contained no data rows")
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(kept, "\n")))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse stations CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("stations dataset contained no data rows")
	}

	header := make(map[string]int, len(records[0]))
	for i, column := range records[0] {
		header[strings.TrimSpace(strings.ToLower(column))] = i
	}

	return records[1:], header, nil
}

// CodeFromStationID derives the 3-letter display code: a 4-letter Kxxx ICAO
// id loses its K prefix, anything else passes through uppercased
func CodeFromStationID(stationID string) string {
	sid := strings.ToUpper(strings.TrimSpace(stationID))
	if len(sid) == 4 && strings.HasPrefix(sid, "K") {
		return sid[1:]
	}
	return sid
}

// ICAOFromStationID derives the 4-letter ICAO id: a 3-letter code gains a K
// prefix, anything else passes through uppercased
func ICAOFromStationID(stationID string) string {
	sid := strings.ToUpper(strings.TrimSpace(stationID))
	if len(sid) == 3 {
		return "K" + sid
	}
	return sid
}
