package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flightline/pa-status/pkg/logger"
)

// Status is the overall operating status of an airport.
// CLOSED takes precedence over IMPACT, which takes precedence over OK.
type Status string

const (
	StatusOK     Status = "OK"
	StatusImpact Status = "IMPACT"
	StatusClosed Status = "CLOSED"
)

// Event is a single impact descriptor attached to an airport
type Event struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// AirportInfo is a registry entry for one airport
type AirportInfo struct {
	Code string  `json:"code"`
	ICAO string  `json:"icao"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// StatusRecord holds the derived and manually-curated status fields for one
// airport, keyed by its 3-letter code in the document's airports map
type StatusRecord struct {
	ICAO           string  `json:"icao"`
	Status         Status  `json:"status"`
	FlightCategory string  `json:"flight_category"`
	ClosureReason  string  `json:"closure_reason"`
	ImpactReason   string  `json:"impact_reason"`
	MetarRaw       string  `json:"metar_raw"`
	MetarTimeUTC   string  `json:"metar_time_utc"`
	Events         []Event `json:"events"`
}

// Document is the persisted snapshot: the sole contract with the dashboard
// frontend. Field names must remain stable across runs.
type Document struct {
	GeneratedUTC string                   `json:"generated_utc"`
	Regions      map[string][]AirportInfo `json:"regions"`
	Airports     map[string]*StatusRecord `json:"airports"`
}

// Empty returns a document with initialized maps and no airports
func Empty() *Document {
	return &Document{
		Regions:  make(map[string][]AirportInfo),
		Airports: make(map[string]*StatusRecord),
	}
}

// Load reads a previously persisted document. A missing or corrupt file is
// treated as an empty prior state, not an error.
func Load(path string, log *logger.Logger) *Document {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Failed to read prior snapshot, starting from empty state",
				logger.String("path", path), logger.Error(err))
		}
		return Empty()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("Prior snapshot is corrupt, starting from empty state",
			logger.String("path", path), logger.Error(err))
		return Empty()
	}

	if doc.Regions == nil {
		doc.Regions = make(map[string][]AirportInfo)
	}
	if doc.Airports == nil {
		doc.Airports = make(map[string]*StatusRecord)
	}
	return &doc
}

// Write persists the document as pretty-printed UTF-8 JSON with a trailing
// newline. The write is atomic: a temp file in the same directory is renamed
// over the target. Failure here is the one fatal error of a run.
func (d *Document) Write(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
