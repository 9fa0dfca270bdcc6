package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings (serve mode only)
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Fetch    FetchConfig    `toml:"fetch"`    // Shared HTTP fetch settings (user agent, retries)
	Registry RegistryConfig `toml:"registry"` // Station registry builder settings
	NAS      NASConfig      `toml:"nas"`      // FAA NAS Status feed settings
	METAR    METARConfig    `toml:"metar"`    // Raw METAR feed settings
	Snapshot SnapshotConfig `toml:"snapshot"` // Output document settings
	Storage  StorageConfig  `toml:"storage"`  // Status history persistence settings
	Refresh  RefreshConfig  `toml:"refresh"`  // Periodic refresh settings (serve mode only)
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request on a keep-alive connection
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory to serve static files from (the dashboard, e.g., "docs")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// FetchConfig contains settings shared by all remote feed clients
type FetchConfig struct {
	UserAgent             string `toml:"user_agent"`              // Identifying User-Agent header sent with every request
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP request timeout in seconds
	MaxRetries            int    `toml:"max_retries"`             // Number of retries after the first failed attempt
	RetryDelayMs          int    `toml:"retry_delay_ms"`          // Fixed delay between retry attempts in milliseconds
}

// RegistryConfig contains station registry builder configuration
type RegistryConfig struct {
	StationsURL string       `toml:"stations_url"` // Stations dataset URL (CSV with # comment lines)
	State       string       `toml:"state"`        // Two-letter state filter (e.g., "PA")
	Regions     []RegionBand `toml:"regions"`      // Ordered longitude bands, west to east; a station falls in the first band whose max_lon it does not exceed
}

// RegionBand defines one geographic region as a longitude upper bound
type RegionBand struct {
	Name   string  `toml:"name"`    // Display name of the region (e.g., "Western")
	MaxLon float64 `toml:"max_lon"` // Inclusive upper bound on longitude in decimal degrees
}

// NASConfig contains FAA NAS Status feed configuration
type NASConfig struct {
	URL string `toml:"url"` // Airport status information XML endpoint
}

// METARConfig contains raw METAR feed configuration
type METARConfig struct {
	APIBaseURL string `toml:"api_base_url"` // AviationWeather data API base URL (e.g., https://aviationweather.gov/api/data)
	HoursBack  int    `toml:"hours_back"`   // How many hours of history to request per station
}

// SnapshotConfig contains output document configuration
type SnapshotConfig struct {
	Path string `toml:"path"` // Output file path (e.g., "docs/status.json")
}

// StorageConfig contains status history persistence configuration
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`     // Enable recording of status changes into SQLite
	SQLitePath string `toml:"sqlite_path"` // Path to the history database file
}

// RefreshConfig contains periodic refresh configuration for serve mode
type RefreshConfig struct {
	IntervalMinutes int `toml:"interval_minutes"` // How often to re-run the refresh pipeline
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "PA-Airport-Status/1.0"
	}
	if c.Fetch.RequestTimeoutSeconds <= 0 {
		c.Fetch.RequestTimeoutSeconds = 30
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be 0 or greater")
	}
	if c.Fetch.RetryDelayMs <= 0 {
		c.Fetch.RetryDelayMs = 1000
	}

	if c.Registry.StationsURL == "" {
		return fmt.Errorf("registry stations_url is required")
	}
	if c.Registry.State == "" {
		c.Registry.State = "PA"
	}
	if len(c.Registry.Regions) == 0 {
		c.Registry.Regions = []RegionBand{
			{Name: "Western", MaxLon: -78.5},
			{Name: "Central", MaxLon: -76.5},
			{Name: "Eastern", MaxLon: 180.0},
		}
	}
	// The last band must be a catch-all so every station lands somewhere
	if c.Registry.Regions[len(c.Registry.Regions)-1].MaxLon < 180.0 {
		return fmt.Errorf("last region band must have max_lon = 180.0 to act as a catch-all")
	}
	bandNames := make(map[string]bool)
	for _, band := range c.Registry.Regions {
		if band.Name == "" {
			return fmt.Errorf("region band with empty name")
		}
		if bandNames[band.Name] {
			return fmt.Errorf("duplicate region band name: %s", band.Name)
		}
		bandNames[band.Name] = true
	}

	if c.NAS.URL == "" {
		return fmt.Errorf("nas url is required")
	}
	if c.METAR.APIBaseURL == "" {
		return fmt.Errorf("metar api_base_url is required")
	}
	if c.METAR.HoursBack <= 0 {
		c.METAR.HoursBack = 2
	}

	if c.Snapshot.Path == "" {
		c.Snapshot.Path = "docs/status.json"
	}

	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path is required when storage is enabled")
	}

	if c.Refresh.IntervalMinutes <= 0 {
		c.Refresh.IntervalMinutes = 15
	}

	return nil
}

// ValidateServer validates the server section; only serve mode needs it
func (c *Config) ValidateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "docs"
	}
	return nil
}

// RegionNames returns the configured region names in band order
func (c *RegistryConfig) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for _, band := range c.Regions {
		names = append(names, band.Name)
	}
	return names
}

// RegionForLon returns the region name for the given longitude
func (c *RegistryConfig) RegionForLon(lon float64) string {
	for _, band := range c.Regions {
		if lon <= band.MaxLon {
			return band.Name
		}
	}
	return c.Regions[len(c.Regions)-1].Name
}
