// Package refresher runs the fetch, classify, merge, and write pipeline that
// regenerates the status document.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/metar"
	"github.com/flightline/pa-status/internal/nas"
	"github.com/flightline/pa-status/internal/observability"
	"github.com/flightline/pa-status/internal/registry"
	"github.com/flightline/pa-status/internal/snapshot"
	"github.com/flightline/pa-status/internal/storage/sqlite"
	"github.com/flightline/pa-status/pkg/logger"
)

// Service orchestrates one refresh run. Fetches are strictly sequential:
// one HTTP request completes before the next begins.
type Service struct {
	cfg         *config.Config
	registry    *registry.Builder
	nasClient   *nas.Client
	metarClient *metar.Client
	history     *sqlite.HistoryStorage
	metrics     *observability.Metrics
	clock       clockwork.Clock
	logger      *logger.Logger

	// runMu serializes whole runs; the ticker loop and a manual refresh
	// must never interleave their load/merge/write cycles
	runMu sync.Mutex

	mu     sync.RWMutex
	latest *snapshot.Document
}

// New creates a new refresher service. history and metrics may be nil.
func New(
	cfg *config.Config,
	registryBuilder *registry.Builder,
	nasClient *nas.Client,
	metarClient *metar.Client,
	history *sqlite.HistoryStorage,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		registry:    registryBuilder,
		nasClient:   nasClient,
		metarClient: metarClient,
		history:     history,
		metrics:     metrics,
		clock:       clock,
		logger:      log.Named("refresher"),
	}
}

// Latest returns the document produced by the most recent successful run,
// or nil if no run has completed yet
func (s *Service) Latest() *snapshot.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Run executes one full refresh: load the prior snapshot, fetch fresh remote
// data, recompute derived fields, merge, and write the document back. When
// rebuildRegistry is set (or no registry exists yet) the airport list is
// rebuilt from the stations dataset; otherwise the prior document's regions
// are reused. Only a failed output write is fatal.
func (s *Service) Run(ctx context.Context, rebuildRegistry bool) (*snapshot.Document, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := s.clock.Now()
	s.logger.Info("Starting refresh run", logger.Bool("rebuild_registry", rebuildRegistry))

	prev := snapshot.Load(s.cfg.Snapshot.Path, s.logger)

	fresh, err := s.currentAirports(ctx, prev, rebuildRegistry)
	if err != nil {
		return nil, err
	}

	updates := s.collectUpdates(ctx, fresh)

	generated := s.clock.Now().UTC().Format("2006-01-02T15:04:05Z")
	doc := snapshot.Merge(prev, fresh, updates, s.cfg.Registry.RegionNames(), generated)

	if err := doc.Write(s.cfg.Snapshot.Path); err != nil {
		if s.metrics != nil {
			s.metrics.RefreshFailures.Inc()
		}
		return nil, fmt.Errorf("failed to write snapshot to %s: %w", s.cfg.Snapshot.Path, err)
	}

	if s.history != nil {
		if err := s.history.RecordRun(doc); err != nil {
			s.logger.Warn("Failed to record status history", logger.Error(err))
		}
	}

	s.observe(doc, s.clock.Now().Sub(start))

	s.mu.Lock()
	s.latest = doc
	s.mu.Unlock()

	s.logger.Info("Refresh run completed",
		logger.Int("airport_count", len(doc.Airports)),
		logger.String("generated_utc", doc.GeneratedUTC),
		logger.Duration("duration", s.clock.Now().Sub(start)))
	return doc, nil
}

// currentAirports resolves this run's airport list, either by rebuilding the
// registry from the stations dataset or by reusing the prior document's
// regions
func (s *Service) currentAirports(ctx context.Context, prev *snapshot.Document, rebuild bool) ([]snapshot.FreshAirport, error) {
	if !rebuild && len(prev.Regions) > 0 && countAirports(prev) > 0 {
		return airportsFromPrior(prev, s.cfg.Registry.RegionNames()), nil
	}

	if !rebuild {
		s.logger.Warn("No prior registry found, rebuilding from stations dataset")
	}

	airports, err := s.registry.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build airport registry: %w", err)
	}
	if len(airports) == 0 {
		return nil, fmt.Errorf("stations dataset yielded no airports")
	}

	fresh := make([]snapshot.FreshAirport, 0, len(airports))
	for _, a := range airports {
		fresh = append(fresh, snapshot.FreshAirport{
			Info:   snapshot.AirportInfo{Code: a.Code, ICAO: a.ICAO, Name: a.Name, Lat: a.Lat, Lon: a.Lon},
			Region: a.Region,
		})
	}
	return fresh, nil
}

// collectUpdates fetches the NAS feed once, then the raw METAR for each
// airport in turn, and assembles the per-airport updates for the merge
func (s *Service) collectUpdates(ctx context.Context, fresh []snapshot.FreshAirport) map[string]snapshot.Update {
	updates := make(map[string]snapshot.Update, len(fresh))

	nasEvents, nasErr := s.nasClient.FetchEvents(ctx)
	if nasErr != nil {
		s.logger.Warn("NAS status fetch failed, prior statuses stand", logger.Error(nasErr))
		if s.metrics != nil {
			s.metrics.FetchFailures.WithLabelValues("nas").Inc()
		}
	} else {
		s.logger.Info("NAS status fetched", logger.Int("event_count", len(nasEvents)))
	}

	for _, airport := range fresh {
		code := airport.Info.Code
		upd := snapshot.Update{}

		if nasErr == nil {
			result := nas.Assess(nasEvents, code)
			upd.NAS = &result
		}

		raw, err := s.metarClient.FetchRaw(ctx, airport.Info.ICAO)
		switch {
		case err != nil:
			s.logger.Warn("METAR fetch failed, prior observation stands",
				logger.String("code", code),
				logger.String("icao", airport.Info.ICAO),
				logger.Error(err))
			if s.metrics != nil {
				s.metrics.FetchFailures.WithLabelValues("metar").Inc()
			}
		case raw == "":
			s.logger.Debug("No recent METAR for station",
				logger.String("code", code),
				logger.String("icao", airport.Info.ICAO))
		default:
			category, reason := metar.Classify(raw)
			result := snapshot.METARResult{
				Category: category,
				Raw:      raw,
				TimeUTC:  metar.ObservationTime(raw),
			}
			if reason != "" {
				result.ImpactReason = fmt.Sprintf("%s: %s", category, reason)
			}
			upd.METAR = &result
		}

		updates[code] = upd
	}

	return updates
}

// observe updates the serve-mode metrics after a successful run
func (s *Service) observe(doc *snapshot.Document, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RefreshRuns.Inc()
	s.metrics.RunDuration.Observe(elapsed.Seconds())

	counts := map[snapshot.Status]int{}
	for _, rec := range doc.Airports {
		counts[rec.Status]++
	}
	for _, status := range []snapshot.Status{snapshot.StatusOK, snapshot.StatusImpact, snapshot.StatusClosed} {
		s.metrics.AirportsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func countAirports(doc *snapshot.Document) int {
	n := 0
	for _, list := range doc.Regions {
		n += len(list)
	}
	return n
}

// airportsFromPrior reconstructs the fresh list from the prior document,
// preserving region assignments
func airportsFromPrior(prev *snapshot.Document, regionOrder []string) []snapshot.FreshAirport {
	var fresh []snapshot.FreshAirport
	seen := make(map[string]bool)

	appendRegion := func(region string) {
		for _, info := range prev.Regions[region] {
			if seen[info.Code] {
				continue
			}
			seen[info.Code] = true
			fresh = append(fresh, snapshot.FreshAirport{Info: info, Region: region})
		}
	}

	for _, region := range regionOrder {
		appendRegion(region)
	}
	// Regions that exist in the prior document but not in the current config
	// still carry their airports forward
	for region := range prev.Regions {
		if !containsString(regionOrder, region) {
			appendRegion(region)
		}
	}

	return fresh
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
