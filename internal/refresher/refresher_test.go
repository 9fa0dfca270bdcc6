package refresher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/fetch"
	"github.com/flightline/pa-status/internal/metar"
	"github.com/flightline/pa-status/internal/nas"
	"github.com/flightline/pa-status/internal/observability"
	"github.com/flightline/pa-status/internal/registry"
	"github.com/flightline/pa-status/internal/snapshot"
	"github.com/flightline/pa-status/pkg/logger"
)

const testStationsCSV = `# stations cache
station_id,station_name,state,country,latitude,longitude
KPIT,Pittsburgh Intl,PA,US,40.4915,-80.2329
KMDT,Harrisburg Intl,PA,US,40.1935,-76.7634
KABE,Lehigh Valley Intl,PA,US,40.6521,-75.4408
`

const testNASXML = `<?xml version="1.0" encoding="UTF-8"?>
<AIRPORT_STATUS_INFORMATION>
  <Delay_type>
    <Airport_Closure_List>
      <Airport>
        <ARPT>ABE</ARPT>
        <Reason>Snow removal</Reason>
      </Airport>
    </Airport_Closure_List>
  </Delay_type>
</AIRPORT_STATUS_INFORMATION>`

var testMETARs = map[string]string{
	"KPIT": "KPIT 270551Z 29012KT 10SM FEW250 15/03 A3010",
	"KMDT": "KMDT 270551Z 01008KT 2SM BR OVC008 06/04 A3012",
	"KABE": "",
}

// testFeeds serves all three remote feeds from one server. The failing flag
// switches every response to a 500 to exercise degradation.
type testFeeds struct {
	server  *httptest.Server
	failing atomic.Bool
}

func newTestFeeds(t *testing.T) *testFeeds {
	t.Helper()
	feeds := &testFeeds{}

	mux := http.NewServeMux()
	mux.HandleFunc("/stations", func(w http.ResponseWriter, r *http.Request) {
		if feeds.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(testStationsCSV))
	})
	mux.HandleFunc("/airport-status-information", func(w http.ResponseWriter, r *http.Request) {
		if feeds.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(testNASXML))
	})
	mux.HandleFunc("/api/data/metar", func(w http.ResponseWriter, r *http.Request) {
		if feeds.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		raw := testMETARs[r.URL.Query().Get("ids")]
		if raw == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(raw + "\n"))
	})

	feeds.server = httptest.NewServer(mux)
	t.Cleanup(feeds.server.Close)
	return feeds
}

func testConfig(t *testing.T, feeds *testFeeds) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Fetch: config.FetchConfig{
			UserAgent:             "pa-status-test/1.0",
			RequestTimeoutSeconds: 5,
			MaxRetries:            0,
			RetryDelayMs:          1,
		},
		Registry: config.RegistryConfig{StationsURL: feeds.server.URL + "/stations"},
		NAS:      config.NASConfig{URL: feeds.server.URL + "/airport-status-information"},
		METAR:    config.METARConfig{APIBaseURL: feeds.server.URL + "/api/data"},
		Snapshot: config.SnapshotConfig{Path: filepath.Join(t.TempDir(), "status.json")},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestService(cfg *config.Config, clock clockwork.Clock) *Service {
	log := logger.NewNop()
	fetcher := fetch.NewClient(cfg.Fetch, log)
	return New(
		cfg,
		registry.NewBuilder(cfg.Registry, fetcher, log),
		nas.NewClient(cfg.NAS, fetcher, log),
		metar.NewClient(cfg.METAR, fetcher, log),
		nil,
		observability.NewMetricsForTesting(),
		clock,
		log,
	)
}

func TestRunBuildsSnapshotFromFeeds(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC))
	svc := newTestService(cfg, clock)

	doc, err := svc.Run(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "2026-02-27T06:00:00Z", doc.GeneratedUTC)
	require.Len(t, doc.Airports, 3)

	pit := doc.Airports["PIT"]
	assert.Equal(t, snapshot.StatusOK, pit.Status)
	assert.Equal(t, "VFR", pit.FlightCategory)
	assert.Equal(t, "27 05:51Z", pit.MetarTimeUTC)

	mdt := doc.Airports["MDT"]
	assert.Equal(t, snapshot.StatusImpact, mdt.Status)
	assert.Equal(t, "IFR", mdt.FlightCategory)
	assert.Equal(t, "IFR: ceiling 800ft, vis 2SM", mdt.ImpactReason)

	abe := doc.Airports["ABE"]
	assert.Equal(t, snapshot.StatusClosed, abe.Status)
	assert.Equal(t, "Snow removal", abe.ClosureReason)
	// No observation in the window
	assert.Equal(t, "UNK", abe.FlightCategory)
	assert.Empty(t, abe.MetarRaw)

	require.Len(t, doc.Regions["Western"], 1)
	require.Len(t, doc.Regions["Central"], 1)
	require.Len(t, doc.Regions["Eastern"], 1)

	assert.Equal(t, doc, svc.Latest())

	// The written snapshot loads back identically
	loaded := snapshot.Load(cfg.Snapshot.Path, logger.NewNop())
	assert.Empty(t, cmp.Diff(doc, loaded))
}

func TestRunReusesPriorRegistry(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC))
	svc := newTestService(cfg, clock)

	_, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	// Break the stations feed only; a non-rebuild run must not need it
	cfg.Registry.StationsURL = feeds.server.URL + "/gone"

	clock.Advance(15 * time.Minute)
	doc, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-27T06:15:00Z", doc.GeneratedUTC)
	assert.Len(t, doc.Airports, 3)
}

func TestRunPreservesPriorStateWhenFeedsFail(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC))
	svc := newTestService(cfg, clock)

	first, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	feeds.failing.Store(true)
	clock.Advance(15 * time.Minute)

	second, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	// Timestamp moves, everything else is carried forward untouched
	assert.Equal(t, "2026-02-27T06:15:00Z", second.GeneratedUTC)
	assert.Empty(t, cmp.Diff(first.Airports, second.Airports))
	assert.Empty(t, cmp.Diff(first.Regions, second.Regions))
}

func TestRunIsIdempotent(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC))
	svc := newTestService(cfg, clock)

	first, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	// Same wall time, same feed data: byte-for-byte the same document
	second, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestConcurrentRunsSerialize(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 27, 6, 0, 0, 0, time.UTC))
	svc := newTestService(cfg, clock)

	_, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	// Ticker refresh and manual refresh may fire together in serve mode;
	// whole runs must not interleave their load/merge/write cycles
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Run(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The written file always matches the document the service holds
	loaded := snapshot.Load(cfg.Snapshot.Path, logger.NewNop())
	assert.Empty(t, cmp.Diff(svc.Latest(), loaded))
}

func TestRunFailsWithoutRegistry(t *testing.T) {
	feeds := newTestFeeds(t)
	cfg := testConfig(t, feeds)
	feeds.failing.Store(true)

	svc := newTestService(cfg, clockwork.NewFakeClock())

	// No prior snapshot and the stations feed is down: nothing to work with
	_, err := svc.Run(context.Background(), false)
	require.Error(t, err)
}
