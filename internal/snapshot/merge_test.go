package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightline/pa-status/internal/metar"
)

var regionOrder = []string{"Western", "Central", "Eastern"}

func freshPA() []FreshAirport {
	return []FreshAirport{
		{Info: AirportInfo{Code: "PIT", ICAO: "KPIT", Name: "Pittsburgh Intl", Lat: 40.4915, Lon: -80.2329}, Region: "Western"},
		{Info: AirportInfo{Code: "MDT", ICAO: "KMDT", Name: "Harrisburg Intl", Lat: 40.1935, Lon: -76.7634}, Region: "Central"},
		{Info: AirportInfo{Code: "ABE", ICAO: "KABE", Name: "Lehigh Valley Intl", Lat: 40.6521, Lon: -75.4408}, Region: "Eastern"},
	}
}

func TestMergeFromEmptyPrior(t *testing.T) {
	updates := map[string]Update{
		"PIT": {
			NAS:   &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{Category: metar.CategoryVFR, Raw: "KPIT 270551Z 10SM FEW050", TimeUTC: "27 05:51Z"},
		},
		"MDT": {
			NAS: &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{
				Category:     metar.CategoryIFR,
				Raw:          "KMDT 270551Z 01008KT 2SM BR OVC008 06/04 A3012",
				TimeUTC:      "27 05:51Z",
				ImpactReason: "IFR: ceiling 800ft, vis 2SM",
			},
		},
		"ABE": {
			NAS: &NASResult{
				Status:        StatusClosed,
				ClosureReason: "Snow removal",
				Events:        []Event{{Type: "Airport Closure", Reason: "Snow removal"}},
			},
		},
	}

	doc := Merge(Empty(), freshPA(), updates, regionOrder, "2026-02-27T06:00:00Z")

	assert.Equal(t, "2026-02-27T06:00:00Z", doc.GeneratedUTC)
	require.Len(t, doc.Airports, 3)

	pit := doc.Airports["PIT"]
	assert.Equal(t, StatusOK, pit.Status)
	assert.Equal(t, "VFR", pit.FlightCategory)
	assert.Empty(t, pit.ImpactReason)

	mdt := doc.Airports["MDT"]
	assert.Equal(t, StatusImpact, mdt.Status)
	assert.Equal(t, "IFR", mdt.FlightCategory)
	assert.Equal(t, "IFR: ceiling 800ft, vis 2SM", mdt.ImpactReason)
	assert.Equal(t, "27 05:51Z", mdt.MetarTimeUTC)

	abe := doc.Airports["ABE"]
	assert.Equal(t, StatusClosed, abe.Status)
	assert.Equal(t, "Snow removal", abe.ClosureReason)
	// No observation this run, so the category stays unknown
	assert.Equal(t, "UNK", abe.FlightCategory)

	require.Len(t, doc.Regions["Central"], 1)
	assert.Equal(t, "MDT", doc.Regions["Central"][0].Code)
}

func TestMergeIsIdempotent(t *testing.T) {
	updates := map[string]Update{
		"MDT": {
			NAS:   &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{Category: metar.CategoryVFR, Raw: "KMDT 270551Z 10SM FEW050", TimeUTC: "27 05:51Z"},
		},
	}

	first := Merge(Empty(), freshPA(), updates, regionOrder, "2026-02-27T06:00:00Z")
	second := Merge(first, freshPA(), updates, regionOrder, "2026-02-27T06:00:00Z")

	assert.Empty(t, cmp.Diff(first, second))
}

func TestMergePreservesManualFieldsWithoutData(t *testing.T) {
	prev := Empty()
	prev.Airports["MDT"] = &StatusRecord{
		ICAO:           "KMDT",
		Status:         StatusImpact,
		FlightCategory: "MVFR",
		ImpactReason:   "manually flagged: taxiway work",
		MetarRaw:       "KMDT 261451Z 4SM HZ BKN020",
		MetarTimeUTC:   "26 14:51Z",
		Events:         []Event{},
	}

	// Neither feed produced data this run
	doc := Merge(prev, freshPA(), map[string]Update{}, regionOrder, "2026-02-27T06:00:00Z")

	mdt := doc.Airports["MDT"]
	assert.Equal(t, StatusImpact, mdt.Status)
	assert.Equal(t, "manually flagged: taxiway work", mdt.ImpactReason)
	assert.Equal(t, "MVFR", mdt.FlightCategory)
	assert.Equal(t, "26 14:51Z", mdt.MetarTimeUTC)
}

func TestMergeUnknownCategoryPreservesPriorStatus(t *testing.T) {
	prev := Empty()
	prev.Airports["MDT"] = &StatusRecord{
		ICAO:         "KMDT",
		Status:       StatusImpact,
		ImpactReason: "manually flagged: taxiway work",
		Events:       []Event{},
	}

	updates := map[string]Update{
		"MDT": {
			NAS:   &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{Category: metar.CategoryUNK, Raw: "KMDT 270551Z NIL"},
		},
	}
	doc := Merge(prev, freshPA(), updates, regionOrder, "2026-02-27T06:00:00Z")

	mdt := doc.Airports["MDT"]
	// The raw observation is recorded but an unclassifiable METAR does not
	// disturb the standing status
	assert.Equal(t, "KMDT 270551Z NIL", mdt.MetarRaw)
	assert.Equal(t, StatusImpact, mdt.Status)
	assert.Equal(t, "manually flagged: taxiway work", mdt.ImpactReason)
}

func TestMergeVFRClearsImpact(t *testing.T) {
	prev := Empty()
	prev.Airports["MDT"] = &StatusRecord{
		ICAO:           "KMDT",
		Status:         StatusImpact,
		FlightCategory: "IFR",
		ImpactReason:   "IFR: ceiling 800ft, vis 2SM",
		Events:         []Event{},
	}

	updates := map[string]Update{
		"MDT": {
			NAS:   &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{Category: metar.CategoryVFR, Raw: "KMDT 270651Z 10SM CLR", TimeUTC: "27 06:51Z"},
		},
	}
	doc := Merge(prev, freshPA(), updates, regionOrder, "2026-02-27T07:00:00Z")

	mdt := doc.Airports["MDT"]
	assert.Equal(t, StatusOK, mdt.Status)
	assert.Equal(t, "VFR", mdt.FlightCategory)
	assert.Empty(t, mdt.ImpactReason)
}

func TestMergeClosureTrumpsWeather(t *testing.T) {
	updates := map[string]Update{
		"ABE": {
			NAS: &NASResult{
				Status:        StatusClosed,
				ClosureReason: "Snow removal",
				Events:        []Event{{Type: "Airport Closure", Reason: "Snow removal"}},
			},
			METAR: &METARResult{Category: metar.CategoryVFR, Raw: "KABE 270551Z 10SM CLR", TimeUTC: "27 05:51Z"},
		},
	}
	doc := Merge(Empty(), freshPA(), updates, regionOrder, "2026-02-27T06:00:00Z")

	abe := doc.Airports["ABE"]
	assert.Equal(t, StatusClosed, abe.Status)
	assert.Equal(t, "Snow removal", abe.ClosureReason)
	// The observation itself is still recorded
	assert.Equal(t, "VFR", abe.FlightCategory)
}

func TestMergeReopenedAirportClearsClosure(t *testing.T) {
	prev := Empty()
	prev.Airports["ABE"] = &StatusRecord{
		ICAO:          "KABE",
		Status:        StatusClosed,
		ClosureReason: "Snow removal",
		Events:        []Event{{Type: "Airport Closure", Reason: "Snow removal"}},
	}

	updates := map[string]Update{
		"ABE": {
			NAS:   &NASResult{Status: StatusOK, Events: []Event{}},
			METAR: &METARResult{Category: metar.CategoryVFR, Raw: "KABE 271251Z 10SM CLR", TimeUTC: "27 12:51Z"},
		},
	}
	doc := Merge(prev, freshPA(), updates, regionOrder, "2026-02-27T13:00:00Z")

	abe := doc.Airports["ABE"]
	assert.Equal(t, StatusOK, abe.Status)
	assert.Empty(t, abe.ClosureReason)
	assert.Empty(t, abe.Events)
}

func TestMergeDropsAirportsNoLongerInRegistry(t *testing.T) {
	prev := Empty()
	prev.Airports["ZZZ"] = &StatusRecord{ICAO: "KZZZ", Status: StatusOK, Events: []Event{}}

	doc := Merge(prev, freshPA(), map[string]Update{}, regionOrder, "2026-02-27T06:00:00Z")
	assert.NotContains(t, doc.Airports, "ZZZ")
	assert.Len(t, doc.Airports, 3)
}

func TestMergeDuplicateCodesFirstWins(t *testing.T) {
	fresh := append(freshPA(), FreshAirport{
		Info:   AirportInfo{Code: "PIT", ICAO: "KPIT", Name: "Duplicate"},
		Region: "Eastern",
	})

	doc := Merge(Empty(), fresh, map[string]Update{}, regionOrder, "2026-02-27T06:00:00Z")
	assert.Len(t, doc.Airports, 3)
	require.Len(t, doc.Regions["Western"], 1)
	assert.Equal(t, "Pittsburgh Intl", doc.Regions["Western"][0].Name)
	// The duplicate never lands in the other region
	for _, info := range doc.Regions["Eastern"] {
		assert.NotEqual(t, "Duplicate", info.Name)
	}
}

func TestMergeSortsRegionsByCode(t *testing.T) {
	fresh := []FreshAirport{
		{Info: AirportInfo{Code: "RDG", ICAO: "KRDG"}, Region: "Eastern"},
		{Info: AirportInfo{Code: "ABE", ICAO: "KABE"}, Region: "Eastern"},
		{Info: AirportInfo{Code: "PHL", ICAO: "KPHL"}, Region: "Eastern"},
	}

	doc := Merge(Empty(), fresh, map[string]Update{}, regionOrder, "2026-02-27T06:00:00Z")

	codes := make([]string, 0, 3)
	for _, info := range doc.Regions["Eastern"] {
		codes = append(codes, info.Code)
	}
	assert.Equal(t, []string{"ABE", "PHL", "RDG"}, codes)
}
