package snapshot

import (
	"sort"

	"github.com/flightline/pa-status/internal/metar"
)

// FreshAirport is one airport from the current registry, with its assigned region
type FreshAirport struct {
	Info   AirportInfo
	Region string
}

// NASResult carries the status derived from the NAS feed for one airport.
// A nil NASResult in an Update means the feed was unavailable this run.
type NASResult struct {
	Status        Status
	ClosureReason string
	ImpactReason  string
	Events        []Event
}

// METARResult carries the fields derived from a raw METAR observation.
// A nil METARResult in an Update means no observation was obtained this run.
type METARResult struct {
	Category     metar.Category
	Raw          string
	TimeUTC      string
	ImpactReason string // "<CAT>: <threshold reason>" for degraded categories, empty otherwise
}

// Update holds everything derived for one airport during a refresh run
type Update struct {
	NAS   *NASResult
	METAR *METARResult
}

// Merge produces the new snapshot from the fresh registry, the per-airport
// updates of this run, and the prior document. Freshly derived fields
// overwrite prior values; fields not derived this run are carried forward
// unchanged, so manual overrides survive regenerations. Airports no longer
// in the fresh registry are dropped. Duplicate codes keep the first
// occurrence.
func Merge(prev *Document, fresh []FreshAirport, updates map[string]Update, regionOrder []string, generatedUTC string) *Document {
	doc := Empty()
	doc.GeneratedUTC = generatedUTC
	for _, region := range regionOrder {
		doc.Regions[region] = []AirportInfo{}
	}

	for _, airport := range fresh {
		code := airport.Info.Code
		if _, exists := doc.Airports[code]; exists {
			continue
		}

		doc.Regions[airport.Region] = append(doc.Regions[airport.Region], airport.Info)

		rec := &StatusRecord{
			ICAO:           airport.Info.ICAO,
			Status:         StatusOK,
			FlightCategory: string(metar.CategoryUNK),
			Events:         []Event{},
		}
		if prevRec, ok := prev.Airports[code]; ok {
			copied := *prevRec
			rec = &copied
			rec.ICAO = airport.Info.ICAO
			if rec.Events == nil {
				rec.Events = []Event{}
			}
		}

		applyUpdate(rec, updates[code])
		doc.Airports[code] = rec
	}

	// Stable region ordering for reproducible diffs
	for region := range doc.Regions {
		sort.Slice(doc.Regions[region], func(i, j int) bool {
			return doc.Regions[region][i].Code < doc.Regions[region][j].Code
		})
	}

	return doc
}

// applyUpdate overwrites the fields this run actually derived, leaving the
// rest carried forward from the prior record
func applyUpdate(rec *StatusRecord, upd Update) {
	if upd.METAR != nil {
		rec.FlightCategory = string(metar.Normalize(string(upd.METAR.Category)))
		rec.MetarRaw = upd.METAR.Raw
		rec.MetarTimeUTC = upd.METAR.TimeUTC
	}

	// Status precedence: a NAS-derived closure or impact wins; otherwise a
	// degraded flight category makes the airport an impact; otherwise a good
	// observation clears it to OK. With no derived data at all, the prior
	// status and impact reason stand.
	if upd.NAS != nil {
		rec.Events = upd.NAS.Events
		if rec.Events == nil {
			rec.Events = []Event{}
		}
		switch upd.NAS.Status {
		case StatusClosed:
			rec.Status = StatusClosed
			rec.ClosureReason = upd.NAS.ClosureReason
			return
		case StatusImpact:
			rec.Status = StatusImpact
			rec.ImpactReason = upd.NAS.ImpactReason
			rec.ClosureReason = ""
			return
		default:
			rec.ClosureReason = ""
		}
	}

	if upd.METAR == nil {
		return
	}

	switch metar.Normalize(string(upd.METAR.Category)) {
	case metar.CategoryMVFR, metar.CategoryIFR, metar.CategoryLIFR:
		rec.Status = StatusImpact
		rec.ImpactReason = upd.METAR.ImpactReason
	case metar.CategoryVFR:
		rec.Status = StatusOK
		rec.ImpactReason = ""
	}
	// UNK leaves the prior status and impact reason untouched
}
