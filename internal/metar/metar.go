package metar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category is a METAR-derived flight category
type Category string

const (
	CategoryVFR  Category = "VFR"
	CategoryMVFR Category = "MVFR"
	CategoryIFR  Category = "IFR"
	CategoryLIFR Category = "LIFR"
	CategoryUNK  Category = "UNK"
)

// Normalize returns the category if it is a known value, UNK otherwise
func Normalize(s string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryVFR:
		return CategoryVFR
	case CategoryMVFR:
		return CategoryMVFR
	case CategoryIFR:
		return CategoryIFR
	case CategoryLIFR:
		return CategoryLIFR
	default:
		return CategoryUNK
	}
}

var (
	// Visibility groups: "2 1/2SM", "1/2SM", "10SM"
	reVisMixed = regexp.MustCompile(`\b(\d+)\s+(\d+)/(\d+)SM\b`)
	reVisFrac  = regexp.MustCompile(`\b(\d+)/(\d+)SM\b`)
	reVisWhole = regexp.MustCompile(`\b(\d+)SM\b`)

	// Cloud layers that can form a ceiling: broken, overcast, vertical visibility
	reCeiling = regexp.MustCompile(`\b(VV|BKN|OVC)(\d{3})\b`)

	// Observation time group like 270551Z
	reObsTime = regexp.MustCompile(`\b(\d{2})(\d{2})(\d{2})Z\b`)
)

// ParseVisibilitySM extracts the prevailing visibility in statute miles from
// raw METAR text, handling whole numbers, fractions, and mixed forms.
func ParseVisibilitySM(raw string) (float64, bool) {
	if m := reVisMixed.FindStringSubmatch(raw); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den == 0 {
			return 0, false
		}
		return whole + num/den, true
	}
	if m := reVisFrac.FindStringSubmatch(raw); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den == 0 {
			return 0, false
		}
		return num / den, true
	}
	if m := reVisWhole.FindStringSubmatch(raw); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return v, true
	}
	return 0, false
}

// ParseCeilingFt extracts the ceiling in feet AGL from raw METAR text: the
// lowest base among BKN/OVC/VV layers, encoded in hundreds of feet.
func ParseCeilingFt(raw string) (int, bool) {
	layers := reCeiling.FindAllStringSubmatch(raw, -1)
	lowest := 0
	found := false
	for _, layer := range layers {
		h, err := strconv.Atoi(layer[2])
		if err != nil {
			continue
		}
		ft := h * 100
		if !found || ft < lowest {
			lowest = ft
			found = true
		}
	}
	return lowest, found
}

// ObservationTime extracts the METAR day/time group ("270551Z") and renders
// it as "27 05:51Z". Returns an empty string when no time group is present.
func ObservationTime(raw string) string {
	m := reObsTime.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s %s:%sZ", m[1], m[2], m[3])
}

// Classify derives the flight category from raw METAR text, evaluated worst
// first so ties break deterministically. A quantity that could not be parsed
// does not trigger a worse category. The returned reason names the measured
// values that drove the classification, empty for VFR and UNK.
func Classify(raw string) (Category, string) {
	vis, hasVis := ParseVisibilitySM(raw)
	ceil, hasCeil := ParseCeilingFt(raw)

	if !hasVis && !hasCeil {
		return CategoryUNK, ""
	}

	reason := func() string {
		parts := make([]string, 0, 2)
		if hasCeil {
			parts = append(parts, fmt.Sprintf("ceiling %dft", ceil))
		}
		if hasVis {
			parts = append(parts, fmt.Sprintf("vis %sSM", strconv.FormatFloat(vis, 'g', -1, 64)))
		}
		return strings.Join(parts, ", ")
	}

	if (hasCeil && ceil < 500) || (hasVis && vis < 1.0) {
		return CategoryLIFR, reason()
	}
	if (hasCeil && ceil < 1000) || (hasVis && vis < 3.0) {
		return CategoryIFR, reason()
	}
	if (hasCeil && ceil < 3000) || (hasVis && vis <= 5.0) {
		return CategoryMVFR, reason()
	}
	return CategoryVFR, ""
}
