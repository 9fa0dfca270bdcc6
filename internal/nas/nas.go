// Package nas parses the FAA NAS Status airport-status-information feed and
// derives per-airport closure/impact assessments from it.
package nas

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/flightline/pa-status/internal/snapshot"
)

// Event is one airport event from the feed: a closure, ground stop, ground
// delay program, arrival/departure delay, or deicing notice
type Event struct {
	Type    string // humanized list name, e.g. "Airport Closure"
	Airport string // 3-letter airport code, uppercased
	Reason  string // free-text reason
}

// Reason keywords that indicate a closure even when the event is not in a
// closure-typed list
var closureKeywords = []string{"closed", "closure", "snow", "ice", "field", "runway", "plow"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseEvents walks the NAS status XML and collects every Airport element
// found under a *_List container, regardless of namespace or nesting depth.
// Unexpected shapes are skipped, not fatal.
func ParseEvents(r io.Reader) ([]Event, error) {
	decoder := xml.NewDecoder(r)

	var events []Event
	var listStack []string

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse NAS status XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if strings.HasSuffix(name, "_List") {
				listStack = append(listStack, name)
				continue
			}
			if name == "Airport" && len(listStack) > 0 {
				event, err := decodeAirport(decoder, listStack[len(listStack)-1])
				if err != nil {
					return nil, err
				}
				if event.Airport != "" {
					events = append(events, event)
				}
			}
		case xml.EndElement:
			if strings.HasSuffix(t.Name.Local, "_List") && len(listStack) > 0 {
				listStack = listStack[:len(listStack)-1]
			}
		}
	}

	return events, nil
}

// decodeAirport consumes the subtree of one Airport element, pulling out the
// airport code and reason text. When no explicit reason field exists, the
// flattened text of the whole element serves as a fallback.
func decodeAirport(decoder *xml.Decoder, listName string) (Event, error) {
	event := Event{Type: humanizeListName(listName)}

	depth := 1
	var currentField string
	var allText strings.Builder
	fields := make(map[string]string)

	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return Event{}, fmt.Errorf("failed to parse Airport element: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			currentField = t.Name.Local
		case xml.EndElement:
			depth--
			currentField = ""
		case xml.CharData:
			text := string(t)
			allText.WriteString(text)
			allText.WriteString(" ")
			if currentField != "" {
				fields[currentField] += text
			}
		}
	}

	for _, key := range []string{"ARPT", "Airport", "ARPT_ID"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			event.Airport = strings.ToUpper(v)
			break
		}
	}

	for _, key := range []string{"Reason", "REASON"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			event.Reason = v
			break
		}
	}
	if event.Reason == "" {
		event.Reason = strings.TrimSpace(whitespaceRun.ReplaceAllString(allText.String(), " "))
	}

	return event, nil
}

func humanizeListName(name string) string {
	return strings.ReplaceAll(strings.TrimSuffix(name, "_List"), "_", " ")
}

// isClosureEvent reports whether the event closes the airport: either it
// came from a closure-typed list, or its reason text matches a
// closure-indicating keyword.
func isClosureEvent(event Event) bool {
	if strings.Contains(event.Type, "Closure") {
		return true
	}
	reason := strings.ToLower(event.Reason)
	for _, keyword := range closureKeywords {
		if strings.Contains(reason, keyword) {
			return true
		}
	}
	return false
}

// Assess derives the overall status for one airport from the feed's events,
// by precedence CLOSED > IMPACT > OK. A single closure event closes the
// airport no matter what else is in the feed. Reasons are deduplicated per
// bucket in first-seen order and joined into one display string.
func Assess(events []Event, code string) snapshot.NASResult {
	code = strings.ToUpper(code)

	result := snapshot.NASResult{
		Status: snapshot.StatusOK,
		Events: []snapshot.Event{},
	}

	var closureReasons, impactReasons []string
	seenClosure := make(map[string]bool)
	seenImpact := make(map[string]bool)
	hasClosure := false

	for _, event := range events {
		if event.Airport != code {
			continue
		}

		result.Events = append(result.Events, snapshot.Event{Type: event.Type, Reason: event.Reason})

		if isClosureEvent(event) {
			hasClosure = true
			if event.Reason != "" && !seenClosure[event.Reason] {
				seenClosure[event.Reason] = true
				closureReasons = append(closureReasons, event.Reason)
			}
		} else if event.Reason != "" && !seenImpact[event.Reason] {
			seenImpact[event.Reason] = true
			impactReasons = append(impactReasons, event.Reason)
		}
	}

	switch {
	case hasClosure:
		result.Status = snapshot.StatusClosed
		result.ClosureReason = strings.Join(closureReasons, "; ")
	case len(result.Events) > 0:
		result.Status = snapshot.StatusImpact
		result.ImpactReason = strings.Join(impactReasons, "; ")
	}

	return result
}
