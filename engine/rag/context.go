package rag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/semantic"
)

// MaxContextChars bounds the retrieved context placed in a prompt.
const MaxContextChars = 4000

// TruncationMarker is appended when the context was cut.
const TruncationMarker = "..."

// contextField maps one payload key to one line of a context block.
// render returns "" when the value is absent or empty, which drops the line.
type contextField struct {
	key    string
	render func(v any) string
}

// contextFields is the ordered rendering table for a trip payload.
var contextFields = []contextField{
	{"name", plain("")},
	{"start_place", nestedName("Start: ")},
	{"destination_place", nestedName("Destination: ")},
	{"country", plain("Country: ")},
	{"visited_place", visitedPlaces},
	{"duration", nonZero("Duration: ", " days")},
	{"budget", nonZero("Budget: ", " THB")},
	{"transportation", plain("Transportation: ")},
	{"accommodation", plain("Accommodation: ")},
	{"safety", plain("Safety: ")},
	{"theme", plain("Theme: ")},
	{"plan_details", plain("Plan details: ")},
	{"source", plain("Source: ")},
	{"text", plain("")},
}

// RenderRecord renders one payload as newline-separated labelled lines.
func RenderRecord(payload map[string]any) string {
	lines := make([]string, 0, len(contextFields))
	for _, f := range contextFields {
		if line := f.render(payload[f.key]); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// AssembleContext concatenates rendered records in retrieval order, each
// block prefixed by a newline. Records that render to nothing are skipped.
func AssembleContext(recs []semantic.Record) string {
	var b strings.Builder
	for _, r := range recs {
		block := RenderRecord(r.Payload)
		if block == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(block)
	}
	return b.String()
}

// TruncateContext cuts s to at most max characters and appends the marker
// when anything was removed.
func TruncateContext(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// RetrievedItems summarizes records for the response, in order.
func RetrievedItems(recs []semantic.Record) []domain.RetrievedItem {
	out := make([]domain.RetrievedItem, 0, len(recs))
	for _, r := range recs {
		name := scalar(r.Payload["place_name"])
		if name == "" {
			name = scalar(r.Payload["name"])
		}
		if name == "" {
			name = semantic.UnknownID
		}
		out = append(out, domain.RetrievedItem{PlaceID: r.ID, PlaceName: name, Score: r.Score})
	}
	return out
}

func plain(label string) func(any) string {
	return func(v any) string {
		s := scalar(v)
		if s == "" {
			return ""
		}
		return label + s
	}
}

// nonZero also drops numeric zero, which means "unknown" for durations and
// budgets.
func nonZero(label, suffix string) func(any) string {
	return func(v any) string {
		s := scalar(v)
		if s == "" {
			return ""
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
			return ""
		}
		return label + s + suffix
	}
}

func nestedName(label string) func(any) string {
	return func(v any) string {
		m, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		return plain(label)(m["name"])
	}
}

func visitedPlaces(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (lat: %s, lon: %s)", scalar(p["name"]), scalar(p["latitude"]), scalar(p["longitude"])))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Visited: " + strings.Join(parts, ", ")
}

// scalar renders a payload leaf. Containers render as "".
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
