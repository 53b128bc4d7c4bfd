package rag

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pansea/tripplanner/engine/domain"
)

// Meta status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	// ErrorTitle is the plan title of a degraded response.
	ErrorTitle = "Error occurred"
	// maxOverviewChars bounds the raw model text echoed in a degraded overview.
	maxOverviewChars = 500
)

var (
	errNotObject    = errors.New("model output is not a JSON object")
	errTrailingData = errors.New("unexpected data after top-level JSON value")
)

// ReconcileInput is everything besides the model text that goes into a
// PlanResponse.
type ReconcileInput struct {
	Request   domain.TripRequest
	QueryText string
	Retrieved []domain.RetrievedItem
}

// StripFence removes a leading ```json and a trailing ``` around the model
// output. Fences anywhere else are left alone.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimSuffix(s, "```")
	return s
}

// Reconcile turns raw model text into a PlanResponse. It never fails: output
// that is not a JSON object yields the degraded response, and every
// substructure of a parsed object falls back to its own default.
func Reconcile(raw string, in ReconcileInput) domain.PlanResponse {
	retrieved := in.Retrieved
	if retrieved == nil {
		retrieved = []domain.RetrievedItem{}
	}

	doc, err := decodeObject(StripFence(raw))
	if err != nil {
		return degraded(raw, err, in, retrieved)
	}

	plan := asMap(doc["trip_plan"])
	return domain.PlanResponse{
		TripOverview:  str(doc["tripOverview"]),
		QueryParams:   in.Request,
		RetrievedData: retrieved,
		TripPlan: domain.TripPlan{
			Title:    str(plan["title"]),
			Date:     str(plan["date"]),
			Timeline: parseTimeline(plan["timeline"]),
			Spots:    parseSpots(plan["spots"]),
			Budget:   parseBudget(plan["budget"]),
			Permits:  parsePermits(plan["permits"]),
			Safety:   parseSafety(plan["safety"]),
		},
		Preparation: parsePreparation(doc["preparation"]),
		Meta: map[string]any{
			"status":        StatusSuccess,
			"query_text":    in.QueryText,
			"results_count": len(retrieved),
			"theme":         nilIfEmpty(in.Request.Theme),
			"interests":     in.Request.Interests,
			"budget_tier":   nilIfEmpty(in.Request.BudgetTier),
			"group_size":    in.Request.GroupSize,
		},
	}
}

func degraded(raw string, err error, in ReconcileInput, retrieved []domain.RetrievedItem) domain.PlanResponse {
	overview := raw
	if utf8.RuneCountInString(raw) > maxOverviewChars {
		overview = string([]rune(raw)[:maxOverviewChars]) + TruncationMarker
	}
	return domain.PlanResponse{
		TripOverview:  overview,
		QueryParams:   in.Request,
		RetrievedData: retrieved,
		TripPlan: domain.TripPlan{
			Title:    ErrorTitle,
			Timeline: []domain.DayTimeline{},
			Spots:    []domain.Spot{},
			Budget:   domain.ZeroBudget(),
		},
		Meta: map[string]any{
			"status":        StatusError,
			"error":         err.Error(),
			"query_text":    in.QueryText,
			"results_count": len(retrieved),
		},
	}
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return m, nil
}

// parseTimeline keeps days that carry both day and activities, and within
// them activities that carry both t and detail.
func parseTimeline(v any) []domain.DayTimeline {
	out := []domain.DayTimeline{}
	for _, item := range asList(v) {
		d := asMap(item)
		day, ok := integer(d["day"])
		if !ok {
			continue
		}
		rawActs, ok := d["activities"].([]any)
		if !ok {
			continue
		}
		acts := []domain.TimelineEntry{}
		for _, a := range rawActs {
			am := asMap(a)
			t, hasT := am["t"]
			detail, hasDetail := am["detail"]
			if !hasT || !hasDetail {
				continue
			}
			acts = append(acts, domain.TimelineEntry{T: str(t), Detail: str(detail)})
		}
		out = append(out, domain.DayTimeline{Day: day, Activities: acts})
	}
	return out
}

// parseSpots skips entries without a name; time and notes default to "".
func parseSpots(v any) []domain.Spot {
	out := []domain.Spot{}
	for _, item := range asList(v) {
		s := asMap(item)
		name := str(s["name"])
		if name == "" {
			continue
		}
		out = append(out, domain.Spot{
			Name:      name,
			Latitude:  number(s["latitude"]),
			Longitude: number(s["longitude"]),
			Time:      str(s["time"]),
			Notes:     str(s["notes"]),
		})
	}
	return out
}

func parseBudget(v any) domain.Budget {
	b := asMap(v)
	return domain.Budget{
		Transport:     number(b["transport"]),
		Entrance:      number(b["entrance"]),
		Meals:         number(b["meals"]),
		Accommodation: number(b["accommodation"]),
		Activities:    number(b["activities"]),
		Total:         number(b["total"]),
	}
}

func parsePermits(v any) *domain.Permits {
	p := asMap(v)
	if len(p) == 0 {
		return nil
	}
	return &domain.Permits{
		Needed:   boolean(p["needed"]),
		Notes:    str(p["notes"]),
		Seasonal: str(p["seasonal"]),
	}
}

func parseSafety(v any) *domain.Safety {
	s := asMap(v)
	if len(s) == 0 {
		return nil
	}
	c := asMap(s["contacts"])
	return &domain.Safety{
		Registration: str(s["registration"]),
		Checkins:     str(s["checkins"]),
		SOS:          str(s["sos"]),
		Contacts: &domain.SafetyContacts{
			Ranger:   parseContact(c["ranger"]),
			Hospital: parseContact(c["hospital"]),
			Police:   parseContact(c["police"]),
		},
	}
}

func parseContact(v any) *domain.Contact {
	c := asMap(v)
	if len(c) == 0 {
		return nil
	}
	return &domain.Contact{Name: str(c["name"]), Phone: str(c["phone"])}
}

func parsePreparation(v any) *domain.Preparation {
	p := asMap(v)
	if len(p) == 0 {
		return nil
	}
	items := []domain.PreparationItem{}
	for _, raw := range asList(p["items"]) {
		it, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		names := []string{}
		for _, n := range asList(it["items"]) {
			if s := str(n); s != "" {
				names = append(names, s)
			}
		}
		items = append(items, domain.PreparationItem{
			Category: str(it["category"]),
			Items:    names,
			Notes:    str(it["notes"]),
		})
	}
	return &domain.Preparation{
		Overview: str(p["overview"]),
		Items:    items,
		Timeline: str(p["timeline"]),
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// str renders strings and numbers; anything else is "".
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

// number accepts JSON numbers and numeric strings.
func number(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func integer(v any) (int, bool) {
	f := number(v)
	if f == nil || *f != math.Trunc(*f) {
		return 0, false
	}
	return int(*f), true
}

func boolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	default:
		return false
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
