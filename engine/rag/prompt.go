package rag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pansea/tripplanner/engine/domain"
)

// exampleTemplate is the output shape the model is asked to return. The two
// %s verbs take the JSON-quoted title and date.
const exampleTemplate = `{
    "tripOverview": "2-3 paragraph trip overview",
    "preparation": {
        "overview": "General preparation guidance for this trip",
        "items": [
            {"category": "Documents", "items": ["Passport", "Visa", "Travel insurance"], "notes": "Ensure passport validity"},
            {"category": "Clothing", "items": ["Light clothing", "Rain jacket", "Comfortable shoes"], "notes": "Pack for tropical climate"},
            {"category": "Equipment", "items": ["Camera", "Power bank", "First aid kit"], "notes": "Essential travel gear"}
        ],
        "timeline": "2-3 weeks before departure"
    },
    "trip_plan": {
        "title": %s,
        "date": %s,
        "timeline": [
            {"day": 1, "activities": [{"t": "08:30", "detail": "Activity"}, {"t": "12:00", "detail": "Lunch"}, {"t": "14:00", "detail": "Activity"}, {"t": "18:00", "detail": "Evening"}]},
            {"day": 2, "activities": [{"t": "08:30", "detail": "Activity"}, {"t": "12:00", "detail": "Lunch"}, {"t": "14:00", "detail": "Activity"}, {"t": "18:00", "detail": "Evening"}]}
        ],
        "spots": [{"name": "Location", "latitude": 13.7563, "longitude": 100.5018, "time": "09:30-11:45", "notes": "Details"}],
        "budget": {"transport": 500, "entrance": 200, "meals": 800, "accommodation": 1200, "activities": 600, "total": 3300},
        "permits": {"needed": false, "notes": "Requirements", "seasonal": "Best time"},
        "safety": {
            "registration": "Safety info",
            "checkins": "Check-in procedures",
            "sos": "Emergency: 1669",
            "contacts": {
                "ranger": {"name": "Tourist Police", "phone": "+66-2-123-4567"},
                "hospital": {"name": "Local Hospital", "phone": "+66-2-310-3000"},
                "police": {"name": "Police", "phone": "1155"}
            }
        }
    }
}`

// PlanTitle is the title the example output proposes for req.
func PlanTitle(req domain.TripRequest) string {
	return fmt.Sprintf("%d-day %s trip to %s", req.Duration, orDefault(req.Theme, "travel"), req.Destination)
}

// ExampleJSON returns the output example embedded in the prompt for req.
func ExampleJSON(req domain.TripRequest) string {
	return fmt.Sprintf(exampleTemplate, quote(PlanTitle(req)), quote(orDefault(req.TravelDates, "Flexible")))
}

// BuildPrompt assembles the generation prompt. context is truncated to
// MaxContextChars here, so callers pass it whole.
func BuildPrompt(req domain.TripRequest, context string) string {
	interests := "Sightseeing"
	if len(req.Interests) > 0 {
		interests = strings.Join(req.Interests, ", ")
	}
	budget := "0"
	if p := req.Price(); p > 0 {
		budget = formatNumber(p)
	}
	theme := orDefault(req.Theme, "General")
	group := strconv.Itoa(req.GroupSize)

	var b strings.Builder
	b.WriteString("Generate a travel plan in JSON format for:\n")
	fmt.Fprintf(&b, "From: %s → To: %s\n", req.StartPlace, req.Destination)
	fmt.Fprintf(&b, "Duration: %d days | Budget: %s (%s)\n", req.Duration, budget, orDefault(req.BudgetTier, "Mid-range"))
	fmt.Fprintf(&b, "Group: %s people | Theme: %s\n", group, theme)
	fmt.Fprintf(&b, "Interests: %s\n", interests)
	fmt.Fprintf(&b, "Transport: %s | Stay: %s\n", orDefault(req.TransportPref, "Any"), orDefault(req.StayPref, "Any"))
	fmt.Fprintf(&b, "Dates: %s\n", orDefault(req.TravelDates, "Flexible"))
	b.WriteString("*Provide a latitude and longitude for each place in timeline and spots.*\n\n")
	fmt.Fprintf(&b, "Context: %s\n\n", TruncateContext(context, MaxContextChars))
	b.WriteString("Return ONLY this JSON structure:\n")
	b.WriteString(ExampleJSON(req))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Create preparation checklist based on destination, theme (%s), duration (%d days), and group size (%s people).\n",
		orDefault(req.Theme, "general"), req.Duration, group)
	b.WriteString("Include destination-specific requirements, climate considerations, and activity-specific gear.\n")
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
