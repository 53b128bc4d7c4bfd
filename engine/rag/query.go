package rag

import (
	"strconv"
	"strings"

	"github.com/pansea/tripplanner/engine/domain"
)

// BuildQuery renders a request as one sentence for embedding. Clauses appear
// in a fixed order and absent fields leave no trace.
func BuildQuery(req domain.TripRequest) string {
	var b strings.Builder
	b.WriteString("Trip from ")
	b.WriteString(req.StartPlace)
	b.WriteString(" to ")
	b.WriteString(req.Destination)

	if req.TravelDates != "" {
		b.WriteString(" on " + req.TravelDates)
	}
	if req.Duration > 0 {
		b.WriteString(" for " + strconv.Itoa(req.Duration) + " days")
	}
	if p := req.Price(); p > 0 {
		b.WriteString(" with budget " + formatNumber(p))
	}
	if req.Theme != "" {
		b.WriteString(" " + req.Theme + " themed trip")
	}
	if len(req.Interests) > 0 {
		b.WriteString(" interested in " + strings.Join(req.Interests, ", "))
	}
	if req.BudgetTier != "" {
		b.WriteString(" " + req.BudgetTier + " budget tier")
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
