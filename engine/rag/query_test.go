package rag

import (
	"testing"

	"github.com/pansea/tripplanner/engine/domain"
)

func TestBuildQuery(t *testing.T) {
	price := 5000.0
	half := 1500.5
	tests := []struct {
		name string
		req  domain.TripRequest
		want string
	}{
		{
			name: "required only",
			req:  domain.TripRequest{StartPlace: "Bangkok", Destination: "Chiang Mai"},
			want: "Trip from Bangkok to Chiang Mai",
		},
		{
			name: "every clause",
			req: domain.TripRequest{
				StartPlace:  "Bangkok",
				Destination: "Chiang Mai",
				TravelDates: "2025-01-10",
				Duration:    3,
				TripPrice:   &price,
				Theme:       "Adventure",
				Interests:   []string{"hiking", "food"},
				BudgetTier:  "Budget",
			},
			want: "Trip from Bangkok to Chiang Mai on 2025-01-10 for 3 days with budget 5000 Adventure themed trip interested in hiking, food Budget budget tier",
		},
		{
			name: "fractional budget",
			req:  domain.TripRequest{StartPlace: "A", Destination: "B", TripPrice: &half},
			want: "Trip from A to B with budget 1500.5",
		},
		{
			name: "zero duration and empty interests leave no trace",
			req:  domain.TripRequest{StartPlace: "A", Destination: "B", Interests: []string{}},
			want: "Trip from A to B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.req); got != tt.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
