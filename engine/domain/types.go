// Package domain defines the trip planner's request, plan and ingest types and
// validates requests at the service entry points.
package domain

// DefaultGroupSize is applied when a request omits groupSize.
const DefaultGroupSize = 4

// TripRequest is the structured trip-planning input. Optional string fields are
// empty when absent; TripPrice is nil when absent.
type TripRequest struct {
	StartPlace    string   `json:"start_place"`
	Destination   string   `json:"destination"`
	TravelDates   string   `json:"travelDates,omitempty"`
	Duration      int      `json:"duration"`
	GroupSize     int      `json:"groupSize"`
	Interests     []string `json:"interests"`
	BudgetTier    string   `json:"budgetTier,omitempty"`
	TripPrice     *float64 `json:"trip_price,omitempty"`
	StayPref      string   `json:"stayPref,omitempty"`
	TransportPref string   `json:"transportPref,omitempty"`
	Theme         string   `json:"theme,omitempty"`
}

// Normalize fills defaults the wire format leaves implicit.
func (r TripRequest) Normalize() TripRequest {
	if r.GroupSize == 0 {
		r.GroupSize = DefaultGroupSize
	}
	if r.Interests == nil {
		r.Interests = []string{}
	}
	return r
}

// Price returns the numeric budget, or 0 when none was given.
func (r TripRequest) Price() float64 {
	if r.TripPrice == nil {
		return 0
	}
	return *r.TripPrice
}

// Place is a named coordinate inside a stored trip record.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TripRecord is a prior trip imported into the vector store. PlanDetails is
// the embedded text; the remaining fields travel as payload.
type TripRecord struct {
	Source           string   `json:"source"`
	Name             string   `json:"name"`
	StartPlace       Place    `json:"start_place"`
	DestinationPlace Place    `json:"destination_place"`
	VisitedPlaces    []Place  `json:"visited_place"`
	Duration         *int     `json:"duration,omitempty"`
	Budget           *float64 `json:"budget,omitempty"`
	Transportation   string   `json:"transportation,omitempty"`
	Accommodation    string   `json:"accommodation,omitempty"`
	Safety           string   `json:"safety,omitempty"`
	Theme            string   `json:"theme,omitempty"`
	Country          string   `json:"country"`
	PlanDetails      string   `json:"plan_details"`
}

// Payload renders the record as a vector-store payload. Optional fields are
// stored as null so the context assembler can skip them.
func (r TripRecord) Payload() map[string]any {
	visited := make([]any, 0, len(r.VisitedPlaces))
	for _, p := range r.VisitedPlaces {
		visited = append(visited, p.payload())
	}
	p := map[string]any{
		"source":            r.Source,
		"name":              r.Name,
		"start_place":       r.StartPlace.payload(),
		"destination_place": r.DestinationPlace.payload(),
		"country":           r.Country,
		"visited_place":     visited,
		"duration":          nil,
		"budget":            nil,
		"transportation":    nilIfEmpty(r.Transportation),
		"accommodation":     nilIfEmpty(r.Accommodation),
		"safety":            nilIfEmpty(r.Safety),
		"theme":             nilIfEmpty(r.Theme),
		"plan_details":      r.PlanDetails,
	}
	if r.Duration != nil {
		p["duration"] = *r.Duration
	}
	if r.Budget != nil {
		p["budget"] = *r.Budget
	}
	return p
}

func (p Place) payload() map[string]any {
	return map[string]any{"name": p.Name, "latitude": p.Latitude, "longitude": p.Longitude}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
