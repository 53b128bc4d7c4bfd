package domain

// RetrievedItem summarizes one retrieved trip record in a PlanResponse.
type RetrievedItem struct {
	PlaceID   string  `json:"place_id"`
	PlaceName string  `json:"place_name"`
	Score     float64 `json:"score"`
}

// TimelineEntry is one timed activity within a day.
type TimelineEntry struct {
	T      string `json:"t"`
	Detail string `json:"detail"`
}

// DayTimeline is the ordered activity list for one day. Day comes from the
// model output and is not checked for uniqueness or order.
type DayTimeline struct {
	Day        int             `json:"day"`
	Activities []TimelineEntry `json:"activities"`
}

// Spot is a point of interest.
type Spot struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Time      string   `json:"time"`
	Notes     string   `json:"notes"`
}

// Budget is the cost breakdown. Nil fields were not provided by the model.
type Budget struct {
	Transport     *float64 `json:"transport"`
	Entrance      *float64 `json:"entrance"`
	Meals         *float64 `json:"meals"`
	Accommodation *float64 `json:"accommodation"`
	Activities    *float64 `json:"activities"`
	Total         *float64 `json:"total"`
}

// ZeroBudget returns a budget with every category set to 0.
func ZeroBudget() Budget {
	z := func() *float64 { v := 0.0; return &v }
	return Budget{
		Transport:     z(),
		Entrance:      z(),
		Meals:         z(),
		Accommodation: z(),
		Activities:    z(),
		Total:         z(),
	}
}

type Permits struct {
	Needed   bool   `json:"needed"`
	Notes    string `json:"notes"`
	Seasonal string `json:"seasonal"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type SafetyContacts struct {
	Ranger   *Contact `json:"ranger"`
	Hospital *Contact `json:"hospital"`
	Police   *Contact `json:"police"`
}

type Safety struct {
	Registration string          `json:"registration"`
	Checkins     string          `json:"checkins"`
	SOS          string          `json:"sos"`
	Contacts     *SafetyContacts `json:"contacts"`
}

// TripPlan is the structured plan synthesized by the model.
type TripPlan struct {
	Title    string        `json:"title"`
	Date     string        `json:"date"`
	Timeline []DayTimeline `json:"timeline"`
	Spots    []Spot        `json:"spots"`
	Budget   Budget        `json:"budget"`
	Permits  *Permits      `json:"permits"`
	Safety   *Safety       `json:"safety"`
}

// PreparationItem groups packing or paperwork items under a category.
type PreparationItem struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
	Notes    string   `json:"notes"`
}

type Preparation struct {
	Overview string            `json:"overview"`
	Items    []PreparationItem `json:"items"`
	Timeline string            `json:"timeline"`
}

// PlanResponse is the only shape the planner ever returns for a generation
// request, including when the model output could not be parsed.
type PlanResponse struct {
	TripOverview  string          `json:"tripOverview"`
	QueryParams   TripRequest     `json:"query_params"`
	RetrievedData []RetrievedItem `json:"retrieved_data"`
	TripPlan      TripPlan        `json:"trip_plan"`
	Preparation   *Preparation    `json:"preparation"`
	Meta          map[string]any  `json:"meta"`
}
