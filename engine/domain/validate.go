package domain

import (
	"strconv"
	"strings"
)

// ValidateTripRequest checks the required fields of a request.
func ValidateTripRequest(r TripRequest) error {
	if strings.TrimSpace(r.StartPlace) == "" {
		return NewValidationError("start_place", r.StartPlace, ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Destination) == "" {
		return NewValidationError("destination", r.Destination, ErrInvalidRequest)
	}
	if r.Duration < 1 {
		return NewValidationError("duration", strconv.Itoa(r.Duration), ErrInvalidRequest)
	}
	if r.GroupSize < 0 {
		return NewValidationError("groupSize", strconv.Itoa(r.GroupSize), ErrInvalidRequest)
	}
	if r.TripPrice != nil && *r.TripPrice < 0 {
		return NewValidationError("trip_price", strconv.FormatFloat(*r.TripPrice, 'f', -1, 64), ErrInvalidRequest)
	}
	return nil
}

// ValidateRecord checks a trip record before it is embedded.
func ValidateRecord(r TripRecord) error {
	if strings.TrimSpace(r.PlanDetails) == "" {
		return NewValidationError("plan_details", r.PlanDetails, ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", r.Name, ErrInvalidRequest)
	}
	return nil
}
