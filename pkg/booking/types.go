package booking

import "time"

// Window is a half-open time range. Start and End are always UTC instants;
// Start < End.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two windows share any instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// CustomerDetails identifies the person a booking is held for.
type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Booking is owned by the provider; this client only requests
// creation/mutation/deletion and relays results.
type Booking struct {
	ID       string          `json:"id"`
	Window   Window          `json:"window"`
	Customer CustomerDetails `json:"customerDetails"`
	Title    string          `json:"title,omitempty"`
	Status   string          `json:"status,omitempty"` // confirmed, cancelled
}

// Availability is the provider's free/busy answer for a date range.
type Availability struct {
	Slots []Window `json:"slots"`
	Busy  []Window `json:"busy"`
}

// CreateBookingRequest is the payload for creating a booking.
type CreateBookingRequest struct {
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end,omitempty"`
	Customer CustomerDetails `json:"customerDetails"`
	Title    string          `json:"title,omitempty"`
}

// CustomerDetailsPatch carries only the customer fields being changed; nil
// fields stay untouched on the provider side.
type CustomerDetailsPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// UpdateBookingRequest is a partial update; nil fields are left unchanged.
type UpdateBookingRequest struct {
	Start    *time.Time            `json:"start,omitempty"`
	End      *time.Time            `json:"end,omitempty"`
	Customer *CustomerDetailsPatch `json:"customerDetails,omitempty"`
	Title    *string               `json:"title,omitempty"`
}

// API response wrappers

// BookingsResponse wraps the bookings list endpoint.
type BookingsResponse struct {
	Bookings []Booking `json:"bookings"`
}

// ErrorResponse is the provider's JSON error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
