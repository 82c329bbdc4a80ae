package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soypete/pedrobook/pkg/booking"
	"github.com/soypete/pedrobook/pkg/identity"
	"github.com/soypete/pedrobook/pkg/timeutil"
)

// DefaultSlotLength is assumed when the request does not say how long the
// meeting should be.
const DefaultSlotLength = 30 * time.Minute

// BookingAPI is the slice of the provider client the toolset needs.
type BookingAPI interface {
	GetAvailability(ctx context.Context, from, to time.Time) (*booking.Availability, error)
	GetBookings(ctx context.Context, startDate, endDate time.Time) ([]booking.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*booking.Booking, error)
	CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (*booking.Booking, error)
	UpdateBooking(ctx context.Context, bookingID string, req booking.UpdateBookingRequest) (*booking.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

// MailSender is the slice of the mailer the toolset needs.
type MailSender interface {
	SendBookingConfirmation(ctx context.Context, bookingID, recipient string) error
}

// BookingToolset holds the per-request context every executor is bound to.
// Nothing here is mutated during a request and nothing survives it.
type BookingToolset struct {
	client BookingAPI
	mailer MailSender
	caller identity.UserRecord
	roster []identity.UserRecord
	now    func() time.Time
}

// NewBookingToolset binds the closed tool set to one caller's context.
func NewBookingToolset(client BookingAPI, mailer MailSender, caller identity.UserRecord, roster []identity.UserRecord) *BookingToolset {
	return &BookingToolset{
		client: client,
		mailer: mailer,
		caller: caller,
		roster: roster,
		now:    time.Now,
	}
}

// SetClock overrides the toolset's clock, for tests.
func (ts *BookingToolset) SetClock(now func() time.Time) {
	ts.now = now
}

// RegisterAll registers the six booking tools in their canonical order.
func (ts *BookingToolset) RegisterAll(r *Registry) error {
	specs := []struct {
		spec Spec
		exec ExecutorFunc
	}{
		{getAvailabilitySpec(), ts.getAvailability},
		{getBookingsSpec(), ts.getBookings},
		{createBookingSpec(), ts.createBookingIfAvailable},
		{updateBookingSpec(), ts.updateBooking},
		{deleteBookingSpec(), ts.deleteBooking},
		{sendBookingEmailSpec(), ts.sendBookingEmail},
	}

	for _, s := range specs {
		if err := r.Register(s.spec, s.exec); err != nil {
			return err
		}
	}
	return nil
}

func getAvailabilitySpec() Spec {
	return Spec{
		Name:        "getAvailability",
		Description: "Query the caller's free/busy windows. Defaults to the next seven days when no range is given.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"dateFrom": {Type: "string", Description: "Range start, ISO 8601 UTC (optional)"},
				"dateTo":   {Type: "string", Description: "Range end, ISO 8601 UTC (optional)"},
			},
		},
	}
}

func getBookingsSpec() Spec {
	return Spec{
		Name:        "getBookings",
		Description: "List the caller's bookings in a date range.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"startDate": {Type: "string", Description: "Range start, ISO 8601 UTC"},
				"endDate":   {Type: "string", Description: "Range end, ISO 8601 UTC"},
			},
			Required: []string{"startDate", "endDate"},
		},
	}
}

func createBookingSpec() Spec {
	return Spec{
		Name:        "createBookingIfAvailable",
		Description: "Create a booking at the given time if the slot is still free. Fails with alternatives when the slot was taken in the meantime.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"dateTime": {Type: "string", Description: "Booking start, ISO 8601 UTC"},
				"customerDetails": {
					Type: "object",
					Properties: map[string]*Schema{
						"name":  {Type: "string", Description: "Customer's full name"},
						"email": {Type: "string", Description: "Customer's email address, or a roster reference like @username"},
					},
					Required:             []string{"name", "email"},
					AdditionalProperties: false,
				},
				"durationMinutes": {Type: "integer", Description: "Meeting length in minutes (default 30)"},
				"title":           {Type: "string", Description: "Optional meeting title"},
			},
			Required: []string{"dateTime", "customerDetails"},
		},
	}
}

func updateBookingSpec() Spec {
	return Spec{
		Name:        "updateBooking",
		Description: "Partially update an existing booking. Unspecified fields are left unchanged.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"bookingId": {Type: "string", Description: "Id of the booking to update"},
				"updatedDetails": {
					Type: "object",
					Properties: map[string]*Schema{
						"dateTime": {Type: "string", Description: "New start, ISO 8601 UTC"},
						"customerDetails": {
							Type: "object",
							Properties: map[string]*Schema{
								"name":  {Type: "string"},
								"email": {Type: "string"},
							},
							AdditionalProperties: false,
						},
					},
					AdditionalProperties: false,
				},
			},
			Required: []string{"bookingId", "updatedDetails"},
		},
	}
}

func deleteBookingSpec() Spec {
	return Spec{
		Name:        "deleteBooking",
		Description: "Cancel a booking. Deleting a booking that is already gone reports it as already deleted.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"bookingId": {Type: "string", Description: "Id of the booking to cancel"},
			},
			Required: []string{"bookingId"},
		},
	}
}

func sendBookingEmailSpec() Spec {
	return Spec{
		Name:        "sendBookingEmail",
		Description: "Send a confirmation email for a booking to the given address.",
		Parameters: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"bookingId": {Type: "string", Description: "Id of the booking to confirm"},
				"email":     {Type: "string", Description: "Recipient email address, or a roster reference like @username"},
			},
			Required: []string{"bookingId", "email"},
		},
	}
}

// getAvailability handles the getAvailability tool
func (ts *BookingToolset) getAvailability(ctx context.Context, args map[string]interface{}) (*Result, error) {
	from := ts.now().UTC()
	to := from.Add(7 * 24 * time.Hour)

	if raw, ok := args["dateFrom"].(string); ok && raw != "" {
		t, err := parseUTC(raw)
		if err != nil {
			return ErrorResult(fmt.Sprintf("invalid dateFrom: %v", err)), nil
		}
		from = t
	}
	if raw, ok := args["dateTo"].(string); ok && raw != "" {
		t, err := parseUTC(raw)
		if err != nil {
			return ErrorResult(fmt.Sprintf("invalid dateTo: %v", err)), nil
		}
		to = t
	}

	avail, err := ts.client.GetAvailability(ctx, from, to)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	var sb strings.Builder
	if len(avail.Slots) == 0 {
		sb.WriteString("No free slots in that range.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Free slots (times shown in %s):\n", ts.caller.TimeZone))
		for _, slot := range avail.Slots {
			sb.WriteString("- " + ts.formatWindow(slot) + "\n")
		}
	}
	if len(avail.Busy) > 0 {
		sb.WriteString("Busy:\n")
		for _, w := range avail.Busy {
			sb.WriteString("- " + ts.formatWindow(w) + "\n")
		}
	}

	return &Result{
		Success: true,
		Output:  sb.String(),
		Data:    map[string]interface{}{"slots": avail.Slots, "busy": avail.Busy},
	}, nil
}

// getBookings handles the getBookings tool
func (ts *BookingToolset) getBookings(ctx context.Context, args map[string]interface{}) (*Result, error) {
	startDate, err := parseUTC(args["startDate"].(string))
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid startDate: %v", err)), nil
	}
	endDate, err := parseUTC(args["endDate"].(string))
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid endDate: %v", err)), nil
	}

	bookings, err := ts.client.GetBookings(ctx, startDate, endDate)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	if len(bookings) == 0 {
		return &Result{Success: true, Output: "No bookings in that range."}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d bookings (times shown in %s):\n", len(bookings), ts.caller.TimeZone))
	for _, b := range bookings {
		sb.WriteString(fmt.Sprintf("- [%s] %s with %s <%s>\n", b.ID, ts.formatWindow(b.Window), b.Customer.Name, b.Customer.Email))
	}

	return &Result{
		Success: true,
		Output:  sb.String(),
		Data:    map[string]interface{}{"bookings": bookings},
	}, nil
}

// createBookingIfAvailable re-checks the slot at call time before creating.
// The decision-to-execution gap is real: the model picked the time from an
// earlier availability answer and the slot may be gone by now.
func (ts *BookingToolset) createBookingIfAvailable(ctx context.Context, args map[string]interface{}) (*Result, error) {
	start, err := parseUTC(args["dateTime"].(string))
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid dateTime: %v", err)), nil
	}

	details := args["customerDetails"].(map[string]interface{})
	email, clarify := ts.resolveRecipient(stringArg(details, "email"))
	if clarify != nil {
		return clarify, nil
	}
	customer := booking.CustomerDetails{
		Name:  stringArg(details, "name"),
		Email: email,
	}

	length := DefaultSlotLength
	if mins, ok := numberArg(args, "durationMinutes"); ok && mins > 0 {
		length = time.Duration(mins) * time.Minute
	}
	window := booking.Window{Start: start, End: start.Add(length)}

	avail, err := ts.client.GetAvailability(ctx, start, window.End)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	for _, busy := range avail.Busy {
		if window.Overlaps(busy) {
			return ts.slotTakenResult(window, avail.Slots), nil
		}
	}

	req := booking.CreateBookingRequest{
		Start:    window.Start,
		End:      window.End,
		Customer: customer,
	}
	if title, ok := args["title"].(string); ok {
		req.Title = title
	}

	created, err := ts.client.CreateBooking(ctx, req)
	if err != nil {
		if booking.IsConflict(err) {
			return ts.slotTakenResult(window, avail.Slots), nil
		}
		return ErrorResult(err.Error()), nil
	}

	return &Result{
		Success: true,
		Output: fmt.Sprintf("Booked %s for %s <%s> (booking id %s).",
			ts.formatWindow(created.Window), created.Customer.Name, created.Customer.Email, created.ID),
		Data: map[string]interface{}{"booking": created},
	}, nil
}

// slotTakenResult is the distinct "slot became unavailable between decision
// and execution" outcome, with up to three alternatives.
func (ts *BookingToolset) slotTakenResult(requested booking.Window, slots []booking.Window) *Result {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("That time (%s) is no longer available.", ts.formatWindow(requested)))
	if len(slots) > 0 {
		sb.WriteString(" Nearby open slots:")
		for i, slot := range slots {
			if i == 3 {
				break
			}
			sb.WriteString("\n- " + ts.formatWindow(slot))
		}
	}
	return &Result{
		Success: false,
		Error:   "slot no longer available",
		Output:  sb.String(),
	}
}

// updateBooking handles the updateBooking tool
func (ts *BookingToolset) updateBooking(ctx context.Context, args map[string]interface{}) (*Result, error) {
	bookingID := args["bookingId"].(string)
	updated := args["updatedDetails"].(map[string]interface{})

	var req booking.UpdateBookingRequest
	if raw, ok := updated["dateTime"].(string); ok && raw != "" {
		start, err := parseUTC(raw)
		if err != nil {
			return ErrorResult(fmt.Sprintf("invalid updatedDetails.dateTime: %v", err)), nil
		}
		req.Start = &start
	}
	if details, ok := updated["customerDetails"].(map[string]interface{}); ok {
		// Only the keys present in the args go on the wire; absent fields
		// stay unchanged on the provider side.
		patch := &booking.CustomerDetailsPatch{}
		if name := stringArg(details, "name"); name != "" {
			patch.Name = &name
		}
		if raw := stringArg(details, "email"); raw != "" {
			email, clarify := ts.resolveRecipient(raw)
			if clarify != nil {
				return clarify, nil
			}
			patch.Email = &email
		}
		if patch.Name != nil || patch.Email != nil {
			req.Customer = patch
		}
	}

	if req.Start == nil && req.Customer == nil {
		return ErrorResult("updatedDetails must include dateTime or customerDetails"), nil
	}

	b, err := ts.client.UpdateBooking(ctx, bookingID, req)
	if err != nil {
		if booking.IsNotFound(err) {
			return ErrorResult(fmt.Sprintf("booking %s was not found", bookingID)), nil
		}
		return ErrorResult(err.Error()), nil
	}

	return &Result{
		Success: true,
		Output:  fmt.Sprintf("Updated booking %s: now %s with %s <%s>.", b.ID, ts.formatWindow(b.Window), b.Customer.Name, b.Customer.Email),
		Data:    map[string]interface{}{"booking": b},
	}, nil
}

// deleteBooking is idempotent: a booking that is already gone is reported as
// already deleted, not as an error.
func (ts *BookingToolset) deleteBooking(ctx context.Context, args map[string]interface{}) (*Result, error) {
	bookingID := args["bookingId"].(string)

	if err := ts.client.CancelBooking(ctx, bookingID); err != nil {
		if booking.IsNotFound(err) {
			return &Result{
				Success: true,
				Output:  fmt.Sprintf("Booking %s was already deleted (or never existed).", bookingID),
			}, nil
		}
		return ErrorResult(err.Error()), nil
	}

	return &Result{
		Success: true,
		Output:  fmt.Sprintf("Booking %s cancelled.", bookingID),
	}, nil
}

// sendBookingEmail never rolls back the booking operation that preceded it;
// a delivery failure is reported as partial success.
func (ts *BookingToolset) sendBookingEmail(ctx context.Context, args map[string]interface{}) (*Result, error) {
	bookingID := args["bookingId"].(string)
	email, clarify := ts.resolveRecipient(args["email"].(string))
	if clarify != nil {
		return clarify, nil
	}

	if err := ts.mailer.SendBookingConfirmation(ctx, bookingID, email); err != nil {
		return &Result{
			Success: false,
			Error:   err.Error(),
			Output:  fmt.Sprintf("The booking stands, but the confirmation email to %s could not be sent: %v", email, err),
		}, nil
	}

	return &Result{
		Success: true,
		Output:  fmt.Sprintf("Confirmation email for booking %s sent to %s.", bookingID, email),
	}, nil
}

// resolveRecipient turns a person reference in an email position ("@username",
// a numeric id, a display name, or a roster email) into the canonical roster
// email. An email-shaped value that matches no roster entry is taken literally:
// customers do not have to be on the roster. Anything else unresolved comes
// back as a clarification result, never a guess.
func (ts *BookingToolset) resolveRecipient(value string) (string, *Result) {
	record, err := identity.ResolveString(value, ts.roster)
	switch {
	case err == nil:
		return record.Email, nil
	case errors.Is(err, identity.ErrAmbiguous):
		return "", &Result{
			Success: false,
			Error:   err.Error(),
			Output:  fmt.Sprintf("%q matches more than one person. Please give me a username or email so I know who you mean.", value),
		}
	case identity.LooksLikeEmail(value):
		return value, nil
	default:
		return "", &Result{
			Success: false,
			Error:   err.Error(),
			Output:  fmt.Sprintf("I don't know who %q refers to. Please give me a username or email.", value),
		}
	}
}

// formatWindow renders a window in the caller's zone, falling back to RFC
// 3339 UTC when the zone is unloadable.
func (ts *BookingToolset) formatWindow(w booking.Window) string {
	start, err := timeutil.ToLocal(w.Start, ts.caller.TimeZone)
	if err != nil {
		return w.Start.Format(time.RFC3339) + " - " + w.End.Format(time.RFC3339)
	}
	end, err := timeutil.FormatClock(w.End, ts.caller.TimeZone)
	if err != nil {
		return start
	}
	return start + " - " + end
}

func parseUTC(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected ISO 8601 UTC, got %q", value)
	}
	return t.UTC(), nil
}

func stringArg(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// numberArg tolerates both float64 (JSON) and int (Go callers).
func numberArg(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
