// Package booking is the HTTP client for the external booking provider. All
// timestamps on the wire are UTC, ISO 8601. Slot computation and persistence
// belong to the provider; this package only relays requests and results.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the default booking provider API base URL
	DefaultBaseURL = "https://api.cal.com/v1"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
)

// APIError is a non-2xx provider response. Tools inspect StatusCode to tell
// "slot taken" (409) and "already gone" (404) apart from real failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a provider 409 (slot no longer free).
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client handles HTTP communication with the booking provider API. Requests
// are keyed by API credential and caller id.
type Client struct {
	baseURL    string
	apiKey     string
	userID     int
	httpClient *http.Client
}

// NewClient creates a new booking provider client bound to one caller.
func NewClient(apiKey string, baseURL string, userID int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// doRequest performs an HTTP request to the provider API
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// callerParams returns the query params every caller-scoped endpoint needs.
func (c *Client) callerParams() url.Values {
	params := url.Values{}
	params.Set("userId", strconv.Itoa(c.userID))
	return params
}

// GetAvailability retrieves the caller's free slots and busy windows in a
// UTC date range.
func (c *Client) GetAvailability(ctx context.Context, from, to time.Time) (*Availability, error) {
	params := c.callerParams()
	params.Set("dateFrom", from.UTC().Format(time.RFC3339))
	params.Set("dateTo", to.UTC().Format(time.RFC3339))

	path := "/availability?" + params.Encode()

	var avail Availability
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &avail); err != nil {
		return nil, err
	}

	return &avail, nil
}

// GetBookings lists the caller's bookings in a UTC date range.
func (c *Client) GetBookings(ctx context.Context, startDate, endDate time.Time) ([]Booking, error) {
	params := c.callerParams()
	params.Set("startDate", startDate.UTC().Format(time.RFC3339))
	params.Set("endDate", endDate.UTC().Format(time.RFC3339))

	path := "/bookings?" + params.Encode()

	var resp BookingsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Bookings, nil
}

// GetBooking retrieves a specific booking by id.
func (c *Client) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	path := "/bookings/" + url.PathEscape(bookingID) + "?" + c.callerParams().Encode()

	var b Booking
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}

	return &b, nil
}

// CreateBooking creates a new booking. The provider answers 409 if the slot
// is no longer free.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	path := "/bookings?" + c.callerParams().Encode()

	var b Booking
	if err := c.doRequest(ctx, http.MethodPost, path, req, &b); err != nil {
		return nil, err
	}

	return &b, nil
}

// UpdateBooking applies a partial update; unspecified fields stay unchanged.
func (c *Client) UpdateBooking(ctx context.Context, bookingID string, req UpdateBookingRequest) (*Booking, error) {
	path := "/bookings/" + url.PathEscape(bookingID) + "?" + c.callerParams().Encode()

	var b Booking
	if err := c.doRequest(ctx, http.MethodPatch, path, req, &b); err != nil {
		return nil, err
	}

	return &b, nil
}

// CancelBooking cancels a booking. A 404 means it was already gone; callers
// decide whether that counts as success.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	path := "/bookings/" + url.PathEscape(bookingID) + "?" + c.callerParams().Encode()

	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}
