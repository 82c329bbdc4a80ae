// Package mailer triggers provider-side delivery of booking confirmation
// emails. It only supplies the recipient and the booking reference; message
// content is owned by the provider.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// Mailer sends confirmation emails through the provider's email endpoint.
type Mailer struct {
	baseURL    string
	apiKey     string
	sender     string
	httpClient *http.Client
}

// New creates a mailer bound to the provider credential and sender address.
func New(apiKey, baseURL, sender string) *Mailer {
	return &Mailer{
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

// SendBookingConfirmation asks the provider to deliver a confirmation email
// for the booking to the recipient. A failure here must never roll back the
// booking operation that preceded it; the caller reports partial success.
func (m *Mailer) SendBookingConfirmation(ctx context.Context, bookingID, recipient string) error {
	body, err := json.Marshal(sendRequest{To: recipient, From: m.sender})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	endpoint := m.baseURL + "/bookings/" + url.PathEscape(bookingID) + "/confirmation-email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email delivery failed (%d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
