package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
)

// ErrInvalidEmail is returned when an email address fails validation.
var ErrInvalidEmail = errors.New("invalid email")

// CheckoutClient starts a payment checkout.
type CheckoutClient struct {
	baseURL string
	client  *http.Client
}

// NewCheckoutClient creates a checkout client for baseURL.
func NewCheckoutClient(baseURL string, client *http.Client) *CheckoutClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &CheckoutClient{baseURL: baseURL, client: client}
}

// ValidateEmail checks that email is a bare, well-formed address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// Initiate validates the request and returns the provider checkout URL.
func (c *CheckoutClient) Initiate(ctx context.Context, req CheckoutRequest) (string, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := ValidateEmail(req.Email); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Tier) == "" {
		return "", fmt.Errorf("checkout: tier is required")
	}

	var resp CheckoutResponse
	if err := postJSON(ctx, c.client, joinURL(c.baseURL, "/api/checkout/create"), req, &resp); err != nil {
		return "", fmt.Errorf("checkout: %w", err)
	}
	if resp.CheckoutURL == "" {
		return "", fmt.Errorf("checkout: %w: missing checkout_url", ErrProtocol)
	}
	return resp.CheckoutURL, nil
}
