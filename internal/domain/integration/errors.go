package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Marketplace Errors
// ---------------------------------------------------------------------------

var (
	// ErrConfigInvalid is returned when the marketplace connection parameters are missing or malformed.
	ErrConfigInvalid = errors.New("integration: marketplace configuration invalid")
	// ErrInvalidOrExpiredState is returned when an authorization callback carries an unknown,
	// already-consumed or expired state. The authorization flow must be restarted.
	ErrInvalidOrExpiredState = errors.New("integration: invalid or expired authorization state")
	// ErrTokenExchangeFailed is a transient failure talking to the token endpoint. Retryable.
	ErrTokenExchangeFailed = errors.New("integration: token exchange failed")
	// ErrGrantRejected means the marketplace refused the grant (invalid_grant and similar).
	// The stored grant must be cleared and a human must re-authorize.
	ErrGrantRejected = errors.New("integration: grant rejected by marketplace")
	// ErrNoActiveGrant is returned when no seller account is connected.
	ErrNoActiveGrant = errors.New("integration: no active marketplace grant")
	// ErrWebhookSignatureInvalid is returned when an inbound webhook fails verification.
	ErrWebhookSignatureInvalid = errors.New("integration: webhook signature invalid")
	// ErrUpstreamAPI is matched by every *UpstreamError.
	ErrUpstreamAPI = errors.New("integration: marketplace API error")

	ErrOrderNotFound        = errors.New("integration: order not found")
	ErrWebhookEventNotFound = errors.New("integration: webhook event not found")
	ErrInvalidOrderResource = errors.New("integration: webhook resource is not an order path")
	ErrWebhookNotReplayable = errors.New("integration: webhook event was not parsed and cannot be replayed")
	ErrInvalidListingStatus = errors.New("integration: invalid listing status")
	// ErrInvalidListingRequest is returned when a listing create or update fails local validation.
	ErrInvalidListingRequest = errors.New("integration: invalid listing request")
)

// UpstreamError carries the status, error code and message returned by the marketplace API verbatim
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
	Method     string
	Path       string
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("integration: marketplace API %s %s returned HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is makes errors.Is(err, ErrUpstreamAPI) match any UpstreamError
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamAPI
}

// IsUnauthorized reports whether the marketplace rejected the access token
func (e *UpstreamError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// OAuthError is an error response from the token endpoint
type OAuthError struct {
	StatusCode  int
	Code        string
	Description string
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("oauth error %s (HTTP %d)", e.Code, e.StatusCode)
}

// IsDisconnected reports whether err means the marketplace account is not connected
// and the user must go through authorization again.
func IsDisconnected(err error) bool {
	return errors.Is(err, ErrNoActiveGrant) || errors.Is(err, ErrGrantRejected)
}
