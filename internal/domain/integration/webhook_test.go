package integration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderResource(t *testing.T) {
	tests := []struct {
		resource string
		want     int64
		wantErr  bool
	}{
		{"/orders/123", 123, false},
		{"orders/123", 123, false},
		{"/orders/2000003508419013/", 2000003508419013, false},
		{"/orders/123?access_token=x", 123, false},
		{"/orders/v2/456", 456, false},
		{"/orders/", 0, true},
		{"/orders/abc", 0, true},
		{"/orders/-5", 0, true},
		{"/items/MLB123", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			got, err := ParseOrderResource(tt.resource)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrderResource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebhookEvent_IsOrderTopic(t *testing.T) {
	assert.True(t, (&WebhookEvent{Topic: "orders"}).IsOrderTopic())
	assert.True(t, (&WebhookEvent{Topic: "orders_v2"}).IsOrderTopic())
	assert.False(t, (&WebhookEvent{Topic: "items"}).IsOrderTopic())
	assert.False(t, (&WebhookEvent{}).IsOrderTopic())
}

func TestUpstreamError(t *testing.T) {
	err := &UpstreamError{StatusCode: 404, Code: "not_found", Message: "Order not found", Method: "GET", Path: "/orders/1"}

	assert.True(t, errors.Is(err, ErrUpstreamAPI))
	assert.False(t, errors.Is(err, ErrGrantRejected))
	assert.False(t, err.IsUnauthorized())
	assert.Equal(t, "integration: marketplace API GET /orders/1 returned HTTP 404: not_found: Order not found", err.Error())

	wrapped := fmt.Errorf("sync order: %w", err)
	var upstream *UpstreamError
	require.True(t, errors.As(wrapped, &upstream))
	assert.Equal(t, 404, upstream.StatusCode)
}

func TestIsDisconnected(t *testing.T) {
	assert.True(t, IsDisconnected(ErrNoActiveGrant))
	assert.True(t, IsDisconnected(fmt.Errorf("call: %w", ErrGrantRejected)))
	assert.False(t, IsDisconnected(ErrTokenExchangeFailed))
	assert.False(t, IsDisconnected(&UpstreamError{StatusCode: 500}))
}

func TestListingStatus_IsValid(t *testing.T) {
	assert.True(t, ListingStatusActive.IsValid())
	assert.True(t, ListingStatusPaused.IsValid())
	assert.True(t, ListingStatusClosed.IsValid())
	assert.False(t, ListingStatus("under_review").IsValid())
}
