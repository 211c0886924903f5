package integration

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Webhook topics the pipeline acts on
const (
	WebhookTopicOrders   = "orders"
	WebhookTopicOrdersV2 = "orders_v2"
)

// WebhookEvent is an audit log entry for a verified inbound notification. It is never mutated.
type WebhookEvent struct {
	ID            uuid.UUID
	Topic         string
	Resource      string
	UserID        int64
	ApplicationID int64
	Attempts      int
	Payload       []byte
	// SignatureValid is false only for events accepted in insecure mode without a secret.
	SignatureValid bool
	ReceivedAt     time.Time
}

// IsOrderTopic reports whether the event announces an order change
func (e *WebhookEvent) IsOrderTopic() bool {
	return e.Topic == WebhookTopicOrders || e.Topic == WebhookTopicOrdersV2
}

// ParseOrderResource extracts the numeric order ID from a resource path such as "/orders/123"
func ParseOrderResource(resource string) (int64, error) {
	path := resource
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "orders" {
		return 0, ErrInvalidOrderResource
	}
	id, err := strconv.ParseInt(segments[len(segments)-1], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidOrderResource
	}
	return id, nil
}

// WebhookEventRepository is the append-only webhook audit log
type WebhookEventRepository interface {
	Append(ctx context.Context, event *WebhookEvent) error
	// FindByID returns ErrWebhookEventNotFound when the event is unknown.
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)
	// ListRecent returns the latest events, newest first, optionally filtered by topic.
	ListRecent(ctx context.Context, topic string, limit int) ([]*WebhookEvent, error)
}

// WebhookArchive keeps a copy of raw webhook payloads outside the database.
// It returns the key the payload was stored under.
type WebhookArchive interface {
	Archive(ctx context.Context, event *WebhookEvent) (string, error)
}
