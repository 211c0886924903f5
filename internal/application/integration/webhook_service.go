package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/telemetry"
)

// DefaultEventListLimit is used when ListEvents is called without a limit
const DefaultEventListLimit = 50

// SignatureVerifier checks the signature of a raw webhook body
type SignatureVerifier interface {
	Verify(rawBody []byte, signatureHeader string) bool
	HasSecret() bool
}

// webhookNotification is the body the marketplace posts
type webhookNotification struct {
	ID            string `json:"_id"`
	Resource      string `json:"resource"`
	UserID        int64  `json:"user_id"`
	Topic         string `json:"topic"`
	ApplicationID int64  `json:"application_id"`
	Attempts      int    `json:"attempts"`
	Sent          string `json:"sent"`
	Received      string `json:"received"`
}

// WebhookReceipt is what Receive reports back. It never reveals whether processing succeeded.
type WebhookReceipt struct {
	EventID uuid.UUID `json:"event_id"`
	Topic   string    `json:"topic,omitempty"`
}

// WebhookService verifies, records and acts on inbound marketplace notifications
type WebhookService struct {
	verifier SignatureVerifier
	events   integration.WebhookEventRepository
	archive  integration.WebhookArchive
	sync     *OrderSyncService
	metrics  *telemetry.MarketplaceMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Verifier SignatureVerifier
	Events   integration.WebhookEventRepository
	// Archive is optional.
	Archive integration.WebhookArchive
	Sync    *OrderSyncService
	Metrics *telemetry.MarketplaceMetrics
	Logger  *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookService{
		verifier: cfg.Verifier,
		events:   cfg.Events,
		archive:  cfg.Archive,
		sync:     cfg.Sync,
		metrics:  cfg.Metrics,
		logger:   log,
		now:      time.Now,
	}
}

// Receive verifies the signature over the exact raw body, appends the event to the audit
// log and, for order topics, syncs the referenced order.
//
// Only a signature failure is returned as an error. Malformed bodies are recorded with an
// empty topic and not processed; sync failures are logged and swallowed so the marketplace
// does not retry a notification that was already recorded.
func (s *WebhookService) Receive(ctx context.Context, rawBody []byte, signatureHeader string) (*WebhookReceipt, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "receive")
	defer span.End()

	if !s.verifier.Verify(rawBody, signatureHeader) {
		telemetry.RecordError(span, integration.ErrWebhookSignatureInvalid)
		s.metrics.RecordWebhook(ctx, "", telemetry.OutcomeRejected)
		s.logger.Warn("Webhook signature verification failed",
			zap.Int("body_size", len(rawBody)),
			zap.Bool("signature_present", signatureHeader != ""))
		return nil, integration.ErrWebhookSignatureInvalid
	}

	event := &integration.WebhookEvent{
		ID:             uuid.New(),
		Payload:        append([]byte(nil), rawBody...),
		SignatureValid: s.verifier.HasSecret(),
		ReceivedAt:     s.now().UTC(),
	}

	var notification webhookNotification
	parseErr := json.Unmarshal(rawBody, &notification)
	if parseErr == nil {
		event.Topic = notification.Topic
		event.Resource = notification.Resource
		event.UserID = notification.UserID
		event.ApplicationID = notification.ApplicationID
		event.Attempts = notification.Attempts
	} else {
		s.logger.Warn("Webhook body is not valid JSON, recording without processing",
			zap.String("event_id", event.ID.String()),
			zap.Error(parseErr))
	}

	if err := s.events.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record webhook: %w", err)
	}
	s.archivePayload(ctx, event)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEventID, event.ID.String(),
		telemetry.SpanAttrTopic, event.Topic,
		telemetry.SpanAttrResource, event.Resource,
	)

	receipt := &WebhookReceipt{EventID: event.ID, Topic: event.Topic}
	if parseErr != nil {
		s.metrics.RecordWebhook(ctx, "", telemetry.OutcomeInvalid)
		return receipt, nil
	}

	var processErr error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationWebhook,
		telemetry.ProfilingLabelTopic, event.Topic), func(ctx context.Context) {
		processErr = s.process(ctx, event)
	})
	if err := processErr; err != nil {
		telemetry.AddEvent(span, "webhook.processing_failed", "error", err.Error())
		s.metrics.RecordWebhook(ctx, event.Topic, telemetry.OutcomeFailure)
		s.logger.Error("Webhook processing failed",
			zap.String("event_id", event.ID.String()),
			zap.String("topic", event.Topic),
			zap.String("resource", event.Resource),
			zap.Error(err))
		return receipt, nil
	}

	s.metrics.RecordWebhook(ctx, event.Topic, telemetry.OutcomeSuccess)
	telemetry.SetOK(span)
	return receipt, nil
}

// process runs the action for the event's topic. Topics other than orders are recorded only.
func (s *WebhookService) process(ctx context.Context, event *integration.WebhookEvent) error {
	if !event.IsOrderTopic() {
		s.logger.Debug("Unhandled webhook topic",
			zap.String("topic", event.Topic),
			zap.String("event_id", event.ID.String()))
		return nil
	}

	orderID, err := integration.ParseOrderResource(event.Resource)
	if err != nil {
		return fmt.Errorf("%w: %q", err, event.Resource)
	}

	if _, err := s.sync.syncOne(ctx, orderID, SyncSourceWebhook); err != nil {
		return err
	}
	s.logger.Info("Order synced from webhook",
		zap.String("event_id", event.ID.String()),
		zap.Int64("order_id", orderID))
	return nil
}

func (s *WebhookService) archivePayload(ctx context.Context, event *integration.WebhookEvent) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Archive(ctx, event)
	if err != nil {
		s.logger.Warn("Failed to archive webhook payload",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return
	}
	s.logger.Debug("Webhook payload archived",
		zap.String("event_id", event.ID.String()),
		zap.String("key", key))
}

// ListEvents returns the latest recorded webhooks, optionally filtered by topic
func (s *WebhookService) ListEvents(ctx context.Context, topic string, limit int) ([]*integration.WebhookEvent, error) {
	if limit <= 0 {
		limit = DefaultEventListLimit
	}
	return s.events.ListRecent(ctx, topic, limit)
}

// Replay runs the action of a recorded event again. Unlike Receive it reports processing errors.
func (s *WebhookService) Replay(ctx context.Context, eventID uuid.UUID) (*integration.WebhookEvent, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Topic == "" {
		return event, integration.ErrWebhookNotReplayable
	}
	if err := s.process(ctx, event); err != nil {
		if !errors.Is(err, integration.ErrInvalidOrderResource) {
			s.metrics.RecordWebhook(ctx, event.Topic, telemetry.OutcomeFailure)
		}
		return event, err
	}
	s.metrics.RecordWebhook(ctx, event.Topic, telemetry.OutcomeSuccess)
	s.logger.Info("Webhook replayed",
		zap.String("event_id", eventID.String()),
		zap.String("topic", event.Topic))
	return event, nil
}
