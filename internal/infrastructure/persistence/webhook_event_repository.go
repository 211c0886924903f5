package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/persistence/models"
)

// GormWebhookEventRepository implements integration.WebhookEventRepository using GORM.
// Rows are only ever inserted.
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Append stores a webhook event
func (r *GormWebhookEventRepository) Append(ctx context.Context, event *integration.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(models.WebhookEventModelFromDomain(event)).Error
}

// FindByID finds a webhook event by ID
func (r *GormWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	var model models.WebhookEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWebhookEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListRecent returns the newest events first, optionally restricted to one topic
func (r *GormWebhookEventRepository) ListRecent(ctx context.Context, topic string, limit int) ([]*integration.WebhookEvent, error) {
	query := r.db.WithContext(ctx).Order("received_at DESC")
	if topic != "" {
		query = query.Where("topic = ?", topic)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var eventModels []models.WebhookEventModel
	if err := query.Find(&eventModels).Error; err != nil {
		return nil, err
	}

	events := make([]*integration.WebhookEvent, len(eventModels))
	for i := range eventModels {
		events[i] = eventModels[i].ToDomain()
	}
	return events, nil
}

var _ integration.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
