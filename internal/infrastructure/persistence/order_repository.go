package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/persistence/models"
)

// orderRemoteColumns are owned by the marketplace and overwritten on every sync.
var orderRemoteColumns = []string{
	"status",
	"date_created",
	"last_updated",
	"total_amount",
	"currency_id",
	"buyer_id",
	"buyer_nickname",
	"buyer_full_name",
	"buyer_email",
	"buyer_phone",
	"payments",
	"shipping_id",
	"shipping_status",
	"shipping_mode",
	"tags",
	"last_sync",
	"updated_at",
}

// GormOrderRepository implements integration.OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db, now: time.Now}
}

// Upsert inserts the order or updates its remote fields in a single statement.
// Acknowledged and ReadyToShip are written on insert only; afterwards only the local
// Mark* calls change them. A locally entered tracking number survives a sync that
// reports none.
func (r *GormOrderRepository) Upsert(ctx context.Context, order *integration.OrderRecord) error {
	now := r.now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	model := models.OrderModelFromDomain(order)
	table := model.TableName()

	assignments := clause.AssignmentColumns(orderRemoteColumns)
	assignments = append(assignments,
		clause.Assignment{
			Column: clause.Column{Name: "tracking_number"},
			Value:  gorm.Expr("COALESCE(NULLIF(excluded.tracking_number, ''), " + table + ".tracking_number)"),
		},
	)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: assignments,
		}).
		Create(model).Error
}

// FindByOrderID finds an order by its marketplace ID
func (r *GormOrderRepository) FindByOrderID(ctx context.Context, orderID int64) (*integration.OrderRecord, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrderIDs loads several orders in one query, returned in the order of orderIDs
func (r *GormOrderRepository) FindByOrderIDs(ctx context.Context, orderIDs []int64) ([]*integration.OrderRecord, error) {
	if len(orderIDs) == 0 {
		return []*integration.OrderRecord{}, nil
	}
	var orderModels []models.OrderModel
	if err := r.db.WithContext(ctx).Where("order_id IN ?", orderIDs).Find(&orderModels).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.OrderModel, len(orderModels))
	for i := range orderModels {
		byID[orderModels[i].OrderID] = &orderModels[i]
	}
	orders := make([]*integration.OrderRecord, 0, len(orderIDs))
	for _, id := range orderIDs {
		if m, ok := byID[id]; ok {
			orders = append(orders, m.ToDomain())
		}
	}
	return orders, nil
}

// MarkAcknowledged raises the acknowledged flag
func (r *GormOrderRepository) MarkAcknowledged(ctx context.Context, orderID int64) error {
	return r.updateFlags(ctx, orderID, map[string]any{
		"acknowledged": true,
	})
}

// MarkReadyToShip raises the ready-to-ship flag and records the tracking number when given
func (r *GormOrderRepository) MarkReadyToShip(ctx context.Context, orderID int64, trackingNumber string) error {
	updates := map[string]any{
		"ready_to_ship": true,
	}
	if trackingNumber != "" {
		updates["tracking_number"] = trackingNumber
	}
	return r.updateFlags(ctx, orderID, updates)
}

func (r *GormOrderRepository) updateFlags(ctx context.Context, orderID int64, updates map[string]any) error {
	updates["updated_at"] = r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrOrderNotFound
	}
	return nil
}

// ListRecent returns the latest orders by creation date
func (r *GormOrderRepository) ListRecent(ctx context.Context, limit int) ([]*integration.OrderRecord, error) {
	var orderModels []models.OrderModel
	if err := r.db.WithContext(ctx).
		Order("date_created DESC, order_id DESC").
		Limit(limit).
		Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return toOrderRecords(orderModels), nil
}

// List returns a filtered page of orders and the total number of matches
func (r *GormOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]*integration.OrderRecord, int64, error) {
	var total int64
	countQuery := applyOrderFilter(r.db.WithContext(ctx).Model(&models.OrderModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var orderModels []models.OrderModel
	if err := applyOrderFilter(r.db.WithContext(ctx), filter).
		Order("date_created DESC, order_id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&orderModels).Error; err != nil {
		return nil, 0, err
	}
	return toOrderRecords(orderModels), total, nil
}

func applyOrderFilter(query *gorm.DB, filter integration.OrderFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Acknowledged != nil {
		query = query.Where("acknowledged = ?", *filter.Acknowledged)
	}
	if filter.ReadyToShip != nil {
		query = query.Where("ready_to_ship = ?", *filter.ReadyToShip)
	}
	return query
}

func toOrderRecords(orderModels []models.OrderModel) []*integration.OrderRecord {
	orders := make([]*integration.OrderRecord, len(orderModels))
	for i := range orderModels {
		orders[i] = orderModels[i].ToDomain()
	}
	return orders
}

var _ integration.OrderRepository = (*GormOrderRepository)(nil)
