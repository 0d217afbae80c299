package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
)

// Repository is the persistence surface for orders and their stock effects.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindByAWB(ctx context.Context, awb string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error)

	// UpdateStatusCAS applies updates only if the order still sits at
	// expectedStatus. Returns false when another writer won the race.
	UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, expectedStatus enums.OrderStatus, updates map[string]any) (bool, error)

	// Update applies non-status field updates (shipment ids, tracking log,
	// payment fields). Never use this to change order_status.
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error

	// ClaimStockRestore flips the stock_restored guard; returns true for the
	// single caller that wins the claim.
	ClaimStockRestore(ctx context.Context, orderID uuid.UUID) (bool, error)

	// UpdateEarningStatusCAS advances the reseller earning status with a
	// compare-and-swap on its current value.
	UpdateEarningStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.EarningStatus) (bool, error)

	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)

	ListDeliveredPastWindow(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListShippedWithShipment(ctx context.Context, limit int) ([]models.Order, error)
	ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
	HasActiveReturn(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByAWB(ctx context.Context, awb string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("awb = ?", awb).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, expectedStatus enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ?", orderID, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) ClaimStockRestore(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND stock_restored = ?", orderID, false).
		Update("stock_restored", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateEarningStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.EarningStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND reseller_earning_status = ?", orderID, from).
		Update("reseller_earning_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"sold_count": gorm.Expr("sold_count + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"sold_count": gorm.Expr("sold_count - ?", qty),
		}).Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListDeliveredPastWindow lists delivered orders whose return window has
// closed, earning or not. An order with a return in flight is off delivered
// and never selected.
func (r *repository) ListDeliveredPastWindow(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("order_status = ?", enums.OrderStatusDelivered).
		Where("return_window_end_date < ?", now).
		Order("return_window_end_date ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListShippedWithShipment(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("order_status IN ?", []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusOutForDelivery}).
		Where("shipment_id IS NOT NULL AND shipment_id <> ''").
		Order("shipped_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_status = ?", enums.OrderStatusPending).
		Where("payment_status = ?", enums.PaymentStatusPending).
		Where("payment_method <> ?", enums.PaymentMethodCOD).
		Where("created_at < ?", olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) HasActiveReturn(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ?", orderID).
		Where("status NOT IN ?", []enums.ReturnStatus{
			enums.ReturnStatusRejected,
			enums.ReturnStatusRefunded,
			enums.ReturnStatusCancelled,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
