package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every order status change. Direct writes to order_status
// outside Transition are a correctness bug.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)

	// TransitionTx applies the transition inside the caller's transaction,
	// so the status change commits or rolls back together with the caller's
	// own writes.
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.Order, error)

	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	logger *logger.Logger
}

// TransitionInput captures one requested status change.
type TransitionInput struct {
	OrderID   uuid.UUID
	To        enums.OrderStatus
	ChangedBy *uuid.UUID
	Reason    string

	// OccurredAt is the real-world timestamp of the event when the caller
	// has one (e.g. a delivery webhook's delivered_date). The delivered
	// hook derives the return window from this value exactly once.
	OccurredAt *time.Time
}

// CancelInput captures a user- or admin-initiated cancellation.
type CancelInput struct {
	OrderID uuid.UUID
	By      *uuid.UUID
	Reason  string
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logger: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	order, err := s.repo.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	orders, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.transition(ctx, s.repo.WithTx(tx), input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*models.Order, error) {
	return s.transition(ctx, s.repo.WithTx(tx), input)
}

func (s *service) transition(ctx context.Context, repo Repository, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", input.To))
	}

	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	// Repeating the same transition is a no-op so duplicate webhook
	// deliveries don't grow the history or move timestamps.
	if order.OrderStatus == input.To {
		return order, nil
	}

	if err := CanTransition(order.OrderStatus, input.To); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	occurredAt := now
	if input.OccurredAt != nil && !input.OccurredAt.IsZero() {
		occurredAt = input.OccurredAt.UTC()
	}

	history := append(order.StatusHistory, types.StatusChange{
		From:      string(order.OrderStatus),
		To:        string(input.To),
		ChangedAt: now,
		ChangedBy: input.ChangedBy,
		Reason:    input.Reason,
	})

	updates := map[string]any{
		"order_status":   input.To,
		"status_history": &history,
		"updated_at":     now,
	}
	s.applyTransitionHooks(order, input, occurredAt, updates)

	applied, err := repo.UpdateStatusCAS(ctx, order.ID, order.OrderStatus, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply transition")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
	}

	if input.To == enums.OrderStatusCancelled && order.ResellerEarningStatus == enums.EarningStatusPending {
		if _, err := repo.UpdateEarningStatusCAS(ctx, order.ID, enums.EarningStatusPending, enums.EarningStatusCancelled); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reseller earning")
		}
	}

	if restoresStock(input.To) {
		if err := s.restoreStockOnce(ctx, repo, order); err != nil {
			return nil, err
		}
	}

	refreshed, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return refreshed, nil
}

// applyTransitionHooks stamps the status timestamp and the status-specific
// side fields into the pending update.
func (s *service) applyTransitionHooks(order *models.Order, input TransitionInput, occurredAt time.Time, updates map[string]any) {
	switch input.To {
	case enums.OrderStatusConfirmed:
		updates["confirmed_at"] = occurredAt

	case enums.OrderStatusProcessing:
		updates["processing_at"] = occurredAt

	case enums.OrderStatusPacked:
		updates["packed_at"] = occurredAt

	case enums.OrderStatusShipped:
		updates["shipped_at"] = occurredAt

	case enums.OrderStatusDelivered:
		// The return window is derived from the delivery timestamp exactly
		// once, here. Every later eligibility check reads the stored value.
		updates["delivered_at"] = occurredAt
		windowDays := order.ReturnWindowDays
		if windowDays <= 0 {
			windowDays = 7
		}
		updates["return_window_end_date"] = occurredAt.Add(time.Duration(windowDays) * 24 * time.Hour)
		if order.PaymentMethod == enums.PaymentMethodCOD {
			updates["payment_status"] = enums.PaymentStatusCompleted
		}

	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = occurredAt
		if input.Reason != "" {
			updates["cancellation_reason"] = input.Reason
		}
		if input.ChangedBy != nil {
			updates["cancelled_by"] = *input.ChangedBy
		}

	case enums.OrderStatusRefunded, enums.OrderStatusReturned:
		updates["refunded_at"] = occurredAt

	case enums.OrderStatusCompleted:
		updates["completed_at"] = occurredAt
	}
}

// restoresStock lists the statuses whose entry hands reserved stock back.
func restoresStock(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusCancelled, enums.OrderStatusRefunded, enums.OrderStatusReturned:
		return true
	}
	return false
}

// restoreStockOnce returns every line item's quantity to stock, guarded so a
// cancellation racing a refund cannot restore twice. Refund processing claims
// the same guard itself when only part of the order comes back.
func (s *service) restoreStockOnce(ctx context.Context, repo Repository, order *models.Order) error {
	claimed, err := repo.ClaimStockRestore(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stock restore")
	}
	if !claimed {
		return nil
	}
	for _, item := range order.Items {
		if err := repo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	if order.HasShipment() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"shipment already created for this order; use the return flow instead")
	}
	if !IsCancellable(order.OrderStatus) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q cannot be cancelled", order.OrderStatus))
	}

	return s.Transition(ctx, TransitionInput{
		OrderID:   input.OrderID,
		To:        enums.OrderStatusCancelled,
		ChangedBy: input.By,
		Reason:    input.Reason,
	})
}
