package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/resellkart/resellkart-backend/internal/notifications"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
)

const unpaidExpiryBatchSize = 200

type stuckPendingReader interface {
	ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
}

// UnpaidExpiryJobParams configure the unpaid order expiry sweep.
type UnpaidExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    stuckPendingReader
	Lifecycle orders.Service
	Notifier  notifications.Service
	TTL       time.Duration
}

// NewUnpaidExpiryJob builds the job that cancels prepaid orders whose payment
// never completed, releasing their reserved stock.
func NewUnpaidExpiryJob(params UnpaidExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &unpaidExpiryJob{
		logg:      params.Logger,
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		notifier:  params.Notifier,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

type unpaidExpiryJob struct {
	logg      *logger.Logger
	orders    stuckPendingReader
	lifecycle orders.Service
	notifier  notifications.Service
	ttl       time.Duration
	now       func() time.Time
}

func (j *unpaidExpiryJob) Name() string { return "unpaid-expiry" }

func (j *unpaidExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stuck, err := j.orders.ListStuckPending(ctx, cutoff, unpaidExpiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stuck pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for i := range stuck {
		order := &stuck[i]
		if err := j.expireOrder(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.OrderNo, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": expired})
	j.logg.Info(logCtx, "unpaid expiry loop complete")
	return multierr.Combine(errs...)
}

func (j *unpaidExpiryJob) expireOrder(ctx context.Context, order *models.Order) error {
	_, err := j.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		Reason:  "payment not completed in time",
	})
	if err != nil {
		// A racing verify call may have confirmed the order after the query.
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) || pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return nil
		}
		return err
	}

	j.notifier.Notify(ctx, notifications.Input{
		UserID:        order.UserID,
		Type:          enums.NotificationTypeOrderCancelled,
		Title:         "Order Cancelled",
		Message:       fmt.Sprintf("Your order %s was cancelled because payment was not completed.", order.OrderNo),
		Data:          map[string]any{"order_no": order.OrderNo},
		ReferenceID:   &order.ID,
		ReferenceType: "order",
	})
	return nil
}
