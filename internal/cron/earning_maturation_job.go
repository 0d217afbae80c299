package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/ledger"
	"github.com/resellkart/resellkart-backend/internal/notifications"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
)

const maturationBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EarningMaturationJobParams configure the earning maturation sweep.
type EarningMaturationJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Lifecycle orders.Service
	Ledger    ledger.Service
	Notifier  notifications.Service
}

// NewEarningMaturationJob builds the job that sweeps delivered orders whose
// return window has closed: reseller earnings are credited and the order is
// moved to completed.
func NewEarningMaturationJob(params EarningMaturationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	return &earningMaturationJob{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		ledger:    params.Ledger,
		notifier:  params.Notifier,
		now:       time.Now,
	}, nil
}

type earningMaturationJob struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	lifecycle orders.Service
	ledger    ledger.Service
	notifier  notifications.Service
	now       func() time.Time
}

func (j *earningMaturationJob) Name() string { return "earning-maturation" }

func (j *earningMaturationJob) Run(ctx context.Context) error {
	matured, err := j.orders.ListDeliveredPastWindow(ctx, j.now().UTC(), maturationBatchSize)
	if err != nil {
		return fmt.Errorf("query matured orders: %w", err)
	}

	var errs []error
	completed := 0
	for i := range matured {
		order := &matured[i]
		if err := j.creditOrder(ctx, order); err != nil {
			// One bad order must not starve the rest of the batch.
			errs = append(errs, fmt.Errorf("order %s: %w", order.OrderNo, err))
			continue
		}
		if err := j.completeOrder(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.OrderNo, err))
			continue
		}
		completed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": completed})
	j.logg.Info(logCtx, "earning maturation loop complete")
	return multierr.Combine(errs...)
}

func (j *earningMaturationJob) creditOrder(ctx context.Context, order *models.Order) error {
	if order.ResellerID == nil || order.ResellerEarningPaise <= 0 {
		return nil
	}

	if _, err := j.ledger.EnsureWallet(ctx, *order.ResellerID); err != nil {
		return err
	}

	credited := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		// The CAS claim makes a concurrent sweep of the same order a no-op,
		// and rolls back with the credit if the wallet write fails.
		claimed, err := j.orders.WithTx(tx).UpdateEarningStatusCAS(ctx, order.ID, enums.EarningStatusPending, enums.EarningStatusCredited)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		refID := order.ID
		_, err = j.ledger.CreditTx(ctx, tx, ledger.EntryInput{
			UserID:        *order.ResellerID,
			AmountPaise:   order.ResellerEarningPaise,
			Source:        enums.TransactionSourceResellEarning,
			ReferenceID:   &refID,
			ReferenceType: "order",
			Description:   fmt.Sprintf("resell earning for order %s", order.OrderNo),
		})
		if err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return err
	}
	if !credited {
		return nil
	}

	j.notifier.Notify(ctx, notifications.Input{
		UserID:  *order.ResellerID,
		Type:    enums.NotificationTypeWalletCredited,
		Title:   "Earning Credited",
		Message: fmt.Sprintf("Your earning for order %s has been credited to your wallet.", order.OrderNo),
		Data: map[string]any{
			"order_no":     order.OrderNo,
			"amount_paise": order.ResellerEarningPaise,
		},
		ReferenceID:   &order.ID,
		ReferenceType: "order",
	})
	return nil
}

// completeOrder closes out a delivered order once its return window has
// passed. A return request racing the sweep wins the CAS and keeps the order.
func (j *earningMaturationJob) completeOrder(ctx context.Context, order *models.Order) error {
	_, err := j.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCompleted,
		Reason:  "return window closed",
	})
	if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) && !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		return err
	}
	return nil
}
