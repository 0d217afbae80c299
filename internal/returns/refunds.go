package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/ledger"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
)

// walletLedger is the slice of the ledger service refund settlement needs.
type walletLedger interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreditTx(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.WalletTransaction, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.WalletTransaction, error)
}

// ProcessRefundInput settles a received return.
type ProcessRefundInput struct {
	ReturnID    uuid.UUID
	ProcessedBy uuid.UUID

	// Reference is the external settlement id (gateway refund id or UTR).
	// Required for non-wallet refunds; wallet refunds reference their own
	// ledger entry.
	Reference string
}

// ProcessRefund settles the refund for a received return, reverses any
// reseller earning on the order and moves the order to returned. Calling it
// twice for the same return fails on the status check.
func (s *service) ProcessRefund(ctx context.Context, input ProcessRefundInput) (*models.ReturnRequest, error) {
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}

	req, err := s.Get(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}
	if req.Status == enums.ReturnStatusRefunded || req.RefundStatus == enums.RefundStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund already processed for this return")
	}
	if err := CanTransition(req.Status, enums.ReturnStatusRefunded); err != nil {
		return nil, err
	}
	if req.RefundMethod != enums.RefundMethodWallet && input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("settlement reference required for %s refunds", req.RefundMethod))
	}

	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	// The customer wallet must exist before the refund transaction starts.
	if req.RefundMethod == enums.RefundMethodWallet {
		if _, err := s.ledger.EnsureWallet(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		reference := input.Reference
		if req.RefundMethod == enums.RefundMethodWallet {
			refID := req.ID
			txn, err := s.ledger.CreditTx(ctx, tx, ledger.EntryInput{
				UserID:        req.UserID,
				AmountPaise:   req.RefundAmountPaise,
				Source:        enums.TransactionSourceRefund,
				ReferenceID:   &refID,
				ReferenceType: "return_request",
				Description:   fmt.Sprintf("refund for return %s", req.ReturnNo),
			})
			if err != nil {
				return err
			}
			reference = txn.ID.String()
		}

		applied, err := repo.UpdateStatusCAS(ctx, req.ID, req.Status, map[string]any{
			"status":           enums.ReturnStatusRefunded,
			"refund_status":    enums.RefundStatusCompleted,
			"refund_reference": reference,
			"refunded_at":      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
		}

		if err := s.reverseEarning(ctx, tx, ordersRepo, order, req); err != nil {
			return err
		}

		if err := s.restoreReturnedStock(ctx, ordersRepo, order, req); err != nil {
			return err
		}

		// The order leaves return_received for returned in the same
		// transaction, so a lost CAS rolls the refund back and it can be
		// retried.
		if _, err := s.lifecycle.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID:    req.OrderID,
			To:         enums.OrderStatusReturned,
			ChangedBy:  &input.ProcessedBy,
			Reason:     fmt.Sprintf("refund for return %s processed", req.ReturnNo),
			OccurredAt: &now,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithReturnNo(ctx, req.ReturnNo), "refund processed")
	return s.Get(ctx, req.ID)
}

// restoreReturnedStock hands back only the quantities covered by this return.
// Claiming the restore guard here also keeps the returned transition from
// restoring the untouched lines on top.
func (s *service) restoreReturnedStock(ctx context.Context, ordersRepo orders.Repository, order *models.Order, req *models.ReturnRequest) error {
	claimed, err := ordersRepo.ClaimStockRestore(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stock restore")
	}
	if !claimed {
		return nil
	}
	for _, item := range req.Items {
		if err := ordersRepo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return nil
}

// reverseEarning unwinds the reseller earning attached to the refunded order.
// A pending earning is simply cancelled; a credited one is clawed back from
// the reseller wallet with a reversal entry.
func (s *service) reverseEarning(ctx context.Context, tx *gorm.DB, ordersRepo orders.Repository, order *models.Order, req *models.ReturnRequest) error {
	if order.ResellerID == nil || order.ResellerEarningPaise <= 0 {
		return nil
	}

	switch order.ResellerEarningStatus {
	case enums.EarningStatusPending:
		if _, err := ordersRepo.UpdateEarningStatusCAS(ctx, order.ID, enums.EarningStatusPending, enums.EarningStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pending earning")
		}
		return nil

	case enums.EarningStatusCredited:
		refID := order.ID
		_, err := s.ledger.DebitTx(ctx, tx, ledger.EntryInput{
			UserID:        *order.ResellerID,
			AmountPaise:   order.ResellerEarningPaise,
			Source:        enums.TransactionSourceReversal,
			ReferenceID:   &refID,
			ReferenceType: "order",
			Description:   fmt.Sprintf("earning reversal for returned order %s", order.OrderNo),
		})
		if err != nil {
			// A drained wallet cannot absorb the clawback inside this refund;
			// flag it for manual recovery instead of blocking the customer.
			if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
				s.logger.Error(s.logger.WithOrderNo(ctx, order.OrderNo),
					"earning reversal exceeds reseller balance, needs manual adjustment", err)
			} else {
				return err
			}
		}
		if _, err := ordersRepo.UpdateEarningStatusCAS(ctx, order.ID, enums.EarningStatusCredited, enums.EarningStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel credited earning")
		}
		return nil
	}
	return nil
}
