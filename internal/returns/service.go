package returns

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/shiprocket"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type numberGenerator interface {
	Next(ctx context.Context, prefix string, now time.Time) (string, error)
}

// courier is the slice of the shipping client used for reverse pickups.
type courier interface {
	CreateReturn(ctx context.Context, req shiprocket.ReturnShipmentRequest) (*shiprocket.ShipmentResult, error)
	AssignAWB(ctx context.Context, shipmentID string) (*shiprocket.AWBResult, error)
}

// Service drives the return request lifecycle. Every return status change
// also moves the parent order through its matching return_* status.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.ReturnRequest, error)
	Approve(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error)
	Reject(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error)
	Cancel(ctx context.Context, returnID uuid.UUID, by *uuid.UUID) (*models.ReturnRequest, error)
	SchedulePickup(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	MarkPickedUp(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error)
	MarkReceived(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error)
	ProcessRefund(ctx context.Context, input ProcessRefundInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	GetByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error)
	GetByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error)
}

// CreateItemInput selects one order line (or part of it) for return.
type CreateItemInput struct {
	OrderItemID uuid.UUID
	Quantity    int
}

// CreateInput captures a customer's return request.
type CreateInput struct {
	OrderID      uuid.UUID
	UserID       uuid.UUID
	Reason       enums.ReturnReason
	ReasonDetail string
	Items        []CreateItemInput
}

// ReviewInput is an admin's approve/reject decision.
type ReviewInput struct {
	ReturnID   uuid.UUID
	ReviewedBy uuid.UUID
	// Reason is required for rejections.
	Reason string
}

type service struct {
	repo      Repository
	orders    orders.Repository
	lifecycle orders.Service
	ledger    walletLedger
	courier   courier
	numbers   numberGenerator
	tx        txRunner
	logger    *logger.Logger
}

// NewService builds the returns service.
func NewService(repo Repository, ordersRepo orders.Repository, lifecycle orders.Service, ledgerSvc walletLedger, courierClient courier, numbers numberGenerator, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if courierClient == nil {
		return nil, fmt.Errorf("courier client required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number generator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		orders:    ordersRepo,
		lifecycle: lifecycle,
		ledger:    ledgerSvc,
		courier:   courierClient,
		numbers:   numbers,
		tx:        tx,
		logger:    logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.ReturnRequest, error) {
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid return reason %q", input.Reason))
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.OrderStatus != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q is not eligible for return", order.OrderStatus))
	}

	// Eligibility reads the window end stamped at delivery, never recomputes it.
	now := time.Now().UTC()
	if order.ReturnWindowEndDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no return window")
	}
	if now.After(*order.ReturnWindowEndDate) {
		// Any part of a day past the window counts as a full day.
		expiredDays := int(math.Ceil(now.Sub(*order.ReturnWindowEndDate).Hours() / 24))
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return window expired %d day(s) ago", expiredDays))
	}

	active, err := s.orders.HasActiveReturn(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active returns")
	}
	if active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a return is already in progress for this order")
	}

	items, refundPaise, err := resolveReturnItems(order, input.Items)
	if err != nil {
		return nil, err
	}

	returnNo, err := s.numbers.Next(ctx, "RET", now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate return number")
	}

	method := enums.RefundMethodOriginalPayment
	if order.PaymentMethod == enums.PaymentMethodCOD {
		method = enums.RefundMethodWallet
	}

	var out *models.ReturnRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, &models.ReturnRequest{
			ReturnNo:          returnNo,
			OrderID:           order.ID,
			UserID:            input.UserID,
			Reason:            input.Reason,
			ReasonDetail:      input.ReasonDetail,
			Status:            enums.ReturnStatusPending,
			RefundAmountPaise: refundPaise,
			RefundMethod:      method,
			RefundStatus:      enums.RefundStatusPending,
			Items:             items,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}

		// The order moves to return_initiated in the same transaction, so a
		// lost CAS never leaves a pending return against a delivered order.
		if _, err := s.lifecycle.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: order.ID,
			To:      enums.OrderStatusReturnInitiated,
			Reason:  fmt.Sprintf("return %s requested", returnNo),
		}); err != nil {
			return err
		}

		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithReturnNo(ctx, returnNo), "return request created")
	return out, nil
}

// resolveReturnItems validates the requested lines against the order and sums
// the refund as quantity times the frozen final unit price.
func resolveReturnItems(order *models.Order, inputs []CreateItemInput) ([]models.ReturnItem, int64, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}

	items := make([]models.ReturnItem, 0, len(inputs))
	var refund int64
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	for _, in := range inputs {
		line, ok := byID[in.OrderItemID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("order item %s does not belong to this order", in.OrderItemID))
		}
		if _, dup := seen[in.OrderItemID]; dup {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("order item %s listed twice", in.OrderItemID))
		}
		seen[in.OrderItemID] = struct{}{}
		if in.Quantity <= 0 || in.Quantity > line.Quantity {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("invalid quantity %d for order item %s", in.Quantity, in.OrderItemID))
		}
		items = append(items, models.ReturnItem{
			OrderItemID: line.ID,
			ProductID:   line.ProductID,
			Quantity:    in.Quantity,
		})
		refund += line.FinalPricePaise * int64(in.Quantity)
	}
	return items, refund, nil
}

func (s *service) Approve(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error) {
	req, err := s.Get(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(req.Status, enums.ReturnStatusApproved); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	applied, err := s.repo.UpdateStatusCAS(ctx, req.ID, req.Status, map[string]any{
		"status":      enums.ReturnStatusApproved,
		"reviewed_by": input.ReviewedBy,
		"reviewed_at": now,
		"approved_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve return")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
	}

	if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID:   req.OrderID,
		To:        enums.OrderStatusReturnApproved,
		ChangedBy: &input.ReviewedBy,
		Reason:    fmt.Sprintf("return %s approved", req.ReturnNo),
	}); err != nil {
		return nil, err
	}

	return s.Get(ctx, req.ID)
}

func (s *service) Reject(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	req, err := s.Get(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(req.Status, enums.ReturnStatusRejected); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	applied, err := s.repo.UpdateStatusCAS(ctx, req.ID, req.Status, map[string]any{
		"status":           enums.ReturnStatusRejected,
		"reviewed_by":      input.ReviewedBy,
		"reviewed_at":      now,
		"rejection_reason": input.Reason,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject return")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
	}

	if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID:   req.OrderID,
		To:        enums.OrderStatusReturnRejected,
		ChangedBy: &input.ReviewedBy,
		Reason:    input.Reason,
	}); err != nil {
		return nil, err
	}

	return s.Get(ctx, req.ID)
}

func (s *service) Cancel(ctx context.Context, returnID uuid.UUID, by *uuid.UUID) (*models.ReturnRequest, error) {
	req, err := s.Get(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(req.Status, enums.ReturnStatusCancelled); err != nil {
		return nil, err
	}

	applied, err := s.repo.UpdateStatusCAS(ctx, req.ID, req.Status, map[string]any{
		"status":       enums.ReturnStatusCancelled,
		"cancelled_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel return")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
	}

	// The order goes through return_cancelled back to delivered, so a fresh
	// return can still be opened inside the window.
	if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID:   req.OrderID,
		To:        enums.OrderStatusReturnCancelled,
		ChangedBy: by,
		Reason:    fmt.Sprintf("return %s cancelled", req.ReturnNo),
	}); err != nil {
		return nil, err
	}
	if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID: req.OrderID,
		To:      enums.OrderStatusDelivered,
		Reason:  "return cancelled, order restored",
	}); err != nil {
		return nil, err
	}

	return s.Get(ctx, req.ID)
}

func (s *service) SchedulePickup(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	req, err := s.Get(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(req.Status, enums.ReturnStatusPickupScheduled); err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no pickup address")
	}

	itemsByOrderItem := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		itemsByOrderItem[item.ID] = item
	}
	shipItems := make([]shiprocket.ShipmentItem, 0, len(req.Items))
	for _, item := range req.Items {
		line := itemsByOrderItem[item.OrderItemID]
		shipItems = append(shipItems, shiprocket.ShipmentItem{
			Name:         line.ProductName,
			SKU:          line.ProductID.String(),
			Units:        item.Quantity,
			SellingPrice: line.FinalPricePaise,
		})
	}

	addr := order.ShippingAddress

	// A courier failure leaves the return approved so the pickup can simply
	// be retried.
	result, err := s.courier.CreateReturn(ctx, shiprocket.ReturnShipmentRequest{
		ReturnNo:     req.ReturnNo,
		OrderDate:    time.Now().UTC(),
		CustomerName: addr.Name,
		Phone:        addr.Phone,
		AddressLine1: addr.Line1,
		AddressLine2: addr.Line2,
		City:         addr.City,
		State:        addr.State,
		Pincode:      addr.Pincode,
		Country:      addr.Country,
		RefundPaise:  req.RefundAmountPaise,
		Items:        shipItems,
	})
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":              enums.ReturnStatusPickupScheduled,
		"shipment_id":         result.ShipmentID,
		"pickup_scheduled_at": time.Now().UTC(),
	}
	if awb, err := s.courier.AssignAWB(ctx, result.ShipmentID); err != nil {
		s.logger.Error(s.logger.WithReturnNo(ctx, req.ReturnNo), "awb assignment failed, pickup still scheduled", err)
	} else {
		updates["awb"] = awb.AWB
		updates["courier_name"] = awb.CourierName
	}

	applied, err := s.repo.UpdateStatusCAS(ctx, req.ID, req.Status, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pickup")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
	}

	s.logger.Info(s.logger.WithReturnNo(ctx, req.ReturnNo), "return pickup scheduled")
	return s.Get(ctx, req.ID)
}

func (s *service) MarkPickedUp(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error) {
	return s.advance(ctx, returnID, enums.ReturnStatusPickedUp, "picked_up_at", enums.OrderStatusReturnPickedUp, occurredAt)
}

func (s *service) MarkReceived(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error) {
	return s.advance(ctx, returnID, enums.ReturnStatusReceived, "received_at", enums.OrderStatusReturnReceived, occurredAt)
}

// advance moves the return and the parent order together for the courier-driven
// stages. Re-delivered webhooks land on the same status and are a no-op.
func (s *service) advance(ctx context.Context, returnID uuid.UUID, to enums.ReturnStatus, stampColumn string, orderStatus enums.OrderStatus, occurredAt *time.Time) (*models.ReturnRequest, error) {
	req, err := s.Get(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if req.Status == to {
		return req, nil
	}
	if err := CanTransition(req.Status, to); err != nil {
		return nil, err
	}

	when := time.Now().UTC()
	if occurredAt != nil && !occurredAt.IsZero() {
		when = occurredAt.UTC()
	}

	applied, err := s.repo.UpdateStatusCAS(ctx, req.ID, req.Status, map[string]any{
		"status":    to,
		stampColumn: when,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance return")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "return was modified concurrently")
	}

	if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID:    req.OrderID,
		To:         orderStatus,
		Reason:     fmt.Sprintf("return %s %s", req.ReturnNo, to),
		OccurredAt: &when,
	}); err != nil {
		return nil, err
	}

	return s.Get(ctx, req.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return req, nil
}

func (s *service) GetByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error) {
	req, err := s.repo.FindByReturnNo(ctx, returnNo)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return req, nil
}

func (s *service) GetByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error) {
	req, err := s.repo.FindByAWB(ctx, awb)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return req, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	reqs, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests")
	}
	return reqs, nil
}
