package returns

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/ledger"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/shiprocket"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type fakeReturnsRepo struct {
	requests map[uuid.UUID]*models.ReturnRequest
}

func newFakeReturnsRepo() *fakeReturnsRepo {
	return &fakeReturnsRepo{requests: make(map[uuid.UUID]*models.ReturnRequest)}
}

func (f *fakeReturnsRepo) add(req *models.ReturnRequest) *models.ReturnRequest {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	for i := range req.Items {
		if req.Items[i].ID == uuid.Nil {
			req.Items[i].ID = uuid.New()
		}
		req.Items[i].ReturnRequestID = req.ID
	}
	f.requests[req.ID] = req
	return req
}

func (f *fakeReturnsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeReturnsRepo) Create(ctx context.Context, req *models.ReturnRequest) (*models.ReturnRequest, error) {
	created := f.add(req)
	out := *created
	return &out, nil
}

func (f *fakeReturnsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *req
	return &out, nil
}

func (f *fakeReturnsRepo) FindByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error) {
	for _, req := range f.requests {
		if req.ReturnNo == returnNo {
			out := *req
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReturnsRepo) FindByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error) {
	for _, req := range f.requests {
		if req.AWB != nil && *req.AWB == awb {
			out := *req
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReturnsRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	var out []models.ReturnRequest
	for _, req := range f.requests {
		if req.UserID == userID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeReturnsRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedStatus enums.ReturnStatus, updates map[string]any) (bool, error) {
	req, ok := f.requests[id]
	if !ok || req.Status != expectedStatus {
		return false, nil
	}
	f.apply(req, updates)
	return true, nil
}

func (f *fakeReturnsRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	req, ok := f.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.apply(req, updates)
	return nil
}

func (f *fakeReturnsRepo) apply(req *models.ReturnRequest, updates map[string]any) {
	for column, value := range updates {
		switch column {
		case "status":
			req.Status = value.(enums.ReturnStatus)
		case "reviewed_by":
			id := value.(uuid.UUID)
			req.ReviewedBy = &id
		case "reviewed_at":
			ts := value.(time.Time)
			req.ReviewedAt = &ts
		case "approved_at":
			ts := value.(time.Time)
			req.ApprovedAt = &ts
		case "rejection_reason":
			reason := value.(string)
			req.RejectionReason = &reason
		case "cancelled_at":
			ts := value.(time.Time)
			req.CancelledAt = &ts
		case "shipment_id":
			id := value.(string)
			req.ShipmentID = &id
		case "pickup_scheduled_at":
			ts := value.(time.Time)
			req.PickupScheduledAt = &ts
		case "awb":
			awb := value.(string)
			req.AWB = &awb
		case "courier_name":
			name := value.(string)
			req.CourierName = &name
		case "picked_up_at":
			ts := value.(time.Time)
			req.PickedUpAt = &ts
		case "received_at":
			ts := value.(time.Time)
			req.ReceivedAt = &ts
		case "refund_status":
			req.RefundStatus = value.(enums.RefundStatus)
		case "refund_reference":
			ref := value.(string)
			req.RefundReference = &ref
		case "refunded_at":
			ts := value.(time.Time)
			req.RefundedAt = &ts
		}
	}
}

type fakeOrdersRepo struct {
	orders       map[uuid.UUID]*models.Order
	activeReturn bool
	earningMoves []enums.EarningStatus
	restored     map[uuid.UUID]int
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{
		orders:   make(map[uuid.UUID]*models.Order),
		restored: make(map[uuid.UUID]int),
	}
}

func (f *fakeOrdersRepo) add(order *models.Order) *models.Order {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	f.orders[order.ID] = order
	return order
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	return f.add(order), nil
}

func (f *fakeOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *order
	return &out, nil
}

func (f *fakeOrdersRepo) FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.OrderNo == orderNo {
			out := *order
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) FindByAWB(ctx context.Context, awb string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) UpdateStatusCAS(ctx context.Context, orderID uuid.UUID, expectedStatus enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok || order.OrderStatus != expectedStatus {
		return false, nil
	}
	if status, ok := updates["order_status"].(enums.OrderStatus); ok {
		order.OrderStatus = status
	}
	return true, nil
}

func (f *fakeOrdersRepo) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}

func (f *fakeOrdersRepo) ClaimStockRestore(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok || order.StockRestored {
		return false, nil
	}
	order.StockRestored = true
	return true, nil
}

func (f *fakeOrdersRepo) UpdateEarningStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.EarningStatus) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok || order.ResellerEarningStatus != from {
		return false, nil
	}
	order.ResellerEarningStatus = to
	f.earningMoves = append(f.earningMoves, to)
	return true, nil
}

func (f *fakeOrdersRepo) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	return true, nil
}

func (f *fakeOrdersRepo) RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error {
	f.restored[productID] += qty
	return nil
}

func (f *fakeOrdersRepo) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) ListDeliveredPastWindow(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) ListShippedWithShipment(ctx context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) HasActiveReturn(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return f.activeReturn, nil
}

// fakeLifecycle moves order statuses through the real transition table so the
// paired order moves stay honest.
type fakeLifecycle struct {
	repo          *fakeOrdersRepo
	calls         []orders.TransitionInput
	txCalls       int
	transitionErr error
}

func (f *fakeLifecycle) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	order, ok := f.repo.orders[input.OrderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.OrderStatus == input.To {
		out := *order
		return &out, nil
	}
	if err := orders.CanTransition(order.OrderStatus, input.To); err != nil {
		return nil, err
	}
	order.OrderStatus = input.To
	f.calls = append(f.calls, input)
	out := *order
	return &out, nil
}

func (f *fakeLifecycle) TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) (*models.Order, error) {
	f.txCalls++
	return f.Transition(ctx, input)
}

func (f *fakeLifecycle) Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error) {
	return nil, nil
}

func (f *fakeLifecycle) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return f.repo.FindByID(ctx, id)
}

func (f *fakeLifecycle) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	return f.repo.FindByOrderNo(ctx, orderNo)
}

func (f *fakeLifecycle) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	return nil, nil
}

type fakeWalletLedger struct {
	ensured  []uuid.UUID
	credits  []ledger.EntryInput
	debits   []ledger.EntryInput
	debitErr error
}

func (f *fakeWalletLedger) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.ensured = append(f.ensured, userID)
	return &models.Wallet{ID: uuid.New(), UserID: userID}, nil
}

func (f *fakeWalletLedger) CreditTx(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.WalletTransaction, error) {
	f.credits = append(f.credits, input)
	return &models.WalletTransaction{ID: uuid.New(), AmountPaise: input.AmountPaise}, nil
}

func (f *fakeWalletLedger) DebitTx(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.WalletTransaction, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	f.debits = append(f.debits, input)
	return &models.WalletTransaction{ID: uuid.New(), AmountPaise: input.AmountPaise}, nil
}

type fakeCourier struct {
	createErr   error
	awbErr      error
	createCalls []shiprocket.ReturnShipmentRequest
}

func (f *fakeCourier) CreateReturn(ctx context.Context, req shiprocket.ReturnShipmentRequest) (*shiprocket.ShipmentResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createCalls = append(f.createCalls, req)
	return &shiprocket.ShipmentResult{OrderID: "sr-order-1", ShipmentID: "sr-ship-1", Status: "NEW"}, nil
}

func (f *fakeCourier) AssignAWB(ctx context.Context, shipmentID string) (*shiprocket.AWBResult, error) {
	if f.awbErr != nil {
		return nil, f.awbErr
	}
	return &shiprocket.AWBResult{AWB: "AWB987654", CourierName: "Delhivery"}, nil
}

type fakeNumbers struct{}

func (fakeNumbers) Next(ctx context.Context, prefix string, now time.Time) (string, error) {
	return prefix + "-20250610-0001", nil
}

// fakeTxRunner rolls the returns repo back to its pre-transaction state when
// the body fails, mirroring the real runner closely enough to catch writes
// that would survive an aborted transaction.
type fakeTxRunner struct {
	repo *fakeReturnsRepo
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := make(map[uuid.UUID]*models.ReturnRequest, len(f.repo.requests))
	for id, req := range f.repo.requests {
		copied := *req
		snapshot[id] = &copied
	}
	if err := fn(nil); err != nil {
		f.repo.requests = snapshot
		return err
	}
	return nil
}

type returnsHarness struct {
	svc       Service
	repo      *fakeReturnsRepo
	orders    *fakeOrdersRepo
	lifecycle *fakeLifecycle
	ledger    *fakeWalletLedger
	courier   *fakeCourier
}

func newHarness(t *testing.T) *returnsHarness {
	t.Helper()
	repo := newFakeReturnsRepo()
	ordersRepo := newFakeOrdersRepo()
	lifecycle := &fakeLifecycle{repo: ordersRepo}
	walletLedger := &fakeWalletLedger{}
	courierClient := &fakeCourier{}
	svc, err := NewService(repo, ordersRepo, lifecycle, walletLedger, courierClient, fakeNumbers{}, &fakeTxRunner{repo: repo}, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &returnsHarness{
		svc:       svc,
		repo:      repo,
		orders:    ordersRepo,
		lifecycle: lifecycle,
		ledger:    walletLedger,
		courier:   courierClient,
	}
}

// deliveredOrder seeds a delivered two-line order with an open return window.
func deliveredOrder(h *returnsHarness, method enums.PaymentMethod) *models.Order {
	windowEnd := time.Now().UTC().Add(5 * 24 * time.Hour)
	line2 := "Near the park"
	return h.orders.add(&models.Order{
		OrderNo:       "ORD-20250601-0042",
		UserID:        uuid.New(),
		OrderStatus:   enums.OrderStatusDelivered,
		PaymentMethod: method,
		ShippingAddress: &types.Address{
			Name:    "Asha Rao",
			Phone:   "9876543210",
			Line1:   "12 MG Road",
			Line2:   line2,
			City:    "Bengaluru",
			State:   "Karnataka",
			Pincode: "560001",
			Country: "India",
		},
		ReturnWindowDays:    7,
		ReturnWindowEndDate: &windowEnd,
		Items: []models.OrderItem{
			{ProductID: uuid.New(), ProductName: "Linen Shirt", Quantity: 2, FinalPricePaise: 130000},
			{ProductID: uuid.New(), ProductName: "Cotton Kurta", Quantity: 1, FinalPricePaise: 80000},
		},
	})
}

func TestService_Create(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)

	req, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonDamaged,
		Items: []CreateItemInput{
			{OrderItemID: order.Items[0].ID, Quantity: 1},
			{OrderItemID: order.Items[1].ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if req.ReturnNo != "RET-20250610-0001" {
		t.Fatalf("return no = %s", req.ReturnNo)
	}
	if req.Status != enums.ReturnStatusPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}
	if req.RefundAmountPaise != 210000 {
		t.Fatalf("refund = %d, want 210000", req.RefundAmountPaise)
	}
	// COD orders refund to the wallet since there is no gateway payment.
	if req.RefundMethod != enums.RefundMethodWallet {
		t.Fatalf("refund method = %s, want wallet", req.RefundMethod)
	}
	if len(req.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(req.Items))
	}

	if h.orders.orders[order.ID].OrderStatus != enums.OrderStatusReturnInitiated {
		t.Fatalf("order status = %s, want return_initiated", h.orders.orders[order.ID].OrderStatus)
	}
	if len(h.lifecycle.calls) != 1 || h.lifecycle.calls[0].To != enums.OrderStatusReturnInitiated {
		t.Fatalf("unexpected lifecycle calls: %+v", h.lifecycle.calls)
	}
	if h.lifecycle.txCalls != 1 {
		t.Fatal("order move must share the request's transaction")
	}
}

func TestService_CreateRollsBackWhenOrderMoveFails(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	h.lifecycle.transitionErr = pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")

	_, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonDamaged,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// No request row may survive when the order could not be moved, or a
	// stranded pending return would block every later attempt.
	if len(h.repo.requests) != 0 {
		t.Fatalf("requests = %d, want 0", len(h.repo.requests))
	}
}

func TestService_CreatePrepaidRefundsToOriginalPayment(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodUPI)

	req, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonWrongProduct,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if req.RefundMethod != enums.RefundMethodOriginalPayment {
		t.Fatalf("refund method = %s, want original_payment", req.RefundMethod)
	}
	if req.RefundAmountPaise != 260000 {
		t.Fatalf("refund = %d, want 260000", req.RefundAmountPaise)
	}
}

func TestService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	item := CreateItemInput{OrderItemID: order.Items[0].ID, Quantity: 1}

	tests := []struct {
		name  string
		input CreateInput
	}{
		{
			name:  "missing order id",
			input: CreateInput{UserID: order.UserID, Reason: enums.ReturnReasonDamaged, Items: []CreateItemInput{item}},
		},
		{
			name:  "missing user id",
			input: CreateInput{OrderID: order.ID, Reason: enums.ReturnReasonDamaged, Items: []CreateItemInput{item}},
		},
		{
			name:  "invalid reason",
			input: CreateInput{OrderID: order.ID, UserID: order.UserID, Reason: "changed_my_mind", Items: []CreateItemInput{item}},
		},
		{
			name:  "no items",
			input: CreateInput{OrderID: order.ID, UserID: order.UserID, Reason: enums.ReturnReasonDamaged},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), tt.input)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateItemValidation(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	line := order.Items[0]

	tests := []struct {
		name  string
		items []CreateItemInput
	}{
		{
			name:  "item from another order",
			items: []CreateItemInput{{OrderItemID: uuid.New(), Quantity: 1}},
		},
		{
			name: "item listed twice",
			items: []CreateItemInput{
				{OrderItemID: line.ID, Quantity: 1},
				{OrderItemID: line.ID, Quantity: 1},
			},
		},
		{
			name:  "zero quantity",
			items: []CreateItemInput{{OrderItemID: line.ID, Quantity: 0}},
		},
		{
			name:  "quantity above ordered",
			items: []CreateItemInput{{OrderItemID: line.ID, Quantity: line.Quantity + 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), CreateInput{
				OrderID: order.ID,
				UserID:  order.UserID,
				Reason:  enums.ReturnReasonDamaged,
				Items:   tt.items,
			})
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateOwnerMismatch(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)

	// Someone else's order reads as not found, not as forbidden.
	_, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  uuid.New(),
		Reason:  enums.ReturnReasonDamaged,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_CreateRequiresDelivered(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	order.OrderStatus = enums.OrderStatusShipped

	_, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonDamaged,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_CreateWindowExpired(t *testing.T) {
	tests := []struct {
		name    string
		expired time.Duration
		message string
	}{
		// Any part of a day past the window counts as a full day, so three
		// days and an hour reads as four.
		{name: "partial fourth day", expired: 73 * time.Hour, message: "expired 4 day(s) ago"},
		{name: "just past the window", expired: 30 * time.Minute, message: "expired 1 day(s) ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			order := deliveredOrder(h, enums.PaymentMethodCOD)
			windowEnd := time.Now().UTC().Add(-tt.expired)
			order.ReturnWindowEndDate = &windowEnd

			_, err := h.svc.Create(context.Background(), CreateInput{
				OrderID: order.ID,
				UserID:  order.UserID,
				Reason:  enums.ReturnReasonDamaged,
				Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
			})
			if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				t.Fatalf("expected state conflict, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Fatalf("error should say %q, got %v", tt.message, err)
			}
		})
	}
}

func TestService_CreateWithoutWindow(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	order.ReturnWindowEndDate = nil

	_, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonDamaged,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_CreateActiveReturnBlocks(t *testing.T) {
	h := newHarness(t)
	order := deliveredOrder(h, enums.PaymentMethodCOD)
	h.orders.activeReturn = true

	_, err := h.svc.Create(context.Background(), CreateInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Reason:  enums.ReturnReasonDamaged,
		Items:   []CreateItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

// seedReturn plants a return at the given status with the matching order state.
func seedReturn(h *returnsHarness, status enums.ReturnStatus, orderStatus enums.OrderStatus, method enums.PaymentMethod) *models.ReturnRequest {
	order := deliveredOrder(h, method)
	order.OrderStatus = orderStatus
	return h.repo.add(&models.ReturnRequest{
		ReturnNo:          "RET-20250605-0007",
		OrderID:           order.ID,
		UserID:            order.UserID,
		Reason:            enums.ReturnReasonDamaged,
		Status:            status,
		RefundAmountPaise: 130000,
		RefundMethod:      refundMethodFor(method),
		RefundStatus:      enums.RefundStatusPending,
		Items: []models.ReturnItem{
			{OrderItemID: order.Items[0].ID, ProductID: order.Items[0].ProductID, Quantity: 1},
		},
	})
}

func refundMethodFor(method enums.PaymentMethod) enums.RefundMethod {
	if method == enums.PaymentMethodCOD {
		return enums.RefundMethodWallet
	}
	return enums.RefundMethodOriginalPayment
}

func TestService_Approve(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusPending, enums.OrderStatusReturnInitiated, enums.PaymentMethodCOD)
	admin := uuid.New()

	approved, err := h.svc.Approve(context.Background(), ReviewInput{ReturnID: req.ID, ReviewedBy: admin})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if approved.Status != enums.ReturnStatusApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != admin {
		t.Fatal("reviewed_by should be stamped")
	}
	if approved.ReviewedAt == nil || approved.ApprovedAt == nil {
		t.Fatal("review timestamps should be stamped")
	}
	if h.orders.orders[req.OrderID].OrderStatus != enums.OrderStatusReturnApproved {
		t.Fatalf("order status = %s, want return_approved", h.orders.orders[req.OrderID].OrderStatus)
	}

	// A second approval hits the transition table.
	_, err = h.svc.Approve(context.Background(), ReviewInput{ReturnID: req.ID, ReviewedBy: admin})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_Reject(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusPending, enums.OrderStatusReturnInitiated, enums.PaymentMethodCOD)
	admin := uuid.New()

	_, err := h.svc.Reject(context.Background(), ReviewInput{ReturnID: req.ID, ReviewedBy: admin})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("rejection without a reason should fail validation, got %v", err)
	}

	rejected, err := h.svc.Reject(context.Background(), ReviewInput{
		ReturnID:   req.ID,
		ReviewedBy: admin,
		Reason:     "photos show no damage",
	})
	if err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if rejected.Status != enums.ReturnStatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "photos show no damage" {
		t.Fatal("rejection reason should be stored")
	}
	if h.orders.orders[req.OrderID].OrderStatus != enums.OrderStatusReturnRejected {
		t.Fatalf("order status = %s, want return_rejected", h.orders.orders[req.OrderID].OrderStatus)
	}
}

func TestService_CancelRestoresOrderToDelivered(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusApproved, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)
	by := uuid.New()

	cancelled, err := h.svc.Cancel(context.Background(), req.ID, &by)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelled.Status != enums.ReturnStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("cancelled_at should be stamped")
	}

	// The order passes through return_cancelled and lands back on delivered,
	// keeping the return window usable.
	if h.orders.orders[req.OrderID].OrderStatus != enums.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", h.orders.orders[req.OrderID].OrderStatus)
	}
	if len(h.lifecycle.calls) != 2 {
		t.Fatalf("expected 2 order transitions, got %d", len(h.lifecycle.calls))
	}
	if h.lifecycle.calls[0].To != enums.OrderStatusReturnCancelled || h.lifecycle.calls[1].To != enums.OrderStatusDelivered {
		t.Fatalf("unexpected transitions: %+v", h.lifecycle.calls)
	}
}

func TestService_SchedulePickup(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusApproved, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)

	scheduled, err := h.svc.SchedulePickup(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("SchedulePickup error: %v", err)
	}
	if scheduled.Status != enums.ReturnStatusPickupScheduled {
		t.Fatalf("status = %s, want pickup_scheduled", scheduled.Status)
	}
	if scheduled.ShipmentID == nil || *scheduled.ShipmentID != "sr-ship-1" {
		t.Fatal("shipment id should be stored")
	}
	if scheduled.AWB == nil || *scheduled.AWB != "AWB987654" {
		t.Fatal("awb should be stored")
	}
	if scheduled.CourierName == nil || *scheduled.CourierName != "Delhivery" {
		t.Fatal("courier name should be stored")
	}
	if scheduled.PickupScheduledAt == nil {
		t.Fatal("pickup_scheduled_at should be stamped")
	}

	if len(h.courier.createCalls) != 1 {
		t.Fatalf("expected 1 courier call, got %d", len(h.courier.createCalls))
	}
	call := h.courier.createCalls[0]
	if call.ReturnNo != req.ReturnNo || call.Pincode != "560001" || call.RefundPaise != 130000 {
		t.Fatalf("unexpected courier request: %+v", call)
	}
	if len(call.Items) != 1 || call.Items[0].Name != "Linen Shirt" || call.Items[0].Units != 1 {
		t.Fatalf("unexpected courier items: %+v", call.Items)
	}
}

func TestService_SchedulePickupCourierFailure(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusApproved, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)
	h.courier.createErr = pkgerrors.New(pkgerrors.CodeDependency, "courier unavailable")

	_, err := h.svc.SchedulePickup(context.Background(), req.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The return stays approved so the pickup can be retried.
	if h.repo.requests[req.ID].Status != enums.ReturnStatusApproved {
		t.Fatalf("status = %s, want approved", h.repo.requests[req.ID].Status)
	}
}

func TestService_SchedulePickupAWBFailureStillSchedules(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusApproved, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)
	h.courier.awbErr = pkgerrors.New(pkgerrors.CodeDependency, "no couriers serviceable")

	scheduled, err := h.svc.SchedulePickup(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("SchedulePickup error: %v", err)
	}
	if scheduled.Status != enums.ReturnStatusPickupScheduled {
		t.Fatalf("status = %s, want pickup_scheduled", scheduled.Status)
	}
	if scheduled.AWB != nil {
		t.Fatal("awb should be empty when assignment failed")
	}
}

func TestService_PickupToReceived(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusPickupScheduled, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)
	pickedAt := time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)

	picked, err := h.svc.MarkPickedUp(context.Background(), req.ID, &pickedAt)
	if err != nil {
		t.Fatalf("MarkPickedUp error: %v", err)
	}
	if picked.Status != enums.ReturnStatusPickedUp {
		t.Fatalf("status = %s, want picked_up", picked.Status)
	}
	if picked.PickedUpAt == nil || !picked.PickedUpAt.Equal(pickedAt) {
		t.Fatalf("picked_up_at = %v, want %v", picked.PickedUpAt, pickedAt)
	}
	if h.orders.orders[req.OrderID].OrderStatus != enums.OrderStatusReturnPickedUp {
		t.Fatalf("order status = %s, want return_picked_up", h.orders.orders[req.OrderID].OrderStatus)
	}

	// The courier re-sending the pickup scan is a no-op.
	calls := len(h.lifecycle.calls)
	again, err := h.svc.MarkPickedUp(context.Background(), req.ID, &pickedAt)
	if err != nil {
		t.Fatalf("repeat MarkPickedUp error: %v", err)
	}
	if again.Status != enums.ReturnStatusPickedUp || len(h.lifecycle.calls) != calls {
		t.Fatal("repeated pickup scan should change nothing")
	}

	received, err := h.svc.MarkReceived(context.Background(), req.ID, nil)
	if err != nil {
		t.Fatalf("MarkReceived error: %v", err)
	}
	if received.Status != enums.ReturnStatusReceived {
		t.Fatalf("status = %s, want received", received.Status)
	}
	if received.ReceivedAt == nil {
		t.Fatal("received_at should be stamped")
	}
	if h.orders.orders[req.OrderID].OrderStatus != enums.OrderStatusReturnReceived {
		t.Fatalf("order status = %s, want return_received", h.orders.orders[req.OrderID].OrderStatus)
	}
}

func TestService_MarkReceivedRequiresPickup(t *testing.T) {
	h := newHarness(t)
	req := seedReturn(h, enums.ReturnStatusApproved, enums.OrderStatusReturnApproved, enums.PaymentMethodCOD)

	_, err := h.svc.MarkReceived(context.Background(), req.ID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
