package fulfillment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/notifications"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/internal/returns"
	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/shiprocket"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type fakeOrdersRepo struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{orders: make(map[uuid.UUID]*models.Order)}
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
	for _, order := range f.orders {
		if order.AWB != nil && *order.AWB == awb {
			out := *order
			return &out, nil
		}
	}
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
	order, ok := f.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "shipment_order_id":
			id := value.(string)
			order.ShipmentOrderID = &id
		case "shipment_id":
			id := value.(string)
			order.ShipmentID = &id
		case "awb":
			awb := value.(string)
			order.AWB = &awb
		case "courier_name":
			name := value.(string)
			order.CourierName = &name
		case "pickup_scheduled_at":
			ts := value.(time.Time)
			order.PickupScheduledAt = &ts
		case "tracking_events":
			order.TrackingEvents = *value.(*types.TrackingEvents)
		}
	}
	return nil
}

func (f *fakeOrdersRepo) ClaimStockRestore(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeOrdersRepo) UpdateEarningStatusCAS(ctx context.Context, orderID uuid.UUID, from, to enums.EarningStatus) (bool, error) {
	return true, nil
}

func (f *fakeOrdersRepo) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	return true, nil
}

func (f *fakeOrdersRepo) RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return nil
}

func (f *fakeOrdersRepo) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) ListDeliveredPastWindow(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) ListShippedWithShipment(ctx context.Context, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.OrderStatus == enums.OrderStatusShipped && order.ShipmentID != nil {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrdersRepo) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrdersRepo) HasActiveReturn(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return false, nil
}

type fakeLifecycle struct {
	repo  *fakeOrdersRepo
	calls []orders.TransitionInput
}

func (f *fakeLifecycle) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
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

// fakeReturns walks return requests through the real return transition table.
type fakeReturns struct {
	requests map[uuid.UUID]*models.ReturnRequest
	picked   int
	received int
}

func newFakeReturns() *fakeReturns {
	return &fakeReturns{requests: make(map[uuid.UUID]*models.ReturnRequest)}
}

func (f *fakeReturns) add(req *models.ReturnRequest) *models.ReturnRequest {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	f.requests[req.ID] = req
	return req
}

func (f *fakeReturns) advance(id uuid.UUID, to enums.ReturnStatus) (*models.ReturnRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if req.Status == to {
		out := *req
		return &out, nil
	}
	if err := returns.CanTransition(req.Status, to); err != nil {
		return nil, err
	}
	req.Status = to
	out := *req
	return &out, nil
}

func (f *fakeReturns) MarkPickedUp(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error) {
	req, err := f.advance(returnID, enums.ReturnStatusPickedUp)
	if err == nil {
		f.picked++
	}
	return req, err
}

func (f *fakeReturns) MarkReceived(ctx context.Context, returnID uuid.UUID, occurredAt *time.Time) (*models.ReturnRequest, error) {
	req, err := f.advance(returnID, enums.ReturnStatusReceived)
	if err == nil {
		f.received++
	}
	return req, err
}

func (f *fakeReturns) GetByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error) {
	for _, req := range f.requests {
		if req.AWB != nil && *req.AWB == awb {
			out := *req
			return &out, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
}

func (f *fakeReturns) GetByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error) {
	for _, req := range f.requests {
		if req.ReturnNo == returnNo {
			out := *req
			return &out, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
}

func (f *fakeReturns) Create(ctx context.Context, input returns.CreateInput) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) Approve(ctx context.Context, input returns.ReviewInput) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) Reject(ctx context.Context, input returns.ReviewInput) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) Cancel(ctx context.Context, returnID uuid.UUID, by *uuid.UUID) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) SchedulePickup(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) ProcessRefund(ctx context.Context, input returns.ProcessRefundInput) (*models.ReturnRequest, error) {
	return nil, nil
}

func (f *fakeReturns) Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	out := *req
	return &out, nil
}

func (f *fakeReturns) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	return nil, nil
}

type fakeCourier struct {
	createErr    error
	awbErr       error
	pickupErr    error
	tracking     map[string]string
	trackingErrs map[string]error
	createCalls  []shiprocket.ShipmentRequest
}

func (f *fakeCourier) CreateShipment(ctx context.Context, req shiprocket.ShipmentRequest) (*shiprocket.ShipmentResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createCalls = append(f.createCalls, req)
	return &shiprocket.ShipmentResult{OrderID: "sr-order-9", ShipmentID: "sr-ship-9", Status: "NEW"}, nil
}

func (f *fakeCourier) AssignAWB(ctx context.Context, shipmentID string) (*shiprocket.AWBResult, error) {
	if f.awbErr != nil {
		return nil, f.awbErr
	}
	return &shiprocket.AWBResult{AWB: "AWB123456", CourierName: "Bluedart"}, nil
}

func (f *fakeCourier) SchedulePickup(ctx context.Context, shipmentID string) (string, error) {
	if f.pickupErr != nil {
		return "", f.pickupErr
	}
	return "2025-06-11 10:00:00", nil
}

func (f *fakeCourier) TrackShipment(ctx context.Context, shipmentID string) (*shiprocket.TrackingResult, error) {
	if err := f.trackingErrs[shipmentID]; err != nil {
		return nil, err
	}
	return &shiprocket.TrackingResult{CurrentStatus: f.tracking[shipmentID]}, nil
}

type fakeNotifier struct {
	sent []notifications.Input
}

func (f *fakeNotifier) Notify(ctx context.Context, input notifications.Input) {
	f.sent = append(f.sent, input)
}

func (f *fakeNotifier) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifier) MarkRead(ctx context.Context, id, userID uuid.UUID) error { return nil }

func (f *fakeNotifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeNotifier) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type fulfillmentHarness struct {
	svc       Service
	repo      *fakeOrdersRepo
	lifecycle *fakeLifecycle
	returns   *fakeReturns
	courier   *fakeCourier
	notifier  *fakeNotifier
}

func newHarness(t *testing.T, cfg config.ShiprocketConfig) *fulfillmentHarness {
	t.Helper()
	repo := newFakeOrdersRepo()
	lifecycle := &fakeLifecycle{repo: repo}
	returnsSvc := newFakeReturns()
	courierClient := &fakeCourier{tracking: map[string]string{}, trackingErrs: map[string]error{}}
	notifier := &fakeNotifier{}
	svc, err := NewService(repo, lifecycle, returnsSvc, courierClient, notifier, cfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &fulfillmentHarness{
		svc:       svc,
		repo:      repo,
		lifecycle: lifecycle,
		returns:   returnsSvc,
		courier:   courierClient,
		notifier:  notifier,
	}
}

func packedOrder(h *fulfillmentHarness, method enums.PaymentMethod) *models.Order {
	return h.repo.add(&models.Order{
		OrderNo:       "ORD-20250608-0019",
		UserID:        uuid.New(),
		OrderStatus:   enums.OrderStatusPacked,
		PaymentMethod: method,
		SubtotalPaise: 130000,
		ShippingAddress: &types.Address{
			Name:    "Asha Rao",
			Phone:   "9876543210",
			Line1:   "12 MG Road",
			City:    "Bengaluru",
			State:   "Karnataka",
			Pincode: "560001",
			Country: "India",
		},
		Items: []models.OrderItem{
			{ProductID: uuid.New(), ProductName: "Linen Shirt", Quantity: 1, FinalPricePaise: 130000},
		},
	})
}

func shippedOrder(h *fulfillmentHarness, awb string) *models.Order {
	order := packedOrder(h, enums.PaymentMethodUPI)
	order.OrderStatus = enums.OrderStatusShipped
	shipmentID := "sr-ship-" + awb
	order.ShipmentID = &shipmentID
	order.AWB = &awb
	return order
}

func TestService_CreateShipment(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := packedOrder(h, enums.PaymentMethodCOD)

	shipped, err := h.svc.CreateShipment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("CreateShipment error: %v", err)
	}
	if shipped.ShipmentOrderID == nil || *shipped.ShipmentOrderID != "sr-order-9" {
		t.Fatal("shipment order id should be stored")
	}
	if shipped.ShipmentID == nil || *shipped.ShipmentID != "sr-ship-9" {
		t.Fatal("shipment id should be stored")
	}
	if shipped.AWB == nil || *shipped.AWB != "AWB123456" {
		t.Fatal("awb should be stored")
	}
	if shipped.CourierName == nil || *shipped.CourierName != "Bluedart" {
		t.Fatal("courier name should be stored")
	}
	wantPickup := time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
	if shipped.PickupScheduledAt == nil || !shipped.PickupScheduledAt.Equal(wantPickup) {
		t.Fatalf("pickup_scheduled_at = %v, want %v", shipped.PickupScheduledAt, wantPickup)
	}

	if len(h.courier.createCalls) != 1 {
		t.Fatalf("expected 1 courier call, got %d", len(h.courier.createCalls))
	}
	call := h.courier.createCalls[0]
	if call.PaymentMethod != "COD" || call.OrderNo != order.OrderNo || call.Pincode != "560001" {
		t.Fatalf("unexpected courier request: %+v", call)
	}
}

func TestService_CreateShipmentAlreadyCreated(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := packedOrder(h, enums.PaymentMethodCOD)
	shipmentID := "sr-ship-old"
	order.ShipmentID = &shipmentID

	_, err := h.svc.CreateShipment(context.Background(), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_CreateShipmentRequiresShippableStatus(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := packedOrder(h, enums.PaymentMethodCOD)
	order.OrderStatus = enums.OrderStatusPending

	_, err := h.svc.CreateShipment(context.Background(), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_CreateShipmentAWBFailureKeepsShipment(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := packedOrder(h, enums.PaymentMethodCOD)
	h.courier.awbErr = pkgerrors.New(pkgerrors.CodeDependency, "no couriers serviceable")

	shipped, err := h.svc.CreateShipment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("CreateShipment error: %v", err)
	}
	if shipped.ShipmentID == nil || *shipped.ShipmentID != "sr-ship-9" {
		t.Fatal("shipment id should be stored despite awb failure")
	}
	if shipped.AWB != nil {
		t.Fatal("awb should be empty when assignment failed")
	}
	if shipped.PickupScheduledAt == nil {
		t.Fatal("pickup should still be scheduled")
	}
}

func TestService_VerifyWebhookSignature(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{WebhookToken: "whsec_token"})
	body := []byte(`{"awb":"AWB123456","current_status":"DELIVERED"}`)

	mac := hmac.New(sha256.New, []byte("whsec_token"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !h.svc.VerifyWebhookSignature(body, valid) {
		t.Fatal("valid signature rejected")
	}
	if h.svc.VerifyWebhookSignature(body, "deadbeef") {
		t.Fatal("bad signature accepted")
	}
	if h.svc.VerifyWebhookSignature([]byte("tampered"), valid) {
		t.Fatal("tampered body accepted")
	}

	// Without a configured token verification is a pass-through.
	open := newHarness(t, config.ShiprocketConfig{})
	if !open.svc.VerifyWebhookSignature(body, "anything") {
		t.Fatal("verification should be skipped without a token")
	}
}

func TestService_HandleShipmentWebhookDelivered(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := shippedOrder(h, "AWB123456")
	deliveredAt := time.Date(2025, 6, 14, 16, 45, 0, 0, time.UTC)

	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB123456",
		CurrentStatus: "DELIVERED",
		StatusLabel:   "Delivered to consignee",
		Location:      "Bengaluru Hub",
		UpdatedAt:     &deliveredAt,
	})
	if err != nil {
		t.Fatalf("HandleShipmentWebhook error: %v", err)
	}

	if order.OrderStatus != enums.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", order.OrderStatus)
	}
	if len(h.lifecycle.calls) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(h.lifecycle.calls))
	}
	if h.lifecycle.calls[0].OccurredAt == nil || !h.lifecycle.calls[0].OccurredAt.Equal(deliveredAt) {
		t.Fatal("webhook timestamp should flow into the transition")
	}

	if len(order.TrackingEvents) != 1 {
		t.Fatalf("expected 1 tracking event, got %d", len(order.TrackingEvents))
	}
	scan := order.TrackingEvents[0]
	if scan.Status != "DELIVERED" || scan.Location != "Bengaluru Hub" || !scan.Timestamp.Equal(deliveredAt) {
		t.Fatalf("unexpected tracking event: %+v", scan)
	}

	if len(h.notifier.sent) != 1 || h.notifier.sent[0].Type != enums.NotificationTypeOrderDelivered {
		t.Fatalf("expected delivered notification, got %+v", h.notifier.sent)
	}
}

func TestService_HandleShipmentWebhookShipped(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := packedOrder(h, enums.PaymentMethodUPI)
	awb := "AWB777001"
	order.AWB = &awb

	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           awb,
		CurrentStatus: "PICKED UP",
	})
	if err != nil {
		t.Fatalf("HandleShipmentWebhook error: %v", err)
	}
	if order.OrderStatus != enums.OrderStatusShipped {
		t.Fatalf("order status = %s, want shipped", order.OrderStatus)
	}
	if len(h.notifier.sent) != 1 || h.notifier.sent[0].Type != enums.NotificationTypeOrderShipped {
		t.Fatalf("expected shipped notification, got %+v", h.notifier.sent)
	}
	if h.notifier.sent[0].Data["awb"] != awb {
		t.Fatal("notification should carry the awb")
	}
}

func TestService_HandleShipmentWebhookOutOfOrderScan(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := shippedOrder(h, "AWB123456")
	order.OrderStatus = enums.OrderStatusDelivered

	// A stale IN TRANSIT scan after delivery is recorded but never moves the
	// order backwards.
	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB123456",
		CurrentStatus: "IN TRANSIT",
	})
	if err != nil {
		t.Fatalf("HandleShipmentWebhook error: %v", err)
	}
	if order.OrderStatus != enums.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", order.OrderStatus)
	}
	if len(order.TrackingEvents) != 1 {
		t.Fatal("stale scan should still be recorded")
	}
}

func TestService_HandleShipmentWebhookRTO(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := shippedOrder(h, "AWB123456")

	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB123456",
		CurrentStatus: "RTO",
	})
	if err != nil {
		t.Fatalf("HandleShipmentWebhook error: %v", err)
	}

	// A shipped order cannot cancel directly, so the RTO routes through
	// delivery_failed first.
	if len(h.lifecycle.calls) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(h.lifecycle.calls))
	}
	if h.lifecycle.calls[0].To != enums.OrderStatusDeliveryFailed || h.lifecycle.calls[1].To != enums.OrderStatusCancelled {
		t.Fatalf("unexpected transitions: %+v", h.lifecycle.calls)
	}
	if order.OrderStatus != enums.OrderStatusCancelled {
		t.Fatalf("order status = %s, want cancelled", order.OrderStatus)
	}
}

func TestService_HandleShipmentWebhookUnmappedStatus(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	order := shippedOrder(h, "AWB123456")

	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB123456",
		CurrentStatus: "MISROUTED",
	})
	if err != nil {
		t.Fatalf("HandleShipmentWebhook error: %v", err)
	}
	if order.OrderStatus != enums.OrderStatusShipped {
		t.Fatalf("order status = %s, want shipped", order.OrderStatus)
	}
	if len(order.TrackingEvents) != 1 {
		t.Fatal("unmapped scan should still be recorded")
	}
}

func TestService_HandleShipmentWebhookUnknownAWB(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})

	err := h.svc.HandleShipmentWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB000000",
		CurrentStatus: "DELIVERED",
	})
	if err != nil {
		t.Fatalf("unknown shipments should be swallowed, got %v", err)
	}
	if len(h.lifecycle.calls) != 0 {
		t.Fatal("no transitions expected")
	}
}

func TestService_HandleReturnWebhook(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	awb := "AWB555001"
	h.returns.add(&models.ReturnRequest{
		ReturnNo: "RET-20250610-0001",
		Status:   enums.ReturnStatusPickupScheduled,
		AWB:      &awb,
	})

	if err := h.svc.HandleReturnWebhook(context.Background(), ShipmentEvent{
		AWB:           awb,
		CurrentStatus: "PICKED UP",
	}); err != nil {
		t.Fatalf("HandleReturnWebhook error: %v", err)
	}
	if h.returns.picked != 1 {
		t.Fatalf("picked = %d, want 1", h.returns.picked)
	}

	if err := h.svc.HandleReturnWebhook(context.Background(), ShipmentEvent{
		AWB:           awb,
		CurrentStatus: "DELIVERED",
	}); err != nil {
		t.Fatalf("HandleReturnWebhook error: %v", err)
	}
	if h.returns.received != 1 {
		t.Fatalf("received = %d, want 1", h.returns.received)
	}
}

func TestService_HandleReturnWebhookOutOfOrderScan(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	awb := "AWB555002"
	req := h.returns.add(&models.ReturnRequest{
		ReturnNo: "RET-20250610-0002",
		Status:   enums.ReturnStatusPickupScheduled,
		AWB:      &awb,
	})

	// The warehouse DELIVERED scan before any pickup scan is dropped.
	if err := h.svc.HandleReturnWebhook(context.Background(), ShipmentEvent{
		AWB:           awb,
		CurrentStatus: "DELIVERED",
	}); err != nil {
		t.Fatalf("HandleReturnWebhook error: %v", err)
	}
	if req.Status != enums.ReturnStatusPickupScheduled {
		t.Fatalf("status = %s, want pickup_scheduled", req.Status)
	}
}

func TestService_HandleReturnWebhookUnknownAWB(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})

	if err := h.svc.HandleReturnWebhook(context.Background(), ShipmentEvent{
		AWB:           "AWB000000",
		CurrentStatus: "PICKED UP",
	}); err != nil {
		t.Fatalf("unknown returns should be swallowed, got %v", err)
	}
}

func TestService_SyncTracking(t *testing.T) {
	h := newHarness(t, config.ShiprocketConfig{})
	delivered := shippedOrder(h, "AWB900001")
	stuck := shippedOrder(h, "AWB900002")
	h.courier.tracking[*delivered.ShipmentID] = "DELIVERED"
	h.courier.trackingErrs[*stuck.ShipmentID] = pkgerrors.New(pkgerrors.CodeDependency, "tracking unavailable")

	examined, err := h.svc.SyncTracking(context.Background(), 50)
	if err != nil {
		t.Fatalf("SyncTracking error: %v", err)
	}
	if examined != 2 {
		t.Fatalf("examined = %d, want 2", examined)
	}
	if delivered.OrderStatus != enums.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", delivered.OrderStatus)
	}
	// The failed poll leaves the second order untouched.
	if stuck.OrderStatus != enums.OrderStatusShipped {
		t.Fatalf("order status = %s, want shipped", stuck.OrderStatus)
	}
}
