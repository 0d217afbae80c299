package fulfillment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
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
	"github.com/resellkart/resellkart-backend/pkg/shiprocket"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

// courier is the slice of the shipping client this service needs.
type courier interface {
	CreateShipment(ctx context.Context, req shiprocket.ShipmentRequest) (*shiprocket.ShipmentResult, error)
	AssignAWB(ctx context.Context, shipmentID string) (*shiprocket.AWBResult, error)
	SchedulePickup(ctx context.Context, shipmentID string) (string, error)
	TrackShipment(ctx context.Context, shipmentID string) (*shiprocket.TrackingResult, error)
}

// forwardStatusMap translates courier scan statuses to order statuses.
var forwardStatusMap = map[string]enums.OrderStatus{
	"PICKUP SCHEDULED": enums.OrderStatusProcessing,
	"PICKED UP":        enums.OrderStatusShipped,
	"IN TRANSIT":       enums.OrderStatusShipped,
	"OUT FOR DELIVERY": enums.OrderStatusShipped,
	"DELIVERED":        enums.OrderStatusDelivered,
	"RTO":              enums.OrderStatusCancelled,
	"RETURNED":         enums.OrderStatusReturned,
}

// returnStatusMap translates reverse-shipment scans to return stages.
var returnStatusMap = map[string]enums.ReturnStatus{
	"PICKED UP":  enums.ReturnStatusPickedUp,
	"IN TRANSIT": enums.ReturnStatusPickedUp,
	"DELIVERED":  enums.ReturnStatusReceived,
}

// ShipmentEvent is the persisted-state-relevant slice of a courier webhook.
type ShipmentEvent struct {
	AWB           string
	OrderNo       string
	CurrentStatus string
	StatusLabel   string
	Location      string
	CourierName   string
	UpdatedAt     *time.Time
}

// Service reconciles courier-side shipment state onto orders and returns.
type Service interface {
	CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	HandleShipmentWebhook(ctx context.Context, event ShipmentEvent) error
	HandleReturnWebhook(ctx context.Context, event ShipmentEvent) error

	// VerifyWebhookSignature checks the courier webhook HMAC over the raw
	// body. Verification is skipped when no webhook token is configured.
	VerifyWebhookSignature(rawBody []byte, signature string) bool

	// SyncTracking polls the courier for in-flight shipments and applies the
	// same reconciliation as the webhook path. Returns the number of orders
	// examined.
	SyncTracking(ctx context.Context, limit int) (int, error)
}

type service struct {
	repo      orders.Repository
	lifecycle orders.Service
	returns   returns.Service
	courier   courier
	notifier  notifications.Service
	cfg       config.ShiprocketConfig
	logger    *logger.Logger
}

// NewService builds the fulfillment service.
func NewService(repo orders.Repository, lifecycle orders.Service, returnsSvc returns.Service, courierClient courier, notifier notifications.Service, cfg config.ShiprocketConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if returnsSvc == nil {
		return nil, fmt.Errorf("returns service required")
	}
	if courierClient == nil {
		return nil, fmt.Errorf("courier client required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		lifecycle: lifecycle,
		returns:   returnsSvc,
		courier:   courierClient,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logg,
	}, nil
}

func (s *service) CreateShipment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.HasShipment() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment already created for this order")
	}
	switch order.OrderStatus {
	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusPacked:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %q is not ready to ship", order.OrderStatus))
	}
	if order.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no shipping address")
	}

	ctx = s.logger.WithOrderNo(ctx, order.OrderNo)

	paymentMethod := "Prepaid"
	if order.PaymentMethod == enums.PaymentMethodCOD {
		paymentMethod = "COD"
	}
	items := make([]shiprocket.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, shiprocket.ShipmentItem{
			Name:         item.ProductName,
			SKU:          item.ProductID.String(),
			Units:        item.Quantity,
			SellingPrice: item.FinalPricePaise,
		})
	}

	addr := order.ShippingAddress
	result, err := s.courier.CreateShipment(ctx, shiprocket.ShipmentRequest{
		OrderNo:       order.OrderNo,
		OrderDate:     order.CreatedAt,
		PaymentMethod: paymentMethod,
		CustomerName:  addr.Name,
		Phone:         addr.Phone,
		AddressLine1:  addr.Line1,
		AddressLine2:  addr.Line2,
		City:          addr.City,
		State:         addr.State,
		Pincode:       addr.Pincode,
		Country:       addr.Country,
		SubtotalPaise: order.SubtotalPaise,
		Items:         items,
	})
	if err != nil {
		return nil, err
	}

	// Persist the shipment ids before the follow-up calls, so a failed AWB
	// assignment does not orphan the provider-side shipment.
	if err := s.repo.Update(ctx, order.ID, map[string]any{
		"shipment_order_id": result.OrderID,
		"shipment_id":       result.ShipmentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store shipment ids")
	}

	updates := map[string]any{}
	if awb, err := s.courier.AssignAWB(ctx, result.ShipmentID); err != nil {
		s.logger.Error(ctx, "awb assignment failed, shipment created", err)
	} else {
		updates["awb"] = awb.AWB
		updates["courier_name"] = awb.CourierName
	}
	if pickupDate, err := s.courier.SchedulePickup(ctx, result.ShipmentID); err != nil {
		s.logger.Error(ctx, "pickup scheduling failed, shipment created", err)
	} else if parsed, perr := time.Parse("2006-01-02 15:04:05", pickupDate); perr == nil {
		updates["pickup_scheduled_at"] = parsed.UTC()
	} else {
		updates["pickup_scheduled_at"] = time.Now().UTC()
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, order.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store awb details")
		}
	}

	s.logger.Info(ctx, "shipment created")
	return s.repo.FindByID(ctx, order.ID)
}

func (s *service) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	token := strings.TrimSpace(s.cfg.WebhookToken)
	if token == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *service) HandleShipmentWebhook(ctx context.Context, event ShipmentEvent) error {
	order, err := s.findOrder(ctx, event)
	if err != nil {
		return err
	}
	if order == nil {
		// Unknown AWBs are logged and swallowed; the courier retries
		// webhooks on non-2xx responses.
		s.logger.Warn(s.logger.WithField(ctx, "awb", event.AWB), "webhook for unknown shipment ignored")
		return nil
	}
	ctx = s.logger.WithOrderNo(ctx, order.OrderNo)

	if err := s.appendTrackingEvent(ctx, order, event); err != nil {
		return err
	}

	status := strings.ToUpper(strings.TrimSpace(event.CurrentStatus))
	target, ok := forwardStatusMap[status]
	if !ok {
		s.logger.Info(s.logger.WithField(ctx, "courier_status", status), "unmapped courier status recorded")
		return nil
	}
	if target == order.OrderStatus {
		return nil
	}

	if err := s.transitionFromWebhook(ctx, order, target, status, event.UpdatedAt); err != nil {
		return err
	}

	switch target {
	case enums.OrderStatusShipped:
		s.notifier.Notify(ctx, notifications.Input{
			UserID:  order.UserID,
			Type:    enums.NotificationTypeOrderShipped,
			Title:   "Order Shipped",
			Message: fmt.Sprintf("Your order %s has been shipped.", order.OrderNo),
			Data: map[string]any{
				"order_no": order.OrderNo,
				"awb":      event.AWB,
			},
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		})
	case enums.OrderStatusDelivered:
		s.notifier.Notify(ctx, notifications.Input{
			UserID:        order.UserID,
			Type:          enums.NotificationTypeOrderDelivered,
			Title:         "Order Delivered",
			Message:       fmt.Sprintf("Your order %s has been delivered.", order.OrderNo),
			Data:          map[string]any{"order_no": order.OrderNo},
			ReferenceID:   &order.ID,
			ReferenceType: "order",
		})
	}
	return nil
}

// transitionFromWebhook applies a courier-driven status change. Scans can
// arrive out of order, so an illegal transition is logged and dropped rather
// than failing the webhook. A courier RTO routes through delivery_failed
// because shipped orders cannot cancel directly.
func (s *service) transitionFromWebhook(ctx context.Context, order *models.Order, target enums.OrderStatus, courierStatus string, occurredAt *time.Time) error {
	reason := fmt.Sprintf("courier status %s", courierStatus)

	if target == enums.OrderStatusCancelled {
		switch order.OrderStatus {
		case enums.OrderStatusShipped, enums.OrderStatusOutForDelivery:
			if _, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
				OrderID:    order.ID,
				To:         enums.OrderStatusDeliveryFailed,
				Reason:     reason,
				OccurredAt: occurredAt,
			}); err != nil {
				return err
			}
		}
	}

	_, err := s.lifecycle.Transition(ctx, orders.TransitionInput{
		OrderID:    order.ID,
		To:         target,
		Reason:     reason,
		OccurredAt: occurredAt,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			s.logger.Warn(s.logger.WithField(ctx, "courier_status", courierStatus),
				"out-of-order courier scan dropped")
			return nil
		}
		return err
	}
	return nil
}

func (s *service) appendTrackingEvent(ctx context.Context, order *models.Order, event ShipmentEvent) error {
	when := time.Now().UTC()
	if event.UpdatedAt != nil && !event.UpdatedAt.IsZero() {
		when = event.UpdatedAt.UTC()
	}
	description := event.StatusLabel
	if description == "" {
		description = event.CurrentStatus
	}
	tracking := append(order.TrackingEvents, types.TrackingEvent{
		Status:      event.CurrentStatus,
		Description: description,
		Location:    event.Location,
		Timestamp:   when,
	})
	if err := s.repo.Update(ctx, order.ID, map[string]any{"tracking_events": &tracking}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking event")
	}
	order.TrackingEvents = tracking
	return nil
}

func (s *service) findOrder(ctx context.Context, event ShipmentEvent) (*models.Order, error) {
	if event.AWB != "" {
		order, err := s.repo.FindByAWB(ctx, event.AWB)
		if err == nil {
			return order, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by awb")
		}
	}
	if event.OrderNo != "" {
		order, err := s.repo.FindByOrderNo(ctx, event.OrderNo)
		if err == nil {
			return order, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by number")
		}
	}
	return nil, nil
}

func (s *service) HandleReturnWebhook(ctx context.Context, event ShipmentEvent) error {
	status := strings.ToUpper(strings.TrimSpace(event.CurrentStatus))
	target, ok := returnStatusMap[status]
	if !ok {
		s.logger.Info(s.logger.WithField(ctx, "courier_status", status), "unmapped return scan ignored")
		return nil
	}

	req, err := s.findReturn(ctx, event)
	if err != nil {
		return err
	}
	if req == nil {
		s.logger.Warn(s.logger.WithField(ctx, "awb", event.AWB), "webhook for unknown return ignored")
		return nil
	}

	switch target {
	case enums.ReturnStatusPickedUp:
		_, err = s.returns.MarkPickedUp(ctx, req.ID, event.UpdatedAt)
	case enums.ReturnStatusReceived:
		_, err = s.returns.MarkReceived(ctx, req.ID, event.UpdatedAt)
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			s.logger.Warn(s.logger.WithReturnNo(ctx, req.ReturnNo), "out-of-order return scan dropped")
			return nil
		}
		return err
	}
	return nil
}

// findReturn resolves the webhook to a return request. Reverse shipments are
// registered under the return number, so the courier echoes it in order_id.
func (s *service) findReturn(ctx context.Context, event ShipmentEvent) (*models.ReturnRequest, error) {
	if event.AWB != "" {
		req, err := s.returns.GetByAWB(ctx, event.AWB)
		if err == nil {
			return req, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	if event.OrderNo != "" {
		req, err := s.returns.GetByReturnNo(ctx, event.OrderNo)
		if err == nil {
			return req, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *service) SyncTracking(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	inflight, err := s.repo.ListShippedWithShipment(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list in-flight shipments")
	}

	for i := range inflight {
		order := &inflight[i]
		tracking, err := s.courier.TrackShipment(ctx, *order.ShipmentID)
		if err != nil {
			s.logger.Error(s.logger.WithOrderNo(ctx, order.OrderNo), "tracking poll failed", err)
			continue
		}
		if tracking.CurrentStatus == "" {
			continue
		}
		event := ShipmentEvent{
			CurrentStatus: tracking.CurrentStatus,
			OrderNo:       order.OrderNo,
		}
		if order.AWB != nil {
			event.AWB = *order.AWB
		}
		if err := s.HandleShipmentWebhook(ctx, event); err != nil {
			s.logger.Error(s.logger.WithOrderNo(ctx, order.OrderNo), "tracking reconciliation failed", err)
		}
	}
	return len(inflight), nil
}
