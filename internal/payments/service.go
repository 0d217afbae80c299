package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/razorpay"
)

// gateway is the slice of the payment client this service needs.
type gateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// Service reconciles gateway payment state onto orders. Confirmation happens
// on two independent paths, the synchronous verify call and the webhook, and
// both converge to the same completed state.
type Service interface {
	CreatePaymentOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*models.Order, error)

	// HandleWebhook verifies the signature over the raw body bytes exactly
	// as received. Re-serializing the payload before verification breaks it.
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) error
}

// VerifyInput is the client-side checkout callback payload.
type VerifyInput struct {
	OrderID          uuid.UUID
	GatewayPaymentID string
	Signature        string
}

type service struct {
	repo    orders.Repository
	orders  orders.Service
	gateway gateway
	logger  *logger.Logger
}

// NewService builds the payment reconciliation service.
func NewService(repo orders.Repository, ordersSvc orders.Service, gw gateway, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, orders: ordersSvc, gateway: gw, logger: logg}, nil
}

func (s *service) CreatePaymentOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
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

	if !order.PaymentMethod.IsPrepaid() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cash on delivery orders have no gateway order")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment in status %q cannot be initiated", order.PaymentStatus))
	}

	// Retried checkouts reuse the gateway order created the first time.
	if order.GatewayOrderID != nil && *order.GatewayOrderID != "" {
		return order, nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, order.TotalPaise, order.OrderNo)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, order.ID, map[string]any{
		"gateway_order_id": gwOrder.ID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway order id")
	}
	order.GatewayOrderID = &gwOrder.ID

	ctx = s.logger.WithOrderNo(ctx, order.OrderNo)
	s.logger.Info(ctx, "gateway order created")
	return order, nil
}

func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id and signature required")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	ctx = s.logger.WithOrderNo(ctx, order.OrderNo)

	// The webhook may have completed this payment already.
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return order, nil
	}
	if order.GatewayOrderID == nil || *order.GatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no gateway order to verify against")
	}

	// Signature first. A bad signature means the callback cannot be trusted
	// at all, so the gateway is not even consulted.
	if !s.gateway.VerifyPaymentSignature(*order.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		s.logger.Warn(ctx, "payment signature mismatch")
		if err := s.repo.Update(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusVerificationFailed,
			"payment_error":  "signature verification failed",
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record verification failure")
		}
		return nil, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "payment signature verification failed")
	}

	payment, err := s.gateway.FetchPayment(ctx, input.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	// The gateway reports a settled checkout as captured, or authorized when
	// capture is still pending. Both complete the payment.
	if payment.Status != "captured" && payment.Status != "authorized" {
		if err := s.repo.Update(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"payment_error":  fmt.Sprintf("gateway reports payment status %q", payment.Status),
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment not captured, gateway status %q", payment.Status))
	}

	return s.completePayment(ctx, order, input.GatewayPaymentID, input.Signature)
}

// completePayment records the settled payment and confirms the order. Safe to
// call from both the verify path and the webhook.
func (s *service) completePayment(ctx context.Context, order *models.Order, paymentID, signature string) (*models.Order, error) {
	updates := map[string]any{
		"payment_status":     enums.PaymentStatusCompleted,
		"gateway_payment_id": paymentID,
		"payment_error":      nil,
	}
	if signature != "" {
		updates["gateway_signature"] = signature
	}
	if err := s.repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment completion")
	}

	confirmed, err := s.orders.Transition(ctx, orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusConfirmed,
		Reason:  "payment captured",
	})
	if err != nil {
		// Payment is recorded; a stuck confirmation is recoverable, an
		// unrecorded payment is not.
		return nil, err
	}

	s.logger.Info(ctx, "payment completed")
	return confirmed, nil
}

// webhookEvent mirrors the gateway's webhook envelope.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (s *service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(rawBody, signature) {
		s.logger.Warn(ctx, "webhook signature mismatch")
		return pkgerrors.New(pkgerrors.CodeSignatureMismatch, "webhook signature verification failed")
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}

	entity := event.Payload.Payment.Entity
	if entity.OrderID == "" {
		s.logger.Warn(s.logger.WithField(ctx, "event", event.Event), "webhook without order id ignored")
		return nil
	}

	order, err := s.repo.FindByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Not our order (e.g. another environment sharing the account).
			s.logger.Warn(s.logger.WithField(ctx, "gateway_order_id", entity.OrderID),
				"webhook for unknown gateway order ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for webhook")
	}
	ctx = s.logger.WithOrderNo(ctx, order.OrderNo)

	switch event.Event {
	case "payment.captured":
		if order.PaymentStatus == enums.PaymentStatusCompleted {
			return nil
		}
		_, err := s.completePayment(ctx, order, entity.ID, "")
		return err

	case "payment.failed":
		// The failure event can arrive after a successful capture of a
		// retried payment on the same gateway order. Never downgrade.
		if order.PaymentStatus == enums.PaymentStatusCompleted {
			return nil
		}
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed at gateway"
		}
		if err := s.repo.Update(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"payment_error":  reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
		}
		s.logger.Info(ctx, "payment failed webhook processed")
		return nil

	default:
		s.logger.Info(s.logger.WithField(ctx, "event", event.Event), "unhandled webhook event ignored")
		return nil
	}
}
