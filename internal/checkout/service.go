package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type numberGenerator interface {
	Next(ctx context.Context, prefix string, now time.Time) (string, error)
}

// Service turns carts into immutable order snapshots with stock reserved.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CheckoutCart(ctx context.Context, input CheckoutCartInput) (*models.Order, error)
}

type service struct {
	repo     Repository
	orders   orders.Repository
	tx       txRunner
	numbers  numberGenerator
	cfg      config.OrdersConfig
	validate *validator.Validate
	logger   *logger.Logger
}

// ItemInput is one requested line at checkout.
type ItemInput struct {
	ProductID   uuid.UUID `validate:"required"`
	Quantity    int       `validate:"required,gt=0"`
	MarkupPaise int64     `validate:"gte=0"`
}

// CreateOrderInput captures an explicit order placement.
type CreateOrderInput struct {
	UserID          uuid.UUID           `validate:"required"`
	ResellerID      *uuid.UUID          `validate:"-"`
	Items           []ItemInput         `validate:"required,min=1,dive"`
	ShippingAddress types.Address       `validate:"required"`
	PaymentMethod   enums.PaymentMethod `validate:"required"`
}

// CheckoutCartInput places an order from the user's saved cart.
type CheckoutCartInput struct {
	UserID          uuid.UUID
	ShippingAddress types.Address
	PaymentMethod   enums.PaymentMethod
}

// NewService builds the checkout service.
func NewService(repo Repository, ordersRepo orders.Repository, tx txRunner, numbers numberGenerator, cfg config.OrdersConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number generator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		orders:   ordersRepo,
		tx:       tx,
		numbers:  numbers,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logg,
	}, nil
}

func (s *service) CheckoutCart(ctx context.Context, input CheckoutCartInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	cart, err := s.repo.FindCartByUser(ctx, input.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	items := make([]ItemInput, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, ItemInput{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			MarkupPaise: item.MarkupPaise,
		})
	}

	order, err := s.CreateOrder(ctx, CreateOrderInput{
		UserID:          input.UserID,
		ResellerID:      cart.ResellerID,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.ClearCart(ctx, cart.ID); err != nil {
		ctx = s.logger.WithOrderNo(ctx, order.OrderNo)
		s.logger.Error(ctx, "clearing cart after checkout failed", err)
	}
	return order, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout input")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	input.ShippingAddress.Normalize()
	if err := s.validate.Struct(input.ShippingAddress); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	now := time.Now().UTC()
	orderNo, err := s.numbers.Next(ctx, "ORD", now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate order number")
	}

	var out *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)

		lines := make([]pricedLine, 0, len(input.Items))
		orderItems := make([]models.OrderItem, 0, len(input.Items))

		for _, item := range input.Items {
			product, err := ordersRepo.FindProduct(ctx, item.ProductID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound,
						fmt.Sprintf("product %s not found", item.ProductID))
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("product %q is no longer available", product.Name))
			}

			reserved, err := ordersRepo.DecrementStock(ctx, product.ID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !reserved {
				return pkgerrors.New(pkgerrors.CodeInsufficientStock,
					fmt.Sprintf("insufficient stock for %q", product.Name)).
					WithDetails(map[string]any{
						"product_id": product.ID,
						"requested":  item.Quantity,
					})
			}

			finalPrice := product.PricePaise + item.MarkupPaise
			lines = append(lines, pricedLine{
				Quantity:        item.Quantity,
				FinalPricePaise: finalPrice,
				MarkupPaise:     item.MarkupPaise,
			})
			orderItems = append(orderItems, models.OrderItem{
				ProductID:       product.ID,
				ProductName:     product.Name,
				Quantity:        item.Quantity,
				BasePricePaise:  product.PricePaise,
				MarkupPaise:     item.MarkupPaise,
				FinalPricePaise: finalPrice,
			})
		}

		pricing := ComputePricing(s.cfg, lines)

		// A markup with nobody to pay it to would strand the earning at
		// maturation time, so it is rejected up front.
		if pricing.EarningPaise > 0 && input.ResellerID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation,
				"items carry a reseller markup but no reseller is attributed")
		}

		order := &models.Order{
			OrderNo:               orderNo,
			UserID:                input.UserID,
			ResellerID:            input.ResellerID,
			ShippingAddress:       &input.ShippingAddress,
			SubtotalPaise:         pricing.SubtotalPaise,
			ShippingPaise:         pricing.ShippingPaise,
			TaxPaise:              pricing.TaxPaise,
			TotalPaise:            pricing.TotalPaise,
			PaymentMethod:         input.PaymentMethod,
			PaymentStatus:         enums.PaymentStatusPending,
			OrderStatus:           enums.OrderStatusPending,
			ResellerEarningPaise:  pricing.EarningPaise,
			ResellerEarningStatus: enums.EarningStatusPending,
			ReturnWindowDays:      s.cfg.ReturnWindowDays,
			Items:                 orderItems,
		}

		// COD orders skip gateway verification and confirm immediately.
		if input.PaymentMethod == enums.PaymentMethodCOD {
			order.OrderStatus = enums.OrderStatusConfirmed
			order.ConfirmedAt = &now
			order.StatusHistory = types.StatusHistory{{
				From:      string(enums.OrderStatusPending),
				To:        string(enums.OrderStatusConfirmed),
				ChangedAt: now,
				Reason:    "cash on delivery",
			}}
		}

		created, err := ordersRepo.CreateOrder(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithOrderNo(ctx, out.OrderNo)
	s.logger.Info(ctx, "order created")
	return out, nil
}
