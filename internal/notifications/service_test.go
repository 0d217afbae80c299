package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
)

type fakeRepo struct {
	rows      []*models.Notification
	createErr error
}

func (f *fakeRepo) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	n.ID = uuid.New()
	f.rows = append(f.rows, n)
	out := *n
	return &out, nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) error { return nil }

func (f *fakeRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	return int64(len(f.rows)), nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, nil, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_Notify(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo)
	userID := uuid.New()
	orderID := uuid.New()

	svc.Notify(context.Background(), Input{
		UserID:        userID,
		Type:          enums.NotificationTypeOrderShipped,
		Title:         "Order Shipped",
		Message:       "Your order ORD-20250608-0019 has been shipped.",
		Data:          map[string]any{"order_no": "ORD-20250608-0019"},
		ReferenceID:   &orderID,
		ReferenceType: "order",
	})

	if len(repo.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.rows))
	}
	row := repo.rows[0]
	if row.UserID != userID || row.Type != enums.NotificationTypeOrderShipped {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.Data["order_no"] != "ORD-20250608-0019" {
		t.Fatal("data payload should be persisted")
	}
	if row.ReferenceID == nil || *row.ReferenceID != orderID {
		t.Fatal("reference id should be persisted")
	}
	if row.ReferenceType == nil || *row.ReferenceType != "order" {
		t.Fatal("reference type should be persisted")
	}
}

func TestService_NotifyDropsInvalidInput(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo)

	svc.Notify(context.Background(), Input{
		Type:    enums.NotificationTypeOrderShipped,
		Title:   "Order Shipped",
		Message: "missing user",
	})
	svc.Notify(context.Background(), Input{
		UserID:  uuid.New(),
		Type:    "carrier_pigeon",
		Title:   "Unknown",
		Message: "bad type",
	})

	if len(repo.rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(repo.rows))
	}
}

func TestService_NotifySwallowsPersistFailure(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	svc := newTestService(t, repo)

	// Notify must never panic or surface errors to the triggering flow.
	svc.Notify(context.Background(), Input{
		UserID:  uuid.New(),
		Type:    enums.NotificationTypeOrderDelivered,
		Title:   "Order Delivered",
		Message: "delivered",
	})
}

func TestService_ListByUserRequiresUser(t *testing.T) {
	svc := newTestService(t, &fakeRepo{})

	_, err := svc.ListByUser(context.Background(), uuid.Nil, pagination.Params{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
