package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

// publisher is the slice of the pub/sub client used for fan-out.
type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Service persists and fans out user notifications. Notify never returns an
// error: a failed notification must not roll back the state change that
// triggered it.
type Service interface {
	Notify(ctx context.Context, input Input)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Input is one notification to emit.
type Input struct {
	UserID        uuid.UUID
	Type          enums.NotificationType
	Title         string
	Message       string
	Data          map[string]any
	ReferenceID   *uuid.UUID
	ReferenceType string
}

type service struct {
	repo      Repository
	publisher publisher
	logger    *logger.Logger
}

// NewService builds the notification service. The publisher may be nil, in
// which case rows are persisted without fan-out.
func NewService(repo Repository, pub publisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, publisher: pub, logger: logg}, nil
}

// event is the pub/sub payload handed to downstream delivery workers.
type event struct {
	NotificationID uuid.UUID      `json:"notification_id"`
	UserID         uuid.UUID      `json:"user_id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	EmittedAt      time.Time      `json:"emitted_at"`
}

func (s *service) Notify(ctx context.Context, input Input) {
	if input.UserID == uuid.Nil || !input.Type.IsValid() {
		s.logger.Warn(s.logger.WithField(ctx, "type", string(input.Type)), "dropping invalid notification")
		return
	}

	row := &models.Notification{
		UserID:      input.UserID,
		Type:        input.Type,
		Title:       input.Title,
		Message:     input.Message,
		Data:        types.JSONMap(input.Data),
		ReferenceID: input.ReferenceID,
	}
	if input.ReferenceType != "" {
		row.ReferenceType = &input.ReferenceType
	}

	created, err := s.repo.Create(ctx, row)
	if err != nil {
		s.logger.Error(ctx, "persisting notification failed", err)
		return
	}

	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(event{
		NotificationID: created.ID,
		UserID:         created.UserID,
		Type:           string(created.Type),
		Title:          created.Title,
		Message:        created.Message,
		Data:           input.Data,
		EmittedAt:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error(ctx, "encoding notification event failed", err)
		return
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"type": string(created.Type)},
	})
	if _, err := result.Get(ctx); err != nil {
		s.logger.Error(ctx, "publishing notification event failed", err)
	}
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return rows, nil
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return n, nil
}

func (s *service) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return n, nil
}
