package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/enums"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

// Notification is a persisted user-facing message. Delivery fan-out happens
// asynchronously via pub/sub; the row is the durable record.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title         string                 `gorm:"column:title;not null"`
	Message       string                 `gorm:"column:message;not null"`
	Data          types.JSONMap          `gorm:"column:data;type:jsonb"`
	ReferenceID   *uuid.UUID             `gorm:"column:reference_id;type:uuid"`
	ReferenceType *string                `gorm:"column:reference_type"`
	IsRead        bool                   `gorm:"column:is_read;not null;default:false"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
