package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
)

// Repository is the persistence surface for return requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, req *models.ReturnRequest) (*models.ReturnRequest, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error)
	FindByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error)

	// UpdateStatusCAS applies updates only if the request still sits at
	// expectedStatus. Returns false when another writer won the race.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedStatus enums.ReturnStatus, updates map[string]any) (bool, error)

	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a returns repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.ReturnRequest) (*models.ReturnRequest, error) {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindByReturnNo(ctx context.Context, returnNo string) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("return_no = ?", returnNo).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindByAWB(ctx context.Context, awb string) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("awb = ?", awb).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var reqs []models.ReturnRequest
	if err := query.Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedStatus enums.ReturnStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}
