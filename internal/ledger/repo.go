package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
)

// Repository is the wallet and ledger persistence surface. Mutations run
// against a row locked with FindWalletForUpdate so concurrent entries on the
// same wallet serialize.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	FindWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindWalletForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	UpdateWallet(ctx context.Context, walletID uuid.UUID, updates map[string]any) error

	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error)
	FindTransactionByReference(ctx context.Context, walletID uuid.UUID, source string, referenceID uuid.UUID) (*models.WalletTransaction, error)

	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error)
	FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	UpdateWithdrawalCAS(ctx context.Context, id uuid.UUID, from string, updates map[string]any) (bool, error)
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Withdrawal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *repository) FindWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) UpdateWallet(ctx context.Context, walletID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(updates).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var txns []models.WalletTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) FindTransactionByReference(ctx context.Context, walletID uuid.UUID, source string, referenceID uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND source = ? AND reference_id = ?", walletID, source, referenceID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) FindWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) UpdateWithdrawalCAS(ctx context.Context, id uuid.UUID, from string, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Withdrawal, error) {
	query := r.db.WithContext(ctx).
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

	var ws []models.Withdrawal
	if err := query.Find(&ws).Error; err != nil {
		return nil, err
	}
	return ws, nil
}
