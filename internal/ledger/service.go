package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of wallet balances. Every balance change is
// paired with an append-only WalletTransaction carrying the balance after the
// change, written in the same database transaction.
type Service interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, input EntryInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, input EntryInput) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error)

	// CreditTx and DebitTx run inside a caller-owned transaction so order,
	// earning and ledger writes commit atomically.
	CreditTx(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error)

	Freeze(ctx context.Context, userID uuid.UUID, reason string) error
	Unfreeze(ctx context.Context, userID uuid.UUID) error
}

// EntryInput describes one ledger entry to apply.
type EntryInput struct {
	UserID        uuid.UUID
	AmountPaise   int64
	Source        enums.TransactionSource
	ReferenceID   *uuid.UUID
	ReferenceType string
	Description   string
}

type service struct {
	repo   Repository
	tx     txRunner
	logger *logger.Logger
}

// NewService builds the ledger service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logger: logg}, nil
}

func (s *service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindWalletByUser(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	created, err := s.repo.CreateWallet(ctx, &models.Wallet{UserID: userID})
	if err != nil {
		// A concurrent EnsureWallet may have won the unique index race.
		if existing, findErr := s.repo.FindWalletByUser(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return created, nil
}

func (s *service) Credit(ctx context.Context, input EntryInput) (*models.WalletTransaction, error) {
	var out *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.CreditTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Debit(ctx context.Context, input EntryInput) (*models.WalletTransaction, error) {
	var out *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.DebitTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) CreditTx(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, enums.TransactionDirectionCredit, input)
}

func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, enums.TransactionDirectionDebit, input)
}

// apply locks the wallet row, mutates the balance and writes the matching
// ledger entry. The caller's transaction boundary makes the pair atomic.
func (s *service) apply(ctx context.Context, tx *gorm.DB, direction enums.TransactionDirection, input EntryInput) (*models.WalletTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.AmountPaise <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction source %q", input.Source))
	}

	repo := s.repo.WithTx(tx)

	wallet, err := repo.FindWalletForUpdate(ctx, input.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if wallet.IsFrozen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is frozen")
	}

	updates := map[string]any{}
	var balanceAfter int64
	switch direction {
	case enums.TransactionDirectionCredit:
		balanceAfter = wallet.BalancePaise + input.AmountPaise
		updates["balance_paise"] = balanceAfter
		if input.Source == enums.TransactionSourceResellEarning {
			updates["total_earned_paise"] = wallet.TotalEarnedPaise + input.AmountPaise
		}
	case enums.TransactionDirectionDebit:
		if wallet.BalancePaise < input.AmountPaise {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
				fmt.Sprintf("wallet balance %d is below requested %d", wallet.BalancePaise, input.AmountPaise))
		}
		balanceAfter = wallet.BalancePaise - input.AmountPaise
		updates["balance_paise"] = balanceAfter
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid direction %q", direction))
	}

	if err := repo.UpdateWallet(ctx, wallet.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}

	txn := &models.WalletTransaction{
		WalletID:          wallet.ID,
		Direction:         direction,
		Source:            input.Source,
		AmountPaise:       input.AmountPaise,
		BalanceAfterPaise: balanceAfter,
		ReferenceID:       input.ReferenceID,
		Description:       input.Description,
		Status:            enums.TransactionStatusCompleted,
	}
	if input.ReferenceType != "" {
		txn.ReferenceType = &input.ReferenceType
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write ledger entry")
	}
	return txn, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	txns, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return txns, nil
}

func (s *service) Freeze(ctx context.Context, userID uuid.UUID, reason string) error {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	updates := map[string]any{"is_frozen": true}
	if reason != "" {
		updates["frozen_reason"] = reason
	}
	if err := s.repo.UpdateWallet(ctx, wallet.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze wallet")
	}
	s.logger.Warn(s.logger.WithUserID(ctx, userID.String()), "wallet frozen")
	return nil
}

func (s *service) Unfreeze(ctx context.Context, userID uuid.UUID) error {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	updates := map[string]any{"is_frozen": false, "frozen_reason": nil}
	if err := s.repo.UpdateWallet(ctx, wallet.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unfreeze wallet")
	}
	return nil
}
