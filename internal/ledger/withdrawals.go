package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/pagination"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type numberGenerator interface {
	Next(ctx context.Context, prefix string, now time.Time) (string, error)
}

// WithdrawalService handles reseller payout requests. A requested amount
// moves from the available to the pending balance immediately; an admin
// decision later settles or returns it.
type WithdrawalService interface {
	Request(ctx context.Context, input RequestWithdrawalInput) (*models.Withdrawal, error)
	Complete(ctx context.Context, input CompleteWithdrawalInput) (*models.Withdrawal, error)
	Reject(ctx context.Context, input RejectWithdrawalInput) (*models.Withdrawal, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Withdrawal, error)
}

// RequestWithdrawalInput captures a reseller's payout request.
type RequestWithdrawalInput struct {
	UserID      uuid.UUID
	AmountPaise int64
	BankDetails types.BankDetails
}

// CompleteWithdrawalInput settles a paid-out request with the bank's UTR.
type CompleteWithdrawalInput struct {
	WithdrawalID uuid.UUID
	UTRNumber    string
	ProcessedBy  uuid.UUID
}

// RejectWithdrawalInput returns a pending request's amount to the wallet.
type RejectWithdrawalInput struct {
	WithdrawalID uuid.UUID
	Reason       string
	ProcessedBy  uuid.UUID
}

type withdrawalService struct {
	repo    Repository
	tx      txRunner
	numbers numberGenerator
	cfg     config.WalletConfig
	logger  *logger.Logger
}

// NewWithdrawalService builds the withdrawal service.
func NewWithdrawalService(repo Repository, tx txRunner, numbers numberGenerator, cfg config.WalletConfig, logg *logger.Logger) (WithdrawalService, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
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
	return &withdrawalService{repo: repo, tx: tx, numbers: numbers, cfg: cfg, logger: logg}, nil
}

func (s *withdrawalService) Request(ctx context.Context, input RequestWithdrawalInput) (*models.Withdrawal, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.AmountPaise < s.cfg.MinWithdrawalPaise {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("minimum withdrawal is %d paise", s.cfg.MinWithdrawalPaise))
	}
	if input.BankDetails.AccountNumber == "" || input.BankDetails.IFSCCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account number and IFSC required")
	}

	now := time.Now().UTC()
	withdrawalNo, err := s.numbers.Next(ctx, "WDL", now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate withdrawal number")
	}

	var out *models.Withdrawal
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		wallet, err := repo.FindWalletForUpdate(ctx, input.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		if wallet.IsFrozen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is frozen")
		}
		if wallet.BalancePaise < input.AmountPaise {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds,
				fmt.Sprintf("wallet balance %d is below requested %d", wallet.BalancePaise, input.AmountPaise))
		}

		balanceAfter := wallet.BalancePaise - input.AmountPaise
		if err := repo.UpdateWallet(ctx, wallet.ID, map[string]any{
			"balance_paise":         balanceAfter,
			"pending_balance_paise": wallet.PendingBalancePaise + input.AmountPaise,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve withdrawal amount")
		}

		bank := input.BankDetails
		withdrawal, err := repo.CreateWithdrawal(ctx, &models.Withdrawal{
			WithdrawalNo: withdrawalNo,
			UserID:       input.UserID,
			WalletID:     wallet.ID,
			AmountPaise:  input.AmountPaise,
			BankDetails:  &bank,
			Status:       enums.WithdrawalStatusPending,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal")
		}

		refType := "withdrawal"
		if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
			WalletID:          wallet.ID,
			Direction:         enums.TransactionDirectionDebit,
			Source:            enums.TransactionSourceWithdrawal,
			AmountPaise:       input.AmountPaise,
			BalanceAfterPaise: balanceAfter,
			ReferenceID:       &withdrawal.ID,
			ReferenceType:     &refType,
			Description:       fmt.Sprintf("withdrawal %s requested", withdrawalNo),
			Status:            enums.TransactionStatusPending,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write ledger entry")
		}

		out = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithUserID(ctx, input.UserID.String()), "withdrawal requested")
	return out, nil
}

func (s *withdrawalService) Complete(ctx context.Context, input CompleteWithdrawalInput) (*models.Withdrawal, error) {
	if input.WithdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if input.UTRNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "utr number required")
	}

	var out *models.Withdrawal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		withdrawal, err := s.loadForDecision(ctx, repo, input.WithdrawalID)
		if err != nil {
			return err
		}

		wallet, err := repo.FindWalletForUpdate(ctx, withdrawal.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}

		now := time.Now().UTC()
		applied, err := repo.UpdateWithdrawalCAS(ctx, withdrawal.ID, string(enums.WithdrawalStatusPending), map[string]any{
			"status":       enums.WithdrawalStatusCompleted,
			"utr_number":   input.UTRNumber,
			"processed_by": input.ProcessedBy,
			"processed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete withdrawal")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal was modified concurrently")
		}

		if err := repo.UpdateWallet(ctx, wallet.ID, map[string]any{
			"pending_balance_paise": wallet.PendingBalancePaise - withdrawal.AmountPaise,
			"total_withdrawn_paise": wallet.TotalWithdrawnPaise + withdrawal.AmountPaise,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle pending balance")
		}

		if err := s.settleRequestEntry(ctx, repo, wallet.ID, withdrawal.ID, enums.TransactionStatusCompleted); err != nil {
			return err
		}

		withdrawal.Status = enums.WithdrawalStatusCompleted
		withdrawal.UTRNumber = &input.UTRNumber
		withdrawal.ProcessedBy = &input.ProcessedBy
		withdrawal.ProcessedAt = &now
		out = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *withdrawalService) Reject(ctx context.Context, input RejectWithdrawalInput) (*models.Withdrawal, error) {
	if input.WithdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	var out *models.Withdrawal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		withdrawal, err := s.loadForDecision(ctx, repo, input.WithdrawalID)
		if err != nil {
			return err
		}

		wallet, err := repo.FindWalletForUpdate(ctx, withdrawal.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}

		now := time.Now().UTC()
		applied, err := repo.UpdateWithdrawalCAS(ctx, withdrawal.ID, string(enums.WithdrawalStatusPending), map[string]any{
			"status":           enums.WithdrawalStatusRejected,
			"rejection_reason": input.Reason,
			"processed_by":     input.ProcessedBy,
			"processed_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject withdrawal")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal was modified concurrently")
		}

		balanceAfter := wallet.BalancePaise + withdrawal.AmountPaise
		if err := repo.UpdateWallet(ctx, wallet.ID, map[string]any{
			"balance_paise":         balanceAfter,
			"pending_balance_paise": wallet.PendingBalancePaise - withdrawal.AmountPaise,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return reserved amount")
		}

		if err := s.settleRequestEntry(ctx, repo, wallet.ID, withdrawal.ID, enums.TransactionStatusFailed); err != nil {
			return err
		}

		refType := "withdrawal"
		if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
			WalletID:          wallet.ID,
			Direction:         enums.TransactionDirectionCredit,
			Source:            enums.TransactionSourceReversal,
			AmountPaise:       withdrawal.AmountPaise,
			BalanceAfterPaise: balanceAfter,
			ReferenceID:       &withdrawal.ID,
			ReferenceType:     &refType,
			Description:       fmt.Sprintf("withdrawal %s rejected: %s", withdrawal.WithdrawalNo, input.Reason),
			Status:            enums.TransactionStatusCompleted,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write reversal entry")
		}

		withdrawal.Status = enums.WithdrawalStatusRejected
		withdrawal.RejectionReason = &input.Reason
		withdrawal.ProcessedBy = &input.ProcessedBy
		withdrawal.ProcessedAt = &now
		out = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *withdrawalService) loadForDecision(ctx context.Context, repo Repository, id uuid.UUID) (*models.Withdrawal, error) {
	withdrawal, err := repo.FindWithdrawal(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if withdrawal.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("withdrawal in status %q cannot be processed", withdrawal.Status))
	}
	return withdrawal, nil
}

// settleRequestEntry resolves the pending debit written at request time.
func (s *withdrawalService) settleRequestEntry(ctx context.Context, repo Repository, walletID, withdrawalID uuid.UUID, status enums.TransactionStatus) error {
	txn, err := repo.FindTransactionByReference(ctx, walletID, string(enums.TransactionSourceWithdrawal), withdrawalID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request entry")
	}
	if err := repo.UpdateTransaction(ctx, txn.ID, map[string]any{"status": status}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle request entry")
	}
	return nil
}

func (s *withdrawalService) Get(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	withdrawal, err := s.repo.FindWithdrawal(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	return withdrawal, nil
}

func (s *withdrawalService) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Withdrawal, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	ws, err := s.repo.ListWithdrawalsByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return ws, nil
}
