package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/db/models"
	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

type fakeWithdrawalNumbers struct{}

func (fakeWithdrawalNumbers) Next(ctx context.Context, prefix string, now time.Time) (string, error) {
	return prefix + "-20250610-0001", nil
}

var walletCfg = config.WalletConfig{MinWithdrawalPaise: 10000}

func newWithdrawalService(t *testing.T, repo Repository) WithdrawalService {
	t.Helper()
	svc, err := NewWithdrawalService(repo, passthroughTxRunner{}, fakeWithdrawalNumbers{}, walletCfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func testBankDetails() types.BankDetails {
	return types.BankDetails{
		AccountHolderName: "Asha Rao",
		AccountNumber:     "123456789012",
		IFSCCode:          "HDFC0001234",
	}
}

func TestWithdrawalService_Request(t *testing.T) {
	repo := newFakeLedgerRepo()
	userID := uuid.New()
	repo.addWallet(&models.Wallet{UserID: userID, BalancePaise: 50000})
	svc := newWithdrawalService(t, repo)

	withdrawal, err := svc.Request(context.Background(), RequestWithdrawalInput{
		UserID:      userID,
		AmountPaise: 20000,
		BankDetails: testBankDetails(),
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if withdrawal.Status != enums.WithdrawalStatusPending {
		t.Fatalf("status = %s, want pending", withdrawal.Status)
	}
	if withdrawal.WithdrawalNo != "WDL-20250610-0001" {
		t.Fatalf("withdrawal no = %s", withdrawal.WithdrawalNo)
	}

	var wallet *models.Wallet
	for _, w := range repo.wallets {
		wallet = w
	}
	if wallet.BalancePaise != 30000 {
		t.Fatalf("balance = %d, want 30000", wallet.BalancePaise)
	}
	if wallet.PendingBalancePaise != 20000 {
		t.Fatalf("pending = %d, want 20000", wallet.PendingBalancePaise)
	}

	// The request writes a pending debit entry referencing the withdrawal.
	if len(repo.txns) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(repo.txns))
	}
	entry := repo.txns[0]
	if entry.Status != enums.TransactionStatusPending {
		t.Fatalf("entry status = %s, want pending", entry.Status)
	}
	if entry.Direction != enums.TransactionDirectionDebit || entry.Source != enums.TransactionSourceWithdrawal {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.BalanceAfterPaise != 30000 {
		t.Fatalf("entry balance after = %d, want 30000", entry.BalanceAfterPaise)
	}
	if entry.ReferenceID == nil || *entry.ReferenceID != withdrawal.ID {
		t.Fatal("entry should reference the withdrawal")
	}
}

func TestWithdrawalService_RequestValidation(t *testing.T) {
	repo := newFakeLedgerRepo()
	userID := uuid.New()
	repo.addWallet(&models.Wallet{UserID: userID, BalancePaise: 50000})
	svc := newWithdrawalService(t, repo)

	tests := []struct {
		name  string
		input RequestWithdrawalInput
		code  pkgerrors.Code
	}{
		{
			name:  "below minimum",
			input: RequestWithdrawalInput{UserID: userID, AmountPaise: 5000, BankDetails: testBankDetails()},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "missing bank details",
			input: RequestWithdrawalInput{UserID: userID, AmountPaise: 20000},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "exceeds balance",
			input: RequestWithdrawalInput{UserID: userID, AmountPaise: 90000, BankDetails: testBankDetails()},
			code:  pkgerrors.CodeInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Request(context.Background(), tt.input)
			if !pkgerrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestWithdrawalService_RequestFrozenWallet(t *testing.T) {
	repo := newFakeLedgerRepo()
	userID := uuid.New()
	repo.addWallet(&models.Wallet{UserID: userID, BalancePaise: 50000, IsFrozen: true})
	svc := newWithdrawalService(t, repo)

	_, err := svc.Request(context.Background(), RequestWithdrawalInput{
		UserID:      userID,
		AmountPaise: 20000,
		BankDetails: testBankDetails(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestWithdrawalService_Complete(t *testing.T) {
	repo := newFakeLedgerRepo()
	userID := uuid.New()
	repo.addWallet(&models.Wallet{UserID: userID, BalancePaise: 50000})
	svc := newWithdrawalService(t, repo)

	withdrawal, err := svc.Request(context.Background(), RequestWithdrawalInput{
		UserID:      userID,
		AmountPaise: 20000,
		BankDetails: testBankDetails(),
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	admin := uuid.New()
	completed, err := svc.Complete(context.Background(), CompleteWithdrawalInput{
		WithdrawalID: withdrawal.ID,
		UTRNumber:    "UTR123456",
		ProcessedBy:  admin,
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if completed.Status != enums.WithdrawalStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.UTRNumber == nil || *completed.UTRNumber != "UTR123456" {
		t.Fatal("utr should be stamped")
	}

	var wallet *models.Wallet
	for _, w := range repo.wallets {
		wallet = w
	}
	if wallet.BalancePaise != 30000 {
		t.Fatalf("balance = %d, want 30000", wallet.BalancePaise)
	}
	if wallet.PendingBalancePaise != 0 {
		t.Fatalf("pending = %d, want 0", wallet.PendingBalancePaise)
	}
	if wallet.TotalWithdrawnPaise != 20000 {
		t.Fatalf("total withdrawn = %d, want 20000", wallet.TotalWithdrawnPaise)
	}

	// The pending request entry settles to completed.
	if repo.txns[0].Status != enums.TransactionStatusCompleted {
		t.Fatalf("request entry status = %s, want completed", repo.txns[0].Status)
	}

	// Completing twice hits the status gate.
	_, err = svc.Complete(context.Background(), CompleteWithdrawalInput{
		WithdrawalID: withdrawal.ID,
		UTRNumber:    "UTR999",
		ProcessedBy:  admin,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double complete, got %v", err)
	}
}

func TestWithdrawalService_Reject(t *testing.T) {
	repo := newFakeLedgerRepo()
	userID := uuid.New()
	repo.addWallet(&models.Wallet{UserID: userID, BalancePaise: 50000})
	svc := newWithdrawalService(t, repo)

	withdrawal, err := svc.Request(context.Background(), RequestWithdrawalInput{
		UserID:      userID,
		AmountPaise: 20000,
		BankDetails: testBankDetails(),
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	rejected, err := svc.Reject(context.Background(), RejectWithdrawalInput{
		WithdrawalID: withdrawal.ID,
		Reason:       "bank details mismatch",
		ProcessedBy:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if rejected.Status != enums.WithdrawalStatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}

	var wallet *models.Wallet
	for _, w := range repo.wallets {
		wallet = w
	}
	if wallet.BalancePaise != 50000 {
		t.Fatalf("balance = %d, want the reserved amount back", wallet.BalancePaise)
	}
	if wallet.PendingBalancePaise != 0 {
		t.Fatalf("pending = %d, want 0", wallet.PendingBalancePaise)
	}
	if wallet.TotalWithdrawnPaise != 0 {
		t.Fatalf("total withdrawn = %d, want 0", wallet.TotalWithdrawnPaise)
	}

	// Request entry fails, and a reversal credit restores the balance trail.
	if len(repo.txns) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(repo.txns))
	}
	if repo.txns[0].Status != enums.TransactionStatusFailed {
		t.Fatalf("request entry status = %s, want failed", repo.txns[0].Status)
	}
	reversal := repo.txns[1]
	if reversal.Direction != enums.TransactionDirectionCredit || reversal.Source != enums.TransactionSourceReversal {
		t.Fatalf("unexpected reversal entry: %+v", reversal)
	}
	if reversal.BalanceAfterPaise != 50000 {
		t.Fatalf("reversal balance after = %d, want 50000", reversal.BalanceAfterPaise)
	}
}

func TestWithdrawalService_RejectRequiresReason(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newWithdrawalService(t, repo)

	_, err := svc.Reject(context.Background(), RejectWithdrawalInput{
		WithdrawalID: uuid.New(),
		ProcessedBy:  uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
