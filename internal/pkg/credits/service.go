package credits

import (
	"context"
	"errors"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"gorm.io/gorm"
)

// MaxPageSize is the hard cap on transaction page sizes; larger
// requests are clamped, never rejected.
const MaxPageSize = 100

const defaultPageSize = 20

// ErrInsufficientCredits mirrors the repository sentinel so callers can
// branch without importing the storage layer.
var ErrInsufficientCredits = repository.ErrInsufficientCredits

// Service provides the credit ledger operations consumed by the API and
// the reconciliation engine.
type Service struct {
	repo repository.CreditRepository
}

// NewService creates a credit service from an injected repository.
func NewService(repo repository.CreditRepository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a credit service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewCreditRepository(db))
}

// Status is the aggregate ledger view for one user.
type Status struct {
	Balance        int64 `json:"balance"`
	TotalPurchased int64 `json:"total_purchased"`
	TotalConsumed  int64 `json:"total_consumed"`
}

// GetBalance returns the current balance; users without any ledger
// activity read as zero.
func (s *Service) GetBalance(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	balance, err := s.repo.GetOrCreateBalance(userID)
	if err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// GetStatus returns balance plus lifetime aggregates.
func (s *Service) GetStatus(ctx context.Context, userID uint) (*Status, error) {
	_ = ctx
	balance, err := s.repo.GetOrCreateBalance(userID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Balance:        balance.Balance,
		TotalPurchased: balance.TotalPurchased,
		TotalConsumed:  balance.TotalConsumed,
	}, nil
}

// Consume debits credits for usage. The amount is the positive number
// of credits to spend; a debit past zero fails entirely with
// ErrInsufficientCredits.
func (s *Service) Consume(ctx context.Context, userID uint, amount int64, description string) (*models.CreditTransaction, error) {
	_ = ctx
	if amount <= 0 {
		return nil, errors.New("consume amount must be positive")
	}
	return s.repo.RecordTransaction(userID, models.CreditTxConsumption, -amount, "", description)
}

// Adjust posts a manual correction entry (support tooling).
func (s *Service) Adjust(ctx context.Context, userID uint, amount int64, description string) (*models.CreditTransaction, error) {
	_ = ctx
	return s.repo.RecordTransaction(userID, models.CreditTxAdjustment, amount, "", description)
}

// TransactionPage is the read-side pagination contract.
type TransactionPage struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Page         int                        `json:"page"`
	Limit        int                        `json:"limit"`
}

// GetTransactionsPaginated returns the newest-first transaction page.
// page starts at 1; limit is clamped to MaxPageSize; txType filters by
// transaction type when non-empty.
func (s *Service) GetTransactionsPaginated(ctx context.Context, userID uint, page, limit int, txType string) (*TransactionPage, error) {
	_ = ctx
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	txs, total, err := s.repo.ListTransactions(userID, txType, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.CreditTransaction{}
	}
	return &TransactionPage{
		Transactions: txs,
		Total:        total,
		Page:         page,
		Limit:        limit,
	}, nil
}
