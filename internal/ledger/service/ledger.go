package service

import (
	"context"

	"rentro/internal/ledger/repository"
	"rentro/pkg/clock"
	"rentro/pkg/config"
	apperrors "rentro/pkg/errors"
	"rentro/pkg/model"
	"rentro/pkg/money"

	"github.com/shopspring/decimal"
)

// LedgerService records monetary events tied to rentals. Recording is
// bookkeeping only: the allocation engine treats failures here as
// best-effort and never rolls back a rental transition because of them.
type LedgerService interface {
	Record(ctx context.Context, rentalID string, amount decimal.Decimal, category string) (string, error)
	GetByRental(ctx context.Context, rentalID string) ([]*model.Payment, error)
}

type ledgerService struct {
	repo  repository.PaymentRepository
	clock clock.Clock
	cfg   *config.Config
}

func NewLedgerService(repo repository.PaymentRepository, clk clock.Clock, cfg *config.Config) LedgerService {
	return &ledgerService{
		repo:  repo,
		clock: clk,
		cfg:   cfg,
	}
}

func (s *ledgerService) Record(ctx context.Context, rentalID string, amount decimal.Decimal, category string) (string, error) {
	if rentalID == "" {
		return "", apperrors.InvalidInput("Rental ID cannot be empty")
	}
	if amount.IsNegative() {
		return "", apperrors.InvalidInput("Ledger amount cannot be negative")
	}
	switch category {
	case model.PaymentCategoryDeposit, model.PaymentCategoryFinal, model.PaymentCategoryPenalty:
	default:
		return "", apperrors.InvalidInput("Unknown ledger category: " + category)
	}

	stored, err := money.ToDecimal128(amount)
	if err != nil {
		return "", apperrors.Internal("Failed to encode ledger amount", err)
	}

	payment := &model.Payment{
		RentalID: rentalID,
		Amount:   stored,
		Category: category,
		PaidAt:   s.clock.Now(),
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return "", apperrors.Internal("Failed to record ledger entry", err)
	}

	s.cfg.Log.Info("Ledger entry recorded",
		"rental_id", rentalID,
		"category", category,
		"amount", amount.StringFixed(money.Places),
	)
	return payment.ID, nil
}

func (s *ledgerService) GetByRental(ctx context.Context, rentalID string) ([]*model.Payment, error) {
	if rentalID == "" {
		return nil, apperrors.InvalidInput("Rental ID cannot be empty")
	}

	payments, err := s.repo.FindByRental(ctx, rentalID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve payments", err)
	}
	return payments, nil
}
