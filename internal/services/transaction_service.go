package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// TransactionStore is the part of the ledger the transaction service needs.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, envelopeID *int64) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

type CreateTransactionInput struct {
	EnvelopeID  int64            `json:"envelope_id" validate:"required,gt=0"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Date        string           `json:"date"`
	Type        string           `json:"type" validate:"required,transaction_type"`
}

type UpdateTransactionInput struct {
	EnvelopeID  *int64           `json:"envelope_id" validate:"omitempty,gt=0"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Date        *string          `json:"date"`
	Type        *string          `json:"type" validate:"omitempty,transaction_type"`
}

type ListTransactionsInput struct {
	EnvelopeID *int64 `json:"envelope_id" validate:"omitempty,gt=0"`
}

type TransactionService struct {
	store    TransactionStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewTransactionService(store TransactionStore, logger *slog.Logger) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		store:    store,
		validate: newValidator(),
		logger:   logger.With(log.FieldComponent, log.ComponentService),
	}
}

// Create posts a transaction. The amount must be positive; the type carries
// the direction. An empty date means today.
func (s *TransactionService) Create(ctx context.Context, in CreateTransactionInput) (core.Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return core.Transaction{}, validationError(err)
	}
	if in.Amount == nil {
		return core.Transaction{}, core.Errorf(core.KindValidation, "amount is required")
	}
	amount, err := positiveAmount(*in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}

	var date core.Date
	if in.Date != "" {
		if date, err = parseDate(in.Date); err != nil {
			return core.Transaction{}, err
		}
	}

	tx, err := s.store.CreateTransaction(ctx, core.NewTransaction{
		EnvelopeID:  in.EnvelopeID,
		Amount:      amount,
		Description: in.Description,
		Date:        date,
		Type:        core.TransactionType(in.Type),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Create transaction rejected",
			log.FieldEnvelopeID, in.EnvelopeID,
			log.FieldErrorKind, core.KindOf(err))
		return core.Transaction{}, err
	}
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	if err := checkID("transaction_id", id); err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context, in ListTransactionsInput) ([]core.Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	return s.store.ListTransactions(ctx, in.EnvelopeID)
}

func (s *TransactionService) Update(ctx context.Context, id int64, in UpdateTransactionInput) (core.Transaction, error) {
	if err := checkID("transaction_id", id); err != nil {
		return core.Transaction{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return core.Transaction{}, validationError(err)
	}

	patch := core.TransactionPatch{
		EnvelopeID:  in.EnvelopeID,
		Description: in.Description,
	}
	if in.Amount != nil {
		amount, err := positiveAmount(*in.Amount)
		if err != nil {
			return core.Transaction{}, err
		}
		patch.Amount = &amount
	}
	if in.Date != nil {
		date, err := parseDate(*in.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		patch.Date = &date
	}
	if in.Type != nil {
		typ := core.TransactionType(*in.Type)
		patch.Type = &typ
	}

	return s.store.UpdateTransaction(ctx, id, patch)
}

func (s *TransactionService) Delete(ctx context.Context, id int64) (string, error) {
	if err := checkID("transaction_id", id); err != nil {
		return "", err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return "", err
	}
	return deletedMessage("Transaction", id), nil
}

func positiveAmount(d decimal.Decimal) (core.Money, error) {
	if !d.IsPositive() {
		return core.Money{}, core.ErrInvalidAmount
	}
	m, err := toMoney("amount", d)
	if err != nil {
		return core.Money{}, err
	}
	if err := m.Validate(); err != nil {
		return core.Money{}, err
	}
	return m, nil
}

func deletedMessage(entity string, id int64) string {
	return fmt.Sprintf("%s with ID %d deleted successfully.", entity, id)
}
