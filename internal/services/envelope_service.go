package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// EnvelopeStore is the part of the ledger the envelope service needs.
type EnvelopeStore interface {
	CreateEnvelope(ctx context.Context, in core.NewEnvelope) (core.Envelope, error)
	GetEnvelope(ctx context.Context, id int64) (core.Envelope, error)
	ListEnvelopes(ctx context.Context) ([]core.Envelope, error)
	UpdateEnvelope(ctx context.Context, id int64, patch core.EnvelopePatch) (core.Envelope, error)
	DeleteEnvelope(ctx context.Context, id int64) error
	Balance(ctx context.Context, envelopeID int64) (core.Money, error)
	Summary(ctx context.Context) (core.BudgetSummary, error)
}

type CreateEnvelopeInput struct {
	Category        string           `json:"category" validate:"required"`
	BudgetedAmount  *decimal.Decimal `json:"budgeted_amount"`
	StartingBalance *decimal.Decimal `json:"starting_balance"`
	Description     string           `json:"description"`
}

// UpdateEnvelopeInput holds the fields to change; nil means unchanged.
type UpdateEnvelopeInput struct {
	Category        *string          `json:"category"`
	BudgetedAmount  *decimal.Decimal `json:"budgeted_amount"`
	StartingBalance *decimal.Decimal `json:"starting_balance"`
	Description     *string          `json:"description"`
}

// EnvelopeBalance is the answer to a balance lookup.
type EnvelopeBalance struct {
	EnvelopeID     int64      `json:"envelope_id"`
	CurrentBalance core.Money `json:"current_balance"`
}

// EnvelopeService validates envelope requests before they reach the store.
type EnvelopeService struct {
	store    EnvelopeStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEnvelopeService(store EnvelopeStore, logger *slog.Logger) *EnvelopeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvelopeService{
		store:    store,
		validate: newValidator(),
		logger:   logger.With(log.FieldComponent, log.ComponentService),
	}
}

func (s *EnvelopeService) Create(ctx context.Context, in CreateEnvelopeInput) (core.Envelope, error) {
	in.Category = strings.TrimSpace(in.Category)
	if err := s.validate.Struct(in); err != nil {
		return core.Envelope{}, validationError(err)
	}
	if in.BudgetedAmount == nil {
		return core.Envelope{}, core.Errorf(core.KindValidation, "budgeted_amount is required")
	}

	budget, err := toMoney("budgeted_amount", *in.BudgetedAmount)
	if err != nil {
		return core.Envelope{}, err
	}
	var start core.Money
	if in.StartingBalance != nil {
		if start, err = toMoney("starting_balance", *in.StartingBalance); err != nil {
			return core.Envelope{}, err
		}
	}

	e, err := s.store.CreateEnvelope(ctx, core.NewEnvelope{
		Category:        in.Category,
		BudgetedAmount:  budget,
		StartingBalance: start,
		Description:     in.Description,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Create envelope rejected",
			log.FieldCategory, in.Category,
			log.FieldErrorKind, core.KindOf(err))
		return core.Envelope{}, err
	}
	return e, nil
}

func (s *EnvelopeService) Get(ctx context.Context, id int64) (core.Envelope, error) {
	if err := checkID("envelope_id", id); err != nil {
		return core.Envelope{}, err
	}
	return s.store.GetEnvelope(ctx, id)
}

func (s *EnvelopeService) List(ctx context.Context) ([]core.Envelope, error) {
	return s.store.ListEnvelopes(ctx)
}

// Update applies the given fields. With no fields it returns the envelope as
// it is.
func (s *EnvelopeService) Update(ctx context.Context, id int64, in UpdateEnvelopeInput) (core.Envelope, error) {
	if err := checkID("envelope_id", id); err != nil {
		return core.Envelope{}, err
	}

	var patch core.EnvelopePatch
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category == "" {
			return core.Envelope{}, core.ErrEmptyCategory
		}
		patch.Category = &category
	}
	if in.BudgetedAmount != nil {
		m, err := toMoney("budgeted_amount", *in.BudgetedAmount)
		if err != nil {
			return core.Envelope{}, err
		}
		patch.BudgetedAmount = &m
	}
	if in.StartingBalance != nil {
		m, err := toMoney("starting_balance", *in.StartingBalance)
		if err != nil {
			return core.Envelope{}, err
		}
		patch.StartingBalance = &m
	}
	patch.Description = in.Description

	return s.store.UpdateEnvelope(ctx, id, patch)
}

// Delete removes an envelope and returns a confirmation message.
func (s *EnvelopeService) Delete(ctx context.Context, id int64) (string, error) {
	if err := checkID("envelope_id", id); err != nil {
		return "", err
	}
	if err := s.store.DeleteEnvelope(ctx, id); err != nil {
		return "", err
	}
	return deletedMessage("Envelope", id), nil
}

func (s *EnvelopeService) Balance(ctx context.Context, id int64) (EnvelopeBalance, error) {
	if err := checkID("envelope_id", id); err != nil {
		return EnvelopeBalance{}, err
	}
	bal, err := s.store.Balance(ctx, id)
	if err != nil {
		return EnvelopeBalance{}, err
	}
	return EnvelopeBalance{EnvelopeID: id, CurrentBalance: bal}, nil
}

func (s *EnvelopeService) Summary(ctx context.Context) (core.BudgetSummary, error) {
	return s.store.Summary(ctx)
}

func checkID(name string, id int64) error {
	if id <= 0 {
		return core.Errorf(core.KindValidation, "%s must be a positive integer", name)
	}
	return nil
}
