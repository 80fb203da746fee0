package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"envelopes/internal/core"
)

// newValidator builds the validator shared by the services, with field names
// reported by their json tag and the ledger's custom tags registered.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "transaction_type", validateTransactionType)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func validateTransactionType(fl validator.FieldLevel) bool {
	return core.TransactionType(fl.Field().String()).IsValid()
}

// validationError turns validator output into a ValidationError naming the
// first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return core.Wrap(core.KindValidation, err, "invalid input")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return core.Errorf(core.KindValidation, "%s is required", fe.Field())
	case "gt":
		return core.Errorf(core.KindValidation, "%s must be a positive integer", fe.Field())
	case "transaction_type":
		return core.ErrInvalidType
	default:
		return core.Errorf(core.KindValidation, "%s is invalid", fe.Field())
	}
}

// toMoney converts a decimal argument to cents; name is used in messages.
func toMoney(name string, d decimal.Decimal) (core.Money, error) {
	m, err := core.MoneyFromDecimal(d)
	if err != nil {
		return core.Money{}, core.Errorf(core.KindValidation, "%s is out of range", name)
	}
	return m, nil
}

func parseDate(s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("date %q: %w", s, err)
	}
	return d, nil
}
