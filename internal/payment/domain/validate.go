package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NewValidator returns a validator that compares decimal amounts as floats.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

var fieldErrors = map[string]error{
	"PartnerID": ErrInvalidPartner,
	"Amount":    ErrInvalidAmount,
	"Currency":  ErrInvalidCurrency,
	"Reference": ErrInvalidReference,
}

// ValidateRegister trims and upper-cases the request in place, then reports
// the first failing field as its sentinel error.
func ValidateRegister(v *validator.Validate, req *RegisterPaymentRequest) error {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Reference = strings.TrimSpace(req.Reference)

	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		if sentinel, ok := fieldErrors[fe.StructField()]; ok {
			return sentinel
		}
	}
	return err
}
