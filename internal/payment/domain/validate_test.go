package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRegisterNormalizes(t *testing.T) {
	req := RegisterPaymentRequest{
		PartnerID: 42,
		Amount:    decimal.RequireFromString("0.01"),
		Currency:  " idr ",
		Reference: "  BCA-7781 ",
	}

	require.NoError(t, ValidateRegister(NewValidator(), &req))
	assert.Equal(t, "IDR", req.Currency)
	assert.Equal(t, "BCA-7781", req.Reference)
}

func TestValidateRegisterSentinels(t *testing.T) {
	v := NewValidator()
	valid := func() RegisterPaymentRequest {
		return RegisterPaymentRequest{PartnerID: 1, Amount: decimal.NewFromInt(5), Currency: "USD", Reference: "r"}
	}

	tests := []struct {
		name   string
		mutate func(*RegisterPaymentRequest)
		want   error
	}{
		{"partner", func(r *RegisterPaymentRequest) { r.PartnerID = 0 }, ErrInvalidPartner},
		{"zero amount", func(r *RegisterPaymentRequest) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"digits in currency", func(r *RegisterPaymentRequest) { r.Currency = "US1" }, ErrInvalidCurrency},
		{"long reference", func(r *RegisterPaymentRequest) { r.Reference = strings.Repeat("x", 129) }, ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			assert.ErrorIs(t, ValidateRegister(v, &req), tt.want)
		})
	}
}
