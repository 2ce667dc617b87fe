package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/ispbill/internal/payment/domain"
)

type registerPaymentRequest struct {
	PartnerID snowflake.ID    `json:"partner_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at"`
}

func (s *Server) RegisterPayment(c *gin.Context) {
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in := paymentdomain.RegisterPaymentRequest{
		PartnerID: req.PartnerID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
	}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}

	result, err := s.paymentSvc.RegisterPayment(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}
