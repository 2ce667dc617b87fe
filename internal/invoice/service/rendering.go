package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/invoice/domain"
	"gorm.io/gorm"
)

func (s *Service) RenderPDF(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (domain.RenderResponse, error) {
	if s.renderer == nil {
		return domain.RenderResponse{}, domain.ErrRendererMissing
	}
	invoice, err := s.FindByID(ctx, db, invoiceID)
	if err != nil {
		return domain.RenderResponse{}, err
	}
	lines, err := s.repo.Lines(ctx, db, invoice.ID)
	if err != nil {
		return domain.RenderResponse{}, err
	}
	partner, err := s.partnerRepo.FindByID(ctx, db, invoice.PartnerID)
	if err != nil {
		return domain.RenderResponse{}, err
	}

	doc := domain.Document{
		Number:    invoice.ID.String(),
		IssueDate: invoice.InvoiceDate.Format("2006-01-02"),
		Currency:  invoice.Currency,
		State:     string(invoice.PaymentState),
		Total:     formatMoney(invoice.AmountTotal, invoice.Currency),
		AmountDue: formatMoney(invoice.AmountResidual, invoice.Currency),
	}
	if partner != nil {
		doc.PartnerName = partner.Name
		doc.Email = partner.Email
	}
	for _, line := range lines {
		doc.Items = append(doc.Items, domain.DocumentItem{
			Description: line.Name,
			Quantity:    line.Quantity.String(),
			UnitPrice:   formatMoney(line.PriceUnit, invoice.Currency),
			Amount:      formatMoney(line.Amount, invoice.Currency),
		})
	}

	body, err := s.renderer.Render(ctx, doc)
	if err != nil {
		return domain.RenderResponse{}, fmt.Errorf("render invoice %s: %w", invoice.ID, err)
	}
	return domain.RenderResponse{
		FileName: fileName(doc.PartnerName, invoice.ID),
		Body:     body,
	}, nil
}

func fileName(partnerName string, id snowflake.ID) string {
	base := slug.Make(strings.TrimSpace(partnerName))
	if base == "" {
		return fmt.Sprintf("invoice-%s.pdf", id)
	}
	return fmt.Sprintf("invoice-%s-%s.pdf", base, id)
}

func formatMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
