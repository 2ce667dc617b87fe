package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Repo        domain.Repository
	PartnerRepo partnerdomain.Repository
	Ledger      ledgerdomain.Service
	Renderer    domain.Renderer     `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	repo        domain.Repository
	partnerRepo partnerdomain.Repository
	ledger      ledgerdomain.Service
	renderer    domain.Renderer
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		partnerRepo: p.PartnerRepo,
		ledger:      p.Ledger,
		renderer:    p.Renderer,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (*domain.Invoice, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrInvalidPartner
	}
	if !req.MoveType.IsInvoice(true) {
		return nil, domain.ErrInvalidMoveType
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	if len(req.Lines) == 0 {
		return nil, domain.ErrEmptyInvoice
	}

	partner, err := s.partnerRepo.FindByID(ctx, tx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, partnerdomain.ErrNotFound
	}

	var incomeID snowflake.ID
	now := s.clock.Now()
	invoiceID := s.genID.Generate()
	total := decimal.Zero
	lines := make([]domain.Line, 0, len(req.Lines))
	for _, input := range req.Lines {
		if !input.Quantity.IsPositive() {
			return nil, domain.ErrInvalidQuantity
		}
		if input.PriceUnit.IsNegative() {
			return nil, domain.ErrInvalidPrice
		}
		accountID := input.AccountID
		if accountID == 0 {
			if incomeID == 0 {
				income, err := s.ledger.AccountByCode(ctx, tx, s.policy.Get().Accounts.Income)
				if err != nil {
					return nil, err
				}
				incomeID = income.ID
			}
			accountID = incomeID
		}
		amount := input.Quantity.Mul(input.PriceUnit).Round(4)
		total = total.Add(amount)
		lines = append(lines, domain.Line{
			ID:        s.genID.Generate(),
			InvoiceID: invoiceID,
			Name:      strings.TrimSpace(input.Name),
			Quantity:  input.Quantity,
			PriceUnit: input.PriceUnit,
			Amount:    amount,
			AccountID: accountID,
		})
	}

	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = clock.StartOfDay(now)
	}
	invoice := &domain.Invoice{
		ID:                  invoiceID,
		PartnerID:           partner.ID,
		CommercialPartnerID: partner.CommercialPartnerID(),
		MoveType:            req.MoveType,
		State:               domain.StateDraft,
		PaymentState:        domain.PaymentStateNotPaid,
		Currency:            currency,
		AmountTotal:         total,
		AmountResidual:      total,
		InvoiceDate:         invoiceDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, tx, invoice, lines); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) Post(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	if invoice.State != domain.StateDraft {
		return nil, domain.ErrNotDraft
	}

	now := s.clock.Now()
	invoice.State = domain.StatePosted
	invoice.PostedAt = &now
	invoice.UpdatedAt = now
	invoice.AmountResidual = invoice.AmountTotal
	invoice.PaymentState = domain.PaymentStateNotPaid

	if invoice.AmountTotal.IsZero() {
		invoice.PaymentState = domain.PaymentStatePaid
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return nil, err
		}
		s.obsMetrics.RecordInvoicePosted(ctx, string(invoice.MoveType), "zero_total")
		return invoice, nil
	}

	lines, err := s.repo.Lines(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	entryLines, err := s.entryLines(ctx, tx, invoice, lines)
	if err != nil {
		return nil, err
	}
	entry, _, err := s.ledger.PostEntry(ctx, tx, ledgerdomain.PostEntryRequest{
		SourceType: ledgerdomain.SourceTypeInvoice,
		SourceID:   invoice.ID,
		PartnerID:  invoice.CommercialPartnerID,
		Currency:   invoice.Currency,
		OccurredAt: invoice.InvoiceDate,
		Lines:      entryLines,
	})
	if err != nil {
		return nil, fmt.Errorf("post invoice %s to ledger: %w", invoice.ID, err)
	}
	invoice.LedgerEntryID = &entry.ID

	if err := s.repo.Update(ctx, tx, invoice); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordInvoicePosted(ctx, string(invoice.MoveType), "posted")
	s.log.Info("invoice.posted",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("move_type", string(invoice.MoveType)),
		zap.String("amount_total", invoice.AmountTotal.String()),
	)
	return invoice, nil
}

// entryLines puts the total on the pay-term account and the line amounts on
// their counterpart accounts, on opposite sides.
func (s *Service) entryLines(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, lines []domain.Line) ([]ledgerdomain.LineInput, error) {
	accounts := s.policy.Get().Accounts
	code := accounts.Payable
	if invoice.MoveType.IsSale() {
		code = accounts.Receivable
	}
	payTerm, err := s.ledger.AccountByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	payTermSide, counterSide := ledgerdomain.DirectionCredit, ledgerdomain.DirectionDebit
	if invoice.MoveType.IsInbound() {
		payTermSide, counterSide = ledgerdomain.DirectionDebit, ledgerdomain.DirectionCredit
	}

	out := []ledgerdomain.LineInput{{
		AccountID: payTerm.ID,
		PartnerID: invoice.CommercialPartnerID,
		Direction: payTermSide,
		Amount:    invoice.AmountTotal,
	}}
	byAccount := map[snowflake.ID]int{}
	for _, line := range lines {
		if line.Amount.IsZero() {
			continue
		}
		if idx, ok := byAccount[line.AccountID]; ok {
			out[idx].Amount = out[idx].Amount.Add(line.Amount)
			continue
		}
		byAccount[line.AccountID] = len(out)
		out = append(out, ledgerdomain.LineInput{
			AccountID: line.AccountID,
			PartnerID: invoice.CommercialPartnerID,
			Direction: counterSide,
			Amount:    line.Amount,
		})
	}
	return out, nil
}

func (s *Service) RefreshPaymentState(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	if invoice.State != domain.StatePosted || invoice.LedgerEntryID == nil {
		return invoice, nil
	}

	lines, err := s.ledger.PayTermLines(ctx, tx, *invoice.LedgerEntryID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrLedgerEntryMissing
	}
	residual := decimal.Zero
	for _, line := range lines {
		residual = residual.Add(line.AmountResidual.Abs())
	}

	previous := invoice.PaymentState
	invoice.AmountResidual = residual
	switch {
	case residual.IsZero():
		invoice.PaymentState = domain.PaymentStatePaid
	case residual.LessThan(invoice.AmountTotal):
		invoice.PaymentState = domain.PaymentStatePartial
	default:
		invoice.PaymentState = domain.PaymentStateNotPaid
	}
	invoice.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, invoice); err != nil {
		return nil, err
	}
	if previous != invoice.PaymentState {
		s.obsMetrics.RecordPaymentApplied(ctx, string(invoice.PaymentState))
		s.log.Info("invoice.payment_state.changed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(invoice.PaymentState)),
		)
	}
	return invoice, nil
}

func (s *Service) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) Lines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Line, error) {
	return s.repo.Lines(ctx, db, invoiceID)
}

func (s *Service) ListOpen(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) ([]domain.Invoice, error) {
	return s.repo.ListOpenByPartner(ctx, db, partnerID)
}
