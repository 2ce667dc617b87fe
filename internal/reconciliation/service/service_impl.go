package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"github.com/smallbiznis/ispbill/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Invoices   invoicedomain.Service
	Ledger     ledgerdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	invoices   invoicedomain.Service
	ledger     ledgerdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("reconciliation.service"),
		invoices:   p.Invoices,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Reconcile(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (domain.Result, error) {
	invoice, err := s.invoices.FindByID(ctx, tx, invoiceID)
	if err != nil {
		return domain.Result{}, err
	}
	if !eligible(invoice) {
		s.obsMetrics.RecordReconciliation(ctx, domain.OutcomeSkipped)
		return domain.Result{Skipped: true, PaymentState: invoice.PaymentState}, nil
	}

	lines, err := s.ledger.PayTermLines(ctx, tx, *invoice.LedgerEntryID)
	if err != nil {
		return domain.Result{}, err
	}
	open := map[snowflake.ID][]snowflake.ID{}
	accountIDs := make([]snowflake.ID, 0, len(lines))
	for _, line := range lines {
		if line.Reconciled || line.AmountResidual.IsZero() {
			continue
		}
		if _, ok := open[line.AccountID]; !ok {
			accountIDs = append(accountIDs, line.AccountID)
		}
		open[line.AccountID] = append(open[line.AccountID], line.ID)
	}

	sign := 1
	if invoice.MoveType.IsInbound() {
		sign = -1
	}
	candidates, err := s.ledger.OpenLines(ctx, tx, ledgerdomain.CandidateFilter{
		AccountIDs:   accountIDs,
		PartnerID:    invoice.CommercialPartnerID,
		Sign:         sign,
		ExcludeEntry: *invoice.LedgerEntryID,
		Currency:     invoice.Currency,
	})
	if err != nil {
		return domain.Result{}, err
	}
	if len(candidates) == 0 {
		s.obsMetrics.RecordReconciliation(ctx, domain.OutcomeNoCandidates)
		return domain.Result{PaymentState: invoice.PaymentState}, nil
	}

	matches := 0
	for _, candidate := range candidates {
		targets := open[candidate.AccountID]
		if len(targets) == 0 {
			continue
		}
		ids := append([]snowflake.ID{candidate.ID}, targets...)
		n, err := s.ledger.Reconcile(ctx, tx, ids)
		if err != nil {
			return domain.Result{}, err
		}
		matches += n
	}

	invoice, err = s.invoices.RefreshPaymentState(ctx, tx, invoice.ID)
	if err != nil {
		return domain.Result{}, err
	}

	outcome := domain.OutcomeNoCandidates
	if matches > 0 {
		outcome = domain.OutcomeMatched
	}
	s.obsMetrics.RecordReconciliation(ctx, outcome)
	s.log.Debug("reconciliation.invoice.done",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int("matches", matches),
		zap.String("payment_state", string(invoice.PaymentState)),
	)
	return domain.Result{Matches: matches, PaymentState: invoice.PaymentState}, nil
}

func eligible(invoice *invoicedomain.Invoice) bool {
	if invoice.State != invoicedomain.StatePosted || invoice.LedgerEntryID == nil {
		return false
	}
	if invoice.PaymentState != invoicedomain.PaymentStateNotPaid && invoice.PaymentState != invoicedomain.PaymentStatePartial {
		return false
	}
	return invoice.MoveType.IsInvoice(true)
}
