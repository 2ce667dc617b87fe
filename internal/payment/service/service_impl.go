package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	paymentdomain "github.com/smallbiznis/ispbill/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/ispbill/internal/reconciliation/domain"
	"github.com/smallbiznis/ispbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Policy         *config.PolicyHolder
	Repo           paymentdomain.Repository
	PartnerRepo    partnerdomain.Repository
	LedgerSvc      ledgerdomain.Service
	InvoiceSvc     invoicedomain.Service
	Reconciliation reconciliationdomain.Service
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	policy         *config.PolicyHolder
	repo           paymentdomain.Repository
	partnerRepo    partnerdomain.Repository
	ledgerSvc      ledgerdomain.Service
	invoiceSvc     invoicedomain.Service
	reconciliation reconciliationdomain.Service
	validate       *validator.Validate
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		policy:         p.Policy,
		repo:           p.Repo,
		partnerRepo:    p.PartnerRepo,
		ledgerSvc:      p.LedgerSvc,
		invoiceSvc:     p.InvoiceSvc,
		reconciliation: p.Reconciliation,
		validate:       paymentdomain.NewValidator(),
	}
}

func (s *Service) RegisterPayment(ctx context.Context, req paymentdomain.RegisterPaymentRequest) (paymentdomain.RegisterPaymentResult, error) {
	if err := paymentdomain.ValidateRegister(s.validate, &req); err != nil {
		return paymentdomain.RegisterPaymentResult{}, err
	}

	var result paymentdomain.RegisterPaymentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		partner, err := s.partnerRepo.FindByID(ctx, tx, req.PartnerID)
		if err != nil {
			return err
		}
		if partner == nil {
			return partnerdomain.ErrNotFound
		}
		commercialID := partner.CommercialPartnerID()

		now := s.clock.Now()
		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		payment := paymentdomain.Payment{
			ID:        s.genID.Generate(),
			PartnerID: commercialID,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Reference: req.Reference,
			PaidAt:    paidAt.UTC(),
			CreatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrDuplicatePayment
			}
			return err
		}

		accounts := s.policy.Get().Accounts
		cash, err := s.ledgerSvc.AccountByCode(ctx, tx, accounts.Cash)
		if err != nil {
			return err
		}
		receivable, err := s.ledgerSvc.AccountByCode(ctx, tx, accounts.Receivable)
		if err != nil {
			return err
		}
		entry, _, err := s.ledgerSvc.PostEntry(ctx, tx, ledgerdomain.PostEntryRequest{
			SourceType: ledgerdomain.SourceTypePayment,
			SourceID:   payment.ID,
			PartnerID:  commercialID,
			Currency:   payment.Currency,
			OccurredAt: payment.PaidAt,
			Lines: []ledgerdomain.LineInput{
				{AccountID: cash.ID, Direction: ledgerdomain.DirectionDebit, Amount: payment.Amount},
				{AccountID: receivable.ID, Direction: ledgerdomain.DirectionCredit, Amount: payment.Amount},
			},
		})
		if err != nil {
			return fmt.Errorf("post payment %s to ledger: %w", payment.ID, err)
		}
		if err := s.repo.SetLedgerEntry(ctx, tx, payment.ID, entry.ID); err != nil {
			return err
		}
		payment.LedgerEntryID = &entry.ID
		result.Payment = payment

		invoices, err := s.invoiceSvc.ListOpen(ctx, tx, commercialID)
		if err != nil {
			return err
		}
		for _, invoice := range invoices {
			if !invoice.MoveType.IsInbound() || invoice.Currency != payment.Currency {
				continue
			}
			res, err := s.reconciliation.Reconcile(ctx, tx, invoice.ID)
			if err != nil {
				return fmt.Errorf("reconcile invoice %s: %w", invoice.ID, err)
			}
			if res.Skipped || res.Matches == 0 {
				continue
			}
			result.Invoices = append(result.Invoices, paymentdomain.AppliedInvoice{
				InvoiceID:    invoice.ID,
				Matches:      res.Matches,
				PaymentState: res.PaymentState,
			})
		}
		return nil
	})
	if err != nil {
		return paymentdomain.RegisterPaymentResult{}, err
	}

	s.log.Info("payment.registered",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("partner_id", result.Payment.PartnerID.String()),
		zap.String("amount", result.Payment.Amount.String()),
		zap.Int("invoices_applied", len(result.Invoices)),
	)
	return result, nil
}
