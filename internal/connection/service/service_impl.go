package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	cycledomain "github.com/smallbiznis/ispbill/internal/billingcycle/domain"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/connection/domain"
	gatewaydomain "github.com/smallbiznis/ispbill/internal/gateway/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"github.com/smallbiznis/ispbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	reconciliationdomain "github.com/smallbiznis/ispbill/internal/reconciliation/domain"
	packagedomain "github.com/smallbiznis/ispbill/internal/servicepackage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

type Params struct {
	fx.In

	DB                  *gorm.DB
	Log                 *zap.Logger
	Cfg                 config.Config
	GenID               *snowflake.Node
	Clock               clock.Clock
	Policy              *config.PolicyHolder
	Repo                domain.Repository
	PackageRepo         packagedomain.Repository
	CycleRepo           cycledomain.Repository
	PartnerRepo         partnerdomain.Repository
	Resolver            gatewaydomain.Resolver
	Provisioner         gatewaydomain.Provisioner
	InvoiceSvc          invoicedomain.Service
	Reconciliation      reconciliationdomain.Service
	SchedulerMetrics    *obsmetrics.SchedulerMetrics    `optional:"true"`
	ProvisioningMetrics *obsmetrics.ProvisioningMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	policy         *config.PolicyHolder
	validate       *validator.Validate
	batchSize      int
	repo           domain.Repository
	packageRepo    packagedomain.Repository
	cycleRepo      cycledomain.Repository
	partnerRepo    partnerdomain.Repository
	resolver       gatewaydomain.Resolver
	provisioner    gatewaydomain.Provisioner
	invoiceSvc     invoicedomain.Service
	reconciliation reconciliationdomain.Service
	schedMetrics   *obsmetrics.SchedulerMetrics
	provMetrics    *obsmetrics.ProvisioningMetrics
}

func NewService(p Params) domain.Service {
	batchSize := p.Cfg.Scheduler.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("connection.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		policy:         p.Policy,
		validate:       domain.NewValidator(),
		batchSize:      batchSize,
		repo:           p.Repo,
		packageRepo:    p.PackageRepo,
		cycleRepo:      p.CycleRepo,
		partnerRepo:    p.PartnerRepo,
		resolver:       p.Resolver,
		provisioner:    p.Provisioner,
		invoiceSvc:     p.InvoiceSvc,
		reconciliation: p.Reconciliation,
		schedMetrics:   p.SchedulerMetrics,
		provMetrics:    p.ProvisioningMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateConnectionRequest) (*domain.Connection, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := domain.ValidateCreate(s.validate, req); err != nil {
		return nil, err
	}

	var conn *domain.Connection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := s.packageRepo.FindByID(ctx, tx, req.PackageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return domain.ErrPackageNotFound
		}
		partner, err := s.partnerRepo.FindByID(ctx, tx, req.PartnerID)
		if err != nil {
			return err
		}
		if partner == nil {
			return partnerdomain.ErrNotFound
		}

		now := s.clock.Now()
		conn = &domain.Connection{
			ID:        s.genID.Generate(),
			PackageID: pkg.ID,
			PartnerID: partner.ID,
			Username:  req.Username,
			Password:  req.Password,
			Params:    req.Params,
			Status:    domain.StatusNew,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if req.ExpiryDate != nil {
			expiry := clock.StartOfDay(*req.ExpiryDate)
			conn.ExpiryDate = &expiry
		}
		if err := s.repo.Insert(ctx, tx, conn); err != nil {
			return err
		}

		_, err = s.cloneSetupItems(ctx, tx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("connection.created",
		zap.String("connection_id", conn.ID.String()),
		zap.String("package_id", conn.PackageID.String()),
		zap.String("username", conn.Username),
	)
	return conn, nil
}

// cloneSetupItems copies the package's published setup items onto the connection.
func (s *Service) cloneSetupItems(ctx context.Context, tx *gorm.DB, conn *domain.Connection) ([]domain.SetupItem, error) {
	templates, err := s.packageRepo.ListPublishedSetupItems(ctx, tx, conn.PackageID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	items := make([]domain.SetupItem, 0, len(templates))
	for _, tmpl := range templates {
		items = append(items, domain.SetupItem{
			ID:           s.genID.Generate(),
			ConnectionID: conn.ID,
			Title:        tmpl.Title,
			Description:  tmpl.Description,
			Currency:     tmpl.Currency,
			Amount:       tmpl.Amount,
			CreatedAt:    now,
		})
	}
	if err := s.repo.InsertSetupItems(ctx, tx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) GenerateInvoice(ctx context.Context, connectionID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conn, err := s.lockConnection(ctx, tx, connectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return domain.ErrNotFound
		}
		if conn.IsSetup && conn.InvoiceID != nil {
			pending, err := s.invoiceSvc.FindByID(ctx, tx, *conn.InvoiceID)
			if err != nil {
				return err
			}
			if !pending.IsPaid() {
				return domain.ErrSetupInvoicePending
			}
		}

		items, err := s.repo.ListSetupItems(ctx, tx, conn.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			items, err = s.cloneSetupItems(ctx, tx, conn)
			if err != nil {
				return err
			}
		}
		if len(items) == 0 {
			return domain.ErrNoSetupItems
		}

		currency := items[0].Currency
		lines := make([]invoicedomain.LineInput, 0, len(items))
		for _, item := range items {
			lines = append(lines, invoicedomain.LineInput{
				Name:      item.Title,
				Quantity:  decimal.NewFromInt(1),
				PriceUnit: item.Amount,
			})
		}
		invoice, err = s.issueInvoice(ctx, tx, conn, currency, lines)
		if err != nil {
			return err
		}

		conn.InvoiceID = &invoice.ID
		conn.IsSetup = true
		conn.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, conn)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("connection.setup_invoice.issued",
		zap.String("connection_id", connectionID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("payment_state", string(invoice.PaymentState)),
	)
	return invoice, nil
}

// issueInvoice creates and posts an invoice for the connection's partner,
// reconciles it with any open credit and records the link.
func (s *Service) issueInvoice(ctx context.Context, tx *gorm.DB, conn *domain.Connection, currency string, lines []invoicedomain.LineInput) (*invoicedomain.Invoice, error) {
	if strings.TrimSpace(currency) == "" {
		currency = s.policy.Get().DefaultCurrency
	}
	draft, err := s.invoiceSvc.Create(ctx, tx, invoicedomain.CreateRequest{
		PartnerID:   conn.PartnerID,
		MoveType:    invoicedomain.MoveTypeOutInvoice,
		Currency:    currency,
		InvoiceDate: clock.Today(s.clock),
		Lines:       lines,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.invoiceSvc.Post(ctx, tx, draft.ID); err != nil {
		return nil, err
	}
	if _, err := s.reconciliation.Reconcile(ctx, tx, draft.ID); err != nil {
		return nil, err
	}

	err = s.repo.InsertInvoiceLink(ctx, tx, &domain.Invoice{
		ID:           s.genID.Generate(),
		ConnectionID: conn.ID,
		InvoiceID:    draft.ID,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return s.invoiceSvc.FindByID(ctx, tx, draft.ID)
}

func (s *Service) lockConnection(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Connection, error) {
	start := time.Now()
	conn, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	s.schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceConnectionsForWork, time.Since(start))
	return conn, err
}

// nextDate advances from by one billing cycle of the package.
func (s *Service) nextDate(ctx context.Context, db *gorm.DB, pkg *packagedomain.Package, from time.Time) (time.Time, error) {
	var cycle *cycledomain.BillingCycle
	if pkg.BillingCycleID != nil && *pkg.BillingCycleID != 0 {
		found, err := s.cycleRepo.FindByID(ctx, db, *pkg.BillingCycleID)
		if err != nil {
			return time.Time{}, err
		}
		cycle = found
	}
	return cycledomain.NextDate(from, cycle), nil
}

func (s *Service) findPackage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*packagedomain.Package, error) {
	pkg, err := s.packageRepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *Service) logFor(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}
