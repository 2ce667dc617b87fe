package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/ispbill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/ispbill/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/ispbill/internal/ledger/service"
	"github.com/smallbiznis/ispbill/internal/migration"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	partnerrepository "github.com/smallbiznis/ispbill/internal/partner/repository"
	paymentdomain "github.com/smallbiznis/ispbill/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/ispbill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/ispbill/internal/payment/service"
	reconciliationdomain "github.com/smallbiznis/ispbill/internal/reconciliation/domain"
	reconciliationservice "github.com/smallbiznis/ispbill/internal/reconciliation/service"
	"github.com/smallbiznis/ispbill/internal/seed"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Billing wires the accounting services over a fresh database.
type Billing struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Policy *config.PolicyHolder
	Log    *zap.Logger

	PartnerRepo    partnerdomain.Repository
	InvoiceRepo    invoicedomain.Repository
	Ledger         ledgerdomain.Service
	Invoices       invoicedomain.Service
	Reconciliation reconciliationdomain.Service
	Payments       paymentdomain.Service
}

// NewBilling migrates every model, seeds the policy accounts and pins the
// clock to now.
func NewBilling(t *testing.T, now time.Time) *Billing {
	t.Helper()

	db := OpenDB(t, migration.Models()...)
	node := Node(t)
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())
	require.NoError(t, seed.EnsureLedgerAccounts(context.Background(), db, node, policy.Get()))

	b := &Billing{
		DB:          db,
		Node:        node,
		Clock:       clock.NewFakeClock(now),
		Policy:      policy,
		Log:         zap.NewNop(),
		PartnerRepo: partnerrepository.Provide(),
		InvoiceRepo: invoicerepository.Provide(),
	}

	b.Ledger = ledgerservice.NewService(ledgerservice.Params{
		Log:   b.Log,
		GenID: node,
	})
	b.Invoices = invoiceservice.NewService(invoiceservice.Params{
		Log:         b.Log,
		GenID:       node,
		Clock:       b.Clock,
		Policy:      policy,
		Repo:        b.InvoiceRepo,
		PartnerRepo: b.PartnerRepo,
		Ledger:      b.Ledger,
	})
	b.Reconciliation = reconciliationservice.NewService(reconciliationservice.Params{
		Log:      b.Log,
		Invoices: b.Invoices,
		Ledger:   b.Ledger,
	})
	b.Payments = paymentservice.NewService(paymentservice.Params{
		DB:             db,
		Log:            b.Log,
		GenID:          node,
		Clock:          b.Clock,
		Policy:         policy,
		Repo:           paymentrepository.Provide(),
		PartnerRepo:    b.PartnerRepo,
		LedgerSvc:      b.Ledger,
		InvoiceSvc:     b.Invoices,
		Reconciliation: b.Reconciliation,
	})
	return b
}

// Partner inserts a partner, optionally under a parent.
func (b *Billing) Partner(t *testing.T, name string, parent *snowflake.ID) *partnerdomain.Partner {
	t.Helper()
	p := &partnerdomain.Partner{
		ID:       b.Node.Generate(),
		ParentID: parent,
		Name:     name,
	}
	require.NoError(t, b.PartnerRepo.Insert(context.Background(), b.DB, p))
	return p
}

// Account looks up a seeded ledger account by code.
func (b *Billing) Account(t *testing.T, code string) *ledgerdomain.Account {
	t.Helper()
	acc, err := b.Ledger.AccountByCode(context.Background(), b.DB, code)
	require.NoError(t, err)
	return acc
}
