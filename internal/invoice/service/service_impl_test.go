package service_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/ispbill/internal/invoice/service"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	"github.com/smallbiznis/ispbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func monthly(amount string) []domain.LineInput {
	return []domain.LineInput{{
		Name:      "Fiber 50M",
		Quantity:  decimal.NewFromInt(1),
		PriceUnit: decimal.RequireFromString(amount),
	}}
}

func TestCreateDraftDefaults(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	ctx := context.Background()
	parent := b.Partner(t, "Acme Corp", nil)
	child := b.Partner(t, "Acme Branch", &parent.ID)

	inv, err := b.Invoices.Create(ctx, b.DB, domain.CreateRequest{
		PartnerID: child.ID,
		MoveType:  domain.MoveTypeOutInvoice,
		Currency:  " usd ",
		Lines: []domain.LineInput{
			{Name: "Install", Quantity: decimal.NewFromInt(2), PriceUnit: decimal.RequireFromString("12.5")},
			{Name: "Router", Quantity: decimal.NewFromInt(1), PriceUnit: decimal.NewFromInt(40)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateDraft, inv.State)
	assert.Equal(t, domain.PaymentStateNotPaid, inv.PaymentState)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, parent.ID, inv.CommercialPartnerID)
	assert.True(t, inv.AmountTotal.Equal(decimal.NewFromInt(65)))
	assert.True(t, inv.AmountResidual.Equal(inv.AmountTotal))
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)

	lines, err := b.Invoices.Lines(ctx, b.DB, inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	income := b.Account(t, b.Policy.Get().Accounts.Income)
	for _, line := range lines {
		assert.Equal(t, income.ID, line.AccountID)
	}
}

func TestCreateValidation(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	partner := b.Partner(t, "Acme", nil)

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"missing partner", domain.CreateRequest{MoveType: domain.MoveTypeOutInvoice, Currency: "USD", Lines: monthly("10")}, domain.ErrInvalidPartner},
		{"journal entry", domain.CreateRequest{PartnerID: partner.ID, MoveType: domain.MoveTypeEntry, Currency: "USD", Lines: monthly("10")}, domain.ErrInvalidMoveType},
		{"no currency", domain.CreateRequest{PartnerID: partner.ID, MoveType: domain.MoveTypeOutInvoice, Lines: monthly("10")}, domain.ErrInvalidCurrency},
		{"no lines", domain.CreateRequest{PartnerID: partner.ID, MoveType: domain.MoveTypeOutInvoice, Currency: "USD"}, domain.ErrEmptyInvoice},
		{"negative price", domain.CreateRequest{PartnerID: partner.ID, MoveType: domain.MoveTypeOutInvoice, Currency: "USD", Lines: monthly("-1")}, domain.ErrInvalidPrice},
		{"zero quantity", domain.CreateRequest{PartnerID: partner.ID, MoveType: domain.MoveTypeOutInvoice, Currency: "USD", Lines: []domain.LineInput{{Name: "x", PriceUnit: decimal.NewFromInt(1)}}}, domain.ErrInvalidQuantity},
		{"unknown partner", domain.CreateRequest{PartnerID: 42, MoveType: domain.MoveTypeOutInvoice, Currency: "USD", Lines: monthly("10")}, partnerdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Invoices.Create(context.Background(), b.DB, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostWritesBalancedEntry(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	ctx := context.Background()
	partner := b.Partner(t, "Acme", nil)

	draft, err := b.Invoices.Create(ctx, b.DB, domain.CreateRequest{
		PartnerID: partner.ID,
		MoveType:  domain.MoveTypeOutInvoice,
		Currency:  "USD",
		Lines:     monthly("30"),
	})
	require.NoError(t, err)

	posted, err := b.Invoices.Post(ctx, b.DB, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePosted, posted.State)
	require.NotNil(t, posted.LedgerEntryID)
	require.NotNil(t, posted.PostedAt)

	payTerm, err := b.Ledger.PayTermLines(ctx, b.DB, *posted.LedgerEntryID)
	require.NoError(t, err)
	require.Len(t, payTerm, 1)
	assert.Equal(t, b.Account(t, b.Policy.Get().Accounts.Receivable).ID, payTerm[0].AccountID)
	assert.True(t, payTerm[0].AmountResidual.Equal(decimal.NewFromInt(30)))

	lines, err := b.Ledger.EntryLines(ctx, b.DB, *posted.LedgerEntryID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Balance())
	}
	assert.True(t, sum.IsZero())

	_, err = b.Invoices.Post(ctx, b.DB, draft.ID)
	require.ErrorIs(t, err, domain.ErrNotDraft)
}

func TestPostZeroTotalIsPaid(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	ctx := context.Background()
	partner := b.Partner(t, "Acme", nil)

	draft, err := b.Invoices.Create(ctx, b.DB, domain.CreateRequest{
		PartnerID: partner.ID,
		MoveType:  domain.MoveTypeOutInvoice,
		Currency:  "USD",
		Lines:     monthly("0"),
	})
	require.NoError(t, err)

	posted, err := b.Invoices.Post(ctx, b.DB, draft.ID)
	require.NoError(t, err)
	assert.True(t, posted.IsPaid())
	assert.Nil(t, posted.LedgerEntryID)
}

func TestRefreshPaymentStateFollowsResidual(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	ctx := context.Background()
	partner := b.Partner(t, "Acme", nil)

	draft, err := b.Invoices.Create(ctx, b.DB, domain.CreateRequest{
		PartnerID: partner.ID,
		MoveType:  domain.MoveTypeOutInvoice,
		Currency:  "USD",
		Lines:     monthly("100"),
	})
	require.NoError(t, err)
	posted, err := b.Invoices.Post(ctx, b.DB, draft.ID)
	require.NoError(t, err)

	refreshed, err := b.Invoices.RefreshPaymentState(ctx, b.DB, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateNotPaid, refreshed.PaymentState)

	require.NoError(t, b.DB.Table("ledger_entry_lines").
		Where("ledger_entry_id = ? AND direction = ?", *posted.LedgerEntryID, "debit").
		Update("amount_residual", decimal.NewFromInt(40)).Error)

	refreshed, err = b.Invoices.RefreshPaymentState(ctx, b.DB, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatePartial, refreshed.PaymentState)
	assert.True(t, refreshed.AmountResidual.Equal(decimal.NewFromInt(40)))

	open, err := b.Invoices.ListOpen(ctx, b.DB, partner.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, posted.ID, open[0].ID)
}

func TestFindByIDMissing(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	_, err := b.Invoices.FindByID(context.Background(), b.DB, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type captureRenderer struct {
	doc domain.Document
}

func (r *captureRenderer) Render(_ context.Context, doc domain.Document) (io.Reader, error) {
	r.doc = doc
	return bytes.NewBufferString("%PDF-1.4"), nil
}

func TestRenderPDF(t *testing.T) {
	b := testutil.NewBilling(t, fixedNow)
	ctx := context.Background()
	partner := b.Partner(t, "Jalan Raya Café", nil)

	renderer := &captureRenderer{}
	svc := invoiceservice.NewService(invoiceservice.Params{
		Log:         b.Log,
		GenID:       b.Node,
		Clock:       b.Clock,
		Policy:      b.Policy,
		Repo:        b.InvoiceRepo,
		PartnerRepo: b.PartnerRepo,
		Ledger:      b.Ledger,
		Renderer:    renderer,
	})

	inv, err := svc.Create(ctx, b.DB, domain.CreateRequest{
		PartnerID: partner.ID,
		MoveType:  domain.MoveTypeOutInvoice,
		Currency:  "IDR",
		Lines:     monthly("250000"),
	})
	require.NoError(t, err)

	out, err := svc.RenderPDF(ctx, b.DB, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoice-jalan-raya-cafe-"+inv.ID.String()+".pdf", out.FileName)

	body, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))

	assert.Equal(t, "Jalan Raya Café", renderer.doc.PartnerName)
	assert.Equal(t, "250000.00 IDR", renderer.doc.Total)
	require.Len(t, renderer.doc.Items, 1)
	assert.Equal(t, "Fiber 50M", renderer.doc.Items[0].Description)

	_, err = b.Invoices.RenderPDF(ctx, b.DB, inv.ID)
	require.ErrorIs(t, err, domain.ErrRendererMissing)
}
