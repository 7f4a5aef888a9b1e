package ar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/accounting/accountingtest"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	ledger        *accountingtest.Ledger
	invoices      map[int64]*Invoice
	lines         map[int64][]InvoiceLine
	customers     map[int64]float64
	sequences     map[int]int64
	nextInvoiceID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:    accountingtest.NewLedger(),
		invoices:  make(map[int64]*Invoice),
		lines:     make(map[int64][]InvoiceLine),
		customers: make(map[int64]float64),
		sequences: make(map[int]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetInvoice(_ context.Context, orgID, invoiceID int64) (Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok || inv.OrgID != orgID {
		return Invoice{}, ErrInvoiceNotFound
	}
	out := *inv
	out.Lines = append([]InvoiceLine(nil), r.lines[invoiceID]...)
	return out, nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, orgID int64, status InvoiceStatus, _, _ int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.OrgID != orgID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (tx *memoryTx) Accounting() accounting.TxRepository {
	return tx.repo.ledger.Tx()
}

func (tx *memoryTx) NextInvoiceSequence(_ context.Context, _ int64, year int) (int64, error) {
	tx.repo.sequences[year]++
	return tx.repo.sequences[year], nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv Invoice, _ int64) (Invoice, error) {
	tx.repo.nextInvoiceID++
	inv.ID = tx.repo.nextInvoiceID
	stored := inv
	tx.repo.invoices[inv.ID] = &stored
	tx.repo.lines[inv.ID] = append([]InvoiceLine(nil), inv.Lines...)
	return inv, nil
}

func (tx *memoryTx) GetInvoiceForUpdate(_ context.Context, orgID, invoiceID int64) (Invoice, error) {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok || inv.OrgID != orgID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

func (tx *memoryTx) GetInvoiceLines(_ context.Context, invoiceID int64) ([]InvoiceLine, error) {
	return append([]InvoiceLine(nil), tx.repo.lines[invoiceID]...), nil
}

func (tx *memoryTx) MarkInvoicePosted(_ context.Context, invoiceID, voucherID, actorID int64, at time.Time) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = StatusPosted
	inv.IsPosted = true
	inv.VoucherID = &voucherID
	inv.PostedAt = &at
	inv.PostedBy = &actorID
	return nil
}

func (tx *memoryTx) UpdateInvoiceStatus(_ context.Context, invoiceID int64, status InvoiceStatus, at time.Time) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	inv.UpdatedAt = at
	return nil
}

func (tx *memoryTx) AdjustCustomerBalance(_ context.Context, _, customerID int64, delta float64, _ time.Time) error {
	tx.repo.customers[customerID] += delta
	return nil
}

func testService(repo *memoryRepo) *Service {
	engine := accounting.NewEngine(0.01, shared.DefaultFiscalYearStartMonth)
	engine.WithNow(func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) })
	svc := NewService(repo, engine, accountingtest.ProfileStub{}, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) })
	return svc
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		OrgID:       1,
		CustomerID:  10,
		InvoiceDate: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Lines: []CreateInvoiceLineInput{
			{Description: "Widgets", Quantity: 10, UnitPrice: 100, TaxPct: 18},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-2026-00001", inv.Number)
	require.Equal(t, StatusDraft, inv.Status)
	require.InDelta(t, 1000, inv.Subtotal, 0.0001)
	require.InDelta(t, 1000, inv.TaxableAmount, 0.0001)
	require.InDelta(t, 180, inv.TotalTax, 0.0001)
	require.InDelta(t, 1180, inv.TotalAmount, 0.0001)
	require.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)
}

func TestCreateInvoiceAppliesLineDiscounts(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		OrgID:      1,
		CustomerID: 10,
		Lines: []CreateInvoiceLineInput{
			{Description: "Gadgets", Quantity: 4, UnitPrice: 250, DiscountPct: 10, TaxPct: 18},
		},
		ShippingCharges: 50,
	})
	require.NoError(t, err)
	require.InDelta(t, 1000, inv.Subtotal, 0.0001)
	require.InDelta(t, 100, inv.DiscountAmount, 0.0001)
	require.InDelta(t, 900, inv.TaxableAmount, 0.0001)
	require.InDelta(t, 162, inv.TotalTax, 0.0001)
	require.InDelta(t, 1112, inv.TotalAmount, 0.0001)
}

func TestCreateInvoiceValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{OrgID: 1, Lines: []CreateInvoiceLineInput{{Quantity: 1, UnitPrice: 1}}})
	require.Error(t, err)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{OrgID: 1, CustomerID: 10})
	require.Error(t, err)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID: 1, CustomerID: 10,
		Lines: []CreateInvoiceLineInput{{Quantity: 0, UnitPrice: 10}},
	})
	require.Error(t, err)
}

func TestPostInvoiceWritesBalancedVoucher(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:       1,
		CustomerID:  10,
		InvoiceDate: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Lines: []CreateInvoiceLineInput{
			{Description: "Widgets", Quantity: 10, UnitPrice: 100, TaxPct: 18},
		},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.True(t, posted.IsPosted)
	require.NotNil(t, posted.VoucherID)

	// Receivable debited for the grand total, revenue and tax credited.
	require.InDelta(t, 1180, repo.ledger.BalanceByCode("1200"), 0.0001)
	require.InDelta(t, 1000, repo.ledger.BalanceByCode("4001"), 0.0001)
	require.InDelta(t, 180, repo.ledger.BalanceByCode("2102"), 0.0001)
	require.InDelta(t, 1180, repo.customers[10], 0.0001)

	voucher := repo.ledger.Vouchers[*posted.VoucherID]
	require.Equal(t, accounting.VoucherStatusPosted, voucher.Status)
	require.Equal(t, accounting.VoucherTypeJournal, voucher.Type)
	require.Equal(t, "AR", voucher.SourceModule)
	require.Equal(t, posted.ExternalID, voucher.SourceID)
	require.InDelta(t, voucher.TotalDebit, voucher.TotalCredit, 0.0001)
}

func TestPostInvoiceSkipsTaxLineWhenZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		CustomerID: 10,
		Lines:      []CreateInvoiceLineInput{{Description: "Export order", Quantity: 2, UnitPrice: 500}},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.Len(t, repo.ledger.VoucherEntries[*posted.VoucherID], 2)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("2102"), 0.0001)
}

func TestPostInvoiceGuards(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		CustomerID: 10,
		Lines:      []CreateInvoiceLineInput{{Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, err = svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)

	// Posting twice is rejected and leaves balances untouched.
	_, err = svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyPosted)
	require.InDelta(t, 100, repo.ledger.BalanceByCode("1200"), 0.0001)

	_, err = svc.PostInvoice(ctx, 1, 999, 7)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestPostInvoiceHonorsAccountOverrides(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	other := repo.ledger.AddAccount(accounting.Account{Code: "4002", Name: "Service Revenue", Type: accounting.AccountTypeRevenue, IsActive: true})
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:              1,
		CustomerID:         10,
		RevenueAccountCode: "4002",
		Lines:              []CreateInvoiceLineInput{{Quantity: 1, UnitPrice: 200}},
	})
	require.NoError(t, err)

	_, err = svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.InDelta(t, 200, repo.ledger.Accounts[other.ID].CurrentBalance, 0.0001)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("4001"), 0.0001)
}

func TestPostInvoiceMissingAccountIsConfigurationError(t *testing.T) {
	repo := newMemoryRepo()
	// No chart seeded: the receivable default cannot resolve.
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		CustomerID: 10,
		Lines:      []CreateInvoiceLineInput{{Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, err = svc.PostInvoice(ctx, 1, inv.ID, 7)
	var cfgErr *accounting.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "1200", cfgErr.Code)
}

func TestVoidInvoiceReversesPosting(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		CustomerID: 10,
		Lines:      []CreateInvoiceLineInput{{Quantity: 10, UnitPrice: 100, TaxPct: 18}},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)

	voided, err := svc.VoidInvoice(ctx, 1, posted.ID, 8, "duplicate billing")
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	require.InDelta(t, 0, repo.ledger.BalanceByCode("1200"), 0.0001)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("4001"), 0.0001)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("2102"), 0.0001)
	require.InDelta(t, 0, repo.customers[10], 0.0001)

	// Only posted invoices can be voided.
	_, err = svc.VoidInvoice(ctx, 1, posted.ID, 8, "again")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
