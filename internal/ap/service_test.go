package ap

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
	suppliers     map[int64]float64
	grnQuantities map[int64]map[int64]float64
	sequences     map[int]int64
	nextInvoiceID int64
	nextLineID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:        accountingtest.NewLedger(),
		invoices:      make(map[int64]*Invoice),
		lines:         make(map[int64][]InvoiceLine),
		suppliers:     make(map[int64]float64),
		grnQuantities: make(map[int64]map[int64]float64),
		sequences:     make(map[int]int64),
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
	for i := range inv.Lines {
		tx.repo.nextLineID++
		inv.Lines[i].ID = tx.repo.nextLineID
		inv.Lines[i].InvoiceID = inv.ID
	}
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

func (tx *memoryTx) GetGRNLineQuantities(_ context.Context, _, grnID int64) (map[int64]float64, error) {
	quantities, ok := tx.repo.grnQuantities[grnID]
	if !ok {
		return nil, ErrGRNNotFound
	}
	out := make(map[int64]float64, len(quantities))
	for k, v := range quantities {
		out[k] = v
	}
	return out, nil
}

func (tx *memoryTx) UpdateLineMatchStatus(_ context.Context, lineID int64, status MatchStatus) error {
	for _, lines := range tx.repo.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				lines[i].MatchStatus = status
				return nil
			}
		}
	}
	return ErrInvoiceNotFound
}

func (tx *memoryTx) UpdateInvoiceMatch(_ context.Context, invoiceID int64, status InvoiceStatus, match MatchStatus, at time.Time) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	inv.MatchStatus = match
	inv.UpdatedAt = at
	return nil
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

func (tx *memoryTx) AdjustSupplierBalance(_ context.Context, _, supplierID int64, delta float64, _ time.Time) error {
	tx.repo.suppliers[supplierID] += delta
	return nil
}

func testService(repo *memoryRepo) *Service {
	engine := accounting.NewEngine(0.01, shared.DefaultFiscalYearStartMonth)
	engine.WithNow(func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) })
	svc := NewService(repo, engine, accountingtest.ProfileStub{}, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) })
	return svc
}

func int64ptr(v int64) *int64 { return &v }

func TestMatchLines(t *testing.T) {
	lines := []InvoiceLine{
		{ID: 1, GRNLineID: int64ptr(11), Quantity: 10},
		{ID: 2, GRNLineID: int64ptr(12), Quantity: 4},
		{ID: 3, Quantity: 1}, // service charge without GRN link
	}
	received := map[int64]float64{11: 10, 12: 4.005}

	results, overall := MatchLines(lines, received)
	require.Equal(t, MatchMatched, overall)
	require.Len(t, results, 3)
	for _, res := range results {
		require.Equal(t, MatchMatched, res.Status)
	}

	// One line drifting past the tolerance flips the whole invoice.
	received[12] = 3.5
	results, overall = MatchLines(lines, received)
	require.Equal(t, MatchMismatched, overall)
	require.Equal(t, MatchMatched, results[0].Status)
	require.Equal(t, MatchMismatched, results[1].Status)
	require.Equal(t, MatchMatched, results[2].Status)

	// A GRN line the receipt never recorded is a mismatch.
	delete(received, 11)
	_, overall = MatchLines(lines, received)
	require.Equal(t, MatchMismatched, overall)
}

func TestCreateInvoiceNumbering(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		OrgID:       1,
		SupplierID:  20,
		InvoiceDate: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Lines:       []CreateInvoiceLineInput{{Description: "Stock", Quantity: 10, UnitPrice: 125.5, TaxPct: 18}},
	})
	require.NoError(t, err)
	require.Equal(t, "PINV-2026-00001", inv.Number)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, MatchPending, inv.MatchStatus)
	require.InDelta(t, 1255, inv.TaxableAmount, 0.0001)
	require.InDelta(t, 225.9, inv.TotalTax, 0.0001)
	require.InDelta(t, 1480.9, inv.TotalAmount, 0.0001)
}

func TestCreateInvoiceRejectsOrphanGRNLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		OrgID:      1,
		SupplierID: 20,
		Lines:      []CreateInvoiceLineInput{{GRNLineID: int64ptr(11), Quantity: 1, UnitPrice: 10}},
	})
	require.Error(t, err)
}

func TestVerifyInvoiceRecordsMatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.grnQuantities[5] = map[int64]float64{11: 10}
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		SupplierID: 20,
		GRNID:      int64ptr(5),
		Lines:      []CreateInvoiceLineInput{{GRNLineID: int64ptr(11), Quantity: 10, UnitPrice: 100}},
	})
	require.NoError(t, err)

	verified, results, err := svc.VerifyInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, verified.Status)
	require.Equal(t, MatchMatched, verified.MatchStatus)
	require.Len(t, results, 1)
	require.InDelta(t, 10, results[0].ReceivedQuantity, 0.0001)
	require.Equal(t, MatchMatched, repo.lines[inv.ID][0].MatchStatus)

	// Verify is repeatable while the invoice stays verified.
	_, _, err = svc.VerifyInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
}

func TestVerifyInvoiceMissingGRN(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		SupplierID: 20,
		GRNID:      int64ptr(99),
		Lines:      []CreateInvoiceLineInput{{GRNLineID: int64ptr(11), Quantity: 10, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, _, err = svc.VerifyInvoice(ctx, 1, inv.ID, 7)
	require.ErrorIs(t, err, ErrGRNNotFound)
}

func TestApproveInvoiceGatedByMatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.grnQuantities[5] = map[int64]float64{11: 8} // short receipt
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		SupplierID: 20,
		GRNID:      int64ptr(5),
		Lines:      []CreateInvoiceLineInput{{GRNLineID: int64ptr(11), Quantity: 10, UnitPrice: 100}},
	})
	require.NoError(t, err)

	// Approving before verification is rejected.
	_, err = svc.ApproveInvoice(ctx, 1, inv.ID, 7, false)
	require.ErrorIs(t, err, ErrInvalidStatus)

	verified, _, err := svc.VerifyInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, MatchMismatched, verified.MatchStatus)

	// A mismatched invoice needs the human override.
	_, err = svc.ApproveInvoice(ctx, 1, inv.ID, 7, false)
	require.ErrorIs(t, err, ErrInvalidStatus)

	approved, err := svc.ApproveInvoice(ctx, 1, inv.ID, 7, true)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestPostInvoiceWritesBalancedVoucher(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:       1,
		SupplierID:  20,
		InvoiceDate: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Lines:       []CreateInvoiceLineInput{{Description: "Stock", Quantity: 10, UnitPrice: 100, TaxPct: 18}},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.VoucherID)

	// Expense and input tax debited, payable credited for the grand total.
	require.InDelta(t, 1000, repo.ledger.BalanceByCode("5001"), 0.0001)
	require.InDelta(t, 180, repo.ledger.BalanceByCode("1300"), 0.0001)
	require.InDelta(t, 1180, repo.ledger.BalanceByCode("2100"), 0.0001)
	require.InDelta(t, 1180, repo.suppliers[20], 0.0001)

	voucher := repo.ledger.Vouchers[*posted.VoucherID]
	require.Equal(t, "AP", voucher.SourceModule)
	require.InDelta(t, voucher.TotalDebit, voucher.TotalCredit, 0.0001)

	_, err = svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyPosted)
}

func TestVoidInvoiceReversesPosting(t *testing.T) {
	repo := newMemoryRepo()
	repo.ledger.SeedPostingAccounts()
	svc := testService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		OrgID:      1,
		SupplierID: 20,
		Lines:      []CreateInvoiceLineInput{{Quantity: 10, UnitPrice: 100, TaxPct: 18}},
	})
	require.NoError(t, err)

	posted, err := svc.PostInvoice(ctx, 1, inv.ID, 7)
	require.NoError(t, err)

	voided, err := svc.VoidInvoice(ctx, 1, posted.ID, 8, "returned goods")
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	require.InDelta(t, 0, repo.ledger.BalanceByCode("5001"), 0.0001)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("1300"), 0.0001)
	require.InDelta(t, 0, repo.ledger.BalanceByCode("2100"), 0.0001)
	require.InDelta(t, 0, repo.suppliers[20], 0.0001)

	// Voided invoices can be neither voided again nor re-posted.
	_, err = svc.VoidInvoice(ctx, 1, posted.ID, 8, "again")
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.PostInvoice(ctx, 1, posted.ID, 8)
	require.ErrorIs(t, err, ErrAlreadyPosted)
}
