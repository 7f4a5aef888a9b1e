package ap

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// errNumberConflict signals a lost race on invoice number allocation.
var errNumberConflict = errors.New("ap: invoice number conflict")

// Repository abstracts purchase invoice persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	ListInvoices(ctx context.Context, orgID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error)
}

// TxRepository exposes the writes that share the posting transaction.
type TxRepository interface {
	Accounting() accounting.TxRepository
	NextInvoiceSequence(ctx context.Context, orgID int64, year int) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice, sequence int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	GetInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error)
	GetGRNLineQuantities(ctx context.Context, orgID, grnID int64) (map[int64]float64, error)
	UpdateLineMatchStatus(ctx context.Context, lineID int64, status MatchStatus) error
	UpdateInvoiceMatch(ctx context.Context, invoiceID int64, status InvoiceStatus, match MatchStatus, at time.Time) error
	MarkInvoicePosted(ctx context.Context, invoiceID, voucherID, actorID int64, at time.Time) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus, at time.Time) error
	AdjustSupplierBalance(ctx context.Context, orgID, supplierID int64, delta float64, at time.Time) error
}
