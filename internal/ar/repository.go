package ar

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// errNumberConflict signals a lost race on invoice number allocation; the
// creating transaction is retried.
var errNumberConflict = errors.New("ar: invoice number conflict")

// Repository abstracts sales invoice persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	ListInvoices(ctx context.Context, orgID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error)
}

// TxRepository exposes the writes that share the posting transaction. The
// Accounting handle drives the posting engine on the same transaction so the
// document update, voucher, ledger rows, and balances commit or roll back
// together.
type TxRepository interface {
	Accounting() accounting.TxRepository
	NextInvoiceSequence(ctx context.Context, orgID int64, year int) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice, sequence int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error)
	GetInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error)
	MarkInvoicePosted(ctx context.Context, invoiceID, voucherID, actorID int64, at time.Time) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus, at time.Time) error
	AdjustCustomerBalance(ctx context.Context, orgID, customerID int64, delta float64, at time.Time) error
}
