package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the sales invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, acct: accounting.NewTxRepository(tx)}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx   pgx.Tx
	acct accounting.TxRepository
}

func (r *txRepository) Accounting() accounting.TxRepository {
	return r.acct
}

const invoiceColumns = `id, org_id, external_id, number, customer_id, invoice_date, due_date, subtotal, discount_amount, taxable_amount, total_tax, shipping_charges, other_charges, total_amount, status, is_posted, voucher_id, posted_at, posted_by, COALESCE(receivable_account_code, ''), COALESCE(revenue_account_code, ''), COALESCE(tax_account_code, ''), created_by, created_at, updated_at, deleted_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.ExternalID, &inv.Number, &inv.CustomerID, &inv.InvoiceDate, &inv.DueDate,
		&inv.Subtotal, &inv.DiscountAmount, &inv.TaxableAmount, &inv.TotalTax, &inv.ShippingCharges, &inv.OtherCharges, &inv.TotalAmount,
		&inv.Status, &inv.IsPosted, &inv.VoucherID, &inv.PostedAt, &inv.PostedBy,
		&inv.ReceivableAccountCode, &inv.RevenueAccountCode, &inv.TaxAccountCode,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *txRepository) NextInvoiceSequence(ctx context.Context, orgID int64, year int) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM sales_invoices WHERE org_id = $1 AND fiscal_year = $2`, orgID, year).Scan(&next)
	return next, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice, sequence int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO sales_invoices (org_id, external_id, number, sequence, fiscal_year, customer_id, invoice_date, due_date, subtotal, discount_amount, taxable_amount, total_tax, shipping_charges, other_charges, total_amount, status, receivable_account_code, revenue_account_code, tax_account_code, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20) RETURNING id, created_at, updated_at`,
		inv.OrgID, inv.ExternalID, inv.Number, sequence, numberYearOf(inv.InvoiceDate), inv.CustomerID, inv.InvoiceDate, inv.DueDate,
		inv.Subtotal, inv.DiscountAmount, inv.TaxableAmount, inv.TotalTax, inv.ShippingCharges, inv.OtherCharges, inv.TotalAmount,
		inv.Status, nullIfEmpty(inv.ReceivableAccountCode), nullIfEmpty(inv.RevenueAccountCode), nullIfEmpty(inv.TaxAccountCode), inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Invoice{}, errNumberConflict
		}
		return Invoice{}, err
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.InvoiceID = inv.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO sales_invoice_lines (invoice_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, subtotal, tax_amount, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
			inv.ID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct, line.Subtotal, line.TaxAmount, line.Total).Scan(&line.ID, &line.CreatedAt); err != nil {
			return Invoice{}, err
		}
	}
	return inv, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`, orgID, invoiceID)
	return scanInvoice(row)
}

func (r *txRepository) GetInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	return queryInvoiceLines(ctx, r.tx, invoiceID)
}

func (r *txRepository) MarkInvoicePosted(ctx context.Context, invoiceID, voucherID, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status = 'POSTED', is_posted = TRUE, voucher_id = $2, posted_at = $3, posted_by = $4, updated_at = $3 WHERE id = $1`,
		invoiceID, voucherID, at, actorID)
	return err
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status = $2, updated_at = $3 WHERE id = $1`, invoiceID, status, at)
	return err
}

func (r *txRepository) AdjustCustomerBalance(ctx context.Context, orgID, customerID int64, delta float64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE customers SET balance = balance + $3, updated_at = $4 WHERE org_id = $1 AND id = $2`, orgID, customerID, delta, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ar: customer %d not found", customerID)
	}
	return nil
}

func (r *repository) GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL`, orgID, invoiceID)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, err
	}
	lines, err := queryInvoiceLines(ctx, r.pool, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *repository) ListInvoices(ctx context.Context, orgID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + invoiceColumns + ` FROM sales_invoices WHERE org_id = $1 AND deleted_at IS NULL`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryInvoiceLines(ctx context.Context, q queryer, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, subtotal, tax_amount, total, created_at FROM sales_invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.TaxPct, &l.Subtotal, &l.TaxAmount, &l.Total, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func numberYearOf(t time.Time) int {
	return t.Year()
}
