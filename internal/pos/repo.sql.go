package pos

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

// NewRepository constructs the walk-in sale repository.
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

const saleColumns = `id, org_id, external_id, number, sale_date, subtotal, discount_amount, taxable_amount, total_tax, shipping_charges, other_charges, total_amount, status, is_posted, voucher_id, posted_at, posted_by, COALESCE(cash_account_code, ''), COALESCE(revenue_account_code, ''), COALESCE(tax_account_code, ''), created_by, created_at, updated_at, deleted_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.OrgID, &s.ExternalID, &s.Number, &s.SaleDate,
		&s.Subtotal, &s.DiscountAmount, &s.TaxableAmount, &s.TotalTax, &s.ShippingCharges, &s.OtherCharges, &s.TotalAmount,
		&s.Status, &s.IsPosted, &s.VoucherID, &s.PostedAt, &s.PostedBy,
		&s.CashAccountCode, &s.RevenueAccountCode, &s.TaxAccountCode,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return s, err
}

func (r *txRepository) NextSaleSequence(ctx context.Context, orgID int64, year int) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM walkin_sales WHERE org_id = $1 AND fiscal_year = $2`, orgID, year).Scan(&next)
	return next, err
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale, sequence int64) (Sale, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO walkin_sales (org_id, external_id, number, sequence, fiscal_year, sale_date, subtotal, discount_amount, taxable_amount, total_tax, shipping_charges, other_charges, total_amount, status, cash_account_code, revenue_account_code, tax_account_code, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18) RETURNING id, created_at, updated_at`,
		sale.OrgID, sale.ExternalID, sale.Number, sequence, sale.SaleDate.Year(), sale.SaleDate,
		sale.Subtotal, sale.DiscountAmount, sale.TaxableAmount, sale.TotalTax, sale.ShippingCharges, sale.OtherCharges, sale.TotalAmount,
		sale.Status, nullIfEmpty(sale.CashAccountCode), nullIfEmpty(sale.RevenueAccountCode), nullIfEmpty(sale.TaxAccountCode), sale.CreatedBy)
	if err := row.Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Sale{}, errNumberConflict
		}
		return Sale{}, err
	}
	for i := range sale.Lines {
		line := &sale.Lines[i]
		line.SaleID = sale.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO walkin_sale_lines (sale_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, subtotal, tax_amount, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
			sale.ID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPct, line.TaxPct, line.Subtotal, line.TaxAmount, line.Total).Scan(&line.ID, &line.CreatedAt); err != nil {
			return Sale{}, err
		}
	}
	return sale, nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, orgID, saleID int64) (Sale, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM walkin_sales WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`, orgID, saleID)
	return scanSale(row)
}

func (r *txRepository) MarkSalePosted(ctx context.Context, saleID, voucherID, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE walkin_sales SET status = 'POSTED', is_posted = TRUE, voucher_id = $2, posted_at = $3, posted_by = $4, updated_at = $3 WHERE id = $1`,
		saleID, voucherID, at, actorID)
	return err
}

func (r *txRepository) UpdateSaleStatus(ctx context.Context, saleID int64, status SaleStatus, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE walkin_sales SET status = $2, updated_at = $3 WHERE id = $1`, saleID, status, at)
	return err
}

func (r *repository) GetSale(ctx context.Context, orgID, saleID int64) (Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM walkin_sales WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL`, orgID, saleID)
	sale, err := scanSale(row)
	if err != nil {
		return Sale{}, err
	}
	lines, err := querySaleLines(ctx, r.pool, saleID)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines
	return sale, nil
}

func (r *repository) ListSales(ctx context.Context, orgID int64, status SaleStatus, limit, offset int) ([]Sale, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + saleColumns + ` FROM walkin_sales WHERE org_id = $1 AND deleted_at IS NULL`
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
	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func querySaleLines(ctx context.Context, pool *pgxpool.Pool, saleID int64) ([]SaleLine, error) {
	rows, err := pool.Query(ctx, `SELECT id, sale_id, product_id, description, quantity, unit_price, discount_pct, tax_pct, subtotal, tax_amount, total, created_at FROM walkin_sale_lines WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []SaleLine
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.TaxPct, &l.Subtotal, &l.TaxAmount, &l.Total, &l.CreatedAt); err != nil {
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
