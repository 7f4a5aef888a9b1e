package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// Repository runs the read-side aggregation queries. Reporting never opens a
// transaction and only reads ACTIVE ledger entries.
type Repository interface {
	AccountTotals(ctx context.Context, orgID int64, fiscalYear int, fiscalPeriod string) ([]AccountTotals, error)
	AccountLedger(ctx context.Context, orgID, accountID int64, from, to time.Time) ([]accounting.LedgerEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the reporting repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) AccountTotals(ctx context.Context, orgID int64, fiscalYear int, fiscalPeriod string) ([]AccountTotals, error) {
	query := `SELECT a.id, a.code, a.name, a.type, a.opening_balance::text,
COALESCE(SUM(le.amount) FILTER (WHERE le.side = 'DEBIT'), 0)::text,
COALESCE(SUM(le.amount) FILTER (WHERE le.side = 'CREDIT'), 0)::text
FROM accounts a
LEFT JOIN ledger_entries le ON le.account_id = a.id AND le.status = 'ACTIVE' AND le.fiscal_year = $2`
	args := []any{orgID, fiscalYear}
	if fiscalPeriod != "" {
		query += ` AND le.fiscal_period = $3`
		args = append(args, fiscalPeriod)
	}
	query += `
WHERE a.org_id = $1 AND a.deleted_at IS NULL AND NOT a.is_group
GROUP BY a.id, a.code, a.name, a.type, a.opening_balance
ORDER BY a.code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []AccountTotals
	for rows.Next() {
		var t AccountTotals
		var opening, debit, credit string
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &opening, &debit, &credit); err != nil {
			return nil, err
		}
		if t.Opening, err = decimal.NewFromString(opening); err != nil {
			return nil, fmt.Errorf("reports: parse opening: %w", err)
		}
		if t.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("reports: parse debit: %w", err)
		}
		if t.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("reports: parse credit: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *repository) AccountLedger(ctx context.Context, orgID, accountID int64, from, to time.Time) ([]accounting.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, org_id, account_id, voucher_id, voucher_number, voucher_type, entry_date, fiscal_year, fiscal_period, side, amount, running_balance, status, voided_at, voided_by, COALESCE(void_reason, ''), created_by, created_at
FROM ledger_entries
WHERE org_id = $1 AND account_id = $2 AND status = 'ACTIVE' AND entry_date >= $3 AND entry_date <= $4
ORDER BY entry_date, id`, orgID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []accounting.LedgerEntry
	for rows.Next() {
		var e accounting.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.AccountID, &e.VoucherID, &e.VoucherNumber, &e.VoucherType, &e.EntryDate, &e.FiscalYear, &e.FiscalPeriod, &e.Side, &e.Amount, &e.RunningBalance, &e.Status, &e.VoidedAt, &e.VoidedBy, &e.VoidReason, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
