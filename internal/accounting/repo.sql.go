package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the posting engine and
// the document posters run inside one database transaction.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error)
	GetAccountForUpdate(ctx context.Context, orgID, accountID int64) (Account, error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance float64, updatedAt time.Time) error
	InsertAccount(ctx context.Context, a Account) (Account, error)
	CountLedgerEntriesByAccount(ctx context.Context, orgID, accountID int64) (int64, error)
	CountChildAccounts(ctx context.Context, orgID, accountID int64) (int64, error)
	SoftDeleteAccount(ctx context.Context, orgID, accountID int64, deletedAt time.Time) error

	NextVoucherSequence(ctx context.Context, orgID int64, t VoucherType, fiscalYear int) (int64, error)
	InsertVoucher(ctx context.Context, v Voucher, sequence int64) (Voucher, error)
	GetVoucherForUpdate(ctx context.Context, orgID, voucherID int64) (Voucher, error)
	GetVoucherEntries(ctx context.Context, voucherID int64) ([]VoucherEntry, error)
	UpdateVoucherStatus(ctx context.Context, v Voucher) error
	SetVoucherEntryLedgerID(ctx context.Context, voucherEntryID, ledgerEntryID int64) error
	DeleteDraftVoucher(ctx context.Context, orgID, voucherID int64) error

	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	ListLedgerEntriesByVoucher(ctx context.Context, voucherID int64) ([]LedgerEntry, error)
	VoidLedgerEntry(ctx context.Context, entryID, actorID int64, reason string, at time.Time) error
	SumActiveEntriesByAccount(ctx context.Context, orgID, accountID int64) (debitTotal, creditTotal string, err error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so document posters sharing the
// same transaction can drive the posting engine.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, org_id, code, name, type, category, parent_id, level, is_group, opening_balance, current_balance, is_active, created_at, updated_at, deleted_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.Level, &a.IsGroup, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND code = $2 AND deleted_at IS NULL`, orgID, code)
	return scanAccount(row)
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, orgID, accountID int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`, orgID, accountID)
	return scanAccount(row)
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, accountID int64, balance float64, updatedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance = $2, updated_at = $3 WHERE id = $1`, accountID, balance, updatedAt)
	return err
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (org_id, code, name, type, category, parent_id, level, is_group, opening_balance, current_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		a.OrgID, a.Code, a.Name, a.Type, a.Category, a.ParentID, a.Level, a.IsGroup, a.OpeningBalance, a.CurrentBalance, a.IsActive)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isUniqueViolation(err, "uq_accounts_org_code") {
			return Account{}, ErrDuplicateAccountCode
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) CountLedgerEntriesByAccount(ctx context.Context, orgID, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE org_id = $1 AND account_id = $2`, orgID, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) CountChildAccounts(ctx context.Context, orgID, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE org_id = $1 AND parent_id = $2 AND deleted_at IS NULL`, orgID, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) SoftDeleteAccount(ctx context.Context, orgID, accountID int64, deletedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET deleted_at = $3, is_active = FALSE, updated_at = $3 WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL`, orgID, accountID, deletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) NextVoucherSequence(ctx context.Context, orgID int64, t VoucherType, fiscalYear int) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM vouchers WHERE org_id = $1 AND voucher_type = $2 AND fiscal_year = $3`, orgID, t, fiscalYear).Scan(&next)
	return next, err
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher, sequence int64) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO vouchers (org_id, number, sequence, voucher_type, date, fiscal_year, fiscal_period, narration, reference, source_module, source_id, total_debit, total_credit, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, created_at, updated_at`,
		v.OrgID, v.Number, sequence, v.Type, v.Date, v.FiscalYear, v.FiscalPeriod, v.Narration, v.Reference, v.SourceModule, v.SourceID, v.TotalDebit, v.TotalCredit, v.Status)
	if err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if isUniqueViolation(err, "uq_vouchers_org_type_fy_seq") {
			return Voucher{}, ErrVoucherNumberConflict
		}
		return Voucher{}, err
	}
	for i := range v.Entries {
		entry := &v.Entries[i]
		entry.VoucherID = v.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO voucher_entries (voucher_id, account_id, side, amount, description) VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
			v.ID, entry.AccountID, entry.Side, entry.Amount, entry.Description).Scan(&entry.ID, &entry.CreatedAt); err != nil {
			return Voucher{}, err
		}
	}
	return v, nil
}

func (r *txRepository) GetVoucherForUpdate(ctx context.Context, orgID, voucherID int64) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, org_id, number, voucher_type, date, fiscal_year, fiscal_period, narration, reference, source_module, source_id, total_debit, total_credit, status, posted_at, posted_by, voided_at, voided_by, COALESCE(void_reason, ''), created_at, updated_at
FROM vouchers WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, voucherID)
	var v Voucher
	err := row.Scan(&v.ID, &v.OrgID, &v.Number, &v.Type, &v.Date, &v.FiscalYear, &v.FiscalPeriod, &v.Narration, &v.Reference, &v.SourceModule, &v.SourceID, &v.TotalDebit, &v.TotalCredit, &v.Status, &v.PostedAt, &v.PostedBy, &v.VoidedAt, &v.VoidedBy, &v.VoidReason, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, ErrVoucherNotFound
	}
	return v, err
}

func (r *txRepository) GetVoucherEntries(ctx context.Context, voucherID int64) ([]VoucherEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, voucher_id, account_id, side, amount, description, ledger_entry_id, created_at FROM voucher_entries WHERE voucher_id = $1 ORDER BY id`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []VoucherEntry
	for rows.Next() {
		var e VoucherEntry
		if err := rows.Scan(&e.ID, &e.VoucherID, &e.AccountID, &e.Side, &e.Amount, &e.Description, &e.LedgerEntryID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) UpdateVoucherStatus(ctx context.Context, v Voucher) error {
	_, err := r.tx.Exec(ctx, `UPDATE vouchers SET status = $2, posted_at = $3, posted_by = $4, voided_at = $5, voided_by = $6, void_reason = $7, updated_at = $8 WHERE id = $1`,
		v.ID, v.Status, v.PostedAt, v.PostedBy, v.VoidedAt, v.VoidedBy, nullString(v.VoidReason), v.UpdatedAt)
	return err
}

func (r *txRepository) SetVoucherEntryLedgerID(ctx context.Context, voucherEntryID, ledgerEntryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE voucher_entries SET ledger_entry_id = $2 WHERE id = $1`, voucherEntryID, ledgerEntryID)
	return err
}

func (r *txRepository) DeleteDraftVoucher(ctx context.Context, orgID, voucherID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM vouchers WHERE org_id = $1 AND id = $2 AND status = 'DRAFT'`, orgID, voucherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (org_id, account_id, voucher_id, voucher_number, voucher_type, entry_date, fiscal_year, fiscal_period, side, amount, running_balance, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at`,
		e.OrgID, e.AccountID, e.VoucherID, e.VoucherNumber, e.VoucherType, e.EntryDate, e.FiscalYear, e.FiscalPeriod, e.Side, e.Amount, e.RunningBalance, e.Status, e.CreatedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

func (r *txRepository) ListLedgerEntriesByVoucher(ctx context.Context, voucherID int64) ([]LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, org_id, account_id, voucher_id, voucher_number, voucher_type, entry_date, fiscal_year, fiscal_period, side, amount, running_balance, status, voided_at, voided_by, COALESCE(void_reason, ''), created_by, created_at
FROM ledger_entries WHERE voucher_id = $1 ORDER BY id`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.AccountID, &e.VoucherID, &e.VoucherNumber, &e.VoucherType, &e.EntryDate, &e.FiscalYear, &e.FiscalPeriod, &e.Side, &e.Amount, &e.RunningBalance, &e.Status, &e.VoidedAt, &e.VoidedBy, &e.VoidReason, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) VoidLedgerEntry(ctx context.Context, entryID, actorID int64, reason string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_entries SET status = 'VOID', voided_at = $2, voided_by = $3, void_reason = $4 WHERE id = $1 AND status = 'ACTIVE'`, entryID, at, actorID, reason)
	return err
}

func (r *txRepository) SumActiveEntriesByAccount(ctx context.Context, orgID, accountID int64) (string, string, error) {
	var debit, credit string
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(amount) FILTER (WHERE side = 'DEBIT'), 0)::text,
COALESCE(SUM(amount) FILTER (WHERE side = 'CREDIT'), 0)::text
FROM ledger_entries WHERE org_id = $1 AND account_id = $2 AND status = 'ACTIVE'`, orgID, accountID).Scan(&debit, &credit)
	return debit, credit, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
