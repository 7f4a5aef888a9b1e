package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// Repository provides non-transactional reads over the chart of accounts.
type Repository interface {
	List(ctx context.Context, orgID int64) ([]accounting.Account, error)
	GetByCode(ctx context.Context, orgID int64, code string) (accounting.Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the read repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, org_id, code, name, type, category, parent_id, level, is_group, opening_balance, current_balance, is_active, created_at, updated_at, deleted_at`

func (r *repository) List(ctx context.Context, orgID int64) ([]accounting.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND deleted_at IS NULL ORDER BY code`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []accounting.Account
	for rows.Next() {
		var a accounting.Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.Level, &a.IsGroup, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, orgID int64, code string) (accounting.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND code = $2 AND deleted_at IS NULL`, orgID, code)
	var a accounting.Account
	err := row.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.Level, &a.IsGroup, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, err
}
