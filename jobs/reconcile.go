package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// ReconcileJob recomputes cached account balances from active ledger entries
// and optionally repairs accounts that drifted. Cached balances are a
// convenience; the ledger is the source of truth.
type ReconcileJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *ReconcileJob {
	return &ReconcileJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the reconciliation pass for one organization.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrgID <= 0 {
		return asynq.SkipRetry
	}

	rows, err := j.Pool.Query(ctx, `SELECT a.id, a.code, a.type, a.opening_balance::text, a.current_balance::text,
COALESCE(SUM(le.amount) FILTER (WHERE le.side = 'DEBIT'), 0)::text,
COALESCE(SUM(le.amount) FILTER (WHERE le.side = 'CREDIT'), 0)::text
FROM accounts a
LEFT JOIN ledger_entries le ON le.account_id = a.id AND le.status = 'ACTIVE'
WHERE a.org_id = $1 AND a.deleted_at IS NULL AND NOT a.is_group
GROUP BY a.id, a.code, a.type, a.opening_balance, a.current_balance
ORDER BY a.code`, payload.OrgID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type driftedAccount struct {
		id       int64
		code     string
		expected decimal.Decimal
		drift    decimal.Decimal
	}
	var drifted []driftedAccount
	checked := 0
	for rows.Next() {
		var (
			id                                    int64
			code, accountType                     string
			opening, current, debitStr, creditStr string
		)
		if err := rows.Scan(&id, &code, &accountType, &opening, &current, &debitStr, &creditStr); err != nil {
			return err
		}
		openingDec, err := decimal.NewFromString(opening)
		if err != nil {
			return err
		}
		currentDec, err := decimal.NewFromString(current)
		if err != nil {
			return err
		}
		debit, err := decimal.NewFromString(debitStr)
		if err != nil {
			return err
		}
		credit, err := decimal.NewFromString(creditStr)
		if err != nil {
			return err
		}

		var expected decimal.Decimal
		if accountType == "ASSET" || accountType == "EXPENSE" {
			expected = openingDec.Add(debit).Sub(credit)
		} else {
			expected = openingDec.Add(credit).Sub(debit)
		}
		checked++
		if drift := expected.Sub(currentDec); !drift.IsZero() {
			drifted = append(drifted, driftedAccount{id: id, code: code, expected: expected, drift: drift})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, acc := range drifted {
		j.Metrics.ObserveGLDrift()
		j.Logger.Warn("cached balance drifted from ledger",
			slog.Int64("org_id", payload.OrgID),
			slog.String("code", acc.code),
			slog.String("drift", acc.drift.String()),
		)
		if payload.Repair {
			if _, err := j.Pool.Exec(ctx, `UPDATE accounts SET current_balance = $2, updated_at = now() WHERE id = $1`,
				acc.id, acc.expected.InexactFloat64()); err != nil {
				return err
			}
		}
	}

	j.Logger.Info("balance reconciliation finished",
		slog.Int64("org_id", payload.OrgID),
		slog.Int("accounts", checked),
		slog.Int("drifted", len(drifted)),
		slog.Bool("repaired", payload.Repair && len(drifted) > 0),
	)
	return nil
}
