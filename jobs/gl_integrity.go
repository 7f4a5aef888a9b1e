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

// GLIntegrityJob verifies that active ledger entries stay balanced: the sum
// of debits must equal the sum of credits for every organization, at all
// times. Drift means a posting escaped its transaction boundary.
type GLIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewGLIntegrityJob initialises the integrity sweep handler.
func NewGLIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity sweep.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	query := `SELECT org_id,
COALESCE(SUM(amount) FILTER (WHERE side = 'DEBIT'), 0)::text,
COALESCE(SUM(amount) FILTER (WHERE side = 'CREDIT'), 0)::text
FROM ledger_entries
WHERE status = 'ACTIVE'`
	args := []any{}
	if payload.OrgID > 0 {
		query += ` AND org_id = $1`
		args = append(args, payload.OrgID)
	}
	query += ` GROUP BY org_id ORDER BY org_id`

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	checked := 0
	drifted := 0
	for rows.Next() {
		var orgID int64
		var debitStr, creditStr string
		if err := rows.Scan(&orgID, &debitStr, &creditStr); err != nil {
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
		checked++
		if !debit.Equal(credit) {
			drifted++
			j.Metrics.ObserveGLDrift()
			j.Logger.Error("ledger out of balance",
				slog.Int64("org_id", orgID),
				slog.String("total_debit", debit.String()),
				slog.String("total_credit", credit.String()),
				slog.String("difference", debit.Sub(credit).String()),
			)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	j.Logger.Info("gl integrity sweep finished",
		slog.Int("organizations", checked),
		slog.Int("out_of_balance", drifted),
	)
	return nil
}
