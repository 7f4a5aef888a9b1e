package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// DefaultCacheTTL bounds staleness of cached trial balances. Posting does not
// invalidate the cache; the window is short enough for reporting reads.
const DefaultCacheTTL = 30 * time.Second

// Service serves the read-side reports with a short-lived Redis cache in
// front of the trial balance aggregation.
type Service struct {
	repo  Repository
	cache *redis.Client
	ttl   time.Duration
}

// NewService constructs the reporting service. The cache client may be nil,
// in which case every request hits the database.
func NewService(repo Repository, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl}
}

func trialBalanceKey(orgID int64, fiscalYear int, fiscalPeriod string) string {
	return fmt.Sprintf("reports:tb:%d:%d:%s", orgID, fiscalYear, fiscalPeriod)
}

// GetTrialBalance aggregates active ledger entries into a trial balance.
func (s *Service) GetTrialBalance(ctx context.Context, orgID int64, fiscalYear int, fiscalPeriod string) (TrialBalance, error) {
	key := trialBalanceKey(orgID, fiscalYear, fiscalPeriod)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var report TrialBalance
			if err := json.Unmarshal(cached, &report); err == nil {
				return report, nil
			}
		}
	}
	totals, err := s.repo.AccountTotals(ctx, orgID, fiscalYear, fiscalPeriod)
	if err != nil {
		return TrialBalance{}, err
	}
	report := BuildTrialBalance(fiscalYear, fiscalPeriod, totals)
	if s.cache != nil {
		if payload, err := json.Marshal(report); err == nil {
			_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
		}
	}
	return report, nil
}

// GetAccountLedger returns the active entries for one account in date order,
// each carrying the running balance snapshotted at posting time.
func (s *Service) GetAccountLedger(ctx context.Context, orgID, accountID int64, from, to time.Time) ([]accounting.LedgerEntry, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	return s.repo.AccountLedger(ctx, orgID, accountID, from, to)
}
