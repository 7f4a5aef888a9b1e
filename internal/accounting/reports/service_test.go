package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

type stubRepo struct {
	totals []AccountTotals
	calls  int
}

func (s *stubRepo) AccountTotals(context.Context, int64, int, string) ([]AccountTotals, error) {
	s.calls++
	return s.totals, nil
}

func (s *stubRepo) AccountLedger(context.Context, int64, int64, time.Time, time.Time) ([]accounting.LedgerEntry, error) {
	return nil, nil
}

func dec(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func sampleTotals() []AccountTotals {
	return []AccountTotals{
		{AccountID: 1, Code: "1200", Name: "Accounts Receivable", Type: accounting.AccountTypeAsset, Debit: dec("1180"), Credit: dec("0")},
		{AccountID: 2, Code: "2102", Name: "Tax Payable", Type: accounting.AccountTypeLiability, Debit: dec("0"), Credit: dec("180")},
		{AccountID: 3, Code: "4001", Name: "Sales Revenue", Type: accounting.AccountTypeRevenue, Debit: dec("0"), Credit: dec("1000")},
	}
}

func TestBuildTrialBalance(t *testing.T) {
	report := BuildTrialBalance(2026, "2026-07", sampleTotals())

	require.Equal(t, 2026, report.FiscalYear)
	require.Equal(t, "2026-07", report.FiscalPeriod)
	require.Len(t, report.Rows, 3)
	require.InDelta(t, 1180, report.TotalDebit, 0.0001)
	require.InDelta(t, 1180, report.TotalCredit, 0.0001)
	require.True(t, report.Balanced)

	// Closing sits on the account's normal side.
	require.InDelta(t, 1180, report.Rows[0].Closing, 0.0001)
	require.InDelta(t, 180, report.Rows[1].Closing, 0.0001)
	require.InDelta(t, 1000, report.Rows[2].Closing, 0.0001)
}

func TestBuildTrialBalanceDetectsImbalance(t *testing.T) {
	totals := sampleTotals()
	totals[2].Credit = dec("999.99")
	report := BuildTrialBalance(2026, "", totals)
	require.False(t, report.Balanced)
}

func TestBuildTrialBalanceIncludesOpeningBalances(t *testing.T) {
	totals := []AccountTotals{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Opening: dec("500"), Debit: dec("100"), Credit: dec("30")},
	}
	report := BuildTrialBalance(2026, "", totals)
	require.InDelta(t, 570, report.Rows[0].Closing, 0.0001)
	// Opening balances do not enter the movement totals.
	require.InDelta(t, 100, report.TotalDebit, 0.0001)
	require.InDelta(t, 30, report.TotalCredit, 0.0001)
}

func TestGetTrialBalanceCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &stubRepo{totals: sampleTotals()}
	svc := NewService(repo, client, time.Minute)
	ctx := context.Background()

	first, err := svc.GetTrialBalance(ctx, 1, 2026, "2026-07")
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	second, err := svc.GetTrialBalance(ctx, 1, 2026, "2026-07")
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls, "second read must be served from cache")
	require.Equal(t, first, second)

	// A different period misses the cache.
	_, err = svc.GetTrialBalance(ctx, 1, 2026, "2026-08")
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)

	// Expiry brings the next read back to the database.
	mr.FastForward(2 * time.Minute)
	_, err = svc.GetTrialBalance(ctx, 1, 2026, "2026-07")
	require.NoError(t, err)
	require.Equal(t, 3, repo.calls)
}

func TestGetTrialBalanceWithoutCache(t *testing.T) {
	repo := &stubRepo{totals: sampleTotals()}
	svc := NewService(repo, nil, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.GetTrialBalance(ctx, 1, 2026, "")
		require.NoError(t, err)
	}
	require.Equal(t, 2, repo.calls)
}
