package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiscalYearOf(t *testing.T) {
	april := time.April

	require.Equal(t, 2026, FiscalYearOf(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), april))
	require.Equal(t, 2026, FiscalYearOf(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), april))
	require.Equal(t, 2026, FiscalYearOf(time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC), april))
	require.Equal(t, 2025, FiscalYearOf(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), april))

	// January start makes fiscal year == calendar year.
	require.Equal(t, 2026, FiscalYearOf(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.January))

	// Out-of-range start months fall back to April.
	require.Equal(t, 2025, FiscalYearOf(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 0))
}

func TestFiscalPeriodOf(t *testing.T) {
	require.Equal(t, "2026-07", FiscalPeriodOf(time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "2026-01", FiscalPeriodOf(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestFiscalYearLabel(t *testing.T) {
	require.Equal(t, "2026", FiscalYearLabel(2026))
	require.Equal(t, "0099", FiscalYearLabel(99))
}
