package shared

import (
	"fmt"
	"time"
)

// DefaultFiscalYearStartMonth is April, matching the fiscal calendar the
// default chart of accounts is seeded for.
const DefaultFiscalYearStartMonth = time.April

// FiscalYearOf returns the fiscal year a date falls in, labelled by the
// calendar year the fiscal year starts in.
func FiscalYearOf(date time.Time, startMonth time.Month) int {
	if startMonth < time.January || startMonth > time.December {
		startMonth = DefaultFiscalYearStartMonth
	}
	year := date.Year()
	if date.Month() < startMonth {
		year--
	}
	return year
}

// FiscalPeriodOf returns the year-month bucket used for reporting partitions.
func FiscalPeriodOf(date time.Time) string {
	return date.Format("2006-01")
}

// FiscalYearLabel renders a fiscal year for voucher numbers.
func FiscalYearLabel(fiscalYear int) string {
	return fmt.Sprintf("%04d", fiscalYear)
}
