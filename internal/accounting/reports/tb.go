package reports

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// AccountTotals models one account's aggregated active ledger activity.
type AccountTotals struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounting.AccountType
	Opening   decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Closing computes the closing balance on the account's normal side.
func (a AccountTotals) Closing() decimal.Decimal {
	if accounting.NormalBalanceOf(a.Type) == accounting.SideDebit {
		return a.Opening.Add(a.Debit).Sub(a.Credit)
	}
	return a.Opening.Add(a.Credit).Sub(a.Debit)
}

// TrialBalanceRow is one line of the trial balance report.
type TrialBalanceRow struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Opening   float64 `json:"opening"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
	Closing   float64 `json:"closing"`
}

// TrialBalance is the report returned to callers. Balanced is computed from
// decimal sums so float drift cannot mask a broken ledger.
type TrialBalance struct {
	FiscalYear   int               `json:"fiscalYear"`
	FiscalPeriod string            `json:"fiscalPeriod,omitempty"`
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebit   float64           `json:"totalDebit"`
	TotalCredit  float64           `json:"totalCredit"`
	Balanced     bool              `json:"balanced"`
}

// BuildTrialBalance aggregates per-account totals into the report structure.
func BuildTrialBalance(fiscalYear int, fiscalPeriod string, accounts []AccountTotals) TrialBalance {
	report := TrialBalance{FiscalYear: fiscalYear, FiscalPeriod: fiscalPeriod}
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, acc := range accounts {
		report.Rows = append(report.Rows, TrialBalanceRow{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      string(acc.Type),
			Opening:   acc.Opening.InexactFloat64(),
			Debit:     acc.Debit.InexactFloat64(),
			Credit:    acc.Credit.InexactFloat64(),
			Closing:   acc.Closing().InexactFloat64(),
		})
		totalDebit = totalDebit.Add(acc.Debit)
		totalCredit = totalCredit.Add(acc.Credit)
	}
	report.TotalDebit = totalDebit.InexactFloat64()
	report.TotalCredit = totalCredit.InexactFloat64()
	report.Balanced = totalDebit.Equal(totalCredit)
	return report
}
