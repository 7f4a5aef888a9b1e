package accounting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestNormalBalanceOf(t *testing.T) {
	require.Equal(t, SideDebit, NormalBalanceOf(AccountTypeAsset))
	require.Equal(t, SideDebit, NormalBalanceOf(AccountTypeExpense))
	require.Equal(t, SideCredit, NormalBalanceOf(AccountTypeLiability))
	require.Equal(t, SideCredit, NormalBalanceOf(AccountTypeEquity))
	require.Equal(t, SideCredit, NormalBalanceOf(AccountTypeRevenue))
}

func TestNextBalance(t *testing.T) {
	// Debit-normal account: debit increases, credit decreases.
	require.InDelta(t, 150, NextBalance(100, SideDebit, SideDebit, 50), 0.0001)
	require.InDelta(t, 50, NextBalance(100, SideDebit, SideCredit, 50), 0.0001)

	// Credit-normal account: credit increases, debit decreases.
	require.InDelta(t, 150, NextBalance(100, SideCredit, SideCredit, 50), 0.0001)
	require.InDelta(t, 50, NextBalance(100, SideCredit, SideDebit, 50), 0.0001)

	// Voiding negates the amount and lands back where it started.
	posted := NextBalance(100, SideDebit, SideDebit, 50)
	require.InDelta(t, 100, NextBalance(posted, SideDebit, SideDebit, -50), 0.0001)
}

func TestValidateDoubleEntryBalanced(t *testing.T) {
	v := Voucher{Entries: []VoucherEntry{
		{AccountID: 1, Side: SideDebit, Amount: 1180},
		{AccountID: 2, Side: SideCredit, Amount: 1000},
		{AccountID: 3, Side: SideCredit, Amount: 180},
	}}
	require.Empty(t, v.ValidateDoubleEntry(0.01))
	require.InDelta(t, 1180, v.TotalDebit, 0.0001)
	require.InDelta(t, 1180, v.TotalCredit, 0.0001)
}

func TestValidateDoubleEntryViolations(t *testing.T) {
	v := Voucher{Entries: []VoucherEntry{
		{AccountID: 0, Side: SideDebit, Amount: -5},
	}}
	violations := v.ValidateDoubleEntry(0.01)
	require.Contains(t, violations, "voucher requires at least two entries")
	require.Contains(t, violations, "entry 1: account is required")
	require.Contains(t, violations, "entry 1: amount must be greater than zero")
	require.Contains(t, violations, "voucher requires at least one credit entry")
}

func TestValidateDoubleEntryDuplicateAccountSide(t *testing.T) {
	v := Voucher{Entries: []VoucherEntry{
		{AccountID: 1, Side: SideDebit, Amount: 50},
		{AccountID: 1, Side: SideDebit, Amount: 50},
		{AccountID: 2, Side: SideCredit, Amount: 100},
	}}
	violations := v.ValidateDoubleEntry(0.01)
	require.Contains(t, violations, "duplicate debit entry for account 1")
}

func TestValidateDoubleEntryToleranceBoundary(t *testing.T) {
	v := Voucher{Entries: []VoucherEntry{
		{AccountID: 1, Side: SideDebit, Amount: 100.01},
		{AccountID: 2, Side: SideCredit, Amount: 100},
	}}
	// A mismatch exactly at the tolerance passes even though the float64
	// difference 100.01-100 comes out a hair above 0.01.
	require.Empty(t, v.ValidateDoubleEntry(0.01))

	// Same boundary on the credit-heavy side.
	v.Entries[0].Amount = 100
	v.Entries[1].Amount = 100.01
	require.Empty(t, v.ValidateDoubleEntry(0.01))

	v.Entries[0].Amount = 100.02
	v.Entries[1].Amount = 100
	violations := v.ValidateDoubleEntry(0.01)
	require.Len(t, violations, 1)
	require.Contains(t, violations[0], "does not equal credit total")
}

func TestVoucherPostTransitions(t *testing.T) {
	now := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	v := Voucher{
		Status: VoucherStatusDraft,
		Entries: []VoucherEntry{
			{AccountID: 1, Side: SideDebit, Amount: 100},
			{AccountID: 2, Side: SideCredit, Amount: 100},
		},
	}
	require.NoError(t, v.Post(7, 0.01, now))
	require.Equal(t, VoucherStatusPosted, v.Status)
	require.NotNil(t, v.PostedAt)
	require.Equal(t, int64(7), *v.PostedBy)

	// Posting twice is rejected.
	err := v.Post(7, 0.01, now)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestVoucherPostFailsClosedOnImbalance(t *testing.T) {
	v := Voucher{
		Status: VoucherStatusDraft,
		Entries: []VoucherEntry{
			{AccountID: 1, Side: SideDebit, Amount: 100},
			{AccountID: 2, Side: SideCredit, Amount: 90},
		},
	}
	err := v.Post(1, 0.01, time.Now())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Violations)
	require.Equal(t, VoucherStatusDraft, v.Status)
}

func TestVoucherVoidTransitions(t *testing.T) {
	now := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	v := Voucher{Status: VoucherStatusDraft}
	require.ErrorIs(t, v.Void(1, "typo", now), ErrInvalidStatus)

	v.Status = VoucherStatusPosted
	require.NoError(t, v.Void(1, "typo", now))
	require.Equal(t, VoucherStatusVoid, v.Status)
	require.Equal(t, "typo", v.VoidReason)

	require.ErrorIs(t, v.Void(1, "again", now), ErrInvalidStatus)
}

func TestFormatVoucherNumber(t *testing.T) {
	require.Equal(t, "JV-2026-0001", FormatVoucherNumber(VoucherTypeJournal, 2026, 1))
	require.Equal(t, "RV-2025-0042", FormatVoucherNumber(VoucherTypeReceipt, 2025, 42))
	require.Equal(t, "PV-2026-1234", FormatVoucherNumber(VoucherTypePayment, 2026, 1234))
}

func TestNewVoucherDerivesFiscalFields(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// March sits in the previous fiscal year when the year starts in April.
	v := NewVoucher(VoucherInput{
		OrgID: 1,
		Type:  VoucherTypeJournal,
		Date:  time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: 1, Side: SideDebit, Amount: 10},
			{AccountID: 2, Side: SideCredit, Amount: 10},
		},
	}, shared.DefaultFiscalYearStartMonth, now)
	require.Equal(t, 2025, v.FiscalYear)
	require.Equal(t, "2026-03", v.FiscalPeriod)
	require.Equal(t, VoucherStatusDraft, v.Status)
	require.InDelta(t, 10, v.TotalDebit, 0.0001)
	require.InDelta(t, 10, v.TotalCredit, 0.0001)

	v = NewVoucher(VoucherInput{
		OrgID: 1,
		Type:  VoucherTypeJournal,
		Date:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}, shared.DefaultFiscalYearStartMonth, now)
	require.Equal(t, 2026, v.FiscalYear)
}
