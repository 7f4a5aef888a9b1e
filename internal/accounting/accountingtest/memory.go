// Package accountingtest provides an in-memory accounting.TxRepository for
// document poster tests. It mirrors the balance and numbering behaviour of
// the SQL repository closely enough to exercise posting flows end to end.
package accountingtest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/accounting/profiles"
)

// Ledger holds the in-memory accounting state shared by one test.
type Ledger struct {
	Accounts       map[int64]*accounting.Account
	Vouchers       map[int64]*accounting.Voucher
	VoucherEntries map[int64][]accounting.VoucherEntry
	Entries        []*accounting.LedgerEntry

	sequences     map[string]int64
	nextAccountID int64
	nextVoucherID int64
	nextEntryID   int64
	nextLedgerID  int64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Accounts:       make(map[int64]*accounting.Account),
		Vouchers:       make(map[int64]*accounting.Voucher),
		VoucherEntries: make(map[int64][]accounting.VoucherEntry),
		sequences:      make(map[string]int64),
	}
}

// AddAccount registers an account and assigns it an ID. OrgID defaults to 1.
func (l *Ledger) AddAccount(a accounting.Account) accounting.Account {
	l.nextAccountID++
	a.ID = l.nextAccountID
	if a.OrgID == 0 {
		a.OrgID = 1
	}
	l.Accounts[a.ID] = &a
	return a
}

// SeedPostingAccounts registers active leaf accounts for every well-known
// posting code and returns them keyed by code.
func (l *Ledger) SeedPostingAccounts() map[string]accounting.Account {
	seeds := []struct {
		code string
		name string
		typ  accounting.AccountType
	}{
		{"1000", "Cash", accounting.AccountTypeAsset},
		{"1200", "Accounts Receivable", accounting.AccountTypeAsset},
		{"1300", "Tax Input Credit", accounting.AccountTypeAsset},
		{"2100", "Accounts Payable", accounting.AccountTypeLiability},
		{"2102", "Tax Payable", accounting.AccountTypeLiability},
		{"4001", "Sales Revenue", accounting.AccountTypeRevenue},
		{"5001", "Purchases", accounting.AccountTypeExpense},
	}
	out := make(map[string]accounting.Account, len(seeds))
	for _, s := range seeds {
		out[s.code] = l.AddAccount(accounting.Account{Code: s.code, Name: s.name, Type: s.typ, IsActive: true})
	}
	return out
}

// BalanceByCode returns the cached balance of the account with the code.
func (l *Ledger) BalanceByCode(code string) float64 {
	for _, a := range l.Accounts {
		if a.Code == code {
			return a.CurrentBalance
		}
	}
	return 0
}

// Tx returns an accounting.TxRepository view over the ledger. Every call
// shares the same state; tests that need rollback semantics snapshot the
// ledger themselves.
func (l *Ledger) Tx() accounting.TxRepository {
	return &ledgerTx{l: l}
}

type ledgerTx struct {
	l *Ledger
}

func (t *ledgerTx) GetAccountByCode(_ context.Context, orgID int64, code string) (accounting.Account, error) {
	for _, a := range t.l.Accounts {
		if a.OrgID == orgID && a.Code == code && a.DeletedAt == nil {
			return *a, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

func (t *ledgerTx) GetAccountForUpdate(_ context.Context, orgID, accountID int64) (accounting.Account, error) {
	a, ok := t.l.Accounts[accountID]
	if !ok || a.OrgID != orgID || a.DeletedAt != nil {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return *a, nil
}

func (t *ledgerTx) UpdateAccountBalance(_ context.Context, accountID int64, balance float64, updatedAt time.Time) error {
	a, ok := t.l.Accounts[accountID]
	if !ok {
		return accounting.ErrAccountNotFound
	}
	a.CurrentBalance = balance
	a.UpdatedAt = updatedAt
	return nil
}

func (t *ledgerTx) InsertAccount(_ context.Context, a accounting.Account) (accounting.Account, error) {
	for _, existing := range t.l.Accounts {
		if existing.OrgID == a.OrgID && existing.Code == a.Code && existing.DeletedAt == nil {
			return accounting.Account{}, accounting.ErrDuplicateAccountCode
		}
	}
	return t.l.AddAccount(a), nil
}

func (t *ledgerTx) CountLedgerEntriesByAccount(_ context.Context, orgID, accountID int64) (int64, error) {
	var n int64
	for _, e := range t.l.Entries {
		if e.OrgID == orgID && e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (t *ledgerTx) CountChildAccounts(_ context.Context, orgID, accountID int64) (int64, error) {
	var n int64
	for _, a := range t.l.Accounts {
		if a.OrgID == orgID && a.ParentID != nil && *a.ParentID == accountID && a.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (t *ledgerTx) SoftDeleteAccount(_ context.Context, orgID, accountID int64, deletedAt time.Time) error {
	a, ok := t.l.Accounts[accountID]
	if !ok || a.OrgID != orgID {
		return accounting.ErrAccountNotFound
	}
	a.DeletedAt = &deletedAt
	return nil
}

func (t *ledgerTx) NextVoucherSequence(_ context.Context, orgID int64, vt accounting.VoucherType, fiscalYear int) (int64, error) {
	key := fmt.Sprintf("%d/%s/%d", orgID, vt, fiscalYear)
	t.l.sequences[key]++
	return t.l.sequences[key], nil
}

func (t *ledgerTx) InsertVoucher(_ context.Context, v accounting.Voucher, _ int64) (accounting.Voucher, error) {
	t.l.nextVoucherID++
	v.ID = t.l.nextVoucherID
	for i := range v.Entries {
		t.l.nextEntryID++
		v.Entries[i].ID = t.l.nextEntryID
		v.Entries[i].VoucherID = v.ID
	}
	stored := v
	t.l.Vouchers[v.ID] = &stored
	t.l.VoucherEntries[v.ID] = append([]accounting.VoucherEntry(nil), v.Entries...)
	return v, nil
}

func (t *ledgerTx) GetVoucherForUpdate(_ context.Context, orgID, voucherID int64) (accounting.Voucher, error) {
	v, ok := t.l.Vouchers[voucherID]
	if !ok || v.OrgID != orgID {
		return accounting.Voucher{}, accounting.ErrVoucherNotFound
	}
	out := *v
	out.Entries = nil
	return out, nil
}

func (t *ledgerTx) GetVoucherEntries(_ context.Context, voucherID int64) ([]accounting.VoucherEntry, error) {
	return append([]accounting.VoucherEntry(nil), t.l.VoucherEntries[voucherID]...), nil
}

func (t *ledgerTx) UpdateVoucherStatus(_ context.Context, v accounting.Voucher) error {
	stored, ok := t.l.Vouchers[v.ID]
	if !ok {
		return accounting.ErrVoucherNotFound
	}
	stored.Status = v.Status
	stored.PostedAt = v.PostedAt
	stored.PostedBy = v.PostedBy
	stored.VoidedAt = v.VoidedAt
	stored.VoidedBy = v.VoidedBy
	stored.VoidReason = v.VoidReason
	stored.UpdatedAt = v.UpdatedAt
	return nil
}

func (t *ledgerTx) SetVoucherEntryLedgerID(_ context.Context, voucherEntryID, ledgerEntryID int64) error {
	for _, entries := range t.l.VoucherEntries {
		for i := range entries {
			if entries[i].ID == voucherEntryID {
				entries[i].LedgerEntryID = &ledgerEntryID
				return nil
			}
		}
	}
	return fmt.Errorf("accountingtest: voucher entry %d not found", voucherEntryID)
}

func (t *ledgerTx) DeleteDraftVoucher(_ context.Context, orgID, voucherID int64) error {
	v, ok := t.l.Vouchers[voucherID]
	if !ok || v.OrgID != orgID {
		return accounting.ErrVoucherNotFound
	}
	delete(t.l.Vouchers, voucherID)
	delete(t.l.VoucherEntries, voucherID)
	return nil
}

func (t *ledgerTx) InsertLedgerEntry(_ context.Context, e accounting.LedgerEntry) (accounting.LedgerEntry, error) {
	t.l.nextLedgerID++
	e.ID = t.l.nextLedgerID
	stored := e
	t.l.Entries = append(t.l.Entries, &stored)
	return e, nil
}

func (t *ledgerTx) ListLedgerEntriesByVoucher(_ context.Context, voucherID int64) ([]accounting.LedgerEntry, error) {
	var out []accounting.LedgerEntry
	for _, e := range t.l.Entries {
		if e.VoucherID == voucherID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (t *ledgerTx) VoidLedgerEntry(_ context.Context, entryID, actorID int64, reason string, at time.Time) error {
	for _, e := range t.l.Entries {
		if e.ID == entryID {
			e.Status = accounting.LedgerStatusVoid
			e.VoidedAt = &at
			e.VoidedBy = &actorID
			e.VoidReason = reason
			return nil
		}
	}
	return fmt.Errorf("accountingtest: ledger entry %d not found", entryID)
}

func (t *ledgerTx) SumActiveEntriesByAccount(_ context.Context, orgID, accountID int64) (string, string, error) {
	var debit, credit float64
	for _, e := range t.l.Entries {
		if e.OrgID != orgID || e.AccountID != accountID || e.Status != accounting.LedgerStatusActive {
			continue
		}
		switch e.Side {
		case accounting.SideDebit:
			debit += e.Amount
		case accounting.SideCredit:
			credit += e.Amount
		}
	}
	return strconv.FormatFloat(debit, 'f', -1, 64), strconv.FormatFloat(credit, 'f', -1, 64), nil
}

// ProfileStub satisfies profiles.Repository from a static mapping. An empty
// mapping makes every role resolve through the well-known default codes.
type ProfileStub struct {
	Codes map[string]string
}

// GetProfile returns the stubbed role mapping for any organization.
func (p ProfileStub) GetProfile(_ context.Context, orgID int64) (profiles.Profile, error) {
	codes := make(map[profiles.Role]string, len(p.Codes))
	for role, code := range p.Codes {
		codes[profiles.Role(role)] = code
	}
	return profiles.Profile{OrgID: orgID, Codes: codes}, nil
}
