package accounting

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	accounts       map[int64]*Account
	vouchers       map[int64]*Voucher
	voucherEntries map[int64][]VoucherEntry
	ledger         []*LedgerEntry
	sequences      map[string]int64

	nextAccountID int64
	nextVoucherID int64
	nextEntryID   int64
	nextLedgerID  int64

	// insertConflicts makes the next n voucher inserts fail with
	// ErrVoucherNumberConflict, simulating a lost numbering race.
	insertConflicts int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:       make(map[int64]*Account),
		vouchers:       make(map[int64]*Voucher),
		voucherEntries: make(map[int64][]VoucherEntry),
		sequences:      make(map[string]int64),
	}
}

func (r *memoryRepo) addAccount(a Account) Account {
	r.nextAccountID++
	a.ID = r.nextAccountID
	if a.OrgID == 0 {
		a.OrgID = 1
	}
	r.accounts[a.ID] = &a
	return a
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) GetAccountByCode(_ context.Context, orgID int64, code string) (Account, error) {
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID && a.Code == code && a.DeletedAt == nil {
			return *a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (tx *memoryTx) GetAccountForUpdate(_ context.Context, orgID, accountID int64) (Account, error) {
	a, ok := tx.repo.accounts[accountID]
	if !ok || a.OrgID != orgID || a.DeletedAt != nil {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (tx *memoryTx) UpdateAccountBalance(_ context.Context, accountID int64, balance float64, updatedAt time.Time) error {
	a, ok := tx.repo.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.CurrentBalance = balance
	a.UpdatedAt = updatedAt
	return nil
}

func (tx *memoryTx) InsertAccount(_ context.Context, a Account) (Account, error) {
	for _, existing := range tx.repo.accounts {
		if existing.OrgID == a.OrgID && existing.Code == a.Code && existing.DeletedAt == nil {
			return Account{}, ErrDuplicateAccountCode
		}
	}
	return tx.repo.addAccount(a), nil
}

func (tx *memoryTx) CountLedgerEntriesByAccount(_ context.Context, orgID, accountID int64) (int64, error) {
	var n int64
	for _, e := range tx.repo.ledger {
		if e.OrgID == orgID && e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) CountChildAccounts(_ context.Context, orgID, accountID int64) (int64, error) {
	var n int64
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID && a.ParentID != nil && *a.ParentID == accountID && a.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) SoftDeleteAccount(_ context.Context, orgID, accountID int64, deletedAt time.Time) error {
	a, ok := tx.repo.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return ErrAccountNotFound
	}
	a.DeletedAt = &deletedAt
	return nil
}

func (tx *memoryTx) NextVoucherSequence(_ context.Context, orgID int64, t VoucherType, fiscalYear int) (int64, error) {
	key := fmt.Sprintf("%d/%s/%d", orgID, t, fiscalYear)
	tx.repo.sequences[key]++
	return tx.repo.sequences[key], nil
}

func (tx *memoryTx) InsertVoucher(_ context.Context, v Voucher, _ int64) (Voucher, error) {
	if tx.repo.insertConflicts > 0 {
		tx.repo.insertConflicts--
		return Voucher{}, ErrVoucherNumberConflict
	}
	tx.repo.nextVoucherID++
	v.ID = tx.repo.nextVoucherID
	for i := range v.Entries {
		tx.repo.nextEntryID++
		v.Entries[i].ID = tx.repo.nextEntryID
		v.Entries[i].VoucherID = v.ID
	}
	stored := v
	tx.repo.vouchers[v.ID] = &stored
	tx.repo.voucherEntries[v.ID] = append([]VoucherEntry(nil), v.Entries...)
	return v, nil
}

func (tx *memoryTx) GetVoucherForUpdate(_ context.Context, orgID, voucherID int64) (Voucher, error) {
	v, ok := tx.repo.vouchers[voucherID]
	if !ok || v.OrgID != orgID {
		return Voucher{}, ErrVoucherNotFound
	}
	out := *v
	out.Entries = nil
	return out, nil
}

func (tx *memoryTx) GetVoucherEntries(_ context.Context, voucherID int64) ([]VoucherEntry, error) {
	return append([]VoucherEntry(nil), tx.repo.voucherEntries[voucherID]...), nil
}

func (tx *memoryTx) UpdateVoucherStatus(_ context.Context, v Voucher) error {
	stored, ok := tx.repo.vouchers[v.ID]
	if !ok {
		return ErrVoucherNotFound
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

func (tx *memoryTx) SetVoucherEntryLedgerID(_ context.Context, voucherEntryID, ledgerEntryID int64) error {
	for _, entries := range tx.repo.voucherEntries {
		for i := range entries {
			if entries[i].ID == voucherEntryID {
				entries[i].LedgerEntryID = &ledgerEntryID
				return nil
			}
		}
	}
	return fmt.Errorf("voucher entry %d not found", voucherEntryID)
}

func (tx *memoryTx) DeleteDraftVoucher(_ context.Context, orgID, voucherID int64) error {
	v, ok := tx.repo.vouchers[voucherID]
	if !ok || v.OrgID != orgID {
		return ErrVoucherNotFound
	}
	delete(tx.repo.vouchers, voucherID)
	delete(tx.repo.voucherEntries, voucherID)
	return nil
}

func (tx *memoryTx) InsertLedgerEntry(_ context.Context, e LedgerEntry) (LedgerEntry, error) {
	tx.repo.nextLedgerID++
	e.ID = tx.repo.nextLedgerID
	stored := e
	tx.repo.ledger = append(tx.repo.ledger, &stored)
	return e, nil
}

func (tx *memoryTx) ListLedgerEntriesByVoucher(_ context.Context, voucherID int64) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range tx.repo.ledger {
		if e.VoucherID == voucherID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (tx *memoryTx) VoidLedgerEntry(_ context.Context, entryID, actorID int64, reason string, at time.Time) error {
	for _, e := range tx.repo.ledger {
		if e.ID == entryID {
			e.Status = LedgerStatusVoid
			e.VoidedAt = &at
			e.VoidedBy = &actorID
			e.VoidReason = reason
			return nil
		}
	}
	return fmt.Errorf("ledger entry %d not found", entryID)
}

func (tx *memoryTx) SumActiveEntriesByAccount(_ context.Context, orgID, accountID int64) (string, string, error) {
	var debit, credit float64
	for _, e := range tx.repo.ledger {
		if e.OrgID != orgID || e.AccountID != accountID || e.Status != LedgerStatusActive {
			continue
		}
		switch e.Side {
		case SideDebit:
			debit += e.Amount
		case SideCredit:
			credit += e.Amount
		}
	}
	return strconv.FormatFloat(debit, 'f', -1, 64), strconv.FormatFloat(credit, 'f', -1, 64), nil
}

func testEngine() *Engine {
	e := NewEngine(0.01, shared.DefaultFiscalYearStartMonth)
	e.WithNow(func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) })
	return e
}

func seedTradingAccounts(repo *memoryRepo) (receivable, revenue, tax Account) {
	receivable = repo.addAccount(Account{Code: "1200", Name: "Accounts Receivable", Type: AccountTypeAsset, IsActive: true})
	revenue = repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	tax = repo.addAccount(Account{Code: "2102", Name: "Tax Payable", Type: AccountTypeLiability, IsActive: true})
	return receivable, revenue, tax
}

func TestCreateAndPostVoucherUpdatesBalances(t *testing.T) {
	repo := newMemoryRepo()
	receivable, revenue, tax := seedTradingAccounts(repo)
	engine := testEngine()
	ctx := context.Background()

	var posted Voucher
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := engine.CreateAndPostVoucher(ctx, tx, VoucherInput{
			OrgID: 1,
			Type:  VoucherTypeJournal,
			Date:  time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
			Entries: []EntryInput{
				{AccountID: receivable.ID, Side: SideDebit, Amount: 1180},
				{AccountID: revenue.ID, Side: SideCredit, Amount: 1000},
				{AccountID: tax.ID, Side: SideCredit, Amount: 180},
			},
		}, 7)
		posted = v
		return err
	})
	require.NoError(t, err)

	require.Equal(t, "JV-2026-0001", posted.Number)
	require.Equal(t, VoucherStatusPosted, posted.Status)
	require.InDelta(t, 1180, repo.accounts[receivable.ID].CurrentBalance, 0.0001)
	require.InDelta(t, 1000, repo.accounts[revenue.ID].CurrentBalance, 0.0001)
	require.InDelta(t, 180, repo.accounts[tax.ID].CurrentBalance, 0.0001)

	require.Len(t, repo.ledger, 3)
	for _, entry := range repo.ledger {
		require.Equal(t, LedgerStatusActive, entry.Status)
		require.Equal(t, posted.Number, entry.VoucherNumber)
		require.Equal(t, int64(7), entry.CreatedBy)
	}
	// Every voucher line points at its ledger row.
	for _, entry := range repo.voucherEntries[posted.ID] {
		require.NotNil(t, entry.LedgerEntryID)
	}
}

func TestRunningBalanceSnapshots(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	engine := testEngine()
	ctx := context.Background()

	post := func(amount float64) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := engine.CreateAndPostVoucher(ctx, tx, VoucherInput{
				OrgID: 1,
				Type:  VoucherTypeReceipt,
				Date:  time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
				Entries: []EntryInput{
					{AccountID: cash.ID, Side: SideDebit, Amount: amount},
					{AccountID: revenue.ID, Side: SideCredit, Amount: amount},
				},
			}, 1)
			return err
		})
		require.NoError(t, err)
	}

	post(100)
	post(150)

	var cashRunning []float64
	for _, e := range repo.ledger {
		if e.AccountID == cash.ID {
			cashRunning = append(cashRunning, e.RunningBalance)
		}
	}
	require.Equal(t, []float64{100, 250}, cashRunning)
	require.InDelta(t, 250, repo.accounts[cash.ID].CurrentBalance, 0.0001)
}

func TestPostRejectsGroupAndInactiveAccounts(t *testing.T) {
	repo := newMemoryRepo()
	group := repo.addAccount(Account{Code: "1", Name: "Assets", Type: AccountTypeAsset, IsGroup: true, IsActive: true})
	inactive := repo.addAccount(Account{Code: "1050", Name: "Old Cash", Type: AccountTypeAsset, IsActive: false})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	engine := testEngine()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := engine.CreateAndPostVoucher(ctx, tx, VoucherInput{
			OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
			Entries: []EntryInput{
				{AccountID: group.ID, Side: SideDebit, Amount: 10},
				{AccountID: revenue.ID, Side: SideCredit, Amount: 10},
			},
		}, 1)
		return err
	})
	require.ErrorIs(t, err, ErrGroupAccountPosting)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := engine.CreateAndPostVoucher(ctx, tx, VoucherInput{
			OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
			Entries: []EntryInput{
				{AccountID: inactive.ID, Side: SideDebit, Amount: 10},
				{AccountID: revenue.ID, Side: SideCredit, Amount: 10},
			},
		}, 1)
		return err
	})
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestVoidVoucherRestoresBalances(t *testing.T) {
	repo := newMemoryRepo()
	receivable, revenue, tax := seedTradingAccounts(repo)
	engine := testEngine()
	ctx := context.Background()

	var posted Voucher
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := engine.CreateAndPostVoucher(ctx, tx, VoucherInput{
			OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
			Entries: []EntryInput{
				{AccountID: receivable.ID, Side: SideDebit, Amount: 1180},
				{AccountID: revenue.ID, Side: SideCredit, Amount: 1000},
				{AccountID: tax.ID, Side: SideCredit, Amount: 180},
			},
		}, 1)
		posted = v
		return err
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := engine.VoidVoucher(ctx, tx, 1, posted.ID, 2, "entered twice")
		return err
	})
	require.NoError(t, err)

	require.InDelta(t, 0, repo.accounts[receivable.ID].CurrentBalance, 0.0001)
	require.InDelta(t, 0, repo.accounts[revenue.ID].CurrentBalance, 0.0001)
	require.InDelta(t, 0, repo.accounts[tax.ID].CurrentBalance, 0.0001)
	for _, entry := range repo.ledger {
		require.Equal(t, LedgerStatusVoid, entry.Status)
		require.Equal(t, "entered twice", entry.VoidReason)
	}

	// Voiding again is an invalid transition, and balances stay put.
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := engine.VoidVoucher(ctx, tx, 1, posted.ID, 2, "again")
		return err
	})
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.InDelta(t, 0, repo.accounts[receivable.ID].CurrentBalance, 0.0001)
}

func TestVoucherSequencesPerTypeAndFiscalYear(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	engine := testEngine()
	ctx := context.Background()

	create := func(vt VoucherType, date time.Time) Voucher {
		var created Voucher
		err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			v, err := engine.CreateDraftVoucher(ctx, tx, VoucherInput{
				OrgID: 1, Type: vt, Date: date,
				Entries: []EntryInput{
					{AccountID: cash.ID, Side: SideDebit, Amount: 10},
					{AccountID: revenue.ID, Side: SideCredit, Amount: 10},
				},
			})
			created = v
			return err
		})
		require.NoError(t, err)
		return created
	}

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, "JV-2026-0001", create(VoucherTypeJournal, july).Number)
	require.Equal(t, "JV-2026-0002", create(VoucherTypeJournal, july).Number)
	// A different type starts its own sequence.
	require.Equal(t, "RV-2026-0001", create(VoucherTypeReceipt, july).Number)
	// A different fiscal year starts its own sequence too.
	require.Equal(t, "JV-2025-0001", create(VoucherTypeJournal, march).Number)
}
