package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateVoucherRetriesNumberConflicts(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	svc := NewService(repo, testEngine(), nil)

	repo.insertConflicts = MaxNumberingAttempts - 1

	v, err := svc.CreateVoucher(context.Background(), VoucherInput{
		OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 10},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 10},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, VoucherStatusDraft, v.Status)
	require.Zero(t, repo.insertConflicts)
}

func TestCreateVoucherGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	svc := NewService(repo, testEngine(), nil)

	repo.insertConflicts = MaxNumberingAttempts

	_, err := svc.CreateVoucher(context.Background(), VoucherInput{
		OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 10},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 10},
		},
	}, 1)
	require.ErrorIs(t, err, ErrVoucherNumberConflict)
}

func TestPostVoucherLoadsEntries(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	svc := NewService(repo, testEngine(), nil)
	ctx := context.Background()

	draft, err := svc.CreateVoucher(ctx, VoucherInput{
		OrgID: 1, Type: VoucherTypeReceipt, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 500},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 500},
		},
	}, 1)
	require.NoError(t, err)

	posted, err := svc.PostVoucher(ctx, 1, draft.ID, 2)
	require.NoError(t, err)
	require.Equal(t, VoucherStatusPosted, posted.Status)
	require.InDelta(t, 500, repo.accounts[cash.ID].CurrentBalance, 0.0001)
}

func TestDeleteVoucherOnlyAcceptsDrafts(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	svc := NewService(repo, testEngine(), nil)
	ctx := context.Background()

	draft, err := svc.CreateVoucher(ctx, VoucherInput{
		OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 25},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 25},
		},
	}, 1)
	require.NoError(t, err)

	posted, err := svc.PostVoucher(ctx, 1, draft.ID, 1)
	require.NoError(t, err)

	err = svc.DeleteVoucher(ctx, 1, posted.ID, 1)
	require.ErrorIs(t, err, ErrInvalidStatus)

	second, err := svc.CreateVoucher(ctx, VoucherInput{
		OrgID: 1, Type: VoucherTypeJournal, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 25},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 25},
		},
	}, 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteVoucher(ctx, 1, second.ID, 1))

	_, err = svc.GetVoucher(ctx, 1, second.ID)
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestReconcileAccountDetectsAndRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	cash := repo.addAccount(Account{Code: "1000", Name: "Cash", Type: AccountTypeAsset, IsActive: true})
	revenue := repo.addAccount(Account{Code: "4001", Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true})
	engine := testEngine()
	svc := NewService(repo, engine, nil)
	ctx := context.Background()

	draft, err := svc.CreateVoucher(ctx, VoucherInput{
		OrgID: 1, Type: VoucherTypeReceipt, Date: time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC),
		Entries: []EntryInput{
			{AccountID: cash.ID, Side: SideDebit, Amount: 300},
			{AccountID: revenue.ID, Side: SideCredit, Amount: 300},
		},
	}, 1)
	require.NoError(t, err)
	_, err = svc.PostVoucher(ctx, 1, draft.ID, 1)
	require.NoError(t, err)

	// Corrupt the cached balance behind the ledger's back.
	repo.accounts[cash.ID].CurrentBalance = 275

	result, err := svc.ReconcileAccount(ctx, 1, "1000", 1, false)
	require.NoError(t, err)
	require.InDelta(t, 275, result.CachedBalance, 0.0001)
	require.InDelta(t, 300, result.ExpectedBalance, 0.0001)
	require.InDelta(t, 25, result.Drift, 0.0001)
	require.False(t, result.Repaired)
	require.InDelta(t, 275, repo.accounts[cash.ID].CurrentBalance, 0.0001)

	result, err = svc.ReconcileAccount(ctx, 1, "1000", 1, true)
	require.NoError(t, err)
	require.True(t, result.Repaired)
	require.InDelta(t, 300, repo.accounts[cash.ID].CurrentBalance, 0.0001)

	_, err = svc.ReconcileAccount(ctx, 1, "9999", 1, false)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
