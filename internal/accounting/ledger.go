package accounting

import (
	"context"
	"fmt"
	"time"
)

// Engine drives voucher numbering, posting, and the ledger entry writer.
// All methods operate on a TxRepository so a document poster can run the
// whole flow inside its own transaction.
type Engine struct {
	tolerance        float64
	fiscalStartMonth time.Month
	now              func() time.Time
}

// NewEngine constructs the posting engine.
func NewEngine(tolerance float64, fiscalStartMonth time.Month) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultBalanceTolerance
	}
	return &Engine{tolerance: tolerance, fiscalStartMonth: fiscalStartMonth, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Tolerance returns the configured debit/credit matching tolerance.
func (e *Engine) Tolerance() float64 {
	return e.tolerance
}

// FiscalStartMonth returns the month the fiscal year begins.
func (e *Engine) FiscalStartMonth() time.Month {
	return e.fiscalStartMonth
}

// CreateDraftVoucher numbers and persists a draft voucher. The sequence is
// max+1 per (org, type, fiscal year); the unique constraint on the vouchers
// table is the backstop against concurrent allocation, surfaced as
// ErrVoucherNumberConflict so the caller can retry the whole transaction.
func (e *Engine) CreateDraftVoucher(ctx context.Context, tx TxRepository, in VoucherInput) (Voucher, error) {
	v := NewVoucher(in, e.fiscalStartMonth, e.now())
	seq, err := tx.NextVoucherSequence(ctx, v.OrgID, v.Type, v.FiscalYear)
	if err != nil {
		return Voucher{}, err
	}
	v.Number = FormatVoucherNumber(v.Type, v.FiscalYear, seq)
	return tx.InsertVoucher(ctx, v, seq)
}

// PostVoucher transitions the voucher to posted and writes its ledger
// entries. The voucher must carry its entries.
func (e *Engine) PostVoucher(ctx context.Context, tx TxRepository, v *Voucher, actorID int64) error {
	if err := v.Post(actorID, e.tolerance, e.now()); err != nil {
		return err
	}
	if err := tx.UpdateVoucherStatus(ctx, *v); err != nil {
		return err
	}
	return e.writeLedgerEntries(ctx, tx, v, actorID)
}

// CreateAndPostVoucher is the document-poster path: build, number, validate,
// post, and write ledger entries in one call inside the caller's transaction.
func (e *Engine) CreateAndPostVoucher(ctx context.Context, tx TxRepository, in VoucherInput, actorID int64) (Voucher, error) {
	draft := NewVoucher(in, e.fiscalStartMonth, e.now())
	if violations := draft.ValidateDoubleEntry(e.tolerance); len(violations) > 0 {
		return Voucher{}, &ValidationError{Violations: violations}
	}
	v, err := e.CreateDraftVoucher(ctx, tx, in)
	if err != nil {
		return Voucher{}, err
	}
	if err := e.PostVoucher(ctx, tx, &v, actorID); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

// writeLedgerEntries creates one ledger row per voucher line in entry order,
// locking each account, applying the balance delta, and snapshotting the
// running balance onto the row.
func (e *Engine) writeLedgerEntries(ctx context.Context, tx TxRepository, v *Voucher, actorID int64) error {
	now := e.now()
	for i := range v.Entries {
		entry := &v.Entries[i]
		account, err := tx.GetAccountForUpdate(ctx, v.OrgID, entry.AccountID)
		if err != nil {
			return err
		}
		if account.IsGroup {
			return fmt.Errorf("%w: account %s", ErrGroupAccountPosting, account.Code)
		}
		if !account.IsActive {
			return fmt.Errorf("%w: account %s", ErrAccountInactive, account.Code)
		}
		newBalance := account.ApplyDelta(entry.Side, entry.Amount)
		ledgerEntry, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			OrgID:          v.OrgID,
			AccountID:      entry.AccountID,
			VoucherID:      v.ID,
			VoucherNumber:  v.Number,
			VoucherType:    v.Type,
			EntryDate:      v.Date,
			FiscalYear:     v.FiscalYear,
			FiscalPeriod:   v.FiscalPeriod,
			Side:           entry.Side,
			Amount:         entry.Amount,
			RunningBalance: newBalance,
			Status:         LedgerStatusActive,
			CreatedBy:      actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, account.ID, newBalance, now); err != nil {
			return err
		}
		if err := tx.SetVoucherEntryLedgerID(ctx, entry.ID, ledgerEntry.ID); err != nil {
			return err
		}
		entry.LedgerEntryID = &ledgerEntry.ID
	}
	return nil
}

// VoidVoucher transitions a posted voucher to void and reverses its ledger
// effects. Already-void entries are skipped, making the reversal idempotent.
func (e *Engine) VoidVoucher(ctx context.Context, tx TxRepository, orgID, voucherID, actorID int64, reason string) (Voucher, error) {
	v, err := tx.GetVoucherForUpdate(ctx, orgID, voucherID)
	if err != nil {
		return Voucher{}, err
	}
	if err := v.Void(actorID, reason, e.now()); err != nil {
		return Voucher{}, err
	}
	if err := tx.UpdateVoucherStatus(ctx, v); err != nil {
		return Voucher{}, err
	}
	if err := e.voidLedgerEntries(ctx, tx, v.OrgID, v.ID, actorID, reason); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (e *Engine) voidLedgerEntries(ctx context.Context, tx TxRepository, orgID, voucherID, actorID int64, reason string) error {
	entries, err := tx.ListLedgerEntriesByVoucher(ctx, voucherID)
	if err != nil {
		return err
	}
	now := e.now()
	for _, entry := range entries {
		if entry.Status != LedgerStatusActive {
			continue
		}
		account, err := tx.GetAccountForUpdate(ctx, orgID, entry.AccountID)
		if err != nil {
			return err
		}
		// Reversal is the posting rule with the sign inverted.
		newBalance := NextBalance(account.CurrentBalance, account.NormalBalance(), entry.Side, -entry.Amount)
		if err := tx.UpdateAccountBalance(ctx, account.ID, newBalance, now); err != nil {
			return err
		}
		if err := tx.VoidLedgerEntry(ctx, entry.ID, actorID, reason, now); err != nil {
			return err
		}
	}
	return nil
}
