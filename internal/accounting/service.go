package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MaxNumberingAttempts bounds retries of a posting transaction that lost the
// voucher-number race.
const MaxNumberingAttempts = 3

// Service coordinates manual voucher workflows and balance reconciliation.
type Service struct {
	repo   RepositoryPort
	engine *Engine
	audit  AuditPort
}

// NewService constructs the voucher service.
func NewService(repo RepositoryPort, engine *Engine, audit AuditPort) *Service {
	return &Service{repo: repo, engine: engine, audit: audit}
}

// Engine exposes the posting engine to document posters sharing it.
func (s *Service) Engine() *Engine {
	return s.engine
}

// WithNumberingRetry runs fn up to MaxNumberingAttempts times while it fails
// with ErrVoucherNumberConflict. Each attempt must be a fresh transaction:
// a unique violation aborts the one it happened in.
func WithNumberingRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < MaxNumberingAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrVoucherNumberConflict) {
			return err
		}
	}
	return err
}

// CreateVoucher persists a draft voucher from caller-supplied entries.
func (s *Service) CreateVoucher(ctx context.Context, in VoucherInput, actorID int64) (Voucher, error) {
	if in.OrgID == 0 {
		return Voucher{}, errors.New("accounting: org id required")
	}
	var created Voucher
	err := WithNumberingRetry(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			v, err := s.engine.CreateDraftVoucher(ctx, tx, in)
			if err != nil {
				return err
			}
			created = v
			return nil
		})
	})
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, in.OrgID, actorID, "voucher.create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// PostVoucher posts an existing draft voucher and writes its ledger entries.
func (s *Service) PostVoucher(ctx context.Context, orgID, voucherID, actorID int64) (Voucher, error) {
	var posted Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, orgID, voucherID)
		if err != nil {
			return err
		}
		entries, err := tx.GetVoucherEntries(ctx, v.ID)
		if err != nil {
			return err
		}
		v.Entries = entries
		if err := s.engine.PostVoucher(ctx, tx, &v, actorID); err != nil {
			return err
		}
		posted = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, orgID, actorID, "voucher.post", posted.ID, map[string]any{"number": posted.Number})
	return posted, nil
}

// VoidVoucher voids a posted voucher and reverses its balance effects.
func (s *Service) VoidVoucher(ctx context.Context, orgID, voucherID, actorID int64, reason string) (Voucher, error) {
	var voided Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := s.engine.VoidVoucher(ctx, tx, orgID, voucherID, actorID, reason)
		if err != nil {
			return err
		}
		voided = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, orgID, actorID, "voucher.void", voided.ID, map[string]any{"number": voided.Number, "reason": reason})
	return voided, nil
}

// DeleteVoucher removes a draft voucher. Posted and void vouchers are history
// and are never deleted.
func (s *Service) DeleteVoucher(ctx context.Context, orgID, voucherID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, orgID, voucherID)
		if err != nil {
			return err
		}
		if v.Status != VoucherStatusDraft {
			return fmt.Errorf("%w: only draft vouchers can be deleted", ErrInvalidStatus)
		}
		return tx.DeleteDraftVoucher(ctx, orgID, voucherID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "voucher.delete", voucherID, nil)
	return nil
}

// GetVoucher loads a voucher with its entries.
func (s *Service) GetVoucher(ctx context.Context, orgID, voucherID int64) (Voucher, error) {
	var v Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetVoucherForUpdate(ctx, orgID, voucherID)
		if err != nil {
			return err
		}
		entries, err := tx.GetVoucherEntries(ctx, loaded.ID)
		if err != nil {
			return err
		}
		loaded.Entries = entries
		v = loaded
		return nil
	})
	return v, err
}

// ReconciliationResult reports drift between the cached account balance and
// the balance recomputed from active ledger entries.
type ReconciliationResult struct {
	AccountID       int64
	AccountCode     string
	CachedBalance   float64
	ExpectedBalance float64
	Drift           float64
	Repaired        bool
}

// ReconcileAccount recomputes an account balance from its active ledger
// entries and optionally repairs the cached value. Sums are carried in
// decimals so drift detection is exact over long histories.
func (s *Service) ReconcileAccount(ctx context.Context, orgID int64, code string, actorID int64, repair bool) (ReconciliationResult, error) {
	var result ReconciliationResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.GetAccountByCode(ctx, orgID, code)
		if err != nil {
			return err
		}
		account, err := tx.GetAccountForUpdate(ctx, orgID, found.ID)
		if err != nil {
			return err
		}
		debitStr, creditStr, err := tx.SumActiveEntriesByAccount(ctx, orgID, account.ID)
		if err != nil {
			return err
		}
		debit, err := decimal.NewFromString(debitStr)
		if err != nil {
			return fmt.Errorf("accounting: parse debit sum: %w", err)
		}
		credit, err := decimal.NewFromString(creditStr)
		if err != nil {
			return fmt.Errorf("accounting: parse credit sum: %w", err)
		}
		opening := decimal.NewFromFloat(account.OpeningBalance)
		var expected decimal.Decimal
		if account.NormalBalance() == SideDebit {
			expected = opening.Add(debit).Sub(credit)
		} else {
			expected = opening.Add(credit).Sub(debit)
		}
		cached := decimal.NewFromFloat(account.CurrentBalance)
		drift := expected.Sub(cached)

		result = ReconciliationResult{
			AccountID:       account.ID,
			AccountCode:     account.Code,
			CachedBalance:   account.CurrentBalance,
			ExpectedBalance: expected.InexactFloat64(),
			Drift:           drift.InexactFloat64(),
		}
		if repair && !drift.IsZero() {
			if err := tx.UpdateAccountBalance(ctx, account.ID, expected.InexactFloat64(), s.engine.now()); err != nil {
				return err
			}
			result.Repaired = true
		}
		return nil
	})
	if err != nil {
		return ReconciliationResult{}, err
	}
	if result.Repaired {
		s.record(ctx, orgID, actorID, "account.reconcile", result.AccountID, map[string]any{
			"code":  result.AccountCode,
			"drift": result.Drift,
		})
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "voucher"
	if action == "account.reconcile" {
		entity = "account"
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.engine.now(),
	})
}
