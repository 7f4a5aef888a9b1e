package ap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/accounting/profiles"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MetricsPort records posting outcomes.
type MetricsPort interface {
	ObservePosting(docType, result string)
	ObserveNumberRetry()
}

// Service implements the purchase invoice document poster.
type Service struct {
	repo     Repository
	engine   *accounting.Engine
	profiles profiles.Repository
	audit    accounting.AuditPort
	metrics  MetricsPort
	now      func() time.Time
}

// NewService constructs the AP service.
func NewService(repo Repository, engine *accounting.Engine, profileRepo profiles.Repository, audit accounting.AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, engine: engine, profiles: profileRepo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice computes totals from the item lines and persists a draft
// purchase invoice. Totals are always recomputed server-side.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if in.SupplierID == 0 {
		return Invoice{}, errors.New("ap: supplier is required")
	}
	if len(in.Lines) == 0 {
		return Invoice{}, errors.New("ap: at least one line is required")
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = s.now()
	}
	if in.DueDate.IsZero() {
		in.DueDate = in.InvoiceDate.AddDate(0, 0, 30)
	}

	inv := Invoice{
		OrgID:              in.OrgID,
		ExternalID:         uuid.New(),
		Number:             in.Number,
		SupplierID:         in.SupplierID,
		GRNID:              in.GRNID,
		InvoiceDate:        in.InvoiceDate,
		DueDate:            in.DueDate,
		ShippingCharges:    in.ShippingCharges,
		OtherCharges:       in.OtherCharges,
		Status:             StatusDraft,
		MatchStatus:        MatchPending,
		PayableAccountCode: in.PayableAccountCode,
		ExpenseAccountCode: in.ExpenseAccountCode,
		TaxAccountCode:     in.TaxAccountCode,
		CreatedBy:          in.CreatedBy,
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return Invoice{}, errors.New("ap: line quantity must be positive and price non-negative")
		}
		if l.GRNLineID != nil && inv.GRNID == nil {
			return Invoice{}, errors.New("ap: line references a goods receipt but the invoice has none")
		}
		inv.Lines = append(inv.Lines, InvoiceLine{
			GRNLineID:   l.GRNLineID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
			MatchStatus: MatchPending,
		})
	}
	inv.ComputeTotals()

	var created Invoice
	err := accounting.WithNumberingRetry(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, err := tx.NextInvoiceSequence(ctx, in.OrgID, inv.InvoiceDate.Year())
			if err != nil {
				return err
			}
			if inv.Number == "" {
				inv.Number = fmt.Sprintf("PINV-%d-%05d", inv.InvoiceDate.Year(), seq)
			}
			inserted, err := tx.InsertInvoice(ctx, inv, seq)
			if err != nil {
				if errors.Is(err, errNumberConflict) {
					return accounting.ErrVoucherNumberConflict
				}
				return err
			}
			created = inserted
			return nil
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// VerifyInvoice runs the 3-way match against the linked goods receipt and
// records the verdict per line and for the invoice. The verdict is advisory:
// a mismatched invoice still moves to VERIFIED so a human can decide.
func (s *Service) VerifyInvoice(ctx context.Context, orgID, invoiceID, actorID int64) (Invoice, []MatchResult, error) {
	var (
		verified Invoice
		results  []MatchResult
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft && inv.Status != StatusVerified {
			return fmt.Errorf("%w: invoice is %s", ErrInvalidStatus, inv.Status)
		}
		lines, err := tx.GetInvoiceLines(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.Lines = lines

		received := map[int64]float64{}
		if inv.GRNID != nil {
			received, err = tx.GetGRNLineQuantities(ctx, orgID, *inv.GRNID)
			if err != nil {
				return err
			}
		}

		var overall MatchStatus
		results, overall = MatchLines(inv.Lines, received)
		for _, res := range results {
			if err := tx.UpdateLineMatchStatus(ctx, res.LineID, res.Status); err != nil {
				return err
			}
		}
		now := s.now()
		if err := tx.UpdateInvoiceMatch(ctx, inv.ID, StatusVerified, overall, now); err != nil {
			return err
		}
		inv.Status = StatusVerified
		inv.MatchStatus = overall
		verified = inv
		return nil
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	s.record(ctx, orgID, actorID, "invoice.verify", verified.ID, map[string]any{"number": verified.Number, "match_status": verified.MatchStatus})
	return verified, results, nil
}

// ApproveInvoice moves a verified invoice to APPROVED. Mismatched invoices
// require the force flag, which is the human override for tolerable
// quantity differences.
func (s *Service) ApproveInvoice(ctx context.Context, orgID, invoiceID, actorID int64, force bool) (Invoice, error) {
	var approved Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusVerified {
			return fmt.Errorf("%w: invoice must be verified before approval", ErrInvalidStatus)
		}
		if inv.MatchStatus == MatchMismatched && !force {
			return fmt.Errorf("%w: invoice failed the 3-way match", ErrInvalidStatus)
		}
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, StatusApproved, s.now()); err != nil {
			return err
		}
		inv.Status = StatusApproved
		approved = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, orgID, actorID, "invoice.approve", approved.ID, map[string]any{"number": approved.Number, "forced": force})
	return approved, nil
}

// PostInvoice irreversibly converts a purchase invoice into a balanced
// voucher and ledger entries, all inside one transaction. Failure at any
// step rolls the whole posting back, leaving the invoice unposted.
func (s *Service) PostInvoice(ctx context.Context, orgID, invoiceID, actorID int64) (Invoice, error) {
	profile, err := s.profiles.GetProfile(ctx, orgID)
	if err != nil {
		return Invoice{}, err
	}

	var posted Invoice
	attempt := 0
	err = accounting.WithNumberingRetry(func() error {
		attempt++
		if attempt > 1 && s.metrics != nil {
			s.metrics.ObserveNumberRetry()
		}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			inv, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
			if err != nil {
				return err
			}
			if inv.IsPosted {
				return ErrAlreadyPosted
			}
			if inv.Status == StatusCancelled || inv.Status == StatusVoid {
				return fmt.Errorf("%w: invoice is %s", ErrInvalidStatus, inv.Status)
			}

			acct := tx.Accounting()
			lookup := func(code string) (accounting.Account, error) {
				return acct.GetAccountByCode(ctx, orgID, code)
			}
			expense, err := profile.Resolve(profiles.RoleExpense, inv.ExpenseAccountCode, lookup)
			if err != nil {
				return err
			}
			payable, err := profile.Resolve(profiles.RolePayable, inv.PayableAccountCode, lookup)
			if err != nil {
				return err
			}

			// Line order: debits first (expense, then recoverable tax),
			// then the payable credit for the full amount.
			entries := []accounting.EntryInput{
				{AccountID: expense.ID, Side: accounting.SideDebit, Amount: inv.TaxableAmount + inv.ShippingCharges + inv.OtherCharges, Description: "Expense for " + inv.Number},
			}
			if inv.TotalTax > 0 {
				taxInput, err := profile.Resolve(profiles.RoleTaxInput, inv.TaxAccountCode, lookup)
				if err != nil {
					return err
				}
				entries = append(entries, accounting.EntryInput{AccountID: taxInput.ID, Side: accounting.SideDebit, Amount: inv.TotalTax, Description: "Input tax on " + inv.Number})
			}
			entries = append(entries, accounting.EntryInput{AccountID: payable.ID, Side: accounting.SideCredit, Amount: inv.TotalAmount, Description: "Payable for " + inv.Number})

			voucher, err := s.engine.CreateAndPostVoucher(ctx, acct, accounting.VoucherInput{
				OrgID:        orgID,
				Type:         accounting.VoucherTypeJournal,
				Date:         inv.InvoiceDate,
				Narration:    "Purchase invoice " + inv.Number,
				Reference:    inv.Number,
				SourceModule: "AP",
				SourceID:     inv.ExternalID,
				Entries:      entries,
			}, actorID)
			if err != nil {
				return err
			}

			now := s.now()
			if err := tx.AdjustSupplierBalance(ctx, orgID, inv.SupplierID, inv.TotalAmount, now); err != nil {
				return err
			}
			if err := tx.MarkInvoicePosted(ctx, inv.ID, voucher.ID, actorID, now); err != nil {
				return err
			}

			inv.Status = StatusPosted
			inv.IsPosted = true
			inv.VoucherID = &voucher.ID
			inv.PostedAt = &now
			inv.PostedBy = &actorID
			posted = inv
			return nil
		})
	})
	if err != nil {
		s.observe("failure")
		return Invoice{}, err
	}
	s.observe("success")
	s.record(ctx, orgID, actorID, "invoice.post", posted.ID, map[string]any{"number": posted.Number, "voucher_id": *posted.VoucherID})
	return posted, nil
}

// VoidInvoice voids a posted invoice, reversing the voucher's ledger effects
// and the supplier balance in the same transaction. A voided invoice cannot
// be re-posted.
func (s *Service) VoidInvoice(ctx context.Context, orgID, invoiceID, actorID int64, reason string) (Invoice, error) {
	var voided Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusPosted || inv.VoucherID == nil {
			return fmt.Errorf("%w: only posted invoices can be voided", ErrInvalidStatus)
		}
		if _, err := s.engine.VoidVoucher(ctx, tx.Accounting(), orgID, *inv.VoucherID, actorID, reason); err != nil {
			return err
		}
		now := s.now()
		if err := tx.AdjustSupplierBalance(ctx, orgID, inv.SupplierID, -inv.TotalAmount, now); err != nil {
			return err
		}
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, StatusVoid, now); err != nil {
			return err
		}
		inv.Status = StatusVoid
		voided = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, orgID, actorID, "invoice.void", voided.ID, map[string]any{"number": voided.Number, "reason": reason})
	return voided, nil
}

// GetInvoice loads one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, orgID, invoiceID int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, orgID, invoiceID)
}

// ListInvoices returns invoices filtered by status.
func (s *Service) ListInvoices(ctx context.Context, orgID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, orgID, status, limit, offset)
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObservePosting("purchase_invoice", result)
	}
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
