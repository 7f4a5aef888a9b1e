package ar

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

// Service implements the sales invoice document poster.
type Service struct {
	repo     Repository
	engine   *accounting.Engine
	profiles profiles.Repository
	audit    accounting.AuditPort
	metrics  MetricsPort
	now      func() time.Time
}

// NewService constructs the AR service.
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
// sales invoice. Totals are always recomputed server-side.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if in.CustomerID == 0 {
		return Invoice{}, errors.New("ar: customer is required")
	}
	if len(in.Lines) == 0 {
		return Invoice{}, errors.New("ar: at least one line is required")
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = s.now()
	}
	if in.DueDate.IsZero() {
		in.DueDate = in.InvoiceDate.AddDate(0, 0, 30)
	}

	inv := Invoice{
		OrgID:                 in.OrgID,
		ExternalID:            uuid.New(),
		Number:                in.Number,
		CustomerID:            in.CustomerID,
		InvoiceDate:           in.InvoiceDate,
		DueDate:               in.DueDate,
		ShippingCharges:       in.ShippingCharges,
		OtherCharges:          in.OtherCharges,
		Status:                StatusDraft,
		ReceivableAccountCode: in.ReceivableAccountCode,
		RevenueAccountCode:    in.RevenueAccountCode,
		TaxAccountCode:        in.TaxAccountCode,
		CreatedBy:             in.CreatedBy,
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return Invoice{}, errors.New("ar: line quantity must be positive and price non-negative")
		}
		inv.Lines = append(inv.Lines, InvoiceLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
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
				inv.Number = fmt.Sprintf("INV-%d-%05d", inv.InvoiceDate.Year(), seq)
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

// PostInvoice irreversibly converts a sales invoice into a balanced voucher
// and ledger entries, all inside one transaction. Failure at any step rolls
// the whole posting back, leaving the invoice unposted.
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
			receivable, err := profile.Resolve(profiles.RoleReceivable, inv.ReceivableAccountCode, lookup)
			if err != nil {
				return err
			}
			revenue, err := profile.Resolve(profiles.RoleRevenue, inv.RevenueAccountCode, lookup)
			if err != nil {
				return err
			}

			// Line order: primary debit first, then credits in the
			// order revenue, tax.
			entries := []accounting.EntryInput{
				{AccountID: receivable.ID, Side: accounting.SideDebit, Amount: inv.TotalAmount, Description: "Receivable for " + inv.Number},
				{AccountID: revenue.ID, Side: accounting.SideCredit, Amount: inv.TaxableAmount + inv.ShippingCharges + inv.OtherCharges, Description: "Revenue for " + inv.Number},
			}
			if inv.TotalTax > 0 {
				tax, err := profile.Resolve(profiles.RoleTaxPayable, inv.TaxAccountCode, lookup)
				if err != nil {
					return err
				}
				entries = append(entries, accounting.EntryInput{AccountID: tax.ID, Side: accounting.SideCredit, Amount: inv.TotalTax, Description: "Tax on " + inv.Number})
			}

			voucher, err := s.engine.CreateAndPostVoucher(ctx, acct, accounting.VoucherInput{
				OrgID:        orgID,
				Type:         accounting.VoucherTypeJournal,
				Date:         inv.InvoiceDate,
				Narration:    "Sales invoice " + inv.Number,
				Reference:    inv.Number,
				SourceModule: "AR",
				SourceID:     inv.ExternalID,
				Entries:      entries,
			}, actorID)
			if err != nil {
				return err
			}

			now := s.now()
			if err := tx.AdjustCustomerBalance(ctx, orgID, inv.CustomerID, inv.TotalAmount, now); err != nil {
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
// and the customer balance in the same transaction. A voided invoice cannot
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
		if err := tx.AdjustCustomerBalance(ctx, orgID, inv.CustomerID, -inv.TotalAmount, now); err != nil {
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
		s.metrics.ObservePosting("sales_invoice", result)
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
		Entity:   "sales_invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
