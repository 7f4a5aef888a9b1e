package pos

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

// Service implements the walk-in sale document poster.
type Service struct {
	repo     Repository
	engine   *accounting.Engine
	profiles profiles.Repository
	audit    accounting.AuditPort
	metrics  MetricsPort
	now      func() time.Time
}

// NewService constructs the POS service.
func NewService(repo Repository, engine *accounting.Engine, profileRepo profiles.Repository, audit accounting.AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, engine: engine, profiles: profileRepo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSale computes totals from the item lines and persists a draft
// walk-in sale. Totals are always recomputed server-side.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (Sale, error) {
	if len(in.Lines) == 0 {
		return Sale{}, errors.New("pos: at least one line is required")
	}
	if in.SaleDate.IsZero() {
		in.SaleDate = s.now()
	}

	sale := Sale{
		OrgID:              in.OrgID,
		ExternalID:         uuid.New(),
		Number:             in.Number,
		SaleDate:           in.SaleDate,
		ShippingCharges:    in.ShippingCharges,
		OtherCharges:       in.OtherCharges,
		Status:             StatusDraft,
		CashAccountCode:    in.CashAccountCode,
		RevenueAccountCode: in.RevenueAccountCode,
		TaxAccountCode:     in.TaxAccountCode,
		CreatedBy:          in.CreatedBy,
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return Sale{}, errors.New("pos: line quantity must be positive and price non-negative")
		}
		sale.Lines = append(sale.Lines, SaleLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
		})
	}
	sale.ComputeTotals()

	var created Sale
	err := accounting.WithNumberingRetry(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, err := tx.NextSaleSequence(ctx, in.OrgID, sale.SaleDate.Year())
			if err != nil {
				return err
			}
			if sale.Number == "" {
				sale.Number = fmt.Sprintf("WS-%d-%05d", sale.SaleDate.Year(), seq)
			}
			inserted, err := tx.InsertSale(ctx, sale, seq)
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
		return Sale{}, err
	}
	return created, nil
}

// PostSale converts the sale into a receipt voucher: cash is debited for the
// full amount, revenue and tax-payable are credited. Walk-in sales are cash
// settled, so the receivable leg of the AR flow never appears here.
func (s *Service) PostSale(ctx context.Context, orgID, saleID, actorID int64) (Sale, error) {
	profile, err := s.profiles.GetProfile(ctx, orgID)
	if err != nil {
		return Sale{}, err
	}

	var posted Sale
	attempt := 0
	err = accounting.WithNumberingRetry(func() error {
		attempt++
		if attempt > 1 && s.metrics != nil {
			s.metrics.ObserveNumberRetry()
		}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sale, err := tx.GetSaleForUpdate(ctx, orgID, saleID)
			if err != nil {
				return err
			}
			if sale.IsPosted {
				return ErrAlreadyPosted
			}
			if sale.Status == StatusVoid {
				return fmt.Errorf("%w: sale is %s", ErrInvalidStatus, sale.Status)
			}

			acct := tx.Accounting()
			lookup := func(code string) (accounting.Account, error) {
				return acct.GetAccountByCode(ctx, orgID, code)
			}
			cash, err := profile.Resolve(profiles.RoleCash, sale.CashAccountCode, lookup)
			if err != nil {
				return err
			}
			revenue, err := profile.Resolve(profiles.RoleRevenue, sale.RevenueAccountCode, lookup)
			if err != nil {
				return err
			}

			entries := []accounting.EntryInput{
				{AccountID: cash.ID, Side: accounting.SideDebit, Amount: sale.TotalAmount, Description: "Cash received for " + sale.Number},
				{AccountID: revenue.ID, Side: accounting.SideCredit, Amount: sale.TaxableAmount + sale.ShippingCharges + sale.OtherCharges, Description: "Revenue for " + sale.Number},
			}
			if sale.TotalTax > 0 {
				tax, err := profile.Resolve(profiles.RoleTaxPayable, sale.TaxAccountCode, lookup)
				if err != nil {
					return err
				}
				entries = append(entries, accounting.EntryInput{AccountID: tax.ID, Side: accounting.SideCredit, Amount: sale.TotalTax, Description: "Tax on " + sale.Number})
			}

			voucher, err := s.engine.CreateAndPostVoucher(ctx, acct, accounting.VoucherInput{
				OrgID:        orgID,
				Type:         accounting.VoucherTypeReceipt,
				Date:         sale.SaleDate,
				Narration:    "Walk-in sale " + sale.Number,
				Reference:    sale.Number,
				SourceModule: "POS",
				SourceID:     sale.ExternalID,
				Entries:      entries,
			}, actorID)
			if err != nil {
				return err
			}

			now := s.now()
			if err := tx.MarkSalePosted(ctx, sale.ID, voucher.ID, actorID, now); err != nil {
				return err
			}

			sale.Status = StatusPosted
			sale.IsPosted = true
			sale.VoucherID = &voucher.ID
			sale.PostedAt = &now
			sale.PostedBy = &actorID
			posted = sale
			return nil
		})
	})
	if err != nil {
		s.observe("failure")
		return Sale{}, err
	}
	s.observe("success")
	s.record(ctx, orgID, actorID, "sale.post", posted.ID, map[string]any{"number": posted.Number, "voucher_id": *posted.VoucherID})
	return posted, nil
}

// VoidSale voids a posted sale, reversing the voucher's ledger effects in
// the same transaction. A voided sale cannot be re-posted.
func (s *Service) VoidSale(ctx context.Context, orgID, saleID, actorID int64, reason string) (Sale, error) {
	var voided Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, orgID, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusPosted || sale.VoucherID == nil {
			return fmt.Errorf("%w: only posted sales can be voided", ErrInvalidStatus)
		}
		if _, err := s.engine.VoidVoucher(ctx, tx.Accounting(), orgID, *sale.VoucherID, actorID, reason); err != nil {
			return err
		}
		if err := tx.UpdateSaleStatus(ctx, sale.ID, StatusVoid, s.now()); err != nil {
			return err
		}
		sale.Status = StatusVoid
		voided = sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.record(ctx, orgID, actorID, "sale.void", voided.ID, map[string]any{"number": voided.Number, "reason": reason})
	return voided, nil
}

// GetSale loads one sale with its lines.
func (s *Service) GetSale(ctx context.Context, orgID, saleID int64) (Sale, error) {
	return s.repo.GetSale(ctx, orgID, saleID)
}

// ListSales returns sales filtered by status.
func (s *Service) ListSales(ctx context.Context, orgID int64, status SaleStatus, limit, offset int) ([]Sale, error) {
	return s.repo.ListSales(ctx, orgID, status, limit, offset)
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObservePosting("walkin_sale", result)
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
		Entity:   "walkin_sale",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
