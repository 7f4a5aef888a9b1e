package pos

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SaleStatus enumerates walk-in sale lifecycle values. Walk-in sales are
// settled in cash at the counter, so there is no PAID step.
type SaleStatus string

const (
	StatusDraft  SaleStatus = "DRAFT"
	StatusPosted SaleStatus = "POSTED"
	StatusVoid   SaleStatus = "VOID"
)

// Sale is a counter sale to an anonymous customer.
type Sale struct {
	ID              int64
	OrgID           int64
	ExternalID      uuid.UUID
	Number          string
	SaleDate        time.Time
	Subtotal        float64
	DiscountAmount  float64
	TaxableAmount   float64
	TotalTax        float64
	ShippingCharges float64
	OtherCharges    float64
	TotalAmount     float64
	Status          SaleStatus
	IsPosted        bool
	VoucherID       *int64
	PostedAt        *time.Time
	PostedBy        *int64

	// Optional per-document account overrides; empty means the posting
	// profile decides.
	CashAccountCode    string
	RevenueAccountCode string
	TaxAccountCode     string

	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Lines     []SaleLine
}

// SaleLine is one item row on a walk-in sale.
type SaleLine struct {
	ID          int64
	SaleID      int64
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
	Subtotal    float64
	TaxAmount   float64
	Total       float64
	CreatedAt   time.Time
}

// CreateSaleInput groups fields for creating a walk-in sale.
type CreateSaleInput struct {
	OrgID              int64
	Number             string
	SaleDate           time.Time
	ShippingCharges    float64
	OtherCharges       float64
	CashAccountCode    string
	RevenueAccountCode string
	TaxAccountCode     string
	CreatedBy          int64
	Lines              []CreateSaleLineInput
}

// CreateSaleLineInput describes one item row.
type CreateSaleLineInput struct {
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
}

var (
	// ErrSaleNotFound indicates a missing or soft-deleted sale.
	ErrSaleNotFound = errors.New("pos: sale not found")
	// ErrAlreadyPosted indicates the sale already produced a voucher.
	ErrAlreadyPosted = errors.New("pos: sale already posted")
	// ErrInvalidStatus indicates the requested transition is not allowed.
	ErrInvalidStatus = errors.New("pos: invalid status for operation")
)

// ComputeTotals derives line and header totals from the item rows.
func (s *Sale) ComputeTotals() {
	var subtotal, discount, tax float64
	for i := range s.Lines {
		line := &s.Lines[i]
		gross := line.Quantity * line.UnitPrice
		lineDiscount := gross * line.DiscountPct / 100
		line.Subtotal = gross - lineDiscount
		line.TaxAmount = line.Subtotal * line.TaxPct / 100
		line.Total = line.Subtotal + line.TaxAmount
		subtotal += gross
		discount += lineDiscount
		tax += line.TaxAmount
	}
	s.Subtotal = subtotal
	s.DiscountAmount = discount
	s.TaxableAmount = subtotal - discount
	s.TotalTax = tax
	s.TotalAmount = s.TaxableAmount + s.TotalTax + s.ShippingCharges + s.OtherCharges
}
