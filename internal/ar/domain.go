package ar

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus enumerates sales invoice lifecycle values. The document
// lifecycle is independent of the voucher lifecycle; the two are linked only
// by the one-way voucher reference set at posting time.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusApproved  InvoiceStatus = "APPROVED"
	StatusPosted    InvoiceStatus = "POSTED"
	StatusPaid      InvoiceStatus = "PAID"
	StatusVoid      InvoiceStatus = "VOID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a sales invoice.
type Invoice struct {
	ID              int64
	OrgID           int64
	ExternalID      uuid.UUID
	Number          string
	CustomerID      int64
	InvoiceDate     time.Time
	DueDate         time.Time
	Subtotal        float64
	DiscountAmount  float64
	TaxableAmount   float64
	TotalTax        float64
	ShippingCharges float64
	OtherCharges    float64
	TotalAmount     float64
	Status          InvoiceStatus
	IsPosted        bool
	VoucherID       *int64
	PostedAt        *time.Time
	PostedBy        *int64
	// Optional per-document account overrides; empty means the posting
	// profile decides.
	ReceivableAccountCode string
	RevenueAccountCode    string
	TaxAccountCode        string
	CreatedBy             int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
	Lines                 []InvoiceLine
}

// InvoiceLine is one item row on a sales invoice.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
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

// CreateInvoiceInput groups fields for creating a sales invoice.
type CreateInvoiceInput struct {
	OrgID                 int64
	Number                string
	CustomerID            int64
	InvoiceDate           time.Time
	DueDate               time.Time
	ShippingCharges       float64
	OtherCharges          float64
	ReceivableAccountCode string
	RevenueAccountCode    string
	TaxAccountCode        string
	CreatedBy             int64
	Lines                 []CreateInvoiceLineInput
}

// CreateInvoiceLineInput describes one item row.
type CreateInvoiceLineInput struct {
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
}

var (
	// ErrInvoiceNotFound indicates a missing or soft-deleted invoice.
	ErrInvoiceNotFound = errors.New("ar: invoice not found")
	// ErrAlreadyPosted indicates the invoice already produced a voucher.
	ErrAlreadyPosted = errors.New("ar: invoice already posted")
	// ErrInvalidStatus indicates the requested transition is not allowed.
	ErrInvalidStatus = errors.New("ar: invalid status for operation")
)

// ComputeTotals derives line and header totals from the item rows plus
// charges. Taxable amount is the discounted subtotal; the grand total adds
// tax and charges.
func (inv *Invoice) ComputeTotals() {
	var subtotal, discount, tax float64
	for i := range inv.Lines {
		line := &inv.Lines[i]
		gross := line.Quantity * line.UnitPrice
		lineDiscount := gross * line.DiscountPct / 100
		line.Subtotal = gross - lineDiscount
		line.TaxAmount = line.Subtotal * line.TaxPct / 100
		line.Total = line.Subtotal + line.TaxAmount
		subtotal += gross
		discount += lineDiscount
		tax += line.TaxAmount
	}
	inv.Subtotal = subtotal
	inv.DiscountAmount = discount
	inv.TaxableAmount = subtotal - discount
	inv.TotalTax = tax
	inv.TotalAmount = inv.TaxableAmount + inv.TotalTax + inv.ShippingCharges + inv.OtherCharges
}
