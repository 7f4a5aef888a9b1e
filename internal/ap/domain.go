package ap

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus enumerates purchase invoice lifecycle values.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusVerified  InvoiceStatus = "VERIFIED"
	StatusApproved  InvoiceStatus = "APPROVED"
	StatusPosted    InvoiceStatus = "POSTED"
	StatusPaid      InvoiceStatus = "PAID"
	StatusVoid      InvoiceStatus = "VOID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// MatchStatus is the 3-way match verdict. It is advisory: it gates the
// approve step for humans but never blocks posting by itself.
type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchMatched    MatchStatus = "MATCHED"
	MatchMismatched MatchStatus = "MISMATCHED"
)

// MatchTolerance is the quantity difference tolerated per line, in units.
const MatchTolerance = 0.01

// Invoice is a purchase (supplier) invoice.
type Invoice struct {
	ID              int64
	OrgID           int64
	ExternalID      uuid.UUID
	Number          string
	SupplierID      int64
	GRNID           *int64
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
	MatchStatus     MatchStatus
	IsPosted        bool
	VoucherID       *int64
	PostedAt        *time.Time
	PostedBy        *int64

	// Optional per-document account overrides; empty means the posting
	// profile decides.
	PayableAccountCode string
	ExpenseAccountCode string
	TaxAccountCode     string

	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Lines     []InvoiceLine
}

// InvoiceLine is one item row on a purchase invoice. GRNLineID links the row
// to the goods receipt line it bills.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
	GRNLineID   *int64
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
	Subtotal    float64
	TaxAmount   float64
	Total       float64
	MatchStatus MatchStatus
	CreatedAt   time.Time
}

// CreateInvoiceInput groups fields for creating a purchase invoice.
type CreateInvoiceInput struct {
	OrgID              int64
	Number             string
	SupplierID         int64
	GRNID              *int64
	InvoiceDate        time.Time
	DueDate            time.Time
	ShippingCharges    float64
	OtherCharges       float64
	PayableAccountCode string
	ExpenseAccountCode string
	TaxAccountCode     string
	CreatedBy          int64
	Lines              []CreateInvoiceLineInput
}

// CreateInvoiceLineInput describes one item row.
type CreateInvoiceLineInput struct {
	GRNLineID   *int64
	ProductID   *int64
	Description string
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxPct      float64
}

// MatchResult reports one line's 3-way match outcome.
type MatchResult struct {
	LineID           int64
	GRNLineID        *int64
	InvoiceQuantity  float64
	ReceivedQuantity float64
	Status           MatchStatus
}

var (
	// ErrInvoiceNotFound indicates a missing or soft-deleted invoice.
	ErrInvoiceNotFound = errors.New("ap: invoice not found")
	// ErrAlreadyPosted indicates the invoice already produced a voucher.
	ErrAlreadyPosted = errors.New("ap: invoice already posted")
	// ErrInvalidStatus indicates the requested transition is not allowed.
	ErrInvalidStatus = errors.New("ap: invalid status for operation")
	// ErrGRNNotFound indicates the referenced goods receipt is missing.
	ErrGRNNotFound = errors.New("ap: goods receipt not found")
)

// ComputeTotals derives line and header totals from the item rows.
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

// MatchLines compares invoice quantities against received quantities keyed
// by GRN line. Lines without a GRN link are matched trivially. A single
// out-of-tolerance line marks the whole invoice mismatched.
func MatchLines(lines []InvoiceLine, received map[int64]float64) ([]MatchResult, MatchStatus) {
	overall := MatchMatched
	results := make([]MatchResult, 0, len(lines))
	for _, line := range lines {
		result := MatchResult{
			LineID:          line.ID,
			GRNLineID:       line.GRNLineID,
			InvoiceQuantity: line.Quantity,
			Status:          MatchMatched,
		}
		if line.GRNLineID != nil {
			qty, ok := received[*line.GRNLineID]
			result.ReceivedQuantity = qty
			diff := line.Quantity - qty
			if !ok || diff > MatchTolerance || diff < -MatchTolerance {
				result.Status = MatchMismatched
				overall = MatchMismatched
			}
		}
		results = append(results, result)
	}
	return results, overall
}
