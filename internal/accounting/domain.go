package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates CoA classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// EntrySide is the debit or credit side of a posting.
type EntrySide string

const (
	SideDebit  EntrySide = "DEBIT"
	SideCredit EntrySide = "CREDIT"
)

// VoucherType enumerates voucher classes.
type VoucherType string

const (
	VoucherTypeJournal VoucherType = "JV"
	VoucherTypePayment VoucherType = "PV"
	VoucherTypeReceipt VoucherType = "RV"
	VoucherTypeContra  VoucherType = "CV"
)

// VoucherStatus enumerates voucher lifecycle values.
type VoucherStatus string

const (
	VoucherStatusDraft  VoucherStatus = "DRAFT"
	VoucherStatusPosted VoucherStatus = "POSTED"
	VoucherStatusVoid   VoucherStatus = "VOID"
)

// LedgerEntryStatus enumerates ledger entry states.
type LedgerEntryStatus string

const (
	LedgerStatusActive LedgerEntryStatus = "ACTIVE"
	LedgerStatusVoid   LedgerEntryStatus = "VOID"
)

// DefaultBalanceTolerance is the absolute debit/credit mismatch tolerated
// when validating a voucher, in currency units.
const DefaultBalanceTolerance = 0.01

// balanceSlack absorbs float64 representation error so a mismatch of exactly
// the tolerance is still accepted (100.01 - 100 > 0.01 in float64).
const balanceSlack = 1e-9

// MaxAccountLevel bounds the CoA hierarchy depth.
const MaxAccountLevel = 5

// NormalBalanceOf derives the side on which an account type naturally
// increases. This is fully determined by the type and never stored.
func NormalBalanceOf(t AccountType) EntrySide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// ValidAccountType reports whether t is a known classification.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Account models a chart of accounts node scoped to one organization.
type Account struct {
	ID             int64
	OrgID          int64
	Code           string
	Name           string
	Type           AccountType
	Category       string
	ParentID       *int64
	Level          int16
	IsGroup        bool
	OpeningBalance float64
	CurrentBalance float64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// NormalBalance returns the account's increasing side.
func (a Account) NormalBalance() EntrySide {
	return NormalBalanceOf(a.Type)
}

// NextBalance applies one balance delta: an entry on the account's normal
// side increases the balance, the opposite side decreases it. Voiding calls
// this with the amount negated, so the single rule governs both directions.
func NextBalance(current float64, normal, side EntrySide, amount float64) float64 {
	if side == normal {
		return current + amount
	}
	return current - amount
}

// ApplyDelta mutates the cached balance and returns the new value.
func (a *Account) ApplyDelta(side EntrySide, amount float64) float64 {
	a.CurrentBalance = NextBalance(a.CurrentBalance, a.NormalBalance(), side, amount)
	return a.CurrentBalance
}

// VoucherEntry is one debit or credit line of a voucher.
type VoucherEntry struct {
	ID            int64
	VoucherID     int64
	AccountID     int64
	Side          EntrySide
	Amount        float64
	Description   string
	LedgerEntryID *int64
	CreatedAt     time.Time
}

// Voucher is a balanced batch of debit/credit lines for one accounting event.
type Voucher struct {
	ID           int64
	OrgID        int64
	Number       string
	Type         VoucherType
	Date         time.Time
	FiscalYear   int
	FiscalPeriod string
	Narration    string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	Entries      []VoucherEntry
	TotalDebit   float64
	TotalCredit  float64
	Status       VoucherStatus
	PostedAt     *time.Time
	PostedBy     *int64
	VoidedAt     *time.Time
	VoidedBy     *int64
	VoidReason   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EntryInput describes one voucher line supplied by a caller.
type EntryInput struct {
	AccountID   int64
	Side        EntrySide
	Amount      float64
	Description string
}

// VoucherInput groups the fields required to build a draft voucher.
type VoucherInput struct {
	OrgID        int64
	Type         VoucherType
	Date         time.Time
	Narration    string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	Entries      []EntryInput
}

// NewVoucher constructs a draft voucher. Totals are recomputed from the
// entry list, never trusted from the caller, and the fiscal year and period
// are derived from the voucher date.
func NewVoucher(in VoucherInput, fiscalStartMonth time.Month, now time.Time) Voucher {
	v := Voucher{
		OrgID:        in.OrgID,
		Type:         in.Type,
		Date:         in.Date,
		FiscalYear:   shared.FiscalYearOf(in.Date, fiscalStartMonth),
		FiscalPeriod: shared.FiscalPeriodOf(in.Date),
		Narration:    in.Narration,
		Reference:    in.Reference,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Status:       VoucherStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, e := range in.Entries {
		v.Entries = append(v.Entries, VoucherEntry{
			AccountID:   e.AccountID,
			Side:        e.Side,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   now,
		})
	}
	v.ComputeTotals()
	return v
}

// ComputeTotals refreshes TotalDebit/TotalCredit from the entry list.
func (v *Voucher) ComputeTotals() {
	var debit, credit float64
	for _, e := range v.Entries {
		switch e.Side {
		case SideDebit:
			debit += e.Amount
		case SideCredit:
			credit += e.Amount
		}
	}
	v.TotalDebit = debit
	v.TotalCredit = credit
}

// ValidateDoubleEntry returns the ordered list of double-entry violations.
// An empty list means the voucher may be posted.
func (v *Voucher) ValidateDoubleEntry(tolerance float64) []string {
	if tolerance <= 0 {
		tolerance = DefaultBalanceTolerance
	}
	v.ComputeTotals()

	var violations []string
	if len(v.Entries) < 2 {
		violations = append(violations, "voucher requires at least two entries")
	}

	var hasDebit, hasCredit bool
	seen := make(map[string]bool, len(v.Entries))
	for idx, e := range v.Entries {
		if e.AccountID == 0 {
			violations = append(violations, fmt.Sprintf("entry %d: account is required", idx+1))
		}
		if e.Side != SideDebit && e.Side != SideCredit {
			violations = append(violations, fmt.Sprintf("entry %d: side must be DEBIT or CREDIT", idx+1))
			continue
		}
		if e.Amount <= 0 {
			violations = append(violations, fmt.Sprintf("entry %d: amount must be greater than zero", idx+1))
		}
		if e.Side == SideDebit {
			hasDebit = true
		} else {
			hasCredit = true
		}
		key := fmt.Sprintf("%d/%s", e.AccountID, e.Side)
		if seen[key] {
			violations = append(violations, fmt.Sprintf("duplicate %s entry for account %d", strings.ToLower(string(e.Side)), e.AccountID))
		}
		seen[key] = true
	}
	if !hasDebit {
		violations = append(violations, "voucher requires at least one debit entry")
	}
	if !hasCredit {
		violations = append(violations, "voucher requires at least one credit entry")
	}
	if diff := v.TotalDebit - v.TotalCredit; diff > tolerance+balanceSlack || diff < -(tolerance+balanceSlack) {
		violations = append(violations, fmt.Sprintf("debit total %.2f does not equal credit total %.2f", v.TotalDebit, v.TotalCredit))
	}
	return violations
}

// Post transitions the voucher from draft to posted. It fails closed on any
// double-entry violation. Writing ledger entries is the ledger writer's job.
func (v *Voucher) Post(actorID int64, tolerance float64, now time.Time) error {
	if v.Status != VoucherStatusDraft {
		return fmt.Errorf("%w: cannot post %s voucher", ErrInvalidStatus, v.Status)
	}
	if violations := v.ValidateDoubleEntry(tolerance); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	v.Status = VoucherStatusPosted
	v.PostedAt = &now
	v.PostedBy = &actorID
	v.UpdatedAt = now
	return nil
}

// Void transitions a posted voucher to void. Draft vouchers must be deleted
// instead, and voiding twice is rejected.
func (v *Voucher) Void(actorID int64, reason string, now time.Time) error {
	if v.Status != VoucherStatusPosted {
		return fmt.Errorf("%w: cannot void %s voucher", ErrInvalidStatus, v.Status)
	}
	v.Status = VoucherStatusVoid
	v.VoidedAt = &now
	v.VoidedBy = &actorID
	v.VoidReason = reason
	v.UpdatedAt = now
	return nil
}

// FormatVoucherNumber renders {TYPE}-{fiscalYear}-{seq} with a zero-padded
// four digit sequence.
func FormatVoucherNumber(t VoucherType, fiscalYear int, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", t, shared.FiscalYearLabel(fiscalYear), seq)
}

// LedgerEntry is one immutable row recording a single account's debit or
// credit effect from a posted voucher, including the running balance
// immediately after the entry was applied.
type LedgerEntry struct {
	ID             int64
	OrgID          int64
	AccountID      int64
	VoucherID      int64
	VoucherNumber  string
	VoucherType    VoucherType
	EntryDate      time.Time
	FiscalYear     int
	FiscalPeriod   string
	Side           EntrySide
	Amount         float64
	RunningBalance float64
	Status         LedgerEntryStatus
	VoidedAt       *time.Time
	VoidedBy       *int64
	VoidReason     string
	CreatedBy      int64
	CreatedAt      time.Time
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrVoucherNotFound indicates a missing voucher.
	ErrVoucherNotFound = errors.New("accounting: voucher not found")
	// ErrInvalidStatus indicates an illegal lifecycle transition.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrGroupAccountPosting indicates a posting against a structural account.
	ErrGroupAccountPosting = errors.New("accounting: group accounts cannot receive ledger postings")
	// ErrAccountInactive indicates a posting against a deactivated account.
	ErrAccountInactive = errors.New("accounting: account is inactive")
	// ErrAccountHasActivity blocks deleting accounts with ledger history or children.
	ErrAccountHasActivity = errors.New("accounting: account has ledger activity or child accounts")
	// ErrVoucherNumberConflict indicates a unique constraint collision on the
	// generated voucher number; the posting transaction is retried.
	ErrVoucherNumberConflict = errors.New("accounting: voucher number conflict")
	// ErrDuplicateAccountCode indicates the code is taken within the organization.
	ErrDuplicateAccountCode = errors.New("accounting: account code already exists")
)

// ValidationError carries the ordered list of double-entry violations that
// blocked a posting.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "accounting: validation failed: " + strings.Join(e.Violations, "; ")
}

// ConfigurationError indicates a required well-known account is absent from
// the organization's chart of accounts.
type ConfigurationError struct {
	Role string
	Code string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("accounting: no account with code %s configured for role %s", e.Code, e.Role)
}
