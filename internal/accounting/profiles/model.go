// Package profiles resolves logical posting roles (receivable, revenue, tax)
// to concrete ledger accounts for one organization. Resolution order is:
// document-level override, the organization's posting profile, then the
// well-known default code.
package profiles

import (
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// Role names a logical slot in a posting template.
type Role string

const (
	RoleCash       Role = "CASH"
	RoleReceivable Role = "RECEIVABLE"
	RolePayable    Role = "PAYABLE"
	RoleRevenue    Role = "REVENUE"
	RoleExpense    Role = "EXPENSE"
	RoleTaxPayable Role = "TAX_PAYABLE"
	RoleTaxInput   Role = "TAX_INPUT"
)

// DefaultCodes are the well-known account codes used when an organization
// has not configured a profile entry for a role. They match the seeded chart.
var DefaultCodes = map[Role]string{
	RoleCash:       "1000",
	RoleReceivable: "1200",
	RolePayable:    "2100",
	RoleRevenue:    "4001",
	RoleExpense:    "5001",
	RoleTaxPayable: "2102",
	RoleTaxInput:   "1300",
}

// Profile is an organization's configured role-to-code mapping.
type Profile struct {
	OrgID int64
	Codes map[Role]string
}

// CodeFor returns the code configured for a role, or the well-known default.
func (p Profile) CodeFor(role Role) string {
	if code, ok := p.Codes[role]; ok && code != "" {
		return code
	}
	return DefaultCodes[role]
}

// Resolve looks up the account for a role within the caller's transaction.
// An explicit override code on the document wins over the profile. A missing
// account is a setup problem, reported as a ConfigurationError naming the
// code so an administrator can fix the chart.
func (p Profile) Resolve(role Role, override string, lookup func(code string) (accounting.Account, error)) (accounting.Account, error) {
	code := p.CodeFor(role)
	if override != "" {
		code = override
	}
	if code == "" {
		return accounting.Account{}, &accounting.ConfigurationError{Role: string(role), Code: "(unset)"}
	}
	account, err := lookup(code)
	if errors.Is(err, accounting.ErrAccountNotFound) {
		return accounting.Account{}, &accounting.ConfigurationError{Role: string(role), Code: code}
	}
	if err != nil {
		return accounting.Account{}, err
	}
	return account, nil
}
