package accounts

import (
	"context"
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

type seedAccount struct {
	Code     string
	Name     string
	Type     accounting.AccountType
	Category string
	Parent   string
	IsGroup  bool
}

// defaultChart is the minimal chart every new organization starts with. The
// leaf codes are the well-known fallbacks the posting profiles resolve to.
var defaultChart = []seedAccount{
	{Code: "1", Name: "Assets", Type: accounting.AccountTypeAsset, Category: "ASSETS", IsGroup: true},
	{Code: "2", Name: "Liabilities", Type: accounting.AccountTypeLiability, Category: "LIABILITIES", IsGroup: true},
	{Code: "3", Name: "Equity", Type: accounting.AccountTypeEquity, Category: "EQUITY", IsGroup: true},
	{Code: "4", Name: "Revenue", Type: accounting.AccountTypeRevenue, Category: "REVENUE", IsGroup: true},
	{Code: "5", Name: "Expenses", Type: accounting.AccountTypeExpense, Category: "EXPENSES", IsGroup: true},

	{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Category: "CURRENT_ASSETS", Parent: "1"},
	{Code: "1200", Name: "Accounts Receivable", Type: accounting.AccountTypeAsset, Category: "CURRENT_ASSETS", Parent: "1"},
	{Code: "1300", Name: "Tax Input Credit", Type: accounting.AccountTypeAsset, Category: "CURRENT_ASSETS", Parent: "1"},
	{Code: "2100", Name: "Accounts Payable", Type: accounting.AccountTypeLiability, Category: "CURRENT_LIABILITIES", Parent: "2"},
	{Code: "2102", Name: "Tax Payable", Type: accounting.AccountTypeLiability, Category: "CURRENT_LIABILITIES", Parent: "2"},
	{Code: "3000", Name: "Opening Balance Equity", Type: accounting.AccountTypeEquity, Category: "EQUITY", Parent: "3"},
	{Code: "4001", Name: "Sales Revenue", Type: accounting.AccountTypeRevenue, Category: "OPERATING_REVENUE", Parent: "4"},
	{Code: "5001", Name: "Purchases", Type: accounting.AccountTypeExpense, Category: "COST_OF_SALES", Parent: "5"},
}

// SeedDefaultChart creates the default chart of accounts for an organization
// inside the supplied transaction. Existing codes are left untouched.
func SeedDefaultChart(ctx context.Context, tx accounting.TxRepository, orgID int64) error {
	ids := make(map[string]int64, len(defaultChart))
	for _, seed := range defaultChart {
		if existing, err := tx.GetAccountByCode(ctx, orgID, seed.Code); err == nil {
			ids[seed.Code] = existing.ID
			continue
		} else if !errors.Is(err, accounting.ErrAccountNotFound) {
			return err
		}
		account := accounting.Account{
			OrgID:    orgID,
			Code:     seed.Code,
			Name:     seed.Name,
			Type:     seed.Type,
			Category: seed.Category,
			Level:    1,
			IsGroup:  seed.IsGroup,
			IsActive: true,
		}
		if seed.Parent != "" {
			parentID, ok := ids[seed.Parent]
			if !ok {
				parent, err := tx.GetAccountByCode(ctx, orgID, seed.Parent)
				if err != nil {
					return err
				}
				parentID = parent.ID
			}
			account.ParentID = &parentID
			account.Level = 2
		}
		inserted, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		ids[seed.Code] = inserted.ID
	}
	return nil
}
