package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// CreateAccountInput groups fields for a new chart of accounts node.
type CreateAccountInput struct {
	OrgID          int64
	Code           string
	Name           string
	Type           accounting.AccountType
	Category       string
	ParentID       *int64
	IsGroup        bool
	OpeningBalance float64
}

// Service manages the chart of accounts.
type Service struct {
	repo Repository
	txs  accounting.RepositoryPort
	now  func() time.Time
}

// NewService constructs the account registry service.
func NewService(repo Repository, txs accounting.RepositoryPort) *Service {
	return &Service{repo: repo, txs: txs, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates hierarchy rules and persists a new account. The normal
// balance is derived from the type, never supplied.
func (s *Service) Create(ctx context.Context, in CreateAccountInput) (accounting.Account, error) {
	if in.Code == "" || in.Name == "" {
		return accounting.Account{}, errors.New("accounts: code and name are required")
	}
	if !accounting.ValidAccountType(in.Type) {
		return accounting.Account{}, fmt.Errorf("accounts: unknown account type %q", in.Type)
	}
	if in.IsGroup && in.OpeningBalance != 0 {
		return accounting.Account{}, errors.New("accounts: group accounts cannot carry balances")
	}

	account := accounting.Account{
		OrgID:          in.OrgID,
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		Category:       in.Category,
		ParentID:       in.ParentID,
		Level:          1,
		IsGroup:        in.IsGroup,
		OpeningBalance: in.OpeningBalance,
		CurrentBalance: in.OpeningBalance,
		IsActive:       true,
	}

	var created accounting.Account
	err := s.txs.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		if in.ParentID != nil {
			parent, err := tx.GetAccountForUpdate(ctx, in.OrgID, *in.ParentID)
			if err != nil {
				return err
			}
			if !parent.IsGroup {
				return errors.New("accounts: parent must be a group account")
			}
			if parent.Type != in.Type {
				return errors.New("accounts: child type must match parent type")
			}
			if parent.Level >= accounting.MaxAccountLevel {
				return fmt.Errorf("accounts: hierarchy exceeds %d levels", accounting.MaxAccountLevel)
			}
			account.Level = parent.Level + 1
		}
		inserted, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return accounting.Account{}, err
	}
	return created, nil
}

// Delete soft-deletes an account. Accounts with ledger activity or child
// accounts are kept forever.
func (s *Service) Delete(ctx context.Context, orgID, accountID int64) error {
	return s.txs.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		if _, err := tx.GetAccountForUpdate(ctx, orgID, accountID); err != nil {
			return err
		}
		entries, err := tx.CountLedgerEntriesByAccount(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		children, err := tx.CountChildAccounts(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		if entries > 0 || children > 0 {
			return accounting.ErrAccountHasActivity
		}
		return tx.SoftDeleteAccount(ctx, orgID, accountID, s.now())
	})
}

// List returns the organization's chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, orgID int64) ([]accounting.Account, error) {
	return s.repo.List(ctx, orgID)
}

// GetByCode looks up one account by its per-organization code.
func (s *Service) GetByCode(ctx context.Context, orgID int64, code string) (accounting.Account, error) {
	return s.repo.GetByCode(ctx, orgID, code)
}
