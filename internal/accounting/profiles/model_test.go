package profiles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

func TestCodeForFallsBackToDefaults(t *testing.T) {
	p := Profile{Codes: map[Role]string{RoleRevenue: "4100"}}

	require.Equal(t, "4100", p.CodeFor(RoleRevenue))
	require.Equal(t, "1200", p.CodeFor(RoleReceivable))
	require.Equal(t, "1000", p.CodeFor(RoleCash))
	require.Equal(t, "2102", p.CodeFor(RoleTaxPayable))
}

func TestResolveOrder(t *testing.T) {
	accounts := map[string]accounting.Account{
		"1200": {ID: 1, Code: "1200"},
		"1210": {ID: 2, Code: "1210"},
		"1220": {ID: 3, Code: "1220"},
	}
	lookup := func(code string) (accounting.Account, error) {
		if a, ok := accounts[code]; ok {
			return a, nil
		}
		return accounting.Account{}, accounting.ErrAccountNotFound
	}

	// Default code when neither profile nor override is set.
	p := Profile{}
	account, err := p.Resolve(RoleReceivable, "", lookup)
	require.NoError(t, err)
	require.Equal(t, "1200", account.Code)

	// Profile entry wins over the default.
	p.Codes = map[Role]string{RoleReceivable: "1210"}
	account, err = p.Resolve(RoleReceivable, "", lookup)
	require.NoError(t, err)
	require.Equal(t, "1210", account.Code)

	// Document override wins over everything.
	account, err = p.Resolve(RoleReceivable, "1220", lookup)
	require.NoError(t, err)
	require.Equal(t, "1220", account.Code)
}

func TestResolveMissingAccountIsConfigurationError(t *testing.T) {
	lookup := func(string) (accounting.Account, error) {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	p := Profile{}

	_, err := p.Resolve(RolePayable, "", lookup)
	var cfgErr *accounting.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "PAYABLE", cfgErr.Role)
	require.Equal(t, "2100", cfgErr.Code)
}

func TestResolvePropagatesLookupFailures(t *testing.T) {
	lookupErr := errors.New("connection reset by peer")
	lookup := func(string) (accounting.Account, error) {
		return accounting.Account{}, lookupErr
	}
	p := Profile{}

	// Only a missing account is a setup problem; a failed lookup is not.
	_, err := p.Resolve(RoleRevenue, "", lookup)
	require.ErrorIs(t, err, lookupErr)
	var cfgErr *accounting.ConfigurationError
	require.False(t, errors.As(err, &cfgErr))
}
