package banking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_DemoAccounts(t *testing.T) {
	l := NewLedger()

	accts := l.Accounts("user-1", "")
	require.Len(t, accts, 3)

	checking := l.Accounts("user-1", "checking")
	require.Len(t, checking, 1)
	assert.Equal(t, 5000.0, checking[0].Balance)

	cc, err := l.Account("user-1", "credit_card")
	require.NoError(t, err)
	assert.Equal(t, 3800.0, cc.Available())
}

func TestLedger_TransferBetweenOwnAccounts(t *testing.T) {
	l := NewLedger()

	tr, err := l.Transfer("user-1", "checking", "savings", 250, "rainy day")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tr.ConfirmationNumber, "TXN"))
	assert.Len(t, tr.ConfirmationNumber, 15)
	assert.Equal(t, strings.ToUpper(tr.ConfirmationNumber), tr.ConfirmationNumber)

	checking, _ := l.Account("user-1", "checking")
	savings, _ := l.Account("user-1", "savings")
	assert.Equal(t, 4750.0, checking.Balance)
	assert.Equal(t, 12250.0, savings.Balance)
}

func TestLedger_TransferExternal(t *testing.T) {
	l := NewLedger()

	_, err := l.Transfer("user-1", "savings", "Acme Utilities", 1000, "")
	require.NoError(t, err)

	savings, _ := l.Account("user-1", "savings")
	assert.Equal(t, 11000.0, savings.Balance)
}

func TestLedger_TransferErrors(t *testing.T) {
	l := NewLedger()

	_, err := l.Transfer("user-1", "checking", "Acme", 9999, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = l.Transfer("user-1", "brokerage", "Acme", 10, "")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = l.Transfer("user-1", "checking", "Acme", 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	checking, _ := l.Account("user-1", "checking")
	assert.Equal(t, 5000.0, checking.Balance, "failed transfers leave balances alone")
}

func TestLedger_UsersAreIsolated(t *testing.T) {
	l := NewLedger()

	_, err := l.Transfer("user-1", "checking", "Acme", 100, "")
	require.NoError(t, err)

	other, _ := l.Account("user-2", "checking")
	assert.Equal(t, 5000.0, other.Balance)
}
