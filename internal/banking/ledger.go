// Package banking is an in-process stand-in for the core banking system: a
// demo ledger, a one-time code issuer and the payment operations that
// suspend on an elicitation and resume once the user confirms.
package banking

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Account is one of a user's accounts.
type Account struct {
	Type        string  `json:"account_type"`
	Number      string  `json:"account_number"`
	Balance     float64 `json:"balance"`
	CreditLimit float64 `json:"credit_limit,omitempty"`
	Currency    string  `json:"currency"`
}

// Available is the spendable amount: the balance for deposit accounts and the
// unused limit for credit cards.
func (a Account) Available() float64 {
	if a.Type == "credit_card" {
		return a.CreditLimit - a.Balance
	}
	return a.Balance
}

// Transfer is the receipt for a completed payment.
type Transfer struct {
	ConfirmationNumber string    `json:"confirmation_number"`
	FromAccount        string    `json:"from_account"`
	ToAccount          string    `json:"to_account"`
	Amount             float64   `json:"amount"`
	Description        string    `json:"description,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Ledger holds demo accounts in memory. Every user gets the same opening
// balances on first access.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string][]*Account
	now      func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: map[string][]*Account{}, now: time.Now}
}

func demoAccounts(userID string) []*Account {
	suffix := strings.ToUpper(strings.ReplaceAll(userID, "-", ""))
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return []*Account{
		{Type: "checking", Number: "CHK00001" + suffix, Balance: 5000, Currency: "INR"},
		{Type: "savings", Number: "SAV00002" + suffix, Balance: 12000, Currency: "INR"},
		{Type: "credit_card", Number: "CC000003" + suffix, Balance: 1200, CreditLimit: 5000, Currency: "INR"},
	}
}

func (l *Ledger) userAccounts(userID string) []*Account {
	accts, ok := l.accounts[userID]
	if !ok {
		accts = demoAccounts(userID)
		l.accounts[userID] = accts
	}
	return accts
}

func find(accts []*Account, ref string) *Account {
	for _, a := range accts {
		if strings.EqualFold(a.Type, ref) || a.Number == ref {
			return a
		}
	}
	return nil
}

// Accounts returns copies of the user's accounts, optionally filtered by type.
func (l *Ledger) Accounts(userID, accountType string) []Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Account
	for _, a := range l.userAccounts(userID) {
		if accountType != "" && !strings.EqualFold(a.Type, accountType) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Account looks up one account by type or number.
func (l *Ledger) Account(userID, ref string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := find(l.userAccounts(userID), ref)
	if a == nil {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, ref)
	}
	return *a, nil
}

// Transfer debits from and, if to names another of the user's accounts,
// credits it. Any other destination is treated as an external payee.
func (l *Ledger) Transfer(userID, from, to string, amount float64, description string) (Transfer, error) {
	if amount <= 0 {
		return Transfer{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	accts := l.userAccounts(userID)
	src := find(accts, from)
	if src == nil {
		return Transfer{}, fmt.Errorf("%w: %s", ErrUnknownAccount, from)
	}
	if src.Available() < amount {
		return Transfer{}, fmt.Errorf("%w: %s has %.2f available", ErrInsufficientFunds, src.Type, src.Available())
	}

	if src.Type == "credit_card" {
		src.Balance += amount
	} else {
		src.Balance -= amount
	}
	if dst := find(accts, to); dst != nil && dst != src {
		if dst.Type == "credit_card" {
			dst.Balance -= amount
		} else {
			dst.Balance += amount
		}
	}

	return Transfer{
		ConfirmationNumber: confirmationNumber(),
		FromAccount:        src.Number,
		ToAccount:          to,
		Amount:             amount,
		Description:        description,
		Timestamp:          l.now().UTC(),
	}, nil
}

func confirmationNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN" + strings.ToUpper(hex[:12])
}
