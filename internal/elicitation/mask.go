package elicitation

import (
	"strings"
	"unicode"
)

// MaskAccount hides all but the last four characters of an account number.
// Named account types ("checking", "savings", "credit") are shown capitalised.
func MaskAccount(account string) string {
	if account == "" {
		return "Unknown"
	}
	switch strings.ToLower(account) {
	case "checking", "savings", "credit":
		return strings.ToUpper(account[:1]) + strings.ToLower(account[1:])
	}
	if len(account) > 4 {
		return "****" + account[len(account)-4:]
	}
	return account
}

// MaskPayee masks numeric payee identifiers and leaves names and UPI handles as-is.
func MaskPayee(payee string) string {
	if payee == "" {
		return "Unknown"
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payee)
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return payee
		}
	}
	if len(digits) > 4 {
		return "****" + digits[len(digits)-4:]
	}
	return payee
}
