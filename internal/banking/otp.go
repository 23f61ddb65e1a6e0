package banking

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

const otpExpiry = 10 * time.Minute

type otpEntry struct {
	code      string
	expiresAt time.Time
}

// OTPIssuer issues six-digit one-time codes keyed by elicitation ID. Codes
// are single use and lapse after ten minutes.
type OTPIssuer struct {
	mu       sync.Mutex
	codes    map[string]otpEntry
	demoCode string
	now      func() time.Time
	logger   *slog.Logger
}

// NewOTPIssuer creates an issuer. A non-empty demoCode is handed out instead
// of a random code, for demos without an SMS gateway.
func NewOTPIssuer(demoCode string) *OTPIssuer {
	return &OTPIssuer{
		codes:    map[string]otpEntry{},
		demoCode: demoCode,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Issue generates and stores a code for key, replacing any earlier one.
func (o *OTPIssuer) Issue(key string) (string, error) {
	code := o.demoCode
	if code == "" {
		n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
		if err != nil {
			return "", fmt.Errorf("generating otp: %w", err)
		}
		code = fmt.Sprintf("%06d", n.Int64())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweepLocked()
	o.codes[key] = otpEntry{code: code, expiresAt: o.now().Add(otpExpiry)}
	o.logger.Info("otp issued", "key", key, "demo", o.demoCode != "")
	return code, nil
}

// Verify checks code against the one issued for key and consumes it on
// success.
func (o *OTPIssuer) Verify(key, code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.codes[key]
	if !ok {
		o.logger.Warn("no otp issued", "key", key)
		return false
	}
	if o.now().After(e.expiresAt) {
		delete(o.codes, key)
		o.logger.Warn("otp expired", "key", key)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		return false
	}
	delete(o.codes, key)
	return true
}

func (o *OTPIssuer) sweepLocked() {
	now := o.now()
	for k, e := range o.codes {
		if now.After(e.expiresAt) {
			delete(o.codes, k)
		}
	}
}
