package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kalambet/stepup/internal/elicitation"
)

const (
	// ConfirmPaymentEndpoint is the resume operation that completes a payment.
	ConfirmPaymentEndpoint = "confirm_payment"

	// OTPThreshold is the amount at or above which a payment needs a one-time
	// code instead of a plain confirmation.
	OTPThreshold = 1000.0
)

// PaymentRequest describes a payment the user asked for.
type PaymentRequest struct {
	UserID      string
	SessionID   string
	RoomName    string
	ToolCallID  string
	FromAccount string
	ToAccount   string
	Amount      float64
	Description string
}

// Payments starts payments by suspending them on an elicitation and
// completes them through the confirm_payment resume operation.
type Payments struct {
	manager *elicitation.Manager
	ledger  *Ledger
	otp     *OTPIssuer
	timeout  time.Duration
	logger   *slog.Logger
	notifier elicitation.Notifier
}

// PaymentsOption configures Payments.
type PaymentsOption func(*Payments)

// WithTimeout sets how long the user has to confirm a payment. Zero keeps the
// schema's own timeout.
func WithTimeout(d time.Duration) PaymentsOption {
	return func(p *Payments) { p.timeout = d }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) PaymentsOption {
	return func(p *Payments) { p.logger = l }
}

// WithNotifier sets where issued one-time codes are delivered. Without one a
// high-value payment can only be confirmed with a configured demo code.
func WithNotifier(n elicitation.Notifier) PaymentsOption {
	return func(p *Payments) { p.notifier = n }
}

// NewPayments wires the payment flow.
func NewPayments(m *elicitation.Manager, ledger *Ledger, otp *OTPIssuer, opts ...PaymentsOption) *Payments {
	p := &Payments{manager: m, ledger: ledger, otp: otp, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register installs confirm_payment on r.
func (p *Payments) Register(r *Resumer) {
	r.Register(ConfirmPaymentEndpoint, p.ConfirmPayment)
}

// Initiate validates the request against the ledger and creates the
// elicitation the user must answer. High-value payments get an OTP schema
// and a freshly issued code.
func (p *Payments) Initiate(ctx context.Context, req PaymentRequest) (elicitation.State, error) {
	if req.Amount <= 0 {
		return elicitation.State{}, ErrInvalidAmount
	}
	if req.ToAccount == "" {
		return elicitation.State{}, errors.New("destination account is required")
	}
	src, err := p.ledger.Account(req.UserID, req.FromAccount)
	if err != nil {
		return elicitation.State{}, err
	}
	if src.Available() < req.Amount {
		return elicitation.State{}, fmt.Errorf("%w: %s has %.2f available", ErrInsufficientFunds, src.Type, src.Available())
	}

	description := req.Description
	if description == "" {
		description = "Payment transfer"
	}
	display := elicitation.Context{
		Amount:      "₹" + humanize.FormatFloat("#,###.##", req.Amount),
		Payee:       elicitation.MaskPayee(req.ToAccount),
		Account:     elicitation.MaskAccount(req.FromAccount),
		Description: description,
	}

	id := uuid.NewString()
	var (
		schema elicitation.Schema
		code   string
	)
	if req.Amount >= OTPThreshold {
		schema = elicitation.NewOTPSchema(id, display)
		if code, err = p.otp.Issue(id); err != nil {
			return elicitation.State{}, err
		}
	} else {
		schema = elicitation.NewConfirmationSchema(id, display)
	}

	toolCallID := req.ToolCallID
	if toolCallID == "" {
		toolCallID = uuid.NewString()
	}

	st, err := p.manager.Create(ctx, elicitation.CreateParams{
		ToolCallID: toolCallID,
		Endpoint:   ConfirmPaymentEndpoint,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		RoomName:   req.RoomName,
		Schema:     schema,
		Timeout:    p.timeout,
		SuspendedArguments: map[string]any{
			"user_id":      req.UserID,
			"from_account": req.FromAccount,
			"to_account":   req.ToAccount,
			"amount":       req.Amount,
			"description":  req.Description,
		},
	})
	if err != nil {
		return elicitation.State{}, err
	}
	if code != "" {
		p.deliverCode(ctx, st, code)
	}
	p.logger.Info("payment awaiting confirmation",
		"elicitation_id", st.ID,
		"user_id", req.UserID,
		"type", string(schema.Type),
	)
	return st, nil
}

func (p *Payments) deliverCode(ctx context.Context, st elicitation.State, code string) {
	if p.notifier == nil {
		p.logger.Warn("no notifier configured, one-time code not delivered", "elicitation_id", st.ID)
		return
	}
	p.notifier.Notify(ctx, elicitation.Event{
		Kind:          elicitation.EventCodeIssued,
		ElicitationID: st.ID,
		SessionID:     st.SessionID,
		RoomName:      st.RoomName,
		Status:        st.Status,
		Message:       "Your one-time code for this payment is " + code,
		Code:          code,
	})
}

// ConfirmPayment is the confirm_payment resume operation. The one-time code
// is checked only when the schema asked for one.
func (p *Payments) ConfirmPayment(_ context.Context, req elicitation.ResumeRequest) (elicitation.ResumeOutcome, error) {
	args := req.SuspendedArguments
	userID := elicitation.StringInput(args, "user_id")
	if userID == "" || userID != req.UserID {
		return failure("Payment does not belong to this user"), nil
	}

	if req.RequiresCode {
		code := elicitation.StringInput(req.UserInput, "otp_code")
		if !p.otp.Verify(req.ElicitationID, code) {
			p.logger.Warn("otp verification failed", "elicitation_id", req.ElicitationID)
			return failure("Invalid or expired OTP"), nil
		}
	}

	amount, ok := elicitation.NumberInput(args, "amount")
	if !ok {
		return failure("Payment amount is missing"), nil
	}
	from := elicitation.StringInput(args, "from_account")
	to := elicitation.StringInput(args, "to_account")
	description := elicitation.StringInput(args, "description")

	t, err := p.ledger.Transfer(userID, from, to, amount, description)
	if err != nil {
		return failure(err.Error()), nil
	}

	p.logger.Info("payment completed",
		"elicitation_id", req.ElicitationID,
		"confirmation_number", t.ConfirmationNumber,
	)
	return elicitation.ResumeOutcome{
		Success: true,
		Payload: map[string]any{
			"status":              "completed",
			"confirmation_number": t.ConfirmationNumber,
			"from_account":        elicitation.MaskAccount(t.FromAccount),
			"to_account":          elicitation.MaskPayee(t.ToAccount),
			"amount":              t.Amount,
			"description":         t.Description,
			"timestamp":           t.Timestamp.Format(time.RFC3339),
			"message":             "Payment processed successfully",
		},
	}, nil
}

func failure(msg string) elicitation.ResumeOutcome {
	return elicitation.ResumeOutcome{
		Success: false,
		Error:   msg,
		Payload: map[string]any{"success": false, "error": msg},
	}
}
