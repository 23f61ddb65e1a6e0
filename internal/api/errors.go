package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/banking"
	"github.com/kalambet/stepup/internal/elicitation"
)

// apiError is the transport-neutral form of a lifecycle error.
type apiError struct {
	status  int
	errType string
	message string
	payload map[string]any
}

// classify maps the elicitation error taxonomy onto HTTP semantics. The MCP
// layer reuses the message.
func classify(err error) apiError {
	var (
		stateErr  *elicitation.InvalidStateError
		validErr  *elicitation.ValidationError
		resumeErr *elicitation.ResumeError
	)
	switch {
	case errors.Is(err, elicitation.ErrNotFound):
		return apiError{http.StatusNotFound, "not_found", "Elicitation not found or has expired. Please try again.", nil}
	case errors.Is(err, elicitation.ErrExpired):
		return apiError{http.StatusGone, "expired", "Elicitation has expired. Please try again.", nil}
	case errors.Is(err, elicitation.ErrDuplicate):
		return apiError{http.StatusConflict, "duplicate", "Elicitation already exists.", nil}
	case errors.Is(err, elicitation.ErrDeclined):
		return apiError{http.StatusConflict, "declined", "Payment was not confirmed and has been cancelled.", nil}
	case errors.As(err, &stateErr):
		return apiError{http.StatusConflict, "invalid_state", fmt.Sprintf("Elicitation is %s, cannot process", stateErr.Status), nil}
	case errors.As(err, &validErr):
		return apiError{http.StatusUnprocessableEntity, "validation_error", validErr.Error(), nil}
	case errors.As(err, &resumeErr):
		return apiError{http.StatusBadGateway, "resume_failed", resumeErr.Message, resumeErr.Payload}
	case errors.Is(err, auth.ErrInsufficientScope):
		return apiError{http.StatusForbidden, "permission_error", err.Error(), nil}
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return apiError{http.StatusUnauthorized, "authentication_error", err.Error(), nil}
	case errors.Is(err, banking.ErrUnknownAccount),
		errors.Is(err, banking.ErrInsufficientFunds),
		errors.Is(err, banking.ErrInvalidAmount):
		return apiError{http.StatusUnprocessableEntity, "payment_error", err.Error(), nil}
	}
	return apiError{http.StatusInternalServerError, "api_error", "internal error: " + err.Error(), nil}
}

func writeError(w http.ResponseWriter, err error) {
	e := classify(err)
	if e.payload != nil {
		writeJSON(w, e.status, map[string]any{
			"error":  map[string]any{"message": e.message, "type": e.errType},
			"result": e.payload,
		})
		return
	}
	httpError(w, e.status, e.errType, "%s", e.message)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
