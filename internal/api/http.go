package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/banking"
	"github.com/kalambet/stepup/internal/elicitation"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the transports call into.
type Deps struct {
	Manager  *elicitation.Manager
	Handler  *elicitation.Handler
	Payments *banking.Payments
	Ledger   *banking.Ledger
	Verifier *auth.Verifier
}

// elicitationView is what callers see of a record. Suspended arguments stay
// server-side.
type elicitationView struct {
	ID         string             `json:"elicitation_id"`
	ToolCallID string             `json:"tool_call_id"`
	SessionID  string             `json:"session_id"`
	Status     elicitation.Status `json:"status"`
	Schema     elicitation.Schema `json:"schema"`
	CreatedAt  string             `json:"created_at"`
	ExpiresAt  string             `json:"expires_at"`
}

func viewOf(st elicitation.State) elicitationView {
	return elicitationView{
		ID:         st.ID,
		ToolCallID: st.ToolCallID,
		SessionID:  st.SessionID,
		Status:     st.Status,
		Schema:     st.Schema,
		CreatedAt:  st.CreatedAt.Format(time.RFC3339),
		ExpiresAt:  st.ExpiresAt.Format(time.RFC3339),
	}
}

// RespondRequest is the body of POST /elicitations/{id}/respond.
type RespondRequest struct {
	UserInput      map[string]any `json:"user_input"`
	BiometricToken string         `json:"biometric_token,omitempty"`
	Platform       string         `json:"platform,omitempty"`
}

// CancelRequest is the body of POST /elicitations/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// NewHTTPHandler returns the REST surface over the elicitation lifecycle.
func NewHTTPHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(deps.Verifier, auth.ScopeRead))
		r.Get("/elicitations/{id}", handleGetElicitation(deps))
		r.Get("/sessions/{sessionID}/elicitations/next", handleNextElicitation(deps))
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(deps.Verifier, auth.ScopeTransact))
		r.Post("/elicitations/{id}/respond", handleRespond(deps))
		r.Post("/elicitations/{id}/cancel", handleCancel(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// loadOwned returns the record if it exists and belongs to userID. Records
// owned by someone else are reported as not found.
func loadOwned(ctx context.Context, m *elicitation.Manager, id, userID string) (elicitation.State, error) {
	st, found, err := m.Get(ctx, id)
	if err != nil {
		return elicitation.State{}, err
	}
	if !found || st.UserID != userID {
		return elicitation.State{}, elicitation.ErrNotFound
	}
	return st, nil
}

func handleGetElicitation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		st, err := loadOwned(r.Context(), deps.Manager, chi.URLParam(r, "id"), p.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(st))
	}
}

func handleNextElicitation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		st, found, err := deps.Manager.Next(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !found || st.UserID != p.UserID {
			httpError(w, http.StatusNotFound, "not_found", "no pending elicitation for this session")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(st))
	}
}

func handleRespond(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RespondRequest
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserInput == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_input is required")
			return
		}

		p := principalFrom(r.Context())
		id := chi.URLParam(r, "id")
		if _, err := loadOwned(r.Context(), deps.Manager, id, p.UserID); err != nil {
			writeError(w, err)
			return
		}

		res, err := deps.Handler.HandleResponse(r.Context(), elicitation.Response{
			ElicitationID:  id,
			UserInput:      req.UserInput,
			BiometricToken: req.BiometricToken,
			Platform:       req.Platform,
		})
		if err != nil {
			var resumeErr *elicitation.ResumeError
			if res.Status == elicitation.StatusCompleted && !errors.As(err, &resumeErr) {
				// The operation went through; only the bookkeeping failed.
				writeJSON(w, http.StatusOK, res)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleCancel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p := principalFrom(r.Context())
		id := chi.URLParam(r, "id")
		if _, err := loadOwned(r.Context(), deps.Manager, id, p.UserID); err != nil {
			writeError(w, err)
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "Cancelled by user"
		}
		if err := deps.Manager.Cancel(r.Context(), id, reason); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, elicitation.Result{ElicitationID: id, Status: elicitation.StatusCancelled})
	}
}
