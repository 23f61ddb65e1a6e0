// Package resume delivers resume requests to a remote banking-tool server.
package resume

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/stepup/internal/elicitation"
)

const (
	resumePath     = "/api/elicitation/resume"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// HTTPResumer POSTs resume requests to {baseURL}/api/elicitation/resume.
// Only HTTP 429 is retried; the server has not acted on the request at that
// point. Every other failure is final so money is never moved twice.
type HTTPResumer struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPResumer creates a client. token, when set, is sent as a bearer
// credential.
func NewHTTPResumer(baseURL, token string, timeout time.Duration) *HTTPResumer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPResumer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type resumeBody struct {
	ElicitationID      string         `json:"elicitation_id"`
	ToolCallID         string         `json:"tool_call_id"`
	Endpoint           string         `json:"endpoint"`
	UserID             string         `json:"user_id"`
	RequiresCode       bool           `json:"requires_code"`
	UserInput          map[string]any `json:"user_input"`
	SuspendedArguments map[string]any `json:"suspended_arguments"`
	Arguments          map[string]any `json:"arguments"`
	BiometricToken     string         `json:"biometric_token,omitempty"`
}

type resumeReply struct {
	Success *bool          `json:"success"`
	Error   string         `json:"error"`
	Result  map[string]any `json:"result"`
}

// Resume implements elicitation.Resumer.
func (c *HTTPResumer) Resume(ctx context.Context, req elicitation.ResumeRequest) (elicitation.ResumeOutcome, error) {
	body, err := json.Marshal(resumeBody{
		ElicitationID:      req.ElicitationID,
		ToolCallID:         req.ToolCallID,
		Endpoint:           req.Endpoint,
		UserID:             req.UserID,
		RequiresCode:       req.RequiresCode,
		UserInput:          req.UserInput,
		SuspendedArguments: req.SuspendedArguments,
		Arguments:          req.Arguments,
		BiometricToken:     req.BiometricToken,
	})
	if err != nil {
		return elicitation.ResumeOutcome{}, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		out, err := c.do(ctx, body)
		if err == nil {
			return out, nil
		}
		if !isRateLimit(err) {
			return elicitation.ResumeOutcome{}, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return elicitation.ResumeOutcome{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return elicitation.ResumeOutcome{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *HTTPResumer) do(ctx context.Context, body []byte) (elicitation.ResumeOutcome, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+resumePath, bytes.NewReader(body))
	if err != nil {
		return elicitation.ResumeOutcome{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return elicitation.ResumeOutcome{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return elicitation.ResumeOutcome{}, &rateLimitError{status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return elicitation.ResumeOutcome{}, fmt.Errorf("reading response: %w", err)
	}

	var reply resumeReply
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reply); err != nil && resp.StatusCode < 300 {
			return elicitation.ResumeOutcome{}, fmt.Errorf("decoding response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := reply.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return elicitation.ResumeOutcome{Success: false, Error: msg, Payload: reply.Result}, nil
	}

	success := reply.Success == nil || *reply.Success
	return elicitation.ResumeOutcome{Success: success, Error: reply.Error, Payload: reply.Result}, nil
}

var _ elicitation.Resumer = (*HTTPResumer)(nil)
