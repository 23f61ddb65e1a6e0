package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/banking"
	"github.com/kalambet/stepup/internal/elicitation"
)

// NewMCPServer creates an MCP server exposing the payment and elicitation
// tools. Every tool authenticates its caller with the jwt_token argument.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"stepup",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("stepup: payments that pause for out-of-band user confirmation (OTP, yes/no, biometric) and resume once confirmed."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("initiate_payment",
			mcp.WithDescription("Start a payment. Returns an elicitation the user must answer before money moves."),
			mcp.WithString("jwt_token", mcp.Description("Caller's access token"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation session the confirmation belongs to"), mcp.Required()),
			mcp.WithString("from_account", mcp.Description("Source account type or number"), mcp.Required()),
			mcp.WithString("to_account", mcp.Description("Payee account, UPI handle or name"), mcp.Required()),
			mcp.WithNumber("amount", mcp.Description("Amount to pay"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional payment note")),
			mcp.WithString("room_name", mcp.Description("Voice room to notify")),
			mcp.WithString("tool_call_id", mcp.Description("Caller's tool call ID")),
		),
		mcpInitiatePayment(deps),
	)

	s.AddTool(
		mcp.NewTool("respond_elicitation",
			mcp.WithDescription("Submit the user's answer to a pending elicitation and resume the suspended operation."),
			mcp.WithString("jwt_token", mcp.Description("Caller's access token"), mcp.Required()),
			mcp.WithString("elicitation_id", mcp.Description("Elicitation to answer"), mcp.Required()),
			mcp.WithObject("user_input", mcp.Description("Field values keyed by field name, e.g. {\"otp_code\": \"123456\"}"), mcp.Required()),
			mcp.WithString("biometric_token", mcp.Description("Biometric assertion from the mobile client")),
			mcp.WithString("platform", mcp.Description("Client platform: web or mobile")),
		),
		mcpRespondElicitation(deps),
	)

	s.AddTool(
		mcp.NewTool("get_pending_elicitation",
			mcp.WithDescription("Return the oldest outstanding elicitation for a session, if any."),
			mcp.WithString("jwt_token", mcp.Description("Caller's access token"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation session"), mcp.Required()),
		),
		mcpGetPendingElicitation(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_elicitation",
			mcp.WithDescription("Cancel a pending elicitation. The suspended operation is abandoned."),
			mcp.WithString("jwt_token", mcp.Description("Caller's access token"), mcp.Required()),
			mcp.WithString("elicitation_id", mcp.Description("Elicitation to cancel"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Why it was cancelled")),
		),
		mcpCancelElicitation(deps),
	)

	s.AddTool(
		mcp.NewTool("get_balance",
			mcp.WithDescription("Get account balances for the authenticated user."),
			mcp.WithString("jwt_token", mcp.Description("Caller's access token"), mcp.Required()),
			mcp.WithString("account_type", mcp.Description("Optional filter: checking, savings or credit_card")),
		),
		mcpGetBalance(deps),
	)

	return s
}

// authenticate verifies jwt_token for scope.
func authenticate(deps Deps, req mcp.CallToolRequest, scope string) (auth.Principal, *mcp.CallToolResult) {
	token, err := req.RequireString("jwt_token")
	if err != nil {
		return auth.Principal{}, mcpError("jwt_token is required")
	}
	p, err := deps.Verifier.Verify(token, scope)
	if err != nil {
		return auth.Principal{}, mcpError(fmt.Sprintf("authentication failed: %v", err))
	}
	return p, nil
}

func mcpInitiatePayment(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, denied := authenticate(deps, req, auth.ScopeTransact)
		if denied != nil {
			return denied, nil
		}
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		from, err := req.RequireString("from_account")
		if err != nil {
			return mcpError("from_account is required"), nil
		}
		to, err := req.RequireString("to_account")
		if err != nil {
			return mcpError("to_account is required"), nil
		}
		amount, err := req.RequireFloat("amount")
		if err != nil {
			return mcpError("amount is required"), nil
		}

		st, err := deps.Payments.Initiate(ctx, banking.PaymentRequest{
			UserID:      p.UserID,
			SessionID:   sessionID,
			RoomName:    req.GetString("room_name", ""),
			ToolCallID:  req.GetString("tool_call_id", ""),
			FromAccount: from,
			ToAccount:   to,
			Amount:      amount,
			Description: req.GetString("description", ""),
		})
		if err != nil {
			return mcpError(classify(err).message), nil
		}

		return mcpJSON(map[string]any{
			"status":         "elicitation_required",
			"elicitation_id": st.ID,
			"tool_call_id":   st.ToolCallID,
			"expires_at":     viewOf(st).ExpiresAt,
			"schema":         st.Schema,
		})
	}
}

func mcpRespondElicitation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, denied := authenticate(deps, req, auth.ScopeTransact)
		if denied != nil {
			return denied, nil
		}
		id, err := req.RequireString("elicitation_id")
		if err != nil {
			return mcpError("elicitation_id is required"), nil
		}
		input, ok := req.GetArguments()["user_input"].(map[string]any)
		if !ok {
			return mcpError("user_input must be an object"), nil
		}

		if _, err := loadOwned(ctx, deps.Manager, id, p.UserID); err != nil {
			return mcpError(classify(err).message), nil
		}

		res, err := deps.Handler.HandleResponse(ctx, elicitation.Response{
			ElicitationID:  id,
			UserInput:      input,
			BiometricToken: req.GetString("biometric_token", ""),
			Platform:       req.GetString("platform", ""),
		})
		if err != nil && res.Status != elicitation.StatusCompleted {
			return mcpError(classify(err).message), nil
		}
		return mcpJSON(res)
	}
}

func mcpGetPendingElicitation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, denied := authenticate(deps, req, auth.ScopeRead)
		if denied != nil {
			return denied, nil
		}
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		st, found, err := deps.Manager.Next(ctx, sessionID)
		if err != nil {
			return mcpError(classify(err).message), nil
		}
		if !found || st.UserID != p.UserID {
			return mcpText("No pending elicitation."), nil
		}
		return mcpJSON(viewOf(st))
	}
}

func mcpCancelElicitation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, denied := authenticate(deps, req, auth.ScopeTransact)
		if denied != nil {
			return denied, nil
		}
		id, err := req.RequireString("elicitation_id")
		if err != nil {
			return mcpError("elicitation_id is required"), nil
		}
		if _, err := loadOwned(ctx, deps.Manager, id, p.UserID); err != nil {
			return mcpError(classify(err).message), nil
		}

		reason := req.GetString("reason", "Cancelled by user")
		if err := deps.Manager.Cancel(ctx, id, reason); err != nil {
			return mcpError(classify(err).message), nil
		}
		return mcpText(fmt.Sprintf("Elicitation %s cancelled", id)), nil
	}
}

func mcpGetBalance(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, denied := authenticate(deps, req, auth.ScopeRead)
		if denied != nil {
			return denied, nil
		}

		type balance struct {
			AccountType     string  `json:"account_type"`
			AccountNumber   string  `json:"account_number"`
			Balance         float64 `json:"balance"`
			Currency        string  `json:"currency"`
			AvailableCredit float64 `json:"available_credit,omitempty"`
		}

		accounts := deps.Ledger.Accounts(p.UserID, req.GetString("account_type", ""))
		balances := make([]balance, len(accounts))
		for i, a := range accounts {
			balances[i] = balance{
				AccountType:   a.Type,
				AccountNumber: elicitation.MaskAccount(a.Number),
				Balance:       a.Balance,
				Currency:      a.Currency,
			}
			if a.Type == "credit_card" {
				balances[i].AvailableCredit = a.Available()
			}
		}
		return mcpJSON(balances)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
