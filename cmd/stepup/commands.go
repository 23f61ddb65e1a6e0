package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/stepup/internal/config"
)

// --- elicitation ---

var elicitationCmd = &cobra.Command{
	Use:     "elicitation",
	Aliases: []string{"el"},
	Short:   "Inspect and answer elicitations on a running server",
}

type elicitationView struct {
	ID         string          `json:"elicitation_id"`
	ToolCallID string          `json:"tool_call_id"`
	SessionID  string          `json:"session_id"`
	Status     string          `json:"status"`
	Schema     json.RawMessage `json:"schema"`
	CreatedAt  string          `json:"created_at"`
	ExpiresAt  string          `json:"expires_at"`
}

type resultView struct {
	ID     string         `json:"elicitation_id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

func getElicitation(ctx context.Context, c *apiClient, id string) (elicitationView, error) {
	var v elicitationView
	resp, err := c.get(ctx, "/elicitations/"+url.PathEscape(id))
	if err != nil {
		return v, err
	}
	return v, decodeJSON(resp, &v)
}

func nextElicitation(ctx context.Context, c *apiClient, sessionID string) (elicitationView, error) {
	var v elicitationView
	resp, err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/elicitations/next")
	if err != nil {
		return v, err
	}
	return v, decodeJSON(resp, &v)
}

func respondElicitation(ctx context.Context, c *apiClient, id string, body map[string]any) (resultView, error) {
	var r resultView
	resp, err := c.post(ctx, "/elicitations/"+url.PathEscape(id)+"/respond", body)
	if err != nil {
		return r, err
	}
	return r, decodeJSON(resp, &r)
}

func cancelElicitation(ctx context.Context, c *apiClient, id, reason string) (resultView, error) {
	var r resultView
	body := map[string]any{}
	if reason != "" {
		body["reason"] = reason
	}
	resp, err := c.post(ctx, "/elicitations/"+url.PathEscape(id)+"/cancel", body)
	if err != nil {
		return r, err
	}
	return r, decodeJSON(resp, &r)
}

// parseInputPairs turns ["otp_code=123456", "confirmed=true"] into a
// user_input map. "true"/"false" become booleans; everything else stays a
// string and is coerced server-side.
func parseInputPairs(pairs []string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q, want field=value", p)
		}
		switch value {
		case "true":
			input[key] = true
		case "false":
			input[key] = false
		default:
			input[key] = value
		}
	}
	return input, nil
}

func printElicitation(v elicitationView) {
	printStatus("ID", "%s", v.ID)
	printStatus("Session", "%s", v.SessionID)
	printStatus("Status", "%s", statusColor(v.Status))
	printStatus("Expires", "%s", v.ExpiresAt)

	var schema struct {
		Type    string            `json:"elicitation_type"`
		Context map[string]any    `json:"context"`
		Fields  []json.RawMessage `json:"fields"`
	}
	if json.Unmarshal(v.Schema, &schema) == nil {
		printStatus("Type", "%s", schema.Type)
		for _, k := range []string{"amount", "payee", "account", "description"} {
			if val, ok := schema.Context[k]; ok && val != "" {
				printStatus(strings.ToUpper(k[:1])+k[1:], "%v", val)
			}
		}
	}
}

var elicitationGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an elicitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		v, err := getElicitation(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(v)
		}
		printElicitation(v)
		return nil
	},
}

var elicitationNextCmd = &cobra.Command{
	Use:   "next <session-id>",
	Short: "Show the oldest outstanding elicitation for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		v, err := nextElicitation(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		printElicitation(v)
		return nil
	},
}

var elicitationRespondCmd = &cobra.Command{
	Use:   "respond <id>",
	Short: "Answer an elicitation and resume the suspended operation",
	Long: `Answer an elicitation and resume the suspended operation.

Examples:
  stepup elicitation respond 3f1c... --user user-42 --input otp_code=123456
  stepup elicitation respond 3f1c... --user user-42 --input confirmed=true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		pairs, _ := cmd.Flags().GetStringArray("input")
		platform, _ := cmd.Flags().GetString("platform")
		biometric, _ := cmd.Flags().GetString("biometric-token")

		if len(pairs) == 0 {
			return fmt.Errorf("at least one --input field=value is required")
		}
		input, err := parseInputPairs(pairs)
		if err != nil {
			return err
		}

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}

		body := map[string]any{"user_input": input}
		if platform != "" {
			body["platform"] = platform
		}
		if biometric != "" {
			body["biometric_token"] = biometric
		}
		r, err := respondElicitation(cmd.Context(), client, args[0], body)
		if err != nil {
			return err
		}

		printSuccess("Elicitation %s %s", r.ID, r.Status)
		if len(r.Result) > 0 {
			return printJSON(r.Result)
		}
		return nil
	},
}

var elicitationCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending elicitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		reason, _ := cmd.Flags().GetString("reason")

		client, err := newAPIClient(user)
		if err != nil {
			return err
		}
		if _, err := cancelElicitation(cmd.Context(), client, args[0], reason); err != nil {
			return err
		}
		printSuccess("Cancelled %s", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{elicitationGetCmd, elicitationNextCmd, elicitationRespondCmd, elicitationCancelCmd} {
		c.Flags().String("user", "", "user the elicitation belongs to (ignored when STEPUP_TOKEN is set)")
		elicitationCmd.AddCommand(c)
	}
	elicitationGetCmd.Flags().Bool("json", false, "print the raw record")
	elicitationRespondCmd.Flags().StringArray("input", nil, "field=value pair, repeatable")
	elicitationRespondCmd.Flags().String("platform", "", "client platform: web or mobile")
	elicitationRespondCmd.Flags().String("biometric-token", "", "biometric assertion from the mobile client")
	elicitationCancelCmd.Flags().String("reason", "", "cancellation reason")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
