package elicitation

import (
	"time"
)

// Type identifies what kind of confirmation the user is asked for.
type Type string

const (
	TypeOTP                Type = "otp"
	TypeConfirmation       Type = "confirmation"
	TypeBiometric          Type = "biometric"
	TypeForm               Type = "form"
	TypeSupervisorApproval Type = "supervisor_approval"
)

// Valid reports whether t is one of the known elicitation types.
func (t Type) Valid() bool {
	switch t {
	case TypeOTP, TypeConfirmation, TypeBiometric, TypeForm, TypeSupervisorApproval:
		return true
	}
	return false
}

// FieldType is the data type of a single form field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldNumber    FieldType = "number"
	FieldOTP       FieldType = "otp"
	FieldBoolean   FieldType = "boolean"
	FieldSelect    FieldType = "select"
	FieldBiometric FieldType = "biometric"
)

const (
	// DefaultTimeoutSeconds applies when neither the caller nor the schema sets a timeout.
	DefaultTimeoutSeconds = 300
	// SupervisorTimeoutSeconds is the default for supervisor approvals.
	SupervisorTimeoutSeconds = 600
)

// Validation holds the rules applied to a submitted field value.
// Nil bounds are not checked.
type Validation struct {
	Required  bool     `json:"required"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
}

// Field describes one input the client must render.
type Field struct {
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	FieldType   FieldType  `json:"field_type"`
	Validation  Validation `json:"validation"`
	Placeholder string     `json:"placeholder,omitempty"`
	HelpText    string     `json:"help_text,omitempty"`
	Options     []string   `json:"options,omitempty"`
}

// Context is the payment summary shown next to the form. All values are
// masked before they get here.
type Context struct {
	Amount         string         `json:"amount"`
	Payee          string         `json:"payee"`
	Account        string         `json:"account"`
	Description    string         `json:"description,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// PlatformRequirements carries per-platform flags such as
// {"biometric_required": true} for mobile.
type PlatformRequirements struct {
	Web    map[string]bool `json:"web,omitempty"`
	Mobile map[string]bool `json:"mobile,omitempty"`
}

// Schema is the immutable definition sent to the client.
type Schema struct {
	ID                   string               `json:"elicitation_id"`
	Type                 Type                 `json:"elicitation_type"`
	Fields               []Field              `json:"fields"`
	Context              Context              `json:"context"`
	PlatformRequirements PlatformRequirements `json:"platform_requirements"`
	TimeoutSeconds       int                  `json:"timeout_seconds"`
	UIHints              map[string]any       `json:"ui_hints,omitempty"`

	// RequiresCode is set when the resume operation must verify a real
	// one-time code. Confirmation-only flows leave it false.
	RequiresCode bool `json:"requires_code"`
}

// BiometricRequired reports whether the given platform must present a
// biometric token before the response is accepted.
func (s Schema) BiometricRequired(platform string) bool {
	switch platform {
	case "mobile":
		return s.PlatformRequirements.Mobile["biometric_required"]
	case "web":
		return s.PlatformRequirements.Web["biometric_required"]
	}
	return false
}

// State is the mutable record kept for each pending confirmation.
type State struct {
	ID                 string         `json:"elicitation_id"`
	ToolCallID         string         `json:"tool_call_id"`
	Endpoint           string         `json:"mcp_endpoint"`
	UserID             string         `json:"user_id"`
	SessionID          string         `json:"session_id"`
	RoomName           string         `json:"room_name"`
	Status             Status         `json:"status"`
	Schema             Schema         `json:"schema"`
	CreatedAt          time.Time      `json:"created_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	SuspendedArguments map[string]any `json:"suspended_tool_arguments"`
}

// Expired reports whether the record is past its deadline at now.
func (s State) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Response is a user's submission for an elicitation.
type Response struct {
	ElicitationID  string         `json:"elicitation_id"`
	UserInput      map[string]any `json:"user_input"`
	BiometricToken string         `json:"biometric_token,omitempty"`
	Platform       string         `json:"platform,omitempty"`
}

// Result is relayed back to the user-facing channel after a successful resume.
type Result struct {
	ElicitationID string         `json:"elicitation_id"`
	Status        Status         `json:"status"`
	Payload       map[string]any `json:"result,omitempty"`
}
