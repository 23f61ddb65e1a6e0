package elicitation

func intPtr(v int) *int { return &v }

// NewOTPSchema asks for a six-digit one-time code. Mobile clients must pass a
// biometric check before code entry.
func NewOTPSchema(id string, ctx Context) Schema {
	return Schema{
		ID:   id,
		Type: TypeOTP,
		Fields: []Field{
			{
				Name:      "otp_code",
				Label:     "Enter OTP",
				FieldType: FieldOTP,
				Validation: Validation{
					Required:  true,
					MinLength: intPtr(6),
					MaxLength: intPtr(6),
					Pattern:   `^\d{6}$`,
				},
				Placeholder: "6-digit code",
				HelpText:    "Enter the 6-digit OTP sent to your registered mobile number",
			},
		},
		Context: ctx,
		PlatformRequirements: PlatformRequirements{
			Web:    map[string]bool{"biometric_required": false},
			Mobile: map[string]bool{"biometric_required": true},
		},
		TimeoutSeconds: DefaultTimeoutSeconds,
		RequiresCode:   true,
	}
}

// NewConfirmationSchema asks for a plain yes/no. No code is issued or checked.
func NewConfirmationSchema(id string, ctx Context) Schema {
	return Schema{
		ID:   id,
		Type: TypeConfirmation,
		Fields: []Field{
			{
				Name:       "confirmed",
				Label:      "Confirm Payment",
				FieldType:  FieldBoolean,
				Validation: Validation{Required: true},
				HelpText:   "Please confirm that you want to proceed with this payment",
			},
		},
		Context: ctx,
		PlatformRequirements: PlatformRequirements{
			Web:    map[string]bool{"biometric_required": false},
			Mobile: map[string]bool{"biometric_required": true},
		},
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// NewBiometricSchema asks the mobile client for a biometric assertion only.
func NewBiometricSchema(id string, ctx Context) Schema {
	return Schema{
		ID:   id,
		Type: TypeBiometric,
		Fields: []Field{
			{
				Name:       "biometric",
				Label:      "Verify identity",
				FieldType:  FieldBiometric,
				Validation: Validation{Required: false},
				HelpText:   "Use fingerprint or face unlock to approve",
			},
		},
		Context: ctx,
		PlatformRequirements: PlatformRequirements{
			Web:    map[string]bool{"biometric_required": false},
			Mobile: map[string]bool{"biometric_required": true},
		},
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// NewSupervisorApprovalSchema collects a supervisor ID and approval code.
func NewSupervisorApprovalSchema(id string, ctx Context) Schema {
	return Schema{
		ID:   id,
		Type: TypeSupervisorApproval,
		Fields: []Field{
			{
				Name:       "supervisor_id",
				Label:      "Supervisor ID",
				FieldType:  FieldText,
				Validation: Validation{Required: true},
				HelpText:   "Enter your supervisor's employee ID",
			},
			{
				Name:      "approval_code",
				Label:     "Approval Code",
				FieldType: FieldText,
				Validation: Validation{
					Required:  true,
					MinLength: intPtr(8),
					MaxLength: intPtr(20),
				},
				HelpText: "Enter the approval code provided by your supervisor",
			},
		},
		Context: ctx,
		PlatformRequirements: PlatformRequirements{
			Web:    map[string]bool{"biometric_required": false},
			Mobile: map[string]bool{"biometric_required": false},
		},
		TimeoutSeconds: SupervisorTimeoutSeconds,
	}
}
