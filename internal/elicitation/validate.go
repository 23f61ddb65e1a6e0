package elicitation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf8"
)

// ValidateInput checks user input against the schema's field rules.
// Unknown keys are ignored; they are passed through to the resume operation.
func (s Schema) ValidateInput(input map[string]any) error {
	var problems []string
	for _, f := range s.Fields {
		v, ok := input[f.Name]
		if !ok || v == nil || v == "" {
			if f.Validation.Required && f.FieldType != FieldBiometric {
				problems = append(problems, fmt.Sprintf("%s is required", f.Name))
			}
			continue
		}
		if msg := validateField(f, v); msg != "" {
			problems = append(problems, msg)
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateField(f Field, v any) string {
	rules := f.Validation
	switch f.FieldType {
	case FieldBiometric:
		return ""
	case FieldBoolean:
		if _, ok := boolValue(v); !ok {
			return fmt.Sprintf("%s must be true or false", f.Name)
		}
		return ""
	case FieldNumber:
		n, ok := numberValue(v)
		if !ok {
			return fmt.Sprintf("%s must be a number", f.Name)
		}
		if rules.MinValue != nil && n < *rules.MinValue {
			return fmt.Sprintf("%s must be at least %v", f.Name, *rules.MinValue)
		}
		if rules.MaxValue != nil && n > *rules.MaxValue {
			return fmt.Sprintf("%s must be at most %v", f.Name, *rules.MaxValue)
		}
		return ""
	case FieldSelect:
		sv, ok := stringValue(v)
		if !ok || !slices.Contains(f.Options, sv) {
			return fmt.Sprintf("%s must be one of %v", f.Name, f.Options)
		}
		return ""
	}

	sv, ok := stringValue(v)
	if !ok {
		return fmt.Sprintf("%s must be a string", f.Name)
	}
	n := utf8.RuneCountInString(sv)
	if rules.MinLength != nil && n < *rules.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", f.Name, *rules.MinLength)
	}
	if rules.MaxLength != nil && n > *rules.MaxLength {
		return fmt.Sprintf("%s must be at most %d characters", f.Name, *rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			return fmt.Sprintf("%s has an invalid pattern", f.Name)
		}
		if !re.MatchString(sv) {
			return fmt.Sprintf("%s has an invalid format", f.Name)
		}
	}
	return ""
}

// Declined reports whether a confirmation-type response explicitly said no.
func (s Schema) Declined(input map[string]any) bool {
	if s.Type != TypeConfirmation {
		return false
	}
	b, ok := boolValue(input["confirmed"])
	return ok && !b
}

// StringInput returns a field value as a string, accepting JSON numbers for
// codes typed into numeric keypads.
func StringInput(input map[string]any, name string) string {
	s, _ := stringValue(input[name])
	return s
}

// NumberInput returns a field value as a float64. Strings holding a number
// are accepted.
func NumberInput(input map[string]any, name string) (float64, bool) {
	return numberValue(input[name])
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func boolValue(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	}
	return false, false
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
