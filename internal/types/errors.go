package types

import "strings"

// FieldError is one rejected field of a settings or sensor request.
type FieldError struct {
	Field   string `json:"field"`   // JSON name, e.g. "nuisance_threshold_db"
	Message string `json:"message"` // e.g. "must be at most 200"
	Value   any    `json:"value"`
}

// ValidationError lists every rejected field of a request so the web
// interface can mark them all at once.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError returns an empty ValidationError that marshals its
// list as [] rather than null.
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: []FieldError{}}
}

// Add records a rejected field.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}

// Error joins the field messages, e.g. "motion_ignore_threshold must be at least 0".
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, fe := range v.Errors {
		parts = append(parts, strings.TrimSpace(fe.Field+" "+fe.Message))
	}
	return strings.Join(parts, "; ")
}
