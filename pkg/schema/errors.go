package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeExecution               = "EXECUTION_ERROR"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeConflict                = "CONFLICT"
	ErrCodeTemplateNotFound        = "TEMPLATE_NOT_FOUND"
	ErrCodeDuplicateTemplate       = "DUPLICATE_TEMPLATE"
	ErrCodeIntegrationNotRegistered = "INTEGRATION_NOT_REGISTERED"
	ErrCodeMissingService          = "MISSING_SERVICE"
	ErrCodeUnknownStepType         = "UNKNOWN_STEP_TYPE"
	ErrCodeCircuitOpen             = "CIRCUIT_OPEN"
	ErrCodeStepFailed              = "STEP_FAILED"
	ErrCodeStore                   = "STORE_ERROR"
)

// StepwiseError is the structured error type for all engine operations.
type StepwiseError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StepwiseError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StepwiseError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StepwiseError.
func NewError(code, message string) *StepwiseError {
	return &StepwiseError{Code: code, Message: message}
}

// NewErrorf creates a new StepwiseError with a formatted message.
func NewErrorf(code, format string, args ...any) *StepwiseError {
	return &StepwiseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *StepwiseError) WithStep(stepID string) *StepwiseError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *StepwiseError) WithCause(err error) *StepwiseError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StepwiseError) WithDetails(details map[string]any) *StepwiseError {
	e.Details = details
	return e
}
