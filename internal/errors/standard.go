// Package errors provides standardized error messaging for devplan
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryPlacement  ErrorCategory = "PLACEMENT"
	CategoryValidation ErrorCategory = "VALIDATION"
)

// Error codes for device placement failures.
const (
	CodeIncompatibleScopes = "INCOMPATIBLE_SCOPES"
	CodeShapeMismatch      = "SHAPE_MISMATCH"
	CodeInvalidArity       = "INVALID_ARITY"
	CodeUnconstrainedScope = "UNCONSTRAINED_SCOPE"
	CodeMissingAttributes  = "MISSING_ATTRIBUTES"
)

// Error codes for plan validation failures.
const (
	CodeUnknownDevice = "UNKNOWN_DEVICE"
)

// Sentinels usable with errors.Is; they match any StandardError of the same
// category and code.
var (
	ErrIncompatibleScopes = &StandardError{Category: CategoryPlacement, Code: CodeIncompatibleScopes}
	ErrShapeMismatch      = &StandardError{Category: CategoryPlacement, Code: CodeShapeMismatch}
	ErrInvalidArity       = &StandardError{Category: CategoryPlacement, Code: CodeInvalidArity}
	ErrUnconstrainedScope = &StandardError{Category: CategoryPlacement, Code: CodeUnconstrainedScope}
	ErrMissingAttributes  = &StandardError{Category: CategoryPlacement, Code: CodeMissingAttributes}
	ErrUnknownDevice      = &StandardError{Category: CategoryValidation, Code: CodeUnknownDevice}
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Is reports whether target is a StandardError with the same category and code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}

	return e.Category == t.Category && e.Code == t.Code
}

// ContextString returns the string stored under key, or "".
func (e *StandardError) ContextString(key string) string {
	if v, ok := e.Context[key].(string); ok {
		return v
	}

	return ""
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newStandardError(2, category, code, message, context)
}

func newStandardError(skip int, category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Common error constructors

// IncompatibleScopes reports two operands whose device domains cannot be unified.
func IncompatibleScopes(message string, lhs, lhsDomain, rhs, rhsDomain string) *StandardError {
	return newStandardError(2, CategoryPlacement, CodeIncompatibleScopes, message,
		map[string]interface{}{
			"lhs":        lhs,
			"lhs_domain": lhsDomain,
			"rhs":        rhs,
			"rhs_domain": rhsDomain,
		})
}

// ShapeMismatch reports domains of different kinds or arities.
func ShapeMismatch(lhsDomain, rhsDomain string) *StandardError {
	return newStandardError(2, CategoryPlacement, CodeShapeMismatch,
		fmt.Sprintf("Device domains %s and %s do not have the same kind and can't be unified", lhsDomain, rhsDomain),
		map[string]interface{}{"lhs_domain": lhsDomain, "rhs_domain": rhsDomain})
}

// InvalidArity reports a primitive called with the wrong number of arguments.
func InvalidArity(op string, expected, actual int) *StandardError {
	return newStandardError(2, CategoryPlacement, CodeInvalidArity,
		fmt.Sprintf("%s expects %d argument(s), got %d", op, expected, actual),
		map[string]interface{}{"op": op, "expected": expected, "actual": actual})
}

// UnconstrainedScope reports a scope that was required to carry a constraint.
func UnconstrainedScope(context string) *StandardError {
	return newStandardError(2, CategoryPlacement, CodeUnconstrainedScope,
		fmt.Sprintf("Fully unconstrained scope not allowed in %s", context),
		map[string]interface{}{"context": context})
}

// MissingAttributes reports a call lacking the attributes its operator needs.
func MissingAttributes(op string) *StandardError {
	return newStandardError(2, CategoryPlacement, CodeMissingAttributes,
		fmt.Sprintf("%s call is missing its attributes", op),
		map[string]interface{}{"op": op})
}

// UnknownDevice reports a scope naming a device the compilation config has
// no entry for.
func UnknownDevice(scope string, device string, known []string) *StandardError {
	return newStandardError(2, CategoryValidation, CodeUnknownDevice,
		fmt.Sprintf("scope %s names device %s, which is not configured (known: %s)", scope, device, strings.Join(known, ", ")),
		map[string]interface{}{"scope": scope, "device": device})
}
