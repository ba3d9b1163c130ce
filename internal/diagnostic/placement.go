package diagnostic

import (
	stderrors "errors"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/position"
)

// Diagnostic codes.
const (
	CodeIncompatibleScopes = "P0001"
	CodeShapeMismatch      = "P0002"
	CodeInvalidArity       = "P0003"
	CodeUnconstrainedScope = "P0004"
	CodeMissingAttributes  = "P0005"
	CodeInvalidPlan        = "C0001"
	CodeInternal           = "E9999"
)

// CommonDiagnostics provides factory methods for the diagnostics devplan reports.
type CommonDiagnostics struct{}

// Common is the shared factory instance.
var Common = &CommonDiagnostics{}

// IncompatibleScopes reports two expressions that were required to share a
// device but are pinned to different ones.
func (cd *CommonDiagnostics) IncompatibleScopes(span position.Span, message string, lhsSpan position.Span, lhsDomain string, rhsSpan position.Span, rhsDomain string) *Diagnostic {
	b := NewDiagnostic().
		Error().
		Placement().
		Code(CodeIncompatibleScopes).
		Title("incompatible device scopes").
		Message(message).
		Span(span).
		Suggest("Insert a device_copy", "Copy one side explicitly so both operands live on the same device")

	if lhsSpan.IsValid() {
		b.Related(lhsSpan, "left operand placed on "+lhsDomain)
	}

	if rhsSpan.IsValid() {
		b.Related(rhsSpan, "right operand placed on "+rhsDomain)
	}

	return b.Build()
}

// InvalidPlan reports a malformed plan file.
func (cd *CommonDiagnostics) InvalidPlan(span position.Span, message string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Config().
		Code(CodeInvalidPlan).
		Title("invalid plan").
		Message(message).
		Span(span).
		Build()
}

var placementTitles = map[string]struct {
	code  string
	title string
}{
	errors.CodeShapeMismatch:      {CodeShapeMismatch, "device domain shape mismatch"},
	errors.CodeInvalidArity:       {CodeInvalidArity, "wrong number of arguments"},
	errors.CodeUnconstrainedScope: {CodeUnconstrainedScope, "unconstrained scope"},
	errors.CodeMissingAttributes:  {CodeMissingAttributes, "missing attributes"},
}

// FromError converts an error returned by planning into a diagnostic. Errors
// that carry their own span (plan file errors) use it; otherwise span is used.
// Validation failures become invalid plan diagnostics.
func (cd *CommonDiagnostics) FromError(err error, span position.Span) *Diagnostic {
	var spanned interface{ Span() position.Span }
	if stderrors.As(err, &spanned) && spanned.Span().IsValid() {
		span = spanned.Span()
	}

	var se *errors.StandardError
	if !stderrors.As(err, &se) {
		return cd.InvalidPlan(span, err.Error())
	}

	if se.Category == errors.CategoryValidation {
		return cd.InvalidPlan(span, se.Message)
	}

	if se.Category != errors.CategoryPlacement {
		return NewDiagnostic().
			Error().
			Code(CodeInternal).
			Title("internal error").
			Message(se.Message).
			Span(span).
			Build()
	}

	lhsSpan, _ := se.Context["lhs_span"].(position.Span)
	rhsSpan, _ := se.Context["rhs_span"].(position.Span)

	if lhsSpan.IsValid() {
		span = lhsSpan
	}

	if se.Code == errors.CodeIncompatibleScopes {
		return cd.IncompatibleScopes(span, se.Message,
			lhsSpan, se.ContextString("lhs_domain"), rhsSpan, se.ContextString("rhs_domain"))
	}

	entry, ok := placementTitles[se.Code]
	if !ok {
		entry.code, entry.title = CodeInternal, "placement failed"
	}

	return NewDiagnostic().
		Error().
		Placement().
		Code(entry.code).
		Title(entry.title).
		Message(se.Message).
		Span(span).
		Build()
}
