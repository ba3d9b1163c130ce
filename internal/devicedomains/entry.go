package devicedomains

import (
	"fmt"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
)

// Unification entry points used by the planner. Any error they return means
// the program has contradictory device constraints and planning must stop;
// the equivalence table may hold partial merges at that point.

// UnifyExprExact unifies the domains of lhs and rhs.
func (dd *DeviceDomains) UnifyExprExact(lhs, rhs ir.Expr) error {
	lhsDomain := dd.DomainFor(lhs)
	rhsDomain := dd.DomainFor(rhs)

	if _, ok := dd.Unify(lhsDomain, rhsDomain); !ok {
		if !dd.sameShape(lhsDomain, rhsDomain) {
			return dd.shapeMismatch(lhs, lhsDomain, rhs, rhsDomain)
		}

		return dd.incompatible("Incompatible scopes for expressions", lhs, lhsDomain, rhs, rhsDomain)
	}

	return nil
}

// UnifyExprExpected unifies the domain of expr with expected.
func (dd *DeviceDomains) UnifyExprExpected(expr ir.Expr, expected DomainID) error {
	actual := dd.DomainFor(expr)

	if _, ok := dd.Unify(actual, expected); !ok {
		if !dd.sameShape(actual, expected) {
			return dd.shapeMismatch(expr, actual, nil, expected)
		}

		return dd.incompatible("Incompatible scopes for expression", expr, actual, nil, expected)
	}

	return nil
}

// UnifyExprCollapsed unifies the first-order domain of expr with expected,
// collapsing expected onto it if expected is higher-order.
func (dd *DeviceDomains) UnifyExprCollapsed(expr ir.Expr, expected DomainID) error {
	actual := dd.DomainFor(expr)

	if !dd.UnifyCollapsed(actual, expected) {
		if dd.IsHigherOrder(dd.Lookup(actual)) {
			return dd.shapeMismatch(expr, actual, nil, expected)
		}

		return dd.incompatible("Incompatible scopes for expression", expr, actual, nil, expected)
	}

	return nil
}

// UnifyCallee unifies the callee domain of call with expected, the
// signature implied by the domains of its arguments and result.
func (dd *DeviceDomains) UnifyCallee(call *ir.Call, expected DomainID) error {
	callee, err := dd.DomainForCallee(call)
	if err != nil {
		return err
	}

	if _, ok := dd.Unify(callee, expected); !ok {
		if !dd.sameShape(callee, expected) {
			return dd.shapeMismatch(call, callee, nil, expected)
		}

		return dd.incompatible("Function parameters and result scopes do not match those of call", call, callee, nil, expected)
	}

	return nil
}

// operand renders an expression for an error message; a nil expression is
// the expected side of a constraint.
func operand(e ir.Expr) string {
	if e == nil {
		return "<expected>"
	}

	return ir.PrettyPrint(e)
}

func (dd *DeviceDomains) shapeMismatch(lhs ir.Expr, lhsDomain DomainID, rhs ir.Expr, rhsDomain DomainID) error {
	err := errors.ShapeMismatch(dd.ToString(lhsDomain), dd.ToString(rhsDomain))
	err.Context["lhs"] = operand(lhs)
	err.Context["rhs"] = operand(rhs)
	recordSpans(err, lhs, rhs)

	return err
}

func (dd *DeviceDomains) incompatible(title string, lhs ir.Expr, lhsDomain DomainID, rhs ir.Expr, rhsDomain DomainID) error {
	lhsText, rhsText := dd.ToString(lhsDomain), dd.ToString(rhsDomain)
	message := fmt.Sprintf("%s:\n%s\nwith scope:\n%s\nand:\n%s\nwith scope:\n%s",
		title, operand(lhs), lhsText, operand(rhs), rhsText)
	dd.tracef("%s", message)

	err := errors.IncompatibleScopes(message, operand(lhs), lhsText, operand(rhs), rhsText)
	recordSpans(err, lhs, rhs)

	return err
}

func recordSpans(err *errors.StandardError, lhs, rhs ir.Expr) {
	if lhs != nil {
		err.Context["lhs_span"] = lhs.Span()
	}

	if rhs != nil {
		err.Context["rhs_span"] = rhs.Span()
	}
}
