// Package planner assigns a device scope to every expression of a program.
//
// Planning runs in two phases over one devicedomains.DeviceDomains. The
// analysis phase walks the program and turns each construct into
// unification constraints; any contradiction aborts planning. The defaulting
// phase then fills the scopes left open with the configured default primary
// scope, function results before their parameters.
package planner

import (
	"fmt"
	"log"
	"strings"

	"github.com/orizon-lang/devplan/internal/devicedomains"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

// Planner plans programs under one compilation configuration.
type Planner struct {
	config *scope.CompilationConfig
	logger *log.Logger
}

// New creates a planner for config.
func New(config *scope.CompilationConfig) *Planner {
	return &Planner{config: config}
}

// SetLogger enables tracing of both planning phases.
func (p *Planner) SetLogger(logger *log.Logger) {
	p.logger = logger
}

func (p *Planner) tracef(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Plan is the result of planning one program.
type Plan struct {
	Root ir.Expr

	scopes  map[ir.Expr]scope.SEScope
	order   []ir.Expr
	domains *devicedomains.DeviceDomains
}

// ScopeOf returns the scope assigned to e. For a function-valued expression
// this is the scope of its result.
func (pl *Plan) ScopeOf(e ir.Expr) (scope.SEScope, bool) {
	s, ok := pl.scopes[e]

	return s, ok
}

// Exprs returns the planned expressions in post-order.
func (pl *Plan) Exprs() []ir.Expr {
	return pl.order
}

// Domains exposes the solved domains, mainly for dumping.
func (pl *Plan) Domains() *devicedomains.DeviceDomains {
	return pl.domains
}

// Dump renders every cached expression and call with its final domain.
func (pl *Plan) Dump() string {
	return pl.domains.String()
}

// String lists the scope of each planned expression, one per line.
func (pl *Plan) String() string {
	var sb strings.Builder

	for _, e := range pl.order {
		fmt.Fprintf(&sb, "%-16s %s\n", scopeText(pl.scopes[e]), ir.PrettyPrint(e))
	}

	return sb.String()
}

func scopeText(s scope.SEScope) string {
	if s.IsFullyUnconstrained() {
		return "?"
	}

	return s.String()
}

// Plan analyses root, applies defaults and returns the scope of every
// expression. Operator and constructor references are not planned.
func (p *Planner) Plan(root ir.Expr) (*Plan, error) {
	dd := devicedomains.New(p.config)
	dd.SetLogger(p.logger)

	var exprs []ir.Expr

	ir.Visit(root, func(e ir.Expr) {
		switch e.(type) {
		case *ir.Op, *ir.Constructor:
			return
		}

		exprs = append(exprs, e)
	})

	p.tracef("analysing %d expressions", len(exprs))

	for _, e := range exprs {
		if err := p.analyse(dd, e); err != nil {
			return nil, err
		}
	}

	p.tracef("defaulting to %s", p.config.DefaultPrimaryScope())

	if err := p.applyDefaults(dd, exprs); err != nil {
		return nil, err
	}

	plan := &Plan{
		Root:    root,
		scopes:  make(map[ir.Expr]scope.SEScope, len(exprs)),
		order:   exprs,
		domains: dd,
	}

	for _, e := range exprs {
		plan.scopes[e] = dd.ResultScope(dd.DomainFor(e))
	}

	return plan, nil
}

// ====== Analysis ======

func (p *Planner) analyse(dd *devicedomains.DeviceDomains, e ir.Expr) error {
	switch n := e.(type) {
	case *ir.Call:
		// The callee must accept the arguments where they are and produce the
		// result where the call is.
		args := callArgs(n)

		parts := make([]devicedomains.DomainID, 0, len(args)+1)
		for _, arg := range args {
			parts = append(parts, dd.DomainFor(arg))
		}

		parts = append(parts, dd.DomainFor(n))

		implied, err := dd.MakeHigherOrder(parts)
		if err != nil {
			return err
		}

		return dd.UnifyCallee(n, implied)
	case *ir.Function:
		parts := make([]devicedomains.DomainID, 0, len(n.Params)+1)
		for _, param := range n.Params {
			parts = append(parts, dd.DomainFor(param))
		}

		parts = append(parts, dd.DomainFor(n.Body))

		implied, err := dd.MakeHigherOrder(parts)
		if err != nil {
			return err
		}

		return dd.UnifyExprExpected(n, implied)
	case *ir.Let:
		if err := dd.UnifyExprExact(n.Var, n.Value); err != nil {
			return err
		}

		return dd.UnifyExprExact(n, n.Body)
	case *ir.If:
		// Condition, branches and result share one device.
		for _, branch := range []ir.Expr{n.Cond, n.Then, n.Else} {
			if err := dd.UnifyExprExact(n, branch); err != nil {
				return err
			}
		}

		return nil
	case *ir.Tuple:
		for _, field := range n.Fields {
			if err := dd.UnifyExprCollapsed(n, dd.DomainFor(field)); err != nil {
				return err
			}
		}

		return nil
	case *ir.TupleGetItem:
		return dd.UnifyExprCollapsed(n.Tuple, dd.DomainFor(n))
	default:
		// Variables, globals and constants only carry the constraints
		// their uses impose.
		return nil
	}
}

// callArgs returns the arguments the callee actually receives; a lowered
// call passes everything but the lowered function itself.
func callArgs(call *ir.Call) []ir.Expr {
	if props, ok := ir.GetCallLoweredProps(call); ok {
		return props.Args
	}

	return call.Args
}

// ====== Defaulting ======

// applyDefaults visits exprs outermost first, so an enclosing function fixes
// its signature before the expressions inside it are defaulted.
func (p *Planner) applyDefaults(dd *devicedomains.DeviceDomains, exprs []ir.Expr) error {
	fallback := p.config.DefaultPrimaryScope()

	for i := len(exprs) - 1; i >= 0; i-- {
		e := exprs[i]

		if call, ok := e.(*ir.Call); ok {
			callee, err := dd.DomainForCallee(call)
			if err != nil {
				return err
			}

			if err := dd.SetResultDefaultThenParams(callee, fallback); err != nil {
				return err
			}
		}

		if err := dd.SetResultDefaultThenParams(dd.DomainFor(e), fallback); err != nil {
			return err
		}
	}

	return nil
}
