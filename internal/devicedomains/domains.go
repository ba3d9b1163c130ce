// Package devicedomains implements the unification domains used by the
// device planner to decide which device every expression and every call
// signature runs on.
//
// A domain is either first-order, carrying a single SEScope, or higher-order,
// mirroring a function type with one sub-domain per parameter plus one for the
// result. Domains are merged by a union-find solver: unifying two domains joins
// their scopes on the scope lattice and records both as equivalent to the
// joined domain. Unconstrained domains act as unification variables.
//
// A DeviceDomains value owns every domain, the equivalence table and the
// expression and call caches for one planning pass. It is not safe for
// concurrent use.
package devicedomains

import (
	"log"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

// DomainID is a stable handle to a domain owned by a DeviceDomains. Domain
// identity is handle equality.
type DomainID int

// domain is one arena slot. argsAndResult is empty for first-order domains;
// otherwise it holds the parameter domains followed by the result domain.
type domain struct {
	scope         scope.SEScope
	argsAndResult []DomainID
}

func (d *domain) isHigherOrder() bool { return len(d.argsAndResult) > 0 }

// DeviceDomains is the domain arena and union-find solver for one pass.
type DeviceDomains struct {
	config *scope.CompilationConfig
	logger *log.Logger

	domains []domain
	// equiv maps a merged domain to the domain it was merged into.
	equiv map[DomainID]DomainID
	// fullyConstrained interns first-order domains created fully constrained.
	fullyConstrained map[scope.SEScope]DomainID

	exprDomains   map[ir.Expr]DomainID
	exprOrder     []ir.Expr
	calleeDomains map[*ir.Call]DomainID
	callOrder     []*ir.Call

	host DomainID
}

// New creates the domains for one planning pass under config.
func New(config *scope.CompilationConfig) *DeviceDomains {
	dd := &DeviceDomains{
		config:           config,
		equiv:            make(map[DomainID]DomainID),
		fullyConstrained: make(map[scope.SEScope]DomainID),
		exprDomains:      make(map[ir.Expr]DomainID),
		calleeDomains:    make(map[*ir.Call]DomainID),
	}
	dd.host = dd.MakeFirstOrder(config.HostScope())

	return dd
}

// SetLogger enables tracing of unification failures and defaulting.
func (dd *DeviceDomains) SetLogger(logger *log.Logger) {
	dd.logger = logger
}

func (dd *DeviceDomains) tracef(format string, args ...interface{}) {
	if dd.logger != nil {
		dd.logger.Printf(format, args...)
	}
}

// Config returns the compilation configuration the domains were created with.
func (dd *DeviceDomains) Config() *scope.CompilationConfig { return dd.config }

// HostDomain returns the first-order domain pinned to the host scope.
func (dd *DeviceDomains) HostDomain() DomainID { return dd.host }

// Len returns the number of domains allocated so far.
func (dd *DeviceDomains) Len() int { return len(dd.domains) }

// ====== Shape accessors ======

// IsHigherOrder reports whether d is function-shaped.
func (dd *DeviceDomains) IsHigherOrder(d DomainID) bool {
	return dd.domains[d].isHigherOrder()
}

// Arity returns the number of parameters of a higher-order domain, or 0.
func (dd *DeviceDomains) Arity(d DomainID) int {
	if !dd.IsHigherOrder(d) {
		return 0
	}

	return len(dd.domains[d].argsAndResult) - 1
}

// Param returns the i'th parameter domain of a higher-order domain.
func (dd *DeviceDomains) Param(d DomainID, i int) DomainID {
	return dd.domains[d].argsAndResult[i]
}

// Result returns the result domain of a higher-order domain.
func (dd *DeviceDomains) Result(d DomainID) DomainID {
	parts := dd.domains[d].argsAndResult

	return parts[len(parts)-1]
}

// Scope returns the scope of the root of d, and false if that root is
// higher-order.
func (dd *DeviceDomains) Scope(d DomainID) (scope.SEScope, bool) {
	root := &dd.domains[dd.Lookup(d)]
	if root.isHigherOrder() {
		return scope.FullyUnconstrained(), false
	}

	return root.scope, true
}

// ====== Domain factory ======

func (dd *DeviceDomains) alloc(d domain) DomainID {
	id := DomainID(len(dd.domains))
	dd.domains = append(dd.domains, d)

	return id
}

// MakeFirstOrder returns a first-order domain for s. Fully constrained scopes
// share a single domain per scope; any other scope yields a fresh domain, so
// two unconstrained requests give two distinct unification variables.
func (dd *DeviceDomains) MakeFirstOrder(s scope.SEScope) DomainID {
	if !s.IsFullyConstrained() {
		return dd.alloc(domain{scope: s})
	}

	if id, ok := dd.fullyConstrained[s]; ok {
		return id
	}

	id := dd.alloc(domain{scope: s})
	dd.fullyConstrained[s] = id

	return id
}

// MakeHigherOrder builds a higher-order domain from its parameter domains
// followed by its result domain.
func (dd *DeviceDomains) MakeHigherOrder(argsAndResult []DomainID) (DomainID, error) {
	if len(argsAndResult) == 0 {
		return 0, errors.NewStandardError(errors.CategoryPlacement, errors.CodeInvalidArity,
			"higher-order domain needs at least a result domain", nil)
	}

	parts := make([]DomainID, len(argsAndResult))
	copy(parts, argsAndResult)

	return dd.alloc(domain{argsAndResult: parts}), nil
}

// MakeFromType builds a domain shaped like ty. For a function type the
// parameters are left unconstrained and only the result gets s; otherwise a
// first-order domain for s is returned.
func (dd *DeviceDomains) MakeFromType(ty ir.Type, s scope.SEScope) DomainID {
	ft, ok := ir.AsFunc(ty)
	if !ok {
		return dd.MakeFirstOrder(s)
	}

	parts := make([]DomainID, 0, ft.Arity()+1)
	for _, param := range ft.Params {
		parts = append(parts, dd.MakeFromType(param, scope.FullyUnconstrained()))
	}

	parts = append(parts, dd.MakeFromType(ft.Result, s))

	return dd.alloc(domain{argsAndResult: parts})
}

// ForScope returns a domain shaped like ty whose result is constrained to the
// canonical form of s. s usually comes from an annotation and must carry
// some constraint.
func (dd *DeviceDomains) ForScope(ty ir.Type, s scope.SEScope) (DomainID, error) {
	canonical := dd.config.CanonicalScope(s)
	if canonical.IsFullyUnconstrained() {
		return 0, errors.UnconstrainedScope("ForScope on type " + typeString(ty))
	}

	return dd.MakeFromType(ty, canonical), nil
}

// Free returns a domain shaped like ty with no constraint anywhere.
func (dd *DeviceDomains) Free(ty ir.Type) DomainID {
	return dd.MakeFromType(ty, scope.FullyUnconstrained())
}

func typeString(ty ir.Type) string {
	if ty == nil {
		return "<untyped>"
	}

	return ty.String()
}
