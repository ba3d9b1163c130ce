package devicedomains

import (
	"github.com/orizon-lang/devplan/internal/scope"
)

// ====== Union-find ======

// Lookup returns the root of d, compressing the path so that every domain
// visited on the way points directly at the root.
func (dd *DeviceDomains) Lookup(d DomainID) DomainID {
	root := d

	for {
		next, ok := dd.equiv[root]
		if !ok {
			break
		}

		root = next
	}

	for d != root {
		next := dd.equiv[d]
		dd.equiv[d] = root
		d = next
	}

	return root
}

// Join merges two root domains and returns the joined domain, or false if
// their shapes differ or their scopes are incompatible. Higher-order domains
// are joined position by position through Unify; the sub-unifications that
// succeed before a failing position stay committed.
func (dd *DeviceDomains) Join(lhs, rhs DomainID) (DomainID, bool) {
	if lhs == rhs {
		return lhs, true
	}

	l, r := dd.domains[lhs], dd.domains[rhs]
	if len(l.argsAndResult) != len(r.argsAndResult) {
		dd.tracef("device domains %s and %s do not have the same kind", dd.ToString(lhs), dd.ToString(rhs))

		return 0, false
	}

	if !l.isHigherOrder() {
		if r.scope.IsFullyUnconstrained() {
			return lhs, true
		}

		if l.scope.IsFullyUnconstrained() {
			return rhs, true
		}

		joined, ok := scope.Join(l.scope, r.scope)
		if !ok {
			dd.tracef("scopes %s and %s cannot be joined", l.scope, r.scope)

			return 0, false
		}

		return dd.MakeFirstOrder(dd.config.CanonicalScope(joined)), true
	}

	parts := make([]DomainID, len(l.argsAndResult))
	for i := range l.argsAndResult {
		joined, ok := dd.Unify(l.argsAndResult[i], r.argsAndResult[i])
		if !ok {
			return 0, false
		}

		parts[i] = joined
	}

	return dd.alloc(domain{argsAndResult: parts}), true
}

// Unify merges the roots of lhs and rhs. On success both former roots become
// equivalent to the returned domain; on failure the equivalence table is left
// as the (possibly partial) Join left it.
func (dd *DeviceDomains) Unify(lhs, rhs DomainID) (DomainID, bool) {
	lhs = dd.Lookup(lhs)
	rhs = dd.Lookup(rhs)

	joined, ok := dd.Join(lhs, rhs)
	if !ok {
		return 0, false
	}

	dd.link(lhs, joined)
	dd.link(rhs, joined)

	return joined, true
}

func (dd *DeviceDomains) link(from, to DomainID) {
	if from == to {
		return
	}

	if _, exists := dd.equiv[from]; !exists {
		dd.equiv[from] = to
	}
}

// ====== Collapse ======

// Collapse unifies the first-order domain firstOrder with every parameter of
// higherOrder and then with its result. It returns false on the first failure
// or if the domains do not have the expected kinds.
func (dd *DeviceDomains) Collapse(firstOrder, higherOrder DomainID) bool {
	firstOrder = dd.Lookup(firstOrder)
	higherOrder = dd.Lookup(higherOrder)

	if dd.IsHigherOrder(firstOrder) || !dd.IsHigherOrder(higherOrder) {
		return false
	}

	for i := 0; i < dd.Arity(higherOrder); i++ {
		if _, ok := dd.Unify(dd.Param(higherOrder, i), firstOrder); !ok {
			return false
		}
	}

	_, ok := dd.Unify(dd.Result(higherOrder), firstOrder)

	return ok
}

// UnifyCollapsed unifies the first-order domain lhs with rhs, collapsing rhs
// onto lhs when rhs is higher-order.
func (dd *DeviceDomains) UnifyCollapsed(lhs, rhs DomainID) bool {
	if dd.IsHigherOrder(dd.Lookup(lhs)) {
		return false
	}

	if dd.IsHigherOrder(dd.Lookup(rhs)) {
		return dd.Collapse(lhs, rhs)
	}

	_, ok := dd.Unify(lhs, rhs)

	return ok
}

// sameShape reports whether the roots of a and b have the same kind and,
// recursively, the same arities.
func (dd *DeviceDomains) sameShape(a, b DomainID) bool {
	a, b = dd.Lookup(a), dd.Lookup(b)
	if a == b {
		return true
	}

	l, r := dd.domains[a].argsAndResult, dd.domains[b].argsAndResult
	if len(l) != len(r) {
		return false
	}

	for i := range l {
		if !dd.sameShape(l[i], r[i]) {
			return false
		}
	}

	return true
}
