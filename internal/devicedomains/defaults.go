package devicedomains

import (
	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/scope"
)

// IsFullyConstrained reports whether every first-order leaf of d has a fully
// constrained scope.
func (dd *DeviceDomains) IsFullyConstrained(d DomainID) bool {
	d = dd.Lookup(d)

	if !dd.IsHigherOrder(d) {
		return dd.domains[d].scope.IsFullyConstrained()
	}

	for _, sub := range dd.domains[d].argsAndResult {
		if !dd.IsFullyConstrained(sub) {
			return false
		}
	}

	return true
}

// SetDefault resolves every first-order leaf of d that is not yet fully
// constrained by filling its missing fields from fallback.
func (dd *DeviceDomains) SetDefault(d DomainID, fallback scope.SEScope) error {
	if fallback.IsFullyUnconstrained() {
		return errors.UnconstrainedScope("SetDefault")
	}

	return dd.setDefault(d, fallback)
}

func (dd *DeviceDomains) setDefault(d DomainID, fallback scope.SEScope) error {
	d = dd.Lookup(d)

	if dd.IsHigherOrder(d) {
		// Copy the parts: unification below may grow the arena.
		parts := append([]DomainID(nil), dd.domains[d].argsAndResult...)
		for _, sub := range parts {
			if err := dd.setDefault(sub, fallback); err != nil {
				return err
			}
		}

		return nil
	}

	current := dd.domains[d].scope
	defaulted := dd.MakeFirstOrder(dd.config.CanonicalScope(scope.Default(current, fallback)))

	if _, ok := dd.Unify(d, defaulted); !ok {
		return errors.IncompatibleScopes("Cannot apply default scope "+fallback.String(),
			"<domain>", dd.ToString(d), "<default>", dd.ToString(defaulted))
	}

	return nil
}

// SetResultDefaultThenParams defaults the result of d to fallback and then
// defaults every remaining leaf, parameters included, to the scope the result
// ended up with. Parameters therefore follow the function's own device rather
// than the global fallback.
func (dd *DeviceDomains) SetResultDefaultThenParams(d DomainID, fallback scope.SEScope) error {
	if !dd.IsHigherOrder(dd.Lookup(d)) {
		return dd.SetDefault(d, fallback)
	}

	if err := dd.SetDefault(dd.ResultDomain(d), fallback); err != nil {
		return err
	}

	return dd.SetDefault(d, dd.ResultScope(d))
}

// ResultDomain follows result positions from d down to the innermost
// first-order domain.
func (dd *DeviceDomains) ResultDomain(d DomainID) DomainID {
	d = dd.Lookup(d)
	for dd.IsHigherOrder(d) {
		d = dd.Lookup(dd.Result(d))
	}

	return d
}

// ResultScope returns the scope of ResultDomain(d).
func (dd *DeviceDomains) ResultScope(d DomainID) scope.SEScope {
	return dd.domains[dd.ResultDomain(d)].scope
}
