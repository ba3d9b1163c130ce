package scope

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-set/v2"

	"github.com/orizon-lang/devplan/internal/errors"
)

// CompilationConfig supplies the scopes a planning pass needs: the host scope
// for control flow and shape data, the default scope for otherwise
// unconstrained primitives, and the target used for each device type.
// A CompilationConfig memoises canonical scopes and is not safe for
// concurrent use.
type CompilationConfig struct {
	host           SEScope
	defaultPrimary SEScope
	targets        map[DeviceType]string
	devices        *set.Set[DeviceType]
	canonical      map[SEScope]SEScope
}

// NewCompilationConfig builds a configuration. targets may be nil, in which
// case canonicalization never fills in a target.
func NewCompilationConfig(host, defaultPrimary SEScope, targets map[DeviceType]string) (*CompilationConfig, error) {
	if !host.IsFullyConstrained() {
		return nil, fmt.Errorf("host scope %q must be fully constrained", host)
	}

	if defaultPrimary.IsFullyUnconstrained() {
		return nil, fmt.Errorf("default primary scope must not be fully unconstrained")
	}

	cfg := &CompilationConfig{
		targets:   make(map[DeviceType]string, len(targets)),
		devices:   set.New[DeviceType](len(targets) + 2),
		canonical: make(map[SEScope]SEScope),
	}

	for dt, target := range targets {
		if dt == DeviceInvalid {
			return nil, fmt.Errorf("target %q bound to an invalid device type", target)
		}

		cfg.targets[dt] = target
		cfg.devices.Insert(dt)
	}

	cfg.host = cfg.CanonicalScope(host)
	cfg.defaultPrimary = cfg.CanonicalScope(defaultPrimary)
	cfg.devices.Insert(cfg.host.DeviceType)

	if cfg.defaultPrimary.DeviceType != DeviceInvalid {
		cfg.devices.Insert(cfg.defaultPrimary.DeviceType)
	}

	return cfg, nil
}

// HostScope returns the canonical host scope.
func (c *CompilationConfig) HostScope() SEScope { return c.host }

// DefaultPrimaryScope returns the canonical fallback scope for primitives.
func (c *CompilationConfig) DefaultPrimaryScope() SEScope { return c.defaultPrimary }

// KnownDevice reports whether dt is the host, the default, or has a target.
func (c *CompilationConfig) KnownDevice(dt DeviceType) bool {
	return c.devices.Contains(dt)
}

// CheckScope rejects a scope naming a device type that is neither the host,
// the default, nor bound to a target. Scopes without a device type pass.
func (c *CompilationConfig) CheckScope(s SEScope) error {
	if s.DeviceType == DeviceInvalid || c.KnownDevice(s.DeviceType) {
		return nil
	}

	devices := c.devices.Slice()
	slices.Sort(devices)

	known := make([]string, len(devices))
	for i, dt := range devices {
		known[i] = dt.String()
	}

	return errors.UnknownDevice(s.String(), s.DeviceType.String(), known)
}

// CanonicalScope returns the canonical representative of s: a scope naming a
// device type but no target gets the target configured for that device type.
// Equal inputs always yield equal results.
func (c *CompilationConfig) CanonicalScope(s SEScope) SEScope {
	if s.IsFullyUnconstrained() {
		return s
	}

	if canonical, ok := c.canonical[s]; ok {
		return canonical
	}

	canonical := s
	if canonical.Target == "" && canonical.DeviceType != DeviceInvalid {
		canonical.Target = c.targets[canonical.DeviceType]
	}

	c.canonical[s] = canonical

	return canonical
}
