package devicedomains

import (
	stderrors "errors"
	"testing"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

func TestCollapse(t *testing.T) {
	dd := newTestDomains(t)

	deviceOnly := dd.MakeFirstOrder(scope.SEScope{DeviceType: scope.DeviceCUDA, VirtualDeviceID: scope.InvalidVirtualDeviceID})
	idOnly := dd.MakeFirstOrder(scope.SEScope{DeviceType: scope.DeviceInvalid, VirtualDeviceID: 1})

	fn, err := dd.MakeHigherOrder([]DomainID{deviceOnly, dd.Free(ir.Tensor(1)), idOnly})
	if err != nil {
		t.Fatal(err)
	}

	fo := dd.Free(ir.Tensor(1))
	if !dd.Collapse(fo, fn) {
		t.Fatal("Collapse should succeed on joinable positions")
	}

	if s, _ := dd.Scope(fo); s != cuda1 {
		t.Errorf("collapsed scope = %v, want %v", s, cuda1)
	}

	expectString(t, dd, fn, "fn(cuda1,cuda1):cuda1")

	conflicting, err := dd.MakeHigherOrder([]DomainID{dd.MakeFirstOrder(cpu0), dd.MakeFirstOrder(cuda0)})
	if err != nil {
		t.Fatal(err)
	}

	if dd.Collapse(dd.Free(ir.Tensor(1)), conflicting) {
		t.Error("Collapse must fail when parameter and result disagree")
	}

	if dd.Collapse(fn, fo) {
		t.Error("Collapse must reject swapped kinds")
	}
}

func TestUnifyCollapsedFirstOrder(t *testing.T) {
	dd := newTestDomains(t)

	lhs := dd.Free(ir.Tensor(1))

	if !dd.UnifyCollapsed(lhs, dd.MakeFirstOrder(cuda0)) {
		t.Fatal("UnifyCollapsed on first-order domains should behave like Unify")
	}

	expectString(t, dd, lhs, "cuda0")

	if dd.UnifyCollapsed(lhs, dd.MakeFirstOrder(cpu0)) {
		t.Error("UnifyCollapsed should report incompatible scopes")
	}
}

func TestIsFullyConstrained(t *testing.T) {
	dd := newTestDomains(t)

	fn := dd.Free(ir.Func(ir.Tensor(1), ir.Tensor(1)))
	if dd.IsFullyConstrained(fn) {
		t.Error("free domain is not fully constrained")
	}

	if _, ok := dd.Unify(dd.Param(fn, 0), dd.MakeFirstOrder(cpu0)); !ok {
		t.Fatal("unify should succeed")
	}

	if dd.IsFullyConstrained(fn) {
		t.Error("domain with free result is not fully constrained")
	}

	if _, ok := dd.Unify(dd.Result(fn), dd.MakeFirstOrder(cuda0)); !ok {
		t.Fatal("unify should succeed")
	}

	if !dd.IsFullyConstrained(fn) {
		t.Error("all leaves constrained: domain should be fully constrained")
	}
}

func TestSetDefault(t *testing.T) {
	dd := newTestDomains(t)

	pinned := dd.MakeFirstOrder(cpu0)
	partial := dd.MakeFirstOrder(scope.SEScope{DeviceType: scope.DeviceCUDA, VirtualDeviceID: scope.InvalidVirtualDeviceID})
	free := dd.Free(ir.Tensor(1))

	for _, d := range []DomainID{pinned, partial, free} {
		if err := dd.SetDefault(d, cuda1); err != nil {
			t.Fatalf("SetDefault failed: %v", err)
		}
	}

	expectString(t, dd, pinned, "cpu0")
	expectString(t, dd, partial, "cuda1")
	expectString(t, dd, free, "cuda1")

	if err := dd.SetDefault(free, scope.FullyUnconstrained()); !stderrors.Is(err, errors.ErrUnconstrainedScope) {
		t.Errorf("SetDefault with unconstrained fallback = %v, want ErrUnconstrainedScope", err)
	}
}

func TestSetResultDefaultThenParams(t *testing.T) {
	t.Run("params follow result", func(t *testing.T) {
		dd := newTestDomains(t)

		fn := dd.Free(ir.Func(ir.Tensor(1), ir.Tensor(1)))
		if _, ok := dd.Unify(dd.Result(fn), dd.MakeFirstOrder(cuda0)); !ok {
			t.Fatal("unify should succeed")
		}

		if err := dd.SetResultDefaultThenParams(fn, cpu0); err != nil {
			t.Fatalf("SetResultDefaultThenParams failed: %v", err)
		}

		expectString(t, dd, fn, "fn(cuda0):cuda0")
	})

	t.Run("fallback for free function", func(t *testing.T) {
		dd := newTestDomains(t)

		fn := dd.Free(ir.Func(ir.Func(ir.Tensor(1), ir.Tensor(1)), ir.Tensor(1), ir.Tensor(1)))
		if err := dd.SetResultDefaultThenParams(fn, cuda1); err != nil {
			t.Fatalf("SetResultDefaultThenParams failed: %v", err)
		}

		expectString(t, dd, fn, "fn(cuda1,cuda1):fn(cuda1):cuda1")

		if dd.ResultScope(fn) != cuda1 {
			t.Errorf("ResultScope() = %v, want %v", dd.ResultScope(fn), cuda1)
		}
	})

	t.Run("first-order", func(t *testing.T) {
		dd := newTestDomains(t)

		d := dd.Free(ir.Tensor(1))
		if err := dd.SetResultDefaultThenParams(d, cuda0); err != nil {
			t.Fatalf("SetResultDefaultThenParams failed: %v", err)
		}

		expectString(t, dd, d, "cuda0")
	})
}

func TestResultDomain(t *testing.T) {
	dd := newTestDomains(t)

	// fn(?):fn(?):cuda0
	curried := dd.MakeFromType(ir.Func(ir.Func(ir.Tensor(1), ir.Tensor(1)), ir.Tensor(1)), cuda0)

	result := dd.ResultDomain(curried)
	if dd.IsHigherOrder(result) {
		t.Fatal("ResultDomain must be first-order")
	}

	if result != dd.MakeFirstOrder(cuda0) {
		t.Errorf("ResultDomain() = %s, want cuda0", dd.ToString(result))
	}

	if dd.ResultDomain(result) != result {
		t.Error("ResultDomain of a first-order domain is the domain itself")
	}
}
