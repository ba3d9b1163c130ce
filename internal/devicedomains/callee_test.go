package devicedomains

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

func TestDomainForCaches(t *testing.T) {
	dd := newTestDomains(t)

	x := ir.NewVar("x", ir.Tensor(3))
	y := ir.NewVar("y", ir.Tensor(3))
	f := ir.NewVar("f", ir.Func(ir.Tensor(3), ir.Tensor(3)))

	if dd.DomainFor(x) != dd.DomainFor(x) {
		t.Error("DomainFor should return the cached domain")
	}

	if dd.DomainFor(x) == dd.DomainFor(y) {
		t.Error("distinct expressions should get distinct free domains")
	}

	if !dd.IsHigherOrder(dd.DomainFor(f)) {
		t.Error("function-typed expression should get a higher-order domain")
	}

	before := dd.DomainFor(x)
	if _, ok := dd.Unify(before, dd.MakeFirstOrder(cuda0)); !ok {
		t.Fatal("unify should succeed")
	}

	if got := dd.DomainFor(x); got != dd.MakeFirstOrder(cuda0) {
		t.Errorf("DomainFor should return the current root, got %s", dd.ToString(got))
	}
}

func TestDomainForCallee(t *testing.T) {
	tensor := ir.Tensor(8)
	shape := ir.Tensor(1)

	data := ir.NewVar("data", tensor)
	size := ir.NewConstant("64", shape)
	align := ir.NewConstant("16", shape)
	offset := ir.NewConstant("0", shape)
	shapeConst := ir.NewConstant("[8]", shape)
	storage := ir.NewVar("storage", &ir.StorageType{})
	primFunc := ir.NewGlobalVar("fused_add", ir.Func(tensor, tensor, tensor))
	add := ir.NewOp("add", ir.Func(tensor, tensor, tensor))

	tests := []struct {
		name  string
		call  *ir.Call
		check func(t *testing.T, dd *DeviceDomains, d DomainID)
	}{
		{
			name: "on_device fixed",
			call: ir.OnDevice(data, cuda0, true),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				expectString(t, dd, d, "fn(cuda0):cuda0")

				if dd.Param(d, 0) != dd.Result(d) {
					t.Error("fixed on_device must share one domain for argument and result")
				}
			},
		},
		{
			name: "on_device not fixed",
			call: ir.OnDevice(data, cuda0, false),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				expectString(t, dd, d, fmt.Sprintf("fn(cuda0):?%d?", dd.Result(d)))
			},
		},
		{
			name: "device_copy",
			call: ir.DeviceCopy(data, cpu0, cuda1),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				expectString(t, dd, d, "fn(cpu0):cuda1")
			},
		},
		{
			name: "alloc_storage",
			call: ir.AllocStorage(size, align, cuda0, "float32"),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				expectString(t, dd, d, "fn(cpu0,cpu0):cuda0")
			},
		},
		{
			name: "alloc_tensor",
			call: ir.AllocTensor(storage, offset, shapeConst, tensor),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				if dd.Param(d, 0) != dd.Result(d) {
					t.Error("storage and result must share one domain")
				}

				if dd.Param(d, 1) != dd.HostDomain() || dd.Param(d, 2) != dd.HostDomain() {
					t.Error("offset and shape must live on the host")
				}
			},
		},
		{
			name: "shape_of",
			call: ir.ShapeOf(data, shape),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				expectString(t, dd, d, fmt.Sprintf("fn(?%d?):cpu0", dd.Param(d, 0)))
			},
		},
		{
			name: "invoke_tvm_op",
			call: ir.InvokeTVMOp(primFunc, ir.NewTuple(data, data), ir.NewTuple(data), tensor),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				if !dd.IsHigherOrder(dd.Param(d, 0)) || dd.Arity(dd.Param(d, 0)) != 2 {
					t.Error("op parameter should be shaped like the primitive function")
				}

				if dd.Param(d, 1) != dd.Param(d, 2) || dd.Param(d, 2) != dd.Result(d) {
					t.Error("inputs, outputs and result must share one domain")
				}
			},
		},
		{
			name: "reshape_tensor",
			call: ir.ReshapeTensor(data, shapeConst, tensor),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				if dd.Param(d, 0) != dd.Result(d) || dd.Param(d, 1) != dd.HostDomain() {
					t.Errorf("unexpected reshape_tensor domain %s", dd.ToString(d))
				}
			},
		},
		{
			name: "primitive",
			call: ir.NewCall(add, []ir.Expr{data, data}, nil, tensor),
			check: func(t *testing.T, dd *DeviceDomains, d DomainID) {
				if dd.Arity(d) != 2 {
					t.Fatalf("Arity() = %d, want 2", dd.Arity(d))
				}

				if dd.Param(d, 0) != dd.Param(d, 1) || dd.Param(d, 1) != dd.Result(d) {
					t.Error("primitive positions must share one domain")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dd := newTestDomains(t)

			d, err := dd.DomainForCallee(tt.call)
			if err != nil {
				t.Fatalf("DomainForCallee failed: %v", err)
			}

			tt.check(t, dd, d)

			again, err := dd.DomainForCallee(tt.call)
			if err != nil || again != d {
				t.Errorf("second DomainForCallee = %d (%v), want cached %d", again, err, d)
			}
		})
	}
}

func TestDomainForCalleeDelegates(t *testing.T) {
	dd := newTestDomains(t)

	tensor := ir.Tensor(2)
	x := ir.NewVar("x", tensor)
	lowered := ir.NewGlobalVar("fused_negative", ir.Func(tensor, tensor))
	f := ir.NewVar("f", ir.Func(tensor, tensor))

	d, err := dd.DomainForCallee(ir.CallLowered(lowered, []ir.Expr{x}, tensor))
	if err != nil {
		t.Fatalf("DomainForCallee(call_lowered) failed: %v", err)
	}

	if d != dd.DomainFor(lowered) {
		t.Error("call_lowered should use the domain of the lowered function")
	}

	d, err = dd.DomainForCallee(ir.NewCall(f, []ir.Expr{x}, nil, tensor))
	if err != nil {
		t.Fatalf("DomainForCallee(var) failed: %v", err)
	}

	if d != dd.DomainFor(f) {
		t.Error("calls to function values should use the domain of the callee")
	}
}

func TestDomainForCalleeConstructorCollapses(t *testing.T) {
	dd := newTestDomains(t)

	list := &ir.TypeData{Name: "List"}
	mapper := ir.Func(ir.Tensor(1), ir.Tensor(1))
	cons := ir.NewConstructor("Cons", ir.Func(list, mapper, list))
	call := ir.NewCall(cons, []ir.Expr{ir.NewVar("f", mapper), ir.NewVar("tail", list)}, nil, list)

	d, err := dd.DomainForCallee(call)
	if err != nil {
		t.Fatalf("DomainForCallee failed: %v", err)
	}

	if dd.Arity(d) != 2 {
		t.Fatalf("Arity() = %d, want 2", dd.Arity(d))
	}

	if _, ok := dd.Unify(dd.Result(d), dd.MakeFirstOrder(cuda0)); !ok {
		t.Fatal("unifying constructor result with cuda0 should succeed")
	}

	expectString(t, dd, d, "fn(fn(cuda0):cuda0,cuda0):cuda0")
}

func TestDomainForCalleeErrors(t *testing.T) {
	tensor := ir.Tensor(1)
	x := ir.NewVar("x", tensor)

	tests := []struct {
		name string
		call *ir.Call
		want error
	}{
		{
			name: "alloc_storage arity",
			call: ir.NewCall(ir.NewOp(ir.OpAllocStorage, ir.Func(&ir.StorageType{}, tensor)), []ir.Expr{x},
				&ir.AllocStorageAttrs{Scope: cuda0}, &ir.StorageType{}),
			want: errors.ErrInvalidArity,
		},
		{
			name: "alloc_storage attributes",
			call: ir.NewCall(ir.NewOp(ir.OpAllocStorage, ir.Func(&ir.StorageType{}, tensor, tensor)), []ir.Expr{x, x},
				nil, &ir.StorageType{}),
			want: errors.ErrMissingAttributes,
		},
		{
			name: "on_device attributes",
			call: ir.NewCall(ir.NewOp(ir.OpOnDevice, ir.Func(tensor, tensor)), []ir.Expr{x}, nil, tensor),
			want: errors.ErrMissingAttributes,
		},
		{
			name: "on_device arity",
			call: ir.NewCall(ir.NewOp(ir.OpOnDevice, ir.Func(tensor, tensor, tensor)), []ir.Expr{x, x},
				&ir.OnDeviceAttrs{Scope: cuda0, IsFixed: true}, tensor),
			want: errors.ErrInvalidArity,
		},
		{
			name: "device_copy arity",
			call: ir.NewCall(ir.NewOp(ir.OpDeviceCopy, ir.Func(tensor)), nil,
				&ir.DeviceCopyAttrs{Src: cuda0, Dst: cuda0}, tensor),
			want: errors.ErrInvalidArity,
		},
		{
			name: "on_device unconstrained",
			call: ir.OnDevice(x, scope.FullyUnconstrained(), true),
			want: errors.ErrUnconstrainedScope,
		},
		{
			name: "shape_of arity",
			call: ir.NewCall(ir.NewOp(ir.OpShapeOf, ir.Func(tensor, tensor, tensor)), []ir.Expr{x, x}, nil, tensor),
			want: errors.ErrInvalidArity,
		},
		{
			name: "constructor arity",
			call: ir.NewCall(ir.NewConstructor("Nil", ir.Func(&ir.TypeData{Name: "List"})), []ir.Expr{x}, nil,
				&ir.TypeData{Name: "List"}),
			want: errors.ErrInvalidArity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dd := newTestDomains(t)

			if _, err := dd.DomainForCallee(tt.call); !stderrors.Is(err, tt.want) {
				t.Errorf("DomainForCallee() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnifyExprExact(t *testing.T) {
	dd := newTestDomains(t)

	x := ir.NewVar("x", ir.Tensor(1))
	y := ir.NewVar("y", ir.Tensor(1))

	if err := dd.UnifyExprExpected(x, dd.MakeFirstOrder(cpu0)); err != nil {
		t.Fatalf("UnifyExprExpected failed: %v", err)
	}

	if err := dd.UnifyExprExpected(y, dd.MakeFirstOrder(cuda0)); err != nil {
		t.Fatalf("UnifyExprExpected failed: %v", err)
	}

	err := dd.UnifyExprExact(x, y)
	if !stderrors.Is(err, errors.ErrIncompatibleScopes) {
		t.Fatalf("UnifyExprExact error = %v, want ErrIncompatibleScopes", err)
	}

	var se *errors.StandardError
	if !stderrors.As(err, &se) {
		t.Fatalf("expected a *StandardError, got %T", err)
	}

	if se.ContextString("lhs") != "%x" || se.ContextString("rhs") != "%y" {
		t.Errorf("unexpected operands in %v", se.Context)
	}

	if se.ContextString("lhs_domain") != "cpu0" || se.ContextString("rhs_domain") != "cuda0" {
		t.Errorf("unexpected domains in %v", se.Context)
	}

	if !strings.Contains(se.Message, "with scope:\ncpu0") {
		t.Errorf("message should render both domains, got:\n%s", se.Message)
	}

	f := ir.NewVar("f", ir.Func(ir.Tensor(1), ir.Tensor(1)))
	if err := dd.UnifyExprExact(f, x); !stderrors.Is(err, errors.ErrShapeMismatch) {
		t.Errorf("UnifyExprExact on different shapes = %v, want ErrShapeMismatch", err)
	}
}

func TestUnifyExprCollapsed(t *testing.T) {
	dd := newTestDomains(t)

	x := ir.NewVar("x", ir.Tensor(1))
	fn := dd.Free(ir.Func(ir.Tensor(1), ir.Tensor(1), ir.Tensor(1)))

	if err := dd.UnifyExprCollapsed(x, fn); err != nil {
		t.Fatalf("UnifyExprCollapsed failed: %v", err)
	}

	if err := dd.UnifyExprExpected(x, dd.MakeFirstOrder(cuda0)); err != nil {
		t.Fatalf("UnifyExprExpected failed: %v", err)
	}

	expectString(t, dd, fn, "fn(cuda0,cuda0):cuda0")

	pinned, err := dd.MakeHigherOrder([]DomainID{dd.MakeFirstOrder(cpu0), dd.MakeFirstOrder(cpu0)})
	if err != nil {
		t.Fatal(err)
	}

	if err := dd.UnifyExprCollapsed(x, pinned); !stderrors.Is(err, errors.ErrIncompatibleScopes) {
		t.Errorf("UnifyExprCollapsed = %v, want ErrIncompatibleScopes", err)
	}

	f := ir.NewVar("f", ir.Func(ir.Tensor(1), ir.Tensor(1)))
	if err := dd.UnifyExprCollapsed(f, fn); !stderrors.Is(err, errors.ErrShapeMismatch) {
		t.Errorf("UnifyExprCollapsed on higher-order expression = %v, want ErrShapeMismatch", err)
	}
}

func TestUnifyCallee(t *testing.T) {
	dd := newTestDomains(t)

	x := ir.NewVar("x", ir.Tensor(1))
	call := ir.OnDevice(x, cuda0, true)

	implied, err := dd.MakeHigherOrder([]DomainID{dd.DomainFor(x), dd.DomainFor(call)})
	if err != nil {
		t.Fatal(err)
	}

	if err := dd.UnifyCallee(call, implied); err != nil {
		t.Fatalf("UnifyCallee failed: %v", err)
	}

	expectString(t, dd, dd.DomainFor(x), "cuda0")
	expectString(t, dd, dd.DomainFor(call), "cuda0")

	y := ir.NewVar("y", ir.Tensor(1))
	pinned := ir.OnDevice(y, cuda0, true)

	conflict, err := dd.MakeHigherOrder([]DomainID{dd.MakeFirstOrder(cpu0), dd.DomainFor(pinned)})
	if err != nil {
		t.Fatal(err)
	}

	err = dd.UnifyCallee(pinned, conflict)
	if !stderrors.Is(err, errors.ErrIncompatibleScopes) {
		t.Fatalf("UnifyCallee = %v, want ErrIncompatibleScopes", err)
	}

	var se *errors.StandardError
	if !stderrors.As(err, &se) || se.ContextString("rhs") != "<expected>" {
		t.Errorf("unexpected error context: %v", err)
	}

	short, err := dd.MakeHigherOrder([]DomainID{dd.Free(ir.Tensor(1))})
	if err != nil {
		t.Fatal(err)
	}

	if err := dd.UnifyCallee(ir.OnDevice(ir.NewVar("z", ir.Tensor(1)), cuda0, true), short); !stderrors.Is(err, errors.ErrShapeMismatch) {
		t.Errorf("UnifyCallee with wrong arity = %v, want ErrShapeMismatch", err)
	}
}

func TestDumpListsCaches(t *testing.T) {
	dd := newTestDomains(t)

	x := ir.NewVar("x", ir.Tensor(1))
	call := ir.OnDevice(x, cuda0, true)

	dd.DomainFor(x)

	if _, err := dd.DomainForCallee(call); err != nil {
		t.Fatal(err)
	}

	dump := dd.String()
	for _, want := range []string{
		"expression:\n%x\ndomain:\n",
		"call:\non_device(%x, se_scope=cuda0, is_fixed=true)\ncallee domain:\nfn(cuda0):cuda0\n",
	} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
}

func expectString(t *testing.T, dd *DeviceDomains, d DomainID, want string) {
	t.Helper()

	if got := dd.ToString(d); got != want {
		t.Errorf("ToString() = %q, want %q", got, want)
	}
}
