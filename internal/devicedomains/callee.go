package devicedomains

import (
	"fmt"

	"github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

// DomainFor returns the domain of expr, creating a free domain shaped like its
// checked type on first use.
func (dd *DeviceDomains) DomainFor(expr ir.Expr) DomainID {
	if d, ok := dd.exprDomains[expr]; ok {
		return dd.Lookup(d)
	}

	d := dd.Free(expr.CheckedType())
	dd.exprDomains[expr] = d
	dd.exprOrder = append(dd.exprOrder, expr)

	return d
}

// ====== Calling conventions ======

// calleeConvention is the closed set of calling conventions the planner knows
// about. Each variant carries exactly what its signature needs.
type calleeConvention interface {
	convention()
}

type (
	// on_device(body, se_scope=<t>, is_fixed=f): fn(<t>):<t> if fixed, else fn(<t>):?x?
	onDeviceConvention struct {
		body    ir.Expr
		scope   scope.SEScope
		isFixed bool
	}

	// device_copy(body, src_se_scope=<s>, dst_se_scope=<d>): fn(<s>):<d>
	deviceCopyConvention struct {
		body ir.Expr
		src  scope.SEScope
		dst  scope.SEScope
	}

	// memory.alloc_storage(size, alignment, se_scope=<t>): fn(<host>, <host>):<t>
	allocStorageConvention struct {
		scope scope.SEScope
	}

	// memory.alloc_tensor(storage, offset, shape): fn(?x?, <host>, <host>):?x?
	allocTensorConvention struct{}

	// vm.shape_of(tensor): fn(?x?):<host>
	shapeOfConvention struct {
		arg ir.Expr
	}

	// vm.invoke_tvm_op(op, inputs, outputs): fn(?op?, ?x?, ?x?):?x?
	invokeTVMOpConvention struct {
		op ir.Expr
	}

	// vm.reshape_tensor(data, shape): fn(?x?, <host>):?x?
	reshapeTensorConvention struct{}

	// call_lowered(f, args...): whatever f's domain is.
	callLoweredConvention struct {
		loweredFunc ir.Expr
	}

	// <primitive>(arg1, ..., argn): fn(?x?, ..., ?x?):?x?
	primitiveConvention struct {
		arity int
	}

	// <constructor>(arg1, ..., argn): fn(?x1?, ..., ?xn?):?xr? with every ?xi?
	// collapsed onto the first-order ?xr?.
	constructorConvention struct {
		name     string
		funcType *ir.FuncType
	}

	// Anything else, e.g. a call to a function value or global: the domain of
	// the callee expression itself.
	opaqueConvention struct {
		op ir.Expr
	}
)

func (onDeviceConvention) convention()      {}
func (deviceCopyConvention) convention()    {}
func (allocStorageConvention) convention()  {}
func (allocTensorConvention) convention()   {}
func (shapeOfConvention) convention()       {}
func (invokeTVMOpConvention) convention()   {}
func (reshapeTensorConvention) convention() {}
func (callLoweredConvention) convention()   {}
func (primitiveConvention) convention()     {}
func (constructorConvention) convention()   {}
func (opaqueConvention) convention()        {}

// classifyCall maps call onto its calling convention, checking the arities
// the fixed primitives rely on.
func classifyCall(call *ir.Call) (calleeConvention, error) {
	switch op := call.Op.(type) {
	case *ir.Op:
		switch op.Name {
		case ir.OpOnDevice:
			if err := checkArity(call, 1); err != nil {
				return nil, err
			}

			props, ok := ir.GetOnDeviceProps(call)
			if !ok {
				return nil, errors.MissingAttributes(op.Name)
			}

			return onDeviceConvention{body: props.Body, scope: props.Scope, isFixed: props.IsFixed}, nil
		case ir.OpDeviceCopy:
			if err := checkArity(call, 1); err != nil {
				return nil, err
			}

			props, ok := ir.GetDeviceCopyProps(call)
			if !ok {
				return nil, errors.MissingAttributes(op.Name)
			}

			return deviceCopyConvention{body: props.Body, src: props.Src, dst: props.Dst}, nil
		case ir.OpAllocStorage:
			if err := checkArity(call, 2); err != nil {
				return nil, err
			}

			attrs, ok := call.Attrs.(*ir.AllocStorageAttrs)
			if !ok {
				return nil, errors.MissingAttributes(op.Name)
			}

			return allocStorageConvention{scope: attrs.Scope}, nil
		case ir.OpAllocTensor:
			if err := checkArity(call, 3); err != nil {
				return nil, err
			}

			return allocTensorConvention{}, nil
		case ir.OpShapeOf:
			if err := checkArity(call, 1); err != nil {
				return nil, err
			}

			return shapeOfConvention{arg: call.Args[0]}, nil
		case ir.OpInvokeTVMOp:
			if err := checkArity(call, 3); err != nil {
				return nil, err
			}

			return invokeTVMOpConvention{op: call.Args[0]}, nil
		case ir.OpReshapeTensor:
			if err := checkArity(call, 2); err != nil {
				return nil, err
			}

			return reshapeTensorConvention{}, nil
		case ir.OpCallLowered:
			props, ok := ir.GetCallLoweredProps(call)
			if !ok {
				return nil, errors.InvalidArity(op.Name, 1, 0)
			}

			return callLoweredConvention{loweredFunc: props.LoweredFunc}, nil
		default:
			return primitiveConvention{arity: len(call.Args)}, nil
		}
	case *ir.Constructor:
		ft, ok := ir.AsFunc(op.CheckedType())
		if !ok {
			return nil, errors.NewStandardError(errors.CategoryPlacement, errors.CodeShapeMismatch,
				fmt.Sprintf("constructor %s does not have a function type", op.Name), nil)
		}

		if ft.Arity() != len(call.Args) {
			return nil, errors.InvalidArity(op.Name, ft.Arity(), len(call.Args))
		}

		return constructorConvention{name: op.Name, funcType: ft}, nil
	default:
		return opaqueConvention{op: call.Op}, nil
	}
}

func checkArity(call *ir.Call, expected int) error {
	if len(call.Args) != expected {
		return errors.InvalidArity(ir.PrettyPrint(call.Op), expected, len(call.Args))
	}

	return nil
}

// DomainForCallee returns the domain the callee of call is expected to have,
// synthesizing it from the callee's calling convention on first use.
func (dd *DeviceDomains) DomainForCallee(call *ir.Call) (DomainID, error) {
	if d, ok := dd.calleeDomains[call]; ok {
		return dd.Lookup(d), nil
	}

	convention, err := classifyCall(call)
	if err != nil {
		return 0, err
	}

	var argsAndResult []DomainID

	switch c := convention.(type) {
	case onDeviceConvention:
		bodyType := c.body.CheckedType()

		arg, err := dd.ForScope(bodyType, c.scope)
		if err != nil {
			return 0, err
		}

		result := arg
		if !c.isFixed {
			result = dd.Free(bodyType)
		}

		argsAndResult = []DomainID{arg, result}
	case deviceCopyConvention:
		bodyType := c.body.CheckedType()

		src, err := dd.ForScope(bodyType, c.src)
		if err != nil {
			return 0, err
		}

		dst, err := dd.ForScope(bodyType, c.dst)
		if err != nil {
			return 0, err
		}

		argsAndResult = []DomainID{src, dst}
	case allocStorageConvention:
		result, err := dd.ForScope(call.CheckedType(), c.scope)
		if err != nil {
			return 0, err
		}

		argsAndResult = []DomainID{dd.host, dd.host, result}
	case allocTensorConvention:
		free := dd.Free(call.CheckedType())
		argsAndResult = []DomainID{free, dd.host, dd.host, free}
	case shapeOfConvention:
		argsAndResult = []DomainID{dd.Free(c.arg.CheckedType()), dd.host}
	case invokeTVMOpConvention:
		free := dd.Free(call.CheckedType())
		argsAndResult = []DomainID{dd.Free(c.op.CheckedType()), free, free, free}
	case reshapeTensorConvention:
		free := dd.Free(call.CheckedType())
		argsAndResult = []DomainID{free, dd.host, free}
	case callLoweredConvention:
		return dd.DomainFor(c.loweredFunc), nil
	case primitiveConvention:
		free := dd.MakeFirstOrder(scope.FullyUnconstrained())

		argsAndResult = make([]DomainID, c.arity+1)
		for i := range argsAndResult {
			argsAndResult[i] = free
		}
	case constructorConvention:
		result := dd.Free(c.funcType.Result)
		for _, paramType := range c.funcType.Params {
			param := dd.Free(paramType)
			if !dd.UnifyCollapsed(result, param) {
				return 0, errors.IncompatibleScopes(
					fmt.Sprintf("Cannot collapse parameter of constructor %s onto its result", c.name),
					c.name, dd.ToString(param), c.name, dd.ToString(result))
			}

			argsAndResult = append(argsAndResult, param)
		}

		argsAndResult = append(argsAndResult, result)
	case opaqueConvention:
		return dd.DomainFor(c.op), nil
	}

	d, err := dd.MakeHigherOrder(argsAndResult)
	if err != nil {
		return 0, err
	}

	dd.calleeDomains[call] = d
	dd.callOrder = append(dd.callOrder, call)

	return d, nil
}
