package ir

import (
	"github.com/orizon-lang/devplan/internal/scope"
)

// Well-known primitive operator names.
const (
	OpOnDevice      = "on_device"
	OpDeviceCopy    = "device_copy"
	OpAllocStorage  = "memory.alloc_storage"
	OpAllocTensor   = "memory.alloc_tensor"
	OpShapeOf       = "vm.shape_of"
	OpInvokeTVMOp   = "vm.invoke_tvm_op"
	OpReshapeTensor = "vm.reshape_tensor"
	OpCallLowered   = "call_lowered"
)

// IsOp reports whether e is the primitive operator name.
func IsOp(e Expr, name string) bool {
	op, ok := e.(*Op)

	return ok && op.Name == name
}

// OnDevice wraps body in an on_device annotation.
func OnDevice(body Expr, s scope.SEScope, isFixed bool) *Call {
	ty := body.CheckedType()

	return NewCall(NewOp(OpOnDevice, Func(ty, ty)), []Expr{body},
		&OnDeviceAttrs{Scope: s, IsFixed: isFixed}, ty)
}

// DeviceCopy copies body from src to dst.
func DeviceCopy(body Expr, src, dst scope.SEScope) *Call {
	ty := body.CheckedType()

	return NewCall(NewOp(OpDeviceCopy, Func(ty, ty)), []Expr{body},
		&DeviceCopyAttrs{Src: src, Dst: dst}, ty)
}

// AllocStorage allocates size bytes with the given alignment in scope s.
func AllocStorage(size, alignment Expr, s scope.SEScope, dtype string) *Call {
	storage := &StorageType{}
	op := NewOp(OpAllocStorage, Func(storage, size.CheckedType(), alignment.CheckedType()))

	return NewCall(op, []Expr{size, alignment}, &AllocStorageAttrs{Scope: s, DType: dtype}, storage)
}

// AllocTensor carves a tensor of type ty out of storage.
func AllocTensor(storage, offset, shape Expr, ty Type) *Call {
	op := NewOp(OpAllocTensor, Func(ty, storage.CheckedType(), offset.CheckedType(), shape.CheckedType()))

	return NewCall(op, []Expr{storage, offset, shape}, nil, ty)
}

// ShapeOf returns the shape of tensor as a host tensor of type ty.
func ShapeOf(tensor Expr, ty Type) *Call {
	return NewCall(NewOp(OpShapeOf, Func(ty, tensor.CheckedType())), []Expr{tensor}, nil, ty)
}

// InvokeTVMOp invokes a lowered primitive function op on inputs and outputs.
func InvokeTVMOp(op, inputs, outputs Expr, ty Type) *Call {
	callee := NewOp(OpInvokeTVMOp, Func(ty, op.CheckedType(), inputs.CheckedType(), outputs.CheckedType()))

	return NewCall(callee, []Expr{op, inputs, outputs}, nil, ty)
}

// ReshapeTensor reinterprets data with the host-resident shape.
func ReshapeTensor(data, shape Expr, ty Type) *Call {
	op := NewOp(OpReshapeTensor, Func(ty, data.CheckedType(), shape.CheckedType()))

	return NewCall(op, []Expr{data, shape}, nil, ty)
}

// CallLowered calls the already lowered function target with args.
func CallLowered(target Expr, args []Expr, ty Type) *Call {
	all := make([]Expr, 0, len(args)+1)
	all = append(all, target)
	all = append(all, args...)

	types := make([]Type, len(all))
	for i, a := range all {
		types[i] = a.CheckedType()
	}

	return NewCall(NewOp(OpCallLowered, Func(ty, types...)), all, nil, ty)
}

// ====== Call properties ======

// OnDeviceProps are the properties of an on_device call.
type OnDeviceProps struct {
	Body    Expr
	Scope   scope.SEScope
	IsFixed bool
}

// GetOnDeviceProps returns the properties of call if it is an on_device call.
func GetOnDeviceProps(call *Call) (OnDeviceProps, bool) {
	if !IsOp(call.Op, OpOnDevice) || len(call.Args) != 1 {
		return OnDeviceProps{}, false
	}

	attrs, ok := call.Attrs.(*OnDeviceAttrs)
	if !ok {
		return OnDeviceProps{}, false
	}

	return OnDeviceProps{Body: call.Args[0], Scope: attrs.Scope, IsFixed: attrs.IsFixed}, true
}

// DeviceCopyProps are the properties of a device_copy call.
type DeviceCopyProps struct {
	Body Expr
	Src  scope.SEScope
	Dst  scope.SEScope
}

// GetDeviceCopyProps returns the properties of call if it is a device_copy call.
func GetDeviceCopyProps(call *Call) (DeviceCopyProps, bool) {
	if !IsOp(call.Op, OpDeviceCopy) || len(call.Args) != 1 {
		return DeviceCopyProps{}, false
	}

	attrs, ok := call.Attrs.(*DeviceCopyAttrs)
	if !ok {
		return DeviceCopyProps{}, false
	}

	return DeviceCopyProps{Body: call.Args[0], Src: attrs.Src, Dst: attrs.Dst}, true
}

// CallLoweredProps are the properties of a call_lowered call.
type CallLoweredProps struct {
	LoweredFunc Expr
	Args        []Expr
}

// GetCallLoweredProps returns the properties of call if it is a call_lowered call.
func GetCallLoweredProps(call *Call) (CallLoweredProps, bool) {
	if !IsOp(call.Op, OpCallLowered) || len(call.Args) == 0 {
		return CallLoweredProps{}, false
	}

	return CallLoweredProps{LoweredFunc: call.Args[0], Args: call.Args[1:]}, true
}
