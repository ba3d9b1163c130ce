// Package ir defines the small tensor intermediate representation consumed by
// the device planner: checked types, expressions, call attributes and the
// well-known memory/device primitives.
//
// Type checking is not performed here; every expression carries the type it
// was built with.
package ir

import (
	"fmt"
	"strings"
)

// Type is the checked type of an expression.
type Type interface {
	fmt.Stringer
	typeNode()
}

// TensorType is a dense tensor of a fixed shape.
type TensorType struct {
	DType string
	Shape []int
}

// TupleType groups several values.
type TupleType struct {
	Fields []Type
}

// FuncType is the type of functions, primitive operators and constructors.
type FuncType struct {
	Result Type
	Params []Type
}

// TypeData is an algebraic data type introduced by constructors.
type TypeData struct {
	Name string
}

// StorageType is the type of raw storage returned by memory.alloc_storage.
type StorageType struct{}

func (*TensorType) typeNode()  {}
func (*TupleType) typeNode()   {}
func (*FuncType) typeNode()    {}
func (*TypeData) typeNode()    {}
func (*StorageType) typeNode() {}

// String renders the tensor type as Tensor[(d0, d1), dtype].
func (t *TensorType) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}

	dtype := t.DType
	if dtype == "" {
		dtype = "float32"
	}

	return fmt.Sprintf("Tensor[(%s), %s]", strings.Join(dims, ", "), dtype)
}

func (t *TupleType) String() string {
	fields := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = f.String()
	}

	return "(" + strings.Join(fields, ", ") + ")"
}

func (t *FuncType) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}

	return fmt.Sprintf("fn (%s) -> %s", strings.Join(params, ", "), t.Result)
}

func (t *TypeData) String() string { return t.Name }

func (*StorageType) String() string { return "Storage[]" }

// Arity returns the number of parameters.
func (t *FuncType) Arity() int { return len(t.Params) }

// Tensor is a shorthand for a float32 tensor type.
func Tensor(shape ...int) *TensorType {
	return &TensorType{DType: "float32", Shape: shape}
}

// Func builds a function type from its parameters and result.
func Func(result Type, params ...Type) *FuncType {
	return &FuncType{Params: params, Result: result}
}

// AsFunc returns t as a function type, if it is one.
func AsFunc(t Type) (*FuncType, bool) {
	ft, ok := t.(*FuncType)

	return ft, ok
}
