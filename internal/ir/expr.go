package ir

import (
	"github.com/orizon-lang/devplan/internal/position"
	"github.com/orizon-lang/devplan/internal/scope"
)

// Expr is an IR expression. Expressions are compared by identity: two
// structurally equal nodes are still distinct expressions.
type Expr interface {
	CheckedType() Type
	Span() position.Span
	exprNode()
}

// ExprBase carries the fields shared by every expression node.
type ExprBase struct {
	Type Type
	Loc  position.Span
}

// CheckedType returns the type the expression was built with.
func (b *ExprBase) CheckedType() Type { return b.Type }

// Span returns the source span the expression came from, if any.
func (b *ExprBase) Span() position.Span { return b.Loc }

// SetSpan records where the expression came from.
func (b *ExprBase) SetSpan(span position.Span) { b.Loc = span }

// Var is a local variable or function parameter.
type Var struct {
	ExprBase
	Name string
}

// GlobalVar names a module-level function.
type GlobalVar struct {
	ExprBase
	Name string
}

// Constant is a literal tensor.
type Constant struct {
	ExprBase
	Value string
}

// Op is a primitive operator. Its type is a FuncType.
type Op struct {
	ExprBase
	Name string
}

// Constructor is an ADT constructor. Its type is a FuncType returning the ADT.
type Constructor struct {
	ExprBase
	Name string
}

// Call applies Op to Args. Attrs carries operator-specific attributes.
type Call struct {
	ExprBase
	Op    Expr
	Attrs Attrs
	Args  []Expr
}

// Function is a lambda.
type Function struct {
	ExprBase
	Body   Expr
	Params []*Var
}

// Tuple builds a tuple value.
type Tuple struct {
	ExprBase
	Fields []Expr
}

// TupleGetItem projects one field of a tuple.
type TupleGetItem struct {
	ExprBase
	Tuple Expr
	Index int
}

// Let binds Var to Value within Body.
type Let struct {
	ExprBase
	Var   *Var
	Value Expr
	Body  Expr
}

// If selects between two branches.
type If struct {
	ExprBase
	Cond Expr
	Then Expr
	Else Expr
}

func (*Var) exprNode()          {}
func (*GlobalVar) exprNode()    {}
func (*Constant) exprNode()     {}
func (*Op) exprNode()           {}
func (*Constructor) exprNode()  {}
func (*Call) exprNode()         {}
func (*Function) exprNode()     {}
func (*Tuple) exprNode()        {}
func (*TupleGetItem) exprNode() {}
func (*Let) exprNode()          {}
func (*If) exprNode()           {}

// ====== Attributes ======

// Attrs are operator-specific call attributes.
type Attrs interface {
	attrsNode()
}

// OnDeviceAttrs annotate an expression with the scope it must live in.
// When IsFixed is false only the argument is constrained; the result may be
// moved elsewhere by a later copy.
type OnDeviceAttrs struct {
	Scope   scope.SEScope
	IsFixed bool
}

// DeviceCopyAttrs describe an explicit copy between scopes.
type DeviceCopyAttrs struct {
	Src scope.SEScope
	Dst scope.SEScope
}

// AllocStorageAttrs describe a raw storage allocation.
type AllocStorageAttrs struct {
	Scope     scope.SEScope
	DType     string
	Alignment int
}

func (*OnDeviceAttrs) attrsNode()     {}
func (*DeviceCopyAttrs) attrsNode()   {}
func (*AllocStorageAttrs) attrsNode() {}

// ====== Constructors ======

// NewVar creates a variable of the given type.
func NewVar(name string, ty Type) *Var {
	return &Var{ExprBase: ExprBase{Type: ty}, Name: name}
}

// NewGlobalVar creates a global function reference.
func NewGlobalVar(name string, ty *FuncType) *GlobalVar {
	return &GlobalVar{ExprBase: ExprBase{Type: ty}, Name: name}
}

// NewConstant creates a literal.
func NewConstant(value string, ty Type) *Constant {
	return &Constant{ExprBase: ExprBase{Type: ty}, Value: value}
}

// NewOp creates a reference to the primitive operator name.
func NewOp(name string, ty *FuncType) *Op {
	return &Op{ExprBase: ExprBase{Type: ty}, Name: name}
}

// NewConstructor creates a reference to an ADT constructor.
func NewConstructor(name string, ty *FuncType) *Constructor {
	return &Constructor{ExprBase: ExprBase{Type: ty}, Name: name}
}

// NewCall creates a call whose result has type ty.
func NewCall(op Expr, args []Expr, attrs Attrs, ty Type) *Call {
	return &Call{ExprBase: ExprBase{Type: ty}, Op: op, Args: args, Attrs: attrs}
}

// NewFunction creates a function; its type is derived from params and body.
func NewFunction(params []*Var, body Expr) *Function {
	paramTypes := make([]Type, len(params))
	for i, p := range params {
		paramTypes[i] = p.CheckedType()
	}

	return &Function{
		ExprBase: ExprBase{Type: Func(body.CheckedType(), paramTypes...)},
		Params:   params,
		Body:     body,
	}
}

// NewTuple creates a tuple of fields.
func NewTuple(fields ...Expr) *Tuple {
	types := make([]Type, len(fields))
	for i, f := range fields {
		types[i] = f.CheckedType()
	}

	return &Tuple{ExprBase: ExprBase{Type: &TupleType{Fields: types}}, Fields: fields}
}

// NewTupleGetItem projects field index of tuple, which must have a TupleType
// with at least index+1 fields.
func NewTupleGetItem(tuple Expr, index int) *TupleGetItem {
	var ty Type
	if tt, ok := tuple.CheckedType().(*TupleType); ok && index >= 0 && index < len(tt.Fields) {
		ty = tt.Fields[index]
	}

	return &TupleGetItem{ExprBase: ExprBase{Type: ty}, Tuple: tuple, Index: index}
}

// NewLet binds v to value in body.
func NewLet(v *Var, value, body Expr) *Let {
	return &Let{ExprBase: ExprBase{Type: body.CheckedType()}, Var: v, Value: value, Body: body}
}

// NewIf creates a conditional; both branches must have the same type.
func NewIf(cond, then, els Expr) *If {
	return &If{ExprBase: ExprBase{Type: then.CheckedType()}, Cond: cond, Then: then, Else: els}
}
