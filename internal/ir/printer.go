package ir

import (
	"fmt"
	"strings"
)

// Printer renders expressions as compact single-line text.
type Printer struct {
	buffer strings.Builder
}

// PrettyPrint renders e using a fresh Printer.
func PrettyPrint(e Expr) string {
	var p Printer

	return p.Print(e)
}

// Print renders e.
func (p *Printer) Print(e Expr) string {
	p.buffer.Reset()

	if e == nil {
		return "<nil>"
	}

	p.printExpr(e)

	return p.buffer.String()
}

func (p *Printer) printExpr(e Expr) {
	switch n := e.(type) {
	case *Var:
		p.buffer.WriteString("%" + n.Name)
	case *GlobalVar:
		p.buffer.WriteString("@" + n.Name)
	case *Constant:
		p.buffer.WriteString("meta[const](" + n.Value + ")")
	case *Op:
		p.buffer.WriteString(n.Name)
	case *Constructor:
		p.buffer.WriteString(n.Name)
	case *Call:
		p.printExpr(n.Op)
		p.buffer.WriteString("(")
		p.printList(n.Args)
		p.printAttrs(n.Attrs)
		p.buffer.WriteString(")")
	case *Function:
		p.buffer.WriteString("fn (")

		for i, param := range n.Params {
			if i > 0 {
				p.buffer.WriteString(", ")
			}

			p.printExpr(param)
		}

		p.buffer.WriteString(") { ")
		p.printExpr(n.Body)
		p.buffer.WriteString(" }")
	case *Tuple:
		p.buffer.WriteString("(")
		p.printList(n.Fields)

		if len(n.Fields) == 1 {
			p.buffer.WriteString(",")
		}

		p.buffer.WriteString(")")
	case *TupleGetItem:
		p.printExpr(n.Tuple)
		fmt.Fprintf(&p.buffer, ".%d", n.Index)
	case *Let:
		p.buffer.WriteString("let ")
		p.printExpr(n.Var)
		p.buffer.WriteString(" = ")
		p.printExpr(n.Value)
		p.buffer.WriteString("; ")
		p.printExpr(n.Body)
	case *If:
		p.buffer.WriteString("if (")
		p.printExpr(n.Cond)
		p.buffer.WriteString(") { ")
		p.printExpr(n.Then)
		p.buffer.WriteString(" } else { ")
		p.printExpr(n.Else)
		p.buffer.WriteString(" }")
	default:
		fmt.Fprintf(&p.buffer, "<unknown %T>", e)
	}
}

func (p *Printer) printList(exprs []Expr) {
	for i, e := range exprs {
		if i > 0 {
			p.buffer.WriteString(", ")
		}

		p.printExpr(e)
	}
}

func (p *Printer) printAttrs(attrs Attrs) {
	switch a := attrs.(type) {
	case *OnDeviceAttrs:
		fmt.Fprintf(&p.buffer, ", se_scope=%s, is_fixed=%t", scopeText(a.Scope.String()), a.IsFixed)
	case *DeviceCopyAttrs:
		fmt.Fprintf(&p.buffer, ", src_se_scope=%s, dst_se_scope=%s",
			scopeText(a.Src.String()), scopeText(a.Dst.String()))
	case *AllocStorageAttrs:
		fmt.Fprintf(&p.buffer, ", se_scope=%s", scopeText(a.Scope.String()))

		if a.DType != "" {
			fmt.Fprintf(&p.buffer, ", dtype=%s", a.DType)
		}
	}
}

func scopeText(s string) string {
	if s == "" {
		return "?"
	}

	return s
}
