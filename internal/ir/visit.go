package ir

// Visit walks e in post-order, calling fn on every sub-expression after its
// children. Function parameters, the let-bound variable and call operators
// are visited as well. Shared sub-expressions are visited once.
func Visit(e Expr, fn func(Expr)) {
	seen := make(map[Expr]bool)

	var walk func(Expr)

	walk = func(e Expr) {
		if e == nil || seen[e] {
			return
		}

		seen[e] = true

		switch n := e.(type) {
		case *Call:
			walk(n.Op)

			for _, arg := range n.Args {
				walk(arg)
			}
		case *Function:
			for _, param := range n.Params {
				walk(param)
			}

			walk(n.Body)
		case *Tuple:
			for _, field := range n.Fields {
				walk(field)
			}
		case *TupleGetItem:
			walk(n.Tuple)
		case *Let:
			walk(n.Var)
			walk(n.Value)
			walk(n.Body)
		case *If:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		}

		fn(e)
	}

	walk(e)
}
