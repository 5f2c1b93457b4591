// expr.go implements expression lowering: literals, names, attributes,
// unary/binary/compare/boolop/IfExp, folding each into an IR expression
// (or, for tuples and calls, a Binding that may not be a bare IR
// expression at all).
package compiler

import (
	"fmt"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

// LowerExpr lowers e to a concrete IR expression, erroring if e evaluates
// to a Binding (a tuple, a captured function, a ThreadInfo, ...) that
// cannot stand in for one.
func (l *Lowering) LowerExpr(e ast.Expr) (rtl.Expr, error) {
	b, err := l.lowerToBinding(e)
	if err != nil {
		return nil, err
	}
	return asExpr(b)
}

// asExpr narrows a Binding down to an rtl.Expr, or fails.
func asExpr(b Binding) (rtl.Expr, error) {
	if expr, ok := b.(rtl.Expr); ok {
		return expr, nil
	}
	return nil, wrap(ErrTypeMisuse, fmt.Sprintf("value of type %T is not usable as an expression", b))
}

// lowerToBinding lowers e to whatever Binding it denotes: almost always an
// rtl.Expr, but a Tuple/List yields a TupleValue and a Call may yield an
// arbitrary host value (a *ThreadInfo, a captured function) when routed
// through the intrinsic registry.
func (l *Lowering) lowerToBinding(e ast.Expr) (Binding, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return rtl.Int{V: n.Value}, nil
	case *ast.FloatLit:
		return rtl.Constant{V: n.Value}, nil
	case *ast.StrLit:
		return rtl.Str{Value: n.Value}, nil
	case *ast.BoolLit:
		if n.Value {
			return rtl.Int{V: 1}, nil
		}
		return rtl.Int{V: 0}, nil
	case *ast.NoneLit:
		return rtl.Int{V: 0}, nil
	case *ast.Name:
		return l.lowerName(n)
	case *ast.Attribute:
		return l.lowerAttribute(n)
	case *ast.Tuple:
		return l.lowerTuple(n.Elts)
	case *ast.List:
		return l.lowerTuple(n.Elts)
	case *ast.UnaryOp:
		return l.lowerUnaryOp(n)
	case *ast.BinOp:
		return l.lowerBinOp(n)
	case *ast.BoolOp:
		return l.lowerBoolOp(n)
	case *ast.Compare:
		return l.lowerCompare(n)
	case *ast.IfExp:
		return l.lowerIfExp(n)
	case *ast.Call:
		return l.lowerCall(n)
	default:
		return nil, wrap(ErrUnsupportedSyntax, fmt.Sprintf("expression node %T", e))
	}
}

func (l *Lowering) lowerTuple(elts []ast.Expr) (Binding, error) {
	out := make(TupleValue, 0, len(elts))
	for _, e := range elts {
		v, err := l.lowerToBinding(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// lowerName resolves a load-context Name through scope, then the captured
// environment; a store-context Name reuses its existing register or
// allocates a fresh one.
func (l *Lowering) lowerName(n *ast.Name) (Binding, error) {
	if n.Ctx == ast.Store {
		return l.resolveStoreTarget(n.Id)
	}
	if v, ok := l.scope.SearchVariable(n.Id, false); ok {
		return v, nil
	}
	if v, ok := l.env[n.Id]; ok {
		return v, nil
	}
	if def, ok := l.scope.SearchFunction(n.Id); ok {
		return def, nil
	}
	return nil, wrap(ErrNameNotDefined, n.Id)
}

// resolveStoreTarget reuses name's existing register if one is already
// bound in scope, or declares a fresh one otherwise; every register is
// declared exactly once on first store.
func (l *Lowering) resolveStoreTarget(name string) (*rtl.Register, error) {
	if v, ok := l.scope.SearchVariable(name, true); ok {
		reg, ok := v.(*rtl.Register)
		if !ok {
			return nil, wrap(ErrTypeMisuse, fmt.Sprintf("%q is not assignable", name))
		}
		return reg, nil
	}
	reg := l.gen.module.Reg(l.gen.uniqName(l.threadName, name), defaultWidth, 0)
	l.scope.AddVariable(name, reg)
	return reg, nil
}

// lowerAttribute handles non-call attribute access: `.value` on an IR
// variable returns the variable itself; anything else requires a call
// context (lowerCall handles bound-method dispatch directly, since it
// needs the receiver Binding, not just an expression).
func (l *Lowering) lowerAttribute(n *ast.Attribute) (Binding, error) {
	recv, err := l.lowerToBinding(n.Value)
	if err != nil {
		return nil, err
	}
	if n.Attr == "value" {
		return asExpr(recv)
	}
	return nil, wrap(ErrUnsupportedSyntax, fmt.Sprintf("attribute %q outside a call", n.Attr))
}

func (l *Lowering) lowerUnaryOp(n *ast.UnaryOp) (Binding, error) {
	v, err := l.LowerExpr(n.Operand)
	if err != nil {
		return nil, err
	}
	res, err := BuildUnary(n.Op, v)
	if err != nil {
		return nil, wrap(ErrUnsupportedOperator, err.Error())
	}
	return res, nil
}

// lowerBinOp handles string literals specially: `+` between two strings
// concatenates; any other operator rejects a string operand.
func (l *Lowering) lowerBinOp(n *ast.BinOp) (Binding, error) {
	left, err := l.LowerExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.LowerExpr(n.Right)
	if err != nil {
		return nil, err
	}
	ls, leftIsStr := left.(rtl.Str)
	rs, rightIsStr := right.(rtl.Str)
	if n.Op == ast.Add && (leftIsStr || rightIsStr) {
		if !leftIsStr || !rightIsStr {
			return nil, wrap(ErrTypeMisuse, "cannot concatenate a string with a non-string operand")
		}
		return rtl.Str{Value: ls.Value + rs.Value}, nil
	}
	res, err := BuildBinary(n.Op, left, right, leftIsStr, rightIsStr)
	if err != nil {
		if leftIsStr || rightIsStr {
			return nil, wrap(ErrTypeMisuse, err.Error())
		}
		return nil, wrap(ErrUnsupportedOperator, err.Error())
	}
	return res, nil
}

// lowerBoolOp folds `and`/`or` left-to-right across Values.
func (l *Lowering) lowerBoolOp(n *ast.BoolOp) (Binding, error) {
	if len(n.Values) == 0 {
		return nil, wrap(ErrUnsupportedSyntax, "empty boolean operation")
	}
	acc, err := l.LowerExpr(n.Values[0])
	if err != nil {
		return nil, err
	}
	for _, v := range n.Values[1:] {
		rhs, err := l.LowerExpr(v)
		if err != nil {
			return nil, err
		}
		acc, err = BuildBinary(n.Op, acc, rhs, false, false)
		if err != nil {
			return nil, wrap(ErrUnsupportedOperator, err.Error())
		}
	}
	return acc, nil
}

// lowerCompare folds a (possibly chained) comparison `a < b <= c` into
// `(a < b) && (b <= c)` the way a multi-operand Python comparison chain
// works.
func (l *Lowering) lowerCompare(n *ast.Compare) (Binding, error) {
	if len(n.Ops) != len(n.Comparators) || len(n.Ops) == 0 {
		return nil, wrap(ErrUnsupportedSyntax, "malformed comparison chain")
	}
	left, err := l.LowerExpr(n.Left)
	if err != nil {
		return nil, err
	}
	var acc rtl.Expr
	for i, op := range n.Ops {
		right, err := l.LowerExpr(n.Comparators[i])
		if err != nil {
			return nil, err
		}
		step, err := BuildBinary(op, left, right, false, false)
		if err != nil {
			return nil, wrap(ErrUnsupportedOperator, err.Error())
		}
		if acc == nil {
			acc = step
		} else {
			acc = rtl.NewLand(acc, step)
		}
		left = right
	}
	return acc, nil
}

func (l *Lowering) lowerIfExp(n *ast.IfExp) (Binding, error) {
	test, err := l.LowerExpr(n.Test)
	if err != nil {
		return nil, err
	}
	body, err := l.LowerExpr(n.Body)
	if err != nil {
		return nil, err
	}
	orelse, err := l.LowerExpr(n.Orelse)
	if err != nil {
		return nil, err
	}
	return rtl.Cond{Test: test, Body: body, Orelse: orelse}, nil
}
