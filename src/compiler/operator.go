// operator.go maps surface ast.Operator values onto IR constructors: a
// flat map keyed by operator, plus a companion boolean compatibility
// table that rejects invalid operator/operand combinations before any IR
// node is built.
package compiler

import (
	"fmt"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

// binaryBuilder constructs the IR node for a two-operand operator.
type binaryBuilder func(l, r rtl.Expr) rtl.Expr

// unaryBuilder constructs the IR node for a one-operand operator.
type unaryBuilder func(v rtl.Expr) rtl.Expr

var binaryTable = map[ast.Operator]binaryBuilder{
	ast.Add:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewPlus(l, r) },
	ast.Sub:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewMinus(l, r) },
	ast.Mul:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewTimes(l, r) },
	ast.Div:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewDivide(l, r) },
	ast.FloorDiv: func(l, r rtl.Expr) rtl.Expr { return rtl.NewIntDivide(l, r) },
	ast.Mod:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewMod(l, r) },
	ast.Pow:      func(l, r rtl.Expr) rtl.Expr { return rtl.NewPower(l, r) },

	ast.BitAnd: func(l, r rtl.Expr) rtl.Expr { return rtl.NewAnd(l, r) },
	ast.BitOr:  func(l, r rtl.Expr) rtl.Expr { return rtl.NewOr(l, r) },
	ast.BitXor: func(l, r rtl.Expr) rtl.Expr { return rtl.NewXor(l, r) },
	ast.LShift: func(l, r rtl.Expr) rtl.Expr { return rtl.NewLshift(l, r) },
	ast.RShift: func(l, r rtl.Expr) rtl.Expr { return rtl.NewRshift(l, r) },

	ast.And: func(l, r rtl.Expr) rtl.Expr { return rtl.NewLand(l, r) },
	ast.Or:  func(l, r rtl.Expr) rtl.Expr { return rtl.NewLor(l, r) },

	ast.Eq:    func(l, r rtl.Expr) rtl.Expr { return rtl.NewEq(l, r) },
	ast.NotEq: func(l, r rtl.Expr) rtl.Expr { return rtl.NewNotEq(l, r) },
	ast.Lt:    func(l, r rtl.Expr) rtl.Expr { return rtl.NewLessThan(l, r) },
	ast.LtE:   func(l, r rtl.Expr) rtl.Expr { return rtl.NewLessEq(l, r) },
	ast.Gt:    func(l, r rtl.Expr) rtl.Expr { return rtl.NewGreaterThan(l, r) },
	ast.GtE:   func(l, r rtl.Expr) rtl.Expr { return rtl.NewGreaterEq(l, r) },

	// is/is_not alias ==/!=.
	ast.Is:    func(l, r rtl.Expr) rtl.Expr { return rtl.NewEq(l, r) },
	ast.IsNot: func(l, r rtl.Expr) rtl.Expr { return rtl.NewNotEq(l, r) },
}

var unaryTable = map[ast.Operator]unaryBuilder{
	ast.UAdd:   func(v rtl.Expr) rtl.Expr { return rtl.NewUplus(v) },
	ast.USub:   func(v rtl.Expr) rtl.Expr { return rtl.NewUminus(v) },
	ast.BitNot: func(v rtl.Expr) rtl.Expr { return rtl.NewUnot(v) },
	ast.Not:    func(v rtl.Expr) rtl.Expr { return rtl.NewUlnot(v) },
}

// stringIncompatible lists the operators rejected outright when either
// operand is a string literal; strings only ever participate in
// print-style formatting, never arithmetic or bitwise IR. Comparison
// operators are absent: comparison-chain lowering never string-checks
// its operands, so BuildBinary is only ever asked about strings for
// arithmetic and bitwise operators.
var stringIncompatible = map[ast.Operator]bool{
	ast.Add: true, ast.Sub: true, ast.Mul: true, ast.Div: true,
	ast.FloorDiv: true, ast.Mod: true, ast.Pow: true,
	ast.BitAnd: true, ast.BitOr: true, ast.BitXor: true,
	ast.LShift: true, ast.RShift: true,
}

// BuildBinary applies op to l/r, returning an error if op has no binary
// form or rejects string operands.
func BuildBinary(op ast.Operator, l, r rtl.Expr, leftIsStr, rightIsStr bool) (rtl.Expr, error) {
	if stringIncompatible[op] && (leftIsStr || rightIsStr) {
		return nil, fmt.Errorf("operator %s does not accept string operands", op)
	}
	b, ok := binaryTable[op]
	if !ok {
		return nil, fmt.Errorf("operator %s is not a binary operator", op)
	}
	return b(l, r), nil
}

// BuildUnary applies op to v.
func BuildUnary(op ast.Operator, v rtl.Expr) (rtl.Expr, error) {
	u, ok := unaryTable[op]
	if !ok {
		return nil, fmt.Errorf("operator %s is not a unary operator", op)
	}
	return u(v), nil
}
