// Package rtl is the register-transfer-level IR the compiler emits into:
// modules, registers, wire expression nodes, the FSM primitive and
// SystemTask. A Module owns Registers, a print pass renders the result,
// and everything else is a thin typed wrapper around a synthesizable
// transition table. The compiler only consumes the constructors declared
// here; it never reaches into a real hardware-description backend.
package rtl

import "fmt"

// Expr is any IR expression node: a literal, a register reference, or an
// operator application. Every node the compiler can build satisfies it.
type Expr interface {
	irExpr()
	fmt.Stringer
}

// Int is an integer literal.
type Int struct{ V int64 }

func (Int) irExpr()          {}
func (n Int) String() string { return fmt.Sprintf("%d", n.V) }

// Constant is a non-integer numeric literal.
type Constant struct{ V float64 }

func (Constant) irExpr()          {}
func (n Constant) String() string { return fmt.Sprintf("%g", n.V) }

// Str is a string literal; Value exposes the underlying text.
type Str struct{ Value string }

func (Str) irExpr()          {}
func (s Str) String() string { return fmt.Sprintf("%q", s.Value) }

// binary is the shared shape of every two-operand IR operator.
type binary struct {
	Left, Right Expr
	op          string
}

func (binary) irExpr() {}
func (b binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.op, b.Right)
}

func mkBinary(op string, l, r Expr) binary { return binary{Left: l, Right: r, op: op} }

// Arithmetic.
type Plus struct{ binary }
type Minus struct{ binary }
type Times struct{ binary }
type Divide struct{ binary }
type IntDivide struct{ binary }
type Mod struct{ binary }
type Power struct{ binary }

func NewPlus(l, r Expr) Plus           { return Plus{mkBinary("+", l, r)} }
func NewMinus(l, r Expr) Minus         { return Minus{mkBinary("-", l, r)} }
func NewTimes(l, r Expr) Times         { return Times{mkBinary("*", l, r)} }
func NewDivide(l, r Expr) Divide       { return Divide{mkBinary("/", l, r)} }
func NewIntDivide(l, r Expr) IntDivide { return IntDivide{mkBinary("//", l, r)} }
func NewMod(l, r Expr) Mod             { return Mod{mkBinary("%", l, r)} }
func NewPower(l, r Expr) Power         { return Power{mkBinary("**", l, r)} }

// Bitwise.
type And struct{ binary }
type Or struct{ binary }
type Xor struct{ binary }
type Lshift struct{ binary }
type Rshift struct{ binary }

func NewAnd(l, r Expr) And       { return And{mkBinary("&", l, r)} }
func NewOr(l, r Expr) Or         { return Or{mkBinary("|", l, r)} }
func NewXor(l, r Expr) Xor       { return Xor{mkBinary("^", l, r)} }
func NewLshift(l, r Expr) Lshift { return Lshift{mkBinary("<<", l, r)} }
func NewRshift(l, r Expr) Rshift { return Rshift{mkBinary(">>", l, r)} }

// Boolean.
type Land struct{ binary }
type Lor struct{ binary }

func NewLand(l, r Expr) Land { return Land{mkBinary("&&", l, r)} }
func NewLor(l, r Expr) Lor   { return Lor{mkBinary("||", l, r)} }

// Comparison.
type Eq struct{ binary }
type NotEq struct{ binary }
type LessThan struct{ binary }
type LessEq struct{ binary }
type GreaterThan struct{ binary }
type GreaterEq struct{ binary }

func NewEq(l, r Expr) Eq                   { return Eq{mkBinary("==", l, r)} }
func NewNotEq(l, r Expr) NotEq             { return NotEq{mkBinary("!=", l, r)} }
func NewLessThan(l, r Expr) LessThan       { return LessThan{mkBinary("<", l, r)} }
func NewLessEq(l, r Expr) LessEq           { return LessEq{mkBinary("<=", l, r)} }
func NewGreaterThan(l, r Expr) GreaterThan { return GreaterThan{mkBinary(">", l, r)} }
func NewGreaterEq(l, r Expr) GreaterEq     { return GreaterEq{mkBinary(">=", l, r)} }

// unary is the shared shape of every one-operand IR operator.
type unary struct {
	Operand Expr
	op      string
}

func (unary) irExpr()          {}
func (u unary) String() string { return fmt.Sprintf("(%s%s)", u.op, u.Operand) }

type Uplus struct{ unary }
type Uminus struct{ unary }
type Unot struct{ unary }  // bitwise complement `~`
type Ulnot struct{ unary } // logical negation `not`

func NewUplus(v Expr) Uplus   { return Uplus{unary{Operand: v, op: "+"}} }
func NewUminus(v Expr) Uminus { return Uminus{unary{Operand: v, op: "-"}} }
func NewUnot(v Expr) Unot     { return Unot{unary{Operand: v, op: "~"}} }
func NewUlnot(v Expr) Ulnot   { return Ulnot{unary{Operand: v, op: "!"}} }

// Cond is the ternary `Test ? Body : Orelse`; it costs no FSM state.
type Cond struct{ Test, Body, Orelse Expr }

func (Cond) irExpr() {}
func (c Cond) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Test, c.Body, c.Orelse)
}

// SystemTask represents a simulation system task invocation, e.g.
// `$display(fmt, args...)`. It is bound to no destination register.
type SystemTask struct {
	Name string
	Args []Expr
}

func (SystemTask) irExpr() {}
func (s SystemTask) String() string {
	out := "$" + s.Name + "("
	for i, a := range s.Args {
		if i > 0 {
			out += ", "
		}
		out += a.String()
	}
	return out + ")"
}
