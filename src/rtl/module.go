package rtl

import "fmt"

// Register is a named clocked storage cell with a declared bit width and
// initial value. Registers are created on demand by the compiler for
// source variables, temporaries and return slots, and are owned by the
// Module that synthesizes them; the compiler only ever holds a borrowed
// pointer.
type Register struct {
	Name    string
	Width   int
	Initval int64
	owner   *Module
}

func (*Register) irExpr() {}

func (r *Register) String() string { return r.Name }

// Module is the hardware module that owns every Register the compiler
// allocates while lowering a thread.
type Module struct {
	Name      string
	registers []*Register
	names     map[string]bool
	tmpSeq    int
}

// NewModule returns an empty Module named name.
func NewModule(name string) *Module {
	return &Module{Name: name, names: make(map[string]bool)}
}

// Reg declares a new named register of the given width and initial value.
// Every register is declared exactly once on first store, so declaring
// the same name twice is a programmer error in the compiler and panics
// rather than silently aliasing storage.
func (m *Module) Reg(name string, width int, initval int64) *Register {
	if m.names[name] {
		panic(fmt.Sprintf("rtl: register %q already declared in module %q", name, m.Name))
	}
	r := &Register{Name: name, Width: width, Initval: initval, owner: m}
	m.names[name] = true
	m.registers = append(m.registers, r)
	return r
}

// TmpReg declares an anonymously-named register, used for FSM-internal
// bookkeeping (e.g. the sleep() cycle counter) that has no source-level
// name.
func (m *Module) TmpReg(width int, initval int64) *Register {
	name := fmt.Sprintf("_tmp_reg_%d", m.tmpSeq)
	m.tmpSeq++
	return m.Reg(name, width, initval)
}

// Registers returns every register declared in this module, in
// declaration order.
func (m *Module) Registers() []*Register {
	out := make([]*Register, len(m.registers))
	copy(out, m.registers)
	return out
}
