package rtl

import "fmt"

// Statement is one clocked action attached to an FSM state: either a
// register assignment or a bare expression evaluated for effect (e.g. a
// SystemTask display call has no destination).
type Statement struct {
	Dst   *Register // nil for a bare evaluation
	Value Expr
	Cond  Expr // nil for an unconditional statement within the state
}

// Transition is one edge of the FSM's state transition table: src always
// steps to Dst when Cond is nil; when Cond is non-nil, src steps to Dst if
// Cond holds and to ElseDst otherwise (a two-target branch).
type Transition struct {
	Src, Dst int
	Cond     Expr
	ElseDst  *int
}

// FSM is the sequential controller the compiler programs: a clocked
// integer state register plus a case-style transition table. The
// compiler drives it exclusively through the handful of methods declared
// here.
type FSM struct {
	Module   *Module
	Name     string
	Clk, Rst *Register
	State    *Register

	Current int

	transitions []Transition
	statements  map[int][]Statement
}

// NewFSM constructs an FSM named name inside m, clocked by clk and reset
// by rst, with its state register starting at 0.
func NewFSM(m *Module, name string, clk, rst *Register) *FSM {
	state := m.Reg(name+"_state", 32, 0)
	return &FSM{
		Module:     m,
		Name:       name,
		Clk:        clk,
		Rst:        rst,
		State:      state,
		statements: make(map[int][]Statement),
	}
}

// Inc allocates the next state and makes it current.
func (f *FSM) Inc() {
	f.Current++
}

// GotoFrom records a transition out of state src. A nil cond produces an
// unconditional edge to dst; a non-nil cond produces a branch: dst when
// cond holds, elseDst otherwise. elseDst may be nil only when cond is also
// nil.
func (f *FSM) GotoFrom(src, dst int, cond Expr, elseDst *int) {
	f.transitions = append(f.transitions, Transition{Src: src, Dst: dst, Cond: cond, ElseDst: elseDst})
}

// GotoNext is shorthand for a transition from the current state to the
// next one, used by intrinsics such as ThreadInfo.wait that stall the
// current state until cond holds. The self-loop target (taken while cond
// is false) is the current state at the time of the call, snapshotted
// into its own int so it survives Current advancing afterward.
func (f *FSM) GotoNext(cond Expr) {
	self := f.Current
	next := self + 1
	f.GotoFrom(self, next, cond, &self)
	f.Current = next
}

// AddStatement attaches stmts to the current state, optionally guarded by
// cond.
func (f *FSM) AddStatement(stmts []Statement, cond Expr) {
	for i := range stmts {
		stmts[i].Cond = cond
	}
	f.statements[f.Current] = append(f.statements[f.Current], stmts...)
}

// Transitions returns the recorded transition table, in the order
// recorded.
func (f *FSM) Transitions() []Transition {
	out := make([]Transition, len(f.transitions))
	copy(out, f.transitions)
	return out
}

// StatementsAt returns the statements bound to state s, in emission order.
func (f *FSM) StatementsAt(s int) []Statement {
	return f.statements[s]
}

// MaxState is the highest state number reached so far, via Inc or
// GotoNext; states only ever advance, so this is Current.
func (f *FSM) MaxState() int { return f.Current }

// Guard wraps fsm so a subsequent GotoNext call is conditioned on test.
type Guard struct {
	fsm  *FSM
	test Expr
}

// If stages a condition for the next GotoNext call on the returned Guard.
func (f *FSM) If(test Expr) *Guard {
	return &Guard{fsm: f, test: test}
}

// GotoNext commits the staged condition as a transition from the current
// state to the next one.
func (g *Guard) GotoNext() {
	g.fsm.GotoNext(g.test)
}

func (f *FSM) String() string {
	return fmt.Sprintf("FSM(%s, states=0..%d)", f.Name, f.Current)
}
