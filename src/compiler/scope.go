// scope.go implements the nested scope frame stack: lexical frames,
// variable lookup, and per-frame backpatch lists for break, continue and
// return. Break, continue and return used with no enclosing loop or
// function are a hard compile error, not a silently-dangling patch.
package compiler

import (
	"fmt"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
	"threadfsm/src/util"
)

// frameKind distinguishes the three frame shapes that matter to
// backpatching: an ordinary block (an if or else body), a while/for loop
// body (owns break/continue patches) and a function call (owns return
// patches and the return-variable slot).
type frameKind int

const (
	blockFrame frameKind = iota
	loopFrame
	callFrame
)

// Binding is whatever a name in scope is bound to: almost always an
// *rtl.Register, but arbitrary captured host values (a *ThreadInfo, an
// *ast.FunctionDef passed around as a first-class value, a tuple of
// either) are also legal.
type Binding interface{}

// returnPatch pairs an unresolved return's FSM state with the IR value it
// returned, so the compiler can report the value if asked (the state is
// what actually gets patched; the value is carried for introspection).
type returnPatch struct {
	State int
	Value rtl.Expr
}

// BindRecord is an audit-trail entry appended every time the compiler
// emits a register assignment. It has no effect on control flow; it
// exists for downstream introspection. Name is empty for a bare
// evaluation with no destination, e.g. a $display task.
type BindRecord struct {
	State int
	Name  string
	Value rtl.Expr
	Cond  rtl.Expr
}

// LoopRecord is the traceability entry recorded for every lowered loop:
// the state span of the loop plus, for a for-range loop, the iteration
// register and its per-iteration step.
type LoopRecord struct {
	Begin, End int
	Iter       *rtl.Register // nil for a while loop
	Step       rtl.Expr      // nil for a while loop
}

// Frame is one active lexical scope.
type Frame struct {
	kind frameKind
	name string // function name, or "if"/"else"/"while"/"for" for diagnostics

	vars     map[string]Binding
	nonlocal map[string]bool
	global   map[string]bool

	breaks    []int
	continues []int
	returns   []returnPatch
	returnVar *rtl.Register

	// terminated is set when a break/continue/return has been lowered in
	// this frame's own statement list; the rest of the block is dead and
	// skip() drops it. The flag dies with the frame, so a conditional
	// return inside an if-body never suppresses the statements that follow
	// the if in the enclosing block (those run whenever the branch is not
	// taken).
	terminated bool
}

func newFrame(kind frameKind, name string) *Frame {
	return &Frame{
		kind:     kind,
		name:     name,
		vars:     make(map[string]Binding),
		nonlocal: make(map[string]bool),
		global:   make(map[string]bool),
	}
}

// FrameList is the ordered sequence of active frames, innermost
// ("current") last, plus the flat function table and the bind-record and
// loop-descriptor logs shared across the whole synthesis unit.
type FrameList struct {
	stack     *util.Stack
	functions map[string]*ast.FunctionDef
	binds     []BindRecord
	loops     []LoopRecord
}

// NewFrameList returns an empty frame list with no active frames.
func NewFrameList() *FrameList {
	return &FrameList{
		stack:     &util.Stack{},
		functions: make(map[string]*ast.FunctionDef),
	}
}

// Push enters a new frame of the given kind.
func (fl *FrameList) Push(kind frameKind, name string) {
	fl.stack.Push(newFrame(kind, name))
}

// Pop leaves the current frame.
func (fl *FrameList) Pop() *Frame {
	f, _ := fl.stack.Pop().(*Frame)
	return f
}

// Depth reports how many frames are currently active, for diagnostics.
func (fl *FrameList) Depth() int {
	return fl.stack.Size()
}

// Current returns the innermost active frame, or nil if none is active.
func (fl *FrameList) Current() *Frame {
	f, _ := fl.stack.Peek().(*Frame)
	return f
}

// depth returns the 1-indexed depth of the current stack, for Get.
func (fl *FrameList) depth() int { return fl.stack.Size() }

// frameAt returns the frame n levels up from current (0 = current).
func (fl *FrameList) frameAt(n int) *Frame {
	f, _ := fl.stack.Get(n + 1).(*Frame)
	return f
}

// SearchVariable walks frames inner to outer looking for name, honoring
// any nonlocal/global redirect declared in an intervening frame. store
// indicates the caller intends to write: a miss with store=true is
// reported as "not found" so the caller can allocate a fresh register,
// exactly as with store=false; the distinction only matters to callers.
func (fl *FrameList) SearchVariable(name string, store bool) (Binding, bool) {
	depth := fl.depth()
	for i := 0; i < depth; i++ {
		f := fl.frameAt(i)
		if f == nil {
			continue
		}
		if f.nonlocal[name] || f.global[name] {
			target := fl.resolveRedirect(i, name, f.global[name])
			if target == nil {
				return nil, false
			}
			if v, ok := target.vars[name]; ok {
				return v, true
			}
			return nil, false
		}
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// resolveRedirect returns the frame a nonlocal (nearest enclosing frame
// that binds name) or global (outermost frame) declaration at depth i
// points to. A nonlocal naming a variable no enclosing frame binds yet
// falls back to the immediately enclosing frame, so the eventual first
// store lands there.
func (fl *FrameList) resolveRedirect(i int, name string, global bool) *Frame {
	depth := fl.depth()
	if global {
		return fl.frameAt(depth - 1)
	}
	for j := i + 1; j < depth; j++ {
		f := fl.frameAt(j)
		if _, ok := f.vars[name]; ok {
			return f
		}
	}
	if i+1 < depth {
		return fl.frameAt(i + 1)
	}
	return nil
}

// AddVariable binds name in the current frame, unless the current frame
// has redirected name via nonlocal/global, in which case the binding goes
// to the redirected frame.
func (fl *FrameList) AddVariable(name string, val Binding) {
	cur := fl.Current()
	if cur.global[name] {
		fl.resolveRedirect(0, name, true).vars[name] = val
		return
	}
	if cur.nonlocal[name] {
		fl.resolveRedirect(0, name, false).vars[name] = val
		return
	}
	cur.vars[name] = val
}

// AddNonlocal marks name, in the current frame, as resolving to the
// nearest enclosing frame that already binds it.
func (fl *FrameList) AddNonlocal(name string) { fl.Current().nonlocal[name] = true }

// AddGlobal marks name, in the current frame, as resolving to the
// outermost frame.
func (fl *FrameList) AddGlobal(name string) { fl.Current().global[name] = true }

// nearestLoop returns the nearest enclosing loopFrame, or nil if a
// callFrame boundary (or the bottom of the stack) is reached first.
func (fl *FrameList) nearestLoop() *Frame {
	depth := fl.depth()
	for i := 0; i < depth; i++ {
		f := fl.frameAt(i)
		switch f.kind {
		case loopFrame:
			return f
		case callFrame:
			return nil
		}
	}
	return nil
}

// nearestCall returns the nearest enclosing callFrame.
func (fl *FrameList) nearestCall() *Frame {
	depth := fl.depth()
	for i := 0; i < depth; i++ {
		if f := fl.frameAt(i); f.kind == callFrame {
			return f
		}
	}
	return nil
}

// AddBreak registers state as an unresolved break target on the nearest
// enclosing loop frame. Returns an error if no loop encloses the current
// position without first crossing a function boundary.
func (fl *FrameList) AddBreak(state int) error {
	f := fl.nearestLoop()
	if f == nil {
		return fmt.Errorf("'break' outside a loop")
	}
	f.breaks = append(f.breaks, state)
	fl.Current().terminated = true
	return nil
}

// AddContinue is AddBreak's counterpart for 'continue'.
func (fl *FrameList) AddContinue(state int) error {
	f := fl.nearestLoop()
	if f == nil {
		return fmt.Errorf("'continue' outside a loop")
	}
	f.continues = append(f.continues, state)
	fl.Current().terminated = true
	return nil
}

// AddReturn registers state/value as an unresolved return on the nearest
// enclosing call frame.
func (fl *FrameList) AddReturn(state int, value rtl.Expr) error {
	f := fl.nearestCall()
	if f == nil {
		return fmt.Errorf("'return' outside a function")
	}
	f.returns = append(f.returns, returnPatch{State: state, Value: value})
	fl.Current().terminated = true
	return nil
}

// Terminated reports whether a break/continue/return has already been
// lowered in the current frame's own statement list, making the rest of
// the block unreachable. Statement lowering consults this before every
// statement.
func (fl *FrameList) Terminated() bool {
	f := fl.Current()
	return f != nil && f.terminated
}

// HasBreak reports whether the nearest enclosing loop frame has any
// unresolved break.
func (fl *FrameList) HasBreak() bool {
	f := fl.nearestLoop()
	return f != nil && len(f.breaks) > 0
}

// HasContinue is HasBreak's counterpart for 'continue'.
func (fl *FrameList) HasContinue() bool {
	f := fl.nearestLoop()
	return f != nil && len(f.continues) > 0
}

// HasReturn reports whether the nearest enclosing call frame has any
// unresolved return.
func (fl *FrameList) HasReturn() bool {
	f := fl.nearestCall()
	return f != nil && len(f.returns) > 0
}

// UnresolvedBreak returns (and does not clear) the current loop frame's
// pending break states. Must be called with the loop's own frame still
// current, before it is popped.
func (fl *FrameList) UnresolvedBreak() []int { return append([]int(nil), fl.Current().breaks...) }

// UnresolvedContinue is UnresolvedBreak's counterpart for 'continue'.
func (fl *FrameList) UnresolvedContinue() []int {
	return append([]int(nil), fl.Current().continues...)
}

// UnresolvedReturn returns the current call frame's pending returns.
func (fl *FrameList) UnresolvedReturn() []returnPatch {
	return append([]returnPatch(nil), fl.Current().returns...)
}

// ClearBreak empties the current frame's break list.
func (fl *FrameList) ClearBreak() { fl.Current().breaks = nil }

// ClearContinue empties the current frame's continue list.
func (fl *FrameList) ClearContinue() { fl.Current().continues = nil }

// ClearReturn empties the current frame's return list.
func (fl *FrameList) ClearReturn() { fl.Current().returns = nil }

// SetReturnVariable installs reg as the return-value register for the
// nearest enclosing call frame.
func (fl *FrameList) SetReturnVariable(reg *rtl.Register) { fl.nearestCall().returnVar = reg }

// GetReturnVariable returns the nearest enclosing call frame's
// return-value register, or nil if none has been allocated yet.
func (fl *FrameList) GetReturnVariable() *rtl.Register {
	if f := fl.nearestCall(); f != nil {
		return f.returnVar
	}
	return nil
}

// ClearReturnVariable clears the nearest enclosing call frame's
// return-value register.
func (fl *FrameList) ClearReturnVariable() { fl.nearestCall().returnVar = nil }

// HasActiveCall reports whether a call frame named name is anywhere on
// the active stack, used to detect direct self-recursion before eagerly
// inlining a function into itself; inlining is eager, so direct
// recursion would never terminate.
func (fl *FrameList) HasActiveCall(name string) bool {
	depth := fl.depth()
	for i := 0; i < depth; i++ {
		if f := fl.frameAt(i); f.kind == callFrame && f.name == name {
			return true
		}
	}
	return false
}

// AddFunction registers a function definition for later inlining.
// Duplicate names are a compile error.
func (fl *FrameList) AddFunction(def *ast.FunctionDef) error {
	if _, exists := fl.functions[def.Name]; exists {
		return fmt.Errorf("function %q is already defined", def.Name)
	}
	fl.functions[def.Name] = def
	return nil
}

// SearchFunction looks up a previously harvested or explicitly registered
// function definition by name.
func (fl *FrameList) SearchFunction(name string) (*ast.FunctionDef, bool) {
	f, ok := fl.functions[name]
	return f, ok
}

// AddBind appends a bind-record log entry.
func (fl *FrameList) AddBind(state int, name string, value, cond rtl.Expr) {
	fl.binds = append(fl.binds, BindRecord{State: state, Name: name, Value: value, Cond: cond})
}

// Binds returns the full bind-record log, in emission order.
func (fl *FrameList) Binds() []BindRecord { return append([]BindRecord(nil), fl.binds...) }

// AddLoop appends a loop-descriptor entry. iter and step are nil for a
// while loop.
func (fl *FrameList) AddLoop(begin, end int, iter *rtl.Register, step rtl.Expr) {
	fl.loops = append(fl.loops, LoopRecord{Begin: begin, End: end, Iter: iter, Step: step})
}

// Loops returns the loop-descriptor log, in lowering order.
func (fl *FrameList) Loops() []LoopRecord { return append([]LoopRecord(nil), fl.loops...) }
