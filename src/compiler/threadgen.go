// threadgen.go implements the thread manager: the entry point a caller
// actually drives. It owns the module-wide unique-name counter, the
// persistent function and intrinsic tables, and the
// create/extend/run/sleep orchestration. The counter lives on the
// instance so independently constructed generators cannot perturb each
// other's emitted names.
package compiler

import (
	"fmt"
	"math/bits"
	"strings"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

// defaultWidth is the register width allocated for ordinary source
// variables and temporaries.
const defaultWidth = 32

// ThreadGenerator is the orchestration root for lowering one or more
// threads into a shared hardware module.
type ThreadGenerator struct {
	module     *rtl.Module
	clk, rst   *rtl.Register
	seq        int
	functions  map[string]*ast.FunctionDef
	intrinsics *IntrinsicRegistry

	binds []BindRecord
	loops []LoopRecord

	// localEnv is the environment captured by the most recent Create or
	// Extend, reused as the environment of any child thread spawned via
	// the run intrinsic while that thread is being lowered.
	localEnv Environment
}

// NewThreadGenerator returns a generator that will allocate registers and
// FSMs inside m, clocked by clk and reset by rst. run and sleep are
// installed as intrinsics immediately, as are wait and busy for spawned
// thread handles.
func NewThreadGenerator(m *rtl.Module, clk, rst *rtl.Register) *ThreadGenerator {
	g := &ThreadGenerator{
		module:     m,
		clk:        clk,
		rst:        rst,
		functions:  make(map[string]*ast.FunctionDef),
		intrinsics: NewIntrinsicRegistry(),
	}
	g.installBuiltinIntrinsics()
	return g
}

// ResetNames zeros this generator's unique-name counter. Test-only: calling
// it mid-synthesis risks colliding register names within the same module.
func (g *ThreadGenerator) ResetNames() { g.seq = 0 }

// ResetAllForTest zeros the unique-name counter on every generator given.
// Test-only convenience for table-driven tests that construct several
// generators and want all of them starting from a clean, reproducible
// count.
func ResetAllForTest(gens ...*ThreadGenerator) {
	for _, g := range gens {
		g.ResetNames()
	}
}

// uniqName mints a deterministic, collision-free register name for thread
// threadName's source variable varName.
func (g *ThreadGenerator) uniqName(threadName, varName string) string {
	name := fmt.Sprintf("_thread_%s_%s_%d", threadName, varName, g.seq)
	g.seq++
	return name
}

// AddFunction registers def for later inlining by name. Re-registering an
// existing name is a compile error.
func (g *ThreadGenerator) AddFunction(def *ast.FunctionDef) error {
	if _, exists := g.functions[def.Name]; exists {
		return wrap(ErrDuplicateRegistration, fmt.Sprintf("function %q", def.Name))
	}
	g.functions[def.Name] = def
	return nil
}

// Intrinsic registers fn as the host-executed intrinsic for free-function
// calls to name.
func (g *ThreadGenerator) Intrinsic(name string, fn IntrinsicFunc) error {
	if err := g.intrinsics.RegisterFunc(name, fn); err != nil {
		return wrap(ErrDuplicateRegistration, err.Error())
	}
	return nil
}

// IntrinsicMethod registers fn as the host-executed intrinsic for calls to
// ownerType.method.
func (g *ThreadGenerator) IntrinsicMethod(ownerType, method string, fn IntrinsicMethod) error {
	if err := g.intrinsics.RegisterMethod(ownerType, method, fn); err != nil {
		return wrap(ErrDuplicateRegistration, err.Error())
	}
	return nil
}

// NamedIntrinsicMethod pairs a method name with its intrinsic
// implementation, for bulk registration via RegisterIntrinsicPrefix.
type NamedIntrinsicMethod struct {
	Name string
	Fn   IntrinsicMethod
}

// RegisterIntrinsicPrefix registers every method in methods whose name
// starts with prefix as an intrinsic of ownerType. The caller supplies
// the method table explicitly; there is no reflection involved.
func (g *ThreadGenerator) RegisterIntrinsicPrefix(ownerType, prefix string, methods []NamedIntrinsicMethod) error {
	for _, m := range methods {
		if !strings.HasPrefix(m.Name, prefix) {
			continue
		}
		if err := g.IntrinsicMethod(ownerType, m.Name, m.Fn); err != nil {
			return err
		}
	}
	return nil
}

// Binds returns the bind-record log accumulated across every
// Create/Extend/Run call on this generator, in emission order.
func (g *ThreadGenerator) Binds() []BindRecord { return append([]BindRecord(nil), g.binds...) }

// Loops returns the loop-descriptor log accumulated across every
// Create/Extend/Run call on this generator, in lowering order.
func (g *ThreadGenerator) Loops() []LoopRecord { return append([]LoopRecord(nil), g.loops...) }

// newLowering builds a fresh per-thread lowering context seeded with this
// generator's persistent function table, with an initial call frame
// already pushed (the entry point of every thread executes as if it were
// itself an inlined call). topBody is additionally harvested for sibling
// function definitions declared in the same unit as target, so forward
// references to a sibling resolve; an explicit generator-level
// registration wins over a harvested def of the same name.
func (g *ThreadGenerator) newLowering(fsm *rtl.FSM, threadName string, env Environment, topBody []ast.Stmt) (*Lowering, error) {
	scope := NewFrameList()
	for _, def := range g.functions {
		_ = scope.AddFunction(def) // names were already de-duplicated at AddFunction time
	}
	harvested, err := HarvestFunctions(topBody)
	if err != nil {
		return nil, err
	}
	for name, def := range harvested {
		if _, exists := scope.functions[name]; exists {
			continue // an explicit generator-level registration wins
		}
		_ = scope.AddFunction(def)
	}
	scope.Push(callFrame, threadName)
	return &Lowering{
		gen:        g,
		scope:      scope,
		fsm:        fsm,
		env:        env,
		threadName: threadName,
	}, nil
}

// Create captures env as target's initial lexical environment, builds a
// fresh FSM, and inlines target(args, kwargs) into it from state 0.
func (g *ThreadGenerator) Create(name string, target *ast.FunctionDef, args []Binding, kwargs map[string]Binding, env Environment) (*rtl.FSM, error) {
	g.localEnv = env
	fsm := rtl.NewFSM(g.module, name, g.clk, g.rst)
	l, err := g.newLowering(fsm, name, env, target.Body)
	if err != nil {
		return nil, err
	}
	if _, err := l.inlineFunction(target, args, kwargs); err != nil {
		return nil, err
	}
	g.collectLogs(l)
	return fsm, nil
}

// Extend inlines target(args, kwargs) onto fsm's current state, continuing
// an FSM a previous Create/Extend/Run call already built. The thread keeps
// the FSM's own name.
func (g *ThreadGenerator) Extend(fsm *rtl.FSM, target *ast.FunctionDef, args []Binding, kwargs map[string]Binding, env Environment) error {
	g.localEnv = env
	l, err := g.newLowering(fsm, fsm.Name, env, target.Body)
	if err != nil {
		return err
	}
	if _, err := l.inlineFunction(target, args, kwargs); err != nil {
		return err
	}
	g.collectLogs(l)
	return nil
}

// collectLogs appends a finished lowering's bind-record and loop-descriptor
// logs to the generator-wide logs.
func (g *ThreadGenerator) collectLogs(l *Lowering) {
	g.binds = append(g.binds, l.scope.Binds()...)
	g.loops = append(g.loops, l.scope.Loops()...)
}

// ThreadInfo is the handle returned when a child thread is spawned via
// Run: a pair (child FSM, end state) whose wait/busy intrinsic methods
// synchronize a parent FSM against the child's completion.
type ThreadInfo struct {
	FSM      *rtl.FSM
	EndState int
}

// Run allocates a child FSM gated by parent reaching its current state,
// inlines target into it, and returns a ThreadInfo. Registered as the
// "run" intrinsic by installBuiltinIntrinsics; callable directly too.
func (g *ThreadGenerator) Run(parent *rtl.FSM, name string, target *ast.FunctionDef, args []Binding, kwargs map[string]Binding, env Environment) (*ThreadInfo, error) {
	child := rtl.NewFSM(g.module, name, g.clk, g.rst)
	gate := rtl.NewEq(parent.State, rtl.Int{V: int64(parent.Current)})
	child.If(gate).GotoNext()

	l, err := g.newLowering(child, name, env, target.Body)
	if err != nil {
		return nil, err
	}
	if _, err := l.inlineFunction(target, args, kwargs); err != nil {
		return nil, err
	}
	g.collectLogs(l)
	return &ThreadInfo{FSM: child, EndState: child.MaxState()}, nil
}

// Sleep stalls fsm's current state for cycles clock cycles, using a
// counter register sized to hold the count.
func (g *ThreadGenerator) Sleep(fsm *rtl.FSM, cycles int64) error {
	if cycles <= 0 {
		return wrap(ErrTypeMisuse, "sleep() requires a positive cycle count")
	}
	// ceil(log2(cycles))+1: bits.Len64(cycles-1) gives the number of bits
	// needed to count 0..cycles-1, i.e. ceil(log2(cycles)).
	width := bits.Len64(uint64(cycles-1)) + 1
	if width < 2 {
		width = 2
	}
	counter := g.module.TmpReg(width, 0)

	fsm.AddStatement([]rtl.Statement{{
		Dst:   counter,
		Value: rtl.NewPlus(counter, rtl.Int{V: 1}),
	}}, nil)
	fsm.If(rtl.NewEq(counter, rtl.Int{V: cycles})).GotoNext()
	return nil
}

// installBuiltinIntrinsics wires run/sleep as intrinsics so call
// lowering routes `run(...)`/`sleep(...)` call expressions through them
// automatically, exactly like any user-registered intrinsic.
func (g *ThreadGenerator) installBuiltinIntrinsics() {
	_ = g.intrinsics.RegisterFunc("run", func(fsm *rtl.FSM, args []Binding, kwargs map[string]Binding) (Binding, error) {
		if len(args) == 0 {
			return nil, wrap(ErrTypeMisuse, "run() requires a target function as its first argument")
		}
		def, ok := args[0].(*ast.FunctionDef)
		if !ok {
			return nil, wrap(ErrTypeMisuse, "run() requires a function value as its first argument")
		}
		childName := fmt.Sprintf("%s_child_%d", def.Name, g.seq)
		g.seq++
		// The child reuses the parent thread's captured environment.
		return g.Run(fsm, childName, def, args[1:], kwargs, g.localEnv)
	})

	_ = g.intrinsics.RegisterFunc("sleep", func(fsm *rtl.FSM, args []Binding, kwargs map[string]Binding) (Binding, error) {
		if len(args) != 1 {
			return nil, wrap(ErrTypeMisuse, "sleep() takes exactly one argument")
		}
		n, ok := args[0].(rtl.Int)
		if !ok {
			return nil, wrap(ErrTypeMisuse, "sleep() requires a constant integer cycle count")
		}
		if err := g.Sleep(fsm, n.V); err != nil {
			return nil, err
		}
		return rtl.Int{V: 0}, nil
	})

	_ = g.intrinsics.RegisterMethod("ThreadInfo", "wait", func(fsm *rtl.FSM, recv Binding, args []Binding, kwargs map[string]Binding) (Binding, error) {
		th, ok := recv.(*ThreadInfo)
		if !ok {
			return nil, wrap(ErrTypeMisuse, "wait() called on a non-thread value")
		}
		fsm.If(rtl.NewEq(th.FSM.State, rtl.Int{V: int64(th.EndState)})).GotoNext()
		return rtl.Int{V: 0}, nil
	})

	_ = g.intrinsics.RegisterMethod("ThreadInfo", "busy", func(fsm *rtl.FSM, recv Binding, args []Binding, kwargs map[string]Binding) (Binding, error) {
		th, ok := recv.(*ThreadInfo)
		if !ok {
			return nil, wrap(ErrTypeMisuse, "busy() called on a non-thread value")
		}
		return rtl.NewNotEq(th.FSM.State, rtl.Int{V: int64(th.EndState)}), nil
	})
}
