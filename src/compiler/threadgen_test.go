package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

func newTestModule() (*rtl.Module, *rtl.Register, *rtl.Register) {
	m := rtl.NewModule("test")
	clk := m.Reg("clk", 1, 0)
	rst := m.Reg("rst", 1, 0)
	return m, clk, rst
}

// name builds a load-context Name node.
func name(id string) *ast.Name { return &ast.Name{Id: id, Ctx: ast.Load} }

// store builds a store-context Name node.
func store(id string) *ast.Name { return &ast.Name{Id: id, Ctx: ast.Store} }

func intLit(v int64) *ast.IntLit { return &ast.IntLit{Value: v} }

func assign(target string, value ast.Expr) *ast.Assign {
	return &ast.Assign{Targets: []ast.Expr{store(target)}, Value: value}
}

// countRegs counts the module's registers whose name contains sub.
func countRegs(m *rtl.Module, sub string) int {
	n := 0
	for _, r := range m.Registers() {
		if strings.Contains(r.Name, sub) {
			n++
		}
	}
	return n
}

// TestCountingLoop lowers `x = 0; for i in range(10): x = x + 1` and checks
// the exact FSM shape: the loop occupies five states (init, check, body,
// step, exit), the branch guard is `i < 10`, and the step state jumps back
// to the check state.
func TestCountingLoop(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "count",
		Body: []ast.Stmt{
			assign("x", intLit(0)),
			&ast.For{
				Target: store("i"),
				Iter: &ast.Call{
					Func: name("range"),
					Args: []ast.Expr{intLit(10)},
				},
				Body: []ast.Stmt{
					assign("x", &ast.BinOp{Left: name("x"), Op: ast.Add, Right: intLit(1)}),
				},
			},
		},
	}

	fsm, err := gen.Create("count", def, nil, nil, nil)
	require.NoError(t, err)

	// x = 0 on state 1, loop init on 2, check 3, body 4, step 5, exit 6.
	assert.Equal(t, 6, fsm.MaxState())
	assert.Equal(t, 1, countRegs(m, "_i_"), "expected exactly one loop iteration register")

	trans := fsm.Transitions()
	require.Len(t, trans, 2)

	back := trans[0]
	assert.Equal(t, 5, back.Src, "back-edge source should be the step state")
	assert.Equal(t, 3, back.Dst, "back-edge destination should be the check state")
	assert.Nil(t, back.Cond)

	branch := trans[1]
	assert.Equal(t, 3, branch.Src)
	assert.Equal(t, 4, branch.Dst)
	lt, ok := branch.Cond.(rtl.LessThan)
	require.True(t, ok, "loop guard should be a < comparison, got %T", branch.Cond)
	assert.Equal(t, rtl.Int{V: 10}, lt.Right)
	require.NotNil(t, branch.ElseDst)
	assert.Equal(t, 6, *branch.ElseDst, "guard failure should jump to the exit state")

	loops := gen.Loops()
	require.Len(t, loops, 1)
	assert.Equal(t, 3, loops[0].Begin)
	assert.Equal(t, 5, loops[0].End)
	assert.NotNil(t, loops[0].Iter)
}

// TestEarlyReturn lowers `def early(a): if a: return 1
// return 2` and checks that both returns share one return register and
// both are patched to the state following the function body; the second
// return is still lowered because the first one is conditional.
func TestEarlyReturn(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name:   "early",
		Params: []string{"a"},
		Body: []ast.Stmt{
			&ast.If{
				Test: name("a"),
				Body: []ast.Stmt{&ast.Return{Value: intLit(1)}},
			},
			&ast.Return{Value: intLit(2)},
		},
	}

	fsm, err := gen.Create("early", def, []Binding{rtl.Int{V: 1}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, countRegs(m, "_ret_"), "both returns should share one return register")

	end := fsm.MaxState()
	patched := 0
	for _, tr := range fsm.Transitions() {
		if tr.Cond == nil && tr.Dst == end {
			patched++
		}
	}
	assert.Equal(t, 2, patched, "expected both return states patched to the post-body state")
}

// TestSkipAfterUnconditionalReturn checks that statements following a
// return in the same block are dropped.
func TestSkipAfterUnconditionalReturn(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "dead",
		Body: []ast.Stmt{
			&ast.Return{Value: intLit(1)},
			assign("unreached", intLit(99)),
		},
	}

	_, err := gen.Create("dead", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, countRegs(m, "_unreached_"), "statement after an unconditional return should never be lowered")
}

// TestBreakInWhile lowers a while loop whose body breaks out of a nested
// if. The break state is patched to the loop exit, the statement after
// the break in the same block is dropped, and the statement after the if
// (still reachable when the branch is not taken) is lowered normally.
func TestBreakInWhile(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "loopbreak",
		Body: []ast.Stmt{
			&ast.While{
				Test: name("running"),
				Body: []ast.Stmt{
					&ast.If{
						Test: name("done"),
						Body: []ast.Stmt{
							&ast.Break{},
							assign("unreached", intLit(1)),
						},
					},
					assign("y", intLit(1)),
				},
			},
		},
	}

	env := Environment{"running": rtl.Int{V: 1}, "done": rtl.Int{V: 0}}
	fsm, err := gen.Create("loopbreak", def, nil, nil, env)
	require.NoError(t, err)

	assert.Zero(t, countRegs(m, "_unreached_"), "statement after break in the same block should be dropped")
	assert.Equal(t, 1, countRegs(m, "_y_"), "statement after the if should still be lowered")

	// Loop: begin 1, body 2..5, exit 6; the break was recorded on state 3.
	found := false
	for _, tr := range fsm.Transitions() {
		if tr.Src == 3 && tr.Dst == 6 && tr.Cond == nil {
			found = true
		}
	}
	assert.True(t, found, "expected the break state to be patched to the loop exit")
}

// TestContinueInFor checks that continue is patched to the step state so
// the iteration update still executes.
func TestContinueInFor(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "skipper",
		Body: []ast.Stmt{
			&ast.For{
				Target: store("i"),
				Iter:   &ast.Call{Func: name("range"), Args: []ast.Expr{intLit(4)}},
				Body: []ast.Stmt{
					&ast.If{
						Test: name("flag"),
						Body: []ast.Stmt{&ast.Continue{}},
					},
					assign("z", intLit(1)),
				},
			},
		},
	}

	env := Environment{"flag": rtl.Int{V: 1}}
	fsm, err := gen.Create("skipper", def, nil, nil, env)
	require.NoError(t, err)

	loops := gen.Loops()
	require.Len(t, loops, 1)
	step := loops[0].End
	found := false
	for _, tr := range fsm.Transitions() {
		if tr.Dst == step && tr.Cond == nil && tr.Src < step {
			found = true
		}
	}
	assert.True(t, found, "expected the continue state to be patched to the step state")
}

// TestNestedCallInlining checks that inlining `g(3)` with
// `g(x): return x + 1` binds the parameter, stores `x + 1` into g's
// return register, and threads that register out as the call result.
func TestNestedCallInlining(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	g := &ast.FunctionDef{
		Name:   "g",
		Params: []string{"x"},
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.BinOp{Left: name("x"), Op: ast.Add, Right: intLit(1)}},
		},
	}
	require.NoError(t, gen.AddFunction(g))

	f := &ast.FunctionDef{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.Call{Func: name("g"), Args: []ast.Expr{intLit(3)}}},
		},
	}

	_, err := gen.Create("f", f, nil, nil, nil)
	require.NoError(t, err)

	binds := gen.Binds()
	require.Len(t, binds, 3)

	assert.Equal(t, rtl.Int{V: 3}, binds[0].Value, "parameter x should be bound to 3")

	plus, ok := binds[1].Value.(rtl.Plus)
	require.True(t, ok, "g's return register should hold x + 1, got %T", binds[1].Value)
	assert.Equal(t, rtl.Int{V: 1}, plus.Right)

	gret, ok := binds[2].Value.(*rtl.Register)
	require.True(t, ok, "f's return register should be fed from g's return register")
	assert.Equal(t, binds[1].Name, gret.Name)
}

// TestDirectRecursionRejected checks that a function calling itself is
// refused instead of inlining forever.
func TestDirectRecursionRejected(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	recur := &ast.FunctionDef{
		Name: "recur",
		Body: []ast.Stmt{
			&ast.ExprStmt{Value: &ast.Call{Func: name("recur")}},
		},
	}
	_, err := gen.Create("recur", recur, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecursion)
}

// TestRunWaitBusy checks that run() spawns a gated child FSM,
// wait() stalls the parent on `child.state == child.end`, busy() yields
// the `child.state != child.end` expression, and the statement after the
// wait lands on a state after the stall.
func TestRunWaitBusy(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	child := &ast.FunctionDef{
		Name: "child",
		Body: []ast.Stmt{&ast.Pass{}},
	}

	main := &ast.FunctionDef{
		Name: "main",
		Body: []ast.Stmt{
			assign("th", &ast.Call{Func: name("run"), Args: []ast.Expr{name("child")}}),
			&ast.ExprStmt{Value: &ast.Call{Func: &ast.Attribute{Value: name("th"), Attr: "wait"}}},
			assign("z", intLit(1)),
			assign("b", &ast.Call{Func: &ast.Attribute{Value: name("th"), Attr: "busy"}}),
		},
	}

	env := Environment{"child": child}
	fsm, err := gen.Create("main", main, nil, nil, env)
	require.NoError(t, err)

	var waitState int
	found := false
	for _, tr := range fsm.Transitions() {
		if _, ok := tr.Cond.(rtl.Eq); ok && tr.ElseDst != nil && *tr.ElseDst == tr.Src {
			waitState = tr.Src
			found = true
		}
	}
	require.True(t, found, "expected a self-looping transition guarded by child.state == end")

	for _, b := range gen.Binds() {
		if strings.Contains(b.Name, "_z_") {
			assert.Greater(t, b.State, waitState, "z = 1 should be bound on a state after the wait state")
		}
		if strings.Contains(b.Name, "_b_") {
			_, ok := b.Value.(rtl.NotEq)
			assert.True(t, ok, "busy() should yield a != comparison, got %T", b.Value)
		}
	}
}

// TestPrintFormat checks that a `"fmt" % (args...)` print
// emits a single SystemTask with the literal format string and both
// arguments, and the statement consumes one state.
func TestPrintFormat(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "printer",
		Body: []ast.Stmt{
			&ast.Print{
				Values: []ast.Expr{
					&ast.BinOp{
						Left: &ast.StrLit{Value: "x=%d y=%d"},
						Op:   ast.Mod,
						Right: &ast.Tuple{Elts: []ast.Expr{
							name("x"), name("y"),
						}},
					},
				},
			},
		},
	}
	env := Environment{"x": rtl.Int{V: 1}, "y": rtl.Int{V: 2}}
	fsm, err := gen.Create("printer", def, nil, nil, env)
	require.NoError(t, err)

	found := false
	for s := 0; s <= fsm.MaxState(); s++ {
		for _, stmt := range fsm.StatementsAt(s) {
			task, ok := stmt.Value.(rtl.SystemTask)
			if !ok {
				continue
			}
			found = true
			require.Len(t, task.Args, 3, "expected format string plus 2 args")
			fmtArg, ok := task.Args[0].(rtl.Str)
			require.True(t, ok)
			assert.Equal(t, "x=%d y=%d", fmtArg.Value, "expected literal format string to survive unmodified")
		}
	}
	assert.True(t, found, "expected a SystemTask statement to be emitted")
	assert.Equal(t, 2, fsm.MaxState(), "print should consume exactly one state")
}

// TestPrintPlainArgs checks the accumulated-format form: strings embed
// verbatim, everything else becomes a %d placeholder, pieces are joined
// with spaces.
func TestPrintPlainArgs(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "printer",
		Body: []ast.Stmt{
			&ast.Print{Values: []ast.Expr{&ast.StrLit{Value: "x ="}, name("x")}},
		},
	}
	env := Environment{"x": rtl.Int{V: 7}}
	fsm, err := gen.Create("printer", def, nil, nil, env)
	require.NoError(t, err)

	for s := 0; s <= fsm.MaxState(); s++ {
		for _, stmt := range fsm.StatementsAt(s) {
			if task, ok := stmt.Value.(rtl.SystemTask); ok {
				assert.Equal(t, "x = %d", task.Args[0].(rtl.Str).Value)
				require.Len(t, task.Args, 2)
				return
			}
		}
	}
	t.Fatal("no SystemTask emitted")
}

// TestTupleUnpack checks multi-target unpacking and the arity errors.
func TestTupleUnpack(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "unpack",
		Body: []ast.Stmt{
			&ast.Assign{
				Targets: []ast.Expr{&ast.Tuple{Elts: []ast.Expr{store("a"), store("b")}}},
				Value:   &ast.Tuple{Elts: []ast.Expr{intLit(1), intLit(2)}},
			},
		},
	}
	_, err := gen.Create("unpack", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, countRegs(m, "_a_"))
	assert.Equal(t, 1, countRegs(m, "_b_"))

	bad := &ast.FunctionDef{
		Name: "bad",
		Body: []ast.Stmt{
			&ast.Assign{
				Targets: []ast.Expr{&ast.Tuple{Elts: []ast.Expr{store("a"), store("b")}}},
				Value:   &ast.Tuple{Elts: []ast.Expr{intLit(1), intLit(2), intLit(3)}},
			},
		},
	}
	_, err = gen.Create("bad", bad, nil, nil, nil)
	assert.ErrorIs(t, err, ErrArityMismatch)
}

// TestStringOperations checks string-plus concatenation and the rejection
// of every other operator on string literals.
func TestStringOperations(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	concat := &ast.FunctionDef{
		Name: "concat",
		Body: []ast.Stmt{
			assign("s", &ast.BinOp{
				Left:  &ast.StrLit{Value: "foo"},
				Op:    ast.Add,
				Right: &ast.StrLit{Value: "bar"},
			}),
		},
	}
	_, err := gen.Create("concat", concat, nil, nil, nil)
	require.NoError(t, err)

	binds := gen.Binds()
	require.NotEmpty(t, binds)
	assert.Equal(t, rtl.Str{Value: "foobar"}, binds[0].Value)

	mixed := &ast.FunctionDef{
		Name: "mixed",
		Body: []ast.Stmt{
			assign("s", &ast.BinOp{Left: &ast.StrLit{Value: "foo"}, Op: ast.Add, Right: intLit(1)}),
		},
	}
	_, err = gen.Create("mixed", mixed, nil, nil, nil)
	assert.ErrorIs(t, err, ErrTypeMisuse)

	sub := &ast.FunctionDef{
		Name: "sub",
		Body: []ast.Stmt{
			assign("s", &ast.BinOp{
				Left:  &ast.StrLit{Value: "foo"},
				Op:    ast.Sub,
				Right: &ast.StrLit{Value: "bar"},
			}),
		},
	}
	_, err = gen.Create("sub", sub, nil, nil, nil)
	assert.ErrorIs(t, err, ErrTypeMisuse)
}

// TestCompareChainAndIfExp checks that a chained comparison folds with
// logical-and and a conditional expression lowers to a ternary without
// costing a state.
func TestCompareChainAndIfExp(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "exprs",
		Body: []ast.Stmt{
			assign("c", &ast.Compare{
				Left:        intLit(1),
				Ops:         []ast.Operator{ast.Lt, ast.LtE},
				Comparators: []ast.Expr{intLit(2), intLit(3)},
			}),
			assign("t", &ast.IfExp{Test: name("c"), Body: intLit(1), Orelse: intLit(2)}),
		},
	}
	fsm, err := gen.Create("exprs", def, nil, nil, nil)
	require.NoError(t, err)

	binds := gen.Binds()
	require.Len(t, binds, 2)
	_, ok := binds[0].Value.(rtl.Land)
	assert.True(t, ok, "chained comparison should fold with Land, got %T", binds[0].Value)
	_, ok = binds[1].Value.(rtl.Cond)
	assert.True(t, ok, "conditional expression should lower to a ternary, got %T", binds[1].Value)
	assert.Equal(t, 3, fsm.MaxState(), "two assignments should consume exactly two states")
}

// TestKeywordAndDefaultBinding checks the positional → keyword → default
// resolution order and its error cases.
func TestKeywordAndDefaultBinding(t *testing.T) {
	add3 := &ast.FunctionDef{
		Name:     "add3",
		Params:   []string{"a", "b", "c"},
		Defaults: []ast.Expr{intLit(10)},
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.BinOp{
				Left:  &ast.BinOp{Left: name("a"), Op: ast.Add, Right: name("b")},
				Op:    ast.Add,
				Right: name("c"),
			}},
		},
	}

	caller := func(call *ast.Call) (*ThreadGenerator, error) {
		m, clk, rst := newTestModule()
		gen := NewThreadGenerator(m, clk, rst)
		require.NoError(t, gen.AddFunction(add3))
		def := &ast.FunctionDef{
			Name: "main",
			Body: []ast.Stmt{assign("r", call)},
		}
		_, err := gen.Create("main", def, nil, nil, nil)
		return gen, err
	}

	gen, err := caller(&ast.Call{
		Func:     name("add3"),
		Args:     []ast.Expr{intLit(1)},
		Keywords: []ast.Keyword{{Name: "b", Value: intLit(2)}},
	})
	require.NoError(t, err)
	seen := false
	for _, b := range gen.Binds() {
		if b.Value == (rtl.Int{V: 10}) {
			seen = true
		}
	}
	assert.True(t, seen, "c should fall back to its default value")

	_, err = caller(&ast.Call{
		Func:     name("add3"),
		Args:     []ast.Expr{intLit(1), intLit(2)},
		Keywords: []ast.Keyword{{Name: "nope", Value: intLit(3)}},
	})
	assert.ErrorIs(t, err, ErrTypeMisuse, "unexpected keyword argument")

	_, err = caller(&ast.Call{
		Func:     name("add3"),
		Args:     []ast.Expr{intLit(1)},
		Keywords: []ast.Keyword{{Name: "a", Value: intLit(5)}},
	})
	assert.ErrorIs(t, err, ErrTypeMisuse, "duplicate binding of a")

	_, err = caller(&ast.Call{Func: name("add3"), Args: []ast.Expr{intLit(1)}})
	assert.ErrorIs(t, err, ErrArityMismatch, "missing required argument b")
}

// TestRejectedSyntax checks the hard-error node kinds and the
// range-only restriction on for loops.
func TestRejectedSyntax(t *testing.T) {
	cases := []struct {
		name string
		stmt ast.Stmt
	}{
		{"import", &ast.Import{}},
		{"import-from", &ast.ImportFrom{}},
		{"class-def", &ast.ClassDef{}},
		{"for-non-range", &ast.For{Target: store("i"), Iter: name("xs"), Body: []ast.Stmt{&ast.Pass{}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, clk, rst := newTestModule()
			gen := NewThreadGenerator(m, clk, rst)
			def := &ast.FunctionDef{Name: "bad", Body: []ast.Stmt{tc.stmt}}
			_, err := gen.Create("bad", def, nil, nil, nil)
			assert.ErrorIs(t, err, ErrUnsupportedSyntax)
		})
	}
}

// TestBreakOutsideLoop checks that break with no enclosing loop is a
// compile error rather than a silently dangling patch.
func TestBreakOutsideLoop(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)
	def := &ast.FunctionDef{Name: "stray", Body: []ast.Stmt{&ast.Break{}}}
	_, err := gen.Create("stray", def, nil, nil, nil)
	assert.ErrorIs(t, err, ErrControlFlowOutsideScope)
}

// TestUndefinedName checks that loading an unbound name fails.
func TestUndefinedName(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)
	def := &ast.FunctionDef{Name: "oops", Body: []ast.Stmt{assign("x", name("ghost"))}}
	_, err := gen.Create("oops", def, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNameNotDefined)
}

// TestIntBuiltin checks the int() shortcut and its arity error.
func TestIntBuiltin(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "conv",
		Body: []ast.Stmt{assign("x", &ast.Call{Func: name("int"), Args: []ast.Expr{intLit(7)}})},
	}
	_, err := gen.Create("conv", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, rtl.Int{V: 7}, gen.Binds()[0].Value)

	bad := &ast.FunctionDef{
		Name: "bad",
		Body: []ast.Stmt{assign("x", &ast.Call{Func: name("int"), Args: []ast.Expr{intLit(1), intLit(2)}})},
	}
	_, err = gen.Create("bad", bad, nil, nil, nil)
	assert.ErrorIs(t, err, ErrTypeMisuse)
}

// TestCustomIntrinsic checks that a registered intrinsic intercepts call
// lowering and that re-registration is refused.
func TestCustomIntrinsic(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	magic := func(fsm *rtl.FSM, args []Binding, kwargs map[string]Binding) (Binding, error) {
		return rtl.Int{V: 42}, nil
	}
	require.NoError(t, gen.Intrinsic("magic", magic))
	assert.ErrorIs(t, gen.Intrinsic("magic", magic), ErrDuplicateRegistration)

	def := &ast.FunctionDef{
		Name: "uses",
		Body: []ast.Stmt{assign("x", &ast.Call{Func: name("magic")})},
	}
	_, err := gen.Create("uses", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, rtl.Int{V: 42}, gen.Binds()[0].Value)
}

// TestRegisterIntrinsicPrefix checks prefix-filtered bulk registration.
func TestRegisterIntrinsicPrefix(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	noop := func(fsm *rtl.FSM, recv Binding, args []Binding, kwargs map[string]Binding) (Binding, error) {
		return rtl.Int{V: 0}, nil
	}
	methods := []NamedIntrinsicMethod{
		{Name: "dev_on", Fn: noop},
		{Name: "dev_off", Fn: noop},
		{Name: "reset", Fn: noop},
	}
	require.NoError(t, gen.RegisterIntrinsicPrefix("Device", "dev_", methods))

	// The two prefixed methods are taken; re-registering them collides.
	assert.ErrorIs(t, gen.IntrinsicMethod("Device", "dev_on", noop), ErrDuplicateRegistration)
	assert.ErrorIs(t, gen.IntrinsicMethod("Device", "dev_off", noop), ErrDuplicateRegistration)
	// The unprefixed one was filtered out and is still free.
	assert.NoError(t, gen.IntrinsicMethod("Device", "reset", noop))
}

// TestDuplicateFunction checks duplicate function registration.
func TestDuplicateFunction(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)
	def := &ast.FunctionDef{Name: "twice", Body: []ast.Stmt{&ast.Pass{}}}
	require.NoError(t, gen.AddFunction(def))
	assert.ErrorIs(t, gen.AddFunction(def), ErrDuplicateRegistration)
}

// TestNonlocalBinding checks that nonlocal redirects a store in a nested
// inlined function to the enclosing function's register.
func TestNonlocalBinding(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "outer",
		Body: []ast.Stmt{
			assign("x", intLit(1)),
			&ast.FunctionDef{
				Name: "bump",
				Body: []ast.Stmt{
					&ast.Nonlocal{Names: []string{"x"}},
					assign("x", intLit(5)),
				},
			},
			&ast.ExprStmt{Value: &ast.Call{Func: name("bump")}},
		},
	}
	_, err := gen.Create("outer", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, countRegs(m, "_x_"), "nonlocal store should reuse the enclosing register")
}

// TestGlobalBinding checks that global sends a store to the outermost
// frame and that a later load in the same function sees it.
func TestGlobalBinding(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	def := &ast.FunctionDef{
		Name: "setter",
		Body: []ast.Stmt{
			&ast.Global{Names: []string{"x"}},
			assign("x", intLit(3)),
			assign("y", name("x")),
		},
	}
	_, err := gen.Create("setter", def, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, countRegs(m, "_x_"))
}

// TestResetNamesIsDeterministic checks that resetting a generator's
// unique-name counter and re-minting an identical name produces the same
// string (the round-trip determinism hook).
func TestResetNamesIsDeterministic(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)

	first := gen.uniqName("id", "x")
	ResetAllForTest(gen)
	second := gen.uniqName("id", "x")
	assert.Equal(t, first, second, "expected identical names after ResetAllForTest")
}

// TestSleepWidth checks the counter-width formula at an exact power of two.
func TestSleepWidth(t *testing.T) {
	m, clk, rst := newTestModule()
	gen := NewThreadGenerator(m, clk, rst)
	fsm := rtl.NewFSM(m, "s", clk, rst)

	require.NoError(t, gen.Sleep(fsm, 8))
	regs := m.Registers()
	last := regs[len(regs)-1]
	assert.Equal(t, 4, last.Width, "sleep(8): expected counter width 4")
}
