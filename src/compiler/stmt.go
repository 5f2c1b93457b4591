// stmt.go implements statement lowering and the control-flow-graph
// builder, plus call lowering.
package compiler

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

// LowerBody lowers a statement list in order, honoring skip() cascading.
func (l *Lowering) LowerBody(body []ast.Stmt) error {
	for _, s := range body {
		if l.skip() {
			continue
		}
		if err := l.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// skip reports whether the current position follows a break, continue or
// return in the same block. The rest of the block is dead, nested
// constructs included, so the whole statement is dropped. The flag is
// per-frame: once the block closes, lowering resumes in the enclosing
// block, so a return inside an if-branch still leaves the statements
// after the if reachable on the untaken path.
func (l *Lowering) skip() bool {
	return l.scope.Terminated()
}

func (l *Lowering) lowerStmt(s ast.Stmt) error {
	log.WithFields(logrus.Fields{
		"thread": l.threadName,
		"state":  l.fsm.Current,
		"depth":  l.scope.Depth(),
		"node":   fmt.Sprintf("%T", s),
	}).Debug("lowering statement")
	switch n := s.(type) {
	case *ast.Assign:
		return l.lowerAssign(n)
	case *ast.AugAssign:
		return l.lowerAugAssign(n)
	case *ast.If:
		return l.lowerIf(n)
	case *ast.While:
		return l.lowerWhile(n)
	case *ast.For:
		return l.lowerFor(n)
	case *ast.FunctionDef:
		// The pre-pass harvest already registered defs found at the top
		// of the entry body; revisiting the same node is not a duplicate
		// registration.
		if existing, ok := l.scope.SearchFunction(n.Name); ok && existing == n {
			return nil
		}
		return wrapErr(l.scope.AddFunction(n))
	case *ast.Return:
		return l.lowerReturn(n)
	case *ast.Break:
		return l.lowerBreak()
	case *ast.Continue:
		return l.lowerContinue()
	case *ast.Pass:
		return nil
	case *ast.Nonlocal:
		for _, name := range n.Names {
			l.scope.AddNonlocal(name)
		}
		return nil
	case *ast.Global:
		for _, name := range n.Names {
			l.scope.AddGlobal(name)
		}
		return nil
	case *ast.ExprStmt:
		_, err := l.lowerToBinding(n.Value)
		return err
	case *ast.Print:
		_, err := l.emitPrint(n.Values)
		return err
	case *ast.Import, *ast.ImportFrom, *ast.ClassDef:
		return wrap(ErrUnsupportedSyntax, fmt.Sprintf("%T is not accepted source", s))
	default:
		return wrap(ErrUnsupportedSyntax, fmt.Sprintf("statement node %T", s))
	}
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return wrap(ErrDuplicateRegistration, err.Error())
}

// emitBind attaches a register assignment to the FSM's current state and
// appends the corresponding bind-record log entry.
func (l *Lowering) emitBind(reg *rtl.Register, value rtl.Expr, cond rtl.Expr) {
	l.fsm.AddStatement([]rtl.Statement{{Dst: reg, Value: value}}, cond)
	l.scope.AddBind(l.fsm.Current, reg.Name, value, cond)
}

// lowerAssign lowers an assignment: evaluate RHS then every LHS, bind at
// the current state, then advance one state.
func (l *Lowering) lowerAssign(n *ast.Assign) error {
	val, err := l.lowerToBinding(n.Value)
	if err != nil {
		return err
	}
	for _, target := range n.Targets {
		if err := l.assignTo(target, val); err != nil {
			return err
		}
	}
	l.fsm.Inc()
	return nil
}

func (l *Lowering) assignTo(target ast.Expr, val Binding) error {
	switch t := target.(type) {
	case *ast.Tuple:
		return l.assignMulti(t.Elts, val)
	case *ast.List:
		return l.assignMulti(t.Elts, val)
	case *ast.Name:
		// A non-expression Binding (a captured function, a *ThreadInfo, a
		// tuple) is bound directly into scope with no backing register,
		// the same rule bindParam applies to non-expr arguments.
		if _, isExpr := val.(rtl.Expr); !isExpr {
			l.scope.AddVariable(t.Id, val)
			return nil
		}
		reg, err := l.resolveStoreTarget(t.Id)
		if err != nil {
			return err
		}
		valExpr, err := asExpr(val)
		if err != nil {
			return err
		}
		l.emitBind(reg, valExpr, nil)
		return nil
	default:
		return wrap(ErrUnsupportedSyntax, fmt.Sprintf("assignment target %T", target))
	}
}

func (l *Lowering) assignMulti(elts []ast.Expr, val Binding) error {
	tuple, ok := val.(TupleValue)
	if !ok {
		return wrap(ErrArityMismatch, "right-hand side is not a tuple")
	}
	if len(tuple) != len(elts) {
		return wrap(ErrArityMismatch, fmt.Sprintf("expected %d values, got %d", len(elts), len(tuple)))
	}
	for i, e := range elts {
		if err := l.assignTo(e, tuple[i]); err != nil {
			return err
		}
	}
	return nil
}

// lowerAugAssign implements `target op= value`: target must already be a
// bound register (an AugAssign cannot declare a fresh name).
func (l *Lowering) lowerAugAssign(n *ast.AugAssign) error {
	name, ok := n.Target.(*ast.Name)
	if !ok {
		return wrap(ErrUnsupportedSyntax, "augmented assignment requires a plain name target")
	}
	binding, ok := l.scope.SearchVariable(name.Id, false)
	if !ok {
		if v, ok2 := l.env[name.Id]; ok2 {
			binding = v
		} else {
			return wrap(ErrNameNotDefined, name.Id)
		}
	}
	reg, ok := binding.(*rtl.Register)
	if !ok {
		return wrap(ErrTypeMisuse, fmt.Sprintf("%q is not assignable", name.Id))
	}
	rhs, err := l.LowerExpr(n.Value)
	if err != nil {
		return err
	}
	result, err := BuildBinary(n.Op, reg, rhs, false, false)
	if err != nil {
		return wrap(ErrUnsupportedOperator, err.Error())
	}
	l.emitBind(reg, result, nil)
	l.fsm.Inc()
	return nil
}

// lowerIf lowers a conditional. The test guards entry to the true
// branch; the true branch's fall-through skips any else block.
func (l *Lowering) lowerIf(n *ast.If) error {
	test, err := l.LowerExpr(n.Test)
	if err != nil {
		return err
	}
	s := l.fsm.Current
	l.fsm.Inc()
	t := l.fsm.Current

	l.scope.Push(blockFrame, "if")
	bodyErr := l.LowerBody(n.Body)
	l.scope.Pop()
	if bodyErr != nil {
		return bodyErr
	}
	m := l.fsm.Current

	if len(n.Orelse) == 0 {
		l.fsm.GotoFrom(s, t, test, &m)
		return nil
	}

	l.fsm.Inc()
	f := l.fsm.Current
	l.scope.Push(blockFrame, "else")
	elseErr := l.LowerBody(n.Orelse)
	l.scope.Pop()
	if elseErr != nil {
		return elseErr
	}
	e := l.fsm.Current

	l.fsm.GotoFrom(s, t, test, &f)
	l.fsm.GotoFrom(m, e, nil, nil)
	return nil
}

// lowerWhile lowers a condition-first loop. Break patches drain to the
// exit state, continue patches to the test state.
func (l *Lowering) lowerWhile(n *ast.While) error {
	begin := l.fsm.Current
	test, err := l.LowerExpr(n.Test)
	if err != nil {
		return err
	}
	l.fsm.Inc()
	bodyBegin := l.fsm.Current

	l.scope.Push(loopFrame, "while")
	bodyErr := l.LowerBody(n.Body)
	if bodyErr != nil {
		l.scope.Pop()
		return bodyErr
	}
	bodyEnd := l.fsm.Current
	l.fsm.Inc()
	exit := l.fsm.Current

	breaks := l.scope.UnresolvedBreak()
	continues := l.scope.UnresolvedContinue()
	l.scope.Pop()

	l.fsm.GotoFrom(begin, bodyBegin, test, &exit)
	l.fsm.GotoFrom(bodyEnd, begin, nil, nil)
	for _, b := range breaks {
		l.fsm.GotoFrom(b, exit, nil, nil)
	}
	for _, c := range continues {
		l.fsm.GotoFrom(c, begin, nil, nil)
	}
	l.scope.AddLoop(begin, bodyEnd, nil, nil)
	return nil
}

// rangeArgs extracts (start, stop, step) from a `range(...)` call with
// 1, 2 or 3 positional arguments.
func rangeArgs(call *ast.Call) (start, stop, step ast.Expr, err error) {
	if len(call.Args) == 0 || len(call.Args) > 3 {
		return nil, nil, nil, wrap(ErrUnsupportedSyntax, "range() takes 1 to 3 arguments")
	}
	switch len(call.Args) {
	case 1:
		return &ast.IntLit{Value: 0}, call.Args[0], &ast.IntLit{Value: 1}, nil
	case 2:
		return call.Args[0], call.Args[1], &ast.IntLit{Value: 1}, nil
	default:
		return call.Args[0], call.Args[1], call.Args[2], nil
	}
}

// lowerFor lowers a for-range loop. Only a `range(...)` iterable is
// accepted; anything else is an error. Continue patches drain to the
// step state so the iteration update still executes.
func (l *Lowering) lowerFor(n *ast.For) error {
	name, ok := n.Target.(*ast.Name)
	if !ok {
		return wrap(ErrUnsupportedSyntax, "for-loop target must be a plain name")
	}
	call, ok := n.Iter.(*ast.Call)
	if !ok {
		return wrap(ErrUnsupportedSyntax, "for-loop only accepts a range(...) iterable")
	}
	if fnName, ok := call.Func.(*ast.Name); !ok || fnName.Id != "range" {
		return wrap(ErrUnsupportedSyntax, "for-loop only accepts a range(...) iterable")
	}
	startExpr, stopExpr, stepExpr, err := rangeArgs(call)
	if err != nil {
		return err
	}
	start, err := l.LowerExpr(startExpr)
	if err != nil {
		return err
	}
	stop, err := l.LowerExpr(stopExpr)
	if err != nil {
		return err
	}
	step, err := l.LowerExpr(stepExpr)
	if err != nil {
		return err
	}

	iter, err := l.resolveStoreTarget(name.Id)
	if err != nil {
		return err
	}
	l.emitBind(iter, start, nil)
	l.fsm.Inc()

	check := l.fsm.Current
	l.fsm.Inc()
	bodyBegin := l.fsm.Current

	l.scope.Push(loopFrame, "for")
	bodyErr := l.LowerBody(n.Body)
	if bodyErr != nil {
		l.scope.Pop()
		return bodyErr
	}
	bodyEnd := l.fsm.Current
	l.emitBind(iter, rtl.NewPlus(iter, step), nil)
	l.fsm.Inc()
	exit := l.fsm.Current

	breaks := l.scope.UnresolvedBreak()
	continues := l.scope.UnresolvedContinue()
	l.scope.Pop()

	l.fsm.GotoFrom(bodyEnd, check, nil, nil)
	l.fsm.GotoFrom(check, bodyBegin, rtl.NewLessThan(iter, stop), &exit)
	for _, b := range breaks {
		l.fsm.GotoFrom(b, exit, nil, nil)
	}
	for _, c := range continues {
		l.fsm.GotoFrom(c, bodyEnd, nil, nil)
	}
	l.scope.AddLoop(check, bodyEnd, iter, step)
	return nil
}

func (l *Lowering) lowerBreak() error {
	if err := l.scope.AddBreak(l.fsm.Current); err != nil {
		return wrap(ErrControlFlowOutsideScope, err.Error())
	}
	l.fsm.Inc()
	return nil
}

func (l *Lowering) lowerContinue() error {
	if err := l.scope.AddContinue(l.fsm.Current); err != nil {
		return wrap(ErrControlFlowOutsideScope, err.Error())
	}
	l.fsm.Inc()
	return nil
}

// lowerReturn lazily allocates the call frame's return-variable register
// on the first return-with-value and reuses it on subsequent ones. A
// bare `return` skips the variable step.
func (l *Lowering) lowerReturn(n *ast.Return) error {
	state := l.fsm.Current
	var val rtl.Expr
	if n.Value != nil {
		v, err := l.LowerExpr(n.Value)
		if err != nil {
			return err
		}
		val = v
		reg := l.scope.GetReturnVariable()
		if reg == nil {
			reg = l.gen.module.Reg(l.gen.uniqName(l.threadName, "ret"), defaultWidth, 0)
			l.scope.SetReturnVariable(reg)
		}
		l.emitBind(reg, val, nil)
	}
	if err := l.scope.AddReturn(state, val); err != nil {
		return wrap(ErrControlFlowOutsideScope, err.Error())
	}
	l.fsm.Inc()
	return nil
}

// inlineFunction expands a call in place: push a call frame, bind
// arguments, emit one state boundary, lower the body, patch every
// unresolved return to the state following the body, then pop.
func (l *Lowering) inlineFunction(def *ast.FunctionDef, args []Binding, kwargs map[string]Binding) (Binding, error) {
	l.scope.Push(callFrame, def.Name)
	if err := l.bindParams(def, args, kwargs); err != nil {
		l.scope.Pop()
		return nil, err
	}
	l.fsm.Inc()
	if err := l.LowerBody(def.Body); err != nil {
		l.scope.Pop()
		return nil, err
	}
	end := l.fsm.Current
	returns := l.scope.UnresolvedReturn()
	retVar := l.scope.GetReturnVariable()
	l.scope.Pop()

	for _, rp := range returns {
		l.fsm.GotoFrom(rp.State, end, nil, nil)
	}
	if retVar != nil {
		return retVar, nil
	}
	return rtl.Int{V: 0}, nil
}

// bindParams binds def's parameters positionally, then by keyword, then
// from defaults for whatever remains unbound.
func (l *Lowering) bindParams(def *ast.FunctionDef, args []Binding, kwargs map[string]Binding) error {
	bound := make(map[string]bool, len(def.Params))
	n := len(def.Params)

	if len(args) > n {
		return wrap(ErrArityMismatch, fmt.Sprintf("%s() takes at most %d arguments, got %d", def.Name, n, len(args)))
	}
	for i, v := range args {
		if err := l.bindParam(def.Params[i], v); err != nil {
			return err
		}
		bound[def.Params[i]] = true
	}

	for name, v := range kwargs {
		found := false
		for _, p := range def.Params {
			if p == name {
				found = true
				break
			}
		}
		if !found {
			return wrap(ErrTypeMisuse, fmt.Sprintf("%s() got an unexpected keyword argument %q", def.Name, name))
		}
		if bound[name] {
			return wrap(ErrTypeMisuse, fmt.Sprintf("%s() got multiple values for argument %q", def.Name, name))
		}
		if err := l.bindParam(name, v); err != nil {
			return err
		}
		bound[name] = true
	}

	numDefaults := len(def.Defaults)
	for i, p := range def.Params {
		if bound[p] {
			continue
		}
		defIdx := i - (n - numDefaults)
		if defIdx < 0 || defIdx >= numDefaults {
			return wrap(ErrArityMismatch, fmt.Sprintf("%s() missing required argument %q", def.Name, p))
		}
		dv, err := l.lowerToBinding(def.Defaults[defIdx])
		if err != nil {
			return err
		}
		if err := l.bindParam(p, dv); err != nil {
			return err
		}
	}
	return nil
}

// bindParam binds a numeric/string parameter value into a fresh register
// (emitting the initializing bind at the call's entry state), or binds a
// non-IR value (a captured function, a ThreadInfo, a tuple) directly.
func (l *Lowering) bindParam(name string, v Binding) error {
	if expr, ok := v.(rtl.Expr); ok {
		reg := l.gen.module.Reg(l.gen.uniqName(l.threadName, name), defaultWidth, 0)
		l.emitBind(reg, expr, nil)
		l.scope.AddVariable(name, reg)
		return nil
	}
	l.scope.AddVariable(name, v)
	return nil
}

// lowerCall routes a call: builtin shortcuts, then the intrinsic
// registry, then inlining.
func (l *Lowering) lowerCall(n *ast.Call) (Binding, error) {
	switch fn := n.Func.(type) {
	case *ast.Name:
		return l.lowerNameCall(fn, n)
	case *ast.Attribute:
		return l.lowerAttributeCall(fn, n)
	default:
		return nil, wrap(ErrTypeMisuse, "call target is not callable")
	}
}

func (l *Lowering) evalArgs(n *ast.Call) ([]Binding, map[string]Binding, error) {
	args := make([]Binding, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := l.lowerToBinding(a)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, v)
	}
	kwargs := make(map[string]Binding, len(n.Keywords))
	for _, kw := range n.Keywords {
		v, err := l.lowerToBinding(kw.Value)
		if err != nil {
			return nil, nil, err
		}
		kwargs[kw.Name] = v
	}
	return args, kwargs, nil
}

func (l *Lowering) lowerNameCall(fn *ast.Name, n *ast.Call) (Binding, error) {
	switch fn.Id {
	case "print":
		return l.emitPrint(n.Args)
	case "int":
		if len(n.Args) != 1 || len(n.Keywords) != 0 {
			return nil, wrap(ErrTypeMisuse, "int() takes exactly one argument")
		}
		return l.lowerToBinding(n.Args[0])
	}

	args, kwargs, err := l.evalArgs(n)
	if err != nil {
		return nil, err
	}

	if intr, ok := l.gen.intrinsics.LookupFunc(fn.Id); ok {
		return intr(l.fsm, args, kwargs)
	}

	def, ok := l.scope.SearchFunction(fn.Id)
	if !ok {
		if v, ok2 := l.env[fn.Id]; ok2 {
			def, ok = v.(*ast.FunctionDef)
		}
	}
	if !ok {
		// A thread's entry function is inlined directly rather than looked
		// up by name, so a self-call from its body is caught here.
		if l.scope.HasActiveCall(fn.Id) {
			return nil, wrap(ErrRecursion, fn.Id)
		}
		return nil, wrap(ErrNameNotDefined, fmt.Sprintf("function %q", fn.Id))
	}
	if l.scope.HasActiveCall(def.Name) {
		return nil, wrap(ErrRecursion, def.Name)
	}
	return l.inlineFunction(def, args, kwargs)
}

// bindingTypeName names the dynamic type a method call's receiver was
// resolved to; the intrinsic-method registry is keyed on owner type and
// method name.
func bindingTypeName(b Binding) string {
	switch b.(type) {
	case *ThreadInfo:
		return "ThreadInfo"
	default:
		return fmt.Sprintf("%T", b)
	}
}

func (l *Lowering) lowerAttributeCall(fn *ast.Attribute, n *ast.Call) (Binding, error) {
	recv, err := l.lowerToBinding(fn.Value)
	if err != nil {
		return nil, err
	}
	args, kwargs, err := l.evalArgs(n)
	if err != nil {
		return nil, err
	}

	if intr, ok := l.gen.intrinsics.LookupMethod(bindingTypeName(recv), fn.Attr); ok {
		return intr(l.fsm, recv, args, kwargs)
	}

	if env, ok := recv.(Environment); ok {
		if v, ok2 := env[fn.Attr]; ok2 {
			if def, ok3 := v.(*ast.FunctionDef); ok3 {
				if l.scope.HasActiveCall(def.Name) {
					return nil, wrap(ErrRecursion, def.Name)
				}
				return l.inlineFunction(def, args, kwargs)
			}
		}
	}
	return nil, wrap(ErrNameNotDefined, fmt.Sprintf("method %q", fn.Attr))
}

// emitPrint lowers both the legacy print statement and the builtin
// print(...) call. Each argument contributes pieces to a
// space-joined format string: a string literal is taken verbatim, a
// `"fmt" % (args...)` argument contributes its format string with the
// argument tuple flattened, a tuple argument is flattened element-wise,
// and every other value becomes a %d placeholder. One SystemTask is
// emitted and the statement consumes one FSM state.
func (l *Lowering) emitPrint(values []ast.Expr) (Binding, error) {
	var pieces []string
	var args []rtl.Expr

	appendValue := func(v rtl.Expr) {
		if s, ok := v.(rtl.Str); ok {
			pieces = append(pieces, s.Value)
			return
		}
		pieces = append(pieces, "%d")
		args = append(args, v)
	}

	for _, raw := range values {
		if bo, ok := raw.(*ast.BinOp); ok && bo.Op == ast.Mod {
			if strLit, ok2 := bo.Left.(*ast.StrLit); ok2 {
				modArgs, err := l.printModArgs(bo.Right)
				if err != nil {
					return nil, err
				}
				pieces = append(pieces, strLit.Value)
				args = append(args, modArgs...)
				continue
			}
		}
		if tuple, ok := raw.(*ast.Tuple); ok {
			for _, e := range tuple.Elts {
				v, err := l.LowerExpr(e)
				if err != nil {
					return nil, err
				}
				appendValue(v)
			}
			continue
		}
		v, err := l.LowerExpr(raw)
		if err != nil {
			return nil, err
		}
		appendValue(v)
	}

	task := rtl.SystemTask{
		Name: "display",
		Args: append([]rtl.Expr{rtl.Str{Value: strings.Join(pieces, " ")}}, args...),
	}
	l.fsm.AddStatement([]rtl.Statement{{Value: task}}, nil)
	l.scope.AddBind(l.fsm.Current, "", task, nil)
	l.fsm.Inc()
	return rtl.Int{V: 0}, nil
}

// printModArgs lowers the right-hand side of a `"fmt" % (args...)`
// expression: a tuple/list is flattened, anything else is a single value.
func (l *Lowering) printModArgs(argsExpr ast.Expr) ([]rtl.Expr, error) {
	var elts []ast.Expr
	switch t := argsExpr.(type) {
	case *ast.Tuple:
		elts = t.Elts
	case *ast.List:
		elts = t.Elts
	default:
		elts = []ast.Expr{argsExpr}
	}
	args := make([]rtl.Expr, 0, len(elts))
	for _, e := range elts {
		v, err := l.LowerExpr(e)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}
