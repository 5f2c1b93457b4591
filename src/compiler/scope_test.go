package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadfsm/src/ast"
	"threadfsm/src/rtl"
)

func testRegs(m *rtl.Module, names ...string) []*rtl.Register {
	out := make([]*rtl.Register, 0, len(names))
	for _, n := range names {
		out = append(out, m.Reg(n, 32, 0))
	}
	return out
}

// TestFrameShadowing checks inner-to-outer variable search and that a
// popped frame's bindings disappear.
func TestFrameShadowing(t *testing.T) {
	m := rtl.NewModule("scope")
	regs := testRegs(m, "outer_v", "inner_v")

	fl := NewFrameList()
	fl.Push(callFrame, "f")
	fl.AddVariable("v", regs[0])

	fl.Push(blockFrame, "if")
	fl.AddVariable("v", regs[1])

	got, ok := fl.SearchVariable("v", false)
	require.True(t, ok)
	assert.Same(t, regs[1], got, "inner binding should shadow the outer one")

	fl.Pop()
	got, ok = fl.SearchVariable("v", false)
	require.True(t, ok)
	assert.Same(t, regs[0], got, "popping the inner frame should expose the outer binding")

	_, ok = fl.SearchVariable("w", false)
	assert.False(t, ok)
}

// TestPatchOwnership checks that break/continue recorded inside nested
// block frames land on the owning loop frame, and returns on the owning
// call frame.
func TestPatchOwnership(t *testing.T) {
	fl := NewFrameList()
	fl.Push(callFrame, "f")
	fl.Push(loopFrame, "while")
	fl.Push(blockFrame, "if")

	require.NoError(t, fl.AddBreak(7))
	require.NoError(t, fl.AddContinue(8))
	require.NoError(t, fl.AddReturn(9, rtl.Int{V: 1}))

	fl.Pop() // close the if block

	assert.Equal(t, []int{7}, fl.UnresolvedBreak())
	assert.Equal(t, []int{8}, fl.UnresolvedContinue())
	assert.Empty(t, fl.Current().returns, "returns must not land on the loop frame")

	fl.ClearBreak()
	fl.ClearContinue()
	fl.Pop() // close the loop

	returns := fl.UnresolvedReturn()
	require.Len(t, returns, 1)
	assert.Equal(t, 9, returns[0].State)
}

// TestControlFlowOutsideScope checks the promoted errors: break/continue
// with no loop in reach, including across a call boundary.
func TestControlFlowOutsideScope(t *testing.T) {
	fl := NewFrameList()
	fl.Push(callFrame, "f")
	assert.Error(t, fl.AddBreak(1))
	assert.Error(t, fl.AddContinue(1))

	// A loop in the caller must not catch a break inside an inlined call.
	fl.Push(loopFrame, "while")
	fl.Push(callFrame, "g")
	assert.Error(t, fl.AddBreak(2))

	fl.Pop()
	assert.NoError(t, fl.AddBreak(3))
}

// TestTerminatedPerFrame checks that the dead-block marker is scoped to
// the frame the terminator was lowered in.
func TestTerminatedPerFrame(t *testing.T) {
	fl := NewFrameList()
	fl.Push(callFrame, "f")
	fl.Push(loopFrame, "while")
	fl.Push(blockFrame, "if")

	require.NoError(t, fl.AddBreak(4))
	assert.True(t, fl.Terminated(), "rest of the block is dead after a break")

	fl.Push(blockFrame, "nested")
	assert.False(t, fl.Terminated(), "a fresh frame starts live")
	fl.Pop()

	fl.Pop() // close the if block
	assert.False(t, fl.Terminated(), "the enclosing block resumes after the if closes")
}

// TestReturnVariable checks the lazily allocated return slot on the
// nearest call frame.
func TestReturnVariable(t *testing.T) {
	m := rtl.NewModule("scope")
	ret := m.Reg("ret", 32, 0)

	fl := NewFrameList()
	fl.Push(callFrame, "f")
	fl.Push(blockFrame, "if")

	assert.Nil(t, fl.GetReturnVariable())
	fl.SetReturnVariable(ret)
	assert.Same(t, ret, fl.GetReturnVariable(), "return slot is visible from nested blocks")

	fl.ClearReturnVariable()
	assert.Nil(t, fl.GetReturnVariable())
}

// TestHasActiveCall checks recursion detection across nested call frames.
func TestHasActiveCall(t *testing.T) {
	fl := NewFrameList()
	fl.Push(callFrame, "f")
	fl.Push(blockFrame, "if")
	fl.Push(callFrame, "g")

	assert.True(t, fl.HasActiveCall("f"))
	assert.True(t, fl.HasActiveCall("g"))
	assert.False(t, fl.HasActiveCall("h"))

	fl.Pop()
	assert.False(t, fl.HasActiveCall("g"))
}

// TestFunctionTable checks harvest registration and duplicate rejection.
func TestFunctionTable(t *testing.T) {
	fl := NewFrameList()
	def := &ast.FunctionDef{Name: "f"}
	require.NoError(t, fl.AddFunction(def))
	assert.Error(t, fl.AddFunction(&ast.FunctionDef{Name: "f"}))

	got, ok := fl.SearchFunction("f")
	require.True(t, ok)
	assert.Same(t, def, got)
}
