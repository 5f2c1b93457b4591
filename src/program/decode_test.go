package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadfsm/src/ast"
	"threadfsm/src/compiler"
	"threadfsm/src/rtl"
)

const counterProgram = `{
	"entry": "count",
	"functions": [
		{
			"node": "FunctionDef",
			"name": "count",
			"params": [],
			"body": [
				{
					"node": "Assign",
					"targets": [{"node": "Name", "id": "x", "ctx": "store"}],
					"value": {"node": "IntLit", "value": 0}
				},
				{
					"node": "For",
					"target": {"node": "Name", "id": "i", "ctx": "store"},
					"iter": {
						"node": "Call",
						"func": {"node": "Name", "id": "range"},
						"args": [{"node": "IntLit", "value": 10}]
					},
					"body": [
						{
							"node": "Assign",
							"targets": [{"node": "Name", "id": "x", "ctx": "store"}],
							"value": {
								"node": "BinOp",
								"left": {"node": "Name", "id": "x"},
								"op": "+",
								"right": {"node": "IntLit", "value": 1}
							}
						}
					]
				}
			]
		}
	]
}`

// TestDecodeCounter checks the decoded tree's shape for a small program.
func TestDecodeCounter(t *testing.T) {
	prog, err := Decode([]byte(counterProgram))
	require.NoError(t, err)
	assert.Equal(t, "count", prog.Entry)
	require.Len(t, prog.Functions, 1)

	def := prog.Functions["count"]
	require.NotNil(t, def)
	require.Len(t, def.Body, 2)

	loop, ok := def.Body[1].(*ast.For)
	require.True(t, ok, "second statement should decode as a for loop, got %T", def.Body[1])
	call, ok := loop.Iter.(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "range", call.Func.(*ast.Name).Id)
}

// TestDecodeThenLower runs a decoded program through the compiler
// end-to-end, the way the CLI does.
func TestDecodeThenLower(t *testing.T) {
	prog, err := Decode([]byte(counterProgram))
	require.NoError(t, err)

	m := rtl.NewModule("test")
	clk := m.Reg("clk", 1, 0)
	rst := m.Reg("rst", 1, 0)
	gen := compiler.NewThreadGenerator(m, clk, rst)

	fsm, err := gen.Create(prog.Entry, prog.Functions[prog.Entry], nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, fsm.MaxState())
	assert.NotEmpty(t, fsm.Transitions())
}

// TestDecodeErrors checks the decoder's rejection paths.
func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing entry", `{"functions": []}`},
		{"entry not defined", `{"entry": "ghost", "functions": []}`},
		{"unknown node", `{"entry": "f", "functions": [{"node": "Lambda", "name": "f"}]}`},
		{"missing discriminator", `{"entry": "f", "functions": [{"name": "f"}]}`},
		{"non-function top level", `{"entry": "f", "functions": [{"node": "Pass"}]}`},
		{"unknown operator", `{"entry": "f", "functions": [{
			"node": "FunctionDef", "name": "f", "params": [],
			"body": [{"node": "AugAssign",
				"target": {"node": "Name", "id": "x", "ctx": "store"},
				"op": "@",
				"value": {"node": "IntLit", "value": 1}}]
		}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.src))
			assert.Error(t, err)
		})
	}
}

// TestDecodeDuplicateFunction checks duplicate top-level names.
func TestDecodeDuplicateFunction(t *testing.T) {
	src := `{"entry": "f", "functions": [
		{"node": "FunctionDef", "name": "f", "params": [], "body": [{"node": "Pass"}]},
		{"node": "FunctionDef", "name": "f", "params": [], "body": [{"node": "Pass"}]}
	]}`
	_, err := Decode([]byte(src))
	assert.Error(t, err)
}
