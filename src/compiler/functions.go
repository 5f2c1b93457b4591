// functions.go implements the function harvester: a pre-pass over a
// synthesis unit's top-level statement list that records every
// FunctionDef by name, before any statement lowering begins, so a
// function may be called before its textual definition.
package compiler

import (
	"fmt"

	"threadfsm/src/ast"
)

// HarvestFunctions scans body's top-level statements (not nested block
// bodies; a FunctionDef nested inside an if/while is lowered in place,
// not hoisted) and returns every function definition found, keyed by name.
func HarvestFunctions(body []ast.Stmt) (map[string]*ast.FunctionDef, error) {
	out := make(map[string]*ast.FunctionDef)
	for _, s := range body {
		def, ok := s.(*ast.FunctionDef)
		if !ok {
			continue
		}
		if _, exists := out[def.Name]; exists {
			return nil, fmt.Errorf("function %q is already defined", def.Name)
		}
		out[def.Name] = def
	}
	return out, nil
}
