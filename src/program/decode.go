// Package program decodes the JSON-described AST the threadfsm CLI reads
// from source, into the ast package's typed tree. There is no lexer or
// parser here; this package is purely a wire-format deserializer a caller
// could replace with their own front end without touching compiler at
// all.
package program

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"threadfsm/src/ast"
)

// Program is the top-level decoded unit: a flat table of function
// definitions plus the name of the one to synthesize as a thread entry
// point.
type Program struct {
	Entry     string
	Functions map[string]*ast.FunctionDef
}

// Decode parses src as a JSON program document.
func Decode(src []byte) (*Program, error) {
	var doc struct {
		Entry     string            `json:"entry"`
		Functions []json.RawMessage `json:"functions"`
	}
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding program document")
	}
	if doc.Entry == "" {
		return nil, errors.New("program document missing \"entry\"")
	}

	funcs := make(map[string]*ast.FunctionDef, len(doc.Functions))
	for _, raw := range doc.Functions {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, err
		}
		def, ok := s.(*ast.FunctionDef)
		if !ok {
			return nil, errors.Errorf("top-level program entries must all be function definitions, got %T", s)
		}
		if _, exists := funcs[def.Name]; exists {
			return nil, errors.Errorf("function %q is already defined", def.Name)
		}
		funcs[def.Name] = def
	}
	if _, ok := funcs[doc.Entry]; !ok {
		return nil, errors.Errorf("entry function %q not found among decoded functions", doc.Entry)
	}
	return &Program{Entry: doc.Entry, Functions: funcs}, nil
}

func discriminator(raw json.RawMessage) (string, error) {
	var head struct {
		Node string `json:"node"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", errors.Wrap(err, "decoding node header")
	}
	if head.Node == "" {
		return "", errors.New("node is missing its \"node\" discriminator")
	}
	return head.Node, nil
}

func decodeStmtList(raws []json.RawMessage) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(raws))
	for _, raw := range raws {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeExprList(raws []json.RawMessage) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeStmt(raw json.RawMessage) (ast.Stmt, error) {
	kind, err := discriminator(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "Assign":
		var v struct {
			Targets []json.RawMessage `json:"targets"`
			Value   json.RawMessage   `json:"value"`
			Line    int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Assign")
		}
		targets, err := decodeExprList(v.Targets)
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(v.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Targets: targets, Value: value, Line: v.Line}, nil

	case "AugAssign":
		var v struct {
			Target json.RawMessage `json:"target"`
			Op     string          `json:"op"`
			Value  json.RawMessage `json:"value"`
			Line   int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding AugAssign")
		}
		target, err := decodeExpr(v.Target)
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(v.Value)
		if err != nil {
			return nil, err
		}
		op, err := decodeOperator(v.Op)
		if err != nil {
			return nil, err
		}
		return &ast.AugAssign{Target: target, Op: op, Value: value, Line: v.Line}, nil

	case "If":
		var v struct {
			Test   json.RawMessage   `json:"test"`
			Body   []json.RawMessage `json:"body"`
			Orelse []json.RawMessage `json:"orelse"`
			Line   int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding If")
		}
		test, err := decodeExpr(v.Test)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(v.Body)
		if err != nil {
			return nil, err
		}
		orelse, err := decodeStmtList(v.Orelse)
		if err != nil {
			return nil, err
		}
		return &ast.If{Test: test, Body: body, Orelse: orelse, Line: v.Line}, nil

	case "While":
		var v struct {
			Test json.RawMessage   `json:"test"`
			Body []json.RawMessage `json:"body"`
			Line int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding While")
		}
		test, err := decodeExpr(v.Test)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(v.Body)
		if err != nil {
			return nil, err
		}
		return &ast.While{Test: test, Body: body, Line: v.Line}, nil

	case "For":
		var v struct {
			Target json.RawMessage   `json:"target"`
			Iter   json.RawMessage   `json:"iter"`
			Body   []json.RawMessage `json:"body"`
			Line   int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding For")
		}
		target, err := decodeExpr(v.Target)
		if err != nil {
			return nil, err
		}
		iter, err := decodeExpr(v.Iter)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(v.Body)
		if err != nil {
			return nil, err
		}
		return &ast.For{Target: target, Iter: iter, Body: body, Line: v.Line}, nil

	case "FunctionDef":
		var v struct {
			Name     string            `json:"name"`
			Params   []string          `json:"params"`
			Defaults []json.RawMessage `json:"defaults"`
			Body     []json.RawMessage `json:"body"`
			Line     int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding FunctionDef")
		}
		defaults, err := decodeExprList(v.Defaults)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(v.Body)
		if err != nil {
			return nil, err
		}
		return &ast.FunctionDef{Name: v.Name, Params: v.Params, Defaults: defaults, Body: body, Line: v.Line}, nil

	case "Return":
		var v struct {
			Value json.RawMessage `json:"value"`
			Line  int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Return")
		}
		if len(v.Value) == 0 {
			return &ast.Return{Line: v.Line}, nil
		}
		value, err := decodeExpr(v.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Return{Value: value, Line: v.Line}, nil

	case "Break":
		return &ast.Break{Line: lineOf(raw)}, nil
	case "Continue":
		return &ast.Continue{Line: lineOf(raw)}, nil
	case "Pass":
		return &ast.Pass{Line: lineOf(raw)}, nil

	case "Nonlocal":
		var v struct {
			Names []string `json:"names"`
			Line  int      `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Nonlocal")
		}
		return &ast.Nonlocal{Names: v.Names, Line: v.Line}, nil

	case "Global":
		var v struct {
			Names []string `json:"names"`
			Line  int      `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Global")
		}
		return &ast.Global{Names: v.Names, Line: v.Line}, nil

	case "ExprStmt":
		var v struct {
			Value json.RawMessage `json:"value"`
			Line  int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding ExprStmt")
		}
		value, err := decodeExpr(v.Value)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Value: value, Line: v.Line}, nil

	case "Print":
		var v struct {
			Values []json.RawMessage `json:"values"`
			Line   int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Print")
		}
		values, err := decodeExprList(v.Values)
		if err != nil {
			return nil, err
		}
		return &ast.Print{Values: values, Line: v.Line}, nil

	case "Import":
		return &ast.Import{Line: lineOf(raw)}, nil
	case "ImportFrom":
		return &ast.ImportFrom{Line: lineOf(raw)}, nil
	case "ClassDef":
		return &ast.ClassDef{Line: lineOf(raw)}, nil

	default:
		return nil, errors.Errorf("unknown statement node %q", kind)
	}
}

func decodeExpr(raw json.RawMessage) (ast.Expr, error) {
	kind, err := discriminator(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "IntLit":
		var v struct {
			Value int64 `json:"value"`
			Line  int   `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding IntLit")
		}
		return &ast.IntLit{Value: v.Value, Line: v.Line}, nil

	case "FloatLit":
		var v struct {
			Value float64 `json:"value"`
			Line  int     `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding FloatLit")
		}
		return &ast.FloatLit{Value: v.Value, Line: v.Line}, nil

	case "StrLit":
		var v struct {
			Value string `json:"value"`
			Line  int    `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding StrLit")
		}
		return &ast.StrLit{Value: v.Value, Line: v.Line}, nil

	case "BoolLit":
		var v struct {
			Value bool `json:"value"`
			Line  int  `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding BoolLit")
		}
		return &ast.BoolLit{Value: v.Value, Line: v.Line}, nil

	case "NoneLit":
		return &ast.NoneLit{Line: lineOf(raw)}, nil

	case "Name":
		var v struct {
			Id   string `json:"id"`
			Ctx  string `json:"ctx"`
			Line int    `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Name")
		}
		ctx := ast.Load
		if v.Ctx == "store" {
			ctx = ast.Store
		}
		return &ast.Name{Id: v.Id, Ctx: ctx, Line: v.Line}, nil

	case "Attribute":
		var v struct {
			Value json.RawMessage `json:"value"`
			Attr  string          `json:"attr"`
			Line  int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Attribute")
		}
		value, err := decodeExpr(v.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Attribute{Value: value, Attr: v.Attr, Line: v.Line}, nil

	case "Tuple":
		var v struct {
			Elts []json.RawMessage `json:"elts"`
			Line int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Tuple")
		}
		elts, err := decodeExprList(v.Elts)
		if err != nil {
			return nil, err
		}
		return &ast.Tuple{Elts: elts, Line: v.Line}, nil

	case "List":
		var v struct {
			Elts []json.RawMessage `json:"elts"`
			Line int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding List")
		}
		elts, err := decodeExprList(v.Elts)
		if err != nil {
			return nil, err
		}
		return &ast.List{Elts: elts, Line: v.Line}, nil

	case "UnaryOp":
		var v struct {
			Op      string          `json:"op"`
			Operand json.RawMessage `json:"operand"`
			Line    int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding UnaryOp")
		}
		op, err := decodeOperator(v.Op)
		if err != nil {
			return nil, err
		}
		operand, err := decodeExpr(v.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: op, Operand: operand, Line: v.Line}, nil

	case "BinOp":
		var v struct {
			Left  json.RawMessage `json:"left"`
			Op    string          `json:"op"`
			Right json.RawMessage `json:"right"`
			Line  int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding BinOp")
		}
		left, err := decodeExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(v.Right)
		if err != nil {
			return nil, err
		}
		op, err := decodeOperator(v.Op)
		if err != nil {
			return nil, err
		}
		return &ast.BinOp{Left: left, Op: op, Right: right, Line: v.Line}, nil

	case "BoolOp":
		var v struct {
			Op     string            `json:"op"`
			Values []json.RawMessage `json:"values"`
			Line   int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding BoolOp")
		}
		op, err := decodeOperator(v.Op)
		if err != nil {
			return nil, err
		}
		values, err := decodeExprList(v.Values)
		if err != nil {
			return nil, err
		}
		return &ast.BoolOp{Op: op, Values: values, Line: v.Line}, nil

	case "Compare":
		var v struct {
			Left        json.RawMessage   `json:"left"`
			Ops         []string          `json:"ops"`
			Comparators []json.RawMessage `json:"comparators"`
			Line        int               `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Compare")
		}
		left, err := decodeExpr(v.Left)
		if err != nil {
			return nil, err
		}
		ops := make([]ast.Operator, 0, len(v.Ops))
		for _, o := range v.Ops {
			op, err := decodeOperator(o)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		comparators, err := decodeExprList(v.Comparators)
		if err != nil {
			return nil, err
		}
		return &ast.Compare{Left: left, Ops: ops, Comparators: comparators, Line: v.Line}, nil

	case "IfExp":
		var v struct {
			Test   json.RawMessage `json:"test"`
			Body   json.RawMessage `json:"body"`
			Orelse json.RawMessage `json:"orelse"`
			Line   int             `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding IfExp")
		}
		test, err := decodeExpr(v.Test)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(v.Body)
		if err != nil {
			return nil, err
		}
		orelse, err := decodeExpr(v.Orelse)
		if err != nil {
			return nil, err
		}
		return &ast.IfExp{Test: test, Body: body, Orelse: orelse, Line: v.Line}, nil

	case "Call":
		var v struct {
			Func     json.RawMessage   `json:"func"`
			Args     []json.RawMessage `json:"args"`
			Keywords []struct {
				Name  string          `json:"name"`
				Value json.RawMessage `json:"value"`
			} `json:"keywords"`
			Line int `json:"line"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decoding Call")
		}
		fn, err := decodeExpr(v.Func)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprList(v.Args)
		if err != nil {
			return nil, err
		}
		keywords := make([]ast.Keyword, 0, len(v.Keywords))
		for _, kw := range v.Keywords {
			val, err := decodeExpr(kw.Value)
			if err != nil {
				return nil, err
			}
			keywords = append(keywords, ast.Keyword{Name: kw.Name, Value: val})
		}
		return &ast.Call{Func: fn, Args: args, Keywords: keywords, Line: v.Line}, nil

	default:
		return nil, errors.Errorf("unknown expression node %q", kind)
	}
}

func lineOf(raw json.RawMessage) int {
	var v struct {
		Line int `json:"line"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.Line
}

var operatorByName = map[string]ast.Operator{
	"+": ast.Add, "-": ast.Sub, "*": ast.Mul, "/": ast.Div,
	"//": ast.FloorDiv, "%": ast.Mod, "**": ast.Pow,
	"&": ast.BitAnd, "|": ast.BitOr, "^": ast.BitXor, "~": ast.BitNot,
	"<<": ast.LShift, ">>": ast.RShift,
	"and": ast.And, "or": ast.Or, "not": ast.Not,
	"uadd": ast.UAdd, "usub": ast.USub,
	"==": ast.Eq, "!=": ast.NotEq, "<": ast.Lt, "<=": ast.LtE,
	">": ast.Gt, ">=": ast.GtE, "is": ast.Is, "is_not": ast.IsNot,
}

func decodeOperator(s string) (ast.Operator, error) {
	op, ok := operatorByName[s]
	if !ok {
		return ast.OpUnknown, fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}
