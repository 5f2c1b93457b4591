package rtl

import (
	"sort"

	"threadfsm/src/util"
)

// Dump renders fsm's transition table and per-state statements as text
// through util.Writer's line helpers.
func (f *FSM) Dump(w *util.Writer) {
	w.WriteString("fsm " + f.Name + " {\n")

	states := make([]int, 0, len(f.statements))
	for s := range f.statements {
		states = append(states, s)
	}
	sort.Ints(states)

	for _, s := range states {
		w.State(s)
		for _, stmt := range f.statements[s] {
			cond := ""
			if stmt.Cond != nil {
				cond = stmt.Cond.String()
			}
			if stmt.Dst == nil {
				w.Task(stmt.Value.String())
				continue
			}
			w.Bind(stmt.Dst.Name, stmt.Value.String(), cond)
		}
	}

	for _, t := range f.transitions {
		cond := ""
		if t.Cond != nil {
			cond = t.Cond.String()
		}
		w.Goto(t.Src, t.Dst, cond)
		if t.ElseDst != nil {
			w.Goto(t.Src, *t.ElseDst, "!("+cond+")")
		}
	}

	w.WriteString("}\n")
}
