// lower.go defines the shared lowering context threaded through
// expression and statement lowering: the active scope frame list, the
// FSM currently being programmed, and the captured lexical environment a
// thread was launched with.
package compiler

import (
	"github.com/sirupsen/logrus"

	"threadfsm/src/rtl"
)

// log is the package-level compiler diagnostics entry, tagged with the
// component name so Debug and Warn lines from scope handling, statement
// lowering and call inlining can be told apart without per-call
// boilerplate.
var log = logrus.WithField("component", "compiler")

// Environment is the lexical environment captured when a thread is
// launched: a name resolves here only after scope search misses.
type Environment map[string]Binding

// TupleValue is the compile-time value of a Tuple/List literal: there is
// no runtime list value in the IR, so a tuple lowers to an ordered slice
// of Bindings rather than a single IR expression.
type TupleValue []Binding

// Lowering is the per-invocation state threaded through one
// Create/Extend/Run call while its target is being inlined.
type Lowering struct {
	gen        *ThreadGenerator
	scope      *FrameList
	fsm        *rtl.FSM
	env        Environment
	threadName string
}
