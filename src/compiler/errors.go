// errors.go names the compile error kinds, so callers can distinguish
// them with errors.Is/As instead of string-matching. Each is raised via a
// stack-trace-carrying github.com/pkg/errors wrap at the point of
// failure.
package compiler

import "github.com/pkg/errors"

// Sentinel error kinds. Use errors.Is against these after unwrapping a
// compile error returned by any lowering entry point.
var (
	ErrUnsupportedSyntax       = errors.New("unsupported syntax")
	ErrUnsupportedOperator     = errors.New("unsupported operator")
	ErrNameNotDefined          = errors.New("name not defined")
	ErrArityMismatch           = errors.New("tuple-unpack arity mismatch")
	ErrTypeMisuse              = errors.New("type misuse")
	ErrDuplicateRegistration   = errors.New("duplicate registration")
	ErrRecursion               = errors.New("direct recursion is not supported")
	ErrControlFlowOutsideScope = errors.New("break/continue/return outside enclosing loop or function")
)

// wrap annotates err with kind, preserving errors.Is(err, kind) and
// attaching msg as additional context. Every promotion to a sentinel
// compile error is also logged at Warn so a batch synth run (which keeps
// going past one failing thread target, see util.Perror) still surfaces
// why each one failed.
func wrap(kind error, msg string) error {
	log.WithField("kind", kind).Warn(msg)
	return errors.Wrap(kind, msg)
}
