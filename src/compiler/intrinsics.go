// intrinsics.go implements the intrinsic registry: the lookup consulted
// at every call site to decide whether a callee is host-handled
// (bypasses normal lowering entirely) or must be inlined from the
// function table.
package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"threadfsm/src/rtl"
)

// IntrinsicFunc is a host callable registered under a free-function name,
// e.g. "run" or "sleep". It receives the FSM currently being lowered into
// plus the already-lowered argument bindings, and returns the call's
// result (or an error).
type IntrinsicFunc func(fsm *rtl.FSM, args []Binding, kwargs map[string]Binding) (Binding, error)

// IntrinsicMethod is a host callable registered under a bound-method
// identity, e.g. ThreadInfo.wait. recv is the receiver Binding the
// attribute access resolved (a *ThreadInfo here, but the registry does
// not care what concrete type it is).
type IntrinsicMethod func(fsm *rtl.FSM, recv Binding, args []Binding, kwargs map[string]Binding) (Binding, error)

// methodEntry pairs a registered method intrinsic with a uuid identity
// token. The token is never read back to perform a lookup (lookups are
// always by the stable "TypeName.Method" string key below, and a second
// registration under an existing key is refused); it is an opaque
// registration handle that nothing in this package reads. Nothing about
// emitted IR or register names is ever derived from it.
type methodEntry struct {
	id uuid.UUID
	fn IntrinsicMethod
}

// IntrinsicRegistry holds two intrinsic mappings: one for free functions
// keyed by name, one for bound methods keyed by a canonical method
// identity.
type IntrinsicRegistry struct {
	funcs   map[string]IntrinsicFunc
	methods map[string]*methodEntry
}

// NewIntrinsicRegistry returns an empty registry.
func NewIntrinsicRegistry() *IntrinsicRegistry {
	return &IntrinsicRegistry{
		funcs:   make(map[string]IntrinsicFunc),
		methods: make(map[string]*methodEntry),
	}
}

// RegisterFunc registers fn as the intrinsic for free-function calls to
// name. Re-registering an existing name is a compile error.
func (r *IntrinsicRegistry) RegisterFunc(name string, fn IntrinsicFunc) error {
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("intrinsic function %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// MethodKey builds the canonical bound-method identity used as a registry
// key, e.g. MethodKey("ThreadInfo", "wait") == "ThreadInfo.wait".
func MethodKey(ownerType, method string) string {
	return ownerType + "." + method
}

// RegisterMethod registers fn as the intrinsic for calls to owner.method.
func (r *IntrinsicRegistry) RegisterMethod(ownerType, method string, fn IntrinsicMethod) error {
	key := MethodKey(ownerType, method)
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("intrinsic method %q is already registered", key)
	}
	r.methods[key] = &methodEntry{id: uuid.New(), fn: fn}
	return nil
}

// LookupFunc returns the registered free-function intrinsic, if any.
func (r *IntrinsicRegistry) LookupFunc(name string) (IntrinsicFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// LookupMethod returns the registered bound-method intrinsic, if any.
func (r *IntrinsicRegistry) LookupMethod(ownerType, method string) (IntrinsicMethod, bool) {
	e, ok := r.methods[MethodKey(ownerType, method)]
	if !ok {
		return nil, false
	}
	return e.fn, true
}
