// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interp

import (
	"fmt"
	"unsafe"

	"github.com/pyro-lang/pyro/internal/classes"
	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/debug"
	"github.com/pyro-lang/pyro/internal/exc"
	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/inlinecache"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/rewrite"
	"github.com/pyro-lang/pyro/internal/strs"
	"github.com/pyro-lang/pyro/internal/xunsafe"

	"github.com/pyro-lang/pyro/internal/ref"
)

// DefaultRecursionLimit is the starting value of Machine.RecursionLimit,
// matching the host language convention of a configurable but generous
// default (spec §7 "the interpreter tracks recursion depth and raises
// RecursionError when the configured limit is exceeded").
const DefaultRecursionLimit = 1000

// Subscript implements the container-specific getitem/setitem pair an
// anamorphic BINARY_SUBSCR/STORE_SUBSCR site resolves to, per spec §4.H
// "subscript caches: ... value = the specialized getitem/setitem
// routine." Containers themselves (list, dict, ...) are the built-in
// library's concern (spec §1 Non-goals); this package only provides the
// dispatch point a collaborator registers against.
type Subscript struct {
	Get func(container, index ref.Ref) (ref.Ref, error)
	Set func(container, index, value ref.Ref) error
}

// Machine is one interpreter instance: the object graph (heap, layouts,
// types, strings) plus the single active call stack this goroutine is
// dispatching (spec §5 "single-threaded per instance").
//
// Every function created against the same Machine shares one flat
// Globals namespace; a full module system would key Globals per
// code.Function.Module instead, but no module-object type is among this
// package's specified modules, so this exercise keeps one namespace.
type Machine struct {
	Heap    *heap.Heap
	Layouts *layout.Registry
	Types   *classes.Registry
	Strings *strs.Strings
	Globals *inlinecache.Globals

	// RecursionLimit bounds the live call-stack depth (spec §7
	// "Stack-overflow protection is cooperative").
	RecursionLimit int

	// subscripts maps a container's layout id to the Subscript routine a
	// collaborator registered for it via RegisterSubscript.
	subscripts map[uint32]Subscript

	// funcLayout is the reserved layout id used to box a *code.Function
	// pointer as a heap ref.Ref, so a callable can sit on the value stack
	// and travel through LOAD_CONST/LOAD_METHOD/CALL_FUNCTION the same way
	// any other object does (spec §6 "bytecode is taken as input" leaves
	// MAKE_FUNCTION-style construction to the front end; this package
	// resolves that gap by letting Code.Consts hold already-built
	// *code.Function values directly, boxed on load).
	funcLayout layout.ID

	top   *Frame
	depth int
}

// New creates a fresh interpreter instance with its own heap, type
// registry, and global namespace.
func New() *Machine {
	h := heap.New()
	layouts := layout.NewRegistry()
	return &Machine{
		Heap:           h,
		Layouts:        layouts,
		Types:          classes.NewRegistry(layouts),
		Strings:        strs.New(h, layouts),
		Globals:        inlinecache.NewGlobals(),
		RecursionLimit: DefaultRecursionLimit,
		subscripts:     make(map[uint32]Subscript),
		funcLayout:     layouts.NewRoot(0).ID(),
	}
}

// RegisterSubscript installs s as the getitem/setitem routine for
// containers whose heap objects carry layoutID, consulted by the
// BINARY_SUBSCR/STORE_SUBSCR anamorphic cache on a miss.
func (m *Machine) RegisterSubscript(layoutID uint32, s Subscript) {
	m.subscripts[layoutID] = s
}

// BoxFunction wraps fn as a heap reference carrying the reserved function
// layout, so it can be pushed onto a Frame's value stack like any other
// object (spec §3 "Function" is a heap-representable callable; the boxing
// itself follows the same zero-copy "repurpose a tagged word" idiom
// internal/strs uses for small/large strings).
func (m *Machine) BoxFunction(fn *code.Function) ref.Ref {
	r := m.Heap.Alloc(uint32(m.funcLayout), heap.FormatData, 1, int(unsafe.Sizeof(fn)))
	*xunsafe.Cast[*code.Function](ref.AsHeap[byte](r)) = fn
	return r
}

// FunctionAt unboxes a reference built by BoxFunction. The caller must have
// checked that r's shape is the function layout.
func (m *Machine) FunctionAt(r ref.Ref) *code.Function {
	return *xunsafe.Cast[*code.Function](ref.AsHeap[byte](r))
}

// isFunction reports whether r is a boxed *code.Function.
func (m *Machine) isFunction(r ref.Ref) bool {
	return ref.IsHeap(r) && layout.ID(heap.LayoutIDOf(r)) == m.funcLayout
}

// typeOf returns the class of r, or nil if r is an immediate with no
// heap-resident type in this simplified object model (spec §1 limits this
// core to the object/layout/dispatch machinery; boxed int/float/bool
// classes are a built-in-library concern left to the embedding
// collaborator, noted in DESIGN.md).
func (m *Machine) typeOf(r ref.Ref) *classes.Type {
	if !ref.IsHeap(r) {
		return nil
	}
	l := m.Layouts.Get(layout.ID(heap.LayoutIDOf(r)))
	if l == nil {
		return nil
	}
	return m.Types.Get(l.TypeID())
}

// shapeSpace reserves the top of the uint32 range for immediate "shapes"
// so they never collide with a real (heap) layout id, which the registry
// hands out starting at 1.
const shapeSpace = uint32(0x8000_0000)

const (
	shapeSmallInt uint32 = shapeSpace | 1
	shapeBool     uint32 = shapeSpace | 2
	shapeNone     uint32 = shapeSpace | 3
	shapeOther    uint32 = shapeSpace | 0xFF
)

// shapeOf returns the cache key spec §4.H calls a receiver's "layout id":
// the real layout id for heap objects, or a reserved pseudo-id for each
// family of immediate.
func shapeOf(r ref.Ref) uint32 {
	switch {
	case ref.IsSmallInt(r):
		return shapeSmallInt
	case ref.IsBool(r):
		return shapeBool
	case ref.IsNone(r):
		return shapeNone
	case ref.IsHeap(r):
		return heap.LayoutIDOf(r)
	default:
		return shapeOther
	}
}

// prepare lazily rewrites fn's bytecode and installs its cache table on
// first call, matching spec §4.F's description of Function as code plus
// runtime state layered on afterward.
func (m *Machine) prepare(fn *code.Function) (*rewrite.Program, *inlinecache.Table, error) {
	if fn.Rewritten != nil {
		return fn.Rewritten.(*rewrite.Program), fn.Caches.(*inlinecache.Table), nil
	}

	prog, err := rewrite.Rewrite(fn.Code)
	if err != nil {
		return nil, nil, err
	}
	fn.Rewritten = prog
	fn.Caches = inlinecache.NewTable(prog.CacheSlots, len(fn.Code.Names))
	return prog, fn.Caches.(*inlinecache.Table), nil
}

// Call invokes fn with args (positional only; the caller-chosen entry
// point distinguishes the other call-convention variants, spec §4.I
// "Call convention"). Native functions dispatch straight through their Go
// entry point; interpreted functions get a fresh Frame pushed above the
// caller's.
func (m *Machine) Call(fn *code.Function, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error) {
	if fn.IsNative() {
		result, err := m.callNative(fn, args, kwargs)
		if err != nil {
			if e, ok := exc.As(err); ok && e.Traceback == nil {
				exc.Raise(e)
			}
		}
		return result, err
	}

	if m.RecursionLimit > 0 && m.depth >= m.RecursionLimit {
		return ref.None, exc.New("RecursionError", "maximum recursion depth exceeded")
	}

	prog, cache, err := m.prepare(fn)
	if err != nil {
		return ref.None, err
	}
	if len(args) > fn.TotalVars() {
		return ref.None, fmt.Errorf("pyro: %s() takes at most %d arguments (%d given)", fn.QualName, fn.TotalVars(), len(args))
	}

	m.depth++
	defer func() { m.depth-- }()

	ts := currentThread()
	if ts.profiler != nil && ts.profiler.OnCallEnter != nil {
		ts.profiler.OnCallEnter(fn)
	}
	defer func() {
		if ts.profiler != nil && ts.profiler.OnCallLeave != nil {
			ts.profiler.OnCallLeave(fn)
		}
	}()

	fr := newFrame(m.top, fn, prog, cache, args)
	m.top = fr
	defer func() { m.top = fr.Caller }()

	result, err := m.run(fr)
	if err != nil {
		if e, ok := exc.As(err); ok {
			// e.Traceback is nil exactly once: the first frame the
			// exception unwinds out of. That is also the only point
			// context-chaining (spec §4.J "links its context to the
			// currently handled exception") should happen, since Current()
			// reflects the handler state at the moment of raising, not at
			// some later frame boundary.
			if e.Traceback == nil {
				exc.Raise(e)
			}
			exc.Unwind(e, fn, fr.LastPC())
		}
	}
	return result, err
}

// callNative invokes a native function's Go entry point, converting an
// unexpected Go panic into a RuntimeError exception instead of crashing the
// whole interpreter: one misbehaving builtin must not take down a process
// otherwise running interpreted code unrelated to it. The recovered Go
// stack (internal/debug.Stack) is only ever logged, gated behind
// PYRO_DEBUG the same way every other internal/debug facility is; it plays
// no role in the exception surfaced to pyro code.
func (m *Machine) callNative(fn *code.Function, args []ref.Ref, kwargs map[string]ref.Ref) (result ref.Ref, err error) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log(nil, "callNative", "panic in %s: %v\n%s", fn.QualName, r, debug.Stack(3))
			err = exc.New("RuntimeError", fmt.Sprintf("%s: %v", fn.QualName, r))
		}
	}()
	return fn.Extended(fn, args, kwargs)
}

// TopFrame returns the innermost active frame, or nil if the machine is
// idle.
func (m *Machine) TopFrame() *Frame { return m.top }
