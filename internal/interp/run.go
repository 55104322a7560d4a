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

	"github.com/pyro-lang/pyro/internal/classes"
	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/exc"
	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/inlinecache"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/rewrite"
)

// run is the dispatch loop: fetch a cell, branch on its opcode (falling
// through to the ordinary path when an intrinsic/anamorphic specialization
// doesn't apply), advance the program counter (spec §4.I).
//
// Grounded on the teacher's parse.go tag-dispatch loop: read a tag, look up
// (or resolve and install) a thunk for it, call it, advance the cursor.
// Here the "tag" is an opcode plus an optional cache-slot index, and a
// thunk is whatever the cache resolves to: a specialized binary routine, an
// AttributeInfo, or a Subscript.
func (m *Machine) run(fr *Frame) (ref.Ref, error) {
	cells := fr.Prog.Cells

	for fr.PC < len(cells) {
		cell := cells[fr.PC]
		pcAtFetch := fr.PC
		fr.PC++

		ts := currentThread()
		if ts.profiler != nil && ts.counting && ts.excluded == 0 {
			ts.opcodes++
		}

		switch cell.Op {
		case rewrite.OpLoadImmediate:
			fr.push(ref.SmallInt(int(int8(cell.Arg))))

		case rewrite.OpLoadBool:
			if cell.Arg != 0 {
				fr.push(ref.True)
			} else {
				fr.push(ref.False)
			}

		case rewrite.OpLoadConst:
			v, err := m.loadConst(fr.Fn.Code, int(cell.CacheIdx))
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpLoadFastReverse:
			idx := int(cell.Arg)
			if ref.IsUnbound(fr.Locals[idx]) {
				name := varName(fr.Fn.Code, idx)
				return ref.None, fail(fr, pcAtFetch, exc.New("UnboundLocalError",
					fmt.Sprintf("local variable %q referenced before assignment", name)))
			}
			fr.push(fr.Locals[idx])

		case rewrite.OpLoadFastReverseUnchecked:
			fr.push(fr.Locals[int(cell.Arg)])

		case rewrite.OpStoreFastReverse:
			fr.Locals[int(cell.Arg)] = fr.pop()

		case rewrite.OpDeleteFast:
			fr.Locals[int(cell.Arg)] = ref.Unbound

		case rewrite.OpLoadGlobal:
			v, err := m.loadGlobal(fr, int(cell.CacheIdx))
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpStoreGlobal:
			name := fr.Fn.Code.Names[int(cell.CacheIdx)]
			v := fr.pop()
			m.Globals.Set(name, v)
			fr.Cache.BindGlobal(int(cell.CacheIdx), m.Globals.Cell(name))

		case rewrite.OpBinaryOpAnamorphic, rewrite.OpInplaceOpAnamorphic:
			right, left := fr.pop(), fr.pop()
			v, err := m.binaryOp(fr.Cache, int(cell.CacheIdx), rewrite.BinaryOp(cell.Arg), left, right)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpCompareOpAnamorphic:
			right, left := fr.pop(), fr.pop()
			v, err := m.compareOp(fr.Cache, int(cell.CacheIdx), rewrite.CompareOp(cell.Arg), left, right)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpCompareIs:
			right, left := fr.pop(), fr.pop()
			fr.push(boolRef(left == right))

		case rewrite.OpCompareIsNot:
			right, left := fr.pop(), fr.pop()
			fr.push(boolRef(left != right))

		case rewrite.OpBinarySubscrAnamorphic:
			index, container := fr.pop(), fr.pop()
			v, err := m.subscriptGet(fr.Cache, int(cell.CacheIdx), container, index)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpStoreSubscrAnamorphic:
			index, container, value := fr.pop(), fr.pop(), fr.pop()
			if err := m.subscriptSet(fr.Cache, int(cell.CacheIdx), container, index, value); err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}

		case rewrite.OpLoadAttrAnamorphic:
			name := fr.Fn.Code.Names[int(cell.Arg)]
			receiver := fr.pop()
			v, err := m.getAttr(fr.Cache, int(cell.CacheIdx), receiver, name)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpStoreAttrAnamorphic:
			name := fr.Fn.Code.Names[int(cell.Arg)]
			receiver, value := fr.pop(), fr.pop()
			if err := m.setAttr(fr.Cache, int(cell.CacheIdx), receiver, name, value); err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}

		case rewrite.OpLoadMethodAnamorphic:
			name := fr.Fn.Code.Names[int(cell.Arg)]
			receiver := fr.pop()
			bound, err := m.loadMethod(fr.Cache, int(cell.CacheIdx), receiver, name)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(bound)

		case rewrite.OpForIterAnamorphic:
			exhausted, v, err := m.forIterNext(fr.peek())
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			if exhausted {
				fr.pop()
				fr.PC = int(cell.Arg)
				continue
			}
			fr.push(v)

		case rewrite.OpCallFunctionAnamorphic:
			n := int(cell.Arg)
			args := make([]ref.Ref, n)
			for i := n - 1; i >= 0; i-- {
				args[i] = fr.pop()
			}
			callee := fr.pop()
			v, err := m.callValue(fr.Cache, int(cell.CacheIdx), callee, args)
			if err != nil {
				return ref.None, fail(fr, pcAtFetch, err)
			}
			fr.push(v)

		case rewrite.OpReturnValue:
			return fr.pop(), nil

		case rewrite.OpJumpForward:
			fr.PC = int(cell.CacheIdx)

		case rewrite.OpPopJumpIfFalse:
			v := fr.pop()
			if !truthy(v) {
				fr.PC = int(cell.CacheIdx)
			}

		case rewrite.OpSetupFinally, rewrite.OpPopExcept:
			// Legacy exception-handler bookkeeping opcodes (spec §4.G):
			// the rewriter already disabled block-map construction for
			// this function when it saw one; execution itself is a no-op
			// here since this package models raise/unwind at the Go
			// error-return level rather than through try/except bytecode.

		default:
			return ref.None, fail(fr, pcAtFetch, fmt.Errorf("pyro: unhandled opcode %d", cell.Op))
		}
	}

	return ref.None, fmt.Errorf("pyro: %s fell off the end of its bytecode without RETURN_VALUE", fr.Fn.QualName)
}

// fail rewinds fr.PC to the instruction that raised err, so that when the
// error reaches Call and Call attaches this frame's traceback node, it
// names the failing instruction rather than the one after it. Raising and
// unwinding themselves happen exactly once per frame, in Call, not here:
// doing it at every opcode site as well would double the traceback (spec
// §4.J "each unwound frame appends a traceback node").
func fail(fr *Frame, pc int, err error) error {
	fr.PC = pc
	return err
}

func boolRef(b bool) ref.Ref {
	if b {
		return ref.True
	}
	return ref.False
}

func truthy(r ref.Ref) bool {
	switch {
	case ref.IsBool(r):
		return ref.AsBool(r)
	case ref.IsNone(r):
		return false
	case ref.IsSmallInt(r):
		return ref.AsSmallInt(r) != 0
	default:
		return true
	}
}

func varName(c *code.Code, idx int) string {
	if idx >= 0 && idx < len(c.Varnames) {
		return c.Varnames[idx]
	}
	return "?"
}

// loadConst materializes Consts[idx] as a Ref, boxing strings and
// functions through their respective factories (spec §3 "Code... Consts").
func (m *Machine) loadConst(c *code.Code, idx int) (ref.Ref, error) {
	if idx < 0 || idx >= len(c.Consts) {
		return ref.None, fmt.Errorf("pyro: constant index %d out of range", idx)
	}
	switch v := c.Consts[idx].(type) {
	case nil:
		return ref.None, nil
	case bool:
		return boolRef(v), nil
	case int:
		return ref.SmallInt(v), nil
	case string:
		return m.Strings.NewString(v), nil
	case *code.Function:
		return m.BoxFunction(v), nil
	case ref.Ref:
		return v, nil
	default:
		return ref.None, fmt.Errorf("pyro: unsupported constant type %T", v)
	}
}

func (m *Machine) loadGlobal(fr *Frame, nameIdx int) (ref.Ref, error) {
	name := fr.Fn.Code.Names[nameIdx]
	cell := fr.Cache.Global[nameIdx]
	if cell == nil {
		cell = m.Globals.Cell(name)
		fr.Cache.BindGlobal(nameIdx, cell)
	}
	if cell.Placeholder {
		return ref.None, exc.New("NameError", fmt.Sprintf("name %q is not defined", name))
	}
	return cell.Value, nil
}

// binaryOp resolves an anamorphic BINARY_OP/INPLACE_OP site: on a cache hit
// for this (left-shape, right-shape) pair, reuse the specialized routine;
// on a miss, specialize for small-int operands (the only arithmetic this
// core's object model implements directly, per spec §1 "the built-in
// library... numeric algorithms... is out of scope" for anything beyond
// small integers) and install it.
func (m *Machine) binaryOp(cache *inlinecache.Table, slot int, op rewrite.BinaryOp, left, right ref.Ref) (ref.Ref, error) {
	key := inlinecache.LayoutPair{Left: shapeOf(left), Right: shapeOf(right)}

	if slot >= 0 && slot < len(cache.Binary) {
		if fn, ok := cache.Binary[slot].Lookup(key); ok {
			return fn.(func(ref.Ref, ref.Ref) (ref.Ref, error))(left, right)
		}
	}

	fn, err := specializeBinary(op, left, right)
	if err != nil {
		return ref.None, err
	}
	if slot >= 0 && slot < len(cache.Binary) {
		cache.Binary[slot].Install(key, fn)
	}
	return fn(left, right)
}

func specializeBinary(op rewrite.BinaryOp, left, right ref.Ref) (func(ref.Ref, ref.Ref) (ref.Ref, error), error) {
	if !ref.IsSmallInt(left) || !ref.IsSmallInt(right) {
		return nil, exc.New("TypeError", "unsupported operand type(s) for binary operator")
	}

	switch op {
	case rewrite.BinAdd:
		return intOp(func(a, b int) (int, error) { return a + b, nil }), nil
	case rewrite.BinSub:
		return intOp(func(a, b int) (int, error) { return a - b, nil }), nil
	case rewrite.BinMul:
		return intOp(func(a, b int) (int, error) { return a * b, nil }), nil
	case rewrite.BinFloorDiv:
		return intOp(func(a, b int) (int, error) {
			if b == 0 {
				return 0, exc.New("ZeroDivisionError", "integer division or modulo by zero")
			}
			return floorDiv(a, b), nil
		}), nil
	case rewrite.BinMod:
		return intOp(func(a, b int) (int, error) {
			if b == 0 {
				return 0, exc.New("ZeroDivisionError", "integer division or modulo by zero")
			}
			return floorMod(a, b), nil
		}), nil
	case rewrite.BinLShift:
		return intOp(func(a, b int) (int, error) { return a << uint(b), nil }), nil
	case rewrite.BinRShift:
		return intOp(func(a, b int) (int, error) { return a >> uint(b), nil }), nil
	case rewrite.BinAnd:
		return intOp(func(a, b int) (int, error) { return a & b, nil }), nil
	case rewrite.BinOr:
		return intOp(func(a, b int) (int, error) { return a | b, nil }), nil
	case rewrite.BinXor:
		return intOp(func(a, b int) (int, error) { return a ^ b, nil }), nil
	case rewrite.BinPow:
		return intOp(func(a, b int) (int, error) {
			r := 1
			for i := 0; i < b; i++ {
				r *= a
			}
			return r, nil
		}), nil
	default:
		return nil, exc.New("TypeError", "unsupported binary operator")
	}
}

func intOp(f func(a, b int) (int, error)) func(ref.Ref, ref.Ref) (ref.Ref, error) {
	return func(left, right ref.Ref) (ref.Ref, error) {
		v, err := f(ref.AsSmallInt(left), ref.AsSmallInt(right))
		if err != nil {
			return ref.None, err
		}
		return ref.SmallInt(v), nil
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	r := a % b
	if r != 0 && ((r < 0) != (b < 0)) {
		r += b
	}
	return r
}

func (m *Machine) compareOp(cache *inlinecache.Table, slot int, op rewrite.CompareOp, left, right ref.Ref) (ref.Ref, error) {
	if ref.IsSmallInt(left) && ref.IsSmallInt(right) {
		a, b := ref.AsSmallInt(left), ref.AsSmallInt(right)
		switch op {
		case rewrite.CmpEq:
			return boolRef(a == b), nil
		case rewrite.CmpNe:
			return boolRef(a != b), nil
		case rewrite.CmpLt:
			return boolRef(a < b), nil
		case rewrite.CmpLe:
			return boolRef(a <= b), nil
		case rewrite.CmpGt:
			return boolRef(a > b), nil
		case rewrite.CmpGe:
			return boolRef(a >= b), nil
		}
	}
	if op == rewrite.CmpEq {
		return boolRef(left == right), nil
	}
	if op == rewrite.CmpNe {
		return boolRef(left != right), nil
	}
	return ref.None, exc.New("TypeError", "unsupported comparison")
}

func (m *Machine) subscriptGet(cache *inlinecache.Table, slot int, container, index ref.Ref) (ref.Ref, error) {
	s, err := m.resolveSubscript(cache, slot, container)
	if err != nil {
		return ref.None, err
	}
	return s.Get(container, index)
}

func (m *Machine) subscriptSet(cache *inlinecache.Table, slot int, container, index, value ref.Ref) error {
	s, err := m.resolveSubscript(cache, slot, container)
	if err != nil {
		return err
	}
	return s.Set(container, index, value)
}

func (m *Machine) resolveSubscript(cache *inlinecache.Table, slot int, container ref.Ref) (Subscript, error) {
	shape := shapeOf(container)
	if slot >= 0 && slot < len(cache.Subscript) {
		if v, ok := cache.Subscript[slot].Lookup(shape); ok {
			return v.(Subscript), nil
		}
	}
	s, ok := m.subscripts[shape]
	if !ok {
		return Subscript{}, exc.New("TypeError", "object is not subscriptable")
	}
	if slot >= 0 && slot < len(cache.Subscript) {
		cache.Subscript[slot].Install(shape, s)
	}
	return s, nil
}

// getAttr implements the LOAD_ATTR anamorphic site: on a hit that names a
// plain in-object slot, read it directly (spec §4.H "a hit reads the slot
// at the cached offset"); otherwise fall through to the full descriptor
// protocol (spec §4.D) and, on a miss, cache a slot offset only when no
// MRO entry overrides the name at all (a pure instance attribute), since
// that is the only case where re-checking the descriptor protocol on every
// access is provably unnecessary.
func (m *Machine) getAttr(cache *inlinecache.Table, slot int, receiver ref.Ref, name string) (ref.Ref, error) {
	shape := shapeOf(receiver)

	if slot >= 0 && slot < len(cache.Attr) {
		if info, ok := cache.Attr[slot].Lookup(shape); ok {
			if info.HasSlot {
				return ReadSlot(receiver, info.Offset), nil
			}
			return info.Getter.(func(ref.Ref) (ref.Ref, error))(receiver)
		}
	}

	t := m.typeOf(receiver)
	if t == nil {
		return ref.None, &classes.ErrNoAttribute{Type: "object", Name: name}
	}

	if _, overridden := t.Resolve(name); !overridden {
		l := m.Layouts.Get(layout.ID(heap.LayoutIDOf(receiver)))
		if info, ok := layout.Lookup(l, name); ok {
			v := ReadSlot(receiver, info.Offset)
			if ref.IsUnbound(v) {
				return ref.None, &classes.ErrNoAttribute{Type: t.Name, Name: name}
			}
			if slot >= 0 && slot < len(cache.Attr) {
				cache.Attr[slot].Install(shape, inlinecache.AttributeInfo{Offset: info.Offset, HasSlot: true})
			}
			return v, nil
		}
		return ref.None, &classes.ErrNoAttribute{Type: t.Name, Name: name}
	}

	attrs := AttrsOf(m.Layouts, receiver)
	v, err := classes.GetAttribute(t, receiver, attrs, name)
	if err != nil {
		return ref.None, err
	}
	if slot >= 0 && slot < len(cache.Attr) {
		getter := func(r ref.Ref) (ref.Ref, error) {
			return classes.GetAttribute(t, r, AttrsOf(m.Layouts, r), name)
		}
		cache.Attr[slot].Install(shape, inlinecache.AttributeInfo{Getter: getter})
	}
	return v, nil
}

// setAttr implements the STORE_ATTR anamorphic site. It shares the same
// cache family and key/value contract as getAttr (spec §4.H "attribute
// caches (LOAD_ATTR, STORE_ATTR, LOAD_METHOD)... a hit reads [or, here,
// writes] the slot at the cached offset"): on a hit that names a plain
// in-object slot, write it directly; otherwise fall through to the full
// descriptor protocol and, on a miss, cache a slot offset only when the
// name is not overridden anywhere in the MRO.
//
// A miss that additionally finds the attribute absent from the receiver's
// current layout (the first store of a brand-new attribute, which grows
// the layout via TransitionOnAdd) installs no cache entry: the pre-
// transition shape has no single stable offset to key a direct write on,
// since the transition target depends on which attribute is being added.
// This is a deliberate, documented scope limitation in the same vein as
// CALL_FUNCTION's call-site cache (DESIGN.md) rather than an oversight.
func (m *Machine) setAttr(cache *inlinecache.Table, slot int, receiver ref.Ref, name string, value ref.Ref) error {
	shape := shapeOf(receiver)

	if slot >= 0 && slot < len(cache.Attr) {
		if info, ok := cache.Attr[slot].Lookup(shape); ok {
			if info.HasSlot {
				WriteSlot(receiver, info.Offset, value)
				return nil
			}
			return info.Setter.(func(ref.Ref, ref.Ref) error)(receiver, value)
		}
	}

	t := m.typeOf(receiver)
	if t == nil {
		return &classes.ErrNoAttribute{Type: "object", Name: name}
	}
	attrs := AttrsOf(m.Layouts, receiver)

	if _, overridden := t.Resolve(name); !overridden {
		l := m.Layouts.Get(layout.ID(heap.LayoutIDOf(receiver)))
		if info, ok := layout.Lookup(l, name); ok {
			WriteSlot(receiver, info.Offset, value)
			if slot >= 0 && slot < len(cache.Attr) {
				cache.Attr[slot].Install(shape, inlinecache.AttributeInfo{Offset: info.Offset, HasSlot: true})
			}
			return nil
		}
		return attrs.Set(name, value)
	}

	if err := classes.SetAttribute(t, receiver, attrs, name, value); err != nil {
		return err
	}
	if slot >= 0 && slot < len(cache.Attr) {
		setter := func(r, v ref.Ref) error {
			return classes.SetAttribute(t, r, AttrsOf(m.Layouts, r), name, v)
		}
		cache.Attr[slot].Install(shape, inlinecache.AttributeInfo{Setter: setter})
	}
	return nil
}

// loadMethod implements the LOAD_METHOD anamorphic site: on a hit, reuse
// the already-resolved unbound Function and skip the MRO walk; on a miss,
// resolve name against receiver's type, cache the unbound Function (not a
// bound closure, since the cache key is the receiver's shape and is shared
// across every instance of that shape, while the bound self is per-call),
// and return a bound callable: a native Function closing over receiver, so
// a subsequent CALL_FUNCTION need not special-case the bound-self argument
// (spec §4.G "LOAD_METHOD... receives anamorphic forms", §4.H "attribute
// caches... LOAD_METHOD").
func (m *Machine) loadMethod(cache *inlinecache.Table, slot int, receiver ref.Ref, name string) (ref.Ref, error) {
	shape := shapeOf(receiver)

	if slot >= 0 && slot < len(cache.Attr) {
		if info, ok := cache.Attr[slot].Lookup(shape); ok {
			unbound := info.Getter.(*code.Function)
			return m.bindMethod(unbound, receiver), nil
		}
	}

	t := m.typeOf(receiver)
	if t == nil {
		return ref.None, &classes.ErrNoAttribute{Type: "object", Name: name}
	}
	v, ok := t.Resolve(name)
	if !ok {
		return ref.None, &classes.ErrNoAttribute{Type: t.Name, Name: name}
	}
	unbound, ok := v.(*code.Function)
	if !ok {
		return ref.None, fmt.Errorf("pyro: %q is not a method", name)
	}
	if slot >= 0 && slot < len(cache.Attr) {
		cache.Attr[slot].Install(shape, inlinecache.AttributeInfo{Getter: unbound})
	}
	return m.bindMethod(unbound, receiver), nil
}

// bindMethod wraps unbound in a native Function closing over receiver, so
// the result can travel through CALL_FUNCTION like any other callable.
func (m *Machine) bindMethod(unbound *code.Function, receiver ref.Ref) ref.Ref {
	bound := code.NewNative(unbound.QualName, func(_ *code.Function, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error) {
		return m.Call(unbound, append([]ref.Ref{receiver}, args...), kwargs)
	})
	return m.BoxFunction(bound)
}

// forIterNext calls iter's bound __next__ method, translating the
// NoMoreItems condition (spec §4.A error kind) surfaced as a StopIteration
// exception into the boolean FOR_ITER itself needs (spec §4.I, §7 "the
// caller decides whether to translate that into StopIteration").
func (m *Machine) forIterNext(iter ref.Ref) (exhausted bool, value ref.Ref, err error) {
	// No cache table/slot of its own: __next__ resolution here happens once
	// per FOR_ITER step rather than at a cacheable bytecode site, unlike
	// the LOAD_METHOD opcode loadMethod otherwise serves.
	next, err := m.loadMethod(nil, -1, iter, "__next__")
	if err != nil {
		return false, ref.None, err
	}
	fn := m.FunctionAt(next)
	v, callErr := fn.Extended(fn, nil, nil)
	if callErr != nil {
		if e, ok := exc.As(callErr); ok && e.Name == "StopIteration" {
			return true, ref.None, nil
		}
		return false, ref.None, callErr
	}
	return false, v, nil
}

// callValue implements CALL_FUNCTION: callee must be a boxed *code.Function
// (spec §4.I "Call convention"). The call-site cache records the shape
// seen (callee kind + argument count) per spec §4.H; this implementation's
// call path does not vary by entry-point variant the way a production
// port's Positional/Keyword/Extended split would, so the cached value is
// informational rather than load-bearing, noted in DESIGN.md.
func (m *Machine) callValue(cache *inlinecache.Table, slot int, callee ref.Ref, args []ref.Ref) (ref.Ref, error) {
	if !m.isFunction(callee) {
		return ref.None, exc.New("TypeError", "object is not callable")
	}
	fn := m.FunctionAt(callee)

	kind := inlinecache.CalleeFunction
	if fn.IsNative() {
		kind = inlinecache.CalleeNative
	}
	key := inlinecache.CallShape{Kind: kind, ArgCount: len(args)}
	if slot >= 0 && slot < len(cache.Call) {
		if _, ok := cache.Call[slot].Lookup(key); !ok {
			cache.Call[slot].Install(key, fn.QualName)
		}
	}

	return m.Call(fn, args, nil)
}
