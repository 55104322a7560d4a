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

// Package interp implements the interpreter dispatch loop over rewritten
// bytecode cells (spec §4.I), the call convention and frame layout, and the
// glue that lets internal/classes' attribute protocol read and write
// through heap-resident instances without internal/classes importing
// internal/heap directly.
//
// Grounded on the teacher's top-level parse.go: a tight loop that reads a
// tag, looks up a thunk in a compiled dispatch table, calls it, and
// advances the cursor, falling through to a generic path when no
// specialized thunk applies. This is the direct model for Machine.run:
// fetch a cell, branch on its opcode (falling through to the ordinary path
// when an intrinsic doesn't apply, spec §4.I), advance the program
// counter.
package interp

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pyro-lang/pyro/internal/classes"
	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/swiss"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// NewInstance allocates a heap object of t's current instance layout, with
// every in-object slot initialized to ref.Unbound (spec §3 "an attribute
// slot that has never been assigned reads as Unbound, not None").
func NewInstance(h *heap.Heap, t *classes.Type) ref.Ref {
	l := t.InstanceLayout
	total := l.Count()
	if ovf, base := l.Overflow(); ovf == layout.OverflowDict && int(base) >= total {
		total = int(base) + 1
	}

	const slotSize = int(unsafe.Sizeof(ref.Ref(0)))
	r := h.Alloc(uint32(l.ID()), heap.FormatObject, total, total*slotSize)

	slots := xunsafe.Slice(ref.AsHeap[ref.Ref](r), total)
	for i := range slots {
		slots[i] = ref.Unbound
	}
	return r
}

// overflowDicts backs the dict-overflow slot (spec §4.C OverflowDict): a
// side table keyed by instance address, holding the lazily allocated
// mapping that layout lookup falls through to after the in-object table
// misses. This is a scope simplification: a production port would give
// dict objects their own heap representation and trace this table during
// collection the way heap.Heap.handles pins escaped C-API handles; no
// general-purpose dict object type is among this package's specified
// modules (spec §4.A-J), so this exercise keeps it off-heap instead.
var overflowDicts = struct {
	mu sync.Mutex
	m  map[uintptr]*swiss.Table[string, ref.Ref]
}{m: make(map[uintptr]*swiss.Table[string, ref.Ref])}

func dictFor(self ref.Ref) *swiss.Table[string, ref.Ref] {
	addr := uintptr(unsafe.Pointer(ref.AsHeap[byte](self)))

	overflowDicts.mu.Lock()
	defer overflowDicts.mu.Unlock()
	d, ok := overflowDicts.m[addr]
	if !ok {
		d = swiss.New[string, ref.Ref](swiss.FxHashString)
		overflowDicts.m[addr] = d
	}
	return d
}

// heapAttrs adapts one heap instance's slots to classes.InstanceAttrs, so
// classes.GetAttribute/SetAttribute (spec §4.D) can read and write through
// it without internal/classes depending on internal/heap.
type heapAttrs struct {
	layouts *layout.Registry
	self    ref.Ref
	l       *layout.Layout
}

// AttrsOf builds the InstanceAttrs view of self, resolving its current
// layout from the heap header (spec §4.B "the header carries the layout
// id").
func AttrsOf(layouts *layout.Registry, self ref.Ref) classes.InstanceAttrs {
	return &heapAttrs{
		layouts: layouts,
		self:    self,
		l:       layouts.Get(layout.ID(heap.LayoutIDOf(self))),
	}
}

func (a *heapAttrs) slotCount() int {
	total := a.l.Count()
	if ovf, base := a.l.Overflow(); ovf == layout.OverflowDict && int(base) >= total {
		total = int(base) + 1
	}
	return total
}

func (a *heapAttrs) slots() []ref.Ref {
	return xunsafe.Slice(ref.AsHeap[ref.Ref](a.self), a.slotCount())
}

// ReadSlot and WriteSlot access a known in-object offset of self directly,
// bypassing name lookup entirely. This is the inline-cache attribute fast
// path spec §4.H describes: "a hit reads the slot at the cached offset."
// The caller is responsible for having matched self's current layout id
// against the cache key before calling these, since no bounds check against
// the live layout happens here.
func ReadSlot(self ref.Ref, offset int32) ref.Ref {
	return xunsafe.Slice(ref.AsHeap[ref.Ref](self), int(offset)+1)[offset]
}

func WriteSlot(self ref.Ref, offset int32, v ref.Ref) {
	xunsafe.Slice(ref.AsHeap[ref.Ref](self), int(offset)+1)[offset] = v
}

func (a *heapAttrs) Get(name string) (ref.Ref, bool) {
	if info, ok := layout.Lookup(a.l, name); ok {
		v := a.slots()[info.Offset]
		if ref.IsUnbound(v) {
			return ref.Ref(0), false
		}
		return v, true
	}
	if ovf, _ := a.l.Overflow(); ovf == layout.OverflowDict {
		return dictFor(a.self).Get(name)
	}
	return ref.Ref(0), false
}

func (a *heapAttrs) Set(name string, v ref.Ref) error {
	if info, ok := layout.Lookup(a.l, name); ok {
		a.slots()[info.Offset] = v
		return nil
	}

	ovf, _ := a.l.Overflow()
	switch ovf {
	case layout.OverflowSealed:
		return fmt.Errorf("pyro: type %d object has no attribute %q and its layout is sealed", a.l.TypeID(), name)
	case layout.OverflowDict:
		dictFor(a.self).Set(name, v)
		return nil
	default:
		next, err := a.layouts.TransitionOnAdd(a.l, name, layout.AttributeInfo{Offset: int32(a.l.Count())})
		if err != nil {
			return err
		}
		// The instance has grown a slot the old layout didn't reserve
		// space for; this exercise's bump allocator has no in-place grow,
		// so the value itself lives in the overflow dict, but the
		// header's layout id is still advanced to the new shape so that
		// attribute-shape sharing (spec §8) and cache guards keyed on
		// layout id observe the transition.
		hdr := heap.HeaderOf(a.self)
		*hdr = hdr.WithLayoutID(uint32(next.ID()))
		dictFor(a.self).Set(name, v)
		a.l = next
		return nil
	}
}

func (a *heapAttrs) Delete(name string) error {
	if _, ok := layout.Lookup(a.l, name); ok {
		next, err := a.layouts.TransitionOnDelete(a.l, name)
		if err != nil {
			return err
		}
		a.l = next
		return nil
	}
	if ovf, _ := a.l.Overflow(); ovf == layout.OverflowDict {
		dictFor(a.self).Delete(name)
		return nil
	}
	return fmt.Errorf("pyro: type %d object has no attribute %q", a.l.TypeID(), name)
}
