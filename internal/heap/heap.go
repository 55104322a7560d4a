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

package heap

import (
	"errors"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/pyro-lang/pyro/internal/debug"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// ErrForeignHandle is returned by Unpin when passed a Handle minted by a
// different Heap, per spec §5 ("any C-API object handle that escapes the
// interpreter ... is tracked in an auxiliary table"): the table is scoped to
// one interpreter instance, and a handle crossing instances is a bug in the
// embedding collaborator, not something this package silently tolerates.
var ErrForeignHandle = errors.New("heap: handle belongs to a different interpreter instance")

// Heap is one interpreter instance's managed heap: a bump-pointer mutator
// space and a moving collector that promotes reachable objects into a
// second space, per spec §5 ("the mutator and the collector do not run
// concurrently").
//
// A zero Heap is not ready to use; call New.
type Heap struct {
	// ID identifies this interpreter instance's heap, stamped onto every
	// Handle it mints so Unpin can reject a handle that escaped into a
	// different instance's auxiliary table (spec §5, cross-instance
	// sharing of mutable runtime state is not supported).
	ID uuid.UUID

	from, to *space

	// handles tracks C-API object handles that have escaped the
	// interpreter (e.g. a borrowed pointer passed to native code), so the
	// collector can keep their referents pinned for the duration of the
	// callout (spec §5, "shared-resource policy").
	handles map[uintptr]ref.Ref

	// weakrefs and pendingWeakRefs back WeakRef (weakref.go); finalizable
	// and finalizers back the __del__ hook table (finalizer.go). Both are
	// supplemented features (SPEC_FULL.md §3) layered on top of Collect.
	weakrefs        []*WeakRef
	pendingWeakRefs []*WeakRef

	finalizable []finalizable
	finalizers  map[uint32]Finalizer

	allocated int // Bytes allocated since the last collection.
}

// New creates an empty heap.
func New() *Heap {
	return &Heap{
		ID:      uuid.New(),
		from:    &space{gen: 0},
		to:      &space{gen: 1},
		handles: make(map[uintptr]ref.Ref),
	}
}

// Alloc allocates a heap object with the given layout id, slot format, and
// inline element count, and returns a tagged reference to it. size is the
// total body size in bytes, not including the header word.
//
// The header is written at offset -8 from the returned reference's
// underlying pointer, matching spec invariant (1): "the word at offset -8
// is either a header or a forwarding reference".
func (h *Heap) Alloc(layoutID uint32, format int, count int, size int) ref.Ref {
	total := 8 + size
	p := h.from.alloc(total)
	h.allocated += total

	hdr := MakeHeader(layoutID, format, count)
	xunsafe.ByteStore(p, 0, hdr)

	body := xunsafe.ByteAdd[byte](p, 8)
	return ref.FromHeap(body)
}

// HeaderOf returns a pointer to the header word preceding the heap object r
// points to. The caller must have checked ref.IsHeap(r).
func HeaderOf(r ref.Ref) *Header {
	body := ref.AsHeap[byte](r)
	return xunsafe.ByteAdd[Header](body, -8)
}

// LayoutIDOf returns the layout id of the heap object r points to.
func LayoutIDOf(r ref.Ref) uint32 {
	return HeaderOf(r).LayoutID()
}

// HashOf implements the two-step identity hash described in spec §4.B:
// return the header's cached hash if nonzero, otherwise generate, store,
// and return a fresh nonzero one.
//
// Immutable classes (ints, floats, tuples, bytes, strings) do not use this
// path; they compute a semantic hash independent of the header slot.
func HashOf(r ref.Ref) uint32 {
	h := HeaderOf(r)
	if cached := h.Hash(); cached != 0 {
		return cached
	}

	fresh := uint32(rand.Uint64())
	if fresh == 0 {
		fresh = 1
	}
	*h = h.WithHash(fresh)
	return fresh
}

// Handle is an opaque token for a C-API object handle pinned in a Heap's
// auxiliary table. It carries the owning Heap's ID so Unpin can detect a
// handle that leaked into a different interpreter instance.
type Handle struct {
	Owner uuid.UUID
	Addr  uintptr
}

// Pin registers p as an escaped handle, keyed by its own address, so the
// collector keeps its referent alive across a native callout. The returned
// Handle is scoped to this Heap and must be passed back to Unpin.
func (h *Heap) Pin(addr uintptr, r ref.Ref) Handle {
	h.handles[addr] = r
	debug.Log(nil, "heap.pin", "%#x -> %v", addr, r)
	return Handle{Owner: h.ID, Addr: addr}
}

// Unpin releases a handle registered with Pin. It returns ErrForeignHandle,
// without mutating the table, if hd was minted by a different Heap.
func (h *Heap) Unpin(hd Handle) error {
	if hd.Owner != h.ID {
		return ErrForeignHandle
	}
	delete(h.handles, hd.Addr)
	return nil
}

// Allocated returns the number of bytes allocated in the current from-space
// since the last collection, used by the interpreter's allocation-failure
// and explicit-_gc triggers (spec §5).
func (h *Heap) Allocated() int {
	return h.allocated
}
