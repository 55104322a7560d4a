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

// Package layout implements the per-shape attribute descriptor system of
// spec §4.C: an immutable DAG of Layout values, each naming where an
// instance's attributes physically live, with edges recording "add this
// name" / "remove this name" transitions shared across every instance that
// takes the same path through the DAG.
//
// This is grounded on the teacher repository's internal/tdp package: a
// Type there is a compiled table of Field{Offset, Kind} pairs built once
// from a descriptor (internal/tdp/type.go, field.go, offset.go). A Layout
// here is the same idea generalized to a *mutable* shape family: instead of
// one descriptor producing one fixed Type, a family of related shapes
// shares a DAG of Layouts the way V8/CPython "hidden classes" do, with the
// teacher's per-field Offset struct becoming our AttributeInfo.
package layout

import (
	"fmt"
	"sync"

	"github.com/pyro-lang/pyro/internal/swiss"
)

// ID identifies a layout uniquely within one interpreter instance. ID 0 is
// reserved: spec §6 "the layout id 0 is reserved for small integers and
// must never appear on the heap."
type ID uint32

// AttrFlags marks an attribute as excluded from reflection (Hidden) or as
// occupying a slot tooling may assume is permanently stable (FixedOffset).
type AttrFlags uint8

const (
	Hidden AttrFlags = 1 << iota
	FixedOffset
)

// AttributeInfo describes where one attribute lives within an instance.
type AttributeInfo struct {
	Offset int32
	Flags  AttrFlags
}

// Overflow describes what happens when an attribute isn't found in a
// Layout's in-object table.
type Overflow int

const (
	// OverflowNone means lookups that miss the in-object table simply fail.
	OverflowNone Overflow = iota
	// OverflowTuple means additional attributes live in a tuple appended
	// after the in-object region, indexed from OverflowBase.
	OverflowTuple
	// OverflowDict means a single slot holds a lazily allocated mapping,
	// consulted after in-object lookup fails (spec §4.C "dict overflow").
	OverflowDict
	// OverflowSealed means mutation is rejected outright (spec §4.C
	// "Sealed layouts reject mutations", used for __slots__-style types).
	OverflowSealed
)

type attrEntry struct {
	name string
	info AttributeInfo
}

// Layout is one shape: the in-object attribute table, its overflow
// behavior, and outgoing transition edges to sibling layouts.
//
// A zero Layout is not valid; layouts are created by a Registry.
type Layout struct {
	id     ID
	typeID uint32 // Opaque handle into the owning classes.Type registry.

	attrs []attrEntry
	index *swiss.Table[string, int] // name -> index into attrs

	overflow     Overflow
	overflowBase int32 // First free offset/slot for OverflowTuple/OverflowDict.

	mu        sync.Mutex
	additions map[string]ID
	deletions map[string]ID
}

// ID returns the layout's identity.
func (l *Layout) ID() ID { return l.id }

// TypeID returns the opaque type handle this layout describes instances of.
func (l *Layout) TypeID() uint32 { return l.typeID }

// Overflow reports this layout's overflow behavior and base slot/offset.
func (l *Layout) Overflow() (Overflow, int32) { return l.overflow, l.overflowBase }

// Count returns the number of in-object attributes.
func (l *Layout) Count() int { return len(l.attrs) }

// At returns the nth in-object attribute, in table order.
func (l *Layout) At(n int) (name string, info AttributeInfo) {
	e := l.attrs[n]
	return e.name, e.info
}

// Lookup walks the in-object table for name, per spec §4.C
// `lookup(layout, name) -> AttributeInfo | not-found`.
func Lookup(l *Layout, name string) (AttributeInfo, bool) {
	if idx, ok := l.index.Get(name); ok {
		return l.attrs[idx].info, true
	}
	return AttributeInfo{}, false
}

// Registry owns the id space and the shared transition DAG for one
// interpreter instance's layouts (mirroring the teacher's per-compilation
// internal/tdp.Library registry of Types).
type Registry struct {
	mu     sync.Mutex
	nextID ID
	byID   map[ID]*Layout
}

// NewRegistry creates an empty layout registry. ID 0 is never handed out.
func NewRegistry() *Registry {
	return &Registry{nextID: 1, byID: make(map[ID]*Layout)}
}

// Get returns the live layout for id, or nil if none exists (spec invariant
// 2: "layout objects are never destroyed while an instance references
// them" — Get never returns a layout that has been replaced).
func (r *Registry) Get(id ID) *Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// NewRoot creates a fresh, empty layout describing instances of typeID,
// with no overflow behavior (OverflowNone). Most types replace this with a
// dict-overflow or tuple-overflow root immediately after type construction.
func (r *Registry) NewRoot(typeID uint32) *Layout {
	return r.register(&Layout{
		typeID:    typeID,
		index:     swiss.New[string, int](swiss.FxHashString),
		additions: make(map[string]ID),
		deletions: make(map[string]ID),
	})
}

// NewSlotted creates a root layout for a `__slots__`-style type: the given
// names are placed in-object up front, at fixed, stable offsets, and the
// layout is sealed so that no further attribute can be added (spec §4.C
// "Sealed layouts reject mutations"; supplemented feature, §3 of
// SPEC_FULL.md, grounded on CPython's tp_dictoffset == 0 fast classes).
func (r *Registry) NewSlotted(typeID uint32, names ...string) *Layout {
	l := &Layout{
		typeID:    typeID,
		index:     swiss.New[string, int](swiss.FxHashString),
		overflow:  OverflowSealed,
		additions: make(map[string]ID),
		deletions: make(map[string]ID),
	}
	for i, name := range names {
		l.attrs = append(l.attrs, attrEntry{name, AttributeInfo{
			Offset: int32(i),
			Flags:  FixedOffset,
		}})
		l.index.Set(name, i)
	}
	return r.register(l)
}

// WithDictOverflow returns a variant of l (reusing l's id if l has no
// attributes yet, otherwise transitioning to a new layout) that consults a
// lazily allocated dict after in-object lookup fails, giving instances
// Python-visible __dict__ semantics (spec §4.C).
func (r *Registry) WithDictOverflow(l *Layout, slot int32) *Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := l.clone()
	cp.overflow = OverflowDict
	cp.overflowBase = slot
	return r.registerLocked(cp)
}

// TransitionOnAdd returns the layout reached by adding name with the given
// attribute info to l, per spec §4.C `transition_on_add`. If this edge has
// already been taken from l (by any instance), the existing destination
// layout is returned; identical transitions from the same source always
// produce the same layout id (spec §8, attribute-shape-sharing scenario).
func (r *Registry) TransitionOnAdd(l *Layout, name string, info AttributeInfo) (*Layout, error) {
	if l.overflow == OverflowSealed {
		return nil, fmt.Errorf("pyro: layout %d is sealed, cannot add attribute %q", l.id, name)
	}
	if _, exists := Lookup(l, name); exists {
		return l, nil
	}

	l.mu.Lock()
	if dst, ok := l.additions[name]; ok {
		l.mu.Unlock()
		return r.Get(dst), nil
	}
	l.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := l.clone()
	cp.attrs = append(cp.attrs, attrEntry{name, info})
	cp.index.Set(name, len(cp.attrs)-1)
	next := r.registerLocked(cp)

	l.mu.Lock()
	l.additions[name] = next.id
	l.mu.Unlock()

	return next, nil
}

// TransitionOnDelete returns the layout reached by removing name from l.
// Per spec §4.C, the physical slot cannot be reclaimed while other
// instances share the predecessor layout, so the slot is merely marked
// (excluded from lookup) rather than compacted; offsets of the remaining
// attributes never move.
func (r *Registry) TransitionOnDelete(l *Layout, name string) (*Layout, error) {
	if l.overflow == OverflowSealed {
		return nil, fmt.Errorf("pyro: layout %d is sealed, cannot delete attribute %q", l.id, name)
	}
	if _, exists := Lookup(l, name); !exists {
		return nil, fmt.Errorf("pyro: layout %d has no attribute %q", l.id, name)
	}

	l.mu.Lock()
	if dst, ok := l.deletions[name]; ok {
		l.mu.Unlock()
		return r.Get(dst), nil
	}
	l.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := l.clone()
	cp.index.Delete(name)
	next := r.registerLocked(cp)

	l.mu.Lock()
	l.deletions[name] = next.id
	l.mu.Unlock()

	return next, nil
}

func (l *Layout) clone() *Layout {
	cp := &Layout{
		typeID:       l.typeID,
		attrs:        append([]attrEntry(nil), l.attrs...),
		index:        swiss.New[string, int](swiss.FxHashString),
		overflow:     l.overflow,
		overflowBase: l.overflowBase,
		additions:    make(map[string]ID),
		deletions:    make(map[string]ID),
	}
	for i, e := range cp.attrs {
		cp.index.Set(e.name, i)
	}
	return cp
}

func (r *Registry) register(l *Layout) *Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(l)
}

func (r *Registry) registerLocked(l *Layout) *Layout {
	l.id = r.nextID
	r.nextID++
	r.byID[l.id] = l
	return l
}
