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

// Package classes implements type objects, method-resolution order, and
// attribute lookup (spec §4.D).
//
// Grounded on the teacher's internal/tdp.Library + Type pair
// (internal/tdp/library.go, type.go): a Library there is a registry of
// compiled Types keyed by descriptor, each Type a flat table of resolved
// Fields. Here, a Registry plays the same role for class objects, and a
// Type's dict plays the role the teacher's Field table plays: the thing
// attribute lookup walks. The MRO is this package's analogue of the
// teacher's descriptor-driven field ordering, computed once at
// construction time rather than trusted to an external compiler.
package classes

import (
	"fmt"
	"sync"

	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/swiss"
)

// Descriptor is a class-dict member implementing the descriptor protocol
// (spec §4.D). A descriptor with a non-nil Set or Delete is a "data
// descriptor" and takes priority over instance attributes during lookup.
type Descriptor struct {
	Get    func(instance ref.Ref) (ref.Ref, error)
	Set    func(instance, value ref.Ref) error
	Delete func(instance ref.Ref) error
}

// IsData reports whether d is a data descriptor.
func (d *Descriptor) IsData() bool { return d.Set != nil || d.Delete != nil }

// Ctor implements a type's __call__ semantics: the default constructs an
// instance via __new__ followed by __init__ (spec §3 "Lifecycle"); a type
// may override this wholesale (e.g. builtin types whose construction is
// not expressible as ordinary bytecode).
type Ctor func(t *Type, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error)

// Type is a class object: bases, linearized MRO, and a namespace dict.
//
// A zero Type is not valid; types are created by a Registry.
type Type struct {
	id uint32

	Name     string
	QualName string

	Bases []*Type
	mro   []*Type

	InstanceLayout *layout.Layout
	Flags          Flags

	dict *swiss.Table[string, any] // name -> ref.Ref or *Descriptor

	Ctor Ctor
}

// ID returns the type's opaque registry handle (also the builtin-base
// layout id used by types inheriting this one, once marked non-heap).
func (t *Type) ID() uint32 { return t.id }

// MRO returns the linearized method resolution order, self first.
func (t *Type) MRO() []*Type { return append([]*Type(nil), t.mro...) }

// SetAttr installs name in t's own namespace.
func (t *Type) SetAttr(name string, v any) { t.dict.Set(name, v) }

// OwnAttr looks up name in t's own dict only (no MRO walk).
func (t *Type) OwnAttr(name string) (any, bool) { return t.dict.Get(name) }

// Resolve walks the MRO (self first) for name and returns the raw dict
// value (a ref.Ref or a *Descriptor), without applying the descriptor
// protocol. Exposed for callers (internal/interp's attribute cache) that
// need to know whether a name is overridden anywhere in the MRO at all, to
// decide whether a plain instance-slot read is safe to cache.
func (t *Type) Resolve(name string) (any, bool) {
	v, _, ok := t.lookupMRO(name)
	return v, ok
}

// lookupMRO walks the MRO (self first) for the first dict entry named name.
func (t *Type) lookupMRO(name string) (any, *Type, bool) {
	for _, c := range t.mro {
		if v, ok := c.OwnAttr(name); ok {
			return v, c, true
		}
	}
	return nil, nil, false
}

// Registry owns type identity allocation for one interpreter instance.
type Registry struct {
	mu     sync.Mutex
	nextID uint32
	byID   map[uint32]*Type

	// Root types, used to decide the cached capability flags (spec §4.D
	// "comparing the result against the root implementation inherited
	// from object, type, module, or str").
	Object, TypeType, Module, Str *Type
}

// NewRegistry creates a type registry and its four root types (object,
// type, module, str), each with an empty dict and an unspecialized default
// Ctor.
func NewRegistry(layouts *layout.Registry) *Registry {
	r := &Registry{byID: make(map[uint32]*Type)}

	mk := func(name string) *Type {
		t, err := r.newRaw(name, nil, nil, layouts.NewRoot(0))
		if err != nil {
			panic(err) // Root types cannot fail to construct.
		}
		return t
	}

	r.Object = mk("object")
	r.TypeType = mk("type")
	r.Module = mk("module")
	r.Str = mk("str")

	for _, root := range []*Type{r.Object, r.TypeType, r.Module, r.Str} {
		root.Bases = nil
		root.mro = []*Type{root}
		root.Flags = root.Flags.WithBuiltinBase(root.id) |
			HasObjectGetattribute | HasObjectNew | HasObjectHash | HasObjectEq
	}
	r.Object.Flags |= IsBasetype

	return r
}

func (r *Registry) newRaw(name string, bases []*Type, dict map[string]any, instLayout *layout.Layout) (*Type, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	t := &Type{
		id:             id,
		Name:           name,
		QualName:       name,
		Bases:          bases,
		InstanceLayout: instLayout,
		dict:           swiss.New[string, any](swiss.FxHashString),
	}
	for k, v := range dict {
		t.dict.Set(k, v)
	}

	r.mu.Lock()
	r.byID[id] = t
	r.mu.Unlock()

	return t, nil
}

// New constructs a type from a name, an ordered base list, and a namespace
// dict, per spec §6 `new_type(name, bases, dict, flags)`.
//
// This computes the C3 MRO, the builtin-base flag field, and the cached
// capability flags, all at construction time (spec §4.D), so that
// attribute-lookup fast paths never need to re-derive them.
func (r *Registry) New(name string, bases []*Type, dict map[string]any, instLayout *layout.Layout) (*Type, error) {
	if len(bases) == 0 {
		bases = []*Type{r.Object}
	}

	t, err := r.newRaw(name, bases, dict, instLayout)
	if err != nil {
		return nil, err
	}

	mro, err := linearizeC3(t, bases)
	if err != nil {
		return nil, err
	}
	t.mro = mro

	baseFlags := make([]Flags, len(bases))
	for i, b := range bases {
		baseFlags[i] = b.Flags
	}
	t.Flags = Inherited(baseFlags) | IsHeaptype

	t.Flags = t.Flags.WithBuiltinBase(t.builtinBase())
	t.Flags |= t.scanCapabilities(r)

	return t, nil
}

// builtinBase returns the single most-derived builtin ancestor's layout id:
// the first type in the MRO (after t itself, which is always a heaptype)
// that is not itself a heaptype.
func (t *Type) builtinBase() uint32 {
	for _, c := range t.mro {
		if !c.Flags.Has(IsHeaptype) {
			return c.id
		}
	}
	return t.mro[len(t.mro)-1].id // Fallback: the root ancestor.
}

// scanCapabilities recomputes the cached capability flags by comparing the
// MRO resolution of each interesting dunder name against the root
// implementation it would otherwise inherit (spec §4.D).
func (t *Type) scanCapabilities(r *Registry) Flags {
	var f Flags

	check := func(name string, root *Type, bit Flags) {
		_, owner, ok := t.lookupMRO(name)
		if !ok || owner == root {
			f |= bit
		}
	}

	check("__getattribute__", r.Object, HasObjectGetattribute)
	check("__new__", r.Object, HasObjectNew)
	check("__hash__", r.Object, HasObjectHash)
	check("__hash__", r.Str, HasStrHash)
	check("__eq__", r.Object, HasObjectEq)

	if _, _, ok := t.lookupMRO("__get__"); ok {
		f |= HasGet
	}
	if _, _, ok := t.lookupMRO("__set__"); ok {
		f |= HasSet
	}
	if _, _, ok := t.lookupMRO("__delete__"); ok {
		f |= HasDelete
	}

	return f
}

// Get returns the live type for id, or nil if none exists.
func (r *Registry) Get(id uint32) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// ErrNoAttribute is returned by GetAttribute/SetAttribute when no binding
// is found anywhere in the MRO or instance.
type ErrNoAttribute struct {
	Type, Name string
}

func (e *ErrNoAttribute) Error() string {
	return fmt.Sprintf("pyro: %q object has no attribute %q", e.Type, e.Name)
}

// InstanceAttrs abstracts over however the caller stores per-instance
// attributes (an interp-package concern, built on layout+heap); GetAttribute
// only needs to read and write through it.
type InstanceAttrs interface {
	Get(name string) (ref.Ref, bool)
	Set(name string, v ref.Ref) error
	Delete(name string) error
}

// GetAttribute implements spec §4.D `type.__getattribute__`: fetch the MRO
// entry; if it is a data descriptor, call its Get; otherwise check the
// instance; otherwise call Get on a non-data descriptor; otherwise raise
// AttributeError.
func GetAttribute(t *Type, instance ref.Ref, attrs InstanceAttrs, name string) (ref.Ref, error) {
	mroVal, _, mroOK := t.lookupMRO(name)

	if mroOK {
		if d, ok := mroVal.(*Descriptor); ok && d.IsData() {
			return d.Get(instance)
		}
	}

	if attrs != nil {
		if v, ok := attrs.Get(name); ok {
			return v, nil
		}
	}

	if mroOK {
		if d, ok := mroVal.(*Descriptor); ok {
			return d.Get(instance)
		}
		return mroVal.(ref.Ref), nil
	}

	return ref.None, &ErrNoAttribute{t.Name, name}
}

// SetAttribute implements the write half of the descriptor protocol: a data
// descriptor's Set wins over instance storage.
func SetAttribute(t *Type, instance ref.Ref, attrs InstanceAttrs, name string, value ref.Ref) error {
	if mroVal, _, ok := t.lookupMRO(name); ok {
		if d, ok := mroVal.(*Descriptor); ok && d.Set != nil {
			return d.Set(instance, value)
		}
	}
	return attrs.Set(name, value)
}
