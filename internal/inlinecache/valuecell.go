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

package inlinecache

import "github.com/pyro-lang/pyro/internal/ref"

// ValueCell is the one-field indirection every module-global or type-level
// binding is stored behind (spec §4.H "A value cell is a one-field
// indirection wrapping each module-global binding"). Its identity is
// stable across rebinding, so a cache that stores a pointer to the cell
// stays valid across ordinary reassignment; only structural changes
// (del, or a rebind the dependency link specifically tracks) invalidate
// dependents.
type ValueCell struct {
	Value ref.Ref

	// Placeholder marks a cell that is bound (occupies a slot / a name
	// exists) but carries no value yet — spec §4.H "a marker identical to
	// the cell itself, signalling 'bound but unset'".
	Placeholder bool

	dependents []Invalidatable
}

// NewValueCell creates a cell holding v.
func NewValueCell(v ref.Ref) *ValueCell {
	return &ValueCell{Value: v}
}

// NewPlaceholderCell creates a bound-but-unset cell.
func NewPlaceholderCell() *ValueCell {
	return &ValueCell{Placeholder: true}
}

// DependOn registers d as a dependent of this cell: when the cell is
// invalidated, d.Invalidate() runs. Called the first time a cache site
// resolves a lookup through this cell (spec §4.H "Value cells carry a
// dependency_link").
func (c *ValueCell) DependOn(d Invalidatable) {
	c.dependents = append(c.dependents, d)
}

// Set stores v and clears the placeholder flag. Ordinary reassignment
// (`x = 1` at module scope) does not invalidate dependents: the cell's
// identity is unchanged, so caches that hold a pointer to it keep working
// by re-reading Value.
func (c *ValueCell) Set(v ref.Ref) {
	c.Value = v
	c.Placeholder = false
}

// Invalidate runs every dependent's Invalidate and clears the dependency
// link, implementing the O(dependents) invalidation spec §4.H describes
// for `__setattr__`/`del` against a module or type.
func (c *ValueCell) Invalidate() {
	deps := c.dependents
	c.dependents = nil
	for _, d := range deps {
		d.Invalidate()
	}
}

// Delete marks the cell unbound and invalidates every dependent, per spec
// §4.H "On __setattr__/del against a module/type, every function in the
// dependency list has the matching cache line invalidated".
func (c *ValueCell) Delete() {
	c.Value = ref.Unbound
	c.Placeholder = true
	c.Invalidate()
}

// Globals is a module's name -> binding table. Distinct from
// internal/classes.Type's own attribute dict: globals are always looked up
// by interned name identity and cached by cell pointer, never by layout
// offset.
type Globals struct {
	cells map[string]*ValueCell
}

// NewGlobals creates an empty global namespace.
func NewGlobals() *Globals {
	return &Globals{cells: make(map[string]*ValueCell)}
}

// Cell returns the cell bound to name, creating a placeholder cell on
// first reference so that call sites can cache its pointer before the
// name is ever assigned (spec §4.H "a weak reference to the value cell
// holding the current binding").
func (g *Globals) Cell(name string) *ValueCell {
	if c, ok := g.cells[name]; ok {
		return c
	}
	c := NewPlaceholderCell()
	g.cells[name] = c
	return c
}

// Set assigns value to name, creating the cell if this is the first
// reference.
func (g *Globals) Set(name string, value ref.Ref) {
	g.Cell(name).Set(value)
}

// Delete unbinds name, invalidating every cache that depends on its cell.
func (g *Globals) Delete(name string) {
	if c, ok := g.cells[name]; ok {
		c.Delete()
	}
}
