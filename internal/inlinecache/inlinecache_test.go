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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/ref"
)

func TestSetInstallAndLookup(t *testing.T) {
	t.Parallel()

	var s Set[uint32, AttributeInfo]
	_, ok := s.Lookup(1)
	assert.False(t, ok)

	s.Install(1, AttributeInfo{Offset: 16, HasSlot: true})
	v, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, int32(16), v.Offset)
}

func TestSetEvictsRoundRobinWhenFull(t *testing.T) {
	t.Parallel()

	var s Set[uint32, AttributeInfo]
	for i := uint32(0); i < Ways; i++ {
		s.Install(i, AttributeInfo{Offset: int32(i)})
	}
	assert.True(t, s.Megamorphic())

	s.Install(100, AttributeInfo{Offset: 100})
	_, ok := s.Lookup(0) // first-installed line is evicted
	assert.False(t, ok)
	v, ok := s.Lookup(100)
	require.True(t, ok)
	assert.Equal(t, int32(100), v.Offset)
}

func TestSetInvalidateClearsAllLines(t *testing.T) {
	t.Parallel()

	var s Set[uint32, AttributeInfo]
	s.Install(1, AttributeInfo{Offset: 1})
	s.Invalidate()

	_, ok := s.Lookup(1)
	assert.False(t, ok)
	assert.False(t, s.Megamorphic())
}

func TestValueCellInvalidatesDependents(t *testing.T) {
	t.Parallel()

	cell := NewValueCell(ref.SmallInt(7))

	var attrSet Set[uint32, AttributeInfo]
	attrSet.Install(1, AttributeInfo{Offset: 8})
	cell.DependOn(&attrSet)

	var binSet Set[LayoutPair, any]
	binSet.Install(LayoutPair{Left: 1, Right: 1}, "int_add")
	cell.DependOn(&binSet)

	cell.Delete()

	_, ok := attrSet.Lookup(1)
	assert.False(t, ok)
	_, ok = binSet.Lookup(LayoutPair{Left: 1, Right: 1})
	assert.False(t, ok)
	assert.True(t, cell.Placeholder)
}

func TestValueCellOrdinaryRebindDoesNotInvalidate(t *testing.T) {
	t.Parallel()

	cell := NewValueCell(ref.SmallInt(1))
	var attrSet Set[uint32, AttributeInfo]
	attrSet.Install(1, AttributeInfo{Offset: 8})
	cell.DependOn(&attrSet)

	cell.Set(ref.SmallInt(2))

	_, ok := attrSet.Lookup(1)
	assert.True(t, ok, "ordinary reassignment must not invalidate dependents")
	assert.Equal(t, ref.SmallInt(2), cell.Value)
}

func TestGlobalsCreatesPlaceholderOnFirstReference(t *testing.T) {
	t.Parallel()

	g := NewGlobals()
	cell := g.Cell("x")
	assert.True(t, cell.Placeholder)

	g.Set("x", ref.SmallInt(9))
	assert.False(t, cell.Placeholder)
	assert.Equal(t, ref.SmallInt(9), cell.Value)

	// Same cell identity returned on a later lookup.
	assert.Same(t, cell, g.Cell("x"))
}

func TestGlobalsDeleteInvalidatesBoundSite(t *testing.T) {
	t.Parallel()

	g := NewGlobals()
	g.Set("x", ref.SmallInt(5))
	cell := g.Cell("x")

	var call Set[CallShape, any]
	call.Install(CallShape{Kind: CalleeFunction, ArgCount: 0}, "entry")
	cell.DependOn(&call)

	g.Delete("x")

	_, ok := call.Lookup(CallShape{Kind: CalleeFunction, ArgCount: 0})
	assert.False(t, ok)
}

func TestNewTableSizing(t *testing.T) {
	t.Parallel()

	tbl := NewTable(3, 2)
	assert.Len(t, tbl.Attr, 3)
	assert.Len(t, tbl.Binary, 3)
	assert.Len(t, tbl.Subscript, 3)
	assert.Len(t, tbl.Call, 3)
	assert.Len(t, tbl.Global, 2)

	cell := NewValueCell(ref.None)
	tbl.BindGlobal(0, cell)
	assert.Same(t, cell, tbl.Global[0])
}
