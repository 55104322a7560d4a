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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/inlinecache"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/rewrite"
)

func trampoline(fn *code.Function, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error) {
	panic("trampoline should never be invoked directly for an interpreted function")
}

func makeAdd() *code.Function {
	c := &code.Code{
		PosArgs:   2,
		NumLocals: 2,
		StackSize: 2,
		Bytecode: []byte{
			byte(rewrite.OpLoadFast), 0,
			byte(rewrite.OpLoadFast), 1,
			byte(rewrite.OpBinaryOp), byte(rewrite.BinAdd),
			byte(rewrite.OpReturnValue), 0,
		},
		Name:      "add",
		Filename:  "<test>",
		FirstLine: 1,
	}
	return code.New(c, ref.None, trampoline)
}

// TestCacheSpecialization covers spec §8 scenario 1: calling add(1, 2)
// installs a (small-int, small-int) key at the BINARY_OP site pointing at
// the integer-add specialization, and a later call against a type the
// cache doesn't recognize produces a TypeError rather than silently
// reusing the stale specialization.
func TestCacheSpecialization(t *testing.T) {
	t.Parallel()

	m := New()
	fn := makeAdd()

	result, err := m.Call(fn, []ref.Ref{ref.SmallInt(1), ref.SmallInt(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.SmallInt(3), result)

	table := fn.Caches.(*inlinecache.Table)
	prog := fn.Rewritten.(*rewrite.Program)

	var binarySlot = -1
	for _, cell := range prog.Cells {
		if cell.Op == rewrite.OpBinaryOpAnamorphic {
			binarySlot = int(cell.CacheIdx)
			break
		}
	}
	require.GreaterOrEqual(t, binarySlot, 0, "rewriter must allocate a cache slot for the BINARY_OP site")

	key := inlinecache.LayoutPair{Left: shapeSmallInt, Right: shapeSmallInt}
	_, ok := table.Binary[binarySlot].Lookup(key)
	assert.True(t, ok, "first call must install the (small-int, small-int) specialization")

	// A call with an unsupported operand type surfaces a TypeError instead
	// of reusing the small-int specialization blindly.
	_, err = m.Call(fn, []ref.Ref{ref.None, ref.SmallInt(2)}, nil)
	require.Error(t, err)
}

// TestAttributeShapeSharing covers spec §8 scenario 2: two instances of
// the same class that receive the same sequence of attribute assignments
// end up sharing a layout id, in which x and y have distinct offsets.
func TestAttributeShapeSharing(t *testing.T) {
	t.Parallel()

	m := New()
	p, err := m.Types.New("P", nil, nil, m.Layouts.NewRoot(0))
	require.NoError(t, err)

	p1 := NewInstance(m.Heap, p)
	p2 := NewInstance(m.Heap, p)
	table := inlinecache.NewTable(1, 0)

	for _, step := range []struct {
		self ref.Ref
		name string
		val  ref.Ref
	}{
		{p1, "x", ref.SmallInt(1)},
		{p1, "y", ref.SmallInt(2)},
		{p2, "x", ref.SmallInt(3)},
		{p2, "y", ref.SmallInt(4)},
	} {
		require.NoError(t, m.setAttr(table, 0, step.self, step.name, step.val))
	}

	l1 := heap.LayoutIDOf(p1)
	l2 := heap.LayoutIDOf(p2)
	assert.Equal(t, l1, l2, "p1 and p2 must share a layout id after the same attribute sequence")

	shape := m.Layouts.Get(layout.ID(l1))
	xInfo, ok := layout.Lookup(shape, "x")
	require.True(t, ok)
	yInfo, ok := layout.Lookup(shape, "y")
	require.True(t, ok)
	assert.NotEqual(t, xInfo.Offset, yInfo.Offset)
}

// TestGlobalInvalidation covers spec §8 scenario 3: a function caching a
// module global must observe a later mutation of that global, proving the
// cache is not silently stale.
func TestGlobalInvalidation(t *testing.T) {
	t.Parallel()

	m := New()
	m.Globals.Set("g", ref.SmallInt(1))

	c := &code.Code{
		StackSize: 1,
		Names:     []string{"g"},
		Bytecode: []byte{
			byte(rewrite.OpLoadGlobal), 0,
			byte(rewrite.OpReturnValue), 0,
		},
		Name:      "f",
		Filename:  "<test>",
		FirstLine: 1,
	}
	fn := code.New(c, ref.None, trampoline)

	v, err := m.Call(fn, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.SmallInt(1), v)

	m.Globals.Set("g", ref.SmallInt(2))

	v, err = m.Call(fn, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.SmallInt(2), v, "the global cache must reflect the mutation, not the value seen at first call")
}

// TestRecursionLimit covers spec §7's "cooperative stack-overflow
// protection": an interpreted function that calls itself (via a
// self-referential LOAD_CONST, the boxing path Machine.BoxFunction
// provides in place of a MAKE_FUNCTION opcode, see the comment on
// Machine's funcLayout field) past Machine.RecursionLimit raises RecursionError rather
// than overflowing the Go call stack. The recursion check lives on the
// interpreted call path (Machine.Call, before a new Frame is built), so
// this must recurse through real interpreted calls, not a native Go
// closure that would simply blow the goroutine stack instead.
func TestRecursionLimit(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecursionLimit = 4

	c := &code.Code{
		StackSize: 1,
		Consts:    []any{nil},
		Bytecode: []byte{
			byte(rewrite.OpLoadConst), 0,
			byte(rewrite.OpCallFunction), 0,
			byte(rewrite.OpReturnValue), 0,
		},
		Name:      "recurse",
		Filename:  "<test>",
		FirstLine: 1,
	}
	fn := code.New(c, ref.None, trampoline)
	c.Consts[0] = fn // self-reference: calling fn recurses into itself.

	_, err := m.Call(fn, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RecursionError")
}
