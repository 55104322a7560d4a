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

package ref_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pyro-lang/pyro/internal/ref"
)

func TestSmallIntRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, -1, 42, -42, 1 << 20, -(1 << 20)} {
		r := ref.SmallInt(n)
		assert.True(t, ref.IsSmallInt(r))
		assert.Equal(t, n, ref.AsSmallInt(r))
	}
}

func TestZeroValueIsSmallIntZero(t *testing.T) {
	t.Parallel()

	var z ref.Ref
	assert.True(t, ref.IsSmallInt(z))
	assert.Equal(t, 0, ref.AsSmallInt(z))
	assert.Equal(t, ref.SmallInt(0), z)
}

func TestSingletonsAreDistinctAndStable(t *testing.T) {
	t.Parallel()

	assert.True(t, ref.IsNone(ref.None))
	assert.True(t, ref.IsNotImplemented(ref.NotImplemented))
	assert.True(t, ref.IsUnbound(ref.Unbound))
	assert.True(t, ref.IsBool(ref.True))
	assert.True(t, ref.IsBool(ref.False))

	singletons := []ref.Ref{ref.None, ref.NotImplemented, ref.Unbound, ref.True, ref.False}
	for i, a := range singletons {
		for j, b := range singletons {
			if i == j {
				continue
			}
			assert.NotEqual(t, a, b, "singletons %d and %d collide", i, j)
		}
	}

	// Constructing a singleton twice must yield the bit-identical word.
	assert.Equal(t, ref.None, ref.None)
	assert.Equal(t, ref.AsBool(ref.True), true)
	assert.Equal(t, ref.AsBool(ref.False), false)
}

func TestTagFamiliesDoNotOverlap(t *testing.T) {
	t.Parallel()

	errKind := ref.MakeErrorKind(ref.ErrNotFound)
	assert.True(t, ref.IsErrorKind(errKind))
	assert.Equal(t, ref.ErrNotFound, ref.AsErrorKind(errKind))

	// The error-kind family (tag 101) and the singleton family (tag 111)
	// must never classify each other's words.
	assert.False(t, ref.IsBool(errKind))
	assert.False(t, ref.IsNone(errKind))
	assert.False(t, ref.IsErrorKind(ref.None))
	assert.False(t, ref.IsErrorKind(ref.True))
}

func TestHeapRoundTrip(t *testing.T) {
	t.Parallel()

	type payload struct{ x, y int64 }
	v := &payload{x: 10, y: 20}

	r := ref.FromHeap(v)
	assert.True(t, ref.IsHeap(r))
	got := ref.AsHeap[payload](r)
	assert.Equal(t, v, got)
	assert.Equal(t, int64(10), got.x)
}

func TestSmallStringBytesRoundTrip(t *testing.T) {
	t.Parallel()

	r, ok := ref.MakeSmallString("hi")
	assert.True(t, ok)
	assert.True(t, ref.IsSmallStr(r))
	assert.Equal(t, []byte("hi"), ref.SmallStringBytes(r))

	b, ok := ref.MakeSmallBytes([]byte{1, 2, 3})
	assert.True(t, ok)
	assert.True(t, ref.IsSmallBytes(b))
	assert.Equal(t, []byte{1, 2, 3}, ref.SmallBytesBytes(b))

	_, ok = ref.MakeSmallString("too long for seven bytes")
	assert.False(t, ok)

	empty, ok := ref.MakeSmallString("")
	assert.True(t, ok)
	assert.Nil(t, ref.SmallStringBytes(empty))
}

func TestTagOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ref.Ref(0), ref.TagOf(ref.SmallInt(7)))
	assert.NotEqual(t, ref.Ref(0), ref.TagOf(ref.None))
}
